package fetcher

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/turboresource/internal/errors"
)

func TestHTTPDecodesJSON(t *testing.T) {
	var gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotHeader = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"name":"ada","age":36}`)
	}))
	defer srv.Close()

	fetch := HTTP(srv.URL+"/", WithHeader("Authorization", "Bearer t"))
	v, err := fetch(context.Background(), "users/a b")
	require.NoError(t, err)

	assert.Equal(t, "/users/a%20b", gotPath)
	assert.Equal(t, "Bearer t", gotHeader)
	assert.Equal(t, map[string]any{"name": "ada", "age": 36.0}, v)
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := HTTP(srv.URL)(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "T200", errors.Code(err))

	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "nope", se.Body)
}

func TestHTTPUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}))
	defer srv.Close()

	_, err := HTTP(srv.URL)(context.Background(), "k")
	assert.Equal(t, "T201", errors.Code(err))
}

func TestHTTPHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := HTTP(srv.URL, WithClient(srv.Client()))(ctx, "slow")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch did not stop after cancel")
	}
}

type fakeGetter struct {
	input *s3.GetObjectInput
	body  string
	err   error
}

func (f *fakeGetter) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3ReadsPrefixedObject(t *testing.T) {
	g := &fakeGetter{body: `[1,2,3]`}
	v, err := S3(g, "bucket", "cache/")(context.Background(), "list")
	require.NoError(t, err)

	assert.Equal(t, "bucket", aws.ToString(g.input.Bucket))
	assert.Equal(t, "cache/list", aws.ToString(g.input.Key))
	assert.Equal(t, []any{1.0, 2.0, 3.0}, v)
}

func TestS3Errors(t *testing.T) {
	boom := stderrors.New("access denied")
	_, err := S3(&fakeGetter{err: boom}, "b", "")(context.Background(), "k")
	assert.Equal(t, "T202", errors.Code(err))
	assert.ErrorIs(t, err, boom)

	_, err = S3(&fakeGetter{body: "not json"}, "b", "")(context.Background(), "k")
	assert.Equal(t, "T201", errors.Code(err))
}

func TestStatic(t *testing.T) {
	data := map[string]any{"a": 1}
	fetch := Static(data)
	data["b"] = 2

	v, err := fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = fetch(context.Background(), "b")
	assert.ErrorIs(t, err, ErrNotFound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fetch(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
