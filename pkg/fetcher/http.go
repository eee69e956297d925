package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-dev/turboresource/internal/errors"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// maxErrorBody caps how much of a failed response is kept for the error.
const maxErrorBody = 512

// HTTPOption configures an HTTP fetcher.
type HTTPOption func(*httpFetcher)

// WithClient sets the http.Client used for requests.
func WithClient(c *http.Client) HTTPOption {
	return func(f *httpFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(name, value string) HTTPOption {
	return func(f *httpFetcher) {
		f.header.Add(name, value)
	}
}

type httpFetcher struct {
	base   string
	client *http.Client
	header http.Header
}

// HTTP returns a fetcher that GETs <base>/<key> and decodes the JSON body.
// Keys are path-escaped segment by segment.
func HTTP(base string, opts ...HTTPOption) turbo.Fetcher {
	f := &httpFetcher{
		base:   strings.TrimRight(base, "/"),
		client: http.DefaultClient,
		header: http.Header{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f.fetch
}

func (f *httpFetcher) fetch(ctx context.Context, key string) (any, error) {
	target := f.base + "/" + escapeKey(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for name, values := range f.header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		e := errors.New("T200").
			WithSource(target).
			Wrap(&StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))})
		return nil, e
	}

	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, errors.New("T201").WithSource(target).Wrap(err)
	}
	return v, nil
}

// StatusError carries a non-2xx origin response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
