package main

import (
	"context"
	"net/http"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/turboresource/internal/config"
	"github.com/vango-dev/turboresource/internal/errors"
	"github.com/vango-dev/turboresource/pkg/fetcher"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// defaultRegion is used when fetcher.s3.region and AWS_REGION are unset.
const defaultRegion = "us-east-1"

func buildFetcher(cfg *config.Config) (turbo.Fetcher, error) {
	switch cfg.Fetcher.Kind {
	case config.FetcherStatic:
		return fetcher.Static(cfg.Fetcher.Static), nil

	case config.FetcherHTTP:
		opts := []fetcher.HTTPOption{
			fetcher.WithClient(&http.Client{Timeout: cfg.HTTPTimeout()}),
		}
		names := make([]string, 0, len(cfg.Fetcher.HTTP.Headers))
		for name := range cfg.Fetcher.HTTP.Headers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			opts = append(opts, fetcher.WithHeader(name, cfg.Fetcher.HTTP.Headers[name]))
		}
		return fetcher.HTTP(cfg.Fetcher.HTTP.BaseURL, opts...), nil

	case config.FetcherS3:
		return fetcher.S3(newS3Client(cfg.Fetcher.S3, os.Getenv), cfg.Fetcher.S3.Bucket, cfg.Fetcher.S3.Prefix), nil

	default:
		return nil, errors.New("T004").WithSource("fetcher.kind: " + cfg.Fetcher.Kind)
	}
}

// newS3Client builds a client from settings and the standard AWS_*
// credential variables.
func newS3Client(c config.S3FetcherConfig, getenv func(string) string) *s3.Client {
	region := c.Region
	if region == "" {
		region = getenv("AWS_REGION")
	}
	if region == "" {
		region = defaultRegion
	}

	opts := s3.Options{
		Region:       region,
		UsePathStyle: c.PathStyle,
		Credentials:  aws.NewCredentialsCache(envCredentials(getenv)),
	}
	if c.Endpoint != "" {
		opts.BaseEndpoint = aws.String(c.Endpoint)
	}
	return s3.New(opts)
}

func envCredentials(getenv func(string) string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		creds := aws.Credentials{
			AccessKeyID:     getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}
		if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
			return aws.Credentials{}, errors.New("T005").
				WithSource("AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY").
				WithDetail("The s3 fetcher reads credentials from the environment.")
		}
		return creds, nil
	})
}
