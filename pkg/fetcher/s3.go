package fetcher

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/turboresource/internal/errors"
	"github.com/vango-dev/turboresource/pkg/turbo"
)

// ObjectGetter is the part of *s3.Client the S3 fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 returns a fetcher that reads s3://bucket/<prefix><key> and decodes
// the object as JSON.
func S3(client ObjectGetter, bucket, prefix string) turbo.Fetcher {
	return func(ctx context.Context, key string) (any, error) {
		objectKey := prefix + key
		source := "s3://" + bucket + "/" + objectKey

		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(objectKey),
		})
		if err != nil {
			return nil, errors.New("T202").WithSource(source).Wrap(err)
		}
		defer out.Body.Close()

		var v any
		if err := json.NewDecoder(out.Body).Decode(&v); err != nil {
			return nil, errors.New("T201").WithSource(source).Wrap(err)
		}
		return v, nil
	}
}
