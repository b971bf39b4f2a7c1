package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/complyhq/comply/pkg/logger"
)

// S3API is the subset of the S3 client the source needs; tests supply fakes.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source pulls raw scanner output objects from a bucket. Scanners drop
// their result files under a per-source prefix; each object is one payload
// for the matching parser.
type S3Source struct {
	client S3API
	logger logger.Logger
	bucket string
	prefix string
}

// NewS3Source creates a source for one bucket and prefix using the default
// AWS credential chain.
func NewS3Source(ctx context.Context, bucket, prefix string) (*S3Source, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &S3Source{
		client: s3.NewFromConfig(cfg),
		logger: logger.WithSource("s3"),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// NewS3SourceWithClient creates a source with an injected client.
func NewS3SourceWithClient(client S3API, bucket, prefix string) *S3Source {
	return &S3Source{
		client: client,
		logger: logger.WithSource("s3"),
		bucket: bucket,
		prefix: prefix,
	}
}

// Object is one raw scanner payload fetched from the bucket.
type Object struct {
	Key  string
	Body []byte
}

// Fetch lists and downloads every object under the source's prefix.
func (s *S3Source) Fetch(ctx context.Context) ([]Object, error) {
	var objects []Object

	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, s.prefix, err)
		}

		for _, item := range out.Contents {
			if item.Key == nil {
				continue
			}

			obj, err := s.fetchObject(ctx, *item.Key)
			if err != nil {
				// One unreadable object should not sink the batch.
				s.logger.Warn("skipping unreadable object", "key", *item.Key, "error", err)
				continue
			}
			objects = append(objects, obj)
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	s.logger.Debug("fetched scanner output", "bucket", s.bucket, "prefix", s.prefix, "objects", len(objects))

	return objects, nil
}

func (s *S3Source) fetchObject(ctx context.Context, key string) (Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Object{}, fmt.Errorf("getting object: %w", err)
	}
	defer func() {
		_ = out.Body.Close()
	}()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("reading object body: %w", err)
	}

	return Object{Key: key, Body: body}, nil
}
