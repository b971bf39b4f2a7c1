package ingest

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for key := range f.objects {
		if params.Prefix != nil && !strings.HasPrefix(key, *params.Prefix) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[*params.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3SourceFetch(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"posture/2026-08-30/report.json": `[]`,
		"posture/2026-08-31/report.json": `[{"metadata":{"event_code":"x"}}]`,
		"other/ignored.json":             `{}`,
	}}

	source := NewS3SourceWithClient(fake, "scanner-drops", "posture/")

	objects, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	for _, obj := range objects {
		assert.True(t, strings.HasPrefix(obj.Key, "posture/"))
		assert.NotEmpty(t, obj.Body)
	}
}
