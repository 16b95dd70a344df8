package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakeCloudFront struct {
	input *cloudfront.CreateInvalidationInput
}

func (f *fakeCloudFront) CreateInvalidation(_ context.Context, in *cloudfront.CreateInvalidationInput, _ ...func(*cloudfront.Options)) (*cloudfront.CreateInvalidationOutput, error) {
	f.input = in
	return &cloudfront.CreateInvalidationOutput{}, nil
}

func TestFileUploaderWritesExactBytes(t *testing.T) {
	dir := t.TempDir()
	data := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	u := &FileUploader{Dir: dir}

	require.NoError(t, u.Upload(context.Background(), UploadParams{Name: "../generated_image.png", Data: data}))

	got, err := os.ReadFile(filepath.Join(dir, "generated_image.png"))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestS3Uploader(t *testing.T) {
	api := &fakeS3{}
	u := &S3Uploader{Client: api, Bucket: "images"}
	data := []byte("png-bytes")

	err := u.Upload(context.Background(), UploadParams{
		Name:        "20240501-abc.png",
		Data:        data,
		ContentType: "image/png",
		Metadata:    map[string]string{"model": "org/model"},
	})

	require.NoError(t, err)
	assert.Equal(t, "images", aws.ToString(api.input.Bucket))
	assert.Equal(t, "20240501-abc.png", aws.ToString(api.input.Key))
	assert.Equal(t, "image/png", aws.ToString(api.input.ContentType))
	assert.Equal(t, "org/model", api.input.Metadata["model"])
	assert.Equal(t, data, api.body)
}

func TestCloudFrontInvalidator(t *testing.T) {
	api := &fakeCloudFront{}
	inv := &CloudFrontInvalidator{
		Client:       api,
		Distribution: "E123",
		now:          func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}

	require.NoError(t, inv.Invalidate(context.Background(), []string{"/latest.png", "/feed.rss"}))

	assert.Equal(t, "E123", aws.ToString(api.input.DistributionId))
	assert.Equal(t, int32(2), aws.ToInt32(api.input.InvalidationBatch.Paths.Quantity))
	assert.Equal(t, []string{"/latest.png", "/feed.rss"}, api.input.InvalidationBatch.Paths.Items)
	assert.Equal(t, "20240501120000.000000000", aws.ToString(api.input.InvalidationBatch.CallerReference))
}

func TestNopInvalidator(t *testing.T) {
	assert.NoError(t, NopInvalidator{}.Invalidate(context.Background(), []string{"/x"}))
}
