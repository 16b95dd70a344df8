package feed

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	objects map[string]map[string]string
	times   map[string]time.Time
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeBucket) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	key := aws.ToString(in.Key)
	return &s3.HeadObjectOutput{
		Metadata:     f.objects[key],
		LastModified: aws.Time(f.times[key]),
	}, nil
}

func TestGenerateListsPublishedImages(t *testing.T) {
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bucket := &fakeBucket{
		objects: map[string]map[string]string{
			"20240501-a.png": {"model": "black-forest-labs/FLUX.1-schnell", "prompt": "a red fox"},
			"20240502-b.png": {"model": "Kvikontent/midjourney-v6", "prompt": "a lighthouse"},
			"latest.png":     {"model": "Kvikontent/midjourney-v6", "prompt": "a lighthouse"},
			"notes.txt":      {},
		},
		times: map[string]time.Time{
			"20240501-a.png": day,
			"20240502-b.png": day.Add(24 * time.Hour),
			"latest.png":     day.Add(24 * time.Hour),
		},
	}
	g := &Generator{client: bucket, bucket: "images", baseURL: "https://img.example.com"}

	rss, err := g.Generate(context.Background())
	require.NoError(t, err)

	out := string(rss)
	assert.Contains(t, out, "<rss")
	assert.Contains(t, out, "https://img.example.com/20240501-a.png")
	assert.Contains(t, out, "a lighthouse")
	assert.NotContains(t, out, "latest.png")
	assert.NotContains(t, out, "notes.txt")
	assert.Less(t, strings.Index(out, "20240502-b.png"), strings.Index(out, "20240501-a.png"), "newest first")
}

func TestGenerateIncludesEveryPublishedFormat(t *testing.T) {
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	bucket := &fakeBucket{
		objects: map[string]map[string]string{
			"20240501-a.jpg": {"model": "runwayml/stable-diffusion-v1-5", "prompt": "a harbor at dusk"},
			"20240502-b.gif": {"model": "org/m", "prompt": "a spinning top"},
			"latest.jpg":     {"model": "runwayml/stable-diffusion-v1-5", "prompt": "a harbor at dusk"},
		},
		times: map[string]time.Time{
			"20240501-a.jpg": day,
			"20240502-b.gif": day.Add(time.Hour),
			"latest.jpg":     day,
		},
	}
	g := &Generator{client: bucket, bucket: "images", baseURL: "https://img.example.com"}

	rss, err := g.Generate(context.Background())
	require.NoError(t, err)

	out := string(rss)
	assert.Contains(t, out, "https://img.example.com/20240501-a.jpg")
	assert.Contains(t, out, "https://img.example.com/20240502-b.gif")
	assert.NotContains(t, out, "latest.jpg")
}

func TestPublished(t *testing.T) {
	assert.True(t, published("20240501-a.png"))
	assert.True(t, published("20240501-a.jpg"))
	assert.False(t, published("latest.gif"))
	assert.True(t, published("latest-prompts/20240501-a.png"))
	assert.False(t, published("20240501-a.webp"))
}
