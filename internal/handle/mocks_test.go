package handle

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/dmorgan81/hfimage/internal/store"
)

type fakeGenerator struct {
	requests []inference.Request
	body     []byte
	err      error

	ready  bool
	probes []string
}

func (f *fakeGenerator) Generate(_ context.Context, req inference.Request) (*inference.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return inference.Decode(req.Model, f.body)
}

func (f *fakeGenerator) ProbeReady(_ context.Context, model, _ string) bool {
	f.probes = append(f.probes, model)
	return f.ready
}

type fakeUploader struct {
	uploads []store.UploadParams
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, params store.UploadParams) error {
	f.uploads = append(f.uploads, params)
	return f.err
}

type fakeInvalidator struct {
	paths []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, paths []string) error {
	f.paths = append(f.paths, paths...)
	return nil
}

type fakeFeed struct{}

func (fakeFeed) Generate(context.Context) ([]byte, error) {
	return []byte(`<rss version="2.0"></rss>`), nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 3, 3)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
