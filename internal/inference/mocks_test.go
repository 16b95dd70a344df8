package inference

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"
)

// fakeTransport replays responses in order, repeating the last one.
type fakeTransport struct {
	responses []*Response
	err       error

	posts  [][]byte
	urls   []string
	tokens []string
	gets   int
}

func (f *fakeTransport) Post(_ context.Context, url, token string, body []byte) (*Response, error) {
	f.posts = append(f.posts, body)
	f.urls = append(f.urls, url)
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, f.err
	}
	idx := len(f.posts) - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func (f *fakeTransport) Get(_ context.Context, url, token string) (*Response, error) {
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[0], nil
}

type recordingSleeper struct {
	waits []time.Duration
	err   error
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return r.err
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 60), uint8(y * 60), 200, 255})
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func loading(seconds string) *Response {
	return &Response{Status: 503, Body: []byte(`{"error":"Model is currently loading","estimated_time":` + seconds + `}`)}
}
