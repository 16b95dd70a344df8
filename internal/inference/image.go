package inference

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"time"
)

// Result is a successfully generated image. The raw bytes are exactly what
// the endpoint returned and must not be modified by callers.
type Result struct {
	Model    string
	Attempts int
	Notices  []Notice

	raw    []byte
	img    image.Image
	format string
}

// Decode validates body as a raster image and wraps it in a Result.
func Decode(model string, body []byte) (*Result, error) {
	if len(body) == 0 {
		return nil, &Error{Kind: KindMalformedImage, Model: model, Status: 200, Err: fmt.Errorf("empty response body")}
	}
	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindMalformedImage, Model: model, Status: 200, Body: string(body), Err: err}
	}
	return &Result{Model: model, raw: body, img: img, format: format}, nil
}

func (r *Result) Bytes() []byte { return r.raw }

func (r *Result) Image() image.Image { return r.img }

// Format is the name of the codec that decoded the response, e.g. "png".
func (r *Result) Format() string { return r.format }

func (r *Result) ContentType() string { return "image/" + r.format }

func (r *Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.raw)
}

func (r *Result) DataURI() string {
	return "data:" + r.ContentType() + ";base64," + r.Base64()
}

// Waited is the total time spent in backoff before the image arrived.
func (r *Result) Waited() time.Duration {
	var total time.Duration
	for _, n := range r.Notices {
		total += n.Wait
	}
	return total
}
