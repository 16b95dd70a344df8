package inference

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/samber/lo"
)

var supportedFormats = []string{"png", "jpeg", "jpg", "gif"}

// supportedFormat accepts an empty declaration; the decoder sniffs the bytes.
func supportedFormat(format string) bool {
	format = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), "image/")
	return format == "" || lo.Contains(supportedFormats, format)
}

type textPayload struct {
	Inputs string `json:"inputs"`
}

type flatPayload struct {
	Inputs string `json:"inputs"`
	Image  string `json:"image"`
}

type nestedInputs struct {
	Image  string `json:"image"`
	Prompt string `json:"prompt"`
}

type nestedPayload struct {
	Inputs nestedInputs `json:"inputs"`
}

// BuildPayload encodes req for the wire. Reference images are re-encoded as
// PNG and base64 encoded, then laid out according to shape.
func BuildPayload(req Request, shape Shape) ([]byte, error) {
	if !req.hasPrompt() && !req.hasReference() {
		return nil, &Error{Kind: KindInvalidInput, Model: req.Model, Err: fmt.Errorf("a prompt or a reference image is required")}
	}
	if !req.hasReference() {
		return json.Marshal(textPayload{Inputs: req.Prompt})
	}

	encoded, err := EncodePNG(req.Reference.Data)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Model: req.Model, Err: err}
	}
	b64 := base64.StdEncoding.EncodeToString(encoded)

	switch shape {
	case ShapeNested:
		return json.Marshal(nestedPayload{Inputs: nestedInputs{Image: b64, Prompt: req.Prompt}})
	default:
		return json.Marshal(flatPayload{Inputs: req.Prompt, Image: b64})
	}
}

// EncodePNG decodes any supported raster format and re-encodes it as PNG.
func EncodePNG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode reference image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode reference image: %w", err)
	}
	return buf.Bytes(), nil
}
