package inference

import (
	"bytes"
	"fmt"
	"image"
	"strings"
)

// Reference is an uploaded image used to steer generation. Format is the
// format declared by the uploader; the bytes are always re-encoded before
// they are sent.
type Reference struct {
	Data   []byte
	Format string
}

type Request struct {
	Prompt    string
	Reference *Reference
	Model     string
	Token     string
}

func (r Request) hasPrompt() bool {
	return strings.TrimSpace(r.Prompt) != ""
}

func (r Request) hasReference() bool {
	return r.Reference != nil && len(r.Reference.Data) > 0
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &Error{Kind: KindInvalidInput, Err: fmt.Errorf("model is required")}
	}
	if !r.hasPrompt() && !r.hasReference() {
		return &Error{Kind: KindInvalidInput, Model: r.Model, Err: fmt.Errorf("a prompt or a reference image is required")}
	}
	if r.hasReference() && !supportedFormat(r.Reference.Format) && !decodable(r.Reference.Data) {
		return &Error{Kind: KindInvalidInput, Model: r.Model, Err: fmt.Errorf("unsupported image format %q", r.Reference.Format)}
	}
	if strings.TrimSpace(r.Token) == "" {
		return &Error{Kind: KindConfiguration, Model: r.Model, Err: fmt.Errorf("inference api token is not configured")}
	}
	return nil
}

// Shape selects the wire layout used for image-guided requests.
type Shape int

const (
	// ShapeFlat sends {"inputs": prompt, "image": b64}.
	ShapeFlat Shape = iota
	// ShapeNested sends {"inputs": {"image": b64, "prompt": prompt}}.
	ShapeNested
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	default:
		return "flat"
	}
}

func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return ShapeFlat, nil
	case "nested":
		return ShapeNested, nil
	}
	return ShapeFlat, fmt.Errorf("unknown payload shape %q", s)
}

func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Shape) UnmarshalText(text []byte) error {
	v, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ShapeResolver reports the payload shape a model expects.
type ShapeResolver interface {
	ShapeFor(model string) Shape
}

type ShapeFunc func(model string) Shape

func (f ShapeFunc) ShapeFor(model string) Shape {
	return f(model)
}

// FlatShapes resolves every model to ShapeFlat.
var FlatShapes = ShapeFunc(func(string) Shape { return ShapeFlat })

// decodable lets the bytes win over a wrong or generic declared format.
func decodable(data []byte) bool {
	_, _, err := image.DecodeConfig(bytes.NewReader(data))
	return err == nil
}
