package inference

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayloadTextOnly(t *testing.T) {
	for _, shape := range []Shape{ShapeFlat, ShapeNested} {
		got, err := BuildPayload(Request{Prompt: "an astronaut riding a horse"}, shape)
		require.NoError(t, err)
		assert.JSONEq(t, `{"inputs":"an astronaut riding a horse"}`, string(got), shape.String())
	}
}

func TestBuildPayloadShapes(t *testing.T) {
	req := Request{Prompt: "make it blue", Reference: &Reference{Data: jpegBytes(t), Format: "jpg"}}

	flatJSON, err := BuildPayload(req, ShapeFlat)
	require.NoError(t, err)
	nestedJSON, err := BuildPayload(req, ShapeNested)
	require.NoError(t, err)

	var flat map[string]any
	require.NoError(t, json.Unmarshal(flatJSON, &flat))
	assert.Len(t, flat, 2)
	flatPrompt, ok := flat["inputs"].(string)
	require.True(t, ok, "flat inputs must be a string")
	flatImage, ok := flat["image"].(string)
	require.True(t, ok, "flat image must be a string")

	var nested map[string]any
	require.NoError(t, json.Unmarshal(nestedJSON, &nested))
	assert.Len(t, nested, 1)
	inputs, ok := nested["inputs"].(map[string]any)
	require.True(t, ok, "nested inputs must be an object")
	assert.Equal(t, flatPrompt, inputs["prompt"])
	assert.Equal(t, flatImage, inputs["image"])
	assert.Equal(t, "make it blue", flatPrompt)

	raw, err := base64.StdEncoding.DecodeString(flatImage)
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "png", format, "reference images are always re-encoded as png")
	assert.Equal(t, 4, cfg.Width)
}

func TestBuildPayloadImageOnly(t *testing.T) {
	got, err := BuildPayload(Request{Reference: &Reference{Data: pngBytes(t)}}, ShapeNested)
	require.NoError(t, err)

	var nested nestedPayload
	require.NoError(t, json.Unmarshal(got, &nested))
	assert.Empty(t, nested.Inputs.Prompt)
	assert.NotEmpty(t, nested.Inputs.Image)
}

func TestBuildPayloadRejects(t *testing.T) {
	_, err := BuildPayload(Request{}, ShapeFlat)
	assert.Equal(t, KindInvalidInput, KindOf(err))

	_, err = BuildPayload(Request{Prompt: "x", Reference: &Reference{Data: []byte("not an image"), Format: "png"}}, ShapeFlat)
	assert.Equal(t, KindInvalidInput, KindOf(err))
	assert.Contains(t, err.Error(), "decode reference image")
}

func TestParseShape(t *testing.T) {
	s, err := ParseShape("Nested")
	require.NoError(t, err)
	assert.Equal(t, ShapeNested, s)

	s, err = ParseShape("")
	require.NoError(t, err)
	assert.Equal(t, ShapeFlat, s)

	_, err = ParseShape("deep")
	assert.Error(t, err)

	var fromJSON struct {
		Shape Shape `json:"shape"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"shape":"nested"}`), &fromJSON))
	assert.Equal(t, ShapeNested, fromJSON.Shape)
}

func TestSupportedFormat(t *testing.T) {
	assert.True(t, supportedFormat(""))
	assert.True(t, supportedFormat("JPG"))
	assert.True(t, supportedFormat("image/png"))
	assert.False(t, supportedFormat("tiff"))
}
