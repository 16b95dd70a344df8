package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/samber/lo"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed models.json
var defaultModels []byte

//go:embed models.schema.json
var modelsSchema []byte

type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText, "":
		return ModeText, nil
	case ModeImage:
		return ModeImage, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

type Model struct {
	Name          string          `json:"name"`
	ID            string          `json:"id"`
	Shape         inference.Shape `json:"shape"`
	Modes         []Mode          `json:"modes"`
	DefaultPrompt string          `json:"default_prompt,omitempty"`
}

func (m Model) Supports(mode Mode) bool {
	return lo.Contains(m.Modes, mode)
}

// Registry is the immutable set of selectable models.
type Registry struct {
	models []Model
}

func Default() *Registry {
	r, err := Load(defaultModels)
	if err != nil {
		panic(fmt.Sprintf("embedded models.json: %v", err))
	}
	return r
}

func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

func Load(data []byte) (*Registry, error) {
	if err := validate(data); err != nil {
		return nil, fmt.Errorf("invalid model registry: %w", err)
	}
	var models []Model
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse model registry: %w", err)
	}
	if dups := lo.FindDuplicatesBy(models, func(m Model) string { return m.ID }); len(dups) > 0 {
		return nil, fmt.Errorf("duplicate model id %q", dups[0].ID)
	}
	return &Registry{models: models}, nil
}

func validate(data []byte) error {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("models.schema.json", bytes.NewReader(modelsSchema)); err != nil {
		return fmt.Errorf("schema resource: %w", err)
	}
	s, err := c.Compile("models.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return s.Validate(doc)
}

func (r *Registry) All() []Model {
	return append([]Model(nil), r.models...)
}

func (r *Registry) ForMode(mode Mode) []Model {
	return lo.Filter(r.models, func(m Model, _ int) bool { return m.Supports(mode) })
}

// Lookup accepts either the display name or the remote model id.
func (r *Registry) Lookup(key string) (Model, bool) {
	key = strings.TrimSpace(key)
	return lo.Find(r.models, func(m Model) bool {
		return m.ID == key || strings.EqualFold(m.Name, key)
	})
}

// ShapeFor resolves unknown models to the flat shape.
func (r *Registry) ShapeFor(id string) inference.Shape {
	m, ok := r.Lookup(id)
	return lo.Ternary(ok, m.Shape, inference.ShapeFlat)
}

// Prepare maps a display name onto its id and fills the model's default
// prompt for image-guided requests that came without one.
func (r *Registry) Prepare(req inference.Request) inference.Request {
	m, ok := r.Lookup(req.Model)
	if !ok {
		return req
	}
	req.Model = m.ID
	if req.Reference != nil && len(req.Reference.Data) > 0 && strings.TrimSpace(req.Prompt) == "" {
		req.Prompt = m.DefaultPrompt
	}
	return req
}
