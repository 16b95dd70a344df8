package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"sync"

	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/samber/do"
)

//go:embed assets/index.html
var indexTmpl string

type Option struct {
	Name     string
	ID       string
	Selected bool
}

type Result struct {
	EntryID     string
	Model       string
	Prompt      string
	DataURI     template.URL
	DownloadURL string
	Filename    string
	Base64      string
}

type Failure struct {
	Message string
	Status  int
	Body    string
}

type HistoryItem struct {
	Model   string
	Prompt  string
	Failed  bool
	Link    string
	Message string
}

type Params struct {
	Title        string
	Mode         string
	Models       []Option
	Prompt       string
	HasReference bool
	Notices      []string
	Result       *Result
	Failure      *Failure
	History      []HistoryItem
	FeedEnabled  bool
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("index").Parse(indexTmpl))
	})
	if params.Title == "" {
		params.Title = "Hugging Face Image Generation"
	}

	log := log.FromContextOrDiscard(ctx).WithGroup("templator")
	log.Debug("rendering page", "mode", params.Mode, "result", params.Result != nil, "failure", params.Failure != nil)

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
