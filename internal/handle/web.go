package handle

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/dmorgan81/hfimage/internal/feed"
	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/dmorgan81/hfimage/internal/model"
	"github.com/dmorgan81/hfimage/internal/page"
	"github.com/dmorgan81/hfimage/internal/session"
	"github.com/gorilla/mux"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const (
	sessionCookie  = "hfimage_session"
	maxUploadBytes = 10 << 20
)

type FeedGenerator interface {
	Generate(context.Context) ([]byte, error)
}

// Form is one submission of the generation form.
type Form struct {
	Model  string
	Mode   string
	Prompt string
	Upload *inference.Reference
}

type Web struct {
	generator Generator
	registry  *model.Registry
	sessions  *session.Store
	templator *page.Templator
	feed      FeedGenerator
	token     string
	now       func() time.Time
}

func NewWeb(i *do.Injector) (*Web, error) {
	w := &Web{
		generator: do.MustInvoke[*inference.Client](i),
		registry:  do.MustInvoke[*model.Registry](i),
		sessions:  do.MustInvoke[*session.Store](i),
		templator: do.MustInvoke[*page.Templator](i),
		token:     do.MustInvokeNamed[string](i, "hf_token"),
		now:       time.Now,
	}
	if do.MustInvokeNamed[string](i, "bucket") != "" {
		w.feed = do.MustInvoke[*feed.Generator](i)
	}
	return w, nil
}

func (w *Web) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", w.index).Methods(http.MethodGet)
	r.HandleFunc("/generate", w.generate).Methods(http.MethodPost)
	r.HandleFunc("/download/{session}/{entry}", w.download).Methods(http.MethodGet)
	r.HandleFunc("/models/{model:.+}/ready", w.ready).Methods(http.MethodGet)
	r.HandleFunc("/feed.rss", w.rss).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return r
}

// Interact applies one form submission to state and returns the next state
// together with the page describing the outcome.
func (w *Web) Interact(ctx context.Context, state session.State, form Form) (session.State, page.Params) {
	log := log.FromContextOrDiscard(ctx).WithGroup("web").With("session", state.ID)

	mode, err := model.ParseMode(form.Mode)
	if err != nil {
		params := w.params(state, model.ModeText, form.Model, form.Prompt)
		params.Failure = &page.Failure{Message: err.Error()}
		return state, params
	}

	if form.Upload != nil {
		state = state.WithReference(form.Upload)
	}
	m := w.modelFor(mode, form.Model)
	req := inference.Request{Prompt: form.Prompt, Model: m, Token: w.token}
	if mode == model.ModeImage {
		if state.LastReference == nil {
			params := w.params(state, mode, m, form.Prompt)
			params.Failure = &page.Failure{Message: "Choose an image to transform."}
			return state, params
		}
		req.Reference = state.LastReference
	}
	req = w.registry.Prepare(req)
	log.Info("generating", "model", req.Model, "mode", mode)

	res, err := w.generator.Generate(ctx, req)
	entry := toEntry(req, string(mode), res, err, w.now())
	state = state.Record(entry)
	entry, _ = state.Latest()

	params := w.params(state, mode, req.Model, form.Prompt)
	params.Notices = entry.Notices
	if err != nil {
		log.Warn("generation failed", "kind", inference.KindOf(err).String(), "error", err)
		params.Failure = &page.Failure{Message: entry.Message, Status: entry.Status, Body: entry.Body}
		return state, params
	}
	params.Result = &page.Result{
		EntryID:     entry.ID,
		Model:       entry.Model,
		Prompt:      entry.Prompt,
		DataURI:     template.URL(res.DataURI()),
		DownloadURL: downloadURL(state.ID, entry.ID),
		Filename:    filename(entry.ContentType),
		Base64:      entry.Base64,
	}
	return state, params
}

// modelFor keeps the selection when it supports mode, otherwise it falls back
// to the first model that does.
func (w *Web) modelFor(mode model.Mode, selected string) string {
	if m, ok := w.registry.Lookup(selected); ok {
		if m.Supports(mode) {
			return m.ID
		}
	} else if selected != "" {
		return selected
	}
	if ms := w.registry.ForMode(mode); len(ms) > 0 {
		return ms[0].ID
	}
	return selected
}

func (w *Web) params(state session.State, mode model.Mode, selected, prompt string) page.Params {
	if selected == "" {
		selected = w.modelFor(mode, "")
	}
	return page.Params{
		Mode:         string(mode),
		Prompt:       prompt,
		HasReference: state.LastReference != nil,
		FeedEnabled:  w.feed != nil,
		Models: lo.Map(w.registry.All(), func(m model.Model, _ int) page.Option {
			return page.Option{Name: m.Name, ID: m.ID, Selected: m.ID == selected}
		}),
		History: lo.Map(state.History(), func(e session.Entry, _ int) page.HistoryItem {
			return page.HistoryItem{
				Model:   e.Model,
				Prompt:  e.Prompt,
				Failed:  e.Failed(),
				Link:    lo.Ternary(e.Failed(), "", downloadURL(state.ID, e.ID)),
				Message: e.Message,
			}
		}),
	}
}

func downloadURL(sessionID, entryID string) string {
	return "/download/" + sessionID + "/" + entryID
}

func (w *Web) session(r *http.Request) session.State {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return session.New()
	}
	return w.sessions.Load(c.Value)
}

func (w *Web) save(rw http.ResponseWriter, state session.State) {
	w.sessions.Save(state)
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookie,
		Value:    state.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (w *Web) render(rw http.ResponseWriter, r *http.Request, params page.Params) {
	html, err := w.templator.Template(r.Context(), params)
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("rendering page", "error", err)
		http.Error(rw, "failed to render page", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = rw.Write(html)
}

func (w *Web) index(rw http.ResponseWriter, r *http.Request) {
	state := w.session(r)
	w.save(rw, state)
	w.render(rw, r, w.params(state, model.ModeText, "", ""))
}

func (w *Web) generate(rw http.ResponseWriter, r *http.Request) {
	log := log.FromContextOrDiscard(r.Context()).WithGroup("web")
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(rw, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	form := Form{
		Model:  r.FormValue("model"),
		Mode:   r.FormValue("mode"),
		Prompt: r.FormValue("prompt"),
	}
	file, header, err := r.FormFile("image")
	switch {
	case err == nil:
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			http.Error(rw, "failed to read upload", http.StatusBadRequest)
			return
		}
		if len(data) > 0 {
			form.Upload = &inference.Reference{Data: data, Format: formatOf(header.Filename, header.Header.Get("Content-Type"))}
		}
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		log.Warn("reading upload", "error", err)
	}

	state, params := w.Interact(r.Context(), w.session(r), form)
	w.save(rw, state)
	w.render(rw, r, params)
}

func (w *Web) download(rw http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value != vars["session"] {
		http.Error(rw, "Image not found", http.StatusNotFound)
		return
	}
	state := w.sessions.Load(c.Value)
	entry, ok := state.Entry(vars["entry"])
	if !ok || entry.Failed() {
		http.Error(rw, "Image not found", http.StatusNotFound)
		return
	}

	rw.Header().Set("Content-Type", entry.ContentType)
	rw.Header().Set("Content-Disposition", `attachment; filename="`+filename(entry.ContentType)+`"`)
	_, _ = rw.Write(entry.Image)
}

func (w *Web) ready(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["model"]
	if m, ok := w.registry.Lookup(id); ok {
		id = m.ID
	}
	ready := w.generator.ProbeReady(r.Context(), id, w.token)

	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(struct {
		Model string `json:"model"`
		Ready bool   `json:"ready"`
	}{id, ready})
}

func (w *Web) rss(rw http.ResponseWriter, r *http.Request) {
	if w.feed == nil {
		http.NotFound(rw, r)
		return
	}
	rss, err := w.feed.Generate(r.Context())
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("generating feed", "error", err)
		http.Error(rw, "failed to generate feed", http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/rss+xml")
	_, _ = rw.Write(rss)
}
