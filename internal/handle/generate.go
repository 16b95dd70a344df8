package handle

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/dmorgan81/hfimage/internal/session"
	"github.com/samber/lo"
)

type Generator interface {
	Generate(context.Context, inference.Request) (*inference.Result, error)
	ProbeReady(ctx context.Context, model, token string) bool
}

func noticeMessages(notices []inference.Notice) []string {
	return lo.Map(notices, func(n inference.Notice, _ int) string { return n.Message() })
}

// toEntry folds the outcome of one Generate call into a history entry.
func toEntry(req inference.Request, mode string, res *inference.Result, err error, now time.Time) session.Entry {
	entry := session.Entry{
		CreatedAt: now,
		Model:     req.Model,
		Mode:      mode,
		Prompt:    req.Prompt,
	}
	if err == nil {
		entry.Image = res.Bytes()
		entry.ContentType = res.ContentType()
		entry.Base64 = res.Base64()
		entry.Notices = noticeMessages(res.Notices)
		return entry
	}

	var e *inference.Error
	if !errors.As(err, &e) {
		entry.Message = err.Error()
		return entry
	}
	entry.Message = e.UserMessage()
	entry.Notices = noticeMessages(e.Notices)
	if inference.Terminal(err) {
		entry.Status = e.Status
		entry.Body = e.Body
	}
	return entry
}

// formatOf derives the declared upload format from a filename or MIME type.
func formatOf(filename, contentType string) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" {
		return ext
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(contentType, "image/") {
		return ""
	}
	return strings.TrimPrefix(contentType, "image/")
}

func filename(contentType string) string {
	return "generated_image." + extension(contentType)
}

func extension(contentType string) string {
	ext := strings.TrimPrefix(contentType, "image/")
	return lo.Ternary(ext == "jpeg", "jpg", lo.Ternary(ext == "", "png", ext))
}
