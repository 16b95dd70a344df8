package handle

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/dmorgan81/hfimage/internal/model"
	"github.com/dmorgan81/hfimage/internal/store"
	"github.com/google/uuid"
	"github.com/samber/do"
)

type ImageInput struct {
	Model       string `json:"model"`
	Prompt      string `json:"prompt,omitempty"`
	Image       string `json:"image,omitempty"`
	ImageFormat string `json:"image_format,omitempty"`
	Publish     bool   `json:"publish,omitempty"`
}

type ErrorOutput struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Status     int    `json:"status,omitempty"`
	Body       string `json:"body,omitempty"`
	Overloaded bool   `json:"overloaded,omitempty"`
}

type ImageOutput struct {
	Model       string       `json:"model"`
	Prompt      string       `json:"prompt,omitempty"`
	ContentType string       `json:"content_type,omitempty"`
	Image       string       `json:"image,omitempty"`
	Attempts    int          `json:"attempts,omitempty"`
	Notices     []string     `json:"notices,omitempty"`
	Key         string       `json:"key,omitempty"`
	Error       *ErrorOutput `json:"error,omitempty"`
}

func (i ImageInput) toRequest(token string) (inference.Request, error) {
	req := inference.Request{Model: i.Model, Prompt: i.Prompt, Token: token}
	if i.Image == "" {
		return req, nil
	}
	data, err := base64.StdEncoding.DecodeString(i.Image)
	if err != nil {
		return req, &inference.Error{Kind: inference.KindInvalidInput, Model: i.Model, Err: fmt.Errorf("image is not base64: %w", err)}
	}
	req.Reference = &inference.Reference{Data: data, Format: i.ImageFormat}
	return req, nil
}

// ImageHandler serves generation requests from Lambda invocations.
type ImageHandler struct {
	generator   Generator
	registry    *model.Registry
	uploader    store.Uploader
	invalidator store.Invalidator
	token       string
	now         func() time.Time
}

func NewImageHandler(i *do.Injector) (*ImageHandler, error) {
	return &ImageHandler{
		generator:   do.MustInvoke[*inference.Client](i),
		registry:    do.MustInvoke[*model.Registry](i),
		uploader:    do.MustInvoke[store.Uploader](i),
		invalidator: do.MustInvoke[store.Invalidator](i),
		token:       do.MustInvokeNamed[string](i, "hf_token"),
		now:         time.Now,
	}, nil
}

// Handle reports generation failures in the output; only publishing errors
// fail the invocation.
func (h *ImageHandler) Handle(ctx context.Context, input ImageInput) (ImageOutput, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("ImageHandler").With("model", input.Model, "publish", input.Publish)
	log.Info("handling lambda invocation")

	req, err := input.toRequest(h.token)
	var res *inference.Result
	if err == nil {
		req = h.registry.Prepare(req)
		res, err = h.generator.Generate(ctx, req)
	}

	output := ImageOutput{Model: req.Model, Prompt: req.Prompt}
	if err != nil {
		output.Error = toErrorOutput(err)
		var e *inference.Error
		if errors.As(err, &e) {
			output.Attempts = e.Attempts
			output.Notices = noticeMessages(e.Notices)
		}
		log.Warn("generation failed", "error", err)
		return output, nil
	}

	output.ContentType = res.ContentType()
	output.Image = res.Base64()
	output.Attempts = res.Attempts
	output.Notices = noticeMessages(res.Notices)

	if input.Publish {
		key, err := h.publish(ctx, req, res)
		if err != nil {
			return output, err
		}
		output.Key = key
	}
	return output, nil
}

func (h *ImageHandler) publish(ctx context.Context, req inference.Request, res *inference.Result) (string, error) {
	now := h.now().UTC()
	ext := extension(res.ContentType())
	key := fmt.Sprintf("%s-%s.%s", now.Format("20060102"), uuid.NewString(), ext)
	latest := "latest." + ext
	metadata := map[string]string{
		"model":   req.Model,
		"prompt":  req.Prompt,
		"created": now.Format(time.RFC3339),
	}

	for _, name := range []string{key, latest} {
		if err := h.uploader.Upload(ctx, store.UploadParams{
			Name:        name,
			Data:        res.Bytes(),
			ContentType: res.ContentType(),
			Metadata:    metadata,
		}); err != nil {
			return "", fmt.Errorf("publish %s: %w", name, err)
		}
	}
	if err := h.invalidator.Invalidate(ctx, []string{"/" + latest}); err != nil {
		return "", fmt.Errorf("invalidate %s: %w", latest, err)
	}
	return key, nil
}

func toErrorOutput(err error) *ErrorOutput {
	var e *inference.Error
	if !errors.As(err, &e) {
		return &ErrorOutput{Kind: inference.KindUnknown.String(), Message: err.Error()}
	}
	out := &ErrorOutput{Kind: e.Kind.String(), Message: e.UserMessage(), Overloaded: e.Overloaded}
	if inference.Terminal(err) {
		out.Status = e.Status
		out.Body = e.Body
	}
	return out
}
