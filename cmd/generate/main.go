package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/dmorgan81/hfimage/internal/inject"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/dmorgan81/hfimage/internal/model"
	"github.com/dmorgan81/hfimage/internal/store"
	"github.com/joho/godotenv"
	"github.com/samber/do"
)

func main() {
	var (
		modelName = flag.String("model", "", "model name or repository id")
		prompt    = flag.String("prompt", "", "text prompt")
		imagePath = flag.String("image", "", "reference image for image-to-image")
		out       = flag.String("out", "generated_image.png", "output file")
		probe     = flag.Bool("probe", false, "only report whether the model is loaded")
		b64       = flag.Bool("b64", false, "also print the image as base64")
	)
	flag.Parse()
	_ = godotenv.Load()

	logger := log.New(os.Stderr, os.Getenv("LOG_LEVEL"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	if err := run(ctx, *modelName, *prompt, *imagePath, *out, *probe, *b64); err != nil {
		var e *inference.Error
		if errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, e.UserMessage())
			if inference.Terminal(err) {
				fmt.Fprintf(os.Stderr, "status: %d\n%s\n", e.Status, e.Body)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, modelName, prompt, imagePath, out string, probe, b64 bool) error {
	injector := inject.Setup(ctx)
	defer func() { _ = injector.Shutdown() }()

	registry, err := do.Invoke[*model.Registry](injector)
	if err != nil {
		return err
	}
	// notices go to the terminal as they happen
	do.OverrideValue[inference.RetryObserver](injector, func(_ context.Context, n inference.Notice) {
		fmt.Fprintln(os.Stderr, n.Message())
	})
	client, err := do.Invoke[*inference.Client](injector)
	if err != nil {
		return err
	}
	token := do.MustInvokeNamed[string](injector, "hf_token")

	if modelName == "" {
		modelName = registry.All()[0].ID
	}
	req := inference.Request{Model: modelName, Prompt: prompt, Token: token}
	if probe {
		req = registry.Prepare(req)
		fmt.Printf("%s ready: %t\n", req.Model, client.ProbeReady(ctx, req.Model, token))
		return nil
	}
	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return err
		}
		req.Reference = &inference.Reference{
			Data:   data,
			Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(imagePath)), "."),
		}
	}
	req = registry.Prepare(req)

	res, err := client.Generate(ctx, req)
	if err != nil {
		return err
	}
	uploader := &store.FileUploader{Dir: filepath.Dir(out)}
	if err := uploader.Upload(ctx, store.UploadParams{
		Name:        filepath.Base(out),
		Data:        res.Bytes(),
		ContentType: res.ContentType(),
	}); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%s, %d bytes, %d attempts)\n", out, res.ContentType(), len(res.Bytes()), res.Attempts)
	if b64 {
		fmt.Println(res.Base64())
	}
	return nil
}
