package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/hfimage/internal/handle"
	"github.com/dmorgan81/hfimage/internal/inject"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/samber/do"
)

func main() {
	ctx := log.NewContext(context.Background(), log.New(os.Stderr, os.Getenv("LOG_LEVEL")))
	injector := inject.Setup(ctx)
	handler := do.MustInvoke[*handle.ImageHandler](injector)
	lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = injector.Shutdown()
	}))
}
