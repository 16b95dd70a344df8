package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmorgan81/hfimage/internal/handle"
	"github.com/dmorgan81/hfimage/internal/inject"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/joho/godotenv"
	"github.com/samber/do"
)

func main() {
	// .env is optional for local runs
	_ = godotenv.Load()

	logger := log.New(os.Stderr, os.Getenv("LOG_LEVEL"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.NewContext(ctx, logger)

	injector := inject.Setup(ctx)
	web := do.MustInvoke[*handle.Web](injector)

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           web.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return log.NewContext(context.Background(), logger)
		},
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down server", "error", err)
		}
	}()

	logger.Info("listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}
	_ = injector.Shutdown()
}
