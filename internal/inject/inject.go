package inject

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/dmorgan81/hfimage/internal/feed"
	"github.com/dmorgan81/hfimage/internal/handle"
	"github.com/dmorgan81/hfimage/internal/inference"
	"github.com/dmorgan81/hfimage/internal/log"
	"github.com/dmorgan81/hfimage/internal/model"
	"github.com/dmorgan81/hfimage/internal/page"
	"github.com/dmorgan81/hfimage/internal/param"
	"github.com/dmorgan81/hfimage/internal/session"
	"github.com/dmorgan81/hfimage/internal/store"
	"github.com/samber/do"
)

func Setup(ctx context.Context) *do.Injector {
	log := log.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
	do.Provide[aws.Config](injector, func(i *do.Injector) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})
	do.Provide[*ssm.Client](injector, func(i *do.Injector) (*ssm.Client, error) {
		return ssm.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*s3.Client](injector, func(i *do.Injector) (*s3.Client, error) {
		return s3.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*cloudfront.Client](injector, func(i *do.Injector) (*cloudfront.Client, error) {
		return cloudfront.NewFromConfig(do.MustInvoke[aws.Config](i)), nil
	})
	do.Provide[*http.Client](injector, func(i *do.Injector) (*http.Client, error) {
		timeout, err := duration("HTTP_TIMEOUT", 120*time.Second)
		return &http.Client{Timeout: timeout}, err
	})

	do.ProvideNamedValue[string](injector, "bucket", os.Getenv("BUCKET"))
	do.ProvideNamedValue[string](injector, "distribution", os.Getenv("DISTRIBUTION"))
	do.ProvideNamedValue[string](injector, "public_url", os.Getenv("PUBLIC_URL"))
	do.ProvideNamedValue[string](injector, "base_url", os.Getenv("HF_BASE_URL"))

	do.Provide[param.Fetcher](injector, func(i *do.Injector) (param.Fetcher, error) {
		if os.Getenv("HF_TOKEN_PARAM") != "" {
			return param.NewParameterStoreFetcher(i)
		}
		return param.EnvFetcher{}, nil
	})
	// A missing token is not fatal here; generation reports it per request.
	do.ProvideNamed[string](injector, "hf_token", func(i *do.Injector) (string, error) {
		name := os.Getenv("HF_TOKEN_PARAM")
		if name == "" {
			name = "HF_TOKEN"
		}
		token, err := do.MustInvoke[param.Fetcher](i).Fetch(ctx, name)
		if errors.Is(err, param.ErrNotSet) {
			log.Warn("no inference token configured", "source", name)
			return "", nil
		}
		return token, err
	})

	do.Provide[*model.Registry](injector, func(i *do.Injector) (*model.Registry, error) {
		if path := os.Getenv("MODELS_FILE"); path != "" {
			return model.LoadFile(path)
		}
		return model.Default(), nil
	})
	do.ProvideValue[inference.RetryObserver](injector, LogNotice)
	do.Provide[*inference.Client](injector, NewClient)
	do.Provide[*session.Store](injector, func(i *do.Injector) (*session.Store, error) {
		ttl, err := duration("SESSION_TTL", 24*time.Hour)
		if err != nil {
			return nil, err
		}
		s := session.NewStore(ttl)
		s.Janitor(janitorInterval(ttl))
		return s, nil
	})
	do.Provide[*page.Templator](injector, page.NewTemplator)

	do.Provide[store.Uploader](injector, func(i *do.Injector) (store.Uploader, error) {
		if do.MustInvokeNamed[string](i, "bucket") != "" {
			return store.NewS3Uploader(i)
		}
		dir := os.Getenv("ARTIFACT_DIR")
		if dir == "" {
			dir = os.TempDir()
		}
		return &store.FileUploader{Dir: dir}, nil
	})
	do.Provide[store.Invalidator](injector, store.NewCloudFrontInvalidator)
	do.Provide[*feed.Generator](injector, feed.NewS3Generator)

	do.Provide[*handle.ImageHandler](injector, handle.NewImageHandler)
	do.Provide[*handle.Web](injector, handle.NewWeb)

	return injector
}

func NewClient(i *do.Injector) (*inference.Client, error) {
	attempts, err := integer("MAX_ATTEMPTS", inference.DefaultMaxAttempts)
	if err != nil {
		return nil, err
	}
	ceiling, err := duration("RETRY_CEILING", inference.DefaultCeiling)
	if err != nil {
		return nil, err
	}
	return inference.NewClient(inference.Options{
		BaseURL:    do.MustInvokeNamed[string](i, "base_url"),
		HTTPClient: do.MustInvoke[*http.Client](i),
		Policy:     inference.Policy{MaxAttempts: attempts, Ceiling: ceiling},
		Shapes:     do.MustInvoke[*model.Registry](i),
		OnRetry:    do.MustInvoke[inference.RetryObserver](i),
	}), nil
}

func LogNotice(ctx context.Context, n inference.Notice) {
	log.FromContextOrDiscard(ctx).Info(n.Message())
}

func janitorInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}

func duration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return d, nil
}

func integer(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: must be positive", key)
	}
	return n, nil
}
