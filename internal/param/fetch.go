package param

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
}

// EnvFetcher reads parameters from the process environment.
type EnvFetcher struct{}

func (EnvFetcher) Fetch(_ context.Context, name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotSet, name)
	}
	return strings.TrimSpace(v), nil
}

var ErrNotSet = errors.New("parameter not set")
