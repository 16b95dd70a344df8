package inference

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmorgan81/hfimage/internal/log"
)

const DefaultBaseURL = "https://api-inference.huggingface.co"

type Options struct {
	BaseURL    string
	Transport  Transport
	HTTPClient *http.Client
	Timeout    time.Duration
	Policy     Policy
	Shapes     ShapeResolver
	Sleep      Sleeper
	// OnRetry is called before every backoff wait.
	OnRetry RetryObserver
}

// Client talks to a hosted inference endpoint. It holds no per-request
// state and is safe for concurrent use.
type Client struct {
	baseURL   string
	transport Transport
	policy    Policy
	shapes    ShapeResolver
	sleep     Sleeper
	onRetry   RetryObserver
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	transport := opts.Transport
	if transport == nil {
		transport = NewHTTPTransport(opts.HTTPClient, opts.Timeout)
	}
	shapes := opts.Shapes
	if shapes == nil {
		shapes = FlatShapes
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return &Client{
		baseURL:   base,
		transport: transport,
		policy:    opts.Policy.withDefaults(),
		shapes:    shapes,
		sleep:     sleep,
		onRetry:   opts.OnRetry,
	}
}

func (c *Client) ModelURL(model string) string {
	return c.baseURL + "/models/" + strings.Trim(strings.TrimSpace(model), "/")
}

func (c *Client) Policy() Policy { return c.policy }

// Generate runs one generation to completion. A nil error always comes with
// a decoded image; every failure is an *Error.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	shape := c.shapes.ShapeFor(req.Model)
	log := log.FromContextOrDiscard(ctx).WithGroup("inference").With("model", req.Model, "shape", shape.String())

	body, err := BuildPayload(req, shape)
	if err != nil {
		return nil, err
	}

	url := c.ModelURL(req.Model)
	rs := newRetryState(c.policy)
	var notices []Notice
	for {
		log.Info("dispatching inference request", "attempt", rs.attempt+1, "reference", req.hasReference())
		resp, err := c.transport.Post(ctx, url, req.Token, body)
		if err != nil {
			kind := KindNetwork
			if ctx.Err() != nil {
				kind = KindCanceled
			}
			log.Error("inference transport failed", "error", err)
			return nil, &Error{Kind: kind, Model: req.Model, Attempts: rs.attempt + 1, Notices: notices, Err: err}
		}

		st := rs.transition(resp)
		switch st.next {
		case stateSucceeded:
			res, err := Decode(req.Model, resp.Body)
			if err != nil {
				var e *Error
				if errors.As(err, &e) {
					e.Attempts = rs.attempt
					e.Notices = notices
				}
				log.Warn("response is not an image", "bytes", len(resp.Body))
				return nil, err
			}
			res.Attempts = rs.attempt
			res.Notices = notices
			log.Info("received image", "format", res.Format(), "bytes", len(res.Bytes()), "attempts", rs.attempt)
			return res, nil

		case stateRetryScheduled:
			n := Notice{
				Model:       req.Model,
				Attempt:     rs.attempt,
				MaxAttempts: c.policy.MaxAttempts,
				Estimated:   st.estimated,
				Wait:        st.wait,
			}
			notices = append(notices, n)
			log.Info("model loading, retry scheduled", "attempt", n.Attempt, "estimated", n.Estimated, "wait", n.Wait)
			if c.onRetry != nil {
				c.onRetry(ctx, n)
			}
			if err := c.sleep(ctx, st.wait); err != nil {
				return nil, &Error{Kind: KindCanceled, Model: req.Model, Attempts: rs.attempt, Notices: notices, Err: err}
			}

		default:
			st.err.Model = req.Model
			st.err.Notices = notices
			log.Warn("inference failed", "kind", st.err.Kind.String(), "status", st.err.Status, "overloaded", st.err.Overloaded)
			return nil, st.err
		}
	}
}

// ProbeReady is advisory: it never gates Generate and treats any failure as
// not ready.
func (c *Client) ProbeReady(ctx context.Context, model, token string) bool {
	log := log.FromContextOrDiscard(ctx).WithGroup("inference").With("model", model)
	if strings.TrimSpace(model) == "" || strings.TrimSpace(token) == "" {
		return false
	}
	resp, err := c.transport.Get(ctx, c.ModelURL(model), token)
	if err != nil {
		log.Debug("readiness probe failed", "error", err)
		return false
	}
	log.Debug("readiness probe", "status", resp.Status)
	return resp.Status == http.StatusOK
}
