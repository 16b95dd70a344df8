package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 5
	DefaultCeiling     = 30 * time.Second
)

const overloadedMarker = "cuda out of memory"

// Policy bounds the wait-for-model loop. Only 503 responses carrying an
// estimated_time are retried.
type Policy struct {
	MaxAttempts int
	Ceiling     time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Ceiling <= 0 {
		p.Ceiling = DefaultCeiling
	}
	return p
}

func (p Policy) clamp(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	d := time.Duration(seconds * float64(time.Second))
	if d > p.Ceiling || d < 0 {
		return p.Ceiling
	}
	return d
}

// Sleeper suspends the caller for d. It must return early with ctx.Err()
// when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryObserver receives each Notice as soon as the wait is scheduled.
type RetryObserver func(context.Context, Notice)

// Notice describes a scheduled retry while the remote model loads.
type Notice struct {
	Model       string
	Attempt     int
	MaxAttempts int
	Estimated   float64
	Wait        time.Duration
}

func (n Notice) Message() string {
	return fmt.Sprintf("Model %s is still loading (estimated %.0fs), retrying in %s (attempt %d/%d).",
		n.Model, n.Estimated, n.Wait.Round(time.Second), n.Attempt, n.MaxAttempts)
}

type state int

const (
	statePending state = iota
	stateSucceeded
	stateRetryScheduled
	stateFailed
)

type step struct {
	next      state
	wait      time.Duration
	estimated float64
	err       *Error
}

// retryState lives for a single Generate call.
type retryState struct {
	policy  Policy
	attempt int
	state   state
}

func newRetryState(policy Policy) *retryState {
	return &retryState{policy: policy.withDefaults(), state: statePending}
}

// transition consumes one transport response and decides what happens next.
func (s *retryState) transition(resp *Response) step {
	s.attempt++

	var st step
	switch resp.Status {
	case http.StatusOK:
		st = step{next: stateSucceeded}
	case http.StatusServiceUnavailable:
		est, ok := estimatedTime(resp.Body)
		switch {
		case !ok:
			st = s.fail(KindServiceUnavailable, resp)
		case s.attempt >= s.policy.MaxAttempts:
			st = s.fail(KindExhaustedRetries, resp)
		default:
			st = step{next: stateRetryScheduled, wait: s.policy.clamp(est), estimated: est}
		}
	default:
		st = s.fail(KindRemote, resp)
		st.err.Overloaded = strings.Contains(strings.ToLower(string(resp.Body)), overloadedMarker)
	}
	s.state = st.next
	return st
}

func (s *retryState) fail(kind Kind, resp *Response) step {
	return step{next: stateFailed, err: &Error{
		Kind:     kind,
		Status:   resp.Status,
		Body:     string(resp.Body),
		Attempts: s.attempt,
	}}
}

type loadingBody struct {
	Error         string   `json:"error"`
	EstimatedTime *float64 `json:"estimated_time"`
}

func estimatedTime(body []byte) (float64, bool) {
	var b loadingBody
	if err := json.Unmarshal(body, &b); err != nil || b.EstimatedTime == nil {
		return 0, false
	}
	return *b.EstimatedTime, true
}
