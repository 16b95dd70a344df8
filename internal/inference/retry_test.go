package inference

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		resp     *Response
		next     state
		wait     time.Duration
		kind     Kind
		overload bool
	}{
		{name: "ok", resp: &Response{Status: 200}, next: stateSucceeded},
		{name: "loading", resp: loading("2"), next: stateRetryScheduled, wait: 2 * time.Second},
		{name: "loading fractional", resp: loading("0.5"), next: stateRetryScheduled, wait: 500 * time.Millisecond},
		{name: "loading negative", resp: loading("-3"), next: stateRetryScheduled, wait: 0},
		{name: "loading over ceiling", resp: loading("900"), next: stateRetryScheduled, wait: 10 * time.Second},
		{name: "unavailable string estimate", resp: &Response{Status: 503, Body: []byte(`{"estimated_time":"2"}`)}, next: stateFailed, kind: KindServiceUnavailable},
		{name: "unavailable html", resp: &Response{Status: 503, Body: []byte(`<html>bad gateway</html>`)}, next: stateFailed, kind: KindServiceUnavailable},
		{name: "not found", resp: &Response{Status: 404, Body: []byte(`{"error":"Model not found"}`)}, next: stateFailed, kind: KindRemote},
		{name: "oom", resp: &Response{Status: 500, Body: []byte(`RuntimeError: CUDA out of memory`)}, next: stateFailed, kind: KindRemote, overload: true},
		{name: "rate limited", resp: &Response{Status: 429}, next: stateFailed, kind: KindRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newRetryState(Policy{MaxAttempts: 3, Ceiling: 10 * time.Second})
			st := rs.transition(tt.resp)

			assert.Equal(t, tt.next, st.next)
			assert.Equal(t, 1, rs.attempt)
			if tt.next == stateFailed {
				require.NotNil(t, st.err)
				assert.Equal(t, tt.kind, st.err.Kind)
				assert.Equal(t, tt.overload, st.err.Overloaded)
				assert.Equal(t, tt.resp.Status, st.err.Status)
				return
			}
			assert.Nil(t, st.err)
			assert.Equal(t, tt.wait, st.wait)
		})
	}
}

func TestRetryStateExhausts(t *testing.T) {
	rs := newRetryState(Policy{MaxAttempts: 3, Ceiling: time.Second})

	assert.Equal(t, stateRetryScheduled, rs.transition(loading("1")).next)
	assert.Equal(t, stateRetryScheduled, rs.transition(loading("1")).next)
	st := rs.transition(loading("1"))
	assert.Equal(t, stateFailed, st.next)
	assert.Equal(t, KindExhaustedRetries, st.err.Kind)
	assert.Equal(t, 3, st.err.Attempts)
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultMaxAttempts, p.MaxAttempts)
	assert.Equal(t, DefaultCeiling, p.Ceiling)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
