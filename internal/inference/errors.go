package inference

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindConfiguration
	KindNetwork
	KindServiceUnavailable
	KindExhaustedRetries
	KindRemote
	KindMalformedImage
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindConfiguration:
		return "configuration"
	case KindNetwork:
		return "network"
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindExhaustedRetries:
		return "exhausted_retries"
	case KindRemote:
		return "remote"
	case KindMalformedImage:
		return "malformed_image"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the terminal outcome of a failed generation. Status and Body are
// populated whenever the endpoint answered.
type Error struct {
	Kind       Kind
	Model      string
	Status     int
	Body       string
	Overloaded bool
	Attempts   int
	Notices    []Notice
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("inference")
	if e.Model != "" {
		b.WriteString(" " + e.Model)
	}
	b.WriteString(": " + e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (http %d)", e.Status)
	}
	if e.Overloaded {
		b.WriteString(" overloaded")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage renders the failure for display next to the raw diagnostics.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindInvalidInput:
		return fmt.Sprintf("Invalid request: %v", e.Err)
	case KindConfiguration:
		return "Please add your inference API token to continue."
	case KindNetwork:
		return fmt.Sprintf("Could not reach the inference service: %v", e.Err)
	case KindServiceUnavailable:
		return "The model is unavailable and gave no estimate for when it will be ready."
	case KindExhaustedRetries:
		return fmt.Sprintf("The model was still loading after %d attempts. Try again in a few minutes.", e.Attempts)
	case KindRemote:
		if e.Overloaded {
			return fmt.Sprintf("The inference service ran out of GPU memory (http %d). Try a smaller request or try again later.", e.Status)
		}
		return fmt.Sprintf("The inference service returned an error (http %d %s).", e.Status, http.StatusText(e.Status))
	case KindMalformedImage:
		return "The inference service answered, but the response is not an image."
	case KindCanceled:
		return "The request was canceled."
	default:
		return "Error generating image."
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsOverloaded(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Overloaded
}

// Terminal reports whether err ended a generation with a response from the
// endpoint whose raw diagnostics are worth showing.
func Terminal(err error) bool {
	switch KindOf(err) {
	case KindServiceUnavailable, KindExhaustedRetries, KindRemote, KindMalformedImage:
		return true
	}
	return false
}
