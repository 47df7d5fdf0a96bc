package timeshift

import (
	"fmt"
	"net/http"
)

// Kind classifies why a catch-up request was refused.
type Kind int

const (
	KindUnauthorized Kind = iota + 1
	KindNotFound
	KindUnsupported
	KindBadRequest
	KindUpstream
	KindUpstreamTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindBadRequest:
		return "bad_request"
	case KindUpstream:
		return "upstream_error"
	case KindUpstreamTimeout:
		return "upstream_timeout"
	}
	return "unknown"
}

// Status is the HTTP status sent to the client. Provider failures map to 400,
// which is what XC clients expect from a dead catch-up link.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// Error is a refused catch-up request. Msg is safe to send to the client.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Status is e.Kind.Status().
func (e *Error) Status() int { return e.Kind.Status() }

func newError(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }
