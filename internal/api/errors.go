package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNetworkTimeout     = errors.New("network timeout")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrServerError        = errors.New("server error")
	ErrValidation         = errors.New("request rejected")
)

// Kind classifies a failed call.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindUnreachable
	KindAuth
	KindServer
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindAuth:
		return "auth"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrNetworkTimeout
	case KindUnreachable:
		return ErrNetworkUnreachable
	case KindAuth:
		return ErrAuthRejected
	case KindServer:
		return ErrServerError
	case KindValidation:
		return ErrValidation
	default:
		return nil
	}
}

// fallback messages shown when the response carries none
var fallbackMessages = map[Kind]string{
	KindTimeout:     "The request timed out. Please check your connection and try again.",
	KindUnreachable: "Unable to reach the server. Please check your connection.",
	KindAuth:        "Your session has expired. Please log in again.",
	KindServer:      "Something went wrong on our side. Please try again later.",
	KindValidation:  "The request could not be processed.",
}

// Error is a classified API failure. Message is safe to show to a user.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("api error")
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Temporary reports whether retrying may succeed.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindTimeout, KindUnreachable, KindServer:
		return true
	}
	return false
}

// UserMessage returns a human-readable message for err.
func UserMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallbackMessages[apiErr.Kind]
	}
	for kind := KindTimeout; kind <= KindValidation; kind++ {
		if errors.Is(err, kind.sentinel()) {
			return fallbackMessages[kind]
		}
	}
	return fallbackMessages[KindServer]
}

func newError(kind Kind, status int, message string, err error) *Error {
	if message == "" {
		message = fallbackMessages[kind]
	}
	return &Error{Kind: kind, Status: status, Message: message, Err: err}
}

// statusError classifies a non-2xx response.
func statusError(status int, body []byte) *Error {
	var kind Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status >= 500:
		kind = KindServer
	default:
		kind = KindValidation
	}
	return newError(kind, status, bodyMessage(body), nil)
}

// bodyMessage extracts "message" or "error" from a JSON error body.
func bodyMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
