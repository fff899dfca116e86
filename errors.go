package punchclock

import (
	"errors"

	"goflare.io/punchclock/internal/api"
	"goflare.io/punchclock/internal/attendance"
	"goflare.io/punchclock/internal/kv"
	"goflare.io/punchclock/internal/queue"
)

var (
	ErrSessionExpired     = attendance.ErrSessionExpired
	ErrActionInFlight     = attendance.ErrActionInFlight
	ErrDayCompleted       = attendance.ErrDayCompleted
	ErrNetworkTimeout     = api.ErrNetworkTimeout
	ErrNetworkUnreachable = api.ErrNetworkUnreachable
	ErrAuthRejected       = api.ErrAuthRejected
	ErrServerError        = api.ErrServerError
	ErrValidation         = api.ErrValidation
	ErrQueueExhausted     = queue.ErrExhausted
	ErrStorage            = kv.ErrStorage
)

// UserMessage returns a message for err that can be shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionExpired):
		return "Your session has expired. Please log in again."
	case errors.Is(err, ErrActionInFlight):
		return "Your previous request is still being processed."
	case errors.Is(err, ErrDayCompleted):
		return "You have already checked in and out today."
	default:
		return api.UserMessage(err)
	}
}
