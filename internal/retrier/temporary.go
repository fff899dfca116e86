package retrier

import "errors"

// Temporary is implemented by errors that may clear up on their own, such as
// a request timeout, an unreachable server or a 5xx response.
type Temporary interface {
	Temporary() bool
}

// IsTemporary reports whether err, or any error it wraps, is Temporary.
// Errors that do not say so, including auth and validation rejections, are
// permanent and never retried.
func IsTemporary(err error) bool {
	var temp Temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}
