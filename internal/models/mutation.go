package models

import "encoding/json"

// Verb is the HTTP method of a queued mutation.
type Verb string

const (
	VerbGet    Verb = "GET"
	VerbPost   Verb = "POST"
	VerbPut    Verb = "PUT"
	VerbDelete Verb = "DELETE"
)

// Valid reports whether v is one of the supported verbs.
func (v Verb) Valid() bool {
	switch v {
	case VerbGet, VerbPost, VerbPut, VerbDelete:
		return true
	}
	return false
}

// Mutation is a write that could not reach the server yet.
type Mutation struct {
	ID         string          `json:"id"`
	Endpoint   string          `json:"endpoint"`
	Verb       Verb            `json:"method"`
	Payload    json.RawMessage `json:"data,omitempty"`
	EnqueuedAt int64           `json:"timestamp"`
	Attempts   int             `json:"retryCount"`
}

// IdentityRecord is the cached fast-path identity.
type IdentityRecord struct {
	Principal User   `json:"user"`
	Token     string `json:"token"`
	CachedAt  int64  `json:"timestamp"`
	Trusted   bool   `json:"isValid"`
}
