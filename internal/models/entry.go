package models

import (
	"time"
)

// Entry is the persisted envelope of a cache value.
type Entry struct {
	Data      []byte `json:"value"`
	StoredAt  int64  `json:"storedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

// NewEntry creates an Entry stored at now and expiring after ttl.
func NewEntry(data []byte, now time.Time, ttl time.Duration) *Entry {
	return &Entry{
		Data:      data,
		StoredAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}
}

// IsExpired reports whether the entry is no longer valid at now.
// An entry read exactly at its expiry instant is expired.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= e.ExpiresAt
}

// Valid reports whether the envelope satisfies ExpiresAt > StoredAt.
func (e *Entry) Valid() bool {
	return e.ExpiresAt > e.StoredAt
}
