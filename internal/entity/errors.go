package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyExists is returned when attempting to claim a key that is already
	// taken, including by a soft-deleted link. Key space is never reused.
	ErrKeyExists = errors.New("key exists")
	// ErrKeyspaceExhausted is returned when random key generation runs out of
	// attempts. It indicates the configured charset/length is saturated and
	// must be surfaced to the operator, not retried.
	ErrKeyspaceExhausted = errors.New("keyspace exhausted")
	// ErrLinkNotFound is returned when no live link matches the given key.
	ErrLinkNotFound = errors.New("link not found")
)

// InaccessibleReason explains why a link failed the access gate.
type InaccessibleReason string

const (
	ReasonInactive     InaccessibleReason = "inactive"
	ReasonExpired      InaccessibleReason = "expired"
	ReasonNotYetActive InaccessibleReason = "not_yet_active"
	ReasonLimitReached InaccessibleReason = "limit_reached"
)

// InaccessibleError is returned when a link exists but fails the access gate.
type InaccessibleError struct {
	Key    string
	Reason InaccessibleReason
}

func (e *InaccessibleError) Error() string {
	return fmt.Sprintf("link %q is not accessible: %s", e.Key, e.Reason)
}
