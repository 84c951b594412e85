// Package entity defines the domain records of the URL shortener: the Link,
// its recorded Visits and the per-day analytics rollups, along with the
// errors shared between the service and storage layers.
package entity

import "time"

// Ref is a plain tagged reference to an entity outside this package.
// Resolution of Kind to a concrete type is the caller's concern.
type Ref struct {
	Kind string
	ID   int64
}

// Link represents a shortened URL and everything attached to it.
type Link struct {
	ID             int64
	Key            string // immutable once created, unique across live and tombstoned rows
	DestinationURL string
	Title          string
	Description    string

	PasswordHash      string
	PasswordProtected bool

	ActivatedAt *time.Time
	ExpiresAt   *time.Time
	IsActive    bool
	ClickLimit  *int64
	ClicksCount int64

	TrackVisits    bool
	TrackIPAddress bool
	TrackUserAgent bool
	TrackReferer   bool
	TrackGeo       bool

	UTMParameters      map[string]string
	UTMHidden          bool
	RedirectStatusCode int

	CustomDomain string
	QRCodePath   string

	Owner    *Ref // polymorphic owner, if any
	Attached *Ref // the entity the link was generated for, if any

	Metadata map[string]any
	Tags     []string
	Group    string

	FirstClickedAt *time.Time
	LastClickedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Expired reports whether the link's expiry instant has passed. A link with
// expires_at exactly equal to now is not yet expired.
func (l *Link) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Accessible reports whether the link can currently be resolved. The checks
// run in a fixed order: owner flag, expiry, activation window, click limit.
// A link that has reached its click limit exactly is no longer accessible.
func (l *Link) Accessible(now time.Time) bool {
	_, ok := l.AccessState(now)
	return ok
}

// AccessState returns the reason a link is not accessible, or ok=true.
// Callers use the reason to distinguish expired from not-yet-active from
// limit-reached when reporting back to the visitor.
func (l *Link) AccessState(now time.Time) (InaccessibleReason, bool) {
	if !l.IsActive {
		return ReasonInactive, false
	}

	if l.Expired(now) {
		return ReasonExpired, false
	}

	if l.ActivatedAt != nil && now.Before(*l.ActivatedAt) {
		return ReasonNotYetActive, false
	}

	if l.ClickLimit != nil && l.ClicksCount >= *l.ClickLimit {
		return ReasonLimitReached, false
	}

	return "", true
}
