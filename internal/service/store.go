// Package service holds the business logic of the shortener: link creation
// and resolution, visit tracking and the daily analytics rollup. Storage,
// caching, hashing, QR rendering and geolocation are consumed through the
// narrow interfaces defined here.
package service

import (
	"context"
	"time"

	"github.com/shammaa/url-shortener/internal/entity"
)

// LinkStore is the persistence surface for link records.
type LinkStore interface {
	// InsertLink persists a new link. The store's unique constraint on the
	// key is the final arbiter of uniqueness; a conflict surfaces as
	// entity.ErrKeyExists.
	InsertLink(ctx context.Context, link *entity.Link) (*entity.Link, error)

	// FindLinkByKey returns the live (non-tombstoned) link for the key, or
	// entity.ErrLinkNotFound.
	FindLinkByKey(ctx context.Context, key string) (*entity.Link, error)

	// ListLinks returns a page of live links, newest first. Tombstoned rows
	// are excluded.
	ListLinks(ctx context.Context, limit, offset int) ([]*entity.Link, error)

	// UpdateLink persists the mutable fields of an existing link.
	UpdateLink(ctx context.Context, link *entity.Link) (*entity.Link, error)

	// SoftDeleteLink tombstones the link. The key remains claimed.
	SoftDeleteLink(ctx context.Context, key string) error

	// IncrementClicks bumps the click counter by one as a single atomic
	// statement, sets first_clicked_at if unset and always refreshes
	// last_clicked_at.
	IncrementClicks(ctx context.Context, id int64, now time.Time) error
}

// VisitStore persists immutable visit records.
type VisitStore interface {
	InsertVisit(ctx context.Context, visit *entity.Visit) error
}

// AnalyticsStore reads raw visits and writes daily rollups.
type AnalyticsStore interface {
	VisitsOnDay(ctx context.Context, linkID int64, day time.Time) ([]entity.Visit, error)
	LinkIDsVisitedOn(ctx context.Context, day time.Time) ([]int64, error)

	// UpsertDailyAnalytics inserts or fully replaces the rollup row for the
	// (link, date) pair.
	UpsertDailyAnalytics(ctx context.Context, rollup *entity.DailyAnalytics) error

	AnalyticsRange(ctx context.Context, linkID int64, from, to time.Time) ([]entity.DailyAnalytics, error)
}

// Hasher is the opaque credential capability for password-protected links.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// QRRenderer renders an image for a short URL. Failures are non-fatal in the
// creation path.
type QRRenderer interface {
	Render(url string) ([]byte, error)
}
