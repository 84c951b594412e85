package entity

// Linkable is implemented by any entity type that wants a short link
// generated for it. The core never depends on concrete entity types; the
// seed becomes the key prefix and the destination is the entity's own URL.
type Linkable interface {
	// KeySeed returns the prefix for the generated key, e.g. "post" yields
	// keys like "post-x7Kq".
	KeySeed() string

	// DefaultDestination returns the URL the short link should point to when
	// the caller does not supply one.
	DefaultDestination() string
}

// LinkDefaults carries the per-tenant creation defaults applied to any flag
// the caller leaves unset. It is passed into the service explicitly rather
// than read from global state.
type LinkDefaults struct {
	TrackVisits        bool
	TrackIPAddress     bool
	TrackUserAgent     bool
	TrackReferer       bool
	TrackGeo           bool
	UTMHidden          bool
	RedirectStatusCode int
}
