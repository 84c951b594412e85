package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shammaa/url-shortener/internal/cache"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/internal/keygen"
)

// insertRetries bounds re-generation when a concurrent creation claims the
// same random key between the existence check and the insert. The store's
// unique constraint is the arbiter; this loop just reacts to it.
const insertRetries = 3

// Listing page bounds. Out-of-range requests are clamped, not rejected.
const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// UTMConfig controls UTM parameter merging on destination URLs.
type UTMConfig struct {
	Enabled bool
	Hidden  bool
	Source  string
	Medium  string
}

// CacheConfig controls the cache-aside lookup path. Disabled means every
// lookup hits the store.
type CacheConfig struct {
	Enabled bool
	Prefix  string
	TTL     time.Duration
}

// CreateSpec describes a link to create. Nil flag pointers receive the
// configured per-tenant defaults; validation is the caller's concern.
type CreateSpec struct {
	Key            string
	DestinationURL string
	Title          string
	Description    string
	Password       string
	ExpiresAt      *time.Time
	ExpiresInDays  int
	ActivatedAt    *time.Time
	IsActive       *bool
	ClickLimit     *int64

	TrackVisits    *bool
	TrackIPAddress *bool
	TrackUserAgent *bool
	TrackReferer   *bool
	TrackGeo       *bool

	UTMParameters      map[string]string
	UTMHidden          *bool
	RedirectStatusCode int

	Owner    *entity.Ref
	Metadata map[string]any
	Tags     []string
	Group    string
}

// UpdateSpec describes a partial update; nil fields are left untouched.
type UpdateSpec struct {
	DestinationURL *string
	Title          *string
	Description    *string
	Password       *string
	IsActive       *bool
	ExpiresAt      *time.Time
	ClickLimit     *int64
	UTMParameters  map[string]string
	Metadata       map[string]any
	Tags           []string
	Group          *string
}

// LinkService orchestrates key generation, persistence, the cache-aside
// lookup path and destination URL composition.
type LinkService struct {
	store    LinkStore
	keys     *keygen.Generator
	hasher   Hasher
	qr       QRRenderer // nil disables QR generation
	qrDir    string
	cache    cache.Cache // nil degrades to always-miss
	cacheCfg CacheConfig
	utm      UTMConfig
	domain   string
	prefix   string
	defaults entity.LinkDefaults
	logger   *slog.Logger
	now      func() time.Time
}

func NewLinkService(
	store LinkStore,
	keys *keygen.Generator,
	hasher Hasher,
	qr QRRenderer,
	qrDir string,
	c cache.Cache,
	cacheCfg CacheConfig,
	utm UTMConfig,
	domain, prefix string,
	defaults entity.LinkDefaults,
	logger *slog.Logger,
) *LinkService {
	return &LinkService{
		store:    store,
		keys:     keys,
		hasher:   hasher,
		qr:       qr,
		qrDir:    qrDir,
		cache:    c,
		cacheCfg: cacheCfg,
		utm:      utm,
		domain:   domain,
		prefix:   prefix,
		defaults: defaults,
		logger:   logger,
		now:      time.Now,
	}
}

// Create builds and persists a new link: resolves the key, hashes any
// plaintext password, computes expiry from days if given, merges tracking
// defaults for unset flags and triggers best-effort QR generation.
func (s *LinkService) Create(ctx context.Context, spec CreateSpec) (*entity.Link, error) {
	const op = "service.LinkService.Create"

	now := s.now()

	link := &entity.Link{
		DestinationURL:     spec.DestinationURL,
		Title:              spec.Title,
		Description:        spec.Description,
		ExpiresAt:          spec.ExpiresAt,
		ClickLimit:         spec.ClickLimit,
		ClicksCount:        0,
		IsActive:           true,
		UTMParameters:      spec.UTMParameters,
		RedirectStatusCode: spec.RedirectStatusCode,
		Owner:              spec.Owner,
		Metadata:           spec.Metadata,
		Tags:               spec.Tags,
		Group:              spec.Group,
	}

	if spec.Password != "" {
		hash, err := s.hasher.Hash(spec.Password)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
		}

		link.PasswordHash = hash
		link.PasswordProtected = true
	}

	if spec.ExpiresAt == nil && spec.ExpiresInDays > 0 {
		expiresAt := now.AddDate(0, 0, spec.ExpiresInDays)
		link.ExpiresAt = &expiresAt
	}

	if spec.ActivatedAt != nil {
		link.ActivatedAt = spec.ActivatedAt
	} else {
		link.ActivatedAt = &now
	}

	if spec.IsActive != nil {
		link.IsActive = *spec.IsActive
	}

	link.TrackVisits = boolOr(spec.TrackVisits, s.defaults.TrackVisits)
	link.TrackIPAddress = boolOr(spec.TrackIPAddress, s.defaults.TrackIPAddress)
	link.TrackUserAgent = boolOr(spec.TrackUserAgent, s.defaults.TrackUserAgent)
	link.TrackReferer = boolOr(spec.TrackReferer, s.defaults.TrackReferer)
	link.TrackGeo = boolOr(spec.TrackGeo, s.defaults.TrackGeo)
	link.UTMHidden = boolOr(spec.UTMHidden, s.defaults.UTMHidden)

	if link.RedirectStatusCode == 0 {
		link.RedirectStatusCode = s.defaults.RedirectStatusCode
	}

	created, err := s.insertWithRetry(ctx, link, spec.Key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.generateQRCode(ctx, created)
	s.invalidate(ctx, created.Key)

	return created, nil
}

// CreateFor creates a link attached to an entity: the key is prefixed with
// the entity's seed and the destination falls back to the entity's own URL.
func (s *LinkService) CreateFor(ctx context.Context, linkable entity.Linkable, attached entity.Ref, spec CreateSpec) (*entity.Link, error) {
	const op = "service.LinkService.CreateFor"

	if spec.DestinationURL == "" {
		spec.DestinationURL = linkable.DefaultDestination()
	}

	if spec.Key == "" {
		key, err := s.keys.GeneratePrefixed(ctx, linkable.KeySeed())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		spec.Key = key
	}

	link, err := s.Create(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link.Attached = &attached

	updated, err := s.store.UpdateLink(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to attach link: %w", op, err)
	}

	return updated, nil
}

func (s *LinkService) insertWithRetry(ctx context.Context, link *entity.Link, customKey string) (*entity.Link, error) {
	for i := 0; i < insertRetries; i++ {
		key, err := s.keys.Generate(ctx, customKey)
		if err != nil {
			return nil, err
		}
		link.Key = key

		created, err := s.store.InsertLink(ctx, link)
		if err != nil {
			// A concurrent creation won the key between check and insert.
			// Random keys get a fresh draw; custom keys surface the conflict.
			if errors.Is(err, entity.ErrKeyExists) && customKey == "" {
				continue
			}

			return nil, err
		}

		return created, nil
	}

	return nil, entity.ErrKeyspaceExhausted
}

// FindByKey resolves a key to its link, cache-aside. Cache read failures are
// treated as misses; store failures propagate so a lookup never reports a
// false not-found.
func (s *LinkService) FindByKey(ctx context.Context, key string) (*entity.Link, error) {
	const op = "service.LinkService.FindByKey"

	if s.cacheEnabled() {
		if raw, err := s.cache.Get(ctx, s.cacheKey(key)); err == nil {
			var link entity.Link
			if err := json.Unmarshal(raw, &link); err == nil {
				return &link, nil
			}
		} else if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("cache read failed, falling through to store",
				slog.String("key", key), slog.Any("err", err))
		}
	}

	link, err := s.store.FindLinkByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to find link: %w", op, err)
	}

	if s.cacheEnabled() {
		if raw, err := json.Marshal(link); err == nil {
			if err := s.cache.Set(ctx, s.cacheKey(key), raw, s.cacheCfg.TTL); err != nil {
				s.logger.Warn("cache populate failed", slog.String("key", key), slog.Any("err", err))
			}
		}
	}

	return link, nil
}

// List returns one page of live links, newest first. page starts at 1 and
// perPage is clamped to the configured bounds.
func (s *LinkService) List(ctx context.Context, page, perPage int) ([]*entity.Link, error) {
	const op = "service.LinkService.List"

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	links, err := s.store.ListLinks(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list links: %w", op, err)
	}

	return links, nil
}

// Resolve is FindByKey plus the access gate. Inaccessible links come back as
// *entity.InaccessibleError carrying the reason.
func (s *LinkService) Resolve(ctx context.Context, key string) (*entity.Link, error) {
	const op = "service.LinkService.Resolve"

	link, err := s.FindByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if reason, ok := link.AccessState(s.now()); !ok {
		return nil, fmt.Errorf("%s: %w", op, &entity.InaccessibleError{Key: key, Reason: reason})
	}

	return link, nil
}

// ShortURL composes the public short URL for a link.
func (s *LinkService) ShortURL(link *entity.Link) string {
	domain := strings.TrimRight(s.domain, "/")
	prefix := strings.TrimLeft(s.prefix, "/")

	return domain + "/" + prefix + "/" + link.Key
}

// DestinationURL builds the redirect target: the link's destination with its
// default UTM parameters merged in (extra params win on collision) and, when
// hidden UTM tracking is on, fallback utm_source/utm_medium values. Query
// encoding is deterministic, so repeated calls yield identical URLs.
func (s *LinkService) DestinationURL(link *entity.Link, extra map[string]string) string {
	target := link.DestinationURL

	params := make(map[string]string)

	if s.utm.Enabled {
		for k, v := range link.UTMParameters {
			params[k] = v
		}
	}
	for k, v := range extra {
		params[k] = v
	}

	if s.utm.Enabled && s.utm.Hidden {
		if _, ok := params["utm_source"]; !ok {
			params["utm_source"] = s.utm.Source
		}
		if _, ok := params["utm_medium"]; !ok {
			params["utm_medium"] = s.utm.Medium
		}
	}

	if len(params) == 0 {
		return target
	}

	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}

	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}

	return target + separator + values.Encode()
}

// VerifyPassword returns true for unprotected links; protected links defer
// to the credential hasher.
func (s *LinkService) VerifyPassword(link *entity.Link, candidate string) bool {
	if !link.PasswordProtected || link.PasswordHash == "" {
		return true
	}

	return s.hasher.Verify(candidate, link.PasswordHash)
}

// Update applies a partial update to the link behind key and invalidates its
// cache entry.
func (s *LinkService) Update(ctx context.Context, key string, spec UpdateSpec) (*entity.Link, error) {
	const op = "service.LinkService.Update"

	link, err := s.store.FindLinkByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to find link: %w", op, err)
	}

	if spec.DestinationURL != nil {
		link.DestinationURL = *spec.DestinationURL
	}
	if spec.Title != nil {
		link.Title = *spec.Title
	}
	if spec.Description != nil {
		link.Description = *spec.Description
	}
	if spec.Password != nil {
		if *spec.Password == "" {
			link.PasswordHash = ""
			link.PasswordProtected = false
		} else {
			hash, err := s.hasher.Hash(*spec.Password)
			if err != nil {
				return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
			}
			link.PasswordHash = hash
			link.PasswordProtected = true
		}
	}
	if spec.IsActive != nil {
		link.IsActive = *spec.IsActive
	}
	if spec.ExpiresAt != nil {
		link.ExpiresAt = spec.ExpiresAt
	}
	if spec.ClickLimit != nil {
		link.ClickLimit = spec.ClickLimit
	}
	if spec.UTMParameters != nil {
		link.UTMParameters = spec.UTMParameters
	}
	if spec.Metadata != nil {
		link.Metadata = spec.Metadata
	}
	if spec.Tags != nil {
		link.Tags = spec.Tags
	}
	if spec.Group != nil {
		link.Group = *spec.Group
	}

	updated, err := s.store.UpdateLink(ctx, link)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to update link: %w", op, err)
	}

	s.invalidate(ctx, key)

	return updated, nil
}

// Delete tombstones the link. The key stays claimed forever.
func (s *LinkService) Delete(ctx context.Context, key string) error {
	const op = "service.LinkService.Delete"

	if err := s.store.SoftDeleteLink(ctx, key); err != nil {
		return fmt.Errorf("%s: failed to delete link: %w", op, err)
	}

	s.invalidate(ctx, key)

	return nil
}

// QRCode renders the link's short URL as an image for serving directly.
func (s *LinkService) QRCode(link *entity.Link) ([]byte, error) {
	const op = "service.LinkService.QRCode"

	if s.qr == nil {
		return nil, fmt.Errorf("%s: qr rendering is disabled", op)
	}

	png, err := s.qr.Render(s.ShortURL(link))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return png, nil
}

// generateQRCode renders and stores the QR image at creation time. Failures
// are logged with their cause and swallowed; link creation must succeed
// regardless.
func (s *LinkService) generateQRCode(ctx context.Context, link *entity.Link) {
	if s.qr == nil {
		return
	}

	png, err := s.qr.Render(s.ShortURL(link))
	if err != nil {
		s.logger.Warn("qr code generation failed", slog.String("key", link.Key), slog.Any("err", err))
		return
	}

	if err := os.MkdirAll(s.qrDir, 0o755); err != nil {
		s.logger.Warn("qr code dir creation failed", slog.String("dir", s.qrDir), slog.Any("err", err))
		return
	}

	path := filepath.Join(s.qrDir, link.Key+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		s.logger.Warn("qr code write failed", slog.String("path", path), slog.Any("err", err))
		return
	}

	link.QRCodePath = path
	if _, err := s.store.UpdateLink(ctx, link); err != nil {
		s.logger.Warn("qr code path update failed", slog.String("key", link.Key), slog.Any("err", err))
	}
}

func (s *LinkService) cacheEnabled() bool {
	return s.cache != nil && s.cacheCfg.Enabled
}

func (s *LinkService) cacheKey(key string) string {
	return fmt.Sprintf("%s:link:%s", s.cacheCfg.Prefix, key)
}

func (s *LinkService) invalidate(ctx context.Context, key string) {
	if !s.cacheEnabled() {
		return
	}

	if err := s.cache.Delete(ctx, s.cacheKey(key)); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("key", key), slog.Any("err", err))
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v != nil {
		return *v
	}

	return fallback
}
