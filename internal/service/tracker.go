package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mileusna/useragent"
	"github.com/shammaa/url-shortener/internal/cache"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/internal/geo"
)

// RequestInfo is the slice of an incoming redirect request the tracker needs.
// The HTTP layer extracts it; the tracker never sees *http.Request.
type RequestInfo struct {
	IP        string
	UserAgent string
	Referer   string
	Query     url.Values
	Language  string
	Timezone  string
	SessionID string
}

// VisitTracker builds and persists visit records, flag by flag, and keeps
// the link's click counters in sync.
type VisitTracker struct {
	links     LinkStore
	visits    VisitStore
	geo       geo.Lookup // nil disables geo even when the link asks for it
	cache     cache.Cache
	cacheCfg  CacheConfig
	utmHidden bool
	trackGeo  bool
	logger    *slog.Logger
	now       func() time.Time
}

func NewVisitTracker(
	links LinkStore,
	visits VisitStore,
	geoLookup geo.Lookup,
	c cache.Cache,
	cacheCfg CacheConfig,
	utmHidden, trackGeo bool,
	logger *slog.Logger,
) *VisitTracker {
	return &VisitTracker{
		links:     links,
		visits:    visits,
		geo:       geoLookup,
		cache:     c,
		cacheCfg:  cacheCfg,
		utmHidden: utmHidden,
		trackGeo:  trackGeo,
		logger:    logger,
		now:       time.Now,
	}
}

// Track records one visit. It is a no-op when the link doesn't track visits.
// Each column group is gated by its own flag; geo and UTM capture addition-
// ally require the system-wide toggles. After the visit is persisted the
// click counter is bumped atomically and the cache entry is invalidated,
// since the link's accessibility state may just have changed.
func (t *VisitTracker) Track(ctx context.Context, link *entity.Link, req RequestInfo) error {
	const op = "service.VisitTracker.Track"

	if !link.TrackVisits {
		return nil
	}

	now := t.now()

	visit := &entity.Visit{
		ShortLinkID: link.ID,
		Language:    req.Language,
		Timezone:    req.Timezone,
		SessionID:   req.SessionID,
		VisitedAt:   now,
	}

	if link.TrackIPAddress {
		visit.IPAddress = req.IP
	}

	if link.TrackUserAgent && req.UserAgent != "" {
		ua := useragent.Parse(req.UserAgent)

		visit.UserAgent = req.UserAgent
		visit.DeviceType = deviceType(ua)
		visit.DeviceName = ua.Device
		visit.Platform = ua.OS
		visit.PlatformVersion = ua.OSVersion
		visit.Browser = ua.Name
		visit.BrowserVersion = ua.Version
		visit.IsBot = ua.Bot
		visit.IsMobile = ua.Mobile
		visit.IsTablet = ua.Tablet
	}

	if link.TrackReferer && req.Referer != "" {
		visit.RefererURL = req.Referer
		if parsed, err := url.Parse(req.Referer); err == nil {
			visit.RefererDomain = parsed.Hostname()
		}
	}

	// Hidden-UTM capture requires both the link flag and the system flag.
	if link.UTMHidden && t.utmHidden {
		visit.UTMSource = req.Query.Get("utm_source")
		visit.UTMMedium = req.Query.Get("utm_medium")
		visit.UTMCampaign = req.Query.Get("utm_campaign")
		visit.UTMTerm = req.Query.Get("utm_term")
		visit.UTMContent = req.Query.Get("utm_content")
	}

	if link.TrackGeo && t.trackGeo && t.geo != nil {
		if loc, err := t.geo.Lookup(ctx, req.IP); err != nil {
			t.logger.Warn("geo lookup failed", slog.String("key", link.Key), slog.Any("err", err))
		} else if loc != nil {
			visit.Country = loc.Country
			visit.CountryCode = loc.CountryCode
			visit.City = loc.City
			visit.Region = loc.Region
			visit.Latitude = loc.Latitude
			visit.Longitude = loc.Longitude
		}
	}

	if len(req.Query) > 0 {
		visit.QueryParameters = make(map[string]string, len(req.Query))
		for k := range req.Query {
			visit.QueryParameters[k] = req.Query.Get(k)
		}
	}

	if err := t.visits.InsertVisit(ctx, visit); err != nil {
		return fmt.Errorf("%s: failed to insert visit: %w", op, err)
	}

	if err := t.links.IncrementClicks(ctx, link.ID, now); err != nil {
		return fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	t.invalidate(ctx, link.Key)

	return nil
}

// deviceType maps parsed UA flags to a device bucket: mobile wins over
// tablet wins over the desktop default.
func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Mobile:
		return entity.DeviceMobile
	case ua.Tablet:
		return entity.DeviceTablet
	default:
		return entity.DeviceDesktop
	}
}

func (t *VisitTracker) invalidate(ctx context.Context, key string) {
	if t.cache == nil || !t.cacheCfg.Enabled {
		return
	}

	cacheKey := fmt.Sprintf("%s:link:%s", t.cacheCfg.Prefix, key)
	if err := t.cache.Delete(ctx, cacheKey); err != nil {
		t.logger.Warn("cache invalidation failed", slog.String("key", key), slog.Any("err", err))
	}
}
