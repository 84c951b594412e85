package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shammaa/url-shortener/internal/entity"
)

// Aggregator folds a day's raw visits into one DailyAnalytics row per link.
// It runs out of band of the redirect path, typically on a cron schedule.
// Re-aggregating a day replaces the prior rollup, so reruns and backfills
// never double-count.
type Aggregator struct {
	store  AnalyticsStore
	logger *slog.Logger
}

func NewAggregator(store AnalyticsStore, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:  store,
		logger: logger,
	}
}

// AggregateDay recomputes the rollup for one (link, date) pair from the raw
// visit rows and upserts it.
func (a *Aggregator) AggregateDay(ctx context.Context, linkID int64, day time.Time) error {
	const op = "service.Aggregator.AggregateDay"

	day = truncateToDay(day)

	visits, err := a.store.VisitsOnDay(ctx, linkID, day)
	if err != nil {
		return fmt.Errorf("%s: failed to load visits: %w", op, err)
	}

	rollup := fold(linkID, day, visits)

	if err := a.store.UpsertDailyAnalytics(ctx, rollup); err != nil {
		return fmt.Errorf("%s: failed to upsert rollup: %w", op, err)
	}

	return nil
}

// Range returns the stored rollups for a link between two dates, inclusive.
func (a *Aggregator) Range(ctx context.Context, linkID int64, from, to time.Time) ([]entity.DailyAnalytics, error) {
	const op = "service.Aggregator.Range"

	rollups, err := a.store.AnalyticsRange(ctx, linkID, truncateToDay(from), truncateToDay(to))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to load rollups: %w", op, err)
	}

	return rollups, nil
}

// AggregateAll recomputes rollups for every link that had visits on the
// given day. Per-link failures are collected rather than aborting the batch.
func (a *Aggregator) AggregateAll(ctx context.Context, day time.Time) error {
	const op = "service.Aggregator.AggregateAll"

	day = truncateToDay(day)

	ids, err := a.store.LinkIDsVisitedOn(ctx, day)
	if err != nil {
		return fmt.Errorf("%s: failed to list visited links: %w", op, err)
	}

	var errs []error
	for _, id := range ids {
		if err := a.AggregateDay(ctx, id, day); err != nil {
			a.logger.Error("aggregation failed for link",
				slog.Int64("link_id", id), slog.Any("err", err))
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s: %w", op, errors.Join(errs...))
	}

	return nil
}

// fold computes one rollup from raw visits. Breakdowns count non-empty
// values only; nulls never become a category. Unique counts are distinct
// non-empty IP addresses.
func fold(linkID int64, day time.Time, visits []entity.Visit) *entity.DailyAnalytics {
	rollup := &entity.DailyAnalytics{
		ShortLinkID:         linkID,
		Date:                day,
		TotalClicks:         int64(len(visits)),
		ClicksByCountry:     make(map[string]int64),
		ClicksByCity:        make(map[string]int64),
		ClicksByDevice:      make(map[string]int64),
		ClicksByPlatform:    make(map[string]int64),
		ClicksByBrowser:     make(map[string]int64),
		ClicksByReferer:     make(map[string]int64),
		ClicksByUTMSource:   make(map[string]int64),
		ClicksByUTMMedium:   make(map[string]int64),
		ClicksByUTMCampaign: make(map[string]int64),
	}

	ips := make(map[string]struct{})

	for i := range visits {
		v := &visits[i]

		if v.IPAddress != "" {
			ips[v.IPAddress] = struct{}{}
		}

		bump(rollup.ClicksByCountry, v.CountryCode)
		bump(rollup.ClicksByCity, v.City)
		bump(rollup.ClicksByDevice, v.DeviceType)
		bump(rollup.ClicksByPlatform, v.Platform)
		bump(rollup.ClicksByBrowser, v.Browser)
		bump(rollup.ClicksByReferer, v.RefererDomain)
		bump(rollup.ClicksByUTMSource, v.UTMSource)
		bump(rollup.ClicksByUTMMedium, v.UTMMedium)
		bump(rollup.ClicksByUTMCampaign, v.UTMCampaign)

		rollup.ClicksByHour[v.VisitedAt.UTC().Hour()]++
	}

	rollup.UniqueClicks = int64(len(ips))
	rollup.UniqueVisitors = int64(len(ips))

	return rollup
}

func bump(m map[string]int64, key string) {
	if key != "" {
		m[key]++
	}
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
