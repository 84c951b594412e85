package entity

import "time"

// DailyAnalytics is one precomputed rollup per (link, calendar date). Rows
// are written exclusively by the aggregator, which upserts on the unique
// (ShortLinkID, Date) pair so re-aggregation replaces rather than adds.
type DailyAnalytics struct {
	ID          int64
	ShortLinkID int64
	Date        time.Time // calendar date, time part zero, UTC

	TotalClicks    int64
	UniqueClicks   int64 // distinct non-empty IP addresses
	UniqueVisitors int64

	ClicksByCountry     map[string]int64
	ClicksByCity        map[string]int64
	ClicksByDevice      map[string]int64
	ClicksByPlatform    map[string]int64
	ClicksByBrowser     map[string]int64
	ClicksByReferer     map[string]int64
	ClicksByUTMSource   map[string]int64
	ClicksByUTMMedium   map[string]int64
	ClicksByUTMCampaign map[string]int64
	ClicksByHour        [24]int64

	CreatedAt time.Time
	UpdatedAt time.Time
}
