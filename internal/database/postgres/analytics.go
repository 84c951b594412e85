package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shammaa/url-shortener/internal/entity"
)

type analyticsRow struct {
	ID                  int64     `db:"id"`
	ShortLinkID         int64     `db:"short_link_id"`
	Date                time.Time `db:"date"`
	TotalClicks         int64     `db:"total_clicks"`
	UniqueClicks        int64     `db:"unique_clicks"`
	UniqueVisitors      int64     `db:"unique_visitors"`
	ClicksByCountry     []byte    `db:"clicks_by_country"`
	ClicksByCity        []byte    `db:"clicks_by_city"`
	ClicksByDevice      []byte    `db:"clicks_by_device"`
	ClicksByPlatform    []byte    `db:"clicks_by_platform"`
	ClicksByBrowser     []byte    `db:"clicks_by_browser"`
	ClicksByReferer     []byte    `db:"clicks_by_referer"`
	ClicksByUTMSource   []byte    `db:"clicks_by_utm_source"`
	ClicksByUTMMedium   []byte    `db:"clicks_by_utm_medium"`
	ClicksByUTMCampaign []byte    `db:"clicks_by_utm_campaign"`
	ClicksByHour        []byte    `db:"clicks_by_hour"`
	CreatedAt           time.Time `db:"created_at"`
	UpdatedAt           time.Time `db:"updated_at"`
}

func (r *analyticsRow) toEntity() (*entity.DailyAnalytics, error) {
	rollup := &entity.DailyAnalytics{
		ID:             r.ID,
		ShortLinkID:    r.ShortLinkID,
		Date:           r.Date,
		TotalClicks:    r.TotalClicks,
		UniqueClicks:   r.UniqueClicks,
		UniqueVisitors: r.UniqueVisitors,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}

	breakdowns := []struct {
		raw []byte
		dst *map[string]int64
	}{
		{r.ClicksByCountry, &rollup.ClicksByCountry},
		{r.ClicksByCity, &rollup.ClicksByCity},
		{r.ClicksByDevice, &rollup.ClicksByDevice},
		{r.ClicksByPlatform, &rollup.ClicksByPlatform},
		{r.ClicksByBrowser, &rollup.ClicksByBrowser},
		{r.ClicksByReferer, &rollup.ClicksByReferer},
		{r.ClicksByUTMSource, &rollup.ClicksByUTMSource},
		{r.ClicksByUTMMedium, &rollup.ClicksByUTMMedium},
		{r.ClicksByUTMCampaign, &rollup.ClicksByUTMCampaign},
	}

	for _, b := range breakdowns {
		if err := unmarshalJSON(b.raw, b.dst); err != nil {
			return nil, err
		}
	}

	if err := unmarshalJSON(r.ClicksByHour, &rollup.ClicksByHour); err != nil {
		return nil, err
	}

	return rollup, nil
}

func analyticsToRow(rollup *entity.DailyAnalytics) (*analyticsRow, error) {
	row := &analyticsRow{
		ShortLinkID:    rollup.ShortLinkID,
		Date:           rollup.Date,
		TotalClicks:    rollup.TotalClicks,
		UniqueClicks:   rollup.UniqueClicks,
		UniqueVisitors: rollup.UniqueVisitors,
	}

	breakdowns := []struct {
		src map[string]int64
		dst *[]byte
	}{
		{rollup.ClicksByCountry, &row.ClicksByCountry},
		{rollup.ClicksByCity, &row.ClicksByCity},
		{rollup.ClicksByDevice, &row.ClicksByDevice},
		{rollup.ClicksByPlatform, &row.ClicksByPlatform},
		{rollup.ClicksByBrowser, &row.ClicksByBrowser},
		{rollup.ClicksByReferer, &row.ClicksByReferer},
		{rollup.ClicksByUTMSource, &row.ClicksByUTMSource},
		{rollup.ClicksByUTMMedium, &row.ClicksByUTMMedium},
		{rollup.ClicksByUTMCampaign, &row.ClicksByUTMCampaign},
	}

	for _, b := range breakdowns {
		raw, err := marshalJSON(b.src, len(b.src) == 0)
		if err != nil {
			return nil, err
		}
		*b.dst = raw
	}

	var err error
	if row.ClicksByHour, err = marshalJSON(rollup.ClicksByHour, false); err != nil {
		return nil, err
	}

	return row, nil
}

// UpsertDailyAnalytics fully replaces the rollup for (link, date). The
// unique constraint on the pair guarantees one row per day even when two
// aggregation runs race.
func (r *Repository) UpsertDailyAnalytics(ctx context.Context, rollup *entity.DailyAnalytics) error {
	const op = "database.postgres.Repository.UpsertDailyAnalytics"
	const query = `INSERT INTO short_link_analytics (
			short_link_id, date, total_clicks, unique_clicks, unique_visitors,
			clicks_by_country, clicks_by_city, clicks_by_device, clicks_by_platform,
			clicks_by_browser, clicks_by_referer, clicks_by_utm_source,
			clicks_by_utm_medium, clicks_by_utm_campaign, clicks_by_hour
		) VALUES (
			:short_link_id, :date, :total_clicks, :unique_clicks, :unique_visitors,
			:clicks_by_country, :clicks_by_city, :clicks_by_device, :clicks_by_platform,
			:clicks_by_browser, :clicks_by_referer, :clicks_by_utm_source,
			:clicks_by_utm_medium, :clicks_by_utm_campaign, :clicks_by_hour
		)
		ON CONFLICT (short_link_id, date) DO UPDATE SET
			total_clicks = EXCLUDED.total_clicks,
			unique_clicks = EXCLUDED.unique_clicks,
			unique_visitors = EXCLUDED.unique_visitors,
			clicks_by_country = EXCLUDED.clicks_by_country,
			clicks_by_city = EXCLUDED.clicks_by_city,
			clicks_by_device = EXCLUDED.clicks_by_device,
			clicks_by_platform = EXCLUDED.clicks_by_platform,
			clicks_by_browser = EXCLUDED.clicks_by_browser,
			clicks_by_referer = EXCLUDED.clicks_by_referer,
			clicks_by_utm_source = EXCLUDED.clicks_by_utm_source,
			clicks_by_utm_medium = EXCLUDED.clicks_by_utm_medium,
			clicks_by_utm_campaign = EXCLUDED.clicks_by_utm_campaign,
			clicks_by_hour = EXCLUDED.clicks_by_hour,
			updated_at = now()`

	row, err := analyticsToRow(rollup)
	if err != nil {
		return fmt.Errorf("%s: failed to encode rollup: %w", op, err)
	}

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, row); err != nil {
		return fmt.Errorf("%s: failed to upsert short_link_analytics row: %w", op, err)
	}

	return nil
}

func (r *Repository) AnalyticsRange(ctx context.Context, linkID int64, from, to time.Time) ([]entity.DailyAnalytics, error) {
	const op = "database.postgres.Repository.AnalyticsRange"
	const query = `SELECT * FROM short_link_analytics
		WHERE short_link_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`

	var rows []analyticsRow

	if err := r.db.SelectContext(ctx, &rows, query, linkID, from, to); err != nil {
		return nil, fmt.Errorf("%s: failed to select short_link_analytics rows: %w", op, err)
	}

	rollups := make([]entity.DailyAnalytics, 0, len(rows))
	for i := range rows {
		rollup, err := rows[i].toEntity()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to decode rollup: %w", op, err)
		}
		rollups = append(rollups, *rollup)
	}

	return rollups, nil
}
