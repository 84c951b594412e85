package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shammaa/url-shortener/internal/entity"
)

type visitRow struct {
	ID              int64      `db:"id"`
	ShortLinkID     int64      `db:"short_link_id"`
	IPAddress       string     `db:"ip_address"`
	Country         string     `db:"country"`
	CountryCode     string     `db:"country_code"`
	City            string     `db:"city"`
	Region          string     `db:"region"`
	Latitude        *float64   `db:"latitude"`
	Longitude       *float64   `db:"longitude"`
	UserAgent       string     `db:"user_agent"`
	DeviceType      string     `db:"device_type"`
	DeviceName      string     `db:"device_name"`
	Platform        string     `db:"platform"`
	PlatformVersion string     `db:"platform_version"`
	Browser         string     `db:"browser"`
	BrowserVersion  string     `db:"browser_version"`
	IsBot           bool       `db:"is_bot"`
	IsMobile        bool       `db:"is_mobile"`
	IsTablet        bool       `db:"is_tablet"`
	RefererURL      string     `db:"referer_url"`
	RefererDomain   string     `db:"referer_domain"`
	UTMSource       string     `db:"utm_source"`
	UTMMedium       string     `db:"utm_medium"`
	UTMCampaign     string     `db:"utm_campaign"`
	UTMTerm         string     `db:"utm_term"`
	UTMContent      string     `db:"utm_content"`
	QueryParameters []byte     `db:"query_parameters"`
	Language        string     `db:"language"`
	Timezone        string     `db:"timezone"`
	SessionID       string     `db:"session_id"`
	VisitedAt       time.Time  `db:"visited_at"`
	CreatedAt       time.Time  `db:"created_at"`
}

func (r *visitRow) toEntity() (*entity.Visit, error) {
	visit := &entity.Visit{
		ID:              r.ID,
		ShortLinkID:     r.ShortLinkID,
		IPAddress:       r.IPAddress,
		Country:         r.Country,
		CountryCode:     r.CountryCode,
		City:            r.City,
		Region:          r.Region,
		Latitude:        r.Latitude,
		Longitude:       r.Longitude,
		UserAgent:       r.UserAgent,
		DeviceType:      r.DeviceType,
		DeviceName:      r.DeviceName,
		Platform:        r.Platform,
		PlatformVersion: r.PlatformVersion,
		Browser:         r.Browser,
		BrowserVersion:  r.BrowserVersion,
		IsBot:           r.IsBot,
		IsMobile:        r.IsMobile,
		IsTablet:        r.IsTablet,
		RefererURL:      r.RefererURL,
		RefererDomain:   r.RefererDomain,
		UTMSource:       r.UTMSource,
		UTMMedium:       r.UTMMedium,
		UTMCampaign:     r.UTMCampaign,
		UTMTerm:         r.UTMTerm,
		UTMContent:      r.UTMContent,
		Language:        r.Language,
		Timezone:        r.Timezone,
		SessionID:       r.SessionID,
		VisitedAt:       r.VisitedAt,
		CreatedAt:       r.CreatedAt,
	}

	if err := unmarshalJSON(r.QueryParameters, &visit.QueryParameters); err != nil {
		return nil, err
	}

	return visit, nil
}

func visitToRow(visit *entity.Visit) (*visitRow, error) {
	row := &visitRow{
		ShortLinkID:     visit.ShortLinkID,
		IPAddress:       visit.IPAddress,
		Country:         visit.Country,
		CountryCode:     visit.CountryCode,
		City:            visit.City,
		Region:          visit.Region,
		Latitude:        visit.Latitude,
		Longitude:       visit.Longitude,
		UserAgent:       visit.UserAgent,
		DeviceType:      visit.DeviceType,
		DeviceName:      visit.DeviceName,
		Platform:        visit.Platform,
		PlatformVersion: visit.PlatformVersion,
		Browser:         visit.Browser,
		BrowserVersion:  visit.BrowserVersion,
		IsBot:           visit.IsBot,
		IsMobile:        visit.IsMobile,
		IsTablet:        visit.IsTablet,
		RefererURL:      visit.RefererURL,
		RefererDomain:   visit.RefererDomain,
		UTMSource:       visit.UTMSource,
		UTMMedium:       visit.UTMMedium,
		UTMCampaign:     visit.UTMCampaign,
		UTMTerm:         visit.UTMTerm,
		UTMContent:      visit.UTMContent,
		Language:        visit.Language,
		Timezone:        visit.Timezone,
		SessionID:       visit.SessionID,
		VisitedAt:       visit.VisitedAt,
	}

	var err error
	if row.QueryParameters, err = marshalJSON(visit.QueryParameters, len(visit.QueryParameters) == 0); err != nil {
		return nil, err
	}

	return row, nil
}

func (r *Repository) InsertVisit(ctx context.Context, visit *entity.Visit) error {
	const op = "database.postgres.Repository.InsertVisit"
	const query = `INSERT INTO short_link_visits (
			short_link_id, ip_address, country, country_code, city, region,
			latitude, longitude, user_agent, device_type, device_name,
			platform, platform_version, browser, browser_version,
			is_bot, is_mobile, is_tablet, referer_url, referer_domain,
			utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			query_parameters, language, timezone, session_id, visited_at
		) VALUES (
			:short_link_id, :ip_address, :country, :country_code, :city, :region,
			:latitude, :longitude, :user_agent, :device_type, :device_name,
			:platform, :platform_version, :browser, :browser_version,
			:is_bot, :is_mobile, :is_tablet, :referer_url, :referer_domain,
			:utm_source, :utm_medium, :utm_campaign, :utm_term, :utm_content,
			:query_parameters, :language, :timezone, :session_id, :visited_at
		)`

	row, err := visitToRow(visit)
	if err != nil {
		return fmt.Errorf("%s: failed to encode visit: %w", op, err)
	}

	if _, err := sqlx.NamedExecContext(ctx, r.db, query, row); err != nil {
		return fmt.Errorf("%s: failed to insert into short_link_visits: %w", op, err)
	}

	return nil
}

func (r *Repository) VisitsOnDay(ctx context.Context, linkID int64, day time.Time) ([]entity.Visit, error) {
	const op = "database.postgres.Repository.VisitsOnDay"
	const query = `SELECT * FROM short_link_visits
		WHERE short_link_id = $1 AND visited_at >= $2 AND visited_at < $3
		ORDER BY visited_at`

	var rows []visitRow

	if err := r.db.SelectContext(ctx, &rows, query, linkID, day, day.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("%s: failed to select short_link_visits rows: %w", op, err)
	}

	visits := make([]entity.Visit, 0, len(rows))
	for i := range rows {
		visit, err := rows[i].toEntity()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to decode visit: %w", op, err)
		}
		visits = append(visits, *visit)
	}

	return visits, nil
}

func (r *Repository) LinkIDsVisitedOn(ctx context.Context, day time.Time) ([]int64, error) {
	const op = "database.postgres.Repository.LinkIDsVisitedOn"
	const query = `SELECT DISTINCT short_link_id FROM short_link_visits
		WHERE visited_at >= $1 AND visited_at < $2`

	var ids []int64

	if err := r.db.SelectContext(ctx, &ids, query, day, day.AddDate(0, 0, 1)); err != nil {
		return nil, fmt.Errorf("%s: failed to select visited link ids: %w", op, err)
	}

	return ids, nil
}
