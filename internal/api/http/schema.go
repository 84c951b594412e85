package http

import (
	"time"

	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/internal/service"
)

// createLinkRequest carries the payload for creating a link. Unset tracking
// flags fall back to the configured defaults, so they are pointers.
type createLinkRequest struct {
	Key            string `json:"key" validate:"omitempty,min=3,max=64"`
	DestinationURL string `json:"destination_url" validate:"required,url"`
	Title          string `json:"title" validate:"omitempty,max=255"`
	Description    string `json:"description"`
	Password       string `json:"password"`

	ExpiresAt     *time.Time `json:"expires_at"`
	ExpiresInDays int        `json:"expires_in_days" validate:"omitempty,min=1"`
	ActivatedAt   *time.Time `json:"activated_at"`
	IsActive      *bool      `json:"is_active"`
	ClickLimit    *int64     `json:"click_limit" validate:"omitempty,min=1"`

	TrackVisits    *bool `json:"track_visits"`
	TrackIPAddress *bool `json:"track_ip_address"`
	TrackUserAgent *bool `json:"track_user_agent"`
	TrackReferer   *bool `json:"track_referer"`
	TrackGeo       *bool `json:"track_geo"`

	UTMParameters      map[string]string `json:"utm_parameters"`
	UTMHidden          *bool             `json:"utm_hidden"`
	RedirectStatusCode int               `json:"redirect_status_code" validate:"omitempty,oneof=301 302 307 308"`

	Metadata map[string]any `json:"metadata"`
	Tags     []string       `json:"tags"`
	Group    string         `json:"group"`
}

func (req *createLinkRequest) toSpec() service.CreateSpec {
	return service.CreateSpec{
		Key:                req.Key,
		DestinationURL:     req.DestinationURL,
		Title:              req.Title,
		Description:        req.Description,
		Password:           req.Password,
		ExpiresAt:          req.ExpiresAt,
		ExpiresInDays:      req.ExpiresInDays,
		ActivatedAt:        req.ActivatedAt,
		IsActive:           req.IsActive,
		ClickLimit:         req.ClickLimit,
		TrackVisits:        req.TrackVisits,
		TrackIPAddress:     req.TrackIPAddress,
		TrackUserAgent:     req.TrackUserAgent,
		TrackReferer:       req.TrackReferer,
		TrackGeo:           req.TrackGeo,
		UTMParameters:      req.UTMParameters,
		UTMHidden:          req.UTMHidden,
		RedirectStatusCode: req.RedirectStatusCode,
		Metadata:           req.Metadata,
		Tags:               req.Tags,
		Group:              req.Group,
	}
}

// updateLinkRequest carries a partial update; absent fields stay untouched.
type updateLinkRequest struct {
	DestinationURL *string           `json:"destination_url" validate:"omitempty,url"`
	Title          *string           `json:"title" validate:"omitempty,max=255"`
	Description    *string           `json:"description"`
	Password       *string           `json:"password"`
	IsActive       *bool             `json:"is_active"`
	ExpiresAt      *time.Time        `json:"expires_at"`
	ClickLimit     *int64            `json:"click_limit" validate:"omitempty,min=1"`
	UTMParameters  map[string]string `json:"utm_parameters"`
	Metadata       map[string]any    `json:"metadata"`
	Tags           []string          `json:"tags"`
	Group          *string           `json:"group"`
}

func (req *updateLinkRequest) toSpec() service.UpdateSpec {
	return service.UpdateSpec{
		DestinationURL: req.DestinationURL,
		Title:          req.Title,
		Description:    req.Description,
		Password:       req.Password,
		IsActive:       req.IsActive,
		ExpiresAt:      req.ExpiresAt,
		ClickLimit:     req.ClickLimit,
		UTMParameters:  req.UTMParameters,
		Metadata:       req.Metadata,
		Tags:           req.Tags,
		Group:          req.Group,
	}
}

// unlockLinkRequest carries the password for a protected link.
type unlockLinkRequest struct {
	Password string `json:"password" validate:"required"`
}

// linkResponse is the representation of a link returned by the API. The
// password hash never leaves the server.
type linkResponse struct {
	ID                int64  `json:"id"`
	Key               string `json:"key"`
	ShortURL          string `json:"short_url"`
	DestinationURL    string `json:"destination_url"`
	Title             string `json:"title,omitempty"`
	Description       string `json:"description,omitempty"`
	PasswordProtected bool   `json:"password_protected"`

	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	ClickLimit  *int64     `json:"click_limit,omitempty"`
	ClicksCount int64      `json:"clicks_count"`

	TrackVisits    bool `json:"track_visits"`
	TrackIPAddress bool `json:"track_ip_address"`
	TrackUserAgent bool `json:"track_user_agent"`
	TrackReferer   bool `json:"track_referer"`
	TrackGeo       bool `json:"track_geo"`

	UTMParameters      map[string]string `json:"utm_parameters,omitempty"`
	UTMHidden          bool              `json:"utm_hidden"`
	RedirectStatusCode int               `json:"redirect_status_code"`

	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Group    string         `json:"group,omitempty"`

	FirstClickedAt *time.Time `json:"first_clicked_at,omitempty"`
	LastClickedAt  *time.Time `json:"last_clicked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toLinkResponse(links LinkService, link *entity.Link) linkResponse {
	return linkResponse{
		ID:                 link.ID,
		Key:                link.Key,
		ShortURL:           links.ShortURL(link),
		DestinationURL:     link.DestinationURL,
		Title:              link.Title,
		Description:        link.Description,
		PasswordProtected:  link.PasswordProtected,
		ActivatedAt:        link.ActivatedAt,
		ExpiresAt:          link.ExpiresAt,
		IsActive:           link.IsActive,
		ClickLimit:         link.ClickLimit,
		ClicksCount:        link.ClicksCount,
		TrackVisits:        link.TrackVisits,
		TrackIPAddress:     link.TrackIPAddress,
		TrackUserAgent:     link.TrackUserAgent,
		TrackReferer:       link.TrackReferer,
		TrackGeo:           link.TrackGeo,
		UTMParameters:      link.UTMParameters,
		UTMHidden:          link.UTMHidden,
		RedirectStatusCode: link.RedirectStatusCode,
		Metadata:           link.Metadata,
		Tags:               link.Tags,
		Group:              link.Group,
		FirstClickedAt:     link.FirstClickedAt,
		LastClickedAt:      link.LastClickedAt,
		CreatedAt:          link.CreatedAt,
		UpdatedAt:          link.UpdatedAt,
	}
}

// linkListResponse is one page of links with its paging window.
type linkListResponse struct {
	Links   []linkResponse `json:"links"`
	Page    int            `json:"page"`
	PerPage int            `json:"per_page"`
}

func toLinkListResponse(links LinkService, list []*entity.Link, page, perPage int) linkListResponse {
	resp := linkListResponse{
		Links:   make([]linkResponse, 0, len(list)),
		Page:    page,
		PerPage: perPage,
	}

	for _, link := range list {
		resp.Links = append(resp.Links, toLinkResponse(links, link))
	}

	return resp
}

// unlockResponse tells an unlocked client where to go.
type unlockResponse struct {
	DestinationURL string `json:"destination_url"`
}

// dailyStatsResponse is one per-day rollup in a stats reply.
type dailyStatsResponse struct {
	Date           string           `json:"date"`
	TotalClicks    int64            `json:"total_clicks"`
	UniqueClicks   int64            `json:"unique_clicks"`
	UniqueVisitors int64            `json:"unique_visitors"`
	ByCountry      map[string]int64 `json:"by_country,omitempty"`
	ByCity         map[string]int64 `json:"by_city,omitempty"`
	ByDevice       map[string]int64 `json:"by_device,omitempty"`
	ByPlatform     map[string]int64 `json:"by_platform,omitempty"`
	ByBrowser      map[string]int64 `json:"by_browser,omitempty"`
	ByReferer      map[string]int64 `json:"by_referer,omitempty"`
	ByUTMSource    map[string]int64 `json:"by_utm_source,omitempty"`
	ByUTMMedium    map[string]int64 `json:"by_utm_medium,omitempty"`
	ByUTMCampaign  map[string]int64 `json:"by_utm_campaign,omitempty"`
	ByHour         [24]int64        `json:"by_hour"`
}

// linkStatsResponse combines the link's live counters with its daily rollups.
type linkStatsResponse struct {
	Key            string               `json:"key"`
	ClicksCount    int64                `json:"clicks_count"`
	FirstClickedAt *time.Time           `json:"first_clicked_at,omitempty"`
	LastClickedAt  *time.Time           `json:"last_clicked_at,omitempty"`
	Days           []dailyStatsResponse `json:"days"`
}

func toLinkStatsResponse(link *entity.Link, rollups []entity.DailyAnalytics) linkStatsResponse {
	resp := linkStatsResponse{
		Key:            link.Key,
		ClicksCount:    link.ClicksCount,
		FirstClickedAt: link.FirstClickedAt,
		LastClickedAt:  link.LastClickedAt,
		Days:           make([]dailyStatsResponse, 0, len(rollups)),
	}

	for _, r := range rollups {
		resp.Days = append(resp.Days, dailyStatsResponse{
			Date:           r.Date.Format(time.DateOnly),
			TotalClicks:    r.TotalClicks,
			UniqueClicks:   r.UniqueClicks,
			UniqueVisitors: r.UniqueVisitors,
			ByCountry:      r.ClicksByCountry,
			ByCity:         r.ClicksByCity,
			ByDevice:       r.ClicksByDevice,
			ByPlatform:     r.ClicksByPlatform,
			ByBrowser:      r.ClicksByBrowser,
			ByReferer:      r.ClicksByReferer,
			ByUTMSource:    r.ClicksByUTMSource,
			ByUTMMedium:    r.ClicksByUTMMedium,
			ByUTMCampaign:  r.ClicksByUTMCampaign,
			ByHour:         r.ClicksByHour,
		})
	}

	return resp
}
