package entity

import "time"

// Device types derived from the visitor's user agent.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Visit is one recorded click on a link. Visits are immutable after creation
// and are only read back for aggregation and reporting.
type Visit struct {
	ID          int64
	ShortLinkID int64

	IPAddress   string
	CountryCode string
	Country     string
	City        string
	Region      string
	Latitude    *float64
	Longitude   *float64

	UserAgent       string
	DeviceType      string
	DeviceName      string
	Platform        string
	PlatformVersion string
	Browser         string
	BrowserVersion  string
	IsBot           bool
	IsMobile        bool
	IsTablet        bool

	RefererURL    string
	RefererDomain string

	// UTM values the visitor arrived with, independent of the link's own
	// default UTM parameters.
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMTerm     string
	UTMContent  string

	QueryParameters map[string]string
	Language        string
	Timezone        string
	SessionID       string

	VisitedAt time.Time
	CreatedAt time.Time
}

// GeoLocation is the result of an IP geolocation lookup.
type GeoLocation struct {
	Country     string
	CountryCode string
	City        string
	Region      string
	Latitude    *float64
	Longitude   *float64
}
