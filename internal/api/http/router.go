// Package http exposes the link management API and the public redirect
// endpoints over chi.
package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/internal/service"
	"github.com/shammaa/url-shortener/pkg/middleware/recoverer"
)

// LinkService defines the link management operations the handlers depend on.
type LinkService interface {
	// Create persists a new link, generating a key when none is supplied.
	Create(ctx context.Context, spec service.CreateSpec) (*entity.Link, error)

	// FindByKey returns the live link for the key, regardless of whether it
	// is currently accessible.
	FindByKey(ctx context.Context, key string) (*entity.Link, error)

	// List returns one page of live links, newest first.
	List(ctx context.Context, page, perPage int) ([]*entity.Link, error)

	// Resolve returns the link only if it passes the access gate, otherwise
	// an entity.InaccessibleError.
	Resolve(ctx context.Context, key string) (*entity.Link, error)

	// Update applies a partial update to the link behind the key.
	Update(ctx context.Context, key string, spec service.UpdateSpec) (*entity.Link, error)

	// Delete soft-deletes the link. Its key stays reserved forever.
	Delete(ctx context.Context, key string) error

	// QRCode renders the link's short URL as a PNG image.
	QRCode(link *entity.Link) ([]byte, error)

	// ShortURL composes the public short URL for the link.
	ShortURL(link *entity.Link) string

	// DestinationURL composes the redirect target with UTM parameters merged.
	DestinationURL(link *entity.Link, extra map[string]string) string

	// VerifyPassword checks a candidate against the link's password hash.
	VerifyPassword(link *entity.Link, candidate string) bool
}

// VisitTracker records visits on the redirect path.
type VisitTracker interface {
	Track(ctx context.Context, link *entity.Link, req service.RequestInfo) error
}

// AnalyticsReader serves precomputed per-day rollups.
type AnalyticsReader interface {
	Range(ctx context.Context, linkID int64, from, to time.Time) ([]entity.DailyAnalytics, error)
}

// getValidate initializes a validator that reports field names by their
// JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter wires the API and redirect routes with all middleware configured.
// prefix is the leading path segment of public short URLs.
func NewRouter(logger *httplog.Logger, links LinkService, tracker VisitTracker, analytics AnalyticsReader, prefix string) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(recoverer.New(logger.Logger))

	validate := getValidate()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", handlePing)

		r.Route("/links", func(r chi.Router) {
			r.Get("/", handleListLinks(links))
			r.Post("/", handleCreateLink(links, validate))

			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", handleGetLink(links))
				r.Put("/", handleUpdateLink(links, validate))
				r.Delete("/", handleDeleteLink(links))
				r.Get("/stats", handleGetLinkStats(links, analytics))
				r.Get("/qr", handleGetLinkQRCode(links))
			})
		})
	})

	r.Route("/"+strings.Trim(prefix, "/"), func(r chi.Router) {
		r.Get("/{key}", handleRedirect(links, tracker))
		r.Post("/{key}/unlock", handleUnlockLink(links, tracker, validate))
	})

	return r
}
