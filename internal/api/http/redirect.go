package http

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/internal/service"
	"github.com/shammaa/url-shortener/pkg/response"
)

// sessionCookieName identifies a visitor across redirects so unique visitor
// counts don't inflate on repeat clicks.
const sessionCookieName = "sid"

// handleRedirect handles GET requests on public short URLs.
//
// Misses return 404 and gated links return 410 with the reason. Password
// protected links answer 401 until unlocked via the unlock endpoint. A
// tracking failure never blocks the visitor; it is logged and the redirect
// proceeds.
func handleRedirect(links LinkService, tracker VisitTracker) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		link, err := links.Resolve(r.Context(), key)
		if err != nil {
			writeResolveError(w, r, op, err)
			return
		}

		if link.PasswordProtected {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.PasswordRequiredResponse)
			return
		}

		if err := tracker.Track(r.Context(), link, requestInfo(r, sessionID(w, r))); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
		}

		http.Redirect(w, r, destinationURL(links, link), redirectStatus(link))
	}
}

// handleUnlockLink handles POST requests that present the password for a
// protected link. A correct password records the visit and returns the
// destination URL for the client to follow.
func handleUnlockLink(links LinkService, tracker VisitTracker, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleUnlockLink"
	const successMsg = "The link was unlocked successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req unlockLinkRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		key := chi.URLParam(r, "key")

		link, err := links.Resolve(r.Context(), key)
		if err != nil {
			writeResolveError(w, r, op, err)
			return
		}

		if !links.VerifyPassword(link, req.Password) {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.InvalidPasswordResponse)
			return
		}

		if err := tracker.Track(r.Context(), link, requestInfo(r, sessionID(w, r))); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, unlockResponse{
			DestinationURL: destinationURL(links, link),
		}))
	}
}

func writeResolveError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, entity.ErrLinkNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response.ResourceNotFoundResponse)
		return
	}

	var inaccessibleErr *entity.InaccessibleError
	if errors.As(err, &inaccessibleErr) {
		resp := response.LinkGoneResponse
		resp.Details = []any{map[string]string{"reason": string(inaccessibleErr.Reason)}}

		render.Status(r, http.StatusGone)
		render.JSON(w, r, resp)
		return
	}

	httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, response.ServerErrorResponse)
}

// destinationURL composes the redirect target. Every redirect tags the
// campaign with the link's key, overriding any stored utm_campaign.
func destinationURL(links LinkService, link *entity.Link) string {
	return links.DestinationURL(link, map[string]string{"utm_campaign": link.Key})
}

func redirectStatus(link *entity.Link) int {
	if link.RedirectStatusCode >= http.StatusMultipleChoices && link.RedirectStatusCode < http.StatusBadRequest {
		return link.RedirectStatusCode
	}

	return http.StatusFound
}

// sessionID returns the visitor's session cookie, minting one when absent.
func sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	sid := uuid.NewString()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return sid
}

// requestInfo extracts the tracker's view of the request. middleware.RealIP
// has already rewritten RemoteAddr from forwarding headers.
func requestInfo(r *http.Request, sid string) service.RequestInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	language := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(language, ",;"); i >= 0 {
		language = language[:i]
	}

	return service.RequestInfo{
		IP:        ip,
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
		Query:     r.URL.Query(),
		Language:  strings.TrimSpace(language),
		Timezone:  r.Header.Get("X-Timezone"),
		SessionID: sid,
	}
}
