package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/shammaa/url-shortener/internal/entity"
	"github.com/shammaa/url-shortener/pkg/response"
)

// statsRangeDays is the default reporting window when the caller gives no
// explicit from/to dates.
const statsRangeDays = 30

// defaultPerPage is the listing page size when per_page is not given.
const defaultPerPage = 15

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// handleListLinks handles GET requests for a page of links, newest first.
// The page and per_page query parameters control the window; out-of-range
// values are clamped by the service.
func handleListLinks(links LinkService) http.HandlerFunc {
	const op = "api.http.handleListLinks"
	const successMsg = "The links were retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		page, err := queryInt(r, "page", 1)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Response{
				Status:  response.StatusError,
				Error:   "Bad Request",
				Message: "The page and per_page parameters must be integers.",
			})
			return
		}

		perPage, err := queryInt(r, "per_page", defaultPerPage)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Response{
				Status:  response.StatusError,
				Error:   "Bad Request",
				Message: "The page and per_page parameters must be integers.",
			})
			return
		}

		list, err := links.List(r.Context(), page, perPage)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkListResponse(links, list, page, perPage)))
	}
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	return strconv.Atoi(raw)
}

// handleCreateLink handles POST requests to create a shortened link.
//
// The request must contain a valid destination URL. A custom key is honored
// when free; otherwise the key is generated. A conflict on a custom key is
// reported as 409.
func handleCreateLink(links LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleCreateLink"
	const successMsg = "The link has been created successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest

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

		link, err := links.Create(r.Context(), req.toSpec())
		if err != nil {
			if errors.Is(err, entity.ErrKeyExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Response{
					Status:  response.StatusError,
					Error:   "Key Exists",
					Message: "The requested key is already taken.",
				})
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(links, link)))
	}
}

// handleGetLink handles GET requests to fetch a link by its key.
//
// The link is returned even when it is currently inaccessible to visitors;
// management reads see the full record.
func handleGetLink(links LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLink"
	const successMsg = "The link was retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		link, err := links.FindByKey(r.Context(), key)
		if err != nil {
			if errors.Is(err, entity.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(links, link)))
	}
}

// handleUpdateLink handles PUT requests to modify an existing link.
//
// Absent fields are left untouched; the key itself is immutable.
func handleUpdateLink(links LinkService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleUpdateLink"
	const successMsg = "The link was updated successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req updateLinkRequest

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

		link, err := links.Update(r.Context(), key, req.toSpec())
		if err != nil {
			if errors.Is(err, entity.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkResponse(links, link)))
	}
}

// handleDeleteLink handles DELETE requests to soft-delete a link.
//
// The key stays reserved after deletion and is never handed out again.
func handleDeleteLink(links LinkService) http.HandlerFunc {
	const op = "api.http.handleDeleteLink"
	const successMsg = "The link was deleted successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		if err := links.Delete(r.Context(), key); err != nil {
			if errors.Is(err, entity.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}

// handleGetLinkStats handles GET requests for a link's usage statistics.
//
// The window is controlled by optional from/to query parameters in
// YYYY-MM-DD form and defaults to the last 30 days.
func handleGetLinkStats(links LinkService, analytics AnalyticsReader) http.HandlerFunc {
	const op = "api.http.handleGetLinkStats"
	const successMsg = "The link statistics were retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		link, err := links.FindByKey(r.Context(), key)
		if err != nil {
			if errors.Is(err, entity.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		from, to, err := statsRange(r)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Response{
				Status:  response.StatusError,
				Error:   "Bad Request",
				Message: "Dates must be in YYYY-MM-DD form and from must not be after to.",
			})
			return
		}

		rollups, err := analytics.Range(r.Context(), link.ID, from, to)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toLinkStatsResponse(link, rollups)))
	}
}

func statsRange(r *http.Request) (from, to time.Time, err error) {
	to = time.Now().UTC()
	from = to.AddDate(0, 0, -statsRangeDays)

	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(time.DateOnly, raw); err != nil {
			return from, to, fmt.Errorf("invalid from date: %w", err)
		}
	}

	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.DateOnly, raw); err != nil {
			return from, to, fmt.Errorf("invalid to date: %w", err)
		}
	}

	if from.After(to) {
		return from, to, errors.New("from is after to")
	}

	return from, to, nil
}

// handleGetLinkQRCode handles GET requests for the PNG QR code of a link's
// short URL. The image is rendered on demand.
func handleGetLinkQRCode(links LinkService) http.HandlerFunc {
	const op = "api.http.handleGetLinkQRCode"

	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")

		link, err := links.FindByKey(r.Context(), key)
		if err != nil {
			if errors.Is(err, entity.ErrLinkNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		png, err := links.QRCode(link)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(png)
	}
}
