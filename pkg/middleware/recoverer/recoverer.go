// Package recoverer converts handler panics into 500 responses instead of
// tearing down the connection.
package recoverer

import (
	"log/slog"
	"net/http"

	"github.com/shammaa/url-shortener/pkg/render"
	"github.com/shammaa/url-shortener/pkg/response"
)

func New(logger *slog.Logger) func(http.Handler) http.Handler {
	const op = "middleware.recoverer.New"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error(
						"panic while serving request",
						slog.Group(op,
							slog.Any("err", err),
							slog.String("method", r.Method),
							slog.String("path", r.URL.Path),
						),
					)

					_ = render.JSON(w, http.StatusInternalServerError, response.ServerErrorResponse)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
