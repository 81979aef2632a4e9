package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"github.com/davidbz/hearth/internal/config"
)

// exposedHeaders lets browser clients read cache and tracing metadata.
//
//nolint:gochecknoglobals // fixed header list
var exposedHeaders = []string{
	"X-Hearth-Cache",
	"X-Hearth-Cache-Similarity",
	"X-Hearth-Cache-Timestamp",
	"X-Hearth-Cache-Age",
	RequestIDHeader,
	"X-Trace-Id",
}

// CORS handles Cross-Origin Resource Sharing with github.com/rs/cors.
// A nil config disables it.
func CORS(cfg *config.CORSConfig) Middleware {
	if cfg == nil {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})

	return c.Handler
}
