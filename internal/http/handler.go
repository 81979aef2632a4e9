package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/stream"
)

// Cache metadata response headers.
const (
	HeaderCache           = "X-Hearth-Cache"
	HeaderCacheSimilarity = "X-Hearth-Cache-Similarity"
	HeaderCacheTimestamp  = "X-Hearth-Cache-Timestamp"
	HeaderCacheAge        = "X-Hearth-Cache-Age"
)

// maxBodyBytes bounds a completion request body.
const maxBodyBytes = 4 << 20

// Handler handles HTTP requests.
type Handler struct {
	pipeline *domain.Pipeline
	emitter  *stream.Emitter
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(pipeline *domain.Pipeline, emitter *stream.Emitter) *Handler {
	return &Handler{
		pipeline: pipeline,
		emitter:  emitter,
	}
}

// HandleCompletion processes chat completion requests, streaming or not.
func (h *Handler) HandleCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var completion domain.CompletionRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(&completion); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	req := &domain.PipelineRequest{
		UserID:       observability.GetUserID(ctx),
		Completion:   &completion,
		CacheControl: parseCacheControl(r.Header.Values("Cache-Control")),
	}

	ctx = observability.WithModel(ctx, completion.Model)
	logger := observability.FromContext(ctx)
	logger.Info("completion request received",
		observability.Bool("stream", completion.Stream),
		observability.Int("messages", len(completion.Messages)),
		observability.Bool("no_cache", req.CacheControl.NoCache),
		observability.Bool("no_store", req.CacheControl.NoStore),
	)

	if completion.Stream {
		s, err := h.pipeline.Stream(ctx, req)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		if s.Cache != nil {
			w.Header().Set(HeaderCache, cacheStatus(s.Cache.Hit))
		}

		if err := h.emitter.Emit(ctx, w, s); err != nil {
			if errors.Is(err, stream.ErrStreamingUnsupported) {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			logger.Warn("stream ended abnormally", observability.Error(err))
		}
		return
	}

	result, err := h.pipeline.Complete(ctx, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logger.Info("completion succeeded",
		observability.Bool("cache_hit", result.CacheHit()),
		observability.Int("tokens", result.Response.Usage.TotalTokens),
		observability.Float64("cost", result.Response.Usage.Cost),
	)

	setCacheHeaders(w, result.Cache, time.Now())
	writeJSON(w, http.StatusOK, result.Response)
}

// HandleCacheStats reports cache statistics.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.CacheStats(r.Context()))
}

// HandleCacheClear drops every cached entry.
func (h *Handler) HandleCacheClear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.pipeline.ClearCache(ctx)
	observability.FromContext(ctx).Info("cache cleared by admin request")

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := domain.HTTPStatus(err)

	logger := observability.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("completion failed", observability.Error(err), observability.Int("status", status))
	} else {
		logger.Warn("completion rejected", observability.Error(err), observability.Int("status", status))
	}

	writeError(w, status, errorType(status), err.Error())
}

// parseCacheControl reads the no-cache and no-store request directives.
func parseCacheControl(values []string) domain.CacheControl {
	var cc domain.CacheControl
	for _, value := range values {
		for _, directive := range strings.Split(value, ",") {
			switch strings.ToLower(strings.TrimSpace(directive)) {
			case "no-cache":
				cc.NoCache = true
			case "no-store":
				cc.NoStore = true
			}
		}
	}
	return cc
}

// setCacheHeaders describes cache participation. Nothing is set when the
// cache took no part.
func setCacheHeaders(w http.ResponseWriter, info *domain.CacheInfo, now time.Time) {
	if info == nil {
		return
	}

	header := w.Header()
	header.Set(HeaderCache, cacheStatus(info.Hit))
	if !info.Hit {
		return
	}

	age := int64(now.Sub(info.CachedAt).Seconds())
	if age < 0 {
		age = 0
	}

	header.Set(HeaderCacheSimilarity, strconv.FormatFloat(info.SimilarityScore, 'f', 4, 64))
	header.Set(HeaderCacheTimestamp, info.CachedAt.UTC().Format(time.RFC3339))
	header.Set(HeaderCacheAge, strconv.FormatInt(age, 10))
}

func cacheStatus(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusTooManyRequests:
		return "overloaded"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusBadGateway:
		return "provider_error"
	default:
		return "internal_error"
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, stream.ErrorBody{Error: stream.ErrorDetail{
		Message: message,
		Type:    errType,
		Code:    status,
	}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status is already written; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(body)
}
