package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/couchcryptid/storm-data-query/internal/domain"
	"github.com/couchcryptid/storm-data-query/internal/observability"
	"github.com/couchcryptid/storm-data-query/internal/query"
	"github.com/couchcryptid/storm-data-query/internal/service"
)

type handlers struct {
	svc          QueryService
	metrics      *observability.Metrics
	queryTimeout time.Duration
	logger       *slog.Logger
}

// errorBody is the uniform failure response: a stable machine-readable kind,
// never a bare message.
type errorBody struct {
	Error domain.ErrorKind `json:"error"`
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Health is 200 even when the dataset is unreachable; the body's
	// status field says "degraded".
	render.JSON(w, r, h.svc.Health(ctx))
}

func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	f, err := query.ParseEventsFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	rows, err := h.svc.Events(ctx, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "geojson" {
		render.JSON(w, r, service.ToFeatureCollection(rows))
		return
	}
	render.JSON(w, r, rows)
}

func (h *handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := query.ParseSummaryFilter(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	rows, err := h.svc.Summary(ctx, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, rows)
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := domain.KindOf(err)
	if !ok {
		// Engines classify everything at their boundary; reaching here
		// means a bug, but the client still gets a stable kind.
		kind = domain.KindUpstreamUnavailable
	}

	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "kind", kind, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug("request rejected", "kind", kind, "path", r.URL.Path, "error", err)
	}
	h.metrics.RequestErrors.WithLabelValues(string(kind)).Inc()

	render.Status(r, status)
	render.JSON(w, r, errorBody{Error: kind})
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidRange, domain.KindInvalidBBox, domain.KindInvalidGroupBy:
		return http.StatusBadRequest
	case domain.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case domain.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
