package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/peteski22/churchbridge/internal/alert"
	"github.com/peteski22/churchbridge/internal/church"
	"github.com/peteski22/churchbridge/internal/monitor"
)

// defaultHistoryLimit is used when the history request has no limit.
const defaultHistoryLimit = 20

// errorResponse is the body of every error reply.
type errorResponse struct {
	Error string `json:"error"`
}

// syncRequest is the optional body of a manual sync.
//
//nolint:tagliatelle // Operator API uses snake_case.
type syncRequest struct {
	EntityTypes []church.EntityType `json:"entity_types"`
}

// clearAlerts handles DELETE /alerts.
func (h *handler) clearAlerts(w http.ResponseWriter, r *http.Request) {
	integrationID := r.URL.Query().Get("integration_id")
	cleared := h.alerts.ClearAlerts(integrationID)

	h.logger.Info("alerts cleared", "integration_id", integrationID, "cleared", cleared)
	h.writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// health handles GET /healthz.
func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// integrationStatus handles GET /integrations/{id}/status. With refresh=true the
// provider is probed before the status is returned.
func (h *handler) integrationStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var (
		status monitor.IntegrationStatus
		err    error
	)
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		status, err = h.monitor.CheckIntegrationStatus(r.Context(), id)
	} else {
		status, err = h.monitor.Status(id)
	}
	if err != nil {
		h.writeMonitorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// listAlerts handles GET /alerts.
func (h *handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	alerts := h.alerts.GetAlerts(filter)
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	h.writeJSON(w, http.StatusOK, alerts)
}

// listIntegrations handles GET /integrations.
func (h *handler) listIntegrations(w http.ResponseWriter, _ *http.Request) {
	statuses := h.monitor.Statuses()
	if statuses == nil {
		statuses = []monitor.IntegrationStatus{}
	}
	h.writeJSON(w, http.StatusOK, statuses)
}

// syncHistory handles GET /integrations/{id}/history.
func (h *handler) syncHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	history, err := h.monitor.GetSyncHistory(chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeMonitorError(w, err)
		return
	}
	if history == nil {
		history = []monitor.HistoryEntry{}
	}

	h.writeJSON(w, http.StatusOK, history)
}

// triggerSync handles POST /integrations/{id}/sync. The pass runs within the request.
func (h *handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req syncRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Errorf("reading body: %w", err))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding body: %w", err))
			return
		}
	}
	for _, e := range req.EntityTypes {
		if !e.Valid() {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown entity type %q", e))
			return
		}
	}

	h.logger.Info("manual sync requested", "integration_id", id, "entity_types", req.EntityTypes)

	result, err := h.sync(r.Context(), id, req.EntityTypes)
	switch {
	case result == nil && err != nil:
		h.writeMonitorError(w, err)
	case err != nil:
		h.writeJSON(w, http.StatusBadGateway, result)
	default:
		h.writeJSON(w, http.StatusOK, result)
	}
}

// writeError writes an error body.
func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// writeJSON writes data as a JSON body.
func (h *handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // Response write errors are not recoverable.
	w.Write(body)
}

// writeMonitorError maps monitor errors to status codes.
func (h *handler) writeMonitorError(w http.ResponseWriter, err error) {
	if errors.Is(err, monitor.ErrNotRegistered) {
		h.writeError(w, http.StatusNotFound, err)
		return
	}
	h.logger.Error("request failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, err)
}

// parseFilter reads an alert filter from the query string.
func parseFilter(r *http.Request) (alert.Filter, error) {
	q := r.URL.Query()
	filter := alert.Filter{
		IntegrationID: q.Get("integration_id"),
		Severity:      alert.Severity(q.Get("severity")),
		Type:          alert.Type(q.Get("type")),
	}

	if filter.Severity != "" && !filter.Severity.Valid() {
		return alert.Filter{}, fmt.Errorf("unknown severity %q", filter.Severity)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return alert.Filter{}, fmt.Errorf("unknown alert type %q", filter.Type)
	}

	for name, dst := range map[string]*time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return alert.Filter{}, fmt.Errorf("invalid %s %q: expected RFC3339", name, raw)
		}
		*dst = t
	}

	return filter, nil
}
