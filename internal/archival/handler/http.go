// Package handler exposes archival operations and cold-tier queries over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"event-analytics-api/internal/archival"
	"event-analytics-api/internal/audit"
	"event-analytics-api/internal/coldstore"
	"event-analytics-api/internal/server/httpx"
	"event-analytics-api/internal/server/middleware"
)

// Archiver is the read side of the archival engine used by the handler.
type Archiver interface {
	Candidates(ctx context.Context) (*archival.Candidates, error)
	VerifyIntegrity(ctx context.Context) (*archival.IntegrityReport, error)
}

// Trigger starts and tracks manual archival passes.
type Trigger interface {
	Trigger(ctx context.Context) (*archival.Ticket, error)
	Ticket(id string) (*archival.Ticket, bool)
	LastRun() *archival.Run
}

// ColdQueries is the slice of the cold store client served directly.
type ColdQueries interface {
	Ping(ctx context.Context) bool
	Stats(ctx context.Context) (*coldstore.AggregateStats, error)
	DAU(ctx context.Context, from, to string) ([]coldstore.DAUPoint, error)
	TopEvents(ctx context.Context, from, to string, limit int) ([]coldstore.TypeCount, error)
	RetentionCohort(ctx context.Context, startDate string, windows int) ([]coldstore.CohortWindow, error)
	StorageStats(ctx context.Context) (*coldstore.StorageStats, error)
}

// Handler serves the /cold-storage routes.
type Handler struct {
	engine  Archiver
	trigger Trigger
	cold    ColdQueries
	audit   audit.AuditLogger
}

// New returns a cold-storage handler. auditLogger may be nil.
func New(engine Archiver, trigger Trigger, cold ColdQueries, auditLogger audit.AuditLogger) *Handler {
	return &Handler{engine: engine, trigger: trigger, cold: cold, audit: auditLogger}
}

// Health handles GET /cold-storage/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	reachable := h.cold.Ping(r.Context())
	status := "ok"
	code := http.StatusOK
	if !reachable {
		status = "unreachable"
		code = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, map[string]any{"status": status, "reachable": reachable})
}

// ArchiveNow handles POST /cold-storage/archive-now. The pass runs in the
// background; the response carries a ticket to poll.
func (h *Handler) ArchiveNow(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.trigger.Trigger(r.Context())
	if err != nil {
		if errors.Is(err, archival.ErrPassInProgress) {
			httpx.WriteErr(w, http.StatusConflict, err.Error())
			return
		}
		httpx.WriteErr(w, http.StatusInternalServerError, "trigger failed")
		return
	}
	if h.audit != nil {
		callerID := ""
		if id := middleware.IdentityFromContext(r.Context()); id != nil {
			callerID = id.UserID
		}
		h.audit.LogEvent(r.Context(), callerID, "archival.trigger", "archival_run", `{"ticket_id":"`+ticket.ID+`"}`)
	}
	httpx.WriteJSON(w, http.StatusAccepted, ticket)
}

// Status handles GET /cold-storage/archival-status and .../{ticket}.
// Without a ticket it reports the most recent completed run.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if id := chi.URLParam(r, "ticket"); id != "" {
		ticket, ok := h.trigger.Ticket(id)
		if !ok {
			httpx.WriteErr(w, http.StatusNotFound, "unknown ticket")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, ticket)
		return
	}
	run := h.trigger.LastRun()
	if run == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"last_run": nil})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"last_run": run})
}

// Candidates handles GET /cold-storage/archival-candidates.
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.Candidates(r.Context())
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "candidate scan failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// Integrity handles GET /cold-storage/archival-integrity.
func (h *Handler) Integrity(w http.ResponseWriter, r *http.Request) {
	out, err := h.engine.VerifyIntegrity(r.Context())
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "integrity check failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// StorageComparison handles GET /cold-storage/storage-comparison: aggregate
// counts for both tiers plus cold on-disk footprint.
func (h *Handler) StorageComparison(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.VerifyIntegrity(r.Context())
	if err != nil {
		httpx.WriteErr(w, http.StatusInternalServerError, "comparison failed")
		return
	}
	out := map[string]any{
		"hot": map[string]any{
			"total_events":    report.HotEvents,
			"pending_archive": report.PendingArchive,
		},
		"cold": report.Cold,
	}
	if report.ColdReachable {
		if storage, err := h.cold.StorageStats(r.Context()); err == nil {
			out["cold_storage"] = storage
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// DAUFast handles GET /cold-storage/dau-fast?from&to over the cold tier's
// pre-aggregated daily view.
func (h *Handler) DAUFast(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := h.cold.DAU(r.Context(), from, to)
	if err != nil {
		httpx.WriteErr(w, http.StatusBadGateway, "cold query failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"series": points})
}

// TopEventsFast handles GET /cold-storage/top-events-fast?from&to&limit.
func (h *Handler) TopEventsFast(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	counts, err := h.cold.TopEvents(r.Context(), from, to, limit)
	if err != nil {
		httpx.WriteErr(w, http.StatusBadGateway, "cold query failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"top_events": counts})
}

// RetentionCohort handles GET /cold-storage/retention-cohort?start_date&weeks.
func (h *Handler) RetentionCohort(w http.ResponseWriter, r *http.Request) {
	start := r.URL.Query().Get("start_date")
	if start == "" {
		httpx.WriteErr(w, http.StatusBadRequest, "start_date is required (YYYY-MM-DD)")
		return
	}
	if _, err := time.Parse("2006-01-02", start); err != nil {
		httpx.WriteErr(w, http.StatusBadRequest, "invalid start_date, want YYYY-MM-DD")
		return
	}
	weeks, _ := strconv.Atoi(r.URL.Query().Get("weeks"))
	cohorts, err := h.cold.RetentionCohort(r.Context(), start, weeks)
	if err != nil {
		httpx.WriteErr(w, http.StatusBadGateway, "cold query failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"cohort_start": start,
		"cohorts":      cohorts,
	})
}

// dateRange reads from/to query params as YYYY-MM-DD, defaulting to the
// trailing 30 days.
func dateRange(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	now := time.Now().UTC()
	if to == "" {
		to = now.Format("2006-01-02")
	}
	if from == "" {
		from = now.AddDate(0, 0, -30).Format("2006-01-02")
	}
	for _, s := range []string{from, to} {
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "", "", errors.New("invalid date, want YYYY-MM-DD")
		}
	}
	return from, to, nil
}
