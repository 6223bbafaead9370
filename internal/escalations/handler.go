package escalations

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Phoneboothmumbai/heycharu-sub000/pkg/logging"
)

// Handler exposes the escalation queue over HTTP for the owner dashboard
// and the follow-up worker.
type Handler struct {
	repo    Repository
	tracker *Tracker
	clock   func() time.Time
	logger  *logging.Logger
}

// NewHandler wires the escalation endpoints.
func NewHandler(repo Repository, tracker *Tracker, logger *logging.Logger) *Handler {
	if repo == nil {
		panic("escalations: repository required")
	}
	if tracker == nil {
		panic("escalations: tracker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:    repo,
		tracker: tracker,
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  logger,
	}
}

type pendingItem struct {
	Escalation
	MinutesRemaining int  `json:"minutes_remaining"`
	Overdue          bool `json:"overdue"`
}

// PendingSLA returns open escalations with their time budget.
func (h *Handler) PendingSLA(w http.ResponseWriter, r *http.Request) {
	pending, err := h.repo.Pending(r.Context())
	if err != nil {
		h.logger.Error("list pending escalations failed", "error", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}

	now := h.clock()
	items := make([]pendingItem, 0, len(pending))
	for _, esc := range pending {
		items = append(items, pendingItem{
			Escalation:       esc,
			MinutesRemaining: int(esc.SLADeadline.Sub(now).Minutes()),
			Overdue:          now.After(esc.SLADeadline),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"checked_at": now,
		"count":      len(items),
		"items":      items,
	})
}

// MarkReviewed parks an open escalation as seen by the owner without
// resolving it. It stays on the pending queue and keeps its SLA clock.
func (h *Handler) MarkReviewed(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	esc, err := h.repo.FindPendingByCode(r.Context(), code)
	if errors.Is(err, ErrEscalationNotFound) {
		http.Error(w, "unknown escalation code", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("escalation lookup failed", "code", code, "error", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if err := h.repo.SetStatus(r.Context(), esc.ID, StatusReviewed); err != nil {
		h.logger.Error("mark reviewed failed", "code", esc.Code, "error", err)
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"code": esc.Code, "status": StatusReviewed})
}

// CheckSLA runs one SLA sweep and returns the report.
func (h *Handler) CheckSLA(w http.ResponseWriter, r *http.Request) {
	report, err := h.tracker.CheckSLA(r.Context())
	if err != nil {
		h.logger.Error("sla sweep failed", "error", err)
		http.Error(w, "sla sweep failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
