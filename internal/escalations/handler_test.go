package escalations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newHandlerFixture(t *testing.T) (*Handler, *MemoryRepository, http.Handler) {
	t.Helper()
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	repo := NewMemoryRepository()
	tracker := NewTracker(repo, nil, nil, 30*time.Minute, 2, nil).
		WithClock(func() time.Time { return now })
	h := NewHandler(repo, tracker, nil)

	r := chi.NewRouter()
	r.Get("/escalations/pending-sla", h.PendingSLA)
	r.Post("/escalations/{code}/reviewed", h.MarkReviewed)
	return h, repo, r
}

func TestMarkReviewedParksEscalation(t *testing.T) {
	_, repo, srv := newHandlerFixture(t)
	require.NoError(t, repo.Create(context.Background(), &Escalation{
		CustomerPhone:   "919969528677",
		CustomerMessage: "Do you deliver to Andheri?",
		Reason:          "delivery question",
		SLADeadline:     time.Date(2025, 6, 10, 12, 30, 0, 0, time.UTC),
	}))

	req := httptest.NewRequest(http.MethodPost, "/escalations/ESC01/reviewed", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), StatusReviewed)

	// Reviewed is still open: it stays on the pending queue and the
	// owner can still answer it by code.
	esc, err := repo.FindPendingByCode(context.Background(), "ESC01")
	require.NoError(t, err)
	require.Equal(t, StatusReviewed, esc.Status)

	count, err := repo.CountPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMarkReviewedUnknownCodeIs404(t *testing.T) {
	_, _, srv := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/escalations/ESC42/reviewed", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
