package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voyagr/internal/config"
	"voyagr/internal/database"
	"voyagr/internal/models"
	"voyagr/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiRepo struct {
	bookings map[string]*models.Booking
}

func (r *apiRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	if b, ok := r.bookings[id]; ok {
		return b, nil
	}
	return nil, database.ErrBookingNotFound
}
func (r *apiRepo) CreateBooking(ctx context.Context, b *models.Booking) error { return nil }
func (r *apiRepo) SaveBooking(ctx context.Context, b *models.Booking) error   { return nil }
func (r *apiRepo) ListActiveBookings(ctx context.Context) ([]*models.Booking, error) {
	return nil, nil
}
func (r *apiRepo) ListBookings(ctx context.Context) ([]*models.Booking, error) { return nil, nil }
func (r *apiRepo) PurgeStatusHistory(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
func (r *apiRepo) ScheduleTransition(ctx context.Context, st *models.ScheduledTransition) error {
	return nil
}
func (r *apiRepo) GetDueTransitions(ctx context.Context, now time.Time, limit int) ([]models.ScheduledTransition, error) {
	return nil, nil
}
func (r *apiRepo) ResolveTransition(ctx context.Context, id int64, status string) error { return nil }
func (r *apiRepo) CreateSyncTask(ctx context.Context, task *models.SyncTask) error      { return nil }
func (r *apiRepo) GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error) {
	return nil, nil
}
func (r *apiRepo) UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, next *time.Time) error {
	return nil
}

type apiEngine struct {
	repo *apiRepo
	err  error
}

func (e *apiEngine) UpdateBookingStatus(ctx context.Context, bookingID, newStatus, reason string, metadata map[string]string) (*models.Booking, error) {
	if e.err != nil {
		return nil, e.err
	}
	b, err := e.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	b.Status = newStatus
	return b, nil
}

func (e *apiEngine) Report(ctx context.Context) (*models.StatusReport, error) {
	return &models.StatusReport{
		GeneratedAt: time.Now(),
		Total:       1,
		Counts:      map[string]int{models.StatusConfirmed: 1},
		Transitions: map[string]models.TransitionStats{},
	}, nil
}

func newTestServer(t *testing.T, cfg config.APIConfig, engineErr error) (*HTTPServer, *apiRepo) {
	t.Helper()
	repo := &apiRepo{bookings: map[string]*models.Booking{
		"bk-1": {ID: "bk-1", CustomerID: "cust-1", Status: models.StatusConfirmed},
	}}
	logger := zerolog.New(io.Discard)
	engine := &apiEngine{repo: repo, err: engineErr}
	return NewHTTPServer(cfg, repo, nil, engine, nil, t.TempDir(), &logger), repo
}

func TestGetBooking(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{Port: 0}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "bk-1", got.ID)
	assert.Equal(t, models.StatusConfirmed, got.Status)
}

func TestGetBookingNotFound(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/ghost", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostStatusUpdate(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{}, nil)

	body := strings.NewReader(`{"status":"upcoming","reason":"window reached"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/status", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.StatusUpcoming, got.Status)
}

func TestPostStatusUpdateConflict(t *testing.T) {
	invalid := &service.InvalidTransitionError{BookingID: "bk-1", From: "completed", To: "pending"}
	srv, _ := newTestServer(t, config.APIConfig{}, invalid)

	body := strings.NewReader(`{"status":"pending"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/status", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "completed -> pending")
}

func TestPostStatusUpdateValidation(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty status", `{"reason":"x"}`},
		{"bad json", `{`},
		{"unknown field", `{"status":"upcoming","extra":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/status", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetReport(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/report", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total"`)
}

func TestGetStatuses(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/statuses", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "partially_refunded")
}

func TestAuth(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: "secret-key", Name: "ops", Permissions: []string{"read:bookings"}},
			},
		},
	}
	srv, _ := newTestServer(t, cfg, nil)

	t.Run("missing key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil)
		req.Header.Set("x-api-key", "nope")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil)
		req.Header.Set("x-api-key", "secret-key")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("permission denied", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/bk-1/status", strings.NewReader(`{"status":"upcoming"}`))
		req.Header.Set("x-api-key", "secret-key")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("healthz stays open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1}}
	srv, _ := newTestServer(t, cfg, nil)

	first := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/bk-1", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
