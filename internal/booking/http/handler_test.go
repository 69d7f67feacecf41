package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/W-VNT/conciergeos-sub004/internal/booking"
	"github.com/W-VNT/conciergeos-sub004/internal/grid"
)

func newTestRouter(t *testing.T) (*gin.Engine, booking.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := booking.NewService(booking.NewMemoryRepository())
	handler := NewHandler(store, grid.NewService(store), time.UTC)

	passthrough := func(c *gin.Context) { c.Next() }

	r := gin.New()
	v1 := r.Group("/v1")
	RegisterRoutes(v1, handler, passthrough, passthrough)
	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndTimelineEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/bookings", CreateBookingBody{
		ResourceID: "r1",
		StartDate:  "2026-04-01",
		EndDate:    "2026-04-03",
		Summary:    "walk-in guest",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created BookingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "local", created.Origin)
	assert.Equal(t, "confirmed", created.Status)

	// Overlapping create is rejected with the collider named.
	w = doJSON(t, r, http.MethodPost, "/v1/bookings", CreateBookingBody{
		ResourceID: "r1",
		StartDate:  "2026-04-02",
		EndDate:    "2026-04-04",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	var rejected struct {
		Conflicting BookingResponse `json:"conflicting"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.Equal(t, created.ID, rejected.Conflicting.ID)

	// Bad range is a 400.
	w = doJSON(t, r, http.MethodPost, "/v1/bookings", CreateBookingBody{
		ResourceID: "r1",
		StartDate:  "2026-04-10",
		EndDate:    "2026-04-10",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, "/v1/resources/r1/timeline?from=2026-04-01&to=2026-04-30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []BookingResponse `json:"items"`
		Total int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ID, page.Items[0].ID)
}

func TestMoveEndpoint(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := context.Background()

	b, err := store.CreateLocal(ctx, booking.CreateLocalRequest{
		ResourceID: "r1",
		StartDate:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	t.Run("accepted", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/v1/bookings/"+b.ID+"/move", MoveBookingBody{
			ResourceID:      "r2",
			StartDate:       "2026-04-10",
			EndDate:         "2026-04-12",
			ExpectedVersion: b.Version,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res MoveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.True(t, res.Accepted)
		assert.Equal(t, "r2", res.Booking.ResourceID)
	})

	t.Run("stale version is a conflict carrying current state", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/v1/bookings/"+b.ID+"/move", MoveBookingBody{
			ResourceID:      "r3",
			StartDate:       "2026-04-20",
			EndDate:         "2026-04-22",
			ExpectedVersion: b.Version, // already bumped by the move above
		})
		require.Equal(t, http.StatusConflict, w.Code)

		var res MoveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.False(t, res.Accepted)
		assert.Equal(t, string(grid.ReasonStaleVersion), res.Reason)
		require.NotNil(t, res.Booking)
		assert.Equal(t, "r2", res.Booking.ResourceID, "response reflects the state that won")
	})

	t.Run("overlap is a conflict naming the collider", func(t *testing.T) {
		occupied, err := store.CreateLocal(ctx, booking.CreateLocalRequest{
			ResourceID: "r4",
			StartDate:  time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
			EndDate:    time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		current, err := store.Get(ctx, b.ID)
		require.NoError(t, err)

		w := doJSON(t, r, http.MethodPost, "/v1/bookings/"+b.ID+"/move", MoveBookingBody{
			ResourceID:      "r4",
			StartDate:       "2026-04-11",
			EndDate:         "2026-04-13",
			ExpectedVersion: current.Version,
		})
		require.Equal(t, http.StatusConflict, w.Code)

		var res MoveResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, string(grid.ReasonOverlap), res.Reason)
		require.NotNil(t, res.Conflicting)
		assert.Equal(t, occupied.ID, res.Conflicting.ID)
	})

	t.Run("unknown booking is a 404", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/v1/bookings/nope/move", MoveBookingBody{
			ResourceID:      "r1",
			StartDate:       "2026-04-01",
			EndDate:         "2026-04-02",
			ExpectedVersion: 1,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCancelEndpoint(t *testing.T) {
	r, store := newTestRouter(t)

	b, err := store.CreateLocal(context.Background(), booking.CreateLocalRequest{
		ResourceID: "r1",
		StartDate:  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	w := doJSON(t, r, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", CancelBookingBody{
		ExpectedVersion: b.Version + 1,
	})
	assert.Equal(t, http.StatusConflict, w.Code, "stale version")

	w = doJSON(t, r, http.MethodPost, "/v1/bookings/"+b.ID+"/cancel", CancelBookingBody{
		ExpectedVersion: b.Version,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
}
