package booking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"racestay-engine/pkg/middleware"
)

func newTestRouter(t *testing.T, f *fixture) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.Error())
	registerRoutes(router, f.svc)
	return router
}

func do(router *gin.Engine, method, path, actor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCompleteEndpointRequiresActor(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	router := newTestRouter(t, f)

	rec := do(router, http.MethodPost, "/v1/bookings/bk-1/complete", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCompleteEndpointEnforcesCheckoutGate(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	router := newTestRouter(t, f)
	ctx := context.Background()

	bk := f.request(t, 10, 2)
	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)

	rec := do(router, http.MethodPost, "/v1/bookings/"+bk.ID+"/complete", "host-1", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// A host cannot smuggle the override through the request body.
	rec = do(router, http.MethodPost, "/v1/bookings/"+bk.ID+"/complete", "host-1", `{"force":true}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	got, err := f.svc.Get(ctx, bk.ID)
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, got.Status)
}

func TestAdminCompleteEndpointOverridesCheckoutGate(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	f.fund(t, "guest-1", 100)
	router := newTestRouter(t, f)
	ctx := context.Background()

	bk := f.request(t, 10, 2)
	_, err := f.svc.RespondToBooking(ctx, bk.ID, "host-1", DecisionAccept, "")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBooking(ctx, bk.ID, "host-1")
	require.NoError(t, err)

	rec := do(router, http.MethodPost, "/v1/admin/bookings/"+bk.ID+"/complete", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := f.svc.Get(ctx, bk.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, int64(80), f.balance(t, "host-1"))
}

func TestAdminCompleteEndpointUnknownBooking(t *testing.T) {
	f := newFixture(t, defaultPolicy())
	router := newTestRouter(t, f)

	rec := do(router, http.MethodPost, "/v1/admin/bookings/missing/complete", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}
