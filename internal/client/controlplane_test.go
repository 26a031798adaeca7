package client

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partvault/partvault/internal/client/middleware"
	"github.com/partvault/partvault/internal/client/vaultmgr"
)

func newTestRoutes(token string) http.Handler {
	return SetupRoutes(vaultmgr.NewManager(), &RouteConfig{
		ClientURL: "http://localhost:7938",
		Auth:      middleware.TokenAuthConfig{Token: token},
	})
}

func TestIndexReturnsVersion(t *testing.T) {
	routes := newTestRoutes("")

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "PartVault")
}

func TestTokenAuthGuardsV1(t *testing.T) {
	routes := newTestRoutes("secret")

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	routes.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusUnprovisioned(t *testing.T) {
	routes := newTestRoutes("")

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hasConfig":false`)
	assert.Contains(t, w.Body.String(), "UNPROVISIONED")
}

func TestVaultEndpointsWithoutVault(t *testing.T) {
	routes := newTestRoutes("")

	paths := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/v1/sync/status", ""},
		{http.MethodPost, "/v1/sync/now", ""},
		{http.MethodPost, "/v1/checkout", `{"path":"a.sldprt"}`},
		{http.MethodGet, "/v1/staged", ""},
		{http.MethodPost, "/v1/vault/verify", ""},
	}

	for _, tc := range paths {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, w.Body.String(), "ERR_VAULT_NOT_READY")
	}
}

func TestForceReleaseRequiresConfirmCount(t *testing.T) {
	routes := newTestRoutes("")

	body := `{"paths":["a.sldprt","b.sldprt"],"confirm":1}`
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout/force-release", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	routes.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_CONFIRM_REQUIRED")
}

func TestUnknownRoute(t *testing.T) {
	routes := newTestRoutes("")

	w := httptest.NewRecorder()
	routes.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
