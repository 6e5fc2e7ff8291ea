package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestSessionRequestOpensPin(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.router, "/session/request", v1.SessionRequest{HardwareID: "HW-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp v1.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 300, resp.ExpiresIn)
}

func TestSessionRequestRejectsMissingHardwareID(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.router, "/session/request", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionRequestRejectsMalformedBody(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/session/request", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLogoutConsumesToken(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.issueSession(t, "FAKE-KEY-0001", "192.0.2.1")

	rec := postJSON(t, f.router, "/session/logout", v1.LogoutRequest{SessionToken: sess.Token})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp v1.LogoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)

	// The token is gone; a second logout reports it unknown.
	rec = postJSON(t, f.router, "/session/logout", v1.LogoutRequest{SessionToken: sess.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "/errors/session-not-found", problem["type"])
}

func TestSessionLogoutAcceptsBearerToken(t *testing.T) {
	f := newHandlerFixture(t)
	sess := f.issueSession(t, "FAKE-KEY-0001", "192.0.2.1")

	req := httptest.NewRequest(http.MethodPost, "/session/logout", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	_, outcome := f.registry.Resolve(req.Context(), sess.Token, "192.0.2.1")
	assert.Equal(t, domain.ResolveNotFound, outcome)
}

func TestSessionLogoutWithoutToken(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/session/logout", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "/errors/session-token-missing", problem["type"])
}
