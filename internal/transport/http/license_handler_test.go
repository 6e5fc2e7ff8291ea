package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

func TestValidateIssuesSessionToken(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.router, "/session/request", v1.SessionRequest{HardwareID: "HW-01"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, f.router, "/validate", v1.ValidateRequest{
		LicenseKey: "FAKE-KEY-0001",
		HardwareID: "HW-01",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp v1.ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.SessionToken)
	assert.Equal(t, 7200, resp.ExpiresIn)
}

func TestValidateWithoutPin(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.router, "/validate", v1.ValidateRequest{
		LicenseKey: "FAKE-KEY-0001",
		HardwareID: "HW-01",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "/errors/no-active-session", problem["type"])
}

func TestValidateSurfacesSpecificRejection(t *testing.T) {
	cases := []struct {
		name        string
		failWith    error
		wantStatus  int
		wantProblem string
	}{
		{"unknown license", apperrors.ErrLicenseNotFound, http.StatusNotFound, "/errors/license-not-found"},
		{"inactive license", apperrors.ErrLicenseInactive, http.StatusForbidden, "/errors/license-inactive"},
		{"hardware mismatch", apperrors.ErrHardwareMismatch, http.StatusConflict, "/errors/hardware-mismatch"},
		{"address mismatch", apperrors.ErrAddressMismatch, http.StatusConflict, "/errors/address-mismatch"},
		{"authority down", apperrors.ErrAuthorityUnreachable, http.StatusBadGateway, "/errors/authority-unreachable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newHandlerFixture(t)
			f.validator.failWith = tc.failWith

			rec := postJSON(t, f.router, "/session/request", v1.SessionRequest{HardwareID: "HW-01"})
			require.Equal(t, http.StatusOK, rec.Code)

			rec = postJSON(t, f.router, "/validate", v1.ValidateRequest{
				LicenseKey: "FAKE-KEY-0001",
				HardwareID: "HW-01",
			})
			assert.Equal(t, tc.wantStatus, rec.Code)
			problem := decodeProblem(t, rec)
			assert.Equal(t, tc.wantProblem, problem["type"])
		})
	}
}

func TestValidateRejectsShortLicenseKey(t *testing.T) {
	f := newHandlerFixture(t)

	rec := postJSON(t, f.router, "/validate", v1.ValidateRequest{
		LicenseKey: "short",
		HardwareID: "HW-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLicenseStatusEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	f.bindings.status = domain.BindingStatus{
		LicenseKey: "FAKE****0001",
		Status:     domain.LicenseStatusActive,
		Bound:      true,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/license/status?license_key=FAKE-KEY-0001", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status domain.BindingStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "FAKE****0001", status.LicenseKey)
	assert.True(t, status.Bound)
}

func TestLicenseStatusRequiresKey(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/license/status", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLicenseStatusUnknownKey(t *testing.T) {
	f := newHandlerFixture(t)
	f.bindings.err = apperrors.ErrLicenseNotFound

	req := httptest.NewRequest(http.MethodGet, "/api/license/status?license_key=FAKE-KEY-9999", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
