package license

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterDev782/Hosting/internal/config"
	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/shared/testutil"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return logger
}

func newTestAuthority(t *testing.T, handler http.HandlerFunc) *HTTPAuthority {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPAuthority(config.AuthorityConfig{
		URL:       srv.URL,
		Token:     "authority-token",
		ProductID: 12345,
		Timeout:   2 * time.Second,
	}, testLogger(t))
}

func TestHTTPAuthorityConfirm(t *testing.T) {
	var gotForm map[string]string
	a := newTestAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = map[string]string{
			"token":       r.PostFormValue("token"),
			"ProductId":   r.PostFormValue("ProductId"),
			"Key":         r.PostFormValue("Key"),
			"MachineCode": r.PostFormValue("MachineCode"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":0,"message":""}`))
	})

	err := a.Confirm(context.Background(), "FAKE-KEY-0001", "HW-01")
	require.NoError(t, err)

	assert.Equal(t, "authority-token", gotForm["token"])
	assert.Equal(t, "12345", gotForm["ProductId"])
	assert.Equal(t, "FAKE-KEY-0001", gotForm["Key"])
	assert.Equal(t, "HW-01", gotForm["MachineCode"])
}

func TestHTTPAuthorityReject(t *testing.T) {
	a := newTestAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":2,"message":"key is blocked"}`))
	})

	err := a.Confirm(context.Background(), "FAKE-KEY-0001", "HW-01")
	require.Error(t, err)

	var authErr *apperrors.AuthorityError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, 2, authErr.Code)
	assert.Equal(t, "key is blocked", authErr.Message)
	assert.NotErrorIs(t, err, apperrors.ErrAuthorityUnreachable)
}

func TestHTTPAuthorityErrorStatus(t *testing.T) {
	a := newTestAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	})

	err := a.Confirm(context.Background(), "FAKE-KEY-0001", "HW-01")
	assert.ErrorIs(t, err, apperrors.ErrAuthorityUnreachable)
}

func TestHTTPAuthorityMalformedResponse(t *testing.T) {
	a := newTestAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	err := a.Confirm(context.Background(), "FAKE-KEY-0001", "HW-01")
	assert.ErrorIs(t, err, apperrors.ErrAuthorityUnreachable)
}

func TestHTTPAuthorityUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // deliberately closed before the call

	a := NewHTTPAuthority(config.AuthorityConfig{
		URL:       srv.URL,
		Token:     "authority-token",
		ProductID: 12345,
		Timeout:   time.Second,
	}, testLogger(t))

	err := a.Confirm(context.Background(), "FAKE-KEY-0001", "HW-01")
	assert.ErrorIs(t, err, apperrors.ErrAuthorityUnreachable)
}

func TestHTTPAuthorityTimeout(t *testing.T) {
	a := newTestAuthority(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	a.client.Timeout = 100 * time.Millisecond

	err := a.Confirm(context.Background(), "FAKE-KEY-0001", "HW-01")
	assert.ErrorIs(t, err, apperrors.ErrAuthorityUnreachable)
}
