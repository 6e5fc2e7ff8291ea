package license

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MasterDev782/Hosting/internal/config"
	apperrors "github.com/MasterDev782/Hosting/internal/errors"
)

// Authority confirms a (key, hardware) pair against the external
// licensing service. Implementations must be safe for concurrent use.
type Authority interface {
	Confirm(ctx context.Context, key, hardwareID string) error
}

// HTTPAuthority calls a Cryptolens-compatible activation endpoint. The
// endpoint takes a form POST and answers JSON with a numeric result
// field, zero meaning the activation is accepted.
type HTTPAuthority struct {
	endpoint  string
	token     string
	productID int
	client    *http.Client
	logger    *slog.Logger
}

// NewHTTPAuthority builds an authority client from configuration.
func NewHTTPAuthority(cfg config.AuthorityConfig, logger *slog.Logger) *HTTPAuthority {
	return &HTTPAuthority{
		endpoint:  cfg.URL,
		token:     cfg.Token,
		productID: cfg.ProductID,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With(slog.String("component", "authority")),
	}
}

type authorityResponse struct {
	Result  int    `json:"result"`
	Message string `json:"message"`
}

// Confirm implements Authority. A non-zero result becomes an
// *apperrors.AuthorityError carrying the service's message verbatim;
// transport and decode failures wrap ErrAuthorityUnreachable so the
// caller can distinguish "rejected" from "could not ask".
func (a *HTTPAuthority) Confirm(ctx context.Context, key, hardwareID string) error {
	form := url.Values{
		"token":       {a.token},
		"ProductId":   {strconv.Itoa(a.productID)},
		"Key":         {key},
		"MachineCode": {hardwareID},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrAuthorityUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.ErrorContext(ctx, "authority request failed",
			slog.String("license_hash", HashLicenseKey(key)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", apperrors.ErrAuthorityUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", apperrors.ErrAuthorityUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		a.logger.ErrorContext(ctx, "authority returned error status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("license_hash", HashLicenseKey(key)),
		)
		return fmt.Errorf("%w: status %d", apperrors.ErrAuthorityUnreachable, resp.StatusCode)
	}

	var verdict authorityResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		return fmt.Errorf("%w: parsing response: %v", apperrors.ErrAuthorityUnreachable, err)
	}

	if verdict.Result != 0 {
		a.logger.WarnContext(ctx, "authority rejected activation",
			slog.String("license_hash", HashLicenseKey(key)),
			slog.Int("result", verdict.Result),
			slog.String("message", verdict.Message),
		)
		return &apperrors.AuthorityError{
			Code:    verdict.Result,
			Message: verdict.Message,
		}
	}

	a.logger.InfoContext(ctx, "authority confirmed activation",
		slog.String("license_hash", HashLicenseKey(key)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
