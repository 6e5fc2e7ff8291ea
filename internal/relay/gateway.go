package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MasterDev782/Hosting/internal/config"
	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// serviceKeyHeader carries the downstream credential. It is set by the
// gateway on every outbound call and never read from client input.
const serviceKeyHeader = "X-API-Key"

// Response is one downstream answer, relayed to the client unmodified.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Gateway forwards relay operations to the downstream stress service.
// Safe for concurrent use.
type Gateway struct {
	baseURL    string
	serviceKey string
	timeout    time.Duration
	client     *http.Client
	logger     *slog.Logger
}

// NewGateway builds a gateway from configuration. serviceKey is passed
// separately because it may come from the sealed key file rather than
// the config itself.
func NewGateway(cfg config.RelayConfig, serviceKey string, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: serviceKey,
		timeout:    cfg.Timeout,
		client:     &http.Client{},
		logger:     logger.With(slog.String("component", "relay_gateway")),
	}
}

// Forward sends one operation downstream and returns the answer
// byte-for-byte. params is marshaled as the JSON body; the downstream
// credential travels in a header, so the body reaches the service
// exactly as the caller shaped it.
//
// Timeouts, connection failures, and non-2xx answers all come back as
// *apperrors.RelayError. There are no retries.
func (g *Gateway) Forward(ctx context.Context, op domain.RelayOperation, params any) (*Response, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, &apperrors.RelayError{Operation: string(op), Err: fmt.Errorf("encoding request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	endpoint := g.baseURL + "/" + string(op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &apperrors.RelayError{Operation: string(op), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(serviceKeyHeader, g.serviceKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		// Surface the deadline as such so the error maps to a gateway
		// timeout rather than a generic upstream failure.
		if ctx.Err() == context.DeadlineExceeded {
			err = context.DeadlineExceeded
		}
		g.logger.ErrorContext(ctx, "relay forward failed",
			slog.String("operation", string(op)),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return nil, &apperrors.RelayError{Operation: string(op), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.RelayError{Operation: string(op), Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode/100 != 2 {
		g.logger.WarnContext(ctx, "relay downstream rejected operation",
			slog.String("operation", string(op)),
			slog.Int("status_code", resp.StatusCode),
		)
		return nil, &apperrors.RelayError{
			Operation: string(op),
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("downstream status %d", resp.StatusCode),
		}
	}

	g.logger.InfoContext(ctx, "relay forward completed",
		slog.String("operation", string(op)),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}
