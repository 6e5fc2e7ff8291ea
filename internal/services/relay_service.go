package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MasterDev782/Hosting/internal/infrastructure"
	"github.com/MasterDev782/Hosting/internal/relay"
	v1 "github.com/MasterDev782/Hosting/pkg/contracts/api/v1"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
	"github.com/MasterDev782/Hosting/pkg/contracts/events"
)

// RelayForwarder sends one operation downstream. *relay.Gateway is the
// production implementation.
type RelayForwarder interface {
	Forward(ctx context.Context, op domain.RelayOperation, params any) (*relay.Response, error)
}

// EventBroadcaster pushes job lifecycle events to connected observers.
// *websocket.Hub is the production implementation.
type EventBroadcaster interface {
	BroadcastJobEvent(ctx context.Context, event string, job *domain.RelayJob, count int)
}

// RelayService forwards gated operations downstream and keeps the job
// ledger and event stream in sync with the answers.
type RelayService struct {
	gateway RelayForwarder
	tracker *relay.Tracker
	hub     EventBroadcaster
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewRelayService wires the relay flow together. hub and metrics may
// be nil in tests.
func NewRelayService(
	gateway RelayForwarder,
	tracker *relay.Tracker,
	hub EventBroadcaster,
	metrics *infrastructure.BusinessMetrics,
	logger *slog.Logger,
) *RelayService {
	s := &RelayService{
		gateway: gateway,
		tracker: tracker,
		hub:     hub,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "relay")),
	}
	tracker.SetExpiryCallback(s.onJobExpired)
	return s
}

// Start forwards a start operation. On a successful downstream answer
// the job is recorded and its started event broadcast.
func (s *RelayService) Start(ctx context.Context, sess domain.Session, params v1.RelayStartParams) (*relay.Response, error) {
	resp, err := s.forward(ctx, domain.RelayStart, params)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := domain.RelayJob{
		ID:         downstreamJobID(resp.Body),
		Host:       params.Host,
		Port:       params.Port,
		Method:     params.Method,
		Duration:   params.Duration,
		StartedAt:  now,
		ExpiresAt:  now.Add(time.Duration(params.Duration) * time.Second),
		LicenseKey: sess.LicenseKey,
	}
	s.tracker.Add(ctx, job)
	if s.metrics != nil {
		infrastructure.RecordActiveJobChange(ctx, s.metrics, 1)
	}
	if s.hub != nil {
		s.hub.BroadcastJobEvent(ctx, events.JobEventStarted, &job, 0)
	}

	return resp, nil
}

// Stop forwards a stop operation and drops the job from the ledger.
func (s *RelayService) Stop(ctx context.Context, sess domain.Session, params v1.RelayStopParams) (*relay.Response, error) {
	resp, err := s.forward(ctx, domain.RelayStop, params)
	if err != nil {
		return nil, err
	}

	if s.tracker.Remove(ctx, params.JobID) {
		if s.metrics != nil {
			infrastructure.RecordActiveJobChange(ctx, s.metrics, -1)
		}
		if s.hub != nil {
			s.hub.BroadcastJobEvent(ctx, events.JobEventStopped, &domain.RelayJob{ID: params.JobID}, 0)
		}
	}
	return resp, nil
}

// StopAll forwards a stopall operation and clears the ledger.
func (s *RelayService) StopAll(ctx context.Context, sess domain.Session) (*relay.Response, error) {
	resp, err := s.forward(ctx, domain.RelayStopAll, struct{}{})
	if err != nil {
		return nil, err
	}

	cleared := s.tracker.Clear(ctx)
	if len(cleared) > 0 {
		if s.metrics != nil {
			infrastructure.RecordActiveJobChange(ctx, s.metrics, -int64(len(cleared)))
		}
		if s.hub != nil {
			s.hub.BroadcastJobEvent(ctx, events.JobEventCleared, nil, len(cleared))
		}
	}
	return resp, nil
}

// Status forwards a status operation. The answer is relayed untouched.
func (s *RelayService) Status(ctx context.Context, sess domain.Session) (*relay.Response, error) {
	return s.forward(ctx, domain.RelayStatus, struct{}{})
}

// Jobs lists the tracked jobs.
func (s *RelayService) Jobs(ctx context.Context) *v1.JobsResponse {
	jobs := s.tracker.List(ctx)
	return &v1.JobsResponse{Jobs: jobs, Count: len(jobs)}
}

// ActiveJobs returns the tracked job count.
func (s *RelayService) ActiveJobs() int {
	return s.tracker.Count()
}

func (s *RelayService) forward(ctx context.Context, op domain.RelayOperation, params any) (*relay.Response, error) {
	start := time.Now()
	resp, err := s.gateway.Forward(ctx, op, params)
	if s.metrics != nil {
		infrastructure.RecordRelayMetrics(ctx, s.metrics, string(op), time.Since(start), err == nil, err)
	}
	return resp, err
}

// onJobExpired runs from the tracker sweeper when a job's duration
// elapses without an explicit stop.
func (s *RelayService) onJobExpired(job domain.RelayJob) {
	ctx := context.Background()
	if s.metrics != nil {
		infrastructure.RecordActiveJobChange(ctx, s.metrics, -1)
	}
	if s.hub != nil {
		s.hub.BroadcastJobEvent(ctx, events.JobEventExpired, &job, 0)
	}
}

// downstreamJobID pulls the job identifier out of a start answer,
// falling back to a locally generated id when the downstream payload
// does not carry one.
func downstreamJobID(body []byte) string {
	var answer struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &answer); err == nil && answer.JobID != "" {
		return answer.JobID
	}
	return uuid.NewString()
}
