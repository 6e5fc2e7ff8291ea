package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/MasterDev782/Hosting/pkg/contracts"
)

// ClientCounter reports connected websocket observers. *websocket.Hub
// is the production implementation.
type ClientCounter interface {
	ClientCount() int
}

// HealthService provides liveness, readiness, and version reporting.
type HealthService struct {
	version   string
	buildTime string
	licenses  *LicenseService
	relays    *RelayService
	clients   ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus is the health check response body.
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// VersionInfo is the version endpoint response body.
type VersionInfo struct {
	Version    string `json:"version"`
	APIVersion string `json:"api_version"`
	BuildTime  string `json:"build_time,omitempty"`
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
}

// NewHealthService creates a health service over the live services.
func NewHealthService(buildTime string, licenses *LicenseService, relays *RelayService, clients ClientCounter, logger *slog.Logger) *HealthService {
	return &HealthService{
		version:   contracts.Version,
		buildTime: buildTime,
		licenses:  licenses,
		relays:    relays,
		clients:   clients,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Health reports overall service health with component detail.
func (s *HealthService) Health(ctx context.Context) *HealthStatus {
	clientCount := 0
	if s.clients != nil {
		clientCount = s.clients.ClientCount()
	}

	return &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   s.version,
		Runtime: map[string]interface{}{
			"uptime_seconds": time.Since(s.startTime).Seconds(),
			"go_version":     runtime.Version(),
			"goroutines":     runtime.NumGoroutine(),
		},
		Services: map[string]interface{}{
			"active_sessions":   s.licenses.ActiveSessions(),
			"active_jobs":       s.relays.ActiveJobs(),
			"websocket_clients": clientCount,
		},
	}
}

// Ready reports whether the service can take traffic. The in-memory
// registries are always ready once constructed, so readiness follows
// liveness here; the split endpoints exist for orchestrators that
// probe them separately.
func (s *HealthService) Ready(ctx context.Context) bool {
	return s.licenses != nil && s.relays != nil
}

// Version reports build information.
func (s *HealthService) Version(ctx context.Context) *VersionInfo {
	return &VersionInfo{
		Version:    s.version,
		APIVersion: contracts.APIVersion,
		BuildTime:  s.buildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
