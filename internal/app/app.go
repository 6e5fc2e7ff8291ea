package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/MasterDev782/Hosting/internal/config"
	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/internal/infrastructure"
	"github.com/MasterDev782/Hosting/internal/license"
	customMiddleware "github.com/MasterDev782/Hosting/internal/middleware"
	"github.com/MasterDev782/Hosting/internal/relay"
	"github.com/MasterDev782/Hosting/internal/security"
	"github.com/MasterDev782/Hosting/internal/services"
	"github.com/MasterDev782/Hosting/internal/session"
	handlers "github.com/MasterDev782/Hosting/internal/transport/http"
	ws "github.com/MasterDev782/Hosting/internal/websocket"
	"github.com/MasterDev782/Hosting/pkg/contracts"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// BuildTime is set at compile time via -ldflags.
var BuildTime = time.Now().UTC().Format(time.RFC3339)

// Application holds the assembled service.
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router chi.Router
	Server *http.Server

	OTelProviders *infrastructure.OTelProviders

	Store    *license.FileStore
	Registry *session.Registry
	Pins     *session.Pins
	Limiter  *license.AttemptLimiter
	Tracker  *relay.Tracker
	Hub      *ws.Hub

	LicenseService *services.LicenseService
	RelayService   *services.RelayService
	HealthService  *services.HealthService

	upgrader   websocket.Upgrader
	guard      *customMiddleware.SessionGuard
	metrics    *infrastructure.BusinessMetrics
	gatewayKey string
}

// New loads configuration from the environment and assembles the
// application.
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig assembles the application over an already validated
// configuration.
func NewWithConfig(cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
	}

	if err := a.initializeComponents(); err != nil {
		return nil, err
	}
	a.initializeServices()
	a.setupRouter()
	a.createServer()

	return a, nil
}

// initializeComponents builds the domain layer: store, registry, pins,
// limiter, gateway, tracker, hub.
func (a *Application) initializeComponents() error {
	cfg := a.Config

	serviceKey, err := resolveServiceKey(cfg.Relay)
	if err != nil {
		return fmt.Errorf("failed to resolve relay service key: %w", err)
	}

	store, err := license.NewFileStore(cfg.Licenses.StorePath)
	if err != nil {
		return fmt.Errorf("failed to open license store: %w", err)
	}
	a.Store = store

	a.Registry = session.NewRegistry(session.RegistryOptions{
		Lifetime:           cfg.Session.Lifetime,
		CleanupInterval:    cfg.Session.CleanupInterval,
		TombstoneRetention: cfg.Session.TombstoneRetention,
		SinglePerLicense:   cfg.Session.SingleSessionPerLicense,
	}, a.Logger)

	a.Pins = session.NewPins(cfg.Session.PinTTL, cfg.Session.CleanupInterval, a.Logger)

	a.Limiter = license.NewAttemptLimiter(
		cfg.Security.MaxValidationAttempts,
		cfg.Security.AttemptWindow,
		cfg.Security.BlockDuration,
		a.Logger,
	)

	a.Tracker = relay.NewTracker(cfg.Session.CleanupInterval, a.Logger)

	a.Hub = ws.NewHub(a.Logger)
	a.Hub.Start()

	a.guard = customMiddleware.NewSessionGuard(a.Registry, a.Logger)

	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin:     a.checkOrigin,
	}

	// The key lives here only until the gateway takes it. It is never
	// logged.
	a.gatewayKey = serviceKey
	return nil
}

// initializeServices builds the service layer over the components.
func (a *Application) initializeServices() {
	metrics, err := infrastructure.CreateBusinessMetrics(a.OTelProviders.Meter)
	if err != nil {
		a.Logger.Error("failed to create business metrics", slog.String("error", err.Error()))
	}
	a.metrics = metrics

	if metrics != nil {
		ctx := context.Background()
		a.Registry.SetMetricsHooks(
			func(delta int64) { metrics.SessionsActive.Add(ctx, delta) },
			func(count int64) { metrics.SessionsPruned.Add(ctx, count) },
		)
	}

	authority := license.NewHTTPAuthority(a.Config.Authority, a.Logger)
	binder := license.NewBinder(a.Store, authority, a.Logger)
	gateway := relay.NewGateway(a.Config.Relay, a.gatewayKey, a.Logger)
	a.gatewayKey = ""

	a.LicenseService = services.NewLicenseService(binder, a.Store, a.Registry, a.Pins, a.Limiter, metrics, a.Logger)
	a.RelayService = services.NewRelayService(gateway, a.Tracker, a.Hub, metrics, a.Logger)
	a.HealthService = services.NewHealthService(BuildTime, a.LicenseService, a.RelayService, a.Hub, a.Logger)
}

// setupRouter wires the HTTP surface. The websocket route stays
// outside the middleware group; response-wrapping middleware breaks
// the upgrade.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create telemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		if a.metrics != nil {
			r.Use(customMiddleware.BusinessMetricsMiddleware(a.metrics))
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
				AllowedOrigins: a.Config.Security.AllowedOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			}))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		errorHandler := apperrors.NewErrorHandler(a.Logger)
		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)

		validate := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)

		sessionHandler := handlers.NewSessionHandler(a.LicenseService, validate, a.Logger)
		licenseHandler := handlers.NewLicenseHandler(a.LicenseService, validate, a.Logger)
		relayHandler := handlers.NewRelayHandler(a.RelayService, a.guard, validate, a.Logger)
		healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)

		r.Mount("/session", sessionHandler.Routes())
		r.Post("/validate", licenseHandler.Validate)
		r.Mount("/relay", relayHandler.Routes())

		r.Route("/api", func(r chi.Router) {
			r.Mount("/license", licenseHandler.Routes())
			r.Get("/jobs", relayHandler.JobsRoute())
			r.Mount("/", healthHandler.Routes())
		})
	})

	// Prometheus exposition outside the group; scrapers need no tracing.
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start launches the hub and the HTTP server. A server failure cancels
// the supplied context.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting application",
		slog.String("service", infrastructure.ServiceName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level),
	)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)),
	)
	return nil
}

// Stop drains the server and stops the background components.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.Hub.Stop()
	a.Tracker.Stop()
	a.Registry.Stop()
	a.Pins.Stop()
	a.Limiter.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down telemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run starts the application and blocks until an interrupt arrives or
// the server fails.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}

// handleWebSocket gates the upgrade on a live session token from the
// query string, then hands the connection to the hub.
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get("token")
	if token == "" {
		render.Render(w, r, apperrors.MapError(apperrors.ErrSessionTokenMissing, r.URL.Path, infrastructure.GetTraceID(ctx)))
		return
	}

	address := customMiddleware.ClientAddress(r)
	sess, outcome := a.Registry.Resolve(ctx, token, address)
	if outcome != domain.ResolveValid {
		a.Logger.WarnContext(ctx, "websocket upgrade rejected",
			slog.String("outcome", string(outcome)),
			slog.String("token_prefix", session.TokenPrefix(token)),
			slog.String("address", address),
		)
		render.Render(w, r, apperrors.MapError(customMiddleware.OutcomeError(outcome), r.URL.Path, infrastructure.GetTraceID(ctx)))
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the handshake failure.
		a.Logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("error", err.Error()),
			slog.String("remote_addr", r.RemoteAddr),
		)
		return
	}

	a.Logger.InfoContext(ctx, "websocket client connected",
		slog.String("license_key", license.MaskLicenseKey(sess.LicenseKey)),
		slog.String("remote_addr", r.RemoteAddr),
	)
	ws.ServeWS(a.Hub, conn, a.Logger)
}

// checkOrigin admits requests without an Origin header (native
// clients) and browser requests from the configured origins.
func (a *Application) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.Config.Security.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// resolveServiceKey returns the downstream service key, opening the
// sealed key file when the key is not inlined in the configuration.
func resolveServiceKey(cfg config.RelayConfig) (string, error) {
	if cfg.ServiceKey != "" {
		return cfg.ServiceKey, nil
	}
	key, err := security.OpenKeyFile(cfg.ServiceKeyFile, []byte(cfg.Passphrase))
	if err != nil {
		return "", err
	}
	return string(key), nil
}
