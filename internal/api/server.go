package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oakline/roomgate-core/internal/access"
	"github.com/oakline/roomgate-core/internal/audit"
	"github.com/oakline/roomgate-core/internal/booking"
	"github.com/oakline/roomgate-core/internal/infrastructure/config"
	"github.com/oakline/roomgate-core/internal/infrastructure/database"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/infrastructure/mqtt"
	"github.com/oakline/roomgate-core/internal/poweroff"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Validator *access.Validator
	Scheduler *poweroff.Scheduler
	Audits    audit.Repository
	Bookings  booking.Repository
	MQTT      *mqtt.Client // optional: reported in /metrics only
	DB        *database.DB // optional: reported in /metrics only
	Version   string
}

// Server is the HTTP management API server.
//
// It is created with New() and started with Start(); all methods are
// safe for concurrent use.
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	validator *access.Validator
	scheduler *poweroff.Scheduler
	audits    audit.Repository
	bookings  booking.Repository
	mqtt      *mqtt.Client
	db        *database.DB
	version   string
	startedAt time.Time
	server    *http.Server
}

// New creates an API server with the given dependencies.
// The server does not listen until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Validator == nil {
		return nil, fmt.Errorf("access validator is required")
	}
	if deps.Scheduler == nil {
		return nil, fmt.Errorf("power-off scheduler is required")
	}
	if deps.Audits == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	if deps.Bookings == nil {
		return nil, fmt.Errorf("booking repository is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		validator: deps.Validator,
		scheduler: deps.Scheduler,
		audits:    deps.Audits,
		bookings:  deps.Bookings,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		version:   deps.Version,
	}, nil
}

// Start launches the HTTP listener in a background goroutine.
func (s *Server) Start(_ context.Context) error {
	s.startedAt = time.Now()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to the
// shutdown timeout for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
