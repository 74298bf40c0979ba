package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-syncsign/internal/audit"
	"github.com/nerrad567/gray-logic-syncsign/internal/bridges/syncsign"
	"github.com/nerrad567/gray-logic-syncsign/internal/configentry"
	"github.com/nerrad567/gray-logic-syncsign/internal/entity"
	"github.com/nerrad567/gray-logic-syncsign/internal/fleet"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-syncsign/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of *syncsign.Bridge the API drives.
type Bridge interface {
	Entities() []entity.Entity
	Entity(id string) (*entity.Entity, error)
	EntryState(entryID string) (fleet.State, bool)
	ValidateCredentials(ctx context.Context, apiKey string) (fleet.Identity, error)
	AddEntry(ctx context.Context, apiKey string) (*configentry.Entry, error)
	RemoveEntry(ctx context.Context, entryID string) error
	UpdateDisplay(ctx context.Context, entityID, contents string) error
	AddStateListener(fn syncsign.StateListener)
	Health() syncsign.HealthMessage
}

// ConnectionChecker reports bus connectivity. *mqtt.Client satisfies it.
type ConnectionChecker interface {
	IsConnected() bool
}

// DBStatser exposes connection pool statistics. *database.DB satisfies it.
type DBStatser interface {
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Bridge   Bridge
	Entries  configentry.Repository
	MQTT     ConnectionChecker // optional
	DB       DBStatser         // optional
	Audit    audit.Repository  // optional
	Version  string
}

// Server is the HTTP API server.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	bridge    Bridge
	entries   configentry.Repository
	mqtt      ConnectionChecker
	db        DBStatser
	auditRepo audit.Repository
	recorder  *audit.Recorder
	auditDone chan struct{}
	version   string
	startTime time.Time
	server    *http.Server
	stream    *StateStream
	cancel    context.CancelFunc
}

// New creates a server. It does not listen until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("config entry store is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("security.jwt.secret is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		entries:   deps.Entries,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		auditRepo: deps.Audit,
		version:   deps.Version,
		startTime: time.Now(),
		stream:    NewStateStream(deps.WS, deps.Logger),
	}
	if deps.Audit != nil {
		s.recorder = audit.NewRecorder(deps.Audit, audit.DefaultBufferSize, deps.Logger)
	}
	s.bridge.AddStateListener(s.broadcastState)
	return s, nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the state stream and the HTTP listener in the background.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.stream.Run(srvCtx)
	if s.recorder != nil {
		s.auditDone = make(chan struct{})
		go func() {
			defer close(s.auditDone)
			s.recorder.Run(srvCtx)
		}()
	}

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

// Close shuts the listener down, waiting up to 10 seconds for in-flight
// requests, then closes the state stream and flushes queued audit records.
func (s *Server) Close() error {
	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("shutting down API server: %w", shutdownErr)
		}
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.auditDone != nil {
		<-s.auditDone
	}
	return err
}

// HealthCheck reports whether the server has been started.
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

// broadcastState relays a published entity state to stream clients.
func (s *Server) broadcastState(e entity.Entity) {
	s.stream.Publish(syncsign.NewStateMessage(e))
}
