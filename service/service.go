// Package service implements the process-level runtime shared by all
// memberd services: permission-gated routing with a uniform JSON response
// envelope, the register/unregister lifecycle against the API gateway, and
// graceful shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/makerspace/memberd/common"
	"github.com/makerspace/memberd/db"
	"github.com/makerspace/memberd/gateway"
	"github.com/makerspace/memberd/metrics"
)

const (
	// PermissionHeader is the trusted inbound header carrying the caller's
	// comma-separated permission tokens. It is set by the API gateway;
	// absence means no permissions granted.
	PermissionHeader = "X-User-Permissions"

	// PermissionService is the universal service-to-service credential.
	// A caller holding it passes every per-route permission check.
	PermissionService = "service"

	// PermissionNone marks a route as public: no permission check is
	// performed and nothing is recorded for announcement.
	PermissionNone = ""
)

// HandlerFunc is a route handler. A nil result renders as {"status": <token>},
// a non-nil result as {"data": <result>, "status": <token>}. Returned *Error
// values map to their HTTP status; any other error renders as a 500.
type HandlerFunc func(r *http.Request) (any, error)

// RouteInfo describes one registered route for the introspection endpoint.
type RouteInfo struct {
	URL     string   `json:"url"`
	Methods []string `json:"methods"`
}

// Config contains all configuration parameters for a service runtime.
type Config struct {
	// Name is the service name announced to the gateway.
	Name string

	// URL is the mount path segment; all routes live under /<URL>/.
	URL string

	// Port is the port the HTTP server listens on and the port announced
	// as this service's endpoint during registration.
	Port int

	// Version is announced to the gateway during registration.
	Version string

	// Frontend marks a public-facing runtime: it skips gateway
	// registration and its routes default to public access.
	Frontend bool

	// Debug enables debug behavior (verbose logging).
	Debug bool

	// MetricsAddr is the Prometheus listen address. Empty disables the
	// metrics listener.
	MetricsAddr string

	// Log is the structured logger for runtime operations.
	Log *slog.Logger

	// DB is the shared connection handle, connected during Start.
	DB *db.Handle

	// Gateway is the API gateway client used for the registration
	// lifecycle and permission announcement.
	Gateway *gateway.Client

	// RegistrationRetryDelay is the wait before the second unregister
	// attempt when the initial one fails at startup.
	RegistrationRetryDelay time.Duration

	// GracefulShutdownDuration bounds the in-flight request drain during
	// shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Service owns the HTTP surface of one process: its route table, the
// accumulated set of permissions those routes require, and the lifecycle
// against the gateway and the database handle.
type Service struct {
	cfg     *Config
	log     *slog.Logger
	db      *db.Handle
	gateway *gateway.Client

	router     chi.Router
	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	isReady    atomic.Bool

	permissions map[string]struct{}
	routes      []RouteInfo
}

// New creates a service runtime and installs the introspection and health
// endpoints. Business routes are added with Route or entity.AddRoutes before
// calling Start.
func New(cfg *Config) (*Service, error) {
	if cfg.Log == nil {
		return nil, errors.New("config: Log is required")
	}
	if cfg.RegistrationRetryDelay == 0 {
		cfg.RegistrationRetryDelay = 2 * time.Second
	}
	if cfg.GracefulShutdownDuration == 0 {
		cfg.GracefulShutdownDuration = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:         cfg,
		log:         cfg.Log,
		db:          cfg.DB,
		gateway:     cfg.Gateway,
		router:      chi.NewRouter(),
		metricsSrv:  metricsSrv,
		permissions: make(map[string]struct{}),
	}
	s.isReady.Store(true)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.router.Get("/livez", s.handleLivenessCheck)
	s.router.Get("/readyz", s.handleReadinessCheck)

	s.Route("routes", s.DefaultPermission(), "ok", s.handleRouteList, http.MethodGet)

	return s, nil
}

// DB returns the shared connection handle.
func (s *Service) DB() *db.Handle { return s.db }

// Log returns the runtime logger.
func (s *Service) Log() *slog.Logger { return s.log }

// Gateway returns the gateway client.
func (s *Service) Gateway() *gateway.Client { return s.gateway }

// DefaultPermission is the permission applied to routes that do not name
// one: backends are closed by default (service credential required),
// frontends are open by default.
func (s *Service) DefaultPermission() string {
	if s.cfg.Frontend {
		return PermissionNone
	}
	return PermissionService
}

// FullPath prefixes a route path with the service mount path.
func (s *Service) FullPath(path string) string {
	if path == "" {
		return "/" + s.cfg.URL
	}
	return "/" + s.cfg.URL + "/" + path
}

// Route registers a handler under the service mount path for the given HTTP
// methods. Every invocation first checks the route permission against the
// trusted permission header; the handler result is then wrapped in the
// response envelope with the given success status token. The permission is
// recorded for announcement to the gateway unless it is PermissionNone.
func (s *Service) Route(path, permission, status string, handler HandlerFunc, methods ...string) {
	if permission != PermissionNone {
		s.permissions[permission] = struct{}{}
	}

	fullPath := s.FullPath(path)
	s.routes = append(s.routes, RouteInfo{URL: fullPath, Methods: methods})

	var h http.Handler = s.envelope(status, s.requirePermission(permission, handler))
	h = httplogger.LoggingMiddlewareSlog(s.log, h)
	h = s.instrument(fullPath, h)
	for _, method := range methods {
		s.router.Method(method, fullPath, h)
	}
}

// requirePermission rejects the request with a forbidden error unless the
// route permission is present in the caller's permission list or the list
// contains the universal service credential.
func (s *Service) requirePermission(permission string, next HandlerFunc) HandlerFunc {
	if permission == PermissionNone {
		return next
	}
	return func(r *http.Request) (any, error) {
		granted := strings.Split(r.Header.Get(PermissionHeader), ",")
		for _, p := range granted {
			if p == permission || p == PermissionService {
				return next(r)
			}
		}
		return nil, Forbidden("user does not have the %s permission", permission)
	}
}

func (s *Service) instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metricsSrv.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Service) handleRouteList(_ *http.Request) (any, error) {
	return s.routes, nil
}

func (s *Service) handleLivenessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (s *Service) handleReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !s.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// Router exposes the HTTP handler, primarily for tests.
func (s *Service) Router() http.Handler { return s.router }

// Register announces this service's endpoint to the gateway. Frontend
// services do not register themselves as API endpoints.
func (s *Service) Register(ctx context.Context) error {
	if s.cfg.Frontend {
		return nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}
	payload := map[string]any{
		"name":     s.cfg.Name,
		"url":      s.cfg.URL,
		"endpoint": fmt.Sprintf("http://%s:%d/", hostname, s.cfg.Port),
		"version":  s.cfg.Version,
	}
	if err := s.gateway.Post(ctx, "service/register", payload, nil); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}
	return nil
}

// Unregister removes this service's endpoint from the gateway.
func (s *Service) Unregister(ctx context.Context) error {
	if s.cfg.Frontend {
		return nil
	}
	payload := map[string]any{
		"url":     s.cfg.URL,
		"version": s.cfg.Version,
	}
	if err := s.gateway.Post(ctx, "service/unregister", payload, nil); err != nil {
		return fmt.Errorf("failed to unregister service: %w", err)
	}
	return nil
}

// registerPermissions announces the accumulated permission set to the
// gateway so the central authorization store knows which permission names
// this service's routes require.
func (s *Service) registerPermissions(ctx context.Context) error {
	names := make([]string, 0, len(s.permissions))
	for name := range s.permissions {
		names = append(names, name)
	}
	sort.Strings(names)

	s.log.Info("Registering permissions", "permissions", strings.Join(names, ","))
	return s.gateway.Post(ctx, "membership/permission/register", map[string]any{
		"service":     s.cfg.Name,
		"permissions": strings.Join(names, ","),
	}, nil)
}

// Start connects the database handle, performs the unregister-then-register
// handshake with the gateway (backend services only), announces the route
// permissions and begins serving in the background.
//
// The initial unregister may fail when the gateway has not finished starting
// up yet; that failure is swallowed once and the call retried after a fixed
// delay. A second unregister failure, or a register failure, is fatal.
func (s *Service) Start(ctx context.Context) error {
	s.log.Info("Connecting to database...")
	if err := s.db.Connect(ctx); err != nil {
		return err
	}

	if !s.cfg.Frontend {
		if err := s.Unregister(ctx); err != nil {
			s.log.Warn("Initial unregister failed, retrying", "err", err)
			time.Sleep(s.cfg.RegistrationRetryDelay)
			if err := s.Unregister(ctx); err != nil {
				return err
			}
		}
		s.log.Info("Registering service...")
		if err := s.Register(ctx); err != nil {
			return err
		}
	}

	if err := s.registerPermissions(ctx); err != nil {
		s.log.Error("Failed to register permissions", "err", err)
	}

	s.RunInBackground()
	return nil
}

// RunInBackground starts the HTTP server and, when configured, the metrics
// server in separate goroutines.
func (s *Service) RunInBackground() {
	if s.cfg.MetricsAddr != "" {
		go func() {
			s.log.With("metricsAddress", s.cfg.MetricsAddr).Info("Starting metrics server")
			if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		s.log.Info("Starting HTTP server", "listenAddress", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server failed", "err", err)
		}
	}()
}

// Shutdown stops accepting new connections, waits (bounded) for in-flight
// requests to complete, unregisters from the gateway (backend services only)
// and closes the database handle.
func (s *Service) Shutdown() {
	s.isReady.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		s.log.Info("HTTP server gracefully stopped")
	}

	if !s.cfg.Frontend {
		if err := s.Unregister(ctx); err != nil {
			s.log.Error("Failed to unregister service", "err", err)
		}
	}

	s.log.Info("Closing database connection")
	if err := s.db.Close(); err != nil {
		s.log.Error("Failed to close database handle", "err", err)
	}

	if s.cfg.MetricsAddr != "" {
		if err := s.metricsSrv.Shutdown(ctx); err != nil {
			s.log.Error("Graceful metrics server shutdown failed", "err", err)
		}
	}
}
