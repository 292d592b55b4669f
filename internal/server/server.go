// internal/server/server.go

// Package server is the HTTP front door: thin transport over the
// acquisition engine. Routing stays on net/http's mux, the two endpoints do
// not justify a router dependency.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sessionforge/api/schemas"
	"github.com/xkilldash9x/sessionforge/internal/config"
	"github.com/xkilldash9x/sessionforge/internal/provider"
)

// sessionAcquirer is the engine surface the transport needs.
type sessionAcquirer interface {
	AcquireSession(ctx context.Context, creds schemas.SessionCredentials, provider config.ProviderConfig) schemas.AcquisitionResult
	FetchAuthenticatedPage(ctx context.Context, creds schemas.SessionCredentials, provider config.ProviderConfig, targetURL string) schemas.FetchResult
}

// credentialSource resolves a user id to session credentials.
type credentialSource interface {
	Fetch(ctx context.Context, userID string) (schemas.SessionCredentials, error)
}

// Server exposes session acquisition over HTTP.
type Server struct {
	cfg      config.ServerConfig
	logger   *zap.Logger
	registry *provider.Registry
	creds    credentialSource
	engine   sessionAcquirer
	httpSrv  *http.Server
}

// NewServer wires the front door over its collaborators.
func NewServer(cfg config.ServerConfig, registry *provider.Registry, creds credentialSource, engine sessionAcquirer, logger *zap.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		registry: registry,
		creds:    creds,
		engine:   engine,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", s.handleAcquireSession)
	mux.HandleFunc("POST /api/v1/fetch", s.handleFetch)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe blocks until the listener fails or is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP front door listening.", zap.String("addr", s.cfg.Listen))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.httpSrv.Shutdown(ctx)
}

type acquireRequest struct {
	Provider string `json:"provider"`
	UserID   string `json:"user_id"`
}

type fetchRequest struct {
	Provider  string `json:"provider"`
	UserID    string `json:"user_id"`
	TargetURL string `json:"target_url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAcquireSession(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Provider == "" || req.UserID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "provider and user_id are required"})
		return
	}

	providerCfg, creds, ok := s.resolve(w, r, req.Provider, req.UserID)
	if !ok {
		return
	}

	result := s.engine.AcquireSession(r.Context(), creds, providerCfg)
	if result.Error != nil {
		s.writeJSON(w, statusForKind(result.Error.Kind), result)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Provider == "" || req.UserID == "" || req.TargetURL == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "provider, user_id and target_url are required"})
		return
	}

	providerCfg, creds, ok := s.resolve(w, r, req.Provider, req.UserID)
	if !ok {
		return
	}

	result := s.engine.FetchAuthenticatedPage(r.Context(), creds, providerCfg, req.TargetURL)
	if !result.Success {
		s.writeJSON(w, http.StatusBadGateway, result)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// resolve looks up the provider and the user's credentials, writing the
// error response itself when either fails.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request, providerID, userID string) (config.ProviderConfig, schemas.SessionCredentials, bool) {
	providerCfg, err := s.registry.Lookup(providerID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, provider.ErrUnknownProvider) {
			status = http.StatusNotFound
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return config.ProviderConfig{}, schemas.SessionCredentials{}, false
	}

	creds, err := s.creds.Fetch(r.Context(), userID)
	if err != nil {
		status := http.StatusBadGateway
		var ee *schemas.EngineError
		if errors.As(err, &ee) {
			status = statusForKind(ee.Kind)
		}
		s.writeJSON(w, status, errorResponse{Error: err.Error()})
		return config.ProviderConfig{}, schemas.SessionCredentials{}, false
	}
	return providerCfg, creds, true
}

// statusForKind maps fatal error kinds onto HTTP status codes. Client-input
// faults become 4xx, everything else is a server-side failure.
func statusForKind(kind schemas.ErrorKind) int {
	switch {
	case kind == schemas.ErrKindUnknownProvider:
		return http.StatusNotFound
	case kind.ClientFault():
		return http.StatusBadRequest
	case kind == schemas.ErrKindCredentialStoreUnreachable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Writing response failed.", zap.Error(err))
	}
}
