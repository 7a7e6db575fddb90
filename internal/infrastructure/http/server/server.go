// Package server provides the JSON API HTTP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/chat"
	"github.com/cookwise/v1/internal/infrastructure/config"
	apperrors "github.com/cookwise/v1/pkg/errors"
)

// HealthChecker reports whether one named dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the HTTP front of the assistant.
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
	router      *chi.Mux
	chatService *chat.Service
	checks      map[string]HealthChecker
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, log *zap.Logger, chatService *chat.Service, checks map[string]HealthChecker) *Server {
	s := &Server{
		config:      cfg,
		logger:      log.Named("http-server"),
		chatService: chatService,
		checks:      checks,
	}

	s.router = s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)
	// Completion calls dominate request latency; the timeout must cover them.
	timeout := s.config.Server.WriteTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r.Use(chimiddleware.Timeout(timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
	})

	return r
}

// Start runs the server until the context is cancelled.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	chat.Reply
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewBadRequestError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, r, apperrors.NewBadRequestError("message is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply, err := s.chatService.Respond(r.Context(), req.SessionID, req.Message)
	if err != nil {
		s.writeError(w, r, apperrors.Wrap(err, "chat processing failed"))
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{SessionID: req.SessionID, Reply: reply})
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth probes each registered dependency. Degraded dependencies
// report as such without failing the endpoint; the assistant answers even
// when collaborators are down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Checks: map[string]string{}}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for name, check := range s.checks {
		if err := check.HealthCheck(ctx); err != nil {
			status.Checks[name] = "degraded: " + err.Error()
			status.Status = "degraded"
			continue
		}
		status.Checks[name] = "ok"
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, appErr *apperrors.AppError) {
	requestID := chimiddleware.GetReqID(r.Context())
	s.logger.Warn("Request failed",
		zap.String("request_id", requestID),
		zap.String("code", string(appErr.Code)),
		zap.Error(appErr))
	s.writeJSON(w, appErr.StatusCode(), apperrors.ToErrorResponse(appErr, requestID))
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("Request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())))
	})
}
