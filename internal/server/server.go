// Package server exposes the incident dashboard over a JSON HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/disasterlens/civicguard/internal/cases"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/disasterlens/civicguard/internal/queue"
	"github.com/disasterlens/civicguard/internal/session"
	"github.com/go-chi/chi/v5"
)

// Config holds server configuration.
type Config struct {
	BaseURL        string
	GoogleClientID string
	GoogleSecret   string
}

// Classifier is the evidence-engine surface the server consumes.
type Classifier interface {
	Classify(ctx context.Context, media []byte, mimeType string) (*model.AIRiskAnalysis, error)
	Recommend(ctx context.Context, caseSummary string) string
}

// Server is the HTTP server for the incident dashboard.
type Server struct {
	config     Config
	cases      *cases.Service
	queue      *queue.Queue
	sessions   *session.Provider
	classifier Classifier
	logger     *slog.Logger
	router     chi.Router
}

// NewServer wires the dashboard API over the given collaborators.
func NewServer(cfg Config, svc *cases.Service, q *queue.Queue, sessions *session.Provider, cls Classifier, logger *slog.Logger) *Server {
	s := &Server{
		config:     cfg,
		cases:      svc,
		queue:      q,
		sessions:   sessions,
		classifier: cls,
		logger:     logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware)
	r.Use(s.SessionMiddleware)

	// Session endpoints.
	r.Post("/auth/login", s.HandleLogin)
	r.Post("/auth/logout", s.HandleLogout)
	r.Get("/auth/google", s.HandleGoogleLogin)
	r.Get("/auth/google/callback", s.HandleGoogleCallback)
	r.Get("/api/session", s.HandleSession)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)

		r.Post("/api/analyze", s.HandleAnalyze)
		r.Post("/api/cases", s.HandleCreateCase)
		r.Get("/api/cases", s.HandleListCases)
		r.Get("/api/cases/{caseID}", s.HandleGetCase)
		r.Get("/api/cases/{caseID}/report", s.HandleCaseReport)
		r.Get("/api/cases/{caseID}/media", s.HandleCaseMedia)

		r.Post("/api/queue", s.HandleEnqueue)
		r.Post("/api/queue/flush", s.HandleFlushQueue)
	})

	// Admin routes.
	r.Group(func(r chi.Router) {
		r.Use(RequireAuth)
		r.Use(RequireAdmin)

		r.Post("/api/cases/{caseID}/status", s.HandleUpdateStatus)
		r.Post("/api/cases/{caseID}/secure-access", s.HandleSecureAccess)
		r.Post("/api/cases/{caseID}/recommend", s.HandleRecommend)
		r.Get("/api/logs", s.HandleLogs)
		r.Get("/api/dashboard", s.HandleDashboard)
		r.Get("/api/export/csv", s.HandleExportCSV)
	})

	return r
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}
