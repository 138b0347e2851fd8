// Package web exposes the learning roadmap, quizzes, paper trading and the
// coach over HTTP and websockets.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/centsify/centsify/internal/assistant"
	"github.com/centsify/centsify/internal/auth"
	"github.com/centsify/centsify/internal/curriculum"
	"github.com/centsify/centsify/internal/progress"
	"github.com/centsify/centsify/internal/quiz"
	"github.com/centsify/centsify/internal/trading"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Auth      *auth.Service
	Content   *curriculum.Content
	Progress  *progress.Directory
	Quiz      *quiz.Engine
	Trader    *trading.Trader
	Assistant *assistant.Assistant

	// Checks are consulted by /readyz, keyed by dependency name.
	Checks map[string]HealthChecker
	// AllowedOrigins are host patterns accepted for cross-origin websockets.
	AllowedOrigins []string
	Now            func() time.Time
}

type Server struct {
	Deps
}

func New(deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{Deps: deps}
}

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", s.handleLogout)

	mux.Handle("GET /api/topics", s.requireAuth(s.handleTopics))
	mux.Handle("GET /api/progress", s.requireAuth(s.handleProgress))
	mux.Handle("GET /api/progress/export", s.requireAuth(s.handleExport))
	mux.Handle("GET /api/quiz/ws", s.requireAuth(s.handleQuizSocket))

	mux.Handle("GET /api/trading/portfolio", s.requireAuth(s.handlePortfolio))
	mux.Handle("POST /api/trading/buy", s.requireAuth(s.handleBuy))
	mux.Handle("POST /api/trading/sell", s.requireAuth(s.handleSell))

	mux.Handle("POST /api/assistant/messages", s.requireAuth(s.handleAssistantMessage))
	mux.Handle("POST /api/assistant/voice", s.requireAuth(s.handleAssistantVoice))

	return logRequests(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.Checks {
		if err := check.HealthCheck(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
