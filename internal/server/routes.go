package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"
)

// Routes returns the application's handler: the ServeMux wrapped in CORS
// and the per-IP API rate limiter.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", BannerHandler)
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("/ws", s.WebSocketHandler)
	mux.HandleFunc("GET /test", s.TestPageHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("GET /api/users", s.requireAuth(s.handleUsers))
	mux.HandleFunc("GET /api/contacts", s.requireAuth(s.handleContacts))
	mux.HandleFunc("GET /api/messages/{userId}/{contactId}", s.requireAuth(s.handleConversation))
	mux.HandleFunc("POST /api/messages", s.requireAuth(s.handleSendMessage))
	mux.HandleFunc("POST /api/messages/{contactId}/read", s.requireAuth(s.handleMarkRead))

	c := cors.New(cors.Options{
		AllowOriginFunc:  s.origins.allowOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	})

	return c.Handler(s.rateLimit(mux))
}

// rateLimit throttles /api requests per client IP. The channel has its own
// per-connection limiter.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") &&
			!s.apiLimiter.allow(clientIP(r.RemoteAddr), time.Now()) {
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
