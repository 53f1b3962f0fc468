package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/briefing/logger"
)

// Handler returns the routed, middleware-wrapped API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/jobs", s.HandleListJobs)
	mux.HandleFunc("POST /api/jobs", s.HandleCreateJob)
	mux.HandleFunc("GET /api/jobs/{id}", s.HandleGetJob)
	mux.HandleFunc("PATCH /api/jobs/{id}", s.HandleUpdateJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.HandleArchiveJob)
	mux.HandleFunc("POST /api/jobs/{id}/execute", s.HandleExecuteJob)
	mux.HandleFunc("PUT /api/jobs/{id}/active", s.HandleToggleActive)
	mux.HandleFunc("POST /api/jobs/{id}/duplicate", s.HandleDuplicateJob)
	mux.HandleFunc("POST /api/jobs/{id}/preview", s.HandlePreview)
	mux.HandleFunc("GET /api/jobs/{id}/executions", s.HandleListExecutions)
	mux.HandleFunc("POST /api/presentations/{id}/refresh", s.HandleRefreshPresentation)
	mux.HandleFunc("POST /api/schedule/cron", s.HandleBuildCron)
	mux.HandleFunc("GET /ws", s.HandleWebSocket)
	mux.HandleFunc("GET /healthz", s.HandleHealth)

	return s.requestLogger(s.corsMiddleware(mux))
}

// corsMiddleware adds CORS headers for allowed origins and answers
// preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.checkOrigin(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags the request context with a request id and logs each
// API call. Websocket upgrades pass through untouched.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		reqID := uuid.NewString()[:8]
		r = r.WithContext(logger.WithRequestID(r.Context(), reqID))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Debugw("Request",
			logger.FieldRequestID, reqID,
			logger.FieldMethod, r.Method,
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, rec.status,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
	})
}
