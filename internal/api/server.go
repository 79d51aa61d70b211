package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/domains"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/metrics"
	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/rewrite"
)

// maxPreviewBytes bounds the payload accepted by the rewrite preview.
const maxPreviewBytes = 8 << 20

// Server wires HTTP handlers to the domain configuration and rewriter.
type Server struct {
	router   chi.Router
	domains  domains.Config
	rewriter *rewrite.Rewriter
	logger   *zap.Logger
}

type admissionResponse struct {
	URL     string `json:"url"`
	Verdict string `json:"verdict"`
	Target  string `json:"target,omitempty"`
	Reason  string `json:"reason"`
	// Final is where the URL ends up once every redirect is followed.
	Final        string `json:"final"`
	FinalVerdict string `json:"final_verdict"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(dc domains.Config, rw *rewrite.Rewriter, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		domains:  dc,
		rewriter: rw,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/admission", s.admission)
		r.Post("/rewrite", s.previewRewrite)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) admission(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		s.writeError(w, http.StatusBadRequest, "url query parameter required")
		return
	}
	verdict := s.domains.Decide(u)
	final, last := s.domains.Resolve(u)
	s.writeJSON(w, http.StatusOK, admissionResponse{
		URL:          u,
		Verdict:      verdict.Kind.String(),
		Target:       verdict.Target,
		Reason:       verdict.Reason,
		Final:        final,
		FinalVerdict: last.Kind.String(),
	})
}

func (s *Server) previewRewrite(w http.ResponseWriter, r *http.Request) {
	if s.rewriter == nil {
		s.writeError(w, http.StatusServiceUnavailable, "rewriter not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPreviewBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if len(body) > maxPreviewBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", maxPreviewBytes))
		return
	}
	contentType := r.Header.Get("Content-Type")
	res := s.rewriter.Transform(body, contentType, r.URL.Query().Get("url"))

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("X-Rewrite-Mode", string(s.rewriter.Mode()))
	w.Header().Set("X-Rewrite-Category", string(res.Category))
	w.Header().Set("X-Rewrite-Changed", strconv.FormatBool(res.Changed))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Content); err != nil {
		s.logger.Warn("write rewrite preview failed", zap.Error(err))
	}
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(withRequestID(r, reqID)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", requestID(r)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
