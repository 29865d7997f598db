package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"caixa/internal/cache"
	"caixa/internal/journal"
	"caixa/internal/log"
	"caixa/internal/services"
	appweb "caixa/web"
)

// HistoryReader exposes recent sync outcomes.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	FailureCount(ctx context.Context) (int64, error)
}

type Server struct {
	http.Server
	templates   *template.Template
	svc         *services.SyncService
	charts      *cache.ChartCache
	unwatch     func()
	caches      *cache.Manager
	history     HistoryReader
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	logger      *log.Logger
	events      *log.StructuredLogger

	initialBalance float64
	started        time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithInitialBalance sets the saldo inicial used when a request does not pass one.
func WithInitialBalance(v float64) Option {
	return func(s *Server) { s.initialBalance = v }
}

// WithHistory enables GET /sync/history.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithChartCache replaces the default chart cache.
func WithChartCache(c *cache.ChartCache) Option {
	return func(s *Server) { s.charts = c }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.SyncService, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		svc:         svc,
		caches:      cache.NewManager(),
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.events = log.NewStructuredLogger(s.logger)
	if s.charts == nil {
		s.charts = cache.NewChartCache(64, 5*time.Minute)
	}
	s.caches.Register(s.charts)
	s.unwatch = s.charts.Watch(svc.Store())
	s.caches.StartCleanup(10 * time.Minute)

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /{$}", s.withSecurityHeaders(s.handleSummary))
	mux.HandleFunc("GET /charts", s.withSecurityHeaders(s.handleCharts))
	mux.HandleFunc("GET /records", s.withSecurityHeaders(s.handleRecords))
	mux.HandleFunc("POST /records", s.withSecurityHeaders(s.handleSaveRecord))
	mux.HandleFunc("GET /records/delete", s.withSecurityHeaders(s.handleConfirmDelete))
	mux.HandleFunc("POST /records/delete", s.withSecurityHeaders(s.handleDeleteRecord))

	mux.HandleFunc("GET /api/summary", s.withSecurityHeaders(s.handleAPISummary))
	mux.HandleFunc("GET /api/charts", s.withSecurityHeaders(s.handleAPICharts))
	mux.HandleFunc("GET /api/transactions/{kind}", s.withSecurityHeaders(s.handleAPITransactions))
	mux.HandleFunc("POST /api/refresh", s.withSecurityHeaders(s.handleAPIRefresh))
	mux.HandleFunc("GET /sync/history", s.withSecurityHeaders(s.handleSyncHistory))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.unwatch()
		s.caches.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)
		requestID := generateRequestID()

		logger := s.logger.With(log.FieldRequestID, requestID)
		ctx := log.NewContext(r.Context(), logger)
		r = r.WithContext(ctx)

		s.events.LogHTTPStart(ctx, r, clientIP)

		if detectSuspiciousRequest(r, s.metrics) {
			logger.WarnContext(ctx, "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.metrics) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldComponent, log.ComponentRateLimit,
				log.FieldClientIP, clientIP,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self'; img-src 'self' data:; form-action 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.events.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// render executes a page template, answering 500 when templates failed to load.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldComponent, log.ComponentTemplate)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldComponent, log.ComponentTemplate,
			log.FieldOperation, log.OpRender,
			"template", name,
			log.FieldError, err.Error())
	}
}
