package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetledger/internal/limits"
	applog "budgetledger/internal/log"
	"budgetledger/internal/middleware/ratelimit"
	"budgetledger/internal/middleware/security"
	"budgetledger/internal/middleware/trace"
	"budgetledger/internal/services"
)

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr               string
	Currency           string
	RateLimitPerMinute int
	// ReadyTimeout bounds the store ping behind /readyz.
	ReadyTimeout time.Duration
}

type Server struct {
	http.Server
	transactions *services.TransactionService
	limits       *limits.Table
	currency     string
	store        Pinger
	readyTimeout time.Duration

	detector    *security.Detector
	tracer      *trace.Middleware
	rateLimiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
// store may be nil, in which case /readyz only reports process health.
func NewServer(cfg Config, svc *services.TransactionService, table *limits.Table, store Pinger, logger *applog.Logger) *Server {
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		transactions: svc,
		limits:       table,
		currency:     cfg.Currency,
		store:        store,
		readyTimeout: cfg.ReadyTimeout,
		detector:     detector,
		tracer:       trace.NewMiddleware(logger, detector.ExtractClientIP),
		rateLimiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/limits", s.handleLimits)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("no route for " + r.Method + " " + r.URL.Path).Write(w)
	})

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError().Write(w)
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.tracer.Middleware(detector.Middleware(headers.Middleware(limited(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the limiter janitor and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Message("ok").Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.readyTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().
		Message("ready").
		Set("requests", s.tracer.GetMetrics()).
		Set("rateLimit", s.rateLimiter.GetMetrics()).
		Set("suspiciousRequests", s.detector.SuspiciousCount()).
		Write(w)
}
