package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"campuscard/internal/analysis"
	"campuscard/internal/cache"
	"campuscard/internal/ledger"
	"campuscard/internal/log"
	"campuscard/internal/middleware/ratelimit"
	"campuscard/internal/middleware/security"
	"campuscard/internal/middleware/trace"
	"campuscard/internal/services"
)

const (
	maxImportBytes       = 32 << 20
	cacheCleanupInterval = time.Minute
)

// Options configures a Server. Zero values fall back to defaults.
type Options struct {
	Logger          *log.Logger
	Params          analysis.Params
	ReportCacheSize int
	ReportCacheTTL  time.Duration
	RateLimit       ratelimit.Config
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type Server struct {
	http.Server
	svc    *services.LedgerService
	params analysis.Params
	ready  func(ctx context.Context) error

	// Computed reports keyed by filter and parameters. Any write purges the
	// cache and bumps generation so that in-flight computations are not
	// stored.
	reports      *cache.LRUCache[*analysis.Report]
	generation   atomic.Uint64
	cacheManager *cache.Manager

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Params.WindowMinutes == 0 && opts.Params.MinCount == 0 {
		opts.Params = analysis.DefaultParams()
	}
	if opts.ReportCacheSize <= 0 {
		opts.ReportCacheSize = 64
	}
	if opts.ReportCacheTTL <= 0 {
		opts.ReportCacheTTL = 5 * time.Minute
	}

	s := &Server{
		svc:          svc,
		params:       opts.Params,
		ready:        opts.Ready,
		reports:      cache.NewLRUCache[*analysis.Report](opts.ReportCacheSize, opts.ReportCacheTTL),
		cacheManager: cache.NewManager(),
		limiter:      ratelimit.NewLimiter(opts.RateLimit),
		detector:     security.NewDetector(),
		tracer:       trace.NewMiddleware(),
	}
	s.cacheManager.Register(s.reports)
	s.cacheManager.StartCleanup(cacheCleanupInterval)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("POST /api/records", s.handleCreateRecord)
	mux.HandleFunc("GET /api/records/{id}", s.handleGetRecord)
	mux.HandleFunc("PUT /api/records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /api/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("POST /api/import", s.handleImport)
	mux.HandleFunc("GET /api/export", s.handleExport)

	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/low-spend", s.handleLowSpend)
	mux.HandleFunc("GET /api/suspicious", s.handleSuspicious)
	mux.HandleFunc("GET /api/insights", s.handleInsights)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, ratelimit.WritesOnly)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.AccessLog(h)
	h = log.Middleware(opts.Logger.WithComponent(log.ComponentHTTP), trace.RequestIDFromRequest)(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

// report returns the cached report for the filter and parameters, computing
// it on a miss.
func (s *Server) report(ctx context.Context, f ledger.Filter, p analysis.Params) (*analysis.Report, error) {
	key := reportKey(f, p)
	if rep, ok := s.reports.Get(key); ok {
		return rep, nil
	}

	gen := s.generation.Load()
	rep, err := s.svc.Report(ctx, f, p)
	if err != nil {
		return nil, err
	}
	if s.generation.Load() == gen {
		s.reports.Set(key, rep)
	}
	return rep, nil
}

// invalidateReports drops every cached report after a write.
func (s *Server) invalidateReports() {
	s.generation.Add(1)
	s.reports.Purge()
}

func reportKey(f ledger.Filter, p analysis.Params) string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("s=%q n=%q m=%q g=%q from=%s to=%s asc=%t|%s|%d|%d|%s",
		f.StudentID, f.Name, f.Major, f.Grade, bound(f.From), bound(f.To), f.TimeAscending,
		p.SingleThreshold.String(), p.WindowMinutes, p.MinCount, p.WeeklyThreshold.String())
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

type statsResponse struct {
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rate_limit"`
	Security  security.DetectionMetrics `json:"security"`
	Reports   cache.Stats               `json:"report_cache"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsResponse{
		Requests:  s.tracer.GetMetrics(),
		RateLimit: s.limiter.GetMetrics(),
		Security:  s.detector.GetMetrics(),
		Reports:   s.reports.Stats(),
	})
}
