// Package api provides the HTTP REST API server for StockPilot.
//
// It exposes stored analysis runs, rendered reports, on-demand analysis and
// a WebSocket stream of pipeline stage events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/datasource"
	"github.com/seenimoa/stockpilot/internal/report"
	"github.com/seenimoa/stockpilot/internal/store"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// Analyzer runs analysis batches. *pipeline.Pipeline satisfies it.
type Analyzer interface {
	RunBatch(ctx context.Context, symbols []string) *models.BatchResult
}

// RunReader reads persisted runs. store.Store satisfies it.
type RunReader interface {
	Latest(ctx context.Context, symbol string) (*models.AnalysisRun, error)
	List(ctx context.Context, symbol string, limit int) ([]*models.AnalysisRun, error)
}

// Server is the HTTP API server.
type Server struct {
	router    chi.Router
	cfg       *config.Config
	analyzer  Analyzer
	runs      RunReader
	hub       *WSHub
	reportCfg report.ReportConfig
	validate  *validator.Validate

	// baseCtx parents background batches; cancelled on shutdown.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	mu         sync.Mutex
	inflight   map[string]bool
	wg         sync.WaitGroup
}

// NewServer creates a configured API server with all routes and middleware.
// hub may be nil; pass the hub that also observes the pipeline to stream
// its stage events.
func NewServer(cfg *config.Config, analyzer Analyzer, runs RunReader, hub *WSHub) *Server {
	if hub == nil {
		hub = NewWSHub()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		analyzer:   analyzer,
		runs:       runs,
		hub:        hub,
		reportCfg:  report.FromConfig(cfg.Report),
		validate:   validator.New(),
		baseCtx:    ctx,
		baseCancel: cancel,
		inflight:   make(map[string]bool),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.hub
}

// ListenAndServe serves until ctx is done, then shuts down gracefully and
// cancels background batches.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // POST /analyze?wait=true may take minutes
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.baseCancel()
	err := httpSrv.Shutdown(shutdownCtx)
	s.wg.Wait()
	return err
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{symbol}", s.handleLatestRun)
			r.Get("/reports/{symbol}", s.handleReport)
			r.Get("/config", s.handleGetConfig)
		})

		r.Post("/analyze", s.handleAnalyze)
		r.Get("/ws", s.handleWebSocket)
	})
	r.Get("/ws", s.handleWebSocket)

	if s.cfg.Report.Enabled && s.cfg.Report.OutputDir != "" {
		s.mountReports(r, os.DirFS(s.cfg.Report.OutputDir))
	}
	return r
}

// mountReports serves the generated report directory under /reports/.
func (s *Server) mountReports(r chi.Router, dir fs.FS) {
	files := http.StripPrefix("/reports/", http.FileServerFS(dir))
	r.Get("/reports", http.RedirectHandler("/reports/", http.StatusMovedPermanently).ServeHTTP)
	r.Get("/reports/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		files.ServeHTTP(w, r)
	})
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AnalyzeRequest is the body for POST /api/v1/analyze. Either Symbol or
// Symbols is required. With Wait the response carries the finished batch;
// otherwise the batch runs in the background and progress is streamed.
type AnalyzeRequest struct {
	Symbol  string   `json:"symbol,omitempty"  validate:"omitempty,max=20"`
	Symbols []string `json:"symbols,omitempty" validate:"omitempty,max=50,dive,required,max=20"`
	Wait    bool     `json:"wait,omitempty"`
}

// AnalyzeAccepted is returned for background batches.
type AnalyzeAccepted struct {
	Symbols []string `json:"symbols"`
	Stream  string   `json:"stream"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Time      time.Time `json:"time"`
	WSClients int       `json:"ws_clients"`
	Running   []string  `json:"running,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HealthResponse{
			Status:    "ok",
			Time:      time.Now().UTC(),
			WSClients: s.hub.ClientCount(),
			Running:   s.running(),
		},
	})
}

// handleListRuns serves GET /api/v1/runs?symbol=AAPL&limit=20.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	symbol := normalize(r.URL.Query().Get("symbol"))

	runs, err := s.runs.List(r.Context(), symbol, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing runs: "+err.Error())
		return
	}
	if runs == nil {
		runs = []*models.AnalysisRun{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: runs})
}

// handleLatestRun serves GET /api/v1/runs/{symbol}; ?format=text renders
// the plain-text report instead of JSON.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latest(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("format") == "text" {
		text, err := report.GenerateText(run)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: run})
}

// handleReport serves GET /api/v1/reports/{symbol} as HTML.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.latest(w, r)
	if !ok {
		return
	}
	cfg := s.reportCfg
	cfg.IndexLink = false
	page, err := report.GenerateHTML(run, cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (*models.AnalysisRun, bool) {
	symbol := normalize(chi.URLParam(r, "symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return nil, false
	}
	run, err := s.runs.Latest(r.Context(), symbol)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("no analysis for %s", symbol))
		return nil, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return run, true
}

// handleAnalyze serves POST /api/v1/analyze.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	symbols := req.Symbols
	if req.Symbol != "" {
		symbols = append([]string{req.Symbol}, symbols...)
	}
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbol or symbols is required")
		return
	}

	if busy := s.claim(symbols); len(busy) > 0 {
		writeError(w, http.StatusConflict, "analysis already running for "+strings.Join(busy, ", "))
		return
	}

	if req.Wait {
		defer s.releaseSymbols(symbols)
		batch := s.analyzer.RunBatch(r.Context(), symbols)
		s.hub.OnBatch(batch)
		writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: batch})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.releaseSymbols(symbols)
		batch := s.analyzer.RunBatch(s.baseCtx, symbols)
		s.hub.OnBatch(batch)
	}()
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    AnalyzeAccepted{Symbols: symbols, Stream: "/ws"},
	})
}

// ============================================================
// Helpers
// ============================================================

// claim marks symbols as in flight, or returns those already running.
func (s *Server) claim(symbols []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var busy []string
	for _, sym := range symbols {
		if s.inflight[sym] {
			busy = append(busy, sym)
		}
	}
	if len(busy) > 0 {
		return busy
	}
	for _, sym := range symbols {
		s.inflight[sym] = true
	}
	return nil
}

func (s *Server) releaseSymbols(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		delete(s.inflight, sym)
	}
}

func (s *Server) running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inflight))
	for sym := range s.inflight {
		out = append(out, sym)
	}
	return out
}

func normalize(symbol string) string {
	return datasource.NormalizeSymbol(symbol)
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, s := range symbols {
		s = normalize(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// requestLogger logs one line per request through the structured logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
