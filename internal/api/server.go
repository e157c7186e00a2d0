// Package api serves the analyzer and the position ledger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eddiefleurent/ivcrush/internal/metrics"
	"github.com/eddiefleurent/ivcrush/internal/models"
	"github.com/eddiefleurent/ivcrush/internal/risk"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const (
	// MaxSymbolsPerRequest caps one analyze call.
	MaxSymbolsPerRequest = 25
	maxBodyBytes         = 1 << 20
	defaultCloseReason   = "manual close"
)

// Config configures the listener.
type Config struct {
	Port      int
	AuthToken string
	// RequestTimeout bounds each request, analysis included.
	RequestTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	service   *Service
	metrics   *metrics.Registry
	logger    *logrus.Logger
	port      int
	authToken string
	timeout   time.Duration
}

// NewServer builds the router. An empty AuthToken disables authentication.
func NewServer(cfg Config, svc *Service, reg *metrics.Registry, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &Server{
		router:    chi.NewRouter(),
		service:   svc,
		metrics:   reg,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
		timeout:   timeout,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.timeout))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/positions", s.handleGetPositions)
		r.Post("/positions", s.handleAdmitPosition)
		r.Get("/positions/{id}", s.handleGetPosition)
		r.Delete("/positions/{id}", s.handleClosePosition)
		r.Get("/portfolio", s.handlePortfolio)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// Start blocks serving until Shutdown, which may be called first.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"framework":      s.service.Analyzer().Framework(),
		"open_positions": len(s.service.Ledger().OpenPositions()),
		"time":           time.Now().UTC(),
	})
}

type analyzeRequest struct {
	Symbol  string   `json:"symbol,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Admit   bool     `json:"admit,omitempty"`
}

func (req analyzeRequest) symbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, sym := range append([]string{req.Symbol}, req.Symbols...) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbols := req.symbols()
	switch {
	case len(symbols) == 0:
		writeError(w, http.StatusBadRequest, "symbol or symbols is required")
		return
	case len(symbols) > MaxSymbolsPerRequest:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d symbols per request", MaxSymbolsPerRequest))
		return
	}

	writeJSON(w, http.StatusOK, s.service.Analyze(r.Context(), symbols, req.Admit))
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	var positions []models.Position
	switch state := r.URL.Query().Get("state"); state {
	case "", "all":
		positions = s.service.Ledger().Positions()
	case string(models.StateOpen):
		positions = s.service.Ledger().OpenPositions()
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", state))
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := s.service.Ledger().Position(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type positionRequest struct {
	ID              string              `json:"id,omitempty"`
	Symbol          string              `json:"symbol"`
	StrategyType    models.StrategyType `json:"strategy_type,omitempty"`
	Sector          string              `json:"sector,omitempty"`
	Contracts       int                 `json:"contracts"`
	NetDebit        float64             `json:"net_debit"`
	MaxLoss         float64             `json:"max_loss"`
	UnderlyingPrice float64             `json:"underlying_price"`
	Greeks          models.Greeks       `json:"greeks"`
}

type admitResponse struct {
	Position   models.Position `json:"position"`
	Assessment risk.Assessment `json:"assessment"`
}

func (s *Server) handleAdmitPosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.StrategyType == "" {
		req.StrategyType = models.StrategyCalendar
	}
	p := models.NewPosition(req.ID, req.Symbol, req.StrategyType, req.Contracts,
		req.NetDebit, req.MaxLoss, req.UnderlyingPrice, req.Greeks, req.Sector)

	a, err := s.service.Admit(p)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, admitResponse{Position: *p, Assessment: a})
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = defaultCloseReason
	}
	p, err := s.service.Close(chi.URLParam(r, "id"), reason)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Ledger().PortfolioSummary())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case risk.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
