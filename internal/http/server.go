// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dompet/internal/cache"
	"dompet/internal/core"
	"dompet/internal/ledger"
	"dompet/internal/log"
	"dompet/internal/metrics"
)

// Server serves the ledger API. All money amounts cross the wire in minor
// units (cents); decimal strings are accepted on input and converted.
type Server struct {
	svc      *ledger.Service
	budget   *ledger.BudgetCycle
	logger   *log.Logger
	overview *cache.LRU[ledger.Overview]
	httpSrv  *http.Server
}

// Config holds the HTTP server configuration.
type Config struct {
	Port string
}

func NewServer(cfg Config, svc *ledger.Service, budget *ledger.BudgetCycle, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		svc:      svc,
		budget:   budget,
		logger:   logger.WithComponent(log.ComponentHTTP),
		overview: cache.NewLRU[ledger.Overview](8, 30*time.Second),
	}
	s.httpSrv = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can drive the
// handler stack without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/income", s.handleRecordIncome)
		r.Post("/expenses", s.handleRecordExpense)
		r.Post("/transfers", s.handleTransfer)
		r.Post("/topup", s.handleCashTopUp)

		r.Post("/budget/close", s.handleBudgetClose)
		r.Post("/budget/evaluate", s.handleBudgetEvaluate)

		r.Get("/cards", s.handleListCards)
		r.Post("/cards", s.handleCreateCard)
		r.Get("/cards/{id}", s.handleGetCard)
		r.Delete("/cards/{id}", s.handleDeleteCard)

		r.Get("/pockets", s.handleListPockets)
		r.Post("/pockets", s.handleCreatePocket)
		r.Get("/pockets/{id}", s.handleGetPocket)
		r.Delete("/pockets/{id}", s.handleDeletePocket)

		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Patch("/transactions/{id}", s.handleUpdateTransaction)

		r.Get("/summary", s.handleSummary)
		r.Get("/reports/categories", s.handleCategoryReport)
		r.Get("/reports/cashflow", s.handleCashflowReport)
		r.Get("/reports/refs", s.handleRefReport)

		r.Put("/rewards/{member}", s.handleSetMemberReward)
	})
	return r
}

// Start runs the server until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// observe logs each request and feeds the latency histogram. Mutating
// methods purge the overview cache so the next summary reflects the write.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.Method != http.MethodGet {
			s.overview.Purge()
		}

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		elapsed := time.Since(start)
		metrics.HTTPDuration.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Observe(elapsed.Seconds())
		s.logger.InfoContext(r.Context(), "Request handled",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, ww.Status(),
			log.FieldDuration, elapsed.Milliseconds())
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	const key = "overview"
	if ov, ok := s.overview.Get(key); ok {
		writeJSON(w, http.StatusOK, overviewResponse(ov))
		return
	}
	ov, err := s.svc.Overview(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.overview.Set(key, ov)
	writeJSON(w, http.StatusOK, overviewResponse(ov))
}

// errorStatus maps domain errors onto HTTP statuses. Rejections that the
// caller can fix are 4xx; broken ledger invariants are the server's fault.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrPocketLocked),
		errors.Is(err, core.ErrRewardPocketReadOnly),
		errors.Is(err, core.ErrImmutableTransaction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrCashCardExists),
		errors.Is(err, core.ErrBudgetPocketExists),
		errors.Is(err, core.ErrCashCardProtected),
		errors.Is(err, core.ErrCardInUse),
		errors.Is(err, core.ErrPocketNotEmpty):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrInvalidPocketKind),
		errors.Is(err, core.ErrInvalidTransactionType),
		errors.Is(err, core.ErrMissingLockEnd),
		errors.Is(err, core.ErrMissingPeriod),
		errors.Is(err, core.ErrInvalidExpenseSource),
		errors.Is(err, core.ErrSameCard),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
