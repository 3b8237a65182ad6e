package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/delegate-rewards/referral-payout/internal/observability/metrics"
	"github.com/delegate-rewards/referral-payout/internal/services"
	"github.com/delegate-rewards/referral-payout/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	requestTimeout = 30 * time.Second
	// previews read the whole snapshot log
	previewTimeout = 2 * time.Minute

	defaultRecordsLimit = 100
)

// PayoutService is the read side of the payout service
type PayoutService interface {
	Status(ctx context.Context) (*services.LedgerStatus, error)
	Records(ctx context.Context, limit int) ([]types.PayoutRecord, error)
	Preview(ctx context.Context, poolTotal decimal.Decimal, opts services.RunOptions) (*services.Plan, error)
}

type Server struct {
	router  *chi.Mux
	service PayoutService
	srv     *http.Server
}

func NewServer(addr string, service PayoutService) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		service: service,
	}
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  requestTimeout,
		WriteTimeout: previewTimeout + 5*time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/metrics", metrics.Handler().ServeHTTP)
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/ledger/resume-point", s.handleResumePoint)
		r.Get("/ledger/records", s.handleRecords)
		r.Get("/preview", s.handlePreview)
	})
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Ctx(ctx).Info().Str("addr", s.srv.Addr).Msg("Starting api server")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		log.Ctx(ctx).Info().Msg("Shutting down api server")
		return s.srv.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		log.Ctx(ctx).Error().Err(err).Msg("Request failed")
	}
	writeJSON(ctx, w, status, errorResponse{Error: err.Error()})
}
