package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/julienbonastre/order-profit/internal/batch"
	"github.com/julienbonastre/order-profit/internal/database"
)

const defaultRunsLimit = 20

// Store is the run history read by the API
type Store interface {
	GetRuns(ctx context.Context, limit int) ([]database.Run, error)
	GetRun(ctx context.Context, id string) (*database.Run, error)
	GetLatestRun(ctx context.Context) (*database.Run, error)
	GetOrderProfits(ctx context.Context, runID string) ([]database.OrderProfit, error)
}

// Runner starts a batch run
type Runner interface {
	Run(ctx context.Context, opts batch.Options) (*batch.Result, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store  Store
	runner Runner
	logger *zap.Logger
	mu     sync.Mutex // one run at a time
}

// NewHandler creates a new handler
func NewHandler(store Store, runner Runner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, runner: runner, logger: logger}
}

// Routes returns the API router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Get("/runs", h.ListRuns)
		r.Post("/runs", h.StartRun)
		r.Get("/runs/latest", h.LatestRun)
		r.Get("/runs/{runID}", h.GetRun)
		r.Get("/runs/{runID}/orders", h.GetRunOrders)
	})
	return r
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// JSON response helper
func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON", zap.Error(err))
	}
}

// Error response helper
func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, database.ErrRunNotFound) {
		h.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error("store query failed", zap.Error(err))
	h.errorResponse(w, http.StatusInternalServerError, "internal error")
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"canRun":   h.runner != nil,
		"hasStore": h.store != nil,
	})
}

// ListRuns returns recent runs, newest first
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			h.errorResponse(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.store.GetRuns(r.Context(), limit)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs})
}

// LatestRun returns the most recent run
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetLatestRun(r.Context())
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, run)
}

// GetRun returns a single run
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	h.jsonResponse(w, http.StatusOK, run)
}

// GetRunOrders returns the ranked orders of a run
func (h *Handler) GetRunOrders(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.storeError(w, err)
		return
	}

	orders, err := h.store.GetOrderProfits(r.Context(), runID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	if orders == nil {
		orders = []database.OrderProfit{}
	}
	h.jsonResponse(w, http.StatusOK, map[string]any{
		"run":    run,
		"orders": orders,
	})
}

type startRunRequest struct {
	OrderType    int `json:"orderType"`
	LookbackDays int `json:"lookbackDays"`
}

// StartRun runs a batch synchronously and returns its summary
func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil {
		h.errorResponse(w, http.StatusServiceUnavailable, "runs are not configured")
		return
	}

	var req startRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.LookbackDays < 0 {
		h.errorResponse(w, http.StatusBadRequest, "lookbackDays must not be negative")
		return
	}

	if !h.mu.TryLock() {
		h.errorResponse(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer h.mu.Unlock()

	result, err := h.runner.Run(r.Context(), batch.Options{
		OrderType:    req.OrderType,
		LookbackDays: req.LookbackDays,
	})
	if err != nil {
		h.logger.Error("run failed", zap.Error(err))
		h.errorResponse(w, http.StatusBadGateway, err.Error())
		return
	}

	h.jsonResponse(w, http.StatusCreated, map[string]any{
		"runId":   result.RunID,
		"orders":  len(result.Orders),
		"errored": result.Errored,
		"skipped": result.Skipped,
	})
}
