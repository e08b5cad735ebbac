// Package main implements the backtesting service with a REST API backed by ClickHouse
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	chstore "fib-backtest/services/clickhouse"
	"fib-backtest/services/config"
	"fib-backtest/services/engine"
	"fib-backtest/strategies"
)

// APIError carries the error taxonomy exposed to clients.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

var (
	ErrInvalidParams   = APIError{Code: "INVALID_PARAMS", Message: "Invalid parameters provided"}
	ErrDataNotFound    = APIError{Code: "DATA_NOT_FOUND", Message: "Required data not available"}
	ErrExecutionFailed = APIError{Code: "EXECUTION_FAILED", Message: "Strategy execution failed"}
)

type BacktestRequest struct {
	Symbol          string  `json:"symbol"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	SwingLength     int     `json:"swing_length"`
	RiskFraction    float64 `json:"risk_fraction"`
	StartingBalance float64 `json:"starting_balance"`
}

type TradeJSON struct {
	EntryDate       string `json:"entry_date"`
	EntryPrice      string `json:"entry_price"`
	ExitDate        string `json:"exit_date"`
	ExitPrice       string `json:"exit_price"`
	Shares          string `json:"shares"`
	Pnl             string `json:"pnl"`
	PnlPercent      string `json:"pnl_pct"`
	AccountBalance  string `json:"account_balance"`
	TotalPnl        string `json:"total_pnl"`
	TotalPnlPercent string `json:"total_pnl_pct"`
}

type BacktestResponse struct {
	JobID           string      `json:"job_id"`
	Status          string      `json:"status"`
	Symbol          string      `json:"symbol"`
	BarCount        int         `json:"bar_count"`
	Trades          []TradeJSON `json:"trades"`
	TradeCount      int         `json:"trade_count"`
	WinningTrades   int         `json:"winning_trades"`
	WinRatePercent  string      `json:"win_rate_pct"`
	TotalPnl        string      `json:"total_pnl"`
	TotalPnlPercent string      `json:"total_pnl_pct"`
	EndingBalance   string      `json:"ending_balance"`
	Error           *APIError   `json:"error,omitempty"`
}

// BacktestService wires storage, the strategy runner and result retention.
type BacktestService struct {
	store  *chstore.Client
	logger *zap.Logger
	config *config.Config

	mu      sync.RWMutex
	results map[string]*BacktestResponse
}

func NewBacktestService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*BacktestService, error) {
	chClient, err := chstore.NewClient(ctx, chstore.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Table:    cfg.ClickHouse.Table,
		Username: cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}

	return &BacktestService{
		store:   chClient,
		logger:  logger,
		config:  cfg,
		results: make(map[string]*BacktestResponse),
	}, nil
}

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/backtest/:job_id", s.handleGetBacktestResult)
		api.GET("/health", s.handleHealthCheck)
	}
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiErr := ErrInvalidParams
		apiErr.Details = err.Error()
		c.JSON(http.StatusBadRequest, gin.H{"error": apiErr})
		return
	}

	jobID := uuid.New().String()
	start := time.Now()

	s.logger.Info("Starting backtest execution",
		zap.String("job_id", jobID),
		zap.String("symbol", req.Symbol),
		zap.Int("swing_length", req.SwingLength),
		zap.Float64("risk_fraction", req.RiskFraction),
	)

	resp, status := s.executeBacktest(c.Request.Context(), jobID, req)

	s.mu.Lock()
	s.results[jobID] = resp
	s.mu.Unlock()

	if resp.Error != nil {
		s.logger.Error("Backtest execution failed",
			zap.String("job_id", jobID),
			zap.String("code", resp.Error.Code),
			zap.String("details", resp.Error.Details),
		)
	} else {
		s.logger.Info("Backtest completed",
			zap.String("job_id", jobID),
			zap.Int("trades", resp.TradeCount),
			zap.Duration("execution_time", time.Since(start)),
		)
	}
	c.JSON(status, resp)
}

func (s *BacktestService) executeBacktest(ctx context.Context, jobID string, req BacktestRequest) (*BacktestResponse, int) {
	resp := &BacktestResponse{JobID: jobID, Symbol: req.Symbol, Trades: []TradeJSON{}}

	fail := func(apiErr APIError, details string, status int) (*BacktestResponse, int) {
		apiErr.Details = details
		resp.Status = "failed"
		resp.Error = &apiErr
		return resp, status
	}

	if req.Symbol == "" {
		return fail(ErrInvalidParams, "symbol is required", http.StatusBadRequest)
	}
	from, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return fail(ErrInvalidParams, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
	}
	to, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		return fail(ErrInvalidParams, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
	}

	bars, err := s.store.QueryPriceBars(ctx, req.Symbol, from, to)
	if err != nil {
		return fail(ErrExecutionFailed, err.Error(), http.StatusInternalServerError)
	}
	if len(bars) == 0 {
		return fail(ErrDataNotFound,
			fmt.Sprintf("no bars for %s in [%s, %s]", req.Symbol, req.StartDate, req.EndDate),
			http.StatusNotFound)
	}

	strat := strategies.NewFibRetracementStrategy()
	strat.Bars = bars
	if req.SwingLength != 0 {
		strat.SwingLength = req.SwingLength
	}
	if req.RiskFraction != 0 {
		strat.RiskFraction = decimal.NewFromFloat(req.RiskFraction)
	}
	if req.StartingBalance != 0 {
		strat.StartingBalance = decimal.NewFromFloat(req.StartingBalance)
	}

	if err := strat.Run(); err != nil {
		if engine.IsValidation(err) {
			return fail(ErrInvalidParams, err.Error(), http.StatusBadRequest)
		}
		return fail(ErrExecutionFailed, err.Error(), http.StatusInternalServerError)
	}

	summary := strat.GenerateSummary()
	resp.Status = "completed"
	resp.BarCount = len(bars)
	resp.TradeCount = summary.TotalTrades
	resp.WinningTrades = summary.Wins
	resp.WinRatePercent = summary.WinRate.StringFixed(2)
	resp.TotalPnl = strat.State.TotalPnl.StringFixed(2)
	resp.TotalPnlPercent = strat.State.TotalPnlPercent.StringFixed(2)
	resp.EndingBalance = strat.State.EndingBalance().StringFixed(2)

	for _, t := range strat.State.Trades {
		resp.Trades = append(resp.Trades, TradeJSON{
			EntryDate:       t.EntryDate.Format("2006-01-02"),
			EntryPrice:      t.EntryPrice.StringFixed(4),
			ExitDate:        t.ExitDate.Format("2006-01-02"),
			ExitPrice:       t.ExitPrice.StringFixed(4),
			Shares:          t.Shares.StringFixed(6),
			Pnl:             t.Pnl.StringFixed(2),
			PnlPercent:      t.PnlPercent.StringFixed(2),
			AccountBalance:  t.AccountBalance.StringFixed(2),
			TotalPnl:        t.TotalPnl.StringFixed(2),
			TotalPnlPercent: t.TotalPnlPercent.StringFixed(2),
		})
	}
	return resp, http.StatusOK
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	jobID := c.Param("job_id")

	s.mu.RLock()
	resp, ok := s.results[jobID]
	s.mu.RUnlock()

	if !ok {
		apiErr := ErrDataNotFound
		apiErr.Details = fmt.Sprintf("unknown job_id %s", jobID)
		c.JSON(http.StatusNotFound, gin.H{"error": apiErr})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   "1.0.0",
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtesting service",
		zap.String("version", "1.0.0"),
		zap.String("environment", cfg.Environment),
	)

	ctx := context.Background()
	service, err := NewBacktestService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create backtest service", zap.Error(err))
	}
	defer service.store.Close()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupHTTPRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
