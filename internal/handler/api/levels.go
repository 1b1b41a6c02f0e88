package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"SRLevels/internal/domain/models"
	domrepo "SRLevels/internal/domain/repository"
	"SRLevels/internal/service/metrics"
	"SRLevels/internal/service/ratelimit"
	"SRLevels/internal/usecase"
	xhttp "SRLevels/pkg/http"
	xlogger "SRLevels/pkg/logger"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// LevelsHandler serves stored and ad-hoc support/resistance levels.
type LevelsHandler struct {
	logger  *xlogger.Logger
	uc      *usecase.LevelsUseCase
	rl      *ratelimit.Limiter
	checks  map[string]HealthCheck
	version string
}

func NewLevelsHandler(logger *xlogger.Logger, uc *usecase.LevelsUseCase, rl *ratelimit.Limiter, version string) *LevelsHandler {
	metrics.Register()
	if rl == nil {
		rl = ratelimit.New()
	}
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &LevelsHandler{
		logger:  logger.With("api"),
		uc:      uc,
		rl:      rl,
		checks:  map[string]HealthCheck{},
		version: version,
	}
}

// AddHealthCheck registers a dependency probed by /health.
func (h *LevelsHandler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *LevelsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/levels", h.timed("list", h.List))
	g.GET("/levels/:exchange/:symbol", h.timed("get", h.Get))
	g.POST("/levels/detect", h.timed("detect", h.Detect), h.limit("detect", 10, 2))
	g.POST("/levels/analyze", h.timed("analyze", h.Analyze), h.limit("analyze", 5, 0.5))
	g.GET("/candles/levels", h.timed("candle_levels", h.CandleLevels), h.limit("candle_levels", 10, 2))
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (h *LevelsHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	res := HealthResponse{Status: "ok", Service: "srlevels", Version: h.version, Checks: map[string]string{}}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", name), xlogger.Error(err))
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			continue
		}
		res.Checks[name] = "ok"
	}
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *LevelsHandler) List(c echo.Context) error {
	req := &models.ListLevelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	page, err := h.uc.List(c.Request().Context(), models.ResultFilter{
		Symbol:     req.Symbol,
		Exchange:   req.Exchange,
		MarketType: req.MarketType,
	}, req.Page, req.PageSize)
	if err != nil {
		return h.fail(c, "list", err)
	}
	return xhttp.PageResponse(c, page.Items, page.Total, page.Page, page.PageSize)
}

func (h *LevelsHandler) Get(c echo.Context) error {
	req := &models.GetLevelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	key := models.AnalysisKey{
		Exchange:   req.Exchange,
		Symbol:     req.Symbol,
		MarketType: req.MarketType,
		Timeframe:  req.Timeframe,
	}
	res, err := h.uc.Get(c.Request().Context(), key)
	if err != nil {
		return h.fail(c, "get", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *LevelsHandler) Detect(c echo.Context) error {
	req := &models.DetectLevelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.uc.Detect(req.Candles, domrepo.Timeframe(req.Timeframe), req.Diagnostics)
	if err != nil {
		return h.fail(c, "detect", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// AnalyzeAccepted is the body returned for a queued analysis.
type AnalyzeAccepted struct {
	JobID string             `json:"job_id"`
	Key   models.AnalysisKey `json:"key"`
}

func (h *LevelsHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	id, err := h.uc.RequestAnalysis(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "analyze", err)
	}
	h.logger.Info("analysis queued", xlogger.String("job_id", id), xlogger.String("key", req.Key().String()))
	return xhttp.AcceptedResponse(c, AnalyzeAccepted{JobID: id, Key: req.Key()})
}

func (h *LevelsHandler) CandleLevels(c echo.Context) error {
	req := &models.CandleLevelsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)
	res, err := h.uc.DetectStored(c.Request().Context(), models.NormalizeSymbol(req.Symbol), req.N, tf)
	if err != nil {
		return h.fail(c, "candle_levels", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// fail maps use case errors to API errors.
func (h *LevelsHandler) fail(c echo.Context, endpoint string, err error) error {
	var appErr *xhttp.AppError
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		appErr = xhttp.NotFoundErrorf("no levels stored for %s", c.Param("symbol"))
	case errors.Is(err, usecase.ErrNoData):
		appErr = xhttp.NotFoundError("no candles available")
	case errors.Is(err, domrepo.ErrInvalidTimeframe):
		appErr = xhttp.BadRequestError(err.Error()).WithField("timeframe")
	case errors.Is(err, usecase.ErrQueueUnavailable):
		appErr = xhttp.UnavailableError("on-demand analysis requires redis")
	default:
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("levels usecase error", xlogger.String("endpoint", endpoint), xlogger.Error(err))
		appErr = xhttp.InternalError("Something went wrong").WithError(err)
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *LevelsHandler) timed(endpoint string, next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()
		return next(c)
	}
}

// limit applies a per-client token bucket to one endpoint.
func (h *LevelsHandler) limit(endpoint string, capacity, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !h.rl.Allow(c.RealIP()+":"+endpoint, capacity, refillPerSec) {
				metrics.RateLimited.WithLabelValues(endpoint).Inc()
				h.logger.Warn("rate limited", xlogger.String("endpoint", endpoint), xlogger.String("remote", c.RealIP()))
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited").
					WithParam("endpoint", endpoint).
					WithParam("burst", capacity).
					WithParam("per_second", refillPerSec))
			}
			return next(c)
		}
	}
}
