package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"CandlePull/internal/domain/errs"
	"CandlePull/internal/domain/models"
	"CandlePull/internal/usecase"
	xhttp "CandlePull/pkg/http"
	"CandlePull/pkg/http/middleware"
	xlogger "CandlePull/pkg/logger"
	xutil "CandlePull/pkg/util"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

type InstrumentLister interface {
	Instruments(ctx context.Context) ([]models.InstrumentStatus, error)
}

type HistoryReader interface {
	GetCandles(ctx context.Context, p usecase.GetCandlesParams) (*usecase.GetCandlesResult, error)
}

type HealthChecker interface {
	Health(ctx context.Context) error
}

// CandlesHandler serves update requests and stored candle history.
type CandlesHandler struct {
	logger      *xlogger.Logger
	jobs        Enqueuer
	instruments InstrumentLister
	history     HistoryReader
	health      HealthChecker
	updateLimit middleware.Allower
}

type HandlerOption func(*CandlesHandler)

// WithUpdateLimit rate limits POST /api/candles/update per client address.
func WithUpdateLimit(a middleware.Allower) HandlerOption {
	return func(h *CandlesHandler) { h.updateLimit = a }
}

func NewCandlesHandler(logger *xlogger.Logger, jobs Enqueuer, instruments InstrumentLister, history HistoryReader, health HealthChecker, opts ...HandlerOption) *CandlesHandler {
	h := &CandlesHandler{logger: logger, jobs: jobs, instruments: instruments, history: history, health: health}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *CandlesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	var mw []echo.MiddlewareFunc
	if h.updateLimit != nil {
		mw = append(mw, middleware.RateLimit(h.updateLimit))
	}
	g.POST("/candles/update", h.Update, mw...)
	g.GET("/candles", h.Candles)
	g.GET("/instruments", h.Instruments)
	g.GET("/periods", h.Periods)
}

// Update validates the literals and queues a background run.
func (h *CandlesHandler) Update(c echo.Context) error {
	req := &models.UpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := usecase.ValidateRange(req.From, req.To); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	if h.jobs == nil {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("job queue is not running"))
	}

	id, err := h.jobs.Enqueue(c.Request().Context(), usecase.UpdateJobType, req)
	if err != nil {
		h.logger.Error("enqueue update", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("could not queue update").WithError(err))
	}
	h.logger.Info("update queued",
		xlogger.String("job_id", id),
		xlogger.String("from", req.From),
		xlogger.String("to", req.To))
	return xhttp.AcceptedResponse(c, models.UpdateAccepted{JobID: id, From: req.From, To: req.To})
}

func (h *CandlesHandler) Candles(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	from, err := xutil.ParseTime(req.From)
	if err != nil {
		return xhttp.AppErrorResponse(c, errs.Validation("from", err.Error()))
	}
	p := usecase.GetCandlesParams{Instrument: req.Instrument, Period: req.Period, From: from, Limit: req.Limit}
	if req.To != "" {
		if p.To, err = xutil.ParseTime(req.To); err != nil {
			return xhttp.AppErrorResponse(c, errs.Validation("to", err.Error()))
		}
	}

	res, err := h.history.GetCandles(c.Request().Context(), p)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *CandlesHandler) Instruments(c echo.Context) error {
	list, err := h.instruments.Instruments(c.Request().Context())
	if err != nil {
		h.logger.Error("instruments usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *CandlesHandler) Periods(c echo.Context) error {
	list := models.Periods.All()
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.ListResponse(c, list, int64(len(list)))
}

func (h *CandlesHandler) Health(c echo.Context) error {
	if h.health != nil {
		if err := h.health.Health(c.Request().Context()); err != nil {
			h.logger.Warn("health check failed", xlogger.Error(err))
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
