package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/linkscope/linkscope/agent/internal/alerts"
	"github.com/linkscope/linkscope/agent/internal/compute"
	"github.com/linkscope/linkscope/agent/internal/history"
	"github.com/linkscope/linkscope/agent/internal/monitor"
	"github.com/linkscope/linkscope/agent/internal/store"
)

// Deps are the collaborators the API drives. Scheduler and Alerts may be nil.
type Deps struct {
	Store     *store.Store
	Monitor   *monitor.Monitor
	Scheduler *monitor.Scheduler
	History   history.Repository
	Alerts    *alerts.Engine

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int

	// Now is used for history timeframes. Defaults to time.Now.
	Now func() time.Time
}

// Handler serves all /api/v1/* endpoints.
type Handler struct {
	Deps
}

// New returns a gin engine with every /api/v1 route registered. Callers may
// add further routes (WebSocket stream, metrics) to the returned engine.
func New(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.History == nil {
		d.History = history.NewMemoryStore()
	}
	h := &Handler{Deps: d}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	v1 := r.Group("/api/v1")
	if d.RateLimit > 0 {
		v1.Use(rateLimit(newIPLimiter(rate.Limit(d.RateLimit), d.RateBurst)))
	}
	{
		v1.GET("/snapshot", h.snapshot)
		v1.GET("/score", h.score)
		v1.GET("/troubleshooting", h.troubleshooting)
		v1.GET("/alerts", h.listAlerts)

		v1.POST("/test", h.runTest)
		v1.POST("/assess", h.assess)
		v1.POST("/diagnostics", h.diagnostics)
		v1.POST("/diagnostics/dns", h.dnsTest)
		v1.POST("/diagnostics/route", h.routeAnalysis)
		v1.DELETE("/error", h.clearError)

		v1.GET("/monitoring", h.monitoringStatus)
		v1.PUT("/monitoring", h.setInterval)
		v1.POST("/monitoring/start", h.startMonitoring)
		v1.POST("/monitoring/stop", h.stopMonitoring)

		v1.GET("/history", h.listHistory)
		v1.POST("/history", h.saveHistory)
		v1.DELETE("/history", h.clearHistory)
		v1.GET("/history/stats", h.historyStats)
		v1.DELETE("/history/:ts", h.removeHistory)
	}
	return r
}

// --- read endpoints ---------------------------------------------------------

func (h *Handler) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.Store.Snapshot())
}

func (h *Handler) score(c *gin.Context) {
	c.JSON(http.StatusOK, toScoreResponse(h.Store.Snapshot()))
}

func (h *Handler) troubleshooting(c *gin.Context) {
	snap := h.Store.Snapshot()
	c.JSON(http.StatusOK, TroubleshootingResponse{
		Status: snap.Status,
		Steps:  compute.Troubleshoot(snap),
	})
}

func (h *Handler) listAlerts(c *gin.Context) {
	if h.Alerts == nil {
		c.JSON(http.StatusOK, []alerts.Alert{})
		return
	}
	c.JSON(http.StatusOK, h.Alerts.Active())
}

// --- commands ---------------------------------------------------------------

// runTest runs POST /api/v1/test. With ?save=true a successful result is
// also appended to the history.
func (h *Handler) runTest(c *gin.Context) {
	save, err := queryBool(c, "save")
	if err != nil {
		jsonErr(c, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.Monitor.RunFullTest(c.Request.Context())
	if err != nil {
		h.commandFailed(c, err, monitor.MsgTestFailed)
		return
	}
	if save {
		if _, err := h.Monitor.SaveCurrent(); err != nil {
			slog.Error("api: saving test result", "err", err)
			jsonErr(c, http.StatusInternalServerError, "saving test result failed")
			return
		}
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) assess(c *gin.Context) {
	if err := h.Monitor.InitialAssessment(c.Request.Context()); err != nil {
		h.commandFailed(c, err, monitor.MsgAssessFailed)
		return
	}
	c.JSON(http.StatusOK, h.Store.Snapshot())
}

func (h *Handler) diagnostics(c *gin.Context) {
	diag, err := h.Monitor.RunDiagnostics(c.Request.Context())
	if err != nil {
		h.commandFailed(c, err, monitor.MsgDiagFailed)
		return
	}
	c.JSON(http.StatusOK, diag)
}

func (h *Handler) dnsTest(c *gin.Context) {
	res, err := h.Monitor.RunDNSTest(c.Request.Context())
	if err != nil {
		h.commandFailed(c, err, monitor.MsgDNSFailed)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) routeAnalysis(c *gin.Context) {
	res, err := h.Monitor.RunRouteAnalysis(c.Request.Context())
	if err != nil {
		h.commandFailed(c, err, monitor.MsgRouteFailed)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) clearError(c *gin.Context) {
	h.Store.Dispatch(store.ClearError{})
	c.Status(http.StatusNoContent)
}

// --- background cycle -------------------------------------------------------

func (h *Handler) monitoringStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitoringResponse())
}

func (h *Handler) startMonitoring(c *gin.Context) {
	if !h.Monitor.StartMonitoring() {
		slog.Debug("api: monitoring already running")
	}
	c.JSON(http.StatusOK, h.monitoringResponse())
}

func (h *Handler) stopMonitoring(c *gin.Context) {
	h.Monitor.StopMonitoring()
	c.JSON(http.StatusOK, h.monitoringResponse())
}

func (h *Handler) setInterval(c *gin.Context) {
	var req intervalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonErr(c, http.StatusBadRequest, "body must be {\"interval\": \"<duration>\"}")
		return
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil || d <= 0 {
		jsonErr(c, http.StatusBadRequest, "invalid interval "+strconv.Quote(req.Interval))
		return
	}
	h.Monitor.SetInterval(d)
	c.JSON(http.StatusOK, h.monitoringResponse())
}

func (h *Handler) monitoringResponse() MonitoringResponse {
	resp := MonitoringResponse{
		Running:  h.Monitor.Running(),
		Interval: h.Monitor.Interval().String(),
	}
	if h.Scheduler != nil {
		if next := h.Scheduler.Next(); !next.IsZero() {
			resp.NextScheduledTest = &next
		}
	}
	return resp
}

// --- history ----------------------------------------------------------------

func (h *Handler) listHistory(c *gin.Context) {
	tf, ok := h.timeframe(c)
	if !ok {
		return
	}
	entries, err := h.History.List()
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, HistoryResponse{
		Timeframe: tf,
		Entries:   history.Filter(entries, tf, h.Now()),
	})
}

func (h *Handler) historyStats(c *gin.Context) {
	tf, ok := h.timeframe(c)
	if !ok {
		return
	}
	entries, err := h.History.List()
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, history.Summarize(entries, tf, h.Now()))
}

func (h *Handler) saveHistory(c *gin.Context) {
	entry, err := h.Monitor.SaveCurrent()
	switch {
	case errors.Is(err, monitor.ErrNothingToSave):
		jsonErr(c, http.StatusConflict, "no measurements to save yet")
	case err != nil:
		h.historyFailed(c, err)
	default:
		c.JSON(http.StatusCreated, entry)
	}
}

func (h *Handler) removeHistory(c *gin.Context) {
	ts, err := time.Parse(time.RFC3339Nano, c.Param("ts"))
	if err != nil {
		jsonErr(c, http.StatusBadRequest, "timestamp must be RFC 3339")
		return
	}
	removed, err := h.History.Remove(ts)
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	if !removed {
		jsonErr(c, http.StatusNotFound, "history entry not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearHistory(c *gin.Context) {
	if err := h.History.Clear(); err != nil {
		h.historyFailed(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) timeframe(c *gin.Context) (history.Timeframe, bool) {
	tf, err := history.ParseTimeframe(c.Query("timeframe"))
	if err != nil {
		jsonErr(c, http.StatusBadRequest, "timeframe must be one of all, week, month")
		return "", false
	}
	return tf, true
}

func (h *Handler) historyFailed(c *gin.Context, err error) {
	slog.Error("api: history", "path", c.FullPath(), "err", err)
	jsonErr(c, http.StatusInternalServerError, "history storage failed")
}

// --- helpers ----------------------------------------------------------------

// commandFailed reports a failed monitor command. The body carries the
// snapshot's error message so API clients and stream observers agree.
func (h *Handler) commandFailed(c *gin.Context, err error, fallback string) {
	msg := fallback
	if e := h.Store.Snapshot().Error; e != nil {
		msg = *e
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrNoConnection):
		code = http.StatusServiceUnavailable
		msg = monitor.MsgNoConnection
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusRequestTimeout
		msg = "request ended before the measurement finished"
	}
	slog.Warn("api: command failed", "path", c.FullPath(), "err", err)
	jsonErr(c, code, msg)
}

func queryBool(c *gin.Context, key string) (bool, error) {
	v, ok := c.GetQuery(key)
	if !ok || v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return b, nil
}

func jsonErr(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}

