package audiopolicy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
	"github.com/bmndc/nokia-leo-sub000/internal/dispatch"
)

const requestTimeout = 5 * time.Second

// ControlRequest is the body of POST /api/rpc.
type ControlRequest struct {
	ID     interface{}            `json:"id,omitempty"`
	Method string                 `json:"method" binding:"required"`
	Params map[string]interface{} `json:"params"`
}

// Router returns the status and control HTTP handler.
func (d *Daemon) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/status", d.handleStatus)
	api.GET("/windows", d.handleWindows)
	api.POST("/rpc", d.handleRPC)
	api.GET("/events", d.handleEvents)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (d *Daemon) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var status audiochannel.Status
	err := d.Do(ctx, func(r *audiochannel.Registry) error {
		status = r.Status()
		return nil
	})
	if err != nil {
		abortUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (d *Daemon) handleWindows(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	snapshot, err := d.Snapshot(ctx)
	if err != nil {
		abortUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (d *Daemon) handleRPC(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isControlMethod(req.Method) {
		c.JSON(http.StatusNotFound, gin.H{"id": req.ID, "error": "unknown method " + req.Method})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := d.ControlRPC(ctx, req.Method, req.Params)
	if err != nil {
		if isLoopError(err) {
			abortUnavailable(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"id": req.ID, "error": err.Error()})
		return
	}
	d.logger.Debug().Str("method", req.Method).Interface("params", req.Params).Msg("control rpc handled")
	c.JSON(http.StatusOK, gin.H{"id": req.ID, "result": result})
}

func (d *Daemon) handleEvents(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		d.logger.Warn().Err(err).Msg("failed to accept events websocket")
		return
	}
	d.events.Serve(c.Request.Context(), conn)
}

func isLoopError(err error) bool {
	return errors.Is(err, dispatch.ErrLoopFull) ||
		errors.Is(err, dispatch.ErrLoopStopped) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func abortUnavailable(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
}
