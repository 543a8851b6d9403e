package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/leozw/storefront-controlplane/internal/core"
	"github.com/leozw/storefront-controlplane/internal/lifecycle"
)

const (
	streamBuffer    = 16
	streamKeepAlive = 30 * time.Second
)

type streamEvent struct {
	name string
	data any
}

// Stream pushes health snapshots, tenant health and tenant lifecycle events
// as server-sent events. Slow clients miss events rather than blocking the
// publishers.
func (h *Handler) Stream(c *gin.Context) {
	events := make(chan streamEvent, streamBuffer)
	offer := func(ev streamEvent) {
		select {
		case events <- ev:
		default:
		}
	}

	unsubscribe := []func(){
		h.svc.Subscribe(func(*core.Snapshot) {
			offer(streamEvent{name: "health", data: h.svc.GetHealthSnapshot()})
		}),
		h.svc.SubscribeTenants(func(s *core.TenantHealthSnapshot) {
			offer(streamEvent{name: "tenant_health", data: s})
		}),
		h.svc.SubscribeTenantEvents(func(e lifecycle.Event) {
			offer(streamEvent{name: "tenant", data: e})
		}),
	}
	defer func() {
		for _, fn := range unsubscribe {
			fn()
		}
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("health", h.svc.GetHealthSnapshot())
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	ctx := c.Request.Context()
	h.logger.Debug("Stream client connected", zap.String("client_ip", c.ClientIP()))

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent(ev.name, ev.data)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		}
	})

	h.logger.Debug("Stream client disconnected", zap.String("client_ip", c.ClientIP()))
}
