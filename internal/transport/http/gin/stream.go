package httpgin

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	redisrepo "github.com/kirinyoku/bustix/internal/repository/redis"
)

// RouteHub fans route availability changes out to connected SSE clients.
// Slow clients drop messages instead of blocking the feed.
type RouteHub struct {
	mu   sync.Mutex
	subs map[chan redisrepo.RouteChanged]struct{}
}

func NewRouteHub() *RouteHub {
	return &RouteHub{subs: make(map[chan redisrepo.RouteChanged]struct{})}
}

// Broadcast has the handler signature of RoutesPubSub.Subscribe.
func (h *RouteHub) Broadcast(_ context.Context, msg redisrepo.RouteChanged) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *RouteHub) subscribe() chan redisrepo.RouteChanged {
	ch := make(chan redisrepo.RouteChanged, 16)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch
}

func (h *RouteHub) unsubscribe(ch chan redisrepo.RouteChanged) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *RouteHub) clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// @Summary  Stream route availability changes (SSE)
// @Param    route_id  query  string  false  "only events for this route"
// @Produce  text/event-stream
// @Success  200
// @Router   /routes/events [get]
func handleRouteEvents(hub *RouteHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub == nil {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "event stream unavailable"})
			return
		}

		only := c.Query("route_id")
		ch := hub.subscribe()
		defer hub.unsubscribe(ch)

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case <-keepAlive.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			case msg := <-ch:
				if only != "" && msg.RouteID != only {
					return true
				}
				c.SSEvent(msg.Type, msg)
				return true
			}
		})
	}
}
