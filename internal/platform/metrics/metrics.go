// Package metrics provides observability counters for the game
// server: sessions, ticks, order flow, and websocket traffic.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance counters. All counters are atomic;
// Snapshot gives a consistent-enough read for dashboards.
type Collector struct {
	SessionsCreated int64
	SessionsActive  int64

	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64

	OrdersAccepted int64
	OrdersRejected int64
	OrdersSettled  int64
	OrdersDropped  int64

	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64

	StartTime time.Time
	mu        sync.RWMutex
	lastTick  time.Time
}

var collector = &Collector{StartTime: time.Now()}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

// RecordSessionCreated records a new session.
func (c *Collector) RecordSessionCreated() {
	atomic.AddInt64(&c.SessionsCreated, 1)
	atomic.AddInt64(&c.SessionsActive, 1)
}

// RecordSessionRemoved records a session leaving the registry.
func (c *Collector) RecordSessionRemoved() {
	atomic.AddInt64(&c.SessionsActive, -1)
}

// RecordTick records a completed tick cycle.
func (c *Collector) RecordTick(latency time.Duration) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))

	// Update max (non-atomic but acceptable for metrics)
	if int64(latency) > atomic.LoadInt64(&c.TickLatencyMax) {
		atomic.StoreInt64(&c.TickLatencyMax, int64(latency))
	}

	c.mu.Lock()
	c.lastTick = time.Now()
	c.mu.Unlock()
}

// RecordOrderAccepted counts a valid order entering an intake queue.
func (c *Collector) RecordOrderAccepted() { atomic.AddInt64(&c.OrdersAccepted, 1) }

// RecordOrderRejected counts a synchronously rejected order.
func (c *Collector) RecordOrderRejected() { atomic.AddInt64(&c.OrdersRejected, 1) }

// RecordOrderSettled counts an order applied during a tick.
func (c *Collector) RecordOrderSettled() { atomic.AddInt64(&c.OrdersSettled, 1) }

// RecordOrderDropped counts a sell dropped at settlement time.
func (c *Collector) RecordOrderDropped() { atomic.AddInt64(&c.OrdersDropped, 1) }

// RecordWSConnection records websocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records websocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	lastTick := c.lastTick
	c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	var tickAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"sessions": map[string]interface{}{
			"created": atomic.LoadInt64(&c.SessionsCreated),
			"active":  atomic.LoadInt64(&c.SessionsActive),
		},

		"tick": map[string]interface{}{
			"count":          tickCount,
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick.Format(time.RFC3339),
		},

		"orders": map[string]interface{}{
			"accepted": atomic.LoadInt64(&c.OrdersAccepted),
			"rejected": atomic.LoadInt64(&c.OrdersRejected),
			"settled":  atomic.LoadInt64(&c.OrdersSettled),
			"dropped":  atomic.LoadInt64(&c.OrdersDropped),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		json.NewEncoder(w).Encode(collector.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		c := collector

		fmt.Fprintf(w, "# HELP crash_sessions_created Total sessions created\n")
		fmt.Fprintf(w, "# TYPE crash_sessions_created counter\n")
		fmt.Fprintf(w, "crash_sessions_created %d\n\n", atomic.LoadInt64(&c.SessionsCreated))

		fmt.Fprintf(w, "# HELP crash_sessions_active Sessions currently registered\n")
		fmt.Fprintf(w, "# TYPE crash_sessions_active gauge\n")
		fmt.Fprintf(w, "crash_sessions_active %d\n\n", atomic.LoadInt64(&c.SessionsActive))

		fmt.Fprintf(w, "# HELP crash_tick_count Total tick cycles\n")
		fmt.Fprintf(w, "# TYPE crash_tick_count counter\n")
		fmt.Fprintf(w, "crash_tick_count %d\n\n", atomic.LoadInt64(&c.TickCount))

		fmt.Fprintf(w, "# HELP crash_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE crash_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "crash_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP crash_orders_total Order flow by outcome\n")
		fmt.Fprintf(w, "# TYPE crash_orders_total counter\n")
		fmt.Fprintf(w, "crash_orders_total{outcome=\"accepted\"} %d\n", atomic.LoadInt64(&c.OrdersAccepted))
		fmt.Fprintf(w, "crash_orders_total{outcome=\"rejected\"} %d\n", atomic.LoadInt64(&c.OrdersRejected))
		fmt.Fprintf(w, "crash_orders_total{outcome=\"settled\"} %d\n", atomic.LoadInt64(&c.OrdersSettled))
		fmt.Fprintf(w, "crash_orders_total{outcome=\"dropped\"} %d\n\n", atomic.LoadInt64(&c.OrdersDropped))

		fmt.Fprintf(w, "# HELP crash_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE crash_ws_connections gauge\n")
		fmt.Fprintf(w, "crash_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP crash_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE crash_ws_messages_total counter\n")
		fmt.Fprintf(w, "crash_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "crash_ws_messages_total{direction=\"out\"} %d\n", atomic.LoadInt64(&c.WSMessagesOut))
	}
}
