package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fairyhunter13/sentiment-pipeline/internal/adapter/observability"
	"github.com/fairyhunter13/sentiment-pipeline/internal/domain"
	"github.com/fairyhunter13/sentiment-pipeline/internal/usecase"
	"github.com/fairyhunter13/sentiment-pipeline/pkg/textx"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// previewLimit caps the content preview in new_post frames, in runes.
	previewLimit = 100
)

// Gateway fans live post events and periodic metrics out to websocket
// subscribers. It owns the connection set for the whole process lifetime.
type Gateway struct {
	Bus             domain.Bus
	Agg             usecase.AggregateService
	UpdatesChannel  string
	MetricsInterval time.Duration

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*subscriber]struct{}
}

// NewGateway constructs a Gateway. metricsInterval is how often each
// subscriber receives a metrics_update frame.
func NewGateway(bus domain.Bus, agg usecase.AggregateService, updatesChannel string, metricsInterval time.Duration) *Gateway {
	if metricsInterval <= 0 {
		metricsInterval = 30 * time.Second
	}
	return &Gateway{
		Bus:             bus,
		Agg:             agg,
		UpdatesChannel:  updatesChannel,
		MetricsInterval: metricsInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin policy is enforced by the CORS layer at the router.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*subscriber]struct{}),
	}
}

// subscriber is one connected websocket peer. Frames are funneled through
// send so only the write pump touches the connection.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Handler upgrades the connection and services it until disconnect.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			LoggerFrom(r).Warn("websocket upgrade failed", slog.Any("error", err))
			return
		}
		sub := &subscriber{
			conn: conn,
			send: make(chan []byte, 64),
			done: make(chan struct{}),
		}
		g.register(sub)
		defer g.unregister(sub)

		sub.enqueue(mustFrame(map[string]any{
			"type":      "connected",
			"message":   "subscribed to sentiment updates",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}), "connected")

		go g.writePump(sub)
		go g.updatesProducer(r.Context(), sub)
		go g.metricsProducer(r.Context(), sub)

		// Read pump: we ignore client frames but need the read loop to
		// notice disconnects and answer pings.
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		sub.close()
	}
}

// SubscriberCount returns the current connection count.
func (g *Gateway) SubscriberCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) register(sub *subscriber) {
	g.mu.Lock()
	g.conns[sub] = struct{}{}
	g.mu.Unlock()
	observability.PushSubscribers.Inc()
}

func (g *Gateway) unregister(sub *subscriber) {
	g.mu.Lock()
	_, ok := g.conns[sub]
	if ok {
		delete(g.conns, sub)
	}
	g.mu.Unlock()
	if ok {
		observability.PushSubscribers.Dec()
	}
	sub.close()
	_ = sub.conn.Close()
}

// enqueue offers a frame to the subscriber without blocking. A full send
// buffer means the peer is too slow; dropping the connection applies
// backpressure without affecting other subscribers.
func (s *subscriber) enqueue(frame []byte, frameType string) {
	if frame == nil {
		return
	}
	select {
	case s.send <- frame:
		observability.PushFramesSentTotal.WithLabelValues(frameType).Inc()
	case <-s.done:
	default:
		s.close()
	}
}

// writePump is the only goroutine writing to the connection.
func (g *Gateway) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.close()
		_ = sub.conn.Close()
	}()
	for {
		select {
		case <-sub.done:
			return
		case frame := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// updatesProducer bridges the pub/sub channel to new_post frames.
func (g *Gateway) updatesProducer(ctx domain.Context, sub *subscriber) {
	if g.Bus == nil {
		return
	}
	pubsub, err := g.Bus.Subscribe(ctx, g.UpdatesChannel)
	if err != nil {
		slog.Warn("updates subscription failed", slog.Any("error", err))
		sub.close()
		return
	}
	defer func() { _ = pubsub.Close() }()

	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		case payload, ok := <-pubsub.Messages():
			if !ok {
				return
			}
			ev, err := domain.DecodePostEvent(payload)
			if err != nil {
				continue
			}
			ev.Content = textx.TruncateRunes(ev.Content, previewLimit)
			sub.enqueue(mustFrame(map[string]any{
				"type": "new_post",
				"data": ev,
			}), "new_post")
		}
	}
}

// metricsProducer pushes a metrics_update frame every interval.
func (g *Gateway) metricsProducer(ctx domain.Context, sub *subscriber) {
	ticker := time.NewTicker(g.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := g.Agg.MetricsSnapshot(ctx)
			if err != nil {
				slog.Debug("metrics snapshot failed", slog.Any("error", err))
				continue
			}
			sub.enqueue(mustFrame(map[string]any{
				"type":      "metrics_update",
				"data":      frame,
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}), "metrics_update")
		}
	}
}

func mustFrame(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
