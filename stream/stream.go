// Package stream pushes shell events (window visibility, devtools, job
// progress) to connected front-ends over server-sent events.
package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stevecastle/vdr/logging"
)

const (
	// Maximum number of concurrent SSE connections allowed
	MaxConcurrentConnections = 64
	// Buffer size for each client's message channel
	ClientChannelBuffer = 64
	// How often to send keep-alive messages
	KeepAliveInterval = 30 * time.Second
	// How often to cleanup dead connections
	CleanupInterval = 60 * time.Second
	// Buffer size for hub broadcast queue
	HubBroadcastBuffer = 256
)

// Event types sent to the front-end.
const (
	TypeConnected = "connected"
	TypeWindow    = "window"
	TypeDevTools  = "devtools"
	TypeJob       = "job"
	TypeQuit      = "quit"
)

// Message is one SSE event. Msg is sent verbatim as the data line.
type Message struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// JSONMessage builds a Message whose payload is v encoded as JSON.
func JSONMessage(typ string, v any) Message {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{}`)
	}
	return Message{Type: typ, Msg: string(b)}
}

type clientChan chan Message

type client struct {
	ID           string
	LastSeen     int64 // Unix timestamp
	RemoteAddr   string
	UserAgent    string
	Connected    int64
	MessagesSent int64

	gone chan struct{} // closed when the hub drops the client
}

func (cl *client) touch() {
	atomic.StoreInt64(&cl.LastSeen, time.Now().Unix())
}

// Hub fans messages out to every connected client without blocking producers.
type Hub struct {
	clients           sync.Map // map[clientChan]*client
	activeCount       int64
	totalMessages     int64
	broadcast         chan Message
	droppedBroadcasts int64
	droppedClientMsgs int64
	rejectedConns     int64
	shutdown          chan struct{}
	shutdownOnce      sync.Once
	keepAlive         time.Duration
	log               zerolog.Logger
}

// NewHub starts the broadcast and cleanup loops.
func NewHub() *Hub {
	h := &Hub{
		shutdown:  make(chan struct{}),
		broadcast: make(chan Message, HubBroadcastBuffer),
		keepAlive: KeepAliveInterval,
		log:       logging.Component("stream"),
	}
	go h.runBroadcastLoop()
	go h.cleanupRoutine()
	return h
}

// Stats returns current connection statistics.
func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"active_connections":   atomic.LoadInt64(&h.activeCount),
		"total_messages":       atomic.LoadInt64(&h.totalMessages),
		"max_connections":      MaxConcurrentConnections,
		"dropped_broadcasts":   atomic.LoadInt64(&h.droppedBroadcasts),
		"dropped_client_msgs":  atomic.LoadInt64(&h.droppedClientMsgs),
		"rejected_connections": atomic.LoadInt64(&h.rejectedConns),
	}
}

// Active reports how many front-ends are attached.
func (h *Hub) Active() int {
	return int(atomic.LoadInt64(&h.activeCount))
}

// addClient registers c. It returns nil when the hub is full.
func (h *Hub) addClient(c clientChan, remoteAddr, userAgent string) *client {
	if atomic.LoadInt64(&h.activeCount) >= MaxConcurrentConnections {
		atomic.AddInt64(&h.rejectedConns, 1)
		h.log.Warn().Str("remote", remoteAddr).Msg("connection limit reached, rejecting client")
		return nil
	}

	now := time.Now().Unix()
	cl := &client{
		ID:         uuid.NewString(),
		LastSeen:   now,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		Connected:  now,
		gone:       make(chan struct{}),
	}
	h.clients.Store(c, cl)
	n := atomic.AddInt64(&h.activeCount, 1)
	h.log.Debug().Str("client", cl.ID).Int64("total", n).Msg("client connected")
	return cl
}

func (h *Hub) removeClient(c clientChan) {
	v, ok := h.clients.LoadAndDelete(c)
	if !ok {
		return
	}
	// The message channel is left open: the broadcast loop may still hold
	// it. Closing gone ends the client's handler so the front-end reconnects.
	cl := v.(*client)
	close(cl.gone)
	n := atomic.AddInt64(&h.activeCount, -1)
	h.log.Debug().Str("client", cl.ID).Int64("total", n).Msg("client disconnected")
}

// Broadcast enqueues a message for fan-out. When the hub is saturated the
// message is dropped rather than blocking the caller.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		atomic.AddInt64(&h.droppedBroadcasts, 1)
	}
}

func (h *Hub) runBroadcastLoop() {
	for {
		select {
		case msg := <-h.broadcast:
			h.clients.Range(func(key, value any) bool {
				c := key.(clientChan)
				cl := value.(*client)
				select {
				case c <- msg:
					atomic.StoreInt64(&cl.LastSeen, time.Now().Unix())
					atomic.AddInt64(&cl.MessagesSent, 1)
					atomic.AddInt64(&h.totalMessages, 1)
				default:
					atomic.AddInt64(&h.droppedClientMsgs, 1)
				}
				return true
			})
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) cleanupRoutine() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupStale(time.Now().Unix() - int64(CleanupInterval.Seconds()*2))
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) cleanupStale(threshold int64) int {
	var stale []clientChan
	h.clients.Range(func(key, value any) bool {
		if atomic.LoadInt64(&value.(*client).LastSeen) < threshold {
			stale = append(stale, key.(clientChan))
		}
		return true
	})
	if len(stale) > 0 {
		h.log.Info().Int("count", len(stale)).Msg("cleaning up stale connections")
		for _, c := range stale {
			h.removeClient(c)
		}
	}
	return len(stale)
}

// Shutdown stops the loops and disconnects every client. Safe to call twice.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
		h.clients.Range(func(key, _ any) bool {
			h.removeClient(key.(clientChan))
			return true
		})
		h.log.Info().Msg("stream hub shut down")
	})
}

// ServeHTTP handles the SSE endpoint.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.shutdown:
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("Content-Encoding")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	messageChan := make(clientChan, ClientChannelBuffer)
	cl := h.addClient(messageChan, r.RemoteAddr, r.UserAgent())
	if cl == nil {
		http.Error(w, "Server at capacity", http.StatusServiceUnavailable)
		return
	}
	defer h.removeClient(messageChan)

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	hello := Message{Type: TypeConnected, Msg: `{"msg":"SSE connection established"}`}
	if _, err := io.WriteString(w, formatSSE(hello)); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.shutdown:
			return
		case <-cl.gone:
			return
		case msg := <-messageChan:
			if _, err := io.WriteString(w, formatSSE(msg)); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
			cl.touch()
		}
	}
}

func formatSSE(msg Message) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", msg.Type, msg.Msg)
}
