// Package signal is the WebSocket transport for real-time events.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/owndc/internal/app/orch"
	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Settings tunes every connection the controller accepts.
type Settings struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	SendBuffer   int
	WriteTimeout time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.ReadLimit <= 0 {
		s.ReadLimit = 32 << 10
	}
	if s.PingPeriod <= 0 {
		s.PingPeriod = 54 * time.Second
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = 256
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 5 * time.Second
	}
	return s
}

// pongWait is how long the peer may stay silent before the read fails.
func (s Settings) pongWait() time.Duration {
	return s.PingPeriod * 10 / 9
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Limiter  *RateLimiter
	Metrics  *observability.Metrics
	settings Settings
}

func NewSignalWSController(o *orch.Orchestrator, limiter *RateLimiter, metrics *observability.Metrics, s Settings) *SignalWSController {
	return &SignalWSController{
		Orch:     o,
		Limiter:  limiter,
		Metrics:  metrics,
		settings: s.withDefaults(),
	}
}

// WSConn is the subset of *websocket.Conn the pumps use.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WsSignalConn queues outbound frames for the write pump. The queue is
// bounded; a full queue fails the send instead of blocking the caller.
type WsSignalConn struct {
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func NewWsSignalConn(conn WSConn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is the per-connection state the dispatcher needs.
type client struct {
	sid core.SessionID
	// hint is the user id of the HTTP login session, if any. An
	// authenticate event without a user id falls back to it.
	hint domain.UserID
}

// HandleSignal upgrades the request and runs the connection until the
// peer goes away. ctx bounds the connection's lifetime.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	cl := &client{
		sid:  core.SessionID(uuid.NewString()),
		hint: domain.UserID(c.GetString("user_id")),
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(cl.sid)).Str("remote", c.ClientIP()).Msg("new WS connection")

	conn := NewWsSignalConn(ws, ctl.settings.SendBuffer)
	ctl.Orch.Connect(cl.sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, cl.sid, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, cl, conn)
	}()
}
