package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// StatusSource is the read side of the orchestrator the stream polls.
type StatusSource interface {
	GetMemberStatus(ctx context.Context, id domain.ClientID) (domain.Member, error)
}

// StatusWSController pushes membership status changes of one client over a websocket.
type StatusWSController struct {
	Source StatusSource
	Poll   time.Duration
}

func NewStatusWSController(src StatusSource, poll time.Duration) *StatusWSController {
	if poll <= 0 {
		poll = time.Second
	}
	return &StatusWSController{Source: src, Poll: poll}
}

type WsStatusConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *WsStatusConn) TrySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsStatusConn) Close() {
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
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *StatusWSController) HandleStatus(ctx context.Context, c *gin.Context, clientID string) {
	if clientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}
	id := domain.ClientID(clientID)
	log.Info().Str("module", "signal").Str("client_id", clientID).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsStatusConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.pollLoop(ctx, id, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, id, conn)
	}()
}
