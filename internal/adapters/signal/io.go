package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// writePump owns the write side. Any exit closes the connection, which
// unblocks readPump and stops pollLoop.
func (ctl *StatusWSController) writePump(ctx context.Context, c *WsStatusConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *StatusWSController) readPump(ctx context.Context, id domain.ClientID, c *WsStatusConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("client_id", string(id)).Msg("readPump closing")
		c.Close()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("client_id", string(id)).Msg("readPump read error")
			return
		}
		ctl.handleSignal(id, c, data)
	}
}

func (ctl *StatusWSController) handleSignal(id domain.ClientID, c *WsStatusConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("client_id", string(id)).Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *StatusWSController) sendJSON(c *WsStatusConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("sendJSON dropped")
	}
}
