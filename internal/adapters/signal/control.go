package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/rs/zerolog/log"
)

type statusFrame struct {
	Type   string         `json:"type"`
	Member *domain.Member `json:"member"`
	Error  string         `json:"error,omitempty"`
}

func (ctl *StatusWSController) handlePing(conn *WsStatusConn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}

// pollLoop pushes a status frame on connect and whenever the member record changes.
func (ctl *StatusWSController) pollLoop(ctx context.Context, id domain.ClientID, conn *WsStatusConn) {
	ticker := time.NewTicker(ctl.Poll)
	defer ticker.Stop()

	var last []byte
	for {
		frame := ctl.status(ctx, id)
		b, err := json.Marshal(frame)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("status marshal")
			return
		}
		if !bytes.Equal(b, last) {
			if err := conn.TrySend(b); errors.Is(err, ErrClosed) {
				return
			} else if err == nil {
				last = b
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (ctl *StatusWSController) status(ctx context.Context, id domain.ClientID) statusFrame {
	m, err := ctl.Source.GetMemberStatus(ctx, id)
	switch {
	case err == nil:
		return statusFrame{Type: "status", Member: &m}
	case errors.Is(err, domain.ErrNotFound):
		return statusFrame{Type: "status", Error: "not_found"}
	default:
		return statusFrame{Type: "status", Error: "unavailable"}
	}
}
