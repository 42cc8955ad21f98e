package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	period := 54 * time.Second
	if ctl.Cfg != nil && ctl.Cfg.PingPeriod > 0 {
		period = ctl.Cfg.PingPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
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

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Hub.Disconnect(id)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				return
			}
			ctl.dispatch(id, c, data)
		}
	}
}

func (ctl *Controller) dispatch(id domain.ConnID, c *wsConn, data []byte) {
	kind, err := protocol.DecodeKind(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("rejected message")
		return
	}

	switch kind {
	case protocol.KindJoin:
		ctl.handleJoin(id, data)
	case protocol.KindPart:
		ctl.handlePart(id, data)
	case protocol.KindRename:
		ctl.handleRename(id, c, data)
	case protocol.KindPing:
		ctl.handlePing(c)
	case protocol.KindDescriptor:
		ctl.handleDescriptor(id, data)
	case protocol.KindCandidate:
		ctl.handleCandidate(id, data)
	case protocol.KindChatMessage:
		ctl.handleChat(id, data)
	case protocol.KindMuteStatus, protocol.KindSpeaking:
		ctl.handleStatus(id, kind, data)
	default:
		// Hub→client kinds arriving upstream are protocol violations.
		log.Warn().Str("module", "signal").Str("conn", string(id)).Str("kind", string(kind)).Msg("unexpected message direction")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(frame)
}
