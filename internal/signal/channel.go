package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

func (ctl *Controller) handleJoin(id domain.ConnID, data []byte) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}
	if p.Channel == "" {
		p.Channel = "main"
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("channel", string(p.Channel)).Msg("join")
	ctl.Hub.Join(id, p.Channel, p.DisplayName)
}

func (ctl *Controller) handlePart(id domain.ConnID, data []byte) {
	var p protocol.Part
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad part payload")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("channel", string(p.Channel)).Msg("part")
	ctl.Hub.Leave(id, p.Channel)
}

func (ctl *Controller) handleRename(id domain.ConnID, c *wsConn, data []byte) {
	var p protocol.Rename
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad rename payload")
		return
	}
	if err := ctl.Hub.Rename(id, p.Name); err != nil {
		ctl.sendJSON(c, protocol.Error{Type: protocol.KindError, Error: err.Error()})
	}
}
