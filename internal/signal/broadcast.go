package signal

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

func (ctl *Controller) handleChat(id domain.ConnID, data []byte) {
	var p protocol.ChatMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad chat payload")
		return
	}
	p.PeerID = id
	p.DisplayName = ctl.Hub.DisplayName(id)
	if p.Timestamp == 0 {
		p.Timestamp = time.Now().Unix()
	}

	channels := []domain.ChannelName{p.Channel}
	if p.Channel == "" {
		channels = ctl.Hub.ChannelsOf(id)
	}
	for _, ch := range channels {
		msg := p
		msg.Channel = ch
		frame, err := protocol.Encode(msg)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("encode chat")
			return
		}
		ctl.Hub.Broadcast(ch, id, frame, true)
	}
}

// handleStatus relays mute and speaking notifications to every channel the
// sender belongs to, stamped with the sender's id.
func (ctl *Controller) handleStatus(id domain.ConnID, kind protocol.Kind, data []byte) {
	var p protocol.Status
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad status payload")
		return
	}
	p.Type = kind
	p.PeerID = id

	channels := []domain.ChannelName{p.Channel}
	if p.Channel == "" {
		channels = ctl.Hub.ChannelsOf(id)
	}
	for _, ch := range channels {
		msg := p
		msg.Channel = ch
		frame, err := protocol.Encode(msg)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("encode status")
			return
		}
		ctl.Hub.Broadcast(ch, id, frame, true)
	}
}
