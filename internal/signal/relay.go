package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

// Descriptor and candidate frames are forwarded without validating their
// contents; the only field the hub touches is peerId, which is swapped from
// target addressing to sender annotation so the recipient can reply.

func (ctl *Controller) handleDescriptor(id domain.ConnID, data []byte) {
	var p protocol.Descriptor
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad descriptor payload")
		return
	}
	to := p.PeerID
	p.PeerID = id
	frame, err := protocol.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode descriptor")
		return
	}
	ctl.Hub.Relay(id, to, frame)
}

func (ctl *Controller) handleCandidate(id domain.ConnID, data []byte) {
	var p protocol.Candidate
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	to := p.PeerID
	p.PeerID = id
	frame, err := protocol.Encode(p)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode candidate")
		return
	}
	ctl.Hub.Relay(id, to, frame)
}
