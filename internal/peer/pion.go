package peer

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// EngineConfig carries the transport knobs for the pion engine.
type EngineConfig struct {
	STUNServers []string
}

// pionEngine implements Engine on top of a pion PeerConnection. Remote
// candidates that arrive before the remote description are held and flushed
// once it is applied.
type pionEngine struct {
	pc *webrtc.PeerConnection

	mu          sync.Mutex
	pending     []Candidate
	onCandidate func(Candidate)
	onTrack     func(Track)
	onConnState func(string)
}

// NewPionEngine builds a PeerConnection with one audio transceiver so that
// produced offers always carry an audio section.
func NewPionEngine(cfg EngineConfig) (Engine, error) {
	servers := cfg.STUNServers
	if len(servers) == 0 {
		servers = []string{"stun:stun.l.google.com:19302"}
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	})
	if err != nil {
		return nil, err
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		_ = pc.Close()
		return nil, err
	}

	e := &pionEngine{pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		var idx uint16
		if ci.SDPMLineIndex != nil {
			idx = *ci.SDPMLineIndex
		}
		e.mu.Lock()
		fn := e.onCandidate
		e.mu.Unlock()
		if fn != nil {
			fn(Candidate{MLineIndex: idx, Candidate: ci.Candidate})
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Debug().Str("module", "peer.pion").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Str("stream_id", track.StreamID()).Msg("remote track")
		e.mu.Lock()
		fn := e.onTrack
		e.mu.Unlock()
		if fn != nil {
			fn(Track{Kind: track.Kind().String(), ID: track.ID(), StreamID: track.StreamID()})
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.mu.Lock()
		fn := e.onConnState
		e.mu.Unlock()
		if fn != nil {
			fn(s.String())
		}
	})

	return e, nil
}

func (e *pionEngine) CreateOffer(ctx context.Context) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Type: DescriptorOffer, SDP: offer.SDP}, nil
}

func (e *pionEngine) CreateAnswer(ctx context.Context) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Type: DescriptorAnswer, SDP: answer.SDP}, nil
}

func (e *pionEngine) SetLocalDescription(d Descriptor) error {
	return e.pc.SetLocalDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	})
}

func (e *pionEngine) SetRemoteDescription(d Descriptor) error {
	if err := e.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(d.Type),
		SDP:  d.SDP,
	}); err != nil {
		return err
	}
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()
	for _, c := range pending {
		if err := e.addCandidate(c); err != nil {
			return err
		}
	}
	return nil
}

func (e *pionEngine) AddRemoteCandidate(c Candidate) error {
	e.mu.Lock()
	if e.pc.RemoteDescription() == nil {
		e.pending = append(e.pending, c)
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return e.addCandidate(c)
}

func (e *pionEngine) addCandidate(c Candidate) error {
	idx := c.MLineIndex
	return e.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &idx,
	})
}

func (e *pionEngine) OnLocalCandidate(fn func(Candidate)) {
	e.mu.Lock()
	e.onCandidate = fn
	e.mu.Unlock()
}

func (e *pionEngine) OnRemoteTrack(fn func(Track)) {
	e.mu.Lock()
	e.onTrack = fn
	e.mu.Unlock()
}

func (e *pionEngine) OnConnectionStateChange(fn func(string)) {
	e.mu.Lock()
	e.onConnState = fn
	e.mu.Unlock()
}

func (e *pionEngine) Close() error {
	return e.pc.Close()
}
