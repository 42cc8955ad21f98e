package peer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
)

// State is the lifecycle of one peer session.
type State int32

const (
	StateCreated State = iota
	StateOffering
	StateAwaitingOffer
	StateStable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOffering:
		return "offering"
	case StateAwaitingOffer:
		return "awaiting-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

type event interface{}

type remoteDescriptorEvent struct{ desc Descriptor }
type remoteCandidateEvent struct{ cand Candidate }
type localCandidateEvent struct{ cand Candidate }

// Session negotiates media with exactly one remote connection. All hub and
// engine events for the session are funneled through a single-consumer
// queue, so within a session everything runs in arrival order; sessions for
// different peers are independent.
type Session struct {
	peerID      domain.ConnID
	displayName string
	initiator   bool
	engine      Engine
	sender      SignalSender
	policy      Policy

	onTrack func(domain.ConnID, Track)
	onState func(domain.ConnID, State)

	state  atomic.Int32
	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	trackMu     sync.Mutex
	seenStreams map[string]struct{}
}

// NewSession wires a machine to its engine. The initiator flag is decided
// once at creation and never changes. Call Start to begin negotiating.
func NewSession(peerID domain.ConnID, displayName string, initiator bool, engine Engine, sender SignalSender, policy Policy) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if policy == nil {
		policy = func(d string) string { return d }
	}
	return &Session{
		peerID:      peerID,
		displayName: displayName,
		initiator:   initiator,
		engine:      engine,
		sender:      sender,
		policy:      policy,
		events:      make(chan event, 64),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		seenStreams: make(map[string]struct{}),
	}
}

func (s *Session) PeerID() domain.ConnID { return s.peerID }
func (s *Session) DisplayName() string   { return s.displayName }
func (s *Session) Initiator() bool       { return s.initiator }

func (s *Session) State() State { return State(s.state.Load()) }

// OnRemoteTrack registers the audio-sink attachment callback. It fires once
// per remote media stream. Set before Start.
func (s *Session) OnRemoteTrack(fn func(domain.ConnID, Track)) { s.onTrack = fn }

// OnStateChange registers a state observer. Set before Start. The callback
// may be invoked from the session's own goroutine or, for StateClosed, from
// the caller of Close.
func (s *Session) OnStateChange(fn func(domain.ConnID, State)) { s.onState = fn }

// Start hooks the engine callbacks and launches the event loop. The
// initiator side produces its offer immediately.
func (s *Session) Start() {
	s.engine.OnLocalCandidate(func(c Candidate) {
		s.enqueue(localCandidateEvent{cand: c})
	})
	s.engine.OnRemoteTrack(func(t Track) {
		s.trackMu.Lock()
		if _, seen := s.seenStreams[t.StreamID]; seen {
			s.trackMu.Unlock()
			return
		}
		s.seenStreams[t.StreamID] = struct{}{}
		s.trackMu.Unlock()
		if s.onTrack != nil {
			s.onTrack(s.peerID, t)
		}
	})
	s.engine.OnConnectionStateChange(func(state string) {
		// Observed for UI only; connectivity failure detection belongs to
		// the engine, retry belongs to the user.
		log.Debug().Str("module", "peer").Str("peer", string(s.peerID)).Str("conn_state", state).Msg("engine connection state")
	})
	go s.run()
}

// HandleRemoteDescriptor queues a descriptor delivered by the hub.
func (s *Session) HandleRemoteDescriptor(d Descriptor) {
	s.enqueue(remoteDescriptorEvent{desc: d})
}

// HandleRemoteCandidate queues a candidate delivered by the hub. Candidates
// are applied in arrival order and never discarded while the session lives.
func (s *Session) HandleRemoteCandidate(c Candidate) {
	s.enqueue(remoteCandidateEvent{cand: c})
}

// Close releases the engine and stops the loop. Idempotent. Results of any
// offer/answer production still in flight are discarded, never acted on.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.engine.Close(); err != nil {
			log.Debug().Err(err).Str("module", "peer").Str("peer", string(s.peerID)).Msg("engine close")
		}
		s.transition(StateClosed)
		log.Info().Str("module", "peer").Str("peer", string(s.peerID)).Msg("session closed")
	})
}

func (s *Session) enqueue(ev event) {
	select {
	case <-s.ctx.Done():
		log.Debug().Str("module", "peer").Str("peer", string(s.peerID)).Msg("event after close dropped")
	case s.events <- ev:
	}
}

func (s *Session) run() {
	defer close(s.done)
	if s.initiator {
		s.sendOffer()
	} else {
		s.transition(StateAwaitingOffer)
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case remoteDescriptorEvent:
		s.handleDescriptor(ev.desc)
	case remoteCandidateEvent:
		if err := s.engine.AddRemoteCandidate(ev.cand); err != nil {
			s.fail("add remote candidate", err)
		}
	case localCandidateEvent:
		if err := s.sender.SendCandidate(s.peerID, ev.cand); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("peer", string(s.peerID)).Msg("send candidate")
		}
	}
}

func (s *Session) handleDescriptor(d Descriptor) {
	switch d.Type {
	case DescriptorOffer:
		if st := s.State(); st != StateCreated && st != StateAwaitingOffer {
			log.Warn().Str("module", "peer").Str("peer", string(s.peerID)).Str("state", st.String()).Msg("offer in unexpected state ignored")
			return
		}
		if err := s.engine.SetRemoteDescription(d); err != nil {
			s.fail("apply remote offer", err)
			return
		}
		answer, err := s.engine.CreateAnswer(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.fail("create answer", err)
			return
		}
		if s.ctx.Err() != nil {
			return // closed while producing, discard
		}
		answer.SDP = s.policy(answer.SDP)
		if err := s.engine.SetLocalDescription(answer); err != nil {
			s.fail("apply local answer", err)
			return
		}
		if err := s.sender.SendDescriptor(s.peerID, answer); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("peer", string(s.peerID)).Msg("send answer")
		}
		s.transition(StateStable)
	case DescriptorAnswer:
		if st := s.State(); st != StateOffering {
			log.Warn().Str("module", "peer").Str("peer", string(s.peerID)).Str("state", st.String()).Msg("answer without pending offer ignored")
			return
		}
		if err := s.engine.SetRemoteDescription(d); err != nil {
			s.fail("apply remote answer", err)
			return
		}
		s.transition(StateStable)
	default:
		log.Warn().Str("module", "peer").Str("peer", string(s.peerID)).Str("sdp_type", d.Type).Msg("unknown descriptor type ignored")
	}
}

func (s *Session) sendOffer() {
	offer, err := s.engine.CreateOffer(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return // closed while producing, discard
		}
		s.fail("create offer", err)
		return
	}
	if s.ctx.Err() != nil {
		return // closed while producing, discard
	}
	offer.SDP = s.policy(offer.SDP)
	if err := s.engine.SetLocalDescription(offer); err != nil {
		s.fail("apply local offer", err)
		return
	}
	if err := s.sender.SendDescriptor(s.peerID, offer); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("peer", string(s.peerID)).Msg("send offer")
	}
	s.transition(StateOffering)
}

// fail surfaces an engine rejection: the session goes to closed and is not
// retried. Rejoining is the user's retry path.
func (s *Session) fail(op string, err error) {
	log.Error().Err(err).Str("module", "peer").Str("peer", string(s.peerID)).Str("op", op).Msg("media negotiation failed")
	s.Close()
}

func (s *Session) transition(next State) {
	for {
		cur := s.state.Load()
		if State(cur) == next {
			return
		}
		// closed is terminal; a stale continuation must not resurrect it.
		if State(cur) == StateClosed {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			break
		}
	}
	log.Debug().Str("module", "peer").Str("peer", string(s.peerID)).Str("state", next.String()).Msg("session state")
	if s.onState != nil {
		s.onState(s.peerID, next)
	}
}
