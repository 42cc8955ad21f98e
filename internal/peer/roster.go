package peer

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
)

// Roster reconciles the local session set against hub-delivered join/leave
// events. Invariant: the live sessions always equal the remote identifiers
// the hub currently reports as co-members, excluding self.
type Roster struct {
	engines EngineFactory
	sender  SignalSender
	policy  Policy

	onTrack func(domain.ConnID, Track)
	onState func(domain.ConnID, State)

	mu       sync.Mutex
	sessions map[domain.ConnID]*Session
}

func NewRoster(engines EngineFactory, sender SignalSender, policy Policy) *Roster {
	return &Roster{
		engines:  engines,
		sender:   sender,
		policy:   policy,
		sessions: make(map[domain.ConnID]*Session),
	}
}

func (r *Roster) OnTrack(fn func(domain.ConnID, Track)) {
	r.mu.Lock()
	r.onTrack = fn
	r.mu.Unlock()
}

func (r *Roster) OnStateChange(fn func(domain.ConnID, State)) {
	r.mu.Lock()
	r.onState = fn
	r.mu.Unlock()
}

// PeerAppeared creates exactly one session for a previously unknown remote
// identifier. Duplicate events for a known identifier are ignored; they are
// retransmitted join notifications, not new peers.
func (r *Roster) PeerAppeared(id domain.ConnID, displayName string, initiator bool) {
	r.mu.Lock()
	if _, known := r.sessions[id]; known {
		r.mu.Unlock()
		log.Debug().Str("module", "peer").Str("peer", string(id)).Msg("duplicate peer appearance ignored")
		return
	}
	engine, err := r.engines()
	if err != nil {
		onState := r.onState
		r.mu.Unlock()
		log.Error().Err(err).Str("module", "peer").Str("peer", string(id)).Msg("media engine unavailable, session not started")
		if onState != nil {
			onState(id, StateClosed)
		}
		return
	}
	s := NewSession(id, displayName, initiator, engine, r.sender, r.policy)
	s.OnRemoteTrack(r.onTrack)
	s.OnStateChange(r.onState)
	r.sessions[id] = s
	r.mu.Unlock()

	log.Info().Str("module", "peer").Str("peer", string(id)).Str("name", displayName).Bool("initiator", initiator).Msg("peer session created")
	s.Start()
}

// PeerDeparted closes and discards the session for id. Unknown id → no-op.
func (r *Roster) PeerDeparted(id domain.ConnID) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "peer").Str("peer", string(id)).Msg("departure for unknown peer ignored")
		return
	}
	s.Close()
}

// HandleDescriptor routes a relayed descriptor to its session. A missing
// session means the peer is already gone; the descriptor is dropped.
func (r *Roster) HandleDescriptor(id domain.ConnID, d Descriptor) {
	if s, ok := r.get(id); ok {
		s.HandleRemoteDescriptor(d)
		return
	}
	log.Debug().Str("module", "peer").Str("peer", string(id)).Msg("descriptor for unknown session dropped")
}

// HandleCandidate routes a relayed candidate to its session. Candidates are
// only dropped when the owning session no longer exists.
func (r *Roster) HandleCandidate(id domain.ConnID, c Candidate) {
	if s, ok := r.get(id); ok {
		s.HandleRemoteCandidate(c)
		return
	}
	log.Debug().Str("module", "peer").Str("peer", string(id)).Msg("candidate for unknown session dropped")
}

// CloseAll tears down every session at once, for local leave or disconnect.
func (r *Roster) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[domain.ConnID]*Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}

// Peers lists the identifiers with live sessions.
func (r *Roster) Peers() []domain.ConnID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ConnID, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

func (r *Roster) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Roster) get(id domain.ConnID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}
