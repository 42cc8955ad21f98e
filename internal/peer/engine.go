// Package peer implements the client side of the mesh: one negotiation
// state machine per remote participant, a roster that keeps the machine set
// in sync with hub events, and the websocket client that feeds both.
package peer

import (
	"context"

	"github.com/dkeye/Mesh/internal/domain"
)

// Descriptor is an offer or answer payload. Immutable once sent; a new
// descriptor replaces, never mutates, the previous one.
type Descriptor struct {
	Type string // "offer" | "answer"
	SDP  string
}

const (
	DescriptorOffer  = "offer"
	DescriptorAnswer = "answer"
)

// Candidate is one connectivity hint.
type Candidate struct {
	MLineIndex uint16
	Candidate  string
}

// Track describes a remote media stream that became available.
type Track struct {
	Kind     string
	ID       string
	StreamID string
}

// Engine is the external real-time media collaborator. It owns transport,
// codecs and NAT traversal; the session machine only drives the
// offer/answer/candidate exchange. The engine is responsible for queuing
// remote candidates that arrive before a remote description.
type Engine interface {
	CreateOffer(ctx context.Context) (Descriptor, error)
	CreateAnswer(ctx context.Context) (Descriptor, error)
	SetLocalDescription(Descriptor) error
	SetRemoteDescription(Descriptor) error
	AddRemoteCandidate(Candidate) error
	OnLocalCandidate(func(Candidate))
	OnRemoteTrack(func(Track))
	OnConnectionStateChange(func(string))
	Close() error
}

// EngineFactory builds one engine per peer session. An error here is an
// acquisition failure: the session is never started.
type EngineFactory func() (Engine, error)

// SignalSender relays outbound descriptors and candidates to a remote
// connection via the hub.
type SignalSender interface {
	SendDescriptor(to domain.ConnID, d Descriptor) error
	SendCandidate(to domain.ConnID, c Candidate) error
}

// Policy rewrites a locally produced description before it is applied and
// sent (bitrate constraints and codec tuning).
type Policy func(string) string
