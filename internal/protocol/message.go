// Package protocol defines the wire schema spoken between clients and the
// hub. Every message is a JSON object with a "type" field; the set of kinds
// is closed and unknown kinds are a decode error, so callers log and reject
// them instead of ignoring them silently.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type Kind string

const (
	KindJoin         Kind = "join"
	KindPart         Kind = "part"
	KindRename       Kind = "rename"
	KindPing         Kind = "ping"
	KindPong         Kind = "pong"
	KindPeerAppeared Kind = "peerAppeared"
	KindPeerDeparted Kind = "peerDeparted"
	KindRoster       Kind = "roster"
	KindDescriptor   Kind = "descriptor"
	KindCandidate    Kind = "candidate"
	KindChatMessage  Kind = "chatMessage"
	KindMuteStatus   Kind = "muteStatus"
	KindSpeaking     Kind = "speakingStatus"
	KindError        Kind = "error"
)

var known = map[Kind]struct{}{
	KindJoin: {}, KindPart: {}, KindRename: {}, KindPing: {}, KindPong: {},
	KindPeerAppeared: {}, KindPeerDeparted: {}, KindRoster: {},
	KindDescriptor: {}, KindCandidate: {}, KindChatMessage: {},
	KindMuteStatus: {}, KindSpeaking: {}, KindError: {},
}

// Join is sent by a client to enter a channel.
type Join struct {
	Type        Kind               `json:"type"`
	Channel     domain.ChannelName `json:"channel"`
	DisplayName string             `json:"displayName,omitempty"`
}

// Part is sent by a client to leave a channel without disconnecting.
type Part struct {
	Type    Kind               `json:"type"`
	Channel domain.ChannelName `json:"channel"`
}

type Rename struct {
	Type Kind   `json:"type"`
	Name string `json:"name"`
}

// PeerAppeared tells a client that a remote connection shares a channel with
// it now. Initiator is true exactly when the receiving side joined later and
// must therefore produce the offer.
type PeerAppeared struct {
	Type        Kind               `json:"type"`
	Channel     domain.ChannelName `json:"channel"`
	PeerID      domain.ConnID      `json:"peerId"`
	DisplayName string             `json:"displayName"`
	Initiator   bool               `json:"initiator"`
}

type PeerDeparted struct {
	Type    Kind               `json:"type"`
	Channel domain.ChannelName `json:"channel"`
	PeerID  domain.ConnID      `json:"peerId"`
}

// Roster is the membership snapshot sent to a client right after it joins.
type Roster struct {
	Type    Kind               `json:"type"`
	Channel domain.ChannelName `json:"channel"`
	Members []domain.Peer      `json:"members"`
}

// Descriptor carries an offer or answer. Client→hub PeerID addresses the
// target; the hub rewrites PeerID to the sender before forwarding.
type Descriptor struct {
	Type        Kind          `json:"type"`
	PeerID      domain.ConnID `json:"peerId"`
	SDPType     string        `json:"sdpType"` // "offer" | "answer"
	Description string        `json:"description"`
}

// Candidate carries one ICE connectivity hint. Addressing works like
// Descriptor.
type Candidate struct {
	Type       Kind          `json:"type"`
	PeerID     domain.ConnID `json:"peerId"`
	MLineIndex uint16        `json:"mLineIndex"`
	Candidate  string        `json:"candidate"`
}

type ChatMessage struct {
	Type        Kind               `json:"type"`
	Channel     domain.ChannelName `json:"channel,omitempty"`
	PeerID      domain.ConnID      `json:"peerId,omitempty"`
	DisplayName string             `json:"displayName,omitempty"`
	Text        string             `json:"text"`
	Timestamp   int64              `json:"timestamp,omitempty"`
}

// Status carries mute or speaking state, distinguished by Type.
type Status struct {
	Type    Kind               `json:"type"`
	Channel domain.ChannelName `json:"channel,omitempty"`
	PeerID  domain.ConnID      `json:"peerId,omitempty"`
	Value   bool               `json:"value"`
}

type Error struct {
	Type  Kind   `json:"type"`
	Error string `json:"error"`
}

type envelope struct {
	Type Kind `json:"type"`
}

// DecodeKind extracts and validates the message kind of a raw frame.
func DecodeKind(data []byte) (Kind, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if _, ok := known[env.Type]; !ok {
		return env.Type, fmt.Errorf("unknown message kind %q", env.Type)
	}
	return env.Type, nil
}

// Encode marshals a message into a wire frame.
func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return b, nil
}
