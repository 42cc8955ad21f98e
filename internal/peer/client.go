package peer

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

// Client is one connection to the hub. It owns the websocket, drives the
// roster from inbound events, and is the SignalSender the sessions relay
// through.
type Client struct {
	conn   *websocket.Conn
	roster *Roster

	writeMu sync.Mutex

	cbMu     sync.RWMutex
	onChat   func(protocol.ChatMessage)
	onStatus func(protocol.Status)
	onRoster func(protocol.Roster)

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the hub signaling endpoint and starts the read loop.
func Dial(ctx context.Context, url string, engines EngineFactory, policy Policy) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn: conn,
		done: make(chan struct{}),
	}
	c.roster = NewRoster(engines, c, policy)
	go c.readLoop()
	log.Info().Str("module", "peer").Str("url", url).Msg("connected to hub")
	return c, nil
}

func (c *Client) Roster() *Roster { return c.roster }

// Done closes when the hub connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) OnChat(fn func(protocol.ChatMessage)) {
	c.cbMu.Lock()
	c.onChat = fn
	c.cbMu.Unlock()
}

func (c *Client) OnStatus(fn func(protocol.Status)) {
	c.cbMu.Lock()
	c.onStatus = fn
	c.cbMu.Unlock()
}

func (c *Client) OnRoster(fn func(protocol.Roster)) {
	c.cbMu.Lock()
	c.onRoster = fn
	c.cbMu.Unlock()
}

func (c *Client) readLoop() {
	defer func() {
		c.roster.CloseAll()
		close(c.done)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "peer").Msg("hub connection closed")
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	kind, err := protocol.DecodeKind(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "peer").Msg("rejected hub message")
		return
	}
	switch kind {
	case protocol.KindPeerAppeared:
		var p protocol.PeerAppeared
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("bad peerAppeared payload")
			return
		}
		c.roster.PeerAppeared(p.PeerID, p.DisplayName, p.Initiator)
	case protocol.KindPeerDeparted:
		var p protocol.PeerDeparted
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("bad peerDeparted payload")
			return
		}
		c.roster.PeerDeparted(p.PeerID)
	case protocol.KindDescriptor:
		var p protocol.Descriptor
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("bad descriptor payload")
			return
		}
		c.roster.HandleDescriptor(p.PeerID, Descriptor{Type: p.SDPType, SDP: p.Description})
	case protocol.KindCandidate:
		var p protocol.Candidate
		if err := json.Unmarshal(data, &p); err != nil {
			log.Warn().Err(err).Str("module", "peer").Msg("bad candidate payload")
			return
		}
		c.roster.HandleCandidate(p.PeerID, Candidate{MLineIndex: p.MLineIndex, Candidate: p.Candidate})
	case protocol.KindRoster:
		var p protocol.Roster
		if err := json.Unmarshal(data, &p); err == nil {
			c.cbMu.RLock()
			fn := c.onRoster
			c.cbMu.RUnlock()
			if fn != nil {
				fn(p)
			}
		}
	case protocol.KindChatMessage:
		var p protocol.ChatMessage
		if err := json.Unmarshal(data, &p); err == nil {
			c.cbMu.RLock()
			fn := c.onChat
			c.cbMu.RUnlock()
			if fn != nil {
				fn(p)
			}
		}
	case protocol.KindMuteStatus, protocol.KindSpeaking:
		var p protocol.Status
		if err := json.Unmarshal(data, &p); err == nil {
			c.cbMu.RLock()
			fn := c.onStatus
			c.cbMu.RUnlock()
			if fn != nil {
				fn(p)
			}
		}
	case protocol.KindPong:
	case protocol.KindError:
		var p protocol.Error
		_ = json.Unmarshal(data, &p)
		log.Warn().Str("module", "peer").Str("error", p.Error).Msg("hub reported error")
	default:
		log.Warn().Str("module", "peer").Str("kind", string(kind)).Msg("unexpected message direction")
	}
}

func (c *Client) send(v any) error {
	frame, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Join enters a channel. The hub answers with a roster snapshot and fans out
// discovery events on both sides.
func (c *Client) Join(channel domain.ChannelName, displayName string) error {
	return c.send(protocol.Join{Type: protocol.KindJoin, Channel: channel, DisplayName: displayName})
}

func (c *Client) Part(channel domain.ChannelName) error {
	return c.send(protocol.Part{Type: protocol.KindPart, Channel: channel})
}

func (c *Client) Rename(name string) error {
	return c.send(protocol.Rename{Type: protocol.KindRename, Name: name})
}

func (c *Client) SendChat(channel domain.ChannelName, text string) error {
	return c.send(protocol.ChatMessage{Type: protocol.KindChatMessage, Channel: channel, Text: text})
}

func (c *Client) SetMute(value bool) error {
	return c.send(protocol.Status{Type: protocol.KindMuteStatus, Value: value})
}

func (c *Client) SetSpeaking(value bool) error {
	return c.send(protocol.Status{Type: protocol.KindSpeaking, Value: value})
}

func (c *Client) Ping() error {
	return c.send(struct {
		Type protocol.Kind `json:"type"`
	}{Type: protocol.KindPing})
}

// SendDescriptor implements SignalSender.
func (c *Client) SendDescriptor(to domain.ConnID, d Descriptor) error {
	return c.send(protocol.Descriptor{
		Type:        protocol.KindDescriptor,
		PeerID:      to,
		SDPType:     d.Type,
		Description: d.SDP,
	})
}

// SendCandidate implements SignalSender. Candidates go out as produced, no
// batching.
func (c *Client) SendCandidate(to domain.ConnID, cand Candidate) error {
	return c.send(protocol.Candidate{
		Type:       protocol.KindCandidate,
		PeerID:     to,
		MLineIndex: cand.MLineIndex,
		Candidate:  cand.Candidate,
	})
}

// Close tears down every peer session and the hub connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.roster.CloseAll()
		_ = c.conn.Close()
	})
}
