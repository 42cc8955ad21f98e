// Package hub holds channel membership and per-connection identity and
// routes signaling frames between connections. It never inspects descriptor
// or candidate contents beyond the routing fields; media semantics live
// entirely on the clients.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

// conn is one live transport endpoint with its identity.
type conn struct {
	id  domain.ConnID
	sig core.SignalConnection

	mu       sync.RWMutex
	name     string
	channels map[domain.ChannelName]struct{}
}

func (c *conn) displayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *conn) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
}

func (c *conn) addChannel(name domain.ChannelName) {
	c.mu.Lock()
	c.channels[name] = struct{}{}
	c.mu.Unlock()
}

func (c *conn) removeChannel(name domain.ChannelName) {
	c.mu.Lock()
	delete(c.channels, name)
	c.mu.Unlock()
}

func (c *conn) channelNames() []domain.ChannelName {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ChannelName, 0, len(c.channels))
	for name := range c.channels {
		out = append(out, name)
	}
	return out
}

// ChannelInfo is a read-only view for the listing API.
type ChannelInfo struct {
	Name        domain.ChannelName `json:"name"`
	MemberCount int                `json:"member_count"`
}

// Hub owns the connection registry and the channel map. The registry maps
// are guarded by h.mu; each channel guards its own roster, so relay traffic
// in one channel never contends with membership changes in another.
type Hub struct {
	mu       sync.RWMutex
	conns    map[domain.ConnID]*conn
	channels map[domain.ChannelName]*channel
}

func New() *Hub {
	return &Hub{
		conns:    make(map[domain.ConnID]*conn),
		channels: make(map[domain.ChannelName]*channel),
	}
}

// Register adds a connection identity. The display name defaults to a
// truncated identifier until the client announces one.
func (h *Hub) Register(id domain.ConnID, sig core.SignalConnection) {
	c := &conn{
		id:       id,
		sig:      sig,
		name:     id.Short(),
		channels: make(map[domain.ChannelName]struct{}),
	}
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	log.Info().Str("module", "hub").Str("conn", string(id)).Msg("connection registered")
}

func (h *Hub) get(id domain.ConnID) (*conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

// Rename updates a connection's display name.
func (h *Hub) Rename(id domain.ConnID, name string) error {
	if err := domain.ValidDisplayName(name); err != nil {
		return err
	}
	c, ok := h.get(id)
	if !ok {
		log.Debug().Str("module", "hub").Str("conn", string(id)).Msg("rename for unknown connection")
		return nil
	}
	c.setName(name)
	log.Info().Str("module", "hub").Str("conn", string(id)).Str("name", name).Msg("renamed")
	return nil
}

// DisplayName reports the current name, falling back to the truncated id for
// unknown connections.
func (h *Hub) DisplayName(id domain.ConnID) string {
	if c, ok := h.get(id); ok {
		return c.displayName()
	}
	return id.Short()
}

func (h *Hub) getOrCreateChannel(name domain.ChannelName) *channel {
	h.mu.RLock()
	ch, ok := h.channels[name]
	h.mu.RUnlock()
	if ok {
		return ch
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok = h.channels[name]; ok {
		return ch
	}
	ch = newChannel(name)
	h.channels[name] = ch
	log.Info().Str("module", "hub").Str("channel", string(name)).Msg("channel created")
	return ch
}

// dropIfEmpty deletes the channel once its last member left. Channels are
// ephemeral, never persisted.
func (h *Hub) dropIfEmpty(name domain.ChannelName) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.channels[name]; ok && ch.empty() {
		delete(h.channels, name)
		log.Info().Str("module", "hub").Str("channel", string(name)).Msg("channel deleted")
	}
}

// Join puts id into channelName and fans out discovery events. The joiner
// receives initiator=true toward every pre-existing member and each of them
// receives initiator=false toward the joiner: join order is the sole
// tie-break, so both sides can never race to offer. A duplicate join is a
// logged no-op.
func (h *Hub) Join(id domain.ConnID, channelName domain.ChannelName, displayName string) {
	c, ok := h.get(id)
	if !ok {
		log.Debug().Str("module", "hub").Str("conn", string(id)).Msg("join from unknown connection")
		return
	}
	if displayName != "" {
		if err := domain.ValidDisplayName(displayName); err == nil {
			c.setName(displayName)
		}
	}

	ch := h.getOrCreateChannel(channelName)
	existing, ok := ch.add(c)
	if !ok {
		log.Debug().Str("module", "hub").Str("conn", string(id)).Str("channel", string(channelName)).Msg("duplicate join ignored")
		return
	}
	c.addChannel(channelName)
	log.Info().Str("module", "hub").Str("conn", string(id)).Str("channel", string(channelName)).Int("peers", len(existing)).Msg("joined channel")

	name := c.displayName()
	roster := make([]domain.Peer, 0, len(existing))
	for _, m := range existing {
		h.send(m, protocol.PeerAppeared{
			Type:        protocol.KindPeerAppeared,
			Channel:     channelName,
			PeerID:      id,
			DisplayName: name,
			Initiator:   false,
		})
		h.send(c, protocol.PeerAppeared{
			Type:        protocol.KindPeerAppeared,
			Channel:     channelName,
			PeerID:      m.id,
			DisplayName: m.displayName(),
			Initiator:   true,
		})
		roster = append(roster, domain.Peer{ID: m.id, DisplayName: m.displayName()})
	}
	h.send(c, protocol.Roster{Type: protocol.KindRoster, Channel: channelName, Members: roster})
}

// Leave removes id from channelName and fans out symmetric departure events
// so both sides tear down local state without a race. Not a member → no-op.
func (h *Hub) Leave(id domain.ConnID, channelName domain.ChannelName) {
	c, ok := h.get(id)
	if !ok {
		log.Debug().Str("module", "hub").Str("conn", string(id)).Msg("leave from unknown connection")
		return
	}
	h.mu.RLock()
	ch, ok := h.channels[channelName]
	h.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "hub").Str("channel", string(channelName)).Msg("leave for unknown channel")
		return
	}
	remaining, ok := ch.remove(id)
	if !ok {
		log.Debug().Str("module", "hub").Str("conn", string(id)).Str("channel", string(channelName)).Msg("leave without membership ignored")
		return
	}
	c.removeChannel(channelName)
	log.Info().Str("module", "hub").Str("conn", string(id)).Str("channel", string(channelName)).Msg("left channel")

	for _, m := range remaining {
		h.send(m, protocol.PeerDeparted{Type: protocol.KindPeerDeparted, Channel: channelName, PeerID: id})
		h.send(c, protocol.PeerDeparted{Type: protocol.KindPeerDeparted, Channel: channelName, PeerID: m.id})
	}
	h.dropIfEmpty(channelName)
}

// Relay forwards a frame verbatim to one connection. A missing target means
// the remote already disconnected; that is a lost-cause no-op, not an error.
func (h *Hub) Relay(from, to domain.ConnID, frame core.Frame) {
	c, ok := h.get(to)
	if !ok {
		log.Debug().Str("module", "hub").Str("from", string(from)).Str("to", string(to)).Msg("relay target gone, dropped")
		return
	}
	if err := c.sig.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("to", string(to)).Msg("relay send dropped")
	}
}

// Broadcast fans a frame out to the current members of a channel.
func (h *Hub) Broadcast(channelName domain.ChannelName, from domain.ConnID, frame core.Frame, excludeSelf bool) {
	h.mu.RLock()
	ch, ok := h.channels[channelName]
	h.mu.RUnlock()
	if !ok {
		log.Debug().Str("module", "hub").Str("channel", string(channelName)).Msg("broadcast to unknown channel")
		return
	}
	for _, m := range ch.snapshot() {
		if excludeSelf && m.id == from {
			continue
		}
		if err := m.sig.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "hub").Str("to", string(m.id)).Msg("broadcast send dropped")
		}
	}
}

// Disconnect leaves every channel the connection belongs to, then purges its
// identity.
func (h *Hub) Disconnect(id domain.ConnID) {
	c, ok := h.get(id)
	if !ok {
		return
	}
	for _, name := range c.channelNames() {
		h.Leave(id, name)
	}
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	log.Info().Str("module", "hub").Str("conn", string(id)).Msg("connection purged")
}

// ChannelsOf lists the channels a connection is a member of.
func (h *Hub) ChannelsOf(id domain.ConnID) []domain.ChannelName {
	c, ok := h.get(id)
	if !ok {
		return nil
	}
	return c.channelNames()
}

// Members reports the current roster of a channel in join order.
func (h *Hub) Members(channelName domain.ChannelName) []domain.Peer {
	h.mu.RLock()
	ch, ok := h.channels[channelName]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	members := ch.snapshot()
	out := make([]domain.Peer, 0, len(members))
	for _, m := range members {
		out = append(out, domain.Peer{ID: m.id, DisplayName: m.displayName()})
	}
	return out
}

// List reports every live channel for the lobby API.
func (h *Hub) List() []ChannelInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ChannelInfo, 0, len(h.channels))
	for name, ch := range h.channels {
		out = append(out, ChannelInfo{Name: name, MemberCount: ch.memberCount()})
	}
	return out
}

func (h *Hub) send(c *conn, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Msg("encode event")
		return
	}
	if err := c.sig.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "hub").Str("to", string(c.id)).Msg("event send dropped")
	}
}
