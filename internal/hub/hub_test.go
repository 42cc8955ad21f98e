package hub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

type fakeSig struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (f *fakeSig) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(core.Frame, len(fr))
	copy(cp, fr)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeSig) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSig) kinds(t *testing.T) []protocol.Kind {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Kind, 0, len(f.frames))
	for _, fr := range f.frames {
		kind, err := protocol.DecodeKind(fr)
		if err != nil {
			t.Fatalf("undecodable frame %q: %v", fr, err)
		}
		out = append(out, kind)
	}
	return out
}

func (f *fakeSig) appearances(t *testing.T) []protocol.PeerAppeared {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.PeerAppeared
	for _, fr := range f.frames {
		if kind, _ := protocol.DecodeKind(fr); kind == protocol.KindPeerAppeared {
			var p protocol.PeerAppeared
			if err := json.Unmarshal(fr, &p); err != nil {
				t.Fatal(err)
			}
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSig) departures(t *testing.T) []protocol.PeerDeparted {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.PeerDeparted
	for _, fr := range f.frames {
		if kind, _ := protocol.DecodeKind(fr); kind == protocol.KindPeerDeparted {
			var p protocol.PeerDeparted
			if err := json.Unmarshal(fr, &p); err != nil {
				t.Fatal(err)
			}
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeSig) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

func TestJoinInitiatorAssignment(t *testing.T) {
	h := New()
	sigX, sigY := &fakeSig{}, &fakeSig{}
	h.Register("x", sigX)
	h.Register("y", sigY)

	h.Join("x", "room1", "alice")
	// first member sees no peers, only its empty roster snapshot
	if kinds := sigX.kinds(t); len(kinds) != 1 || kinds[0] != protocol.KindRoster {
		t.Fatalf("first joiner frames = %v", kinds)
	}

	h.Join("y", "room1", "bob")

	appX := sigX.appearances(t)
	if len(appX) != 1 || appX[0].PeerID != "y" || appX[0].Initiator {
		t.Fatalf("existing member got %+v, want peerAppeared(y, initiator=false)", appX)
	}
	if appX[0].DisplayName != "bob" {
		t.Fatalf("display name = %q", appX[0].DisplayName)
	}

	appY := sigY.appearances(t)
	if len(appY) != 1 || appY[0].PeerID != "x" || !appY[0].Initiator {
		t.Fatalf("joiner got %+v, want peerAppeared(x, initiator=true)", appY)
	}
}

func TestJoinDuplicateIgnored(t *testing.T) {
	h := New()
	sigX := &fakeSig{}
	h.Register("x", sigX)

	h.Join("x", "room1", "")
	sigX.reset()
	h.Join("x", "room1", "")

	if kinds := sigX.kinds(t); len(kinds) != 0 {
		t.Fatalf("duplicate join produced frames: %v", kinds)
	}
	if got := len(h.Members("room1")); got != 1 {
		t.Fatalf("member count = %d", got)
	}
}

func TestJoinUnknownConnectionNoop(t *testing.T) {
	h := New()
	h.Join("ghost", "room1", "")
	if got := h.List(); len(got) != 0 {
		t.Fatalf("channel created for unknown connection: %v", got)
	}
}

func TestLeaveSymmetricTeardown(t *testing.T) {
	h := New()
	sigX, sigY := &fakeSig{}, &fakeSig{}
	h.Register("x", sigX)
	h.Register("y", sigY)
	h.Join("x", "room1", "")
	h.Join("y", "room1", "")
	sigX.reset()
	sigY.reset()

	h.Leave("x", "room1")

	depY := sigY.departures(t)
	if len(depY) != 1 || depY[0].PeerID != "x" {
		t.Fatalf("remaining member got %+v", depY)
	}
	depX := sigX.departures(t)
	if len(depX) != 1 || depX[0].PeerID != "y" {
		t.Fatalf("leaver got %+v", depX)
	}
}

func TestLeaveNonMemberNoop(t *testing.T) {
	h := New()
	sigX, sigY := &fakeSig{}, &fakeSig{}
	h.Register("x", sigX)
	h.Register("y", sigY)
	h.Join("x", "room1", "")
	sigX.reset()

	h.Leave("y", "room1")
	h.Leave("x", "nosuchroom")

	if kinds := sigX.kinds(t); len(kinds) != 0 {
		t.Fatalf("stale leave produced frames: %v", kinds)
	}
}

func TestEmptyChannelDeleted(t *testing.T) {
	h := New()
	sigX := &fakeSig{}
	h.Register("x", sigX)
	h.Join("x", "room1", "")
	if len(h.List()) != 1 {
		t.Fatal("channel not created")
	}
	h.Leave("x", "room1")
	if got := h.List(); len(got) != 0 {
		t.Fatalf("empty channel survived: %v", got)
	}
}

func TestRelayVerbatim(t *testing.T) {
	h := New()
	sigX, sigY := &fakeSig{}, &fakeSig{}
	h.Register("x", sigX)
	h.Register("y", sigY)

	frame := core.Frame(`{"type":"descriptor","peerId":"x","sdpType":"offer","description":"v=0"}`)
	h.Relay("x", "y", frame)

	sigY.mu.Lock()
	defer sigY.mu.Unlock()
	if len(sigY.frames) != 1 || string(sigY.frames[0]) != string(frame) {
		t.Fatalf("relayed frames = %q", sigY.frames)
	}
}

func TestRelayToMissingTargetNoop(t *testing.T) {
	h := New()
	sigX := &fakeSig{}
	h.Register("x", sigX)
	h.Relay("x", "gone", core.Frame(`{"type":"candidate"}`))
	if kinds := sigX.kinds(t); len(kinds) != 0 {
		t.Fatalf("sender received frames: %v", kinds)
	}
}

func TestBroadcastExcludeSelf(t *testing.T) {
	h := New()
	sigX, sigY, sigZ := &fakeSig{}, &fakeSig{}, &fakeSig{}
	h.Register("x", sigX)
	h.Register("y", sigY)
	h.Register("z", sigZ)
	h.Join("x", "room1", "")
	h.Join("y", "room1", "")
	h.Join("z", "room1", "")
	sigX.reset()
	sigY.reset()
	sigZ.reset()

	frame := core.Frame(`{"type":"chatMessage","text":"hi"}`)
	h.Broadcast("room1", "x", frame, true)

	if kinds := sigX.kinds(t); len(kinds) != 0 {
		t.Fatalf("sender got its own broadcast: %v", kinds)
	}
	for name, sig := range map[string]*fakeSig{"y": sigY, "z": sigZ} {
		if kinds := sig.kinds(t); len(kinds) != 1 || kinds[0] != protocol.KindChatMessage {
			t.Fatalf("%s frames = %v", name, kinds)
		}
	}

	h.Broadcast("room1", "x", frame, false)
	if kinds := sigX.kinds(t); len(kinds) != 1 {
		t.Fatalf("includeSelf broadcast missed sender: %v", kinds)
	}
}

func TestDisconnectLeavesAllChannels(t *testing.T) {
	h := New()
	sigX, sigY := &fakeSig{}, &fakeSig{}
	h.Register("x", sigX)
	h.Register("y", sigY)
	h.Join("x", "room1", "")
	h.Join("x", "room2", "")
	h.Join("y", "room1", "")
	sigY.reset()

	h.Disconnect("x")

	depY := sigY.departures(t)
	if len(depY) != 1 || depY[0].PeerID != "x" {
		t.Fatalf("co-member got %+v", depY)
	}
	// room2 had only x, so no channel survives it
	for _, info := range h.List() {
		if info.Name == "room2" {
			t.Fatal("room2 survived disconnect of its only member")
		}
	}
	// identity purged: relaying to x is now a silent no-op
	h.Relay("y", "x", core.Frame(`{"type":"candidate"}`))
	if len(h.ChannelsOf("x")) != 0 {
		t.Fatal("disconnected connection still has channels")
	}
}

func TestMembersJoinOrder(t *testing.T) {
	h := New()
	for _, id := range []domain.ConnID{"a", "b", "c"} {
		h.Register(id, &fakeSig{})
		h.Join(id, "room1", "")
	}
	members := h.Members("room1")
	if len(members) != 3 {
		t.Fatalf("member count = %d", len(members))
	}
	for i, want := range []domain.ConnID{"a", "b", "c"} {
		if members[i].ID != want {
			t.Fatalf("order[%d] = %s, want %s", i, members[i].ID, want)
		}
	}
}

func TestRenameAndDefaultName(t *testing.T) {
	h := New()
	h.Register("abcdefgh-long-id", &fakeSig{})
	if got := h.DisplayName("abcdefgh-long-id"); got != "abcdefgh" {
		t.Fatalf("default name = %q", got)
	}
	if err := h.Rename("abcdefgh-long-id", "carol"); err != nil {
		t.Fatal(err)
	}
	if got := h.DisplayName("abcdefgh-long-id"); got != "carol" {
		t.Fatalf("name after rename = %q", got)
	}
	if err := h.Rename("abcdefgh-long-id", ""); err == nil {
		t.Fatal("empty rename accepted")
	}
}
