package hub

import (
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
)

// channel is a threadsafe in-memory roster. Membership order is join order;
// that ordering is what decides initiator assignment.
type channel struct {
	name domain.ChannelName

	mu      sync.RWMutex
	order   []domain.ConnID
	members map[domain.ConnID]*conn
}

func newChannel(name domain.ChannelName) *channel {
	return &channel{
		name:    name,
		members: make(map[domain.ConnID]*conn),
	}
}

// add registers c and returns the members present before it, in join order.
// ok is false when c was already a member.
func (ch *channel) add(c *conn) (existing []*conn, ok bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, dup := ch.members[c.id]; dup {
		return nil, false
	}
	existing = make([]*conn, 0, len(ch.order))
	for _, id := range ch.order {
		existing = append(existing, ch.members[id])
	}
	ch.members[c.id] = c
	ch.order = append(ch.order, c.id)
	return existing, true
}

// remove drops id and returns the members left behind, in join order.
// ok is false when id was not a member.
func (ch *channel) remove(id domain.ConnID) (remaining []*conn, ok bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if _, member := ch.members[id]; !member {
		return nil, false
	}
	delete(ch.members, id)
	for i, m := range ch.order {
		if m == id {
			ch.order = append(ch.order[:i], ch.order[i+1:]...)
			break
		}
	}
	remaining = make([]*conn, 0, len(ch.order))
	for _, m := range ch.order {
		remaining = append(remaining, ch.members[m])
	}
	return remaining, true
}

func (ch *channel) snapshot() []*conn {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]*conn, 0, len(ch.order))
	for _, id := range ch.order {
		out = append(out, ch.members[id])
	}
	return out
}

func (ch *channel) memberCount() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.members)
}

func (ch *channel) empty() bool {
	return ch.memberCount() == 0
}
