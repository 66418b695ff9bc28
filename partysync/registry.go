package partysync

import (
	"fmt"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

// Husk is the server's shadow of one connected player.
type Husk struct {
	ID     common.Identity
	Peer   Peer
	IsSelf bool
	// Pose is the latest pose received from the player.
	Pose proto.TimestampedPose
	// Pending is set when Pose changed since the last tick.
	Pending bool
}

// Registry maps identities to husks. Slots are indexed by identity; peers
// find their slot through a reverse index.
type Registry struct {
	slots  [common.MaxIdentities]*Husk
	byPeer map[PeerID]common.Identity
}

func NewRegistry() *Registry {
	return &Registry{byPeer: make(map[PeerID]common.Identity)}
}

// Add allocates the smallest free identity for p. It panics when every
// identity is taken or p is already registered.
func (r *Registry) Add(p Peer, isSelf bool) *Husk {
	if _, ok := r.byPeer[p.ID()]; ok {
		panic(fmt.Sprintf("partysync: peer %d registered twice", p.ID()))
	}
	for i := range r.slots {
		if r.slots[i] != nil {
			continue
		}
		h := &Husk{ID: common.Identity(i), Peer: p, IsSelf: isSelf}
		r.slots[i] = h
		r.byPeer[p.ID()] = h.ID
		return h
	}
	panic("partysync: identity space exhausted")
}

// Remove frees the identity held by peer. Removing an unknown peer reports
// false.
func (r *Registry) Remove(peer PeerID) (*Husk, bool) {
	id, ok := r.byPeer[peer]
	if !ok {
		return nil, false
	}
	delete(r.byPeer, peer)
	h := r.slots[id]
	r.slots[id] = nil
	return h, true
}

// Lookup returns the husk for id. A miss means the caller holds a stale
// identity, which is a bug, so it panics.
func (r *Registry) Lookup(id common.Identity) *Husk {
	h := r.slots[id]
	if h == nil {
		panic(fmt.Sprintf("partysync: no connection holds identity %d", id))
	}
	return h
}

func (r *Registry) ByPeer(peer PeerID) (*Husk, bool) {
	id, ok := r.byPeer[peer]
	if !ok {
		return nil, false
	}
	return r.slots[id], true
}

func (r *Registry) Len() int {
	return len(r.byPeer)
}

// Each visits husks in identity order.
func (r *Registry) Each(fn func(h *Husk)) {
	for _, h := range r.slots {
		if h != nil {
			fn(h)
		}
	}
}

// Identities lists the live identities in ascending order.
func (r *Registry) Identities() []common.Identity {
	ids := make([]common.Identity, 0, len(r.byPeer))
	r.Each(func(h *Husk) {
		ids = append(ids, h.ID)
	})
	return ids
}
