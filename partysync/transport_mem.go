package partysync

import (
	"context"
	"slices"
	"sync"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

// MemoryNetwork is an in-process Transport. Clients reach it with Dial and
// every frame is delivered in order without loss.
type MemoryNetwork struct {
	queue eventQueue

	mu     sync.Mutex
	nextID PeerID
	links  map[PeerID]*memLink
	closed bool
}

var (
	_ Transport = (*MemoryNetwork)(nil)
	_ Dialer    = (*MemoryNetwork)(nil)
)

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{links: make(map[PeerID]*memLink)}
}

type linkState uint8

const (
	linkPending linkState = iota
	linkOpen
	linkRejected
	linkClosed
)

// memLink is one connection. The server holds it as a Peer, the client
// through a MemoryConn.
type memLink struct {
	net *MemoryNetwork
	id  PeerID

	mu       sync.Mutex
	state    linkState
	request  []byte
	reject   []byte
	toClient [][]byte
}

// Dial queues a connection request. The returned conn is usable once the
// server's next PollEvents accepts it.
func (n *MemoryNetwork) Dial(_ context.Context, _ proto.JoinSecret, request []byte) (Conn, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, common.ErrTransportClosed
	}
	n.nextID++
	l := &memLink{net: n, id: n.nextID, request: slices.Clone(request)}
	n.links[l.id] = l
	n.mu.Unlock()

	n.queue.push(transportEvent{kind: eventRequest, req: &memRequest{link: l}})
	return &MemoryConn{link: l}, nil
}

func (n *MemoryNetwork) PollEvents(h EventHandler) {
	n.queue.drain(h)
}

// Close drops every link. Clients observe ErrPeerClosed.
func (n *MemoryNetwork) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	links := make([]*memLink, 0, len(n.links))
	for _, l := range n.links {
		links = append(links, l)
	}
	n.links = nil
	n.mu.Unlock()

	for _, l := range links {
		l.mu.Lock()
		if l.state != linkRejected {
			l.state = linkClosed
		}
		l.mu.Unlock()
	}
	return nil
}

// Peers returns the number of links that are open.
func (n *MemoryNetwork) Peers() int {
	n.mu.Lock()
	links := make([]*memLink, 0, len(n.links))
	for _, l := range n.links {
		links = append(links, l)
	}
	n.mu.Unlock()

	var open int
	for _, l := range links {
		l.mu.Lock()
		if l.state == linkOpen {
			open++
		}
		l.mu.Unlock()
	}
	return open
}

func (n *MemoryNetwork) forget(id PeerID) {
	n.mu.Lock()
	if n.links != nil {
		delete(n.links, id)
	}
	n.mu.Unlock()
}

// close tears the link down from either side and reports the disconnect to
// the server once.
func (l *memLink) close() {
	l.mu.Lock()
	wasOpen := l.state == linkOpen
	if l.state != linkRejected {
		l.state = linkClosed
	}
	l.mu.Unlock()

	l.net.forget(l.id)
	if wasOpen {
		l.net.queue.push(transportEvent{kind: eventDisconnected, peer: memPeer{l}})
	}
}

type memRequest struct {
	link *memLink
	peer Peer
	done bool
}

func (r *memRequest) Data() []byte {
	return r.link.request
}

func (r *memRequest) Accept() Peer {
	if r.done {
		return r.peer
	}
	r.done = true
	l := r.link
	l.mu.Lock()
	abandoned := l.state != linkPending
	if !abandoned {
		l.state = linkOpen
	}
	l.mu.Unlock()
	r.peer = memPeer{l}
	if abandoned {
		// the client hung up while waiting
		l.net.queue.push(transportEvent{kind: eventDisconnected, peer: r.peer})
	}
	return r.peer
}

func (r *memRequest) Reject(data []byte) {
	if r.done {
		return
	}
	r.done = true
	l := r.link
	l.mu.Lock()
	l.state = linkRejected
	l.reject = slices.Clone(data)
	l.mu.Unlock()
	l.net.forget(l.id)
}

func (r *memRequest) accepted() (Peer, bool) {
	return r.peer, r.peer != nil
}

func (r *memRequest) decided() bool {
	return r.done
}

// memPeer is the server's view of a link.
type memPeer struct {
	link *memLink
}

func (p memPeer) ID() PeerID {
	return p.link.id
}

func (p memPeer) Send(data []byte, _ DeliveryMethod) error {
	l := p.link
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != linkOpen {
		return common.ErrPeerClosed
	}
	l.toClient = append(l.toClient, slices.Clone(data))
	return nil
}

func (p memPeer) Close() error {
	p.link.close()
	return nil
}

// MemoryConn is the client's view of a link.
type MemoryConn struct {
	link *memLink
}

var _ Conn = (*MemoryConn)(nil)

func (c *MemoryConn) Send(data []byte, _ DeliveryMethod) error {
	l := c.link
	l.mu.Lock()
	state := l.state
	l.mu.Unlock()

	switch state {
	case linkPending:
		return common.ErrNotConnected
	case linkOpen:
		l.net.queue.push(transportEvent{kind: eventMessage, peer: memPeer{l}, data: slices.Clone(data)})
		return nil
	default:
		return common.ErrPeerClosed
	}
}

func (c *MemoryConn) Poll(fn func(data []byte)) error {
	l := c.link
	l.mu.Lock()
	frames := l.toClient
	l.toClient = nil
	state := l.state
	reject := l.reject
	l.mu.Unlock()

	for _, f := range frames {
		fn(f)
	}
	switch state {
	case linkRejected:
		return rejectErrorFrom(reject)
	case linkClosed:
		return common.ErrPeerClosed
	}
	return nil
}

// Connected reports whether the server has accepted the link and it is
// still open.
func (c *MemoryConn) Connected() bool {
	c.link.mu.Lock()
	defer c.link.mu.Unlock()
	return c.link.state == linkOpen
}

func (c *MemoryConn) Close() error {
	c.link.close()
	return nil
}
