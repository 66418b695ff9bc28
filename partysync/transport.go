package partysync

import (
	"context"
	"fmt"
	"sync"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

// PeerID is the transport's opaque handle for one connection.
type PeerID uint32

// DeliveryMethod selects the guarantee a send needs.
type DeliveryMethod uint8

const (
	ReliableOrdered DeliveryMethod = iota
	Unreliable
)

func (m DeliveryMethod) String() string {
	switch m {
	case ReliableOrdered:
		return "reliable"
	case Unreliable:
		return "unreliable"
	default:
		return fmt.Sprintf("DeliveryMethod(%d)", uint8(m))
	}
}

// Peer is the server's side of an accepted connection.
type Peer interface {
	ID() PeerID
	// Send queues data for delivery. It never blocks and does not retain data.
	Send(data []byte, method DeliveryMethod) error
	Close() error
}

// ConnectionRequest is a pending connection. Exactly one of Accept or Reject
// must be called from inside OnConnectionRequest; a request left undecided is
// rejected without data.
type ConnectionRequest interface {
	Data() []byte
	Accept() Peer
	// Reject refuses the connection, delivering data to the client. Data is
	// copied before Reject returns.
	Reject(data []byte)
}

// EventHandler receives transport events. PollEvents invokes it on the
// calling goroutine only.
type EventHandler interface {
	OnConnectionRequest(req ConnectionRequest)
	OnPeerConnected(p Peer)
	OnPeerDisconnected(p Peer)
	OnMessage(p Peer, data []byte)
}

// Transport is the server's listening side.
type Transport interface {
	// PollEvents dispatches every queued event to h and returns without
	// waiting for more.
	PollEvents(h EventHandler)
	Close() error
}

// Conn is the client's side of a connection.
type Conn interface {
	Send(data []byte, method DeliveryMethod) error
	// Poll hands every received frame to fn. Once the connection is gone it
	// returns ErrPeerClosed, or a *RejectError if the server refused it.
	Poll(fn func(data []byte)) error
	Close() error
}

// Dialer opens a client connection carrying an encoded connect request.
type Dialer interface {
	Dial(ctx context.Context, secret proto.JoinSecret, request []byte) (Conn, error)
}

// RejectError reports a refused connection.
type RejectError struct {
	Reason proto.RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("partysync: connection rejected: %s", e.Reason)
}

func (e *RejectError) Unwrap() error {
	return common.ErrRejected
}

func rejectErrorFrom(data []byte) error {
	reason, err := proto.ParseRejectReason(data)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrRejected, err)
	}
	return &RejectError{Reason: reason}
}

type eventKind uint8

const (
	eventRequest eventKind = iota
	eventDisconnected
	eventMessage
)

type transportEvent struct {
	kind eventKind
	peer Peer
	req  pendingRequest
	data []byte
}

// pendingRequest is a ConnectionRequest the queue can settle when the
// handler leaves it undecided.
type pendingRequest interface {
	ConnectionRequest
	accepted() (Peer, bool)
	decided() bool
}

// eventQueue collects events from transport goroutines and replays them on
// the polling goroutine.
type eventQueue struct {
	mu     sync.Mutex
	events []transportEvent
	spare  []transportEvent
}

func (q *eventQueue) push(e transportEvent) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *eventQueue) drain(h EventHandler) {
	q.mu.Lock()
	batch := q.events
	q.events = q.spare[:0]
	q.mu.Unlock()

	for i := range batch {
		e := &batch[i]
		switch e.kind {
		case eventRequest:
			h.OnConnectionRequest(e.req)
			if !e.req.decided() {
				e.req.Reject(nil)
			}
			if p, ok := e.req.accepted(); ok {
				h.OnPeerConnected(p)
			}
		case eventDisconnected:
			h.OnPeerDisconnected(e.peer)
		case eventMessage:
			h.OnMessage(e.peer, e.data)
		}
	}

	clear(batch)
	q.mu.Lock()
	q.spare = batch[:0]
	q.mu.Unlock()
}
