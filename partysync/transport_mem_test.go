package partysync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

// recordingHandler accepts requests whose data starts with 1 and leaves
// the rest undecided.
type recordingHandler struct {
	events   []string
	messages [][]byte
	peers    []Peer
}

func (h *recordingHandler) OnConnectionRequest(req ConnectionRequest) {
	h.events = append(h.events, "request")
	if len(req.Data()) > 0 && req.Data()[0] == 1 {
		h.peers = append(h.peers, req.Accept())
	}
}

func (h *recordingHandler) OnPeerConnected(Peer)    { h.events = append(h.events, "connected") }
func (h *recordingHandler) OnPeerDisconnected(Peer) { h.events = append(h.events, "disconnected") }

func (h *recordingHandler) OnMessage(_ Peer, data []byte) {
	h.events = append(h.events, "message")
	h.messages = append(h.messages, data)
}

func TestMemoryNetworkLifecycle(t *testing.T) {
	t.Parallel()
	n := NewMemoryNetwork()
	h := &recordingHandler{}
	ctx := context.Background()

	c, err := n.Dial(ctx, proto.JoinSecret{}, []byte{1})
	require.NoError(t, err)
	require.ErrorIs(t, c.Send([]byte("early"), ReliableOrdered), common.ErrNotConnected)

	n.PollEvents(h)
	require.Equal(t, []string{"request", "connected"}, h.events)
	require.Equal(t, 1, n.Peers())

	payload := []byte("hello")
	require.NoError(t, c.Send(payload, Unreliable))
	payload[0] = 'j'
	n.PollEvents(h)
	assert.Equal(t, []byte("hello"), h.messages[0])

	require.NoError(t, h.peers[0].Send([]byte("back"), ReliableOrdered))
	var got [][]byte
	require.NoError(t, c.Poll(func(data []byte) { got = append(got, data) }))
	assert.Equal(t, [][]byte{[]byte("back")}, got)

	require.NoError(t, h.peers[0].Close())
	n.PollEvents(h)
	assert.Equal(t, "disconnected", h.events[len(h.events)-1])
	require.ErrorIs(t, c.Poll(func([]byte) {}), common.ErrPeerClosed)
	require.ErrorIs(t, h.peers[0].Send([]byte("late"), ReliableOrdered), common.ErrPeerClosed)
}

func TestMemoryNetworkUndecidedRequestIsRejected(t *testing.T) {
	t.Parallel()
	n := NewMemoryNetwork()
	h := &recordingHandler{}
	c, err := n.Dial(context.Background(), proto.JoinSecret{}, []byte{2})
	require.NoError(t, err)

	n.PollEvents(h)
	assert.Equal(t, []string{"request"}, h.events)
	require.ErrorIs(t, c.Poll(func([]byte) {}), common.ErrRejected)
	assert.Zero(t, n.Peers())
}

func TestMemoryNetworkAbandonedRequest(t *testing.T) {
	t.Parallel()
	n := NewMemoryNetwork()
	h := &recordingHandler{}
	c, err := n.Dial(context.Background(), proto.JoinSecret{}, []byte{1})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	n.PollEvents(h)
	n.PollEvents(h)
	assert.Equal(t, []string{"request", "connected", "disconnected"}, h.events)
}

func TestMemoryNetworkClose(t *testing.T) {
	t.Parallel()
	n := NewMemoryNetwork()
	c, err := n.Dial(context.Background(), proto.JoinSecret{}, []byte{1})
	require.NoError(t, err)
	n.PollEvents(&recordingHandler{})

	require.NoError(t, n.Close())
	require.ErrorIs(t, c.Poll(func([]byte) {}), common.ErrPeerClosed)
	_, err = n.Dial(context.Background(), proto.JoinSecret{}, nil)
	require.ErrorIs(t, err, common.ErrTransportClosed)
}
