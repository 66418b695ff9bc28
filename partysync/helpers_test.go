package partysync

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type harness struct {
	t      *testing.T
	net    *MemoryNetwork
	clock  *fakeClock
	server *Server
}

func newHarness(t *testing.T, configure func(cfg *ServerConfig)) *harness {
	t.Helper()
	h := &harness{t: t, net: NewMemoryNetwork(), clock: newFakeClock()}
	cfg := DefaultServerConfig()
	cfg.Clock = h.clock
	cfg.InitialScene = "lobby"
	if configure != nil {
		configure(&cfg)
	}
	s, err := NewServer(h.net, cfg)
	require.NoError(t, err)
	h.server = s
	t.Cleanup(func() { _ = s.Close() })
	// anchor the tick schedule
	s.Poll()
	return h
}

func (h *harness) period() time.Duration {
	return h.server.JoinSecret().TickPeriod
}

// tick advances one period and polls, firing exactly one tick.
func (h *harness) tick() {
	h.clock.Advance(h.period())
	h.server.Poll()
}

func (h *harness) request() proto.ConnectRequest {
	return proto.ConnectRequest{
		Version:   common.ProtocolVersion,
		AccessKey: h.server.JoinSecret().Key,
	}
}

func (h *harness) dialRaw(data []byte) *testPeer {
	h.t.Helper()
	conn, err := h.net.Dial(context.Background(), h.server.JoinSecret(), data)
	require.NoError(h.t, err)
	h.server.Poll()
	return &testPeer{t: h.t, conn: conn.(*MemoryConn)}
}

func (h *harness) dial(req proto.ConnectRequest) *testPeer {
	h.t.Helper()
	data, err := req.MarshalBinary()
	require.NoError(h.t, err)
	return h.dialRaw(data)
}

// join connects a player and discards its join traffic.
func (h *harness) join() *testPeer {
	h.t.Helper()
	p := h.dial(h.request())
	require.True(h.t, p.conn.Connected())
	return p
}

func (h *harness) identity(p *testPeer) common.Identity {
	h.t.Helper()
	husk, ok := h.server.registry.ByPeer(p.conn.link.id)
	require.True(h.t, ok)
	return husk.ID
}

type testPeer struct {
	t    *testing.T
	conn *MemoryConn
}

func (p *testPeer) recv() []proto.Message {
	p.t.Helper()
	var msgs []proto.Message
	err := p.conn.Poll(func(data []byte) {
		m, err := proto.UnmarshalMessage(data)
		require.NoError(p.t, err)
		msgs = append(msgs, m)
	})
	require.NoError(p.t, err)
	return msgs
}

func (p *testPeer) rejection() proto.RejectReason {
	p.t.Helper()
	err := p.conn.Poll(func([]byte) {})
	var rej *RejectError
	require.True(p.t, errors.As(err, &rej), "expected rejection, got %v", err)
	require.ErrorIs(p.t, err, common.ErrRejected)
	return rej.Reason
}

func (p *testPeer) send(m proto.Message) {
	p.t.Helper()
	require.NoError(p.t, p.conn.Send(proto.MarshalMessage(m), ReliableOrdered))
}

func messagesOf[M proto.Message](msgs []proto.Message) []M {
	var out []M
	for _, m := range msgs {
		if v, ok := m.(M); ok {
			out = append(out, v)
		}
	}
	return out
}

func poseAt(ts int64, x float32) proto.TimestampedPose {
	p := proto.NeutralPose
	p.Head.Position.X = x
	return proto.TimestampedPose{Time: common.Timestamp(ts), Pose: p}
}

func netipAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(s)
	require.NoError(t, err)
	return ap
}
