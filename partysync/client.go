package partysync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/metrics"
	"github.com/gosuda/partysync/partysync/core/proto"
	"github.com/gosuda/partysync/partysync/utils/pool"
)

// ClientConfig configures a party client.
type ClientConfig struct {
	Renderer Renderer
	// RetentionTicks is the pose history kept per remote player.
	RetentionTicks int
	// DelayAlpha smooths interpolation delay decreases.
	DelayAlpha float64
	// OffsetAlpha smooths the server clock offset.
	OffsetAlpha float64
	// HostKey claims the operator role when it matches the server's.
	HostKey *proto.Key32

	Clock  Clock
	Logger zerolog.Logger
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RetentionTicks: common.DefaultRetentionTicks,
		DelayAlpha:     common.DefaultDelayAlpha,
		OffsetAlpha:    0.2,
	}
}

// Client is one player's connection to a party. It is not safe for
// concurrent use; drive it from one goroutine.
type Client struct {
	conn   Conn
	secret proto.JoinSecret
	cfg    ClientConfig
	logger zerolog.Logger
	clock  *sessionClock

	// offset of server time over local time, in microseconds
	offset *metrics.EMA
	rtt    *metrics.EMA
	synced bool

	partyID proto.PartyID
	size    uint8
	max     uint8
	scene   string
	remotes map[common.Identity]*RemotePlayer
}

// Connect sends a connect request for secret through dialer.
func Connect(ctx context.Context, dialer Dialer, secret proto.JoinSecret, cfg ClientConfig) (*Client, error) {
	if cfg.OffsetAlpha <= 0 || cfg.OffsetAlpha > 1 {
		cfg.OffsetAlpha = 0.2
	}
	c := &Client{
		secret:  secret,
		cfg:     cfg,
		logger:  cfg.Logger,
		clock:   newSessionClock(cfg.Clock),
		offset:  metrics.NewEMA(cfg.OffsetAlpha, 0),
		rtt:     metrics.NewEMA(cfg.OffsetAlpha, 0),
		max:     secret.MaxPlayers,
		remotes: make(map[common.Identity]*RemotePlayer),
	}

	req := proto.ConnectRequest{
		Version:    common.ProtocolVersion,
		AccessKey:  secret.Key,
		HostKey:    cfg.HostKey,
		ClientTime: c.clock.Now(),
	}
	data, err := req.MarshalBinary()
	if err != nil {
		return nil, err
	}
	conn, err := dialer.Dial(ctx, secret, data)
	if err != nil {
		return nil, fmt.Errorf("connect to party %s: %w", secret.PartyID(), err)
	}
	c.conn = conn
	return c, nil
}

// Poll processes every frame received since the last call. It returns
// ErrPeerClosed or a *RejectError once the connection is gone.
func (c *Client) Poll() error {
	return c.conn.Poll(c.handle)
}

func (c *Client) handle(data []byte) {
	msg, err := proto.UnmarshalMessage(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("[Client] Dropped malformed message")
		return
	}

	switch m := msg.(type) {
	case proto.PingEcho:
		c.syncClock(m)
	case proto.PartyInit:
		c.partyID = m.PartyID
		c.size, c.max = m.Size, m.Max
		c.logger.Info().
			Str("party", m.PartyID.String()).
			Uint8("size", m.Size).
			Uint8("max", m.Max).
			Msg("[Client] Joined party")
	case proto.SceneName:
		c.scene = m.Name
	case proto.PartySize:
		c.size, c.max = m.Size, m.Max
	case proto.PlayerJoin:
		c.remote(m.ID).Seed(m.Pose)
		c.logger.Debug().Uint8("id", uint8(m.ID)).Msg("[Client] Player joined")
	case proto.PlayerLeave:
		if _, ok := c.remotes[m.ID]; ok {
			delete(c.remotes, m.ID)
			if c.cfg.Renderer != nil {
				c.cfg.Renderer.RemovePlayer(m.ID)
			}
		}
		c.logger.Debug().Uint8("id", uint8(m.ID)).Msg("[Client] Player left")
	case proto.PlayerMoves:
		now, ok := c.ServerNow()
		for id, tp := range m.Moves {
			r := c.remote(id)
			if ok {
				r.Observe(now, tp)
			} else {
				r.Seed(tp)
			}
		}
	default:
		c.logger.Debug().Uint8("type", msg.MessageType()).Msg("[Client] Dropped unexpected message")
	}
}

func (c *Client) remote(id common.Identity) *RemotePlayer {
	r, ok := c.remotes[id]
	if !ok {
		r = newRemotePlayer(id, c.secret.TickPeriod, c.cfg.RetentionTicks, c.cfg.DelayAlpha, c.logger)
		c.remotes[id] = r
	}
	return r
}

// syncClock folds a ping echo into the offset estimate, assuming the echo
// was stamped halfway through the round trip.
func (c *Client) syncClock(m proto.PingEcho) {
	local := c.clock.Now()
	rtt := local - m.ClientTime
	if rtt < 0 {
		return
	}
	sample := float64(m.ServerTime + rtt/2 - local)
	if !c.synced {
		c.offset.Reset(sample)
		c.rtt.Reset(float64(rtt))
		c.synced = true
		return
	}
	c.offset.Update(sample)
	c.rtt.Update(float64(rtt))
}

// ServerNow estimates the server's current time. It reports false until the
// first ping echo arrives.
func (c *Client) ServerNow() (common.Timestamp, bool) {
	if !c.synced {
		return 0, false
	}
	return c.clock.Now() + common.Timestamp(c.offset.Get()), true
}

// RTT is the smoothed round trip time.
func (c *Client) RTT() common.Timestamp {
	return common.Timestamp(c.rtt.Get())
}

// Render applies every remote player's pose at now minus its interpolation
// delay. It does nothing until the clock is synchronized.
func (c *Client) Render() {
	now, ok := c.ServerNow()
	if !ok || c.cfg.Renderer == nil {
		return
	}
	for id, r := range c.remotes {
		c.cfg.Renderer.ApplyPose(id, r.Sample(now))
	}
}

func (c *Client) send(m proto.Message, method DeliveryMethod) (err error) {
	pool.With(func(b *bytebufferpool.ByteBuffer) {
		b.B = proto.AppendMessage(b.B[:0], m)
		err = c.conn.Send(b.B, method)
	})
	return err
}

// SendPose stamps pose with the estimated server time and sends it.
func (c *Client) SendPose(pose proto.Pose) error {
	now, ok := c.ServerNow()
	if !ok {
		return common.ErrNotSynced
	}
	return c.send(proto.PoseUpdate{Pose: proto.TimestampedPose{Time: now, Pose: pose}}, Unreliable)
}

// SendScene announces the scene this player loaded.
func (c *Client) SendScene(name string) error {
	return c.send(proto.SceneChange{Name: name}, ReliableOrdered)
}

// Ping sends a clock probe.
func (c *Client) Ping() error {
	return c.send(proto.Ping{ClientTime: c.clock.Now()}, Unreliable)
}

func (c *Client) PartyID() proto.PartyID {
	return c.partyID
}

// PartySize returns the current and maximum party size.
func (c *Client) PartySize() (size, limit uint8) {
	return c.size, c.max
}

func (c *Client) Scene() string {
	return c.scene
}

// Remote returns the player with id, if known.
func (c *Client) Remote(id common.Identity) (*RemotePlayer, bool) {
	r, ok := c.remotes[id]
	return r, ok
}

// Remotes returns the number of other players known to the client.
func (c *Client) Remotes() int {
	return len(c.remotes)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
