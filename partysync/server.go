package partysync

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
	"github.com/gosuda/partysync/partysync/utils/pool"
)

// ServerConfig configures an authoritative party server.
type ServerConfig struct {
	MaxPlayers uint8
	// TickRate is the number of broadcast ticks per second.
	TickRate int
	// AllowSceneReload lets players announce the scene that is already
	// loaded; AllowSceneChange lets them announce a different one. The
	// operator connection bypasses both.
	AllowSceneReload bool
	AllowSceneChange bool
	InitialScene     string
	// PublicAddr is published in the join secret.
	PublicAddr netip.AddrPort

	// HostKey identifies the operator; JoinKey admits players. Both are
	// generated when nil.
	HostKey *proto.Key32
	JoinKey *proto.Key32

	Clock  Clock
	Hooks  ServerHooks
	Logger zerolog.Logger
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		MaxPlayers: common.DefaultMaxPlayers,
		TickRate:   common.DefaultTickRate,
	}
}

// Server runs the authoritative party session. All entry points are
// serialized by one lock; transport events are handled synchronously inside
// Poll.
type Server struct {
	transport Transport
	cfg       ServerConfig
	hooks     ServerHooks
	logger    zerolog.Logger

	mu       sync.Mutex
	clock    *sessionClock
	ticker   *Ticker
	registry *Registry
	scene    string
	hostKey  proto.Key32
	secret   proto.JoinSecret
	partyID  proto.PartyID
	// operator status decided at accept, consumed on connect
	accepted map[PeerID]bool
	moves    map[common.Identity]proto.TimestampedPose
	closed   bool
}

// NewServer validates cfg and creates a server reading events from
// transport.
func NewServer(transport Transport, cfg ServerConfig) (*Server, error) {
	if cfg.TickRate <= 0 {
		return nil, common.ErrInvalidTickRate
	}
	if cfg.MaxPlayers == 0 || int(cfg.MaxPlayers) > common.MaxPartySize {
		return nil, common.ErrInvalidCapacity
	}
	if len(cfg.InitialScene) > common.MaxSceneNameLen {
		return nil, fmt.Errorf("initial scene: %w", common.ErrStringTooLong)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = NopHooks{}
	}

	hostKey := keyOrNew(cfg.HostKey)
	joinKey := keyOrNew(cfg.JoinKey)
	period := common.TickPeriod(cfg.TickRate)

	s := &Server{
		transport: transport,
		cfg:       cfg,
		hooks:     cfg.Hooks,
		logger:    cfg.Logger,
		clock:     newSessionClock(cfg.Clock),
		ticker:    NewTicker(period),
		registry:  NewRegistry(),
		scene:     cfg.InitialScene,
		hostKey:   hostKey,
		secret: proto.JoinSecret{
			Version:    common.ProtocolVersion,
			Addr:       cfg.PublicAddr,
			Key:        joinKey,
			TickPeriod: period,
			MaxPlayers: cfg.MaxPlayers,
		},
		partyID:  proto.PartyIDFromKey(joinKey),
		accepted: make(map[PeerID]bool),
		moves:    make(map[common.Identity]proto.TimestampedPose),
	}
	return s, nil
}

func keyOrNew(k *proto.Key32) proto.Key32 {
	if k != nil {
		return *k
	}
	return proto.NewKey32()
}

// Poll dispatches pending transport events, then runs the tick when one is
// due. It never blocks on the network.
func (s *Server) Poll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.transport.PollEvents(serverEvents{s})
	if s.ticker.Update(s.clock.Wall()) {
		s.tick()
	}
}

// Run polls every interval until ctx is done, then closes the server.
func (s *Server) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = s.ticker.Period() / 4
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	s.logger.Info().
		Str("party", s.partyID.String()).
		Int("tick_rate", s.cfg.TickRate).
		Uint8("max_players", s.cfg.MaxPlayers).
		Msg("[Server] Party session started")
	for {
		select {
		case <-ctx.Done():
			return s.Close()
		case <-t.C:
			s.Poll()
		}
	}
}

// Close disconnects every player and closes the transport.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.registry.Each(func(h *Husk) {
		_ = h.Peer.Close()
	})
	s.mu.Unlock()

	s.logger.Info().Msg("[Server] Party session closed")
	return s.transport.Close()
}

// SetScene records the scene the host has loaded and announces it to every
// player. Hooks see the change as coming from HostIdentity.
func (s *Server) SetScene(name string) error {
	if len(name) > common.MaxSceneNameLen {
		return common.ErrStringTooLong
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scene = name
	s.broadcast(proto.SceneName{Name: name}, ReliableOrdered, nil)
	s.hooks.SceneChanged(name, HostIdentity)
	return nil
}

// JoinSecret returns the descriptor clients need to connect.
func (s *Server) JoinSecret() proto.JoinSecret {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secret
}

// HostKey returns the operator credential.
func (s *Server) HostKey() proto.Key32 {
	return s.hostKey
}

// RotateJoinKey replaces the access key. Connected players stay; new joins
// need the returned secret.
func (s *Server) RotateJoinKey() proto.JoinSecret {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secret.Key = proto.NewKey32()
	s.logger.Info().Msg("[Server] Join key rotated")
	return s.secret
}

// PlayerStatus describes one connected player.
type PlayerStatus struct {
	ID     common.Identity `json:"id"`
	IsSelf bool            `json:"self"`
}

// Status is a point-in-time summary of the session.
type Status struct {
	PartyID    string         `json:"party_id"`
	Size       int            `json:"size"`
	MaxPlayers int            `json:"max_players"`
	Scene      string         `json:"scene"`
	Tick       uint64         `json:"tick"`
	TickRate   int            `json:"tick_rate"`
	Players    []PlayerStatus `json:"players"`
}

func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		PartyID:    s.partyID.String(),
		Size:       s.registry.Len(),
		MaxPlayers: int(s.cfg.MaxPlayers),
		Scene:      s.scene,
		Tick:       s.ticker.Count(),
		TickRate:   s.cfg.TickRate,
		Players:    make([]PlayerStatus, 0, s.registry.Len()),
	}
	s.registry.Each(func(h *Husk) {
		st.Players = append(st.Players, PlayerStatus{ID: h.ID, IsSelf: h.IsSelf})
	})
	return st
}

func (s *Server) partySize() proto.PartySize {
	return proto.PartySize{Size: uint8(s.registry.Len()), Max: s.cfg.MaxPlayers}
}

// send encodes m once into a pooled buffer and hands it to every target.
// The buffer is released on return; peers copy what they keep.
func (s *Server) send(m proto.Message, method DeliveryMethod, targets func(yield func(Peer))) {
	pool.With(func(b *bytebufferpool.ByteBuffer) {
		b.B = proto.AppendMessage(b.B[:0], m)
		targets(func(p Peer) {
			if err := p.Send(b.B, method); err != nil {
				s.logger.Warn().Err(err).
					Uint32("peer", uint32(p.ID())).
					Uint8("type", m.MessageType()).
					Msg("[Server] Failed to send message")
			}
		})
	})
}

func (s *Server) sendTo(p Peer, m proto.Message, method DeliveryMethod) {
	s.send(m, method, func(yield func(Peer)) { yield(p) })
}

// broadcast sends m to every player except the one holding except.
func (s *Server) broadcast(m proto.Message, method DeliveryMethod, except Peer) {
	s.send(m, method, func(yield func(Peer)) {
		s.registry.Each(func(h *Husk) {
			if except != nil && h.Peer.ID() == except.ID() {
				return
			}
			yield(h.Peer)
		})
	})
}

// tick sends every pending pose to every other player.
func (s *Server) tick() {
	clear(s.moves)
	s.registry.Each(func(h *Husk) {
		if h.Pending {
			s.moves[h.ID] = h.Pose
		}
	})
	s.hooks.Ticked(s.ticker.Count())
	if len(s.moves) == 0 {
		return
	}

	s.registry.Each(func(h *Husk) {
		own, moved := s.moves[h.ID]
		if moved {
			delete(s.moves, h.ID)
		}
		if len(s.moves) > 0 {
			s.sendTo(h.Peer, proto.PlayerMoves{Moves: s.moves}, Unreliable)
		}
		if moved {
			s.moves[h.ID] = own
		}
	})
	s.registry.Each(func(h *Husk) {
		h.Pending = false
	})
}

// serverEvents adapts the server to EventHandler. Its methods run inside
// Poll with the lock held.
type serverEvents struct {
	s *Server
}

func (e serverEvents) OnConnectionRequest(req ConnectionRequest) {
	s := e.s
	if s.registry.Len()+len(s.accepted) >= int(s.cfg.MaxPlayers) {
		s.reject(req, proto.RejectFull)
		return
	}

	var cr proto.ConnectRequest
	if err := cr.UnmarshalBinary(req.Data()); err != nil {
		s.logger.Debug().Err(err).Msg("[Server] Malformed connect request")
		s.reject(req, proto.RejectMalformedMessage)
		return
	}
	if !cr.AccessKey.Equal(s.secret.Key) {
		s.reject(req, proto.RejectMismatchedKey)
		return
	}

	isSelf := cr.HostKey != nil && cr.HostKey.Equal(s.hostKey)
	peer := req.Accept()
	s.accepted[peer.ID()] = isSelf
	s.sendTo(peer, proto.PingEcho{ClientTime: cr.ClientTime, ServerTime: s.clock.Now()}, ReliableOrdered)
}

func (s *Server) reject(req ConnectionRequest, reason proto.RejectReason) {
	pool.With(func(b *bytebufferpool.ByteBuffer) {
		b.B = reason.AppendTo(b.B[:0])
		req.Reject(b.B)
	})

	s.logger.Info().
		Str("reason", reason.String()).
		Int("size", s.registry.Len()).
		Msg("[Server] Connection rejected")
}

func (e serverEvents) OnPeerConnected(p Peer) {
	s := e.s
	isSelf := s.accepted[p.ID()]
	delete(s.accepted, p.ID())

	h := s.registry.Add(p, isSelf)
	h.Pose = proto.TimestampedPose{Time: s.clock.Now(), Pose: proto.NeutralPose}
	s.broadcast(proto.PlayerJoin{ID: h.ID, Pose: h.Pose}, ReliableOrdered, p)

	size := s.partySize()
	s.sendTo(p, proto.PartyInit{
		PartyID: s.partyID,
		Size:    size.Size,
		Max:     size.Max,
		Secret:  s.secret,
	}, ReliableOrdered)
	s.registry.Each(func(o *Husk) {
		if o.ID != h.ID {
			s.sendTo(p, proto.PlayerJoin{ID: o.ID, Pose: o.Pose}, ReliableOrdered)
		}
	})
	s.sendTo(p, proto.SceneName{Name: s.scene}, ReliableOrdered)
	s.broadcast(size, ReliableOrdered, nil)

	s.hooks.PlayerJoined(h.ID, isSelf)
	s.logger.Info().
		Uint8("id", uint8(h.ID)).
		Bool("self", isSelf).
		Uint8("size", size.Size).
		Msg("[Server] Player joined")
}

func (e serverEvents) OnPeerDisconnected(p Peer) {
	s := e.s
	delete(s.accepted, p.ID())
	h, ok := s.registry.Remove(p.ID())
	if !ok {
		return
	}

	s.broadcast(s.partySize(), ReliableOrdered, nil)
	s.broadcast(proto.PlayerLeave{ID: h.ID}, ReliableOrdered, nil)

	s.hooks.PlayerLeft(h.ID)
	s.logger.Info().
		Uint8("id", uint8(h.ID)).
		Int("size", s.registry.Len()).
		Msg("[Server] Player left")
}

func (e serverEvents) OnMessage(p Peer, data []byte) {
	s := e.s
	h, ok := s.registry.ByPeer(p.ID())
	if !ok {
		return
	}

	msg, err := proto.UnmarshalMessage(data)
	if err != nil {
		s.logger.Debug().Err(err).Uint8("id", uint8(h.ID)).Msg("[Server] Dropped malformed message")
		return
	}

	switch m := msg.(type) {
	case proto.Ping:
		s.sendTo(p, proto.PingEcho{ClientTime: m.ClientTime, ServerTime: s.clock.Now()}, Unreliable)
	case proto.PoseUpdate:
		h.Pose = m.Pose
		h.Pending = true
	case proto.SceneChange:
		s.sceneChange(h, m.Name)
	default:
		s.logger.Debug().
			Uint8("id", uint8(h.ID)).
			Uint8("type", msg.MessageType()).
			Msg("[Server] Dropped unexpected message")
	}
}

// sceneChange relays a player's scene announcement when permitted.
func (s *Server) sceneChange(from *Husk, name string) {
	reload := name == s.scene
	if !from.IsSelf {
		allowed := s.cfg.AllowSceneChange
		if reload {
			allowed = s.cfg.AllowSceneReload
		}
		if !allowed {
			s.logger.Debug().
				Uint8("id", uint8(from.ID)).
				Str("scene", name).
				Bool("reload", reload).
				Msg("[Server] Scene change not permitted")
			return
		}
	}

	s.scene = name
	s.broadcast(proto.SceneName{Name: name}, ReliableOrdered, from.Peer)
	s.hooks.SceneChanged(name, from.ID)
	s.logger.Info().Uint8("id", uint8(from.ID)).Str("scene", name).Msg("[Server] Scene changed")
}
