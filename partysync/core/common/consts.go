package common

import (
	"errors"
	"time"
)

const (
	ProtocolVersion = 0x0003

	MaxIdentities = 256
	MaxPartySize  = 255

	KeySize     = 32
	PartyIDSize = 16

	MaxSceneNameLen = 255
	MaxFrameSize    = 1 << 16

	DefaultTickRate       = 20
	DefaultMaxPlayers     = 8
	DefaultRetentionTicks = 10
	DefaultDelayAlpha     = 0.1

	// DelayFloorTicks covers the remote send tick, the server relay tick and
	// the local render tick.
	DelayFloorTicks = 3

	PingInterval = time.Second
)

// Client -> server message types.
const (
	_ uint8 = iota
	MsgPing
	MsgPose
	MsgSceneChange
)

// Server -> client message types.
const (
	MsgPartyInit uint8 = iota + 0x40
	MsgSceneName
	MsgPartySize
	MsgPlayerJoin
	MsgPlayerLeave
	MsgPlayerMoves
	MsgPingEcho
)

var (
	ErrShortBuffer     = errors.New("read past end of buffer")
	ErrUnknownMessage  = errors.New("unknown message type")
	ErrInvalidAddress  = errors.New("invalid address family")
	ErrStringTooLong   = errors.New("string exceeds maximum length")
	ErrInvalidVersion  = errors.New("invalid protocol version")
	ErrFrameTooLarge   = errors.New("frame exceeds maximum size")
	ErrInvalidSecret   = errors.New("invalid join secret")
	ErrInvalidTickRate = errors.New("tick rate must be positive")
	ErrInvalidCapacity = errors.New("max players must be between 1 and 255")

	ErrPeerClosed      = errors.New("peer closed")
	ErrTransportClosed = errors.New("transport closed")
	ErrRejected        = errors.New("connection rejected")
	ErrNotConnected    = errors.New("not connected")
	ErrNotSynced       = errors.New("server clock not synchronized")
	ErrSendBufferFull  = errors.New("send buffer full")
)
