package proto

import (
	"fmt"

	"github.com/gosuda/partysync/partysync/core/bitstream"
	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/serdes"
)

// Message is one framed application message. A frame is an 8-bit type
// followed by the message body, zero padded to a byte boundary.
type Message interface {
	MessageType() uint8
}

// Client -> server.

type Ping struct {
	ClientTime common.Timestamp
}

type PoseUpdate struct {
	Pose TimestampedPose
}

type SceneChange struct {
	Name string
}

// Server -> client.

type PartyInit struct {
	PartyID PartyID
	Size    uint8
	Max     uint8
	Secret  JoinSecret
}

type SceneName struct {
	Name string
}

type PartySize struct {
	Size uint8
	Max  uint8
}

type PlayerJoin struct {
	ID   common.Identity
	Pose TimestampedPose
}

type PlayerLeave struct {
	ID common.Identity
}

// PlayerMoves carries only the players that changed since the last tick.
type PlayerMoves struct {
	Moves map[common.Identity]TimestampedPose
}

type PingEcho struct {
	ClientTime common.Timestamp
	ServerTime common.Timestamp
}

func (Ping) MessageType() uint8        { return common.MsgPing }
func (PoseUpdate) MessageType() uint8  { return common.MsgPose }
func (SceneChange) MessageType() uint8 { return common.MsgSceneChange }
func (PartyInit) MessageType() uint8   { return common.MsgPartyInit }
func (SceneName) MessageType() uint8   { return common.MsgSceneName }
func (PartySize) MessageType() uint8   { return common.MsgPartySize }
func (PlayerJoin) MessageType() uint8  { return common.MsgPlayerJoin }
func (PlayerLeave) MessageType() uint8 { return common.MsgPlayerLeave }
func (PlayerMoves) MessageType() uint8 { return common.MsgPlayerMoves }
func (PingEcho) MessageType() uint8    { return common.MsgPingEcho }

var movesCodec = serdes.Map[common.Identity, TimestampedPose]{
	Keys:   IdentityCodec,
	Values: TimestampedPoseCodec,
}

// AppendMessage appends m's frame to dst and returns the extended slice.
func AppendMessage(dst []byte, m Message) []byte {
	w := bitstream.NewWriter(dst)
	serdes.U8.Serialize(w, m.MessageType())
	switch m := m.(type) {
	case Ping:
		TimestampCodec.Serialize(w, m.ClientTime)
	case PoseUpdate:
		TimestampedPoseCodec.Serialize(w, m.Pose)
	case SceneChange:
		SceneNameCodec.Serialize(w, m.Name)
	case PartyInit:
		PartyIDCodec.Serialize(w, m.PartyID)
		serdes.U8.Serialize(w, m.Size)
		serdes.U8.Serialize(w, m.Max)
		JoinSecretCodec.Serialize(w, m.Secret)
	case SceneName:
		SceneNameCodec.Serialize(w, m.Name)
	case PartySize:
		serdes.U8.Serialize(w, m.Size)
		serdes.U8.Serialize(w, m.Max)
	case PlayerJoin:
		IdentityCodec.Serialize(w, m.ID)
		TimestampedPoseCodec.Serialize(w, m.Pose)
	case PlayerLeave:
		IdentityCodec.Serialize(w, m.ID)
	case PlayerMoves:
		movesCodec.Serialize(w, m.Moves)
	case PingEcho:
		TimestampCodec.Serialize(w, m.ClientTime)
		TimestampCodec.Serialize(w, m.ServerTime)
	default:
		panic(fmt.Sprintf("proto: unhandled message %T", m))
	}
	return w.Bytes()
}

// MarshalMessage encodes m into a new buffer.
func MarshalMessage(m Message) []byte {
	return AppendMessage(nil, m)
}

// UnmarshalMessage decodes one frame.
func UnmarshalMessage(data []byte) (Message, error) {
	if len(data) > common.MaxFrameSize {
		return nil, common.ErrFrameTooLarge
	}
	r := bitstream.NewReader(data)
	typ, err := serdes.U8.Deserialize(r)
	if err != nil {
		return nil, err
	}

	var m Message
	switch typ {
	case common.MsgPing:
		var v Ping
		v.ClientTime, err = TimestampCodec.Deserialize(r)
		m = v
	case common.MsgPose:
		var v PoseUpdate
		v.Pose, err = TimestampedPoseCodec.Deserialize(r)
		m = v
	case common.MsgSceneChange:
		var v SceneChange
		v.Name, err = SceneNameCodec.Deserialize(r)
		m = v
	case common.MsgPartyInit:
		m, err = decodePartyInit(r)
	case common.MsgSceneName:
		var v SceneName
		v.Name, err = SceneNameCodec.Deserialize(r)
		m = v
	case common.MsgPartySize:
		var v PartySize
		if v.Size, err = serdes.U8.Deserialize(r); err == nil {
			v.Max, err = serdes.U8.Deserialize(r)
		}
		m = v
	case common.MsgPlayerJoin:
		var v PlayerJoin
		if v.ID, err = IdentityCodec.Deserialize(r); err == nil {
			v.Pose, err = TimestampedPoseCodec.Deserialize(r)
		}
		m = v
	case common.MsgPlayerLeave:
		var v PlayerLeave
		v.ID, err = IdentityCodec.Deserialize(r)
		m = v
	case common.MsgPlayerMoves:
		var v PlayerMoves
		v.Moves, err = movesCodec.Deserialize(r)
		m = v
	case common.MsgPingEcho:
		var v PingEcho
		if v.ClientTime, err = TimestampCodec.Deserialize(r); err == nil {
			v.ServerTime, err = TimestampCodec.Deserialize(r)
		}
		m = v
	default:
		return nil, fmt.Errorf("%w: %#x", common.ErrUnknownMessage, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("decode message %#x: %w", typ, err)
	}
	return m, nil
}

func decodePartyInit(r *bitstream.Reader) (v PartyInit, err error) {
	if v.PartyID, err = PartyIDCodec.Deserialize(r); err != nil {
		return
	}
	if v.Size, err = serdes.U8.Deserialize(r); err != nil {
		return
	}
	if v.Max, err = serdes.U8.Deserialize(r); err != nil {
		return
	}
	v.Secret, err = JoinSecretCodec.Deserialize(r)
	return
}
