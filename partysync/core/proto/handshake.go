package proto

import (
	"fmt"

	"github.com/gosuda/partysync/partysync/core/bitstream"
	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/serdes"
)

// ConnectRequest is the payload a client attaches to its connection attempt.
type ConnectRequest struct {
	Version    uint16
	AccessKey  Key32
	HostKey    *Key32
	ClientTime common.Timestamp
}

type connectRequestSerializer struct{}

var optionalKey = serdes.Optional[Key32]{Inner: Key32Codec}

func (connectRequestSerializer) Serialize(w *bitstream.Writer, c ConnectRequest) {
	serdes.PackedU16.Serialize(w, c.Version)
	Key32Codec.Serialize(w, c.AccessKey)
	optionalKey.Serialize(w, c.HostKey)
	TimestampCodec.Serialize(w, c.ClientTime)
}

func (connectRequestSerializer) Deserialize(r *bitstream.Reader) (c ConnectRequest, err error) {
	if c.Version, err = serdes.PackedU16.Deserialize(r); err != nil {
		return
	}
	if c.Version != common.ProtocolVersion {
		err = common.ErrInvalidVersion
		return
	}
	if c.AccessKey, err = Key32Codec.Deserialize(r); err != nil {
		return
	}
	if c.HostKey, err = optionalKey.Deserialize(r); err != nil {
		return
	}
	c.ClientTime, err = TimestampCodec.Deserialize(r)
	return
}

var ConnectRequestCodec serdes.Serializer[ConnectRequest] = connectRequestSerializer{}

func (c ConnectRequest) MarshalBinary() ([]byte, error) {
	return serdes.Encode(ConnectRequestCodec, c), nil
}

func (c *ConnectRequest) UnmarshalBinary(data []byte) error {
	v, err := serdes.Decode(ConnectRequestCodec, data)
	if err != nil {
		return fmt.Errorf("decode connect request: %w", err)
	}
	*c = v
	return nil
}

// RejectReason explains a refused connection. It travels as a single byte so
// clients without this codebase can decode it.
type RejectReason uint8

const (
	RejectFull RejectReason = iota + 1
	RejectMalformedMessage
	RejectMismatchedKey
)

func (r RejectReason) String() string {
	switch r {
	case RejectFull:
		return "Full"
	case RejectMalformedMessage:
		return "MalformedMessage"
	case RejectMismatchedKey:
		return "MismatchedKey"
	default:
		return fmt.Sprintf("RejectReason(%d)", uint8(r))
	}
}

// AppendTo appends the reason's wire form to dst.
func (r RejectReason) AppendTo(dst []byte) []byte {
	return append(dst, byte(r))
}

// ParseRejectReason decodes rejection data from the transport.
func ParseRejectReason(data []byte) (RejectReason, error) {
	if len(data) < 1 {
		return 0, common.ErrShortBuffer
	}
	r := RejectReason(data[0])
	if r < RejectFull || r > RejectMismatchedKey {
		return 0, fmt.Errorf("unknown reject reason %d", data[0])
	}
	return r, nil
}
