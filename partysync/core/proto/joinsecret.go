package proto

import (
	"encoding/base64"
	"fmt"
	"math"
	"net/netip"
	"time"

	"github.com/gosuda/partysync/partysync/core/bitstream"
	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/serdes"
)

// JoinSecret is everything a prospective client needs to build a connection
// request. It is exchanged out of band.
type JoinSecret struct {
	Version    uint16
	Addr       netip.AddrPort
	Key        Key32
	TickPeriod time.Duration
	MaxPlayers uint8
}

const (
	familyNone = 0
	familyIPv4 = 4
	familyIPv6 = 6
)

type addrPortSerializer struct{}

func (addrPortSerializer) Serialize(w *bitstream.Writer, ap netip.AddrPort) {
	addr := ap.Addr()
	switch {
	case addr.Is4():
		w.WriteBits(familyIPv4, 8)
		b := addr.As4()
		w.WriteBytes(b[:])
	case addr.Is6():
		w.WriteBits(familyIPv6, 8)
		b := addr.As16()
		w.WriteBytes(b[:])
	default:
		w.WriteBits(familyNone, 8)
	}
	serdes.U16.Serialize(w, ap.Port())
}

func (addrPortSerializer) Deserialize(r *bitstream.Reader) (netip.AddrPort, error) {
	family, err := r.ReadBits(8)
	if err != nil {
		return netip.AddrPort{}, err
	}
	var addr netip.Addr
	switch family {
	case familyIPv4:
		var b [4]byte
		if err := r.ReadBytes(b[:]); err != nil {
			return netip.AddrPort{}, err
		}
		addr = netip.AddrFrom4(b)
	case familyIPv6:
		var b [16]byte
		if err := r.ReadBytes(b[:]); err != nil {
			return netip.AddrPort{}, err
		}
		addr = netip.AddrFrom16(b)
	case familyNone:
	default:
		return netip.AddrPort{}, common.ErrInvalidAddress
	}
	port, err := serdes.U16.Deserialize(r)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if !addr.IsValid() {
		return netip.AddrPort{}, nil
	}
	return netip.AddrPortFrom(addr, port), nil
}

type joinSecretSerializer struct{}

func (joinSecretSerializer) Serialize(w *bitstream.Writer, s JoinSecret) {
	serdes.PackedU16.Serialize(w, s.Version)
	AddrPortCodec.Serialize(w, s.Addr)
	Key32Codec.Serialize(w, s.Key)
	DurationCodec.Serialize(w, s.TickPeriod)
	serdes.U8.Serialize(w, s.MaxPlayers)
}

func (joinSecretSerializer) Deserialize(r *bitstream.Reader) (s JoinSecret, err error) {
	if s.Version, err = serdes.PackedU16.Deserialize(r); err != nil {
		return
	}
	if s.Addr, err = AddrPortCodec.Deserialize(r); err != nil {
		return
	}
	if s.Key, err = Key32Codec.Deserialize(r); err != nil {
		return
	}
	if s.TickPeriod, err = DurationCodec.Deserialize(r); err != nil {
		return
	}
	s.MaxPlayers, err = serdes.U8.Deserialize(r)
	return
}

var (
	AddrPortCodec serdes.Serializer[netip.AddrPort] = addrPortSerializer{}

	// DurationCodec carries durations as floating seconds.
	DurationCodec serdes.Serializer[time.Duration] = serdes.Converter[time.Duration, float64]{
		Inner: serdes.F64,
		To:    func(d time.Duration) float64 { return d.Seconds() },
		From:  func(s float64) time.Duration { return time.Duration(math.Round(s * float64(time.Second))) },
	}

	JoinSecretCodec serdes.Serializer[JoinSecret] = joinSecretSerializer{}
)

// MarshalBinary encodes the secret's wire layout.
func (s JoinSecret) MarshalBinary() ([]byte, error) {
	return serdes.Encode(JoinSecretCodec, s), nil
}

func (s *JoinSecret) UnmarshalBinary(data []byte) error {
	v, err := serdes.Decode(JoinSecretCodec, data)
	if err != nil {
		return fmt.Errorf("decode join secret: %w", err)
	}
	if v.Version != common.ProtocolVersion {
		return common.ErrInvalidVersion
	}
	*s = v
	return nil
}

// String renders the secret as unpadded base64url so it can be pasted or
// published.
func (s JoinSecret) String() string {
	b, _ := s.MarshalBinary()
	return base64.RawURLEncoding.EncodeToString(b)
}

// ParseJoinSecret parses the String form.
func ParseJoinSecret(text string) (JoinSecret, error) {
	var s JoinSecret
	raw, err := base64.RawURLEncoding.DecodeString(text)
	if err != nil {
		return s, fmt.Errorf("%w: %v", common.ErrInvalidSecret, err)
	}
	if err := s.UnmarshalBinary(raw); err != nil {
		return s, err
	}
	return s, nil
}

// PartyID derives the public party name from the secret's key.
func (s JoinSecret) PartyID() PartyID {
	return PartyIDFromKey(s.Key)
}
