package proto

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/gosuda/partysync/partysync/core/bitstream"
	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/serdes"
	"github.com/gosuda/partysync/partysync/utils/randpool"
)

// Key32 is an opaque 256-bit credential.
type Key32 [common.KeySize]byte

// NewKey32 draws a key from the system entropy source.
func NewKey32() Key32 {
	var k Key32
	randpool.Rand(k[:])
	return k
}

// Equal compares keys in constant time.
func (k Key32) Equal(o Key32) bool {
	return subtle.ConstantTimeCompare(k[:], o[:]) == 1
}

func (k Key32) Hex() string {
	return hex.EncodeToString(k[:])
}

// ParseKey32 decodes the hex form produced by Hex.
func ParseKey32(s string) (Key32, error) {
	var k Key32
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != common.KeySize {
		return k, common.ErrInvalidSecret
	}
	copy(k[:], b)
	return k, nil
}

// PartyID is the public, non-secret name of a party.
type PartyID [common.PartyIDSize]byte

// PartyIDFromKey derives the party ID from an access key. The key cannot be
// recovered from the ID.
func PartyIDFromKey(k Key32) PartyID {
	sum := blake2b.Sum256(k[:])
	var id PartyID
	copy(id[:], sum[:common.PartyIDSize])
	return id
}

func (p PartyID) String() string {
	return hex.EncodeToString(p[:])
}

type Vec3 struct {
	X, Y, Z float32
}

type Quat struct {
	X, Y, Z, W float32
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

type Transform struct {
	Position Vec3
	Rotation Quat
}

// Pose holds the three tracked points of a player.
type Pose struct {
	Head      Transform
	LeftHand  Transform
	RightHand Transform
}

// NeutralPose is the pose assigned before a player has reported one.
var NeutralPose = Pose{
	Head:      Transform{Rotation: IdentityQuat},
	LeftHand:  Transform{Rotation: IdentityQuat},
	RightHand: Transform{Rotation: IdentityQuat},
}

type TimestampedPose struct {
	Time common.Timestamp
	Pose Pose
}

type keySerializer struct{}

func (keySerializer) Serialize(w *bitstream.Writer, v Key32) {
	w.WriteBytes(v[:])
}

func (keySerializer) Deserialize(r *bitstream.Reader) (Key32, error) {
	var v Key32
	err := r.ReadBytes(v[:])
	return v, err
}

type partyIDSerializer struct{}

func (partyIDSerializer) Serialize(w *bitstream.Writer, v PartyID) {
	w.WriteBytes(v[:])
}

func (partyIDSerializer) Deserialize(r *bitstream.Reader) (PartyID, error) {
	var v PartyID
	err := r.ReadBytes(v[:])
	return v, err
}

type vec3Serializer struct{}

func (vec3Serializer) Serialize(w *bitstream.Writer, v Vec3) {
	serdes.F32.Serialize(w, v.X)
	serdes.F32.Serialize(w, v.Y)
	serdes.F32.Serialize(w, v.Z)
}

func (vec3Serializer) Deserialize(r *bitstream.Reader) (v Vec3, err error) {
	if v.X, err = serdes.F32.Deserialize(r); err != nil {
		return
	}
	if v.Y, err = serdes.F32.Deserialize(r); err != nil {
		return
	}
	v.Z, err = serdes.F32.Deserialize(r)
	return
}

var quatComponent = serdes.SFloat[float32](1, 16)

type quatSerializer struct{}

func (quatSerializer) Serialize(w *bitstream.Writer, q Quat) {
	quatComponent.Serialize(w, q.X)
	quatComponent.Serialize(w, q.Y)
	quatComponent.Serialize(w, q.Z)
	quatComponent.Serialize(w, q.W)
}

func (quatSerializer) Deserialize(r *bitstream.Reader) (q Quat, err error) {
	for _, c := range []*float32{&q.X, &q.Y, &q.Z, &q.W} {
		if *c, err = quatComponent.Deserialize(r); err != nil {
			return
		}
	}
	return
}

type transformSerializer struct{}

func (transformSerializer) Serialize(w *bitstream.Writer, t Transform) {
	vec3Serializer{}.Serialize(w, t.Position)
	quatSerializer{}.Serialize(w, t.Rotation)
}

func (transformSerializer) Deserialize(r *bitstream.Reader) (t Transform, err error) {
	if t.Position, err = (vec3Serializer{}).Deserialize(r); err != nil {
		return
	}
	t.Rotation, err = quatSerializer{}.Deserialize(r)
	return
}

type poseSerializer struct{}

func (poseSerializer) Serialize(w *bitstream.Writer, p Pose) {
	transformSerializer{}.Serialize(w, p.Head)
	transformSerializer{}.Serialize(w, p.LeftHand)
	transformSerializer{}.Serialize(w, p.RightHand)
}

func (poseSerializer) Deserialize(r *bitstream.Reader) (p Pose, err error) {
	for _, t := range []*Transform{&p.Head, &p.LeftHand, &p.RightHand} {
		if *t, err = (transformSerializer{}).Deserialize(r); err != nil {
			return
		}
	}
	return
}

type timestampedPoseSerializer struct{}

func (timestampedPoseSerializer) Serialize(w *bitstream.Writer, v TimestampedPose) {
	TimestampCodec.Serialize(w, v.Time)
	PoseCodec.Serialize(w, v.Pose)
}

func (timestampedPoseSerializer) Deserialize(r *bitstream.Reader) (v TimestampedPose, err error) {
	if v.Time, err = TimestampCodec.Deserialize(r); err != nil {
		return
	}
	v.Pose, err = PoseCodec.Deserialize(r)
	return
}

var (
	Key32Codec   serdes.Serializer[Key32]   = keySerializer{}
	PartyIDCodec serdes.Serializer[PartyID] = partyIDSerializer{}

	IdentityCodec serdes.Serializer[common.Identity] = serdes.Converter[common.Identity, uint8]{
		Inner: serdes.U8,
		To:    func(v common.Identity) uint8 { return uint8(v) },
		From:  func(v uint8) common.Identity { return common.Identity(v) },
	}

	TimestampCodec serdes.Serializer[common.Timestamp] = serdes.Converter[common.Timestamp, uint64]{
		Inner: serdes.PackedU64,
		To:    func(v common.Timestamp) uint64 { return uint64(v) },
		From:  func(v uint64) common.Timestamp { return common.Timestamp(v) },
	}

	PoseCodec            serdes.Serializer[Pose]            = poseSerializer{}
	TimestampedPoseCodec serdes.Serializer[TimestampedPose] = timestampedPoseSerializer{}

	SceneNameCodec = serdes.String{MaxLen: common.MaxSceneNameLen}
)
