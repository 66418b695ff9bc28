package partysync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/proto"
	"github.com/gosuda/partysync/partysync/snapshot"
)

// Renderer applies remote players' poses to whatever draws them.
type Renderer interface {
	ApplyPose(id common.Identity, pose proto.Pose)
	RemovePlayer(id common.Identity)
}

// RemotePlayer owns the pose history of one other player and the delay at
// which it is sampled.
type RemotePlayer struct {
	id      common.Identity
	history *snapshot.Buffer[proto.Pose]
	delay   *snapshot.DelayEstimator
}

func newRemotePlayer(id common.Identity, tickPeriod time.Duration, retentionTicks int, alpha float64, logger zerolog.Logger) *RemotePlayer {
	return &RemotePlayer{
		id:      id,
		history: snapshot.NewBuffer[proto.Pose](tickPeriod, retentionTicks),
		delay:   snapshot.NewDelayEstimator(tickPeriod, alpha, logger.With().Uint8("id", uint8(id)).Logger()),
	}
}

func (p *RemotePlayer) ID() common.Identity {
	return p.id
}

// Observe records a pose received at now (server time) and updates the
// interpolation delay.
func (p *RemotePlayer) Observe(now common.Timestamp, tp proto.TimestampedPose) {
	p.history.Push(tp.Time, tp.Pose)
	p.delay.Observe(now, tp.Time)
}

// Seed records a pose without treating it as a delay sample.
func (p *RemotePlayer) Seed(tp proto.TimestampedPose) {
	p.history.Push(tp.Time, tp.Pose)
}

// Sample returns the pose to display at now.
func (p *RemotePlayer) Sample(now common.Timestamp) proto.Pose {
	return p.history.Query(now.Add(-p.delay.Delay()), proto.NeutralPose)
}

func (p *RemotePlayer) Delay() time.Duration {
	return p.delay.Delay()
}
