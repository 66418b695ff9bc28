package snapshot

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/partysync/partysync/core/common"
	"github.com/gosuda/partysync/partysync/core/metrics"
)

// DelayEstimator tracks how far behind now the render step should sample.
// Observed delays above the current estimate replace it immediately, since
// rendering without data stutters; smaller ones shrink it slowly through an
// EMA that never drops below the floor.
type DelayEstimator struct {
	ema    *metrics.EMA
	floor  time.Duration
	logger zerolog.Logger
}

// NewDelayEstimator seeds the estimate at the floor of DelayFloorTicks tick
// periods.
func NewDelayEstimator(tickPeriod time.Duration, alpha float64, logger zerolog.Logger) *DelayEstimator {
	if alpha <= 0 || alpha > 1 {
		alpha = common.DefaultDelayAlpha
	}
	floor := tickPeriod * common.DelayFloorTicks
	return &DelayEstimator{
		ema:    metrics.NewEMA(alpha, float64(floor)),
		floor:  floor,
		logger: logger,
	}
}

// Observe folds in the delay of a message sent at sent and received at now.
func (d *DelayEstimator) Observe(now, sent common.Timestamp) time.Duration {
	observed := now.Sub(sent)
	previous := d.ema.Get()
	if float64(observed) > previous {
		d.ema.Reset(float64(observed))
		d.logger.Debug().
			Dur("observed", observed).
			Dur("previous", time.Duration(previous)).
			Msg("[snapshot] jitter spike, interpolation delay reset")
	} else {
		d.ema.Update(float64(max(observed, d.floor)))
	}
	return d.Delay()
}

// Delay is the current estimate.
func (d *DelayEstimator) Delay() time.Duration {
	return time.Duration(math.Round(d.ema.Get()))
}

func (d *DelayEstimator) Floor() time.Duration {
	return d.floor
}
