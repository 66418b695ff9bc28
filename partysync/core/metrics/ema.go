package metrics

// EMA is an exponential moving average. Until the first sample or Reset it
// reports its seed value.
type EMA struct {
	alpha       float64
	value       float64
	sampleCount uint64
}

func NewEMA(alpha, seed float64) *EMA {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}
	return &EMA{
		alpha: alpha,
		value: seed,
	}
}

// Update folds sample into the average as value*(1-alpha) + sample*alpha.
func (e *EMA) Update(sample float64) {
	e.sampleCount++
	e.value = e.value*(1-e.alpha) + sample*e.alpha
}

// Reset jumps the average straight to value without smoothing.
func (e *EMA) Reset(value float64) {
	e.value = value
	e.sampleCount++
}

func (e *EMA) Get() float64 {
	return e.value
}

func (e *EMA) Alpha() float64 {
	return e.alpha
}

func (e *EMA) Samples() uint64 {
	return e.sampleCount
}
