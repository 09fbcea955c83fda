package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update, no window storage.
//
// NewEMA seeds with the SMA of the first period values (classic TA convention).
// NewEWM seeds with the first value and is ready immediately, matching a
// non-adjusted exponentially weighted mean with the given span.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
	seedFirst  bool
}

// NewEMA creates a new SMA-seeded EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

// NewEWM creates an EMA seeded with the first value (span = period).
func NewEWM(span int) *EMA {
	e := NewEMA(span)
	e.seedFirst = true
	return e
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(price float64) {
	e.count++

	if e.seedFirst {
		if e.count == 1 {
			e.current = price
			return
		}
		e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
		return
	}

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA formula: EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }

func (e *EMA) Ready() bool {
	if e.seedFirst {
		return e.count >= 1
	}
	return e.count >= e.period
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
