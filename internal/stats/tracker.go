package stats

import "sync"

// stdDevEpsilon floors the divisor in z-score computations.
const stdDevEpsilon = 1e-9

// Metric names a tracked rolling series.
type Metric uint8

const (
	MetricVolume Metric = iota
	MetricOpenInterest
	MetricOIChange
	MetricMidPrice
	metricCount
)

// Config sizes the rolling windows per metric.
type Config struct {
	VolumeLookback int
	OILookback     int
	PriceLookback  int
	// MinSamples gates z-score and multiple-of-average output. Zero derives
	// half the metric's lookback, matching the warmup the detector expects.
	MinSamples int
}

// Tracker maintains rolling windows per (contract, metric). State is
// partitioned by contract; a per-contract mutex keeps single-writer update
// order when feed and replay paths interleave.
type Tracker struct {
	cfg Config

	mu        sync.RWMutex
	contracts map[uint32]*contractWindows
}

type contractWindows struct {
	mu      sync.Mutex
	windows [metricCount]*Window
	dropped uint64
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	if cfg.VolumeLookback <= 0 {
		cfg.VolumeLookback = 60
	}
	if cfg.OILookback <= 0 {
		cfg.OILookback = 30
	}
	if cfg.PriceLookback <= 0 {
		cfg.PriceLookback = 10
	}
	return &Tracker{
		cfg:       cfg,
		contracts: make(map[uint32]*contractWindows),
	}
}

func (t *Tracker) lookback(metric Metric) int {
	switch metric {
	case MetricVolume:
		return t.cfg.VolumeLookback
	case MetricOpenInterest, MetricOIChange:
		return t.cfg.OILookback
	case MetricMidPrice:
		return t.cfg.PriceLookback
	default:
		return t.cfg.VolumeLookback
	}
}

func (t *Tracker) minSamples(metric Metric) int {
	if t.cfg.MinSamples > 0 {
		return t.cfg.MinSamples
	}
	min := t.lookback(metric) / 2
	if min < 2 {
		min = 2
	}
	return min
}

func (t *Tracker) contract(id uint32) *contractWindows {
	t.mu.RLock()
	cw, ok := t.contracts[id]
	t.mu.RUnlock()
	if ok {
		return cw
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if cw, ok = t.contracts[id]; ok {
		return cw
	}
	cw = &contractWindows{}
	for m := Metric(0); m < metricCount; m++ {
		cw.windows[m] = NewWindow(t.lookback(m))
	}
	t.contracts[id] = cw
	return cw
}

// Update appends a sample to the metric window. Negative volume and
// open-interest values are sensor noise: they are dropped and counted, never
// propagated. Returns false when the sample was dropped.
func (t *Tracker) Update(contractID uint32, metric Metric, value float64, tsNano int64) bool {
	if value < 0 && (metric == MetricVolume || metric == MetricOpenInterest) {
		cw := t.contract(contractID)
		cw.mu.Lock()
		cw.dropped++
		cw.mu.Unlock()
		return false
	}
	cw := t.contract(contractID)
	cw.mu.Lock()
	cw.windows[metric].Push(tsNano, value)
	cw.mu.Unlock()
	return true
}

// ZScore returns how many standard deviations value lies from the rolling
// mean. The second return is false until the window holds the minimum sample
// count.
func (t *Tracker) ZScore(contractID uint32, metric Metric, value float64) (float64, bool) {
	cw := t.contract(contractID)
	cw.mu.Lock()
	defer cw.mu.Unlock()

	w := cw.windows[metric]
	if w.Count() < t.minSamples(metric) {
		return 0, false
	}
	std := w.StdDev()
	if std < stdDevEpsilon {
		std = stdDevEpsilon
	}
	return (value - w.Mean()) / std, true
}

// MultipleOfAverage returns value divided by the rolling mean, gated by the
// same minimum sample count as ZScore.
func (t *Tracker) MultipleOfAverage(contractID uint32, metric Metric, value float64) (float64, bool) {
	cw := t.contract(contractID)
	cw.mu.Lock()
	defer cw.mu.Unlock()

	w := cw.windows[metric]
	if w.Count() < t.minSamples(metric) {
		return 0, false
	}
	mean := w.Mean()
	if mean <= 0 {
		return 0, false
	}
	return value / mean, true
}

// Descend visits the metric window newest-first under the contract lock.
func (t *Tracker) Descend(contractID uint32, metric Metric, fn func(Sample) bool) {
	cw := t.contract(contractID)
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.windows[metric].Descend(fn)
}

// Count returns the number of samples held for the metric.
func (t *Tracker) Count(contractID uint32, metric Metric) int {
	cw := t.contract(contractID)
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.windows[metric].Count()
}

// Last returns the newest sample for the metric.
func (t *Tracker) Last(contractID uint32, metric Metric) (Sample, bool) {
	cw := t.contract(contractID)
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.windows[metric].Last()
}

// DroppedSamples returns the count of rejected samples for a contract.
func (t *Tracker) DroppedSamples(contractID uint32) uint64 {
	cw := t.contract(contractID)
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.dropped
}

// Reset discards all state for a contract (expiry or resubscribe).
func (t *Tracker) Reset(contractID uint32) {
	t.mu.Lock()
	delete(t.contracts, contractID)
	t.mu.Unlock()
}
