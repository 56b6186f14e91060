package stats

import "math"

// Sample is a single timestamped observation.
type Sample struct {
	TsNano int64
	Value  float64
}

// Window is a fixed-capacity ring of timestamped samples with incrementally
// maintained mean and sample variance (Welford). Appending beyond capacity
// evicts the oldest sample and removes its contribution, so no rescan is
// needed on update.
type Window struct {
	samples []Sample
	head    int
	count   int
	mean    float64
	m2      float64
}

// NewWindow allocates a window holding up to capacity samples.
func NewWindow(capacity int) *Window {
	if capacity <= 1 {
		capacity = 2
	}
	return &Window{samples: make([]Sample, capacity)}
}

// Push appends a sample, evicting the oldest when the window is full.
func (w *Window) Push(tsNano int64, value float64) {
	if w.count == len(w.samples) {
		w.evict()
	}
	idx := (w.head + w.count) % len(w.samples)
	w.samples[idx] = Sample{TsNano: tsNano, Value: value}
	w.count++

	delta := value - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (value - w.mean)
}

func (w *Window) evict() {
	old := w.samples[w.head].Value
	w.head = (w.head + 1) % len(w.samples)
	w.count--

	if w.count == 0 {
		w.mean = 0
		w.m2 = 0
		return
	}
	prevMean := w.mean
	w.mean = (prevMean*float64(w.count+1) - old) / float64(w.count)
	w.m2 -= (old - prevMean) * (old - w.mean)
	if w.m2 < 0 {
		w.m2 = 0
	}
}

// Count returns the number of samples currently held.
func (w *Window) Count() int {
	return w.count
}

// Mean returns the rolling mean.
func (w *Window) Mean() float64 {
	return w.mean
}

// StdDev returns the rolling sample standard deviation.
func (w *Window) StdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count-1))
}

// Last returns the newest sample.
func (w *Window) Last() (Sample, bool) {
	if w.count == 0 {
		return Sample{}, false
	}
	return w.samples[(w.head+w.count-1)%len(w.samples)], true
}

// Descend visits samples newest-first until fn returns false.
func (w *Window) Descend(fn func(Sample) bool) {
	for i := w.count - 1; i >= 0; i-- {
		if !fn(w.samples[(w.head+i)%len(w.samples)]) {
			return
		}
	}
}
