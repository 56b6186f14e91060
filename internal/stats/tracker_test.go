package stats

import (
	"math"
	"testing"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow(3)
	for i, v := range []float64{1, 2, 3, 4} {
		w.Push(int64(i), v)
	}
	if w.Count() != 3 {
		t.Fatalf("want 3 samples, got %d", w.Count())
	}
	// mean of {2,3,4}
	if math.Abs(w.Mean()-3) > 1e-9 {
		t.Fatalf("want mean 3, got %v", w.Mean())
	}
	if math.Abs(w.StdDev()-1) > 1e-9 {
		t.Fatalf("want stddev 1, got %v", w.StdDev())
	}
}

func TestWindowMatchesRescan(t *testing.T) {
	w := NewWindow(16)
	values := []float64{10, 12, 9, 40, 11, 10, 13, 8, 100, 12, 11, 9, 10, 15, 14, 13, 12, 11, 50, 10}
	for i, v := range values {
		w.Push(int64(i), v)
	}

	// incremental stats must agree with a full rescan of the live samples
	var live []float64
	w.Descend(func(s Sample) bool {
		live = append(live, s.Value)
		return true
	})
	var sum float64
	for _, v := range live {
		sum += v
	}
	mean := sum / float64(len(live))
	var m2 float64
	for _, v := range live {
		m2 += (v - mean) * (v - mean)
	}
	std := math.Sqrt(m2 / float64(len(live)-1))

	if math.Abs(w.Mean()-mean) > 1e-6 {
		t.Fatalf("mean drift: incremental=%v rescan=%v", w.Mean(), mean)
	}
	if math.Abs(w.StdDev()-std) > 1e-6 {
		t.Fatalf("stddev drift: incremental=%v rescan=%v", w.StdDev(), std)
	}
}

func TestZScoreGatedByMinSamples(t *testing.T) {
	tracker := NewTracker(Config{VolumeLookback: 60})
	// min samples derives to 30; stay below it
	for i := 0; i < 29; i++ {
		tracker.Update(1, MetricVolume, 100, int64(i))
	}
	if _, ok := tracker.ZScore(1, MetricVolume, 500); ok {
		t.Fatal("z-score must be undefined below the minimum sample count")
	}
	tracker.Update(1, MetricVolume, 100, 29)
	if _, ok := tracker.ZScore(1, MetricVolume, 500); !ok {
		t.Fatal("z-score should be defined at the minimum sample count")
	}
}

func TestNegativeVolumeDropped(t *testing.T) {
	tracker := NewTracker(Config{VolumeLookback: 8, MinSamples: 2})
	tracker.Update(1, MetricVolume, 100, 1)
	if tracker.Update(1, MetricVolume, -5, 2) {
		t.Fatal("negative volume must be dropped")
	}
	if got := tracker.Count(1, MetricVolume); got != 1 {
		t.Fatalf("dropped sample must not enter the window, count=%d", got)
	}
	if got := tracker.DroppedSamples(1); got != 1 {
		t.Fatalf("want 1 dropped sample, got %d", got)
	}
}

func TestZScoreZeroVarianceFloored(t *testing.T) {
	tracker := NewTracker(Config{VolumeLookback: 8, MinSamples: 4})
	for i := 0; i < 6; i++ {
		tracker.Update(1, MetricVolume, 100, int64(i))
	}
	z, ok := tracker.ZScore(1, MetricVolume, 100)
	if !ok {
		t.Fatal("z-score should be defined")
	}
	if z != 0 {
		t.Fatalf("identical samples should give z=0, got %v", z)
	}
	// a different value against a flat window must not divide by zero
	z, _ = tracker.ZScore(1, MetricVolume, 101)
	if math.IsInf(z, 0) || math.IsNaN(z) {
		t.Fatalf("z-score must stay finite on zero variance, got %v", z)
	}
}

func TestMultipleOfAverage(t *testing.T) {
	tracker := NewTracker(Config{VolumeLookback: 8, MinSamples: 4})
	for i := 0; i < 4; i++ {
		tracker.Update(1, MetricVolume, 50, int64(i))
	}
	mult, ok := tracker.MultipleOfAverage(1, MetricVolume, 250)
	if !ok {
		t.Fatal("multiple should be defined")
	}
	if math.Abs(mult-5) > 1e-9 {
		t.Fatalf("want 5x, got %v", mult)
	}
}
