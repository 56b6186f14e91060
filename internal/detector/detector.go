package detector

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"main/internal/schema"
	"main/internal/stats"
)

// Outcome classifies what a tick did to the detector. Expected conditions
// (stale data, expired pairings) are outcomes, not errors; nothing on the
// tick path escapes as a failure.
type Outcome uint16

const (
	OutcomeNone Outcome = iota
	OutcomeStale
	OutcomeDropped
	OutcomeVolumeOnly
	OutcomePending
	OutcomeExpired
	OutcomeSignal
)

// Result is the typed output of one tick evaluation.
type Result struct {
	Outcome Outcome
	Signal  schema.StrategySignal // set when Outcome == OutcomeSignal
}

// Config holds the detection thresholds. Sigma thresholds are plain
// standard-deviation counts; percent thresholds are basis points.
type Config struct {
	VolumeSpikeSigma float64
	VolumeMultiplier float64
	MinVolume        int64

	PriceJumpBps    schema.Bps
	PriceJumpWindow time.Duration

	OIChangeSigma   float64
	MinOpenInterest int64
	OIConfirmWindow time.Duration

	MaxDataAge time.Duration
}

// pending is a volume+price pairing waiting for open-interest confirmation.
type pending struct {
	volumeTsNano int64
	priceTsNano  int64
	volumeZ      float64
	volumeMult   float64
	priceMoveBps schema.Bps
	refPrice     schema.Price
	deadlineNano int64
	token        uint64
}

// Detector runs the three-stage compound detection rule. One pairing may be
// open per contract at a time; new pairings are ignored until the open one
// fires or expires.
type Detector struct {
	cfg     Config
	tracker *stats.Tracker

	mu       sync.Mutex
	pendings map[uint32]*pending
	lastOI   map[uint32]int64
	lastTs   map[uint32]int64

	signalSeq uint64
	tokenSeq  uint64
}

// New creates a detector on top of a statistics tracker.
func New(cfg Config, tracker *stats.Tracker) *Detector {
	return &Detector{
		cfg:      cfg,
		tracker:  tracker,
		pendings: make(map[uint32]*pending),
		lastOI:   make(map[uint32]int64),
		lastTs:   make(map[uint32]int64),
	}
}

// OnTick feeds one tick through all three stages and returns the typed
// outcome. The now argument is the detector's time reference for the stale
// guard; tick timestamps drive every window decision.
func (d *Detector) OnTick(tick schema.Tick, now int64) Result {
	if d.cfg.MaxDataAge > 0 && now-tick.TsNano > int64(d.cfg.MaxDataAge) {
		return Result{Outcome: OutcomeStale}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// duplicate or rewound timestamps are tolerated, not trusted
	if last, ok := d.lastTs[tick.ContractID]; ok && tick.TsNano <= last {
		return Result{Outcome: OutcomeDropped}
	}
	d.lastTs[tick.ContractID] = tick.TsNano

	d.updateWindows(tick)

	if p, ok := d.pendings[tick.ContractID]; ok {
		if tick.TsNano > p.deadlineNano {
			delete(d.pendings, tick.ContractID)
			return Result{Outcome: OutcomeExpired}
		}
		return d.confirmOI(tick, p)
	}

	return d.evaluateTrigger(tick)
}

func (d *Detector) updateWindows(tick schema.Tick) {
	d.tracker.Update(tick.ContractID, stats.MetricVolume, float64(tick.Volume), tick.TsNano)
	if mid := tick.Mid(); mid > 0 {
		d.tracker.Update(tick.ContractID, stats.MetricMidPrice, float64(mid), tick.TsNano)
	}
	if d.tracker.Update(tick.ContractID, stats.MetricOpenInterest, float64(tick.OpenInterest), tick.TsNano) {
		if prev, ok := d.lastOI[tick.ContractID]; ok {
			d.tracker.Update(tick.ContractID, stats.MetricOIChange, float64(tick.OpenInterest-prev), tick.TsNano)
		}
		d.lastOI[tick.ContractID] = tick.OpenInterest
	}
}

// evaluateTrigger runs the volume and price stages and opens a pairing when
// both fire.
func (d *Detector) evaluateTrigger(tick schema.Tick) Result {
	if tick.Volume < d.cfg.MinVolume {
		return Result{Outcome: OutcomeNone}
	}
	volumeZ, ok := d.tracker.ZScore(tick.ContractID, stats.MetricVolume, float64(tick.Volume))
	if !ok || volumeZ <= d.cfg.VolumeSpikeSigma {
		return Result{Outcome: OutcomeNone}
	}
	mult, ok := d.tracker.MultipleOfAverage(tick.ContractID, stats.MetricVolume, float64(tick.Volume))
	if !ok || mult <= d.cfg.VolumeMultiplier {
		return Result{Outcome: OutcomeNone}
	}

	moveBps, jumpTs, jumped := d.priceJump(tick)
	if !jumped {
		return Result{Outcome: OutcomeVolumeOnly}
	}

	d.pendings[tick.ContractID] = &pending{
		volumeTsNano: tick.TsNano,
		priceTsNano:  jumpTs,
		volumeZ:      volumeZ,
		volumeMult:   mult,
		priceMoveBps: moveBps,
		refPrice:     tick.Mid(),
		deadlineNano: tick.TsNano + int64(d.cfg.OIConfirmWindow),
		token:        atomic.AddUint64(&d.tokenSeq, 1),
	}
	return Result{Outcome: OutcomePending}
}

// priceJump scans the mid-price window for a move of at least PriceJumpBps
// against any sample inside the sliding window.
func (d *Detector) priceJump(tick schema.Tick) (schema.Bps, int64, bool) {
	mid := tick.Mid()
	if mid <= 0 {
		return 0, 0, false
	}
	var (
		moveBps schema.Bps
		jumpTs  int64
		found   bool
	)
	cutoff := tick.TsNano - int64(d.cfg.PriceJumpWindow)
	d.tracker.Descend(tick.ContractID, stats.MetricMidPrice, func(s stats.Sample) bool {
		if s.TsNano < cutoff {
			return false
		}
		if s.TsNano >= tick.TsNano || s.Value <= 0 {
			return true
		}
		move := schema.Bps(math.Abs(float64(mid)-s.Value) / s.Value * 10000)
		if move >= d.cfg.PriceJumpBps {
			moveBps = move
			jumpTs = tick.TsNano
			found = true
			return false
		}
		return true
	})
	return moveBps, jumpTs, found
}

// confirmOI runs the open-interest stage against an open pairing. While the
// pairing stays unconfirmed the outcome remains OutcomePending; fresh
// volume+price triggers for the contract are not evaluated until it resolves.
func (d *Detector) confirmOI(tick schema.Tick, p *pending) Result {
	if tick.OpenInterest < d.cfg.MinOpenInterest {
		return Result{Outcome: OutcomePending}
	}
	change, ok := d.tracker.Last(tick.ContractID, stats.MetricOIChange)
	if !ok || change.TsNano != tick.TsNano {
		return Result{Outcome: OutcomePending}
	}
	oiZ, ok := d.tracker.ZScore(tick.ContractID, stats.MetricOIChange, change.Value)
	if !ok || math.Abs(oiZ) <= d.cfg.OIChangeSigma {
		return Result{Outcome: OutcomePending}
	}

	sig := schema.StrategySignal{
		SignalID:     atomic.AddUint64(&d.signalSeq, 1),
		ContractID:   tick.ContractID,
		Confidence:   gradeConfidence(p.volumeZ, p.volumeMult),
		DetectedAt:   tick.TsNano,
		VolumeTsNano: p.volumeTsNano,
		PriceTsNano:  p.priceTsNano,
		OITsNano:     tick.TsNano,
		VolumeZ:      p.volumeZ,
		OIZ:          oiZ,
		PriceMoveBps: p.priceMoveBps,
		RefPrice:     p.refPrice,
	}
	delete(d.pendings, tick.ContractID)
	return Result{Outcome: OutcomeSignal, Signal: sig}
}

// Sweep discards pairings whose confirmation window elapsed without an OI
// confirmation. It is driven by the scheduler so pairings expire even when a
// contract goes quiet. Returns the contracts whose pairing expired.
func (d *Detector) Sweep(now int64) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var expired []uint32
	for contractID, p := range d.pendings {
		if now > p.deadlineNano {
			delete(d.pendings, contractID)
			expired = append(expired, contractID)
		}
	}
	return expired
}

// PendingCount returns the number of open pairings.
func (d *Detector) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pendings)
}

// PendingDeadline returns the confirmation deadline for a contract's open
// pairing, if any.
func (d *Detector) PendingDeadline(contractID uint32) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pendings[contractID]
	if !ok {
		return 0, false
	}
	return p.deadlineNano, true
}

// gradeConfidence follows the volume spike magnitude bands.
func gradeConfidence(volumeZ, mult float64) schema.Confidence {
	switch {
	case volumeZ >= 5.0 && mult >= 10.0:
		return schema.ConfidenceCritical
	case volumeZ >= 4.0 && mult >= 7.5:
		return schema.ConfidenceStrong
	case volumeZ >= 3.5 && mult >= 6.0:
		return schema.ConfidenceMedium
	default:
		return schema.ConfidenceWeak
	}
}
