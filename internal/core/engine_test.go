package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/detector"
	"main/internal/ops"
	"main/internal/position"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/stats"
)

const second = int64(time.Second)

// fakeClock follows the synthetic tick timestamps so staleness checks
// and deadlines line up with the fed data instead of wall time.
type fakeClock struct {
	nano atomic.Int64
}

func (c *fakeClock) Set(ns int64)   { c.nano.Store(ns) }
func (c *fakeClock) Now() time.Time { return time.Unix(0, c.nano.Load()) }

type eventLog struct {
	mu     sync.Mutex
	kinds  []schema.PositionEventKind
	closed schema.PositionEvent
}

func (l *eventLog) record(event schema.PositionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.kinds = append(l.kinds, event.Kind)
	if event.Kind == schema.PositionEventClosed {
		l.closed = event
	}
}

func (l *eventLog) has(kind schema.PositionEventKind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, k := range l.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (l *eventLog) sequence() []schema.PositionEventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]schema.PositionEventKind(nil), l.kinds...)
}

func testLoaded() ops.Loaded {
	return ops.Loaded{
		Stats: stats.Config{
			VolumeLookback: 60,
			OILookback:     30,
			PriceLookback:  10,
			MinSamples:     3,
		},
		Detector: detector.Config{
			VolumeSpikeSigma: 3.0,
			VolumeMultiplier: 5.0,
			MinVolume:        100,
			PriceJumpBps:     15,
			PriceJumpWindow:  2 * time.Second,
			OIChangeSigma:    1.5,
			MinOpenInterest:  1000,
			OIConfirmWindow:  240 * time.Second,
			MaxDataAge:       10 * time.Second,
		},
		Position: position.Config{
			ProbeQty:           2,
			ScaleQty:           8,
			MaxQty:             10,
			ProfitTargetBps:    100,
			StopLossBps:        2500,
			MaxHold:            time.Hour,
			ScaleWindow:        10 * time.Minute,
			PartialFillRatio:   0.8,
			PartialFillTimeout: time.Hour,
			RequoteMaxAttempts: 3,
			RequoteChaseBps:    10,
			TickSize:           5,
		},
		Risk: risk.Config{
			MaxPositionsPerDay: 5,
		},
		Broker: ops.BrokerConfig{
			Mode:     "sim",
			Workers:  1,
			QueueCap: 16,
		},
	}
}

// flatTick quotes bid == ask == mid so simulated orders at mid fill.
func flatTick(ts int64, volume int64, mid schema.Price, oi int64) schema.Tick {
	return schema.Tick{
		ContractID:   1,
		TsNano:       ts,
		LastPrice:    mid,
		Volume:       volume,
		OpenInterest: oi,
		BidPrice:     mid,
		AskPrice:     mid,
	}
}

func TestEngineRunsSignalThroughFill(t *testing.T) {
	loaded := testLoaded()
	clock := &fakeClock{}
	events := &eventLog{}
	var signals atomic.Int64

	quotes := broker.NewQuoteBook()
	sim := broker.NewSim(broker.SimConfig{FeeBps: 10}, quotes)
	engine := New(loaded, Options{
		Delegator:     sim,
		Quotes:        quotes,
		Clock:         clock.Now,
		SweepInterval: time.Hour,
		PersistSignal: func(schema.StrategySignal) { signals.Add(1) },
		PersistEvent:  events.record,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	feed := func(tick schema.Tick) {
		clock.Set(tick.TsNano)
		engine.OnTick(tick)
	}

	// quiet history: volume mean 100, OI wiggling around 100000
	ts := int64(0)
	oi := int64(100_000)
	for i := 0; i < 30; i++ {
		ts += second
		vol := int64(90)
		if i%2 == 1 {
			vol = 110
		}
		if i%2 == 0 {
			oi += 10
		} else {
			oi -= 10
		}
		feed(flatTick(ts, vol, 10_000, oi))
	}

	// volume burst with a 20bps jump opens a pairing
	trigger := ts + second
	feed(flatTick(trigger, 600, 10_020, 100_000))
	require.EqualValues(t, 1, engine.Metrics().Snapshot().PairingsOpened)

	// OI shift inside the confirmation window completes the signal;
	// the probe fills against the simulator and a scale order follows
	confirm := trigger + 200*second
	feed(flatTick(confirm, 100, 10_020, 100_500))
	require.EqualValues(t, 1, engine.Metrics().Snapshot().SignalsConfirmed)
	require.EqualValues(t, 1, signals.Load())

	require.Eventually(t, func() bool {
		return events.has(schema.PositionEventScaled)
	}, 5*time.Second, 5*time.Millisecond, "scale fill never arrived")

	// mid well past the profit target forces the exit
	exitTs := confirm + second
	feed(flatTick(exitTs, 100, 10_200, 100_500))

	require.Eventually(t, func() bool {
		return events.has(schema.PositionEventClosed)
	}, 5*time.Second, 5*time.Millisecond, "exit fill never arrived")

	assert.Equal(t, []schema.PositionEventKind{
		schema.PositionEventProbeSubmitted,
		schema.PositionEventProbeFilled,
		schema.PositionEventScaling,
		schema.PositionEventScaled,
		schema.PositionEventExiting,
		schema.PositionEventClosed,
	}, events.sequence())

	events.mu.Lock()
	closed := events.closed
	events.mu.Unlock()
	// 10 lots bought at 10020, sold at 10200, minus 10bps fees per leg
	assert.Equal(t, schema.Quantity(10), closed.Qty)
	assert.Positive(t, closed.RealizedPnL)

	snap := engine.Metrics().Snapshot()
	assert.Positive(t, snap.EventCounts[schema.EventOrderAck])
	assert.Positive(t, snap.EventCounts[schema.EventFill])
	assert.Zero(t, snap.QueueDrops)
}

func TestEngineDropsStaleAndBackwardTicks(t *testing.T) {
	loaded := testLoaded()
	clock := &fakeClock{}
	quotes := broker.NewQuoteBook()
	engine := New(loaded, Options{
		Delegator: broker.NewSim(broker.SimConfig{}, quotes),
		Quotes:    quotes,
		Clock:     clock.Now,
	})

	ts := 100 * second
	clock.Set(ts)
	engine.OnTick(flatTick(ts, 100, 10_000, 100_000))

	// older timestamp for the same contract is discarded
	engine.OnTick(flatTick(ts-second, 100, 10_000, 100_000))

	// a tick past the data age limit is stale even if it moves forward
	clock.Set(ts + 60*second)
	engine.OnTick(flatTick(ts+2*second, 100, 10_000, 100_000))

	assert.EqualValues(t, 2, engine.Metrics().Snapshot().TicksDropped)
}
