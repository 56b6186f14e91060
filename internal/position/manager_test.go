package position

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/risk"
	"main/internal/schema"
)

type harness struct {
	mgr       *Manager
	gov       *risk.Governor
	intents   []schema.OrderIntent
	events    []schema.PositionEvent
	waits     []WaitRequest
	submitErr error
}

func newHarness() *harness {
	return newHarnessWith(nil)
}

func newHarnessWith(mutate func(*Config)) *harness {
	h := &harness{}
	h.gov = risk.NewGovernor(risk.Config{
		DailyLossLimit:       25_000_00,
		MaxPositionsPerDay:   20,
		MaxConsecutiveLosses: 5,
	})
	cfg := Config{
		ProbeQty:           2,
		ScaleQty:           8,
		MaxQty:             10,
		ProfitTargetBps:    4000,
		StopLossBps:        2500,
		MaxHold:            10 * time.Minute,
		ScaleWindow:        240 * time.Second,
		MaxSpreadBps:       30,
		PartialFillRatio:   0.8,
		PartialFillTimeout: time.Second,
		RequoteMaxAttempts: 3,
		RequoteChaseBps:    10,
		TickSize:           5,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.mgr = NewManager(cfg, h.gov,
		func(intent schema.OrderIntent) error {
			if h.submitErr != nil {
				return h.submitErr
			}
			h.intents = append(h.intents, intent)
			return nil
		},
		func(evt schema.PositionEvent) { h.events = append(h.events, evt) },
		func(req WaitRequest) { h.waits = append(h.waits, req) },
	)
	return h
}

func (h *harness) lastIntent() schema.OrderIntent {
	return h.intents[len(h.intents)-1]
}

func (h *harness) fill(orderID uint64, price schema.Price, qty schema.Quantity, now time.Time) {
	h.mgr.OnFill(schema.Fill{OrderID: orderID, ContractID: 7, Price: price, Qty: qty}, now)
}

func (h *harness) tick(mid schema.Price, now time.Time) {
	h.mgr.OnTick(schema.Tick{
		ContractID: 7,
		TsNano:     now.UnixNano(),
		LastPrice:  mid,
		BidPrice:   mid - 5,
		AskPrice:   mid + 5,
	}, now)
}

func testSignal(now time.Time) schema.StrategySignal {
	return schema.StrategySignal{
		SignalID:     1,
		ContractID:   7,
		VolumeTsNano: now.UnixNano(),
		RefPrice:     10_000,
	}
}

func TestFullLifecycleProfitTarget(t *testing.T) {
	h := newHarness()
	now := time.Now()

	decision := h.mgr.OnSignal(testSignal(now), now)
	require.Equal(t, schema.RiskActionAllow, decision.Action)
	require.Len(t, h.intents, 1)
	probe := h.lastIntent()
	assert.Equal(t, schema.IntentProbe, probe.Kind)
	assert.Equal(t, schema.OrderSideBuy, probe.Side)
	assert.Equal(t, schema.Quantity(2), probe.Qty)

	h.fill(probe.OrderID, 10_000, 2, now)
	require.Len(t, h.intents, 2, "probe fill must trigger a scale intent")
	scale := h.lastIntent()
	assert.Equal(t, schema.IntentScale, scale.Kind)
	assert.Equal(t, schema.Quantity(8), scale.Qty)

	h.fill(scale.OrderID, 10_000, 8, now)
	pos, ok := h.mgr.Get(7)
	require.True(t, ok)
	assert.Equal(t, StateScaled, pos.State)
	assert.Equal(t, schema.Quantity(10), pos.FilledQty)

	// +40% hits the profit target
	h.tick(14_000, now.Add(time.Minute))
	require.Len(t, h.intents, 3)
	exit := h.lastIntent()
	assert.Equal(t, schema.IntentExit, exit.Kind)
	assert.Equal(t, schema.OrderSideSell, exit.Side)
	assert.Equal(t, schema.Quantity(10), exit.Qty)

	h.fill(exit.OrderID, 14_000, 10, now.Add(time.Minute))
	_, ok = h.mgr.Get(7)
	assert.False(t, ok, "closed position must be released")
	assert.Equal(t, schema.Notional(40_000), h.gov.DailyPnL())

	last := h.events[len(h.events)-1]
	assert.Equal(t, schema.PositionEventClosed, last.Kind)
	assert.Equal(t, schema.Notional(40_000), last.RealizedPnL)
}

func TestStopLossAbortsScaling(t *testing.T) {
	h := newHarness()
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)
	scaleOrder := h.lastIntent().OrderID

	// -26% breaches the stop before the scale fills
	h.tick(7_400, now.Add(time.Second))

	var sawCancel, sawExit bool
	var exit schema.OrderIntent
	for _, intent := range h.intents {
		switch intent.Kind {
		case schema.IntentCancel:
			sawCancel = intent.OrderID == scaleOrder
		case schema.IntentExit:
			sawExit = true
			exit = intent
		}
	}
	require.True(t, sawCancel, "scale order must be cancelled")
	require.True(t, sawExit)
	assert.Equal(t, schema.Quantity(2), exit.Qty)

	h.fill(exit.OrderID, 7_400, 2, now.Add(2*time.Second))
	assert.Equal(t, schema.Notional(-5_200), h.gov.DailyPnL())

	// the loss extends the consecutive-loss streak
	decision := h.gov.Admit(9, 99, 1_000, now.Add(3*time.Second))
	assert.Equal(t, uint32(1), decision.LossStreak)
}

func TestScaleSkippedAfterWindowLapse(t *testing.T) {
	h := newHarness()
	now := time.Now()

	sig := testSignal(now)
	sig.VolumeTsNano = now.Add(-300 * time.Second).UnixNano()
	h.mgr.OnSignal(sig, now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)

	require.Len(t, h.intents, 1, "no scale after the confirmation window lapsed")
	pos, _ := h.mgr.Get(7)
	assert.Equal(t, StateProbeFilled, pos.State)
}

func TestRequoteChasesThenRejects(t *testing.T) {
	h := newHarness()
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)

	for i := 0; i < 3; i++ {
		last := h.lastIntent()
		h.mgr.OnAck(schema.OrderAck{
			OrderID: last.OrderID,
			Status:  schema.OrderAckStatusRejected,
			Reason:  schema.OrderAckReasonSpread,
		}, now)
	}
	require.Len(t, h.intents, 4, "three requotes follow the original")
	assert.Equal(t, uint16(3), h.lastIntent().Attempt)
	assert.Equal(t, schema.Price(10_030), h.lastIntent().Price, "each requote chases 10 bps")

	// the fourth reject exhausts the policy
	h.mgr.OnAck(schema.OrderAck{
		OrderID: h.lastIntent().OrderID,
		Status:  schema.OrderAckStatusRejected,
		Reason:  schema.OrderAckReasonSpread,
	}, now)
	_, ok := h.mgr.Get(7)
	assert.False(t, ok)
	assert.Equal(t, schema.PositionEventRejected, h.events[len(h.events)-1].Kind)

	// the reservation was released
	sig := testSignal(now)
	sig.SignalID = 2
	decision := h.mgr.OnSignal(sig, now)
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}

func TestPartialFillTimeoutCancelsRemainder(t *testing.T) {
	h := newHarness()
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)
	scale := h.lastIntent()
	require.Equal(t, schema.IntentScale, scale.Kind)
	require.Len(t, h.waits, 1)

	// half the scale fills, under the 80% threshold
	h.fill(scale.OrderID, 10_000, 4, now)

	wait := h.waits[0]
	h.mgr.ExpireWait(wait.PositionID, wait.Token, now.Add(time.Second))
	assert.Equal(t, schema.IntentCancel, h.lastIntent().Kind)

	h.mgr.OnAck(schema.OrderAck{OrderID: scale.OrderID, ContractID: 7, Status: schema.OrderAckStatusCanceled}, now.Add(time.Second))
	pos, _ := h.mgr.Get(7)
	assert.Equal(t, StateScaled, pos.State)
	assert.Equal(t, schema.Quantity(6), pos.FilledQty)
}

func TestPartialFillAboveThresholdScales(t *testing.T) {
	h := newHarness()
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)
	scale := h.lastIntent()

	// 7 of 8 lots is above the 80% threshold
	h.fill(scale.OrderID, 10_000, 7, now)

	pos, _ := h.mgr.Get(7)
	assert.Equal(t, StateScaled, pos.State)
	assert.Equal(t, schema.Quantity(9), pos.FilledQty)
	assert.Equal(t, schema.IntentCancel, h.lastIntent().Kind)
}

func TestStaleWaitTokenIgnored(t *testing.T) {
	h := newHarness()
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)
	scale := h.lastIntent()
	wait := h.waits[0]

	// the scale completes before the timer fires
	h.fill(scale.OrderID, 10_000, 8, now)
	before := len(h.intents)

	h.mgr.ExpireWait(wait.PositionID, wait.Token, now.Add(time.Second))
	assert.Len(t, h.intents, before, "stale timer must not act")
	pos, _ := h.mgr.Get(7)
	assert.Equal(t, StateScaled, pos.State)
}

func TestMaxHoldTimeoutExits(t *testing.T) {
	h := newHarness()
	now := time.Now()

	sig := testSignal(now)
	sig.VolumeTsNano = now.Add(-300 * time.Second).UnixNano()
	h.mgr.OnSignal(sig, now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)

	pos, _ := h.mgr.Get(7)
	require.Equal(t, StateProbeFilled, pos.State)
	require.NotEmpty(t, h.waits)
	wait := h.waits[len(h.waits)-1]

	h.tick(10_100, now.Add(time.Minute))
	h.mgr.ExpireWait(wait.PositionID, wait.Token, now.Add(11*time.Minute))

	exit := h.lastIntent()
	assert.Equal(t, schema.IntentExit, exit.Kind)
	assert.Equal(t, schema.Quantity(2), exit.Qty)
}

func TestSecondSignalForContractDenied(t *testing.T) {
	h := newHarness()
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)
	sig := testSignal(now)
	sig.SignalID = 2
	decision := h.mgr.OnSignal(sig, now)
	assert.Equal(t, schema.RiskActionDeny, decision.Action)
	assert.Equal(t, schema.RiskReasonContractBusy, decision.Reason)
}

func TestRequoteSkippedWhenChaseBelowOneTick(t *testing.T) {
	h := newHarness()
	now := time.Now()

	// 10 bps of 1000 rounds below the 5-unit tick, so no requote can
	// move the price without overshooting the chase limit
	sig := testSignal(now)
	sig.RefPrice = 1_000
	h.mgr.OnSignal(sig, now)
	require.Len(t, h.intents, 1)
	first := h.lastIntent()
	assert.Equal(t, schema.Price(1_000), first.Price)

	h.mgr.OnAck(schema.OrderAck{
		OrderID: first.OrderID,
		Status:  schema.OrderAckStatusRejected,
		Reason:  schema.OrderAckReasonSpread,
	}, now)

	assert.Len(t, h.intents, 1, "no requote may exceed the chase cap")
	_, ok := h.mgr.Get(7)
	assert.False(t, ok, "probe reject without a requote path is terminal")
	last := h.events[len(h.events)-1]
	assert.Equal(t, schema.PositionEventRejected, last.Kind)

	// the reservation is released, the contract can be admitted again
	decision := h.mgr.OnSignal(testSignal(now.Add(time.Second)), now.Add(time.Second))
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}

func TestScaleSkippedWhenItWouldExceedMaxQty(t *testing.T) {
	h := newHarnessWith(func(cfg *Config) { cfg.MaxQty = 9 })
	now := time.Now()

	h.mgr.OnSignal(testSignal(now), now)
	h.fill(h.intents[0].OrderID, 10_000, 2, now)

	require.Len(t, h.intents, 1, "probe plus scale would exceed the size cap")
	pos, ok := h.mgr.Get(7)
	require.True(t, ok)
	assert.Equal(t, StateProbeFilled, pos.State)
	assert.Equal(t, schema.Quantity(2), pos.FilledQty)
}

func TestProbeSubmitFailureDeniedWithReason(t *testing.T) {
	h := newHarness()
	h.submitErr = errors.New("broker queue full")
	now := time.Now()

	decision := h.mgr.OnSignal(testSignal(now), now)
	assert.Equal(t, schema.RiskActionDeny, decision.Action)
	assert.Equal(t, schema.RiskReasonSubmitFailed, decision.Reason)
	_, ok := h.mgr.Get(7)
	assert.False(t, ok)

	// admission was rolled back, a later signal goes through
	h.submitErr = nil
	decision = h.mgr.OnSignal(testSignal(now.Add(time.Second)), now.Add(time.Second))
	assert.Equal(t, schema.RiskActionAllow, decision.Action)
}
