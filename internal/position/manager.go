package position

import (
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/risk"
	"main/internal/schema"
)

// Config defines sizing, exit, and execution rules for every position.
type Config struct {
	ProbeQty schema.Quantity
	ScaleQty schema.Quantity
	MaxQty   schema.Quantity

	ProfitTargetBps schema.Bps
	StopLossBps     schema.Bps
	MaxHold         time.Duration

	ScaleWindow time.Duration

	MaxSpreadBps       schema.Bps
	PartialFillRatio   float64
	PartialFillTimeout time.Duration
	RequoteMaxAttempts int
	RequoteChaseBps    schema.Bps
	TickSize           schema.Price
}

// WaitRequest asks the scheduler to call ExpireWait at FireAtNano.
// The token guards against a timer firing after its wait was resolved.
type WaitRequest struct {
	PositionID uint64
	Token      uint64
	FireAtNano int64
}

// Manager owns every live position and drives transitions from
// signals, acks, fills, ticks, and timer expiries. The submit and
// record callbacks must not block; they feed bounded queues.
type Manager struct {
	cfg      Config
	governor *risk.Governor
	submit   func(schema.OrderIntent) error
	record   func(schema.PositionEvent)
	schedule func(WaitRequest)

	mu         sync.Mutex
	byContract map[uint32]*Position
	byOrder    map[uint64]*Position
	posSeq     uint64
	orderSeq   uint64
	tokenSeq   uint64
}

// NewManager wires a manager to its collaborators. schedule may be nil
// when no timer scheduler exists (replay, tests driving ExpireWait).
func NewManager(cfg Config, governor *risk.Governor, submit func(schema.OrderIntent) error, record func(schema.PositionEvent), schedule func(WaitRequest)) *Manager {
	return &Manager{
		cfg:        cfg,
		governor:   governor,
		submit:     submit,
		record:     record,
		schedule:   schedule,
		byContract: make(map[uint32]*Position),
		byOrder:    make(map[uint64]*Position),
	}
}

// OnSignal runs risk admission and, if approved, opens a position with
// a probe order. The returned decision carries the denial reason when
// admission fails.
func (m *Manager) OnSignal(sig schema.StrategySignal, now time.Time) schema.RiskDecision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, live := m.byContract[sig.ContractID]; live {
		return schema.RiskDecision{
			SignalID:   sig.SignalID,
			ContractID: sig.ContractID,
			Action:     schema.RiskActionDeny,
			Reason:     schema.RiskReasonContractBusy,
		}
	}

	exposure := schema.Notional(int64(sig.RefPrice) * int64(m.cfg.MaxQty))
	decision := m.governor.Admit(sig.SignalID, sig.ContractID, exposure, now)
	if decision.Action != schema.RiskActionAllow {
		return decision
	}

	m.posSeq++
	pos := &Position{
		ID:            m.posSeq,
		ContractID:    sig.ContractID,
		SignalID:      sig.SignalID,
		State:         StateProbeSubmitted,
		ScaleDeadline: sig.VolumeTsNano + int64(m.cfg.ScaleWindow),
		lastMid:       sig.RefPrice,
	}

	intent := schema.OrderIntent{
		PositionID: pos.ID,
		ContractID: pos.ContractID,
		Side:       schema.OrderSideBuy,
		Kind:       schema.IntentProbe,
		Price:      sig.RefPrice,
		Qty:        m.cfg.ProbeQty,
	}
	if err := m.place(pos, intent); err != nil {
		m.governor.Release(pos.ContractID)
		logs.Errorf("probe submit failed, contract %d signal %d: %+v", sig.ContractID, sig.SignalID, err)
		decision.Action = schema.RiskActionDeny
		decision.Reason = schema.RiskReasonSubmitFailed
		return decision
	}

	m.byContract[pos.ContractID] = pos
	m.event(pos, schema.PositionEventProbeSubmitted, m.cfg.ProbeQty, sig.RefPrice, now)
	return decision
}

// OnAck processes an order acknowledgment. Price and spread rejects
// requote with a bounded price chase; other rejects terminate the
// affected stage.
func (m *Manager) OnAck(ack schema.OrderAck, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.byOrder[ack.OrderID]
	if !ok || pos.activeOrder != ack.OrderID {
		return
	}

	switch ack.Status {
	case schema.OrderAckStatusAcked, schema.OrderAckStatusPartFilled, schema.OrderAckStatusFilled:
		return
	case schema.OrderAckStatusRejected, schema.OrderAckStatusExpired:
		m.onReject(pos, ack, now)
	case schema.OrderAckStatusCanceled:
		m.onCanceled(pos, now)
	}
}

func (m *Manager) onReject(pos *Position, ack schema.OrderAck, now time.Time) {
	requotable := ack.Reason == schema.OrderAckReasonSpread ||
		ack.Reason == schema.OrderAckReasonInvalidPrice ||
		ack.Reason == schema.OrderAckReasonTimeout

	if requotable && int(pos.activeIntent.Attempt) < m.cfg.RequoteMaxAttempts {
		intent := pos.activeIntent
		if next, canChase := m.chase(intent.Price, intent.Side); canChase {
			intent.Attempt++
			intent.Price = next
			delete(m.byOrder, pos.activeOrder)
			if err := m.place(pos, intent); err == nil {
				return
			}
			logs.Warnf("requote submit failed, position %d contract %d", pos.ID, pos.ContractID)
		} else {
			logs.Warnf("chase limit below one tick, position %d contract %d cannot requote", pos.ID, pos.ContractID)
		}
	}

	delete(m.byOrder, pos.activeOrder)
	pos.activeOrder = 0

	switch pos.State {
	case StateProbeSubmitted:
		pos.State = StateRejected
		m.governor.Release(pos.ContractID)
		delete(m.byContract, pos.ContractID)
		m.event(pos, schema.PositionEventRejected, 0, ack.Price, now)
	case StateScaling:
		// probe quantity stays under normal exit rules
		pos.State = StateProbeFilled
		pos.bumpToken(m)
		m.event(pos, schema.PositionEventProbeFilled, pos.FilledQty, pos.EntryPrice(), now)
		m.armMaxHold(pos, now)
	case StateExiting:
		// the exit obligation survives; OnTick re-issues the order
		logs.Errorf("exit order rejected, position %d contract %d, will re-quote on next tick", pos.ID, pos.ContractID)
	}
}

func (m *Manager) onCanceled(pos *Position, now time.Time) {
	delete(m.byOrder, pos.activeOrder)
	pos.activeOrder = 0

	switch pos.State {
	case StateProbeSubmitted:
		if pos.FilledQty == 0 {
			pos.State = StateCancelled
			m.governor.Release(pos.ContractID)
			delete(m.byContract, pos.ContractID)
			m.event(pos, schema.PositionEventCancelled, 0, 0, now)
			return
		}
		pos.State = StateProbeFilled
		m.event(pos, schema.PositionEventProbeFilled, pos.FilledQty, pos.EntryPrice(), now)
		m.armMaxHold(pos, now)
	case StateScaling:
		// remainder cancel confirmed, position holds what filled
		pos.State = StateScaled
		pos.bumpToken(m)
		m.event(pos, schema.PositionEventScaled, pos.FilledQty, pos.EntryPrice(), now)
		m.armMaxHold(pos, now)
	}
}

// OnFill applies an execution report to the owning position.
func (m *Manager) OnFill(fill schema.Fill, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.byOrder[fill.OrderID]
	if !ok {
		return
	}
	if fill.Qty <= 0 {
		return
	}

	notional := schema.Notional(int64(fill.Price) * int64(fill.Qty))
	pos.Fees += fill.Fee

	switch pos.State {
	case StateProbeSubmitted:
		pos.FilledQty += fill.Qty
		pos.EntryNotional += notional
		if pos.FilledQty >= m.cfg.ProbeQty {
			delete(m.byOrder, pos.activeOrder)
			pos.activeOrder = 0
			pos.State = StateProbeFilled
			pos.EntryTsNano = now.UnixNano()
			m.event(pos, schema.PositionEventProbeFilled, pos.FilledQty, pos.EntryPrice(), now)
			m.tryScale(pos, now)
		}
	case StateScaling:
		pos.FilledQty += fill.Qty
		pos.EntryNotional += notional
		if pos.FilledQty >= pos.scaleTarget {
			delete(m.byOrder, pos.activeOrder)
			pos.activeOrder = 0
			pos.State = StateScaled
			pos.bumpToken(m)
			m.event(pos, schema.PositionEventScaled, pos.FilledQty, pos.EntryPrice(), now)
			m.armMaxHold(pos, now)
			return
		}
		scaled := pos.FilledQty - m.cfg.ProbeQty
		if m.cfg.PartialFillRatio > 0 && float64(scaled) >= m.cfg.PartialFillRatio*float64(m.cfg.ScaleQty) {
			// enough of the scale filled, cancel the remainder and hold
			m.cancelActive(pos)
			delete(m.byOrder, pos.activeOrder)
			pos.activeOrder = 0
			pos.State = StateScaled
			pos.bumpToken(m)
			m.event(pos, schema.PositionEventScaled, pos.FilledQty, pos.EntryPrice(), now)
			m.armMaxHold(pos, now)
		}
	case StateExiting:
		pos.ExitFilledQty += fill.Qty
		pos.ExitNotional += notional
		if pos.ExitFilledQty >= pos.FilledQty {
			m.close(pos, now)
		}
	}
}

// OnTick evaluates exit conditions for the contract's live position.
func (m *Manager) OnTick(tick schema.Tick, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.byContract[tick.ContractID]
	if !ok {
		return
	}
	mid := tick.Mid()
	if mid <= 0 {
		return
	}
	pos.lastMid = mid

	switch pos.State {
	case StateProbeFilled, StateScaled:
		if reason, hit := m.exitCondition(pos, mid, now); hit {
			logs.Infof("exit trigger %s, position %d contract %d", reason, pos.ID, pos.ContractID)
			m.beginExit(pos, mid, now)
		}
	case StateScaling:
		// a stop breach aborts scaling before the fill completes
		if _, hit := m.exitCondition(pos, mid, now); hit {
			m.cancelActive(pos)
			delete(m.byOrder, pos.activeOrder)
			pos.activeOrder = 0
			m.beginExit(pos, mid, now)
		}
	case StateExiting:
		if pos.activeOrder == 0 {
			m.emitExit(pos, mid, now)
		}
	}
}

// ExpireWait is the scheduler callback for a wait deadline. Stale
// tokens are ignored so a late fire cannot act on a resolved wait.
func (m *Manager) ExpireWait(positionID, token uint64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pos *Position
	for _, p := range m.byContract {
		if p.ID == positionID {
			pos = p
			break
		}
	}
	if pos == nil || pos.waitToken != token || pos.wait == waitNone {
		return
	}
	kind := pos.wait
	pos.wait = waitNone

	switch kind {
	case waitPartialFill:
		if pos.State != StateScaling {
			return
		}
		scaled := pos.FilledQty - m.cfg.ProbeQty
		ratio := float64(scaled) / float64(m.cfg.ScaleQty)
		m.cancelActive(pos)
		if ratio >= m.cfg.PartialFillRatio {
			logs.Infof("scale fill %0.0f%% at timeout, position %d holds %d", ratio*100, pos.ID, pos.FilledQty)
		} else {
			logs.Warnf("scale fill %0.0f%% below threshold, position %d cancels remainder", ratio*100, pos.ID)
		}
	case waitMaxHold:
		if pos.State != StateProbeFilled && pos.State != StateScaled {
			return
		}
		m.beginExit(pos, pos.lastMid, now)
	}
}

// Get returns a copy of the contract's live position.
func (m *Manager) Get(contractID uint32) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.byContract[contractID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Open returns the number of live positions.
func (m *Manager) Open() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byContract)
}

func (m *Manager) tryScale(pos *Position, now time.Time) {
	if now.UnixNano() > pos.ScaleDeadline {
		m.armMaxHold(pos, now)
		return
	}
	if pos.FilledQty+m.cfg.ScaleQty > m.cfg.MaxQty {
		m.armMaxHold(pos, now)
		return
	}

	pos.scaleTarget = pos.FilledQty + m.cfg.ScaleQty
	intent := schema.OrderIntent{
		PositionID: pos.ID,
		ContractID: pos.ContractID,
		Side:       schema.OrderSideBuy,
		Kind:       schema.IntentScale,
		Price:      pos.lastMid,
		Qty:        m.cfg.ScaleQty,
	}
	if err := m.place(pos, intent); err != nil {
		logs.Warnf("scale submit failed, position %d holds probe only", pos.ID)
		m.armMaxHold(pos, now)
		return
	}
	pos.State = StateScaling
	m.event(pos, schema.PositionEventScaling, m.cfg.ScaleQty, pos.lastMid, now)
	m.arm(pos, waitPartialFill, now.Add(m.cfg.PartialFillTimeout))
}

func (m *Manager) beginExit(pos *Position, mid schema.Price, now time.Time) {
	pos.bumpToken(m)
	pos.State = StateExiting
	m.event(pos, schema.PositionEventExiting, pos.FilledQty-pos.ExitFilledQty, mid, now)
	m.emitExit(pos, mid, now)
}

func (m *Manager) emitExit(pos *Position, mid schema.Price, now time.Time) {
	leaves := pos.FilledQty - pos.ExitFilledQty
	if leaves <= 0 {
		m.close(pos, now)
		return
	}
	intent := schema.OrderIntent{
		PositionID: pos.ID,
		ContractID: pos.ContractID,
		Side:       schema.OrderSideSell,
		Kind:       schema.IntentExit,
		Price:      mid,
		Qty:        leaves,
	}
	if err := m.place(pos, intent); err != nil {
		logs.Errorf("exit submit failed, position %d contract %d, retrying on next tick", pos.ID, pos.ContractID)
		pos.activeOrder = 0
	}
}

func (m *Manager) close(pos *Position, now time.Time) {
	delete(m.byOrder, pos.activeOrder)
	pos.activeOrder = 0
	pos.State = StateClosed
	pos.bumpToken(m)
	pnl := pos.RealizedPnL()
	m.governor.RecordClose(pos.ContractID, pnl, now)
	delete(m.byContract, pos.ContractID)
	m.event(pos, schema.PositionEventClosed, pos.FilledQty, pos.EntryPrice(), now)
}

func (m *Manager) exitCondition(pos *Position, mid schema.Price, now time.Time) (string, bool) {
	entry := pos.EntryPrice()
	if entry <= 0 {
		return "", false
	}
	moveBps := schema.Bps((int64(mid) - int64(entry)) * 10000 / int64(entry))
	switch {
	case moveBps >= m.cfg.ProfitTargetBps:
		return "profit_target", true
	case moveBps <= -m.cfg.StopLossBps:
		return "stop_loss", true
	case pos.EntryTsNano > 0 && now.UnixNano()-pos.EntryTsNano >= int64(m.cfg.MaxHold):
		return "timeout", true
	default:
		return "", false
	}
}

func (m *Manager) place(pos *Position, intent schema.OrderIntent) error {
	m.orderSeq++
	intent.OrderID = m.orderSeq
	if err := m.submit(intent); err != nil {
		return err
	}
	pos.activeOrder = intent.OrderID
	pos.activeIntent = intent
	m.byOrder[intent.OrderID] = pos
	return nil
}

func (m *Manager) cancelActive(pos *Position) {
	if pos.activeOrder == 0 {
		return
	}
	cancel := schema.OrderIntent{
		OrderID:    pos.activeOrder,
		PositionID: pos.ID,
		ContractID: pos.ContractID,
		Kind:       schema.IntentCancel,
	}
	if err := m.submit(cancel); err != nil {
		logs.Warnf("cancel submit failed, order %d", pos.activeOrder)
	}
}

// chase moves a requoted price toward the market by at most the
// configured chase, rounded down to the tick size. The second return
// is false when the cap does not cover a single tick, meaning the
// price cannot move without exceeding the chase limit.
func (m *Manager) chase(price schema.Price, side schema.OrderSide) (schema.Price, bool) {
	step := int64(price) * int64(m.cfg.RequoteChaseBps) / 10000
	if m.cfg.TickSize > 0 {
		step -= step % int64(m.cfg.TickSize)
	}
	if step <= 0 {
		return price, false
	}
	if side == schema.OrderSideSell {
		return price - schema.Price(step), true
	}
	return price + schema.Price(step), true
}

func (m *Manager) arm(pos *Position, kind waitKind, fireAt time.Time) {
	pos.bumpToken(m)
	pos.wait = kind
	if m.schedule != nil {
		m.schedule(WaitRequest{
			PositionID: pos.ID,
			Token:      pos.waitToken,
			FireAtNano: fireAt.UnixNano(),
		})
	}
}

func (m *Manager) armMaxHold(pos *Position, now time.Time) {
	if m.cfg.MaxHold <= 0 {
		return
	}
	m.arm(pos, waitMaxHold, now.Add(m.cfg.MaxHold))
}

func (p *Position) bumpToken(m *Manager) {
	m.tokenSeq++
	p.waitToken = m.tokenSeq
	p.wait = waitNone
}

func (m *Manager) event(pos *Position, kind schema.PositionEventKind, qty schema.Quantity, price schema.Price, now time.Time) {
	if m.record == nil {
		return
	}
	evt := schema.PositionEvent{
		PositionID: pos.ID,
		ContractID: pos.ContractID,
		Kind:       kind,
		TsNano:     now.UnixNano(),
		Qty:        qty,
		Price:      price,
	}
	if kind == schema.PositionEventClosed {
		evt.RealizedPnL = pos.RealizedPnL()
	}
	m.record(evt)
}
