package position

import (
	"main/internal/schema"
)

// State tracks the lifecycle of one trade instance.
type State uint16

const (
	StateIdle State = iota
	StateProbeSubmitted
	StateProbeFilled
	StateScaling
	StateScaled
	StateExiting
	StateClosed
	StateRejected
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbeSubmitted:
		return "probe_submitted"
	case StateProbeFilled:
		return "probe_filled"
	case StateScaling:
		return "scaling"
	case StateScaled:
		return "scaled"
	case StateExiting:
		return "exiting"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	switch s {
	case StateClosed, StateRejected, StateCancelled:
		return true
	default:
		return false
	}
}

type waitKind uint16

const (
	waitNone waitKind = iota
	waitPartialFill
	waitMaxHold
)

// Position holds the manager's view of one trade instance. Exclusively
// owned by the manager; callers only see copies.
type Position struct {
	ID         uint64
	ContractID uint32
	SignalID   uint64
	State      State

	// scale intents are only valid until this wall-clock nano deadline
	ScaleDeadline int64

	FilledQty     schema.Quantity
	ExitFilledQty schema.Quantity
	EntryNotional schema.Notional
	ExitNotional  schema.Notional
	Fees          schema.Fee
	EntryTsNano   int64

	activeOrder  uint64
	activeIntent schema.OrderIntent
	scaleTarget  schema.Quantity
	lastMid      schema.Price

	waitToken uint64
	wait      waitKind
}

// EntryPrice returns the volume-weighted average entry price.
func (p *Position) EntryPrice() schema.Price {
	if p.FilledQty == 0 {
		return 0
	}
	return schema.Price(int64(p.EntryNotional) / int64(p.FilledQty))
}

// RealizedPnL is exit proceeds minus entry cost minus fees. Only
// meaningful once the position is closed.
func (p *Position) RealizedPnL() schema.Notional {
	return p.ExitNotional - p.EntryNotional - schema.Notional(p.Fees)
}
