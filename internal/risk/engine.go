package risk

import (
	"sync"
	"time"

	"main/internal/schema"
)

// Config defines the process-wide admission limits.
type Config struct {
	KillSwitch           bool
	DailyLossLimit       schema.Notional
	MaxPositionsPerDay   int
	MaxConsecutiveLosses int
	MarginBudget         schema.Notional
	Window               Window
}

// Governor serializes every admission check and close against one
// guarded state. Critical sections hold no I/O.
type Governor struct {
	cfg Config

	mu          sync.Mutex
	killed      bool
	day         int64
	dailyPnL    schema.Notional
	lossStreak  int
	openedToday int
	reserved    map[uint32]schema.Notional
	exposure    schema.Notional
}

// NewGovernor creates a governor with static limits.
func NewGovernor(cfg Config) *Governor {
	return &Governor{
		cfg:      cfg,
		killed:   cfg.KillSwitch,
		reserved: make(map[uint32]schema.Notional),
	}
}

// Admit evaluates every daily limit against the current state and, on
// approval, reserves exposure for the contract. Concurrent admissions
// cannot both pass for overlapping capital.
func (g *Governor) Admit(signalID uint64, contractID uint32, exposure schema.Notional, now time.Time) schema.RiskDecision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(now)

	decision := schema.RiskDecision{
		SignalID:   signalID,
		ContractID: contractID,
		Action:     schema.RiskActionAllow,
		Reason:     schema.RiskReasonNone,
		Exposure:   g.exposure,
		DailyPnL:   g.dailyPnL,
		OpenCount:  uint32(len(g.reserved)),
		LossStreak: uint32(g.lossStreak),
	}

	deny := func(reason schema.RiskReason) schema.RiskDecision {
		decision.Action = schema.RiskActionDeny
		decision.Reason = reason
		return decision
	}

	if g.killed {
		return deny(schema.RiskReasonKillSwitch)
	}
	if !g.cfg.Window.Allows(now) {
		return deny(schema.RiskReasonTradingWindow)
	}
	if g.cfg.DailyLossLimit > 0 && g.dailyPnL <= -g.cfg.DailyLossLimit {
		return deny(schema.RiskReasonDailyLoss)
	}
	if g.cfg.MaxConsecutiveLosses > 0 && g.lossStreak >= g.cfg.MaxConsecutiveLosses {
		return deny(schema.RiskReasonConsecutiveLosses)
	}
	if g.cfg.MaxPositionsPerDay > 0 && g.openedToday >= g.cfg.MaxPositionsPerDay {
		return deny(schema.RiskReasonPositionsPerDay)
	}
	if _, busy := g.reserved[contractID]; busy {
		return deny(schema.RiskReasonContractBusy)
	}
	if exposure <= 0 {
		return deny(schema.RiskReasonMargin)
	}
	if g.cfg.MarginBudget > 0 && g.exposure+exposure > g.cfg.MarginBudget {
		return deny(schema.RiskReasonMargin)
	}

	g.reserved[contractID] = exposure
	g.exposure += exposure
	g.openedToday++

	decision.Exposure = g.exposure
	decision.OpenCount = uint32(len(g.reserved))
	return decision
}

// Release frees the contract's reservation without touching P&L.
// Used when a probe is rejected or cancelled before any fill.
func (g *Governor) Release(contractID uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release(contractID)
}

// RecordClose releases the contract's reservation and applies realized
// P&L. A losing close extends the consecutive-loss streak; any other
// close resets it.
func (g *Governor) RecordClose(contractID uint32, pnl schema.Notional, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay(now)
	g.release(contractID)
	g.dailyPnL += pnl
	if pnl < 0 {
		g.lossStreak++
	} else {
		g.lossStreak = 0
	}
}

func (g *Governor) release(contractID uint32) {
	exposure, ok := g.reserved[contractID]
	if !ok {
		return
	}
	delete(g.reserved, contractID)
	g.exposure -= exposure
}

// Trip flips the kill switch. A tripped governor denies every
// admission until Reset.
func (g *Governor) Trip() {
	g.mu.Lock()
	g.killed = true
	g.mu.Unlock()
}

// Reset clears a tripped kill switch back to the configured default.
func (g *Governor) Reset() {
	g.mu.Lock()
	g.killed = g.cfg.KillSwitch
	g.mu.Unlock()
}

// ResetDay zeroes the daily counters for the given day key.
// Open reservations survive; they belong to live positions.
func (g *Governor) ResetDay(day int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetDay(day)
}

func (g *Governor) rollDay(now time.Time) {
	day := g.cfg.Window.DayKey(now)
	if g.day == 0 {
		g.day = day
		return
	}
	if day != g.day {
		g.resetDay(day)
	}
}

func (g *Governor) resetDay(day int64) {
	g.day = day
	g.dailyPnL = 0
	g.lossStreak = 0
	g.openedToday = 0
}

// Snapshot is the persisted form of the governor's daily state.
type Snapshot struct {
	Day        int64                      `json:"day"`
	DailyPnL   schema.Notional            `json:"dailyPnl"`
	LossStreak int                        `json:"lossStreak"`
	Opened     int                        `json:"opened"`
	Reserved   map[uint32]schema.Notional `json:"reserved"`
}

// Snapshot copies the current daily state for persistence.
func (g *Governor) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	reserved := make(map[uint32]schema.Notional, len(g.reserved))
	for id, exposure := range g.reserved {
		reserved[id] = exposure
	}
	return Snapshot{
		Day:        g.day,
		DailyPnL:   g.dailyPnL,
		LossStreak: g.lossStreak,
		Opened:     g.openedToday,
		Reserved:   reserved,
	}
}

// Restore replaces the daily state with a recovered snapshot.
func (g *Governor) Restore(snap Snapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.day = snap.Day
	g.dailyPnL = snap.DailyPnL
	g.lossStreak = snap.LossStreak
	g.openedToday = snap.Opened
	g.reserved = make(map[uint32]schema.Notional, len(snap.Reserved))
	g.exposure = 0
	for id, exposure := range snap.Reserved {
		g.reserved[id] = exposure
		g.exposure += exposure
	}
}

// DailyPnL returns realized P&L for the current day.
func (g *Governor) DailyPnL() schema.Notional {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dailyPnL
}

// OpenCount returns the number of contracts holding reservations.
func (g *Governor) OpenCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reserved)
}
