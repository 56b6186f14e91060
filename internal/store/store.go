package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"main/internal/schema"
	"main/pkg/conn"
)

// SignalRow is the persisted form of a confirmed compound signal.
type SignalRow struct {
	ID           uint64 `gorm:"primaryKey;autoIncrement"`
	SignalID     uint64 `gorm:"index"`
	ContractID   uint32 `gorm:"index"`
	Confidence   uint16
	DetectedAt   int64
	VolumeTsNano int64
	PriceTsNano  int64
	OITsNano     int64
	VolumeZ      float64
	OIZ          float64
	PriceMoveBps int64
	RefPrice     int64
	CreatedAt    time.Time
}

func (SignalRow) TableName() string { return "strategy_signals" }

// PositionEventRow is the persisted form of a lifecycle transition.
type PositionEventRow struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	PositionID  uint64 `gorm:"index"`
	ContractID  uint32 `gorm:"index"`
	Kind        uint16
	TsNano      int64
	Qty         int64
	Price       int64
	RealizedPnL int64
	CreatedAt   time.Time
}

func (PositionEventRow) TableName() string { return "position_events" }

type record struct {
	signal *SignalRow
	event  *PositionEventRow
}

// Audit persists signals and position events through a buffered
// worker. Writes never block the caller; overflow is counted and the
// records dropped.
type Audit struct {
	db      *gorm.DB
	queue   chan record
	running atomic.Bool
	dropped uint64
}

// NewAudit opens the audit store and prepares its tables.
func NewAudit(client *conn.Client, queueCap int) (*Audit, error) {
	if queueCap <= 0 {
		queueCap = 1024
	}
	db := client.DB()
	if err := db.AutoMigrate(&SignalRow{}, &PositionEventRow{}); err != nil {
		return nil, err
	}
	return &Audit{db: db, queue: make(chan record, queueCap)}, nil
}

// Run starts the write-behind worker. Safe to call once.
func (a *Audit) Run(ctx context.Context) {
	if a.running.Swap(true) {
		return
	}
	go a.workerLoop(ctx)
}

// SaveSignal queues a confirmed signal for persistence.
func (a *Audit) SaveSignal(sig schema.StrategySignal) {
	row := &SignalRow{
		SignalID:     sig.SignalID,
		ContractID:   sig.ContractID,
		Confidence:   uint16(sig.Confidence),
		DetectedAt:   sig.DetectedAt,
		VolumeTsNano: sig.VolumeTsNano,
		PriceTsNano:  sig.PriceTsNano,
		OITsNano:     sig.OITsNano,
		VolumeZ:      sig.VolumeZ,
		OIZ:          sig.OIZ,
		PriceMoveBps: int64(sig.PriceMoveBps),
		RefPrice:     int64(sig.RefPrice),
	}
	a.enqueue(record{signal: row})
}

// SavePositionEvent queues a lifecycle transition for persistence.
func (a *Audit) SavePositionEvent(evt schema.PositionEvent) {
	row := &PositionEventRow{
		PositionID:  evt.PositionID,
		ContractID:  evt.ContractID,
		Kind:        uint16(evt.Kind),
		TsNano:      evt.TsNano,
		Qty:         int64(evt.Qty),
		Price:       int64(evt.Price),
		RealizedPnL: int64(evt.RealizedPnL),
	}
	a.enqueue(record{event: row})
}

// Dropped reports how many records overflowed the buffer.
func (a *Audit) Dropped() uint64 {
	return atomic.LoadUint64(&a.dropped)
}

func (a *Audit) enqueue(rec record) {
	select {
	case a.queue <- rec:
	default:
		atomic.AddUint64(&a.dropped, 1)
	}
}

func (a *Audit) workerLoop(ctx context.Context) {
	for {
		select {
		case rec := <-a.queue:
			a.write(rec)
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *Audit) drain() {
	for {
		select {
		case rec := <-a.queue:
			a.write(rec)
		default:
			return
		}
	}
}

func (a *Audit) write(rec record) {
	var err error
	switch {
	case rec.signal != nil:
		err = a.db.Create(rec.signal).Error
	case rec.event != nil:
		err = a.db.Create(rec.event).Error
	}
	if err != nil {
		logs.Errorf("audit write failed: %+v", err)
	}
}
