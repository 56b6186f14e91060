// Package core assembles the signal pipeline: ticks feed the rolling
// statistics and the spike detector, confirmed signals pass risk
// admission into the position manager, and the resulting order intents
// execute through the broker layer. Acks and fills flow back over a
// bounded queue so broker workers never touch position state directly.
package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/detector"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/position"
	"main/internal/recorder"
	"main/internal/risk"
	"main/internal/schema"
	"main/internal/stats"
	"main/pkg/retry"
)

const sourceEngine = 1

// Options carries the injectable parts of an Engine. Delegator is
// required; everything else has a working default.
type Options struct {
	Delegator     broker.Delegator
	Quotes        *broker.QuoteBook
	Journal       *recorder.Writer
	PersistSignal func(schema.StrategySignal)
	PersistEvent  func(schema.PositionEvent)
	RetryPolicy   retry.Policy
	Clock         func() time.Time
	SweepInterval time.Duration
	EventQueueCap int
}

// Engine owns the per-tick processing path and the feedback loop from
// the broker back into the position manager.
type Engine struct {
	tracker  *stats.Tracker
	detector *detector.Detector
	governor *risk.Governor
	manager  *position.Manager
	orders   *broker.Usecase
	quotes   *broker.QuoteBook
	metrics  *obs.Metrics
	events   *bus.Queue
	journal  *recorder.Writer

	persistSignal func(schema.StrategySignal)
	persistEvent  func(schema.PositionEvent)

	clock   func() time.Time
	trace   *obs.TraceGenerator
	sweep   time.Duration
	seq     atomic.Uint64
	running atomic.Bool
}

// New wires an Engine from resolved configuration.
func New(loaded ops.Loaded, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Quotes == nil {
		opts.Quotes = broker.NewQuoteBook()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}
	if opts.EventQueueCap <= 0 {
		opts.EventQueueCap = 1024
	}
	if opts.RetryPolicy.MaxAttempts <= 0 {
		opts.RetryPolicy = retry.DefaultPolicy()
	}

	e := &Engine{
		quotes:        opts.Quotes,
		metrics:       obs.NewMetrics(),
		events:        bus.NewQueue(opts.EventQueueCap),
		journal:       opts.Journal,
		persistSignal: opts.PersistSignal,
		persistEvent:  opts.PersistEvent,
		clock:         opts.Clock,
		trace:         obs.NewTraceGenerator(0),
		sweep:         opts.SweepInterval,
	}

	e.tracker = stats.NewTracker(loaded.Stats)
	e.detector = detector.New(loaded.Detector, e.tracker)
	e.governor = risk.NewGovernor(loaded.Risk)
	e.orders = broker.NewUsecase(loaded.Broker.Workers, loaded.Broker.QueueCap, opts.Delegator, opts.RetryPolicy, e.onAck, e.onFill)
	e.manager = position.NewManager(loaded.Position, e.governor, e.submitIntent, e.recordEvent, e.scheduleWait)
	return e
}

// Governor exposes the risk governor for snapshot and kill switch control.
func (e *Engine) Governor() *risk.Governor { return e.governor }

// Quotes exposes the shared quote book.
func (e *Engine) Quotes() *broker.QuoteBook { return e.quotes }

// Metrics exposes the engine counters.
func (e *Engine) Metrics() *obs.Metrics { return e.metrics }

// Run starts the broker workers, the pairing sweep loop, and the event
// consumer. It blocks until the context is done.
func (e *Engine) Run(ctx context.Context) {
	if e.running.Swap(true) {
		return
	}
	if e.journal != nil {
		if err := e.journal.Start(ctx); err != nil {
			logs.Errorf("start journal: %+v", err)
		}
	}
	go e.orders.Run(ctx)
	go e.sweepLoop(ctx)
	e.events.Run(ctx, e.handleEvent)
}

// OnTick is the single entry point for market data. Ticks must arrive
// in timestamp order per contract.
func (e *Engine) OnTick(tick schema.Tick) {
	now := e.clock()
	e.append(schema.EventTick, tick.TsNano, codec.EncodeTick(nil, tick))

	e.quotes.Update(tick)

	res := e.detector.OnTick(tick, now.UnixNano())
	switch res.Outcome {
	case detector.OutcomeStale, detector.OutcomeDropped:
		e.metrics.IncTickDropped()
		return
	case detector.OutcomePending:
		e.metrics.IncPairingOpened()
	case detector.OutcomeExpired:
		e.metrics.IncPairingExpired()
	case detector.OutcomeSignal:
		e.confirm(res.Signal, now)
	}

	e.manager.OnTick(tick, now)
}

func (e *Engine) confirm(sig schema.StrategySignal, now time.Time) {
	e.metrics.IncSignalConfirmed()
	e.metrics.ObserveDetection(time.Duration(sig.OITsNano - sig.VolumeTsNano))
	e.append(schema.EventStrategySignal, sig.DetectedAt, codec.EncodeStrategySignal(nil, sig))
	if e.persistSignal != nil {
		e.persistSignal(sig)
	}

	decision := e.manager.OnSignal(sig, now)
	e.append(schema.EventRiskDecision, now.UnixNano(), codec.EncodeRiskDecision(nil, decision))
	if decision.Action == schema.RiskActionDeny {
		e.metrics.IncRiskReason(decision.Reason)
	}
}

func (e *Engine) submitIntent(intent schema.OrderIntent) error {
	e.append(schema.EventOrderIntent, e.clock().UnixNano(), codec.EncodeOrderIntent(nil, intent))
	if err := e.orders.Handle(intent); err != nil {
		e.metrics.IncQueueDrop()
		return err
	}
	return nil
}

func (e *Engine) recordEvent(event schema.PositionEvent) {
	e.append(schema.EventPositionEvent, event.TsNano, codec.EncodePositionEvent(nil, event))
	if e.persistEvent != nil {
		e.persistEvent(event)
	}
}

func (e *Engine) scheduleWait(req position.WaitRequest) {
	d := time.Duration(req.FireAtNano - e.clock().UnixNano())
	if d < 0 {
		d = 0
	}
	time.AfterFunc(d, func() {
		e.manager.ExpireWait(req.PositionID, req.Token, e.clock())
	})
}

// onAck and onFill run on broker worker goroutines. They hand results
// over the event queue; on overflow they apply inline, which is safe
// because the manager serializes on its own mutex.
func (e *Engine) onAck(ack schema.OrderAck) {
	now := e.clock().UnixNano()
	header := e.header(schema.EventOrderAck, now)
	payload := codec.EncodeOrderAck(nil, ack)
	if err := e.events.TryPublish(bus.Event{Header: header, Payload: payload}); err != nil {
		e.metrics.IncQueueDrop()
		e.manager.OnAck(ack, e.clock())
	}
}

func (e *Engine) onFill(fill schema.Fill) {
	now := e.clock().UnixNano()
	header := e.header(schema.EventFill, now)
	payload := codec.EncodeFill(nil, fill)
	if err := e.events.TryPublish(bus.Event{Header: header, Payload: payload}); err != nil {
		e.metrics.IncQueueDrop()
		e.manager.OnFill(fill, e.clock())
	}
}

func (e *Engine) handleEvent(event bus.Event) {
	e.metrics.ObserveEvent(event.Header)
	switch event.Header.Type {
	case schema.EventOrderAck:
		ack, ok := codec.DecodeOrderAck(event.Payload)
		if !ok {
			logs.Errorf("malformed ack payload, %d bytes", len(event.Payload))
			return
		}
		e.appendHeader(event.Header, event.Payload)
		e.manager.OnAck(ack, e.clock())
	case schema.EventFill:
		fill, ok := codec.DecodeFill(event.Payload)
		if !ok {
			logs.Errorf("malformed fill payload, %d bytes", len(event.Payload))
			return
		}
		e.appendHeader(event.Header, event.Payload)
		e.manager.OnFill(fill, e.clock())
	}
}

func (e *Engine) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(e.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			expired := e.detector.Sweep(now.UnixNano())
			for range expired {
				e.metrics.IncPairingExpired()
			}
		}
	}
}

func (e *Engine) header(eventType schema.EventType, tsEvent int64) schema.EventHeader {
	header := schema.NewHeader(eventType, sourceEngine, e.seq.Add(1), tsEvent, e.clock().UnixNano())
	header.TraceID = e.trace.Next()
	return header
}

func (e *Engine) append(eventType schema.EventType, tsEvent int64, payload []byte) {
	if e.journal == nil {
		return
	}
	e.appendHeader(e.header(eventType, tsEvent), payload)
}

func (e *Engine) appendHeader(header schema.EventHeader, payload []byte) {
	if e.journal == nil {
		return
	}
	if err := e.journal.TryAppend(header, payload); err != nil {
		e.metrics.IncQueueDrop()
	}
}
