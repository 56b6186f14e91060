package broker

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/logs"

	"main/internal/schema"
	"main/pkg/exception"
	"main/pkg/retry"
)

// Result is what a delegator reports back for one intent. Fills are
// only present when the venue executed immediately.
type Result struct {
	Ack   schema.OrderAck
	Fills []schema.Fill
}

// Delegator sends one intent to a venue and waits for its response.
type Delegator interface {
	Send(ctx context.Context, intent schema.OrderIntent) (Result, error)
}

// Usecase fans intents out to a worker pool so submission latency
// never blocks the tick path. Acks and fills come back through the
// callbacks, which must not block.
type Usecase struct {
	delegator Delegator
	policy    retry.Policy
	onAck     func(schema.OrderAck)
	onFill    func(schema.Fill)

	running atomic.Bool
	worker  int
	queue   chan schema.OrderIntent
}

func NewUsecase(workerCount, workerCap int, delegator Delegator, policy retry.Policy, onAck func(schema.OrderAck), onFill func(schema.Fill)) *Usecase {
	return &Usecase{
		delegator: delegator,
		policy:    policy,
		onAck:     onAck,
		onFill:    onFill,
		worker:    workerCount,
		queue:     make(chan schema.OrderIntent, workerCap),
	}
}

// Handle enqueues an intent without blocking.
func (use *Usecase) Handle(intent schema.OrderIntent) error {
	select {
	case use.queue <- intent:
		return nil
	default:
		return exception.ErrOrderQueueFull
	}
}

// Run starts the worker pool. Safe to call once; later calls no-op.
func (use *Usecase) Run(ctx context.Context) {
	if use.running.Swap(true) {
		return
	}

	for range use.worker {
		go use.workerLoop(ctx)
	}
}

func (use *Usecase) workerLoop(ctx context.Context) {
	for {
		select {
		case intent := <-use.queue:
			use.execute(ctx, intent)
		case <-ctx.Done():
			return
		}
	}
}

func (use *Usecase) execute(ctx context.Context, intent schema.OrderIntent) {
	var res Result
	err := use.policy.Do(ctx, func(attempt int) error {
		var sendErr error
		res, sendErr = use.delegator.Send(ctx, intent)
		if sendErr != nil && attempt > 1 {
			logs.Warnf("resend order %d attempt %d: %+v", intent.OrderID, attempt, sendErr)
		}
		return sendErr
	})
	if err != nil {
		logs.Errorf("send order %d exhausted retries: %+v", intent.OrderID, err)
		use.onAck(schema.OrderAck{
			OrderID:    intent.OrderID,
			ContractID: intent.ContractID,
			Status:     schema.OrderAckStatusRejected,
			Reason:     schema.OrderAckReasonBrokerReject,
			Price:      intent.Price,
			Qty:        intent.Qty,
		})
		return
	}

	use.onAck(res.Ack)
	for _, fill := range res.Fills {
		use.onFill(fill)
	}
}
