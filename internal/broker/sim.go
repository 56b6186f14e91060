package broker

import (
	"context"
	"sync"

	"main/internal/schema"
	"main/pkg/exception"
)

// QuoteBook tracks the latest tick per contract for the simulator.
type QuoteBook struct {
	mu   sync.RWMutex
	last map[uint32]schema.Tick
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{last: make(map[uint32]schema.Tick)}
}

func (q *QuoteBook) Update(tick schema.Tick) {
	q.mu.Lock()
	q.last[tick.ContractID] = tick
	q.mu.Unlock()
}

func (q *QuoteBook) Last(contractID uint32) (schema.Tick, bool) {
	q.mu.RLock()
	tick, ok := q.last[contractID]
	q.mu.RUnlock()
	return tick, ok
}

// SimConfig controls the simulated venue.
type SimConfig struct {
	MaxSpreadBps schema.Bps
	FeeBps       schema.Bps
}

// Sim executes intents against the quote book. Marketable orders fill
// fully at the touch; wide spreads and away prices are rejected the
// way a venue's price checks would, which exercises the requote path.
type Sim struct {
	cfg    SimConfig
	quotes *QuoteBook
}

func NewSim(cfg SimConfig, quotes *QuoteBook) *Sim {
	return &Sim{cfg: cfg, quotes: quotes}
}

func (s *Sim) Send(_ context.Context, intent schema.OrderIntent) (Result, error) {
	if intent.Kind == schema.IntentCancel {
		return Result{Ack: schema.OrderAck{
			OrderID:    intent.OrderID,
			ContractID: intent.ContractID,
			Status:     schema.OrderAckStatusCanceled,
		}}, nil
	}
	if intent.Qty <= 0 {
		return Result{Ack: s.reject(intent, schema.OrderAckReasonInvalidQty)}, nil
	}

	quote, ok := s.quotes.Last(intent.ContractID)
	if !ok {
		return Result{}, exception.ErrBrokerUnavailable
	}
	if s.cfg.MaxSpreadBps > 0 && quote.SpreadBps() > s.cfg.MaxSpreadBps {
		return Result{Ack: s.reject(intent, schema.OrderAckReasonSpread)}, nil
	}

	var px schema.Price
	switch intent.Side {
	case schema.OrderSideBuy:
		if quote.AskPrice <= 0 || intent.Price < quote.AskPrice {
			return Result{Ack: s.reject(intent, schema.OrderAckReasonInvalidPrice)}, nil
		}
		px = quote.AskPrice
	case schema.OrderSideSell:
		if quote.BidPrice <= 0 || intent.Price > quote.BidPrice {
			return Result{Ack: s.reject(intent, schema.OrderAckReasonInvalidPrice)}, nil
		}
		px = quote.BidPrice
	default:
		return Result{Ack: s.reject(intent, schema.OrderAckReasonInvalidQty)}, nil
	}

	fee := schema.Fee(int64(px) * int64(intent.Qty) * int64(s.cfg.FeeBps) / 10000)
	ack := schema.OrderAck{
		OrderID:    intent.OrderID,
		ContractID: intent.ContractID,
		Status:     schema.OrderAckStatusFilled,
		Price:      px,
		Qty:        intent.Qty,
		LeavesQty:  0,
	}
	fill := schema.Fill{
		OrderID:    intent.OrderID,
		ContractID: intent.ContractID,
		Side:       intent.Side,
		Price:      px,
		Qty:        intent.Qty,
		Fee:        fee,
	}
	return Result{Ack: ack, Fills: []schema.Fill{fill}}, nil
}

func (s *Sim) reject(intent schema.OrderIntent, reason schema.OrderAckReason) schema.OrderAck {
	return schema.OrderAck{
		OrderID:    intent.OrderID,
		ContractID: intent.ContractID,
		Status:     schema.OrderAckStatusRejected,
		Reason:     reason,
		Price:      intent.Price,
		Qty:        intent.Qty,
		LeavesQty:  intent.Qty,
	}
}
