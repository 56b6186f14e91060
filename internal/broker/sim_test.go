package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
	"main/pkg/exception"
	"main/pkg/retry"
)

func simQuote(bid, ask schema.Price) schema.Tick {
	return schema.Tick{ContractID: 5, BidPrice: bid, AskPrice: ask, LastPrice: (bid + ask) / 2}
}

func TestSimFillsMarketableBuy(t *testing.T) {
	quotes := NewQuoteBook()
	quotes.Update(simQuote(9_995, 10_005))
	sim := NewSim(SimConfig{MaxSpreadBps: 30, FeeBps: 5}, quotes)

	res, err := sim.Send(context.Background(), schema.OrderIntent{
		OrderID:    1,
		ContractID: 5,
		Side:       schema.OrderSideBuy,
		Kind:       schema.IntentProbe,
		Price:      10_010,
		Qty:        2,
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderAckStatusFilled, res.Ack.Status)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, schema.Price(10_005), res.Fills[0].Price)
	assert.Equal(t, schema.Fee(10), res.Fills[0].Fee)
}

func TestSimRejectsWideSpread(t *testing.T) {
	quotes := NewQuoteBook()
	// 100 wide on a 10k mid is ~100 bps
	quotes.Update(simQuote(9_950, 10_050))
	sim := NewSim(SimConfig{MaxSpreadBps: 30}, quotes)

	res, err := sim.Send(context.Background(), schema.OrderIntent{
		OrderID: 1, ContractID: 5, Side: schema.OrderSideBuy, Price: 10_100, Qty: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderAckStatusRejected, res.Ack.Status)
	assert.Equal(t, schema.OrderAckReasonSpread, res.Ack.Reason)
}

func TestSimRejectsAwayPrice(t *testing.T) {
	quotes := NewQuoteBook()
	quotes.Update(simQuote(9_995, 10_005))
	sim := NewSim(SimConfig{MaxSpreadBps: 30}, quotes)

	res, err := sim.Send(context.Background(), schema.OrderIntent{
		OrderID: 1, ContractID: 5, Side: schema.OrderSideBuy, Price: 10_000, Qty: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderAckReasonInvalidPrice, res.Ack.Reason)
}

func TestSimUnknownContract(t *testing.T) {
	sim := NewSim(SimConfig{}, NewQuoteBook())
	_, err := sim.Send(context.Background(), schema.OrderIntent{OrderID: 1, ContractID: 9, Side: schema.OrderSideBuy, Price: 1, Qty: 1})
	assert.ErrorIs(t, err, exception.ErrBrokerUnavailable)
}

func TestSimCancelAcks(t *testing.T) {
	sim := NewSim(SimConfig{}, NewQuoteBook())
	res, err := sim.Send(context.Background(), schema.OrderIntent{OrderID: 4, ContractID: 5, Kind: schema.IntentCancel})
	require.NoError(t, err)
	assert.Equal(t, schema.OrderAckStatusCanceled, res.Ack.Status)
}

func TestUsecaseQueueFull(t *testing.T) {
	quotes := NewQuoteBook()
	use := NewUsecase(1, 1, NewSim(SimConfig{}, quotes), retry.DefaultPolicy(), func(schema.OrderAck) {}, func(schema.Fill) {})

	require.NoError(t, use.Handle(schema.OrderIntent{OrderID: 1}))
	assert.ErrorIs(t, use.Handle(schema.OrderIntent{OrderID: 2}), exception.ErrOrderQueueFull)
}
