package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func buy(contract uint32, price, qty, fee int64) schema.Fill {
	return schema.Fill{
		ContractID: contract,
		Side:       schema.OrderSideBuy,
		Price:      schema.Price(price),
		Qty:        schema.Quantity(qty),
		Fee:        schema.Fee(fee),
	}
}

func sell(contract uint32, price, qty, fee int64) schema.Fill {
	return schema.Fill{
		ContractID: contract,
		Side:       schema.OrderSideSell,
		Price:      schema.Price(price),
		Qty:        schema.Quantity(qty),
		Fee:        schema.Fee(fee),
	}
}

func TestReducerAverageCostRealized(t *testing.T) {
	r := NewPositionReducer()

	r.ApplyFill(buy(7, 10_000, 2, 4))
	r.ApplyFill(buy(7, 10_100, 8, 16))
	book := r.Book(7)
	assert.Equal(t, schema.Quantity(10), book.Qty)
	assert.Equal(t, schema.Notional(100_800), book.Cost)
	assert.Equal(t, schema.Price(10_080), book.AvgPrice())

	book = r.ApplyFill(sell(7, 14_000, 10, 20))
	assert.Equal(t, schema.Quantity(0), book.Qty)
	assert.Equal(t, schema.Notional(0), book.Cost)
	assert.Equal(t, schema.Notional(39_200), book.Realized)
	assert.Equal(t, schema.Fee(40), book.Fees)
}

func TestReducerSellCappedAtBookQty(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(buy(3, 5_000, 4, 0))

	book := r.ApplyFill(sell(3, 5_500, 6, 0))
	assert.Equal(t, schema.Quantity(0), book.Qty)
	assert.Equal(t, schema.Notional(2_000), book.Realized)
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewPositionReducer()
	r.ApplyFill(buy(1, 10_000, 2, 5))
	r.ApplyFill(buy(9, 8_000, 4, 5))
	r.ApplyFill(sell(9, 8_200, 4, 5))

	path := filepath.Join(t.TempDir(), "positions.json")
	snapshot := r.SnapshotWithMeta(42, 1_000)
	require.NoError(t, WriteSnapshot(path, snapshot))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), loaded.LastSeq)
	assert.Equal(t, int64(1_000), loaded.LastEventTs)

	restored := NewPositionReducer()
	restored.ApplySnapshot(loaded)
	assert.Equal(t, r.Book(1), restored.Book(1))
	assert.Equal(t, r.Book(9), restored.Book(9))
	require.NoError(t, CompareSnapshots(snapshot, restored.Snapshot()))
}

func TestCompareSnapshotsDetectsDrift(t *testing.T) {
	a := NewPositionReducer()
	a.ApplyFill(buy(1, 10_000, 2, 0))
	b := NewPositionReducer()
	b.ApplyFill(buy(1, 10_000, 3, 0))

	err := CompareSnapshots(a.Snapshot(), b.Snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "book mismatch")
}
