package state

import "main/internal/schema"

// Book is the reduced view of one contract's fills: net quantity,
// open cost, and realized P&L on an average-cost basis.
type Book struct {
	Qty      schema.Quantity
	Cost     schema.Notional
	Realized schema.Notional
	Fees     schema.Fee
}

// AvgPrice returns the average open price, 0 when flat.
func (b Book) AvgPrice() schema.Price {
	if b.Qty == 0 {
		return 0
	}
	return schema.Price(int64(b.Cost) / int64(b.Qty))
}

// PositionReducer rebuilds per-contract books from fill events.
// Used for recovery and replay verification, not the trading path.
type PositionReducer struct {
	books map[uint32]Book
}

// NewPositionReducer creates an empty reducer.
func NewPositionReducer() *PositionReducer {
	return &PositionReducer{books: make(map[uint32]Book)}
}

// ApplyFill folds one fill into the contract's book and returns it.
func (r *PositionReducer) ApplyFill(fill schema.Fill) Book {
	book := r.books[fill.ContractID]
	book.Fees += fill.Fee

	switch fill.Side {
	case schema.OrderSideBuy:
		book.Qty += fill.Qty
		book.Cost += schema.Notional(int64(fill.Price) * int64(fill.Qty))
	case schema.OrderSideSell:
		avg := book.AvgPrice()
		qty := fill.Qty
		if qty > book.Qty {
			qty = book.Qty
		}
		book.Realized += schema.Notional((int64(fill.Price) - int64(avg)) * int64(qty))
		book.Cost -= schema.Notional(int64(avg) * int64(qty))
		book.Qty -= qty
	}

	r.books[fill.ContractID] = book
	return book
}

// ApplySnapshot replaces the books with a snapshot.
func (r *PositionReducer) ApplySnapshot(snapshot Snapshot) {
	r.books = make(map[uint32]Book, len(snapshot.Positions))
	for _, entry := range snapshot.Positions {
		r.books[entry.ContractID] = Book{
			Qty:      entry.Qty,
			Cost:     entry.Cost,
			Realized: entry.Realized,
			Fees:     entry.Fees,
		}
	}
}

// Book returns the current book for a contract.
func (r *PositionReducer) Book(contractID uint32) Book {
	return r.books[contractID]
}

// Count returns the number of tracked contracts.
func (r *PositionReducer) Count() int {
	return len(r.books)
}
