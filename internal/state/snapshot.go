package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"main/internal/schema"
)

// Snapshot captures per-contract books at a point in time.
type Snapshot struct {
	Timestamp   int64           `json:"timestamp"`
	LastSeq     uint64          `json:"lastSeq"`
	LastEventTs int64           `json:"lastEventTs"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is a single contract book entry.
type PositionEntry struct {
	ContractID uint32          `json:"contractId"`
	Qty        schema.Quantity `json:"qty"`
	Cost       schema.Notional `json:"cost"`
	Realized   schema.Notional `json:"realized"`
	Fees       schema.Fee      `json:"fees"`
}

// Snapshot builds a snapshot from the current books.
func (r *PositionReducer) Snapshot() Snapshot {
	return r.SnapshotWithMeta(0, 0)
}

// SnapshotWithMeta builds a snapshot with event metadata.
func (r *PositionReducer) SnapshotWithMeta(lastSeq uint64, lastEventTs int64) Snapshot {
	entries := make([]PositionEntry, 0, len(r.books))
	for contractID, book := range r.books {
		entries = append(entries, PositionEntry{
			ContractID: contractID,
			Qty:        book.Qty,
			Cost:       book.Cost,
			Realized:   book.Realized,
			Fees:       book.Fees,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ContractID < entries[j].ContractID
	})
	return Snapshot{
		Timestamp:   time.Now().UTC().UnixNano(),
		LastSeq:     lastSeq,
		LastEventTs: lastEventTs,
		Positions:   entries,
	}
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks whether two snapshots hold the same books.
func CompareSnapshots(expected, actual Snapshot) error {
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[uint32]PositionEntry, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.ContractID] = entry
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.ContractID]
		if !ok {
			return fmt.Errorf("snapshot missing contract: %d", entry.ContractID)
		}
		if want.Qty != entry.Qty || want.Cost != entry.Cost || want.Realized != entry.Realized {
			return fmt.Errorf("snapshot book mismatch: contract=%d expected=%+v actual=%+v", entry.ContractID, want, entry)
		}
	}
	return nil
}
