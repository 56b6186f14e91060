package state

import (
	"context"
	"fmt"

	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
)

// RecoverConfig controls snapshot + journal recovery.
type RecoverConfig struct {
	WALDir          string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
	UseRecvTime     bool
}

// RecoverResult contains rebuilt books and journal metadata. The
// closed-trade tally comes from position events in the journal tail and
// feeds the risk governor's daily counters on restart.
type RecoverResult struct {
	Positions    *PositionReducer
	LastSeq      uint64
	LastEventTs  int64
	ClosedTrades int
	ClosedPnL    schema.Notional
}

// RecoverPositions loads a snapshot and replays the journal tail to
// rebuild realized books. Records at or before the snapshot's sequence
// are skipped; when the snapshot carries no sequence the event
// timestamp is the cutoff instead.
func RecoverPositions(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.WALDir == "" {
		return RecoverResult{}, fmt.Errorf("wal dir is empty")
	}
	result := RecoverResult{Positions: NewPositionReducer()}

	if cfg.SnapshotPath != "" {
		snapshot, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		result.Positions.ApplySnapshot(snapshot)
		result.LastSeq = snapshot.LastSeq
		result.LastEventTs = snapshot.LastEventTs
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.WALDir,
		FilePrefix:      cfg.FilePrefix,
		Speed:           0,
		UseRecvTime:     cfg.UseRecvTime,
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		if result.LastSeq > 0 && header.Seq <= result.LastSeq {
			return nil
		}
		if result.LastSeq == 0 && result.LastEventTs > 0 {
			ts := header.TsEvent
			if cfg.UseRecvTime {
				ts = header.TsRecv
			}
			if ts <= result.LastEventTs {
				return nil
			}
		}
		if header.Seq > result.LastSeq {
			result.LastSeq = header.Seq
		}
		if header.TsEvent > result.LastEventTs {
			result.LastEventTs = header.TsEvent
		}

		switch header.Type {
		case schema.EventFill:
			fill, ok := codec.DecodeFill(payload)
			if !ok {
				return fmt.Errorf("decode fill failed at seq %d", header.Seq)
			}
			result.Positions.ApplyFill(fill)
		case schema.EventPositionEvent:
			event, ok := codec.DecodePositionEvent(payload)
			if !ok {
				return fmt.Errorf("decode position event failed at seq %d", header.Seq)
			}
			if event.Kind == schema.PositionEventClosed {
				result.ClosedTrades++
				result.ClosedPnL += event.RealizedPnL
			}
		}
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}

	return result, nil
}
