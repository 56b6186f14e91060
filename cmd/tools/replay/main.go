package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"main/internal/codec"
	"main/internal/recorder"
	"main/internal/schema"
	"main/internal/state"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: wal)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Decode known payload types")
	snapshotPath := flag.String("snapshot", "", "Verify rebuilt positions against this snapshot")
	flag.Parse()

	cfg := recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	}
	pb, err := recorder.NewPlayback(cfg)
	if err != nil {
		log.Fatalf("playback init failed: %v", err)
	}

	ctx := context.Background()
	positions := state.NewPositionReducer()
	counts := make(map[schema.EventType]int)
	var index int
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		index++
		counts[header.Type]++
		fmt.Printf("%06d seq=%d type=%s ts_event=%d ts_recv=%d len=%d\n", index, header.Seq, eventTypeName(header.Type), header.TsEvent, header.TsRecv, len(payload))
		if header.Type == schema.EventFill {
			fill, ok := codec.DecodeFill(payload)
			if !ok {
				return fmt.Errorf("decode fill failed at record %d", index)
			}
			positions.ApplyFill(fill)
		}
		if *decode {
			printDecoded(header.Type, payload)
		}
		return nil
	})
	if err != nil {
		log.Fatalf("playback run failed: %v", err)
	}

	if *snapshotPath != "" {
		expected, err := state.ReadSnapshot(*snapshotPath)
		if err != nil {
			log.Fatalf("snapshot read failed: %v", err)
		}
		actual := positions.Snapshot()
		if err := state.CompareSnapshots(expected, actual); err != nil {
			log.Fatalf("snapshot mismatch: %v", err)
		}
		log.Printf("snapshot verified: positions=%d", len(actual.Positions))
	}
	log.Printf("replay completed: total=%d counts=%v positions=%d", index, counts, positions.Count())
}

func eventTypeName(t schema.EventType) string {
	switch t {
	case schema.EventTick:
		return "Tick"
	case schema.EventStrategySignal:
		return "StrategySignal"
	case schema.EventOrderIntent:
		return "OrderIntent"
	case schema.EventOrderAck:
		return "OrderAck"
	case schema.EventFill:
		return "Fill"
	case schema.EventRiskDecision:
		return "RiskDecision"
	case schema.EventPositionEvent:
		return "PositionEvent"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

func printDecoded(t schema.EventType, payload []byte) {
	switch t {
	case schema.EventTick:
		tick, ok := codec.DecodeTick(payload)
		if !ok {
			fmt.Println("  decode Tick failed")
			return
		}
		fmt.Printf("  tick contract=%d ts=%d last=%d vol=%d oi=%d bid=%d ask=%d\n",
			tick.ContractID, tick.TsNano, tick.LastPrice, tick.Volume, tick.OpenInterest, tick.BidPrice, tick.AskPrice)
	case schema.EventStrategySignal:
		sig, ok := codec.DecodeStrategySignal(payload)
		if !ok {
			fmt.Println("  decode StrategySignal failed")
			return
		}
		fmt.Printf("  signal id=%d contract=%d confidence=%d vol_z=%.2f oi_z=%.2f move=%dbps ref=%d\n",
			sig.SignalID, sig.ContractID, sig.Confidence, sig.VolumeZ, sig.OIZ, sig.PriceMoveBps, sig.RefPrice)
	case schema.EventOrderIntent:
		order, ok := codec.DecodeOrderIntent(payload)
		if !ok {
			fmt.Println("  decode OrderIntent failed")
			return
		}
		fmt.Printf("  order id=%d position=%d contract=%d side=%d kind=%d attempt=%d price=%d qty=%d\n",
			order.OrderID, order.PositionID, order.ContractID, order.Side, order.Kind, order.Attempt, order.Price, order.Qty)
	case schema.EventOrderAck:
		ack, ok := codec.DecodeOrderAck(payload)
		if !ok {
			fmt.Println("  decode OrderAck failed")
			return
		}
		fmt.Printf("  ack id=%d contract=%d status=%d reason=%d price=%d qty=%d leaves=%d\n",
			ack.OrderID, ack.ContractID, ack.Status, ack.Reason, ack.Price, ack.Qty, ack.LeavesQty)
	case schema.EventRiskDecision:
		decision, ok := codec.DecodeRiskDecision(payload)
		if !ok {
			fmt.Println("  decode RiskDecision failed")
			return
		}
		fmt.Printf("  risk signal=%d contract=%d action=%d reason=%d exposure=%d pnl=%d open=%d streak=%d\n",
			decision.SignalID, decision.ContractID, decision.Action, decision.Reason,
			decision.Exposure, decision.DailyPnL, decision.OpenCount, decision.LossStreak)
	case schema.EventFill:
		fill, ok := codec.DecodeFill(payload)
		if !ok {
			fmt.Println("  decode Fill failed")
			return
		}
		fmt.Printf("  fill id=%d contract=%d side=%d price=%d qty=%d fee=%d\n",
			fill.OrderID, fill.ContractID, fill.Side, fill.Price, fill.Qty, fill.Fee)
	case schema.EventPositionEvent:
		event, ok := codec.DecodePositionEvent(payload)
		if !ok {
			fmt.Println("  decode PositionEvent failed")
			return
		}
		fmt.Printf("  position id=%d contract=%d kind=%d qty=%d price=%d pnl=%d\n",
			event.PositionID, event.ContractID, event.Kind, event.Qty, event.Price, event.RealizedPnL)
	default:
		return
	}
}
