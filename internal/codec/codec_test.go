package codec

import (
	"testing"

	"main/internal/schema"
)

func TestTickRoundTrip(t *testing.T) {
	orig := schema.Tick{
		ContractID:   7,
		TsNano:       1756700000123456789,
		LastPrice:    10250,
		Volume:       4200,
		OpenInterest: 151000,
		BidPrice:     10245,
		AskPrice:     10255,
	}
	decoded, ok := DecodeTick(EncodeTick(nil, orig))
	if !ok {
		t.Fatal("decode tick failed")
	}
	if decoded != orig {
		t.Fatalf("tick round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestStrategySignalRoundTrip(t *testing.T) {
	orig := schema.StrategySignal{
		SignalID:     42,
		ContractID:   7,
		Confidence:   schema.ConfidenceStrong,
		DetectedAt:   1756700000123456789,
		VolumeTsNano: 1756699800000000000,
		PriceTsNano:  1756699801000000000,
		OITsNano:     1756700000123456789,
		VolumeZ:      3.2,
		OIZ:          1.8,
		PriceMoveBps: 17,
		RefPrice:     10250,
	}
	decoded, ok := DecodeStrategySignal(EncodeStrategySignal(nil, orig))
	if !ok {
		t.Fatal("decode signal failed")
	}
	if decoded != orig {
		t.Fatalf("signal round-trip mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestDecodeShortPayload(t *testing.T) {
	if _, ok := DecodeTick(make([]byte, TickPayloadSize-1)); ok {
		t.Fatal("short tick payload should fail")
	}
	if _, ok := DecodePositionEvent(make([]byte, 8)); ok {
		t.Fatal("short position event payload should fail")
	}
}
