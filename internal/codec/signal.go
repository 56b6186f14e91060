package codec

import (
	"encoding/binary"
	"math"

	"main/internal/schema"
)

const StrategySignalPayloadSize = 80

// EncodeStrategySignal serializes a compound signal into a fixed-size payload.
func EncodeStrategySignal(dst []byte, sig schema.StrategySignal) []byte {
	if cap(dst) < StrategySignalPayloadSize {
		dst = make([]byte, StrategySignalPayloadSize)
	} else {
		dst = dst[:StrategySignalPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], sig.SignalID)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(sig.ContractID))
	binary.LittleEndian.PutUint16(dst[12:14], uint16(sig.Confidence))
	binary.LittleEndian.PutUint16(dst[14:16], sig.Flags)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(sig.DetectedAt))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(sig.VolumeTsNano))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(sig.PriceTsNano))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(sig.OITsNano))
	binary.LittleEndian.PutUint64(dst[48:56], math.Float64bits(sig.VolumeZ))
	binary.LittleEndian.PutUint64(dst[56:64], math.Float64bits(sig.OIZ))
	binary.LittleEndian.PutUint64(dst[64:72], uint64(sig.PriceMoveBps))
	binary.LittleEndian.PutUint64(dst[72:80], uint64(sig.RefPrice))

	return dst
}

// DecodeStrategySignal parses a fixed-size compound signal payload.
func DecodeStrategySignal(src []byte) (schema.StrategySignal, bool) {
	if len(src) < StrategySignalPayloadSize {
		return schema.StrategySignal{}, false
	}
	return schema.StrategySignal{
		SignalID:     binary.LittleEndian.Uint64(src[0:8]),
		ContractID:   binary.LittleEndian.Uint32(src[8:12]),
		Confidence:   schema.Confidence(binary.LittleEndian.Uint16(src[12:14])),
		Flags:        binary.LittleEndian.Uint16(src[14:16]),
		DetectedAt:   int64(binary.LittleEndian.Uint64(src[16:24])),
		VolumeTsNano: int64(binary.LittleEndian.Uint64(src[24:32])),
		PriceTsNano:  int64(binary.LittleEndian.Uint64(src[32:40])),
		OITsNano:     int64(binary.LittleEndian.Uint64(src[40:48])),
		VolumeZ:      math.Float64frombits(binary.LittleEndian.Uint64(src[48:56])),
		OIZ:          math.Float64frombits(binary.LittleEndian.Uint64(src[56:64])),
		PriceMoveBps: schema.Bps(int64(binary.LittleEndian.Uint64(src[64:72]))),
		RefPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[72:80]))),
	}, true
}
