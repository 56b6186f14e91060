package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const TickPayloadSize = 56

// EncodeTick serializes a tick into a fixed-size payload.
func EncodeTick(dst []byte, tick schema.Tick) []byte {
	if cap(dst) < TickPayloadSize {
		dst = make([]byte, TickPayloadSize)
	} else {
		dst = dst[:TickPayloadSize]
	}

	binary.LittleEndian.PutUint32(dst[0:4], tick.ContractID)
	binary.LittleEndian.PutUint16(dst[4:6], tick.Flags)
	binary.LittleEndian.PutUint16(dst[6:8], tick.Reserved)
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tick.TsNano))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(tick.LastPrice))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.Volume))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(tick.OpenInterest))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(tick.BidPrice))
	binary.LittleEndian.PutUint64(dst[48:56], uint64(tick.AskPrice))

	return dst
}

// DecodeTick parses a fixed-size tick payload.
func DecodeTick(src []byte) (schema.Tick, bool) {
	if len(src) < TickPayloadSize {
		return schema.Tick{}, false
	}
	return schema.Tick{
		ContractID:   binary.LittleEndian.Uint32(src[0:4]),
		Flags:        binary.LittleEndian.Uint16(src[4:6]),
		Reserved:     binary.LittleEndian.Uint16(src[6:8]),
		TsNano:       int64(binary.LittleEndian.Uint64(src[8:16])),
		LastPrice:    schema.Price(int64(binary.LittleEndian.Uint64(src[16:24]))),
		Volume:       int64(binary.LittleEndian.Uint64(src[24:32])),
		OpenInterest: int64(binary.LittleEndian.Uint64(src[32:40])),
		BidPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[40:48]))),
		AskPrice:     schema.Price(int64(binary.LittleEndian.Uint64(src[48:56]))),
	}, true
}
