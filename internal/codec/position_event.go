package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const PositionEventPayloadSize = 48

// EncodePositionEvent serializes a position lifecycle event into a fixed-size payload.
func EncodePositionEvent(dst []byte, event schema.PositionEvent) []byte {
	if cap(dst) < PositionEventPayloadSize {
		dst = make([]byte, PositionEventPayloadSize)
	} else {
		dst = dst[:PositionEventPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], event.PositionID)
	binary.LittleEndian.PutUint32(dst[8:12], event.ContractID)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(event.Kind))
	binary.LittleEndian.PutUint16(dst[14:16], event.Flags)
	binary.LittleEndian.PutUint64(dst[16:24], uint64(event.TsNano))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(event.Qty))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(event.Price))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(event.RealizedPnL))

	return dst
}

// DecodePositionEvent parses a fixed-size position event payload.
func DecodePositionEvent(src []byte) (schema.PositionEvent, bool) {
	if len(src) < PositionEventPayloadSize {
		return schema.PositionEvent{}, false
	}
	return schema.PositionEvent{
		PositionID:  binary.LittleEndian.Uint64(src[0:8]),
		ContractID:  binary.LittleEndian.Uint32(src[8:12]),
		Kind:        schema.PositionEventKind(binary.LittleEndian.Uint16(src[12:14])),
		Flags:       binary.LittleEndian.Uint16(src[14:16]),
		TsNano:      int64(binary.LittleEndian.Uint64(src[16:24])),
		Qty:         schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Price:       schema.Price(int64(binary.LittleEndian.Uint64(src[32:40]))),
		RealizedPnL: schema.Notional(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}, true
}
