package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const OrderIntentPayloadSize = 44

// EncodeOrderIntent serializes an order intent into a fixed-size payload.
func EncodeOrderIntent(dst []byte, order schema.OrderIntent) []byte {
	if cap(dst) < OrderIntentPayloadSize {
		dst = make([]byte, OrderIntentPayloadSize)
	} else {
		dst = dst[:OrderIntentPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], order.OrderID)
	binary.LittleEndian.PutUint64(dst[8:16], order.PositionID)
	binary.LittleEndian.PutUint32(dst[16:20], order.ContractID)
	binary.LittleEndian.PutUint16(dst[20:22], uint16(order.Side))
	binary.LittleEndian.PutUint16(dst[22:24], uint16(order.Kind))
	binary.LittleEndian.PutUint16(dst[24:26], order.Flags)
	binary.LittleEndian.PutUint16(dst[26:28], order.Attempt)
	binary.LittleEndian.PutUint64(dst[28:36], uint64(order.Price))
	binary.LittleEndian.PutUint64(dst[36:44], uint64(order.Qty))

	return dst
}

// DecodeOrderIntent parses a fixed-size order intent payload.
func DecodeOrderIntent(src []byte) (schema.OrderIntent, bool) {
	if len(src) < OrderIntentPayloadSize {
		return schema.OrderIntent{}, false
	}
	return schema.OrderIntent{
		OrderID:    binary.LittleEndian.Uint64(src[0:8]),
		PositionID: binary.LittleEndian.Uint64(src[8:16]),
		ContractID: binary.LittleEndian.Uint32(src[16:20]),
		Side:       schema.OrderSide(binary.LittleEndian.Uint16(src[20:22])),
		Kind:       schema.IntentKind(binary.LittleEndian.Uint16(src[22:24])),
		Flags:      binary.LittleEndian.Uint16(src[24:26]),
		Attempt:    binary.LittleEndian.Uint16(src[26:28]),
		Price:      schema.Price(int64(binary.LittleEndian.Uint64(src[28:36]))),
		Qty:        schema.Quantity(int64(binary.LittleEndian.Uint64(src[36:44]))),
	}, true
}
