package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

const RiskDecisionPayloadSize = 44

// EncodeRiskDecision serializes a risk decision into a fixed-size payload.
func EncodeRiskDecision(dst []byte, decision schema.RiskDecision) []byte {
	if cap(dst) < RiskDecisionPayloadSize {
		dst = make([]byte, RiskDecisionPayloadSize)
	} else {
		dst = dst[:RiskDecisionPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], decision.SignalID)
	binary.LittleEndian.PutUint32(dst[8:12], decision.ContractID)
	binary.LittleEndian.PutUint16(dst[12:14], uint16(decision.Action))
	binary.LittleEndian.PutUint16(dst[14:16], uint16(decision.Reason))
	binary.LittleEndian.PutUint16(dst[16:18], decision.Flags)
	binary.LittleEndian.PutUint16(dst[18:20], decision.Reserved)
	binary.LittleEndian.PutUint64(dst[20:28], uint64(decision.Exposure))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(decision.DailyPnL))
	binary.LittleEndian.PutUint32(dst[36:40], decision.OpenCount)
	binary.LittleEndian.PutUint32(dst[40:44], decision.LossStreak)

	return dst
}

// DecodeRiskDecision parses a fixed-size risk decision payload.
func DecodeRiskDecision(src []byte) (schema.RiskDecision, bool) {
	if len(src) < RiskDecisionPayloadSize {
		return schema.RiskDecision{}, false
	}
	return schema.RiskDecision{
		SignalID:   binary.LittleEndian.Uint64(src[0:8]),
		ContractID: binary.LittleEndian.Uint32(src[8:12]),
		Action:     schema.RiskAction(binary.LittleEndian.Uint16(src[12:14])),
		Reason:     schema.RiskReason(binary.LittleEndian.Uint16(src[14:16])),
		Flags:      binary.LittleEndian.Uint16(src[16:18]),
		Reserved:   binary.LittleEndian.Uint16(src[18:20]),
		Exposure:   schema.Notional(int64(binary.LittleEndian.Uint64(src[20:28]))),
		DailyPnL:   schema.Notional(int64(binary.LittleEndian.Uint64(src[28:36]))),
		OpenCount:  binary.LittleEndian.Uint32(src[36:40]),
		LossStreak: binary.LittleEndian.Uint32(src[40:44]),
	}, true
}
