package schema

// Price is a scaled integer. The scale is defined by configuration.
type Price int64

// Quantity is a scaled integer. The scale is defined by configuration.
type Quantity int64

// Notional is a scaled integer. The scale is defined by configuration.
type Notional int64

// Fee is a scaled integer. The scale is defined by configuration.
type Fee int64

// Bps is a value expressed in basis points (1/100 of a percent).
type Bps int64

// Tick is the payload for EventTick. One tick per contract update from the
// market data feed: last traded price, cumulative volume, open interest and
// the current top-of-book quote.
type Tick struct {
	ContractID   uint32
	Flags        uint16
	Reserved     uint16
	TsNano       int64
	LastPrice    Price
	Volume       int64
	OpenInterest int64
	BidPrice     Price
	AskPrice     Price
}

// Mid returns the quote midpoint, falling back to the last traded price
// when one side of the book is empty.
func (t Tick) Mid() Price {
	if t.BidPrice > 0 && t.AskPrice > 0 {
		return (t.BidPrice + t.AskPrice) / 2
	}
	return t.LastPrice
}

// SpreadBps returns the bid/ask spread relative to the midpoint.
func (t Tick) SpreadBps() Bps {
	mid := t.Mid()
	if mid <= 0 || t.BidPrice <= 0 || t.AskPrice <= 0 || t.AskPrice < t.BidPrice {
		return 0
	}
	return Bps(int64(t.AskPrice-t.BidPrice) * 10000 / int64(mid))
}

// Confidence grades a compound signal by the magnitude of its z-scores.
type Confidence uint16

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceWeak
	ConfidenceMedium
	ConfidenceStrong
	ConfidenceCritical
)

// StrategySignal is the payload for EventStrategySignal. It is emitted only
// when the volume, price and open-interest stages all fired inside their
// configured windows for the same contract.
type StrategySignal struct {
	SignalID     uint64
	ContractID   uint32
	Confidence   Confidence
	Flags        uint16
	DetectedAt   int64
	VolumeTsNano int64
	PriceTsNano  int64
	OITsNano     int64
	VolumeZ      float64
	OIZ          float64
	PriceMoveBps Bps
	RefPrice     Price
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// IntentKind states which lifecycle step an order intent belongs to.
type IntentKind uint16

const (
	IntentUnknown IntentKind = iota
	IntentProbe
	IntentScale
	IntentExit
	IntentCancel
)

// OrderIntent is the payload for EventOrderIntent.
type OrderIntent struct {
	OrderID    uint64
	PositionID uint64
	ContractID uint32
	Side       OrderSide
	Kind       IntentKind
	Flags      uint16
	Attempt    uint16
	Price      Price
	Qty        Quantity
}

// OrderAckStatus describes the outcome of an order acknowledgment.
type OrderAckStatus uint16

const (
	OrderAckStatusUnknown OrderAckStatus = iota
	OrderAckStatusAcked
	OrderAckStatusRejected
	OrderAckStatusCanceled
	OrderAckStatusExpired
	OrderAckStatusPartFilled
	OrderAckStatusFilled
)

// OrderAckReason describes the reason for an order acknowledgment.
type OrderAckReason uint16

const (
	OrderAckReasonNone OrderAckReason = iota
	OrderAckReasonBrokerReject
	OrderAckReasonRiskReject
	OrderAckReasonSpread
	OrderAckReasonInvalidPrice
	OrderAckReasonInvalidQty
	OrderAckReasonTimeout
)

// OrderAck is the payload for EventOrderAck.
type OrderAck struct {
	OrderID    uint64
	ContractID uint32
	Status     OrderAckStatus
	Reason     OrderAckReason
	Flags      uint16
	Reserved   uint16
	Price      Price
	Qty        Quantity
	LeavesQty  Quantity
	Reserved2  uint32
}

// RiskAction is the outcome of a risk decision.
type RiskAction uint16

const (
	RiskActionUnknown RiskAction = iota
	RiskActionAllow
	RiskActionDeny
)

// RiskReason is a coarse reason code for risk decisions.
type RiskReason uint16

const (
	RiskReasonNone RiskReason = iota
	RiskReasonKillSwitch
	RiskReasonDailyLoss
	RiskReasonConsecutiveLosses
	RiskReasonPositionsPerDay
	RiskReasonMargin
	RiskReasonTradingWindow
	RiskReasonContractBusy
	RiskReasonMaxPosition
	RiskReasonSubmitFailed
)

// RiskDecision is the payload for EventRiskDecision.
type RiskDecision struct {
	SignalID   uint64
	ContractID uint32
	Action     RiskAction
	Reason     RiskReason
	Flags      uint16
	Reserved   uint16
	Exposure   Notional
	DailyPnL   Notional
	OpenCount  uint32
	LossStreak uint32
}

// Fill is the payload for EventFill.
type Fill struct {
	OrderID    uint64
	ContractID uint32
	Side       OrderSide
	Flags      uint16
	Price      Price
	Qty        Quantity
	Fee        Fee
}

// PositionEventKind states which transition a position event records.
type PositionEventKind uint16

const (
	PositionEventUnknown PositionEventKind = iota
	PositionEventProbeSubmitted
	PositionEventProbeFilled
	PositionEventScaling
	PositionEventScaled
	PositionEventExiting
	PositionEventClosed
	PositionEventRejected
	PositionEventCancelled
)

// PositionEvent is the payload for EventPositionEvent, written for audit on
// every lifecycle transition.
type PositionEvent struct {
	PositionID  uint64
	ContractID  uint32
	Kind        PositionEventKind
	Flags       uint16
	TsNano      int64
	Qty         Quantity
	Price       Price
	RealizedPnL Notional
}
