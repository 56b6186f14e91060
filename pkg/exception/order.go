package exception

import "errors"

// Order errors
var (
	ErrOrderRejected        = errors.New("order: rejected by broker")
	ErrOrderSpreadTooWide   = errors.New("order: spread too wide")
	ErrOrderUnknownHandle   = errors.New("order: unknown handle")
	ErrOrderQueueFull       = errors.New("order: queue full")
	ErrOrderInvalidRequest  = errors.New("order: invalid request")
	ErrOrderRequestNotSent  = errors.New("order: request did not send")
	ErrOrderDecodeResponse  = errors.New("order: decode response body")
	ErrOrderEmptyResponseID = errors.New("order: empty response order id")
)
