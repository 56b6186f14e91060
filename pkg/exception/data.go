package exception

import "errors"

// Data quality errors. Ticks failing these checks are dropped, not propagated.
var (
	ErrStaleTick     = errors.New("data: tick older than max age")
	ErrNegativeValue = errors.New("data: negative volume or open interest")
	ErrOutOfOrder    = errors.New("data: timestamp before last sample")
)

// System fault errors
var (
	ErrBrokerUnavailable = errors.New("system: broker unavailable")
	ErrPersistExhausted  = errors.New("system: persistence retries exhausted")
)
