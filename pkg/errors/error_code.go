package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199). Fatal before a run starts; a run never
	// leaves the pending state when one of these is raised.
	ErrCodeInvalidParameter  ErrorCode = 100
	ErrCodeInvalidConfig     ErrorCode = 101
	ErrCodeInvalidDateRange  ErrorCode = 102
	ErrCodeInvalidCash       ErrorCode = 103
	ErrCodeInvalidIntent     ErrorCode = 104
	ErrCodeInvalidPeriod     ErrorCode = 105
	ErrCodeMissingParameter  ErrorCode = 106
	ErrCodeInvalidSubmission ErrorCode = 107

	// Data/feed errors (200-299)
	ErrCodeDataNotFound      ErrorCode = 200
	ErrCodeFeedUnavailable   ErrorCode = 201
	ErrCodeQueryFailed       ErrorCode = 202
	ErrCodeBarOrderViolation ErrorCode = 203
	ErrCodeRangeOutsideSpan  ErrorCode = 204

	// Indicator errors (300-399)
	ErrCodeIndicatorCalculation ErrorCode = 300
	ErrCodeLookbackExceeded     ErrorCode = 301

	// Strategy errors (400-499)
	ErrCodeStrategyNotFound     ErrorCode = 400
	ErrCodeStrategyConfigError  ErrorCode = 401
	ErrCodeStrategyRuntimeError ErrorCode = 402
	ErrCodeStrategyExists       ErrorCode = 403

	// Trading errors (500-599). Per-order rejections are recoverable and
	// recorded as terminal order states, never as run failures.
	ErrCodeOrderRejected     ErrorCode = 500
	ErrCodeMarginRejected    ErrorCode = 501
	ErrCodeUnknownInstrument ErrorCode = 502
	ErrCodeShortDisabled     ErrorCode = 503

	// Backtest/execution errors (600-699)
	ErrCodeExecutionFailed  ErrorCode = 600
	ErrCodeRunCanceled      ErrorCode = 601
	ErrCodeRunNotFound      ErrorCode = 602
	ErrCodeResultIncomplete ErrorCode = 603
	ErrCodeStoreFailed      ErrorCode = 604
)
