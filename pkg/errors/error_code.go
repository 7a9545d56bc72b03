package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Validation errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeInvalidSide          ErrorCode = 102
	ErrCodeInvalidQuantity      ErrorCode = 103
	ErrCodeInvalidPrice         ErrorCode = 104
	ErrCodeMissingParameter     ErrorCode = 105
	ErrCodeMissingEntryPrice    ErrorCode = 106
	ErrCodeInvalidStopPrice     ErrorCode = 107

	// Symbol metadata errors (200-299)
	ErrCodeSymbolMetadata ErrorCode = 200
	ErrCodeFilterMissing  ErrorCode = 201

	// Trading errors (500-599)
	ErrCodeOrderFailed      ErrorCode = 500
	ErrCodeEntryNotFilled   ErrorCode = 501
	ErrCodeCancelFailed     ErrorCode = 502
	ErrCodePositionNotFound ErrorCode = 503

	// Transport errors (700-799)
	ErrCodeTransport      ErrorCode = 700
	ErrCodeAuthentication ErrorCode = 701
)
