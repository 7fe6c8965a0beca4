package domain

// Error frame codes surfaced to clients. AUTH_REQUIRED and AUTH_FAILED are
// terminal for the connection; every other code leaves it open.
const (
	CodeAuthRequired  = "AUTH_REQUIRED"
	CodeAuthFailed    = "AUTH_FAILED"
	CodeInvalidFrame  = "INVALID_FRAME"
	CodeUnknownType   = "UNKNOWN_TYPE"
	CodeValidation    = "VALIDATION"
	CodeInternalError = "INTERNAL_ERROR"
)

// NewErrorFrame builds the outbound error frame for a code.
func NewErrorFrame(code, message string) OutboundFrame {
	return NewOutbound(FrameError, ErrorPayload{Code: code, Message: message})
}
