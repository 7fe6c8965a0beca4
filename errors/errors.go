package errors

import "fmt"

var (
	ErrAuthRequired         = fmt.Errorf("no credential supplied")
	ErrAuthFailed           = fmt.Errorf("credential invalid or expired")
	ErrInvalidFrame         = fmt.Errorf("frame is not well-formed")
	ErrUnknownFrameType     = fmt.Errorf("unknown frame type")
	ErrValidation           = fmt.Errorf("frame failed validation")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrSessionNotFound      = fmt.Errorf("session not found")
	ErrConnClosed           = fmt.Errorf("connection closed")
)
