package contract

import "errors"

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrInvalidRole       = errors.New("invalid message role")
	ErrMalformedToolCall = errors.New("malformed tool call")
	ErrCRMNotConfigured  = errors.New("crm is not configured")
)
