package chat

import "errors"

var (
	ErrEmptyMessage           = errors.New("message content is empty")
	ErrConfirmationPending    = errors.New("conversation has a tool call awaiting confirmation")
	ErrMessageNotFound        = errors.New("assistant message not found")
	ErrConfirmationNotFound   = errors.New("no confirmation found for this tool call")
	ErrConfirmationResolved   = errors.New("tool call confirmation already resolved")
	ErrConfirmationOutOfOrder = errors.New("an earlier tool call in this batch is awaiting confirmation")
	ErrRoundLimitExceeded     = errors.New("round limit exceeded")
)
