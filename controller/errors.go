package controller

import (
	"errors"
	"net/http"

	"workspace-agent-backend/dao"
	"workspace-agent-backend/service/chat"
)

var (
	ErrParseRequest = errors.New("failed to parse request")

	ErrCreateConversation      = errors.New("failed to create a conversation")
	ErrGetConversations        = errors.New("failed to get conversations")
	ErrDeleteConversation      = errors.New("failed to delete a conversation")
	ErrGetConversationMessages = errors.New("failed to get conversation messages")
	ErrUpdateConversationTitle = errors.New("failed to update conversation title")

	ErrStartTurn       = errors.New("failed to start chat")
	ErrResumeTurn      = errors.New("failed to resume chat")
	ErrStreamInterrupt = errors.New("stream ended unexpectedly")
)

// statusFor 将请求级错误映射为 HTTP 状态码，fallback 为对外展示的默认错误
func statusFor(err error, fallback error) (int, error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, err
	case errors.Is(err, dao.ErrConversationNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, chat.ErrConfirmationNotFound):
		return http.StatusNotFound, err
	case errors.Is(err, chat.ErrConfirmationPending),
		errors.Is(err, chat.ErrConfirmationResolved),
		errors.Is(err, chat.ErrConfirmationOutOfOrder):
		return http.StatusConflict, err
	default:
		return http.StatusInternalServerError, fallback
	}
}
