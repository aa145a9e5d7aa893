package controller

import (
	"context"
	"log/slog"
	"net/http"

	"workspace-agent-backend/middleware"
	"workspace-agent-backend/request"
	"workspace-agent-backend/response"
	"workspace-agent-backend/service/chat"
	"workspace-agent-backend/utils"

	"github.com/gin-gonic/gin"
)

// ChatEngine 对话引擎的两个入口，输出相同形式的事件流
type ChatEngine interface {
	StartTurn(ctx context.Context, req chat.TurnRequest) (<-chan *chat.Event, error)
	Resume(ctx context.Context, req chat.ConfirmRequest) (<-chan *chat.Event, error)
}

var engine ChatEngine

// SetChatEngine 在注册路由前调用
func SetChatEngine(e ChatEngine) {
	engine = e
}

func AgentChat(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	events, err := engine.StartTurn(c.Request.Context(), chat.TurnRequest{
		ConversationID: req.ConversationID,
		UserID:         c.GetString(middleware.KeyUserID),
		WorkspaceID:    c.GetString(middleware.KeyWorkspaceID),
		Content:        req.Message,
		Model:          req.Model,
	})
	if err != nil {
		abortWithError(c, err, ErrStartTurn)
		return
	}

	streamEvents(c, events)
}

func ConfirmToolCall(c *gin.Context) {
	var req request.ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	events, err := engine.Resume(c.Request.Context(), chat.ConfirmRequest{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		ToolCallID:     req.ToolCallID,
		Approved:       *req.Approved,
		UserID:         c.GetString(middleware.KeyUserID),
		WorkspaceID:    c.GetString(middleware.KeyWorkspaceID),
	})
	if err != nil {
		abortWithError(c, err, ErrResumeTurn)
		return
	}

	streamEvents(c, events)
}

// streamEvents 转发事件直到通道关闭，最后写入结束帧
func streamEvents(c *gin.Context, events <-chan *chat.Event) {
	utils.SetSSEHeaders(c)
	c.Status(http.StatusOK)

	terminated := false
	for ev := range events {
		if terminated {
			continue
		}
		utils.SendSSEMessage(c, string(ev.Type), ev)
		terminated = ev.Terminal()
	}

	if !terminated && c.Request.Context().Err() == nil {
		slog.Error(ErrStreamInterrupt.Error())
		utils.SendSSEMessage(c, string(chat.EventError), &chat.Event{
			Type:  chat.EventError,
			Error: ErrStreamInterrupt.Error(),
		})
	}
	utils.SendSSESentinel(c)
}

func abortWithError(c *gin.Context, err error, fallback error) {
	status, public := statusFor(err, fallback)
	if status == http.StatusInternalServerError {
		slog.Error(fallback.Error(), "err", err)
	} else {
		slog.Info("Request rejected", "status", status, "err", err)
	}
	c.AbortWithStatusJSON(status, response.Response{
		Msg: public.Error(),
	})
}
