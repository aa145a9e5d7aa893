package controller

import (
	"log/slog"
	"net/http"

	"workspace-agent-backend/config"
	"workspace-agent-backend/dao"
	"workspace-agent-backend/middleware"
	"workspace-agent-backend/request"
	"workspace-agent-backend/response"

	"github.com/gin-gonic/gin"
)

func CreateConversation(c *gin.Context) {
	var req request.CreateConversationRequest
	// 请求体可为空
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			slog.Error(ErrParseRequest.Error(), "err", err)
			c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
				Msg: ErrParseRequest.Error(),
			})
			return
		}
	}
	if req.Model == "" {
		req.Model = config.Cfg.Model.DefaultModel
	}

	conversation, err := dao.CreateConversation(c.Request.Context(), dao.DB,
		c.GetString(middleware.KeyUserID), c.GetString(middleware.KeyWorkspaceID), req.Model)
	if err != nil {
		slog.Error(ErrCreateConversation.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrCreateConversation.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, response.Response{
		Data: response.NewConversationResponse(conversation),
	})
}

func GetConversations(c *gin.Context) {
	conversations, err := dao.GetConversationsByUser(c.Request.Context(), dao.DB,
		c.GetString(middleware.KeyUserID), c.GetString(middleware.KeyWorkspaceID))
	if err != nil {
		slog.Error(ErrGetConversations.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetConversations.Error(),
		})
		return
	}

	resp := response.GetConversationsResponse{
		Conversations: make([]response.ConversationResponse, 0, len(conversations)),
	}
	for i := range conversations {
		resp.Conversations = append(resp.Conversations, response.NewConversationResponse(&conversations[i]))
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func DeleteConversation(c *gin.Context) {
	err := dao.DeleteConversation(c.Request.Context(), dao.DB,
		c.GetString(middleware.KeyUserID), c.GetString(middleware.KeyWorkspaceID), c.Param("id"))
	if err != nil {
		abortWithError(c, err, ErrDeleteConversation)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}

func GetConversationMessages(c *gin.Context) {
	ctx := c.Request.Context()
	conversation, err := dao.GetConversation(ctx, dao.DB,
		c.GetString(middleware.KeyUserID), c.GetString(middleware.KeyWorkspaceID), c.Param("id"))
	if err != nil {
		abortWithError(c, err, ErrGetConversationMessages)
		return
	}

	messages, err := dao.GetMessagesByConversationID(ctx, dao.DB, conversation.ConversationID)
	if err != nil {
		slog.Error(ErrGetConversationMessages.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Msg: ErrGetConversationMessages.Error(),
		})
		return
	}

	resp := response.GetMessagesResponse{
		Messages: make([]response.MessageResponse, 0, len(messages)),
	}
	for i := range messages {
		resp.Messages = append(resp.Messages, response.NewMessageResponse(&messages[i]))
	}

	c.JSON(http.StatusOK, response.Response{
		Data: resp,
	})
}

func UpdateConversationTitle(c *gin.Context) {
	var req request.UpdateConversationTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Error(ErrParseRequest.Error(), "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Response{
			Msg: ErrParseRequest.Error(),
		})
		return
	}

	err := dao.UpdateConversationTitle(c.Request.Context(), dao.DB,
		c.GetString(middleware.KeyUserID), c.GetString(middleware.KeyWorkspaceID), c.Param("id"), req.Title)
	if err != nil {
		abortWithError(c, err, ErrUpdateConversationTitle)
		return
	}

	c.JSON(http.StatusOK, response.Response{})
}
