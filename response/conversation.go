package response

import (
	"time"

	"workspace-agent-backend/model"
)

type ConversationResponse struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type GetConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

type ToolCallResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type PendingToolCallResponse struct {
	ToolCallID string                   `json:"tool_call_id"`
	ToolName   string                   `json:"tool_name"`
	Arguments  string                   `json:"arguments"`
	Status     model.ConfirmationStatus `json:"status"`
}

type MessageResponse struct {
	ID               uint                      `json:"id"`
	CreatedAt        time.Time                 `json:"created_at"`
	Role             model.Role                `json:"role"`
	Content          *string                   `json:"content"`
	ToolCalls        []ToolCallResponse        `json:"tool_calls,omitempty"`
	ToolCallID       string                    `json:"tool_call_id,omitempty"`
	ToolName         string                    `json:"tool_name,omitempty"`
	PendingToolCalls []PendingToolCallResponse `json:"pending_tool_calls,omitempty"`
}

type GetMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func NewConversationResponse(c *model.Conversation) ConversationResponse {
	return ConversationResponse{
		ConversationID: c.ConversationID,
		Title:          c.Title,
		Model:          c.Model,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}
}

func NewMessageResponse(m *model.Message) MessageResponse {
	resp := MessageResponse{
		ID:         m.ID,
		CreatedAt:  m.CreatedAt,
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
	}
	for _, call := range m.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCallResponse(call))
	}
	for _, p := range m.PendingToolCalls {
		resp.PendingToolCalls = append(resp.PendingToolCalls, PendingToolCallResponse{
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Arguments:  p.Arguments,
			Status:     p.Status,
		})
	}
	return resp
}
