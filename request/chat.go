package request

type ChatRequest struct {
	// 为空时创建新会话
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
	Model          string `json:"model"`
}

type ConfirmRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	MessageID      uint   `json:"message_id" binding:"required"`
	ToolCallID     string `json:"tool_call_id" binding:"required"`
	Approved       *bool  `json:"approved" binding:"required"`
}
