package model

import (
	"time"

	"gorm.io/datatypes"
)

const DefaultConversationTitle = "New conversation"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationApproved ConfirmationStatus = "approved"
	ConfirmationRejected ConfirmationStatus = "rejected"
)

// Conversation 建立联合索引 (workspace_id, user_id)
type Conversation struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ConversationID string    `gorm:"size:64;not null;uniqueIndex" json:"conversation_id"`
	UserID         string    `gorm:"size:128;not null;index:idx_workspace_user" json:"user_id"`
	WorkspaceID    string    `gorm:"size:128;not null;index:idx_workspace_user" json:"workspace_id"`
	Title          string    `json:"title"`
	Model          string    `gorm:"size:128" json:"model"`
	LastActivityAt time.Time `gorm:"index" json:"last_activity_at"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// ToolCall 上游模型发起的一次工具调用，ID 必须原样保留
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message 建立联合索引 (conversation_id, created_at)
// 写入后不可修改，唯一例外是 PendingToolCalls 的状态
type Message struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `gorm:"index:idx_conversation_created" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	ConversationID string    `gorm:"size:64;not null;index:idx_conversation_created" json:"conversation_id"`
	Role           Role      `gorm:"size:16;not null" json:"role"`

	// 仅包含工具调用的 assistant 消息内容为 NULL
	Content *string `gorm:"type:text" json:"content"`

	ToolCalls datatypes.JSONSlice[ToolCall] `gorm:"type:json" json:"tool_calls,omitempty"`

	// 仅 tool 消息使用
	ToolCallID string `gorm:"size:128" json:"tool_call_id,omitempty"`
	ToolName   string `gorm:"size:128" json:"tool_name,omitempty"`

	PendingToolCalls []PendingToolCall `gorm:"foreignKey:MessageID" json:"pending_tool_calls,omitempty"`
}

func (Message) TableName() string {
	return "conversation_message"
}

// Text 返回消息内容，NULL 视为空串
func (m *Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// PendingToolCall 等待人工确认的工具调用，按 Position 保持模型发出的顺序
type PendingToolCall struct {
	ID         uint               `gorm:"primarykey" json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
	MessageID  uint               `gorm:"not null;uniqueIndex:idx_message_tool_call" json:"message_id"`
	ToolCallID string             `gorm:"size:128;not null;uniqueIndex:idx_message_tool_call" json:"tool_call_id"`
	ToolName   string             `gorm:"size:128;not null" json:"tool_name"`
	Arguments  string             `gorm:"type:text" json:"arguments"`
	Position   int                `gorm:"not null" json:"position"`
	Status     ConfirmationStatus `gorm:"size:16;not null;default:pending;index" json:"status"`
}

func (PendingToolCall) TableName() string {
	return "pending_tool_call"
}
