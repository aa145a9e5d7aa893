package chat

import (
	"context"
	"errors"
	"slices"

	"workspace-agent-backend/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageStore 会话消息的持久化日志，只追加写入
// 唯一的修改操作是确认记录的状态变更，且每次只更新一行
type MessageStore struct {
	DB *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{DB: db}
}

func (s *MessageStore) AppendUserMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	return s.append(ctx, &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleUser,
		Content:        &content,
	})
}

// AppendAssistantMessage 内容为空时写入 NULL
func (s *MessageStore) AppendAssistantMessage(ctx context.Context, conversationID, content string, toolCalls []model.ToolCall) (*model.Message, error) {
	msg := &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
	}
	if content != "" {
		msg.Content = &content
	}
	if len(toolCalls) > 0 {
		msg.ToolCalls = datatypes.JSONSlice[model.ToolCall](toolCalls)
	}
	return s.append(ctx, msg)
}

func (s *MessageStore) AppendToolMessage(ctx context.Context, conversationID string, call model.ToolCall, result string) (*model.Message, error) {
	return s.append(ctx, &model.Message{
		ConversationID: conversationID,
		Role:           model.RoleTool,
		Content:        &result,
		ToolCallID:     call.ID,
		ToolName:       call.Name,
	})
}

func (s *MessageStore) append(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages 返回最近 limit 条消息，按创建顺序排列
func (s *MessageStore) Messages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	q := s.DB.WithContext(ctx).
		Preload("PendingToolCalls", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func (s *MessageStore) CountUserMessages(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&model.Message{}).
		Where("conversation_id = ? AND role = ?", conversationID, model.RoleUser).
		Count(&count).Error
	return count, err
}

// GetAssistantMessage 查询会话内的 assistant 消息及其确认记录
func (s *MessageStore) GetAssistantMessage(ctx context.Context, conversationID string, messageID uint) (*model.Message, error) {
	var msg model.Message
	err := s.DB.WithContext(ctx).
		Preload("PendingToolCalls", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ? AND conversation_id = ? AND role = ?", messageID, conversationID, model.RoleAssistant).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// SetPendingToolCalls 为暂停的批次写入确认记录
func (s *MessageStore) SetPendingToolCalls(ctx context.Context, rows []model.PendingToolCall) error {
	if len(rows) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Create(&rows).Error
}

// UnresolvedToolCalls 返回消息中仍待确认的记录，按发出顺序排列
func (s *MessageStore) UnresolvedToolCalls(ctx context.Context, messageID uint) ([]model.PendingToolCall, error) {
	var rows []model.PendingToolCall
	if err := s.DB.WithContext(ctx).
		Where("message_id = ? AND status = ?", messageID, model.ConfirmationPending).
		Order("position ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ClaimToolCall 将一条 pending 记录改为 status，返回 false 表示已被其他请求处理
func (s *MessageStore) ClaimToolCall(ctx context.Context, messageID uint, toolCallID string, status model.ConfirmationStatus) (bool, error) {
	result := s.DB.WithContext(ctx).
		Model(&model.PendingToolCall{}).
		Where("message_id = ? AND tool_call_id = ? AND status = ?", messageID, toolCallID, model.ConfirmationPending).
		Update("status", status)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// HasUnresolvedToolCalls 判断会话中是否存在待确认的工具调用
func (s *MessageStore) HasUnresolvedToolCalls(ctx context.Context, conversationID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&model.PendingToolCall{}).
		Joins("JOIN conversation_message ON conversation_message.id = pending_tool_call.message_id").
		Where("conversation_message.conversation_id = ? AND pending_tool_call.status = ?", conversationID, model.ConfirmationPending).
		Count(&count).Error
	return count > 0, err
}

// ReleaseToolCall 将已处理的记录恢复为 pending，用于结果写入失败的情况
func (s *MessageStore) ReleaseToolCall(ctx context.Context, messageID uint, toolCallID string) error {
	return s.DB.WithContext(ctx).
		Model(&model.PendingToolCall{}).
		Where("message_id = ? AND tool_call_id = ? AND status <> ?", messageID, toolCallID, model.ConfirmationPending).
		Update("status", model.ConfirmationPending).Error
}
