package dao

import (
	"context"
	"errors"
	"time"

	"workspace-agent-backend/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrConversationNotFound = errors.New("conversation not found")

func CreateConversation(ctx context.Context, db *gorm.DB, userID, workspaceID, modelName string) (*model.Conversation, error) {
	now := time.Now()
	conversation := model.Conversation{
		ConversationID: uuid.New().String(),
		UserID:         userID,
		WorkspaceID:    workspaceID,
		Title:          model.DefaultConversationTitle,
		Model:          modelName,
		LastActivityAt: now,
	}
	if err := db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetConversation 按所属用户与工作区查询会话，不存在时返回 ErrConversationNotFound
func GetConversation(ctx context.Context, db *gorm.DB, userID, workspaceID, conversationID string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ? AND workspace_id = ?", conversationID, userID, workspaceID).
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

func GetConversationsByUser(ctx context.Context, db *gorm.DB, userID, workspaceID string) ([]model.Conversation, error) {
	var conversations []model.Conversation
	if err := db.WithContext(ctx).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		Order("last_activity_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

// TouchConversation 刷新会话活跃时间，并发写入时以最后一次为准
func TouchConversation(ctx context.Context, db *gorm.DB, conversationID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("conversation_id = ?", conversationID).
		Update("last_activity_at", at).Error
}

func UpdateConversationTitle(ctx context.Context, db *gorm.DB, userID, workspaceID, conversationID, title string) error {
	result := db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("conversation_id = ? AND user_id = ? AND workspace_id = ?", conversationID, userID, workspaceID).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ReplaceDefaultTitle 仅在标题仍为默认值时写入生成的标题
func ReplaceDefaultTitle(ctx context.Context, db *gorm.DB, conversationID, title string) (bool, error) {
	result := db.WithContext(ctx).
		Model(&model.Conversation{}).
		Where("conversation_id = ? AND title = ?", conversationID, model.DefaultConversationTitle).
		Update("title", title)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteConversation 删除会话及其消息与确认记录
func DeleteConversation(ctx context.Context, db *gorm.DB, userID, workspaceID, conversationID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("conversation_id = ? AND user_id = ? AND workspace_id = ?", conversationID, userID, workspaceID).
			Delete(&model.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}

		messageIDs := tx.Model(&model.Message{}).
			Select("id").
			Where("conversation_id = ?", conversationID)
		if err := tx.Where("message_id IN (?)", messageIDs).
			Delete(&model.PendingToolCall{}).Error; err != nil {
			return err
		}

		return tx.Where("conversation_id = ?", conversationID).
			Delete(&model.Message{}).Error
	})
}

// GetMessagesByConversationID 按创建顺序返回会话内全部消息及其确认记录
func GetMessagesByConversationID(ctx context.Context, db *gorm.DB, conversationID string) ([]model.Message, error) {
	var messages []model.Message
	if err := db.WithContext(ctx).
		Preload("PendingToolCalls", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}
