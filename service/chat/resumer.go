package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"workspace-agent-backend/dao"
	"workspace-agent-backend/model"
	"workspace-agent-backend/service/tools"
)

const rejectionMessage = "User rejected this action"

// ConfirmationAudit 一次确认处理的审计记录
type ConfirmationAudit struct {
	ConversationID string                   `json:"conversation_id"`
	MessageID      uint                     `json:"message_id"`
	ToolCallID     string                   `json:"tool_call_id"`
	ToolName       string                   `json:"tool_name"`
	Decision       model.ConfirmationStatus `json:"decision"`
	UserID         string                   `json:"user_id"`
	WorkspaceID    string                   `json:"workspace_id"`
	ResolvedAt     time.Time                `json:"resolved_at"`
}

// Auditor 接收确认结果，实现方不得阻塞对话流程
type Auditor interface {
	ConfirmationResolved(ctx context.Context, audit ConfirmationAudit)
}

type ConfirmRequest struct {
	ConversationID string
	MessageID      uint
	ToolCallID     string
	Approved       bool
	UserID         string
	WorkspaceID    string
}

// Resume 处理一次人工确认并继续被暂停的对话
// 校验和认领同步完成，失败时不会执行任何工具
func (o *Orchestrator) Resume(ctx context.Context, req ConfirmRequest) (<-chan *Event, error) {
	conversation, err := dao.GetConversation(ctx, o.DB, req.UserID, req.WorkspaceID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	msg, err := o.Store.GetAssistantMessage(ctx, conversation.ConversationID, req.MessageID)
	if err != nil {
		return nil, err
	}

	entry, err := resolvableEntry(msg.PendingToolCalls, req.ToolCallID)
	if err != nil {
		return nil, err
	}

	status := model.ConfirmationRejected
	if req.Approved {
		status = model.ConfirmationApproved
	}
	claimed, err := o.Store.ClaimToolCall(ctx, msg.ID, entry.ToolCallID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to claim confirmation: %w", err)
	}
	if !claimed {
		return nil, ErrConfirmationResolved
	}

	slog.Info("Tool call confirmation resolved",
		"conversation_id", conversation.ConversationID,
		"message_id", msg.ID,
		"tool_call_id", entry.ToolCallID,
		"tool", entry.ToolName,
		"decision", status)

	events := make(chan *Event, eventBufferSize)
	t := o.newTurn(ctx, conversation, req.UserID, req.WorkspaceID, "", events)
	go o.run(t, func(t *turn) (bool, error) {
		if err := o.resolve(t, msg, entry, status); err != nil {
			return false, err
		}
		return o.continueBatch(t, msg)
	})

	return events, nil
}

// resolvableEntry 找到待确认记录，只接受批次中最早的 pending 记录
func resolvableEntry(rows []model.PendingToolCall, toolCallID string) (model.PendingToolCall, error) {
	var earliest *model.PendingToolCall
	for i := range rows {
		if rows[i].Status == model.ConfirmationPending && earliest == nil {
			earliest = &rows[i]
		}
		if rows[i].ToolCallID != toolCallID {
			continue
		}
		if rows[i].Status != model.ConfirmationPending {
			return model.PendingToolCall{}, ErrConfirmationResolved
		}
		if earliest.ToolCallID != toolCallID {
			return model.PendingToolCall{}, ErrConfirmationOutOfOrder
		}
		return rows[i], nil
	}
	return model.PendingToolCall{}, ErrConfirmationNotFound
}

// resolve 执行被批准的调用或写入拒绝结果
// 结果写入失败时恢复记录为 pending
func (o *Orchestrator) resolve(t *turn, msg *model.Message, entry model.PendingToolCall, status model.ConfirmationStatus) error {
	call := model.ToolCall{
		ID:        entry.ToolCallID,
		Name:      entry.ToolName,
		Arguments: entry.Arguments,
	}

	var result string
	if status == model.ConfirmationApproved {
		def, ok := tools.Lookup(call.Name)
		if !ok {
			result = unknownToolResult(call.Name)
		} else {
			args := tools.ParseArguments(call.Arguments)
			t.emit(toolExecutingEvent(call.Name, args))
			result = o.invoke(t, def, call, args)
		}
	} else {
		result = rejectionResult()
		o.Metrics.ObserveTool(call.Name, outcomeRejected)
	}

	if _, err := o.Store.AppendToolMessage(t.ctx, t.conversation.ConversationID, call, result); err != nil {
		if releaseErr := o.Store.ReleaseToolCall(context.WithoutCancel(t.ctx), msg.ID, call.ID); releaseErr != nil {
			slog.Error("Failed to release confirmation",
				"message_id", msg.ID,
				"tool_call_id", call.ID,
				"err", releaseErr)
		}
		return fmt.Errorf("failed to save tool result: %w", err)
	}

	o.Metrics.ObserveConfirmation(call.Name, string(status))
	if o.Auditor != nil {
		o.Auditor.ConfirmationResolved(t.ctx, ConfirmationAudit{
			ConversationID: t.conversation.ConversationID,
			MessageID:      msg.ID,
			ToolCallID:     call.ID,
			ToolName:       call.Name,
			Decision:       status,
			UserID:         t.scope.UserID,
			WorkspaceID:    t.scope.WorkspaceID,
			ResolvedAt:     time.Now(),
		})
	}
	return nil
}

// continueBatch 按发出顺序处理批次中剩余的 pending 记录
// 遇到下一个需要确认的调用时再次暂停
func (o *Orchestrator) continueBatch(t *turn, msg *model.Message) (bool, error) {
	rows, err := o.Store.UnresolvedToolCalls(t.ctx, msg.ID)
	if err != nil {
		return false, fmt.Errorf("failed to load pending confirmations: %w", err)
	}

	for _, row := range rows {
		call := model.ToolCall{ID: row.ToolCallID, Name: row.ToolName, Arguments: row.Arguments}
		def, ok := tools.Lookup(row.ToolName)

		if ok && def.RequiresConfirmation {
			t.emit(toolCallPendingEvent(t.conversation.ConversationID, msg.ID, call, tools.ParseArguments(call.Arguments)))
			return true, nil
		}

		status := model.ConfirmationApproved
		if !ok {
			status = model.ConfirmationRejected
		}
		claimed, err := o.Store.ClaimToolCall(t.ctx, msg.ID, row.ToolCallID, status)
		if err != nil {
			return false, fmt.Errorf("failed to claim confirmation: %w", err)
		}
		if !claimed {
			continue
		}

		if !ok {
			err = o.saveUnknownToolResult(t, call)
		} else {
			err = o.executeAuto(t, def, call)
		}
		if err != nil {
			return false, err
		}
	}
	return false, nil
}

func rejectionResult() string {
	data, _ := json.Marshal(map[string]any{
		"rejected": true,
		"message":  rejectionMessage,
	})
	return string(data)
}
