package chat

import (
	"context"

	"workspace-agent-backend/model"
	"workspace-agent-backend/service/tools"
)

const (
	awaitingConfirmationResult = `{"status":"awaiting_confirmation","message":"This action is waiting for the user's approval."}`
	interruptedResult          = `{"error":"The tool call was interrupted before it produced a result."}`
)

// TranscriptMessage 发送给上游模型的一条消息
type TranscriptMessage struct {
	Role       model.Role
	Content    *string
	ToolCalls  []model.ToolCall
	ToolCallID string
	ToolName   string
}

// TranscriptBuilder 从消息存储重建上游请求的消息序列
type TranscriptBuilder struct {
	Store        *MessageStore
	Prompt       *SystemPrompt
	HistoryLimit int
}

// Build 返回系统提示词加按创建顺序排列的历史消息，不修改存储
func (b *TranscriptBuilder) Build(ctx context.Context, conversationID string, scope tools.Scope) ([]TranscriptMessage, error) {
	messages, err := b.Store.Messages(ctx, conversationID, b.HistoryLimit)
	if err != nil {
		return nil, err
	}

	system, err := b.Prompt.Render(scope)
	if err != nil {
		return nil, err
	}

	transcript := make([]TranscriptMessage, 0, len(messages)+1)
	transcript = append(transcript, TranscriptMessage{
		Role:    model.RoleSystem,
		Content: &system,
	})
	return append(transcript, projectHistory(messages)...), nil
}

// projectHistory 保证每个工具调用都紧跟对应的结果
// 缺少结果的调用补一条占位结果，没有对应调用的结果被丢弃
func projectHistory(messages []model.Message) []TranscriptMessage {
	// 历史截断后可能以 tool 消息开头
	start := 0
	for start < len(messages) && messages[start].Role == model.RoleTool {
		start++
	}

	var (
		out     []TranscriptMessage
		open    []model.ToolCall
		waiting map[string]bool
	)

	closeOpen := func() {
		for _, call := range open {
			result := interruptedResult
			if waiting[call.ID] {
				result = awaitingConfirmationResult
			}
			out = append(out, toolResultMessage(call, result))
		}
		open = nil
		waiting = nil
	}

	for _, msg := range messages[start:] {
		switch msg.Role {
		case model.RoleTool:
			idx := indexOfCall(open, msg.ToolCallID)
			if idx < 0 {
				continue
			}
			open = append(open[:idx], open[idx+1:]...)
			out = append(out, TranscriptMessage{
				Role:       model.RoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
				ToolName:   msg.ToolName,
			})

		case model.RoleAssistant:
			closeOpen()
			out = append(out, TranscriptMessage{
				Role:      model.RoleAssistant,
				Content:   msg.Content,
				ToolCalls: msg.ToolCalls,
			})
			if len(msg.ToolCalls) > 0 {
				open = append([]model.ToolCall(nil), msg.ToolCalls...)
				waiting = make(map[string]bool)
				for _, p := range msg.PendingToolCalls {
					if p.Status == model.ConfirmationPending {
						waiting[p.ToolCallID] = true
					}
				}
			}

		default:
			closeOpen()
			out = append(out, TranscriptMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}
	closeOpen()

	return out
}

func indexOfCall(calls []model.ToolCall, id string) int {
	for i, call := range calls {
		if call.ID == id {
			return i
		}
	}
	return -1
}

func toolResultMessage(call model.ToolCall, result string) TranscriptMessage {
	return TranscriptMessage{
		Role:       model.RoleTool,
		Content:    &result,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}
