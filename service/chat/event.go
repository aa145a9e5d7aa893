package chat

import (
	"encoding/json"

	"workspace-agent-backend/model"
)

type EventType string

const (
	EventToken           EventType = "token"
	EventToolExecuting   EventType = "tool_executing"
	EventToolCallPending EventType = "tool_call_pending"
	EventDone            EventType = "done"
	EventError           EventType = "error"
)

// Event 对话引擎向调用方输出的事件
// 每个事件流以 done、tool_call_pending 或 error 之一结束
type Event struct {
	Type           EventType
	ConversationID string
	Content        string
	MessageID      *uint
	ToolCallID     string
	ToolName       string
	Arguments      map[string]any
	Error          string
}

// Terminal 判断事件是否为流的最后一个事件
func (e *Event) Terminal() bool {
	switch e.Type {
	case EventDone, EventToolCallPending, EventError:
		return true
	}
	return false
}

func (e Event) MarshalJSON() ([]byte, error) {
	payload := map[string]any{"type": e.Type}
	switch e.Type {
	case EventToken:
		payload["content"] = e.Content
	case EventToolExecuting:
		payload["tool_name"] = e.ToolName
		payload["arguments"] = argumentsOrEmpty(e.Arguments)
	case EventToolCallPending:
		payload["conversation_id"] = e.ConversationID
		payload["message_id"] = e.MessageID
		payload["tool_call_id"] = e.ToolCallID
		payload["tool_name"] = e.ToolName
		payload["arguments"] = argumentsOrEmpty(e.Arguments)
	case EventDone:
		// 没有生成内容时 message_id 为 null
		payload["conversation_id"] = e.ConversationID
		payload["message_id"] = e.MessageID
	case EventError:
		payload["error"] = e.Error
	}
	return json.Marshal(payload)
}

func argumentsOrEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}

func tokenEvent(content string) *Event {
	return &Event{Type: EventToken, Content: content}
}

func toolExecutingEvent(name string, args map[string]any) *Event {
	return &Event{Type: EventToolExecuting, ToolName: name, Arguments: args}
}

func toolCallPendingEvent(conversationID string, messageID uint, call model.ToolCall, args map[string]any) *Event {
	return &Event{
		Type:           EventToolCallPending,
		ConversationID: conversationID,
		MessageID:      &messageID,
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Arguments:      args,
	}
}

func doneEvent(conversationID string, messageID *uint) *Event {
	return &Event{Type: EventDone, ConversationID: conversationID, MessageID: messageID}
}

func errorEvent(err error) *Event {
	return &Event{Type: EventError, Error: err.Error()}
}
