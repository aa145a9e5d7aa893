package chat

import (
	"encoding/json"
	"errors"
	"testing"

	"workspace-agent-backend/model"
)

func TestEventJSON(t *testing.T) {
	id := uint(7)
	tests := []struct {
		name  string
		event *Event
		want  string
	}{
		{"token", tokenEvent("hi"), `{"content":"hi","type":"token"}`},
		{"executing", toolExecutingEvent("list_tasks", nil), `{"arguments":{},"tool_name":"list_tasks","type":"tool_executing"}`},
		{
			"pending",
			toolCallPendingEvent("conv", 7, model.ToolCall{ID: "c1", Name: "create_task"}, map[string]any{"title": "x"}),
			`{"arguments":{"title":"x"},"conversation_id":"conv","message_id":7,"tool_call_id":"c1","tool_name":"create_task","type":"tool_call_pending"}`,
		},
		{"done", doneEvent("conv", &id), `{"conversation_id":"conv","message_id":7,"type":"done"}`},
		{"done without message", doneEvent("conv", nil), `{"conversation_id":"conv","message_id":null,"type":"done"}`},
		{"error", errorEvent(errors.New("boom")), `{"error":"boom","type":"error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.want {
				t.Errorf("json = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestEventTerminal(t *testing.T) {
	terminal := map[EventType]bool{
		EventToken:           false,
		EventToolExecuting:   false,
		EventToolCallPending: true,
		EventDone:            true,
		EventError:           true,
	}
	for typ, want := range terminal {
		if got := (&Event{Type: typ}).Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", typ, got, want)
		}
	}
}
