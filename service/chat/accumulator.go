package chat

import (
	"sort"
	"strings"

	"workspace-agent-backend/model"

	"github.com/google/uuid"
)

// toolCallSlot 按 index 累积的单个工具调用
type toolCallSlot struct {
	id        string
	name      string
	arguments strings.Builder
}

type toolCallAccumulator struct {
	slots map[int]*toolCallSlot
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{slots: make(map[int]*toolCallSlot)}
}

func (a *toolCallAccumulator) add(d ToolCallDelta) {
	slot, ok := a.slots[d.Index]
	if !ok {
		slot = &toolCallSlot{}
		a.slots[d.Index] = slot
	}
	if d.ID != "" && slot.id == "" {
		slot.id = d.ID
	}
	if d.Name != "" && slot.name == "" {
		slot.name = d.Name
	}
	slot.arguments.WriteString(d.Arguments)
}

func (a *toolCallAccumulator) empty() bool {
	return len(a.slots) == 0
}

// finalize 按 index 升序生成工具调用，缺失的 id 用生成的值补齐
func (a *toolCallAccumulator) finalize() []model.ToolCall {
	indexes := make([]int, 0, len(a.slots))
	for idx := range a.slots {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		slot := a.slots[idx]
		id := slot.id
		if id == "" {
			id = "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		calls = append(calls, model.ToolCall{
			ID:        id,
			Name:      slot.name,
			Arguments: slot.arguments.String(),
		})
	}
	return calls
}
