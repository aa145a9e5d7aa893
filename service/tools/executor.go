package tools

import (
	"context"
	"fmt"

	"workspace-agent-backend/model"
)

const defaultLimit = 20

// Executor 将工具调用分发到记录存储
type Executor struct {
	Records RecordStore
}

func NewExecutor(records RecordStore) *Executor {
	return &Executor{Records: records}
}

// Execute 执行工具，返回可序列化为 JSON 的结果
func (e *Executor) Execute(ctx context.Context, def Definition, args map[string]any, scope Scope) (any, error) {
	if scope.WorkspaceID == "" || scope.UserID == "" {
		return nil, ErrMissingScope
	}
	if args == nil {
		args = map[string]any{}
	}

	switch def.ID {
	case SearchRecords:
		var a searchRecordsArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		records, err := e.Records.Search(ctx, scope, a.Entity, a.Query, limitOrDefault(a.Limit))
		if err != nil {
			return nil, err
		}
		return recordList(records), nil

	case ListRecords:
		var a listRecordsArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		records, err := e.Records.List(ctx, scope, a.Entity, a.Filters, limitOrDefault(a.Limit))
		if err != nil {
			return nil, err
		}
		return recordList(records), nil

	case GetRecord:
		var a getRecordArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		return e.Records.Get(ctx, scope, a.Entity, a.ID)

	case ListTasks:
		var a listTasksArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		var filters map[string]string
		if a.Status != "" {
			filters = map[string]string{"status": a.Status}
		}
		records, err := e.Records.List(ctx, scope, model.EntityTask, filters, limitOrDefault(a.Limit))
		if err != nil {
			return nil, err
		}
		return recordList(records), nil

	case CreateRecord:
		var a createRecordArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		return e.Records.Create(ctx, scope, a.Entity, a.Attributes)

	case UpdateRecord:
		var a updateRecordArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		return e.Records.Update(ctx, scope, a.Entity, a.ID, a.Attributes)

	case DeleteRecord:
		var a deleteRecordArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		if err := e.Records.Delete(ctx, scope, a.Entity, a.ID); err != nil {
			return nil, err
		}
		return map[string]any{"deleted": true, "id": a.ID}, nil

	case CreateTask:
		var a createTaskArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		attributes := map[string]any{
			"title":  a.Title,
			"status": "open",
		}
		if a.DueDate != "" {
			attributes["due_date"] = a.DueDate
		}
		if a.RecordID != "" {
			attributes["record_id"] = a.RecordID
		}
		return e.Records.Create(ctx, scope, model.EntityTask, attributes)

	case CreateNote:
		var a createNoteArgs
		if err := def.schema.decode(args, &a); err != nil {
			return nil, err
		}
		return e.Records.Create(ctx, scope, model.EntityNote, map[string]any{
			"record_id": a.RecordID,
			"content":   a.Content,
		})
	}

	return nil, fmt.Errorf("tool %s has no executor", def.Name)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func recordList(records []model.Record) map[string]any {
	if records == nil {
		records = []model.Record{}
	}
	return map[string]any{
		"records": records,
		"count":   len(records),
	}
}
