package tools

import (
	"context"
	"encoding/json"
	"errors"

	"workspace-agent-backend/model"
)

// ID 工具标识，工具集合固定
type ID int

const (
	SearchRecords ID = iota + 1
	ListRecords
	GetRecord
	ListTasks
	CreateRecord
	UpdateRecord
	DeleteRecord
	CreateTask
	CreateNote
)

var (
	ErrRecordNotFound   = errors.New("record not found")
	ErrInvalidArguments = errors.New("invalid tool arguments")
	ErrMissingScope     = errors.New("workspace scope is required")
)

// Scope 工具执行上下文，所有存储调用都必须携带
type Scope struct {
	WorkspaceID string
	UserID      string
}

// RecordStore 业务记录存储引擎
type RecordStore interface {
	Search(ctx context.Context, scope Scope, entity, query string, limit int) ([]model.Record, error)
	List(ctx context.Context, scope Scope, entity string, filters map[string]string, limit int) ([]model.Record, error)
	Get(ctx context.Context, scope Scope, entity, id string) (*model.Record, error)
	Create(ctx context.Context, scope Scope, entity string, attributes map[string]any) (*model.Record, error)
	Update(ctx context.Context, scope Scope, entity, id string, attributes map[string]any) (*model.Record, error)
	Delete(ctx context.Context, scope Scope, entity, id string) error
}

type Definition struct {
	ID          ID
	Name        string
	Description string

	// 需要人工确认后才能执行
	RequiresConfirmation bool

	schema *argSchema
}

// Parameters 返回参数的 JSON Schema
func (d Definition) Parameters() json.RawMessage {
	return d.schema.raw
}

var registry = []Definition{
	{
		ID:          SearchRecords,
		Name:        "search_records",
		Description: "Search workspace records by free text. Optionally restrict to one entity type.",
		schema:      mustSchema("search_records", &searchRecordsArgs{}),
	},
	{
		ID:          ListRecords,
		Name:        "list_records",
		Description: "List records of one entity type, optionally filtered by exact attribute values.",
		schema:      mustSchema("list_records", &listRecordsArgs{}),
	},
	{
		ID:          GetRecord,
		Name:        "get_record",
		Description: "Fetch a single record by id.",
		schema:      mustSchema("get_record", &getRecordArgs{}),
	},
	{
		ID:          ListTasks,
		Name:        "list_tasks",
		Description: "List tasks in the workspace, optionally filtered by status.",
		schema:      mustSchema("list_tasks", &listTasksArgs{}),
	},
	{
		ID:                   CreateRecord,
		Name:                 "create_record",
		Description:          "Create a record. Requires user confirmation.",
		RequiresConfirmation: true,
		schema:               mustSchema("create_record", &createRecordArgs{}),
	},
	{
		ID:                   UpdateRecord,
		Name:                 "update_record",
		Description:          "Update attributes of an existing record. Requires user confirmation.",
		RequiresConfirmation: true,
		schema:               mustSchema("update_record", &updateRecordArgs{}),
	},
	{
		ID:                   DeleteRecord,
		Name:                 "delete_record",
		Description:          "Delete a record. Requires user confirmation.",
		RequiresConfirmation: true,
		schema:               mustSchema("delete_record", &deleteRecordArgs{}),
	},
	{
		ID:                   CreateTask,
		Name:                 "create_task",
		Description:          "Create a task, optionally linked to a record. Requires user confirmation.",
		RequiresConfirmation: true,
		schema:               mustSchema("create_task", &createTaskArgs{}),
	},
	{
		ID:                   CreateNote,
		Name:                 "create_note",
		Description:          "Attach a note to a record. Requires user confirmation.",
		RequiresConfirmation: true,
		schema:               mustSchema("create_note", &createNoteArgs{}),
	},
}

var byName = func() map[string]Definition {
	m := make(map[string]Definition, len(registry))
	for _, def := range registry {
		m[def.Name] = def
	}
	return m
}()

// Lookup 按名称查找工具定义，模型可能给出不存在的名称
func Lookup(name string) (Definition, bool) {
	def, ok := byName[name]
	return def, ok
}

// Definitions 返回全部工具定义，顺序固定
func Definitions() []Definition {
	defs := make([]Definition, len(registry))
	copy(defs, registry)
	return defs
}

// ParseArguments 解析模型给出的参数字符串，解析失败或非对象时返回空对象
func ParseArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
