package tools

type searchRecordsArgs struct {
	Query  string `json:"query" jsonschema:"minLength=1" jsonschema_description:"Text to search for"`
	Entity string `json:"entity,omitempty" jsonschema:"enum=contact,enum=company,enum=deal,enum=task,enum=note"`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
}

type listRecordsArgs struct {
	Entity  string            `json:"entity" jsonschema:"enum=contact,enum=company,enum=deal,enum=task,enum=note"`
	Filters map[string]string `json:"filters,omitempty" jsonschema_description:"Exact attribute matches"`
	Limit   int               `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
}

type getRecordArgs struct {
	Entity string `json:"entity" jsonschema:"enum=contact,enum=company,enum=deal,enum=task,enum=note"`
	ID     string `json:"id" jsonschema:"minLength=1"`
}

type listTasksArgs struct {
	Status string `json:"status,omitempty" jsonschema:"enum=open,enum=done"`
	Limit  int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=100"`
}

type createRecordArgs struct {
	Entity     string         `json:"entity" jsonschema:"enum=contact,enum=company,enum=deal"`
	Attributes map[string]any `json:"attributes" jsonschema_description:"Attribute values of the new record"`
}

type updateRecordArgs struct {
	Entity     string         `json:"entity" jsonschema:"enum=contact,enum=company,enum=deal,enum=task,enum=note"`
	ID         string         `json:"id" jsonschema:"minLength=1"`
	Attributes map[string]any `json:"attributes" jsonschema_description:"Attribute values to overwrite"`
}

type deleteRecordArgs struct {
	Entity string `json:"entity" jsonschema:"enum=contact,enum=company,enum=deal,enum=task,enum=note"`
	ID     string `json:"id" jsonschema:"minLength=1"`
}

type createTaskArgs struct {
	Title    string `json:"title" jsonschema:"minLength=1"`
	DueDate  string `json:"due_date,omitempty" jsonschema:"format=date"`
	RecordID string `json:"record_id,omitempty" jsonschema_description:"Record the task relates to"`
}

type createNoteArgs struct {
	RecordID string `json:"record_id" jsonschema:"minLength=1"`
	Content  string `json:"content" jsonschema:"minLength=1"`
}
