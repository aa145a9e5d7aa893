package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EntityTask = "task"
	EntityNote = "note"
)

// Record 工作区内的业务记录，建立联合索引 (workspace_id, entity)
type Record struct {
	ID          uint              `gorm:"primarykey" json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	DeletedAt   gorm.DeletedAt    `gorm:"index" json:"-"`
	RecordID    string            `gorm:"size:64;not null;uniqueIndex" json:"id"`
	WorkspaceID string            `gorm:"size:128;not null;index:idx_workspace_entity" json:"-"`
	Entity      string            `gorm:"size:64;not null;index:idx_workspace_entity" json:"entity"`
	Attributes  datatypes.JSONMap `gorm:"type:json" json:"attributes"`

	// 属性中字符串值的小写拼接，用于模糊搜索
	SearchText string `gorm:"type:text" json:"-"`
	CreatedBy  string `gorm:"size:128" json:"created_by"`
}

func (Record) TableName() string {
	return "record"
}
