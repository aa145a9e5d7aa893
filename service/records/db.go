package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"workspace-agent-backend/model"
	"workspace-agent-backend/service/tools"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DBStore 基于 gorm 的记录存储，所有查询都按工作区隔离
type DBStore struct {
	DB *gorm.DB
}

var _ tools.RecordStore = &DBStore{}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{DB: db}
}

func (s *DBStore) Search(ctx context.Context, scope tools.Scope, entity, query string, limit int) ([]model.Record, error) {
	q := s.DB.WithContext(ctx).
		Where("workspace_id = ?", scope.WorkspaceID).
		Where("search_text LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(query))+"%")
	if entity != "" {
		q = q.Where("entity = ?", entity)
	}

	var records []model.Record
	if err := q.Order("updated_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// List 属性过滤在内存中完成，仅支持字符串值的精确匹配
func (s *DBStore) List(ctx context.Context, scope tools.Scope, entity string, filters map[string]string, limit int) ([]model.Record, error) {
	var records []model.Record
	if err := s.DB.WithContext(ctx).
		Where("workspace_id = ? AND entity = ?", scope.WorkspaceID, entity).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	matched := make([]model.Record, 0, len(records))
	for _, r := range records {
		if !matchFilters(r.Attributes, filters) {
			continue
		}
		matched = append(matched, r)
		if limit > 0 && len(matched) >= limit {
			break
		}
	}
	return matched, nil
}

func (s *DBStore) Get(ctx context.Context, scope tools.Scope, entity, id string) (*model.Record, error) {
	var record model.Record
	err := s.DB.WithContext(ctx).
		Where("workspace_id = ? AND entity = ? AND record_id = ?", scope.WorkspaceID, entity, id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s %s", tools.ErrRecordNotFound, entity, id)
		}
		return nil, err
	}
	return &record, nil
}

func (s *DBStore) Create(ctx context.Context, scope tools.Scope, entity string, attributes map[string]any) (*model.Record, error) {
	record := model.Record{
		RecordID:    uuid.New().String(),
		WorkspaceID: scope.WorkspaceID,
		Entity:      entity,
		Attributes:  datatypes.JSONMap(attributes),
		SearchText:  searchText(attributes),
		CreatedBy:   scope.UserID,
	}
	if record.Attributes == nil {
		record.Attributes = datatypes.JSONMap{}
	}
	if err := s.DB.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// Update 合并属性后整体写回
func (s *DBStore) Update(ctx context.Context, scope tools.Scope, entity, id string, attributes map[string]any) (*model.Record, error) {
	record, err := s.Get(ctx, scope, entity, id)
	if err != nil {
		return nil, err
	}

	merged := datatypes.JSONMap{}
	for k, v := range record.Attributes {
		merged[k] = v
	}
	for k, v := range attributes {
		merged[k] = v
	}

	if err := s.DB.WithContext(ctx).
		Model(record).
		Updates(map[string]any{
			"attributes":  merged,
			"search_text": searchText(merged),
		}).Error; err != nil {
		return nil, err
	}
	record.Attributes = merged
	return record, nil
}

func (s *DBStore) Delete(ctx context.Context, scope tools.Scope, entity, id string) error {
	result := s.DB.WithContext(ctx).
		Where("workspace_id = ? AND entity = ? AND record_id = ?", scope.WorkspaceID, entity, id).
		Delete(&model.Record{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %s", tools.ErrRecordNotFound, entity, id)
	}
	return nil
}

func matchFilters(attributes map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		got, ok := attributes[k].(string)
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}
	return true
}

// searchText 按键排序拼接字符串属性，保证结果稳定
func searchText(attributes map[string]any) string {
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		if v, ok := attributes[k].(string); ok {
			b.WriteString(strings.ToLower(v))
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)
	return r.Replace(s)
}
