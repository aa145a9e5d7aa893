package dao

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"workspace-agent-backend/model"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm open: %v", err)
	}
	return db, mock
}

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "dao.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestGetConversationNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT \\* FROM `conversation` WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id"}))

	_, err := GetConversation(context.Background(), db, "u-1", "ws-1", "missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetConversationDBError(t *testing.T) {
	db, mock := newMockDB(t)
	boom := errors.New("connection reset")

	mock.ExpectQuery("SELECT \\* FROM `conversation` WHERE").WillReturnError(boom)

	_, err := GetConversation(context.Background(), db, "u-1", "ws-1", "c")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want driver error", err)
	}
}

func TestUpdateConversationTitleNotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE `conversation` SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := UpdateConversationTitle(context.Background(), db, "u-1", "ws-1", "missing", "t")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteConversationNotFoundRollsBack(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `conversation`").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := DeleteConversation(context.Background(), db, "u-1", "ws-1", "missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestConversationScoping(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)

	conv, err := CreateConversation(ctx, db, "u-1", "ws-1", "m")
	if err != nil {
		t.Fatal(err)
	}
	if conv.Title != model.DefaultConversationTitle {
		t.Errorf("title = %q, want default", conv.Title)
	}

	for _, tt := range []struct{ user, workspace string }{
		{"u-2", "ws-1"},
		{"u-1", "ws-2"},
	} {
		if _, err := GetConversation(ctx, db, tt.user, tt.workspace, conv.ConversationID); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("GetConversation(%s, %s) err = %v, want not found", tt.user, tt.workspace, err)
		}
		if err := DeleteConversation(ctx, db, tt.user, tt.workspace, conv.ConversationID); !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("DeleteConversation(%s, %s) err = %v, want not found", tt.user, tt.workspace, err)
		}
	}
}

func TestGetConversationsOrderedByActivity(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)

	older, _ := CreateConversation(ctx, db, "u-1", "ws-1", "m")
	newer, _ := CreateConversation(ctx, db, "u-1", "ws-1", "m")
	if _, err := CreateConversation(ctx, db, "u-1", "ws-other", "m"); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	if err := TouchConversation(ctx, db, newer.ConversationID, now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := TouchConversation(ctx, db, older.ConversationID, now); err != nil {
		t.Fatal(err)
	}

	list, err := GetConversationsByUser(ctx, db, "u-1", "ws-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ConversationID != older.ConversationID {
		t.Errorf("list order = %v", list)
	}
}

func TestTouchConversationLastWriteWins(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	conv, _ := CreateConversation(ctx, db, "u-1", "ws-1", "m")

	later := time.Now().Add(time.Hour).Truncate(time.Second)
	earlier := later.Add(-30 * time.Minute)
	if err := TouchConversation(ctx, db, conv.ConversationID, later); err != nil {
		t.Fatal(err)
	}
	if err := TouchConversation(ctx, db, conv.ConversationID, earlier); err != nil {
		t.Fatal(err)
	}

	got, err := GetConversation(ctx, db, "u-1", "ws-1", conv.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.LastActivityAt.Equal(earlier) {
		t.Errorf("last_activity_at = %v, want %v", got.LastActivityAt, earlier)
	}
}

func TestReplaceDefaultTitle(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	conv, _ := CreateConversation(ctx, db, "u-1", "ws-1", "m")

	replaced, err := ReplaceDefaultTitle(ctx, db, conv.ConversationID, "Generated")
	if err != nil || !replaced {
		t.Fatalf("first ReplaceDefaultTitle() = %v, %v", replaced, err)
	}
	replaced, err = ReplaceDefaultTitle(ctx, db, conv.ConversationID, "Again")
	if err != nil || replaced {
		t.Fatalf("second ReplaceDefaultTitle() = %v, %v, want false", replaced, err)
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	conv, _ := CreateConversation(ctx, db, "u-1", "ws-1", "m")

	msg := model.Message{ConversationID: conv.ConversationID, Role: model.RoleAssistant}
	if err := db.Create(&msg).Error; err != nil {
		t.Fatal(err)
	}
	pending := model.PendingToolCall{MessageID: msg.ID, ToolCallID: "c1", ToolName: "delete_record", Status: model.ConfirmationPending}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatal(err)
	}

	if err := DeleteConversation(ctx, db, "u-1", "ws-1", conv.ConversationID); err != nil {
		t.Fatal(err)
	}

	var count int64
	db.Model(&model.Message{}).Where("conversation_id = ?", conv.ConversationID).Count(&count)
	if count != 0 {
		t.Errorf("messages left = %d", count)
	}
	db.Model(&model.PendingToolCall{}).Count(&count)
	if count != 0 {
		t.Errorf("pending rows left = %d", count)
	}

	messages, err := GetMessagesByConversationID(ctx, db, conv.ConversationID)
	if err != nil || len(messages) != 0 {
		t.Errorf("GetMessagesByConversationID() = %v, %v", messages, err)
	}
}
