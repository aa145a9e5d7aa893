package title

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"workspace-agent-backend/dao"
	"workspace-agent-backend/model"

	"github.com/tmc/langchaingo/llms"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeLLM 返回固定回复并记录收到的提示词
type fakeLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "title.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := dao.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}
	return db
}

func titleOf(t *testing.T, db *gorm.DB, conversationID string) string {
	t.Helper()
	var conv model.Conversation
	if err := db.Where("conversation_id = ?", conversationID).First(&conv).Error; err != nil {
		t.Fatal(err)
	}
	return conv.Title
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Weekly planning", "Weekly planning"},
		{"  \"Weekly planning.\"  ", "Weekly planning"},
		{"Title: Budget review", "Budget review"},
		{"First line\nsecond line", "First line"},
		{"“项目进度？”", "项目进度"},
		{"", ""},
		{strings.Repeat("a", 80), strings.Repeat("a", maxTitleRunes)},
		{strings.Repeat("标", 70), strings.Repeat("标", maxTitleRunes)},
	}
	for _, tt := range tests {
		if got := cleanTitle(tt.in); got != tt.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProcessReplacesDefaultTitle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	llm := &fakeLLM{reply: "\"Plan the launch.\""}
	g := NewGenerator(llm, db, 1, 1)

	conv, err := dao.CreateConversation(ctx, db, "u-1", "ws-1", "m")
	if err != nil {
		t.Fatal(err)
	}
	if err := g.process(ctx, task{conversationID: conv.ConversationID, message: "help me plan the launch"}); err != nil {
		t.Fatal(err)
	}

	if got := titleOf(t, db, conv.ConversationID); got != "Plan the launch" {
		t.Errorf("title = %q", got)
	}
	if len(llm.prompts) != 1 || !strings.Contains(llm.prompts[0], "help me plan the launch") {
		t.Errorf("prompt = %v", llm.prompts)
	}
}

func TestProcessKeepsUserTitle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	g := NewGenerator(&fakeLLM{reply: "Generated"}, db, 1, 1)

	conv, _ := dao.CreateConversation(ctx, db, "u-1", "ws-1", "m")
	if err := dao.UpdateConversationTitle(ctx, db, "u-1", "ws-1", conv.ConversationID, "Mine"); err != nil {
		t.Fatal(err)
	}
	if err := g.process(ctx, task{conversationID: conv.ConversationID, message: "hi"}); err != nil {
		t.Fatal(err)
	}

	if got := titleOf(t, db, conv.ConversationID); got != "Mine" {
		t.Errorf("title = %q, want user title kept", got)
	}
}

func TestProcessLLMError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	g := NewGenerator(&fakeLLM{err: errors.New("unavailable")}, db, 1, 1)

	conv, _ := dao.CreateConversation(ctx, db, "u-1", "ws-1", "m")
	if err := g.process(ctx, task{conversationID: conv.ConversationID, message: "hi"}); err == nil {
		t.Fatal("expected error")
	}
	if got := titleOf(t, db, conv.ConversationID); got != model.DefaultConversationTitle {
		t.Errorf("title = %q, want default", got)
	}
}

func TestRunScheduledTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	db := newTestDB(t)
	g := NewGenerator(&fakeLLM{reply: "Scheduled"}, db, 2, 4)
	g.Run(ctx)
	defer func() {
		cancel()
		g.Wait()
	}()

	conv, _ := dao.CreateConversation(context.Background(), db, "u-1", "ws-1", "m")
	g.Schedule(conv.ConversationID, "hello")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if titleOf(t, db, conv.ConversationID) == "Scheduled" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("title was not generated")
}

func TestScheduleDropsWhenFull(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, nil, 1, 1)
	g.Schedule("a", "first")
	g.Schedule("b", "second")

	if len(g.tasks) != 1 {
		t.Errorf("queued tasks = %d, want 1", len(g.tasks))
	}
}
