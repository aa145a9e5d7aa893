package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"workspace-agent-backend/dao"
	"workspace-agent-backend/model"
	"workspace-agent-backend/service/records"
	"workspace-agent-backend/service/tools"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testUserID      = "u-1"
	testWorkspaceID = "ws-1"
)

// scriptedStreamer 按顺序返回预设的每一轮上游输出
type scriptedStreamer struct {
	mu       sync.Mutex
	rounds   [][]Delta
	requests []*CompletionRequest
}

func (s *scriptedStreamer) push(rounds ...[]Delta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = append(s.rounds, rounds...)
}

func (s *scriptedStreamer) Stream(_ context.Context, req *CompletionRequest) <-chan Delta {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	round := []Delta{{Err: errors.New("no scripted round left")}}
	if len(s.rounds) > 0 {
		round = s.rounds[0]
		s.rounds = s.rounds[1:]
	}
	s.mu.Unlock()

	ch := make(chan Delta, len(round))
	for _, d := range round {
		ch <- d
	}
	close(ch)
	return ch
}

func (s *scriptedStreamer) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedStreamer) lastRequest() *CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type fakeTitles struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeTitles) Schedule(conversationID, firstMessage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, conversationID+":"+firstMessage)
}

type fakeAuditor struct {
	mu     sync.Mutex
	audits []ConfirmationAudit
}

func (f *fakeAuditor) ConfirmationResolved(_ context.Context, audit ConfirmationAudit) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, audit)
}

type harness struct {
	db       *gorm.DB
	upstream *scriptedStreamer
	titles   *fakeTitles
	auditor  *fakeAuditor
	records  *records.DBStore
	orch     *Orchestrator
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "chat.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := dao.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newHarness(t *testing.T, rounds ...[]Delta) *harness {
	t.Helper()

	db := newTestDB(t)
	prompt, err := NewSystemPrompt()
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		db:       db,
		upstream: &scriptedStreamer{},
		titles:   &fakeTitles{},
		auditor:  &fakeAuditor{},
		records:  records.NewDBStore(db),
	}
	h.upstream.push(rounds...)

	store := NewMessageStore(db)
	h.orch = &Orchestrator{
		DB:       db,
		Upstream: h.upstream,
		Store:    store,
		Transcripts: &TranscriptBuilder{
			Store:        store,
			Prompt:       prompt,
			HistoryLimit: 200,
		},
		Executor:     tools.NewExecutor(h.records),
		Titles:       h.titles,
		Auditor:      h.auditor,
		MaxRounds:    10,
		DefaultModel: "test-model",
	}
	return h
}

func (h *harness) start(t *testing.T, conversationID, content string) []*Event {
	t.Helper()
	events, err := h.orch.StartTurn(context.Background(), TurnRequest{
		ConversationID: conversationID,
		UserID:         testUserID,
		WorkspaceID:    testWorkspaceID,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	return collect(t, events)
}

func (h *harness) confirm(t *testing.T, conversationID string, messageID uint, toolCallID string, approved bool) []*Event {
	t.Helper()
	events, err := h.orch.Resume(context.Background(), ConfirmRequest{
		ConversationID: conversationID,
		MessageID:      messageID,
		ToolCallID:     toolCallID,
		Approved:       approved,
		UserID:         testUserID,
		WorkspaceID:    testWorkspaceID,
	})
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	return collect(t, events)
}

func (h *harness) messages(t *testing.T, conversationID string) []model.Message {
	t.Helper()
	msgs, err := dao.GetMessagesByConversationID(context.Background(), h.db, conversationID)
	if err != nil {
		t.Fatalf("failed to load messages: %v", err)
	}
	return msgs
}

func (h *harness) recordCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&model.Record{}).Count(&n).Error; err != nil {
		t.Fatal(err)
	}
	return n
}

func collect(t *testing.T, events <-chan *Event) []*Event {
	t.Helper()
	var out []*Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d so far", len(out))
			return nil
		}
	}
}

func eventTypes(events []*Event) []EventType {
	types := make([]EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func assertTypes(t *testing.T, events []*Event, want ...EventType) {
	t.Helper()
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("event types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event types = %v, want %v", got, want)
		}
	}
}

// assertSingleTerminal 每个事件流只能有一个终止事件且位于末尾
func assertSingleTerminal(t *testing.T, events []*Event) {
	t.Helper()
	for i, ev := range events {
		if ev.Terminal() != (i == len(events)-1) {
			t.Fatalf("terminal event misplaced in %v", eventTypes(events))
		}
	}
}

func textDelta(s string) Delta {
	return Delta{Content: s}
}

func callDelta(index int, id, name, args string) Delta {
	return Delta{ToolCall: &ToolCallDelta{Index: index, ID: id, Name: name, Arguments: args}}
}

func argsDelta(index int, args string) Delta {
	return Delta{ToolCall: &ToolCallDelta{Index: index, Arguments: args}}
}

func testScope() tools.Scope {
	return tools.Scope{WorkspaceID: testWorkspaceID, UserID: testUserID}
}

// panicStore 所有方法都会 panic
type panicStore struct{}

func (panicStore) Search(context.Context, tools.Scope, string, string, int) ([]model.Record, error) {
	panic("search exploded")
}

func (panicStore) List(context.Context, tools.Scope, string, map[string]string, int) ([]model.Record, error) {
	panic("list exploded")
}

func (panicStore) Get(context.Context, tools.Scope, string, string) (*model.Record, error) {
	panic("get exploded")
}

func (panicStore) Create(context.Context, tools.Scope, string, map[string]any) (*model.Record, error) {
	panic("create exploded")
}

func (panicStore) Update(context.Context, tools.Scope, string, string, map[string]any) (*model.Record, error) {
	panic("update exploded")
}

func (panicStore) Delete(context.Context, tools.Scope, string, string) error {
	panic("delete exploded")
}
