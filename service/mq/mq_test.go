package mq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"workspace-agent-backend/model"
	"workspace-agent-backend/service/chat"

	"github.com/apache/rocketmq-client-go/v2/primitive"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []*primitive.Message
}

func (f *fakeSender) SendSync(_ context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("broker unavailable")
	}
	f.sent = append(f.sent, msgs...)
	return &primitive.SendResult{Status: primitive.SendOK}, nil
}

func testAudit(id string) chat.ConfirmationAudit {
	return chat.ConfirmationAudit{
		ConversationID: "conv",
		MessageID:      4,
		ToolCallID:     id,
		ToolName:       "delete_record",
		Decision:       model.ConfirmationApproved,
		UserID:         "u-1",
		WorkspaceID:    "ws-1",
		ResolvedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublisherFlushesOnShutdown(t *testing.T) {
	sender := &fakeSender{}
	pub := NewPublisherWithSender(sender, "audit")

	pub.ConfirmationResolved(context.Background(), testAudit("c1"))
	pub.ConfirmationResolved(context.Background(), testAudit("c2"))
	pub.Shutdown()

	if len(sender.sent) != 2 {
		t.Fatalf("sent = %d, want 2", len(sender.sent))
	}

	msg := sender.sent[0]
	if msg.Topic != "audit" {
		t.Errorf("topic = %q", msg.Topic)
	}
	if msg.GetTags() != TagConfirmationResolved {
		t.Errorf("tag = %q", msg.GetTags())
	}
	if msg.GetKeys() != "c1" {
		t.Errorf("keys = %q", msg.GetKeys())
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["tool_call_id"] != "c1" || payload["decision"] != "approved" || payload["workspace_id"] != "ws-1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSendMessageRetries(t *testing.T) {
	sender := &fakeSender{failures: 2}
	pub := &Publisher{sender: sender}

	err := pub.SendMessage(context.Background(), &Message{Topic: "audit", Payload: testAudit("c1")})
	if err != nil {
		t.Fatal(err)
	}
	if sender.calls != 3 || len(sender.sent) != 1 {
		t.Errorf("calls = %d sent = %d, want 3 and 1", sender.calls, len(sender.sent))
	}
}

func TestSendMessageGivesUp(t *testing.T) {
	sender := &fakeSender{failures: 10}
	pub := &Publisher{sender: sender}

	if err := pub.SendMessage(context.Background(), &Message{Topic: "audit", Payload: testAudit("c1")}); err == nil {
		t.Fatal("expected error")
	}
	if sender.calls != sendMessageAttempts {
		t.Errorf("calls = %d, want %d", sender.calls, sendMessageAttempts)
	}
}

func TestConfirmationResolvedAfterShutdown(t *testing.T) {
	sender := &fakeSender{}
	pub := NewPublisherWithSender(sender, "audit")
	pub.Shutdown()
	pub.Shutdown()

	pub.ConfirmationResolved(context.Background(), testAudit("late"))
	if len(sender.sent) != 0 {
		t.Errorf("sent = %d after shutdown, want 0", len(sender.sent))
	}
}
