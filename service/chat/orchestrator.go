package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"workspace-agent-backend/config"
	"workspace-agent-backend/dao"
	"workspace-agent-backend/model"
	"workspace-agent-backend/service/metrics"
	"workspace-agent-backend/service/tools"

	"gorm.io/gorm"
)

const eventBufferSize = 32

const (
	outcomeOK          = "ok"
	outcomeError       = "error"
	outcomeUnknownTool = "unknown_tool"
	outcomeRejected    = "rejected"

	turnDone   = "done"
	turnPaused = "paused"
	turnError  = "error"
)

// TitleScheduler 异步生成会话标题，Schedule 不得阻塞
type TitleScheduler interface {
	Schedule(conversationID, firstMessage string)
}

// Orchestrator 驱动一次对话：流式调用上游、执行或暂停工具调用、循环直到得到最终回答
type Orchestrator struct {
	DB           *gorm.DB
	Upstream     Streamer
	Store        *MessageStore
	Transcripts  *TranscriptBuilder
	Executor     *tools.Executor
	Titles       TitleScheduler
	Auditor      Auditor
	Metrics      *metrics.Metrics
	MaxRounds    int
	DefaultModel string
}

type TurnRequest struct {
	ConversationID string
	UserID         string
	WorkspaceID    string
	Content        string
	Model          string
}

// turn 一次 HTTP 请求内的执行状态
type turn struct {
	ctx          context.Context
	conversation *model.Conversation
	scope        tools.Scope
	model        string
	events       chan<- *Event
}

func (t *turn) emit(e *Event) {
	select {
	case t.events <- e:
	case <-t.ctx.Done():
	}
}

type roundResult struct {
	content   string
	toolCalls []model.ToolCall
}

// StartTurn 写入用户消息并开始一次对话
// 返回的错误属于请求级错误，事件流开始后的错误通过 error 事件返回
func (o *Orchestrator) StartTurn(ctx context.Context, req TurnRequest) (<-chan *Event, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	conversation, err := o.loadOrCreateConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	pending, err := o.Store.HasUnresolvedToolCalls(ctx, conversation.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending confirmations: %w", err)
	}
	if pending {
		return nil, ErrConfirmationPending
	}

	previous, err := o.Store.CountUserMessages(ctx, conversation.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to count user messages: %w", err)
	}

	if _, err := o.Store.AppendUserMessage(ctx, conversation.ConversationID, content); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}
	o.touch(ctx, conversation.ConversationID)

	if previous == 0 && o.Titles != nil {
		o.Titles.Schedule(conversation.ConversationID, content)
	}

	events := make(chan *Event, eventBufferSize)
	t := o.newTurn(ctx, conversation, req.UserID, req.WorkspaceID, req.Model, events)
	go o.run(t, nil)

	return events, nil
}

func (o *Orchestrator) loadOrCreateConversation(ctx context.Context, req TurnRequest) (*model.Conversation, error) {
	if req.ConversationID == "" {
		modelName := req.Model
		if modelName == "" {
			modelName = o.DefaultModel
		}
		conversation, err := dao.CreateConversation(ctx, o.DB, req.UserID, req.WorkspaceID, modelName)
		if err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		return conversation, nil
	}
	return dao.GetConversation(ctx, o.DB, req.UserID, req.WorkspaceID, req.ConversationID)
}

func (o *Orchestrator) newTurn(ctx context.Context, conversation *model.Conversation, userID, workspaceID, modelName string, events chan<- *Event) *turn {
	if modelName == "" {
		modelName = conversation.Model
	}
	if modelName == "" {
		modelName = o.DefaultModel
	}
	return &turn{
		ctx:          ctx,
		conversation: conversation,
		scope: tools.Scope{
			WorkspaceID: workspaceID,
			UserID:      userID,
		},
		model:  modelName,
		events: events,
	}
}

// run 在独立 goroutine 中执行，结束时关闭事件通道
// resume 非空时先完成被确认的批次，再进入循环
func (o *Orchestrator) run(t *turn, resume func(t *turn) (bool, error)) {
	defer close(t.events)

	o.Metrics.TurnStarted()
	defer o.Metrics.TurnFinished()

	if resume != nil {
		paused, err := resume(t)
		if err != nil {
			o.fail(t, err)
			return
		}
		if paused {
			o.Metrics.ObserveTurn(turnPaused)
			return
		}
	}

	o.loop(t)
}

// loop 显式的有界循环，每轮从存储重建消息序列
func (o *Orchestrator) loop(t *turn) {
	for round := 0; round < o.maxRounds(); round++ {
		transcript, err := o.Transcripts.Build(t.ctx, t.conversation.ConversationID, t.scope)
		if err != nil {
			o.fail(t, fmt.Errorf("failed to build transcript: %w", err))
			return
		}

		o.Metrics.ObserveRound()
		result, err := o.streamRound(t, transcript)
		if err != nil {
			o.Metrics.ObserveUpstreamError()
			o.fail(t, err)
			return
		}
		o.touch(t.ctx, t.conversation.ConversationID)

		if len(result.toolCalls) == 0 {
			var messageID *uint
			if result.content != "" {
				msg, err := o.Store.AppendAssistantMessage(t.ctx, t.conversation.ConversationID, result.content, nil)
				if err != nil {
					o.fail(t, fmt.Errorf("failed to save assistant message: %w", err))
					return
				}
				messageID = &msg.ID
			}
			t.emit(doneEvent(t.conversation.ConversationID, messageID))
			o.Metrics.ObserveTurn(turnDone)
			return
		}

		msg, err := o.Store.AppendAssistantMessage(t.ctx, t.conversation.ConversationID, result.content, result.toolCalls)
		if err != nil {
			o.fail(t, fmt.Errorf("failed to save assistant message: %w", err))
			return
		}

		paused, err := o.processBatch(t, msg, result.toolCalls)
		if err != nil {
			o.fail(t, err)
			return
		}
		if paused {
			o.Metrics.ObserveTurn(turnPaused)
			return
		}
	}

	slog.Warn("Turn exceeded round limit",
		"conversation_id", t.conversation.ConversationID,
		"max_rounds", o.maxRounds())
	o.fail(t, fmt.Errorf("%w: stopped after %d rounds", ErrRoundLimitExceeded, o.maxRounds()))
}

// streamRound 消费上游流，转发文本增量并累积工具调用
func (o *Orchestrator) streamRound(t *turn, transcript []TranscriptMessage) (*roundResult, error) {
	req := &CompletionRequest{
		Model:    t.model,
		Messages: transcript,
		Tools:    tools.Definitions(),
	}

	var content strings.Builder
	acc := newToolCallAccumulator()

	for d := range o.Upstream.Stream(t.ctx, req) {
		if d.Err != nil {
			return nil, fmt.Errorf("upstream request failed: %w", d.Err)
		}
		if d.Content != "" {
			content.WriteString(d.Content)
			t.emit(tokenEvent(d.Content))
		}
		if d.ToolCall != nil {
			acc.add(*d.ToolCall)
		}
	}
	if err := t.ctx.Err(); err != nil {
		return nil, err
	}

	result := &roundResult{content: content.String()}
	if !acc.empty() {
		result.toolCalls = acc.finalize()
	}
	return result, nil
}

// processBatch 按模型发出的顺序处理一批工具调用
// 遇到需要确认的工具时写入确认记录并暂停，返回 true
func (o *Orchestrator) processBatch(t *turn, msg *model.Message, calls []model.ToolCall) (bool, error) {
	for i, call := range calls {
		def, ok := tools.Lookup(call.Name)
		if !ok {
			if err := o.saveUnknownToolResult(t, call); err != nil {
				return false, err
			}
			continue
		}

		if def.RequiresConfirmation {
			if err := o.Store.SetPendingToolCalls(t.ctx, pendingRows(msg.ID, calls, i)); err != nil {
				return false, fmt.Errorf("failed to save pending confirmations: %w", err)
			}
			slog.Info("Tool call awaiting confirmation",
				"conversation_id", t.conversation.ConversationID,
				"message_id", msg.ID,
				"tool_call_id", call.ID,
				"tool", call.Name)
			t.emit(toolCallPendingEvent(t.conversation.ConversationID, msg.ID, call, tools.ParseArguments(call.Arguments)))
			return true, nil
		}

		if err := o.executeAuto(t, def, call); err != nil {
			return false, err
		}
	}
	return false, nil
}

// pendingRows 生成整批调用的确认记录
// 暂停点之前已产生结果的调用直接记为已处理，之后的全部为 pending
func pendingRows(messageID uint, calls []model.ToolCall, pauseAt int) []model.PendingToolCall {
	rows := make([]model.PendingToolCall, 0, len(calls))
	for i, call := range calls {
		status := model.ConfirmationPending
		if i < pauseAt {
			status = model.ConfirmationApproved
			if _, ok := tools.Lookup(call.Name); !ok {
				status = model.ConfirmationRejected
			}
		}
		rows = append(rows, model.PendingToolCall{
			MessageID:  messageID,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Arguments:  call.Arguments,
			Position:   i,
			Status:     status,
		})
	}
	return rows
}

func (o *Orchestrator) executeAuto(t *turn, def tools.Definition, call model.ToolCall) error {
	args := tools.ParseArguments(call.Arguments)
	t.emit(toolExecutingEvent(call.Name, args))

	result := o.invoke(t, def, call, args)
	if _, err := o.Store.AppendToolMessage(t.ctx, t.conversation.ConversationID, call, result); err != nil {
		return fmt.Errorf("failed to save tool result: %w", err)
	}
	return nil
}

func (o *Orchestrator) saveUnknownToolResult(t *turn, call model.ToolCall) error {
	slog.Warn("Model requested unknown tool",
		"conversation_id", t.conversation.ConversationID,
		"tool_call_id", call.ID,
		"tool", call.Name)
	o.Metrics.ObserveTool(call.Name, outcomeUnknownTool)

	result := unknownToolResult(call.Name)
	if _, err := o.Store.AppendToolMessage(t.ctx, t.conversation.ConversationID, call, result); err != nil {
		return fmt.Errorf("failed to save tool result: %w", err)
	}
	return nil
}

// invoke 执行工具并序列化结果，执行失败同样返回结果字符串
func (o *Orchestrator) invoke(t *turn, def tools.Definition, call model.ToolCall, args map[string]any) (result string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked",
				"tool", def.Name,
				"tool_call_id", call.ID,
				"panic", r)
			o.Metrics.ObserveTool(def.Name, outcomeError)
			result = errorResult(fmt.Errorf("tool %s failed unexpectedly", def.Name))
		}
	}()

	value, err := o.Executor.Execute(t.ctx, def, args, t.scope)
	if err != nil {
		slog.Info("Tool execution failed",
			"tool", def.Name,
			"tool_call_id", call.ID,
			"err", err)
		o.Metrics.ObserveTool(def.Name, outcomeError)
		return errorResult(err)
	}

	data, err := json.Marshal(value)
	if err != nil {
		o.Metrics.ObserveTool(def.Name, outcomeError)
		return errorResult(fmt.Errorf("failed to encode result: %w", err))
	}

	slog.Debug("Tool executed",
		"tool", def.Name,
		"tool_call_id", call.ID,
		"elapsed", time.Since(start))
	o.Metrics.ObserveTool(def.Name, outcomeOK)
	return string(data)
}

func (o *Orchestrator) fail(t *turn, err error) {
	slog.Error("Turn failed",
		"conversation_id", t.conversation.ConversationID,
		"err", err)
	o.Metrics.ObserveTurn(turnError)
	t.emit(errorEvent(err))
}

// touch 更新会话活跃时间，失败只记录日志
func (o *Orchestrator) touch(ctx context.Context, conversationID string) {
	if err := dao.TouchConversation(ctx, o.DB, conversationID, time.Now()); err != nil {
		slog.Warn("Failed to update conversation activity",
			"conversation_id", conversationID,
			"err", err)
	}
}

func (o *Orchestrator) maxRounds() int {
	if o.MaxRounds <= 0 {
		return config.DefaultMaxRounds
	}
	return o.MaxRounds
}

func errorResult(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

func unknownToolResult(name string) string {
	data, _ := json.Marshal(map[string]string{"error": "Unknown tool: " + name})
	return string(data)
}
