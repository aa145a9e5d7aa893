package title

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"workspace-agent-backend/dao"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"gorm.io/gorm"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 100

	// 标题最大字符数
	maxTitleRunes = 60
	// 提示词中用户消息的最大字符数
	maxMessageRunes = 2000
)

//go:embed prompts/title.txt
var titlePrompt string

var promptTmpl = template.Must(template.New("title").Parse(titlePrompt))

type task struct {
	conversationID string
	message        string
}

// Generator 根据首条用户消息异步生成会话标题
type Generator struct {
	llm     llms.Model
	db      *gorm.DB
	tasks   chan task
	workers int
	wg      sync.WaitGroup
}

func NewGenerator(llm llms.Model, db *gorm.DB, workers, queueSize int) *Generator {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Generator{
		llm:     llm,
		db:      db,
		tasks:   make(chan task, queueSize),
		workers: workers,
	}
}

// NewOpenAILLM 创建用于生成标题的模型客户端
func NewOpenAILLM(apiKey, baseURL, modelName string, httpClient *http.Client) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithModel(modelName),
		openai.WithToken(apiKey),
		openai.WithBaseURL(baseURL),
	}
	if httpClient != nil {
		opts = append(opts, openai.WithHTTPClient(httpClient))
	}
	return openai.New(opts...)
}

// Run 启动 worker，ctx 结束后 worker 处理完当前任务退出
func (g *Generator) Run(ctx context.Context) {
	for i := 1; i <= g.workers; i++ {
		g.wg.Add(1)
		go g.work(ctx, i)
	}
}

// Wait 等待所有 worker 退出
func (g *Generator) Wait() {
	g.wg.Wait()
}

// Schedule 提交任务，队列已满时丢弃
func (g *Generator) Schedule(conversationID, firstMessage string) {
	select {
	case g.tasks <- task{conversationID: conversationID, message: firstMessage}:
	default:
		slog.Warn("Title queue is full, dropping task", "conversation_id", conversationID)
	}
}

func (g *Generator) work(ctx context.Context, id int) {
	defer g.wg.Done()
	slog.Info("Starting title worker", "worker_id", id)
	defer slog.Info("Title worker exit", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-g.tasks:
			if err := g.process(ctx, t); err != nil {
				slog.Error("Failed to generate title",
					"conversation_id", t.conversationID,
					"err", err)
			}
		}
	}
}

func (g *Generator) process(ctx context.Context, t task) error {
	title, err := g.generate(ctx, t.message)
	if err != nil {
		return err
	}
	if title == "" {
		return nil
	}

	replaced, err := dao.ReplaceDefaultTitle(ctx, g.db, t.conversationID, title)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	if !replaced {
		slog.Debug("Conversation title already set, skipping", "conversation_id", t.conversationID)
	}
	return nil
}

func (g *Generator) generate(ctx context.Context, message string) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Message string
	}{
		Message: truncateRunes(message, maxMessageRunes),
	}
	if err := promptTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %v", err)
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, g.llm, buf.String(), llms.WithTemperature(0.2))
	if err != nil {
		return "", fmt.Errorf("llm call error: %w", err)
	}
	return cleanTitle(resp), nil
}

// cleanTitle 取第一行并去掉引号和结尾标点
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "Title:")
	s = strings.Trim(s, " \t\"'`“”‘’")
	s = strings.TrimRight(s, ".。!！?？")
	return truncateRunes(strings.TrimSpace(s), maxTitleRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
