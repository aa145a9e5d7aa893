package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"workspace-agent-backend/model"
	"workspace-agent-backend/service/tools"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	deltaBufferSize   = 64
	defaultRetryDelay = 500 * time.Millisecond
)

type CompletionRequest struct {
	Model    string
	Messages []TranscriptMessage
	Tools    []tools.Definition
}

// ToolCallDelta 工具调用的增量片段，按 Index 归属到同一个调用
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta 上游流中的一个事件，Err 非空时为最后一个事件
type Delta struct {
	Content  string
	ToolCall *ToolCallDelta
	Err      error
}

// Streamer 上游流式补全接口，错误以最后一个 Delta 的形式返回
type Streamer interface {
	Stream(ctx context.Context, req *CompletionRequest) <-chan Delta
}

// OpenAIStreamer 兼容 OpenAI chat completions 协议的上游适配器
type OpenAIStreamer struct {
	client        *openai.Client
	retryAttempts uint
	retryDelay    time.Duration
}

var _ Streamer = &OpenAIStreamer{}

func NewOpenAIStreamer(apiKey, baseURL string, httpClient *http.Client, retryAttempts uint) *OpenAIStreamer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if retryAttempts == 0 {
		retryAttempts = 1
	}
	return &OpenAIStreamer{
		client:        openai.NewClientWithConfig(cfg),
		retryAttempts: retryAttempts,
		retryDelay:    defaultRetryDelay,
	}
}

func (s *OpenAIStreamer) Stream(ctx context.Context, req *CompletionRequest) <-chan Delta {
	deltas := make(chan Delta, deltaBufferSize)

	go func() {
		defer close(deltas)

		stream, err := s.open(ctx, buildChatRequest(req))
		if err != nil {
			sendDelta(ctx, deltas, Delta{Err: err})
			return
		}
		defer stream.Close()

		for {
			raw, err := stream.RecvRaw()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				sendDelta(ctx, deltas, Delta{Err: err})
				return
			}

			var frame openai.ChatCompletionStreamResponse
			if err := json.Unmarshal(raw, &frame); err != nil {
				slog.Warn("Skipping malformed upstream frame", "err", err, "frame", string(raw))
				continue
			}
			if len(frame.Choices) == 0 {
				continue
			}

			delta := frame.Choices[0].Delta
			if delta.Content != "" {
				if !sendDelta(ctx, deltas, Delta{Content: delta.Content}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				index := 0
				if tc.Index != nil {
					index = *tc.Index
				}
				if !sendDelta(ctx, deltas, Delta{ToolCall: &ToolCallDelta{
					Index:     index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				}}) {
					return
				}
			}
		}
	}()

	return deltas
}

// open 仅在建立连接阶段重试，流开始后不再重试
func (s *OpenAIStreamer) open(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error) {
	var stream *openai.ChatCompletionStream
	err := retry.Do(
		func() error {
			var err error
			stream, err = s.client.CreateChatCompletionStream(ctx, req)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.retryAttempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryableUpstreamError),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("Retrying upstream completion request",
				"attempt", n+1,
				"model", req.Model,
				"err", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func isRetryableUpstreamError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func sendDelta(ctx context.Context, deltas chan<- Delta, d Delta) bool {
	select {
	case deltas <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func buildChatRequest(req *CompletionRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role: string(m.Role),
		}
		if m.Content != nil {
			msg.Content = *m.Content
		}
		switch m.Role {
		case model.RoleAssistant:
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
		case model.RoleTool:
			msg.ToolCallID = m.ToolCallID
		}
		messages = append(messages, msg)
	}

	chatTools := make([]openai.Tool, 0, len(req.Tools))
	for _, def := range req.Tools {
		chatTools = append(chatTools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters(),
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    chatTools,
		Stream:   true,
	}
}
