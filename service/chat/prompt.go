package chat

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
	"time"

	"workspace-agent-backend/service/tools"
)

//go:embed prompts/system.txt
var systemPromptTemplate string

// SystemPrompt 每轮请求时重新生成系统提示词
type SystemPrompt struct {
	tmpl *template.Template
	now  func() time.Time
}

func NewSystemPrompt() (*SystemPrompt, error) {
	tmpl, err := template.New("system").Parse(systemPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system prompt template: %w", err)
	}
	return &SystemPrompt{tmpl: tmpl, now: time.Now}, nil
}

func (p *SystemPrompt) Render(scope tools.Scope) (string, error) {
	data := struct {
		UserID      string
		WorkspaceID string
		Date        string
		Tools       []tools.Definition
	}{
		UserID:      scope.UserID,
		WorkspaceID: scope.WorkspaceID,
		Date:        p.now().Format("2006-01-02"),
		Tools:       tools.Definitions(),
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute system prompt template: %w", err)
	}
	return buf.String(), nil
}
