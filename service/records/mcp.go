package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"workspace-agent-backend/model"
	"workspace-agent-backend/service/tools"
	"workspace-agent-backend/utils"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	mcpToolSearch = "records_search"
	mcpToolList   = "records_list"
	mcpToolGet    = "records_get"
	mcpToolCreate = "records_create"
	mcpToolUpdate = "records_update"
	mcpToolDelete = "records_delete"

	clientName    = "workspace-agent-backend"
	clientVersion = "1.0.0"
)

var mcpHTTPClient *http.Client = utils.DefaultHTTPClient()

// MCPStore 通过 MCP 服务端访问记录存储，工作区与用户作为工具参数传递
type MCPStore struct {
	client *client.Client
}

var _ tools.RecordStore = &MCPStore{}

// DialMCPStore 连接远程 MCP 服务端
func DialMCPStore(ctx context.Context, endpoint string, headers map[string]string) (*MCPStore, error) {
	c, err := client.NewStreamableHttpClient(endpoint,
		transport.WithHTTPBasicClient(mcpHTTPClient),
		transport.WithHTTPHeaders(headers),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp client: %w", err)
	}
	return NewMCPStore(ctx, c)
}

// NewMCPStore 启动客户端并完成初始化握手
func NewMCPStore(ctx context.Context, c *client.Client) (*MCPStore, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to init connection to the mcp server: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize mcp session: %w", err)
	}

	return &MCPStore{client: c}, nil
}

func (s *MCPStore) Close() error {
	return s.client.Close()
}

func (s *MCPStore) Search(ctx context.Context, scope tools.Scope, entity, query string, limit int) ([]model.Record, error) {
	var records []model.Record
	err := s.call(ctx, mcpToolSearch, scope, map[string]any{
		"entity": entity,
		"query":  query,
		"limit":  limit,
	}, &records)
	return records, err
}

func (s *MCPStore) List(ctx context.Context, scope tools.Scope, entity string, filters map[string]string, limit int) ([]model.Record, error) {
	args := map[string]any{
		"entity": entity,
		"limit":  limit,
	}
	if len(filters) > 0 {
		args["filters"] = filters
	}

	var records []model.Record
	err := s.call(ctx, mcpToolList, scope, args, &records)
	return records, err
}

func (s *MCPStore) Get(ctx context.Context, scope tools.Scope, entity, id string) (*model.Record, error) {
	var record model.Record
	if err := s.call(ctx, mcpToolGet, scope, map[string]any{
		"entity": entity,
		"id":     id,
	}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *MCPStore) Create(ctx context.Context, scope tools.Scope, entity string, attributes map[string]any) (*model.Record, error) {
	var record model.Record
	if err := s.call(ctx, mcpToolCreate, scope, map[string]any{
		"entity":     entity,
		"attributes": attributes,
	}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *MCPStore) Update(ctx context.Context, scope tools.Scope, entity, id string, attributes map[string]any) (*model.Record, error) {
	var record model.Record
	if err := s.call(ctx, mcpToolUpdate, scope, map[string]any{
		"entity":     entity,
		"id":         id,
		"attributes": attributes,
	}, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *MCPStore) Delete(ctx context.Context, scope tools.Scope, entity, id string) error {
	return s.call(ctx, mcpToolDelete, scope, map[string]any{
		"entity": entity,
		"id":     id,
	}, nil)
}

func (s *MCPStore) call(ctx context.Context, tool string, scope tools.Scope, args map[string]any, out any) error {
	args["workspace_id"] = scope.WorkspaceID
	args["user_id"] = scope.UserID

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to call mcp tool %s: %w", tool, err)
	}

	text := resultText(result)
	if result.IsError {
		if strings.Contains(strings.ToLower(text), tools.ErrRecordNotFound.Error()) {
			return fmt.Errorf("%w: %s", tools.ErrRecordNotFound, text)
		}
		return fmt.Errorf("mcp tool %s failed: %s", tool, text)
	}

	if out == nil || text == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("failed to decode mcp tool %s result: %w", tool, err)
	}
	return nil
}

func resultText(result *mcp.CallToolResult) string {
	var b strings.Builder
	for _, content := range result.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			b.WriteString(c.Text)
		case *mcp.TextContent:
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
