package mcp

import (
	"bytes"
	"context"
	"encoding/json"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
)

// registerTools exposes every catalog operation as an MCP tool. The tool set
// and the parameter schemas come from the same table the REST surface uses.
func registerTools(server *sdkmcp.Server, dispatcher *catalog.Dispatcher) {
	for _, op := range dispatcher.List() {
		tool := &sdkmcp.Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: catalog.InputSchema(op),
		}
		name := op.Name
		sdkmcp.AddTool(server, tool, func(ctx context.Context, req *sdkmcp.CallToolRequest, args map[string]any) (*sdkmcp.CallToolResult, any, error) {
			result, err := dispatcher.Call(ctx, name, args)
			if err != nil {
				// Operation failures are tool results, not protocol faults,
				// so the calling agent can reason about them in-conversation.
				return errorResult(err), nil, nil
			}
			return textResult(result.Data), nil, nil
		})
	}
}

func textResult(data json.RawMessage) *sdkmcp.CallToolResult {
	var pretty bytes.Buffer
	text := string(data)
	if err := json.Indent(&pretty, data, "", "  "); err == nil {
		text = pretty.String()
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: err.Error()}},
	}
}
