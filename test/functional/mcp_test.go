package functional_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
	"github.com/HumanlyInc/anydb-mcp-service/internal/mcp"
	"github.com/HumanlyInc/anydb-mcp-service/internal/testbackend"
)

type mcpStack struct {
	backend *testbackend.Backend
	session *sdkmcp.ClientSession
}

func newMCPStack(t *testing.T) *mcpStack {
	t.Helper()
	backend := testbackend.New()

	server := mcp.NewServer(mcp.Config{
		Dispatcher: catalog.NewDispatcher(backend.URL(), anydb.Credentials{
			APIKey: "functional-key-123456",
			Email:  "functional@acme.test",
		}, nil),
		TransportMode: "stdio",
	})

	ctx := context.Background()
	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		session.Close()
		serverSession.Close()
		backend.Close()
	})
	return &mcpStack{backend: backend, session: session}
}

// call invokes a tool and returns the text payload of a successful result.
func (s *mcpStack) call(t *testing.T, name string, args map[string]any) string {
	t.Helper()
	result, err := s.session.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.False(t, result.IsError, "%s failed: %v", name, result.Content)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCPWorkflow(t *testing.T) {
	s := newMCPStack(t)

	teams := s.call(t, "list_teams", map[string]any{})
	require.JSONEq(t, `[{"teamid":"T1","name":"Acme"}]`, teams)

	databases := s.call(t, "list_databases", map[string]any{"teamid": "T1"})
	var dbs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(databases), &dbs))
	require.Len(t, dbs, 1)
	require.Equal(t, "D1", dbs[0]["adbid"])

	created := s.call(t, "create_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "name": "Deal 1",
	})
	var rec struct {
		ADOID string `json:"adoid"`
	}
	require.NoError(t, json.Unmarshal([]byte(created), &rec))
	require.NotEmpty(t, rec.ADOID)

	fetched := s.call(t, "get_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID,
	})
	require.JSONEq(t, created, fetched)

	updated := s.call(t, "update_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID,
		"status": "closed",
	})
	var afterUpdate struct {
		Meta struct {
			Status string `json:"status"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(updated), &afterUpdate))
	require.Equal(t, "closed", afterUpdate.Meta.Status)

	found := s.call(t, "search_records", map[string]any{
		"teamid": "T1", "adbid": "D1", "query": "Deal",
	})
	var page struct {
		Records []json.RawMessage `json:"records"`
	}
	require.NoError(t, json.Unmarshal([]byte(found), &page))
	require.Len(t, page.Records, 1)

	s.call(t, "delete_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID,
	})
	_, exists := s.backend.Record(rec.ADOID)
	require.False(t, exists, "default delete is permanent")
}

func TestMCPFileLifecycle(t *testing.T) {
	s := newMCPStack(t)

	created := s.call(t, "create_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "name": "With attachment",
	})
	var rec struct {
		ADOID string `json:"adoid"`
	}
	require.NoError(t, json.Unmarshal([]byte(created), &rec))

	content := []byte("0123456789")
	s.call(t, "upload_file", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID, "cell": "A1",
		"filename": "deal.pdf",
		"content":  base64.StdEncoding.EncodeToString(content),
	})

	stored, ok := s.backend.Record(rec.ADOID)
	require.True(t, ok)
	require.Contains(t, stored.Content, "A1")
	require.Equal(t, "file", stored.Content["A1"].Type)

	download := s.call(t, "download_file", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID, "cell": "A1",
	})
	var resolved struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal([]byte(download), &resolved))
	require.NotEmpty(t, resolved.URL)
}

func TestMCPCopyCarriesAttachmentsByMode(t *testing.T) {
	s := newMCPStack(t)

	created := s.call(t, "create_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "name": "Original",
	})
	var rec struct {
		ADOID string `json:"adoid"`
	}
	require.NoError(t, json.Unmarshal([]byte(created), &rec))

	s.call(t, "upload_file", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID, "cell": "A1",
		"filename": "brief.txt", "content": "aGVsbG8=",
	})

	copied := s.call(t, "copy_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID,
		"attachmode": "reference",
	})
	var copy struct {
		Record struct {
			ADOID   string                     `json:"adoid"`
			Content map[string]json.RawMessage `json:"content"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(copied), &copy))
	require.NotEqual(t, rec.ADOID, copy.Record.ADOID)
	require.Contains(t, copy.Record.Content, "A1")
}
