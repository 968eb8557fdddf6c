// Package catalog defines the single declarative description of every
// operation this service exposes. Both protocol surfaces (MCP tools and REST
// routes) are generated from the same table, so the two cannot drift.
package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
)

// Param types mirror the primitive JSON types an operation accepts.
const (
	TypeString      = "string"
	TypeNumber      = "number"
	TypeBoolean     = "boolean"
	TypeObject      = "object"
	TypeStringArray = "array"
)

// Param declares one operation parameter.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// Result is the outcome of a successful dispatch. Data is AnyDB's response
// relayed byte-for-byte. RedirectURL is set only for a download resolved to a
// 302, so the REST surface can render a real redirect.
type Result struct {
	Data        json.RawMessage
	RedirectURL string
}

// HandlerFunc executes one operation against a per-call gateway client.
type HandlerFunc func(ctx context.Context, client *anydb.Client, args Args) (Result, error)

// Operation declares one exposed operation: its parameter contract and the
// gateway call it maps to.
type Operation struct {
	Name        string
	Description string
	Params      []Param
	Handler     HandlerFunc
}

// Operations returns the full catalog in registration order.
func Operations() []Operation {
	return []Operation{
		{
			Name:        "list_teams",
			Description: "List all AnyDB teams reachable with the supplied credentials",
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.ListTeams(ctx))
			},
		},
		{
			Name:        "list_databases",
			Description: "List the databases of a team",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.ListDatabases(ctx, args.String("teamid")))
			},
		},
		{
			Name:        "list_records",
			Description: "List records in a database, optionally under a parent record",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "parentid", Type: TypeString, Description: "Parent record identifier to filter by"},
				{Name: "cursor", Type: TypeString, Description: "Opaque pagination cursor from a previous call"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.ListRecords(ctx, anydb.ListRecordsRequest{
					TeamID:     args.String("teamid"),
					DatabaseID: args.String("adbid"),
					ParentID:   args.String("parentid"),
					Cursor:     args.String("cursor"),
				}))
			},
		},
		{
			Name:        "get_record",
			Description: "Fetch a record with its metadata and cell content",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier", Required: true},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.GetRecord(ctx, args.ref()))
			},
		},
		{
			Name:        "create_record",
			Description: "Create a record, optionally under a parent or from a template",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "name", Type: TypeString, Description: "Record name", Required: true},
				{Name: "description", Type: TypeString, Description: "Record description"},
				{Name: "parentid", Type: TypeString, Description: "Parent record identifier"},
				{Name: "templateid", Type: TypeString, Description: "Template record to instantiate from"},
				{Name: "content", Type: TypeObject, Description: "Initial cell content keyed by cell position"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.CreateRecord(ctx, anydb.CreateRecordRequest{
					TeamID:      args.String("teamid"),
					DatabaseID:  args.String("adbid"),
					Name:        args.String("name"),
					Description: args.String("description"),
					ParentID:    args.String("parentid"),
					TemplateID:  args.String("templateid"),
					Content:     args.Object("content"),
				}))
			},
		},
		{
			Name:        "update_record",
			Description: "Update a record's metadata and/or cell content",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier", Required: true},
				{Name: "name", Type: TypeString, Description: "New record name"},
				{Name: "description", Type: TypeString, Description: "New record description"},
				{Name: "status", Type: TypeString, Description: "New record status"},
				{Name: "assignees", Type: TypeStringArray, Description: "Replacement assignee list"},
				{Name: "content", Type: TypeObject, Description: "Cell content to merge, keyed by cell position"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.UpdateRecord(ctx, anydb.UpdateRecordRequest{
					Ref:         args.ref(),
					Name:        args.String("name"),
					Description: args.String("description"),
					Status:      args.String("status"),
					Assignees:   args.StringSlice("assignees"),
					Content:     args.Object("content"),
				}))
			},
		},
		{
			Name:        "delete_record",
			Description: "Delete a record, or unlink it from specific parents",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier", Required: true},
				{Name: "removefromids", Type: TypeString, Description: "Comma-separated parent identifiers to unlink from; omit or pass " + anydb.PermanentDelete + " to delete permanently"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.DeleteRecord(ctx, args.ref(), args.String("removefromids")))
			},
		},
		{
			Name:        "search_records",
			Description: "Search records by keyword within a database",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "query", Type: TypeString, Description: "Keyword query", Required: true},
				{Name: "parentid", Type: TypeString, Description: "Parent record identifier to scope the search"},
				{Name: "start", Type: TypeString, Description: "Pagination offset token, forwarded as-is"},
				{Name: "limit", Type: TypeString, Description: "Maximum result count, forwarded as-is"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.SearchRecords(ctx, anydb.SearchRecordsRequest{
					TeamID:     args.String("teamid"),
					DatabaseID: args.String("adbid"),
					Query:      args.String("query"),
					ParentID:   args.String("parentid"),
					Start:      args.String("start"),
					Limit:      args.String("limit"),
				}))
			},
		},
		{
			Name:        "copy_record",
			Description: "Copy a record, choosing how its attached files are carried over",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier", Required: true},
				{Name: "targetparentid", Type: TypeString, Description: "Parent for the copy; omit to copy alongside the original"},
				{Name: "attachmode", Type: TypeString, Description: "How attached files are handled", Enum: []string{anydb.AttachNone, anydb.AttachReference, anydb.AttachDuplicate}},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.CopyRecord(ctx, anydb.CopyRecordRequest{
					Ref:            args.ref(),
					TargetParentID: args.String("targetparentid"),
					AttachMode:     args.String("attachmode"),
				}))
			},
		},
		{
			Name:        "move_record",
			Description: "Move a record under a new parent",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier", Required: true},
				{Name: "parentid", Type: TypeString, Description: "New parent record identifier", Required: true},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.MoveRecord(ctx, args.ref(), args.String("parentid")))
			},
		},
		{
			Name:        "download_file",
			Description: "Resolve the file in a record cell to a download URL",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier", Required: true},
				{Name: "cell", Type: TypeString, Description: "Cell position holding the file, e.g. A1", Required: true},
				{Name: "redirect", Type: TypeBoolean, Description: "Resolve via HTTP 302 instead of a JSON body"},
				{Name: "preview", Type: TypeBoolean, Description: "Request inline-preview framing instead of attachment framing"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				redirect := args.Bool("redirect")
				data, err := client.Download(ctx, anydb.DownloadRequest{
					Ref:      args.ref(),
					Cell:     args.String("cell"),
					Redirect: redirect,
					Preview:  args.Bool("preview"),
				})
				if err != nil {
					return Result{}, err
				}
				result := Result{Data: data}
				if redirect {
					var resolved struct {
						URL      string `json:"url"`
						Redirect bool   `json:"redirect"`
					}
					if json.Unmarshal(data, &resolved) == nil && resolved.Redirect {
						result.RedirectURL = resolved.URL
					}
				}
				return result, nil
			},
		},
		{
			Name:        "get_upload_url",
			Description: "Step 1 of the file upload: obtain a pre-signed upload URL for a record cell",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "filename", Type: TypeString, Description: "Name of the file to upload", Required: true},
				{Name: "filesize", Type: TypeString, Description: "Declared file size in bytes", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier"},
				{Name: "cell", Type: TypeString, Description: "Cell position to attach the file to, e.g. A1"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.GetUploadURL(ctx, anydb.UploadURLRequest{
					TeamID:     args.String("teamid"),
					DatabaseID: args.String("adbid"),
					RecordID:   args.String("adoid"),
					Cell:       args.String("cell"),
					Filename:   args.String("filename"),
					FileSize:   args.String("filesize"),
				}))
			},
		},
		{
			Name:        "upload_file_to_url",
			Description: "Step 2 of the file upload: PUT raw bytes to a pre-signed URL",
			Params: []Param{
				{Name: "url", Type: TypeString, Description: "Pre-signed upload URL from get_upload_url", Required: true},
				{Name: "content", Type: TypeString, Description: "File content, base64-encoded (plain text accepted)", Required: true},
				{Name: "contenttype", Type: TypeString, Description: "MIME type of the file"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				err := client.PutFile(ctx, args.String("url"), args.Bytes("content"), args.String("contenttype"))
				if err != nil {
					return Result{}, err
				}
				return Result{Data: json.RawMessage(`{"uploaded":true}`)}, nil
			},
		},
		{
			Name:        "complete_upload",
			Description: "Step 3 of the file upload: finalize attachment of the uploaded file",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "filesize", Type: TypeString, Description: "Declared file size in bytes, matching step 1", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier"},
				{Name: "cell", Type: TypeString, Description: "Cell position, matching step 1"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.CompleteUpload(ctx, anydb.CompleteUploadRequest{
					TeamID:     args.String("teamid"),
					DatabaseID: args.String("adbid"),
					RecordID:   args.String("adoid"),
					Cell:       args.String("cell"),
					FileSize:   args.String("filesize"),
				}))
			},
		},
		{
			Name:        "upload_file",
			Description: "Upload a file to a record cell in one call (runs the three upload steps in sequence)",
			Params: []Param{
				{Name: "teamid", Type: TypeString, Description: "Team identifier", Required: true},
				{Name: "adbid", Type: TypeString, Description: "Database identifier", Required: true},
				{Name: "filename", Type: TypeString, Description: "Name of the file to upload", Required: true},
				{Name: "content", Type: TypeString, Description: "File content, base64-encoded (plain text accepted)", Required: true},
				{Name: "adoid", Type: TypeString, Description: "Record identifier"},
				{Name: "cell", Type: TypeString, Description: "Cell position to attach the file to, e.g. A1"},
				{Name: "contenttype", Type: TypeString, Description: "MIME type of the file"},
			},
			Handler: func(ctx context.Context, client *anydb.Client, args Args) (Result, error) {
				return dataResult(client.UploadFile(ctx, anydb.UploadFileRequest{
					TeamID:      args.String("teamid"),
					DatabaseID:  args.String("adbid"),
					RecordID:    args.String("adoid"),
					Cell:        args.String("cell"),
					Filename:    args.String("filename"),
					Content:     args.Bytes("content"),
					ContentType: args.String("contenttype"),
				}))
			},
		},
	}
}

func dataResult(data json.RawMessage, err error) (Result, error) {
	if err != nil {
		return Result{}, err
	}
	return Result{Data: data}, nil
}

// Args is a decoded argument map with typed accessors. Validation has already
// run by the time a handler sees it, so accessors are lenient.
type Args map[string]any

// String returns a string argument, or "" when absent.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Bool returns a boolean argument, accepting the string forms "true"/"false"
// that arrive via REST query parameters.
func (a Args) Bool(name string) bool {
	switch v := a[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// Object returns an object argument, or nil when absent.
func (a Args) Object(name string) map[string]any {
	v, _ := a[name].(map[string]any)
	return v
}

// StringSlice returns an array-of-string argument, or nil when absent.
func (a Args) StringSlice(name string) []string {
	raw, ok := a[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Bytes decodes a content argument: base64 when it decodes cleanly, otherwise
// the literal bytes of the string.
func (a Args) Bytes(name string) []byte {
	v := a.String(name)
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded
	}
	return []byte(v)
}

func (a Args) ref() anydb.RecordRef {
	return anydb.RecordRef{
		TeamID:     a.String("teamid"),
		DatabaseID: a.String("adbid"),
		RecordID:   a.String("adoid"),
	}
}
