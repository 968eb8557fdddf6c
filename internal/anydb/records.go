package anydb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// RecordRef addresses one record by its (team, database, record) triple.
// AnyDB mints all three identifiers; this service never generates them.
type RecordRef struct {
	TeamID     string
	DatabaseID string
	RecordID   string
}

func (r RecordRef) path() string {
	return fmt.Sprintf("/v1/teams/%s/databases/%s/records/%s",
		url.PathEscape(r.TeamID), url.PathEscape(r.DatabaseID), url.PathEscape(r.RecordID))
}

func recordsPath(teamID, databaseID string) string {
	return fmt.Sprintf("/v1/teams/%s/databases/%s/records",
		url.PathEscape(teamID), url.PathEscape(databaseID))
}

// ListTeams returns every team reachable by the call's credentials.
func (c *Client) ListTeams(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, "list_teams", http.MethodGet, "/v1/teams", nil, nil)
}

// ListDatabases returns the databases of one team.
func (c *Client) ListDatabases(ctx context.Context, teamID string) (json.RawMessage, error) {
	return c.do(ctx, "list_databases", http.MethodGet,
		"/v1/teams/"+url.PathEscape(teamID)+"/databases", nil, nil)
}

// ListRecordsRequest selects records in one database, optionally scoped to a
// parent record. Cursor is an opaque pagination token echoed back to AnyDB.
type ListRecordsRequest struct {
	TeamID     string
	DatabaseID string
	ParentID   string
	Cursor     string
}

// ListRecords lists records in a database.
func (c *Client) ListRecords(ctx context.Context, req ListRecordsRequest) (json.RawMessage, error) {
	query := url.Values{}
	if req.ParentID != "" {
		query.Set("parentid", req.ParentID)
	}
	if req.Cursor != "" {
		query.Set("cursor", req.Cursor)
	}
	return c.do(ctx, "list_records", http.MethodGet, recordsPath(req.TeamID, req.DatabaseID), query, nil)
}

// GetRecord fetches one record by its triple.
func (c *Client) GetRecord(ctx context.Context, ref RecordRef) (json.RawMessage, error) {
	return c.do(ctx, "get_record", http.MethodGet, ref.path(), nil, nil)
}

// CreateRecordRequest creates a record, optionally under a parent and
// optionally instantiated from a template with pre-populated cell content.
type CreateRecordRequest struct {
	TeamID      string
	DatabaseID  string
	Name        string
	Description string
	ParentID    string
	TemplateID  string
	Content     map[string]any
}

// CreateRecord creates a record. AnyDB assigns the record identifier.
func (c *Client) CreateRecord(ctx context.Context, req CreateRecordRequest) (json.RawMessage, error) {
	body := map[string]any{"name": req.Name}
	if req.Description != "" {
		body["description"] = req.Description
	}
	if req.ParentID != "" {
		body["parentid"] = req.ParentID
	}
	if req.TemplateID != "" {
		body["templateid"] = req.TemplateID
	}
	if req.Content != nil {
		body["content"] = req.Content
	}
	return c.do(ctx, "create_record", http.MethodPost, recordsPath(req.TeamID, req.DatabaseID), nil, body)
}

// UpdateRecordRequest updates a record's metadata and/or cell content.
// Empty fields are left untouched by AnyDB.
type UpdateRecordRequest struct {
	Ref         RecordRef
	Name        string
	Description string
	Status      string
	Assignees   []string
	Content     map[string]any
}

// UpdateRecord updates a record.
func (c *Client) UpdateRecord(ctx context.Context, req UpdateRecordRequest) (json.RawMessage, error) {
	body := map[string]any{}
	if req.Name != "" {
		body["name"] = req.Name
	}
	if req.Description != "" {
		body["description"] = req.Description
	}
	if req.Status != "" {
		body["status"] = req.Status
	}
	if req.Assignees != nil {
		body["assignees"] = req.Assignees
	}
	if req.Content != nil {
		body["content"] = req.Content
	}
	return c.do(ctx, "update_record", http.MethodPut, req.Ref.path(), nil, body)
}

// DeleteRecord unlinks a record from the parents named in removeFromIDs
// (comma-separated). The reserved PermanentDelete value, also the default when
// the list is empty, deletes the record regardless of parents.
func (c *Client) DeleteRecord(ctx context.Context, ref RecordRef, removeFromIDs string) (json.RawMessage, error) {
	if removeFromIDs == "" {
		removeFromIDs = PermanentDelete
	}
	query := url.Values{"removefromids": {removeFromIDs}}
	return c.do(ctx, "delete_record", http.MethodDelete, ref.path(), query, nil)
}

// SearchRecordsRequest is a keyword search scoped to one database. Start and
// Limit are opaque pagination tokens forwarded as strings, never reinterpreted.
type SearchRecordsRequest struct {
	TeamID     string
	DatabaseID string
	Query      string
	ParentID   string
	Start      string
	Limit      string
}

// SearchRecords searches records by keyword.
func (c *Client) SearchRecords(ctx context.Context, req SearchRecordsRequest) (json.RawMessage, error) {
	query := url.Values{"q": {req.Query}}
	if req.ParentID != "" {
		query.Set("parentid", req.ParentID)
	}
	if req.Start != "" {
		query.Set("start", req.Start)
	}
	if req.Limit != "" {
		query.Set("limit", req.Limit)
	}
	path := fmt.Sprintf("/v1/teams/%s/databases/%s/search",
		url.PathEscape(req.TeamID), url.PathEscape(req.DatabaseID))
	return c.do(ctx, "search_records", http.MethodGet, path, query, nil)
}

// Attachment modes for CopyRecord.
const (
	AttachNone      = "none"      // copy without associated files
	AttachReference = "reference" // share files by reference
	AttachDuplicate = "duplicate" // deep-duplicate files
)

// CopyRecordRequest copies a record, with one of three modes for its
// associated files.
type CopyRecordRequest struct {
	Ref            RecordRef
	TargetParentID string
	AttachMode     string
}

// CopyRecord copies a record.
func (c *Client) CopyRecord(ctx context.Context, req CopyRecordRequest) (json.RawMessage, error) {
	mode := req.AttachMode
	if mode == "" {
		mode = AttachNone
	}
	body := map[string]any{"attachmode": mode}
	if req.TargetParentID != "" {
		body["targetparentid"] = req.TargetParentID
	}
	return c.do(ctx, "copy_record", http.MethodPost, req.Ref.path()+"/copy", nil, body)
}

// MoveRecord moves a record under a new parent.
func (c *Client) MoveRecord(ctx context.Context, ref RecordRef, newParentID string) (json.RawMessage, error) {
	body := map[string]any{"parentid": newParentID}
	return c.do(ctx, "move_record", http.MethodPost, ref.path()+"/move", nil, body)
}
