package anydb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"
)

// Attaching file bytes to a record cell is a three-step exchange: AnyDB issues
// a time-limited pre-signed URL against its object storage, the caller PUTs
// the bytes directly to that URL, then tells AnyDB to finalize the attachment.
// Each step is an independent call; there is no server-side session, no retry,
// and no rollback when a later step fails. The caller owns the invariant that
// the declared file size and the (team, database, record, cell) tuple stay
// identical across steps; this client forwards what it is given.

// UploadURLRequest asks AnyDB for a pre-signed upload URL. FileSize is the
// declared byte count, forwarded as an opaque string.
type UploadURLRequest struct {
	TeamID     string
	DatabaseID string
	RecordID   string
	Cell       string
	Filename   string
	FileSize   string
}

func (r UploadURLRequest) body() map[string]any {
	body := map[string]any{
		"filename": r.Filename,
		"filesize": r.FileSize,
	}
	if r.RecordID != "" {
		body["adoid"] = r.RecordID
	}
	if r.Cell != "" {
		body["cell"] = r.Cell
	}
	return body
}

// GetUploadURL performs step 1: obtain a pre-signed URL for a direct upload.
func (c *Client) GetUploadURL(ctx context.Context, req UploadURLRequest) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/teams/%s/databases/%s/uploadurl",
		url.PathEscape(req.TeamID), url.PathEscape(req.DatabaseID))
	return c.do(ctx, "get_upload_url", http.MethodPost, path, nil, req.body())
}

// PutFile performs step 2: PUT the raw bytes to a pre-signed URL. The upload
// has no timeout and no size ceiling; storage-side rejections (expired URL,
// declared-size mismatch) surface as upstream errors.
func (c *Client) PutFile(ctx context.Context, uploadURL string, content []byte, contentType string) error {
	const op = "upload_file_to_url"

	if uploadURL == "" {
		return validationError(op, "missing upload URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return validationError(op, fmt.Sprintf("building request: %v", err))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(content))

	c.logger.Debug("anydb upload",
		"op", op,
		"content_type", contentType,
		"size", humanize.Bytes(uint64(len(content))),
	)

	resp, err := c.upload.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return upstreamError(op, resp.StatusCode, upstreamMessage(body, resp.Status))
	}
	return nil
}

// CompleteUploadRequest finalizes an upload. The tuple and declared filesize
// must match step 1; AnyDB checks that, not this client.
type CompleteUploadRequest struct {
	TeamID     string
	DatabaseID string
	RecordID   string
	Cell       string
	FileSize   string
}

// CompleteUpload performs step 3: tell AnyDB to attach the uploaded object to
// the record's cell.
func (c *Client) CompleteUpload(ctx context.Context, req CompleteUploadRequest) (json.RawMessage, error) {
	path := fmt.Sprintf("/v1/teams/%s/databases/%s/uploadcomplete",
		url.PathEscape(req.TeamID), url.PathEscape(req.DatabaseID))
	body := map[string]any{"filesize": req.FileSize}
	if req.RecordID != "" {
		body["adoid"] = req.RecordID
	}
	if req.Cell != "" {
		body["cell"] = req.Cell
	}
	return c.do(ctx, "complete_upload", http.MethodPost, path, nil, body)
}

// UploadFileRequest is the single-call convenience form of the three-step
// exchange.
type UploadFileRequest struct {
	TeamID      string
	DatabaseID  string
	RecordID    string
	Cell        string
	Filename    string
	Content     []byte
	ContentType string
}

// UploadFile runs the three steps in sequence. It is strictly a composition of
// GetUploadURL, PutFile, and CompleteUpload; a failure carries the failing
// step's operation name, and a step that fails leaves the earlier steps as
// they were (an unused pre-signed URL simply expires).
func (c *Client) UploadFile(ctx context.Context, req UploadFileRequest) (json.RawMessage, error) {
	filesize := strconv.Itoa(len(req.Content))

	issued, err := c.GetUploadURL(ctx, UploadURLRequest{
		TeamID:     req.TeamID,
		DatabaseID: req.DatabaseID,
		RecordID:   req.RecordID,
		Cell:       req.Cell,
		Filename:   req.Filename,
		FileSize:   filesize,
	})
	if err != nil {
		return nil, err
	}

	uploadURL, err := uploadURLFrom(issued)
	if err != nil {
		return nil, err
	}

	if err := c.PutFile(ctx, uploadURL, req.Content, req.ContentType); err != nil {
		return nil, err
	}

	return c.CompleteUpload(ctx, CompleteUploadRequest{
		TeamID:     req.TeamID,
		DatabaseID: req.DatabaseID,
		RecordID:   req.RecordID,
		Cell:       req.Cell,
		FileSize:   filesize,
	})
}

func uploadURLFrom(issued json.RawMessage) (string, error) {
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(issued, &payload); err != nil || payload.URL == "" {
		return "", upstreamError("get_upload_url", 0, "upload URL missing from response")
	}
	return payload.URL, nil
}

// DownloadRequest resolves a record cell's file reference. Redirect asks for
// an HTTP 302 instead of a JSON body; Preview asks for inline rendering
// instead of attachment framing and does not affect which shape is returned.
type DownloadRequest struct {
	Ref      RecordRef
	Cell     string
	Redirect bool
	Preview  bool
}

// Download resolves the file reference in a record's cell. With Redirect set
// and a 302 answer the result is {"url": <Location>, "redirect": true};
// otherwise AnyDB's JSON body is relayed unchanged.
func (c *Client) Download(ctx context.Context, req DownloadRequest) (json.RawMessage, error) {
	const op = "download_file"

	query := url.Values{
		"cell":     {req.Cell},
		"redirect": {strconv.FormatBool(req.Redirect)},
		"preview":  {strconv.FormatBool(req.Preview)},
	}

	resp, err := c.send(ctx, c.noRedirect, op, http.MethodGet, req.Ref.path()+"/file", query, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(op, fmt.Errorf("reading response: %w", err))
	}

	c.logger.Debug("anydb response",
		"op", op,
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(len(data))),
	)

	if resp.StatusCode == http.StatusFound {
		location := resp.Header.Get("Location")
		if !req.Redirect || location == "" {
			return nil, upstreamError(op, resp.StatusCode, "unexpected redirect from AnyDB")
		}
		return json.Marshal(map[string]any{"url": location, "redirect": true})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(op, resp.StatusCode, upstreamMessage(data, resp.Status))
	}
	return json.RawMessage(data), nil
}
