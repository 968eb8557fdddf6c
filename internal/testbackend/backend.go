// Package testbackend is an in-memory stand-in for the AnyDB platform used by
// unit and functional tests: records, the pre-signed upload exchange against
// its own storage path, and 302 downloads.
package testbackend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Record mirrors the JSON shape AnyDB returns for one record.
type Record struct {
	TeamID  string          `json:"teamid"`
	ADBID   string          `json:"adbid"`
	ADOID   string          `json:"adoid"`
	Meta    Meta            `json:"meta"`
	Content map[string]Cell `json:"content"`
	Parents []string        `json:"parents,omitempty"`
}

type Meta struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
	Locked      bool     `json:"locked"`
}

// Cell is one positioned, typed value within a record.
type Cell struct {
	Position string `json:"position"`
	Type     string `json:"type"`
	Value    any    `json:"value"`
}

type team struct {
	ID   string `json:"teamid"`
	Name string `json:"name"`
}

type database struct {
	ID     string `json:"adbid"`
	TeamID string `json:"teamid"`
	Name   string `json:"name"`
}

// Backend is the fake AnyDB server.
type Backend struct {
	Server *httptest.Server

	// Requests counts every API call that passed the credential check; tests
	// assert it stays zero for validation failures.
	Requests atomic.Int64

	mu        sync.Mutex
	teams     []team
	databases []database
	records   map[string]*Record
	uploads   map[string]*upload
	nextID    int
}

type upload struct {
	filename string
	filesize string
	recordID string
	cell     string
	content  []byte
	done     bool
}

// New starts a fake AnyDB with one team and one database.
func New() *Backend {
	b := &Backend{
		teams:     []team{{ID: "T1", Name: "Acme"}},
		databases: []database{{ID: "D1", TeamID: "T1", Name: "Sales"}},
		records:   map[string]*Record{},
		uploads:   map[string]*upload{},
	}

	r := chi.NewRouter()
	r.Use(b.requireCredentials)

	r.Get("/v1/teams", b.listTeams)
	r.Get("/v1/teams/{teamid}/databases", b.listDatabases)
	r.Route("/v1/teams/{teamid}/databases/{adbid}", func(r chi.Router) {
		r.Get("/records", b.listRecords)
		r.Post("/records", b.createRecord)
		r.Get("/records/{adoid}", b.getRecord)
		r.Put("/records/{adoid}", b.updateRecord)
		r.Delete("/records/{adoid}", b.deleteRecord)
		r.Post("/records/{adoid}/copy", b.copyRecord)
		r.Post("/records/{adoid}/move", b.moveRecord)
		r.Get("/records/{adoid}/file", b.downloadFile)
		r.Get("/search", b.searchRecords)
		r.Post("/uploadurl", b.uploadURL)
		r.Post("/uploadcomplete", b.uploadComplete)
	})
	r.Put("/storage/{token}", b.storagePut)
	r.Get("/storage/{token}", b.storageGet)

	b.Server = httptest.NewServer(r)
	return b
}

// URL is the backend base URL.
func (b *Backend) URL() string { return b.Server.URL }

// Close shuts the backend down.
func (b *Backend) Close() { b.Server.Close() }

// Record returns a stored record by ID, for test assertions.
func (b *Backend) Record(adoid string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[adoid]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

func (b *Backend) requireCredentials(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The storage path simulates pre-signed URLs: no headers needed.
		if strings.HasPrefix(r.URL.Path, "/storage/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") == "" || r.Header.Get("X-User-Email") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing credentials"})
			return
		}
		b.Requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) listTeams(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.teams)
}

func (b *Backend) listDatabases(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamid")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []database{}
	for _, db := range b.databases {
		if db.TeamID == teamID {
			out = append(out, db)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listRecords(w http.ResponseWriter, r *http.Request) {
	adbid := chi.URLParam(r, "adbid")
	parentID := r.URL.Query().Get("parentid")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []Record{}
	for _, rec := range b.records {
		if rec.ADBID != adbid {
			continue
		}
		if parentID != "" && !contains(rec.Parents, parentID) {
			continue
		}
		out = append(out, *rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": out, "cursor": ""})
}

func (b *Backend) createRecord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		ParentID    string          `json:"parentid"`
		TemplateID  string          `json:"templateid"`
		Content     map[string]Cell `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "name is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	rec := &Record{
		TeamID: chi.URLParam(r, "teamid"),
		ADBID:  chi.URLParam(r, "adbid"),
		ADOID:  fmt.Sprintf("ado%06d", b.nextID),
		Meta:   Meta{Name: body.Name, Description: body.Description},
	}
	if body.Content != nil {
		rec.Content = body.Content
	} else {
		rec.Content = map[string]Cell{}
	}
	if body.ParentID != "" {
		rec.Parents = []string{body.ParentID}
	}
	b.records[rec.ADOID] = rec
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) getRecord(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[chi.URLParam(r, "adoid")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) updateRecord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Status      string          `json:"status"`
		Assignees   []string        `json:"assignees"`
		Content     map[string]Cell `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[chi.URLParam(r, "adoid")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "record not found"})
		return
	}
	if body.Name != "" {
		rec.Meta.Name = body.Name
	}
	if body.Description != "" {
		rec.Meta.Description = body.Description
	}
	if body.Status != "" {
		rec.Meta.Status = body.Status
	}
	if body.Assignees != nil {
		rec.Meta.Assignees = body.Assignees
	}
	for key, cell := range body.Content {
		rec.Content[key] = cell
	}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) deleteRecord(w http.ResponseWriter, r *http.Request) {
	adoid := chi.URLParam(r, "adoid")
	removeFrom := r.URL.Query().Get("removefromids")

	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[adoid]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "record not found"})
		return
	}

	if removeFrom == "" || strings.Contains(removeFrom, "000000000000000000000000") {
		delete(b.records, adoid)
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "removefromids": removeFrom})
		return
	}
	for _, parent := range strings.Split(removeFrom, ",") {
		rec.Parents = remove(rec.Parents, strings.TrimSpace(parent))
	}
	if len(rec.Parents) == 0 {
		delete(b.records, adoid)
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": false, "removefromids": removeFrom})
}

func (b *Backend) searchRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	keyword := strings.ToLower(query.Get("q"))
	start, _ := strconv.Atoi(query.Get("start"))
	limit, _ := strconv.Atoi(query.Get("limit"))

	b.mu.Lock()
	defer b.mu.Unlock()
	matches := []Record{}
	for _, rec := range b.records {
		if rec.ADBID != chi.URLParam(r, "adbid") {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(rec.Meta.Name), keyword) {
			continue
		}
		matches = append(matches, *rec)
	}
	if start > len(matches) {
		start = len(matches)
	}
	matches = matches[start:]
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": matches,
		"start":   query.Get("start"),
		"limit":   query.Get("limit"),
	})
}

func (b *Backend) copyRecord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetParentID string `json:"targetparentid"`
		AttachMode     string `json:"attachmode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	src, ok := b.records[chi.URLParam(r, "adoid")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "record not found"})
		return
	}
	b.nextID++
	dup := *src
	dup.ADOID = fmt.Sprintf("ado%06d", b.nextID)
	dup.Content = map[string]Cell{}
	for key, cell := range src.Content {
		if cell.Type == "file" && body.AttachMode == "none" {
			continue
		}
		dup.Content[key] = cell
	}
	if body.TargetParentID != "" {
		dup.Parents = []string{body.TargetParentID}
	}
	b.records[dup.ADOID] = &dup
	writeJSON(w, http.StatusOK, map[string]any{"record": dup, "attachmode": body.AttachMode})
}

func (b *Backend) moveRecord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ParentID string `json:"parentid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ParentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "parentid is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[chi.URLParam(r, "adoid")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "record not found"})
		return
	}
	rec.Parents = []string{body.ParentID}
	writeJSON(w, http.StatusOK, rec)
}

func (b *Backend) downloadFile(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	cellPos := query.Get("cell")
	redirect := query.Get("redirect") == "true"
	preview := query.Get("preview") == "true"

	b.mu.Lock()
	rec, ok := b.records[chi.URLParam(r, "adoid")]
	var token string
	if ok {
		for _, cell := range rec.Content {
			if cell.Position != cellPos || cell.Type != "file" {
				continue
			}
			if ref, ok := cell.Value.(map[string]any); ok {
				token, _ = ref["token"].(string)
			}
		}
	}
	b.mu.Unlock()

	if token == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no file in cell"})
		return
	}

	fileURL := b.Server.URL + "/storage/" + token
	if preview {
		fileURL += "?disposition=inline"
	}
	if redirect {
		w.Header().Set("Location", fileURL)
		w.WriteHeader(http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": fileURL})
}

func (b *Backend) uploadURL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename string `json:"filename"`
		FileSize string `json:"filesize"`
		ADOID    string `json:"adoid"`
		Cell     string `json:"cell"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Filename == "" || body.FileSize == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "filename and filesize are required"})
		return
	}

	token := uuid.NewString()
	b.mu.Lock()
	b.uploads[token] = &upload{
		filename: body.Filename,
		filesize: body.FileSize,
		recordID: body.ADOID,
		cell:     body.Cell,
	}
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"url":      b.Server.URL + "/storage/" + token,
		"filename": body.Filename,
		"filesize": body.FileSize,
	})
}

func (b *Backend) storagePut(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	content, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "read body"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	up, ok := b.uploads[token]
	if !ok {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "upload URL expired"})
		return
	}
	up.content = content
	w.WriteHeader(http.StatusOK)
}

func (b *Backend) storageGet(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	up, ok := b.uploads[chi.URLParam(r, "token")]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write(up.content)
}

func (b *Backend) uploadComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FileSize string `json:"filesize"`
		ADOID    string `json:"adoid"`
		Cell     string `json:"cell"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.FileSize == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "filesize is required"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Attach the most recent uncommitted upload matching the tuple. Real
	// AnyDB correlates via its own storage layer.
	var token string
	var up *upload
	for t, candidate := range b.uploads {
		if candidate.done || candidate.content == nil {
			continue
		}
		if candidate.recordID == body.ADOID && candidate.cell == body.Cell {
			token, up = t, candidate
		}
	}
	if up == nil {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "no uploaded file to attach"})
		return
	}
	if up.filesize != body.FileSize {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "filesize mismatch"})
		return
	}
	up.done = true

	if rec, ok := b.records[body.ADOID]; ok && body.Cell != "" {
		rec.Content[body.Cell] = Cell{
			Position: body.Cell,
			Type:     "file",
			Value: map[string]any{
				"filename": up.filename,
				"filesize": up.filesize,
				"token":    token,
			},
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attached": true, "filename": up.filename})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func remove(items []string, drop string) []string {
	out := items[:0]
	for _, item := range items {
		if item != drop {
			out = append(out, item)
		}
	}
	return out
}
