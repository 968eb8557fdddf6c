package mcp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `anydb-mcp exposes AnyDB record and file operations as tools.

Addressing (three opaque identifiers, always assigned by AnyDB):
- teamid: a team (workspace). list_teams shows the teams your credentials reach.
- adbid: a database within a team. list_databases(teamid) enumerates them.
- adoid: a record within a database. Records carry metadata (name, description,
  status, assignees) and content: cells keyed by grid position ("A1", "B2", ...).

Credentials: every call is forwarded to AnyDB with an API key and user email.
Over HTTP, send them as X-Api-Key and X-User-Email headers; over stdio the
server's configured defaults apply.

Typical flow:
1) list_teams, then list_databases, then list_records / search_records.
2) get_record for full content; create_record / update_record / move_record /
   copy_record / delete_record to mutate.
3) Files: upload_file attaches bytes to a record cell in one call. The
   decomposed form (get_upload_url, upload_file_to_url, complete_upload) gives
   per-step error detail; keep the tuple and filesize identical across steps.
4) download_file resolves a file cell to a URL.

Deleting: delete_record unlinks from the parents in removefromids; omit the
list (or pass 000000000000000000000000) to delete permanently.

Docs (read on demand):
- anydb://docs/operations (the operation catalog in detail)
- anydb://docs/uploads (the three-step upload exchange and its pitfalls)
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "anydb://docs/operations",
		Name:        "docs_operations",
		Title:       "AnyDB operation catalog",
		Description: "Every exposed operation, its required identifiers, and its pagination/flag semantics.",
		Content: `# AnyDB operation catalog

All operations are stateless pass-throughs: identifiers are validated for
presence, the call is forwarded to AnyDB, and AnyDB's JSON answer is returned
unchanged. Nothing is cached or retried; a failure is yours to retry.

## Browsing

- ` + "`list_teams`" + ` — teams reachable by the supplied credentials.
- ` + "`list_databases(teamid)`" + ` — databases of one team.
- ` + "`list_records(teamid, adbid)`" + ` — records of a database. ` + "`parentid`" + ` scopes
  to children of one record; ` + "`cursor`" + ` is an opaque token from the previous page.
- ` + "`search_records(teamid, adbid, query)`" + ` — keyword search. ` + "`start`" + ` and
  ` + "`limit`" + ` are forwarded as strings exactly as you pass them.
- ` + "`get_record(teamid, adbid, adoid)`" + ` — full record with metadata and cells.

## Mutation

- ` + "`create_record(teamid, adbid, name)`" + ` — optional ` + "`parentid`" + `,
  ` + "`templateid`" + `, and ` + "`content`" + ` (cells keyed by position). AnyDB assigns the
  new ` + "`adoid`" + `.
- ` + "`update_record`" + ` — any of name, description, status, assignees, content.
- ` + "`move_record`" + ` — reparent a record.
- ` + "`copy_record`" + ` — ` + "`attachmode`" + ` controls files: ` + "`none`" + ` (drop),
  ` + "`reference`" + ` (share), ` + "`duplicate`" + ` (deep copy).
- ` + "`delete_record`" + ` — ` + "`removefromids`" + ` is a comma-separated parent list to
  unlink from. Omitted, it defaults to the reserved all-zero identifier, which
  deletes the record permanently.

## Files

- ` + "`download_file(teamid, adbid, adoid, cell)`" + ` — resolves to a URL. With
  ` + "`redirect=true`" + ` the answer is ` + "`{url, redirect: true}`" + ` taken from AnyDB's
  302; otherwise AnyDB's JSON body is returned as-is. ` + "`preview=true`" + ` asks for
  inline rendering instead of attachment framing and changes nothing else.
- Uploads: see anydb://docs/uploads.
`,
	},
	{
		URI:         "anydb://docs/uploads",
		Name:        "docs_uploads",
		Title:       "File uploads",
		Description: "The three-step upload exchange, the single-call wrapper, and the invariants the caller owns.",
		Content: `# File uploads

AnyDB does not accept file bytes through its API. It issues a time-limited
pre-signed URL against its object storage, and attachment happens in three
ordered, independent calls:

1. ` + "`get_upload_url(teamid, adbid, filename, filesize[, adoid, cell])`" + ` —
   returns ` + "`{url: ...}`" + `, a pre-signed upload URL.
2. ` + "`upload_file_to_url(url, content[, contenttype])`" + ` — PUTs the raw bytes
   directly to storage. No timeout, no size ceiling. Content is accepted as
   base64 (preferred) or plain text.
3. ` + "`complete_upload(teamid, adbid, filesize[, adoid, cell])`" + ` — tells AnyDB
   to attach the uploaded object to the record cell.

## Invariants you own

- The ` + "`filesize`" + ` declared in steps 1 and 3 must match the byte count
  actually uploaded in step 2. The server does not cross-check; storage or
  AnyDB rejects a mismatch.
- The (teamid, adbid, adoid, cell) tuple must be identical across all three
  steps.
- There is no rollback. If step 2 or 3 fails, the pre-signed URL expires
  unused; retry the whole sequence from step 1.

## Single-call form

` + "`upload_file`" + ` runs the same three calls in sequence and reports which step
failed. Prefer it unless you need to stream very large content or want
per-step control.
`,
	},
}

func registerDocResources(server *sdkmcp.Server, docsPath string, logger *slog.Logger) {
	for _, doc := range docResources {
		addDocResource(server, doc)
	}
	for _, doc := range loadLocalDocs(docsPath, logger) {
		addDocResource(server, doc)
	}
}

func addDocResource(server *sdkmcp.Server, doc docResource) {
	server.AddResource(&sdkmcp.Resource{
		URI:         doc.URI,
		Name:        doc.Name,
		Title:       doc.Title,
		Description: doc.Description,
		MIMEType:    "text/markdown",
		Size:        int64(len(doc.Content)),
	}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
		uri := doc.URI
		if req != nil && req.Params != nil && req.Params.URI != "" {
			uri = req.Params.URI
		}
		return &sdkmcp.ReadResourceResult{
			Contents: []*sdkmcp.ResourceContents{{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     doc.Content,
			}},
		}, nil
	})
}

// loadLocalDocs reads the markdown files of a configured directory as extra
// resources, so a sibling source tree's prompt/schema docs can be served
// without rebuilding.
func loadLocalDocs(docsPath string, logger *slog.Logger) []docResource {
	if docsPath == "" {
		return nil
	}
	entries, err := os.ReadDir(docsPath)
	if err != nil {
		if logger != nil {
			logger.Warn("docs path unreadable", "path", docsPath, "error", err)
		}
		return nil
	}

	var docs []docResource
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		content, err := os.ReadFile(filepath.Join(docsPath, entry.Name()))
		if err != nil {
			if logger != nil {
				logger.Warn("doc file unreadable", "file", entry.Name(), "error", err)
			}
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".md")
		docs = append(docs, docResource{
			URI:         "anydb://docs/local/" + name,
			Name:        "docs_local_" + name,
			Title:       name,
			Description: "Local documentation file " + entry.Name(),
			Content:     string(content),
		})
	}
	return docs
}
