package anydb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeStorage wires a minimal backend for the three-step exchange: the
// uploadurl endpoint issues a URL on the same server, the storage path accepts
// a PUT, and uploadcomplete acknowledges.
type fakeStorage struct {
	srv *httptest.Server

	uploadURLCalls []map[string]any
	putBody        []byte
	putContentType string
	completeCalls  []map[string]any

	failPut      bool
	failComplete bool
}

func newFakeStorage(t *testing.T) *fakeStorage {
	t.Helper()
	f := &fakeStorage{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/teams/T1/databases/D1/uploadurl", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.uploadURLCalls = append(f.uploadURLCalls, body)
		json.NewEncoder(w).Encode(map[string]any{"url": f.srv.URL + "/storage/tok1"})
	})
	mux.HandleFunc("PUT /storage/tok1", func(w http.ResponseWriter, r *http.Request) {
		if f.failPut {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"upload URL expired"}`))
			return
		}
		f.putBody, _ = io.ReadAll(r.Body)
		f.putContentType = r.Header.Get("Content-Type")
	})
	mux.HandleFunc("POST /v1/teams/T1/databases/D1/uploadcomplete", func(w http.ResponseWriter, r *http.Request) {
		if f.failComplete {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"nothing to attach"}`))
			return
		}
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.completeCalls = append(f.completeCalls, body)
		w.Write([]byte(`{"attached":true}`))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func TestThreeStepUploadSequence(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage(t)
	client := newTestClient(storage.srv.URL)

	issued, err := client.GetUploadURL(ctx, UploadURLRequest{
		TeamID: "T1", DatabaseID: "D1", RecordID: "ado1", Cell: "A1",
		Filename: "deal.pdf", FileSize: "10",
	})
	require.NoError(t, err)

	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(issued, &resp))
	require.Equal(t, storage.srv.URL+"/storage/tok1", resp.URL)
	require.Equal(t, "10", storage.uploadURLCalls[0]["filesize"])

	require.NoError(t, client.PutFile(ctx, resp.URL, []byte("0123456789"), "application/pdf"))
	require.Equal(t, "0123456789", string(storage.putBody))
	require.Equal(t, "application/pdf", storage.putContentType)

	_, err = client.CompleteUpload(ctx, CompleteUploadRequest{
		TeamID: "T1", DatabaseID: "D1", RecordID: "ado1", Cell: "A1", FileSize: "10",
	})
	require.NoError(t, err)
	require.Equal(t, "10", storage.completeCalls[0]["filesize"])
}

func TestFilesizeMismatchIsNotCrossChecked(t *testing.T) {
	// The declared filesize is the caller's invariant: step 3 with a
	// different value than step 1 is forwarded, not rejected locally.
	ctx := context.Background()
	storage := newFakeStorage(t)
	client := newTestClient(storage.srv.URL)

	_, err := client.GetUploadURL(ctx, UploadURLRequest{
		TeamID: "T1", DatabaseID: "D1", Filename: "deal.pdf", FileSize: "1024",
	})
	require.NoError(t, err)

	_, err = client.CompleteUpload(ctx, CompleteUploadRequest{
		TeamID: "T1", DatabaseID: "D1", FileSize: "999",
	})
	require.NoError(t, err)
	require.Equal(t, "999", storage.completeCalls[0]["filesize"])
}

func TestUploadFileComposesTheThreeSteps(t *testing.T) {
	ctx := context.Background()
	storage := newFakeStorage(t)
	client := newTestClient(storage.srv.URL)

	data, err := client.UploadFile(ctx, UploadFileRequest{
		TeamID: "T1", DatabaseID: "D1", RecordID: "ado1", Cell: "A1",
		Filename: "deal.pdf", Content: []byte("0123456789"),
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"attached":true}`, string(data))

	// filesize is derived from the content and declared identically in
	// steps 1 and 3.
	require.Equal(t, "10", storage.uploadURLCalls[0]["filesize"])
	require.Equal(t, "10", storage.completeCalls[0]["filesize"])
	require.Equal(t, "0123456789", string(storage.putBody))
}

func TestUploadFileNamesTheFailingStep(t *testing.T) {
	ctx := context.Background()

	t.Run("put fails", func(t *testing.T) {
		storage := newFakeStorage(t)
		storage.failPut = true
		client := newTestClient(storage.srv.URL)

		_, err := client.UploadFile(ctx, UploadFileRequest{
			TeamID: "T1", DatabaseID: "D1", Filename: "deal.pdf", Content: []byte("x"),
		})
		require.Error(t, err)
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "upload_file_to_url", apiErr.Op)
		require.Empty(t, storage.completeCalls, "complete must not run after a failed PUT")
	})

	t.Run("complete fails", func(t *testing.T) {
		storage := newFakeStorage(t)
		storage.failComplete = true
		client := newTestClient(storage.srv.URL)

		_, err := client.UploadFile(ctx, UploadFileRequest{
			TeamID: "T1", DatabaseID: "D1", Filename: "deal.pdf", Content: []byte("x"),
		})
		require.Error(t, err)
		var apiErr *Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "complete_upload", apiErr.Op)
		// No rollback: the bytes stay uploaded, the URL expires on its own.
		require.Equal(t, "x", string(storage.putBody))
	})
}

func TestDownloadRedirect(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("redirect") == "true" {
			w.Header().Set("Location", "https://storage/x")
			w.WriteHeader(http.StatusFound)
			return
		}
		w.Write([]byte(`{"url":"https://storage/x"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ref := RecordRef{TeamID: "T1", DatabaseID: "D1", RecordID: "ado1"}

	data, err := client.Download(ctx, DownloadRequest{Ref: ref, Cell: "A1", Redirect: true})
	require.NoError(t, err)
	require.JSONEq(t, `{"url":"https://storage/x","redirect":true}`, string(data))

	data, err = client.Download(ctx, DownloadRequest{Ref: ref, Cell: "A1"})
	require.NoError(t, err)
	require.Equal(t, `{"url":"https://storage/x"}`, string(data))
}

func TestDownloadForwardsPreviewFlag(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"url":"https://storage/x"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.Download(context.Background(), DownloadRequest{
		Ref:     RecordRef{TeamID: "T1", DatabaseID: "D1", RecordID: "ado1"},
		Cell:    "A1",
		Preview: true,
	})
	require.NoError(t, err)
	require.Contains(t, query, "preview=true")
	require.Contains(t, query, "redirect=false")
}

func TestPutFileRejectsEmptyURL(t *testing.T) {
	client := newTestClient("http://unused")
	err := client.PutFile(context.Background(), "", []byte("x"), "")
	require.True(t, IsKind(err, KindValidation))
}
