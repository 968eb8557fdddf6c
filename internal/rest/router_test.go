package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
	"github.com/HumanlyInc/anydb-mcp-service/internal/rest"
	"github.com/HumanlyInc/anydb-mcp-service/internal/testbackend"
)

type restEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type restFixture struct {
	backend *testbackend.Backend
	server  *httptest.Server
}

func newRestFixture(t *testing.T, tokens []string) *restFixture {
	t.Helper()
	backend := testbackend.New()
	dispatcher := catalog.NewDispatcher(backend.URL(), anydb.Credentials{}, nil)
	router := rest.NewRouter(dispatcher, rest.Options{AuthTokens: tokens})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		backend.Close()
	})
	return &restFixture{backend: backend, server: server}
}

func (f *restFixture) post(t *testing.T, path string, body any) (*http.Response, restEnvelope) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", "rest-test-key-123456")
	req.Header.Set("X-User-Email", "rest@acme.test")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env restEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestRESTSuccessEnvelope(t *testing.T) {
	f := newRestFixture(t, nil)
	resp, env := f.post(t, "/v1/list_teams", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
	require.JSONEq(t, `[{"teamid":"T1","name":"Acme"}]`, string(env.Data))
	require.Empty(t, env.Error)
}

func TestRESTValidationReturns400(t *testing.T) {
	f := newRestFixture(t, nil)
	resp, env := f.post(t, "/v1/get_record", map[string]any{"teamid": "T1"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.False(t, env.Success)
	require.Contains(t, env.Error, "adbid")
	require.Zero(t, f.backend.Requests.Load())
}

func TestRESTMissingCredentialsReturns400(t *testing.T) {
	f := newRestFixture(t, nil)
	resp, err := http.Post(f.server.URL+"/v1/list_teams", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, f.backend.Requests.Load())
}

func TestRESTBackendFailureReturns500(t *testing.T) {
	f := newRestFixture(t, nil)
	resp, env := f.post(t, "/v1/get_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": "nope",
	})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.False(t, env.Success)
	require.Contains(t, env.Error, "record not found")
}

func TestRESTUnknownOperationReturns404(t *testing.T) {
	f := newRestFixture(t, nil)
	resp, err := http.Post(f.server.URL+"/v1/explode_record", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRESTDownloadRedirect(t *testing.T) {
	f := newRestFixture(t, nil)

	_, created := f.post(t, "/v1/create_record", map[string]any{
		"teamid": "T1", "adbid": "D1", "name": "With file",
	})
	var rec testbackend.Record
	require.NoError(t, json.Unmarshal(created.Data, &rec))

	_, uploaded := f.post(t, "/v1/upload_file", map[string]any{
		"teamid": "T1", "adbid": "D1", "adoid": rec.ADOID, "cell": "A1",
		"filename": "deal.pdf", "content": "MDEyMzQ1Njc4OQ==",
	})
	require.True(t, uploaded.Success)

	// GET form, no redirect following.
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	req, err := http.NewRequest(http.MethodGet,
		f.server.URL+"/v1/download_file?teamid=T1&adbid=D1&adoid="+rec.ADOID+"&cell=A1&redirect=true", nil)
	require.NoError(t, err)
	req.Header.Set("X-Api-Key", "rest-test-key-123456")
	req.Header.Set("X-User-Email", "rest@acme.test")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Location"))
}

func TestRESTHealthAndOpenAPI(t *testing.T) {
	f := newRestFixture(t, []string{"svc-token"})

	// Health and the API description stay open even with auth enabled.
	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/openapi.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "3.1.0", doc.OpenAPI)
	require.Len(t, doc.Paths, 15)
	require.Contains(t, doc.Paths, "/v1/upload_file")
	require.Contains(t, doc.Paths["/v1/download_file"], "get")
}
