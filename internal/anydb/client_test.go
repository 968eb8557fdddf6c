package anydb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskKey(t *testing.T) {
	key := "sk_live_abcdefgh1234"
	masked := MaskKey(key)
	require.Equal(t, "sk_live_...1234", masked)
	require.NotContains(t, masked, "abcdefgh1")

	require.Equal(t, "********", MaskKey("short"))
	require.Equal(t, "********", MaskKey(""))
}

func TestCredentialsValidate(t *testing.T) {
	require.ErrorIs(t, Credentials{}.Validate(), ErrMissingAPIKey)
	require.ErrorIs(t, Credentials{APIKey: "key"}.Validate(), ErrMissingEmail)
	require.ErrorIs(t, Credentials{APIKey: "  ", Email: "a@b.c"}.Validate(), ErrMissingAPIKey)
	require.NoError(t, Credentials{APIKey: "key", Email: "a@b.c"}.Validate())
}

func TestMissingCredentialsMakesNoNetworkCall(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, Credentials{}, nil)
	_, err := client.ListTeams(context.Background())
	require.Error(t, err)
	require.True(t, IsKind(err, KindAuth))
	require.ErrorIs(t, err, ErrMissingAPIKey)
	require.Zero(t, calls.Load())
}

func TestRequestAttachesCredentialHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "secret-key-12345", r.Header.Get("X-Api-Key"))
		require.Equal(t, "agent@acme.test", r.Header.Get("X-User-Email"))
		w.Write([]byte(`[{"teamid":"T1","name":"Acme"}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, Credentials{APIKey: "secret-key-12345", Email: "agent@acme.test"}, nil)
	data, err := client.ListTeams(context.Background())
	require.NoError(t, err)
	require.JSONEq(t, `[{"teamid":"T1","name":"Acme"}]`, string(data))
}

func TestResponsePassedThroughByteForByte(t *testing.T) {
	// Field order and whitespace must survive untouched.
	raw := `{"meta":{"name":"Deal 1"},"adoid":"ado1","content":{}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(raw))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	data, err := client.GetRecord(context.Background(), RecordRef{TeamID: "T1", DatabaseID: "D1", RecordID: "ado1"})
	require.NoError(t, err)
	require.Equal(t, raw, string(data))
}

func TestUpstreamErrorExtraction(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"error field", http.StatusBadRequest, `{"error":"record is locked"}`, "record is locked"},
		{"message field", http.StatusNotFound, `{"message":"no such record"}`, "no such record"},
		{"opaque body", http.StatusBadGateway, `upstream exploded`, "502 Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(srv.URL)
			_, err := client.ListTeams(context.Background())
			require.Error(t, err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, KindUpstream, apiErr.Kind)
			require.Equal(t, tt.status, apiErr.Status)
			require.Equal(t, tt.message, apiErr.Message)
			require.Equal(t, "list_teams", apiErr.Op)
		})
	}
}

func TestTransportErrorKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newTestClient(srv.URL)
	_, err := client.ListTeams(context.Background())
	require.Error(t, err)
	require.True(t, IsKind(err, KindTransport))
}

func TestDeleteRecordForwardsReservedDefault(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("removefromids")
		w.Write([]byte(`{"deleted":true}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	ref := RecordRef{TeamID: "T1", DatabaseID: "D1", RecordID: "ado1"}

	_, err := client.DeleteRecord(context.Background(), ref, "")
	require.NoError(t, err)
	require.Equal(t, PermanentDelete, got)

	_, err = client.DeleteRecord(context.Background(), ref, "p1,p2")
	require.NoError(t, err)
	require.Equal(t, "p1,p2", got)
}

func TestSearchForwardsOpaquePaginationTokens(t *testing.T) {
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		w.Write([]byte(`{"records":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.SearchRecords(context.Background(), SearchRecordsRequest{
		TeamID:     "T1",
		DatabaseID: "D1",
		Query:      "deal",
		Start:      "20",
		Limit:      "10",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"deal"}, query["q"])
	require.Equal(t, []string{"20"}, query["start"])
	require.Equal(t, []string{"10"}, query["limit"])
}

func TestCopyRecordDefaultsAttachMode(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.True(t, strings.HasSuffix(r.URL.Path, "/copy"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.CopyRecord(context.Background(), CopyRecordRequest{
		Ref: RecordRef{TeamID: "T1", DatabaseID: "D1", RecordID: "ado1"},
	})
	require.NoError(t, err)
	require.Equal(t, AttachNone, body["attachmode"])
}

func newTestClient(baseURL string) *Client {
	return NewClient(baseURL, Credentials{APIKey: "test-key-123456", Email: "test@acme.test"}, nil)
}
