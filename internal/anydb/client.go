package anydb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	headerAPIKey = "X-Api-Key"
	headerEmail  = "X-User-Email"

	// apiTimeout bounds every AnyDB API call. The raw byte upload to a
	// pre-signed URL is exempt: file size is unbounded from our side.
	apiTimeout = 30 * time.Second
)

// PermanentDelete is the reserved parent list that tells AnyDB to delete a
// record outright instead of unlinking it from specific parents.
const PermanentDelete = "000000000000000000000000"

// Credentials authenticate a single outbound call to AnyDB. They are never
// persisted beyond the request that carries them.
type Credentials struct {
	APIKey string
	Email  string
}

// Validate fails fast before any network call is attempted.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(c.Email) == "" {
		return ErrMissingEmail
	}
	return nil
}

// MaskKey renders an API key safe for logs: first 8 and last 4 characters
// visible, middle replaced. Keys shorter than 12 characters are fully redacted.
func MaskKey(key string) string {
	if len(key) < 12 {
		return "********"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// Client issues authenticated HTTP calls against the AnyDB REST API.
// Each Client is bound to one credential pair; dispatchers construct a fresh
// one per call, so a Client is never shared across tenants.
type Client struct {
	baseURL string
	creds   Credentials
	logger  *slog.Logger

	api    *http.Client
	upload *http.Client
	// noRedirect is used for downloads so a 302 can be surfaced to the
	// caller instead of being followed by the transport.
	noRedirect *http.Client
}

// NewClient creates a gateway client for one call's credentials.
func NewClient(baseURL string, creds Credentials, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		logger:  logger,
		api:     &http.Client{Timeout: apiTimeout},
		upload:  &http.Client{},
		noRedirect: &http.Client{
			Timeout: apiTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// do performs one authenticated JSON round trip and relays the response body
// byte-for-byte. Request bodies are logged as field names and sizes only;
// record content never reaches the log.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (json.RawMessage, error) {
	resp, err := c.send(ctx, c.api, op, method, path, query, body)
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

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstreamError(op, resp.StatusCode, upstreamMessage(data, resp.Status))
	}
	return json.RawMessage(data), nil
}

func (c *Client) send(ctx context.Context, httpClient *http.Client, op, method, path string, query url.Values, body any) (*http.Response, error) {
	if err := c.creds.Validate(); err != nil {
		return nil, authError(op, err)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	var bodySize int
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, validationError(op, fmt.Sprintf("encoding request body: %v", err))
		}
		reader = bytes.NewReader(payload)
		bodySize = len(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, validationError(op, fmt.Sprintf("building request: %v", err))
	}
	req.Header.Set(headerAPIKey, c.creds.APIKey)
	req.Header.Set(headerEmail, c.creds.Email)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("anydb request",
		"op", op,
		"method", method,
		"path", path,
		"api_key", MaskKey(c.creds.APIKey),
		"query", paramNames(query),
		"body_fields", fieldNames(body),
		"body_size", humanize.Bytes(uint64(bodySize)),
	)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	return resp, nil
}

// upstreamMessage extracts AnyDB's own error text from a failure body,
// falling back to the HTTP status line.
func upstreamMessage(body []byte, status string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return status
}

func paramNames(query url.Values) string {
	if len(query) == 0 {
		return ""
	}
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func fieldNames(body any) string {
	if body == nil {
		return ""
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
