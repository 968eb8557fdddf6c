// Package rest is the HTTP mirror of the tool catalog: one route per
// operation, the same validation, the same pass-through semantics.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/catalog"
	"github.com/HumanlyInc/anydb-mcp-service/internal/metrics"
)

// Options configure the REST router.
type Options struct {
	// DefaultCredentials apply when a request carries no credential headers.
	DefaultCredentials anydb.Credentials
	// AuthTokens guard this service itself; empty disables auth.
	AuthTokens []string
	Logger     *slog.Logger
}

// envelope is the uniform response shape of every REST route.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewRouter builds the REST surface from the operation catalog.
func NewRouter(dispatcher *catalog.Dispatcher, opts Options) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger))
	r.Use(metrics.HTTP)

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.json", handleOpenAPI(dispatcher))

	srv := &server{dispatcher: dispatcher, defaults: opts.DefaultCredentials, logger: logger}

	r.Group(func(r chi.Router) {
		if len(opts.AuthTokens) > 0 {
			r.Use(AuthMiddleware(opts.AuthTokens))
		}
		r.Use(credentialsMiddleware(opts.DefaultCredentials))

		for _, op := range dispatcher.List() {
			op := op
			r.Post("/v1/"+op.Name, srv.handleOperation(op))
			// download_file is additionally a GET so a browser or agent can
			// follow the redirect directly.
			if op.Name == "download_file" {
				r.Get("/v1/"+op.Name, srv.handleDownloadGet(op))
			}
		}
	})

	return r
}

type server struct {
	dispatcher *catalog.Dispatcher
	defaults   anydb.Credentials
	logger     *slog.Logger
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) handleOperation(op catalog.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args := map[string]any{}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
				writeEnvelope(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid JSON body"})
				return
			}
		}

		result, err := s.dispatcher.Call(r.Context(), op.Name, args)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if result.RedirectURL != "" {
			http.Redirect(w, r, result.RedirectURL, http.StatusFound)
			return
		}
		writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: result.Data})
	}
}

// handleDownloadGet decodes download arguments from the query string.
func (s *server) handleDownloadGet(op catalog.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args := map[string]any{}
		query := r.URL.Query()
		for _, param := range op.Params {
			if value := query.Get(param.Name); value != "" {
				args[param.Name] = value
			}
		}

		result, err := s.dispatcher.Call(r.Context(), op.Name, args)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if result.RedirectURL != "" {
			http.Redirect(w, r, result.RedirectURL, http.StatusFound)
			return
		}
		writeEnvelope(w, http.StatusOK, envelope{Success: true, Data: result.Data})
	}
}

// writeError maps the gateway error taxonomy onto HTTP statuses: caller-side
// failures are 400, everything between us and AnyDB is 500.
func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, catalog.ErrUnknownOperation) {
		status = http.StatusNotFound
	} else {
		var apiErr *anydb.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Kind {
			case anydb.KindValidation, anydb.KindAuth:
				status = http.StatusBadRequest
			}
		}
	}
	writeEnvelope(w, status, envelope{Success: false, Error: err.Error()})
}

func writeEnvelope(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
