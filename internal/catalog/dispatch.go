package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/HumanlyInc/anydb-mcp-service/internal/anydb"
	"github.com/HumanlyInc/anydb-mcp-service/internal/metrics"
)

// ErrUnknownOperation indicates a call named an operation the catalog does
// not contain.
var ErrUnknownOperation = errors.New("unknown operation")

type credentialsKey struct{}

// WithCredentials attaches per-call AnyDB credentials to a context. The
// transport layers call this after reading the credential headers.
func WithCredentials(ctx context.Context, creds anydb.Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey{}, creds)
}

// CredentialsFromContext returns the per-call credentials, if any were set.
func CredentialsFromContext(ctx context.Context) (anydb.Credentials, bool) {
	creds, ok := ctx.Value(credentialsKey{}).(anydb.Credentials)
	return creds, ok
}

// Dispatcher routes an operation name to its catalog entry. It holds no
// mutable state, so concurrent calls with distinct credentials are safe: each
// call builds its own gateway client from the credentials on its context (or
// the configured defaults, the single-tenant fallback).
type Dispatcher struct {
	baseURL  string
	defaults anydb.Credentials
	logger   *slog.Logger
	ops      map[string]Operation
	order    []string
}

// NewDispatcher builds the dispatcher from the static catalog.
func NewDispatcher(baseURL string, defaults anydb.Credentials, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	d := &Dispatcher{
		baseURL:  baseURL,
		defaults: defaults,
		logger:   logger,
		ops:      make(map[string]Operation),
	}
	for _, op := range Operations() {
		d.ops[op.Name] = op
		d.order = append(d.order, op.Name)
	}
	return d
}

// List returns the catalog in registration order.
func (d *Dispatcher) List() []Operation {
	ops := make([]Operation, 0, len(d.order))
	for _, name := range d.order {
		ops = append(ops, d.ops[name])
	}
	return ops
}

// Call validates the arguments for one operation and executes it. Validation
// failures are reported before any network call is made.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (Result, error) {
	start := time.Now()
	result, err := d.call(ctx, name, args)
	metrics.ObserveOperation(name, err, time.Since(start))
	if err != nil {
		d.logger.Debug("operation failed", "op", name, "error", err)
	}
	return result, err
}

func (d *Dispatcher) call(ctx context.Context, name string, args map[string]any) (Result, error) {
	op, ok := d.ops[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(op, args); err != nil {
		return Result{}, err
	}

	creds, ok := CredentialsFromContext(ctx)
	if !ok {
		creds = d.defaults
	}
	if err := creds.Validate(); err != nil {
		return Result{}, &anydb.Error{Kind: anydb.KindAuth, Op: name, Message: err.Error(), Err: err}
	}

	client := anydb.NewClient(d.baseURL, creds, d.logger)
	return op.Handler(ctx, client, Args(args))
}

func validateArgs(op Operation, args map[string]any) error {
	for _, param := range op.Params {
		value, present := args[param.Name]
		if !present {
			if param.Required {
				return &anydb.Error{
					Kind:    anydb.KindValidation,
					Op:      op.Name,
					Message: fmt.Sprintf("missing required parameter %q", param.Name),
				}
			}
			continue
		}
		if err := checkType(op.Name, param, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(opName string, param Param, value any) error {
	invalid := func(format string, a ...any) error {
		return &anydb.Error{Kind: anydb.KindValidation, Op: opName, Message: fmt.Sprintf(format, a...)}
	}

	switch param.Type {
	case TypeString:
		s, ok := value.(string)
		if !ok {
			return invalid("parameter %q must be a string", param.Name)
		}
		if param.Required && strings.TrimSpace(s) == "" {
			return invalid("parameter %q must not be empty", param.Name)
		}
		if len(param.Enum) > 0 && s != "" {
			for _, allowed := range param.Enum {
				if s == allowed {
					return nil
				}
			}
			return invalid("parameter %q must be one of %s", param.Name, strings.Join(param.Enum, ", "))
		}
	case TypeBoolean:
		switch value.(type) {
		case bool:
		case string:
			// REST query parameters arrive as "true"/"false".
			if s := value.(string); s != "true" && s != "false" {
				return invalid("parameter %q must be a boolean", param.Name)
			}
		default:
			return invalid("parameter %q must be a boolean", param.Name)
		}
	case TypeNumber:
		if _, ok := value.(float64); !ok {
			return invalid("parameter %q must be a number", param.Name)
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return invalid("parameter %q must be an object", param.Name)
		}
	case TypeStringArray:
		items, ok := value.([]any)
		if !ok {
			return invalid("parameter %q must be an array of strings", param.Name)
		}
		for _, item := range items {
			if _, ok := item.(string); !ok {
				return invalid("parameter %q must be an array of strings", param.Name)
			}
		}
	}
	return nil
}
