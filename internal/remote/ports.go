// Package remote defines the ports to the transactions REST API and the
// errors its adapters report.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"

	"caixa/internal/core"
)

// Ports for outbound adapters.
type (
	Lister interface {
		// List returns the whole collection in server order.
		List(ctx context.Context, kind core.Kind) ([]core.Transaction, error)
	}

	Writer interface {
		Create(ctx context.Context, kind core.Kind, d core.Draft) (core.Transaction, error)
		Update(ctx context.Context, kind core.Kind, id core.ID, d core.Draft) (core.Transaction, error)
		Delete(ctx context.Context, kind core.Kind, id core.ID) error
	}

	// API is the full remote surface used by the sync service.
	API interface {
		Lister
		Writer
	}
)

var (
	// ErrTransport wraps network failures: unreachable host, timeout, reset.
	ErrTransport = errors.New("remote transport failure")
	// ErrMalformedResponse means the server answered 2xx with a body that could not be decoded.
	ErrMalformedResponse = errors.New("malformed remote response")
	// ErrNotFound is reported by in-process backends for unknown ids.
	ErrNotFound = errors.New("transaction not found")
)

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Kind       core.Kind
	Method     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s /api/%s: status %d", e.Method, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("%s /api/%s: status %d: %s", e.Method, e.Kind, e.StatusCode, e.Body)
}

// ErrorType classifies err for structured logs.
func ErrorType(err error) string {
	var se *StatusError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return "remote_status_error"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded), isNetTimeout(err):
		return "timeout_error"
	case errors.Is(err, ErrTransport):
		return "network_error"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response_error"
	case errors.Is(err, ErrNotFound):
		return "not_found_error"
	default:
		return "internal_error"
	}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
