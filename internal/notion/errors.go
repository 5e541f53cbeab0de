package notion

import (
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
)

// ErrorKind is the user-facing category of a failed API call.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindRateLimited
	KindNetwork
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not-found"
	case KindRateLimited:
		return "rate-limited"
	case KindNetwork:
		return "network-unreachable"
	case KindMalformed:
		return "malformed-response"
	default:
		return "unknown"
	}
}

// APIError wraps a Notion API failure with its classified kind and the
// operation that produced it.
type APIError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notion %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classify wraps an error from the notionapi client into an *APIError.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		kind := KindUnknown
		switch apiErr.Status {
		case 401:
			kind = KindUnauthorized
		case 403:
			kind = KindForbidden
		case 404:
			kind = KindNotFound
		case 429:
			kind = KindRateLimited
		default:
			if apiErr.Code == "validation_error" {
				kind = KindMalformed
			}
		}
		return &APIError{Kind: kind, Op: op, Err: err}
	}

	// Anything that never produced an API response is a transport problem.
	return &APIError{Kind: KindNetwork, Op: op, Err: err}
}

// IsRetryable reports whether the error is worth retrying with backoff.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == KindRateLimited || apiErr.Kind == KindNetwork
}

// IsNotFound reports whether the error is a not-found classification.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotFound
}
