package client

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates a Result.
type Kind int

const (
	// KindOK is a complete or page-limited result.
	KindOK Kind = iota

	// KindServiceError means a page carried a structured error. Payload holds
	// whatever was accumulated before it.
	KindServiceError
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindServiceError:
		return "service_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the aggregated response to a Get call. Fatal conditions are
// returned as errors instead.
type Result struct {
	Kind Kind

	// Payload is the single-page body exactly as received, or a merged
	// {"pageNumber":1,"pageCount":K,"result":[...]} envelope.
	Payload json.RawMessage

	// Message is the service error text for KindServiceError.
	Message string

	// ErrorPage is the page that reported Message.
	ErrorPage int

	// Pages is the number of pages fetched (cache hits included).
	Pages int

	// Merged is set when Payload was assembled from several pages.
	Merged bool

	// Partial is set when a page limit stopped the fetch early.
	Partial bool
}

// OK reports whether the result carries no service error.
func (r *Result) OK() bool {
	return r.Kind == KindOK
}

// Err returns the service error as an error, or nil for KindOK.
func (r *Result) Err() error {
	if r.Kind != KindServiceError {
		return nil
	}
	return &ServiceError{Message: r.Message, Page: r.ErrorPage}
}

// Decode unmarshals the payload into v.
func (r *Result) Decode(v any) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// Records returns the payload's "result" member as individual records. A
// single object result yields one record.
func (r *Result) Records() ([]json.RawMessage, error) {
	var env struct {
		Result json.RawMessage `json:"result"`
	}
	if err := r.Decode(&env); err != nil {
		return nil, err
	}
	p := pageResult(env.Result)
	return p.Items()
}
