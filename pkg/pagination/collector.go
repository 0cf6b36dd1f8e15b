package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sternrassler/uts-client/pkg/logging"
)

// Page is one decoded UTS response page.
type Page struct {
	// Number is the pageNumber reported by the response (0 if absent).
	Number int

	// Count is the termination criterion: total pages for this resource.
	Count int

	// RecCount is the total record count, when the response reports it.
	RecCount *int

	// Result is the raw "result" member (array, object or empty).
	Result json.RawMessage

	// Body is the complete response body.
	Body []byte

	// ServiceError is the structured error message, if the page carried one.
	ServiceError string
}

// Items splits the page result into records. An array yields its elements,
// an object yields itself, and null or absent yields nothing.
func (p *Page) Items() ([]json.RawMessage, error) {
	raw := bytes.TrimSpace(p.Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		return []json.RawMessage{raw}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("split page result: %w", err)
	}
	return items, nil
}

// PageSource fetches a single page by number.
type PageSource interface {
	FetchPage(ctx context.Context, pageNumber int) (*Page, error)
}

// PageSourceFunc adapts a function to PageSource.
type PageSourceFunc func(ctx context.Context, pageNumber int) (*Page, error)

// FetchPage implements PageSource.
func (f PageSourceFunc) FetchPage(ctx context.Context, pageNumber int) (*Page, error) {
	return f(ctx, pageNumber)
}

// Outcome is the result of collecting pages.
type Outcome struct {
	// Single is set when the first page was the only page. Items is empty.
	Single *Page

	// Items is the page-order concatenation of every fetched page's records.
	Items []json.RawMessage

	// Pages is the number of pages fetched.
	Pages int

	// PageCount is the last termination criterion seen.
	PageCount int

	// RecCount is the last record count seen.
	RecCount *int

	// Partial is set when the page limit stopped collection early.
	Partial bool

	// ServiceError is set when a page carried a structured error.
	ServiceError string

	// ErrorPage is the page number that carried ServiceError.
	ErrorPage int
}

// Envelope renders the merged items as a UTS-shaped response body:
// {"pageNumber":1,"pageCount":K,"recCount":R,"result":[...]}.
func (o *Outcome) Envelope() ([]byte, error) {
	items := o.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	env := struct {
		PageNumber int               `json:"pageNumber"`
		PageCount  int               `json:"pageCount"`
		RecCount   *int              `json:"recCount,omitempty"`
		Result     []json.RawMessage `json:"result"`
	}{
		PageNumber: 1,
		PageCount:  o.PageCount,
		RecCount:   o.RecCount,
		Result:     items,
	}
	return json.Marshal(env)
}

// Collect walks pages starting at 1 until the page count is exhausted, a page
// reports a service error, or limit pages (0 = unlimited) have been fetched.
// A resource whose first page reports a single page is returned unmerged in
// Outcome.Single. Errors from src are fatal and returned as-is. A service
// error is recorded in the Outcome for the caller to report.
func Collect(ctx context.Context, src PageSource, name string, limit int) (*Outcome, error) {
	logger := logging.NewLogger(logging.ComponentPagination)
	start := time.Now()
	out := &Outcome{PageCount: 1}

	for page := 1; page <= out.PageCount; {
		if limit > 0 && out.Pages >= limit {
			out.Partial = true
			logger.Debug().
				Str("resource", name).
				Int("limit", limit).
				Int("page_count", out.PageCount).
				Msg("Page limit reached, returning partial result")
			return out, nil
		}

		p, err := src.FetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		out.Pages++

		if p.ServiceError != "" {
			out.ServiceError = p.ServiceError
			out.ErrorPage = page
			logger.Debug().
				Str("resource", name).
				Int("page", page).
				Int("items", len(out.Items)).
				Msg("Service error, returning accumulated result")
			return out, nil
		}

		out.PageCount = p.Count
		out.RecCount = p.RecCount

		if out.PageCount <= 1 && out.Pages == 1 {
			out.Single = p
			return out, nil
		}

		items, err := p.Items()
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, items...)

		next := p.Number + 1
		if next <= page {
			next = page + 1
		}
		page = next
	}

	logger.Info().
		Str("resource", name).
		Int("pages", out.Pages).
		Int("items", len(out.Items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return out, nil
}
