package client

import (
	"context"
	"fmt"

	"github.com/google/go-querystring/query"
)

// DefaultVersion is the UMLS release addressed when none is given.
const DefaultVersion = "current"

// SearchParams are the /search/{version} query parameters.
type SearchParams struct {
	String              string   `url:"string"`
	InputType           string   `url:"inputType,omitempty"`
	SearchType          string   `url:"searchType,omitempty"`
	ReturnIDType        string   `url:"returnIdType,omitempty"`
	Sabs                []string `url:"sabs,comma,omitempty"`
	IncludeObsolete     bool     `url:"includeObsolete,omitempty"`
	IncludeSuppressible bool     `url:"includeSuppressible,omitempty"`
	PartialSearch       bool     `url:"partialSearch,omitempty"`
}

// Search runs a term search against version (DefaultVersion if empty) and
// merges every result page, subject to opts.
func (c *Client) Search(ctx context.Context, version string, params SearchParams, opts ...GetOption) (*Result, error) {
	if params.String == "" {
		return nil, fmt.Errorf("search string is required")
	}
	if version == "" {
		version = DefaultVersion
	}

	v, err := query.Values(params)
	if err != nil {
		return nil, fmt.Errorf("encode search params: %w", err)
	}

	return c.Get(ctx, Path{"search", version}, v, opts...)
}
