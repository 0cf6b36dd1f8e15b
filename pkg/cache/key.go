package cache

import (
	"fmt"
	"net/url"
	"strings"
)

// CacheKey identifies one page of one UTS resource.
type CacheKey struct {
	// URL is the resource URL without query string
	URL string

	// Query holds the caller's query parameters; ticket and paging
	// parameters are ignored
	Query url.Values

	// Page is the page number
	Page int

	// PageSize is the requested page size
	PageSize int
}

// ignoredParams never contribute to a key.
var ignoredParams = []string{"ticket", "pageNumber", "pageSize"}

// String generates a deterministic cache key string.
// Format: uts:<url>[?<encoded query>]:page=<n>:size=<n>
//
// The query is encoded with url.Values.Encode, so keys are sorted and values
// escaped; repeated parameters stay distinct from comma-joined ones.
//
// Example:
//
//	uts:https://uts-ws.nlm.nih.gov/rest/search/current?string=covid:page=1:size=25
func (k CacheKey) String() string {
	var b strings.Builder
	b.WriteString("uts:")
	b.WriteString(strings.TrimRight(k.URL, "/"))

	query := make(url.Values, len(k.Query))
	for key, vs := range k.Query {
		query[key] = vs
	}
	for _, key := range ignoredParams {
		query.Del(key)
	}
	if encoded := query.Encode(); encoded != "" {
		b.WriteByte('?')
		b.WriteString(encoded)
	}

	fmt.Fprintf(&b, ":page=%d:size=%d", k.Page, k.PageSize)
	return b.String()
}
