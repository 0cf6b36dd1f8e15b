package cache

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultTTL is how long a page stays cached when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// CacheEntry represents a cached UTS page.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Page is the page number the body was requested as
	Page int `json:"page"`

	// ServiceError is the structured error carried by the body, if any
	ServiceError string `json:"service_error,omitempty"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry creates an entry for page's body that expires after ttl.
// A ttl <= 0 selects DefaultTTL.
func NewEntry(body []byte, statusCode, page int, ttl time.Duration) *CacheEntry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &CacheEntry{
		Data:       body,
		StatusCode: statusCode,
		Page:       page,
		Expires:    now.Add(ttl),
		CachedAt:   now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// cacheable reports why a page must not be served from cache. Service errors
// ("No results found") and non-200 answers are always refetched.
func (e *CacheEntry) cacheable() error {
	switch {
	case e.StatusCode != http.StatusOK:
		return fmt.Errorf("status %d", e.StatusCode)
	case e.ServiceError != "":
		return fmt.Errorf("service error %q", e.ServiceError)
	case len(e.Data) == 0:
		return fmt.Errorf("empty body")
	}
	return nil
}

// describes reports whether e holds the page addressed by key.
func (e *CacheEntry) describes(key CacheKey) error {
	if e.Page != key.Page {
		return fmt.Errorf("entry holds page %d, key addresses page %d", e.Page, key.Page)
	}
	return e.cacheable()
}
