// Package client provides the UTS REST client: every request carries a fresh
// service ticket, passes the rate limiter, and multi-page results are fetched
// and merged transparently.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/uts-client/pkg/auth"
	"github.com/Sternrassler/uts-client/pkg/cache"
	"github.com/Sternrassler/uts-client/pkg/pagination"
	"github.com/Sternrassler/uts-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the UTS REST API root.
	DefaultBaseURL = "https://uts-ws.nlm.nih.gov/rest"

	// DefaultPageSize is the page size sent unless the caller overrides it.
	DefaultPageSize = 25

	// DefaultOverloadStatus is the status treated as upstream failure.
	DefaultOverloadStatus = http.StatusServiceUnavailable

	// DefaultUserAgent identifies the client to UTS.
	DefaultUserAgent = "uts-client/0.1.0"
)

// Prometheus metrics for UTS client operations.
var (
	utsRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uts_requests_total",
		Help: "Total UTS resource requests by status",
	}, []string{"status"})

	utsRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uts_request_duration_seconds",
		Help:    "UTS resource request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	utsPagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uts_pages_fetched_total",
		Help: "Total pages fetched by source",
	}, []string{"source"})

	utsServiceErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uts_service_errors_total",
		Help: "Total structured service errors returned as results",
	})

	utsFatalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uts_fatal_errors_total",
		Help: "Total fatal errors by class",
	}, []string{"class"})
)

// TicketSource mints single-use service tickets. *auth.Session implements it.
type TicketSource interface {
	ServiceTicket(ctx context.Context) (string, error)
}

// Path is a resource path as a sequence of segments, e.g.
// Path{"content", "current", "CUI", "C0009044"}. A single segment holding an
// absolute http(s) URL is requested as-is.
type Path []string

// String returns the segments joined by '/'.
func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) absolute() bool {
	return len(p) == 1 && (strings.HasPrefix(p[0], "https://") || strings.HasPrefix(p[0], "http://"))
}

// Client is the UTS REST client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	session    TicketSource
	limiter    ratelimit.Limiter
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Session mints service tickets (REQUIRED)
	Session TicketSource

	// Limiter gates every resource request (REQUIRED). Use the same limiter
	// as the Session so tickets and resources share one quota.
	Limiter ratelimit.Limiter

	// BaseURL of the REST API
	BaseURL string

	// UserAgent header
	UserAgent string

	// PageSize sent with every request unless overridden per call
	PageSize int

	// OverloadStatus is the HTTP status treated as fatal upstream failure
	OverloadStatus int

	// HTTPClient performs requests (default: 30s timeout)
	HTTPClient *http.Client

	// Cache stores successful pages (optional)
	Cache    *cache.Manager
	CacheTTL time.Duration

	// Logger (default: global logger with component field)
	Logger *zerolog.Logger
}

// DefaultConfig returns a production configuration.
func DefaultConfig(session TicketSource, limiter ratelimit.Limiter) Config {
	return Config{
		Session:        session,
		Limiter:        limiter,
		BaseURL:        DefaultBaseURL,
		UserAgent:      DefaultUserAgent,
		PageSize:       DefaultPageSize,
		OverloadStatus: DefaultOverloadStatus,
		CacheTTL:       cache.DefaultTTL,
	}
}

// New creates a new UTS client.
func New(cfg Config) (*Client, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("ticket session is required")
	}
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.PageSize < 0 {
		return nil, fmt.Errorf("page_size must be >= 0 (got %d)", cfg.PageSize)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.OverloadStatus == 0 {
		cfg.OverloadStatus = DefaultOverloadStatus
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := log.With().Str("component", "uts-client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		session:    cfg.Session,
		limiter:    cfg.Limiter,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     logger,
	}, nil
}

// GetOption adjusts a single Get call.
type GetOption func(*getOptions)

type getOptions struct {
	limitPages int
	pageSize   int
}

// WithLimitPages caps the number of pages fetched. 0 means unlimited.
func WithLimitPages(n int) GetOption {
	return func(o *getOptions) {
		o.limitPages = n
	}
}

// WithPageSize overrides the configured page size for one call.
func WithPageSize(n int) GetOption {
	return func(o *getOptions) {
		o.pageSize = n
	}
}

// Get fetches every page of a resource and returns the aggregated result.
//
// A single-page resource is returned unchanged. Structured service errors
// produce a KindServiceError result holding what was gathered before the
// error; authentication, overload, transport and decode failures are
// returned as errors.
func (c *Client) Get(ctx context.Context, path Path, params url.Values, opts ...GetOption) (*Result, error) {
	req, err := c.newPageRequest(path, params, opts)
	if err != nil {
		return nil, err
	}

	out, err := pagination.Collect(ctx, req, req.target, req.limit)
	if err != nil {
		c.countFatal(err)
		return nil, err
	}

	res := &Result{
		Kind:    KindOK,
		Pages:   out.Pages,
		Partial: out.Partial,
	}

	switch {
	case out.ServiceError != "":
		res.Kind = KindServiceError
		res.Message = out.ServiceError
		res.ErrorPage = out.ErrorPage
		utsServiceErrorsTotal.Inc()
		c.logger.Warn().
			Str("resource", req.target).
			Int("page", out.ErrorPage).
			Str("error", out.ServiceError).
			Msg("UTS returned service error")
	case out.Single != nil:
		res.Payload = out.Single.Body
		return res, nil
	}

	payload, err := out.Envelope()
	if err != nil {
		return nil, fmt.Errorf("merge pages: %w", err)
	}
	res.Payload = payload
	res.Merged = res.Kind == KindOK
	return res, nil
}

// GetPage fetches exactly one page of a resource without following
// pagination.
func (c *Client) GetPage(ctx context.Context, path Path, params url.Values, page int, opts ...GetOption) (*pagination.Page, error) {
	req, err := c.newPageRequest(path, params, opts)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	p, err := req.FetchPage(ctx, page)
	if err != nil {
		c.countFatal(err)
		return nil, err
	}
	return p, nil
}

// pageRequest is one resource addressed by Get; it implements
// pagination.PageSource.
type pageRequest struct {
	c        *Client
	target   string
	query    url.Values
	pageSize int
	limit    int
}

func (c *Client) newPageRequest(path Path, params url.Values, opts []GetOption) (*pageRequest, error) {
	o := getOptions{pageSize: c.config.PageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limitPages < 0 {
		return nil, fmt.Errorf("limit_pages must be >= 0 (got %d)", o.limitPages)
	}

	target, query, err := c.resolve(path)
	if err != nil {
		return nil, err
	}
	for k, vs := range params {
		query[k] = append([]string(nil), vs...)
	}

	// A caller-supplied pageSize wins over options and config.
	if v := query.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid pageSize %q", v)
		}
		o.pageSize = n
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}

	return &pageRequest{
		c:        c,
		target:   target,
		query:    query,
		pageSize: o.pageSize,
		limit:    o.limitPages,
	}, nil
}

// resolve builds the request URL and any query already embedded in it.
func (c *Client) resolve(path Path) (string, url.Values, error) {
	if path.absolute() {
		u, err := url.Parse(path[0])
		if err != nil {
			return "", nil, fmt.Errorf("parse resource url: %w", err)
		}
		query := u.Query()
		u.RawQuery = ""
		return u.String(), query, nil
	}

	if len(path) == 0 {
		return "", nil, fmt.Errorf("resource path is empty")
	}

	segments := make([]string, len(path))
	for i, s := range path {
		segments[i] = url.PathEscape(strings.Trim(s, "/"))
	}
	return c.baseURL + "/" + strings.Join(segments, "/"), url.Values{}, nil
}

// FetchPage implements pagination.PageSource.
func (r *pageRequest) FetchPage(ctx context.Context, pageNumber int) (*pagination.Page, error) {
	c := r.c
	key := cache.CacheKey{URL: r.target, Query: r.query, Page: pageNumber, PageSize: r.pageSize}

	if c.cache != nil {
		if p, ok := r.cachedPage(ctx, key); ok {
			return p, nil
		}
	}

	ticket, err := c.session.ServiceTicket(ctx)
	if err != nil {
		return nil, fmt.Errorf("service ticket: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	query := url.Values{}
	for k, vs := range r.query {
		query[k] = vs
	}
	query.Set("ticket", ticket)
	query.Set("pageNumber", strconv.Itoa(pageNumber))
	query.Set("pageSize", strconv.Itoa(r.pageSize))

	body, status, err := c.do(ctx, r.target, query)
	if err != nil {
		return nil, err
	}

	p, err := decodePage(body, pageNumber, r.pageSize)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("resource", r.target).
			Int("status", status).
			Msg("Malformed UTS response")
		return nil, &DecodeError{URL: r.target, StatusCode: status, Body: body, Err: err}
	}
	utsPagesFetchedTotal.WithLabelValues("network").Inc()

	if c.cache != nil {
		entry := cache.NewEntry(body, status, pageNumber, c.config.CacheTTL)
		entry.ServiceError = p.ServiceError
		switch err := c.cache.Set(ctx, key, entry); {
		case errors.Is(err, cache.ErrNotCacheable):
			c.logger.Debug().Err(err).Str("resource", r.target).Int("page", pageNumber).Msg("Page not cached")
		case err != nil:
			c.logger.Warn().Err(err).Str("resource", r.target).Msg("Failed to cache page")
		}
	}

	return p, nil
}

// cachedPage returns the cached copy of key's page. Entries that are invalid
// or no longer decode are deleted so the page is refetched and re-cached.
func (r *pageRequest) cachedPage(ctx context.Context, key cache.CacheKey) (*pagination.Page, bool) {
	c := r.c

	entry, err := c.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return nil, false
	case errors.Is(err, cache.ErrInvalidEntry):
		c.logger.Warn().Err(err).Str("resource", r.target).Int("page", key.Page).Msg("Discarding invalid cache entry")
	case err != nil:
		c.logger.Warn().Err(err).Str("resource", r.target).Msg("Cache get error")
		return nil, false
	default:
		p, err := decodePage(entry.Data, key.Page, r.pageSize)
		if err == nil && p.ServiceError == "" {
			utsPagesFetchedTotal.WithLabelValues("cache").Inc()
			c.logger.Debug().Str("resource", r.target).Int("page", key.Page).Msg("Page served from cache")
			return p, true
		}
		c.logger.Warn().Err(err).Str("resource", r.target).Int("page", key.Page).Msg("Discarding undecodable cache entry")
	}

	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("resource", r.target).Int("page", key.Page).Msg("Cache delete error")
	}
	return nil, false
}

// do performs the GET and returns the body. HTTP error statuses other than
// the overload status are logged and the body is returned for parsing.
func (c *Client) do(ctx context.Context, target string, query url.Values) ([]byte, int, error) {
	startTime := time.Now()
	defer func() {
		utsRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("resource", target).
		Str("page", query.Get("pageNumber")).
		Msg("Executing UTS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		utsRequestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("resource", target).Msg("HTTP request failed")
		return nil, 0, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		utsRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, resp.StatusCode, &TransportError{URL: target, Err: fmt.Errorf("read response body: %w", err)}
	}

	utsRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := classifyStatus(resp.StatusCode, c.config.OverloadStatus)
		if errClass == ErrorClassOverload {
			c.logger.Error().
				Str("resource", target).
				Int("status", resp.StatusCode).
				Str("body", truncate(body, 500)).
				Msg("UTS overloaded")
			return nil, resp.StatusCode, &OverloadError{StatusCode: resp.StatusCode, URL: target, Body: body}
		}

		c.logger.Warn().
			Str("resource", target).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("UTS request error")
	}

	return body, resp.StatusCode, nil
}

func (c *Client) countFatal(err error) {
	var (
		overload *OverloadError
		decode   *DecodeError
	)
	// Transport failures and cancellations count as network.
	class := ErrorClassNetwork
	switch {
	case errors.Is(err, auth.ErrAuthentication):
		class = ErrorClassAuth
	case errors.As(err, &overload):
		class = ErrorClassOverload
	case errors.As(err, &decode):
		class = ErrorClassDecode
	}
	utsFatalErrorsTotal.WithLabelValues(string(class)).Inc()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
