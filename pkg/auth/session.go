// Package auth implements the UTS ticket lifecycle: an API key is exchanged
// once for a ticket-granting resource (TGR), and the TGR is exchanged for a
// fresh single-use service ticket before every protected request.
package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/uts-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLoginURL is the UTS API-key login endpoint.
	DefaultLoginURL = "https://utslogin.nlm.nih.gov/cas/v1/api-key"

	// DefaultService is the service callback that tickets are issued for.
	DefaultService = "http://umlsks.nlm.nih.gov"

	// DefaultUserAgent identifies the client to UTS.
	DefaultUserAgent = "uts-client/0.1.0"
)

// Prometheus metrics for ticket operations.
var (
	ticketsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uts_tickets_issued_total",
		Help: "Total service tickets issued",
	})

	authFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uts_auth_failures_total",
		Help: "Total authentication failures by operation",
	}, []string{"op"})
)

// Config holds the ticket authority configuration.
type Config struct {
	// LoginURL is where the API key is posted.
	LoginURL string

	// Service is the callback URL tickets are issued for.
	Service string

	// UserAgent header sent with every auth request.
	UserAgent string

	// Limiter gates every outbound auth call. Required.
	Limiter ratelimit.Limiter

	// HTTPClient performs the requests (default: 30s timeout).
	HTTPClient *http.Client

	// Logger for auth events (default: global logger).
	Logger *zerolog.Logger
}

// DefaultConfig returns the production UTS configuration.
func DefaultConfig(limiter ratelimit.Limiter) Config {
	return Config{
		LoginURL:  DefaultLoginURL,
		Service:   DefaultService,
		UserAgent: DefaultUserAgent,
		Limiter:   limiter,
	}
}

// Session owns one ticket-granting resource. It is safe for concurrent use;
// each ServiceTicket call mints a new ticket.
type Session struct {
	cfg        Config
	loginURL   *url.URL
	httpClient *http.Client
	logger     zerolog.Logger

	mu  sync.RWMutex
	tgr string
}

// Login exchanges credential for a ticket-granting resource and returns a
// Session bound to it. The credential is not retained.
func Login(ctx context.Context, cfg Config, credential string) (*Session, error) {
	s, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	tgr, err := s.obtainTicketGranting(ctx, credential)
	if err != nil {
		return nil, err
	}
	s.tgr = tgr
	return s, nil
}

func newSession(cfg Config) (*Session, error) {
	if cfg.Limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = DefaultLoginURL
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}

	loginURL, err := url.Parse(cfg.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	logger := log.With().Str("component", "uts-auth").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Session{
		cfg:        cfg,
		loginURL:   loginURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// TicketGranting returns the current ticket-granting resource URL.
func (s *Session) TicketGranting() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tgr
}

// Renew performs a fresh login and replaces the ticket-granting resource.
// Use it after ServiceTicket reports ErrTicketGrantingExpired.
func (s *Session) Renew(ctx context.Context, credential string) error {
	tgr, err := s.obtainTicketGranting(ctx, credential)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.tgr = tgr
	s.mu.Unlock()

	s.logger.Info().Msg("Ticket-granting resource renewed")
	return nil
}

// ServiceTicket mints a single-use service ticket. It waits on the limiter
// before contacting the ticket-granting resource.
func (s *Session) ServiceTicket(ctx context.Context) (string, error) {
	tgr := s.TicketGranting()
	if tgr == "" {
		return "", s.fail(OpTicket, 0, ErrTicketGrantingExpired)
	}

	body, status, err := s.postForm(ctx, tgr, url.Values{"service": {s.cfg.Service}})
	if err != nil {
		return "", s.fail(OpTicket, 0, err)
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "", s.fail(OpTicket, status, ErrTicketGrantingExpired)
	case status < 200 || status >= 300:
		return "", s.fail(OpTicket, status, fmt.Errorf("unexpected status: %s", http.StatusText(status)))
	}

	ticket := strings.TrimSpace(string(body))
	if ticket == "" {
		return "", s.fail(OpTicket, status, ErrEmptyTicket)
	}

	ticketsIssuedTotal.Inc()
	s.logger.Debug().Msg("Service ticket issued")
	return ticket, nil
}

func (s *Session) obtainTicketGranting(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", s.fail(OpLogin, 0, ErrNoCredential)
	}

	body, status, err := s.postForm(ctx, s.loginURL.String(), url.Values{"apikey": {credential}})
	if err != nil {
		return "", s.fail(OpLogin, 0, err)
	}
	if status < 200 || status >= 300 {
		return "", s.fail(OpLogin, status, fmt.Errorf("credential rejected: %s", http.StatusText(status)))
	}

	tgr, err := formAction(bytes.NewReader(body), s.loginURL)
	if err != nil {
		return "", s.fail(OpLogin, status, err)
	}

	s.logger.Info().Str("login_url", s.loginURL.String()).Msg("Obtained ticket-granting resource")
	return tgr, nil
}

// postForm waits for admission, then posts a form and returns the body.
func (s *Session) postForm(ctx context.Context, target string, form url.Values) ([]byte, int, error) {
	if err := s.cfg.Limiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("post %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

func (s *Session) fail(op string, status int, err error) error {
	authFailuresTotal.WithLabelValues(op).Inc()
	s.logger.Error().
		Err(err).
		Str("op", op).
		Int("status", status).
		Msg("UTS authentication error")
	return &AuthenticationError{Op: op, StatusCode: status, Err: err}
}
