package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Sternrassler/uts-client/internal/testutil"
	"github.com/Sternrassler/uts-client/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// countingLimiter records admissions.
type countingLimiter struct {
	mu    sync.Mutex
	count int
}

func (l *countingLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	return nil
}

func (l *countingLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func testConfig(mock *testutil.MockUTS, limiter ratelimit.Limiter) Config {
	logger := zerolog.Nop()
	cfg := DefaultConfig(limiter)
	cfg.LoginURL = mock.LoginURL()
	cfg.Logger = &logger
	return cfg
}

func TestLogin_Success(t *testing.T) {
	mock := testutil.NewMockUTS()
	defer mock.Close()
	limiter := &countingLimiter{}

	s, err := Login(context.Background(), testConfig(mock, limiter), testutil.DefaultAPIKey)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	want := mock.LoginURL() + "/TGT-1-mock"
	if got := s.TicketGranting(); got != want {
		t.Errorf("TicketGranting() = %q, want %q", got, want)
	}
	if limiter.Count() != 1 {
		t.Errorf("limiter admissions = %d, want 1", limiter.Count())
	}
	if mock.LastUserAgent != DefaultUserAgent {
		t.Errorf("User-Agent = %q, want %q", mock.LastUserAgent, DefaultUserAgent)
	}
}

func TestLogin_Failures(t *testing.T) {
	mock := testutil.NewMockUTS()
	defer mock.Close()

	tests := []struct {
		name       string
		credential string
		wantErr    error
		wantStatus int
		wantLogins int
	}{
		{
			name:       "rejected credential",
			credential: "wrong-key",
			wantErr:    ErrAuthentication,
			wantStatus: http.StatusUnauthorized,
			wantLogins: 1,
		},
		{
			name:       "empty credential",
			credential: "",
			wantErr:    ErrNoCredential,
			wantLogins: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _, _ := mock.Counts()

			_, err := Login(context.Background(), testConfig(mock, ratelimit.Forgetful{}), tt.credential)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrAuthentication) {
				t.Errorf("error %v does not match ErrAuthentication", err)
			}

			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Fatalf("error %T is not *AuthenticationError", err)
			}
			if authErr.Op != OpLogin {
				t.Errorf("Op = %q, want %q", authErr.Op, OpLogin)
			}
			if authErr.StatusCode != tt.wantStatus {
				t.Errorf("StatusCode = %d, want %d", authErr.StatusCode, tt.wantStatus)
			}

			after, _, _ := mock.Counts()
			if after-before != tt.wantLogins {
				t.Errorf("login requests = %d, want %d", after-before, tt.wantLogins)
			}
		})
	}
}

func TestLogin_NoForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("<html><body><p>no form here</p></body></html>"))
	}))
	defer server.Close()

	cfg := DefaultConfig(ratelimit.Forgetful{})
	cfg.LoginURL = server.URL
	_, err := Login(context.Background(), cfg, "key")
	if !errors.Is(err, ErrNoForm) {
		t.Errorf("Login() error = %v, want ErrNoForm", err)
	}
}

func TestLogin_RequiresLimiter(t *testing.T) {
	_, err := Login(context.Background(), Config{}, "key")
	if err == nil || err.Error() != "rate limiter is required" {
		t.Errorf("Login() error = %v, want rate limiter is required", err)
	}
}

func TestServiceTicket_FreshPerCall(t *testing.T) {
	mock := testutil.NewMockUTS()
	defer mock.Close()
	limiter := &countingLimiter{}

	s, err := Login(context.Background(), testConfig(mock, limiter), testutil.DefaultAPIKey)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		ticket, err := s.ServiceTicket(context.Background())
		if err != nil {
			t.Fatalf("ServiceTicket() error = %v", err)
		}
		if !strings.HasPrefix(ticket, "ST-") {
			t.Errorf("ticket = %q, want ST- prefix", ticket)
		}
		if seen[ticket] {
			t.Errorf("ticket %q issued twice", ticket)
		}
		seen[ticket] = true
	}

	if limiter.Count() != 6 {
		t.Errorf("limiter admissions = %d, want 6 (1 login + 5 tickets)", limiter.Count())
	}
	if mock.LastService != DefaultService {
		t.Errorf("service = %q, want %q", mock.LastService, DefaultService)
	}
}

func TestServiceTicket_ExpiredTicketGranting(t *testing.T) {
	mock := testutil.NewMockUTS()
	defer mock.Close()

	s, err := Login(context.Background(), testConfig(mock, ratelimit.Forgetful{}), testutil.DefaultAPIKey)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	mock.ExpireTicketGranting()

	_, err = s.ServiceTicket(context.Background())
	if !errors.Is(err, ErrTicketGrantingExpired) {
		t.Fatalf("ServiceTicket() error = %v, want ErrTicketGrantingExpired", err)
	}
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("error %v does not match ErrAuthentication", err)
	}

	if err := s.Renew(context.Background(), testutil.DefaultAPIKey); err != nil {
		t.Fatalf("Renew() error = %v", err)
	}
	if got := s.TicketGranting(); !strings.HasSuffix(got, "/TGT-2-mock") {
		t.Errorf("TicketGranting() after renew = %q", got)
	}
	if _, err := s.ServiceTicket(context.Background()); err != nil {
		t.Errorf("ServiceTicket() after renew error = %v", err)
	}
}

func TestServiceTicket_EmptyBody(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`<html><form action="` + serverURL + `/tgt" method="POST"></form></html>`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	serverURL = server.URL

	cfg := DefaultConfig(ratelimit.Forgetful{})
	cfg.LoginURL = server.URL + "/login"
	s, err := Login(context.Background(), cfg, "key")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if _, err := s.ServiceTicket(context.Background()); !errors.Is(err, ErrEmptyTicket) {
		t.Errorf("ServiceTicket() error = %v, want ErrEmptyTicket", err)
	}
}

func TestServiceTicket_LimiterCancelled(t *testing.T) {
	mock := testutil.NewMockUTS()
	defer mock.Close()

	s, err := Login(context.Background(), testConfig(mock, ratelimit.NewSleepy(20)), testutil.DefaultAPIKey)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.ServiceTicket(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ServiceTicket() error = %v, want context.Canceled", err)
	}
}
