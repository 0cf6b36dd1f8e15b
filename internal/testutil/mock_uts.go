// Package testutil provides an in-process UTS server for tests: the API-key
// login endpoint, the ticket-granting resource, and the paginated REST API.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

const (
	// LoginPath is the API-key login endpoint path.
	LoginPath = "/cas/v1/api-key"

	// RestPrefix is the REST API base path.
	RestPrefix = "/rest"

	// DefaultAPIKey is accepted by a MockUTS created with NewMockUTS.
	DefaultAPIKey = "test-api-key"
)

// MockResponse is a fixed response for one resource path.
type MockResponse struct {
	StatusCode int
	Body       string
}

// MockUTS is a configurable UTS mock server.
type MockUTS struct {
	server *httptest.Server

	mu        sync.Mutex
	apiKey    string
	tgt       string
	expired   bool
	ticketSeq int
	tickets   map[string]bool // issued ticket -> used
	handlers  map[string]http.HandlerFunc

	// Tracking
	LoginCount    int
	TicketCount   int
	ResourceCount int
	RejectedCount int
	PageNumbers   map[string][]int
	LastQuery     map[string]string
	LastService   string
	LastUserAgent string
}

// NewMockUTS creates a MockUTS accepting DefaultAPIKey.
func NewMockUTS() *MockUTS {
	m := &MockUTS{
		apiKey:      DefaultAPIKey,
		tickets:     make(map[string]bool),
		handlers:    make(map[string]http.HandlerFunc),
		PageNumbers: make(map[string][]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(LoginPath, m.handleLogin)
	mux.HandleFunc(LoginPath+"/", m.handleTicket)
	mux.HandleFunc(RestPrefix+"/", m.handleResource)
	m.server = httptest.NewServer(mux)

	return m
}

// URL returns the mock server root URL.
func (m *MockUTS) URL() string {
	return m.server.URL
}

// LoginURL returns the API-key login endpoint.
func (m *MockUTS) LoginURL() string {
	return m.server.URL + LoginPath
}

// BaseURL returns the REST API base URL.
func (m *MockUTS) BaseURL() string {
	return m.server.URL + RestPrefix
}

// Close shuts down the mock server.
func (m *MockUTS) Close() {
	m.server.Close()
}

// ExpireTicketGranting makes the current TGR reject ticket requests.
func (m *MockUTS) ExpireTicketGranting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = true
}

// IssuedTickets returns the number of tickets minted.
func (m *MockUTS) IssuedTickets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickets)
}

// Counts returns login, ticket and resource request counts.
func (m *MockUTS) Counts() (logins, tickets, resources int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LoginCount, m.TicketCount, m.ResourceCount
}

// Pages returns the pageNumber values requested for a resource path
// (relative to the REST base), in request order.
func (m *MockUTS) Pages(path string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.PageNumbers[RestPrefix+path]...)
}

// SetHandler sets a custom handler for a resource path relative to the REST
// base (e.g. "/search/current"). Ticket validation runs first.
func (m *MockUTS) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[RestPrefix+path] = handler
}

// SetResponse configures a fixed response for a resource path.
func (m *MockUTS) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(resp.StatusCode)
		w.Write([]byte(resp.Body))
	})
}

// SetPages configures a paginated resource. Each element of results is the
// JSON of that page's result array; pageCount is len(results).
func (m *MockUTS) SetPages(path string, results ...string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page, err := strconv.Atoi(r.URL.Query().Get("pageNumber"))
		if err != nil || page < 1 {
			page = 1
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if page > len(results) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"status":404,"error":"page %d out of range"}`, page)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, PageBody(page, len(results), results[page-1]))
	})
}

// PageBody renders a UTS page envelope.
func PageBody(page, pageCount int, result string) string {
	return fmt.Sprintf(`{"pageSize":25,"pageNumber":%d,"pageCount":%d,"result":%s}`, page, pageCount, result)
}

// NewErrorResponse creates a UTS structured error response.
func NewErrorResponse(status int, msg string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"status":%d,"error":%q}`, status, msg),
	}
}

func (m *MockUTS) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoginCount++
	m.LastUserAgent = r.Header.Get("User-Agent")

	if r.PostForm.Get("apikey") != m.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("<html><body><h1>401 Unauthorized</h1></body></html>"))
		return
	}

	m.tgt = fmt.Sprintf("TGT-%d-mock", m.LoginCount)
	m.expired = false
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, `<!DOCTYPE HTML PUBLIC "-//IETF//DTD HTML 2.0//EN"><html><head><title>201 Created</title></head>`+
		`<body><h1>TGT Created</h1><form action="%s%s/%s" method="POST">Service:<input type="text" name="service" value="">`+
		`<br><input type="submit" value="Submit"></form></body></html>`, m.server.URL, LoginPath, m.tgt)
}

func (m *MockUTS) handleTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.TicketCount++
	m.LastService = r.PostForm.Get("service")

	tgt := strings.TrimPrefix(r.URL.Path, LoginPath+"/")
	if m.expired || tgt != m.tgt {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("TicketGrantingTicket could not be found"))
		return
	}

	m.ticketSeq++
	ticket := fmt.Sprintf("ST-%d-mock", m.ticketSeq)
	m.tickets[ticket] = false
	w.Header().Set("Content-Type", "text/plain;charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(ticket))
}

func (m *MockUTS) handleResource(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ticket := q.Get("ticket")

	m.mu.Lock()
	m.ResourceCount++
	used, issued := m.tickets[ticket]
	if !issued || used {
		m.RejectedCount++
		m.mu.Unlock()
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":401,"error":"Invalid or expired ticket"}`))
		return
	}
	m.tickets[ticket] = true

	page, _ := strconv.Atoi(q.Get("pageNumber"))
	m.PageNumbers[r.URL.Path] = append(m.PageNumbers[r.URL.Path], page)
	m.LastQuery = make(map[string]string, len(q))
	for k := range q {
		m.LastQuery[k] = q.Get(k)
	}
	handler, ok := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if ok {
		handler(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"status":404,"error":"No results found"}`))
}
