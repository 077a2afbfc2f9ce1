// Package testutil provides testing utilities for the ISS client.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// PageSize is the number of rows a mock listing returns per page.
const PageSize = 100

// MockISSResponse defines the behavior for a mock ISS endpoint response.
type MockISSResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Listing is a paginated section served by MockISS.
type Listing struct {
	Section string
	Columns []string
	Rows    [][]any

	// PageSize defaults to PageSize.
	PageSize int

	// RotateColumns rotates the column order by one position per page,
	// moving the row cells accordingly.
	RotateColumns bool
}

// MockISS is a configurable mock ISS server for testing.
type MockISS struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	failures map[string][]int

	// Tracking
	RequestCount      int
	PathCount         map[string]int
	LastRequestHeader http.Header
	LastQuery         url.Values
}

// NewMockISS creates a new mock ISS server.
func NewMockISS() *MockISS {
	mock := &MockISS{
		handlers:  make(map[string]func(w http.ResponseWriter, r *http.Request)),
		failures:  make(map[string][]int),
		PathCount: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCount[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = r.URL.Query()

		var failStatus int
		if queue := mock.failures[r.URL.Path]; len(queue) > 0 {
			failStatus = queue[0]
			mock.failures[r.URL.Path] = queue[1:]
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if failStatus != 0 {
			w.WriteHeader(failStatus)
			return
		}
		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the client base URL.
func (m *MockISS) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockISS) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockISS) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCount = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastQuery = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockISS) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockISS) SetResponse(path string, resp MockISSResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// FailNext makes the next len(statuses) requests to path answer with the
// given statuses, in order, before the configured handler is used again.
func (m *MockISS) FailNext(path string, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = append(m.failures[path], statuses...)
}

// SetListing serves rows as a paginated section honoring the start parameter.
func (m *MockISS) SetListing(path string, l *Listing) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		if start < 0 {
			start = 0
		}
		size := l.PageSize
		if size <= 0 {
			size = PageSize
		}
		end := min(start+size, len(l.Rows))
		var rows [][]any
		if start < len(l.Rows) {
			rows = l.Rows[start:end]
		}

		columns := l.Columns
		if l.RotateColumns && len(columns) > 0 {
			columns, rows = rotate(columns, rows, (start/size)%len(columns))
		}

		writeJSON(w, Body(l.Section, columns, rows))
	})
}

// SetBond serves marketdata and description for one bond. A nil yield
// leaves the YIELD cell null; an empty rating omits the rating row.
func (m *MockISS) SetBond(secid string, yield any, rating string) {
	m.SetResponse(MarketdataPath(secid), NewHealthyResponse(Body("marketdata",
		[]string{"SECID", "BOARDID", "YIELD"},
		[][]any{{secid, "TQCB", yield}})))

	desc := [][]any{
		{"SECID", "Код ценной бумаги", secid},
		{"NAME", "Полное наименование", "Bond " + secid},
	}
	if rating != "" {
		desc = append(desc, []any{"CREDITRATING", "Кредитный рейтинг", rating})
	}
	m.SetResponse(DescriptionPath(secid), NewHealthyResponse(Body("description",
		[]string{"name", "title", "value"}, desc)))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockISS) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the query parameters of the most recent request.
func (m *MockISS) GetLastQuery() url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// GetPathCount returns the number of requests made to one path.
func (m *MockISS) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCount[path]
}

// defaultHandler answers unknown paths with 404.
func (m *MockISS) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error": "not found"}`))
}

// MarketdataPath returns the bond marketdata path for secid.
func MarketdataPath(secid string) string {
	return "/engines/stock/markets/bonds/securities/" + secid + "/marketdata.json"
}

// DescriptionPath returns the security description path for secid.
func DescriptionPath(secid string) string {
	return "/securities/" + secid + "/description.json"
}

// Body renders one ISS section as a JSON document.
func Body(section string, columns []string, rows [][]any) string {
	if rows == nil {
		rows = [][]any{}
	}
	doc := map[string]any{
		section: map[string]any{
			"columns": columns,
			"data":    rows,
		},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// NewHealthyResponse creates a standard 200 OK JSON response.
func NewHealthyResponse(body string) MockISSResponse {
	return MockISSResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockISSResponse {
	return MockISSResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers: map[string]string{
			"Retry-After":  "1",
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockISSResponse {
	return MockISSResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func rotate(columns []string, rows [][]any, by int) ([]string, [][]any) {
	if by == 0 {
		return columns, rows
	}
	n := len(columns)
	outCols := make([]string, n)
	for i := range columns {
		outCols[i] = columns[(i+by)%n]
	}
	outRows := make([][]any, len(rows))
	for r, row := range rows {
		out := make([]any, n)
		for i := range row {
			out[i] = row[(i+by)%n]
		}
		outRows[r] = out
	}
	return outCols, outRows
}
