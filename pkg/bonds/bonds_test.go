package bonds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/moex-iss-client/internal/testutil"
	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
	"github.com/Sternrassler/moex-iss-client/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestService(t *testing.T, mock *testutil.MockISS, concurrency int) *Service {
	t.Helper()

	cfg := client.DefaultConfig(nil, "moex-iss-test/1.0")
	cfg.BaseURL = mock.URL()
	cfg.RateLimit = 1000
	cfg.Burst = 100
	c, err := client.New(cfg)
	require.NoError(t, err)

	listing := retry.Unbounded()
	listing.Sleep = noSleep
	detail := retry.Bounded(3)
	detail.Sleep = noSleep

	return NewService(c, Config{
		Concurrency:   concurrency,
		ListingPolicy: listing,
		DetailPolicy:  detail,
	})
}

func TestSweep_GroupsByRating(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("A", 5.0, "AAA")
	mock.SetBond("B", 7.0, "AAA")
	mock.SetBond("C", nil, "BBB")

	svc := newTestService(t, mock, 1)
	summary, err := svc.Sweep(context.Background(), []string{"A", "B", "C"}, nil)
	require.NoError(t, err)

	stats := summary.Finalize()
	require.Len(t, stats, 1, "C has no yield and must not form a group")
	assert.Equal(t, "AAA", stats[0].Rating)
	assert.InDelta(t, 6.0, stats[0].Mean, 1e-9)
	assert.Equal(t, 2, stats[0].Count)

	visited, unavailable, noYield := summary.Counts()
	assert.Equal(t, 3, visited)
	assert.Equal(t, 0, unavailable)
	assert.Equal(t, 1, noYield)
}

func TestSweep_UnratedGroup(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("D", 4.0, "")
	mock.SetBond("E", 8.0, "BB+")

	svc := newTestService(t, mock, 1)
	summary, err := svc.Sweep(context.Background(), []string{"D", "E"}, nil)
	require.NoError(t, err)

	stats := summary.Finalize()
	require.Len(t, stats, 2)
	assert.Equal(t, GroupStat{Rating: "BB+", Mean: 8, Count: 1}, stats[0])
	assert.Equal(t, GroupStat{Rating: Unrated, Mean: 4, Count: 1}, stats[1])
}

func TestDetail_RetriesThenSucceeds(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("A", 5.5, "AA")
	mock.FailNext(testutil.MarketdataPath("A"), http.StatusInternalServerError, http.StatusBadGateway)

	svc := newTestService(t, mock, 1)
	d := svc.Detail(context.Background(), "A")

	assert.True(t, d.Available)
	assert.NoError(t, d.Err)
	assert.Equal(t, 3, d.Attempts)
	require.NotNil(t, d.Yield)
	assert.Equal(t, 5.5, *d.Yield)
	assert.Equal(t, "AA", d.Rating)
	assert.True(t, d.Rated)
}

func TestDetail_ExhaustedIsUnavailable(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("A", 5.5, "AA")
	mock.SetBond("B", 6.5, "AA")
	mock.FailNext(testutil.MarketdataPath("A"),
		http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError)

	svc := newTestService(t, mock, 1)

	d := svc.Detail(context.Background(), "A")
	assert.False(t, d.Available)
	assert.ErrorIs(t, d.Err, retry.ErrRetryExhausted)
	assert.Equal(t, 3, d.Attempts)
	assert.Nil(t, d.Yield)
	assert.Equal(t, 3, mock.GetPathCount(testutil.MarketdataPath("A")))

	mock.FailNext(testutil.MarketdataPath("A"),
		http.StatusInternalServerError, http.StatusInternalServerError, http.StatusInternalServerError)
	summary, err := svc.Sweep(context.Background(), []string{"A", "B"}, nil)
	require.NoError(t, err)
	stats := summary.Finalize()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Count, "only B contributes")
}

func TestDetail_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	svc := newTestService(t, mock, 1)
	d := svc.Detail(context.Background(), "MISSING")

	assert.False(t, d.Available)
	assert.Equal(t, 1, d.Attempts)

	var issErr *client.ISSError
	require.ErrorAs(t, d.Err, &issErr)
	assert.Equal(t, http.StatusNotFound, issErr.StatusCode)
}

func TestDetail_YieldMustBeNumeric(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("S", "5.1", "A")

	svc := newTestService(t, mock, 1)
	d := svc.Detail(context.Background(), "S")

	assert.True(t, d.Available)
	assert.Nil(t, d.Yield, "a string yield is not a yield")
	assert.Equal(t, "A", d.Rating)
}

func TestDetail_MalformedMarketdata(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("M", 5.0, "A")
	mock.SetResponse(testutil.MarketdataPath("M"), testutil.NewHealthyResponse(`{"marketdata": {"data": []}}`))

	svc := newTestService(t, mock, 1)
	d := svc.Detail(context.Background(), "M")

	assert.True(t, d.Available)
	assert.Equal(t, 1, d.Attempts)
	assert.Nil(t, d.Yield)
	assert.Equal(t, "A", d.Rating)
}

func TestSweep_Concurrent(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	const n = 20
	secids := make([]string, n)
	for i := range secids {
		secids[i] = fmt.Sprintf("RU%03d", i)
		mock.SetBond(secids[i], float64(i%2+1), "AAA")
	}

	svc := newTestService(t, mock, 4)

	var mu sync.Mutex
	seen := make(map[int]int)
	summary, err := svc.Sweep(context.Background(), secids, func(i, total int, d Detail) {
		mu.Lock()
		defer mu.Unlock()
		seen[i]++
		assert.Equal(t, n, total)
		assert.Equal(t, secids[i], d.SecID)
	})
	require.NoError(t, err)

	assert.Len(t, seen, n)
	for i, count := range seen {
		assert.Equal(t, 1, count, "bond %d reported more than once", i)
	}

	stats := summary.Finalize()
	require.Len(t, stats, 1)
	assert.Equal(t, n, stats[0].Count)
	assert.InDelta(t, 1.5, stats[0].Mean, 1e-9)
}

func TestSweep_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("A", 5.0, "AAA")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(t, mock, 1)
	summary, err := svc.Sweep(ctx, []string{"A"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	visited, _, _ := summary.Counts()
	assert.Equal(t, 0, visited)
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestSweep_CancelledMidway(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetBond("A", 5.0, "AAA")
	mock.SetBond("B", 6.0, "AAA")
	mock.SetBond("C", 7.0, "AAA")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := newTestService(t, mock, 1)
	summary, err := svc.Sweep(ctx, []string{"A", "B", "C"}, func(i, n int, d Detail) {
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)

	visited, unavailable, _ := summary.Counts()
	assert.Equal(t, 1, visited)
	assert.Equal(t, 0, unavailable)

	stats := summary.Finalize()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Count)
	assert.InDelta(t, 5.0, stats[0].Mean, 1e-9)
}

func TestListTickers(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	rows := make([][]any, 250)
	for i := range rows {
		rows[i] = []any{fmt.Sprintf("RU%04d", i%200), fmt.Sprintf("Bond %d", i), nil}
	}
	mock.SetListing(client.DefaultPath, &testutil.Listing{
		Section:       "securities",
		Columns:       []string{"secid", "shortname", "isin"},
		Rows:          rows,
		RotateColumns: true,
	})

	svc := newTestService(t, mock, 1)
	tickers, err := svc.ListTickers(context.Background())
	require.NoError(t, err)

	require.Len(t, tickers, 200)
	assert.Equal(t, "RU0000", tickers[0])
	assert.Equal(t, "RU0199", tickers[199])
	assert.Equal(t, 3, mock.GetPathCount(client.DefaultPath))
	assert.Equal(t, "on", mock.GetLastQuery().Get("iss.meta"))
	assert.Equal(t, "bonds", mock.GetLastQuery().Get("market"))
}

func TestListBoard(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetListing(client.DefaultPath, &testutil.Listing{
		Section: "securities",
		Columns: []string{"secid", "shortname"},
		Rows: [][]any{
			{"RU000A0JX0J2", "ОФЗ 26219"},
			{"", "no id"},
			{"RU000A101QE0", "РЖД 1Р-15R"},
		},
	})

	svc := newTestService(t, mock, 1)
	list, err := svc.ListBoard(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []Bond{
		{SecID: "RU000A0JX0J2", ShortName: "ОФЗ 26219"},
		{SecID: "RU000A101QE0", ShortName: "РЖД 1Р-15R"},
	}, list)
	assert.Equal(t, []string{"RU000A0JX0J2", "RU000A101QE0"}, SecIDs(list))
	assert.Equal(t, "boardid=TQCB", mock.GetLastQuery().Get("filter"))
}

func TestListBoard_NoData(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	mock.SetListing(client.DefaultPath, &testutil.Listing{
		Section: "securities",
		Columns: []string{"secid", "shortname"},
	})

	svc := newTestService(t, mock, 1)
	_, err := svc.ListBoard(context.Background(), "TQOB")
	assert.ErrorIs(t, err, pagination.ErrNoData)
}

func TestBoardSecurity(t *testing.T) {
	mock := testutil.NewMockISS()
	defer mock.Close()

	path := "/engines/stock/markets/bonds/boards/TQCB/securities/RU000A.json"
	mock.SetResponse(path, testutil.NewHealthyResponse(testutil.Body("securities",
		[]string{"SECID", "BOARDID", "PREVPRICE"},
		[][]any{{"RU000A", "TQCB", 99.5}})))

	svc := newTestService(t, mock, 1)
	ds, err := svc.BoardSecurity(context.Background(), "TQCB", "RU000A")
	require.NoError(t, err)

	assert.Equal(t, 1, ds.Len())
	price, ok, err := ds.Float(0, "PREVPRICE")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 99.5, price)

	empty := "/engines/stock/markets/bonds/boards/TQCB/securities/NONE.json"
	mock.SetResponse(empty, testutil.NewHealthyResponse(testutil.Body("securities",
		[]string{"SECID", "BOARDID"}, nil)))

	_, err = svc.BoardSecurity(context.Background(), "TQCB", "NONE")
	assert.ErrorIs(t, err, pagination.ErrNoData)
}

func TestFindRating(t *testing.T) {
	cols := []string{"name", "title", "value"}
	tests := []struct {
		name   string
		page   *iss.Page
		want   string
		wantOK bool
	}{
		{
			name: "upper case name",
			page: &iss.Page{Columns: cols, Rows: [][]any{{"CREDITRATING", "", "ruAA"}}},
			want: "ruAA", wantOK: true,
		},
		{
			name: "underscore synonym",
			page: &iss.Page{Columns: cols, Rows: [][]any{{"credit_rating", "", "BBB-"}}},
			want: "BBB-", wantOK: true,
		},
		{
			name: "first synonym wins",
			page: &iss.Page{Columns: cols, Rows: [][]any{
				{"rating", "", "B"},
				{"creditrating", "", "A"},
			}},
			want: "A", wantOK: true,
		},
		{
			name: "empty value is skipped",
			page: &iss.Page{Columns: cols, Rows: [][]any{
				{"creditrating", "", " "},
				{"rating", "", "BB"},
			}},
			want: "BB", wantOK: true,
		},
		{
			name:   "no rating row",
			page:   &iss.Page{Columns: cols, Rows: [][]any{{"ISIN", "", "RU000A"}}},
			wantOK: false,
		},
		{
			name:   "no value column",
			page:   &iss.Page{Columns: []string{"name"}, Rows: [][]any{{"creditrating"}}},
			wantOK: false,
		},
		{
			name:   "nil page",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindRating(tt.page)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummary_SkipsUnavailable(t *testing.T) {
	y := 9.0
	s := NewSummary()
	s.Add(Detail{SecID: "X", Yield: &y, Rating: "A", Available: false, Err: errors.New("down")})
	s.Add(Detail{SecID: "Y", Yield: &y, Rating: "", Available: true})

	stats := s.Finalize()
	require.Len(t, stats, 1)
	assert.Equal(t, Unrated, stats[0].Rating)

	visited, unavailable, _ := s.Counts()
	assert.Equal(t, 2, visited)
	assert.Equal(t, 1, unavailable)
}
