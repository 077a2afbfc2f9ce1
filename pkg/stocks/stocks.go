// Package stocks reads share candles and daily aggregates from ISS.
package stocks

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
	"github.com/Sternrassler/moex-iss-client/pkg/retry"
	"github.com/rs/zerolog"
)

// CandlePageSize is the number of candles ISS returns per page.
const CandlePageSize = 500

// dateLayout is the ISS date parameter format.
const dateLayout = "2006-01-02"

// Interval is a candle width as understood by ISS.
type Interval int

// Candle intervals.
const (
	Minute   Interval = 1
	Minute10 Interval = 10
	Hour     Interval = 60
	Day      Interval = 24
	Week     Interval = 7
	Month    Interval = 31
	Quarter  Interval = 4
)

// Valid reports whether ISS accepts the interval.
func (i Interval) Valid() bool {
	switch i {
	case Minute, Minute10, Hour, Day, Week, Month, Quarter:
		return true
	}
	return false
}

// ParseInterval converts the numeric ISS form ("24") to an Interval.
func ParseInterval(s string) (Interval, error) {
	n, err := strconv.Atoi(s)
	if err != nil || !Interval(n).Valid() {
		return 0, fmt.Errorf("invalid candle interval %q (want 1, 10, 60, 24, 7, 31 or 4)", s)
	}
	return Interval(n), nil
}

// Fetcher is the part of *client.Client the service needs.
type Fetcher interface {
	pagination.PageFetcher
	GetDocument(ctx context.Context, path string, params url.Values) (iss.Document, error)
}

// Service reads share data.
type Service struct {
	client Fetcher
	policy retry.Policy
	logger zerolog.Logger
}

// NewService creates a share service. A zero policy selects retry.Unbounded().
func NewService(c Fetcher, policy retry.Policy) *Service {
	if policy.IsZero() {
		policy = retry.Unbounded()
	}
	return &Service{
		client: c,
		policy: policy,
		logger: logging.NewLogger("stocks"),
	}
}

// Candles returns the candles of one share between from and till, inclusive.
func (s *Service) Candles(ctx context.Context, secid string, from, till time.Time, interval Interval) (*iss.Dataset, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("invalid candle interval %d", interval)
	}
	if till.Before(from) {
		return nil, fmt.Errorf("candles %s: till %s is before from %s",
			secid, till.Format(dateLayout), from.Format(dateLayout))
	}

	q := client.Query{
		Path:    fmt.Sprintf("/engines/stock/markets/shares/securities/%s/candles.json", url.PathEscape(secid)),
		Section: "candles",
		Params: url.Values{
			"from":     {from.Format(dateLayout)},
			"till":     {till.Format(dateLayout)},
			"interval": {strconv.Itoa(int(interval))},
		},
	}

	d := pagination.New(s.client)
	d.Policy = s.policy
	d.PageSize = CandlePageSize

	ds, err := d.FetchAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("candles %s: %w", secid, err)
	}

	s.logger.Debug().
		Str("secid", secid).
		Int("interval", int(interval)).
		Int("candles", ds.Len()).
		Msg("Fetched candles")
	return ds, nil
}

// Closes returns the close prices of a candle dataset in row order.
func Closes(ds *iss.Dataset) ([]float64, error) {
	return ds.Floats("close")
}

// Aggregates returns the per-market trading totals of one security on date.
func (s *Service) Aggregates(ctx context.Context, secid string, date time.Time) (*iss.Dataset, error) {
	path := fmt.Sprintf("/securities/%s/aggregates.json", url.PathEscape(secid))
	params := url.Values{
		"date":     {date.Format(dateLayout)},
		"iss.meta": {"off"},
	}

	var page *iss.Page
	err := s.policy.Do(ctx, secid, func(ctx context.Context) error {
		doc, err := s.client.GetDocument(ctx, path, params)
		if err != nil {
			return err
		}
		p, err := doc.Page("aggregates")
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("aggregates %s: %w", secid, err)
	}
	if page.Empty() {
		return nil, fmt.Errorf("aggregates %s on %s: %w", secid, date.Format(dateLayout), pagination.ErrNoData)
	}
	return iss.NewDataset(page), nil
}
