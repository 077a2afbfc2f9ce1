package pagination

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/Sternrassler/moex-iss-client/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	issPagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_pages_fetched_total",
		Help: "Pages fetched by the pagination driver",
	}, []string{"section"})

	issPaginationRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "iss_pagination_rows",
		Help:    "Rows per completed paginated listing",
		Buckets: prometheus.ExponentialBuckets(10, 4, 7),
	})

	issPaginationTruncatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iss_pagination_truncated_total",
		Help: "Listings cut short by repeated malformed pages",
	}, []string{"section"})
)

const (
	// DefaultPageSize is the ISS listing page size.
	DefaultPageSize = 100

	// DefaultMalformedBudget is how many consecutive malformed responses for
	// one offset are tolerated before pagination stops.
	DefaultMalformedBudget = 3
)

// PageFetcher retrieves one page of a listing. *client.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, q client.Query, start int) (*iss.Page, error)
}

// Driver walks a listing page by page.
type Driver struct {
	Fetcher PageFetcher

	// Policy wraps each page fetch. Defaults to retry.Unbounded().
	Policy retry.Policy

	// PageSize is the offset step. Defaults to DefaultPageSize.
	PageSize int

	// MalformedBudget defaults to DefaultMalformedBudget.
	MalformedBudget int

	// Logger defaults to the global logger with component=pagination.
	Logger *zerolog.Logger
}

// New returns a driver with the unbounded listing policy.
func New(f PageFetcher) *Driver {
	return &Driver{
		Fetcher:         f,
		Policy:          retry.Unbounded(),
		PageSize:        DefaultPageSize,
		MalformedBudget: DefaultMalformedBudget,
	}
}

// FetchAll reads the whole listing into a Dataset. Columns come from the
// first page; later pages are re-aligned to that order. A listing without
// any rows yields ErrNoData.
func (d *Driver) FetchAll(ctx context.Context, q client.Query) (*iss.Dataset, error) {
	var ds *iss.Dataset

	res, err := d.walk(ctx, q, func(page *iss.Page, _ int) error {
		if ds == nil {
			ds = iss.NewDataset(page)
			return nil
		}
		ds.Rows = append(ds.Rows, page.Rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ds.Pages = res.pages
	ds.Truncated = res.truncated
	return ds, nil
}

// Each streams pages to fn in offset order without materializing the
// listing. Pages handed to fn already carry the first page's column order.
// An error from fn stops pagination and is returned as-is.
func (d *Driver) Each(ctx context.Context, q client.Query, fn func(page *iss.Page, offset int) error) error {
	_, err := d.walk(ctx, q, fn)
	return err
}

type walkResult struct {
	pages     int
	rows      int
	truncated bool
}

func (d *Driver) walk(ctx context.Context, q client.Query, fn func(*iss.Page, int) error) (walkResult, error) {
	logger := d.logger()
	section := q.SectionName()
	step := d.pageSize()
	started := time.Now()

	var res walkResult
	var columns []string

	for offset := 0; ; offset += step {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := d.fetch(ctx, q, offset)
		if err != nil {
			if !errors.Is(err, iss.ErrMalformedResponse) || res.rows == 0 {
				return res, err
			}
			res.truncated = true
			issPaginationTruncatedTotal.WithLabelValues(section).Inc()
			logger.Warn().
				Err(err).
				Str("section", section).
				Int("offset", offset).
				Int("rows", res.rows).
				Msg("Malformed page budget exhausted - returning truncated listing")
			break
		}
		res.pages++
		issPagesFetchedTotal.WithLabelValues(section).Inc()

		if page.Empty() {
			break
		}

		if columns == nil {
			columns = slices.Clone(page.Columns)
		} else if !slices.Equal(columns, page.Columns) {
			if !iss.SameColumnSet(columns, page.Columns) {
				logger.Error().
					Str("section", section).
					Int("offset", offset).
					Strs("want", columns).
					Strs("got", page.Columns).
					Msg("Column set changed between pages")
				return res, &ColumnMismatchError{
					Offset: offset,
					Want:   slices.Clone(columns),
					Got:    slices.Clone(page.Columns),
				}
			}
			rows, err := iss.Realign(page.Rows, page.Columns, columns)
			if err != nil {
				return res, fmt.Errorf("realign page at start=%d: %w", offset, err)
			}
			logger.Debug().
				Str("section", section).
				Int("offset", offset).
				Msg("Re-aligned reordered columns")
			page = &iss.Page{Section: page.Section, Columns: columns, Rows: rows}
		}

		logger.Debug().
			Str("section", section).
			Int("offset", offset).
			Int("rows", len(page.Rows)).
			Msg("Fetched page")

		if err := fn(page, offset); err != nil {
			return res, err
		}
		res.rows += len(page.Rows)

		// a short page is the last one; no terminator call needed
		if len(page.Rows) < step {
			break
		}
	}

	if res.rows == 0 {
		return res, ErrNoData
	}

	issPaginationRows.Observe(float64(res.rows))
	logger.Info().
		Str("section", section).
		Int("rows", res.rows).
		Int("pages", res.pages).
		Bool("truncated", res.truncated).
		Dur("duration", time.Since(started)).
		Msg("Pagination complete")

	return res, nil
}

// fetch retrieves one page under the retry policy. Malformed responses count
// against the malformed budget; once it is spent the error is final.
func (d *Driver) fetch(ctx context.Context, q client.Query, offset int) (*iss.Page, error) {
	var page *iss.Page
	malformedStreak := 0
	budget := d.malformedBudget()

	op := fmt.Sprintf("%s start=%d", q.SectionName(), offset)
	err := d.policy().Do(ctx, op, func(ctx context.Context) error {
		p, err := d.Fetcher.FetchPage(ctx, q, offset)
		switch {
		case err == nil:
			page = p
			return nil
		case errors.Is(err, client.ErrInvalidOffset):
			return retry.Permanent(err)
		case errors.Is(err, iss.ErrMalformedResponse):
			malformedStreak++
			if malformedStreak >= budget {
				return retry.Permanent(err)
			}
			return err
		default:
			malformedStreak = 0
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (d *Driver) policy() retry.Policy {
	if d.Policy.IsZero() {
		return retry.Unbounded()
	}
	return d.Policy
}

func (d *Driver) pageSize() int {
	if d.PageSize <= 0 {
		return DefaultPageSize
	}
	return d.PageSize
}

func (d *Driver) malformedBudget() int {
	if d.MalformedBudget <= 0 {
		return DefaultMalformedBudget
	}
	return d.MalformedBudget
}

func (d *Driver) logger() *zerolog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	l := log.With().Str("component", "pagination").Logger()
	return &l
}
