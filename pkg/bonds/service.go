package bonds

import (
	"context"
	"fmt"
	"net/url"
	"slices"

	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
	"github.com/Sternrassler/moex-iss-client/pkg/retry"
	"github.com/rs/zerolog"
)

// DefaultBoard is the corporate bond board of the MOEX main market.
const DefaultBoard = "TQCB"

// Fetcher is the part of *client.Client the service needs.
type Fetcher interface {
	pagination.PageFetcher
	GetDocument(ctx context.Context, path string, params url.Values) (iss.Document, error)
}

// Config controls listing and sweep behavior.
type Config struct {
	// Board is used by ListBoard when called with an empty board.
	Board string

	// Concurrency is the number of details fetched in parallel by Sweep.
	// Values below 2 keep the sweep sequential.
	Concurrency int

	// ListingPolicy wraps every listing page fetch.
	ListingPolicy retry.Policy

	// DetailPolicy wraps each bond's detail fetch as one unit.
	DetailPolicy retry.Policy

	// PageSize overrides the listing page size.
	PageSize int
}

// DefaultConfig returns sequential sweeps over TQCB with the standard policies.
func DefaultConfig() Config {
	return Config{
		Board:         DefaultBoard,
		Concurrency:   1,
		ListingPolicy: retry.Unbounded(),
		DetailPolicy:  retry.Bounded(retry.DefaultDetailAttempts),
		PageSize:      pagination.DefaultPageSize,
	}
}

// Bond is one row of a board listing.
type Bond struct {
	SecID     string `json:"secid"`
	ShortName string `json:"shortname"`
}

// SecIDs returns the identifiers of bonds in order.
func SecIDs(bonds []Bond) []string {
	out := make([]string, len(bonds))
	for i, b := range bonds {
		out[i] = b.SecID
	}
	return out
}

// Service reads bond listings and details from ISS.
type Service struct {
	client Fetcher
	cfg    Config
	logger zerolog.Logger
}

// NewService creates a bond service. Zero config fields take their defaults.
func NewService(c Fetcher, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.Board == "" {
		cfg.Board = def.Board
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ListingPolicy.IsZero() {
		cfg.ListingPolicy = def.ListingPolicy
	}
	if cfg.DetailPolicy.IsZero() {
		cfg.DetailPolicy = def.DetailPolicy
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}

	return &Service{
		client: c,
		cfg:    cfg,
		logger: logging.NewLogger("bonds"),
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) driver() *pagination.Driver {
	d := pagination.New(s.client)
	d.Policy = s.cfg.ListingPolicy
	d.PageSize = s.cfg.PageSize
	return d
}

// ListTickers returns every bond secid known to ISS, deduplicated and sorted.
func (s *Service) ListTickers(ctx context.Context) ([]string, error) {
	q := client.Query{Engine: "stock", Market: "bonds", Meta: true}

	seen := make(map[string]struct{})
	err := s.driver().Each(ctx, q, func(page *iss.Page, offset int) error {
		ids, err := page.Strings("secid")
		if err != nil {
			return fmt.Errorf("page at start=%d: %w", offset, err)
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list bond tickers: %w", err)
	}

	tickers := make([]string, 0, len(seen))
	for id := range seen {
		tickers = append(tickers, id)
	}
	slices.Sort(tickers)

	s.logger.Info().Int("tickers", len(tickers)).Msg("Listed bond tickers")
	return tickers, nil
}

// ListBoard returns the bonds traded on board. An empty board selects the
// configured default.
func (s *Service) ListBoard(ctx context.Context, board string) ([]Bond, error) {
	if board == "" {
		board = s.cfg.Board
	}
	q := client.Query{Engine: "stock", Market: "bonds", Board: board}

	ds, err := s.driver().FetchAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list board %s: %w", board, err)
	}

	out := make([]Bond, 0, ds.Len())
	for i := range ds.Rows {
		secid, ok, err := ds.Text(i, "secid")
		if err != nil {
			return nil, fmt.Errorf("list board %s: %w", board, err)
		}
		if !ok || secid == "" {
			continue
		}
		name, _, err := ds.Text(i, "shortname")
		if err != nil {
			return nil, fmt.Errorf("list board %s: %w", board, err)
		}
		out = append(out, Bond{SecID: secid, ShortName: name})
	}

	s.logger.Info().
		Str("board", board).
		Int("bonds", len(out)).
		Bool("truncated", ds.Truncated).
		Msg("Listed board")
	return out, nil
}

// ListSecurities returns the whole securities listing of one market
// ("bonds", "shares").
func (s *Service) ListSecurities(ctx context.Context, market string) (*iss.Dataset, error) {
	q := client.Query{Engine: "stock", Market: market}
	ds, err := s.driver().FetchAll(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s securities: %w", market, err)
	}
	return ds, nil
}

// BoardSecurity returns the trading data of one bond on one board.
func (s *Service) BoardSecurity(ctx context.Context, board, secid string) (*iss.Dataset, error) {
	if board == "" {
		board = s.cfg.Board
	}
	path := fmt.Sprintf("/engines/stock/markets/bonds/boards/%s/securities/%s.json",
		url.PathEscape(board), url.PathEscape(secid))

	var page *iss.Page
	err := s.cfg.DetailPolicy.Do(ctx, secid, func(ctx context.Context) error {
		doc, err := s.client.GetDocument(ctx, path, url.Values{"iss.meta": {"off"}})
		if err != nil {
			return err
		}
		p, err := doc.Page("securities")
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("board security %s/%s: %w", board, secid, err)
	}
	if page.Empty() {
		return nil, fmt.Errorf("board security %s/%s: %w", board, secid, pagination.ErrNoData)
	}
	return iss.NewDataset(page), nil
}
