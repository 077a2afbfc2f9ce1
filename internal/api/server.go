// Package api exposes bond listings and sweeps over a small read-only HTTP
// API.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/bonds"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/metrics"
	"github.com/Sternrassler/moex-iss-client/pkg/pagination"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
)

// DefaultRatingsLimit caps the bonds swept by one ratings request when the
// caller gives no limit.
const DefaultRatingsLimit = 50

// Server routes API requests to the bond service.
type Server struct {
	bonds  *bonds.Service
	router chi.Router
	logger zerolog.Logger
}

// New creates the API server.
func New(svc *bonds.Service) *Server {
	s := &Server{
		bonds:  svc,
		logger: logging.NewLogger("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/securities", s.securities)
		r.Route("/bonds", func(r chi.Router) {
			r.Get("/tickers", s.tickers)
			r.Get("/ratings", s.ratings)
			r.Get("/{secid}", s.bond)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

// fail maps err to a status: no data is 404, a bad query 400 and anything
// from upstream 502.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status == 0 {
		status = http.StatusBadGateway
		if errors.Is(err, pagination.ErrNoData) {
			status = http.StatusNotFound
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
	}
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

type securitiesResponse struct {
	Market    string           `json:"market"`
	Columns   []string         `json:"columns"`
	Count     int              `json:"count"`
	Truncated bool             `json:"truncated"`
	Data      []map[string]any `json:"data"`
}

func (s *Server) securities(w http.ResponseWriter, r *http.Request) {
	market := r.URL.Query().Get("market")
	if market == "" {
		market = "bonds"
	}

	ds, err := s.bonds.ListSecurities(r.Context(), market)
	if err != nil {
		s.fail(w, r, 0, err)
		return
	}

	render.JSON(w, r, securitiesResponse{
		Market:    market,
		Columns:   ds.Columns,
		Count:     ds.Len(),
		Truncated: ds.Truncated,
		Data:      ds.Records(),
	})
}

func (s *Server) tickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.bonds.ListTickers(r.Context())
	if err != nil {
		s.fail(w, r, 0, err)
		return
	}
	render.JSON(w, r, map[string]any{
		"count":   len(tickers),
		"tickers": tickers,
	})
}

type detailResponse struct {
	bonds.Detail
	Error string `json:"error,omitempty"`
}

func (s *Server) bond(w http.ResponseWriter, r *http.Request) {
	secid := chi.URLParam(r, "secid")

	d := s.bonds.Detail(r.Context(), secid)
	resp := detailResponse{Detail: d}
	if !d.Available {
		resp.Error = d.Err.Error()
		render.Status(r, http.StatusBadGateway)
	}
	render.JSON(w, r, resp)
}

type ratingsResponse struct {
	Board       string            `json:"board"`
	Bonds       int               `json:"bonds"`
	Visited     int               `json:"visited"`
	Unavailable int               `json:"unavailable"`
	NoYield     int               `json:"no_yield"`
	Groups      []bonds.GroupStat `json:"groups"`
}

func (s *Server) ratings(w http.ResponseWriter, r *http.Request) {
	board := r.URL.Query().Get("board")
	if board == "" {
		board = s.bonds.Config().Board
	}

	limit := DefaultRatingsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.fail(w, r, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := s.bonds.ListBoard(r.Context(), board)
	if err != nil {
		s.fail(w, r, 0, err)
		return
	}
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	summary, err := s.bonds.Sweep(r.Context(), bonds.SecIDs(list), nil)
	if err != nil {
		s.fail(w, r, 0, err)
		return
	}

	visited, unavailable, noYield := summary.Counts()
	render.JSON(w, r, ratingsResponse{
		Board:       board,
		Bonds:       len(list),
		Visited:     visited,
		Unavailable: unavailable,
		NoYield:     noYield,
		Groups:      summary.Finalize(),
	})
}
