package bonds

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var issSweepEntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iss_sweep_entities_total",
	Help: "Bonds visited by detail sweeps, by result",
}, []string{"result"})

// ProgressFunc is called once per bond after its detail fetch. i is the
// bond's position in the input, n the input length. Calls are serialized.
type ProgressFunc func(i, n int, d Detail)

// Sweep fetches details for every secid and groups the yields by rating.
// Each bond is added to the summary exactly once. The only error is ctx's;
// the partial summary is returned with it and leaves out bonds whose fetch
// the cancellation interrupted.
func (s *Service) Sweep(ctx context.Context, secids []string, progress ProgressFunc) (*Summary, error) {
	sweepID := uuid.NewString()
	logger := logging.WithSweep(s.logger, sweepID)
	summary := NewSummary()
	n := len(secids)
	started := time.Now()

	logger.Info().
		Int("bonds", n).
		Int("concurrency", s.cfg.Concurrency).
		Msg("Sweep started")

	var mu sync.Mutex
	record := func(ctx context.Context, i int, d Detail) {
		// cut off by cancellation, not by ISS
		if !d.Available && ctx.Err() != nil {
			return
		}
		summary.Add(d)
		issSweepEntitiesTotal.WithLabelValues(result(d)).Inc()

		mu.Lock()
		defer mu.Unlock()
		logger.Debug().
			Int("index", i+1).
			Int("total", n).
			Str("secid", d.SecID).
			Int("attempts", d.Attempts).
			Bool("available", d.Available).
			Msg("Bond processed")
		if progress != nil {
			progress(i, n, d)
		}
	}

	if s.cfg.Concurrency <= 1 {
		for i, secid := range secids {
			if ctx.Err() != nil {
				break
			}
			record(ctx, i, s.Detail(ctx, secid))
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.cfg.Concurrency)
		for i, secid := range secids {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				record(gctx, i, s.Detail(gctx, secid))
				return nil
			})
		}
		_ = g.Wait()
	}

	visited, unavailable, noYield := summary.Counts()
	logger.Info().
		Int("visited", visited).
		Int("unavailable", unavailable).
		Int("no_yield", noYield).
		Dur("duration", time.Since(started)).
		Msg("Sweep complete")

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func result(d Detail) string {
	switch {
	case !d.Available:
		return "unavailable"
	case d.Yield == nil:
		return "no_yield"
	default:
		return "ok"
	}
}
