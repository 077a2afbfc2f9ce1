// Command moex-iss queries the Moscow Exchange ISS API: securities and bond
// listings, bond yield by rating, share candles, and offline Beneish and fair
// value scoring. "serve" runs the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/moex-iss-client/internal/api"
	"github.com/Sternrassler/moex-iss-client/internal/config"
	"github.com/Sternrassler/moex-iss-client/pkg/bonds"
	"github.com/Sternrassler/moex-iss-client/pkg/client"
	"github.com/Sternrassler/moex-iss-client/pkg/iss"
	"github.com/Sternrassler/moex-iss-client/pkg/logging"
	"github.com/Sternrassler/moex-iss-client/pkg/report"
	"github.com/Sternrassler/moex-iss-client/pkg/scoring"
	"github.com/Sternrassler/moex-iss-client/pkg/stocks"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const usage = `usage: moex-iss [-config file] <command> [flags] [args]

commands:
  securities  list securities of a market
  tickers     list all bond secids
  board       list the bonds of a board
  bond        show yield and rating of one bond
  ratings     average bond yield by credit rating
  candles     share candles
  aggregates  daily trading totals of a security
  beneish     Beneish M-Score from a YAML file of yearly figures
  fairvalue   fair price and multiples from a YAML company file
  serve       run the HTTP API
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("moex-iss", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", os.Getenv("MOEX_CONFIG"), "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "moex-iss: %v\n", err)
		return 1
	}
	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logging.Setup(logCfg)

	cmd, rest := fs.Arg(0), fs.Args()[1:]

	var runErr error
	switch cmd {
	case "beneish":
		runErr = cmdBeneish(rest, stdout)
	case "fairvalue":
		runErr = cmdFairValue(rest, stdout)
	case "securities", "tickers", "board", "bond", "ratings", "candles", "aggregates", "serve":
		a, err := newApp(ctx, cfg, stderr)
		if err != nil {
			runErr = err
			break
		}
		defer a.Close()
		runErr = a.dispatch(ctx, cmd, rest, stdout)
	default:
		fmt.Fprintf(stderr, "moex-iss: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}

	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			return 2
		}
		log.Error().Err(runErr).Str("command", cmd).Msg("Command failed")
		fmt.Fprintf(stderr, "moex-iss %s: %v\n", cmd, runErr)
		return 1
	}
	return 0
}

// app holds the network-backed services.
type app struct {
	cfg    *config.Config
	client *client.Client
	redis  *redis.Client
	bonds  *bonds.Service
	stocks *stocks.Service
	stderr io.Writer
}

func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	var rdb *redis.Client
	if opts := cfg.RedisOptions(); opts != nil {
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		log.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	c, err := client.New(cfg.ClientConfig(rdb))
	if err != nil {
		if rdb != nil {
			rdb.Close()
		}
		return nil, fmt.Errorf("create ISS client: %w", err)
	}

	return &app{
		cfg:    cfg,
		client: c,
		redis:  rdb,
		bonds:  bonds.NewService(c, cfg.BondsConfig()),
		stocks: stocks.NewService(c, cfg.ListingPolicy()),
		stderr: stderr,
	}, nil
}

func (a *app) Close() {
	a.client.Close()
	if a.redis != nil {
		a.redis.Close()
	}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string, stdout io.Writer) error {
	switch cmd {
	case "securities":
		return a.cmdSecurities(ctx, args, stdout)
	case "tickers":
		return a.cmdTickers(ctx, args, stdout)
	case "board":
		return a.cmdBoard(ctx, args, stdout)
	case "bond":
		return a.cmdBond(ctx, args, stdout)
	case "ratings":
		return a.cmdRatings(ctx, args, stdout)
	case "candles":
		return a.cmdCandles(ctx, args, stdout)
	case "aggregates":
		return a.cmdAggregates(ctx, args, stdout)
	case "serve":
		return a.cmdServe(ctx, args)
	}
	return fmt.Errorf("unknown command %q", cmd)
}

// outputFlags are shared by commands that print a dataset.
type outputFlags struct {
	format string
	out    string
	opts   report.Options
}

func addOutputFlags(fs *flag.FlagSet) *outputFlags {
	o := &outputFlags{opts: report.DefaultOptions()}
	fs.StringVar(&o.format, "format", "table", "output format: table, csv or xlsx")
	fs.StringVar(&o.out, "out", "", "output file (required for xlsx)")
	fs.IntVar(&o.opts.MaxColumns, "max-columns", o.opts.MaxColumns, "columns to show in tables, 0 for all")
	fs.IntVar(&o.opts.Width, "width", o.opts.Width, "table line width, 0 for unlimited")
	fs.IntVar(&o.opts.Precision, "precision", o.opts.Precision, "decimals for fractional numbers")
	return o
}

func (o *outputFlags) write(stdout io.Writer, sheet string, ds *iss.Dataset) error {
	w := stdout
	if o.out != "" {
		f, err := os.Create(o.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch o.format {
	case "table":
		return report.WriteTable(w, ds, o.opts)
	case "csv":
		return report.WriteCSV(w, ds)
	case "xlsx":
		if o.out == "" {
			return errors.New("xlsx output needs -out")
		}
		return report.WriteXLSX(w, sheet, ds)
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func (a *app) cmdSecurities(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("securities", a.stderr)
	market := fs.String("market", "bonds", "market: bonds or shares")
	out := addOutputFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ds, err := a.bonds.ListSecurities(ctx, *market)
	if err != nil {
		return err
	}
	if ds.Truncated {
		fmt.Fprintln(a.stderr, "warning: listing truncated by malformed pages")
	}
	return out.write(stdout, *market, ds)
}

func (a *app) cmdTickers(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("tickers", a.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tickers, err := a.bonds.ListTickers(ctx)
	if err != nil {
		return err
	}
	for _, t := range tickers {
		fmt.Fprintln(stdout, t)
	}
	return nil
}

func (a *app) cmdBoard(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("board", a.stderr)
	board := fs.String("board", a.cfg.Sweep.Board, "board id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := a.bonds.ListBoard(ctx, *board)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "%d bonds on %s\n", len(list), *board)
	for _, b := range list {
		fmt.Fprintf(stdout, "%s\t%s\n", b.SecID, b.ShortName)
	}
	return nil
}

func (a *app) cmdBond(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("bond", a.stderr)
	board := fs.String("board", "", "also show trading data on this board")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: bond [-board id] <secid>")
	}
	secid := fs.Arg(0)

	d := a.bonds.Detail(ctx, secid)
	if !d.Available {
		return fmt.Errorf("%s unavailable after %d attempts: %w", secid, d.Attempts, d.Err)
	}
	yield := "n/a"
	if d.Yield != nil {
		yield = fmt.Sprintf("%.2f%%", *d.Yield)
	}
	fmt.Fprintf(stdout, "secid:  %s\nyield:  %s\nrating: %s\n", d.SecID, yield, d.Rating)

	if *board != "" {
		ds, err := a.bonds.BoardSecurity(ctx, *board, secid)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout)
		return report.WriteTable(stdout, ds, report.DefaultOptions())
	}
	return nil
}

func (a *app) cmdRatings(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("ratings", a.stderr)
	board := fs.String("board", a.cfg.Sweep.Board, "board id")
	limit := fs.Int("limit", 0, "sweep at most this many bonds, 0 for all")
	xlsxOut := fs.String("xlsx", "", "also write the summary to this workbook")
	quiet := fs.Bool("q", false, "no per-bond progress")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list, err := a.bonds.ListBoard(ctx, *board)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stderr, "Found %d bonds on %s\n", len(list), *board)
	if *limit > 0 && len(list) > *limit {
		list = list[:*limit]
	}

	var progress bonds.ProgressFunc
	if !*quiet {
		progress = func(i, n int, d bonds.Detail) {
			fmt.Fprintf(a.stderr, "%d/%d: %s\n", i+1, n, d.SecID)
		}
	}

	summary, sweepErr := a.bonds.Sweep(ctx, bonds.SecIDs(list), progress)
	stats := summary.Finalize()

	fmt.Fprintln(stdout, "Average yield by credit rating:")
	if err := report.WriteSummary(stdout, stats, report.DefaultOptions()); err != nil {
		return err
	}
	if *xlsxOut != "" {
		f, err := os.Create(*xlsxOut)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.WriteSummaryXLSX(f, stats); err != nil {
			return err
		}
	}
	if sweepErr != nil {
		return fmt.Errorf("sweep interrupted: %w", sweepErr)
	}
	return nil
}

func (a *app) cmdCandles(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("candles", a.stderr)
	now := time.Now()
	from := fs.String("from", now.AddDate(0, -1, 0).Format("2006-01-02"), "first day")
	till := fs.String("till", now.Format("2006-01-02"), "last day")
	interval := fs.String("interval", "24", "candle interval: 1, 10, 60, 24, 7, 31 or 4")
	closes := fs.Bool("closes", false, "print close prices only")
	out := addOutputFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: candles [flags] <secid>")
	}

	fromT, err := time.Parse("2006-01-02", *from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	tillT, err := time.Parse("2006-01-02", *till)
	if err != nil {
		return fmt.Errorf("invalid -till: %w", err)
	}
	iv, err := stocks.ParseInterval(*interval)
	if err != nil {
		return err
	}

	ds, err := a.stocks.Candles(ctx, fs.Arg(0), fromT, tillT, iv)
	if err != nil {
		return err
	}
	if *closes {
		values, err := stocks.Closes(ds)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(stdout, report.FormatValue(v, out.opts.Precision))
		}
		return nil
	}
	return out.write(stdout, "candles", ds)
}

func (a *app) cmdAggregates(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("aggregates", a.stderr)
	date := fs.String("date", time.Now().Format("2006-01-02"), "trading day")
	out := addOutputFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: aggregates [-date YYYY-MM-DD] <secid>")
	}

	day, err := time.Parse("2006-01-02", *date)
	if err != nil {
		return fmt.Errorf("invalid -date: %w", err)
	}

	ds, err := a.stocks.Aggregates(ctx, fs.Arg(0), day)
	if err != nil {
		return err
	}
	return out.write(stdout, "aggregates", ds)
}

func (a *app) cmdServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve", a.stderr)
	addr := fs.String("addr", a.cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(a.bonds),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", *addr).Str("user_agent", a.cfg.ISS.UserAgent).Msg("Starting ISS API server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type periodsFile struct {
	Periods []scoring.Period `yaml:"periods"`
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func cmdBeneish(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("beneish", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: beneish <periods.yaml>")
	}

	var pf periodsFile
	if err := readYAML(fs.Arg(0), &pf); err != nil {
		return err
	}
	if len(pf.Periods) == 0 {
		return errors.New("no periods in file")
	}

	for _, r := range scoring.ComputeBeneish(pf.Periods) {
		fmt.Fprint(stdout, scoring.BeneishReport(r))
	}
	return nil
}

func cmdFairValue(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fairvalue", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: fairvalue <company.yaml>")
	}

	var c scoring.Company
	if err := readYAML(fs.Arg(0), &c); err != nil {
		return err
	}

	price, err := c.FairPrice()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Fair price of %s: %.2f\n", c.Name, price)
	for _, m := range c.Multiples() {
		fmt.Fprintf(stdout, "  %-16s %.2f\n", m.Name, m.Value)
	}
	return nil
}
