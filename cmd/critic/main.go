// Command critic scrapes product reviews from review platforms for a given
// company and date range, writing the result set as JSON. When the target
// blocks extraction or no reviews fall in the window, a labeled synthetic
// data set is produced instead so downstream consumers always get a
// well-formed document.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/critic/internal/adapter"
	"github.com/FranksOps/critic/internal/fingerprint"
	"github.com/FranksOps/critic/internal/metrics"
	"github.com/FranksOps/critic/internal/pipeline"
	"github.com/FranksOps/critic/internal/report"
	"github.com/FranksOps/critic/internal/review"
	"github.com/FranksOps/critic/internal/storage"
	"github.com/FranksOps/critic/internal/storage/csvbackend"
	"github.com/FranksOps/critic/internal/storage/jsonbackend"
	"github.com/FranksOps/critic/internal/storage/postgres"
	"github.com/FranksOps/critic/internal/storage/sqlite"
	"github.com/FranksOps/critic/internal/transport"
	"github.com/FranksOps/critic/pkg/pacing"
	"github.com/FranksOps/critic/pkg/proxy"
	"github.com/FranksOps/critic/pkg/useragent"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "critic",
		Short: "Scrape product reviews from G2, Capterra, or Trustpilot",
		Long: `critic fetches a company's review listing from the chosen platform,
parses the reviews that fall within the given date range, and writes them
as a JSON document. If the site blocks extraction or no reviews match,
a synthetic sample data set is written instead.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	fl := cmd.Flags()
	fl.String("company", "", "company name to search for (required)")
	fl.String("start-date", "", "range start, YYYY-MM-DD (required)")
	fl.String("end-date", "", "range end, YYYY-MM-DD (required)")
	fl.String("source", "", "review platform: g2, capterra, or trustpilot (required)")
	fl.String("output", "", "output file path (default output_<company>_<source>.json)")
	fl.String("format", "json", "output format: json or csv")
	fl.Bool("render", true, "use a headless browser for fetching")
	fl.Bool("headless", true, "run the browser without a visible window")
	fl.Int("max-pages", 100, "pagination ceiling")
	fl.Int("fallback-count", 10, "synthetic review count when falling back")
	fl.Bool("polite", false, "honor robots.txt for the listing URL")
	fl.Bool("stop-before-range", false, "stop paginating once reviews predate the range start")
	fl.Duration("page-delay", 2*time.Second, "delay between page fetches")
	fl.Duration("timeout", 0, "overall deadline for the scrape (0 = none)")
	fl.String("proxy-file", "", "file with one proxy URL per line")
	fl.String("fingerprint", "chrome", "TLS fingerprint profile: chrome, firefox, safari, go, random")
	fl.String("archive", "", "fetch archive backend: json, csv, sqlite, or postgres")
	fl.String("archive-dsn", "", "archive file path or connection string")
	fl.String("debug-dir", "debug_html", "directory for raw HTML dumps (empty to disable)")
	fl.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 = off)")
	fl.String("log-level", "info", "log level: debug, info, warn, error")

	for _, name := range []string{"company", "start-date", "end-date", "source"} {
		cobra.CheckErr(cmd.MarkFlagRequired(name))
	}

	cobra.CheckErr(v.BindPFlags(fl))
	v.SetEnvPrefix("CRITIC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	logger := newLogger(v.GetString("log-level"))
	slog.SetDefault(logger)

	// Validate everything before any network traffic.
	src, err := review.ParseSource(v.GetString("source"))
	if err != nil {
		return err
	}
	dr, err := review.ParseDateRange(v.GetString("start-date"), v.GetString("end-date"))
	if err != nil {
		return err
	}
	company := strings.TrimSpace(v.GetString("company"))
	if company == "" {
		return fmt.Errorf("company must not be empty")
	}
	adp, err := adapter.ForSource(src)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if d := v.GetDuration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var proxyPool *proxy.Pool
	if path := v.GetString("proxy-file"); path != "" {
		proxyPool = proxy.NewPool(proxy.Config{})
		if err := proxyPool.LoadFile(path); err != nil {
			return fmt.Errorf("loading proxies: %w", err)
		}
		logger.Info("loaded proxies", "count", proxyPool.Size())
	}

	archive, err := openArchive(ctx, v.GetString("archive"), v.GetString("archive-dsn"), company, src)
	if err != nil {
		return err
	}
	if archive != nil {
		defer archive.Close()
	}

	uaPool := useragent.NewPool(nil)

	var renderer transport.Renderer
	if v.GetBool("render") {
		cr, err := transport.NewChromeRenderer(transport.RenderConfig{
			Headless:  v.GetBool("headless"),
			UserAgent: uaPool.Random(),
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("headless browser unavailable, using static fetches", "err", err)
		} else {
			renderer = cr
			defer cr.Close()
		}
	}

	fetcher, err := transport.NewFetcher(transport.Config{
		Fingerprint: fingerprint.Profile(v.GetString("fingerprint")),
		UAPool:      uaPool,
		ProxyPool:   proxyPool,
		Renderer:    renderer,
		Archive:     archive,
		Company:     company,
		Source:      string(src),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	pcfg := pipeline.Config{
		MaxPages:        v.GetInt("max-pages"),
		StopBeforeRange: v.GetBool("stop-before-range"),
		FallbackCount:   v.GetInt("fallback-count"),
		Render:          renderer != nil,
		Pacer:           pacing.New(v.GetDuration("page-delay"), 0.25),
		UserAgent:       uaPool.Next(),
		Logger:          logger,
	}
	if v.GetBool("polite") {
		pcfg.Robots = transport.NewRobotsGate(fetcher, logger)
	}
	if dir := v.GetString("debug-dir"); dir != "" {
		pcfg.Debug = &report.HTMLDumper{Dir: dir}
	}

	var outcome pipeline.Outcome
	g, gctx := errgroup.WithContext(ctx)

	var metricsSrv *metrics.Server
	if port := v.GetInt("metrics-port"); port > 0 {
		metricsSrv = metrics.Start(port)
		logger.Info("metrics server listening", "port", port)
	}

	g.Go(func() error {
		var err error
		outcome, err = pipeline.New(fetcher, adp, pcfg).Run(gctx, company, dr)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsSrv.Stop(shutdownCtx)
	}

	env := report.Build(company, src, dr, outcome.Records())
	path := v.GetString("output")
	if path == "" {
		path = report.DefaultFilename(company, src)
	}
	if err := writeOutput(path, v.GetString("format"), env); err != nil {
		return err
	}

	if outcome.IsFallback() {
		logger.Warn("wrote synthetic sample data", "path", path, "reviews", env.TotalReviews)
	} else {
		logger.Info("wrote scraped reviews", "path", path, "reviews", env.TotalReviews)
	}
	return nil
}

func writeOutput(path, format string, env report.Envelope) error {
	switch format {
	case "json":
		return report.SaveJSON(path, env)
	case "csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer f.Close()
		return report.WriteCSV(f, env)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// openArchive constructs the fetch archive backend, or returns nil when
// archiving is disabled.
func openArchive(ctx context.Context, backend, dsn, company string, src review.Source) (storage.Backend, error) {
	if backend == "" {
		return nil, nil
	}
	if dsn == "" {
		dsn = defaultArchiveDSN(backend, company, src)
	}
	if dsn == "" && backend == "postgres" {
		return nil, fmt.Errorf("archive backend %q requires --archive-dsn", backend)
	}
	switch backend {
	case "json":
		return jsonbackend.New(dsn)
	case "csv":
		return csvbackend.New(dsn)
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", backend)
	}
}

func defaultArchiveDSN(backend, company string, src review.Source) string {
	slug := strings.ReplaceAll(strings.ToLower(company), " ", "_")
	switch backend {
	case "json":
		return fmt.Sprintf("fetches_%s_%s.ndjson", slug, src)
	case "csv":
		return fmt.Sprintf("fetches_%s_%s.csv", slug, src)
	case "sqlite":
		return fmt.Sprintf("fetches_%s_%s.db", slug, src)
	default:
		return ""
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
