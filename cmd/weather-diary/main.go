package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	httpapi "github.com/i474232898/weather-diary/internal/api/http"
	"github.com/i474232898/weather-diary/internal/archive"
	"github.com/i474232898/weather-diary/internal/config"
	"github.com/i474232898/weather-diary/internal/fetch"
	"github.com/i474232898/weather-diary/internal/observability"
	"github.com/i474232898/weather-diary/internal/scheduler"
	"github.com/i474232898/weather-diary/internal/store"
	"github.com/i474232898/weather-diary/internal/weather"
	"github.com/i474232898/weather-diary/internal/weather/providers"
)

func main() {
	mode := flag.String("mode", "serve", "serve, build or daily")
	force := flag.Bool("force", false, "build the archive even if the store already has records")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.EnsureSchema(ctx); err != nil {
		log.Error("failed to prepare store", "error", err)
		os.Exit(1)
	}

	// Shared HTTP client for outbound diary calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	clock := clockwork.NewRealClock()
	builder := newBuilder(cfg, httpClient, st, clock, log, metrics)

	switch *mode {
	case "build":
		err = runBuild(ctx, builder, st, *force, log)
	case "daily":
		var n int
		n, err = builder.AppendDailyUpdate(ctx)
		log.Info("daily update finished", "records", n)
	case "serve":
		err = serve(ctx, cfg, builder, st, clock, log)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Error("weather-diary failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func newBuilder(
	cfg *config.AppConfig,
	client *http.Client,
	st *store.SQLStore,
	clock clockwork.Clock,
	log *slog.Logger,
	metrics *observability.Metrics,
) *archive.Builder {
	source := providers.NewDiaryClient(client, cfg.Archive.BaseURL, cfg.Archive.Headers, cfg.Archive.UserAgents)
	engine := fetch.NewEngine(client, fetch.Config{
		RetryPasses: cfg.FetchRetryPasses,
		MaxInFlight: cfg.FetchMaxInFlight,
		Headers:     cfg.Archive.Headers,
		UserAgents:  cfg.Archive.UserAgents,
	}, log, metrics)

	cities := make([]archive.City, 0, len(cfg.Archive.Cities))
	for _, c := range cfg.Archive.Cities {
		cities = append(cities, archive.City{Code: c.Code, Name: c.Name})
	}

	return archive.NewBuilder(archive.Config{
		Cities:    cities,
		StartYear: cfg.StartYear,
		Workers:   cfg.ArchiveWorkers,
	}, source, engine, st, clock, log, metrics)
}

// runBuild loads the full archive. A second build would duplicate every
// row, so a non-empty store needs -force.
func runBuild(ctx context.Context, builder *archive.Builder, st *store.SQLStore, force bool, log *slog.Logger) error {
	n, err := st.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 && !force {
		return fmt.Errorf("store already holds %d records; use -force to build again", n)
	}
	sum, err := builder.BuildFullArchive(ctx)
	if err != nil {
		return err
	}
	log.Info("archive build finished", "run_id", sum.RunID, "records", sum.Records, "failed", sum.Failed)
	return nil
}

func serve(
	ctx context.Context,
	cfg *config.AppConfig,
	builder *archive.Builder,
	st *store.SQLStore,
	clock clockwork.Clock,
	log *slog.Logger,
) error {
	if cfg.BuildArchiveOnStart {
		n, err := st.Count(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			go func() {
				if _, err := builder.BuildFullArchive(ctx); err != nil {
					log.Error("archive build failed", "error", err)
				}
			}()
		}
	}

	sched := scheduler.New(scheduler.Config{
		Cron:       cfg.DailyCron,
		RetryDelay: cfg.DailyRetryDelay,
		MaxRetries: cfg.DailyMaxRetries,
	}, builder, log)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	service := weather.NewService(st, clock, log)

	app := httpapi.NewApp(log, os.Stdout)
	httpapi.RegisterRoutes(app, service, httpapi.Catalog{
		Cities: cfg.Archive.CityNames(),
		Legend: cfg.Archive.WindCodes,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("fiber server stopped", "error", err)
		}
	}()
	log.Info("serving", "port", cfg.Port, "store", cfg.DBDriver)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return app.ShutdownWithContext(shutdownCtx)
}
