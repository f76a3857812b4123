// Package archive fills the record store from the weather diary: the whole
// history once, then one day per city every day.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weather-diary/internal/fetch"
	"github.com/i474232898/weather-diary/internal/observability"
	"github.com/i474232898/weather-diary/internal/weather"
	"github.com/i474232898/weather-diary/internal/weather/diary"
)

// DefaultStartYear is the first year of the archive.
const DefaultStartYear = 2010

var (
	// ErrDayNotPublished means the page does not list the requested day yet.
	ErrDayNotPublished = errors.New("day not published yet")

	errNoData = errors.New("page has no data table")
)

// City is one archive location: the code used in page URLs and the name
// records are stored under.
type City struct {
	Code string
	Name string
}

// Source builds diary page URLs and fetches single pages resiliently.
type Source interface {
	MonthURL(code string, year int, month time.Month) string
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Fetcher retrieves many pages at once.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) ([]fetch.Page, error)
}

type Config struct {
	Cities    []City
	StartYear int
	// Workers bounds concurrent extract+persist of fetched pages.
	Workers int
}

// Builder runs the full archive build and the daily update.
type Builder struct {
	cfg     Config
	source  Source
	fetcher Fetcher
	store   weather.RecordWriter
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

func NewBuilder(
	cfg Config,
	source Source,
	fetcher Fetcher,
	store weather.RecordWriter,
	clock clockwork.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Builder {
	if cfg.StartYear == 0 {
		cfg.StartYear = DefaultStartYear
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Builder{
		cfg:     cfg,
		source:  source,
		fetcher: fetcher,
		store:   store,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// Summary describes one full archive build.
type Summary struct {
	RunID   string
	URLs    int
	Fetched int
	Empty   int
	Failed  int
	Records int
}

type target struct {
	city  City
	year  int
	month time.Month
}

// BuildFullArchive loads every month of every city from StartYear through
// the current year. Each page is extracted and stored on its own, so a bad
// page only loses its own month. Running it twice stores every row twice.
func (b *Builder) BuildFullArchive(ctx context.Context) (Summary, error) {
	runID := uuid.NewString()
	logger := b.logger.With("run_id", runID)
	now := b.clock.Now().UTC()

	targets := make(map[string]target)
	var urls []string
	for _, city := range b.cfg.Cities {
		for year := b.cfg.StartYear; year <= now.Year(); year++ {
			for month := time.January; month <= time.December; month++ {
				u := b.source.MonthURL(city.Code, year, month)
				targets[u] = target{city: city, year: year, month: month}
				urls = append(urls, u)
			}
		}
	}
	logger.Info("building archive", "cities", len(b.cfg.Cities), "urls", len(urls))

	pages, err := b.fetcher.FetchAll(ctx, urls)
	if err != nil {
		return Summary{RunID: runID, URLs: len(urls)}, fmt.Errorf("fetch archive: %w", err)
	}

	var (
		mu  sync.Mutex
		sum = Summary{RunID: runID, URLs: len(urls), Fetched: len(pages)}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for _, page := range pages {
		t, ok := targets[page.URL]
		if !ok {
			logger.Warn("fetched unknown url", "url", page.URL)
			continue
		}
		g.Go(func() error {
			n, err := b.storePage(gctx, t, page.Body)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, errNoData):
				sum.Empty++
			case err != nil:
				sum.Failed++
				logger.Warn("page failed", "url", page.URL, "status", page.Status, "error", err)
			default:
				sum.Records += n
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return sum, err
	}

	logger.Info("archive built",
		"fetched", sum.Fetched, "empty", sum.Empty, "failed", sum.Failed, "records", sum.Records)
	return sum, nil
}

// storePage extracts one month page and stores its complete days.
func (b *Builder) storePage(ctx context.Context, t target, body []byte) (int, error) {
	doc, err := diary.LoadDocument(bytes.NewReader(body))
	if err != nil {
		b.metrics.PagesFailed.WithLabelValues("parse").Inc()
		return 0, err
	}
	rows, ok := diary.Rows(doc)
	if !ok {
		return 0, errNoData
	}

	var records []weather.WeatherRecord
	for row, err := range rows {
		if err != nil {
			b.metrics.PagesFailed.WithLabelValues("structure").Inc()
			return 0, err
		}
		day, err := dayOf(row, t.year, t.month)
		if err != nil {
			b.metrics.PagesFailed.WithLabelValues("structure").Inc()
			return 0, err
		}
		rec, err := weather.NewWeatherRecord(t.city.Name, day, row)
		if errors.Is(err, weather.ErrMissingTemperature) {
			continue
		}
		if err != nil {
			b.metrics.PagesFailed.WithLabelValues("record").Inc()
			return 0, err
		}
		records = append(records, rec)
	}

	if err := b.store.BulkInsert(ctx, records); err != nil {
		b.metrics.PagesFailed.WithLabelValues("store").Inc()
		return 0, err
	}
	b.metrics.RecordsInserted.Add(float64(len(records)))
	return len(records), nil
}

// AppendDailyUpdate stores yesterday's row for every city. All cities are
// stored in one batch; if any city fails nothing is stored and the joined
// error is returned so the caller can re-run the whole update later.
func (b *Builder) AppendDailyUpdate(ctx context.Context) (int, error) {
	logger := b.logger.With("run_id", uuid.NewString())
	yesterday := weather.Yesterday(b.clock)

	var (
		records []weather.WeatherRecord
		errs    []error
	)
	for _, city := range b.cfg.Cities {
		rec, err := b.dailyRecord(ctx, city, yesterday)
		if err != nil {
			logger.Warn("daily update failed", "city", city.Name, "day", yesterday.Format(weather.DayLayout), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", city.Name, err))
			continue
		}
		records = append(records, rec)
	}
	if len(errs) > 0 {
		b.metrics.DailyRuns.WithLabelValues("error").Inc()
		return 0, errors.Join(errs...)
	}

	if err := b.store.BulkInsert(ctx, records); err != nil {
		b.metrics.DailyRuns.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("store daily records: %w", err)
	}
	b.metrics.RecordsInserted.Add(float64(len(records)))
	b.metrics.DailyRuns.WithLabelValues("success").Inc()
	logger.Info("daily update stored", "day", yesterday.Format(weather.DayLayout), "records", len(records))
	return len(records), nil
}

func (b *Builder) dailyRecord(ctx context.Context, city City, day time.Time) (weather.WeatherRecord, error) {
	url := b.source.MonthURL(city.Code, day.Year(), day.Month())
	body, err := b.source.FetchPage(ctx, url)
	if err != nil {
		return weather.WeatherRecord{}, err
	}

	doc, err := diary.LoadDocument(bytes.NewReader(body))
	if err != nil {
		return weather.WeatherRecord{}, err
	}
	rows, ok := diary.Rows(doc)
	if !ok {
		return weather.WeatherRecord{}, ErrDayNotPublished
	}

	want := strconv.Itoa(day.Day())
	for row, err := range rows {
		if err != nil {
			return weather.WeatherRecord{}, err
		}
		if row.Day == want {
			return weather.NewWeatherRecord(city.Name, day, row)
		}
	}
	return weather.WeatherRecord{}, ErrDayNotPublished
}

func dayOf(row weather.DayRow, year int, month time.Month) (time.Time, error) {
	d, err := strconv.Atoi(row.Day)
	if err != nil || d < 1 || d > 31 {
		return time.Time{}, fmt.Errorf("%w: day %q", diary.ErrUnexpectedStructure, row.Day)
	}
	t := time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	if t.Month() != month {
		return time.Time{}, fmt.Errorf("%w: day %q of %s %d", diary.ErrUnexpectedStructure, row.Day, month, year)
	}
	return t, nil
}
