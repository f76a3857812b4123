package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-diary/internal/weather"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(SQLite.Name, filepath.Join(t.TempDir(), "weather.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strp(s string) *string { return &s }

func record(city string, d time.Time, maxTemp, minTemp int, kind *string, direction string, speed int) weather.WeatherRecord {
	return weather.WeatherRecord{
		City:          city,
		Day:           d,
		MaxTemp:       maxTemp,
		MinTemp:       minTemp,
		AvgTemp:       float64(maxTemp+minTemp) / 2,
		Weather:       kind,
		WindDirection: direction,
		WindSpeed:     speed,
	}
}

// countingDriver fails every connection attempt and counts them.
type countingDriver struct {
	opens atomic.Int32
}

func (d *countingDriver) Open(string) (driver.Conn, error) {
	d.opens.Add(1)
	return nil, errors.New("connection refused")
}

var failing = &countingDriver{}

func init() {
	sql.Register("failing", failing)
}

func TestBulkInsert_EmptyTouchesNothing(t *testing.T) {
	db, err := sql.Open("failing", "")
	require.NoError(t, err)
	defer db.Close()

	s := New(db, SQLite)
	require.NoError(t, s.BulkInsert(context.Background(), nil))
	require.NoError(t, s.BulkInsert(context.Background(), []weather.WeatherRecord{}))
	assert.Zero(t, failing.opens.Load())

	err = s.BulkInsert(context.Background(), []weather.WeatherRecord{record("default", day(2024, 1, 1), 1, 0, nil, "N", 1)})
	assert.Error(t, err)
	assert.NotZero(t, failing.opens.Load())
}

func TestBulkInsert_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.EnsureSchema(ctx))

	_, err := s.db.ExecContext(ctx, `CREATE TRIGGER reject_atlantis BEFORE INSERT ON weather_records
		WHEN NEW.city = 'Atlantis'
		BEGIN SELECT RAISE(ABORT, 'city rejected'); END`)
	require.NoError(t, err)

	err = s.BulkInsert(ctx, []weather.WeatherRecord{
		record("Minsk", day(2024, 1, 1), 1, -3, nil, "N", 4),
		record("Atlantis", day(2024, 1, 1), 20, 18, nil, "S", 2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "city rejected")

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// the connection is usable again once the batch has rolled back
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("Minsk", day(2024, 1, 2), 2, -1, nil, "W", 3),
	}))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSingleDayAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := day(2021, time.June, 1)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{record("default", d, 100, -100, strp("rain"), "S", 100)}))

	cases := []struct {
		kind weather.AggregateKind
		want float64
	}{
		{weather.MaxTemp, 100},
		{weather.MinTemp, -100},
		{weather.AvgTemp, 0},
		{weather.AvgWindSpeed, 100},
	}
	for _, c := range cases {
		got, err := s.Aggregate(ctx, c.kind, "default", d, d)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	dir, err := s.ModalDirection(ctx, "default", d, d)
	require.NoError(t, err)
	assert.Equal(t, "S", dir)
}

func TestAggregate_EmptyRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{record("default", day(2021, 1, 1), 1, 0, nil, "N", 1)}))

	_, err := s.Aggregate(ctx, weather.MaxTemp, "default", day(2022, 1, 1), day(2022, 2, 1))
	assert.ErrorIs(t, err, weather.ErrNotFound)

	_, err = s.Aggregate(ctx, weather.AvgTemp, "elsewhere", day(2021, 1, 1), day(2021, 1, 1))
	assert.ErrorIs(t, err, weather.ErrNotFound)

	_, err = s.ModalDirection(ctx, "elsewhere", day(2021, 1, 1), day(2021, 1, 1))
	assert.ErrorIs(t, err, weather.ErrNotFound)
}

func TestAggregate_RoundsMeans(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", day(2021, 1, 1), 1, 0, nil, "N", 1),
		record("default", day(2021, 1, 2), 1, 0, nil, "N", 1),
		record("default", day(2021, 1, 3), 2, 0, nil, "N", 2),
	}))

	got, err := s.Aggregate(ctx, weather.AvgWindSpeed, "default", day(2021, 1, 1), day(2021, 1, 3))
	require.NoError(t, err)
	assert.Equal(t, 1.33, got)
}

func TestModalDirection_TieGoesToFirstStored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", day(2021, 1, 1), 1, 0, nil, "NW", 1),
		record("default", day(2021, 1, 2), 1, 0, nil, "E", 1),
		record("default", day(2021, 1, 3), 1, 0, nil, "E", 1),
		record("default", day(2021, 1, 4), 1, 0, nil, "NW", 1),
	}))

	dir, err := s.ModalDirection(ctx, "default", day(2021, 1, 1), day(2021, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, "NW", dir)
}

func TestClosestDates_DuplicateReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ref := day(2023, time.March, 8)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", ref, 100, -100, nil, "S", 100),
		record("default", ref, 100, -100, nil, "S", 100),
	}))

	dates, err := s.ClosestDates(ctx, "default", ref, ref, ref)
	require.NoError(t, err)
	require.Len(t, dates, 2)
	for _, d := range dates {
		assert.Equal(t, weather.Day(ref).String(), weather.Day(d).String())
	}
}

func TestClosestDates_Ranking(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", day(2023, 1, 1), 20, 10, nil, "N", 1), // 15
		record("default", day(2023, 1, 2), 4, 2, nil, "N", 1),   // 3
		record("default", day(2023, 1, 3), 6, 2, nil, "N", 1),   // 4
		record("default", day(2023, 1, 4), 6, 4, nil, "N", 1),   // 5
		record("default", day(2023, 2, 1), 6, 4, nil, "N", 1),   // 5, reference
	}))

	dates, err := s.ClosestDates(ctx, "default", day(2023, 1, 1), day(2023, 1, 31), day(2023, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day(2023, 1, 4), day(2023, 1, 3)}, dates)
}

func TestClosestDates_MissingReference(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{record("default", day(2023, 1, 1), 1, 0, nil, "N", 1)}))

	_, err := s.ClosestDates(ctx, "default", day(2023, 1, 1), day(2023, 1, 1), day(2023, 1, 2))
	assert.ErrorIs(t, err, weather.ErrNotFound)
}

func TestPrecipitationRate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	d := day(2022, time.July, 1)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{record("default", d, 20, 10, strp("rain"), "N", 1)}))

	rate, err := s.PrecipitationRate(ctx, "default", d, d)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rate)

	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{record("default", d, 20, 10, strp("storm"), "N", 1)}))
	rate, err = s.PrecipitationRate(ctx, "default", d, d)
	require.NoError(t, err)
	assert.Equal(t, 200.0, rate)

	rate, err = s.PrecipitationRate(ctx, "default", d, day(2022, time.July, 3))
	require.NoError(t, err)
	assert.Equal(t, 66.67, rate)

	_, err = s.PrecipitationRate(ctx, "default", d, day(2022, time.June, 1))
	assert.Error(t, err)
}

func TestTopWeatherKinds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", day(2022, 1, 1), 1, 0, strp("snow"), "N", 1),
		record("default", day(2022, 1, 2), 1, 0, strp("rain"), "N", 1),
		record("default", day(2022, 1, 3), 1, 0, strp("rain"), "N", 1),
		record("default", day(2022, 1, 4), 1, 0, nil, "N", 1),
		record("default", day(2022, 1, 5), 1, 0, nil, "N", 1),
		record("default", day(2022, 1, 6), 1, 0, strp("storm"), "N", 1),
	}))

	kinds, err := s.TopWeatherKinds(ctx, "default", day(2022, 1, 1), day(2022, 1, 31), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"rain", "snow"}, kinds)

	kinds, err = s.TopWeatherKinds(ctx, "default", day(2023, 1, 1), day(2023, 1, 31), 2)
	require.NoError(t, err)
	assert.Empty(t, kinds)
}

func TestYearlyAverage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", day(2020, 3, 1), 10, 0, nil, "N", 1),
		record("default", day(2020, 9, 1), 21, 0, nil, "N", 1),
		record("default", day(2022, 1, 1), 5, -5, nil, "N", 1),
	}))

	years, err := s.YearlyAverage(ctx, weather.AvgMaxTemp, "default", day(2020, 1, 1), day(2021, 12, 31))
	require.NoError(t, err)
	assert.Nil(t, years)

	years, err = s.YearlyAverage(ctx, weather.AvgMaxTemp, "default", day(2020, 1, 1), day(2022, 6, 1))
	require.NoError(t, err)
	require.Len(t, years, 2)
	assert.Equal(t, 2020, years[0].Year)
	require.NotNil(t, years[0].Avg)
	assert.Equal(t, 15.5, *years[0].Avg)
	assert.Equal(t, 2021, years[1].Year)
	assert.Nil(t, years[1].Avg)
}

func TestCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record("default", day(2022, 1, 1), 1, 0, nil, "N", 1),
		record("default", day(2022, 1, 1), 1, 0, nil, "N", 1),
	}))
	n, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestRebind(t *testing.T) {
	pg := New(nil, Postgres)
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := New(nil, SQLite)
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(Postgres.Name, dsn)
	require.NoError(t, err)
	defer s.Close()

	city := "it-" + time.Now().UTC().Format("150405.000000")
	d := day(2021, time.June, 1)
	require.NoError(t, s.BulkInsert(ctx, []weather.WeatherRecord{
		record(city, d, 100, -100, strp("rain"), "S", 100),
		record(city, d, 100, -100, nil, "S", 100),
	}))

	avg, err := s.Aggregate(ctx, weather.AvgTemp, city, d, d)
	require.NoError(t, err)
	assert.Equal(t, 0.0, avg)

	dates, err := s.ClosestDates(ctx, city, d, d, d)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d, d}, dates)

	rate, err := s.PrecipitationRate(ctx, city, d, d)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rate)
}
