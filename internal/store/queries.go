package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/i474232898/weather-diary/internal/weather"
)

const rangeFilter = "city = ? AND day >= ? AND day <= ?"

// closestDatesLimit is how many days ClosestDates returns at most.
const closestDatesLimit = 2

// Aggregate computes one statistic over city's rows with day in [begin, end].
// Means are rounded to two decimals. A range with no rows returns
// weather.ErrNotFound rather than zero.
func (s *SQLStore) Aggregate(ctx context.Context, kind weather.AggregateKind, city string, begin, end time.Time) (float64, error) {
	expr, err := kind.SQL()
	if err != nil {
		return 0, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	var v sql.NullFloat64
	query := s.rebind("SELECT " + expr + " FROM weather_records WHERE " + rangeFilter)
	if err := s.db.QueryRowContext(ctx, query, city, dayArg(begin), dayArg(end)).Scan(&v); err != nil {
		return 0, fmt.Errorf("aggregate %s: %w", expr, err)
	}
	if !v.Valid {
		return 0, weather.ErrNotFound
	}
	if kind.Averaging() {
		return weather.Round2(v.Float64), nil
	}
	return v.Float64, nil
}

// ModalDirection returns the most frequent wind direction in range. Ties go
// to the direction stored first.
func (s *SQLStore) ModalDirection(ctx context.Context, city string, begin, end time.Time) (string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return "", err
	}

	query := s.rebind(`SELECT wind_direction FROM weather_records
		WHERE ` + rangeFilter + `
		GROUP BY wind_direction
		ORDER BY COUNT(*) DESC, MIN(id) ASC
		LIMIT 1`)

	var direction string
	err := s.db.QueryRowContext(ctx, query, city, dayArg(begin), dayArg(end)).Scan(&direction)
	if errors.Is(err, sql.ErrNoRows) {
		return "", weather.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("modal direction: %w", err)
	}
	return direction, nil
}

// ClosestDates ranks every day in range by how close its mean temperature is
// to the reference day's and returns the two closest. Equal distances keep
// insertion order. A reference day with no row returns weather.ErrNotFound.
func (s *SQLStore) ClosestDates(ctx context.Context, city string, begin, end, reference time.Time) ([]time.Time, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	var refAvg float64
	refQuery := s.rebind("SELECT avg_temp FROM weather_records WHERE city = ? AND day = ? ORDER BY id LIMIT 1")
	err := s.db.QueryRowContext(ctx, refQuery, city, dayArg(reference)).Scan(&refAvg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reference day %s: %w", dayArg(reference), weather.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reference day: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT day, avg_temp FROM weather_records WHERE "+rangeFilter+" ORDER BY id"),
		city, dayArg(begin), dayArg(end))
	if err != nil {
		return nil, fmt.Errorf("closest dates: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		day      time.Time
		distance float64
	}
	var candidates []candidate
	for rows.Next() {
		var (
			day dayValue
			avg float64
		)
		if err := rows.Scan(&day, &avg); err != nil {
			return nil, fmt.Errorf("scan closest dates: %w", err)
		}
		candidates = append(candidates, candidate{day: day.t, distance: math.Abs(avg - refAvg)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("closest dates: %w", err)
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.distance < b.distance:
			return -1
		case a.distance > b.distance:
			return 1
		default:
			return 0
		}
	})

	n := min(len(candidates), closestDatesLimit)
	days := make([]time.Time, 0, n)
	for _, c := range candidates[:n] {
		days = append(days, c.day)
	}
	return days, nil
}

// PrecipitationRate is the number of rows with a weather token divided by
// the number of calendar days in range, as a percentage. Duplicate rows for
// a day can push it past 100.
func (s *SQLStore) PrecipitationRate(ctx context.Context, city string, begin, end time.Time) (float64, error) {
	span := int(end.Sub(begin).Hours()/24) + 1
	if span <= 0 {
		return 0, fmt.Errorf("precipitation rate: end %s before begin %s", dayArg(end), dayArg(begin))
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	var n int64
	query := s.rebind("SELECT COUNT(weather) FROM weather_records WHERE " + rangeFilter)
	if err := s.db.QueryRowContext(ctx, query, city, dayArg(begin), dayArg(end)).Scan(&n); err != nil {
		return 0, fmt.Errorf("precipitation rate: %w", err)
	}
	return weather.Round2(float64(n) / float64(span) * 100), nil
}

// TopWeatherKinds returns up to limit weather tokens, most frequent first.
func (s *SQLStore) TopWeatherKinds(ctx context.Context, city string, begin, end time.Time, limit int) ([]string, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	query := s.rebind(`SELECT weather FROM weather_records
		WHERE ` + rangeFilter + ` AND weather IS NOT NULL
		GROUP BY weather
		ORDER BY COUNT(*) DESC, MIN(id) ASC
		LIMIT ?`)

	rows, err := s.db.QueryContext(ctx, query, city, dayArg(begin), dayArg(end), limit)
	if err != nil {
		return nil, fmt.Errorf("top weather kinds: %w", err)
	}
	defer rows.Close()

	kinds := []string{}
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan weather kind: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, rows.Err()
}

// YearlyAverage returns the mean of kind for every whole year from
// begin.Year up to but excluding end.Year. It returns nil when the range
// spans fewer than two years.
func (s *SQLStore) YearlyAverage(ctx context.Context, kind weather.AggregateKind, city string, begin, end time.Time) ([]weather.YearAverage, error) {
	if end.Year()-begin.Year() < 2 {
		return nil, nil
	}
	expr, err := kind.SQL()
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	query := s.rebind("SELECT " + expr + " FROM weather_records WHERE " + rangeFilter)
	years := make([]weather.YearAverage, 0, end.Year()-begin.Year())
	for y := begin.Year(); y < end.Year(); y++ {
		first := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(y, time.December, 31, 0, 0, 0, 0, time.UTC)

		var v sql.NullFloat64
		if err := s.db.QueryRowContext(ctx, query, city, dayArg(first), dayArg(last)).Scan(&v); err != nil {
			return nil, fmt.Errorf("yearly %s %d: %w", expr, y, err)
		}
		entry := weather.YearAverage{Year: y}
		if v.Valid {
			avg := weather.Round2(v.Float64)
			entry.Avg = &avg
		}
		years = append(years, entry)
	}
	return years, nil
}
