package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// commonWeatherLimit is how many precipitation kinds a report lists.
const commonWeatherLimit = 2

// Service is the read-only facade the presentation layer calls. It only
// orchestrates store calls and forwards their results.
type Service struct {
	store  Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewService creates a new Service. A nil clock means real time.
func NewService(store Store, clock clockwork.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// Report gathers every statistic for city between from and to, both
// "YYYY-MM-DD". A failure in any field fails the whole report.
func (s *Service) Report(ctx context.Context, city, from, to string) (Report, error) {
	begin, err := ParseDay(from)
	if err != nil {
		return Report{}, err
	}
	end, err := ParseDay(to)
	if err != nil {
		return Report{}, err
	}

	r := Report{City: city, From: from, To: to}

	if r.MaxTemp, err = s.store.Aggregate(ctx, MaxTemp, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("max temp: %w", err)
	}
	if r.MinTemp, err = s.store.Aggregate(ctx, MinTemp, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("min temp: %w", err)
	}
	if r.AvgTemp, err = s.store.Aggregate(ctx, AvgTemp, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("avg temp: %w", err)
	}
	if r.WindSpeed, err = s.store.Aggregate(ctx, AvgWindSpeed, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("wind speed: %w", err)
	}
	if r.WindDirection, err = s.store.ModalDirection(ctx, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("wind direction: %w", err)
	}

	// The reference is yesterday, the latest day the diary publishes. Until
	// that day is loaded the field stays empty instead of failing the report.
	reference := Yesterday(s.clock)
	dates, err := s.store.ClosestDates(ctx, city, begin, end, reference)
	switch {
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("reference day not loaded", "city", city, "day", reference.Format(DayLayout))
	case err != nil:
		return Report{}, fmt.Errorf("closest dates: %w", err)
	}
	r.ClosestDates = make([]Day, 0, len(dates))
	for _, d := range dates {
		r.ClosestDates = append(r.ClosestDates, Day(d))
	}

	if r.Precipitation, err = s.store.PrecipitationRate(ctx, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("precipitation: %w", err)
	}
	if r.CommonWeather, err = s.store.TopWeatherKinds(ctx, city, begin, end, commonWeatherLimit); err != nil {
		return Report{}, fmt.Errorf("common weather: %w", err)
	}
	if r.YearsMax, err = s.store.YearlyAverage(ctx, AvgMaxTemp, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("yearly max: %w", err)
	}
	if r.YearsMin, err = s.store.YearlyAverage(ctx, AvgMinTemp, city, begin, end); err != nil {
		return Report{}, fmt.Errorf("yearly min: %w", err)
	}

	return r, nil
}

// Yesterday returns the day before now, the latest day the diary publishes.
func Yesterday(clock clockwork.Clock) time.Time {
	y := clock.Now().UTC().AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}
