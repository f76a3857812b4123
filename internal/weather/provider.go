package weather

import (
	"context"
	"time"
)

// Store is the read contract the report facade needs from persistence.
// All ranges are inclusive calendar days.
type Store interface {
	Aggregate(ctx context.Context, kind AggregateKind, city string, begin, end time.Time) (float64, error)
	ModalDirection(ctx context.Context, city string, begin, end time.Time) (string, error)
	ClosestDates(ctx context.Context, city string, begin, end, reference time.Time) ([]time.Time, error)
	PrecipitationRate(ctx context.Context, city string, begin, end time.Time) (float64, error)
	TopWeatherKinds(ctx context.Context, city string, begin, end time.Time, limit int) ([]string, error)
	YearlyAverage(ctx context.Context, kind AggregateKind, city string, begin, end time.Time) ([]YearAverage, error)
}

// RecordWriter persists records atomically per call.
type RecordWriter interface {
	BulkInsert(ctx context.Context, records []WeatherRecord) error
}
