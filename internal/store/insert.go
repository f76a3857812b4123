package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/i474232898/weather-diary/internal/weather"
)

var insertColumns = []string{
	"city", "day", "max_temp", "min_temp", "avg_temp", "weather", "wind_direction", "wind_speed",
}

// BulkInsert stores records in a single transaction; either all of them
// persist or none do. An empty batch returns immediately without touching
// the database.
func (s *SQLStore) BulkInsert(ctx context.Context, records []weather.WeatherRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	if err := s.EnsureSchema(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if s.dialect.copy {
		err = s.copyRecords(ctx, tx, records)
	} else {
		err = s.insertRecords(ctx, tx, records)
	}
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func (s *SQLStore) copyRecords(ctx context.Context, tx *sql.Tx, records []weather.WeatherRecord) error {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, insertColumns...))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, recordArgs(rec, rec.AvgTempString())...); err != nil {
			return fmt.Errorf("copy %s %s: %w", rec.City, dayArg(rec.Day), err)
		}
	}
	// an argument-less Exec flushes the buffered rows
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flush copy: %w", err)
	}
	return nil
}

func (s *SQLStore) insertRecords(ctx context.Context, tx *sql.Tx, records []weather.WeatherRecord) error {
	query := s.rebind(`INSERT INTO weather_records
		(city, day, max_temp, min_temp, avg_temp, weather, wind_direction, wind_speed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, recordArgs(rec, weather.Round2(rec.AvgTemp))...); err != nil {
			return fmt.Errorf("insert %s %s: %w", rec.City, dayArg(rec.Day), err)
		}
	}
	return nil
}

func recordArgs(rec weather.WeatherRecord, avg any) []any {
	var kind any
	if rec.Weather != nil {
		kind = *rec.Weather
	}
	return []any{
		rec.City,
		dayArg(rec.Day),
		rec.MaxTemp,
		rec.MinTemp,
		avg,
		kind,
		rec.WindDirection,
		rec.WindSpeed,
	}
}
