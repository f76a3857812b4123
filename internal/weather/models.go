package weather

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	// DayLayout is the storage and query format of a calendar day.
	DayLayout = "2006-01-02"
	// DisplayLayout is the format of days shown in reports.
	DisplayLayout = "02.01.2006"

	// DirectionCalm is stored when the source reports no wind.
	DirectionCalm = "Calm"
)

var (
	// ErrNotFound is returned when no rows match a query.
	ErrNotFound = errors.New("no weather data for requested range")

	// ErrMissingTemperature marks a day row without temperature cells.
	ErrMissingTemperature = errors.New("day row has no temperatures")
)

// DayRow is one raw day of a diary page, as text taken from the markup.
// MaxTemp and MinTemp are nil for continuation rows, Weather is nil when the
// day has no precipitation icon.
type DayRow struct {
	Day           string
	MaxTemp       *string
	MinTemp       *string
	Weather       *string
	WindDirection string
	WindSpeed     string
}

// WeatherRecord is a normalized day of observations for one city.
// Records are immutable values; only the store persists them.
type WeatherRecord struct {
	City          string
	Day           time.Time
	MaxTemp       int
	MinTemp       int
	AvgTemp       float64
	Weather       *string
	WindDirection string
	WindSpeed     int // m/s
}

// NewWeatherRecord builds a record for city and day from a raw row. The
// average temperature is fixed here and never recomputed.
func NewWeatherRecord(city string, day time.Time, row DayRow) (WeatherRecord, error) {
	if row.MaxTemp == nil || row.MinTemp == nil {
		return WeatherRecord{}, fmt.Errorf("%s %s: %w", city, day.Format(DayLayout), ErrMissingTemperature)
	}
	maxTemp, err := strconv.Atoi(strings.TrimSpace(*row.MaxTemp))
	if err != nil {
		return WeatherRecord{}, fmt.Errorf("parse max temp %q: %w", *row.MaxTemp, err)
	}
	minTemp, err := strconv.Atoi(strings.TrimSpace(*row.MinTemp))
	if err != nil {
		return WeatherRecord{}, fmt.Errorf("parse min temp %q: %w", *row.MinTemp, err)
	}

	direction := row.WindDirection
	if direction == "" {
		direction = DirectionCalm
	}

	return WeatherRecord{
		City:          city,
		Day:           time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		MaxTemp:       maxTemp,
		MinTemp:       minTemp,
		AvgTemp:       float64(maxTemp+minTemp) / 2,
		Weather:       row.Weather,
		WindDirection: direction,
		WindSpeed:     parseSpeed(row.WindSpeed),
	}, nil
}

// AvgTempString renders the average as signed fixed-point, e.g. "+0.50".
func (r WeatherRecord) AvgTempString() string {
	return fmt.Sprintf("%+.2f", r.AvgTemp)
}

// WindSpeedString renders the speed in its canonical "<value>m/s" form.
func (r WeatherRecord) WindSpeedString() string {
	return strconv.Itoa(r.WindSpeed) + SpeedUnit
}

// parseSpeed reads the leading magnitude of a "<value>m/s" token; anything
// unreadable counts as calm.
func parseSpeed(s string) int {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == -1 {
		end = len(s)
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// ParseDay parses a "YYYY-MM-DD" string as a UTC calendar day.
func ParseDay(s string) (time.Time, error) {
	d, err := time.Parse(DayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return d, nil
}

// Day is a calendar day that serializes in display form.
type Day time.Time

func (d Day) String() string {
	return time.Time(d).Format(DisplayLayout)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

// YearAverage is the mean temperature of one whole calendar year. Avg is nil
// when the year has no rows.
type YearAverage struct {
	Year int      `json:"year"`
	Avg  *float64 `json:"avg"`
}

// Report is the set of statistics shown for a city and period.
type Report struct {
	City          string        `json:"city"`
	From          string        `json:"from"`
	To            string        `json:"to"`
	MaxTemp       float64       `json:"max_temp"`
	MinTemp       float64       `json:"min_temp"`
	AvgTemp       float64       `json:"avg_temp"`
	WindSpeed     float64       `json:"wind_speed"`
	WindDirection string        `json:"wind_direction"`
	ClosestDates  []Day         `json:"closest_dates"`
	Precipitation float64       `json:"precipitation"`
	CommonWeather []string      `json:"common_weather"`
	YearsMax      []YearAverage `json:"years_max,omitempty"`
	YearsMin      []YearAverage `json:"years_min,omitempty"`
}
