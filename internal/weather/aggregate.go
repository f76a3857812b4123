package weather

import (
	"fmt"
	"math"
)

// AggregateKind selects one statistic over a city's rows.
type AggregateKind int

const (
	// MaxTemp is the absolute maximum of max_temp.
	MaxTemp AggregateKind = iota
	// MinTemp is the absolute minimum of min_temp.
	MinTemp
	// AvgTemp is the mean of avg_temp.
	AvgTemp
	// AvgWindSpeed is the mean of wind_speed.
	AvgWindSpeed
	// AvgMaxTemp is the mean of max_temp, used for yearly series.
	AvgMaxTemp
	// AvgMinTemp is the mean of min_temp, used for yearly series.
	AvgMinTemp
)

// SQL returns the aggregate expression for the kind.
func (k AggregateKind) SQL() (string, error) {
	switch k {
	case MaxTemp:
		return "MAX(max_temp)", nil
	case MinTemp:
		return "MIN(min_temp)", nil
	case AvgTemp:
		return "AVG(avg_temp)", nil
	case AvgWindSpeed:
		return "AVG(wind_speed)", nil
	case AvgMaxTemp:
		return "AVG(max_temp)", nil
	case AvgMinTemp:
		return "AVG(min_temp)", nil
	default:
		return "", fmt.Errorf("unknown aggregate kind %d", int(k))
	}
}

// Averaging reports whether results of the kind are rounded means.
func (k AggregateKind) Averaging() bool {
	return k != MaxTemp && k != MinTemp
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
