package weather

import "strings"

// SpeedUnit is the canonical wind speed suffix.
const SpeedUnit = "m/s"

// Calm marker used by the diary for both wind direction and speed.
const calmMarker = "Ш"

// Single-letter compass tokens never overlap, so composite directions such as
// "СЗ" translate letter by letter.
var directionReplacer = strings.NewReplacer(
	"С", "N",
	"Ю", "S",
	"З", "W",
	"В", "E",
	calmMarker, DirectionCalm,
)

var speedReplacer = strings.NewReplacer(
	calmMarker, "0"+SpeedUnit,
	"м/с", SpeedUnit,
)

// TranslateDirection maps a localized wind direction to compass letters.
// Unknown characters pass through unchanged.
func TranslateDirection(token string) string {
	return directionReplacer.Replace(token)
}

// TranslateSpeed maps a localized wind speed to the "<value>m/s" form. The
// calm marker becomes "0m/s"; the magnitude is kept verbatim.
func TranslateSpeed(token string) string {
	return speedReplacer.Replace(token)
}
