// Package diary extracts day rows from weather diary month pages.
package diary

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/i474232898/weather-diary/internal/weather"
)

// ErrUnexpectedStructure means a day row does not match the column layout,
// usually because the source changed its markup.
var ErrUnexpectedStructure = errors.New("unexpected diary table structure")

const (
	tableSelector = "#data_block table"
	rowSelector   = `tr[align="center"]`
	groupClass    = "first_in_group"
)

// Column positions of a day row, counted over its <td> children.
const (
	colDay = iota
	colMaxTemp
	_ // pressure
	_ // cloudiness
	colWeather
	colWind
	colMinTemp

	rowWidth
)

// LoadDocument parses an HTML page.
func LoadDocument(r io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse diary page: %w", err)
	}
	return doc, nil
}

// Rows returns the day rows of a month page in document order. ok is false
// when the page has no data table, which is normal for months that have
// not been published yet. The sequence is single-pass.
func Rows(doc *goquery.Document) (rows iter.Seq2[weather.DayRow, error], ok bool) {
	if doc == nil {
		return nil, false
	}
	table := doc.Find(tableSelector).First()
	if table.Length() == 0 {
		return nil, false
	}

	return func(yield func(weather.DayRow, error) bool) {
		table.Find(rowSelector).EachWithBreak(func(i int, tr *goquery.Selection) bool {
			row, err := extractRow(tr)
			if err != nil {
				err = fmt.Errorf("row %d: %w", i, err)
			}
			return yield(row, err)
		})
	}, true
}

func extractRow(tr *goquery.Selection) (weather.DayRow, error) {
	cells := tr.ChildrenFiltered("td")
	if cells.Length() < rowWidth {
		return weather.DayRow{}, fmt.Errorf("%w: %d cells, want %d", ErrUnexpectedStructure, cells.Length(), rowWidth)
	}

	row := weather.DayRow{Day: text(cells.Eq(colDay))}

	// Only the first row of a group carries temperatures.
	if first := cells.Eq(colMaxTemp); first.HasClass(groupClass) {
		maxTemp := text(first)
		minTemp := text(cells.Eq(colMinTemp))
		row.MaxTemp, row.MinTemp = &maxTemp, &minTemp
	}

	if src, ok := cells.Eq(colWeather).Find("img").Attr("src"); ok {
		kind := iconKind(src)
		row.Weather = &kind
	}

	if wind := strings.Fields(text(cells.Eq(colWind))); len(wind) > 0 {
		row.WindDirection = weather.TranslateDirection(wind[0])
		row.WindSpeed = weather.TranslateSpeed(wind[len(wind)-1])
	}

	return row, nil
}

// iconKind turns ".../icons/snow.png" into "snow".
func iconKind(src string) string {
	base := path.Base(src)
	kind, _, _ := strings.Cut(base, ".")
	return kind
}

func text(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
