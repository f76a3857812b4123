package httpapi

import (
	"context"
	"errors"
	"net/url"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-diary/internal/weather"
)

var validate = validator.New()

// Reporter builds the statistics of one city and period.
type Reporter interface {
	Report(ctx context.Context, city, from, to string) (weather.Report, error)
}

// Catalog is the static data the API lists.
type Catalog struct {
	// Cities in display order, default city first.
	Cities []string
	// Legend explains wind direction tokens.
	Legend map[string]string
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, reporter Reporter, catalog Catalog) {
	v1 := app.Group("/api/v1")

	v1.Get("/cities", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"cities": catalog.Cities})
	})

	v1.Get("/legend", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"wind_codes": catalog.Legend})
	})

	v1.Get("/reports/:city", func(c *fiber.Ctx) error {
		var req reportQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !slices.Contains(catalog.Cities, req.City) {
			return fiber.NewError(fiber.StatusNotFound, "unknown city")
		}

		report, err := reporter.Report(c.UserContext(), req.City, req.From, req.To)
		if err != nil {
			return err
		}
		return c.JSON(report)
	})
}

// reportQuery holds the path and query parameters of the report endpoint.
type reportQuery struct {
	City string `validate:"required"`
	From string `validate:"required,datetime=2006-01-02"`
	To   string `validate:"required,datetime=2006-01-02"`
}

func (q *reportQuery) bind(c *fiber.Ctx) error {
	city, err := url.PathUnescape(c.Params("city"))
	if err != nil {
		return err
	}
	q.City = city
	q.From = c.Query("from")
	q.To = c.Query("to")

	if err := validate.Struct(q); err != nil {
		return err
	}
	// Both are YYYY-MM-DD, so string order is date order.
	if q.To < q.From {
		return errors.New("to must not be before from")
	}
	return nil
}
