package httpapi

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-records/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service) {
	v1 := app.Group("/api/v1")
	records := v1.Group("/weather")

	records.Get("/", func(c *fiber.Ctx) error {
		recs, err := service.List(c.UserContext())
		if err != nil {
			return toFiberError(err, "failed to list weather records")
		}
		return c.JSON(recs)
	})

	records.Post("/", func(c *fiber.Ctx) error {
		var in weather.RecordInput
		if err := bindRecordInput(c, &in); err != nil {
			return err
		}

		rec, err := service.Create(c.UserContext(), in)
		if err != nil {
			return toFiberError(err, "failed to create weather record")
		}

		c.Location(fmt.Sprintf("/api/v1/weather/%d", rec.ID))
		return c.Status(fiber.StatusCreated).JSON(rec)
	})

	records.Post("/refresh", func(c *fiber.Ctx) error {
		ctx := weather.WithTrigger(c.UserContext(), weather.TriggerAPI)
		sum, err := service.RefreshAll(ctx)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to refresh weather data")
		}
		return c.JSON(sum)
	})

	records.Post("/search", func(c *fiber.Ctx) error {
		var req searchRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "city or zip code is required")
		}

		ctx := weather.WithTrigger(c.UserContext(), weather.TriggerSearch)
		rec, err := service.ReconcileOne(ctx, req.toSearch())
		if err != nil {
			if errors.Is(err, weather.ErrValidation) {
				return fiber.NewError(fiber.StatusBadRequest, "city or zip code is required")
			}
			return toFiberError(err, "failed to search weather data")
		}
		return c.JSON(rec)
	})

	records.Get("/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		rec, err := service.Get(c.UserContext(), id)
		if err != nil {
			return toFiberError(err, "failed to fetch weather record")
		}
		return c.JSON(rec)
	})

	records.Put("/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		var in weather.RecordInput
		if err := bindRecordInput(c, &in); err != nil {
			return err
		}

		rec, err := service.Update(c.UserContext(), id, in)
		if err != nil {
			return toFiberError(err, "failed to update weather record")
		}
		return c.JSON(rec)
	})

	records.Delete("/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c)
		if err != nil {
			return err
		}

		if err := service.Delete(c.UserContext(), id); err != nil {
			return toFiberError(err, "failed to delete weather record")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// RegisterMetrics exposes the Prometheus registry on /metrics.
func RegisterMetrics(app *fiber.App, gatherer prometheus.Gatherer) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// searchRequest is the body of POST /weather/search; one field is required.
type searchRequest struct {
	City    string `json:"city" validate:"required_without=ZipCode,max=100"`
	ZipCode string `json:"zipCode" validate:"required_without=City,max=20"`
}

func (s searchRequest) toSearch() weather.SearchRequest {
	return weather.SearchRequest{
		City:    s.City,
		ZipCode: s.ZipCode,
	}
}

func bindRecordInput(c *fiber.Ctx, in *weather.RecordInput) error {
	if err := c.BodyParser(in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid weather record id")
	}
	return uint(id), nil
}

func toFiberError(err error, fallback string) error {
	switch {
	case errors.Is(err, weather.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "weather record not found")
	case errors.Is(err, weather.ErrNoData):
		return fiber.NewError(fiber.StatusNotFound, "no weather data found")
	case errors.Is(err, weather.ErrDuplicateLocation):
		return fiber.NewError(fiber.StatusConflict, "a weather record already exists for this location")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, fallback)
	}
}
