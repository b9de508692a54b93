package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/gridpulse/energy-sync/internal/db"
	"github.com/gridpulse/energy-sync/internal/scheduler"
)

// triggerRequest is the manual-sync request body. Dates are YYYY-MM-DD.
type triggerRequest struct {
	Domain   string `json:"domain"`
	EntityID string `json:"entity_id"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
	Force    bool   `json:"force"`
}

type backfillRequest struct {
	PropertyID string `json:"property_id"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
}

// RegisterRoutes mounts the engine's external surface: manual trigger,
// historical backfill and sync health. Authentication sits in front of
// these routes and is not handled here.
func RegisterRoutes(app *fiber.App, sched *scheduler.Scheduler) {
	v1 := app.Group("/v1/sync")

	v1.Post("/trigger", func(c *fiber.Ctx) error {
		var req triggerRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		opts := scheduler.TriggerOptions{Domain: req.Domain, Force: req.Force}

		if req.EntityID != "" {
			id, err := uuid.Parse(req.EntityID)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid entity_id")
			}
			opts.EntityID = &id
		}

		if req.DateFrom != "" {
			from, err := time.Parse("2006-01-02", req.DateFrom)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid date_from")
			}
			opts.DateFrom = &from
		}
		if req.DateTo != "" {
			to, err := time.Parse("2006-01-02", req.DateTo)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid date_to")
			}
			opts.DateTo = &to
		}

		result, err := sched.TriggerManualSync(c.UserContext(), opts)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(result)
	})

	v1.Post("/backfill", func(c *fiber.Ctx) error {
		var req backfillRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid start_date")
		}
		end, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid end_date")
		}

		var propertyID *uuid.UUID
		if req.PropertyID != "" {
			id, err := uuid.Parse(req.PropertyID)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid property_id")
			}
			propertyID = &id
		}

		result, err := sched.TriggerBackfill(c.UserContext(), propertyID, start, end)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		return c.JSON(result)
	})

	v1.Get("/health", func(c *fiber.Ctx) error {
		energy, err := sched.SyncHealth(c.UserContext(), db.DomainEnergy)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		weather, err := sched.SyncHealth(c.UserContext(), db.DomainWeatherHistorical)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}

		return c.JSON(fiber.Map{
			"energy":  energy,
			"weather": weather,
		})
	})
}
