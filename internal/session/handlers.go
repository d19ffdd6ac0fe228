package session

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"backend-waytrack/internal/engine"
	"backend-waytrack/internal/location"
)

func RegisterRoutes(r fiber.Router, svc *Service) {
	r.Post("/", func(c *fiber.Ctx) error {
		sess, err := svc.Start(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Post("/:id/fixes", func(c *fiber.Ctx) error {
		var fix engine.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.PushFix(c.Params("id"), fix); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "session not found")
			}
			if errors.Is(err, location.ErrPermissionDenied) {
				return fiber.NewError(fiber.StatusForbidden, "location permission denied")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	// the mobile host reports a platform permission revocation here
	r.Post("/:id/location-denied", func(c *fiber.Ctx) error {
		if err := svc.DenyLocation(c.Params("id")); err != nil {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		snap, err := svc.Snapshot(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.JSON(snap)
	})

	r.Get("/:id/path", func(c *fiber.Ctx) error {
		snap, err := svc.Snapshot(c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return c.JSON(fiber.Map{"path": snap.Path})
	})

	r.Post("/:id/stop", func(c *fiber.Ctx) error {
		summary, err := svc.Stop(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "session not found")
			}
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(summary)
	})
}
