package notification

import (
	"transport-backend/internal/auth"
	"transport-backend/internal/events"
	"transport-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func keyFor(c *fiber.Ctx) (Key, error) {
	id, err := auth.Current(c)
	if err != nil {
		return Key{}, err
	}
	return Key{Role: id.Role, UserID: id.UserID}, nil
}

func notificationID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid notification id")
	}
	return uint(id), nil
}

// GET /api/notifications
func ListHandler(agg *Aggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k, err := keyFor(c)
		if err != nil {
			return err
		}
		res, err := agg.FetchAll(c.UserContext(), k)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

type categoryBody struct {
	Category models.NotificationCategory `json:"category"`
}

func category(c *fiber.Ctx) models.NotificationCategory {
	if q := c.Query("category"); q != "" {
		return models.NotificationCategory(q)
	}
	var body categoryBody
	_ = c.BodyParser(&body)
	return body.Category
}

// PATCH /api/notifications/:id/read?category=order
func MarkReadHandler(agg *Aggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k, err := keyFor(c)
		if err != nil {
			return err
		}
		id, err := notificationID(c)
		if err != nil {
			return err
		}
		if err := agg.MarkRead(c.UserContext(), k, id, category(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DELETE /api/notifications/:id?category=order
func DeleteHandler(agg *Aggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k, err := keyFor(c)
		if err != nil {
			return err
		}
		id, err := notificationID(c)
		if err != nil {
			return err
		}
		if err := agg.Delete(c.UserContext(), k, id, category(c)); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DELETE /api/notifications
func ClearAllHandler(agg *Aggregator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k, err := keyFor(c)
		if err != nil {
			return err
		}
		res, err := agg.ClearAll(c.UserContext(), k)
		if err != nil {
			return err
		}
		return c.JSON(res)
	}
}

// POST /api/notifications/refresh
func RefreshHandler(bus events.Bus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k, err := keyFor(c)
		if err != nil {
			return err
		}
		ev := events.Event{Topic: events.TopicNotificationsRefresh, Role: k.Role}
		if k.Role != models.RoleAdmin {
			ev.RecipientID = &k.UserID
		}
		if err := bus.Publish(c.UserContext(), ev); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "refresh could not be published")
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}
