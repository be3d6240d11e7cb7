package submission

import (
	"encoding/json"

	"transport-backend/internal/auth"
	"transport-backend/internal/order"
	"transport-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

func idParam(c *fiber.Ctx, what string) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+what+" id")
	}
	return uint(id), nil
}

type fanoutRequest struct {
	SupplierIDs []uint `json:"supplier_ids"`
}

// POST /api/admin/orders/:id/fanout
func FanoutHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		orderID, err := idParam(c, "order")
		if err != nil {
			return err
		}
		if err := validation.Validate(validation.Fanout, c.Body()); err != nil {
			return err
		}
		var body fanoutRequest
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		res, err := svc.Fanout(c.UserContext(), actor, orderID, body.SupplierIDs)
		if err != nil {
			return err
		}
		status := fiber.StatusOK
		if res.Created > 0 && res.StatusError == "" {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(res)
	}
}

// GET /api/admin/orders/:id/submissions
func ListByOrderHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		orderID, err := idParam(c, "order")
		if err != nil {
			return err
		}
		subs, err := svc.ListByOrder(c.UserContext(), orderID)
		if err != nil {
			return err
		}
		return c.JSON(subs)
	}
}

// GET /api/supplier/submissions?status=submitted
func ListMineHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		subs, err := svc.ListForSupplier(c.UserContext(), actor.UserID, c.Query("status"))
		if err != nil {
			return err
		}
		return c.JSON(subs)
	}
}

type noteRequest struct {
	Note string `json:"note"`
}

func noteFrom(c *fiber.Ctx) string {
	var body noteRequest
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&body)
	}
	return body.Note
}

// POST /api/supplier/submissions/:id/view
func ViewHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c, "submission")
		if err != nil {
			return err
		}
		sub, err := svc.MarkViewed(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		return c.JSON(sub)
	}
}

// POST /api/supplier/submissions/:id/respond
func RespondHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c, "submission")
		if err != nil {
			return err
		}
		sub, err := svc.Respond(c.UserContext(), actor, id, noteFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(sub)
	}
}

// POST /api/supplier/submissions/:id/ignore
func IgnoreHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c, "submission")
		if err != nil {
			return err
		}
		sub, err := svc.Ignore(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		return c.JSON(sub)
	}
}

// POST /api/supplier/submissions/:id/reject
func RejectHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c, "submission")
		if err != nil {
			return err
		}
		sub, err := svc.Reject(c.UserContext(), actor, id, noteFrom(c))
		if err != nil {
			return err
		}
		return c.JSON(sub)
	}
}

func tripDetails(c *fiber.Ctx) (order.TripDetails, error) {
	var d order.TripDetails
	if err := validation.Validate(validation.TripDetails, c.Body()); err != nil {
		return d, err
	}
	if err := json.Unmarshal(c.Body(), &d); err != nil {
		return d, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return d, nil
}

// POST /api/supplier/submissions/:id/confirm
func ConfirmHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c, "submission")
		if err != nil {
			return err
		}
		details, err := tripDetails(c)
		if err != nil {
			return err
		}
		o, err := svc.Confirm(c.UserContext(), actor, id, details)
		if err != nil {
			return err
		}
		return c.JSON(order.NewView(o))
	}
}

// POST /api/admin/submissions/:id/accept
func AcceptHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c, "submission")
		if err != nil {
			return err
		}
		details, err := tripDetails(c)
		if err != nil {
			return err
		}
		o, err := svc.Accept(c.UserContext(), actor, id, details)
		if err != nil {
			return err
		}
		return c.JSON(order.NewView(o))
	}
}
