package order

import (
	"encoding/json"

	"transport-backend/internal/auth"
	"transport-backend/internal/models"
	"transport-backend/internal/validation"

	"github.com/gofiber/fiber/v2"
)

func idParam(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}
	return uint(id), nil
}

func views(orders []models.Order) []View {
	out := make([]View, 0, len(orders))
	for i := range orders {
		out = append(out, NewView(&orders[i]))
	}
	return out
}

// decodeCreate validates the raw body and decodes it. An empty estimated_tons
// string counts as absent.
func decodeCreate(body []byte) (CreateInput, error) {
	var in CreateInput
	if err := validation.Validate(validation.OrderCreate, body); err != nil {
		return in, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return in, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if string(raw["estimated_tons"]) == `""` {
		delete(raw, "estimated_tons")
	}
	cleaned, err := json.Marshal(raw)
	if err != nil {
		return in, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := json.Unmarshal(cleaned, &in); err != nil {
		return in, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return in, nil
}

// POST /api/orders
func CreateHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		in, err := decodeCreate(c.Body())
		if err != nil {
			return err
		}
		o, err := svc.Create(c.UserContext(), actor, in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewView(o))
	}
}

// GET /api/orders/:id
func GetHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		o, err := svc.GetFor(c.UserContext(), actor, id)
		if err != nil {
			return err
		}
		return c.JSON(NewView(o))
	}
}

// GET /api/buyer/orders?status=pending
func ListMineHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		orders, err := svc.ListForBuyer(c.UserContext(), actor.UserID, c.Query("status"))
		if err != nil {
			return err
		}
		return c.JSON(views(orders))
	}
}

// GET /api/supplier/orders
func ListCarriedHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		orders, err := svc.ListCarried(c.UserContext(), actor.UserID)
		if err != nil {
			return err
		}
		return c.JSON(views(orders))
	}
}

type actionFunc func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error)

// transitionHandler runs one lifecycle action and renders the updated order.
func transitionHandler(fn actionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		o, err := fn(c, actor, id)
		if err != nil {
			return err
		}
		return c.JSON(NewView(o))
	}
}

// POST /api/orders/:id/submit
func SubmitHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		return svc.SubmitRequest(c.UserContext(), actor, id)
	})
}

// POST /api/orders/:id/cancel
func CancelHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		return svc.Cancel(c.UserContext(), actor, id)
	})
}

type assignRequest struct {
	SupplierID uint   `json:"supplier_id"`
	Notes      string `json:"notes"`
}

// POST /api/admin/orders/:id/assign
func AssignHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		var body assignRequest
		if err := c.BodyParser(&body); err != nil || body.SupplierID == 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, "supplier_id is required")
		}
		return svc.Assign(c.UserContext(), actor, id, body.SupplierID, body.Notes)
	})
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// POST /api/admin/orders/:id/reject
func RejectHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		var body notesRequest
		_ = c.BodyParser(&body)
		return svc.Reject(c.UserContext(), actor, id, body.Notes)
	})
}

// POST /api/admin/orders/:id/complete
func CompleteHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		return svc.MarkComplete(c.UserContext(), actor, id)
	})
}

// POST /api/admin/orders/:id/forward
func ForwardHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		return svc.ForwardToBuyer(c.UserContext(), actor, id)
	})
}

type progressRequest struct {
	Status models.OrderStatus `json:"status"`
}

// PUT /api/supplier/orders/:id/status
func ProgressHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		var body progressRequest
		if err := c.BodyParser(&body); err != nil || !body.Status.Valid() {
			return nil, fiber.NewError(fiber.StatusBadRequest, "a valid status is required")
		}
		return svc.Progress(c.UserContext(), actor, id, body.Status)
	})
}

// PUT /api/supplier/orders/:id/trip
func UpdateTripHandler(svc *Service) fiber.Handler {
	return transitionHandler(func(c *fiber.Ctx, actor auth.Identity, id uint) (*models.Order, error) {
		if err := validation.Validate(validation.TripDetails, c.Body()); err != nil {
			return nil, err
		}
		var body TripDetails
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		return svc.UpdateTrip(c.UserContext(), actor, id, body)
	})
}

// DELETE /api/admin/orders/:id
func DeleteHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := svc.Delete(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
