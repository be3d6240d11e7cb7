package auth

import (
	"transport-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/auth/register
func RegisterHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		user, err := svc.Register(c.UserContext(), body, nil)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(user)
	}
}

// POST /api/admin/suppliers
func CreateSupplierHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := Current(c)
		if err != nil {
			return err
		}

		var body RegisterInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Role = models.RoleSupplier

		user, err := svc.Register(c.UserContext(), body, &caller)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	}
}

// GET /api/admin/suppliers?active=true
func ListSuppliersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		users, err := svc.ListSuppliers(c.UserContext(), c.QueryBool("active", false))
		if err != nil {
			return err
		}
		return c.JSON(users)
	}
}

// POST /api/auth/login
func LoginHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		token, user, err := svc.Login(c.UserContext(), body.Email, body.Password)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  user,
		})
	}
}

// GET /api/auth/me
func MeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := Current(c)
		if err != nil {
			return err
		}
		user, err := svc.Get(c.UserContext(), id.UserID)
		if err != nil {
			return err
		}
		return c.JSON(user)
	}
}
