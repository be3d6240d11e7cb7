package referencedata

import (
	"transport-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func idParam(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

func parseInput(c *fiber.Ctx) (Input, error) {
	var in Input
	if err := c.BodyParser(&in); err != nil {
		return in, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return in, nil
}

// GET /api/load-types (active only) and /api/admin/load-types?active=true
func ListLoadTypesHandler(svc *Service, publicOnly bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		out, err := svc.ListLoadTypes(c.UserContext(), publicOnly || c.QueryBool("active", false))
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

func GetLoadTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		lt, err := svc.GetLoadType(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(lt)
	}
}

func CreateLoadTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		lt, err := svc.CreateLoadType(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(lt)
	}
}

func UpdateLoadTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		lt, err := svc.UpdateLoadType(c.UserContext(), id, in)
		if err != nil {
			return err
		}
		return c.JSON(lt)
	}
}

func ToggleLoadTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		lt, err := svc.ToggleLoadType(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(lt)
	}
}

func DeleteLoadTypeHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := svc.DeleteLoadType(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/districts?state=Karnataka (active only) and /api/admin/districts
func ListDistrictsHandler(svc *Service, publicOnly bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		out, err := svc.ListDistricts(c.UserContext(), publicOnly || c.QueryBool("active", false), c.Query("state"))
		if err != nil {
			return err
		}
		return c.JSON(out)
	}
}

func GetDistrictHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		d, err := svc.GetDistrict(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(d)
	}
}

func CreateDistrictHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		d, err := svc.CreateDistrict(c.UserContext(), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	}
}

func UpdateDistrictHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		in, err := parseInput(c)
		if err != nil {
			return err
		}
		d, err := svc.UpdateDistrict(c.UserContext(), id, in)
		if err != nil {
			return err
		}
		return c.JSON(d)
	}
}

func ToggleDistrictHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return err
		}
		d, err := svc.ToggleDistrict(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(d)
	}
}

func DeleteDistrictHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := idParam(c)
		if err != nil {
			return err
		}
		if err := svc.DeleteDistrict(c.UserContext(), actor, id); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
