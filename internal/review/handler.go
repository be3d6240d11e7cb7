package review

import (
	"fmt"
	"strconv"
	"time"

	"transport-backend/internal/auth"
	"transport-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func uintQuery(c *fiber.Ctx, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	var v uint
	if _, err := fmt.Sscan(raw, &v); err != nil || v == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, key+" is invalid")
	}
	return v, nil
}

func dateQuery(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be YYYY-MM-DD")
	}
	return &t, nil
}

// GET /api/admin/assignment-board?status=&order_type=&search=
func AssignmentBoardHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		board, err := svc.AssignmentBoard(c.UserContext(), BoardFilter{
			Status:    models.OrderStatus(c.Query("status")),
			OrderType: models.OrderType(c.Query("order_type")),
			Search:    c.Query("search"),
		})
		if err != nil {
			return err
		}
		return c.JSON(board)
	}
}

// GET /api/admin/buyer-orders?status=&buyer_id=&from=&to=&search=&sort=required_date&dir=asc
func BuyerOrdersHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		buyerID, err := uintQuery(c, "buyer_id")
		if err != nil {
			return err
		}
		from, err := dateQuery(c, "from")
		if err != nil {
			return err
		}
		to, err := dateQuery(c, "to")
		if err != nil {
			return err
		}
		dir := c.Query("dir", "desc")
		if dir != "asc" && dir != "desc" {
			return fiber.NewError(fiber.StatusBadRequest, "dir must be asc or desc")
		}
		orders, err := svc.BuyerOrders(c.UserContext(), BuyerFilter{
			Status:  models.OrderStatus(c.Query("status")),
			BuyerID: buyerID,
			From:    from,
			To:      to,
			Search:  c.Query("search"),
			Sort:    c.Query("sort"),
			Desc:    dir == "desc",
		})
		if err != nil {
			return err
		}
		return c.JSON(orders)
	}
}

// GET /api/admin/suppliers-confirmed?supplier_id=&forwarded=false
func SuppliersConfirmedHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		supplierID, err := uintQuery(c, "supplier_id")
		if err != nil {
			return err
		}
		f := ConfirmedFilter{SupplierID: supplierID}
		if raw := c.Query("forwarded"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "forwarded must be true or false")
			}
			f.Forwarded = &v
		}
		rows, err := svc.SuppliersConfirmed(c.UserContext(), f)
		if err != nil {
			return err
		}
		return c.JSON(rows)
	}
}

// GET /api/admin/documents?status=pending&supplier_id=
func ListDocumentsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		supplierID, err := uintQuery(c, "supplier_id")
		if err != nil {
			return err
		}
		docs, err := svc.Documents(c.UserContext(), models.DocumentStatus(c.Query("status")), supplierID)
		if err != nil {
			return err
		}
		return c.JSON(docs)
	}
}

// GET /api/supplier/documents
func MyDocumentsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		docs, err := svc.Documents(c.UserContext(), "", actor.UserID)
		if err != nil {
			return err
		}
		return c.JSON(docs)
	}
}

type submitDocumentRequest struct {
	DocType   string `json:"doc_type"`
	Reference string `json:"reference"`
}

// POST /api/supplier/documents
func SubmitDocumentHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		var body submitDocumentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		doc, err := svc.SubmitDocument(c.UserContext(), actor, body.DocType, body.Reference)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

type reviewRequest struct {
	Notes string `json:"notes"`
}

func reviewHandler(svc *Service, approve bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.Current(c)
		if err != nil {
			return err
		}
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid document id")
		}
		var body reviewRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
			}
		}
		doc, err := svc.ReviewDocument(c.UserContext(), actor, uint(id), approve, body.Notes)
		if err != nil {
			return err
		}
		return c.JSON(doc)
	}
}

// POST /api/admin/documents/:id/approve
func ApproveDocumentHandler(svc *Service) fiber.Handler { return reviewHandler(svc, true) }

// POST /api/admin/documents/:id/reject
func RejectDocumentHandler(svc *Service) fiber.Handler { return reviewHandler(svc, false) }
