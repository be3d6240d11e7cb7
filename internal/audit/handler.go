package audit

import (
	"transport-backend/internal/apperr"
	"transport-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	CreatedAt   string             `json:"created_at"`
	UserID      uint               `json:"user_id"`
	UserRole    models.UserRole    `json:"user_role"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	Before      string             `json:"before_data"`
	After       string             `json:"after_data"`
}

// GET /api/admin/audit-logs?entity_type=order&entity_id=1&user_id=2&limit=50
func ListAuditLogsHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := Filter{
			EntityType: c.Query("entity_type"),
			EntityID:   uint(max(c.QueryInt("entity_id"), 0)),
			UserID:     uint(max(c.QueryInt("user_id"), 0)),
			Limit:      c.QueryInt("limit"),
		}

		logs, err := List(c.UserContext(), db, f)
		if err != nil {
			return apperr.Internal(err, "could not list audit logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
				UserID:      l.UserID,
				UserRole:    l.UserRole,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				Before:      l.BeforeData,
				After:       l.AfterData,
			})
		}

		return c.JSON(resp)
	}
}
