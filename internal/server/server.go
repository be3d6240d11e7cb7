// Package server builds the HTTP application and its routes.
package server

import (
	"context"
	"strings"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/audit"
	"transport-backend/internal/auth"
	"transport-backend/internal/config"
	"transport-backend/internal/events"
	"transport-backend/internal/logger"
	"transport-backend/internal/metrics"
	"transport-backend/internal/models"
	"transport-backend/internal/notification"
	"transport-backend/internal/order"
	"transport-backend/internal/referencedata"
	"transport-backend/internal/review"
	"transport-backend/internal/submission"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the services the routes call.
type Deps struct {
	Config        *config.Config
	Log           *zap.Logger
	DB            *gorm.DB
	Bus           events.Bus
	Auth          *auth.Service
	Orders        *order.Service
	Submissions   *submission.Service
	Review        *review.Service
	ReferenceData *referencedata.Service
	Notifications *notification.Aggregator
	LoginLimiter  *IPRateLimiter
}

func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: apperr.ErrorHandler(d.Log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.RequestLogger(d.Log))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(d.Config.CORSOriginList(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/healthz", healthHandler(d.DB))
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	// Public
	loginLimit := d.LoginLimiter
	if loginLimit == nil {
		loginLimit = NewIPRateLimiter(d.Config.LoginRatePerMinute, d.Config.LoginRateBurst)
	}
	api.Post("/auth/register", loginLimit.Middleware(), auth.RegisterHandler(d.Auth))
	api.Post("/auth/login", loginLimit.Middleware(), auth.LoginHandler(d.Auth))
	api.Get("/load-types", referencedata.ListLoadTypesHandler(d.ReferenceData, true))
	api.Get("/districts", referencedata.ListDistrictsHandler(d.ReferenceData, true))

	// Any signed in user
	protected := api.Group("", auth.JWTMiddleware(d.Config.JWTSecret))
	protected.Get("/auth/me", auth.MeHandler(d.Auth))

	protected.Get("/notifications", notification.ListHandler(d.Notifications))
	protected.Post("/notifications/refresh", notification.RefreshHandler(d.Bus))
	protected.Patch("/notifications/:id/read", notification.MarkReadHandler(d.Notifications))
	protected.Delete("/notifications/:id", notification.DeleteHandler(d.Notifications))
	protected.Delete("/notifications", notification.ClearAllHandler(d.Notifications))

	protected.Post("/orders", auth.RequireRole(models.RoleBuyer, models.RoleAdmin), order.CreateHandler(d.Orders))
	protected.Get("/orders/:id", order.GetHandler(d.Orders))
	protected.Post("/orders/:id/submit", auth.RequireRole(models.RoleBuyer), order.SubmitHandler(d.Orders))
	protected.Post("/orders/:id/cancel", auth.RequireRole(models.RoleBuyer, models.RoleAdmin), order.CancelHandler(d.Orders))

	// Buyer
	buyer := protected.Group("/buyer", auth.RequireRole(models.RoleBuyer))
	buyer.Get("/orders", order.ListMineHandler(d.Orders))

	// Supplier
	supplier := protected.Group("/supplier", auth.RequireRole(models.RoleSupplier))
	supplier.Get("/orders", order.ListCarriedHandler(d.Orders))
	supplier.Put("/orders/:id/status", order.ProgressHandler(d.Orders))
	supplier.Put("/orders/:id/trip", order.UpdateTripHandler(d.Orders))
	supplier.Get("/submissions", submission.ListMineHandler(d.Submissions))
	supplier.Post("/submissions/:id/view", submission.ViewHandler(d.Submissions))
	supplier.Post("/submissions/:id/respond", submission.RespondHandler(d.Submissions))
	supplier.Post("/submissions/:id/ignore", submission.IgnoreHandler(d.Submissions))
	supplier.Post("/submissions/:id/reject", submission.RejectHandler(d.Submissions))
	supplier.Post("/submissions/:id/confirm", submission.ConfirmHandler(d.Submissions))
	supplier.Get("/documents", review.MyDocumentsHandler(d.Review))
	supplier.Post("/documents", review.SubmitDocumentHandler(d.Review))

	// Admin
	admin := protected.Group("/admin", auth.RequireRole(models.RoleAdmin))

	admin.Get("/assignment-board", review.AssignmentBoardHandler(d.Review))
	admin.Get("/buyer-orders", review.BuyerOrdersHandler(d.Review))
	admin.Get("/suppliers-confirmed", review.SuppliersConfirmedHandler(d.Review))

	admin.Post("/orders/:id/assign", order.AssignHandler(d.Orders))
	admin.Post("/orders/:id/reject", order.RejectHandler(d.Orders))
	admin.Post("/orders/:id/complete", order.CompleteHandler(d.Orders))
	admin.Post("/orders/:id/forward", order.ForwardHandler(d.Orders))
	admin.Delete("/orders/:id", order.DeleteHandler(d.Orders))
	admin.Post("/orders/:id/fanout", submission.FanoutHandler(d.Submissions))
	admin.Get("/orders/:id/submissions", submission.ListByOrderHandler(d.Submissions))
	admin.Post("/submissions/:id/accept", submission.AcceptHandler(d.Submissions))

	admin.Get("/documents", review.ListDocumentsHandler(d.Review))
	admin.Post("/documents/:id/approve", review.ApproveDocumentHandler(d.Review))
	admin.Post("/documents/:id/reject", review.RejectDocumentHandler(d.Review))

	admin.Get("/suppliers", auth.ListSuppliersHandler(d.Auth))
	admin.Post("/suppliers", auth.CreateSupplierHandler(d.Auth))

	admin.Get("/load-types", referencedata.ListLoadTypesHandler(d.ReferenceData, false))
	admin.Get("/load-types/:id", referencedata.GetLoadTypeHandler(d.ReferenceData))
	admin.Post("/load-types", referencedata.CreateLoadTypeHandler(d.ReferenceData))
	admin.Put("/load-types/:id", referencedata.UpdateLoadTypeHandler(d.ReferenceData))
	admin.Put("/load-types/:id/toggle", referencedata.ToggleLoadTypeHandler(d.ReferenceData))
	admin.Delete("/load-types/:id", referencedata.DeleteLoadTypeHandler(d.ReferenceData))

	admin.Get("/districts", referencedata.ListDistrictsHandler(d.ReferenceData, false))
	admin.Get("/districts/:id", referencedata.GetDistrictHandler(d.ReferenceData))
	admin.Post("/districts", referencedata.CreateDistrictHandler(d.ReferenceData))
	admin.Put("/districts/:id", referencedata.UpdateDistrictHandler(d.ReferenceData))
	admin.Put("/districts/:id/toggle", referencedata.ToggleDistrictHandler(d.ReferenceData))
	admin.Delete("/districts/:id", referencedata.DeleteDistrictHandler(d.ReferenceData))

	admin.Get("/audit-logs", audit.ListAuditLogsHandler(d.DB))

	return app
}

// GET /healthz
func healthHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
