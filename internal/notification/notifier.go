package notification

import (
	"context"
	"fmt"

	"transport-backend/internal/events"
	"transport-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier writes notification rows and tells readers to refresh.
type Notifier struct {
	db  *gorm.DB
	bus events.Bus
	log *zap.Logger
}

func NewNotifier(db *gorm.DB, bus events.Bus, log *zap.Logger) *Notifier {
	return &Notifier{db: db, bus: bus, log: log}
}

// RoleForTable names the role whose dashboard reads table.
func RoleForTable(table string) models.UserRole {
	switch table {
	case models.TableSupplierNotifications:
		return models.RoleSupplier
	case models.TableBuyerNotifications:
		return models.RoleBuyer
	}
	return models.RoleAdmin
}

// Insert stores note in table using db, which may be a transaction. Call
// Refresh once the transaction has committed.
func (n *Notifier) Insert(db *gorm.DB, table string, note *models.Notification) error {
	if note.Type == "" {
		note.Type = models.NotificationInfo
	}
	if note.Priority == "" {
		note.Priority = models.PriorityMedium
	}
	if err := db.Table(table).Create(note).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (n *Notifier) Refresh(ctx context.Context, table string, recipient *uint) {
	ev := events.Event{
		Topic:       events.TopicNotificationsRefresh,
		Role:        RoleForTable(table),
		RecipientID: recipient,
		Source:      table,
	}
	if err := n.bus.Publish(ctx, ev); err != nil {
		n.log.Warn("notification refresh publish failed", zap.String("source", table), zap.Error(err))
	}
}

// Send inserts outside any transaction and publishes the refresh.
func (n *Notifier) Send(ctx context.Context, table string, note *models.Notification) error {
	if err := n.Insert(n.db.WithContext(ctx), table, note); err != nil {
		return err
	}
	n.Refresh(ctx, table, note.RecipientID)
	return nil
}
