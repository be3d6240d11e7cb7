package notification

import (
	"context"
	"fmt"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/models"

	"gorm.io/gorm"
)

// Item is a notification as the dashboards render it.
type Item struct {
	ID         uint                        `json:"id"`
	Type       models.NotificationType     `json:"type"`
	Title      string                      `json:"title"`
	Message    string                      `json:"message"`
	Timestamp  string                      `json:"timestamp"`
	IsRead     bool                        `json:"isRead"`
	Category   models.NotificationCategory `json:"category"`
	Priority   models.NotificationPriority `json:"priority"`
	OrderID    *uint                       `json:"orderId,omitempty"`
	SupplierID *uint                       `json:"supplierId,omitempty"`
	DriverID   string                      `json:"driverId,omitempty"`
	VehicleID  string                      `json:"vehicleId,omitempty"`
	Source     string                      `json:"source"`
	// CreatedAt orders rows from table sources; Timestamp is display only for them.
	CreatedAt  time.Time                   `json:"createdAt,omitzero"`
}

// Source is one independent backing store of notifications. recipient is
// ignored by sources that hold role-wide rows.
type Source interface {
	Name() string
	List(ctx context.Context, recipient uint) ([]Item, error)
	MarkRead(ctx context.Context, recipient, id uint) error
	Delete(ctx context.Context, recipient, id uint) error
	ClearAll(ctx context.Context, recipient uint) error
}

const listLimit = 100

// TableSource serves one notification table.
type TableSource struct {
	db    *gorm.DB
	table string
	// scoped tables filter on recipient_id
	scoped bool
	// relative tables render "N minutes ago" timestamps
	relative bool
	now      func() time.Time
}

func NewTableSource(db *gorm.DB, table string, scoped, relative bool) *TableSource {
	return &TableSource{db: db, table: table, scoped: scoped, relative: relative, now: time.Now}
}

func (s *TableSource) Name() string { return s.table }

func (s *TableSource) query(ctx context.Context, recipient uint) *gorm.DB {
	q := s.db.WithContext(ctx).Table(s.table)
	if s.scoped {
		q = q.Where("recipient_id = ?", recipient)
	}
	return q
}

func (s *TableSource) List(ctx context.Context, recipient uint) ([]Item, error) {
	var rows []models.Notification
	if err := s.query(ctx, recipient).Order("created_at DESC, id DESC").Limit(listLimit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", s.table, err)
	}

	now := s.now()
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		ts := r.CreatedAt.UTC().Format(time.RFC3339)
		if s.relative {
			ts = RelativeString(r.CreatedAt, now)
		}
		items = append(items, Item{
			ID:         r.ID,
			Type:       r.Type,
			Title:      r.Title,
			Message:    r.Message,
			Timestamp:  ts,
			IsRead:     r.IsRead,
			Category:   r.Category,
			Priority:   r.Priority,
			OrderID:    r.OrderID,
			SupplierID: r.SupplierID,
			DriverID:   r.DriverID,
			VehicleID:  r.VehicleID,
			Source:     s.table,
			CreatedAt:  r.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (s *TableSource) MarkRead(ctx context.Context, recipient, id uint) error {
	res := s.query(ctx, recipient).Where("id = ?", id).Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark read %s: %w", s.table, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification %d not found", id)
	}
	return nil
}

func (s *TableSource) Delete(ctx context.Context, recipient, id uint) error {
	res := s.query(ctx, recipient).Where("id = ?", id).Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete %s: %w", s.table, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("notification %d not found", id)
	}
	return nil
}

func (s *TableSource) ClearAll(ctx context.Context, recipient uint) error {
	q := s.query(ctx, recipient)
	if !s.scoped {
		// gorm refuses unconditioned deletes
		q = q.Where("1 = 1")
	}
	if err := q.Delete(&models.Notification{}).Error; err != nil {
		return fmt.Errorf("clear %s: %w", s.table, err)
	}
	return nil
}
