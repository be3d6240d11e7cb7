// Package review serves the admin dashboards that read across orders,
// submissions and supplier documents.
package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/audit"
	"transport-backend/internal/auth"
	"transport-backend/internal/models"
	"transport-backend/internal/notification"
	"transport-backend/internal/order"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	notifier *notification.Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewService(db *gorm.DB, notifier *notification.Notifier, log *zap.Logger) *Service {
	return &Service{db: db, notifier: notifier, log: log, now: time.Now}
}

// boardStatuses are the orders the assignment board works on.
var boardStatuses = []models.OrderStatus{
	models.OrderStatusPending,
	models.OrderStatusSubmitted,
	models.OrderStatusAssigned,
	models.OrderStatusConfirmed,
}

type BoardFilter struct {
	Status    models.OrderStatus
	OrderType models.OrderType
	Search    string
}

type BoardRow struct {
	order.View
	Submissions int64 `json:"submission_count"`
	Responded   int64 `json:"responded_count"`
}

type Board struct {
	Orders []BoardRow                    `json:"orders"`
	Counts map[models.OrderStatus]int64 `json:"counts"`
}

func search(q *gorm.DB, term string) *gorm.DB {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return q
	}
	like := "%" + term + "%"
	return q.Where(
		"LOWER(order_number) LIKE ? OR LOWER(from_district) LIKE ? OR LOWER(to_district) LIKE ? OR LOWER(from_place) LIKE ? OR LOWER(to_place) LIKE ?",
		like, like, like, like, like,
	)
}

type submissionCount struct {
	OrderID   uint
	Total     int64
	Responded int64
}

// AssignmentBoard lists orders awaiting or holding a supplier, with how far
// their fanout got. Counts cover the whole board, ignoring filters.
func (s *Service) AssignmentBoard(ctx context.Context, f BoardFilter) (*Board, error) {
	db := s.db.WithContext(ctx)

	q := db.Model(&models.Order{}).Preload("LoadType").Preload("Buyer").Preload("AssignedSupplier").Preload("ConfirmedSupplier")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	} else {
		q = q.Where("status IN ?", boardStatuses)
	}
	if f.OrderType != "" {
		q = q.Where("order_type = ?", f.OrderType)
	}
	q = search(q, f.Search)

	var orders []models.Order
	if err := q.Order("created_at DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, apperr.Internal(err, "could not load assignment board")
	}

	counts := make(map[uint]submissionCount)
	if len(orders) > 0 {
		ids := make([]uint, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		var rows []submissionCount
		err := db.Model(&models.OrderSubmission{}).
			Select("order_id, COUNT(*) AS total, SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS responded", models.SubmissionStatusResponded).
			Where("order_id IN ?", ids).
			Group("order_id").
			Scan(&rows).Error
		if err != nil {
			return nil, apperr.Internal(err, "could not count submissions")
		}
		for _, r := range rows {
			counts[r.OrderID] = r
		}
	}

	board := &Board{
		Orders: make([]BoardRow, 0, len(orders)),
		Counts: make(map[models.OrderStatus]int64, len(boardStatuses)),
	}
	for i := range orders {
		c := counts[orders[i].ID]
		board.Orders = append(board.Orders, BoardRow{
			View:        order.NewView(&orders[i]),
			Submissions: c.Total,
			Responded:   c.Responded,
		})
	}

	var byStatus []struct {
		Status models.OrderStatus
		N      int64
	}
	if err := db.Model(&models.Order{}).
		Select("status, COUNT(*) AS n").
		Where("status IN ?", boardStatuses).
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, apperr.Internal(err, "could not count orders")
	}
	for _, st := range boardStatuses {
		board.Counts[st] = 0
	}
	for _, r := range byStatus {
		board.Counts[r.Status] = r.N
	}
	return board, nil
}

type BuyerFilter struct {
	Status  models.OrderStatus
	BuyerID uint
	From    *time.Time
	To      *time.Time
	Search  string
	// Sort is created_at or required_date; Desc flips the direction.
	Sort string
	Desc bool
}

var buyerSorts = map[string]string{
	"":              "created_at",
	"created_at":    "created_at",
	"required_date": "required_date",
}

// BuyerOrders lists buyer requests. From and To bound created_at, To being
// inclusive of the whole day.
func (s *Service) BuyerOrders(ctx context.Context, f BuyerFilter) ([]order.View, error) {
	col, ok := buyerSorts[f.Sort]
	if !ok {
		return nil, apperr.Validation("cannot sort by %q", f.Sort)
	}
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Preload("LoadType").Preload("Buyer").
		Where("order_type = ?", models.OrderTypeBuyerRequest)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.BuyerID != 0 {
		q = q.Where("buyer_id = ?", f.BuyerID)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", f.To.AddDate(0, 0, 1))
	}
	q = search(q, f.Search)

	dir := "ASC"
	if f.Desc {
		dir = "DESC"
	}
	var orders []models.Order
	if err := q.Order(fmt.Sprintf("%s %s, id %s", col, dir, dir)).Find(&orders).Error; err != nil {
		return nil, apperr.Internal(err, "could not list buyer orders")
	}
	out := make([]order.View, 0, len(orders))
	for i := range orders {
		out = append(out, order.NewView(&orders[i]))
	}
	return out, nil
}

// inFlight are the statuses where a supplier has the order.
var inFlight = []models.OrderStatus{
	models.OrderStatusAssigned,
	models.OrderStatusConfirmed,
	models.OrderStatusInProgress,
	models.OrderStatusPickedUp,
	models.OrderStatusInTransit,
	models.OrderStatusDelivered,
}

type ConfirmedFilter struct {
	SupplierID uint
	// Forwarded, when set, keeps only orders already (or not yet) sent on
	// to the buyer.
	Forwarded *bool
}

type ConfirmedRow struct {
	order.View
	SupplierName  string `json:"supplier_name"`
	SupplierPhone string `json:"supplier_phone"`
	Forwarded     bool   `json:"forwarded"`
}

// SuppliersConfirmed lists orders a supplier has taken, with the trip
// details the admin forwards to the buyer.
func (s *Service) SuppliersConfirmed(ctx context.Context, f ConfirmedFilter) ([]ConfirmedRow, error) {
	q := s.db.WithContext(ctx).Model(&models.Order{}).
		Preload("LoadType").Preload("Buyer").Preload("AssignedSupplier").Preload("ConfirmedSupplier").
		Where("status IN ?", inFlight).
		Where("(assigned_supplier_id IS NOT NULL OR confirmed_supplier_id IS NOT NULL)")
	if f.SupplierID != 0 {
		q = q.Where("(assigned_supplier_id = ? OR confirmed_supplier_id = ?)", f.SupplierID, f.SupplierID)
	}
	if f.Forwarded != nil {
		if *f.Forwarded {
			q = q.Where("forwarded_to_buyer_at IS NOT NULL")
		} else {
			q = q.Where("forwarded_to_buyer_at IS NULL")
		}
	}

	var orders []models.Order
	if err := q.Order("updated_at DESC, id DESC").Find(&orders).Error; err != nil {
		return nil, apperr.Internal(err, "could not list confirmed orders")
	}
	out := make([]ConfirmedRow, 0, len(orders))
	for i := range orders {
		o := &orders[i]
		row := ConfirmedRow{View: order.NewView(o), Forwarded: o.ForwardedToBuyerAt != nil}
		supplier := o.ConfirmedSupplier
		if o.AssignedSupplier != nil {
			supplier = o.AssignedSupplier
		}
		if supplier != nil {
			row.SupplierName = supplier.Name
			row.SupplierPhone = supplier.Phone
		}
		out = append(out, row)
	}
	return out, nil
}

// SubmitDocument records a supplier document for verification.
func (s *Service) SubmitDocument(ctx context.Context, actor auth.Identity, docType, reference string) (*models.SupplierDocument, error) {
	docType = strings.TrimSpace(docType)
	reference = strings.TrimSpace(reference)
	if docType == "" || reference == "" {
		return nil, apperr.Validation("doc_type and reference are required")
	}
	doc := &models.SupplierDocument{
		SupplierID: actor.UserID,
		DocType:    docType,
		Reference:  reference,
		Status:     models.DocumentStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, apperr.FromStore(err, "document")
	}

	var supplier models.User
	name := fmt.Sprintf("supplier %d", actor.UserID)
	if err := s.db.WithContext(ctx).Select("name").First(&supplier, actor.UserID).Error; err == nil {
		name = supplier.Name
	}
	if err := s.notifier.Send(ctx, models.TableAdminNotifications, &models.Notification{
		Type:       models.NotificationInfo,
		Title:      "Document submitted",
		Message:    fmt.Sprintf("%s submitted %s for verification", name, docType),
		Category:   models.CategoryDocument,
		Priority:   models.PriorityMedium,
		SupplierID: &actor.UserID,
	}); err != nil {
		s.log.Warn("document notification failed", zap.Uint("document_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

func (s *Service) Documents(ctx context.Context, status models.DocumentStatus, supplierID uint) ([]models.SupplierDocument, error) {
	q := s.db.WithContext(ctx).Preload("Supplier")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if supplierID != 0 {
		q = q.Where("supplier_id = ?", supplierID)
	}
	var docs []models.SupplierDocument
	if err := q.Order("created_at DESC, id DESC").Find(&docs).Error; err != nil {
		return nil, apperr.Internal(err, "could not list documents")
	}
	return docs, nil
}

// ReviewDocument approves or rejects a pending document and tells the
// supplier.
func (s *Service) ReviewDocument(ctx context.Context, actor auth.Identity, id uint, approve bool, notes string) (*models.SupplierDocument, error) {
	to := models.DocumentStatusRejected
	if approve {
		to = models.DocumentStatusApproved
	}
	notes = strings.TrimSpace(notes)

	var doc models.SupplierDocument
	note := models.Notification{Category: models.CategoryDocument, Priority: models.PriorityMedium}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&doc, id).Error; err != nil {
			return err
		}
		if doc.Status != models.DocumentStatusPending {
			return apperr.InvalidTransition("document is already %s", doc.Status)
		}
		now := s.now()
		res := tx.Model(&models.SupplierDocument{}).
			Where("id = ? AND status = ?", doc.ID, models.DocumentStatusPending).
			Updates(map[string]any{"status": to, "review_notes": notes, "reviewed_by": actor.UserID, "reviewed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("document %d was reviewed concurrently", doc.ID)
		}
		doc.Status, doc.ReviewNotes, doc.ReviewedBy, doc.ReviewedAt = to, notes, &actor.UserID, &now

		note.RecipientID = &doc.SupplierID
		if approve {
			note.Type = models.NotificationSuccess
			note.Title = "Document approved"
			note.Message = fmt.Sprintf("Your %s was approved", doc.DocType)
		} else {
			note.Type = models.NotificationError
			note.Title = "Document rejected"
			note.Message = fmt.Sprintf("Your %s was rejected", doc.DocType)
			if notes != "" {
				note.Message += ": " + notes
			}
		}
		if err := s.notifier.Insert(tx, models.TableSupplierNotifications, &note); err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserRole:    actor.Role,
			EntityType:  "supplier_document",
			EntityID:    doc.ID,
			Action:      models.AuditActionTransition,
			Description: fmt.Sprintf("%s %s of supplier %d", to, doc.DocType, doc.SupplierID),
			Before:      map[string]any{"status": models.DocumentStatusPending},
			After:       map[string]any{"status": to, "review_notes": notes},
		})
	})
	if err != nil {
		return nil, apperr.FromStore(err, "document")
	}
	s.notifier.Refresh(ctx, models.TableSupplierNotifications, note.RecipientID)
	s.log.Info("document reviewed", zap.Uint("document_id", doc.ID), zap.String("status", string(to)), zap.Uint("actor", actor.UserID))
	return &doc, nil
}
