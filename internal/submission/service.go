// Package submission broadcasts orders to suppliers and tracks each
// supplier's answer.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"transport-backend/internal/apperr"
	"transport-backend/internal/audit"
	"transport-backend/internal/auth"
	"transport-backend/internal/metrics"
	"transport-backend/internal/models"
	"transport-backend/internal/notification"
	"transport-backend/internal/order"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type Service struct {
	db          *gorm.DB
	orders      *order.Service
	notifier    *notification.Notifier
	log         *zap.Logger
	countryCode string
	concurrency int
	now         func() time.Time
}

type Options struct {
	WhatsAppCountryCode string
	FanoutConcurrency   int
}

func NewService(db *gorm.DB, orders *order.Service, notifier *notification.Notifier, log *zap.Logger, opts Options) *Service {
	if opts.FanoutConcurrency <= 0 {
		opts.FanoutConcurrency = 8
	}
	return &Service{
		db:          db,
		orders:      orders,
		notifier:    notifier,
		log:         log,
		countryCode: opts.WhatsAppCountryCode,
		concurrency: opts.FanoutConcurrency,
		now:         time.Now,
	}
}

type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SupplierResult is what happened to one supplier of a batch.
type SupplierResult struct {
	SupplierID   uint    `json:"supplier_id"`
	SupplierName string  `json:"supplier_name,omitempty"`
	Outcome      Outcome `json:"outcome"`
	SubmissionID uint    `json:"submission_id,omitempty"`
	WhatsAppLink string  `json:"whatsapp_link,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// BatchResult reports a fanout call supplier by supplier.
type BatchResult struct {
	BatchID     string             `json:"batch_id"`
	OrderID     uint               `json:"order_id"`
	OrderStatus models.OrderStatus `json:"order_status"`
	Requested   int                `json:"requested"`
	Created     int                `json:"created"`
	Skipped     int                `json:"skipped"`
	Failed      int                `json:"failed"`
	Results     []SupplierResult   `json:"results"`
	Message     string             `json:"message"`
	// StatusError is set when the offers went out but the order could not be
	// moved to submitted. The batch's open offers are withdrawn in that case.
	StatusError string `json:"status_error,omitempty"`
}

// Links returns the WhatsApp links of the suppliers that were sent the order.
func (r *BatchResult) Links() map[uint]string {
	out := make(map[uint]string)
	for _, res := range r.Results {
		if res.WhatsAppLink != "" {
			out[res.SupplierID] = res.WhatsAppLink
		}
	}
	return out
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Fanout offers an order to every listed supplier it was not yet sent to.
// Each supplier is written in its own transaction; the unique
// (order_id, supplier_id) index decides who was already notified, so
// concurrent broadcasts of the same order never double-insert. A failed
// supplier does not stop the others.
func (s *Service) Fanout(ctx context.Context, actor auth.Identity, orderID uint, supplierIDs []uint) (*BatchResult, error) {
	start := s.now()
	ids := uniqueIDs(supplierIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation("select at least one supplier")
	}

	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.AssignedSupplierID != nil {
		return nil, apperr.Conflict("order %s is assigned directly and cannot be sent to suppliers", o.OrderNumber)
	}
	if o.Status != models.OrderStatusPending && o.Status != models.OrderStatusSubmitted {
		return nil, apperr.InvalidTransition("cannot send order in status %s to suppliers", o.Status)
	}

	var suppliers []models.User
	if err := s.db.WithContext(ctx).
		Where("id IN ? AND role = ? AND is_active = ?", ids, models.RoleSupplier, true).
		Find(&suppliers).Error; err != nil {
		return nil, apperr.Internal(err, "could not load suppliers")
	}
	byID := make(map[uint]*models.User, len(suppliers))
	for i := range suppliers {
		byID[suppliers[i].ID] = &suppliers[i]
	}

	batch := &BatchResult{
		BatchID:   uuid.NewString(),
		OrderID:   o.ID,
		Requested: len(ids),
		Results:   make([]SupplierResult, len(ids)),
	}

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			batch.Results[i] = s.offer(ctx, actor, o, id, byID[id], batch.BatchID)
			return nil
		})
	}
	_ = g.Wait()

	text := offerMessage(o)
	var linked []uint
	for i := range batch.Results {
		res := &batch.Results[i]
		switch res.Outcome {
		case OutcomeCreated:
			batch.Created++
			if link := WhatsAppLink(s.countryCode, byID[res.SupplierID].Phone, text); link != "" {
				res.WhatsAppLink = link
				linked = append(linked, res.SubmissionID)
			}
		case OutcomeSkipped:
			batch.Skipped++
		case OutcomeFailed:
			batch.Failed++
		}
		metrics.FanoutSubmissions.WithLabelValues(string(res.Outcome)).Inc()
	}
	if len(linked) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.OrderSubmission{}).
			Where("id IN ?", linked).Update("whatsapp_sent", true).Error; err != nil {
			s.log.Warn("could not flag whatsapp links", zap.Uint("order_id", o.ID), zap.Error(err))
		}
	}

	batch.OrderStatus = o.Status
	if batch.Created > 0 {
		updated, err := s.orders.MarkBroadcast(ctx, actor, o.ID)
		if err != nil {
			s.log.Error("fanout wrote submissions but order status was not updated",
				zap.Uint("order_id", o.ID), zap.String("batch_id", batch.BatchID), zap.Error(err))
			batch.StatusError = errorMessage(err)
			s.withdraw(ctx, batch)
			if current, gerr := s.orders.Get(ctx, o.ID); gerr == nil {
				batch.OrderStatus = current.Status
			}
		} else {
			batch.OrderStatus = updated.Status
		}
	}
	batch.Message = batchMessage(batch)

	if err := audit.WriteLog(s.db.WithContext(ctx), audit.LogOptions{
		UserID:      actor.UserID,
		UserRole:    actor.Role,
		EntityType:  "order",
		EntityID:    o.ID,
		Action:      models.AuditActionFanout,
		Description: fmt.Sprintf("sent %s to %d suppliers (%d skipped, %d failed)", o.OrderNumber, batch.Created, batch.Skipped, batch.Failed),
		After: map[string]any{
			"batch_id":  batch.BatchID,
			"requested": batch.Requested,
			"created":   batch.Created,
			"skipped":   batch.Skipped,
			"failed":    batch.Failed,
		},
	}); err != nil {
		s.log.Warn("fanout audit log failed", zap.Uint("order_id", o.ID), zap.Error(err))
	}

	metrics.FanoutDuration.Observe(s.now().Sub(start).Seconds())
	s.log.Info("fanout completed",
		zap.Uint("order_id", o.ID),
		zap.String("batch_id", batch.BatchID),
		zap.Int("requested", batch.Requested),
		zap.Int("created", batch.Created),
		zap.Int("skipped", batch.Skipped),
		zap.Int("failed", batch.Failed),
	)
	return batch, nil
}

// offer writes one submission and its supplier notification together.
func (s *Service) offer(ctx context.Context, actor auth.Identity, o *models.Order, supplierID uint, supplier *models.User, batchID string) SupplierResult {
	res := SupplierResult{SupplierID: supplierID}
	if supplier == nil {
		res.Outcome = OutcomeFailed
		res.Error = "not an active supplier"
		return res
	}
	res.SupplierName = supplier.Name

	sub := models.OrderSubmission{
		OrderID:          o.ID,
		SupplierID:       supplierID,
		SubmittedBy:      actor.UserID,
		SubmittedAt:      s.now(),
		NotificationSent: true,
		Status:           models.SubmissionStatusSubmitted,
		BatchID:          batchID,
	}
	note := models.Notification{
		RecipientID: &supplier.ID,
		Type:        models.NotificationInfo,
		Title:       "New order available",
		Message:     fmt.Sprintf("%s from %s to %s is open for confirmation", o.OrderNumber, o.FromDistrict, o.ToDistrict),
		Category:    models.CategoryOrder,
		Priority:    models.PriorityHigh,
		OrderID:     &o.ID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		return s.notifier.Insert(tx, models.TableSupplierNotifications, &note)
	})
	switch {
	case err == nil:
		res.Outcome = OutcomeCreated
		res.SubmissionID = sub.ID
		s.notifier.Refresh(ctx, models.TableSupplierNotifications, note.RecipientID)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		res.Outcome = OutcomeSkipped
		res.Error = "already sent"
	default:
		res.Outcome = OutcomeFailed
		res.Error = "could not record submission"
		s.log.Error("fanout submission failed",
			zap.Uint("order_id", o.ID),
			zap.Uint("supplier_id", supplierID),
			zap.Error(err),
		)
	}
	return res
}

// withdraw closes the still open offers of a batch whose order was not
// broadcast, so that a directly assigned order keeps no open submissions.
func (s *Service) withdraw(ctx context.Context, b *BatchResult) {
	err := s.db.WithContext(ctx).Model(&models.OrderSubmission{}).
		Where("batch_id = ? AND status IN ?", b.BatchID, []models.SubmissionStatus{
			models.SubmissionStatusSubmitted,
			models.SubmissionStatusViewed,
		}).
		Update("status", models.SubmissionStatusIgnored).Error
	if err != nil {
		s.log.Warn("could not withdraw batch offers", zap.String("batch_id", b.BatchID), zap.Error(err))
	}
}

func errorMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal error"
}

func batchMessage(b *BatchResult) string {
	var parts []string
	switch {
	case b.Skipped > 0:
		parts = append(parts, fmt.Sprintf("%d of %d selected suppliers already notified.", b.Skipped, b.Requested))
	case b.Created > 0:
		parts = append(parts, fmt.Sprintf("Order sent to %d suppliers.", b.Created))
	}
	if b.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d could not be notified.", b.Failed))
	}
	if b.StatusError != "" {
		parts = append(parts, fmt.Sprintf("Offers withdrawn, order not sent: %s.", b.StatusError))
	}
	return strings.Join(parts, " ")
}

// ListByOrder returns the order's submissions with their suppliers.
func (s *Service) ListByOrder(ctx context.Context, orderID uint) ([]models.OrderSubmission, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	var out []models.OrderSubmission
	if err := s.db.WithContext(ctx).
		Preload("Supplier").
		Where("order_id = ?", orderID).
		Order("submitted_at, id").
		Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "could not list submissions")
	}
	return out, nil
}

// ListForSupplier returns what the supplier was offered, newest first.
func (s *Service) ListForSupplier(ctx context.Context, supplierID uint, status string) ([]models.OrderSubmission, error) {
	q := s.db.WithContext(ctx).
		Preload("Order").
		Preload("Order.LoadType").
		Where("supplier_id = ?", supplierID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.OrderSubmission
	if err := q.Order("submitted_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "could not list submissions")
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id uint) (*models.OrderSubmission, error) {
	var sub models.OrderSubmission
	if err := s.db.WithContext(ctx).Preload("Order").First(&sub, id).Error; err != nil {
		return nil, apperr.FromStore(err, "submission")
	}
	return &sub, nil
}

func (s *Service) own(ctx context.Context, actor auth.Identity, id uint) (*models.OrderSubmission, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && sub.SupplierID != actor.UserID {
		return nil, apperr.NotFound("submission not found")
	}
	return sub, nil
}

// move changes a submission's status if it is still one of from.
func (s *Service) move(ctx context.Context, actor auth.Identity, sub *models.OrderSubmission, to models.SubmissionStatus, note string, from ...models.SubmissionStatus) error {
	upd := map[string]any{"status": to}
	if to != models.SubmissionStatusViewed {
		upd["responded_at"] = s.now()
	}
	if n := strings.TrimSpace(note); n != "" {
		upd["response_note"] = n
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.OrderSubmission{}).Where("id = ? AND status IN ?", sub.ID, from).Updates(upd)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidTransition("submission is already %s", sub.Status)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserRole:    actor.Role,
			EntityType:  "order_submission",
			EntityID:    sub.ID,
			Action:      models.AuditActionTransition,
			Description: fmt.Sprintf("submission %d: %s -> %s", sub.ID, sub.Status, to),
			Before:      map[string]any{"status": sub.Status},
			After:       upd,
		})
	})
	if err != nil {
		return apperr.FromStore(err, "submission")
	}
	sub.Status = to
	return nil
}

// MarkViewed records that the supplier opened the offer. Viewing twice is
// not an error.
func (s *Service) MarkViewed(ctx context.Context, actor auth.Identity, id uint) (*models.OrderSubmission, error) {
	sub, err := s.own(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionStatusSubmitted {
		return sub, nil
	}
	if err := s.move(ctx, actor, sub, models.SubmissionStatusViewed, "", models.SubmissionStatusSubmitted); err != nil {
		return nil, err
	}
	return sub, nil
}

// Respond records interest with a note for the admin to accept.
func (s *Service) Respond(ctx context.Context, actor auth.Identity, id uint, note string) (*models.OrderSubmission, error) {
	sub, err := s.own(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.move(ctx, actor, sub, models.SubmissionStatusResponded, note,
		models.SubmissionStatusSubmitted, models.SubmissionStatusViewed); err != nil {
		return nil, err
	}
	s.tellAdmins(ctx, sub, models.TableSupplierVehicleNotifications, models.CategorySupplierOrder, "Supplier responded",
		fmt.Sprintf("supplier %d responded to %s", sub.SupplierID, sub.Order.OrderNumber))
	return sub, nil
}

func (s *Service) Ignore(ctx context.Context, actor auth.Identity, id uint) (*models.OrderSubmission, error) {
	sub, err := s.own(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.move(ctx, actor, sub, models.SubmissionStatusIgnored, "",
		models.SubmissionStatusSubmitted, models.SubmissionStatusViewed); err != nil {
		return nil, err
	}
	return sub, nil
}

// Reject declines the offer and tells the admins.
func (s *Service) Reject(ctx context.Context, actor auth.Identity, id uint, note string) (*models.OrderSubmission, error) {
	sub, err := s.own(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.move(ctx, actor, sub, models.SubmissionStatusRejected, note,
		models.SubmissionStatusSubmitted, models.SubmissionStatusViewed, models.SubmissionStatusResponded); err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("supplier %d declined %s", sub.SupplierID, sub.Order.OrderNumber)
	if n := strings.TrimSpace(note); n != "" {
		msg += ": " + n
	}
	s.tellAdmins(ctx, sub, models.TableAdminNotifications, models.CategoryOrderManagement, "Supplier declined order", msg)
	return sub, nil
}

// Confirm takes the order with the supplier's driver and vehicle.
func (s *Service) Confirm(ctx context.Context, actor auth.Identity, id uint, details order.TripDetails) (*models.Order, error) {
	sub, err := s.own(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return s.orders.ConfirmBySupplier(ctx, actor, sub.OrderID, sub.SupplierID, details, models.SubmissionStatusConfirmed)
}

// Accept lets an admin give the order to a supplier who responded.
func (s *Service) Accept(ctx context.Context, actor auth.Identity, id uint, details order.TripDetails) (*models.Order, error) {
	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionStatusResponded {
		return nil, apperr.InvalidTransition("only responded submissions can be accepted, this one is %s", sub.Status)
	}
	o, err := s.orders.ConfirmBySupplier(ctx, actor, sub.OrderID, sub.SupplierID, details, models.SubmissionStatusAccepted)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.Send(ctx, models.TableSupplierNotifications, &models.Notification{
		RecipientID: &sub.SupplierID,
		Type:        models.NotificationSuccess,
		Title:       "Response accepted",
		Message:     fmt.Sprintf("%s is yours, please prepare the vehicle", o.OrderNumber),
		Category:    models.CategoryOrder,
		Priority:    models.PriorityHigh,
		OrderID:     &o.ID,
	}); err != nil {
		s.log.Warn("accept notification failed", zap.Uint("submission_id", sub.ID), zap.Error(err))
	}
	return o, nil
}

func (s *Service) tellAdmins(ctx context.Context, sub *models.OrderSubmission, table string, category models.NotificationCategory, title, msg string) {
	err := s.notifier.Send(ctx, table, &models.Notification{
		Type:       models.NotificationInfo,
		Title:      title,
		Message:    msg,
		Category:   category,
		Priority:   models.PriorityMedium,
		OrderID:    &sub.OrderID,
		SupplierID: &sub.SupplierID,
	})
	if err != nil {
		s.log.Warn("admin notification failed", zap.Uint("submission_id", sub.ID), zap.Error(err))
	}
}
