// Package order owns the order lifecycle: creation and every status change,
// each applied with a status-guarded update and recorded in the audit log.
package order

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

	"github.com/shopspring/decimal"
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

type CreateInput struct {
	LoadTypeID          uint                `json:"load_type_id"`
	BuyerID             *uint               `json:"buyer_id"`
	FromState           string              `json:"from_state"`
	FromDistrict        string              `json:"from_district"`
	FromPlace           string              `json:"from_place"`
	FromTaluk           string              `json:"from_taluk"`
	FromDistrictID      *uint               `json:"from_district_id"`
	ToState             string              `json:"to_state"`
	ToDistrict          string              `json:"to_district"`
	ToPlace             string              `json:"to_place"`
	ToTaluk             string              `json:"to_taluk"`
	ToDistrictID        *uint               `json:"to_district_id"`
	DeliveryPlace       string              `json:"delivery_place"`
	EstimatedTons       decimal.NullDecimal `json:"estimated_tons"`
	NumberOfGoods       *int                `json:"number_of_goods"`
	RequiredDate        *string             `json:"required_date"`
	SpecialInstructions string              `json:"special_instructions"`
	// Submit moves a buyer request straight to pending.
	Submit bool `json:"submit"`
}

// TripDetails are supplied by the supplier carrying an order.
type TripDetails struct {
	DriverName    string `json:"driver_name"`
	DriverPhone   string `json:"driver_phone"`
	VehicleNumber string `json:"vehicle_number"`
	VehicleType   string `json:"vehicle_type"`
	Note          string `json:"note"`
}

func (d TripDetails) fields() map[string]any {
	return map[string]any{
		"driver_name":    strings.TrimSpace(d.DriverName),
		"driver_phone":   strings.TrimSpace(d.DriverPhone),
		"vehicle_number": strings.ToUpper(strings.TrimSpace(d.VehicleNumber)),
		"vehicle_type":   strings.TrimSpace(d.VehicleType),
	}
}

// HasLoad reports whether at least one of tonnage or goods count is given.
func (in CreateInput) HasLoad() bool {
	tons := in.EstimatedTons.Valid && in.EstimatedTons.Decimal.IsPositive()
	goods := in.NumberOfGoods != nil && *in.NumberOfGoods > 0
	return tons || goods
}

var requiredDateLayouts = []string{time.RFC3339, "2006-01-02"}

func parseRequiredDate(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	for _, layout := range requiredDateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(*s)); err == nil {
			return &t, nil
		}
	}
	return nil, apperr.Validation("required_date %q is not a date", *s)
}

type outbound struct {
	table string
	note  models.Notification
}

func (s *Service) insertNotes(tx *gorm.DB, notes []outbound) error {
	for i := range notes {
		if err := s.notifier.Insert(tx, notes[i].table, &notes[i].note); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, notes []outbound) {
	for _, n := range notes {
		s.notifier.Refresh(ctx, n.table, n.note.RecipientID)
	}
}

// Create stores a buyer request (draft, or pending when submitted at once) or
// an admin's manual order (pending).
func (s *Service) Create(ctx context.Context, actor auth.Identity, in CreateInput) (*models.Order, error) {
	if !in.HasLoad() {
		return nil, apperr.Validation("either estimated_tons or number_of_goods is required")
	}
	if strings.TrimSpace(in.FromDistrict) == "" || strings.TrimSpace(in.ToDistrict) == "" {
		return nil, apperr.Validation("from_district and to_district are required")
	}
	required, err := parseRequiredDate(in.RequiredDate)
	if err != nil {
		return nil, err
	}

	o := &models.Order{
		OrderNumber:         NewNumber(s.now()),
		CreatedBy:           actor.UserID,
		FromState:           strings.TrimSpace(in.FromState),
		FromDistrict:        strings.TrimSpace(in.FromDistrict),
		FromPlace:           strings.TrimSpace(in.FromPlace),
		FromTaluk:           strings.TrimSpace(in.FromTaluk),
		FromDistrictID:      in.FromDistrictID,
		ToState:             strings.TrimSpace(in.ToState),
		ToDistrict:          strings.TrimSpace(in.ToDistrict),
		ToPlace:             strings.TrimSpace(in.ToPlace),
		ToTaluk:             strings.TrimSpace(in.ToTaluk),
		ToDistrictID:        in.ToDistrictID,
		DeliveryPlace:       strings.TrimSpace(in.DeliveryPlace),
		LoadTypeID:          in.LoadTypeID,
		EstimatedTons:       in.EstimatedTons,
		NumberOfGoods:       in.NumberOfGoods,
		RequiredDate:        required,
		SpecialInstructions: strings.TrimSpace(in.SpecialInstructions),
	}
	if o.EstimatedTons.Valid && !o.EstimatedTons.Decimal.IsPositive() {
		o.EstimatedTons = decimal.NullDecimal{}
	}
	if o.NumberOfGoods != nil && *o.NumberOfGoods <= 0 {
		o.NumberOfGoods = nil
	}

	switch actor.Role {
	case models.RoleBuyer:
		o.OrderType = models.OrderTypeBuyerRequest
		o.BuyerID = &actor.UserID
		o.Status = models.OrderStatusDraft
		if in.Submit {
			o.Status = models.OrderStatusPending
		}
	case models.RoleAdmin:
		o.OrderType = models.OrderTypeManual
		o.BuyerID = in.BuyerID
		o.Status = models.OrderStatusPending
	default:
		return nil, apperr.Forbidden("role %s cannot create orders", actor.Role)
	}

	var notes []outbound
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lt models.LoadType
		if err := tx.First(&lt, in.LoadTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Validation("load type %d does not exist", in.LoadTypeID)
			}
			return err
		}
		if !lt.IsActive {
			return apperr.Validation("load type %q is no longer offered", lt.Name)
		}
		for _, did := range []*uint{in.FromDistrictID, in.ToDistrictID} {
			if did == nil {
				continue
			}
			var count int64
			if err := tx.Model(&models.District{}).Where("id = ?", *did).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperr.Validation("district %d does not exist", *did)
			}
		}
		if o.BuyerID != nil && actor.Role == models.RoleAdmin {
			if err := requireUser(tx, *o.BuyerID, models.RoleBuyer); err != nil {
				return err
			}
		}

		if err := tx.Create(o).Error; err != nil {
			return err
		}
		o.LoadType = &lt

		switch {
		case o.OrderType == models.OrderTypeManual:
			notes = append(notes, outbound{models.TableAdminNotifications, models.Notification{
				Type:     models.NotificationInfo,
				Title:    "Manual order created",
				Message:  fmt.Sprintf("%s: %s load from %s to %s", o.OrderNumber, lt.Name, o.FromDistrict, o.ToDistrict),
				Category: models.CategoryOrderManagement,
				Priority: models.PriorityMedium,
				OrderID:  &o.ID,
			}})
		case o.Status == models.OrderStatusPending:
			notes = append(notes, newRequestNote(o, lt.Name))
		}
		if err := s.insertNotes(tx, notes); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserRole:    actor.Role,
			EntityType:  "order",
			EntityID:    o.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("created %s %s", o.OrderType, o.OrderNumber),
			After:       map[string]any{"status": o.Status, "order_type": o.OrderType},
		})
	})
	if err != nil {
		return nil, apperr.FromStore(err, "order")
	}

	metrics.OrderTransitions.WithLabelValues(ActionCreate, string(o.Status)).Inc()
	s.refresh(ctx, notes)
	s.log.Info("order created",
		zap.Uint("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("status", string(o.Status)),
		zap.Uint("actor", actor.UserID),
	)
	return o, nil
}

func newRequestNote(o *models.Order, loadType string) outbound {
	return outbound{models.TableTransportRequestNotifications, models.Notification{
		Type:     models.NotificationInfo,
		Title:    "New transport request",
		Message:  fmt.Sprintf("%s: %s load from %s to %s", o.OrderNumber, loadType, o.FromDistrict, o.ToDistrict),
		Category: models.CategoryOrder,
		Priority: models.PriorityMedium,
		OrderID:  &o.ID,
	}}
}

func requireUser(tx *gorm.DB, id uint, role models.UserRole) error {
	var u models.User
	if err := tx.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Validation("%s %d does not exist", role, id)
		}
		return err
	}
	if u.Role != role || !u.IsActive {
		return apperr.Validation("user %d is not an active %s", id, role)
	}
	return nil
}

// Get loads an order with its load type and parties.
func (s *Service) Get(ctx context.Context, id uint) (*models.Order, error) {
	var o models.Order
	err := s.db.WithContext(ctx).
		Preload("LoadType").
		Preload("Buyer").
		Preload("AssignedSupplier").
		Preload("ConfirmedSupplier").
		First(&o, id).Error
	if err != nil {
		return nil, apperr.FromStore(err, "order")
	}
	return &o, nil
}

// change is what a transition plan wants written.
type change struct {
	to     models.OrderStatus
	fields map[string]any
	notes  []outbound
	// after runs inside the transaction once the order row is updated.
	after func(tx *gorm.DB, o *models.Order) error
}

type plan func(tx *gorm.DB, o *models.Order) (*change, error)

func invalid(action string, s models.OrderStatus) error {
	return apperr.InvalidTransition("cannot %s order in status %s", strings.ReplaceAll(action, "_", " "), s)
}

// transition loads the order, lets p check guards and describe the change, and
// applies it only if the status is still the one p saw.
func (s *Service) transition(ctx context.Context, actor auth.Identity, id uint, action string, p plan) (*models.Order, error) {
	var (
		ch   *change
		from models.OrderStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.Preload("LoadType").First(&o, id).Error; err != nil {
			return err
		}
		from = o.Status

		var err error
		if ch, err = p(tx, &o); err != nil {
			return err
		}

		fields := map[string]any{"status": ch.to, "updated_at": s.now()}
		for k, v := range ch.fields {
			fields[k] = v
		}
		res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", o.ID, from).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("order %s changed while %s was applied; reload and retry", o.OrderNumber, strings.ReplaceAll(action, "_", " "))
		}
		o.Status = ch.to

		if ch.after != nil {
			if err := ch.after(tx, &o); err != nil {
				return err
			}
		}
		if err := s.insertNotes(tx, ch.notes); err != nil {
			return err
		}

		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserRole:    actor.Role,
			EntityType:  "order",
			EntityID:    o.ID,
			Action:      models.AuditActionTransition,
			Description: fmt.Sprintf("%s %s: %s -> %s", action, o.OrderNumber, from, ch.to),
			Before:      map[string]any{"status": from},
			After:       fields,
		})
	})
	if err != nil {
		return nil, apperr.FromStore(err, "order")
	}

	metrics.OrderTransitions.WithLabelValues(action, string(ch.to)).Inc()
	s.refresh(ctx, ch.notes)
	s.log.Info("order transition",
		zap.Uint("order_id", id),
		zap.String("action", action),
		zap.String("from", string(from)),
		zap.String("to", string(ch.to)),
		zap.Uint("actor", actor.UserID),
	)
	return s.Get(ctx, id)
}

func requireOwner(actor auth.Identity, o *models.Order) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if o.BuyerID == nil || *o.BuyerID != actor.UserID {
		return apperr.Forbidden("order %s belongs to another buyer", o.OrderNumber)
	}
	return nil
}

// SubmitRequest moves a buyer's draft to pending.
func (s *Service) SubmitRequest(ctx context.Context, actor auth.Identity, id uint) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionSubmitRequest, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if o.Status != models.OrderStatusDraft {
			return nil, invalid(ActionSubmitRequest, o.Status)
		}
		return &change{to: models.OrderStatusPending}, nil
	})
}

// Assign gives a pending order directly to one supplier. Buyer requests become
// confirmed, manual orders assigned. Direct assignment and broadcast exclude
// each other.
func (s *Service) Assign(ctx context.Context, actor auth.Identity, id, supplierID uint, notes string) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionAssign, func(tx *gorm.DB, o *models.Order) (*change, error) {
		if o.Status == models.OrderStatusConfirmed {
			return nil, apperr.InvalidTransition("order %s is confirmed and can no longer be edited", o.OrderNumber)
		}
		if o.Status != models.OrderStatusPending {
			return nil, invalid(ActionAssign, o.Status)
		}
		if o.AssignedSupplierID != nil && *o.AssignedSupplierID != supplierID {
			return nil, apperr.Conflict("order %s is already assigned to another supplier", o.OrderNumber)
		}
		var subs int64
		if err := tx.Model(&models.OrderSubmission{}).Where("order_id = ?", o.ID).Count(&subs).Error; err != nil {
			return nil, err
		}
		if subs > 0 {
			return nil, apperr.Conflict("order %s was already sent to suppliers", o.OrderNumber)
		}
		if err := requireUser(tx, supplierID, models.RoleSupplier); err != nil {
			return nil, err
		}

		to := models.OrderStatusConfirmed
		if o.OrderType == models.OrderTypeManual {
			to = models.OrderStatusAssigned
		}
		return &change{
			to: to,
			fields: map[string]any{
				"assigned_supplier_id": supplierID,
				"admin_notes":          strings.TrimSpace(notes),
			},
			notes: []outbound{{models.TableSupplierNotifications, models.Notification{
				RecipientID: &supplierID,
				Type:        models.NotificationSuccess,
				Title:       "Order assigned to you",
				Message:     fmt.Sprintf("%s from %s to %s has been assigned to you", o.OrderNumber, o.FromDistrict, o.ToDistrict),
				Category:    models.CategoryOrder,
				Priority:    models.PriorityHigh,
				OrderID:     &o.ID,
			}}},
		}, nil
	})
}

// closeOpenSubmissions marks submissions still awaiting the supplier.
func closeOpenSubmissions(tx *gorm.DB, orderID uint, status models.SubmissionStatus) error {
	return tx.Model(&models.OrderSubmission{}).
		Where("order_id = ? AND status IN ?", orderID, []models.SubmissionStatus{
			models.SubmissionStatusSubmitted,
			models.SubmissionStatusViewed,
			models.SubmissionStatusResponded,
		}).
		Update("status", status).Error
}

func (s *Service) Reject(ctx context.Context, actor auth.Identity, id uint, notes string) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionReject, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if !statusIn(o.Status, rejectable...) {
			return nil, invalid(ActionReject, o.Status)
		}
		ch := &change{
			to:     models.OrderStatusRejected,
			fields: map[string]any{"admin_notes": strings.TrimSpace(notes)},
			after: func(tx *gorm.DB, o *models.Order) error {
				return closeOpenSubmissions(tx, o.ID, models.SubmissionStatusIgnored)
			},
		}
		if o.BuyerID != nil {
			msg := fmt.Sprintf("Your request %s was rejected", o.OrderNumber)
			if n := strings.TrimSpace(notes); n != "" {
				msg += ": " + n
			}
			ch.notes = append(ch.notes, outbound{models.TableBuyerNotifications, models.Notification{
				RecipientID: o.BuyerID,
				Type:        models.NotificationWarning,
				Title:       "Request rejected",
				Message:     msg,
				Category:    models.CategoryOrder,
				Priority:    models.PriorityMedium,
				OrderID:     &o.ID,
			}})
		}
		return ch, nil
	})
}

// Cancel lets a buyer withdraw an order nobody has taken yet.
func (s *Service) Cancel(ctx context.Context, actor auth.Identity, id uint) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionCancel, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if err := requireOwner(actor, o); err != nil {
			return nil, err
		}
		if !statusIn(o.Status, cancellable...) {
			return nil, invalid(ActionCancel, o.Status)
		}
		ch := &change{
			to: models.OrderStatusCancelled,
			after: func(tx *gorm.DB, o *models.Order) error {
				return closeOpenSubmissions(tx, o.ID, models.SubmissionStatusIgnored)
			},
		}
		if o.Status != models.OrderStatusDraft {
			ch.notes = append(ch.notes, outbound{models.TableAdminNotifications, models.Notification{
				Type:     models.NotificationWarning,
				Title:    "Request cancelled",
				Message:  fmt.Sprintf("%s was cancelled by the buyer", o.OrderNumber),
				Category: models.CategoryOrderManagement,
				Priority: models.PriorityLow,
				OrderID:  &o.ID,
			}})
		}
		return ch, nil
	})
}

// MarkComplete closes a manual order.
func (s *Service) MarkComplete(ctx context.Context, actor auth.Identity, id uint) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionComplete, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if o.OrderType != models.OrderTypeManual {
			return nil, apperr.InvalidTransition("only manual orders can be marked complete")
		}
		if !statusIn(o.Status, completable...) {
			return nil, invalid(ActionComplete, o.Status)
		}
		return &change{to: models.OrderStatusCompleted}, nil
	})
}

// MarkBroadcast moves an order to submitted after a fanout created at least
// one submission. Already submitted orders are left as they are.
func (s *Service) MarkBroadcast(ctx context.Context, actor auth.Identity, id uint) (*models.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == models.OrderStatusSubmitted {
		return o, nil
	}
	return s.transition(ctx, actor, id, ActionBroadcast, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if o.AssignedSupplierID != nil {
			return nil, apperr.Conflict("order %s is assigned directly and cannot be broadcast", o.OrderNumber)
		}
		if o.Status == models.OrderStatusSubmitted {
			// a concurrent fanout got here first
			return &change{to: o.Status}, nil
		}
		if o.Status != models.OrderStatusPending {
			return nil, invalid(ActionBroadcast, o.Status)
		}
		return &change{to: models.OrderStatusSubmitted}, nil
	})
}

// ConfirmBySupplier gives a broadcast order to the first supplier whose
// confirmation lands. The status guard makes a second confirmation fail.
// subStatus is what the winning submission becomes: confirmed when the
// supplier acts, accepted when an admin accepts a response.
func (s *Service) ConfirmBySupplier(ctx context.Context, actor auth.Identity, id, supplierID uint, details TripDetails, subStatus models.SubmissionStatus) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionSupplierConfirm, func(tx *gorm.DB, o *models.Order) (*change, error) {
		if o.Status != models.OrderStatusSubmitted {
			return nil, invalid("confirm", o.Status)
		}
		var sub models.OrderSubmission
		err := tx.Where("order_id = ? AND supplier_id = ?", o.ID, supplierID).First(&sub).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperr.Forbidden("order %s was not offered to supplier %d", o.OrderNumber, supplierID)
			}
			return nil, err
		}
		if !sub.Status.Open() {
			return nil, apperr.InvalidTransition("submission is already %s", sub.Status)
		}

		var supplier models.User
		if err := tx.First(&supplier, supplierID).Error; err != nil {
			return nil, err
		}

		fields := details.fields()
		fields["confirmed_supplier_id"] = supplierID
		now := s.now()
		return &change{
			to:     models.OrderStatusConfirmed,
			fields: fields,
			after: func(tx *gorm.DB, o *models.Order) error {
				upd := map[string]any{"status": subStatus, "responded_at": now}
				if note := strings.TrimSpace(details.Note); note != "" {
					upd["response_note"] = note
				}
				if err := tx.Model(&models.OrderSubmission{}).Where("id = ?", sub.ID).Updates(upd).Error; err != nil {
					return err
				}
				return tx.Model(&models.OrderSubmission{}).
					Where("order_id = ? AND id <> ? AND status IN ?", o.ID, sub.ID, []models.SubmissionStatus{
						models.SubmissionStatusSubmitted,
						models.SubmissionStatusViewed,
						models.SubmissionStatusResponded,
					}).
					Update("status", models.SubmissionStatusAcceptedByOther).Error
			},
			notes: []outbound{{models.TableSupplierVehicleNotifications, models.Notification{
				Type:       models.NotificationSuccess,
				Title:      "Supplier confirmed order",
				Message:    fmt.Sprintf("%s confirmed %s with vehicle %s (driver %s)", supplier.Name, o.OrderNumber, fields["vehicle_number"], fields["driver_name"]),
				Category:   models.CategorySupplierOrder,
				Priority:   models.PriorityHigh,
				OrderID:    &o.ID,
				SupplierID: &supplierID,
				DriverID:   details.DriverPhone,
				VehicleID:  fmt.Sprint(fields["vehicle_number"]),
			}}},
		}, nil
	})
}

func requireCarrier(actor auth.Identity, o *models.Order) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if sid := o.SupplierID(); sid == nil || *sid != actor.UserID {
		return apperr.Forbidden("order %s is not carried by you", o.OrderNumber)
	}
	return nil
}

// Progress records trip milestones reported by the carrying supplier.
func (s *Service) Progress(ctx context.Context, actor auth.Identity, id uint, to models.OrderStatus) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionProgress, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if err := requireCarrier(actor, o); err != nil {
			return nil, err
		}
		if !CanProgress(o.Status, to) {
			return nil, apperr.InvalidTransition("cannot move order from %s to %s", o.Status, to)
		}
		label := DisplayStatus(&models.Order{Status: to})
		ch := &change{
			to: to,
			notes: []outbound{{models.TableSupplierVehicleNotifications, models.Notification{
				Type:       models.NotificationInfo,
				Title:      "Trip update: " + label,
				Message:    fmt.Sprintf("%s is now %s", o.OrderNumber, strings.ToLower(label)),
				Category:   models.CategorySupplierOrder,
				Priority:   models.PriorityLow,
				OrderID:    &o.ID,
				SupplierID: o.SupplierID(),
				VehicleID:  o.VehicleNumber,
			}}},
		}
		if to == models.OrderStatusDelivered && o.BuyerID != nil {
			ch.notes = append(ch.notes, outbound{models.TableBuyerNotifications, models.Notification{
				RecipientID: o.BuyerID,
				Type:        models.NotificationSuccess,
				Title:       "Delivered",
				Message:     fmt.Sprintf("%s was delivered to %s", o.OrderNumber, o.ToDistrict),
				Category:    models.CategoryOrder,
				Priority:    models.PriorityMedium,
				OrderID:     &o.ID,
			}})
		}
		return ch, nil
	})
}

// UpdateTrip lets the carrier change driver or vehicle before delivery.
func (s *Service) UpdateTrip(ctx context.Context, actor auth.Identity, id uint, details TripDetails) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionUpdateTrip, func(_ *gorm.DB, o *models.Order) (*change, error) {
		if err := requireCarrier(actor, o); err != nil {
			return nil, err
		}
		if !statusIn(o.Status, carried...) {
			return nil, invalid(ActionUpdateTrip, o.Status)
		}
		return &change{to: o.Status, fields: details.fields()}, nil
	})
}

// ForwardToBuyer sends the confirmed supplier, driver and vehicle to the buyer.
func (s *Service) ForwardToBuyer(ctx context.Context, actor auth.Identity, id uint) (*models.Order, error) {
	return s.transition(ctx, actor, id, ActionForwardToBuyer, func(tx *gorm.DB, o *models.Order) (*change, error) {
		if !statusIn(o.Status, carried...) || o.SupplierID() == nil {
			return nil, invalid(ActionForwardToBuyer, o.Status)
		}
		if o.BuyerID == nil {
			return nil, apperr.Validation("order %s has no buyer to forward to", o.OrderNumber)
		}
		var supplier models.User
		if err := tx.First(&supplier, *o.SupplierID()).Error; err != nil {
			return nil, err
		}
		msg := fmt.Sprintf("%s will be carried by %s", o.OrderNumber, supplier.Name)
		if o.VehicleNumber != "" {
			msg += fmt.Sprintf(", vehicle %s", o.VehicleNumber)
		}
		if o.DriverName != "" {
			msg += fmt.Sprintf(", driver %s (%s)", o.DriverName, o.DriverPhone)
		}
		return &change{
			to:     o.Status,
			fields: map[string]any{"forwarded_to_buyer_at": s.now()},
			notes: []outbound{{models.TableBuyerNotifications, models.Notification{
				RecipientID: o.BuyerID,
				Type:        models.NotificationSuccess,
				Title:       "Supplier confirmed",
				Message:     msg,
				Category:    models.CategoryOrder,
				Priority:    models.PriorityHigh,
				OrderID:     &o.ID,
				SupplierID:  o.SupplierID(),
				VehicleID:   o.VehicleNumber,
			}}},
		}, nil
	})
}

// Delete removes an order and its submissions.
func (s *Service) Delete(ctx context.Context, actor auth.Identity, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o models.Order
		if err := tx.First(&o, id).Error; err != nil {
			return err
		}
		if err := tx.Where("order_id = ?", o.ID).Delete(&models.OrderSubmission{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&o).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserRole:    actor.Role,
			EntityType:  "order",
			EntityID:    o.ID,
			Action:      models.AuditActionDelete,
			Description: "deleted " + o.OrderNumber,
			Before:      map[string]any{"status": o.Status, "order_number": o.OrderNumber},
		})
	})
	if err != nil {
		return apperr.FromStore(err, "order")
	}
	metrics.OrderTransitions.WithLabelValues(ActionDelete, "").Inc()
	s.log.Info("order deleted", zap.Uint("order_id", id), zap.Uint("actor", actor.UserID))
	return nil
}

// View is an order as the dashboards render it.
type View struct {
	*models.Order
	DisplayStatus string `json:"display_status"`
	Editable      bool   `json:"editable"`
}

func NewView(o *models.Order) View {
	return View{Order: o, DisplayStatus: DisplayStatus(o), Editable: Editable(o)}
}

// GetFor loads an order the actor may see: admins see all, buyers their own,
// suppliers what they carry or were offered.
func (s *Service) GetFor(ctx context.Context, actor auth.Identity, id uint) (*models.Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
		return o, nil
	case models.RoleBuyer:
		if o.BuyerID != nil && *o.BuyerID == actor.UserID {
			return o, nil
		}
	case models.RoleSupplier:
		if sid := o.SupplierID(); sid != nil && *sid == actor.UserID {
			return o, nil
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.OrderSubmission{}).
			Where("order_id = ? AND supplier_id = ?", id, actor.UserID).Count(&count).Error; err != nil {
			return nil, apperr.Internal(err, "could not check order access")
		}
		if count > 0 {
			return o, nil
		}
	}
	return nil, apperr.NotFound("order not found")
}

// ListForBuyer returns the buyer's own orders, newest first.
func (s *Service) ListForBuyer(ctx context.Context, buyerID uint, status string) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Preload("LoadType").Where("buyer_id = ?", buyerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Order
	if err := q.Order("created_at DESC, id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "could not list orders")
	}
	return out, nil
}

// ListCarried returns orders assigned to or confirmed by the supplier.
func (s *Service) ListCarried(ctx context.Context, supplierID uint) ([]models.Order, error) {
	var out []models.Order
	err := s.db.WithContext(ctx).Preload("LoadType").
		Where("assigned_supplier_id = ? OR confirmed_supplier_id = ?", supplierID, supplierID).
		Order("updated_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, apperr.Internal(err, "could not list orders")
	}
	return out, nil
}
