package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusSubmitted  OrderStatus = "submitted"
	OrderStatusAssigned   OrderStatus = "assigned"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusPickedUp   OrderStatus = "picked_up"
	OrderStatusInTransit  OrderStatus = "in_transit"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusRejected   OrderStatus = "rejected"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Terminal statuses accept no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusDraft, OrderStatusPending, OrderStatusSubmitted, OrderStatusAssigned,
		OrderStatusConfirmed, OrderStatusInProgress, OrderStatusPickedUp, OrderStatusInTransit,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusRejected, OrderStatusCancelled:
		return true
	}
	return false
}

type OrderType string

const (
	OrderTypeBuyerRequest OrderType = "buyer_request"
	OrderTypeManual       OrderType = "manual_order"
)

// Order is either a buyer transport request or an order entered manually by an
// admin. AssignedSupplierID (direct assignment) and broadcast submissions are
// mutually exclusive.
type Order struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	OrderNumber string      `gorm:"size:40;not null;uniqueIndex" json:"order_number"`
	OrderType   OrderType   `gorm:"size:20;not null;index" json:"order_type"`
	Status      OrderStatus `gorm:"size:20;not null;index" json:"status"`

	BuyerID   *uint `gorm:"index" json:"buyer_id"`
	Buyer     *User `gorm:"foreignKey:BuyerID" json:"buyer,omitempty"`
	CreatedBy uint  `gorm:"not null" json:"created_by"`

	FromState       string    `gorm:"size:100" json:"from_state"`
	FromDistrict    string    `gorm:"size:100" json:"from_district"`
	FromPlace       string    `gorm:"size:150" json:"from_place"`
	FromTaluk       string    `gorm:"size:100" json:"from_taluk"`
	FromDistrictID  *uint     `json:"from_district_id"`
	FromDistrictRef *District `gorm:"foreignKey:FromDistrictID;constraint:OnDelete:RESTRICT" json:"-"`
	ToState         string    `gorm:"size:100" json:"to_state"`
	ToDistrict      string    `gorm:"size:100" json:"to_district"`
	ToPlace         string    `gorm:"size:150" json:"to_place"`
	ToTaluk         string    `gorm:"size:100" json:"to_taluk"`
	ToDistrictID    *uint     `json:"to_district_id"`
	ToDistrictRef   *District `gorm:"foreignKey:ToDistrictID;constraint:OnDelete:RESTRICT" json:"-"`
	DeliveryPlace   string    `gorm:"size:255" json:"delivery_place"`

	LoadTypeID    uint                `gorm:"not null;index" json:"load_type_id"`
	LoadType      *LoadType           `gorm:"constraint:OnDelete:RESTRICT" json:"load_type,omitempty"`
	EstimatedTons decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"estimated_tons"`
	NumberOfGoods *int                `json:"number_of_goods"`
	RequiredDate  *time.Time          `json:"required_date"`

	AssignedSupplierID  *uint `gorm:"index" json:"supplier_id"`
	AssignedSupplier    *User `gorm:"foreignKey:AssignedSupplierID" json:"assigned_supplier,omitempty"`
	ConfirmedSupplierID *uint `gorm:"index" json:"confirmed_supplier_id"`
	ConfirmedSupplier   *User `gorm:"foreignKey:ConfirmedSupplierID" json:"confirmed_supplier,omitempty"`

	DriverName    string `gorm:"size:100" json:"driver_name"`
	DriverPhone   string `gorm:"size:30" json:"driver_phone"`
	VehicleNumber string `gorm:"size:30" json:"vehicle_number"`
	VehicleType   string `gorm:"size:50" json:"vehicle_type"`

	AdminNotes          string     `gorm:"size:1000" json:"admin_notes"`
	SpecialInstructions string     `gorm:"size:1000" json:"special_instructions"`
	ForwardedToBuyerAt  *time.Time `json:"forwarded_to_buyer_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupplierID returns whichever supplier currently carries the order.
func (o *Order) SupplierID() *uint {
	if o.AssignedSupplierID != nil {
		return o.AssignedSupplierID
	}
	return o.ConfirmedSupplierID
}
