package models

import "time"

type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationInfo    NotificationType = "info"
)

type NotificationCategory string

const (
	CategoryOrder           NotificationCategory = "order"
	CategoryDocument        NotificationCategory = "document"
	CategoryUser            NotificationCategory = "user"
	CategorySystem          NotificationCategory = "system"
	CategoryDriver          NotificationCategory = "driver"
	CategoryVehicle         NotificationCategory = "vehicle"
	CategoryPayment         NotificationCategory = "payment"
	CategorySupplierOrder   NotificationCategory = "supplier_order"
	CategoryOrderManagement NotificationCategory = "order_management"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// Notification rows share one shape across the per-origin tables below.
const (
	TableTransportRequestNotifications = "transport_request_notifications"
	TableSupplierVehicleNotifications  = "supplier_vehicle_notifications"
	TableAdminNotifications            = "admin_notifications"
	TableSupplierNotifications         = "supplier_notifications"
	TableBuyerNotifications            = "buyer_notifications"
)

var NotificationTables = []string{
	TableTransportRequestNotifications,
	TableSupplierVehicleNotifications,
	TableAdminNotifications,
	TableSupplierNotifications,
	TableBuyerNotifications,
}

type Notification struct {
	ID          uint                 `gorm:"primaryKey" json:"id"`
	RecipientID *uint                `json:"recipient_id"` // nil for admin-wide rows
	Type        NotificationType     `gorm:"size:10;not null" json:"type"`
	Title       string               `gorm:"size:200;not null" json:"title"`
	Message     string               `gorm:"size:1000;not null" json:"message"`
	IsRead      bool                 `gorm:"not null" json:"isRead"`
	Category    NotificationCategory `gorm:"size:40;not null" json:"category"`
	Priority    NotificationPriority `gorm:"size:10;not null" json:"priority"`
	OrderID     *uint                `json:"orderId,omitempty"`
	SupplierID  *uint                `json:"supplierId,omitempty"`
	DriverID    string               `gorm:"size:60" json:"driverId,omitempty"`
	VehicleID   string               `gorm:"size:60" json:"vehicleId,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}
