package models

import "time"

type SubmissionStatus string

const (
	SubmissionStatusSubmitted       SubmissionStatus = "submitted"
	SubmissionStatusViewed          SubmissionStatus = "viewed"
	SubmissionStatusResponded       SubmissionStatus = "responded"
	SubmissionStatusConfirmed       SubmissionStatus = "confirmed"
	SubmissionStatusRejected        SubmissionStatus = "rejected"
	SubmissionStatusIgnored         SubmissionStatus = "ignored"
	SubmissionStatusAccepted        SubmissionStatus = "accepted"
	SubmissionStatusAcceptedByOther SubmissionStatus = "accepted_by_other"
)

// Open submissions can still be acted on by the supplier.
func (s SubmissionStatus) Open() bool {
	switch s {
	case SubmissionStatusSubmitted, SubmissionStatusViewed, SubmissionStatusResponded:
		return true
	}
	return false
}

// OrderSubmission is one order x supplier fanout record. The (order_id,
// supplier_id) pair is unique; a violation means the supplier was already sent
// the order.
type OrderSubmission struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	OrderID          uint             `gorm:"not null;uniqueIndex:idx_submission_order_supplier" json:"order_id"`
	Order            *Order           `gorm:"constraint:OnDelete:CASCADE" json:"order,omitempty"`
	SupplierID       uint             `gorm:"not null;uniqueIndex:idx_submission_order_supplier;index" json:"supplier_id"`
	Supplier         *User            `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	SubmittedBy      uint             `gorm:"not null" json:"submitted_by"`
	SubmittedAt      time.Time        `gorm:"not null" json:"submitted_at"`
	NotificationSent bool             `gorm:"not null" json:"notification_sent"`
	WhatsAppSent     bool             `gorm:"column:whatsapp_sent;not null" json:"whatsapp_sent"`
	Status           SubmissionStatus `gorm:"size:20;not null;index" json:"status"`
	BatchID          string           `gorm:"size:36;index" json:"batch_id"`
	ResponseNote     string           `gorm:"size:1000" json:"response_note"`
	RespondedAt      *time.Time       `json:"responded_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
