package models

import "time"

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

// SupplierDocument references a document kept outside this service (licence,
// RC book, insurance) that an admin has to verify.
type SupplierDocument struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SupplierID  uint           `gorm:"not null;index" json:"supplier_id"`
	Supplier    *User          `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	DocType     string         `gorm:"size:50;not null" json:"doc_type"`
	Reference   string         `gorm:"size:500;not null" json:"reference"`
	Status      DocumentStatus `gorm:"size:20;not null;index" json:"status"`
	ReviewNotes string         `gorm:"size:1000" json:"review_notes"`
	ReviewedBy  *uint          `json:"reviewed_by"`
	ReviewedAt  *time.Time     `json:"reviewed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
