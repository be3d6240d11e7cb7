package models

import "time"

// LoadType is admin-managed reference data. Inactive types stay on existing
// orders but are not offered for new ones.
type LoadType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string    `gorm:"size:255" json:"description"`
	IsActive    bool      `gorm:"not null" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type District struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null;uniqueIndex:idx_district_name_state" json:"name"`
	State       string    `gorm:"size:100;not null;uniqueIndex:idx_district_name_state" json:"state"`
	Description string    `gorm:"size:255" json:"description"`
	IsActive    bool      `gorm:"not null" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
