package models

import "time"

type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleBuyer    UserRole = "buyer"
	RoleSupplier UserRole = "supplier"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleBuyer, RoleSupplier:
		return true
	}
	return false
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"size:20;not null;index" json:"role"`
	Phone        string    `gorm:"size:30" json:"phone"` // WhatsApp number for suppliers
	Company      string    `gorm:"size:150" json:"company"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
