package testutil

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"transport-backend/internal/database"
	"transport-backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const JWTSecret = "test-secret-test-secret-test-secret!"

var dbSeq atomic.Int64

// OpenDB opens a fresh shared-cache in-memory SQLite database with foreign
// keys enabled and the full schema migrated. A single connection keeps
// concurrent writers from tripping over SQLite table locks.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("test db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, name string, role models.UserRole, phone string) *models.User {
	t.Helper()
	u := &models.User{
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		PasswordHash: "x",
		Role:         role,
		Phone:        phone,
		IsActive:     true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func CreateLoadType(t *testing.T, db *gorm.DB, name string) *models.LoadType {
	t.Helper()
	lt := &models.LoadType{Name: name, IsActive: true}
	if err := db.Create(lt).Error; err != nil {
		t.Fatalf("create load type %s: %v", name, err)
	}
	return lt
}

// CreateOrder inserts an order directly, bypassing lifecycle validation.
func CreateOrder(t *testing.T, db *gorm.DB, number string, lt *models.LoadType, buyer *models.User, status models.OrderStatus) *models.Order {
	t.Helper()
	o := &models.Order{
		OrderNumber:   number,
		OrderType:     models.OrderTypeBuyerRequest,
		Status:        status,
		FromDistrict:  "Bangalore",
		FromState:     "Karnataka",
		ToDistrict:    "Chennai",
		ToState:       "Tamil Nadu",
		LoadTypeID:    lt.ID,
		EstimatedTons: decimal.NewNullDecimal(decimal.NewFromInt(12)),
	}
	if buyer != nil {
		o.BuyerID = &buyer.ID
		o.CreatedBy = buyer.ID
	}
	if err := db.Create(o).Error; err != nil {
		t.Fatalf("create order %s: %v", number, err)
	}
	o.LoadType = lt
	return o
}

// Token signs a token with the claims the auth middleware expects.
func Token(t *testing.T, user *models.User) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(uint64(user.ID), 10),
		"iss":  "transport-backend",
		"role": string(user.Role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}
