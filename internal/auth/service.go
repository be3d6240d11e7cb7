package auth

import (
	"context"
	"strings"

	"transport-backend/internal/apperr"
	"transport-backend/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

type Service struct {
	db     *gorm.DB
	secret string
	log    *zap.Logger
}

func NewService(db *gorm.DB, secret string, log *zap.Logger) *Service {
	return &Service{db: db, secret: secret, log: log}
}

type RegisterInput struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
	Phone    string          `json:"phone"`
	Company  string          `json:"company"`
}

// Register creates a user. Without a caller only buyers, suppliers and the
// very first admin may be created; an admin caller may create any role.
func (s *Service) Register(ctx context.Context, in RegisterInput, caller *Identity) (*models.User, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("name, email and password are required")
	}
	if len(in.Password) < minPasswordLen {
		return nil, apperr.Validation("password must be at least %d characters", minPasswordLen)
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("unknown role %q", in.Role)
	}

	db := s.db.WithContext(ctx)
	if in.Role == models.RoleAdmin && (caller == nil || caller.Role != models.RoleAdmin) {
		var count int64
		if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
			return nil, apperr.Internal(err, "could not check admins")
		}
		if count > 0 {
			return nil, apperr.Forbidden("an admin already exists")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err, "could not hash password")
	}

	user := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         in.Role,
		Phone:        strings.TrimSpace(in.Phone),
		Company:      strings.TrimSpace(in.Company),
		IsActive:     true,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, apperr.FromStore(err, "user")
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Login checks credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return "", nil, apperr.Unauthorized("invalid email or password")
	}
	if !user.IsActive {
		return "", nil, apperr.Unauthorized("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperr.Unauthorized("invalid email or password")
	}

	token, err := GenerateToken(s.secret, &user)
	if err != nil {
		return "", nil, apperr.Internal(err, "could not sign token")
	}
	return token, &user, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, apperr.FromStore(err, "user")
	}
	return &user, nil
}

// ListSuppliers returns supplier accounts, optionally active ones only.
func (s *Service) ListSuppliers(ctx context.Context, activeOnly bool) ([]models.User, error) {
	q := s.db.WithContext(ctx).Where("role = ?", models.RoleSupplier)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var users []models.User
	if err := q.Order("name ASC").Find(&users).Error; err != nil {
		return nil, apperr.Internal(err, "could not list suppliers")
	}
	return users, nil
}
