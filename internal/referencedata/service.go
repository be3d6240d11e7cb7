// Package referencedata manages the load types and districts offered by the
// order forms.
package referencedata

import (
	"context"
	"fmt"
	"strings"

	"transport-backend/internal/apperr"
	"transport-backend/internal/audit"
	"transport-backend/internal/auth"
	"transport-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

type Input struct {
	Name        *string `json:"name"`
	State       *string `json:"state"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// ---- load types ----

func (s *Service) ListLoadTypes(ctx context.Context, activeOnly bool) ([]models.LoadType, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []models.LoadType
	if err := q.Order("name ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "could not list load types")
	}
	return out, nil
}

func (s *Service) GetLoadType(ctx context.Context, id uint) (*models.LoadType, error) {
	var lt models.LoadType
	if err := s.db.WithContext(ctx).First(&lt, id).Error; err != nil {
		return nil, apperr.FromStore(err, "load type")
	}
	return &lt, nil
}

func (s *Service) CreateLoadType(ctx context.Context, in Input) (*models.LoadType, error) {
	name := trimmed(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	lt := &models.LoadType{Name: name, Description: trimmed(in.Description), IsActive: true}
	if in.IsActive != nil {
		lt.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Create(lt).Error; err != nil {
		return nil, apperr.FromStore(err, "load type")
	}
	return lt, nil
}

func (s *Service) UpdateLoadType(ctx context.Context, id uint, in Input) (*models.LoadType, error) {
	lt, err := s.GetLoadType(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if lt.Name = trimmed(in.Name); lt.Name == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
	}
	if in.Description != nil {
		lt.Description = trimmed(in.Description)
	}
	if in.IsActive != nil {
		lt.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Save(lt).Error; err != nil {
		return nil, apperr.FromStore(err, "load type")
	}
	return lt, nil
}

// ToggleLoadType flips isActive. Inactive types stay on existing orders.
func (s *Service) ToggleLoadType(ctx context.Context, id uint) (*models.LoadType, error) {
	lt, err := s.GetLoadType(ctx, id)
	if err != nil {
		return nil, err
	}
	lt.IsActive = !lt.IsActive
	if err := s.db.WithContext(ctx).Model(lt).Update("is_active", lt.IsActive).Error; err != nil {
		return nil, apperr.FromStore(err, "load type")
	}
	return lt, nil
}

// DeleteLoadType hard deletes. A type still referenced by orders fails with a
// conflict carrying the store message.
func (s *Service) DeleteLoadType(ctx context.Context, actor auth.Identity, id uint) error {
	lt, err := s.GetLoadType(ctx, id)
	if err != nil {
		return err
	}
	return s.hardDelete(ctx, actor, "load_type", id, lt.Name, lt)
}

// ---- districts ----

func (s *Service) ListDistricts(ctx context.Context, activeOnly bool, state string) ([]models.District, error) {
	q := s.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if state = strings.TrimSpace(state); state != "" {
		q = q.Where("state = ?", state)
	}
	var out []models.District
	if err := q.Order("state ASC, name ASC").Find(&out).Error; err != nil {
		return nil, apperr.Internal(err, "could not list districts")
	}
	return out, nil
}

func (s *Service) GetDistrict(ctx context.Context, id uint) (*models.District, error) {
	var d models.District
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, apperr.FromStore(err, "district")
	}
	return &d, nil
}

func (s *Service) CreateDistrict(ctx context.Context, in Input) (*models.District, error) {
	name, state := trimmed(in.Name), trimmed(in.State)
	if name == "" || state == "" {
		return nil, apperr.Validation("name and state are required")
	}
	d := &models.District{Name: name, State: state, Description: trimmed(in.Description), IsActive: true}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, apperr.FromStore(err, "district")
	}
	return d, nil
}

func (s *Service) UpdateDistrict(ctx context.Context, id uint, in Input) (*models.District, error) {
	d, err := s.GetDistrict(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if d.Name = trimmed(in.Name); d.Name == "" {
			return nil, apperr.Validation("name cannot be empty")
		}
	}
	if in.State != nil {
		if d.State = trimmed(in.State); d.State == "" {
			return nil, apperr.Validation("state cannot be empty")
		}
	}
	if in.Description != nil {
		d.Description = trimmed(in.Description)
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if err := s.db.WithContext(ctx).Save(d).Error; err != nil {
		return nil, apperr.FromStore(err, "district")
	}
	return d, nil
}

func (s *Service) ToggleDistrict(ctx context.Context, id uint) (*models.District, error) {
	d, err := s.GetDistrict(ctx, id)
	if err != nil {
		return nil, err
	}
	d.IsActive = !d.IsActive
	if err := s.db.WithContext(ctx).Model(d).Update("is_active", d.IsActive).Error; err != nil {
		return nil, apperr.FromStore(err, "district")
	}
	return d, nil
}

func (s *Service) DeleteDistrict(ctx context.Context, actor auth.Identity, id uint) error {
	d, err := s.GetDistrict(ctx, id)
	if err != nil {
		return err
	}
	return s.hardDelete(ctx, actor, "district", id, fmt.Sprintf("%s, %s", d.Name, d.State), d)
}

func (s *Service) hardDelete(ctx context.Context, actor auth.Identity, entity string, id uint, label string, row any) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(row).Error; err != nil {
			return err
		}
		return audit.WriteLog(tx, audit.LogOptions{
			UserID:      actor.UserID,
			UserRole:    actor.Role,
			EntityType:  entity,
			EntityID:    id,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("deleted %s %q", strings.ReplaceAll(entity, "_", " "), label),
			Before:      row,
		})
	})
	if err != nil {
		s.log.Info("reference data delete refused", zap.String("entity", entity), zap.Uint("id", id), zap.Error(err))
		return apperr.FromStore(err, strings.ReplaceAll(entity, "_", " "))
	}
	return nil
}
