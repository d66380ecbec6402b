package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/observability"
)

var (
	ErrFeatureFlagNotFound = errors.New("feature flag not found")
	ErrFeatureFlagExists   = errors.New("feature flag already exists")
)

// FeatureFlagRepository is the persisted flag store collaborator. The
// flag service treats it as the source of truth for listing and
// introspection; evaluation reads go through the in-memory registry.
type FeatureFlagRepository interface {
	List() ([]domain.FeatureFlag, error)
	ListPaged(page PageRequest) (PageResult[domain.FeatureFlag], error)
	ListByType(flagType domain.FlagType) ([]domain.FeatureFlag, error)
	ListSystemFlags() ([]domain.FeatureFlag, error)
	FindByName(name string) (*domain.FeatureFlag, error)
	Create(flag *domain.FeatureFlag) error
	Update(flag *domain.FeatureFlag) error
	Delete(name string) error
	BulkCreate(flags []*domain.FeatureFlag) error
	BulkUpdate(flags []*domain.FeatureFlag) error
	CountByType() (map[domain.FlagType]int64, error)
	GetRequirements(name string) (datatypes.JSON, error)
	UpdateRequirements(name string, requirements datatypes.JSON) error
}

type GormFeatureFlagRepository struct{ db *gorm.DB }

func NewFeatureFlagRepository(db *gorm.DB) FeatureFlagRepository {
	return &GormFeatureFlagRepository{db: db}
}

func (r *GormFeatureFlagRepository) List() ([]domain.FeatureFlag, error) {
	var flags []domain.FeatureFlag
	if err := r.db.Order("name asc").Find(&flags).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list", "success")
	return flags, nil
}

func (r *GormFeatureFlagRepository) ListPaged(page PageRequest) (PageResult[domain.FeatureFlag], error) {
	req := normalizePageRequest(page)
	var total int64
	if err := r.db.Model(&domain.FeatureFlag{}).Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_paged", "error")
		return PageResult[domain.FeatureFlag]{}, err
	}
	var flags []domain.FeatureFlag
	err := r.db.Order(req.orderClause()).
		Offset(req.offset()).
		Limit(req.PageSize).
		Find(&flags).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_paged", "error")
		return PageResult[domain.FeatureFlag]{}, err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_paged", "success")
	return PageResult[domain.FeatureFlag]{
		Items:      flags,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Total:      total,
		TotalPages: calcTotalPages(total, req.PageSize),
	}, nil
}

func (r *GormFeatureFlagRepository) ListByType(flagType domain.FlagType) ([]domain.FeatureFlag, error) {
	var flags []domain.FeatureFlag
	if err := r.db.Where("flag_type = ?", flagType).Order("name asc").Find(&flags).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_by_type", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_by_type", "success")
	return flags, nil
}

func (r *GormFeatureFlagRepository) ListSystemFlags() ([]domain.FeatureFlag, error) {
	var flags []domain.FeatureFlag
	if err := r.db.Where("is_system = ?", true).Order("name asc").Find(&flags).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_system", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "list_system", "success")
	return flags, nil
}

func (r *GormFeatureFlagRepository) FindByName(name string) (*domain.FeatureFlag, error) {
	var flag domain.FeatureFlag
	err := r.db.Where("name = ?", name).First(&flag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "feature_flag", "find_by_name", "not_found")
			return nil, ErrFeatureFlagNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "find_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "find_by_name", "success")
	return &flag, nil
}

func (r *GormFeatureFlagRepository) Create(flag *domain.FeatureFlag) error {
	if err := r.db.Create(flag).Error; err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(context.Background(), "feature_flag", "create", "conflict")
			return fmt.Errorf("%w: %s", ErrFeatureFlagExists, flag.Name)
		}
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "create", "success")
	return nil
}

func (r *GormFeatureFlagRepository) Update(flag *domain.FeatureFlag) error {
	res := r.db.Model(&domain.FeatureFlag{}).Where("name = ?", flag.Name).Updates(map[string]any{
		"flag_type":   flag.FlagType,
		"value":       flag.Value,
		"description": strings.TrimSpace(flag.Description),
		"metadata":    flag.Metadata,
	})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "update", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "update", "not_found")
		return ErrFeatureFlagNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "update", "success")
	return nil
}

func (r *GormFeatureFlagRepository) Delete(name string) error {
	res := r.db.Where("name = ?", name).Delete(&domain.FeatureFlag{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "delete", "not_found")
		return ErrFeatureFlagNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "delete", "success")
	return nil
}

func (r *GormFeatureFlagRepository) BulkCreate(flags []*domain.FeatureFlag) error {
	if len(flags) == 0 {
		return nil
	}
	if err := r.db.Create(flags).Error; err != nil {
		if isUniqueViolation(err) {
			observability.RecordRepositoryOperation(context.Background(), "feature_flag", "bulk_create", "conflict")
			return ErrFeatureFlagExists
		}
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "bulk_create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "bulk_create", "success")
	return nil
}

func (r *GormFeatureFlagRepository) BulkUpdate(flags []*domain.FeatureFlag) error {
	if len(flags) == 0 {
		return nil
	}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, flag := range flags {
			res := tx.Model(&domain.FeatureFlag{}).Where("name = ?", flag.Name).Updates(map[string]any{
				"flag_type":   flag.FlagType,
				"value":       flag.Value,
				"description": strings.TrimSpace(flag.Description),
				"metadata":    flag.Metadata,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrFeatureFlagNotFound, flag.Name)
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "bulk_update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "bulk_update", "success")
	return nil
}

func (r *GormFeatureFlagRepository) CountByType() (map[domain.FlagType]int64, error) {
	var rows []struct {
		FlagType domain.FlagType
		Count    int64
	}
	err := r.db.Model(&domain.FeatureFlag{}).
		Select("flag_type, count(*) as count").
		Group("flag_type").
		Scan(&rows).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "count_by_type", "error")
		return nil, err
	}
	out := make(map[domain.FlagType]int64, len(rows))
	for _, row := range rows {
		out[row.FlagType] = row.Count
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "count_by_type", "success")
	return out, nil
}

func (r *GormFeatureFlagRepository) GetRequirements(name string) (datatypes.JSON, error) {
	flag, err := r.FindByName(name)
	if err != nil {
		return nil, err
	}
	return flag.Requirements, nil
}

func (r *GormFeatureFlagRepository) UpdateRequirements(name string, requirements datatypes.JSON) error {
	res := r.db.Model(&domain.FeatureFlag{}).Where("name = ?", name).Update("requirements", requirements)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "update_requirements", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "feature_flag", "update_requirements", "not_found")
		return ErrFeatureFlagNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "feature_flag", "update_requirements", "success")
	return nil
}

// isUniqueViolation matches duplicate-key failures across the postgres
// and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
