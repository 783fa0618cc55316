package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/welldanyogia/infinimail-threads/internal/models"
	"gorm.io/gorm"
)

// DomainRepository maps receiving mail domains to organizations
type DomainRepository interface {
	Create(ctx context.Context, domain *models.Domain) error
	GetByName(ctx context.Context, name string) (*models.Domain, error)
	// ResolveOrganization returns ErrNotFound for unknown and inactive
	// domains alike
	ResolveOrganization(ctx context.Context, name string) (string, error)
	List(ctx context.Context, orgID string, activeOnly bool) ([]models.Domain, error)
	Delete(ctx context.Context, orgID string, id uint) error
}

type domainRepository struct {
	db *gorm.DB
}

// NewDomainRepository creates a new DomainRepository instance
func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{db: db}
}

func normalizeDomain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *domainRepository) owned(ctx context.Context, orgID string) *gorm.DB {
	return r.db.WithContext(ctx).Where("organization_id = ?", orgID)
}

func (r *domainRepository) Create(ctx context.Context, domain *models.Domain) error {
	domain.Name = normalizeDomain(domain.Name)
	if err := r.db.WithContext(ctx).Create(domain).Error; err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("domain with name '%s' already exists: %w", domain.Name, ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

func (r *domainRepository) GetByName(ctx context.Context, name string) (*models.Domain, error) {
	var domain models.Domain
	err := r.db.WithContext(ctx).Where("name = ?", normalizeDomain(name)).First(&domain).Error
	if err != nil {
		return nil, lookupError(err, "get domain by name")
	}
	return &domain, nil
}

// ResolveOrganization runs on every RCPT, so it reads a single column
func (r *domainRepository) ResolveOrganization(ctx context.Context, name string) (string, error) {
	var owners []string
	err := r.db.WithContext(ctx).Model(&models.Domain{}).
		Where("name = ? AND is_active = ?", normalizeDomain(name), true).
		Limit(1).
		Pluck("organization_id", &owners).Error
	if err != nil {
		return "", fmt.Errorf("failed to resolve domain: %w", err)
	}
	if len(owners) == 0 {
		return "", ErrNotFound
	}
	return owners[0], nil
}

func (r *domainRepository) List(ctx context.Context, orgID string, activeOnly bool) ([]models.Domain, error) {
	query := r.owned(ctx, orgID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var domains []models.Domain
	if err := query.Order("name ASC").Find(&domains).Error; err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return domains, nil
}

// Delete removes one of the organization's domains. A domain owned by
// another organization is reported as ErrNotFound.
func (r *domainRepository) Delete(ctx context.Context, orgID string, id uint) error {
	result := r.owned(ctx, orgID).Delete(&models.Domain{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete domain: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
