package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shepherdcms/automation/internal/modules/automation/models"
)

// RuleFilter narrows rule listings.
type RuleFilter struct {
	IsActive *bool
}

// AutomationRepo is the persistence contract for rules and their
// execution logs.
type AutomationRepo interface {
	Create(rule *models.AutomationRule) error
	FindByID(id uuid.UUID) (*models.AutomationRule, error)
	FindByOrganization(orgID uuid.UUID, filter RuleFilter, offset, limit int) ([]models.AutomationRule, int64, error)
	Update(rule *models.AutomationRule) error
	Delete(id uuid.UUID) error

	CreateExecution(log *models.ExecutionLog) error
	FindExecutions(ruleID *uuid.UUID, limit int) ([]models.ExecutionLog, error)
}

type automationRepo struct {
	db *gorm.DB
}

// NewAutomationRepo creates a gorm-backed automation repository.
func NewAutomationRepo(db *gorm.DB) AutomationRepo {
	return &automationRepo{db: db}
}

func (r *automationRepo) Create(rule *models.AutomationRule) error {
	return r.db.Create(rule).Error
}

func (r *automationRepo) FindByID(id uuid.UUID) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := r.db.Where("id = ?", id).First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindByOrganization lists rules newest-created first, with id as a
// tiebreak so pagination stays stable under concurrent writes.
func (r *automationRepo) FindByOrganization(orgID uuid.UUID, filter RuleFilter, offset, limit int) ([]models.AutomationRule, int64, error) {
	query := r.db.Model(&models.AutomationRule{}).Where("organization_id = ?", orgID)
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rules []models.AutomationRule
	err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&rules).Error
	return rules, total, err
}

func (r *automationRepo) Update(rule *models.AutomationRule) error {
	return r.db.Save(rule).Error
}

func (r *automationRepo) Delete(id uuid.UUID) error {
	result := r.db.Where("id = ?", id).Delete(&models.AutomationRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *automationRepo) CreateExecution(log *models.ExecutionLog) error {
	return r.db.Create(log).Error
}

func (r *automationRepo) FindExecutions(ruleID *uuid.UUID, limit int) ([]models.ExecutionLog, error) {
	query := r.db.Model(&models.ExecutionLog{}).Order("triggered_at DESC, id DESC")
	if ruleID != nil {
		query = query.Where("rule_id = ?", *ruleID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var logs []models.ExecutionLog
	err := query.Find(&logs).Error
	return logs, err
}
