package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type triggerRuleModel struct {
	ID           string         `gorm:"primaryKey;column:id"`
	TenantID     string         `gorm:"column:tenant_id;not null;index"`
	Name         string         `gorm:"column:name;not null"`
	Description  sql.NullString `gorm:"column:description"`
	Kind         string         `gorm:"column:kind;not null"`
	Config       string         `gorm:"column:config;type:text;default:'{}'"`
	ActionKind   string         `gorm:"column:action_kind;not null"`
	ActionConfig string         `gorm:"column:action_config;type:text;default:'{}'"`
	Priority     int            `gorm:"column:priority;default:0;index"`
	Active       bool           `gorm:"column:active;default:true;index"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null"`
}

func (triggerRuleModel) TableName() string { return "trigger_rules" }

type TriggerGormRepository struct {
	db *gorm.DB
}

func NewTriggerGormRepository(db *gorm.DB) *TriggerGormRepository {
	return &TriggerGormRepository{db: db}
}

func (r *TriggerGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&triggerRuleModel{})
}

func (r *TriggerGormRepository) Save(ctx context.Context, rule *domainTrigger.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
		rule.CreatedAt = time.Now().UTC()
	}
	rule.UpdatedAt = time.Now().UTC()
	model := toTriggerModel(*rule)
	return r.db.WithContext(ctx).Save(&model).Error
}

func (r *TriggerGormRepository) Delete(ctx context.Context, tenantID, id string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&triggerRuleModel{}).Error
}

func (r *TriggerGormRepository) ActiveByTenant(ctx context.Context, tenantID string) ([]domainTrigger.Rule, error) {
	var models []triggerRuleModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Order("priority DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toTriggerDomainList(models), nil
}

func (r *TriggerGormRepository) ListByTenant(ctx context.Context, tenantID string) ([]domainTrigger.Rule, error) {
	var models []triggerRuleModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("priority DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toTriggerDomainList(models), nil
}

func toTriggerModel(rule domainTrigger.Rule) triggerRuleModel {
	cfg := "{}"
	if len(rule.Config) > 0 {
		cfg = string(rule.Config)
	}
	actionCfg := "{}"
	if len(rule.ActionConfig) > 0 {
		actionCfg = string(rule.ActionConfig)
	}
	return triggerRuleModel{
		ID:           rule.ID,
		TenantID:     rule.TenantID,
		Name:         rule.Name,
		Description:  toNullString(rule.Description),
		Kind:         string(rule.Kind),
		Config:       cfg,
		ActionKind:   string(rule.ActionKind),
		ActionConfig: actionCfg,
		Priority:     rule.Priority,
		Active:       rule.Active,
		CreatedAt:    rule.CreatedAt,
		UpdatedAt:    rule.UpdatedAt,
	}
}

func toTriggerDomainList(models []triggerRuleModel) []domainTrigger.Rule {
	rules := make([]domainTrigger.Rule, 0, len(models))
	for _, m := range models {
		rules = append(rules, domainTrigger.Rule{
			ID:           m.ID,
			TenantID:     m.TenantID,
			Name:         m.Name,
			Description:  m.Description.String,
			Kind:         domainTrigger.Kind(m.Kind),
			Config:       json.RawMessage(m.Config),
			ActionKind:   domainTrigger.ActionKind(m.ActionKind),
			ActionConfig: json.RawMessage(m.ActionConfig),
			Priority:     m.Priority,
			Active:       m.Active,
			CreatedAt:    m.CreatedAt,
			UpdatedAt:    m.UpdatedAt,
		})
	}
	return rules
}
