package repository

import (
	"context"
	"errors"
	"time"

	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type tenantModel struct {
	ID           string    `gorm:"primaryKey;column:id"`
	Name         string    `gorm:"column:name;not null"`
	UsageBalance int64     `gorm:"column:usage_balance;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null"`
}

func (tenantModel) TableName() string { return "tenants" }

type instanceModel struct {
	ID                string     `gorm:"primaryKey;column:id"`
	TenantID          string     `gorm:"column:tenant_id;not null;index"`
	Key               string     `gorm:"column:key;not null;uniqueIndex"`
	Phone             string     `gorm:"column:phone"`
	OwnerJID          string     `gorm:"column:owner_jid"`
	Status            string     `gorm:"column:status;default:'disconnected';index"`
	OwnerLastActiveAt *time.Time `gorm:"column:owner_last_active_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;not null"`
}

func (instanceModel) TableName() string { return "instances" }

type TenantGormRepository struct {
	db *gorm.DB
}

func NewTenantGormRepository(db *gorm.DB) *TenantGormRepository {
	return &TenantGormRepository{db: db}
}

func (r *TenantGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&tenantModel{}, &instanceModel{})
}

func (r *TenantGormRepository) CreateTenant(ctx context.Context, t *domainTenant.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	model := tenantModel{
		ID:           t.ID,
		Name:         t.Name,
		UsageBalance: t.UsageBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *TenantGormRepository) GetTenant(ctx context.Context, id string) (*domainTenant.Tenant, error) {
	var m tenantModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &domainTenant.Tenant{
		ID:           m.ID,
		Name:         m.Name,
		UsageBalance: m.UsageBalance,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

// DebitUsage runs a conditional decrement in a single UPDATE so concurrent
// workers cannot race the balance below zero.
func (r *TenantGormRepository) DebitUsage(ctx context.Context, tenantID string, amount int64) error {
	result := r.db.WithContext(ctx).Model(&tenantModel{}).
		Where("id = ? AND usage_balance >= ?", tenantID, amount).
		Updates(map[string]any{
			"usage_balance": gorm.Expr("usage_balance - ?", amount),
			"updated_at":    time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainTenant.ErrInsufficientBalance
	}
	return nil
}

func (r *TenantGormRepository) UsageRemaining(ctx context.Context, tenantID string) (int64, error) {
	var balance int64
	err := r.db.WithContext(ctx).Model(&tenantModel{}).
		Where("id = ?", tenantID).
		Pluck("usage_balance", &balance).Error
	return balance, err
}

func (r *TenantGormRepository) CreateInstance(ctx context.Context, inst *domainTenant.Instance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	model := instanceModel{
		ID:        inst.ID,
		TenantID:  inst.TenantID,
		Key:       inst.Key,
		Phone:     inst.Phone,
		OwnerJID:  inst.OwnerJID,
		Status:    string(inst.Status),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if model.Status == "" {
		model.Status = string(domainTenant.InstanceDisconnected)
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *TenantGormRepository) GetInstanceByKey(ctx context.Context, key string) (*domainTenant.Instance, error) {
	var m instanceModel
	if err := r.db.WithContext(ctx).First(&m, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainTenant.ErrInstanceNotFound
		}
		return nil, err
	}
	return toInstanceDomain(m), nil
}

func (r *TenantGormRepository) UpdateInstanceStatus(ctx context.Context, key string, status domainTenant.InstanceStatus) error {
	return r.db.WithContext(ctx).Model(&instanceModel{}).
		Where("key = ?", key).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()}).Error
}

func (r *TenantGormRepository) TouchOwnerActivity(ctx context.Context, key string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&instanceModel{}).
		Where("key = ?", key).
		Updates(map[string]any{"owner_last_active_at": at, "updated_at": time.Now().UTC()}).Error
}

func (r *TenantGormRepository) ConnectedInstance(ctx context.Context, tenantID string) (*domainTenant.Instance, error) {
	var m instanceModel
	err := r.db.WithContext(ctx).
		First(&m, "tenant_id = ? AND status = ?", tenantID, string(domainTenant.InstanceConnected)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainTenant.ErrNoConnectedInstance
		}
		return nil, err
	}
	return toInstanceDomain(m), nil
}

func toInstanceDomain(m instanceModel) *domainTenant.Instance {
	return &domainTenant.Instance{
		ID:                m.ID,
		TenantID:          m.TenantID,
		Key:               m.Key,
		Phone:             m.Phone,
		OwnerJID:          m.OwnerJID,
		Status:            domainTenant.InstanceStatus(m.Status),
		OwnerLastActiveAt: m.OwnerLastActiveAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}
