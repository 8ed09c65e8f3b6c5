package usecase

import (
	"context"

	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	pkgError "github.com/AzielCF/az-flow/pkg/error"
)

type serviceTenant struct {
	repo domainTenant.ITenantRepository
}

func NewTenantService(repo domainTenant.ITenantRepository) domainTenant.ITenantUsecase {
	return &serviceTenant{repo: repo}
}

func (service serviceTenant) CreateTenant(ctx context.Context, t *domainTenant.Tenant) error {
	if t.Name == "" {
		return pkgError.ValidationError("name: cannot be blank")
	}
	if t.UsageBalance < 0 {
		return pkgError.ValidationError("usage_balance: must be no less than 0")
	}
	return service.repo.CreateTenant(ctx, t)
}

func (service serviceTenant) GetTenant(ctx context.Context, id string) (*domainTenant.Tenant, error) {
	return service.repo.GetTenant(ctx, id)
}

func (service serviceTenant) UsageRemaining(ctx context.Context, tenantID string) (int64, error) {
	return service.repo.UsageRemaining(ctx, tenantID)
}

func (service serviceTenant) CreateInstance(ctx context.Context, inst *domainTenant.Instance) error {
	if inst.TenantID == "" {
		return pkgError.ValidationError("tenant_id: cannot be blank")
	}
	if inst.Key == "" {
		return pkgError.ValidationError("key: cannot be blank")
	}
	if _, err := service.repo.GetTenant(ctx, inst.TenantID); err != nil {
		return pkgError.NotFoundError("tenant not found")
	}
	return service.repo.CreateInstance(ctx, inst)
}
