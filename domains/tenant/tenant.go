package tenant

import (
	"context"
	"errors"
	"time"
)

// Tenant is the owning business account for all data and quota.
type Tenant struct {
	ID           string
	Name         string
	UsageBalance int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type InstanceStatus string

const (
	InstanceConnected    InstanceStatus = "connected"
	InstanceConnecting   InstanceStatus = "connecting"
	InstanceDisconnected InstanceStatus = "disconnected"
)

// Instance is one tenant-owned messaging-gateway session (one phone number).
type Instance struct {
	ID                string
	TenantID          string
	Key               string // connection key used by the gateway webhook
	Phone             string
	OwnerJID          string
	Status            InstanceStatus
	OwnerLastActiveAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ITenantUsecase interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	UsageRemaining(ctx context.Context, tenantID string) (int64, error)
	CreateInstance(ctx context.Context, inst *Instance) error
}

type ITenantRepository interface {
	Init(ctx context.Context) error
	CreateTenant(ctx context.Context, t *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	// DebitUsage applies an atomic conditional decrement; it fails without
	// modifying anything when the balance would go negative.
	DebitUsage(ctx context.Context, tenantID string, amount int64) error
	UsageRemaining(ctx context.Context, tenantID string) (int64, error)

	CreateInstance(ctx context.Context, inst *Instance) error
	GetInstanceByKey(ctx context.Context, key string) (*Instance, error)
	UpdateInstanceStatus(ctx context.Context, key string, status InstanceStatus) error
	TouchOwnerActivity(ctx context.Context, key string, at time.Time) error
	// ConnectedInstance returns an instance of the tenant eligible for
	// outbound sends, or an error when none is connected.
	ConnectedInstance(ctx context.Context, tenantID string) (*Instance, error)
}

// ErrInsufficientBalance is returned by DebitUsage when the conditional
// decrement would take the balance below zero.
var ErrInsufficientBalance = errors.New("insufficient usage balance")

// ErrInstanceNotFound is returned when no instance matches a connection key.
var ErrInstanceNotFound = errors.New("instance not found")

// ErrNoConnectedInstance is returned when a tenant has no instance eligible
// for outbound sends.
var ErrNoConnectedInstance = errors.New("no connected instance for tenant")
