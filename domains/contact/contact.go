package contact

import (
	"context"
	"time"
)

// Contact is one known remote party of a tenant, with the profile
// attributes campaigns segment on.
type Contact struct {
	ID         string
	TenantID   string
	ChatJID    string
	Name       string
	Gender     string
	City       string
	State      string
	University string
	Course     string
	BirthDate  *time.Time
	Tags       []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Filter is the closed set of campaign segmentation attributes. Every
// configured, non-empty field is ANDed together.
type Filter struct {
	Tags       []string
	Gender     string
	City       string
	State      string
	University string
	Course     string
	MinAge     *int
	MaxAge     *int
}

// IsEmpty reports whether no attribute is configured at all.
func (f Filter) IsEmpty() bool {
	return len(f.Tags) == 0 && f.Gender == "" && f.City == "" && f.State == "" &&
		f.University == "" && f.Course == "" && f.MinAge == nil && f.MaxAge == nil
}

type IContactRepository interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, c *Contact) error
	GetByJID(ctx context.Context, tenantID, chatJID string) (*Contact, error)
	Exists(ctx context.Context, tenantID, chatJID string) (bool, error)
	AddTags(ctx context.Context, tenantID, chatJID string, tags []string) error
	// Find returns every contact of the tenant matching the filter. When the
	// filter is empty and targetAll is set, all contacts are returned.
	Find(ctx context.Context, tenantID string, filter Filter, targetAll bool) ([]Contact, error)
}
