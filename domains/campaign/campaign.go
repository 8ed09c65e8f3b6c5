package campaign

import (
	"context"
	"time"

	domainContact "github.com/AzielCF/az-flow/domains/contact"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Campaign is one bulk outbound send owned by a tenant.
type Campaign struct {
	ID          string
	TenantID    string
	Name        string
	MessageText string
	MediaURL    string
	MediaKind   string
	TargetAll   bool
	Filter      domainContact.Filter
	Status      Status
	Total       int
	SentCount   int
	FailedCount int
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Recipient is one target contact of a campaign. One row per
// (campaign, remote party); materialization is idempotent.
type Recipient struct {
	ID         string
	CampaignID string
	ChatJID    string
	Status     RecipientStatus
	Error      string
	SentAt     *time.Time
	CreatedAt  time.Time
}

type ICampaignRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, tenantID, id string) (*Campaign, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Campaign, error)
	// GetStatus re-reads only the status column; the dispatch loop polls it
	// between recipients for cooperative cancellation.
	GetStatus(ctx context.Context, id string) (Status, error)
	SetStatus(ctx context.Context, id string, status Status) error
	// SetRunning flips the campaign to running and records the start time
	// along with the materialized recipient total.
	SetRunning(ctx context.Context, id string, total int, startedAt time.Time) error
	// Finish records the aggregate counts and completion time. The status is
	// only advanced to completed when it is still running; an externally set
	// cancelled status is never overwritten.
	Finish(ctx context.Context, id string, sent, failed int, completedAt time.Time) error
	// MaterializeRecipients inserts one pending row per JID, skipping
	// duplicates. It returns the number of rows actually inserted.
	MaterializeRecipients(ctx context.Context, campaignID string, jids []string) (int, error)
	PendingRecipients(ctx context.Context, campaignID string) ([]Recipient, error)
	MarkRecipientSent(ctx context.Context, id string, at time.Time) error
	MarkRecipientFailed(ctx context.Context, id string, errText string) error
	RecipientCounts(ctx context.Context, campaignID string) (sent int, failed int, err error)
	// RunningCampaigns lists campaigns left in running state, used to
	// resume dispatch after a restart.
	RunningCampaigns(ctx context.Context) ([]Campaign, error)
}

type ICampaignUsecase interface {
	Create(ctx context.Context, c *Campaign) error
	Get(ctx context.Context, tenantID, id string) (*Campaign, error)
	List(ctx context.Context, tenantID string) ([]Campaign, error)
	// Start materializes the recipient list and launches the dispatch loop
	// in the background. It fails fast when the audience is empty or the
	// tenant has no connected instance.
	Start(ctx context.Context, tenantID, id string) error
	Cancel(ctx context.Context, tenantID, id string) error
	// ResumeRunning relaunches dispatch for campaigns left running by a
	// previous process.
	ResumeRunning(ctx context.Context) error
}
