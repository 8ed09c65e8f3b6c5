package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domainCampaign "github.com/AzielCF/az-flow/domains/campaign"
	domainContact "github.com/AzielCF/az-flow/domains/contact"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type campaignModel struct {
	ID          string         `gorm:"primaryKey;column:id"`
	TenantID    string         `gorm:"column:tenant_id;not null;index"`
	Name        string         `gorm:"column:name;not null"`
	MessageText string         `gorm:"column:message_text;type:text;not null"`
	MediaURL    sql.NullString `gorm:"column:media_url"`
	MediaKind   sql.NullString `gorm:"column:media_kind"`
	TargetAll   bool           `gorm:"column:target_all;default:false"`
	Filter      string         `gorm:"column:filter;type:text;default:'{}'"` // JSON
	Status      string         `gorm:"column:status;default:'draft';index"`
	Total       int            `gorm:"column:total;default:0"`
	SentCount   int            `gorm:"column:sent_count;default:0"`
	FailedCount int            `gorm:"column:failed_count;default:0"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

func (campaignModel) TableName() string { return "campaigns" }

type campaignRecipientModel struct {
	ID         string         `gorm:"primaryKey;column:id"`
	CampaignID string         `gorm:"column:campaign_id;not null;uniqueIndex:idx_campaign_jid;index"`
	ChatJID    string         `gorm:"column:chat_jid;not null;uniqueIndex:idx_campaign_jid"`
	Status     string         `gorm:"column:status;default:'pending';index"`
	Error      sql.NullString `gorm:"column:error"`
	SentAt     *time.Time     `gorm:"column:sent_at"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
}

func (campaignRecipientModel) TableName() string { return "campaign_recipients" }

type CampaignGormRepository struct {
	db *gorm.DB
}

func NewCampaignGormRepository(db *gorm.DB) *CampaignGormRepository {
	return &CampaignGormRepository{db: db}
}

func (r *CampaignGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&campaignModel{}, &campaignRecipientModel{})
}

func (r *CampaignGormRepository) Create(ctx context.Context, c *domainCampaign.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = domainCampaign.StatusDraft
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	model := toCampaignModel(*c)
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *CampaignGormRepository) GetByID(ctx context.Context, tenantID, id string) (*domainCampaign.Campaign, error) {
	var m campaignModel
	if err := r.db.WithContext(ctx).First(&m, "tenant_id = ? AND id = ?", tenantID, id).Error; err != nil {
		return nil, err
	}
	c := toCampaignDomain(m)
	return &c, nil
}

func (r *CampaignGormRepository) ListByTenant(ctx context.Context, tenantID string) ([]domainCampaign.Campaign, error) {
	var models []campaignModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	campaigns := make([]domainCampaign.Campaign, 0, len(models))
	for _, m := range models {
		campaigns = append(campaigns, toCampaignDomain(m))
	}
	return campaigns, nil
}

func (r *CampaignGormRepository) GetStatus(ctx context.Context, id string) (domainCampaign.Status, error) {
	var status string
	err := r.db.WithContext(ctx).Model(&campaignModel{}).
		Where("id = ?", id).
		Pluck("status", &status).Error
	return domainCampaign.Status(status), err
}

func (r *CampaignGormRepository) SetStatus(ctx context.Context, id string, status domainCampaign.Status) error {
	return r.db.WithContext(ctx).Model(&campaignModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now().UTC()}).Error
}

func (r *CampaignGormRepository) SetRunning(ctx context.Context, id string, total int, startedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&campaignModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(domainCampaign.StatusRunning),
			"total":      total,
			"started_at": startedAt,
			"updated_at": time.Now().UTC(),
		}).Error
}

// Finish records counts and completion time. Only a still-running campaign is
// advanced to completed; a cancelled status stays cancelled.
func (r *CampaignGormRepository) Finish(ctx context.Context, id string, sent, failed int, completedAt time.Time) error {
	tx := r.db.WithContext(ctx)

	if err := tx.Model(&campaignModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sent_count":   sent,
			"failed_count": failed,
			"completed_at": completedAt,
			"updated_at":   time.Now().UTC(),
		}).Error; err != nil {
		return err
	}

	return tx.Model(&campaignModel{}).
		Where("id = ? AND status = ?", id, string(domainCampaign.StatusRunning)).
		Update("status", string(domainCampaign.StatusCompleted)).Error
}

func (r *CampaignGormRepository) MaterializeRecipients(ctx context.Context, campaignID string, jids []string) (int, error) {
	if len(jids) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	models := make([]campaignRecipientModel, 0, len(jids))
	for _, jid := range jids {
		models = append(models, campaignRecipientModel{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			ChatJID:    jid,
			Status:     string(domainCampaign.RecipientPending),
			CreatedAt:  now,
		})
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&models, 500)
	return int(result.RowsAffected), result.Error
}

func (r *CampaignGormRepository) PendingRecipients(ctx context.Context, campaignID string) ([]domainCampaign.Recipient, error) {
	var models []campaignRecipientModel
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", campaignID, string(domainCampaign.RecipientPending)).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	recipients := make([]domainCampaign.Recipient, 0, len(models))
	for _, m := range models {
		recipients = append(recipients, domainCampaign.Recipient{
			ID:         m.ID,
			CampaignID: m.CampaignID,
			ChatJID:    m.ChatJID,
			Status:     domainCampaign.RecipientStatus(m.Status),
			Error:      m.Error.String,
			SentAt:     m.SentAt,
			CreatedAt:  m.CreatedAt,
		})
	}
	return recipients, nil
}

func (r *CampaignGormRepository) MarkRecipientSent(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&campaignRecipientModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":  string(domainCampaign.RecipientSent),
			"sent_at": at,
		}).Error
}

func (r *CampaignGormRepository) MarkRecipientFailed(ctx context.Context, id string, errText string) error {
	return r.db.WithContext(ctx).Model(&campaignRecipientModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": string(domainCampaign.RecipientFailed),
			"error":  errText,
		}).Error
}

func (r *CampaignGormRepository) RecipientCounts(ctx context.Context, campaignID string) (int, int, error) {
	var sent, failed int64
	if err := r.db.WithContext(ctx).Model(&campaignRecipientModel{}).
		Where("campaign_id = ? AND status = ?", campaignID, string(domainCampaign.RecipientSent)).
		Count(&sent).Error; err != nil {
		return 0, 0, err
	}
	if err := r.db.WithContext(ctx).Model(&campaignRecipientModel{}).
		Where("campaign_id = ? AND status = ?", campaignID, string(domainCampaign.RecipientFailed)).
		Count(&failed).Error; err != nil {
		return 0, 0, err
	}
	return int(sent), int(failed), nil
}

func (r *CampaignGormRepository) RunningCampaigns(ctx context.Context) ([]domainCampaign.Campaign, error) {
	var models []campaignModel
	err := r.db.WithContext(ctx).
		Where("status = ?", string(domainCampaign.StatusRunning)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	campaigns := make([]domainCampaign.Campaign, 0, len(models))
	for _, m := range models {
		campaigns = append(campaigns, toCampaignDomain(m))
	}
	return campaigns, nil
}

func toCampaignModel(c domainCampaign.Campaign) campaignModel {
	filter := "{}"
	if encoded, err := json.Marshal(c.Filter); err == nil {
		filter = string(encoded)
	}
	return campaignModel{
		ID:          c.ID,
		TenantID:    c.TenantID,
		Name:        c.Name,
		MessageText: c.MessageText,
		MediaURL:    toNullString(c.MediaURL),
		MediaKind:   toNullString(c.MediaKind),
		TargetAll:   c.TargetAll,
		Filter:      filter,
		Status:      string(c.Status),
		Total:       c.Total,
		SentCount:   c.SentCount,
		FailedCount: c.FailedCount,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toCampaignDomain(m campaignModel) domainCampaign.Campaign {
	var filter domainContact.Filter
	_ = json.Unmarshal([]byte(m.Filter), &filter)
	return domainCampaign.Campaign{
		ID:          m.ID,
		TenantID:    m.TenantID,
		Name:        m.Name,
		MessageText: m.MessageText,
		MediaURL:    m.MediaURL.String,
		MediaKind:   m.MediaKind.String,
		TargetAll:   m.TargetAll,
		Filter:      filter,
		Status:      domainCampaign.Status(m.Status),
		Total:       m.Total,
		SentCount:   m.SentCount,
		FailedCount: m.FailedCount,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
