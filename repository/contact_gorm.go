package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domainContact "github.com/AzielCF/az-flow/domains/contact"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contactModel struct {
	ID         string         `gorm:"primaryKey;column:id"`
	TenantID   string         `gorm:"column:tenant_id;not null;uniqueIndex:idx_tenant_jid"`
	ChatJID    string         `gorm:"column:chat_jid;not null;uniqueIndex:idx_tenant_jid"`
	Name       sql.NullString `gorm:"column:name"`
	Gender     sql.NullString `gorm:"column:gender"`
	City       sql.NullString `gorm:"column:city"`
	State      sql.NullString `gorm:"column:state"`
	University sql.NullString `gorm:"column:university"`
	Course     sql.NullString `gorm:"column:course"`
	BirthDate  *time.Time     `gorm:"column:birth_date"`
	Tags       string         `gorm:"column:tags;default:'[]'"` // JSON array
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;not null"`
}

func (contactModel) TableName() string { return "contacts" }

type ContactGormRepository struct {
	db *gorm.DB
}

func NewContactGormRepository(db *gorm.DB) *ContactGormRepository {
	return &ContactGormRepository{db: db}
}

func (r *ContactGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&contactModel{})
}

func (r *ContactGormRepository) Upsert(ctx context.Context, c *domainContact.Contact) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	model := toContactModel(*c)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "chat_jid"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
		}).
		Create(&model).Error
}

func (r *ContactGormRepository) GetByJID(ctx context.Context, tenantID, chatJID string) (*domainContact.Contact, error) {
	var m contactModel
	if err := r.db.WithContext(ctx).
		First(&m, "tenant_id = ? AND chat_jid = ?", tenantID, chatJID).Error; err != nil {
		return nil, err
	}
	c := toContactDomain(m)
	return &c, nil
}

func (r *ContactGormRepository) Exists(ctx context.Context, tenantID, chatJID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&contactModel{}).
		Where("tenant_id = ? AND chat_jid = ?", tenantID, chatJID).
		Count(&count).Error
	return count > 0, err
}

func (r *ContactGormRepository) AddTags(ctx context.Context, tenantID, chatJID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m contactModel
		if err := tx.First(&m, "tenant_id = ? AND chat_jid = ?", tenantID, chatJID).Error; err != nil {
			return err
		}

		var current []string
		_ = json.Unmarshal([]byte(m.Tags), &current)

		seen := make(map[string]struct{}, len(current))
		for _, t := range current {
			seen[t] = struct{}{}
		}
		for _, t := range tags {
			if _, ok := seen[t]; !ok {
				current = append(current, t)
				seen[t] = struct{}{}
			}
		}

		encoded, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return tx.Model(&contactModel{}).
			Where("tenant_id = ? AND chat_jid = ?", tenantID, chatJID).
			Updates(map[string]any{"tags": string(encoded), "updated_at": time.Now().UTC()}).Error
	})
}

// Find applies the campaign segmentation filter. Every configured attribute
// is ANDed; the tags column is stored as a JSON array so membership is
// matched on the encoded element, which works on both SQLite and Postgres.
func (r *ContactGormRepository) Find(ctx context.Context, tenantID string, filter domainContact.Filter, targetAll bool) ([]domainContact.Contact, error) {
	if filter.IsEmpty() && !targetAll {
		return nil, nil
	}

	query := r.db.WithContext(ctx).Model(&contactModel{}).Where("tenant_id = ?", tenantID)

	for _, tag := range filter.Tags {
		encoded, err := json.Marshal(tag)
		if err != nil {
			return nil, err
		}
		query = query.Where("tags LIKE ?", fmt.Sprintf("%%%s%%", string(encoded)))
	}
	if filter.Gender != "" {
		query = query.Where("gender = ?", filter.Gender)
	}
	if filter.City != "" {
		query = query.Where("city = ?", filter.City)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.University != "" {
		query = query.Where("university = ?", filter.University)
	}
	if filter.Course != "" {
		query = query.Where("course = ?", filter.Course)
	}

	now := time.Now().UTC()
	if filter.MinAge != nil {
		// age >= min  =>  born on or before now - min years
		cutoff := now.AddDate(-*filter.MinAge, 0, 0)
		query = query.Where("birth_date IS NOT NULL AND birth_date <= ?", cutoff)
	}
	if filter.MaxAge != nil {
		// age <= max  =>  born after now - (max+1) years
		cutoff := now.AddDate(-(*filter.MaxAge + 1), 0, 0)
		query = query.Where("birth_date IS NOT NULL AND birth_date > ?", cutoff)
	}

	var models []contactModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	contacts := make([]domainContact.Contact, 0, len(models))
	for _, m := range models {
		contacts = append(contacts, toContactDomain(m))
	}
	return contacts, nil
}

func toContactModel(c domainContact.Contact) contactModel {
	tags := "[]"
	if len(c.Tags) > 0 {
		if encoded, err := json.Marshal(c.Tags); err == nil {
			tags = string(encoded)
		}
	}
	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return contactModel{
		ID:         c.ID,
		TenantID:   c.TenantID,
		ChatJID:    c.ChatJID,
		Name:       toNullString(c.Name),
		Gender:     toNullString(c.Gender),
		City:       toNullString(c.City),
		State:      toNullString(c.State),
		University: toNullString(c.University),
		Course:     toNullString(c.Course),
		BirthDate:  c.BirthDate,
		Tags:       tags,
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}
}

func toContactDomain(m contactModel) domainContact.Contact {
	var tags []string
	_ = json.Unmarshal([]byte(m.Tags), &tags)
	return domainContact.Contact{
		ID:         m.ID,
		TenantID:   m.TenantID,
		ChatJID:    m.ChatJID,
		Name:       m.Name.String,
		Gender:     m.Gender.String,
		City:       m.City.String,
		State:      m.State.String,
		University: m.University.String,
		Course:     m.Course.String,
		BirthDate:  m.BirthDate,
		Tags:       tags,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
