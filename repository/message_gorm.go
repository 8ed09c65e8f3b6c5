package repository

import (
	"context"
	"database/sql"
	"time"

	domainMessage "github.com/AzielCF/az-flow/domains/message"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type messageModel struct {
	ID          string         `gorm:"primaryKey;column:id"`
	MessageID   string         `gorm:"column:message_id;not null;uniqueIndex:idx_instance_message_direction"`
	InstanceID  string         `gorm:"column:instance_id;not null;uniqueIndex:idx_instance_message_direction;index"`
	Direction   string         `gorm:"column:direction;not null;uniqueIndex:idx_instance_message_direction"`
	TenantID    string         `gorm:"column:tenant_id;not null;index"`
	ChatJID     string         `gorm:"column:chat_jid;not null;index"`
	Participant sql.NullString `gorm:"column:participant"`
	Content     string         `gorm:"column:content;type:text"`
	MediaURL    sql.NullString `gorm:"column:media_url"`
	MediaKind   sql.NullString `gorm:"column:media_kind"`
	Status      string         `gorm:"column:status;default:'pending';index"`
	SenderName  sql.NullString `gorm:"column:sender_name"`
	Timestamp   time.Time      `gorm:"column:timestamp"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	ProcessedAt *time.Time     `gorm:"column:processed_at"`
}

func (messageModel) TableName() string { return "messages" }

type MessageGormRepository struct {
	db *gorm.DB
}

func NewMessageGormRepository(db *gorm.DB) *MessageGormRepository {
	return &MessageGormRepository{db: db}
}

func (r *MessageGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

func (r *MessageGormRepository) Create(ctx context.Context, msg *domainMessage.Message) error {
	model := toMessageModel(*msg)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindOrCreate inserta el mensaje o, si el índice de idempotencia ya tiene la
// fila, la recarga en msg para que el caller opere sobre el registro original.
func (r *MessageGormRepository) FindOrCreate(ctx context.Context, msg *domainMessage.Message) error {
	model := toMessageModel(*msg)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing messageModel
	err := r.db.WithContext(ctx).
		Where("instance_id = ? AND message_id = ? AND direction = ?",
			msg.InstanceID, msg.MessageID, string(msg.Direction)).
		First(&existing).Error
	if err != nil {
		return err
	}
	*msg = toMessageDomain(existing)
	return nil
}

// CreateBatch inserts best-effort: rows violating the idempotency index are
// silently skipped instead of failing the whole batch.
func (r *MessageGormRepository) CreateBatch(ctx context.Context, msgs []domainMessage.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	models := make([]messageModel, 0, len(msgs))
	for _, m := range msgs {
		models = append(models, toMessageModel(m))
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models).Error
}

func (r *MessageGormRepository) ExistsOutgoing(ctx context.Context, instanceID, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("instance_id = ? AND message_id = ? AND direction = ?",
			instanceID, messageID, string(domainMessage.DirectionOutgoing)).
		Count(&count).Error
	return count > 0, err
}

func (r *MessageGormRepository) FindExistingIDs(ctx context.Context, instanceID string, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	var found []string
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("instance_id = ? AND message_id IN ?", instanceID, ids).
		Pluck("message_id", &found).Error
	if err != nil {
		return nil, err
	}

	for _, id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

func (r *MessageGormRepository) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(domainMessage.StatusProcessed),
			"processed_at": now,
		}).Error
}

func (r *MessageGormRepository) UpdateStatusByMessageID(ctx context.Context, instanceID, messageID string, status domainMessage.Status) error {
	return r.db.WithContext(ctx).Model(&messageModel{}).
		Where("instance_id = ? AND message_id = ?", instanceID, messageID).
		Update("status", string(status)).Error
}

func (r *MessageGormRepository) CountByChat(ctx context.Context, instanceID, chatJID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&messageModel{}).
		Where("instance_id = ? AND chat_jid = ?", instanceID, chatJID).
		Count(&count).Error
	return count, err
}

func toMessageModel(m domainMessage.Message) messageModel {
	return messageModel{
		ID:          m.ID,
		MessageID:   m.MessageID,
		InstanceID:  m.InstanceID,
		Direction:   string(m.Direction),
		TenantID:    m.TenantID,
		ChatJID:     m.ChatJID,
		Participant: toNullString(m.Participant),
		Content:     m.Content,
		MediaURL:    toNullString(m.MediaURL),
		MediaKind:   toNullString(m.MediaKind),
		Status:      string(m.Status),
		SenderName:  toNullString(m.SenderName),
		Timestamp:   m.Timestamp,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}

func toMessageDomain(m messageModel) domainMessage.Message {
	return domainMessage.Message{
		ID:          m.ID,
		MessageID:   m.MessageID,
		InstanceID:  m.InstanceID,
		Direction:   domainMessage.Direction(m.Direction),
		TenantID:    m.TenantID,
		ChatJID:     m.ChatJID,
		Participant: m.Participant.String,
		Content:     m.Content,
		MediaURL:    m.MediaURL.String,
		MediaKind:   m.MediaKind.String,
		Status:      domainMessage.Status(m.Status),
		SenderName:  m.SenderName.String,
		Timestamp:   m.Timestamp,
		CreatedAt:   m.CreatedAt,
		ProcessedAt: m.ProcessedAt,
	}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
