package message

import (
	"context"
	"time"
)

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

type Status string

const (
	StatusError     Status = "error"
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusPlayed    Status = "played"
	StatusFailed    Status = "failed"
)

// StatusFromCode maps the gateway's numeric ack codes (0-5) onto the
// message lifecycle. Unknown codes map to pending.
func StatusFromCode(code int) Status {
	switch code {
	case 0:
		return StatusError
	case 1:
		return StatusPending
	case 2:
		return StatusSent
	case 3:
		return StatusDelivered
	case 4:
		return StatusRead
	case 5:
		return StatusPlayed
	default:
		return StatusPending
	}
}

// Message is one persisted chat message, incoming or outgoing.
// A (MessageID, outgoing) pair is unique per tenant: re-delivery of an echoed
// outgoing event must never duplicate it.
type Message struct {
	ID          string
	MessageID   string // gateway message identifier, idempotency key
	ChatJID     string
	Participant string // actual sender inside a group thread
	Direction   Direction
	Content     string
	MediaURL    string
	MediaKind   string
	Status      Status
	SenderName  string
	TenantID    string
	InstanceID  string
	Timestamp   time.Time
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

type IMessageRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, msg *Message) error
	// FindOrCreate persists the message unless a row with the same
	// (message_id, instance, direction) already exists; in that case the
	// existing row is loaded into msg. Re-running a pipeline attempt must
	// never duplicate the record nor fail on it.
	FindOrCreate(ctx context.Context, msg *Message) error
	CreateBatch(ctx context.Context, msgs []Message) error
	// ExistsOutgoing reports whether a gateway id is already stored as an
	// outgoing message for the instance (echo suppression).
	ExistsOutgoing(ctx context.Context, instanceID, messageID string) (bool, error)
	// FindExistingIDs returns the subset of ids already persisted for the
	// instance, resolved in a single batch query.
	FindExistingIDs(ctx context.Context, instanceID string, ids []string) (map[string]struct{}, error)
	MarkProcessed(ctx context.Context, id string) error
	UpdateStatusByMessageID(ctx context.Context, instanceID, messageID string, status Status) error
	CountByChat(ctx context.Context, instanceID, chatJID string) (int64, error)
}
