package event

import (
	"context"
	"encoding/json"
)

// Gateway event kinds, as tagged on the inbound webhook payload.
const (
	KindConnectionUpdate = "connection.update"
	KindQRCodeUpdated    = "qrcode.updated"
	KindMessagesUpsert   = "messages.upsert"
	KindMessagesSet      = "messages.set"
	KindMessagesUpdate   = "messages.update"
	KindContactsUpsert   = "contacts.upsert"
	KindContactsUpdate   = "contacts.update"
	KindGroupsUpsert     = "groups.upsert"
	KindGroupsUpdate     = "groups.update"
	KindPresenceUpdate   = "presence.update"
)

// Broadcast codes pushed to connected observers.
const (
	CodeConnectionUpdate = "connection_update"
	CodeQRCodeUpdate     = "qrcode_update"
	CodeMessageUpdate    = "message_update"
	CodePresenceUpdate   = "presence_update"
	CodeHistorySync      = "history_sync"
	CodeContactsUpdate   = "contacts_update"
	CodeNewMessage       = "new_message"
)

const GroupSuffix = "@g.us"

// InboundEvent is the raw envelope delivered by the messaging gateway.
// It is transient and never persisted as-is.
type InboundEvent struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

type ExtendedTextMessage struct {
	Text string `json:"text"`
}

type MediaMessage struct {
	URL      string `json:"url"`
	Caption  string `json:"caption,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type ButtonsResponseMessage struct {
	SelectedButtonID    string `json:"selectedButtonId"`
	SelectedDisplayText string `json:"selectedDisplayText"`
}

type ListResponseMessage struct {
	Title string `json:"title"`
}

// MessageContent mirrors the nested variant shapes the gateway delivers.
type MessageContent struct {
	Conversation           string                  `json:"conversation,omitempty"`
	ExtendedTextMessage    *ExtendedTextMessage    `json:"extendedTextMessage,omitempty"`
	ImageMessage           *MediaMessage           `json:"imageMessage,omitempty"`
	VideoMessage           *MediaMessage           `json:"videoMessage,omitempty"`
	AudioMessage           *MediaMessage           `json:"audioMessage,omitempty"`
	DocumentMessage        *MediaMessage           `json:"documentMessage,omitempty"`
	StickerMessage         *MediaMessage           `json:"stickerMessage,omitempty"`
	ButtonsResponseMessage *ButtonsResponseMessage `json:"buttonsResponseMessage,omitempty"`
	ListResponseMessage    *ListResponseMessage    `json:"listResponseMessage,omitempty"`
}

type RawMessage struct {
	Key              MessageKey      `json:"key"`
	PushName         string          `json:"pushName,omitempty"`
	MessageTimestamp int64           `json:"messageTimestamp,omitempty"`
	Message          *MessageContent `json:"message,omitempty"`
}

type HistorySet struct {
	Messages []RawMessage `json:"messages"`
}

type StatusUpdate struct {
	Key    MessageKey `json:"key"`
	Status int        `json:"status"`
}

type ConnectionUpdate struct {
	State string `json:"state"`
}

type QRCodeUpdate struct {
	QRCode string `json:"qrcode"`
}

type PresenceUpdate struct {
	ChatJID   string            `json:"id"`
	Presences map[string]string `json:"presences,omitempty"`
}

type ContactUpdate struct {
	JID      string `json:"id"`
	PushName string `json:"pushName,omitempty"`
}

// Notification is a tagged union broadcast to observers. It carries no
// persistent identity.
type Notification struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// IFanout publishes notifications to every connected observer.
type IFanout interface {
	Publish(n Notification)
}

// IIngestUsecase routes raw gateway events into the platform. Handlers
// absorb their own errors; the webhook surface always acknowledges.
type IIngestUsecase interface {
	HandleEvent(ctx context.Context, ev InboundEvent) error
}
