package usecase

import (
	"context"
	"encoding/json"
	"errors"

	domainContact "github.com/AzielCF/az-flow/domains/contact"
	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainMessage "github.com/AzielCF/az-flow/domains/message"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	"github.com/AzielCF/az-flow/pkg/msgworker"
	"github.com/sirupsen/logrus"
)

// Enqueuer is the slice of the worker pool the ingest service needs.
type Enqueuer interface {
	Enqueue(job msgworker.Job) bool
}

// serviceIngest normaliza los eventos crudos del gateway y los enruta:
// mensajes vivos al worker pool, volcados de historial al backfill y el
// resto a actualizaciones de estado y fanout.
type serviceIngest struct {
	tenantRepo  domainTenant.ITenantRepository
	messageRepo domainMessage.IMessageRepository
	contactRepo domainContact.IContactRepository
	backfill    *serviceBackfill
	pool        Enqueuer
	fanout      domainEvent.IFanout
}

func NewIngestService(
	tenantRepo domainTenant.ITenantRepository,
	messageRepo domainMessage.IMessageRepository,
	contactRepo domainContact.IContactRepository,
	backfill *serviceBackfill,
	pool Enqueuer,
	fanout domainEvent.IFanout,
) domainEvent.IIngestUsecase {
	return &serviceIngest{
		tenantRepo:  tenantRepo,
		messageRepo: messageRepo,
		contactRepo: contactRepo,
		backfill:    backfill,
		pool:        pool,
		fanout:      fanout,
	}
}

func (service *serviceIngest) HandleEvent(ctx context.Context, ev domainEvent.InboundEvent) error {
	instance, err := service.tenantRepo.GetInstanceByKey(ctx, ev.Instance)
	if err != nil {
		if errors.Is(err, domainTenant.ErrInstanceNotFound) {
			logrus.Warnf("[INGEST] Event %s for unknown instance %s dropped", ev.Event, ev.Instance)
			return nil
		}
		return err
	}

	switch ev.Event {
	case domainEvent.KindMessagesUpsert:
		return service.handleUpsert(ctx, instance, ev.Data)
	case domainEvent.KindMessagesSet:
		return service.handleHistorySet(instance, ev.Data)
	case domainEvent.KindMessagesUpdate:
		return service.handleStatusUpdate(ctx, instance, ev.Data)
	case domainEvent.KindContactsUpsert, domainEvent.KindContactsUpdate:
		return service.handleContacts(ctx, instance, ev.Data)
	case domainEvent.KindGroupsUpsert, domainEvent.KindGroupsUpdate:
		service.publish(domainEvent.CodeContactsUpdate, "", json.RawMessage(ev.Data))
		return nil
	case domainEvent.KindConnectionUpdate:
		return service.handleConnection(ctx, instance, ev.Data)
	case domainEvent.KindQRCodeUpdated:
		var update domainEvent.QRCodeUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			return err
		}
		service.publish(domainEvent.CodeQRCodeUpdate, "", update)
		return nil
	case domainEvent.KindPresenceUpdate:
		var update domainEvent.PresenceUpdate
		if err := json.Unmarshal(ev.Data, &update); err != nil {
			return err
		}
		service.publish(domainEvent.CodePresenceUpdate, "", update)
		return nil
	default:
		logrus.Debugf("[INGEST] Unhandled event kind %s from %s", ev.Event, ev.Instance)
		return nil
	}
}

func (service *serviceIngest) handleUpsert(ctx context.Context, instance *domainTenant.Instance, data json.RawMessage) error {
	messages, err := decodeRawMessages(data)
	if err != nil {
		return err
	}

	for _, raw := range messages {
		if raw.Key.ID == "" || raw.Key.RemoteJID == "" {
			continue
		}
		content := domainEvent.ExtractContent(raw.Message)
		if content == nil {
			logrus.Debugf("[INGEST] Message %s has no supported content, ignored", raw.Key.ID)
			continue
		}

		enqueued := service.pool.Enqueue(msgworker.Job{
			InstanceKey: instance.Key,
			ChatJID:     raw.Key.RemoteJID,
			MessageID:   raw.Key.ID,
			Content:     content.Text,
			MediaURL:    content.MediaURL,
			MediaKind:   content.MediaKind,
			SenderName:  raw.PushName,
			Timestamp:   raw.MessageTimestamp,
			FromMe:      raw.Key.FromMe,
			IsGroup:     domainEvent.IsGroupJID(raw.Key.RemoteJID),
			Participant: raw.Key.Participant,
		})
		if !enqueued {
			logrus.Debugf("[INGEST] Job %s not enqueued (duplicate or saturated)", raw.Key.ID)
		}
	}
	return nil
}

// decodeRawMessages acepta tanto un objeto único como una lista, que es como
// el gateway entrega los upserts según la versión.
func decodeRawMessages(data json.RawMessage) ([]domainEvent.RawMessage, error) {
	var list []domainEvent.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var single domainEvent.RawMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []domainEvent.RawMessage{single}, nil
}

func (service *serviceIngest) handleHistorySet(instance *domainTenant.Instance, data json.RawMessage) error {
	var set domainEvent.HistorySet
	if err := json.Unmarshal(data, &set); err != nil {
		return err
	}

	// El volcado puede ser enorme; se archiva fuera del ciclo del webhook.
	go func() {
		if err := service.backfill.Run(context.Background(), instance, set); err != nil {
			logrus.WithError(err).Errorf("[INGEST] Backfill failed for instance %s", instance.Key)
		}
	}()
	return nil
}

func (service *serviceIngest) handleStatusUpdate(ctx context.Context, instance *domainTenant.Instance, data json.RawMessage) error {
	var updates []domainEvent.StatusUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		var single domainEvent.StatusUpdate
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		updates = []domainEvent.StatusUpdate{single}
	}

	for _, update := range updates {
		if update.Key.ID == "" {
			continue
		}
		status := domainMessage.StatusFromCode(update.Status)
		if err := service.messageRepo.UpdateStatusByMessageID(ctx, instance.ID, update.Key.ID, status); err != nil {
			logrus.WithError(err).Warnf("[INGEST] Status update failed for %s", update.Key.ID)
			continue
		}
		service.publish(domainEvent.CodeMessageUpdate, "", map[string]any{
			"message_id": update.Key.ID,
			"chat_jid":   update.Key.RemoteJID,
			"status":     string(status),
		})
	}
	return nil
}

func (service *serviceIngest) handleContacts(ctx context.Context, instance *domainTenant.Instance, data json.RawMessage) error {
	var updates []domainEvent.ContactUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		var single domainEvent.ContactUpdate
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		updates = []domainEvent.ContactUpdate{single}
	}

	for _, update := range updates {
		if update.JID == "" || domainEvent.IsGroupJID(update.JID) {
			continue
		}
		contact := &domainContact.Contact{
			TenantID: instance.TenantID,
			ChatJID:  update.JID,
			Name:     update.PushName,
		}
		if err := service.contactRepo.Upsert(ctx, contact); err != nil {
			logrus.WithError(err).Warnf("[INGEST] Contact upsert failed for %s", update.JID)
		}
	}

	service.publish(domainEvent.CodeContactsUpdate, "", map[string]any{
		"instance": instance.Key,
		"count":    len(updates),
	})
	return nil
}

func (service *serviceIngest) handleConnection(ctx context.Context, instance *domainTenant.Instance, data json.RawMessage) error {
	var update domainEvent.ConnectionUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return err
	}

	status := domainTenant.InstanceDisconnected
	switch update.State {
	case "open":
		status = domainTenant.InstanceConnected
	case "connecting":
		status = domainTenant.InstanceConnecting
	}

	if err := service.tenantRepo.UpdateInstanceStatus(ctx, instance.Key, status); err != nil {
		return err
	}

	logrus.Infof("[INGEST] Instance %s is now %s", instance.Key, status)
	service.publish(domainEvent.CodeConnectionUpdate, string(status), map[string]any{
		"instance": instance.Key,
		"state":    update.State,
	})
	return nil
}

func (service *serviceIngest) publish(code, message string, result any) {
	if service.fanout == nil {
		return
	}
	service.fanout.Publish(domainEvent.Notification{
		Code:    code,
		Message: message,
		Result:  result,
	})
}
