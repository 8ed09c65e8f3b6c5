package usecase

import (
	"context"
	"time"

	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainMessage "github.com/AzielCF/az-flow/domains/message"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// serviceBackfill absorbe los volcados de historial (history sync) del
// gateway sin pasar por el worker pool: los mensajes históricos se archivan,
// nunca disparan automatizaciones.
type serviceBackfill struct {
	messageRepo domainMessage.IMessageRepository
	fanout      domainEvent.IFanout
	batchSize   int
}

func NewBackfillService(messageRepo domainMessage.IMessageRepository, fanout domainEvent.IFanout, batchSize int) *serviceBackfill {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &serviceBackfill{
		messageRepo: messageRepo,
		fanout:      fanout,
		batchSize:   batchSize,
	}
}

// Run archives the dump in batches. Already-known ids are resolved with one
// batch lookup up front instead of a query per message.
func (service *serviceBackfill) Run(ctx context.Context, instance *domainTenant.Instance, set domainEvent.HistorySet) error {
	total := len(set.Messages)
	if total == 0 {
		return nil
	}

	ids := make([]string, 0, total)
	for _, raw := range set.Messages {
		if raw.Key.ID != "" {
			ids = append(ids, raw.Key.ID)
		}
	}
	existing, err := service.messageRepo.FindExistingIDs(ctx, instance.ID, ids)
	if err != nil {
		return err
	}

	logrus.Infof("[BACKFILL] Instance %s: %s messages in dump, %s already stored",
		instance.Key, humanize.Comma(int64(total)), humanize.Comma(int64(len(existing))))

	inserted := 0
	processed := 0
	batch := make([]domainMessage.Message, 0, service.batchSize)

	// Un lote fallido se registra y el volcado continúa: perder un chunk es
	// preferible a abortar un historial completo.
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := service.messageRepo.CreateBatch(ctx, batch); err != nil {
			logrus.WithError(err).Errorf("[BACKFILL] Batch insert failed for instance %s, continuing", instance.Key)
			batch = batch[:0]
			return
		}
		inserted += len(batch)
		batch = batch[:0]

		service.publishProgress(instance.Key, processed, total, inserted, false)
	}

	for _, raw := range set.Messages {
		processed++

		if raw.Key.ID == "" {
			continue
		}
		if _, known := existing[raw.Key.ID]; known {
			continue
		}
		content := domainEvent.ExtractContent(raw.Message)
		if content == nil {
			continue
		}

		direction := domainMessage.DirectionIncoming
		if raw.Key.FromMe {
			direction = domainMessage.DirectionOutgoing
		}

		ts := time.Unix(raw.MessageTimestamp, 0).UTC()
		if raw.MessageTimestamp == 0 {
			ts = time.Now().UTC()
		}

		batch = append(batch, domainMessage.Message{
			ID:          uuid.NewString(),
			MessageID:   raw.Key.ID,
			ChatJID:     raw.Key.RemoteJID,
			Participant: raw.Key.Participant,
			Direction:   direction,
			Content:     content.Text,
			MediaURL:    content.MediaURL,
			MediaKind:   content.MediaKind,
			Status:      domainMessage.StatusProcessed,
			SenderName:  raw.PushName,
			TenantID:    instance.TenantID,
			InstanceID:  instance.ID,
			Timestamp:   ts,
			CreatedAt:   time.Now().UTC(),
		})

		if len(batch) >= service.batchSize {
			flush()
		}
	}
	flush()

	logrus.Infof("[BACKFILL] Instance %s: archived %s new messages of %s",
		instance.Key, humanize.Comma(int64(inserted)), humanize.Comma(int64(total)))

	service.publishProgress(instance.Key, total, total, inserted, true)
	return nil
}

func (service *serviceBackfill) publishProgress(instanceKey string, processed, total, inserted int, done bool) {
	if service.fanout == nil {
		return
	}
	service.fanout.Publish(domainEvent.Notification{
		Code: domainEvent.CodeHistorySync,
		Result: map[string]any{
			"instance":  instanceKey,
			"processed": processed,
			"total":     total,
			"inserted":  inserted,
			"done":      done,
		},
	})
}
