package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainBot "github.com/AzielCF/az-flow/domains/bot"
	domainContact "github.com/AzielCF/az-flow/domains/contact"
	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainMessage "github.com/AzielCF/az-flow/domains/message"
	domainSend "github.com/AzielCF/az-flow/domains/send"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	infraValkey "github.com/AzielCF/az-flow/infrastructure/valkey"
	"github.com/AzielCF/az-flow/pkg/msgworker"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// echoCacheTTL is the window during which a self-sent message id is
// remembered for fast echo suppression.
const echoCacheTTL = 10 * time.Minute

// serviceProcessor ejecuta el pipeline completo de un mensaje entrante:
// admisión por cuota, supresión de eco, persistencia, triggers, respuesta
// automática y fanout.
type serviceProcessor struct {
	tenantRepo  domainTenant.ITenantRepository
	messageRepo domainMessage.IMessageRepository
	contactRepo domainContact.IContactRepository
	triggers    domainTrigger.ITriggerUsecase
	responder   domainBot.IResponder
	sender      domainSend.ISender
	cache       *infraValkey.Client
	fanout      domainEvent.IFanout
}

func NewProcessorService(
	tenantRepo domainTenant.ITenantRepository,
	messageRepo domainMessage.IMessageRepository,
	contactRepo domainContact.IContactRepository,
	triggers domainTrigger.ITriggerUsecase,
	responder domainBot.IResponder,
	sender domainSend.ISender,
	cache *infraValkey.Client,
	fanout domainEvent.IFanout,
) *serviceProcessor {
	return &serviceProcessor{
		tenantRepo:  tenantRepo,
		messageRepo: messageRepo,
		contactRepo: contactRepo,
		triggers:    triggers,
		responder:   responder,
		sender:      sender,
		cache:       cache,
		fanout:      fanout,
	}
}

// Processor returns the pipeline as a worker-pool processor.
func (service *serviceProcessor) Processor() msgworker.Processor {
	return service.Process
}

func (service *serviceProcessor) Process(ctx context.Context, job msgworker.Job) error {
	instance, err := service.tenantRepo.GetInstanceByKey(ctx, job.InstanceKey)
	if err != nil {
		if errors.Is(err, domainTenant.ErrInstanceNotFound) {
			logrus.Warnf("[PROCESSOR] Unknown instance %s, skipping job %s", job.InstanceKey, job.MessageID)
			return msgworker.ErrSkipped
		}
		return err
	}

	if job.FromMe {
		return service.handleOwnMessage(ctx, instance, job)
	}

	// Admisión: sin saldo no se procesa y no se reintenta.
	remaining, err := service.tenantRepo.UsageRemaining(ctx, instance.TenantID)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		logrus.Debugf("[PROCESSOR] Tenant %s out of usage balance, skipping %s", instance.TenantID, job.MessageID)
		return msgworker.ErrSkipped
	}

	neverSeen, err := service.contactRepo.Exists(ctx, instance.TenantID, job.ChatJID)
	if err != nil {
		return err
	}
	neverSeen = !neverSeen

	// FindOrCreate: un reintento del pool vuelve a ejecutar el pipeline
	// completo y la fila de este mensaje puede existir ya.
	inbound := service.buildMessage(instance, job, domainMessage.DirectionIncoming)
	if err := service.messageRepo.FindOrCreate(ctx, inbound); err != nil {
		return err
	}

	// Con el mensaje ya persistido, el chat recién abierto tiene
	// exactamente una fila. El conteo es estable entre reintentos.
	count, err := service.messageRepo.CountByChat(ctx, instance.ID, job.ChatJID)
	if err != nil {
		return err
	}
	isFirst := count == 1

	if !job.IsGroup {
		contact := &domainContact.Contact{
			TenantID: instance.TenantID,
			ChatJID:  job.ChatJID,
			Name:     job.SenderName,
		}
		if err := service.contactRepo.Upsert(ctx, contact); err != nil {
			logrus.WithError(err).Warnf("[PROCESSOR] Contact upsert failed for %s", job.ChatJID)
		}
	}

	mctx := domainTrigger.MatchContext{
		MessageText:       job.Content,
		IsFirstMessage:    isFirst,
		ContactNeverSeen:  neverSeen,
		OwnerLastActiveAt: instance.OwnerLastActiveAt,
		Now:               time.Now(),
	}
	matched, err := service.triggers.Evaluate(ctx, instance.TenantID, mctx)
	if err != nil {
		return err
	}

	if len(matched) == 0 {
		return service.finish(ctx, instance, inbound, nil)
	}

	base, err := service.baseResponse(ctx, instance, job, matched)
	if err != nil {
		return err
	}
	result := service.triggers.Apply(matched, base)

	if err := service.dispatchActions(ctx, instance, job, result); err != nil {
		return err
	}
	return service.finish(ctx, instance, inbound, &result)
}

// handleOwnMessage persiste la actividad manual del dueño. Los ecos de
// mensajes que el bot ya envió se descartan sin tocar nada.
func (service *serviceProcessor) handleOwnMessage(ctx context.Context, instance *domainTenant.Instance, job msgworker.Job) error {
	if service.cache != nil {
		cached, err := service.cache.WasRecentlySent(ctx, job.InstanceKey, job.MessageID)
		if err == nil && cached {
			return msgworker.ErrAlreadyProcessed
		}
	}

	exists, err := service.messageRepo.ExistsOutgoing(ctx, instance.ID, job.MessageID)
	if err != nil {
		return err
	}
	if exists {
		return msgworker.ErrAlreadyProcessed
	}

	outgoing := service.buildMessage(instance, job, domainMessage.DirectionOutgoing)
	outgoing.Status = domainMessage.StatusSent
	if err := service.messageRepo.Create(ctx, outgoing); err != nil {
		return err
	}

	if err := service.tenantRepo.TouchOwnerActivity(ctx, instance.Key, time.Now().UTC()); err != nil {
		logrus.WithError(err).Warnf("[PROCESSOR] Owner activity touch failed for %s", instance.Key)
	}
	return nil
}

// baseResponse resolves the text the response-shaping actions operate on.
// A replace action supplies it directly; prefixes and suffixes need the
// automated reply; side-effect-only rules produce no reply at all.
func (service *serviceProcessor) baseResponse(ctx context.Context, instance *domainTenant.Instance, job msgworker.Job, matched []domainTrigger.Rule) (string, error) {
	needsReply := false
	for _, rule := range matched {
		switch rule.ActionKind {
		case domainTrigger.ActionReplaceResponse:
			return "", nil
		case domainTrigger.ActionPrefixResponse, domainTrigger.ActionSuffixResponse:
			needsReply = true
		}
	}
	if !needsReply || service.responder == nil {
		return "", nil
	}

	return service.responder.Reply(ctx, domainBot.ReplyRequest{
		InstanceID: instance.ID,
		ChatJID:    job.ChatJID,
		Text:       job.Content,
		SenderName: job.SenderName,
	})
}

func (service *serviceProcessor) dispatchActions(ctx context.Context, instance *domainTenant.Instance, job msgworker.Job, result domainTrigger.ActionResult) error {
	if result.ResponseText != "" {
		if err := service.sendAndPersist(ctx, instance, job.ChatJID, result.ResponseText); err != nil {
			return err
		}
	}

	for _, text := range result.StandaloneMessages {
		if err := service.sendAndPersist(ctx, instance, job.ChatJID, text); err != nil {
			return err
		}
	}

	if result.ForwardToOwner && instance.OwnerJID != "" {
		forwarded := fmt.Sprintf("Reenviado de %s (%s):\n%s", job.SenderName, job.ChatJID, job.Content)
		if err := service.sendAndPersist(ctx, instance, instance.OwnerJID, forwarded); err != nil {
			logrus.WithError(err).Warnf("[PROCESSOR] Forward to owner failed for %s", job.MessageID)
		}
	}

	if len(result.Tags) > 0 && !job.IsGroup {
		if err := service.contactRepo.AddTags(ctx, instance.TenantID, job.ChatJID, result.Tags); err != nil {
			logrus.WithError(err).Warnf("[PROCESSOR] Tagging %s failed", job.ChatJID)
		}
	}
	return nil
}

// sendAndPersist debita una unidad de uso, envía por el gateway y registra
// el mensaje saliente para la supresión de eco.
func (service *serviceProcessor) sendAndPersist(ctx context.Context, instance *domainTenant.Instance, chatJID, text string) error {
	if err := service.tenantRepo.DebitUsage(ctx, instance.TenantID, 1); err != nil {
		if errors.Is(err, domainTenant.ErrInsufficientBalance) {
			return msgworker.ErrSkipped
		}
		return err
	}

	messageID, err := service.sender.SendText(ctx, domainSend.TextRequest{
		InstanceKey: instance.Key,
		ChatJID:     chatJID,
		Text:        text,
	})
	if err != nil {
		return err
	}

	if service.cache != nil && messageID != "" {
		if err := service.cache.MarkRecentlySent(ctx, instance.Key, messageID, echoCacheTTL); err != nil {
			logrus.WithError(err).Debug("[PROCESSOR] Echo cache mark failed")
		}
	}

	now := time.Now().UTC()
	outgoing := &domainMessage.Message{
		ID:         uuid.NewString(),
		MessageID:  messageID,
		ChatJID:    chatJID,
		Direction:  domainMessage.DirectionOutgoing,
		Content:    text,
		Status:     domainMessage.StatusSent,
		TenantID:   instance.TenantID,
		InstanceID: instance.ID,
		Timestamp:  now,
		CreatedAt:  now,
	}
	return service.messageRepo.Create(ctx, outgoing)
}

func (service *serviceProcessor) finish(ctx context.Context, instance *domainTenant.Instance, inbound *domainMessage.Message, result *domainTrigger.ActionResult) error {
	if err := service.messageRepo.MarkProcessed(ctx, inbound.ID); err != nil {
		return err
	}

	if service.fanout != nil {
		payload := map[string]any{
			"message_id": inbound.MessageID,
			"chat_jid":   inbound.ChatJID,
			"content":    inbound.Content,
			"instance":   instance.Key,
		}
		if result != nil && result.ResponseText != "" {
			payload["response"] = result.ResponseText
		}
		service.fanout.Publish(domainEvent.Notification{
			Code:   domainEvent.CodeNewMessage,
			Result: payload,
		})
	}
	return nil
}

func (service *serviceProcessor) buildMessage(instance *domainTenant.Instance, job msgworker.Job, direction domainMessage.Direction) *domainMessage.Message {
	ts := time.Unix(job.Timestamp, 0).UTC()
	if job.Timestamp == 0 {
		ts = time.Now().UTC()
	}
	return &domainMessage.Message{
		ID:          uuid.NewString(),
		MessageID:   job.MessageID,
		ChatJID:     job.ChatJID,
		Participant: job.Participant,
		Direction:   direction,
		Content:     job.Content,
		MediaURL:    job.MediaURL,
		MediaKind:   job.MediaKind,
		Status:      domainMessage.StatusPending,
		SenderName:  job.SenderName,
		TenantID:    instance.TenantID,
		InstanceID:  instance.ID,
		Timestamp:   ts,
		CreatedAt:   time.Now().UTC(),
	}
}
