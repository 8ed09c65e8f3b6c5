package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	domainCampaign "github.com/AzielCF/az-flow/domains/campaign"
	domainContact "github.com/AzielCF/az-flow/domains/contact"
	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainSend "github.com/AzielCF/az-flow/domains/send"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	pkgError "github.com/AzielCF/az-flow/pkg/error"
	"github.com/AzielCF/az-flow/validations"
	"github.com/sirupsen/logrus"
)

// serviceCampaign gestiona el ciclo de vida de las campañas y su loop de
// despacho en segundo plano. Cada campaña corriendo tiene un handle
// cancelable en memoria; la cancelación también se respeta vía base de datos
// para sobrevivir reinicios.
type serviceCampaign struct {
	campaignRepo domainCampaign.ICampaignRepository
	contactRepo  domainContact.IContactRepository
	tenantRepo   domainTenant.ITenantRepository
	sender       domainSend.ISender
	fanout       domainEvent.IFanout

	minDelay time.Duration
	maxDelay time.Duration

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func NewCampaignService(
	campaignRepo domainCampaign.ICampaignRepository,
	contactRepo domainContact.IContactRepository,
	tenantRepo domainTenant.ITenantRepository,
	sender domainSend.ISender,
	fanout domainEvent.IFanout,
	minDelayMs, maxDelayMs int,
) domainCampaign.ICampaignUsecase {
	if minDelayMs <= 0 {
		minDelayMs = 1000
	}
	if maxDelayMs < minDelayMs {
		maxDelayMs = minDelayMs
	}
	return &serviceCampaign{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		tenantRepo:   tenantRepo,
		sender:       sender,
		fanout:       fanout,
		minDelay:     time.Duration(minDelayMs) * time.Millisecond,
		maxDelay:     time.Duration(maxDelayMs) * time.Millisecond,
		running:      make(map[string]context.CancelFunc),
	}
}

func (service *serviceCampaign) Create(ctx context.Context, c *domainCampaign.Campaign) error {
	if err := validations.ValidateCreateCampaign(ctx, *c); err != nil {
		return err
	}
	c.Status = domainCampaign.StatusDraft
	return service.campaignRepo.Create(ctx, c)
}

func (service *serviceCampaign) Get(ctx context.Context, tenantID, id string) (*domainCampaign.Campaign, error) {
	return service.campaignRepo.GetByID(ctx, tenantID, id)
}

func (service *serviceCampaign) List(ctx context.Context, tenantID string) ([]domainCampaign.Campaign, error) {
	return service.campaignRepo.ListByTenant(ctx, tenantID)
}

func (service *serviceCampaign) Start(ctx context.Context, tenantID, id string) error {
	campaign, err := service.campaignRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return pkgError.NotFoundError(fmt.Sprintf("campaign %s not found", id))
	}
	if campaign.Status != domainCampaign.StatusDraft && campaign.Status != domainCampaign.StatusScheduled {
		return pkgError.ConflictError(fmt.Sprintf("campaign is %s, only draft or scheduled campaigns can start", campaign.Status))
	}

	// Fail fast: sin instancia conectada no hay canal de salida.
	instance, err := service.tenantRepo.ConnectedInstance(ctx, tenantID)
	if err != nil {
		return pkgError.ConflictError("tenant has no connected instance")
	}

	remaining, err := service.tenantRepo.UsageRemaining(ctx, tenantID)
	if err != nil {
		return err
	}
	if remaining <= 0 {
		return pkgError.QuotaExceededError("tenant usage balance exhausted")
	}

	contacts, err := service.contactRepo.Find(ctx, tenantID, campaign.Filter, campaign.TargetAll)
	if err != nil {
		return err
	}
	if len(contacts) == 0 {
		return pkgError.ValidationError("campaign audience is empty")
	}

	jids := make([]string, 0, len(contacts))
	for _, c := range contacts {
		jids = append(jids, c.ChatJID)
	}
	if _, err := service.campaignRepo.MaterializeRecipients(ctx, campaign.ID, jids); err != nil {
		return err
	}

	if err := service.campaignRepo.SetRunning(ctx, campaign.ID, len(jids), time.Now().UTC()); err != nil {
		return err
	}

	service.launch(campaign.ID, instance.Key)

	logrus.Infof("[CAMPAIGN] %s started with %d recipients via %s", campaign.ID, len(jids), instance.Key)
	return nil
}

func (service *serviceCampaign) Cancel(ctx context.Context, tenantID, id string) error {
	campaign, err := service.campaignRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return pkgError.NotFoundError(fmt.Sprintf("campaign %s not found", id))
	}
	if campaign.Status != domainCampaign.StatusRunning && campaign.Status != domainCampaign.StatusScheduled {
		return pkgError.ConflictError(fmt.Sprintf("campaign is %s, cannot cancel", campaign.Status))
	}

	// Primero la base de datos: el loop verifica el status entre envíos
	// aunque el handle en memoria se haya perdido.
	if err := service.campaignRepo.SetStatus(ctx, id, domainCampaign.StatusCancelled); err != nil {
		return err
	}

	service.mu.Lock()
	if cancel, ok := service.running[id]; ok {
		cancel()
		delete(service.running, id)
	}
	service.mu.Unlock()

	logrus.Infof("[CAMPAIGN] %s cancelled", id)
	return nil
}

// ResumeRunning relaunches dispatch for campaigns a previous process left in
// running state.
func (service *serviceCampaign) ResumeRunning(ctx context.Context) error {
	campaigns, err := service.campaignRepo.RunningCampaigns(ctx)
	if err != nil {
		return err
	}

	for _, campaign := range campaigns {
		instance, err := service.tenantRepo.ConnectedInstance(ctx, campaign.TenantID)
		if err != nil {
			logrus.Warnf("[CAMPAIGN] %s cannot resume, tenant %s has no connected instance",
				campaign.ID, campaign.TenantID)
			continue
		}
		service.launch(campaign.ID, instance.Key)
		logrus.Infof("[CAMPAIGN] %s resumed after restart", campaign.ID)
	}
	return nil
}

func (service *serviceCampaign) launch(campaignID, instanceKey string) {
	ctx, cancel := context.WithCancel(context.Background())

	service.mu.Lock()
	service.running[campaignID] = cancel
	service.mu.Unlock()

	go func() {
		defer func() {
			service.mu.Lock()
			delete(service.running, campaignID)
			service.mu.Unlock()
			cancel()
		}()
		service.dispatch(ctx, campaignID, instanceKey)
	}()
}

// dispatch recorre los destinatarios pendientes uno a uno. El fallo de un
// destinatario se registra y no detiene la campaña.
func (service *serviceCampaign) dispatch(ctx context.Context, campaignID, instanceKey string) {
	campaign, recipients, err := service.loadWork(ctx, campaignID)
	if err != nil {
		logrus.WithError(err).Errorf("[CAMPAIGN] %s dispatch aborted", campaignID)
		return
	}

	for i, recipient := range recipients {
		if service.cancelled(ctx, campaignID) {
			logrus.Infof("[CAMPAIGN] %s halted at recipient %d/%d", campaignID, i, len(recipients))
			// Aunque quede detenida, los conteos de lo ya enviado se
			// consolidan en la campaña.
			service.finishCampaign(campaignID)
			return
		}

		if err := service.sendToRecipient(ctx, campaign, instanceKey, recipient.ChatJID); err != nil {
			if markErr := service.campaignRepo.MarkRecipientFailed(ctx, recipient.ID, err.Error()); markErr != nil {
				logrus.WithError(markErr).Warnf("[CAMPAIGN] Could not mark recipient %s failed", recipient.ID)
			}
			logrus.WithError(err).Warnf("[CAMPAIGN] %s send to %s failed", campaignID, recipient.ChatJID)
		} else {
			if markErr := service.campaignRepo.MarkRecipientSent(ctx, recipient.ID, time.Now().UTC()); markErr != nil {
				logrus.WithError(markErr).Warnf("[CAMPAIGN] Could not mark recipient %s sent", recipient.ID)
			}
		}

		if i < len(recipients)-1 {
			select {
			case <-time.After(service.interSendDelay()):
			case <-ctx.Done():
				service.finishCampaign(campaignID)
				return
			}
		}
	}

	service.finishCampaign(campaignID)
}

func (service *serviceCampaign) loadWork(ctx context.Context, campaignID string) (*domainCampaign.Campaign, []domainCampaign.Recipient, error) {
	status, err := service.campaignRepo.GetStatus(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	if status != domainCampaign.StatusRunning {
		return nil, nil, fmt.Errorf("campaign is %s, not running", status)
	}

	campaigns, err := service.campaignRepo.RunningCampaigns(ctx)
	if err != nil {
		return nil, nil, err
	}
	var campaign *domainCampaign.Campaign
	for i := range campaigns {
		if campaigns[i].ID == campaignID {
			campaign = &campaigns[i]
			break
		}
	}
	if campaign == nil {
		return nil, nil, fmt.Errorf("campaign %s not found among running", campaignID)
	}

	recipients, err := service.campaignRepo.PendingRecipients(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, recipients, nil
}

func (service *serviceCampaign) sendToRecipient(ctx context.Context, campaign *domainCampaign.Campaign, instanceKey, chatJID string) error {
	// Cada envío de campaña consume una unidad de uso, igual que las
	// respuestas automáticas.
	if err := service.tenantRepo.DebitUsage(ctx, campaign.TenantID, 1); err != nil {
		return err
	}

	if campaign.MediaURL != "" {
		_, err := service.sender.SendMedia(ctx, domainSend.MediaRequest{
			InstanceKey: instanceKey,
			ChatJID:     chatJID,
			Caption:     campaign.MessageText,
			MediaURL:    campaign.MediaURL,
			MediaKind:   campaign.MediaKind,
		})
		return err
	}
	_, err := service.sender.SendText(ctx, domainSend.TextRequest{
		InstanceKey: instanceKey,
		ChatJID:     chatJID,
		Text:        campaign.MessageText,
	})
	return err
}

func (service *serviceCampaign) cancelled(ctx context.Context, campaignID string) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	status, err := service.campaignRepo.GetStatus(ctx, campaignID)
	if err != nil {
		logrus.WithError(err).Warnf("[CAMPAIGN] Status poll failed for %s", campaignID)
		return false
	}
	return status == domainCampaign.StatusCancelled
}

func (service *serviceCampaign) finishCampaign(campaignID string) {
	ctx := context.Background()

	sent, failed, err := service.campaignRepo.RecipientCounts(ctx, campaignID)
	if err != nil {
		logrus.WithError(err).Errorf("[CAMPAIGN] Could not count recipients for %s", campaignID)
		return
	}
	if err := service.campaignRepo.Finish(ctx, campaignID, sent, failed, time.Now().UTC()); err != nil {
		logrus.WithError(err).Errorf("[CAMPAIGN] Could not finish %s", campaignID)
		return
	}

	logrus.Infof("[CAMPAIGN] %s finished: %d sent, %d failed", campaignID, sent, failed)

	if service.fanout != nil {
		service.fanout.Publish(domainEvent.Notification{
			Code: domainEvent.CodeMessageUpdate,
			Result: map[string]any{
				"campaign_id": campaignID,
				"sent":        sent,
				"failed":      failed,
			},
		})
	}
}

// interSendDelay devuelve una pausa aleatoria entre envíos para no parecer
// una ráfaga automatizada ante el gateway.
func (service *serviceCampaign) interSendDelay() time.Duration {
	spread := service.maxDelay - service.minDelay
	if spread <= 0 {
		return service.minDelay
	}
	return service.minDelay + time.Duration(rand.Int63n(int64(spread)))
}
