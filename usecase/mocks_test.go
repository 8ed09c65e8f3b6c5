package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	domainBot "github.com/AzielCF/az-flow/domains/bot"
	domainCampaign "github.com/AzielCF/az-flow/domains/campaign"
	domainContact "github.com/AzielCF/az-flow/domains/contact"
	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainMessage "github.com/AzielCF/az-flow/domains/message"
	domainSend "github.com/AzielCF/az-flow/domains/send"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	"github.com/google/uuid"
)

// Fakes en memoria con la misma semántica que los repositorios gorm.

type fakeTenantRepo struct {
	mu        sync.Mutex
	tenants   map[string]*domainTenant.Tenant
	instances map[string]*domainTenant.Instance // por key
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{
		tenants:   make(map[string]*domainTenant.Tenant),
		instances: make(map[string]*domainTenant.Instance),
	}
}

func (r *fakeTenantRepo) Init(ctx context.Context) error { return nil }

func (r *fakeTenantRepo) CreateTenant(ctx context.Context, t *domainTenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	copied := *t
	r.tenants[t.ID] = &copied
	return nil
}

func (r *fakeTenantRepo) GetTenant(ctx context.Context, id string) (*domainTenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, errors.New("tenant not found")
	}
	copied := *t
	return &copied, nil
}

func (r *fakeTenantRepo) DebitUsage(ctx context.Context, tenantID string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return errors.New("tenant not found")
	}
	if t.UsageBalance < amount {
		return domainTenant.ErrInsufficientBalance
	}
	t.UsageBalance -= amount
	return nil
}

func (r *fakeTenantRepo) UsageRemaining(ctx context.Context, tenantID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[tenantID]
	if !ok {
		return 0, errors.New("tenant not found")
	}
	return t.UsageBalance, nil
}

func (r *fakeTenantRepo) CreateInstance(ctx context.Context, inst *domainTenant.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	copied := *inst
	r.instances[inst.Key] = &copied
	return nil
}

func (r *fakeTenantRepo) GetInstanceByKey(ctx context.Context, key string) (*domainTenant.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[key]
	if !ok {
		return nil, domainTenant.ErrInstanceNotFound
	}
	copied := *inst
	return &copied, nil
}

func (r *fakeTenantRepo) UpdateInstanceStatus(ctx context.Context, key string, status domainTenant.InstanceStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[key]; ok {
		inst.Status = status
	}
	return nil
}

func (r *fakeTenantRepo) TouchOwnerActivity(ctx context.Context, key string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[key]; ok {
		inst.OwnerLastActiveAt = &at
	}
	return nil
}

func (r *fakeTenantRepo) ConnectedInstance(ctx context.Context, tenantID string) (*domainTenant.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.instances {
		if inst.TenantID == tenantID && inst.Status == domainTenant.InstanceConnected {
			copied := *inst
			return &copied, nil
		}
	}
	return nil, domainTenant.ErrNoConnectedInstance
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domainMessage.Message
}

func newFakeMessageRepo() *fakeMessageRepo { return &fakeMessageRepo{} }

func (r *fakeMessageRepo) Init(ctx context.Context) error { return nil }

func (r *fakeMessageRepo) Create(ctx context.Context, msg *domainMessage.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) FindOrCreate(ctx context.Context, msg *domainMessage.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.messages {
		if existing.MessageID == msg.MessageID && existing.InstanceID == msg.InstanceID &&
			existing.Direction == msg.Direction {
			*msg = existing
			return nil
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) CreateBatch(ctx context.Context, msgs []domainMessage.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range msgs {
		dup := false
		for _, existing := range r.messages {
			if existing.MessageID == msg.MessageID && existing.InstanceID == msg.InstanceID &&
				existing.Direction == msg.Direction {
				dup = true
				break
			}
		}
		if !dup {
			r.messages = append(r.messages, msg)
		}
	}
	return nil
}

func (r *fakeMessageRepo) ExistsOutgoing(ctx context.Context, instanceID, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.InstanceID == instanceID && msg.MessageID == messageID &&
			msg.Direction == domainMessage.DirectionOutgoing {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeMessageRepo) FindExistingIDs(ctx context.Context, instanceID string, ids []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	existing := make(map[string]struct{})
	for _, msg := range r.messages {
		if msg.InstanceID != instanceID {
			continue
		}
		if _, ok := wanted[msg.MessageID]; ok {
			existing[msg.MessageID] = struct{}{}
		}
	}
	return existing, nil
}

func (r *fakeMessageRepo) MarkProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for i := range r.messages {
		if r.messages[i].ID == id {
			r.messages[i].Status = domainMessage.StatusProcessed
			r.messages[i].ProcessedAt = &now
		}
	}
	return nil
}

func (r *fakeMessageRepo) UpdateStatusByMessageID(ctx context.Context, instanceID, messageID string, status domainMessage.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.messages {
		if r.messages[i].InstanceID == instanceID && r.messages[i].MessageID == messageID {
			r.messages[i].Status = status
		}
	}
	return nil
}

func (r *fakeMessageRepo) CountByChat(ctx context.Context, instanceID, chatJID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, msg := range r.messages {
		if msg.InstanceID == instanceID && msg.ChatJID == chatJID {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) all() []domainMessage.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domainMessage.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func (r *fakeMessageRepo) byDirection(direction domainMessage.Direction) []domainMessage.Message {
	var out []domainMessage.Message
	for _, msg := range r.all() {
		if msg.Direction == direction {
			out = append(out, msg)
		}
	}
	return out
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[string]*domainContact.Contact // tenant|jid
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[string]*domainContact.Contact)}
}

func contactKey(tenantID, chatJID string) string { return tenantID + "|" + chatJID }

func (r *fakeContactRepo) Init(ctx context.Context) error { return nil }

func (r *fakeContactRepo) Upsert(ctx context.Context, c *domainContact.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := contactKey(c.TenantID, c.ChatJID)
	if existing, ok := r.contacts[key]; ok {
		if c.Name != "" {
			existing.Name = c.Name
		}
		return nil
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	copied := *c
	r.contacts[key] = &copied
	return nil
}

func (r *fakeContactRepo) GetByJID(ctx context.Context, tenantID, chatJID string) (*domainContact.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactKey(tenantID, chatJID)]
	if !ok {
		return nil, errors.New("contact not found")
	}
	copied := *c
	return &copied, nil
}

func (r *fakeContactRepo) Exists(ctx context.Context, tenantID, chatJID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.contacts[contactKey(tenantID, chatJID)]
	return ok, nil
}

func (r *fakeContactRepo) AddTags(ctx context.Context, tenantID, chatJID string, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactKey(tenantID, chatJID)]
	if !ok {
		return errors.New("contact not found")
	}
	seen := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		seen[t] = struct{}{}
	}
	for _, t := range tags {
		if _, dup := seen[t]; !dup {
			c.Tags = append(c.Tags, t)
			seen[t] = struct{}{}
		}
	}
	return nil
}

func (r *fakeContactRepo) Find(ctx context.Context, tenantID string, filter domainContact.Filter, targetAll bool) ([]domainContact.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if filter.IsEmpty() && !targetAll {
		return nil, nil
	}

	var out []domainContact.Contact
	for _, c := range r.contacts {
		if c.TenantID != tenantID {
			continue
		}
		if !contactMatchesFilter(*c, filter) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatJID < out[j].ChatJID })
	return out, nil
}

func contactMatchesFilter(c domainContact.Contact, f domainContact.Filter) bool {
	for _, wanted := range f.Tags {
		found := false
		for _, t := range c.Tags {
			if t == wanted {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Gender != "" && c.Gender != f.Gender {
		return false
	}
	if f.City != "" && c.City != f.City {
		return false
	}
	if f.State != "" && c.State != f.State {
		return false
	}
	if f.University != "" && c.University != f.University {
		return false
	}
	if f.Course != "" && c.Course != f.Course {
		return false
	}
	return true
}

type fakeTriggerRepo struct {
	mu    sync.Mutex
	rules []domainTrigger.Rule
}

func newFakeTriggerRepo() *fakeTriggerRepo { return &fakeTriggerRepo{} }

func (r *fakeTriggerRepo) Init(ctx context.Context) error { return nil }

func (r *fakeTriggerRepo) Save(ctx context.Context, rule *domainTrigger.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	for i := range r.rules {
		if r.rules[i].ID == rule.ID {
			r.rules[i] = *rule
			return nil
		}
	}
	r.rules = append(r.rules, *rule)
	return nil
}

func (r *fakeTriggerRepo) Delete(ctx context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rules {
		if r.rules[i].TenantID == tenantID && r.rules[i].ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeTriggerRepo) ActiveByTenant(ctx context.Context, tenantID string) ([]domainTrigger.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainTrigger.Rule
	for _, rule := range r.rules {
		if rule.TenantID == tenantID && rule.Active {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (r *fakeTriggerRepo) ListByTenant(ctx context.Context, tenantID string) ([]domainTrigger.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainTrigger.Rule
	for _, rule := range r.rules {
		if rule.TenantID == tenantID {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

type fakeCampaignRepo struct {
	mu         sync.Mutex
	campaigns  map[string]*domainCampaign.Campaign
	recipients map[string][]*domainCampaign.Recipient // por campaña
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns:  make(map[string]*domainCampaign.Campaign),
		recipients: make(map[string][]*domainCampaign.Recipient),
	}
}

func (r *fakeCampaignRepo) Init(ctx context.Context) error { return nil }

func (r *fakeCampaignRepo) Create(ctx context.Context, c *domainCampaign.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = domainCampaign.StatusDraft
	}
	copied := *c
	r.campaigns[c.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) GetByID(ctx context.Context, tenantID, id string) (*domainCampaign.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return nil, errors.New("campaign not found")
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCampaignRepo) ListByTenant(ctx context.Context, tenantID string) ([]domainCampaign.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainCampaign.Campaign
	for _, c := range r.campaigns {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) GetStatus(ctx context.Context, id string) (domainCampaign.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return "", errors.New("campaign not found")
	}
	return c.Status, nil
}

func (r *fakeCampaignRepo) SetStatus(ctx context.Context, id string, status domainCampaign.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = status
	}
	return nil
}

func (r *fakeCampaignRepo) SetRunning(ctx context.Context, id string, total int, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = domainCampaign.StatusRunning
		c.Total = total
		c.StartedAt = &startedAt
	}
	return nil
}

func (r *fakeCampaignRepo) Finish(ctx context.Context, id string, sent, failed int, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return errors.New("campaign not found")
	}
	c.SentCount = sent
	c.FailedCount = failed
	c.CompletedAt = &completedAt
	if c.Status == domainCampaign.StatusRunning {
		c.Status = domainCampaign.StatusCompleted
	}
	return nil
}

func (r *fakeCampaignRepo) MaterializeRecipients(ctx context.Context, campaignID string, jids []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := make(map[string]struct{})
	for _, rec := range r.recipients[campaignID] {
		existing[rec.ChatJID] = struct{}{}
	}
	inserted := 0
	for _, jid := range jids {
		if _, dup := existing[jid]; dup {
			continue
		}
		existing[jid] = struct{}{}
		r.recipients[campaignID] = append(r.recipients[campaignID], &domainCampaign.Recipient{
			ID:         uuid.NewString(),
			CampaignID: campaignID,
			ChatJID:    jid,
			Status:     domainCampaign.RecipientPending,
			CreatedAt:  time.Now().UTC(),
		})
		inserted++
	}
	return inserted, nil
}

func (r *fakeCampaignRepo) PendingRecipients(ctx context.Context, campaignID string) ([]domainCampaign.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainCampaign.Recipient
	for _, rec := range r.recipients[campaignID] {
		if rec.Status == domainCampaign.RecipientPending {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeCampaignRepo) MarkRecipientSent(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, recs := range r.recipients {
		for _, rec := range recs {
			if rec.ID == id {
				rec.Status = domainCampaign.RecipientSent
				rec.SentAt = &at
			}
		}
	}
	return nil
}

func (r *fakeCampaignRepo) MarkRecipientFailed(ctx context.Context, id string, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, recs := range r.recipients {
		for _, rec := range recs {
			if rec.ID == id {
				rec.Status = domainCampaign.RecipientFailed
				rec.Error = errText
			}
		}
	}
	return nil
}

func (r *fakeCampaignRepo) RecipientCounts(ctx context.Context, campaignID string) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sent, failed := 0, 0
	for _, rec := range r.recipients[campaignID] {
		switch rec.Status {
		case domainCampaign.RecipientSent:
			sent++
		case domainCampaign.RecipientFailed:
			failed++
		}
	}
	return sent, failed, nil
}

func (r *fakeCampaignRepo) RunningCampaigns(ctx context.Context) ([]domainCampaign.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domainCampaign.Campaign
	for _, c := range r.campaigns {
		if c.Status == domainCampaign.StatusRunning {
			out = append(out, *c)
		}
	}
	return out, nil
}

type sentRecord struct {
	ChatJID string
	Text    string
	Media   bool
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentRecord
	failJID map[string]struct{}
	nextID  int
}

func newFakeSender() *fakeSender {
	return &fakeSender{failJID: make(map[string]struct{})}
}

func (s *fakeSender) failFor(jid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failJID[jid] = struct{}{}
}

func (s *fakeSender) SendText(ctx context.Context, req domainSend.TextRequest) (string, error) {
	return s.record(req.ChatJID, req.Text, false)
}

func (s *fakeSender) SendMedia(ctx context.Context, req domainSend.MediaRequest) (string, error) {
	return s.record(req.ChatJID, req.Caption, true)
}

func (s *fakeSender) record(chatJID, text string, media bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, fail := s.failJID[chatJID]; fail {
		return "", errors.New("gateway rejected send")
	}
	s.nextID++
	s.sent = append(s.sent, sentRecord{ChatJID: chatJID, Text: text, Media: media})
	return fmt.Sprintf("SENT-%d", s.nextID), nil
}

func (s *fakeSender) sentTo() []sentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentRecord, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakeFanout struct {
	mu            sync.Mutex
	notifications []domainEvent.Notification
}

func (f *fakeFanout) Publish(n domainEvent.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
}

func (f *fakeFanout) byCode(code string) []domainEvent.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domainEvent.Notification
	for _, n := range f.notifications {
		if n.Code == code {
			out = append(out, n)
		}
	}
	return out
}

type fakeResponder struct {
	reply     string
	err       error
	failFirst bool // only the first call errors, the rest succeed
	calls     int
}

func (r *fakeResponder) Reply(ctx context.Context, req domainBot.ReplyRequest) (string, error) {
	r.calls++
	if r.failFirst && r.calls == 1 {
		return "", errors.New("responder temporarily unavailable")
	}
	if r.err != nil {
		return "", r.err
	}
	return r.reply, nil
}
