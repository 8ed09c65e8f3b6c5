package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainMessage "github.com/AzielCF/az-flow/domains/message"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	"github.com/AzielCF/az-flow/pkg/msgworker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []msgworker.Job
}

func (e *fakeEnqueuer) Enqueue(job msgworker.Job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, job)
	return true
}

func (e *fakeEnqueuer) enqueued() []msgworker.Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]msgworker.Job, len(e.jobs))
	copy(out, e.jobs)
	return out
}

type ingestFixture struct {
	tenantRepo  *fakeTenantRepo
	messageRepo *fakeMessageRepo
	contactRepo *fakeContactRepo
	pool        *fakeEnqueuer
	fanout      *fakeFanout
	service     domainEvent.IIngestUsecase
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	f := &ingestFixture{
		tenantRepo:  newFakeTenantRepo(),
		messageRepo: newFakeMessageRepo(),
		contactRepo: newFakeContactRepo(),
		pool:        &fakeEnqueuer{},
		fanout:      &fakeFanout{},
	}
	require.NoError(t, f.tenantRepo.CreateInstance(context.Background(), &domainTenant.Instance{
		ID:       "inst-db-id",
		TenantID: "tenant-1",
		Key:      "inst-key",
		Status:   domainTenant.InstanceConnected,
	}))

	backfill := NewBackfillService(f.messageRepo, f.fanout, 100)
	f.service = NewIngestService(f.tenantRepo, f.messageRepo, f.contactRepo, backfill, f.pool, f.fanout)
	return f
}

func gatewayEvent(t *testing.T, kind string, data any) domainEvent.InboundEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return domainEvent.InboundEvent{Event: kind, Instance: "inst-key", Data: raw}
}

func TestIngest_UnknownInstanceIsDroppedSilently(t *testing.T) {
	f := newIngestFixture(t)

	ev := gatewayEvent(t, domainEvent.KindMessagesUpsert, []domainEvent.RawMessage{{
		Key:     domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "MSG-1"},
		Message: &domainEvent.MessageContent{Conversation: "hola"},
	}})
	ev.Instance = "instancia-desconocida"

	err := f.service.HandleEvent(context.Background(), ev)
	require.NoError(t, err, "el webhook nunca debe reintentar por instancia desconocida")
	assert.Empty(t, f.pool.enqueued())
}

func TestIngest_UpsertEnqueuesLiveMessages(t *testing.T) {
	f := newIngestFixture(t)

	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindMessagesUpsert, []domainEvent.RawMessage{
		{
			Key:              domainEvent.MessageKey{RemoteJID: "5511988880000@s.whatsapp.net", ID: "MSG-1"},
			PushName:         "Cliente",
			MessageTimestamp: 1756700000,
			Message:          &domainEvent.MessageContent{Conversation: "hola"},
		},
		{
			Key:     domainEvent.MessageKey{RemoteJID: "1203630000000000@g.us", ID: "MSG-2", Participant: "5511977770000@s.whatsapp.net"},
			Message: &domainEvent.MessageContent{ExtendedTextMessage: &domainEvent.ExtendedTextMessage{Text: "en grupo"}},
		},
	}))
	require.NoError(t, err)

	jobs := f.pool.enqueued()
	require.Len(t, jobs, 2)

	assert.Equal(t, "inst-key", jobs[0].InstanceKey)
	assert.Equal(t, "hola", jobs[0].Content)
	assert.Equal(t, "Cliente", jobs[0].SenderName)
	assert.False(t, jobs[0].IsGroup)

	assert.Equal(t, "en grupo", jobs[1].Content)
	assert.True(t, jobs[1].IsGroup)
	assert.Equal(t, "5511977770000@s.whatsapp.net", jobs[1].Participant)
}

func TestIngest_UpsertToleratesSingleObjectPayload(t *testing.T) {
	f := newIngestFixture(t)

	// Algunas versiones del gateway entregan el upsert como objeto único
	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindMessagesUpsert, domainEvent.RawMessage{
		Key:     domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "MSG-1"},
		Message: &domainEvent.MessageContent{Conversation: "hola"},
	}))
	require.NoError(t, err)
	assert.Len(t, f.pool.enqueued(), 1)
}

func TestIngest_UpsertSkipsUnsupportedContent(t *testing.T) {
	f := newIngestFixture(t)

	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindMessagesUpsert, []domainEvent.RawMessage{
		{Key: domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "MSG-1"}}, // sin contenido
		{Key: domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net"}, Message: &domainEvent.MessageContent{Conversation: "sin id"}},
		{
			Key:     domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "MSG-3"},
			Message: &domainEvent.MessageContent{ImageMessage: &domainEvent.MediaMessage{URL: "https://cdn/x.jpg", Caption: "mira"}},
		},
	}))
	require.NoError(t, err)

	jobs := f.pool.enqueued()
	require.Len(t, jobs, 1)
	assert.Equal(t, "MSG-3", jobs[0].MessageID)
	assert.Equal(t, "mira", jobs[0].Content)
	assert.Equal(t, "image", jobs[0].MediaKind)
}

func TestIngest_HistorySetRunsBackfillInBackground(t *testing.T) {
	f := newIngestFixture(t)

	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindMessagesSet, domainEvent.HistorySet{
		Messages: []domainEvent.RawMessage{
			{
				Key:     domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "HIST-1"},
				Message: &domainEvent.MessageContent{Conversation: "histórico"},
			},
		},
	}))
	require.NoError(t, err)

	// El volcado se archiva fuera del ciclo del webhook
	deadline := time.Now().Add(2 * time.Second)
	for len(f.messageRepo.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stored := f.messageRepo.all()
	require.Len(t, stored, 1)
	assert.Equal(t, "HIST-1", stored[0].MessageID)
	assert.Empty(t, f.pool.enqueued(), "el historial nunca pasa por el worker pool")
}

func TestIngest_StatusUpdateAdvancesLifecycle(t *testing.T) {
	f := newIngestFixture(t)
	require.NoError(t, f.messageRepo.Create(context.Background(), &domainMessage.Message{
		MessageID:  "MSG-1",
		InstanceID: "inst-db-id",
		ChatJID:    "x@s.whatsapp.net",
		Direction:  domainMessage.DirectionOutgoing,
		Status:     domainMessage.StatusSent,
	}))

	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindMessagesUpdate, []domainEvent.StatusUpdate{
		{Key: domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "MSG-1"}, Status: 4},
	}))
	require.NoError(t, err)

	stored := f.messageRepo.all()
	require.Len(t, stored, 1)
	assert.Equal(t, domainMessage.StatusRead, stored[0].Status)
	assert.Len(t, f.fanout.byCode(domainEvent.CodeMessageUpdate), 1)
}

func TestIngest_ContactsUpsertSkipsGroups(t *testing.T) {
	f := newIngestFixture(t)

	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindContactsUpsert, []domainEvent.ContactUpdate{
		{JID: "5511988880000@s.whatsapp.net", PushName: "Cliente"},
		{JID: "1203630000000000@g.us", PushName: "Grupo de ventas"},
	}))
	require.NoError(t, err)

	exists, err := f.contactRepo.Exists(context.Background(), "tenant-1", "5511988880000@s.whatsapp.net")
	require.NoError(t, err)
	assert.True(t, exists)

	groupExists, err := f.contactRepo.Exists(context.Background(), "tenant-1", "1203630000000000@g.us")
	require.NoError(t, err)
	assert.False(t, groupExists)

	assert.Len(t, f.fanout.byCode(domainEvent.CodeContactsUpdate), 1)
}

func TestIngest_ConnectionUpdateTracksInstanceState(t *testing.T) {
	f := newIngestFixture(t)

	err := f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindConnectionUpdate, domainEvent.ConnectionUpdate{State: "close"}))
	require.NoError(t, err)

	instance, err := f.tenantRepo.GetInstanceByKey(context.Background(), "inst-key")
	require.NoError(t, err)
	assert.Equal(t, domainTenant.InstanceDisconnected, instance.Status)

	err = f.service.HandleEvent(context.Background(), gatewayEvent(t, domainEvent.KindConnectionUpdate, domainEvent.ConnectionUpdate{State: "open"}))
	require.NoError(t, err)

	instance, err = f.tenantRepo.GetInstanceByKey(context.Background(), "inst-key")
	require.NoError(t, err)
	assert.Equal(t, domainTenant.InstanceConnected, instance.Status)

	assert.Len(t, f.fanout.byCode(domainEvent.CodeConnectionUpdate), 2)
}

func TestIngest_UnknownEventKindIsIgnored(t *testing.T) {
	f := newIngestFixture(t)

	err := f.service.HandleEvent(context.Background(), domainEvent.InboundEvent{
		Event:    "call.offer",
		Instance: "inst-key",
		Data:     json.RawMessage(`{}`),
	})
	assert.NoError(t, err)
	assert.Empty(t, f.pool.enqueued())
}
