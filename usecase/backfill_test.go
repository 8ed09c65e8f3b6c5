package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	domainEvent "github.com/AzielCF/az-flow/domains/event"
	domainMessage "github.com/AzielCF/az-flow/domains/message"
	domainTenant "github.com/AzielCF/az-flow/domains/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingMessageRepo cuenta las consultas de lookup para verificar que el
// backfill resuelve los ids conocidos en un solo batch.
type countingMessageRepo struct {
	*fakeMessageRepo
	findCalls int64
}

func (r *countingMessageRepo) FindExistingIDs(ctx context.Context, instanceID string, ids []string) (map[string]struct{}, error) {
	atomic.AddInt64(&r.findCalls, 1)
	return r.fakeMessageRepo.FindExistingIDs(ctx, instanceID, ids)
}

func historyDump(n int) domainEvent.HistorySet {
	var set domainEvent.HistorySet
	for i := 0; i < n; i++ {
		set.Messages = append(set.Messages, domainEvent.RawMessage{
			Key: domainEvent.MessageKey{
				RemoteJID: "5511999990000@s.whatsapp.net",
				ID:        fmt.Sprintf("HIST-%d", i),
				FromMe:    i%2 == 0,
			},
			PushName:         "Cliente",
			MessageTimestamp: 1756700000 + int64(i),
			Message:          &domainEvent.MessageContent{Conversation: fmt.Sprintf("mensaje %d", i)},
		})
	}
	return set
}

func backfillInstance() *domainTenant.Instance {
	return &domainTenant.Instance{
		ID:       "inst-db-id",
		TenantID: "tenant-1",
		Key:      "inst-key",
	}
}

func TestBackfill_InsertsOnlyUnknownMessages(t *testing.T) {
	repo := &countingMessageRepo{fakeMessageRepo: newFakeMessageRepo()}
	instance := backfillInstance()

	// Pre-cargar 3 de los 10 mensajes del volcado
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(context.Background(), &domainMessage.Message{
			MessageID:  fmt.Sprintf("HIST-%d", i),
			InstanceID: instance.ID,
			ChatJID:    "5511999990000@s.whatsapp.net",
			Direction:  domainMessage.DirectionIncoming,
		}))
	}

	fanout := &fakeFanout{}
	service := NewBackfillService(repo, fanout, 4)

	err := service.Run(context.Background(), instance, historyDump(10))
	require.NoError(t, err)

	// 10 en el dump, 3 conocidos: 7 nuevos
	assert.Len(t, repo.all(), 10)
	assert.Equal(t, int64(1), atomic.LoadInt64(&repo.findCalls), "los ids conocidos se resuelven con un único lookup")
}

func TestBackfill_ArchivedMessagesNeverTriggerAutomations(t *testing.T) {
	repo := newFakeMessageRepo()
	service := NewBackfillService(repo, nil, 100)

	err := service.Run(context.Background(), backfillInstance(), historyDump(5))
	require.NoError(t, err)

	// Todo lo archivado entra ya como procesado, sin pasar por el pipeline
	for _, msg := range repo.all() {
		assert.Equal(t, domainMessage.StatusProcessed, msg.Status)
	}
	assert.Len(t, repo.byDirection(domainMessage.DirectionOutgoing), 3, "fromMe alternado: índices pares")
	assert.Len(t, repo.byDirection(domainMessage.DirectionIncoming), 2)
}

func TestBackfill_SkipsContentlessAndKeylessMessages(t *testing.T) {
	repo := newFakeMessageRepo()
	service := NewBackfillService(repo, nil, 100)

	set := historyDump(2)
	// Sin contenido soportado
	set.Messages = append(set.Messages, domainEvent.RawMessage{
		Key: domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net", ID: "HIST-EMPTY"},
	})
	// Sin id del gateway
	set.Messages = append(set.Messages, domainEvent.RawMessage{
		Key:     domainEvent.MessageKey{RemoteJID: "x@s.whatsapp.net"},
		Message: &domainEvent.MessageContent{Conversation: "sin id"},
	})

	err := service.Run(context.Background(), backfillInstance(), set)
	require.NoError(t, err)

	assert.Len(t, repo.all(), 2)
}

func TestBackfill_ProgressIsMonotonicAndEndsDone(t *testing.T) {
	repo := newFakeMessageRepo()
	fanout := &fakeFanout{}
	// batchSize 3 sobre 10 mensajes: varios flushes intermedios
	service := NewBackfillService(repo, fanout, 3)

	err := service.Run(context.Background(), backfillInstance(), historyDump(10))
	require.NoError(t, err)

	events := fanout.byCode(domainEvent.CodeHistorySync)
	require.NotEmpty(t, events)

	lastProcessed := -1
	for _, ev := range events {
		payload, ok := ev.Result.(map[string]any)
		require.True(t, ok)

		processed := payload["processed"].(int)
		assert.GreaterOrEqual(t, processed, lastProcessed, "el progreso nunca retrocede")
		lastProcessed = processed
		assert.Equal(t, 10, payload["total"].(int))
	}

	final, ok := events[len(events)-1].Result.(map[string]any)
	require.True(t, ok)
	assert.True(t, final["done"].(bool))
	assert.Equal(t, 10, final["processed"].(int))
	assert.Equal(t, 10, final["inserted"].(int))
}

func TestBackfill_EmptyDumpIsNoop(t *testing.T) {
	repo := &countingMessageRepo{fakeMessageRepo: newFakeMessageRepo()}
	fanout := &fakeFanout{}
	service := NewBackfillService(repo, fanout, 100)

	err := service.Run(context.Background(), backfillInstance(), domainEvent.HistorySet{})
	require.NoError(t, err)

	assert.Empty(t, repo.all())
	assert.Empty(t, fanout.byCode(domainEvent.CodeHistorySync))
	assert.Equal(t, int64(0), atomic.LoadInt64(&repo.findCalls))
}
