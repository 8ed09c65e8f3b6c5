package usecase

import (
	"encoding/json"
	"testing"
	"time"

	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// atHour construye un instante de un día y hora concretos (UTC).
func atHour(weekday time.Weekday, hour int) time.Time {
	// 2026-09-06 es domingo
	base := time.Date(2026, 9, 6, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(weekday)).Add(time.Duration(hour) * time.Hour)
}

func TestTimeRangeMatches_CrossesMidnight(t *testing.T) {
	cfg := domainTrigger.TimeRangeConfig{StartHour: 22, EndHour: 6}

	assert.True(t, timeRangeMatches(cfg, atHour(time.Monday, 23)), "23h entra en 22-6")
	assert.True(t, timeRangeMatches(cfg, atHour(time.Monday, 2)), "2h entra en 22-6")
	assert.False(t, timeRangeMatches(cfg, atHour(time.Monday, 10)), "10h queda fuera de 22-6")
}

func TestTimeRangeMatches_NormalRange(t *testing.T) {
	cfg := domainTrigger.TimeRangeConfig{StartHour: 9, EndHour: 17}

	assert.True(t, timeRangeMatches(cfg, atHour(time.Tuesday, 9)))
	assert.True(t, timeRangeMatches(cfg, atHour(time.Tuesday, 16)))
	assert.False(t, timeRangeMatches(cfg, atHour(time.Tuesday, 17)), "la hora final es exclusiva")
	assert.False(t, timeRangeMatches(cfg, atHour(time.Tuesday, 8)))
}

func TestTimeRangeMatches_DayFilter(t *testing.T) {
	cfg := domainTrigger.TimeRangeConfig{
		Days:      []int{int(time.Saturday), int(time.Sunday)},
		StartHour: 0,
		EndHour:   0, // rango completo del día
	}

	assert.True(t, timeRangeMatches(cfg, atHour(time.Saturday, 15)))
	assert.True(t, timeRangeMatches(cfg, atHour(time.Sunday, 3)))
	assert.False(t, timeRangeMatches(cfg, atHour(time.Wednesday, 15)))
}

func TestKeywordMatches_AnyMode(t *testing.T) {
	cfg := domainTrigger.KeywordConfig{Keywords: []string{"preço", "valor"}, Mode: "any"}

	assert.True(t, keywordMatches(cfg, "Qual o PREÇO do produto?"), "el match ignora mayúsculas")
	assert.True(t, keywordMatches(cfg, "me passa o valor"))
	assert.False(t, keywordMatches(cfg, "bom dia"))
}

func TestKeywordMatches_AllMode(t *testing.T) {
	cfg := domainTrigger.KeywordConfig{Keywords: []string{"preço", "valor"}, Mode: "all"}

	assert.True(t, keywordMatches(cfg, "qual o preço e o valor total?"))
	assert.False(t, keywordMatches(cfg, "qual o preço?"), "en modo all deben aparecer todas")
}

func TestRuleMatches_FirstMessage(t *testing.T) {
	rule := domainTrigger.Rule{
		Kind:   domainTrigger.KindFirstMessage,
		Config: mustJSON(t, domainTrigger.FirstMessageConfig{RequireNeverSeen: true}),
	}

	assert.True(t, ruleMatches(rule, domainTrigger.MatchContext{IsFirstMessage: true, ContactNeverSeen: true}))
	assert.False(t, ruleMatches(rule, domainTrigger.MatchContext{IsFirstMessage: true, ContactNeverSeen: false}),
		"require_never_seen exige contacto desconocido")
	assert.False(t, ruleMatches(rule, domainTrigger.MatchContext{IsFirstMessage: false, ContactNeverSeen: true}))
}

func TestRuleMatches_OwnerInactivity(t *testing.T) {
	rule := domainTrigger.Rule{
		Kind:   domainTrigger.KindOwnerInactivity,
		Config: mustJSON(t, domainTrigger.OwnerInactivityConfig{ThresholdMinutes: 30}),
	}
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	// Sin registro de actividad la regla aplica
	assert.True(t, ruleMatches(rule, domainTrigger.MatchContext{Now: now}))

	recent := now.Add(-10 * time.Minute)
	assert.False(t, ruleMatches(rule, domainTrigger.MatchContext{Now: now, OwnerLastActiveAt: &recent}))

	stale := now.Add(-45 * time.Minute)
	assert.True(t, ruleMatches(rule, domainTrigger.MatchContext{Now: now, OwnerLastActiveAt: &stale}))
}

func TestRuleMatches_CorruptConfigNeverMatches(t *testing.T) {
	rule := domainTrigger.Rule{
		Kind:   domainTrigger.KindKeyword,
		Config: json.RawMessage(`{not json`),
	}
	assert.False(t, ruleMatches(rule, domainTrigger.MatchContext{MessageText: "hola"}))
}

func TestApply_HighestPriorityReplaceWins(t *testing.T) {
	service := serviceTrigger{}

	// Las reglas llegan ordenadas por prioridad descendente
	matched := []domainTrigger.Rule{
		{
			ActionKind:   domainTrigger.ActionReplaceResponse,
			ActionConfig: mustJSON(t, domainTrigger.ReplaceConfig{Text: "respuesta ganadora"}),
			Priority:     10,
		},
		{
			ActionKind:   domainTrigger.ActionReplaceResponse,
			ActionConfig: mustJSON(t, domainTrigger.ReplaceConfig{Text: "respuesta perdedora"}),
			Priority:     5,
		},
	}

	result := service.Apply(matched, "texto base")
	assert.True(t, result.ResponseReplaced)
	assert.Equal(t, "respuesta ganadora", result.ResponseText)
}

func TestApply_AffixesCompose(t *testing.T) {
	service := serviceTrigger{}

	matched := []domainTrigger.Rule{
		{
			ActionKind:   domainTrigger.ActionPrefixResponse,
			ActionConfig: mustJSON(t, domainTrigger.AffixConfig{Text: "Hola!"}),
		},
		{
			ActionKind:   domainTrigger.ActionSuffixResponse,
			ActionConfig: mustJSON(t, domainTrigger.AffixConfig{Text: "Atentamente, el equipo"}),
		},
	}

	result := service.Apply(matched, "cuerpo")
	assert.False(t, result.ResponseReplaced)
	assert.Equal(t, "Hola!\ncuerpo\nAtentamente, el equipo", result.ResponseText)
}

func TestApply_AffixesWrapReplacedText(t *testing.T) {
	service := serviceTrigger{}

	matched := []domainTrigger.Rule{
		{
			ActionKind:   domainTrigger.ActionReplaceResponse,
			ActionConfig: mustJSON(t, domainTrigger.ReplaceConfig{Text: "fijo"}),
		},
		{
			ActionKind:   domainTrigger.ActionSuffixResponse,
			ActionConfig: mustJSON(t, domainTrigger.AffixConfig{Text: "pd"}),
		},
	}

	result := service.Apply(matched, "se descarta")
	assert.Equal(t, "fijo\npd", result.ResponseText)
}

func TestApply_SideEffectActions(t *testing.T) {
	service := serviceTrigger{}

	matched := []domainTrigger.Rule{
		{
			ActionKind:   domainTrigger.ActionSendMessage,
			ActionConfig: mustJSON(t, domainTrigger.SendMessageConfig{Text: "mensaje suelto"}),
		},
		{
			ActionKind: domainTrigger.ActionForwardToOwner,
		},
		{
			ActionKind:   domainTrigger.ActionTagContact,
			ActionConfig: mustJSON(t, domainTrigger.TagConfig{Tags: []string{"lead", "lead", "vip"}}),
		},
	}

	result := service.Apply(matched, "")
	assert.Equal(t, []string{"mensaje suelto"}, result.StandaloneMessages)
	assert.True(t, result.ForwardToOwner)
	assert.Equal(t, []string{"lead", "vip"}, result.Tags, "los tags se deduplican")
	assert.Empty(t, result.ResponseText)
}
