package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	"github.com/AzielCF/az-flow/validations"
	"github.com/sirupsen/logrus"
)

type serviceTrigger struct {
	repo domainTrigger.ITriggerRepository
}

func NewTriggerService(repo domainTrigger.ITriggerRepository) domainTrigger.ITriggerUsecase {
	return &serviceTrigger{repo: repo}
}

func (service serviceTrigger) Save(ctx context.Context, rule *domainTrigger.Rule) error {
	if err := validations.ValidateTriggerRule(ctx, *rule); err != nil {
		return err
	}
	return service.repo.Save(ctx, rule)
}

func (service serviceTrigger) Delete(ctx context.Context, tenantID, id string) error {
	return service.repo.Delete(ctx, tenantID, id)
}

func (service serviceTrigger) List(ctx context.Context, tenantID string) ([]domainTrigger.Rule, error) {
	return service.repo.ListByTenant(ctx, tenantID)
}

func (service serviceTrigger) Evaluate(ctx context.Context, tenantID string, mctx domainTrigger.MatchContext) ([]domainTrigger.Rule, error) {
	rules, err := service.repo.ActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var matched []domainTrigger.Rule
	for _, rule := range rules {
		if ruleMatches(rule, mctx) {
			matched = append(matched, rule)
		}
	}

	if len(matched) > 0 {
		logrus.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"matched":   len(matched),
			"evaluated": len(rules),
		}).Debug("[TRIGGERS] Rules matched")
	}
	return matched, nil
}

// ruleMatches evalúa una regla contra el contexto del mensaje. Una regla con
// configuración corrupta nunca matchea.
func ruleMatches(rule domainTrigger.Rule, mctx domainTrigger.MatchContext) bool {
	switch rule.Kind {
	case domainTrigger.KindAlways:
		return true

	case domainTrigger.KindTimeRange:
		var cfg domainTrigger.TimeRangeConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return false
		}
		return timeRangeMatches(cfg, mctx.Now)

	case domainTrigger.KindKeyword:
		var cfg domainTrigger.KeywordConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return false
		}
		return keywordMatches(cfg, mctx.MessageText)

	case domainTrigger.KindFirstMessage:
		var cfg domainTrigger.FirstMessageConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return false
		}
		if !mctx.IsFirstMessage {
			return false
		}
		if cfg.RequireNeverSeen && !mctx.ContactNeverSeen {
			return false
		}
		return true

	case domainTrigger.KindOwnerInactivity:
		var cfg domainTrigger.OwnerInactivityConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return false
		}
		// Sin actividad registrada del dueño la regla siempre aplica.
		if mctx.OwnerLastActiveAt == nil {
			return true
		}
		threshold := time.Duration(cfg.ThresholdMinutes) * time.Minute
		return mctx.Now.Sub(*mctx.OwnerLastActiveAt) >= threshold
	}
	return false
}

// timeRangeMatches handles ranges crossing midnight: 22-6 covers 23h and 2h
// but not 10h. An identical start and end hour covers the whole day.
func timeRangeMatches(cfg domainTrigger.TimeRangeConfig, now time.Time) bool {
	if len(cfg.Days) > 0 {
		dayOK := false
		for _, d := range cfg.Days {
			if int(now.Weekday()) == d {
				dayOK = true
				break
			}
		}
		if !dayOK {
			return false
		}
	}

	hour := now.Hour()
	switch {
	case cfg.StartHour == cfg.EndHour:
		return true
	case cfg.StartHour < cfg.EndHour:
		return hour >= cfg.StartHour && hour < cfg.EndHour
	default:
		return hour >= cfg.StartHour || hour < cfg.EndHour
	}
}

func keywordMatches(cfg domainTrigger.KeywordConfig, text string) bool {
	if len(cfg.Keywords) == 0 {
		return false
	}
	lower := strings.ToLower(text)

	if cfg.Mode == "all" {
		for _, kw := range cfg.Keywords {
			if !strings.Contains(lower, strings.ToLower(kw)) {
				return false
			}
		}
		return true
	}

	for _, kw := range cfg.Keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// Apply folds the matched rules over the base response. The highest-priority
// replace wins and discards the base text; prefixes and suffixes compose
// around whatever text remains. Side-effect actions accumulate.
func (service serviceTrigger) Apply(matched []domainTrigger.Rule, baseResponse string) domainTrigger.ActionResult {
	result := domainTrigger.ActionResult{ResponseText: baseResponse}

	// Primera pasada: el replace de mayor prioridad fija el texto base.
	for _, rule := range matched {
		if rule.ActionKind != domainTrigger.ActionReplaceResponse {
			continue
		}
		var cfg domainTrigger.ReplaceConfig
		if err := json.Unmarshal(rule.ActionConfig, &cfg); err != nil {
			continue
		}
		result.ResponseText = cfg.Text
		result.ResponseReplaced = true
		break
	}

	seenTags := make(map[string]struct{})
	for _, rule := range matched {
		switch rule.ActionKind {
		case domainTrigger.ActionPrefixResponse:
			var cfg domainTrigger.AffixConfig
			if err := json.Unmarshal(rule.ActionConfig, &cfg); err == nil && cfg.Text != "" {
				result.ResponseText = joinLines(cfg.Text, result.ResponseText)
			}
		case domainTrigger.ActionSuffixResponse:
			var cfg domainTrigger.AffixConfig
			if err := json.Unmarshal(rule.ActionConfig, &cfg); err == nil && cfg.Text != "" {
				result.ResponseText = joinLines(result.ResponseText, cfg.Text)
			}
		case domainTrigger.ActionSendMessage:
			var cfg domainTrigger.SendMessageConfig
			if err := json.Unmarshal(rule.ActionConfig, &cfg); err == nil && cfg.Text != "" {
				result.StandaloneMessages = append(result.StandaloneMessages, cfg.Text)
			}
		case domainTrigger.ActionForwardToOwner:
			result.ForwardToOwner = true
		case domainTrigger.ActionTagContact:
			var cfg domainTrigger.TagConfig
			if err := json.Unmarshal(rule.ActionConfig, &cfg); err == nil {
				for _, tag := range cfg.Tags {
					if _, dup := seenTags[tag]; dup {
						continue
					}
					seenTags[tag] = struct{}{}
					result.Tags = append(result.Tags, tag)
				}
			}
		}
	}
	return result
}

// joinLines une dos fragmentos con salto de línea, tolerando vacíos.
func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
