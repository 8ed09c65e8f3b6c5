package validations

import (
	"context"
	"encoding/json"

	domainTrigger "github.com/AzielCF/az-flow/domains/trigger"
	pkgError "github.com/AzielCF/az-flow/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateTriggerRule(ctx context.Context, rule domainTrigger.Rule) error {
	err := validation.ValidateStructWithContext(ctx, &rule,
		validation.Field(&rule.TenantID, validation.Required),
		validation.Field(&rule.Name, validation.Required),
		validation.Field(&rule.Kind, validation.Required, validation.In(
			domainTrigger.KindTimeRange,
			domainTrigger.KindKeyword,
			domainTrigger.KindFirstMessage,
			domainTrigger.KindOwnerInactivity,
			domainTrigger.KindAlways,
		)),
		validation.Field(&rule.ActionKind, validation.Required, validation.In(
			domainTrigger.ActionSendMessage,
			domainTrigger.ActionPrefixResponse,
			domainTrigger.ActionSuffixResponse,
			domainTrigger.ActionReplaceResponse,
			domainTrigger.ActionForwardToOwner,
			domainTrigger.ActionTagContact,
		)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if err := validateTriggerConfig(ctx, rule); err != nil {
		return err
	}
	return validateActionConfig(ctx, rule)
}

func validateTriggerConfig(ctx context.Context, rule domainTrigger.Rule) error {
	switch rule.Kind {
	case domainTrigger.KindTimeRange:
		var cfg domainTrigger.TimeRangeConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return pkgError.ValidationError("config: invalid time_range payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.StartHour, validation.Min(0), validation.Max(23)),
			validation.Field(&cfg.EndHour, validation.Min(0), validation.Max(23)),
			validation.Field(&cfg.Days, validation.Each(validation.Min(0), validation.Max(6))),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	case domainTrigger.KindKeyword:
		var cfg domainTrigger.KeywordConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return pkgError.ValidationError("config: invalid keyword payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.Keywords, validation.Required, validation.Length(1, 0)),
			validation.Field(&cfg.Mode, validation.Required, validation.In("any", "all")),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	case domainTrigger.KindOwnerInactivity:
		var cfg domainTrigger.OwnerInactivityConfig
		if err := json.Unmarshal(rule.Config, &cfg); err != nil {
			return pkgError.ValidationError("config: invalid owner_inactivity payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.ThresholdMinutes, validation.Required, validation.Min(1)),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	}
	return nil
}

func validateActionConfig(ctx context.Context, rule domainTrigger.Rule) error {
	switch rule.ActionKind {
	case domainTrigger.ActionSendMessage:
		var cfg domainTrigger.SendMessageConfig
		if err := json.Unmarshal(rule.ActionConfig, &cfg); err != nil {
			return pkgError.ValidationError("action_config: invalid send_message payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.Text, validation.Required),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	case domainTrigger.ActionPrefixResponse, domainTrigger.ActionSuffixResponse:
		var cfg domainTrigger.AffixConfig
		if err := json.Unmarshal(rule.ActionConfig, &cfg); err != nil {
			return pkgError.ValidationError("action_config: invalid payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.Text, validation.Required),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	case domainTrigger.ActionReplaceResponse:
		var cfg domainTrigger.ReplaceConfig
		if err := json.Unmarshal(rule.ActionConfig, &cfg); err != nil {
			return pkgError.ValidationError("action_config: invalid replace payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.Text, validation.Required),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	case domainTrigger.ActionTagContact:
		var cfg domainTrigger.TagConfig
		if err := json.Unmarshal(rule.ActionConfig, &cfg); err != nil {
			return pkgError.ValidationError("action_config: invalid tag payload")
		}
		err := validation.ValidateStructWithContext(ctx, &cfg,
			validation.Field(&cfg.Tags, validation.Required, validation.Length(1, 0)),
		)
		if err != nil {
			return pkgError.ValidationError(err.Error())
		}
	}
	return nil
}
