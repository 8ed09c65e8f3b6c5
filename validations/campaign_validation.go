package validations

import (
	"context"

	domainCampaign "github.com/AzielCF/az-flow/domains/campaign"
	pkgError "github.com/AzielCF/az-flow/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func ValidateCreateCampaign(ctx context.Context, campaign domainCampaign.Campaign) error {
	err := validation.ValidateStructWithContext(ctx, &campaign,
		validation.Field(&campaign.TenantID, validation.Required),
		validation.Field(&campaign.Name, validation.Required),
		validation.Field(&campaign.MessageText, validation.Required),
		validation.Field(&campaign.MediaKind, validation.In("image", "video", "audio", "document")),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	// Una campaña sin segmentación explícita debe marcar target_all.
	if !campaign.TargetAll && campaign.Filter.IsEmpty() {
		return pkgError.ValidationError("either target_all or a non-empty filter is required")
	}

	if campaign.MediaURL != "" && campaign.MediaKind == "" {
		return pkgError.ValidationError("media_kind is required when media_url is set")
	}

	f := campaign.Filter
	if f.MinAge != nil && *f.MinAge < 0 {
		return pkgError.ValidationError("filter.min_age: must be no less than 0")
	}
	if f.MaxAge != nil && *f.MaxAge < 0 {
		return pkgError.ValidationError("filter.max_age: must be no less than 0")
	}
	if f.MinAge != nil && f.MaxAge != nil && *f.MinAge > *f.MaxAge {
		return pkgError.ValidationError("filter.min_age: must not exceed filter.max_age")
	}

	return nil
}
