package trigger

import (
	"context"
	"encoding/json"
	"time"
)

type Kind string

const (
	KindTimeRange       Kind = "time_range"
	KindKeyword         Kind = "keyword"
	KindFirstMessage    Kind = "first_message"
	KindOwnerInactivity Kind = "owner_inactivity"
	KindAlways          Kind = "always"
)

type ActionKind string

const (
	ActionSendMessage     ActionKind = "send_message"
	ActionPrefixResponse  ActionKind = "prefix_response"
	ActionSuffixResponse  ActionKind = "suffix_response"
	ActionReplaceResponse ActionKind = "replace_response"
	ActionForwardToOwner  ActionKind = "forward_to_owner"
	ActionTagContact      ActionKind = "tag_contact"
)

// Rule is one automation rule of a tenant. Rules are validated at save time;
// the engine treats them as read-only.
type Rule struct {
	ID           string
	TenantID     string
	Name         string
	Description  string
	Kind         Kind
	Config       json.RawMessage
	ActionKind   ActionKind
	ActionConfig json.RawMessage
	Priority     int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Kind-specific configuration payloads.

type TimeRangeConfig struct {
	// Days uses time.Weekday numbering (Sunday = 0).
	Days      []int `json:"days"`
	StartHour int   `json:"start_hour"`
	EndHour   int   `json:"end_hour"`
}

type KeywordConfig struct {
	Keywords []string `json:"keywords"`
	Mode     string   `json:"mode"` // "any" | "all"
}

type FirstMessageConfig struct {
	RequireNeverSeen bool `json:"require_never_seen,omitempty"`
}

type OwnerInactivityConfig struct {
	ThresholdMinutes int `json:"threshold_minutes"`
}

// Action configuration payloads.

type SendMessageConfig struct {
	Text string `json:"text"`
}

type AffixConfig struct {
	Text string `json:"text"`
}

type ReplaceConfig struct {
	Text string `json:"text"`
}

type ForwardConfig struct {
	Note string `json:"note,omitempty"`
}

type TagConfig struct {
	Tags []string `json:"tags"`
}

// MatchContext is the live message context rules are evaluated against.
type MatchContext struct {
	MessageText       string
	IsFirstMessage    bool
	ContactNeverSeen  bool
	OwnerLastActiveAt *time.Time
	Now               time.Time
}

// ActionResult accumulates the effect of every matched rule's action.
type ActionResult struct {
	ResponseText       string
	ResponseReplaced   bool
	StandaloneMessages []string
	ForwardToOwner     bool
	Tags               []string
}

type ITriggerUsecase interface {
	Save(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, tenantID, id string) error
	List(ctx context.Context, tenantID string) ([]Rule, error)
	// Evaluate loads the tenant's active rules and returns the ones matching
	// the context, in descending priority order.
	Evaluate(ctx context.Context, tenantID string, mctx MatchContext) ([]Rule, error)
	// Apply folds the matched rules' actions over the base response text.
	Apply(matched []Rule, baseResponse string) ActionResult
}

type ITriggerRepository interface {
	Init(ctx context.Context) error
	Save(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, tenantID, id string) error
	// ActiveByTenant returns the tenant's active rules sorted by
	// descending priority.
	ActiveByTenant(ctx context.Context, tenantID string) ([]Rule, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Rule, error)
}
