package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type (
	ActionKind string
	CheckKind  string
	RuleKind   string
	TimerKind  string
)

const (
	ActionDelete   ActionKind = "delete"
	ActionKick     ActionKind = "kick"
	ActionBan      ActionKind = "ban"
	ActionTempban  ActionKind = "tempban"
	ActionTempmute ActionKind = "tempmute"
	ActionPoints   ActionKind = "points"

	CheckNone       CheckKind = "none"
	CheckNoRole     CheckKind = "no_role"
	CheckNoAvatar   CheckKind = "no_avatar"
	CheckAccountAge CheckKind = "account_age"
	CheckJoinDate   CheckKind = "join_date"

	RuleInvite    RuleKind = "invite"
	RuleLink      RuleKind = "link"
	RuleCaps      RuleKind = "caps"
	RuleBlacklist RuleKind = "blacklist"
	RuleMention   RuleKind = "mention"

	TimerTempban  TimerKind = "tempban"
	TimerTempmute TimerKind = "tempmute"
)

// MessageRuleKinds lists message rule kinds in classification order.
var MessageRuleKinds = []RuleKind{RuleInvite, RuleLink, RuleCaps}

var allRuleKinds = []RuleKind{RuleInvite, RuleLink, RuleCaps, RuleBlacklist, RuleMention}

type (
	Check struct {
		Kind CheckKind `json:"kind"`
		Days int       `json:"days,omitempty"`
	}

	Action struct {
		Kind            ActionKind `json:"kind"`
		DurationSeconds int64      `json:"duration,omitempty"`
		Points          int        `json:"points,omitempty"`
		Check           *Check     `json:"check,omitempty"`
		RuleID          int64      `json:"rule_id,omitempty"`
	}

	IDSet      []int64
	StringList []string
	ActionList []Action
	LevelRoles []LevelRole
	Payload    map[string]any

	LevelRole struct {
		Role  int64 `json:"role"`
		Level int   `json:"level"`
	}

	// RuleConfig is the per-kind slice of a moderation config.
	RuleConfig struct {
		Kind              RuleKind
		Active            bool
		Actions           ActionList
		WhitelistChannels IDSet
		WhitelistRoles    IDSet
	}

	MaybeWebhook struct {
		ID           int64   `db:"id"`
		GuildID      int64   `db:"guild_id"`
		ChannelID    *int64  `db:"channel_id"`
		WebhookID    *int64  `db:"webhook_id"`
		WebhookToken *string `db:"webhook_token"`
	}

	ModerationConfig struct {
		GuildID        int64      `db:"guild_id"`
		Active         bool       `db:"active"`
		ModRoles       IDSet      `db:"mod_roles"`
		IgnoredRoles   IDSet      `db:"ignored_roles"`
		NotifyUser     bool       `db:"notify_user"`
		AutomodActions ActionList `db:"automod_actions"`
		PointsExpiry   *int64     `db:"points_expiry"`
		LoggingChannel *int64     `db:"logging_channel"`

		InviteActive            bool       `db:"invite_active"`
		InviteActions           ActionList `db:"invite_actions"`
		InviteWhitelistChannels IDSet      `db:"invite_whitelist_channels"`
		InviteWhitelistRoles    IDSet      `db:"invite_whitelist_roles"`
		InviteAllowed           IDSet      `db:"invite_allowed"`

		LinkActive            bool       `db:"link_active"`
		LinkActions           ActionList `db:"link_actions"`
		LinkWhitelistChannels IDSet      `db:"link_whitelist_channels"`
		LinkWhitelistRoles    IDSet      `db:"link_whitelist_roles"`
		LinkList              StringList `db:"link_list"`
		LinkIsWhitelist       bool       `db:"link_is_whitelist"`

		CapsActive            bool       `db:"caps_active"`
		CapsActions           ActionList `db:"caps_actions"`
		CapsWhitelistChannels IDSet      `db:"caps_whitelist_channels"`
		CapsWhitelistRoles    IDSet      `db:"caps_whitelist_roles"`

		BlacklistActive            bool       `db:"blacklist_active"`
		BlacklistActions           ActionList `db:"blacklist_actions"`
		BlacklistWhitelistChannels IDSet      `db:"blacklist_whitelist_channels"`
		BlacklistWhitelistRoles    IDSet      `db:"blacklist_whitelist_roles"`

		MentionActive            bool       `db:"mention_active"`
		MentionActions           ActionList `db:"mention_actions"`
		MentionWhitelistChannels IDSet      `db:"mention_whitelist_channels"`
		MentionWhitelistRoles    IDSet      `db:"mention_whitelist_roles"`

		Webhook *MaybeWebhook `db:"-"`
	}

	ModerationRule struct {
		RuleID  int64  `db:"rule_id"`
		GuildID int64  `db:"guild_id"`
		Reason  string `db:"reason"`
	}

	Punishment struct {
		ID      int64      `db:"id"`
		GuildID int64      `db:"guild_id"`
		Name    string     `db:"name"`
		Reason  *string    `db:"reason"`
		Actions ActionList `db:"actions"`
	}

	Infraction struct {
		ID        int64      `db:"id"`
		GuildID   int64      `db:"guild_id"`
		UserID    int64      `db:"user_id"`
		Points    int        `db:"points"`
		Reason    string     `db:"reason"`
		CreatedAt time.Time  `db:"created_at"`
		ExpiresAt *time.Time `db:"expires_at"`
	}

	Timer struct {
		ID        int64     `db:"id"`
		GuildID   int64     `db:"guild_id"`
		TargetID  int64     `db:"target_id"`
		Kind      TimerKind `db:"kind"`
		ExpiresAt time.Time `db:"expires_at"`
		Payload   Payload   `db:"payload"`
	}

	LoggingSetting struct {
		GuildID        int64  `db:"guild_id"`
		Kind           string `db:"kind"`
		Active         bool   `db:"active"`
		ChannelRef     *int64 `db:"channel"`
		ExemptChannels IDSet  `db:"exempt_channels"`
		ExemptRoles    IDSet  `db:"exempt_roles"`

		Channel *MaybeWebhook `db:"-"`
	}

	LoggingConfig struct {
		GuildID  int64
		Settings map[string]*LoggingSetting
	}

	WelcomeConfig struct {
		GuildID      int64   `db:"guild_id"`
		JoinActive   bool    `db:"join_active"`
		JoinChannel  *int64  `db:"join_channel"`
		JoinRoles    IDSet   `db:"join_roles"`
		JoinMessage  *string `db:"join_message"`
		JoinDM       bool    `db:"join_dm"`
		LeaveActive  bool    `db:"leave_active"`
		LeaveChannel *int64  `db:"leave_channel"`
		LeaveMessage *string `db:"leave_message"`
	}

	LevelingConfig struct {
		GuildID             int64      `db:"guild_id"`
		Message             *string    `db:"message"`
		Channel             *int64     `db:"channel"`
		Roles               LevelRoles `db:"roles"`
		RemoveRoles         bool       `db:"remove_roles"`
		ExemptRole          *int64     `db:"exempt_role"`
		ExemptChannels      IDSet      `db:"exempt_channels"`
		BoosterXPMultiplier *int       `db:"booster_xp_multiplier"`
	}
)

// Rule maps a rule kind onto its typed configuration.
func (c *ModerationConfig) Rule(kind RuleKind) RuleConfig {
	rc := RuleConfig{Kind: kind}
	switch kind {
	case RuleInvite:
		rc.Active, rc.Actions = c.InviteActive, c.InviteActions
		rc.WhitelistChannels, rc.WhitelistRoles = c.InviteWhitelistChannels, c.InviteWhitelistRoles
	case RuleLink:
		rc.Active, rc.Actions = c.LinkActive, c.LinkActions
		rc.WhitelistChannels, rc.WhitelistRoles = c.LinkWhitelistChannels, c.LinkWhitelistRoles
	case RuleCaps:
		rc.Active, rc.Actions = c.CapsActive, c.CapsActions
		rc.WhitelistChannels, rc.WhitelistRoles = c.CapsWhitelistChannels, c.CapsWhitelistRoles
	case RuleBlacklist:
		rc.Active, rc.Actions = c.BlacklistActive, c.BlacklistActions
		rc.WhitelistChannels, rc.WhitelistRoles = c.BlacklistWhitelistChannels, c.BlacklistWhitelistRoles
	case RuleMention:
		rc.Active, rc.Actions = c.MentionActive, c.MentionActions
		rc.WhitelistChannels, rc.WhitelistRoles = c.MentionWhitelistChannels, c.MentionWhitelistRoles
	}
	return rc
}

// HasPointActions reports whether any rule chain can award points.
func (c *ModerationConfig) HasPointActions() bool {
	for _, kind := range allRuleKinds {
		for _, a := range c.Rule(kind).Actions {
			if a.Kind == ActionPoints {
				return true
			}
		}
	}
	return false
}

// Clone returns a copy safe to patch; slices are shared and must not be mutated in place.
func (c *ModerationConfig) Clone() *ModerationConfig {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Webhook != nil {
		wh := *c.Webhook
		cp.Webhook = &wh
	}
	return &cp
}

// PointsExpiryAt returns when infractions created at t stop counting.
func (c *ModerationConfig) PointsExpiryAt(t time.Time, fallback time.Duration) time.Time {
	if c != nil && c.PointsExpiry != nil && *c.PointsExpiry > 0 {
		return t.Add(time.Duration(*c.PointsExpiry) * time.Second)
	}
	return t.Add(fallback)
}

func (a Action) Duration() time.Duration {
	return time.Duration(a.DurationSeconds) * time.Second
}

// Validate enforces the per-kind required fields.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionDelete, ActionKick, ActionBan:
	case ActionTempban, ActionTempmute:
		if a.DurationSeconds <= 0 {
			return fmt.Errorf("action %s requires a duration", a.Kind)
		}
	case ActionPoints:
		if a.Points <= 0 {
			return fmt.Errorf("action %s requires a points weight", a.Kind)
		}
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if a.Check != nil {
		switch a.Check.Kind {
		case CheckNone, CheckNoRole, CheckNoAvatar, "":
		case CheckAccountAge, CheckJoinDate:
			if a.Check.Days <= 0 {
				return fmt.Errorf("check %s requires days", a.Check.Kind)
			}
		default:
			return fmt.Errorf("unknown check kind %q", a.Check.Kind)
		}
	}
	return nil
}

// Valid returns the entries that pass Validate, preserving order.
func (l ActionList) Valid() (ActionList, []error) {
	var errs []error
	out := make(ActionList, 0, len(l))
	for _, a := range l {
		if err := a.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, a)
	}
	return out, errs
}

func (s IDSet) Contains(id int64) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

func (s IDSet) Intersects(ids []int64) bool {
	for _, id := range ids {
		if s.Contains(id) {
			return true
		}
	}
	return false
}

func (l StringList) Contains(v string) bool {
	for _, s := range l {
		if s == v {
			return true
		}
	}
	return false
}

func (s IDSet) Value() (driver.Value, error)      { return jsonValue(s) }
func (l StringList) Value() (driver.Value, error) { return jsonValue(l) }
func (l ActionList) Value() (driver.Value, error) { return jsonValue(l) }
func (l LevelRoles) Value() (driver.Value, error) { return jsonValue(l) }
func (p Payload) Value() (driver.Value, error)    { return jsonValue(p) }

func (s *IDSet) Scan(v interface{}) error      { return scanJSON(v, s) }
func (l *StringList) Scan(v interface{}) error { return scanJSON(v, l) }
func (l *ActionList) Scan(v interface{}) error { return scanJSON(v, l) }
func (l *LevelRoles) Scan(v interface{}) error { return scanJSON(v, l) }
func (p *Payload) Scan(v interface{}) error    { return scanJSON(v, p) }

func jsonValue(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json column")
	}
	return string(data), nil
}

func scanJSON(v interface{}, dst any) error {
	switch data := v.(type) {
	case nil:
		return nil
	case string:
		if data == "" {
			return nil
		}
		return errors.Wrap(json.Unmarshal([]byte(data), dst), "unmarshal json column")
	case []byte:
		if len(data) == 0 {
			return nil
		}
		return errors.Wrap(json.Unmarshal(data, dst), "unmarshal json column")
	default:
		return fmt.Errorf("cannot scan type %T into json column", v)
	}
}
