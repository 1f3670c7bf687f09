package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/observability"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
	"github.com/iamwavecut/ngmod/internal/utils/text"
)

const (
	capsMinLength = 15
	capsRatio     = 0.7
)

var (
	invitePattern = regexp.MustCompile(`(?i)\bdiscord(?:(app)?\.com/invite?|\.gg)/([a-zA-Z0-9-]{2,32})\b`)
	linkPattern   = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z0-9][a-z0-9-]{0,61}[a-z0-9]`)
)

type ConfigSource interface {
	Moderation(ctx context.Context, guildID int64) (*db.ModerationConfig, error)
	ModerationRule(ctx context.Context, ruleID int64) (*db.ModerationRule, error)
}

// Verdict is the outcome of classifying one message. Action is nil when the
// fired rule has no entry whose check passes.
type Verdict struct {
	Kind   db.RuleKind
	Action *db.Action
}

// Automod classifies messages and platform automod executions and hands fired
// rules to the enforcer.
type Automod struct {
	platform Platform
	configs  ConfigSource
	invites  *InviteResolver
	enforcer *Enforcer
	now      func() time.Time
}

func NewAutomod(platform Platform, configs ConfigSource, invites *InviteResolver, enforcer *Enforcer) *Automod {
	return &Automod{
		platform: platform,
		configs:  configs,
		invites:  invites,
		enforcer: enforcer,
		now:      time.Now,
	}
}

func (a *Automod) getLogEntry() *log.Entry {
	return log.WithField("context", "automod")
}

func (a *Automod) HandleMessage(ctx context.Context, msg *Message) error {
	author := msg.Author
	if author == nil || msg.GuildID == 0 || author.Bot {
		return nil
	}
	cfg, err := a.configs.Moderation(ctx, msg.GuildID)
	if err != nil {
		return fmt.Errorf("load moderation config: %w", err)
	}
	if cfg == nil || !cfg.Active {
		return nil
	}
	guild, err := a.platform.Guild(ctx, msg.GuildID)
	if err != nil {
		return fmt.Errorf("get guild: %w", err)
	}
	if permissions.IsAdministrator(&guild.Guild, author.UserID, author.Roles) {
		return nil
	}

	verdict, err := a.Classify(ctx, cfg, msg)
	if err != nil {
		return err
	}
	if verdict == nil {
		return nil
	}
	observability.RecordAutomodTrigger(string(verdict.Kind))
	a.getLogEntry().
		WithField("guild_id", msg.GuildID).
		WithField("user_id", author.UserID).
		WithField("kind", verdict.Kind).
		Debug("automod rule fired")
	if verdict.Action == nil {
		return nil
	}
	return a.enforcer.Apply(ctx, cfg, &Trigger{
		Guild:   guild,
		Member:  author,
		Action:  *verdict.Action,
		Reason:  ruleReason(verdict.Kind, guild.Locale),
		Content: msg.Content,
		Message: msg,
	})
}

// HandleMessageEdit re-runs classification when the content changed.
func (a *Automod) HandleMessageEdit(ctx context.Context, before, after *Message) error {
	if after == nil || after.Content == "" {
		return nil
	}
	if before != nil && before.Content == after.Content {
		return nil
	}
	return a.HandleMessage(ctx, after)
}

// Classify runs the invite, link and caps scans in order and returns the first
// rule that fires, or nil.
func (a *Automod) Classify(ctx context.Context, cfg *db.ModerationConfig, msg *Message) (*Verdict, error) {
	for _, kind := range db.MessageRuleKinds {
		fired, err := a.fires(ctx, cfg, kind, msg)
		if err != nil {
			return nil, err
		}
		if !fired {
			continue
		}
		verdict := &Verdict{Kind: kind}
		if action, ok := selectAction(cfg.Rule(kind).Actions, msg.Author, a.now()); ok {
			verdict.Action = &action
		}
		return verdict, nil
	}
	return nil, nil
}

func (a *Automod) fires(ctx context.Context, cfg *db.ModerationConfig, kind db.RuleKind, msg *Message) (bool, error) {
	switch kind {
	case db.RuleInvite:
		codes := inviteCodes(msg.Content)
		if len(codes) == 0 || !isAffected(cfg, kind, msg.Author, msg.ChannelID, msg.ParentID) {
			return false, nil
		}
		return a.foreignInvite(ctx, cfg, msg.GuildID, codes), nil
	case db.RuleLink:
		domains := linkDomains(msg.Content)
		if len(domains) == 0 || !isAffected(cfg, kind, msg.Author, msg.ChannelID, msg.ParentID) {
			return false, nil
		}
		return forbiddenLink(cfg, domains), nil
	case db.RuleCaps:
		if !isCapsSpam(msg.Content) {
			return false, nil
		}
		return isAffected(cfg, kind, msg.Author, msg.ChannelID, msg.ParentID), nil
	}
	return false, nil
}

// foreignInvite reports whether any code resolves to a guild that is neither the
// current one nor allowed. Unknown invites do not fire; a lookup error ends the scan.
func (a *Automod) foreignInvite(ctx context.Context, cfg *db.ModerationConfig, guildID int64, codes []string) bool {
	for _, code := range codes {
		invite, err := a.invites.Resolve(ctx, code)
		if err != nil {
			a.getLogEntry().WithError(err).WithField("code", code).Warn("cant resolve invite")
			return false
		}
		if invite == nil {
			continue
		}
		if invite.GuildID == guildID || cfg.InviteAllowed.Contains(invite.GuildID) {
			continue
		}
		return true
	}
	return false
}

func forbiddenLink(cfg *db.ModerationConfig, domains []string) bool {
	for _, domain := range domains {
		if domain == "discord.gg" || domain == "discord.com" {
			continue
		}
		listed := false
		for _, entry := range cfg.LinkList {
			if strings.EqualFold(entry, domain) {
				listed = true
				break
			}
		}
		if listed != cfg.LinkIsWhitelist {
			return true
		}
	}
	return false
}

func isCapsSpam(content string) bool {
	if text.Length(content) <= capsMinLength || text.IsLower(content) {
		return false
	}
	return text.UpperRatio(content) >= capsRatio
}

func inviteCodes(content string) []string {
	var codes []string
	seen := map[string]bool{}
	for _, match := range invitePattern.FindAllStringSubmatch(content, -1) {
		if code := match[2]; !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

func linkDomains(content string) []string {
	var domains []string
	seen := map[string]bool{}
	for _, match := range linkPattern.FindAllString(content, -1) {
		domain := strings.ToLower(match)
		if !seen[domain] {
			seen[domain] = true
			domains = append(domains, domain)
		}
	}
	return domains
}

// HandleAutomodExecution applies configured actions when a platform keyword or
// mention-spam rule blocked a message.
func (a *Automod) HandleAutomodExecution(ctx context.Context, exec *AutomodExecution) error {
	if exec.ActionType != AutomodActionBlockMessage {
		return nil
	}
	var kind db.RuleKind
	switch exec.TriggerType {
	case TriggerKeyword:
		kind = db.RuleBlacklist
	case TriggerMentionSpam:
		kind = db.RuleMention
	default:
		return nil
	}

	cfg, err := a.configs.Moderation(ctx, exec.GuildID)
	if err != nil {
		return fmt.Errorf("load moderation config: %w", err)
	}
	if cfg == nil || !cfg.Active {
		return nil
	}
	member, err := a.platform.Member(ctx, exec.GuildID, exec.UserID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if member == nil || member.Bot {
		a.getLogEntry().WithField("guild_id", exec.GuildID).WithField("user_id", exec.UserID).Warn("member not found")
		return nil
	}
	if !isAffected(cfg, kind, member, exec.ChannelID, exec.ParentID) {
		return nil
	}
	guild, err := a.platform.Guild(ctx, exec.GuildID)
	if err != nil {
		return fmt.Errorf("get guild: %w", err)
	}

	actions := cfg.Rule(kind).Actions
	if kind == db.RuleBlacklist {
		actions = actionsForRule(actions, exec.RuleID)
	}
	action, ok := selectAction(actions, member, a.now())
	observability.RecordAutomodTrigger(string(kind))
	if !ok {
		return nil
	}

	reason := i18n.Get("Violating a Discord moderation rule", guild.Locale)
	rule, err := a.configs.ModerationRule(ctx, exec.RuleID)
	if err != nil {
		return fmt.Errorf("load moderation rule: %w", err)
	}
	if rule != nil && rule.Reason != "" {
		reason = rule.Reason
	}
	content := exec.MatchedContent
	if content == "" {
		content = exec.Content
	}
	return a.enforcer.Apply(ctx, cfg, &Trigger{
		Guild:   guild,
		Member:  member,
		Action:  action,
		Reason:  reason,
		Content: content,
	})
}

func actionsForRule(actions db.ActionList, ruleID int64) db.ActionList {
	var res db.ActionList
	for _, action := range actions {
		if action.RuleID == ruleID {
			res = append(res, action)
		}
	}
	return res
}

func ruleReason(kind db.RuleKind, lang string) string {
	switch kind {
	case db.RuleInvite:
		return i18n.Get("Discord invite", lang)
	case db.RuleLink:
		return i18n.Get("External link", lang)
	case db.RuleCaps:
		return i18n.Get("Caps spam", lang)
	default:
		return i18n.Get("Violating a Discord moderation rule", lang)
	}
}
