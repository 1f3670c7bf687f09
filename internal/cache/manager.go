// Package cache keeps decoded per-guild configuration in memory. Entries are loaded
// lazily, invalidated by the dashboard and reloaded on the next access.
package cache

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/observability"
)

type Kind string

const (
	KindModeration Kind = "moderation"
	KindAutomod    Kind = "automod"
	KindLogging    Kind = "logging"
	KindWelcome    Kind = "welcome"
	KindLeveling   Kind = "leveling"
	KindPunishment Kind = "punishment"
)

type Store interface {
	GetModeration(ctx context.Context, guildID int64) (*db.ModerationConfig, error)
	GetLogging(ctx context.Context, guildID int64) (*db.LoggingConfig, error)
	GetWelcome(ctx context.Context, guildID int64) (*db.WelcomeConfig, error)
	GetLeveling(ctx context.Context, guildID int64) (*db.LevelingConfig, error)
	GetModerationRule(ctx context.Context, ruleID int64) (*db.ModerationRule, error)
	GetPunishments(ctx context.Context, guildID int64) ([]*db.Punishment, error)
}

type Manager struct {
	moderation *kindCache[*db.ModerationConfig]
	automod    *kindCache[*db.ModerationRule]
	logging    *kindCache[*db.LoggingConfig]
	welcome    *kindCache[*db.WelcomeConfig]
	leveling   *kindCache[*db.LevelingConfig]
	punishment *kindCache[[]*db.Punishment]
}

func NewManager(store Store) *Manager {
	return &Manager{
		moderation: newKindCache(KindModeration, func(ctx context.Context, id int64) (*db.ModerationConfig, error) {
			cfg, err := store.GetModeration(ctx, id)
			if err != nil || cfg == nil {
				return cfg, err
			}
			sanitizeModeration(cfg)
			return cfg, nil
		}),
		automod:  newKindCache(KindAutomod, store.GetModerationRule),
		logging:  newKindCache(KindLogging, store.GetLogging),
		welcome:  newKindCache(KindWelcome, store.GetWelcome),
		leveling: newKindCache(KindLeveling, store.GetLeveling),
		punishment: newKindCache(KindPunishment, func(ctx context.Context, id int64) ([]*db.Punishment, error) {
			list, err := store.GetPunishments(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, p := range list {
				p.Actions = validActions(p.GuildID, "punishment "+p.Name, p.Actions)
			}
			return list, nil
		}),
	}
}

func (m *Manager) getLogEntry() *log.Entry {
	return log.WithField("context", "cache")
}

// Moderation returns the guild's moderation config, or nil when none is stored.
func (m *Manager) Moderation(ctx context.Context, guildID int64) (*db.ModerationConfig, error) {
	return m.moderation.get(ctx, guildID)
}

func (m *Manager) ModerationRule(ctx context.Context, ruleID int64) (*db.ModerationRule, error) {
	return m.automod.get(ctx, ruleID)
}

func (m *Manager) Logging(ctx context.Context, guildID int64) (*db.LoggingConfig, error) {
	return m.logging.get(ctx, guildID)
}

func (m *Manager) Welcome(ctx context.Context, guildID int64) (*db.WelcomeConfig, error) {
	return m.welcome.get(ctx, guildID)
}

func (m *Manager) Leveling(ctx context.Context, guildID int64) (*db.LevelingConfig, error) {
	return m.leveling.get(ctx, guildID)
}

func (m *Manager) Punishments(ctx context.Context, guildID int64) ([]*db.Punishment, error) {
	return m.punishment.get(ctx, guildID)
}

// Invalidate drops one cached record. For KindAutomod the id is a rule id, for
// every other kind a guild id.
func (m *Manager) Invalidate(kind Kind, id int64) error {
	switch kind {
	case KindModeration:
		m.moderation.invalidate(id)
	case KindAutomod:
		m.automod.invalidate(id)
	case KindLogging:
		m.logging.invalidate(id)
	case KindWelcome:
		m.welcome.invalidate(id)
	case KindLeveling:
		m.leveling.invalidate(id)
	case KindPunishment:
		m.punishment.invalidate(id)
	default:
		return fmt.Errorf("cache kind %q: %w", kind, nerrors.ErrInvalidInput)
	}
	m.getLogEntry().WithField("kind", kind).WithField("id", id).Debug("invalidated")
	return nil
}

// InvalidateGuild drops every kind cached for the guild, including its rule reasons.
func (m *Manager) InvalidateGuild(guildID int64) {
	m.moderation.invalidate(guildID)
	m.logging.invalidate(guildID)
	m.welcome.invalidate(guildID)
	m.leveling.invalidate(guildID)
	m.punishment.invalidate(guildID)
	rules := m.automod.invalidateWhere(func(_ int64, rule *db.ModerationRule) bool {
		return rule != nil && rule.GuildID == guildID
	})
	m.getLogEntry().WithField("guild_id", guildID).WithField("rules", rules).Debug("guild invalidated")
}

// EditModeration patches a copy of the cached config. It must only be used after
// the store has been updated with the same change.
func (m *Manager) EditModeration(guildID int64, patch func(cfg *db.ModerationConfig)) bool {
	return m.moderation.edit(guildID, func(cfg *db.ModerationConfig) *db.ModerationConfig {
		if cfg == nil {
			return nil
		}
		cp := cfg.Clone()
		patch(cp)
		return cp
	})
}

// ClearWebhook drops cached credentials of a webhook reference wherever the guild uses it.
func (m *Manager) ClearWebhook(guildID, maybeWebhookID int64) {
	m.EditModeration(guildID, func(cfg *db.ModerationConfig) {
		if cfg.Webhook != nil && cfg.Webhook.ID == maybeWebhookID {
			cfg.Webhook.WebhookID = nil
			cfg.Webhook.WebhookToken = nil
		}
	})
	if cfg, ok := m.logging.peek(guildID); ok && cfg != nil {
		for _, setting := range cfg.Settings {
			if setting.Channel != nil && setting.Channel.ID == maybeWebhookID {
				m.logging.invalidate(guildID)
				break
			}
		}
	}
}

func sanitizeModeration(cfg *db.ModerationConfig) {
	lists := map[string]*db.ActionList{
		"invite_actions":    &cfg.InviteActions,
		"link_actions":      &cfg.LinkActions,
		"caps_actions":      &cfg.CapsActions,
		"blacklist_actions": &cfg.BlacklistActions,
		"mention_actions":   &cfg.MentionActions,
		"automod_actions":   &cfg.AutomodActions,
	}
	for field, list := range lists {
		*list = validActions(cfg.GuildID, field, *list)
	}
	if cfg.HasPointActions() && len(cfg.AutomodActions) == 0 {
		log.WithField("context", "cache").
			WithField("guild_id", cfg.GuildID).
			Warn("points actions configured without an escalation chain")
	}
}

func validActions(guildID int64, field string, list db.ActionList) db.ActionList {
	valid, errs := list.Valid()
	for _, err := range errs {
		log.WithField("context", "cache").
			WithField("guild_id", guildID).
			WithField("field", field).
			WithError(err).
			Warn("dropping invalid action")
	}
	return valid
}

func recordLoad(kind Kind, result string) {
	observability.RecordCacheLoad(string(kind), result)
}
