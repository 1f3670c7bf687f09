package moderation

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/cache"
	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/timers"
)

type (
	RuleStore interface {
		DeleteModerationRule(ctx context.Context, ruleID int64) error
	}

	CacheInvalidator interface {
		Invalidate(kind cache.Kind, id int64) error
		InvalidateGuild(guildID int64)
	}

	TimerCanceler interface {
		Cancel(ctx context.Context, guildID, targetID int64, kind db.TimerKind) ([]int64, error)
	}

	TimerRegistry interface {
		Register(kind db.TimerKind, handler timers.Handler)
	}
)

// Events keeps timers and cached configuration consistent with changes made
// outside the bot.
type Events struct {
	platform Platform
	rules    RuleStore
	cache    CacheInvalidator
	timers   TimerCanceler
}

func NewEvents(platform Platform, rules RuleStore, configs CacheInvalidator, canceler TimerCanceler) *Events {
	return &Events{platform: platform, rules: rules, cache: configs, timers: canceler}
}

func (e *Events) getLogEntry() *log.Entry {
	return log.WithField("context", "moderation_events")
}

// HandleBanRemove cancels a pending tempban when the ban was lifted by hand.
func (e *Events) HandleBanRemove(ctx context.Context, guildID, userID int64) error {
	return e.cancel(ctx, guildID, userID, db.TimerTempban)
}

// HandleTimeoutLifted cancels a pending tempmute when the timeout ended early.
func (e *Events) HandleTimeoutLifted(ctx context.Context, guildID, userID int64) error {
	return e.cancel(ctx, guildID, userID, db.TimerTempmute)
}

func (e *Events) HandleAutomodRuleDelete(ctx context.Context, ruleID int64) error {
	if err := e.rules.DeleteModerationRule(ctx, ruleID); err != nil {
		return err
	}
	return e.cache.Invalidate(cache.KindAutomod, ruleID)
}

// HandleAutomodRuleUpdate drops the cached reason so the next execution reloads it.
func (e *Events) HandleAutomodRuleUpdate(_ context.Context, ruleID int64) error {
	return e.cache.Invalidate(cache.KindAutomod, ruleID)
}

func (e *Events) HandleGuildRemove(_ context.Context, guildID int64) error {
	e.cache.InvalidateGuild(guildID)
	return nil
}

// RegisterTimers installs the expiry handlers of tempban and tempmute.
func (e *Events) RegisterTimers(registry TimerRegistry) {
	registry.Register(db.TimerTempban, e.expireTempban)
	registry.Register(db.TimerTempmute, e.expireTempmute)
}

func (e *Events) expireTempban(ctx context.Context, timer *db.Timer) error {
	err := e.platform.Unban(ctx, timer.GuildID, timer.TargetID, "Tempban expired")
	if errors.Is(err, nerrors.ErrNotFound) {
		e.getLogEntry().WithField("guild_id", timer.GuildID).WithField("user_id", timer.TargetID).Debug("tempban target already unbanned")
		return nil
	}
	if err != nil {
		return fmt.Errorf("unban: %w", err)
	}
	return nil
}

func (e *Events) expireTempmute(ctx context.Context, timer *db.Timer) error {
	err := e.platform.Timeout(ctx, timer.GuildID, timer.TargetID, nil, "Tempmute expired")
	if errors.Is(err, nerrors.ErrNotFound) {
		e.getLogEntry().WithField("guild_id", timer.GuildID).WithField("user_id", timer.TargetID).Debug("tempmute target left")
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove timeout: %w", err)
	}
	return nil
}

func (e *Events) cancel(ctx context.Context, guildID, userID int64, kind db.TimerKind) error {
	ids, err := e.timers.Cancel(ctx, guildID, userID, kind)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		e.getLogEntry().WithField("guild_id", guildID).WithField("user_id", userID).WithField("kind", kind).Info("timer canceled by platform event")
	}
	return nil
}
