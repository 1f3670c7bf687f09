package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/observability"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

// MaxTimeout is the longest timeout the platform accepts.
const MaxTimeout = 28 * 24 * time.Hour

type TimerScheduler interface {
	Create(ctx context.Context, guildID, targetID int64, kind db.TimerKind, expiresAt time.Time, payload db.Payload) (int64, error)
	Cancel(ctx context.Context, guildID, targetID int64, kind db.TimerKind) ([]int64, error)
	CancelByID(ctx context.Context, id int64) error
}

type Noter interface {
	Note(ctx context.Context, guildID int64, action string, target *Member, cause error)
}

// Executor applies platform side effects after checking the bot may perform them.
// Skipped actions return an error wrapping ErrNoPrivileges or ErrHierarchy.
type Executor struct {
	platform Platform
	timers   TimerScheduler
	notes    Noter
	tracer   trace.Tracer
	now      func() time.Time
}

func NewExecutor(platform Platform, timers TimerScheduler, notes Noter) *Executor {
	return &Executor{
		platform: platform,
		timers:   timers,
		notes:    notes,
		tracer:   otel.Tracer("github.com/iamwavecut/ngmod/internal/handlers/moderation"),
		now:      time.Now,
	}
}

func (e *Executor) getLogEntry() *log.Entry {
	return log.WithField("context", "executor")
}

func (e *Executor) Ban(ctx context.Context, target *Member, reason string, deleteMessageDays int) error {
	return e.run(ctx, "ban", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "ban", target.GuildID, discordgo.PermissionBanMembers, target); err != nil {
			return err
		}
		return e.platform.Ban(ctx, target.GuildID, target.UserID, reason, deleteMessageDays)
	})
}

// Tempban schedules the unban first and bans afterwards; a failed ban cancels the timer.
func (e *Executor) Tempban(ctx context.Context, target *Member, until time.Time, reason string, deleteMessageDays int) error {
	return e.run(ctx, "tempban", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "tempban", target.GuildID, discordgo.PermissionBanMembers, target); err != nil {
			return err
		}
		return e.scheduled(ctx, target, db.TimerTempban, until, func() error {
			return e.platform.Ban(ctx, target.GuildID, target.UserID, reason, deleteMessageDays)
		})
	})
}

// Tempmute times the member out and schedules the unmute.
func (e *Executor) Tempmute(ctx context.Context, target *Member, until time.Time, reason string) error {
	return e.run(ctx, "tempmute", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "tempmute", target.GuildID, discordgo.PermissionModerateMembers, target); err != nil {
			return err
		}
		timeout := until
		if limit := e.now().Add(MaxTimeout); timeout.After(limit) {
			timeout = limit
		}
		return e.scheduled(ctx, target, db.TimerTempmute, until, func() error {
			return e.platform.Timeout(ctx, target.GuildID, target.UserID, &timeout, reason)
		})
	})
}

func (e *Executor) Kick(ctx context.Context, target *Member, reason string) error {
	return e.run(ctx, "kick", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "kick", target.GuildID, discordgo.PermissionKickMembers, target); err != nil {
			return err
		}
		return e.platform.Kick(ctx, target.GuildID, target.UserID, reason)
	})
}

// Softban bans and immediately unbans to purge the member's recent messages.
func (e *Executor) Softban(ctx context.Context, target *Member, reason string) error {
	return e.run(ctx, "softban", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "softban", target.GuildID, discordgo.PermissionBanMembers, target); err != nil {
			return err
		}
		if err := e.platform.Ban(ctx, target.GuildID, target.UserID, reason, 1); err != nil {
			return err
		}
		return e.platform.Unban(ctx, target.GuildID, target.UserID, reason)
	})
}

// Unban drops pending tempban timers and lifts the ban.
func (e *Executor) Unban(ctx context.Context, guildID, userID int64, reason string) error {
	return e.run(ctx, "unban", guildID, userID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "unban", guildID, discordgo.PermissionBanMembers, nil); err != nil {
			return err
		}
		if _, err := e.timers.Cancel(ctx, guildID, userID, db.TimerTempban); err != nil {
			return err
		}
		return e.platform.Unban(ctx, guildID, userID, reason)
	})
}

// Unmute drops pending tempmute timers and lifts the timeout.
func (e *Executor) Unmute(ctx context.Context, target *Member, reason string) error {
	return e.run(ctx, "unmute", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflight(ctx, "unmute", target.GuildID, discordgo.PermissionModerateMembers, target); err != nil {
			return err
		}
		if _, err := e.timers.Cancel(ctx, target.GuildID, target.UserID, db.TimerTempmute); err != nil {
			return err
		}
		return e.platform.Timeout(ctx, target.GuildID, target.UserID, nil, reason)
	})
}

// DeleteMessage removes msg when the bot may manage messages in its channel.
func (e *Executor) DeleteMessage(ctx context.Context, msg *Message, reason string) error {
	return e.run(ctx, "delete_message", msg.GuildID, msg.Author.UserID, func(ctx context.Context) error {
		perms, err := e.platform.ChannelPermissions(ctx, msg.ChannelID, e.platform.BotUserID())
		if err != nil {
			return err
		}
		if !permissions.Has(perms, discordgo.PermissionManageMessages) {
			return e.skip(ctx, "delete_message", msg.GuildID, msg.Author, nerrors.ErrNoPrivileges)
		}
		return e.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID, reason)
	})
}

func (e *Executor) AddRoles(ctx context.Context, target *Member, roles []int64, reason string) error {
	return e.run(ctx, "add_roles", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflightRoles(ctx, "add_roles", target, roles); err != nil {
			return err
		}
		for _, role := range roles {
			if err := e.platform.AddRole(ctx, target.GuildID, target.UserID, role, reason); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Executor) RemoveRoles(ctx context.Context, target *Member, roles []int64, reason string) error {
	return e.run(ctx, "remove_roles", target.GuildID, target.UserID, func(ctx context.Context) error {
		if err := e.preflightRoles(ctx, "remove_roles", target, roles); err != nil {
			return err
		}
		for _, role := range roles {
			if err := e.platform.RemoveRole(ctx, target.GuildID, target.UserID, role, reason); err != nil {
				return err
			}
		}
		return nil
	})
}

// DirectMessage reports whether the user received the message; closed DMs are not an error.
func (e *Executor) DirectMessage(ctx context.Context, userID int64, content string) bool {
	err := e.platform.SendDirectMessage(ctx, userID, content)
	if err == nil {
		observability.RecordAction("direct_message", "ok")
		return true
	}
	observability.RecordAction("direct_message", "error")
	e.getLogEntry().WithError(err).WithField("user_id", userID).Debug("direct message not delivered")
	return false
}

// SetSlowmode edits the channel rate limit.
func (e *Executor) SetSlowmode(ctx context.Context, guildID, channelID int64, seconds int) error {
	return e.run(ctx, "slowmode", guildID, 0, func(ctx context.Context) error {
		perms, err := e.platform.ChannelPermissions(ctx, channelID, e.platform.BotUserID())
		if err != nil {
			return err
		}
		if !permissions.Has(perms, discordgo.PermissionManageChannels) {
			return e.skip(ctx, "slowmode", guildID, nil, nerrors.ErrNoPrivileges)
		}
		return e.platform.SetSlowmode(ctx, channelID, seconds)
	})
}

func (e *Executor) run(ctx context.Context, action string, guildID, userID int64, f func(ctx context.Context) error) error {
	ctx, span := e.tracer.Start(ctx, "moderation."+action, trace.WithAttributes(
		attribute.Int64("guild_id", guildID),
		attribute.Int64("user_id", userID),
	))
	defer span.End()

	err := f(ctx)
	switch {
	case err == nil:
		observability.RecordAction(action, "ok")
		return nil
	case errors.Is(err, nerrors.ErrNoPrivileges), errors.Is(err, nerrors.ErrHierarchy):
		observability.RecordAction(action, "skipped")
		span.SetAttributes(attribute.String("skipped", err.Error()))
	default:
		observability.RecordAction(action, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return fmt.Errorf("%s: %w", action, err)
}

// preflight checks a guild permission and, for a non-nil target, that the bot's
// highest role is above the target's.
func (e *Executor) preflight(ctx context.Context, action string, guildID int64, perm int64, target *Member) error {
	guild, bot, err := e.botMember(ctx, guildID)
	if err != nil {
		return err
	}
	if !permissions.Has(permissions.Base(&guild.Guild, bot.UserID, bot.Roles), perm) {
		return e.skip(ctx, action, guildID, target, nerrors.ErrNoPrivileges)
	}
	if target != nil && !permissions.Dominates(&guild.Guild, bot.UserID, bot.Roles, target.UserID, target.Roles) {
		return e.skip(ctx, action, guildID, target, nerrors.ErrHierarchy)
	}
	return nil
}

func (e *Executor) preflightRoles(ctx context.Context, action string, target *Member, roles []int64) error {
	if err := e.preflight(ctx, action, target.GuildID, discordgo.PermissionManageRoles, target); err != nil {
		return err
	}
	guild, bot, err := e.botMember(ctx, target.GuildID)
	if err != nil {
		return err
	}
	top := permissions.TopPosition(&guild.Guild, bot.Roles)
	for _, id := range roles {
		if role, ok := guild.Roles[id]; !ok || role.Position >= top {
			return e.skip(ctx, action, target.GuildID, target, nerrors.ErrHierarchy)
		}
	}
	return nil
}

func (e *Executor) botMember(ctx context.Context, guildID int64) (*Guild, *Member, error) {
	guild, err := e.platform.Guild(ctx, guildID)
	if err != nil {
		return nil, nil, fmt.Errorf("get guild: %w", err)
	}
	bot, err := e.platform.Member(ctx, guildID, e.platform.BotUserID())
	if err != nil {
		return nil, nil, fmt.Errorf("get bot member: %w", err)
	}
	return guild, bot, nil
}

func (e *Executor) skip(ctx context.Context, action string, guildID int64, target *Member, cause error) error {
	if e.notes != nil {
		e.notes.Note(ctx, guildID, action, target, cause)
	}
	return cause
}

// scheduled persists the reversal timer, then applies the effect. When the effect
// fails the timer is removed again.
func (e *Executor) scheduled(ctx context.Context, target *Member, kind db.TimerKind, until time.Time, effect func() error) error {
	id, err := e.timers.Create(ctx, target.GuildID, target.UserID, kind, until, nil)
	if err != nil {
		return err
	}
	if err := effect(); err != nil {
		if cancelErr := e.timers.CancelByID(context.WithoutCancel(ctx), id); cancelErr != nil {
			e.getLogEntry().
				WithError(cancelErr).
				WithField("timer_id", id).
				Error("cant cancel timer after failed effect")
		}
		return err
	}
	return nil
}
