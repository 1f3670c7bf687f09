package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/expiring"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

const (
	MaxTempban     = 365 * 24 * time.Hour
	MinTempban     = time.Minute
	MaxTempmute    = MaxTimeout
	MaxSlowmode    = 21600
	MaxReasonRunes = 512

	defaultClearLimit  = 3
	defaultClearWindow = time.Minute
	slowmodeLimit      = 2
	slowmodeWindow     = 10 * time.Second
)

// Invocation describes who ran a command and where.
type Invocation struct {
	GuildID   int64
	ChannelID int64
	Invoker   *Member
	// Locale is the invoker's client locale, used for replies.
	Locale string
}

// Response is the terminal reply of a command.
type Response struct {
	Content    string
	Embeds     []*discordgo.MessageEmbed
	Components []discordgo.MessageComponent
	Ephemeral  bool
}

type CommandConfigs interface {
	Moderation(ctx context.Context, guildID int64) (*db.ModerationConfig, error)
	Punishments(ctx context.Context, guildID int64) ([]*db.Punishment, error)
}

type CommandOptions struct {
	ClearLimit  int
	ClearWindow time.Duration
}

// Commands implements the moderator command surface. Every method returns a
// terminal response; errors are reserved for failures the invoker cannot fix.
type Commands struct {
	platform Platform
	configs  CommandConfigs
	exec     *Executor
	enforcer *Enforcer
	ledger   *Ledger
	audit    *AuditLogger

	clearLimits    *expiring.Limiter[memberKey]
	slowmodeLimits *expiring.Limiter[int64]
	massbans       *expiring.Map[string, *massbanPlan]

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewCommands(platform Platform, configs CommandConfigs, exec *Executor, enforcer *Enforcer, ledger *Ledger, audit *AuditLogger, opts CommandOptions) *Commands {
	if opts.ClearLimit <= 0 {
		opts.ClearLimit = defaultClearLimit
	}
	if opts.ClearWindow <= 0 {
		opts.ClearWindow = defaultClearWindow
	}
	return &Commands{
		platform:       platform,
		configs:        configs,
		exec:           exec,
		enforcer:       enforcer,
		ledger:         ledger,
		audit:          audit,
		clearLimits:    expiring.NewLimiter[memberKey](opts.ClearLimit, opts.ClearWindow),
		slowmodeLimits: expiring.NewLimiter[int64](slowmodeLimit, slowmodeWindow),
		massbans:       expiring.New[string, *massbanPlan](massbanTTL),
		now:            time.Now,
		sleep:          sleepContext,
	}
}

func (c *Commands) getLogEntry() *log.Entry {
	return log.WithField("context", "commands")
}

func reply(content string) *Response {
	return &Response{Content: content, Ephemeral: true}
}

func (c *Commands) Ban(ctx context.Context, inv *Invocation, target *Member, reason string) (*Response, error) {
	return c.punish(ctx, inv, target, punishment{
		kind:   RecordBan,
		reason: reason,
		effect: func(ctx context.Context) error {
			return c.exec.Ban(ctx, target, reason, 1)
		},
		success: func() string {
			return i18n.Get("The user has been permanently banned.", inv.Locale)
		},
	})
}

func (c *Commands) Kick(ctx context.Context, inv *Invocation, target *Member, reason string) (*Response, error) {
	return c.punish(ctx, inv, target, punishment{
		kind:   RecordKick,
		reason: reason,
		effect: func(ctx context.Context) error {
			return c.exec.Kick(ctx, target, reason)
		},
		success: func() string {
			return i18n.Get("The user has been kicked.", inv.Locale)
		},
	})
}

func (c *Commands) Softban(ctx context.Context, inv *Invocation, target *Member, reason string) (*Response, error) {
	return c.punish(ctx, inv, target, punishment{
		kind:   RecordSoftban,
		reason: reason,
		effect: func(ctx context.Context) error {
			return c.exec.Softban(ctx, target, reason)
		},
		success: func() string {
			return i18n.Get("The user has been softbanned.", inv.Locale)
		},
	})
}

func (c *Commands) Tempban(ctx context.Context, inv *Invocation, target *Member, duration, reason string) (*Response, error) {
	d, ok := ParseDuration(duration)
	if !ok {
		return reply(i18n.Get("The provided duration is invalid.", inv.Locale)), nil
	}
	if d > MaxTempban {
		return reply(i18n.Get("The provided duration is too long.", inv.Locale)), nil
	}
	if d < MinTempban {
		return reply(i18n.Get("The minimum duration is 60 seconds.", inv.Locale)), nil
	}
	until := c.now().Add(d)
	return c.punish(ctx, inv, target, punishment{
		kind:   RecordTempban,
		reason: reason,
		until:  &until,
		effect: func(ctx context.Context) error {
			return c.exec.Tempban(ctx, target, until, reason, 1)
		},
		success: func() string {
			return i18n.Getf("The user has been banned until %s.", inv.Locale, discordTimestamp(until, "f"))
		},
	})
}

func (c *Commands) Tempmute(ctx context.Context, inv *Invocation, target *Member, duration, reason string) (*Response, error) {
	d, ok := ParseDuration(duration)
	if !ok {
		return reply(i18n.Get("The provided duration is invalid.", inv.Locale)), nil
	}
	if d > MaxTempmute {
		return reply(i18n.Get("The provided duration is too long.", inv.Locale)), nil
	}
	until := c.now().Add(d)
	return c.punish(ctx, inv, target, punishment{
		kind:   RecordTempmute,
		reason: reason,
		until:  &until,
		effect: func(ctx context.Context) error {
			return c.exec.Tempmute(ctx, target, until, reason)
		},
		success: func() string {
			return i18n.Getf("The member has been muted until %s.", inv.Locale, discordTimestamp(until, "f"))
		},
	})
}

func (c *Commands) Unmute(ctx context.Context, inv *Invocation, target *Member, reason string) (*Response, error) {
	return c.punish(ctx, inv, target, punishment{
		kind:     RecordUnmute,
		reason:   reason,
		noNotify: true,
		effect: func(ctx context.Context) error {
			return c.exec.Unmute(ctx, target, reason)
		},
		success: func() string {
			return i18n.Get("The member has been unmuted.", inv.Locale)
		},
	})
}

// Unban lifts a ban and cancels a pending tempban of the user.
func (c *Commands) Unban(ctx context.Context, inv *Invocation, user *Member, reason string) (*Response, error) {
	if resp := checkReason(inv, reason); resp != nil {
		return resp, nil
	}
	err := c.exec.Unban(ctx, inv.GuildID, user.UserID, reason)
	switch {
	case errors.Is(err, nerrors.ErrNotFound):
		return reply(i18n.Get("The user is not banned on this server.", inv.Locale)), nil
	case isSkipped(err):
		return reply(i18n.Get("I am missing the permissions to do this.", inv.Locale)), nil
	case err != nil:
		return nil, err
	}
	guild, err := c.platform.Guild(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	c.log(ctx, &Record{
		GuildID:      inv.GuildID,
		Kind:         RecordUnban,
		TargetID:     user.UserID,
		TargetName:   user.Username,
		TargetAvatar: user.AvatarURL,
		Moderator:    inv.Invoker,
		Reason:       reason,
		Locale:       guild.Locale,
		At:           c.now(),
	})
	return reply(i18n.Get("The user has been unbanned.", inv.Locale)), nil
}

// Slowmode sets the channel rate limit; zero disables it.
func (c *Commands) Slowmode(ctx context.Context, inv *Invocation, seconds int) (*Response, error) {
	if seconds < 0 || seconds > MaxSlowmode {
		return reply(i18n.Get("The provided duration is invalid.", inv.Locale)), nil
	}
	if ok, retry := c.slowmodeLimits.Allow(inv.ChannelID); !ok {
		return cooldownReply(inv, retry), nil
	}
	err := c.exec.SetSlowmode(ctx, inv.GuildID, inv.ChannelID, seconds)
	switch {
	case isSkipped(err):
		return reply(i18n.Get("I am missing the permissions to do this.", inv.Locale)), nil
	case err != nil:
		return nil, err
	}
	if seconds == 0 {
		return reply(i18n.Get("The slowmode has been disabled.", inv.Locale)), nil
	}
	return reply(i18n.Get("The slowmode has been enabled.", inv.Locale)), nil
}

type punishment struct {
	kind     RecordKind
	reason   string
	until    *time.Time
	noNotify bool
	effect   func(ctx context.Context) error
	success  func() string
}

// punish runs the shared command flow: target checks, direct message, effect, audit record.
func (c *Commands) punish(ctx context.Context, inv *Invocation, target *Member, p punishment) (*Response, error) {
	if resp := checkReason(inv, p.reason); resp != nil {
		return resp, nil
	}
	guild, err := c.platform.Guild(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	if target.inGuild() {
		msg, err := c.checkTarget(ctx, inv, guild, target)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			return reply(msg), nil
		}
	}
	cfg, err := c.configs.Moderation(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("load moderation config: %w", err)
	}

	rec := &Record{
		GuildID:      inv.GuildID,
		Kind:         p.kind,
		TargetID:     target.UserID,
		TargetName:   target.Username,
		TargetAvatar: target.AvatarURL,
		Moderator:    inv.Invoker,
		Reason:       p.reason,
		Until:        p.until,
		Locale:       guild.Locale,
		At:           c.now(),
	}
	if !p.noNotify && target.inGuild() && cfg != nil && cfg.Active && cfg.NotifyUser {
		ok := c.exec.DirectMessage(ctx, target.UserID, directMessage(p.kind, guild.Locale, guild.Name, p.reason, p.until, ""))
		rec.DirectMessaged = &ok
	}

	if err := p.effect(ctx); err != nil {
		if isSkipped(err) {
			return reply(i18n.Get("I am missing the permissions to do this.", inv.Locale)), nil
		}
		return nil, err
	}
	c.log(ctx, rec)
	return reply(p.success()), nil
}

// checkTarget returns a user-facing refusal when the invoker may not punish target.
func (c *Commands) checkTarget(ctx context.Context, inv *Invocation, guild *Guild, target *Member) (string, error) {
	g := &guild.Guild
	if !permissions.Dominates(g, inv.Invoker.UserID, inv.Invoker.Roles, target.UserID, target.Roles) {
		return i18n.Get("The user must be below you in the hierarchy.", inv.Locale), nil
	}
	bot, err := c.platform.Member(ctx, inv.GuildID, c.platform.BotUserID())
	if err != nil {
		return "", fmt.Errorf("get bot member: %w", err)
	}
	if !permissions.Dominates(g, bot.UserID, bot.Roles, target.UserID, target.Roles) {
		return i18n.Get("The user must be below the bot in the hierarchy.", inv.Locale), nil
	}
	if permissions.IsAdministrator(g, target.UserID, target.Roles) {
		return i18n.Get("You cannot punish administrators.", inv.Locale), nil
	}
	if target.Bot {
		return i18n.Get("You cannot punish bots.", inv.Locale), nil
	}
	return "", nil
}

func (c *Commands) log(ctx context.Context, rec *Record) {
	if err := c.audit.Log(ctx, rec); err != nil {
		c.getLogEntry().WithError(err).WithField("guild_id", rec.GuildID).Warn("cant write audit record")
	}
}

func checkReason(inv *Invocation, reason string) *Response {
	if len([]rune(reason)) > MaxReasonRunes {
		return reply(i18n.Get("The reason is too long.", inv.Locale))
	}
	return nil
}

func cooldownReply(inv *Invocation, retry time.Duration) *Response {
	seconds := int(retry.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return reply(i18n.Getf("This command is on cooldown. Try again in %d seconds.", inv.Locale, seconds))
}

func (m *Member) inGuild() bool {
	return !m.JoinedAt.IsZero()
}

func (m *Member) Mention() string {
	return fmt.Sprintf("<@%d>", m.UserID)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DurationChoices builds autocomplete choices for duration options.
func DurationChoices(current, lang string) []*discordgo.ApplicationCommandOptionChoice {
	values := CompleteDuration(current)
	res := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(values))
	for _, value := range values {
		res = append(res, &discordgo.ApplicationCommandOptionChoice{Name: durationLabel(value, lang), Value: value})
	}
	return res
}

func durationLabel(value, lang string) string {
	var n int
	var unit string
	if _, err := fmt.Sscanf(value, "%d%s", &n, &unit); err != nil {
		return value
	}
	switch unit {
	case "min":
		return i18n.Getf("%d minutes", lang, n)
	case "h":
		return i18n.Getf("%d hours", lang, n)
	case "d":
		if n == 1 {
			return i18n.Get("1 day", lang)
		}
		return i18n.Getf("%d days", lang, n)
	}
	return value
}
