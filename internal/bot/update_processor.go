package bot

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
	"github.com/iamwavecut/ngmod/internal/infra"
	"github.com/iamwavecut/ngmod/internal/infrastructure/discord"
)

const (
	// UpdateTimeout is the age after which gateway messages are not moderated.
	UpdateTimeout  = 5 * time.Minute
	HandlerTimeout = 2 * time.Minute
)

// Handler groups that can be enabled by name.
const (
	HandlerAutomod      = "automod"
	HandlerModeration   = "moderation"
	HandlerHousekeeping = "housekeeping"
)

// UpdateProcessor turns gateway events into moderation calls. Every event runs
// with a deadline and panics are reported as errors.
type UpdateProcessor struct {
	converter    Converter
	automod      Automod
	events       Events
	interactions *Interactions

	timeout time.Duration
	now     func() time.Time

	// mu guards ctx and closing, and orders wg.Add before wg.Wait.
	mu      sync.RWMutex
	ctx     context.Context
	closing bool
	wg      sync.WaitGroup
}

func NewUpdateProcessor(converter Converter, automod Automod, events Events, interactions *Interactions) *UpdateProcessor {
	return &UpdateProcessor{
		converter:    converter,
		automod:      automod,
		events:       events,
		interactions: interactions,
		timeout:      HandlerTimeout,
		now:          time.Now,
		ctx:          context.Background(),
	}
}

func (up *UpdateProcessor) getLogEntry() *log.Entry {
	return log.WithField("context", "update_processor")
}

// Handlers returns the session handlers of the enabled groups.
func (up *UpdateProcessor) Handlers(enabled []string) []interface{} {
	registered := map[string][]interface{}{
		HandlerAutomod: {
			up.onMessageCreate,
			up.onMessageUpdate,
			up.onAutomodExecution,
		},
		HandlerModeration: {
			up.onInteractionCreate,
		},
		HandlerHousekeeping: {
			up.onBanRemove,
			up.onMemberUpdate,
			up.onRuleDelete,
			up.onRuleUpdate,
			up.onGuildDelete,
		},
	}
	res := make([]interface{}, 0)
	for _, name := range enabled {
		handlers, ok := registered[name]
		if !ok {
			log.Warnf("no registered handler: %s", name)
			continue
		}
		res = append(res, handlers...)
	}
	return res
}

func (up *UpdateProcessor) bind(ctx context.Context) {
	up.mu.Lock()
	defer up.mu.Unlock()
	up.ctx = ctx
	up.closing = false
}

// wait blocks until in-flight events finish or ctx is done.
func (up *UpdateProcessor) wait(ctx context.Context) error {
	up.mu.Lock()
	up.closing = true
	up.mu.Unlock()

	done := make(chan struct{})
	go func() {
		up.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (up *UpdateProcessor) process(name string, f func(ctx context.Context) error) {
	up.mu.RLock()
	base := up.ctx
	if up.closing || base.Err() != nil {
		up.mu.RUnlock()
		return
	}
	up.wg.Add(1)
	up.mu.RUnlock()
	defer up.wg.Done()
	ctx, cancel := context.WithTimeout(base, up.timeout)
	defer cancel()

	if err := infra.Recover(name, func() error { return f(ctx) }); err != nil {
		up.getLogEntry().WithError(err).WithField("event", name).Error("handling error")
	}
}

func (up *UpdateProcessor) outdated(m *discordgo.Message) bool {
	if m.Timestamp.IsZero() {
		return false
	}
	age := up.now().Sub(m.Timestamp)
	if age > UpdateTimeout {
		up.getLogEntry().WithField("age", age).Debug("skipping outdated message")
		return true
	}
	return false
}

func (up *UpdateProcessor) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Message == nil || e.GuildID == "" || e.Author == nil || e.Author.Bot || up.outdated(e.Message) {
		return
	}
	up.process("message_create", func(ctx context.Context) error {
		return up.automod.HandleMessage(ctx, up.converter.Message(e.Message))
	})
}

func (up *UpdateProcessor) onMessageUpdate(_ *discordgo.Session, e *discordgo.MessageUpdate) {
	if e.Message == nil || e.GuildID == "" || e.Author == nil || e.Author.Bot {
		return
	}
	up.process("message_update", func(ctx context.Context) error {
		var before *moderation.Message
		if e.BeforeUpdate != nil {
			before = up.converter.Message(e.BeforeUpdate)
		}
		return up.automod.HandleMessageEdit(ctx, before, up.converter.Message(e.Message))
	})
}

func (up *UpdateProcessor) onAutomodExecution(_ *discordgo.Session, e *discordgo.AutoModerationActionExecution) {
	up.process("automod_execution", func(ctx context.Context) error {
		return up.automod.HandleAutomodExecution(ctx, up.converter.AutomodExecution(e))
	})
}

func (up *UpdateProcessor) onInteractionCreate(_ *discordgo.Session, e *discordgo.InteractionCreate) {
	if e.Interaction == nil {
		return
	}
	up.process("interaction_create", func(ctx context.Context) error {
		return up.interactions.Handle(ctx, e.Interaction)
	})
}

func (up *UpdateProcessor) onBanRemove(_ *discordgo.Session, e *discordgo.GuildBanRemove) {
	if e.User == nil {
		return
	}
	up.process("guild_ban_remove", func(ctx context.Context) error {
		return up.events.HandleBanRemove(ctx, discord.ParseID(e.GuildID), discord.ParseID(e.User.ID))
	})
}

// onMemberUpdate reports lifted timeouts. Without a cached previous state any
// update of a member without an active timeout counts as lifted.
func (up *UpdateProcessor) onMemberUpdate(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
	if e.Member == nil || e.User == nil {
		return
	}
	now := up.now()
	if timedOut(e.Member, now) {
		return
	}
	if e.BeforeUpdate != nil && !timedOut(e.BeforeUpdate, now) {
		return
	}
	up.process("guild_member_update", func(ctx context.Context) error {
		return up.events.HandleTimeoutLifted(ctx, discord.ParseID(e.GuildID), discord.ParseID(e.User.ID))
	})
}

func timedOut(m *discordgo.Member, now time.Time) bool {
	return m.CommunicationDisabledUntil != nil && m.CommunicationDisabledUntil.After(now)
}

func (up *UpdateProcessor) onRuleDelete(_ *discordgo.Session, e *discordgo.AutoModerationRuleDelete) {
	if e.AutoModerationRule == nil {
		return
	}
	up.process("automod_rule_delete", func(ctx context.Context) error {
		return up.events.HandleAutomodRuleDelete(ctx, discord.ParseID(e.ID))
	})
}

func (up *UpdateProcessor) onRuleUpdate(_ *discordgo.Session, e *discordgo.AutoModerationRuleUpdate) {
	if e.AutoModerationRule == nil {
		return
	}
	up.process("automod_rule_update", func(ctx context.Context) error {
		return up.events.HandleAutomodRuleUpdate(ctx, discord.ParseID(e.ID))
	})
}

// onGuildDelete drops cached configuration when the bot left the guild.
// Outages deliver the same event with the guild marked unavailable.
func (up *UpdateProcessor) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	if e.Guild == nil || e.Unavailable {
		return
	}
	up.process("guild_delete", func(ctx context.Context) error {
		return up.events.HandleGuildRemove(ctx, discord.ParseID(e.ID))
	})
}
