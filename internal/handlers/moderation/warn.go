package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/db"
	"github.com/iamwavecut/ngmod/internal/i18n"
)

const (
	MinWarnPoints      = 1
	MaxWarnPoints      = 20
	MaxWarnReasonRunes = 128

	maxEmbedFields = 25
	maxChoices     = 25
)

// WarnAdd records moderator-issued points through the same path as automod points.
func (c *Commands) WarnAdd(ctx context.Context, inv *Invocation, target *Member, points int, reason string) (*Response, error) {
	if target.Bot {
		return reply(i18n.Get("Bots cannot be punished.", inv.Locale)), nil
	}
	if points < MinWarnPoints || points > MaxWarnPoints || reason == "" || len([]rune(reason)) > MaxWarnReasonRunes {
		return reply(i18n.Get("The provided value is invalid.", inv.Locale)), nil
	}
	guild, err := c.platform.Guild(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	msg, err := c.checkTarget(ctx, inv, guild, target)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		return reply(msg), nil
	}

	cfg, err := c.configs.Moderation(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("load moderation config: %w", err)
	}
	switch {
	case cfg == nil:
		return reply(i18n.Get("Moderation has not been set up for this server.", inv.Locale)), nil
	case !cfg.Active:
		return reply(i18n.Get("Moderation is currently disabled.", inv.Locale)), nil
	case len(cfg.AutomodActions) == 0:
		return reply(i18n.Get("There are no point actions configured.", inv.Locale)), nil
	}

	if _, err := c.enforcer.Warn(ctx, cfg, guild, target, inv.Invoker, points, reason); err != nil {
		return nil, err
	}
	return reply(i18n.Getf("%s has been warned.", inv.Locale, target.Mention())), nil
}

func (c *Commands) WarnRemove(ctx context.Context, inv *Invocation, user *Member, id int64) (*Response, error) {
	if user.Bot {
		return reply(i18n.Get("Bots cannot be punished.", inv.Locale)), nil
	}
	removed, err := c.ledger.Remove(ctx, inv.GuildID, user.UserID, id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return reply(i18n.Getf("There is no warning with the id `%d`", inv.Locale, id)), nil
	}
	return reply(i18n.Get("The warning has been removed.", inv.Locale)), nil
}

func (c *Commands) WarnRemoveAll(ctx context.Context, inv *Invocation, user *Member) (*Response, error) {
	if user.Bot {
		return reply(i18n.Get("Bots cannot be punished.", inv.Locale)), nil
	}
	n, err := c.ledger.Reset(ctx, inv.GuildID, user.UserID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return reply(i18n.Getf("%s has no warnings", inv.Locale, user.Username)), nil
	}
	return reply(i18n.Get("All warnings have been removed.", inv.Locale)), nil
}

// WarnList shows active and expired warnings of a user, newest first.
func (c *Commands) WarnList(ctx context.Context, inv *Invocation, user *Member) (*Response, error) {
	if user.Bot {
		return reply(i18n.Get("Bots cannot be punished.", inv.Locale)), nil
	}
	list, err := c.ledger.List(ctx, inv.GuildID, user.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return reply(i18n.Getf("%s has no warnings", inv.Locale, user.Username)), nil
	}

	var active, expired []*db.Infraction
	for _, inf := range list {
		if c.ledger.Active(inf) {
			active = append(active, inf)
		} else {
			expired = append(expired, inf)
		}
	}

	total, err := c.ledger.Total(ctx, inv.GuildID, user.UserID)
	if err != nil {
		return nil, err
	}
	resp := &Response{Ephemeral: true}
	head := warningsEmbed(i18n.Get("Active warnings", inv.Locale), active, inv.Locale)
	head.Author = &discordgo.MessageEmbedAuthor{Name: user.Username, IconURL: user.AvatarURL}
	head.Description = i18n.Getf("Active points: %d/%d", inv.Locale, total, c.ledger.Threshold())
	resp.Embeds = append(resp.Embeds, head)
	if len(expired) > 0 {
		resp.Embeds = append(resp.Embeds, warningsEmbed(i18n.Get("Expired warnings", inv.Locale), expired, inv.Locale))
	}
	resp.Embeds = fitEmbeds(resp.Embeds)
	return resp, nil
}

func warningsEmbed(title string, list []*db.Infraction, lang string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{Title: title, Color: embedColor}
	for i, inf := range list {
		if i == maxEmbedFields {
			break
		}
		expires := i18n.Get("No expiration", lang)
		if inf.ExpiresAt != nil {
			expires = discordTimestamp(*inf.ExpiresAt, "f")
		}
		value := strings.Join([]string{
			fmt.Sprintf("**%s:** %d", i18n.Get("Points", lang), inf.Points),
			fmt.Sprintf("**%s:** %s", i18n.Get("Expires at", lang), expires),
			fmt.Sprintf("**%s:** %s", i18n.Get("Reason", lang), inf.Reason),
		}, "\n")
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   i18n.Getf("Warning #%d", lang, inf.ID),
			Value:  truncate(value, maxFieldValue),
			Inline: true,
		})
	}
	return embed
}

// Punish applies every entry of a stored punishment template whose check passes.
func (c *Commands) Punish(ctx context.Context, inv *Invocation, target *Member, templateID int64) (*Response, error) {
	list, err := c.configs.Punishments(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("load punishments: %w", err)
	}
	if len(list) == 0 {
		return reply(i18n.Get("There are no punishments configured.", inv.Locale)), nil
	}
	var template *db.Punishment
	for _, p := range list {
		if p.ID == templateID {
			template = p
			break
		}
	}
	if template == nil {
		return reply(i18n.Get("The provided template does not exist.", inv.Locale)), nil
	}

	guild, err := c.platform.Guild(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	msg, err := c.checkTarget(ctx, inv, guild, target)
	if err != nil {
		return nil, err
	}
	if msg != "" {
		return reply(msg), nil
	}
	cfg, err := c.configs.Moderation(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("load moderation config: %w", err)
	}
	if cfg == nil {
		cfg = &db.ModerationConfig{GuildID: inv.GuildID}
	}

	var reason string
	if template.Reason != nil {
		reason = *template.Reason
	}
	now := c.now()
	for _, action := range template.Actions {
		if !checkPasses(target, action.Check, now) {
			continue
		}
		err := c.enforcer.Apply(ctx, cfg, &Trigger{
			Guild:     guild,
			Member:    target,
			Action:    action,
			Reason:    reason,
			Moderator: inv.Invoker,
		})
		if err != nil {
			return nil, err
		}
	}
	return reply(i18n.Get("The user has been punished.", inv.Locale)), nil
}

// PunishChoices lists templates for autocompletion, matching names first.
func (c *Commands) PunishChoices(ctx context.Context, guildID int64, search string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	list, err := c.configs.Punishments(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load punishments: %w", err)
	}
	search = strings.ToLower(search)
	var matching, rest []*db.Punishment
	for _, p := range list {
		if search == "" || strings.Contains(strings.ToLower(p.Name), search) {
			matching = append(matching, p)
		} else {
			rest = append(rest, p)
		}
	}
	ordered := append(matching, rest...)
	if len(ordered) > maxChoices {
		ordered = ordered[:maxChoices]
	}
	res := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(ordered))
	for _, p := range ordered {
		res = append(res, &discordgo.ApplicationCommandOptionChoice{Name: p.Name, Value: p.ID})
	}
	return res, nil
}
