package moderation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/i18n"
)

var singleInvitePattern = regexp.MustCompile(`(?i)^(?:https?://)?discord(?:(?:app)?\.com/invite?|\.gg)/([a-zA-Z0-9-]{2,32})$`)

// InviteInfo shows details of an invite given as a link.
func (c *Commands) InviteInfo(ctx context.Context, inv *Invocation, link string) (*Response, error) {
	match := singleInvitePattern.FindStringSubmatch(strings.TrimSpace(link))
	if match == nil {
		return reply(i18n.Get("The input is not a valid invite.", inv.Locale)), nil
	}
	return c.inviteInfo(ctx, inv, match[1])
}

// InviteInfoFromMessage shows details of the first invite found in msg.
func (c *Commands) InviteInfoFromMessage(ctx context.Context, inv *Invocation, msg *Message) (*Response, error) {
	codes := inviteCodes(msg.Content)
	if len(codes) == 0 {
		return reply(i18n.Get("This message does not contain an invite.", inv.Locale)), nil
	}
	return c.inviteInfo(ctx, inv, codes[0])
}

func (c *Commands) inviteInfo(ctx context.Context, inv *Invocation, code string) (*Response, error) {
	invite, err := c.platform.Invite(ctx, code, true)
	switch {
	case errors.Is(err, nerrors.ErrNotFound):
		return reply(i18n.Get("The invite does not exist.", inv.Locale)), nil
	case errors.Is(err, nerrors.ErrRateLimited):
		return cooldownReply(inv, nerrors.RetryAfter(err)), nil
	case err != nil:
		return nil, fmt.Errorf("fetch invite: %w", err)
	}
	return &Response{Embeds: []*discordgo.MessageEmbed{inviteEmbed(invite, inv.Locale)}, Ephemeral: true}, nil
}

func inviteEmbed(invite *Invite, lang string) *discordgo.MessageEmbed {
	noDate := i18n.Get("No date", lang)
	created, expires := noDate, noDate
	if invite.CreatedAt != nil {
		created = discordTimestamp(*invite.CreatedAt, "f")
	}
	if invite.ExpiresAt != nil {
		expires = discordTimestamp(*invite.ExpiresAt, "f")
	}
	maxUses := "∞"
	if invite.MaxUses > 0 {
		maxUses = strconv.Itoa(invite.MaxUses)
	}

	embed := &discordgo.MessageEmbed{
		Title:       i18n.Get("Invite information", lang),
		Description: i18n.Getf("Information about the invite `%s`", lang, invite.Code),
		Color:       embedColor,
	}
	if invite.GuildIconURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: invite.GuildIconURL}
	}
	addField(embed, i18n.Get("Invite", lang), strings.Join([]string{
		fmt.Sprintf("> __%s:__ https://discord.gg/%s", i18n.Get("Url", lang), invite.Code),
		fmt.Sprintf("> __%s:__ %d/%s", i18n.Get("Uses", lang), invite.Uses, maxUses),
		fmt.Sprintf("> __%s:__ %s", i18n.Get("Created at", lang), created),
		fmt.Sprintf("> __%s:__ %s", i18n.Get("Expires at", lang), expires),
	}, "\n"))
	if invite.InviterID != 0 {
		addField(embed, i18n.Get("Inviter", lang), strings.Join([]string{
			fmt.Sprintf("> __%s:__ %d", i18n.Get("ID", lang), invite.InviterID),
			fmt.Sprintf("> __%s:__ %s", i18n.Get("Name", lang), invite.InviterName),
			fmt.Sprintf("> __%s:__ <@%d>", i18n.Get("Mention", lang), invite.InviterID),
		}, "\n"))
	}
	addField(embed, i18n.Get("Server", lang), strings.Join([]string{
		fmt.Sprintf("> __%s:__ %s", i18n.Get("Name", lang), invite.GuildName),
		fmt.Sprintf("> __%s:__ %d", i18n.Get("ID", lang), invite.GuildID),
		fmt.Sprintf("> __%s:__ %d", i18n.Get("Member count", lang), invite.ApproxMembers),
	}, "\n"))
	return embed
}
