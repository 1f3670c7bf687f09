// Package discord implements the moderation platform over a discordgo session.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
)

const membersPageSize = 1000

// Operations provides the platform calls used by the moderation core.
type Operations struct {
	session *discordgo.Session
}

var _ moderation.Platform = (*Operations)(nil)

func NewOperations(session *discordgo.Session) *Operations {
	return &Operations{session: session}
}

func (o *Operations) getLogEntry() *log.Entry {
	return log.WithField("context", "discord")
}

func opts(ctx context.Context, reason string) []discordgo.RequestOption {
	res := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		res = append(res, discordgo.WithAuditLogReason(reason))
	}
	return res
}

func (o *Operations) BotUserID() int64 {
	if o.session.State == nil || o.session.State.User == nil {
		return 0
	}
	return ParseID(o.session.State.User.ID)
}

func (o *Operations) Guild(ctx context.Context, guildID int64) (*moderation.Guild, error) {
	if o.session.State != nil {
		if g, err := o.session.State.Guild(FormatID(guildID)); err == nil && len(g.Roles) > 0 {
			return ConvertGuild(g), nil
		}
	}
	g, err := o.session.Guild(FormatID(guildID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", mapError(err))
	}
	return ConvertGuild(g), nil
}

func (o *Operations) Member(ctx context.Context, guildID, userID int64) (*moderation.Member, error) {
	if o.session.State != nil {
		if m, err := o.session.State.Member(FormatID(guildID), FormatID(userID)); err == nil && m.User != nil {
			return ConvertMember(guildID, m, nil), nil
		}
	}
	m, err := o.session.GuildMember(FormatID(guildID), FormatID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get member: %w", mapError(err))
	}
	return ConvertMember(guildID, m, nil), nil
}

func (o *Operations) Members(ctx context.Context, guildID int64) ([]*moderation.Member, error) {
	var (
		res   []*moderation.Member
		after string
	)
	for {
		page, err := o.session.GuildMembers(FormatID(guildID), after, membersPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list members: %w", mapError(err))
		}
		for _, m := range page {
			if member := ConvertMember(guildID, m, nil); member != nil {
				res = append(res, member)
			}
		}
		if len(page) < membersPageSize {
			o.getLogEntry().WithField("guild_id", guildID).WithField("count", len(res)).Debug("listed members")
			return res, nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (o *Operations) ChannelPermissions(ctx context.Context, channelID, userID int64) (int64, error) {
	perms, err := o.session.UserChannelPermissions(FormatID(userID), FormatID(channelID), discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("channel permissions: %w", mapError(err))
	}
	return perms, nil
}

func (o *Operations) Ban(ctx context.Context, guildID, userID int64, reason string, deleteMessageDays int) error {
	err := o.session.GuildBanCreateWithReason(FormatID(guildID), FormatID(userID), reason, deleteMessageDays, discordgo.WithContext(ctx))
	return mapError(err)
}

func (o *Operations) Unban(ctx context.Context, guildID, userID int64, reason string) error {
	return mapError(o.session.GuildBanDelete(FormatID(guildID), FormatID(userID), opts(ctx, reason)...))
}

func (o *Operations) Kick(ctx context.Context, guildID, userID int64, reason string) error {
	return mapError(o.session.GuildMemberDeleteWithReason(FormatID(guildID), FormatID(userID), reason, discordgo.WithContext(ctx)))
}

func (o *Operations) Timeout(ctx context.Context, guildID, userID int64, until *time.Time, reason string) error {
	return mapError(o.session.GuildMemberTimeout(FormatID(guildID), FormatID(userID), until, opts(ctx, reason)...))
}

func (o *Operations) AddRole(ctx context.Context, guildID, userID, roleID int64, reason string) error {
	return mapError(o.session.GuildMemberRoleAdd(FormatID(guildID), FormatID(userID), FormatID(roleID), opts(ctx, reason)...))
}

func (o *Operations) RemoveRole(ctx context.Context, guildID, userID, roleID int64, reason string) error {
	return mapError(o.session.GuildMemberRoleRemove(FormatID(guildID), FormatID(userID), FormatID(roleID), opts(ctx, reason)...))
}

func (o *Operations) DeleteMessage(ctx context.Context, channelID, messageID int64, reason string) error {
	return mapError(o.session.ChannelMessageDelete(FormatID(channelID), FormatID(messageID), opts(ctx, reason)...))
}

func (o *Operations) BulkDeleteMessages(ctx context.Context, channelID int64, messageIDs []int64, reason string) error {
	ids := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, FormatID(id))
	}
	return mapError(o.session.ChannelMessagesBulkDelete(FormatID(channelID), ids, opts(ctx, reason)...))
}

func (o *Operations) ChannelMessages(ctx context.Context, channelID int64, limit int, before, after int64) ([]*moderation.Message, error) {
	page, err := o.session.ChannelMessages(FormatID(channelID), limit, FormatID(before), FormatID(after), "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("channel messages: %w", mapError(err))
	}
	parentID := o.parentID(channelID)
	res := make([]*moderation.Message, 0, len(page))
	for _, m := range page {
		res = append(res, ConvertMessage(m, parentID))
	}
	return res, nil
}

func (o *Operations) SetSlowmode(ctx context.Context, channelID int64, seconds int) error {
	_, err := o.session.ChannelEdit(FormatID(channelID), &discordgo.ChannelEdit{RateLimitPerUser: &seconds}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (o *Operations) SendDirectMessage(ctx context.Context, userID int64, content string) error {
	ch, err := o.session.UserChannelCreate(FormatID(userID), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("open dm channel: %w", mapError(err))
	}
	if _, err := o.session.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send dm: %w", mapError(err))
	}
	return nil
}

func (o *Operations) SendEmbeds(ctx context.Context, channelID int64, embeds []*discordgo.MessageEmbed) error {
	_, err := o.session.ChannelMessageSendEmbeds(FormatID(channelID), embeds, discordgo.WithContext(ctx))
	return mapError(err)
}

func (o *Operations) ExecuteWebhook(ctx context.Context, webhookID int64, token string, embeds []*discordgo.MessageEmbed) error {
	_, err := o.session.WebhookExecute(FormatID(webhookID), token, false, &discordgo.WebhookParams{Embeds: embeds}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (o *Operations) Invite(ctx context.Context, code string, withCounts bool) (*moderation.Invite, error) {
	inv, err := o.session.InviteComplex(code, "", withCounts, true, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", mapError(err))
	}
	return ConvertInvite(inv), nil
}

// Message converts a gateway message, resolving the thread parent from state.
func (o *Operations) Message(m *discordgo.Message) *moderation.Message {
	return ConvertMessage(m, o.parentID(ParseID(m.ChannelID)))
}

func (o *Operations) AutomodExecution(e *discordgo.AutoModerationActionExecution) *moderation.AutomodExecution {
	return ConvertAutomodExecution(e, o.parentID(ParseID(e.ChannelID)))
}

func (o *Operations) parentID(channelID int64) int64 {
	if o.session.State == nil {
		return 0
	}
	ch, err := o.session.State.Channel(FormatID(channelID))
	if err != nil {
		return 0
	}
	if !ch.IsThread() {
		return 0
	}
	return ParseID(ch.ParentID)
}
