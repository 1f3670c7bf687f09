package discord

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

const deletedUserPrefix = "deleted_user_"

// ParseID parses a snowflake, returning zero for empty or malformed input.
func ParseID(s string) int64 {
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// FormatID formats a snowflake, zero becomes the empty string.
func FormatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func createdAt(id string) time.Time {
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ConvertGuild maps a platform guild with its roles.
func ConvertGuild(g *discordgo.Guild) *moderation.Guild {
	res := &moderation.Guild{
		Guild: permissions.Guild{
			ID:      ParseID(g.ID),
			OwnerID: ParseID(g.OwnerID),
			Roles:   make(map[int64]permissions.Role, len(g.Roles)),
		},
		Name:   g.Name,
		Locale: string(g.PreferredLocale),
	}
	for _, r := range g.Roles {
		id := ParseID(r.ID)
		res.Roles[id] = permissions.Role{ID: id, Position: r.Position, Permissions: r.Permissions}
	}
	return res
}

// ConvertUser maps a user that is not necessarily a guild member.
func ConvertUser(guildID int64, u *discordgo.User) *moderation.Member {
	return &moderation.Member{
		GuildID:   guildID,
		UserID:    ParseID(u.ID),
		Username:  u.Username,
		Bot:       u.Bot,
		HasAvatar: u.Avatar != "",
		AvatarURL: u.AvatarURL(""),
		CreatedAt: createdAt(u.ID),
		Deleted:   u.Discriminator == "0000" || strings.HasPrefix(u.Username, deletedUserPrefix),
	}
}

// ConvertMember maps a guild member. The user may be passed separately for
// partial members delivered with interactions and messages.
func ConvertMember(guildID int64, m *discordgo.Member, u *discordgo.User) *moderation.Member {
	if u == nil && m != nil {
		u = m.User
	}
	if u == nil {
		return nil
	}
	res := ConvertUser(guildID, u)
	if m == nil {
		return res
	}
	if m.Avatar != "" {
		res.HasAvatar = true
	}
	res.JoinedAt = m.JoinedAt
	res.Roles = make([]int64, 0, len(m.Roles))
	for _, r := range m.Roles {
		res.Roles = append(res.Roles, ParseID(r))
	}
	return res
}

// ConvertMessage maps a message; parentID is the parent channel of a thread.
func ConvertMessage(m *discordgo.Message, parentID int64) *moderation.Message {
	guildID := ParseID(m.GuildID)
	res := &moderation.Message{
		ID:          ParseID(m.ID),
		GuildID:     guildID,
		ChannelID:   ParseID(m.ChannelID),
		ParentID:    parentID,
		Content:     m.Content,
		Attachments: len(m.Attachments),
		Embeds:      len(m.Embeds),
		CreatedAt:   m.Timestamp,
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = createdAt(m.ID)
	}
	if m.Author != nil {
		res.Author = ConvertMember(guildID, m.Member, m.Author)
	}
	return res
}

func ConvertInvite(inv *discordgo.Invite) *moderation.Invite {
	res := &moderation.Invite{
		Code:          inv.Code,
		Uses:          inv.Uses,
		MaxUses:       inv.MaxUses,
		ApproxMembers: inv.ApproximateMemberCount,
		ExpiresAt:     inv.ExpiresAt,
	}
	if !inv.CreatedAt.IsZero() {
		created := inv.CreatedAt
		res.CreatedAt = &created
	}
	if inv.Guild != nil {
		res.GuildID = ParseID(inv.Guild.ID)
		res.GuildName = inv.Guild.Name
		res.GuildIconURL = inv.Guild.IconURL("")
	}
	if inv.Channel != nil {
		res.ChannelID = ParseID(inv.Channel.ID)
	}
	if inv.Inviter != nil {
		res.InviterID = ParseID(inv.Inviter.ID)
		res.InviterName = inv.Inviter.Username
	}
	return res
}

func ConvertAutomodExecution(e *discordgo.AutoModerationActionExecution, parentID int64) *moderation.AutomodExecution {
	return &moderation.AutomodExecution{
		GuildID:        ParseID(e.GuildID),
		RuleID:         ParseID(e.RuleID),
		UserID:         ParseID(e.UserID),
		ChannelID:      ParseID(e.ChannelID),
		ParentID:       parentID,
		TriggerType:    int(e.RuleTriggerType),
		ActionType:     int(e.Action.Type),
		Content:        e.Content,
		MatchedContent: e.MatchedContent,
	}
}
