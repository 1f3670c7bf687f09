package moderation

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

// Platform trigger and action types of native automod executions that are handled.
const (
	TriggerKeyword     = 1
	TriggerMentionSpam = 5

	AutomodActionBlockMessage = 1
)

type (
	Member struct {
		GuildID   int64
		UserID    int64
		Username  string
		Bot       bool
		HasAvatar bool
		AvatarURL string
		Roles     []int64
		JoinedAt  time.Time
		CreatedAt time.Time
		// Deleted marks accounts removed by the platform.
		Deleted bool
	}

	Message struct {
		ID          int64
		GuildID     int64
		ChannelID   int64
		ParentID    int64
		Author      *Member
		Content     string
		Attachments int
		Embeds      int
		CreatedAt   time.Time
	}

	Guild struct {
		permissions.Guild
		Name   string
		Locale string
	}

	Invite struct {
		Code          string
		GuildID       int64
		GuildName     string
		GuildIconURL  string
		ChannelID     int64
		InviterID     int64
		InviterName   string
		Uses          int
		MaxUses       int
		ApproxMembers int
		CreatedAt     *time.Time
		ExpiresAt     *time.Time
	}

	// AutomodExecution is a platform-native automod rule firing.
	AutomodExecution struct {
		GuildID        int64
		RuleID         int64
		UserID         int64
		ChannelID      int64
		ParentID       int64
		TriggerType    int
		ActionType     int
		Content        string
		MatchedContent string
	}
)

// Platform is the chat platform surface consumed by the moderation core.
type Platform interface {
	BotUserID() int64
	Guild(ctx context.Context, guildID int64) (*Guild, error)
	Member(ctx context.Context, guildID, userID int64) (*Member, error)
	Members(ctx context.Context, guildID int64) ([]*Member, error)
	ChannelPermissions(ctx context.Context, channelID, userID int64) (int64, error)

	Ban(ctx context.Context, guildID, userID int64, reason string, deleteMessageDays int) error
	Unban(ctx context.Context, guildID, userID int64, reason string) error
	Kick(ctx context.Context, guildID, userID int64, reason string) error
	// Timeout mutes the member until the given time; nil lifts the timeout.
	Timeout(ctx context.Context, guildID, userID int64, until *time.Time, reason string) error
	AddRole(ctx context.Context, guildID, userID, roleID int64, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID int64, reason string) error

	DeleteMessage(ctx context.Context, channelID, messageID int64, reason string) error
	BulkDeleteMessages(ctx context.Context, channelID int64, messageIDs []int64, reason string) error
	// ChannelMessages returns up to limit (max 100) messages, newest first, strictly
	// between after and before when they are non-zero.
	ChannelMessages(ctx context.Context, channelID int64, limit int, before, after int64) ([]*Message, error)
	SetSlowmode(ctx context.Context, channelID int64, seconds int) error

	SendDirectMessage(ctx context.Context, userID int64, content string) error
	SendEmbeds(ctx context.Context, channelID int64, embeds []*discordgo.MessageEmbed) error
	ExecuteWebhook(ctx context.Context, webhookID int64, token string, embeds []*discordgo.MessageEmbed) error

	Invite(ctx context.Context, code string, withCounts bool) (*Invite, error)
}
