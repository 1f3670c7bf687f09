package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
)

type (
	// Commands is the moderator command surface the interaction router dispatches to.
	Commands interface {
		Ban(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error)
		Kick(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error)
		Softban(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error)
		Tempban(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, duration, reason string) (*moderation.Response, error)
		Tempmute(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, duration, reason string) (*moderation.Response, error)
		Unmute(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error)
		Unban(ctx context.Context, inv *moderation.Invocation, user *moderation.Member, reason string) (*moderation.Response, error)
		Slowmode(ctx context.Context, inv *moderation.Invocation, seconds int) (*moderation.Response, error)
		Clear(ctx context.Context, inv *moderation.Invocation, args moderation.ClearArgs) (*moderation.Response, error)

		WarnAdd(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, points int, reason string) (*moderation.Response, error)
		WarnRemove(ctx context.Context, inv *moderation.Invocation, user *moderation.Member, id int64) (*moderation.Response, error)
		WarnRemoveAll(ctx context.Context, inv *moderation.Invocation, user *moderation.Member) (*moderation.Response, error)
		WarnList(ctx context.Context, inv *moderation.Invocation, user *moderation.Member) (*moderation.Response, error)
		Punish(ctx context.Context, inv *moderation.Invocation, target *moderation.Member, templateID int64) (*moderation.Response, error)
		PunishChoices(ctx context.Context, guildID int64, search string) ([]*discordgo.ApplicationCommandOptionChoice, error)

		Massban(ctx context.Context, inv *moderation.Invocation, args moderation.MassbanArgs) (*moderation.Response, error)
		MassbanConfirm(ctx context.Context, inv *moderation.Invocation, token string) (*moderation.Response, error)
		MassbanCancel(ctx context.Context, inv *moderation.Invocation, token string) (*moderation.Response, error)

		InviteInfo(ctx context.Context, inv *moderation.Invocation, link string) (*moderation.Response, error)
		InviteInfoFromMessage(ctx context.Context, inv *moderation.Invocation, msg *moderation.Message) (*moderation.Response, error)
	}

	Automod interface {
		HandleMessage(ctx context.Context, msg *moderation.Message) error
		HandleMessageEdit(ctx context.Context, before, after *moderation.Message) error
		HandleAutomodExecution(ctx context.Context, exec *moderation.AutomodExecution) error
	}

	Events interface {
		HandleBanRemove(ctx context.Context, guildID, userID int64) error
		HandleTimeoutLifted(ctx context.Context, guildID, userID int64) error
		HandleAutomodRuleDelete(ctx context.Context, ruleID int64) error
		HandleAutomodRuleUpdate(ctx context.Context, ruleID int64) error
		HandleGuildRemove(ctx context.Context, guildID int64) error
	}

	// Converter turns gateway payloads into moderation types using session state.
	Converter interface {
		Message(m *discordgo.Message) *moderation.Message
		AutomodExecution(e *discordgo.AutoModerationActionExecution) *moderation.AutomodExecution
	}

	Responder interface {
		InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
		InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	}
)
