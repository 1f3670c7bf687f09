package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/infra"
	"github.com/iamwavecut/ngmod/internal/infrastructure/discord"
	"github.com/iamwavecut/ngmod/internal/observability"
)

const (
	componentMassbanConfirm = "massban-confirm"
	componentMassbanCancel  = "massban-cancel"
)

// Interactions routes slash commands, autocompletion and buttons to the
// moderation commands. Commands are deferred ephemerally and their response
// replaces the deferred message.
type Interactions struct {
	responder Responder
	commands  Commands
}

func NewInteractions(responder Responder, commands Commands) *Interactions {
	return &Interactions{responder: responder, commands: commands}
}

func (r *Interactions) getLogEntry() *log.Entry {
	return log.WithField("context", "interactions")
}

func (r *Interactions) Handle(ctx context.Context, i *discordgo.Interaction) error {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return nil
	}
	inv := invocation(i)
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		return r.command(ctx, i, inv)
	case discordgo.InteractionApplicationCommandAutocomplete:
		return r.autocomplete(ctx, i, inv)
	case discordgo.InteractionMessageComponent:
		return r.component(ctx, i, inv)
	}
	return nil
}

func invocation(i *discordgo.Interaction) *moderation.Invocation {
	guildID := discord.ParseID(i.GuildID)
	return &moderation.Invocation{
		GuildID:   guildID,
		ChannelID: discord.ParseID(i.ChannelID),
		Invoker:   discord.ConvertMember(guildID, i.Member, nil),
		Locale:    string(i.Locale),
	}
}

func (r *Interactions) command(ctx context.Context, i *discordgo.Interaction, inv *moderation.Invocation) error {
	data := i.ApplicationCommandData()
	if err := r.responder.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("defer interaction: %w", err)
	}
	return r.run(ctx, i, inv, data.Name, func() (*moderation.Response, error) {
		return r.dispatch(ctx, inv, &data)
	})
}

func (r *Interactions) component(ctx context.Context, i *discordgo.Interaction, inv *moderation.Invocation) error {
	customID := i.MessageComponentData().CustomID

	var (
		name   string
		handle func(ctx context.Context, inv *moderation.Invocation, token string) (*moderation.Response, error)
		token  string
	)
	switch {
	case strings.HasPrefix(customID, moderation.MassbanConfirmPrefix):
		name, handle, token = componentMassbanConfirm, r.commands.MassbanConfirm, strings.TrimPrefix(customID, moderation.MassbanConfirmPrefix)
	case strings.HasPrefix(customID, moderation.MassbanCancelPrefix):
		name, handle, token = componentMassbanCancel, r.commands.MassbanCancel, strings.TrimPrefix(customID, moderation.MassbanCancelPrefix)
	default:
		r.getLogEntry().WithField("custom_id", customID).Debug("unknown component")
		return nil
	}

	if err := r.responder.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("defer component: %w", err)
	}
	return r.run(ctx, i, inv, name, func() (*moderation.Response, error) {
		return handle(ctx, inv, token)
	})
}

// run executes a handler, records the outcome and edits the deferred reply.
// Failures and panics get a generic localized reply.
func (r *Interactions) run(ctx context.Context, i *discordgo.Interaction, inv *moderation.Invocation, name string, f func() (*moderation.Response, error)) error {
	var resp *moderation.Response
	err := infra.Recover("command "+name, func() error {
		var err error
		resp, err = f()
		return err
	})
	result := "ok"
	if err != nil || resp == nil {
		result = "error"
		r.getLogEntry().
			WithError(err).
			WithField("command", name).
			WithField("guild_id", inv.GuildID).
			WithField("user_id", inv.Invoker.UserID).
			Error("command failed")
		resp = &moderation.Response{Content: i18n.Get("Something went wrong while running this command.", inv.Locale), Ephemeral: true}
	}
	observability.RecordCommand(name, result)
	return r.edit(ctx, i, resp)
}

func (r *Interactions) edit(ctx context.Context, i *discordgo.Interaction, resp *moderation.Response) error {
	content := resp.Content
	embeds := resp.Embeds
	if embeds == nil {
		embeds = []*discordgo.MessageEmbed{}
	}
	components := resp.Components
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	_, err := r.responder.InteractionResponseEdit(i, &discordgo.WebhookEdit{
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit interaction response: %w", err)
	}
	return nil
}

func (r *Interactions) autocomplete(ctx context.Context, i *discordgo.Interaction, inv *moderation.Invocation) error {
	data := i.ApplicationCommandData()
	opt := focused(data.Options)
	if opt == nil {
		return nil
	}
	value := fmt.Sprint(opt.Value)

	var choices []*discordgo.ApplicationCommandOptionChoice
	switch opt.Name {
	case OptionDuration:
		choices = moderation.DurationChoices(value, inv.Locale)
	case OptionTemplate:
		var err error
		if choices, err = r.commands.PunishChoices(ctx, inv.GuildID, value); err != nil {
			r.getLogEntry().WithError(err).WithField("guild_id", inv.GuildID).Warn("cant list punishment templates")
		}
	}
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	err := r.responder.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("respond autocomplete: %w", err)
	}
	return nil
}

func (r *Interactions) dispatch(ctx context.Context, inv *moderation.Invocation, data *discordgo.ApplicationCommandInteractionData) (*moderation.Response, error) {
	opts := optionsOf(data.Options)
	target := func() *moderation.Member {
		return resolveMember(inv.GuildID, data, opts.id(OptionUser))
	}

	switch data.Name {
	case CommandBan:
		return r.commands.Ban(ctx, inv, target(), opts.str(OptionReason))
	case CommandKick:
		return r.commands.Kick(ctx, inv, target(), opts.str(OptionReason))
	case CommandSoftban:
		return r.commands.Softban(ctx, inv, target(), opts.str(OptionReason))
	case CommandTempban:
		return r.commands.Tempban(ctx, inv, target(), opts.str(OptionDuration), opts.str(OptionReason))
	case CommandTempmute:
		return r.commands.Tempmute(ctx, inv, target(), opts.str(OptionDuration), opts.str(OptionReason))
	case CommandUnban:
		return r.commands.Unban(ctx, inv, target(), opts.str(OptionReason))
	case CommandUnmute:
		return r.commands.Unmute(ctx, inv, target(), opts.str(OptionReason))
	case CommandSlowmode:
		return r.commands.Slowmode(ctx, inv, int(opts.integer(OptionSeconds)))
	case CommandClear:
		filter, sub := subcommand(data.Options)
		return r.commands.Clear(ctx, inv, moderation.ClearArgs{
			Filter:   moderation.ClearFilter(filter),
			Amount:   int(sub.integer(OptionAmount)),
			Contains: sub.str(OptionText),
			UserID:   sub.id(OptionUser),
			Reason:   sub.str(OptionReason),
		})
	case CommandWarn:
		return r.warn(ctx, inv, data)
	case CommandMassban:
		return r.commands.Massban(ctx, inv, massbanArgs(inv.GuildID, data, opts))
	case CommandPunish:
		return r.commands.Punish(ctx, inv, target(), opts.integer(OptionTemplate))
	case CommandInviteInfo:
		return r.commands.InviteInfo(ctx, inv, opts.str(OptionInvite))
	case CommandInviteInfoMessage:
		if data.Resolved == nil || data.Resolved.Messages[data.TargetID] == nil {
			return nil, fmt.Errorf("target message %s not resolved", data.TargetID)
		}
		msg := discord.ConvertMessage(data.Resolved.Messages[data.TargetID], 0)
		if msg.GuildID == 0 {
			msg.GuildID = inv.GuildID
		}
		return r.commands.InviteInfoFromMessage(ctx, inv, msg)
	}
	return nil, fmt.Errorf("unknown command %q", data.Name)
}

func (r *Interactions) warn(ctx context.Context, inv *moderation.Invocation, data *discordgo.ApplicationCommandInteractionData) (*moderation.Response, error) {
	name, sub := subcommand(data.Options)
	user := resolveMember(inv.GuildID, data, sub.id(OptionUser))
	switch name {
	case SubWarnAdd:
		return r.commands.WarnAdd(ctx, inv, user, int(sub.integer(OptionPoints)), sub.str(OptionReason))
	case SubWarnRemove:
		return r.commands.WarnRemove(ctx, inv, user, sub.integer(OptionID))
	case SubWarnRemoveAll:
		return r.commands.WarnRemoveAll(ctx, inv, user)
	case SubWarnList:
		return r.commands.WarnList(ctx, inv, user)
	}
	return nil, fmt.Errorf("unknown warn subcommand %q", name)
}

func massbanArgs(guildID int64, data *discordgo.ApplicationCommandInteractionData, opts options) moderation.MassbanArgs {
	args := moderation.MassbanArgs{
		Reason:             opts.str(OptionReason),
		ChannelID:          opts.id(OptionChannel),
		Amount:             int(opts.integer(OptionAmount)),
		Contains:           opts.str(OptionContains),
		StartsWith:         opts.str(OptionStartsWith),
		EndsWith:           opts.str(OptionEndsWith),
		HasEmbed:           opts.flag(OptionHasEmbed),
		HasAttachment:      opts.flag(OptionHasAttachment),
		SentAfter:          opts.id(OptionAfter),
		SentBefore:         opts.id(OptionBefore),
		HasAvatar:          opts.flag(OptionHasAvatar),
		HasRole:            opts.flag(OptionHasRole),
		UsernameRegex:      opts.str(OptionUsernameRegex),
		AccountYoungerDays: int(opts.integer(OptionAccountYoungerDays)),
		JoinedWithinDays:   int(opts.integer(OptionJoinedWithinDays)),
	}
	if id := opts.id(OptionJoinedAfter); id != 0 {
		args.JoinedAfter = resolveMember(guildID, data, id)
	}
	if id := opts.id(OptionJoinedBefore); id != 0 {
		args.JoinedBefore = resolveMember(guildID, data, id)
	}
	return args
}

// resolveMember builds the target from the resolved interaction data. Users
// that are not members come back without a join date.
func resolveMember(guildID int64, data *discordgo.ApplicationCommandInteractionData, userID int64) *moderation.Member {
	key := discord.FormatID(userID)
	var (
		m *discordgo.Member
		u *discordgo.User
	)
	if data.Resolved != nil {
		m = data.Resolved.Members[key]
		u = data.Resolved.Users[key]
	}
	if res := discord.ConvertMember(guildID, m, u); res != nil {
		return res
	}
	return &moderation.Member{GuildID: guildID, UserID: userID}
}
