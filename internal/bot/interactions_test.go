package bot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
)

type optionList = []*discordgo.ApplicationCommandInteractionDataOption

func opt(name string, kind discordgo.ApplicationCommandOptionType, value interface{}) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: kind, Value: value}
}

func sub(name string, options ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{Name: name, Type: discordgo.ApplicationCommandOptionSubCommand, Options: options}
}

func resolvedUser(id string, member bool) *discordgo.ApplicationCommandInteractionDataResolved {
	res := &discordgo.ApplicationCommandInteractionDataResolved{
		Users:   map[string]*discordgo.User{id: {ID: id, Username: "target"}},
		Members: map[string]*discordgo.Member{},
	}
	if member {
		res.Members[id] = &discordgo.Member{JoinedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Roles: []string{"20"}}
	}
	return res
}

func interaction(kind discordgo.InteractionType, data discordgo.InteractionData) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      kind,
		GuildID:   "1",
		ChannelID: "40",
		Locale:    discordgo.EnglishUS,
		Member:    &discordgo.Member{User: &discordgo.User{ID: "100", Username: "mod"}, Roles: []string{"20"}},
		Data:      data,
	}
}

func command(name string, options optionList, resolved *discordgo.ApplicationCommandInteractionDataResolved) *discordgo.Interaction {
	return interaction(discordgo.InteractionApplicationCommand, discordgo.ApplicationCommandInteractionData{
		Name:     name,
		Options:  options,
		Resolved: resolved,
	})
}

func newRouter() (*Interactions, *stubCommands, *stubResponder) {
	commands := &stubCommands{}
	responder := &stubResponder{}
	return NewInteractions(responder, commands), commands, responder
}

func TestCommandIsDeferredThenEdited(t *testing.T) {
	t.Parallel()

	router, commands, responder := newRouter()
	i := command(CommandBan, optionList{
		opt(OptionUser, discordgo.ApplicationCommandOptionUser, "300"),
		opt(OptionReason, discordgo.ApplicationCommandOptionString, "spam"),
	}, resolvedUser("300", true))

	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}

	got := commands.last()
	if got.name != "ban" || got.text != "spam" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if got.target.UserID != 300 || got.target.JoinedAt.IsZero() || len(got.target.Roles) != 1 {
		t.Fatalf("unexpected target: %+v", got.target)
	}
	if got.inv.GuildID != 1 || got.inv.ChannelID != 40 || got.inv.Invoker.UserID != 100 || got.inv.Locale != "en-US" {
		t.Fatalf("unexpected invocation: %+v", got.inv)
	}

	if len(responder.responses) != 1 {
		t.Fatalf("expected one deferral, got %d", len(responder.responses))
	}
	deferred := responder.responses[0]
	if deferred.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource || deferred.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Fatalf("unexpected deferral: %+v", deferred)
	}
	if got := responder.lastEdit(); got != "done ban" {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestUnbanTargetsUserOutsideGuild(t *testing.T) {
	t.Parallel()

	router, commands, _ := newRouter()
	i := command(CommandUnban, optionList{opt(OptionUser, discordgo.ApplicationCommandOptionUser, "300")}, resolvedUser("300", false))
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := commands.last(); got.name != "unban" || got.target.UserID != 300 || !got.target.JoinedAt.IsZero() {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestSubcommandArguments(t *testing.T) {
	t.Parallel()

	router, commands, _ := newRouter()

	clearCmd := command(CommandClear, optionList{sub(string(moderation.ClearUser),
		opt(OptionUser, discordgo.ApplicationCommandOptionUser, "300"),
		opt(OptionAmount, discordgo.ApplicationCommandOptionInteger, float64(50)),
	)}, resolvedUser("300", true))
	if err := router.Handle(context.Background(), clearCmd); err != nil {
		t.Fatalf("clear: %v", err)
	}
	got := commands.last()
	if got.clear.Filter != moderation.ClearUser || got.clear.UserID != 300 || got.clear.Amount != 50 {
		t.Fatalf("unexpected clear args: %+v", got.clear)
	}

	warn := command(CommandWarn, optionList{sub(SubWarnAdd,
		opt(OptionUser, discordgo.ApplicationCommandOptionUser, "300"),
		opt(OptionPoints, discordgo.ApplicationCommandOptionInteger, float64(5)),
		opt(OptionReason, discordgo.ApplicationCommandOptionString, "caps"),
	)}, resolvedUser("300", true))
	if err := router.Handle(context.Background(), warn); err != nil {
		t.Fatalf("warn: %v", err)
	}
	got = commands.last()
	if got.name != "warn add" || got.number != 5 || got.text != "caps" || got.target.UserID != 300 {
		t.Fatalf("unexpected warn call: %+v", got)
	}
}

func TestMassbanArguments(t *testing.T) {
	t.Parallel()

	router, commands, _ := newRouter()
	resolved := resolvedUser("301", true)
	i := command(CommandMassban, optionList{
		opt(OptionReason, discordgo.ApplicationCommandOptionString, "raid"),
		opt(OptionChannel, discordgo.ApplicationCommandOptionChannel, "40"),
		opt(OptionAmount, discordgo.ApplicationCommandOptionInteger, float64(200)),
		opt(OptionHasAvatar, discordgo.ApplicationCommandOptionBoolean, false),
		opt(OptionAfter, discordgo.ApplicationCommandOptionString, "123456"),
		opt(OptionUsernameRegex, discordgo.ApplicationCommandOptionString, "spam.*"),
		opt(OptionJoinedAfter, discordgo.ApplicationCommandOptionUser, "301"),
		opt(OptionJoinedWithinDays, discordgo.ApplicationCommandOptionInteger, float64(3)),
	}, resolved)

	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	args := commands.last().massban
	if args.Reason != "raid" || args.ChannelID != 40 || args.Amount != 200 || args.SentAfter != 123456 {
		t.Fatalf("unexpected args: %+v", args)
	}
	if args.HasAvatar == nil || *args.HasAvatar || args.HasRole != nil {
		t.Fatalf("unexpected flags: %+v", args)
	}
	if args.JoinedAfter == nil || args.JoinedAfter.UserID != 301 || args.JoinedAfter.JoinedAt.IsZero() {
		t.Fatalf("unexpected joined after: %+v", args.JoinedAfter)
	}
	if args.JoinedBefore != nil || args.JoinedWithinDays != 3 || args.UsernameRegex != "spam.*" {
		t.Fatalf("unexpected member filters: %+v", args)
	}
}

func TestFailuresGetGenericReply(t *testing.T) {
	t.Parallel()

	for name, setup := range map[string]func(c *stubCommands){
		"error": func(c *stubCommands) { c.err = errStub },
		"panic": func(c *stubCommands) { c.panics = true },
	} {
		router, commands, responder := newRouter()
		setup(commands)
		i := command(CommandKick, optionList{opt(OptionUser, discordgo.ApplicationCommandOptionUser, "300")}, resolvedUser("300", true))
		if err := router.Handle(context.Background(), i); err != nil {
			t.Fatalf("%s: handle: %v", name, err)
		}
		if got := responder.lastEdit(); got != "Something went wrong while running this command." {
			t.Fatalf("%s: unexpected reply %q", name, got)
		}
	}
}

func TestInviteInfoContextMenu(t *testing.T) {
	t.Parallel()

	router, commands, _ := newRouter()
	i := interaction(discordgo.InteractionApplicationCommand, discordgo.ApplicationCommandInteractionData{
		Name:     CommandInviteInfoMessage,
		TargetID: "555",
		Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Messages: map[string]*discordgo.Message{
				"555": {ID: "555", ChannelID: "40", Content: "join discord.gg/abc"},
			},
		},
	})
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := commands.last()
	if got.name != "invite-info message" || got.message.ID != 555 || got.message.GuildID != 1 {
		t.Fatalf("unexpected call: %+v", got)
	}
}

func TestAutocomplete(t *testing.T) {
	t.Parallel()

	router, commands, responder := newRouter()
	duration := opt(OptionDuration, discordgo.ApplicationCommandOptionString, "")
	duration.Focused = true
	i := interaction(discordgo.InteractionApplicationCommandAutocomplete, discordgo.ApplicationCommandInteractionData{
		Name:    CommandTempban,
		Options: optionList{opt(OptionUser, discordgo.ApplicationCommandOptionUser, "300"), duration},
	})
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	resp := responder.responses[0]
	if resp.Type != discordgo.InteractionApplicationCommandAutocompleteResult || len(resp.Data.Choices) != len(moderation.DurationPresets) {
		t.Fatalf("unexpected duration choices: %+v", resp)
	}

	commands.choices = []*discordgo.ApplicationCommandOptionChoice{{Name: "Spam", Value: 3}}
	template := opt(OptionTemplate, discordgo.ApplicationCommandOptionInteger, "sp")
	template.Focused = true
	i = interaction(discordgo.InteractionApplicationCommandAutocomplete, discordgo.ApplicationCommandInteractionData{
		Name:    CommandPunish,
		Options: optionList{template},
	})
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := commands.last(); got.name != "punish choices" || got.text != "sp" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if choices := responder.responses[1].Data.Choices; len(choices) != 1 || choices[0].Name != "Spam" {
		t.Fatalf("unexpected template choices: %+v", choices)
	}
}

func TestMassbanButtons(t *testing.T) {
	t.Parallel()

	router, commands, responder := newRouter()
	i := interaction(discordgo.InteractionMessageComponent, discordgo.MessageComponentInteractionData{
		CustomID: moderation.MassbanConfirmPrefix + "token-1",
	})
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := commands.last(); got.name != "massban confirm" || got.text != "token-1" {
		t.Fatalf("unexpected call: %+v", got)
	}
	if responder.responses[0].Type != discordgo.InteractionResponseDeferredMessageUpdate {
		t.Fatalf("unexpected deferral: %+v", responder.responses[0])
	}
	edit := responder.edits[0]
	if edit.Components == nil || len(*edit.Components) != 0 {
		t.Fatalf("buttons must be removed: %+v", edit.Components)
	}

	i = interaction(discordgo.InteractionMessageComponent, discordgo.MessageComponentInteractionData{CustomID: "unrelated"})
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(responder.responses) != 1 {
		t.Fatal("unknown components must not be answered")
	}
}

func TestDirectMessageInteractionsIgnored(t *testing.T) {
	t.Parallel()

	router, commands, responder := newRouter()
	i := command(CommandBan, nil, nil)
	i.GuildID = ""
	i.Member = nil
	i.User = &discordgo.User{ID: "100"}
	if err := router.Handle(context.Background(), i); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(commands.calls) != 0 || len(responder.responses) != 0 {
		t.Fatal("direct message interactions must be ignored")
	}
}

func TestEveryDefinitionIsRouted(t *testing.T) {
	t.Parallel()

	router, _, _ := newRouter()
	inv := &moderation.Invocation{GuildID: 1, Invoker: &moderation.Member{UserID: 100}}
	for _, def := range Definitions() {
		if def.Type == discordgo.MessageApplicationCommand {
			continue
		}
		if len(def.Options) > 25 || len(def.Description) > 100 || def.Name != strings.ToLower(def.Name) {
			t.Fatalf("%s: invalid definition", def.Name)
		}
		data := &discordgo.ApplicationCommandInteractionData{Name: def.Name}
		subs := []*discordgo.ApplicationCommandInteractionDataOption{nil}
		if def.Name == CommandWarn {
			subs = subs[:0]
			for _, o := range def.Options {
				subs = append(subs, sub(o.Name))
			}
		}
		for _, s := range subs {
			data.Options = nil
			if s != nil {
				data.Options = optionList{s}
			}
			if _, err := router.dispatch(context.Background(), inv, data); err != nil {
				t.Fatalf("%s: %v", def.Name, err)
			}
		}
	}
}
