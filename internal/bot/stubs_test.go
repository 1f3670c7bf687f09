package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/handlers/moderation"
	"github.com/iamwavecut/ngmod/internal/infrastructure/discord"
)

type call struct {
	name    string
	inv     *moderation.Invocation
	target  *moderation.Member
	text    string
	number  int64
	clear   moderation.ClearArgs
	massban moderation.MassbanArgs
	message *moderation.Message
}

type stubCommands struct {
	mu      sync.Mutex
	calls   []call
	err     error
	panics  bool
	choices []*discordgo.ApplicationCommandOptionChoice
}

func (s *stubCommands) record(c call) (*moderation.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &moderation.Response{Content: "done " + c.name, Ephemeral: true}, nil
}

func (s *stubCommands) last() call {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return call{}
	}
	return s.calls[len(s.calls)-1]
}

func (s *stubCommands) Ban(_ context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error) {
	return s.record(call{name: "ban", inv: inv, target: target, text: reason})
}

func (s *stubCommands) Kick(_ context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error) {
	return s.record(call{name: "kick", inv: inv, target: target, text: reason})
}

func (s *stubCommands) Softban(_ context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error) {
	return s.record(call{name: "softban", inv: inv, target: target, text: reason})
}

func (s *stubCommands) Tempban(_ context.Context, inv *moderation.Invocation, target *moderation.Member, duration, reason string) (*moderation.Response, error) {
	return s.record(call{name: "tempban", inv: inv, target: target, text: duration + "|" + reason})
}

func (s *stubCommands) Tempmute(_ context.Context, inv *moderation.Invocation, target *moderation.Member, duration, reason string) (*moderation.Response, error) {
	return s.record(call{name: "tempmute", inv: inv, target: target, text: duration + "|" + reason})
}

func (s *stubCommands) Unmute(_ context.Context, inv *moderation.Invocation, target *moderation.Member, reason string) (*moderation.Response, error) {
	return s.record(call{name: "unmute", inv: inv, target: target, text: reason})
}

func (s *stubCommands) Unban(_ context.Context, inv *moderation.Invocation, user *moderation.Member, reason string) (*moderation.Response, error) {
	return s.record(call{name: "unban", inv: inv, target: user, text: reason})
}

func (s *stubCommands) Slowmode(_ context.Context, inv *moderation.Invocation, seconds int) (*moderation.Response, error) {
	return s.record(call{name: "slowmode", inv: inv, number: int64(seconds)})
}

func (s *stubCommands) Clear(_ context.Context, inv *moderation.Invocation, args moderation.ClearArgs) (*moderation.Response, error) {
	return s.record(call{name: "clear", inv: inv, clear: args})
}

func (s *stubCommands) WarnAdd(_ context.Context, inv *moderation.Invocation, target *moderation.Member, points int, reason string) (*moderation.Response, error) {
	return s.record(call{name: "warn add", inv: inv, target: target, number: int64(points), text: reason})
}

func (s *stubCommands) WarnRemove(_ context.Context, inv *moderation.Invocation, user *moderation.Member, id int64) (*moderation.Response, error) {
	return s.record(call{name: "warn remove", inv: inv, target: user, number: id})
}

func (s *stubCommands) WarnRemoveAll(_ context.Context, inv *moderation.Invocation, user *moderation.Member) (*moderation.Response, error) {
	return s.record(call{name: "warn remove-all", inv: inv, target: user})
}

func (s *stubCommands) WarnList(_ context.Context, inv *moderation.Invocation, user *moderation.Member) (*moderation.Response, error) {
	return s.record(call{name: "warn list", inv: inv, target: user})
}

func (s *stubCommands) Punish(_ context.Context, inv *moderation.Invocation, target *moderation.Member, templateID int64) (*moderation.Response, error) {
	return s.record(call{name: "punish", inv: inv, target: target, number: templateID})
}

func (s *stubCommands) PunishChoices(_ context.Context, _ int64, search string) ([]*discordgo.ApplicationCommandOptionChoice, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{name: "punish choices", text: search})
	s.mu.Unlock()
	return s.choices, s.err
}

func (s *stubCommands) Massban(_ context.Context, inv *moderation.Invocation, args moderation.MassbanArgs) (*moderation.Response, error) {
	return s.record(call{name: "massban", inv: inv, massban: args})
}

func (s *stubCommands) MassbanConfirm(_ context.Context, inv *moderation.Invocation, token string) (*moderation.Response, error) {
	return s.record(call{name: "massban confirm", inv: inv, text: token})
}

func (s *stubCommands) MassbanCancel(_ context.Context, inv *moderation.Invocation, token string) (*moderation.Response, error) {
	return s.record(call{name: "massban cancel", inv: inv, text: token})
}

func (s *stubCommands) InviteInfo(_ context.Context, inv *moderation.Invocation, link string) (*moderation.Response, error) {
	return s.record(call{name: "invite-info", inv: inv, text: link})
}

func (s *stubCommands) InviteInfoFromMessage(_ context.Context, inv *moderation.Invocation, msg *moderation.Message) (*moderation.Response, error) {
	return s.record(call{name: "invite-info message", inv: inv, message: msg})
}

type stubResponder struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
	err       error
}

func (s *stubResponder) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, resp)
	return s.err
}

func (s *stubResponder) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, edit)
	return &discordgo.Message{}, nil
}

func (s *stubResponder) lastEdit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.edits) == 0 || s.edits[len(s.edits)-1].Content == nil {
		return ""
	}
	return *s.edits[len(s.edits)-1].Content
}

type stubAutomod struct {
	mu         sync.Mutex
	messages   []*moderation.Message
	edits      [][2]*moderation.Message
	executions []*moderation.AutomodExecution
	block      chan struct{}
}

func (s *stubAutomod) HandleMessage(ctx context.Context, msg *moderation.Message) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *stubAutomod) HandleMessageEdit(_ context.Context, before, after *moderation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, [2]*moderation.Message{before, after})
	return nil
}

func (s *stubAutomod) HandleAutomodExecution(_ context.Context, exec *moderation.AutomodExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, exec)
	return nil
}

type stubEvents struct {
	mu    sync.Mutex
	calls []string
	ids   [][2]int64
	err   error
}

func (s *stubEvents) add(name string, a, b int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	s.ids = append(s.ids, [2]int64{a, b})
	return s.err
}

func (s *stubEvents) HandleBanRemove(_ context.Context, guildID, userID int64) error {
	return s.add("ban remove", guildID, userID)
}

func (s *stubEvents) HandleTimeoutLifted(_ context.Context, guildID, userID int64) error {
	return s.add("timeout lifted", guildID, userID)
}

func (s *stubEvents) HandleAutomodRuleDelete(_ context.Context, ruleID int64) error {
	return s.add("rule delete", ruleID, 0)
}

func (s *stubEvents) HandleAutomodRuleUpdate(_ context.Context, ruleID int64) error {
	return s.add("rule update", ruleID, 0)
}

func (s *stubEvents) HandleGuildRemove(_ context.Context, guildID int64) error {
	return s.add("guild remove", guildID, 0)
}

type stubConverter struct{}

func (stubConverter) Message(m *discordgo.Message) *moderation.Message {
	return discord.ConvertMessage(m, 0)
}

func (stubConverter) AutomodExecution(e *discordgo.AutoModerationActionExecution) *moderation.AutomodExecution {
	return discord.ConvertAutomodExecution(e, 0)
}

type stubSession struct {
	handlers   int
	removed    int
	opened     bool
	closed     bool
	openErr    error
	registered []*discordgo.ApplicationCommand
	appID      string
	guildID    string
}

func (s *stubSession) AddHandler(interface{}) func() {
	s.handlers++
	return func() { s.removed++ }
}

func (s *stubSession) Open() error {
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *stubSession) Close() error {
	s.closed = true
	return nil
}

func (s *stubSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	s.appID, s.guildID = appID, guildID
	s.registered = commands
	return commands, nil
}

type stubIdentity int64

func (s stubIdentity) BotUserID() int64 {
	return int64(s)
}

var errStub = errors.New("stub failure")
