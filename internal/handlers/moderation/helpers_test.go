package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

const (
	testGuildID   = 1
	testOwnerID   = 100
	testBotID     = 900
	testChannelID = 40

	roleMod   = 20
	roleBot   = 50
	roleAdmin = 60
	roleHigh  = 70
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testGuild() *Guild {
	return &Guild{
		Guild: permissions.Guild{
			ID:      testGuildID,
			OwnerID: testOwnerID,
			Roles: map[int64]permissions.Role{
				testGuildID: {ID: testGuildID, Position: 0, Permissions: discordgo.PermissionSendMessages},
				roleMod:     {ID: roleMod, Position: 5, Permissions: discordgo.PermissionBanMembers | discordgo.PermissionKickMembers},
				roleBot: {ID: roleBot, Position: 10, Permissions: discordgo.PermissionBanMembers | discordgo.PermissionKickMembers |
					discordgo.PermissionModerateMembers | discordgo.PermissionManageMessages | discordgo.PermissionManageRoles |
					discordgo.PermissionManageChannels},
				roleAdmin: {ID: roleAdmin, Position: 3, Permissions: discordgo.PermissionAdministrator},
				roleHigh:  {ID: roleHigh, Position: 15},
			},
		},
		Name:   "Test Guild",
		Locale: "en",
	}
}

func testMember(id int64, roles ...int64) *Member {
	return &Member{
		GuildID:   testGuildID,
		UserID:    id,
		Username:  fmt.Sprintf("user%d", id),
		HasAvatar: true,
		Roles:     roles,
		JoinedAt:  testNow.Add(-48 * time.Hour),
		CreatedAt: testNow.Add(-365 * 24 * time.Hour),
	}
}

func ptr[T any](v T) *T {
	return &v
}

type timeoutCall struct {
	userID int64
	until  *time.Time
}

type fakePlatform struct {
	mu sync.Mutex

	guild        *Guild
	members      map[int64]*Member
	channelPerms int64
	history      []*Message
	invites      map[string]*Invite

	banErr     func(userID int64) error
	unbanErr   error
	timeoutErr error
	dmErr      error
	webhookErr error
	inviteErr  error

	bans        []int64
	unbans      []int64
	kicks       []int64
	timeouts    []timeoutCall
	deleted     []int64
	bulk        [][]int64
	dms         []string
	webhooks    [][]*discordgo.MessageEmbed
	slowmode    []int
	inviteCalls int
}

func newFakePlatform() *fakePlatform {
	p := &fakePlatform{
		guild:        testGuild(),
		members:      map[int64]*Member{},
		channelPerms: discordgo.PermissionAll,
		invites:      map[string]*Invite{},
	}
	bot := testMember(testBotID, roleBot)
	bot.Bot = true
	p.members[testBotID] = bot
	return p
}

func (p *fakePlatform) addMember(m *Member) *Member {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.members[m.UserID] = m
	return m
}

func (p *fakePlatform) BotUserID() int64 { return testBotID }

func (p *fakePlatform) Guild(context.Context, int64) (*Guild, error) {
	return p.guild, nil
}

func (p *fakePlatform) Member(_ context.Context, _ int64, userID int64) (*Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.members[userID]
	if !ok {
		return nil, nerrors.ErrNotFound
	}
	return m, nil
}

func (p *fakePlatform) Members(context.Context, int64) ([]*Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]*Member, 0, len(p.members))
	for _, m := range p.members {
		res = append(res, m)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res, nil
}

func (p *fakePlatform) ChannelPermissions(context.Context, int64, int64) (int64, error) {
	return p.channelPerms, nil
}

func (p *fakePlatform) Ban(_ context.Context, _ int64, userID int64, _ string, _ int) error {
	if p.banErr != nil {
		if err := p.banErr(userID); err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bans = append(p.bans, userID)
	return nil
}

func (p *fakePlatform) Unban(_ context.Context, _ int64, userID int64, _ string) error {
	if p.unbanErr != nil {
		return p.unbanErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unbans = append(p.unbans, userID)
	return nil
}

func (p *fakePlatform) Kick(_ context.Context, _ int64, userID int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kicks = append(p.kicks, userID)
	return nil
}

func (p *fakePlatform) Timeout(_ context.Context, _ int64, userID int64, until *time.Time, _ string) error {
	if p.timeoutErr != nil {
		return p.timeoutErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, timeoutCall{userID: userID, until: until})
	return nil
}

func (p *fakePlatform) AddRole(context.Context, int64, int64, int64, string) error    { return nil }
func (p *fakePlatform) RemoveRole(context.Context, int64, int64, int64, string) error { return nil }

func (p *fakePlatform) DeleteMessage(_ context.Context, _ int64, messageID int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
	return nil
}

func (p *fakePlatform) BulkDeleteMessages(_ context.Context, _ int64, ids []int64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bulk = append(p.bulk, append([]int64(nil), ids...))
	return nil
}

func (p *fakePlatform) ChannelMessages(_ context.Context, _ int64, limit int, before, after int64) ([]*Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var res []*Message
	for _, m := range p.history {
		if before != 0 && m.ID >= before {
			continue
		}
		if after != 0 && m.ID <= after {
			continue
		}
		res = append(res, m)
		if len(res) == limit {
			break
		}
	}
	return res, nil
}

func (p *fakePlatform) SetSlowmode(_ context.Context, _ int64, seconds int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slowmode = append(p.slowmode, seconds)
	return nil
}

func (p *fakePlatform) SendDirectMessage(_ context.Context, _ int64, content string) error {
	if p.dmErr != nil {
		return p.dmErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dms = append(p.dms, content)
	return nil
}

func (p *fakePlatform) SendEmbeds(context.Context, int64, []*discordgo.MessageEmbed) error {
	return nil
}

func (p *fakePlatform) ExecuteWebhook(_ context.Context, _ int64, _ string, embeds []*discordgo.MessageEmbed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.webhookErr != nil {
		return p.webhookErr
	}
	p.webhooks = append(p.webhooks, embeds)
	return nil
}

func (p *fakePlatform) Invite(_ context.Context, code string, _ bool) (*Invite, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inviteCalls++
	if p.inviteErr != nil {
		return nil, p.inviteErr
	}
	invite, ok := p.invites[code]
	if !ok {
		return nil, nerrors.ErrNotFound
	}
	return invite, nil
}

type timerKey struct {
	guildID  int64
	targetID int64
	kind     db.TimerKind
}

type fakeTimers struct {
	mu     sync.Mutex
	nextID int64
	timers map[timerKey]*db.Timer
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{timers: map[timerKey]*db.Timer{}}
}

func (f *fakeTimers) Create(_ context.Context, guildID, targetID int64, kind db.TimerKind, expiresAt time.Time, payload db.Payload) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.timers[timerKey{guildID, targetID, kind}] = &db.Timer{
		ID:        f.nextID,
		GuildID:   guildID,
		TargetID:  targetID,
		Kind:      kind,
		ExpiresAt: expiresAt,
		Payload:   payload,
	}
	return f.nextID, nil
}

func (f *fakeTimers) Cancel(_ context.Context, guildID, targetID int64, kind db.TimerKind) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := timerKey{guildID, targetID, kind}
	timer, ok := f.timers[key]
	if !ok {
		return nil, nil
	}
	delete(f.timers, key)
	return []int64{timer.ID}, nil
}

func (f *fakeTimers) CancelByID(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, timer := range f.timers {
		if timer.ID == id {
			delete(f.timers, key)
		}
	}
	return nil
}

func (f *fakeTimers) get(targetID int64, kind db.TimerKind) (*db.Timer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer, ok := f.timers[timerKey{testGuildID, targetID, kind}]
	return timer, ok
}

func (f *fakeTimers) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// fakeStore backs the ledger and the audit webhook invalidation.
type fakeStore struct {
	mu          sync.Mutex
	nextID      int64
	infractions []*db.Infraction
	invalidated []int64
}

func (s *fakeStore) active(guildID, userID int64, now time.Time) int {
	total := 0
	for _, inf := range s.infractions {
		if inf.GuildID == guildID && inf.UserID == userID && (inf.ExpiresAt == nil || inf.ExpiresAt.After(now)) {
			total += inf.Points
		}
	}
	return total
}

func (s *fakeStore) AddInfraction(_ context.Context, infraction *db.Infraction, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	infraction.ID = s.nextID
	s.infractions = append(s.infractions, infraction)
	return s.active(infraction.GuildID, infraction.UserID, now), nil
}

func (s *fakeStore) ActivePoints(_ context.Context, guildID, userID int64, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active(guildID, userID, now), nil
}

func (s *fakeStore) ListInfractions(_ context.Context, guildID, userID int64) ([]*db.Infraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*db.Infraction
	for i := len(s.infractions) - 1; i >= 0; i-- {
		inf := s.infractions[i]
		if inf.GuildID == guildID && inf.UserID == userID {
			res = append(res, inf)
		}
	}
	return res, nil
}

func (s *fakeStore) DeleteInfraction(_ context.Context, guildID, userID, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inf := range s.infractions {
		if inf.ID == id && inf.GuildID == guildID && inf.UserID == userID {
			s.infractions = append(s.infractions[:i], s.infractions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) DeleteInfractions(_ context.Context, guildID, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*db.Infraction
	var n int64
	for _, inf := range s.infractions {
		if inf.GuildID == guildID && inf.UserID == userID {
			n++
			continue
		}
		kept = append(kept, inf)
	}
	s.infractions = kept
	return n, nil
}

func (s *fakeStore) InvalidateWebhook(_ context.Context, maybeWebhookID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated = append(s.invalidated, maybeWebhookID)
	return nil
}

func (s *fakeStore) count(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inf := range s.infractions {
		if inf.UserID == userID {
			n++
		}
	}
	return n
}

type fakeConfigs struct {
	mu          sync.Mutex
	moderation  *db.ModerationConfig
	rules       map[int64]*db.ModerationRule
	punishments []*db.Punishment
	cleared     []int64
}

func (c *fakeConfigs) Moderation(context.Context, int64) (*db.ModerationConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moderation, nil
}

func (c *fakeConfigs) ModerationRule(_ context.Context, ruleID int64) (*db.ModerationRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rules[ruleID], nil
}

func (c *fakeConfigs) Punishments(context.Context, int64) ([]*db.Punishment, error) {
	return c.punishments, nil
}

func (c *fakeConfigs) ClearWebhook(_ int64, maybeWebhookID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, maybeWebhookID)
	if wh := c.moderation.Webhook; wh != nil && wh.ID == maybeWebhookID {
		wh.WebhookID, wh.WebhookToken = nil, nil
	}
}

// testConfig returns an active config logging to webhook 7.
func testConfig() *db.ModerationConfig {
	return &db.ModerationConfig{
		GuildID:    testGuildID,
		Active:     true,
		NotifyUser: true,
		Webhook: &db.MaybeWebhook{
			ID:           7,
			GuildID:      testGuildID,
			WebhookID:    ptr[int64](77),
			WebhookToken: ptr("token"),
		},
	}
}

type harness struct {
	platform *fakePlatform
	timers   *fakeTimers
	store    *fakeStore
	configs  *fakeConfigs
	exec     *Executor
	audit    *AuditLogger
	ledger   *Ledger
	enforcer *Enforcer
	automod  *Automod
	commands *Commands
}

func newHarness(t *testing.T, cfg *db.ModerationConfig) *harness {
	t.Helper()
	h := &harness{
		platform: newFakePlatform(),
		timers:   newFakeTimers(),
		store:    &fakeStore{},
		configs:  &fakeConfigs{moderation: cfg, rules: map[int64]*db.ModerationRule{}},
	}
	now := func() time.Time { return testNow }

	h.audit = NewAuditLogger(h.platform, h.store, h.configs)
	h.audit.now = now
	h.exec = NewExecutor(h.platform, h.timers, h.audit)
	h.exec.now = now
	h.ledger = NewLedger(h.store, DefaultPointsThreshold, DefaultPointsExpiry)
	h.ledger.now = now
	h.enforcer = NewEnforcer(h.exec, h.ledger, h.audit, time.Minute)
	h.enforcer.now = now
	h.automod = NewAutomod(h.platform, h.configs, NewInviteResolver(h.platform, time.Minute, time.Minute), h.enforcer)
	h.automod.now = now
	h.commands = NewCommands(h.platform, h.configs, h.exec, h.enforcer, h.ledger, h.audit, CommandOptions{})
	h.commands.now = now
	h.commands.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *harness) invocation(invoker *Member) *Invocation {
	return &Invocation{GuildID: testGuildID, ChannelID: testChannelID, Invoker: invoker, Locale: "en"}
}

var errForbidden = errors.New("forbidden")
