package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pborman/uuid"

	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

const (
	MinMassbanAmount     = 10
	MaxMassbanAmount     = 512
	DefaultMassbanAmount = 100
	MaxMassbanDays       = 30

	// MassbanConfirmPrefix and MassbanCancelPrefix prefix the button custom ids;
	// the plan token follows.
	MassbanConfirmPrefix = "massban:confirm:"
	MassbanCancelPrefix  = "massban:cancel:"

	massbanTTL               = 5 * time.Minute
	massbanMaxFailures       = 5
	massbanPreviewMembers    = 20
	massbanMinRegexLength    = 4
	massbanMaxRegexLength    = 50
	massbanMinTextLength     = 3
	massbanMaxTextLength     = 50
	massbanDeleteMessageDays = 1
)

// MassbanArgs combines message filters, applied when ChannelID is set, with
// member filters applied to the resulting candidates.
type MassbanArgs struct {
	Reason string

	ChannelID     int64
	Amount        int
	Contains      string
	StartsWith    string
	EndsWith      string
	HasEmbed      *bool
	HasAttachment *bool
	SentAfter     int64
	SentBefore    int64

	HasAvatar          *bool
	HasRole            *bool
	UsernameRegex      string
	JoinedAfter        *Member
	JoinedBefore       *Member
	AccountYoungerDays int
	JoinedWithinDays   int
}

type massbanPlan struct {
	guildID   int64
	invokerID int64
	reason    string
	members   []*Member
}

// Massban collects the candidates matching args and asks the invoker to confirm.
func (c *Commands) Massban(ctx context.Context, inv *Invocation, args MassbanArgs) (*Response, error) {
	if args.Reason == "" {
		return reply(i18n.Get("The provided value is invalid.", inv.Locale)), nil
	}
	if resp := checkReason(inv, args.Reason); resp != nil {
		return resp, nil
	}
	if args.Amount == 0 {
		args.Amount = DefaultMassbanAmount
	}
	if !validMassbanArgs(args) {
		return reply(i18n.Get("The provided value is invalid.", inv.Locale)), nil
	}

	var nameRe *regexp.Regexp
	if args.UsernameRegex != "" {
		re, err := regexp.Compile("^(?:" + args.UsernameRegex + ")")
		if err != nil {
			return reply(i18n.Get("The provided regex is invalid.", inv.Locale) + "\n```" + err.Error() + "```"), nil
		}
		nameRe = re
	}

	guild, err := c.platform.Guild(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("get guild: %w", err)
	}
	members, err := c.platform.Members(ctx, inv.GuildID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if args.ChannelID != 0 {
		authors, err := c.messageAuthors(ctx, args)
		if err != nil {
			return nil, err
		}
		filtered := members[:0:0]
		for _, m := range members {
			if _, ok := authors[m.UserID]; ok {
				filtered = append(filtered, m)
			}
		}
		members = filtered
	}

	now := c.now()
	g := &guild.Guild
	keep := func(m *Member) bool {
		switch {
		case m.UserID == inv.Invoker.UserID, m.Bot, m.Deleted:
			return false
		case !permissions.Dominates(g, inv.Invoker.UserID, inv.Invoker.Roles, m.UserID, m.Roles):
			return false
		case nameRe != nil && !nameRe.MatchString(m.Username):
			return false
		case args.HasAvatar != nil && m.HasAvatar != *args.HasAvatar:
			return false
		case args.HasRole != nil && (len(m.Roles) > 0) != *args.HasRole:
			return false
		case args.AccountYoungerDays > 0 && !m.CreatedAt.After(now.Add(-days(args.AccountYoungerDays))):
			return false
		case args.JoinedWithinDays > 0 && !m.JoinedAt.After(now.Add(-days(args.JoinedWithinDays))):
			return false
		case args.JoinedAfter != nil && (m.JoinedAt.IsZero() || args.JoinedAfter.JoinedAt.IsZero() || !m.JoinedAt.After(args.JoinedAfter.JoinedAt)):
			return false
		case args.JoinedBefore != nil && (m.JoinedAt.IsZero() || args.JoinedBefore.JoinedAt.IsZero() || !m.JoinedAt.Before(args.JoinedBefore.JoinedAt)):
			return false
		}
		return true
	}

	var candidates []*Member
	for _, m := range members {
		if keep(m) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return reply(i18n.Get("There are no users that meets this criteria.", inv.Locale)), nil
	}

	token := uuid.New()
	c.massbans.Put(token, &massbanPlan{
		guildID:   inv.GuildID,
		invokerID: inv.Invoker.UserID,
		reason:    args.Reason,
		members:   candidates,
	})
	return &Response{
		Embeds: []*discordgo.MessageEmbed{massbanEmbed(candidates, args.Reason, inv.Locale)},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    i18n.Get("Ban users", inv.Locale),
					Style:    discordgo.DangerButton,
					CustomID: MassbanConfirmPrefix + token,
				},
				discordgo.Button{
					Label:    i18n.Get("Cancel", inv.Locale),
					Style:    discordgo.SecondaryButton,
					CustomID: MassbanCancelPrefix + token,
				},
			}},
		},
		Ephemeral: true,
	}, nil
}

// MassbanConfirm bans the confirmed candidates in order. The run stops once
// five bans in a row have failed.
func (c *Commands) MassbanConfirm(ctx context.Context, inv *Invocation, token string) (*Response, error) {
	plan, ok := c.takePlan(inv, token)
	if !ok {
		return reply(i18n.Get("This confirmation has expired.", inv.Locale)), nil
	}

	var banned, failed, consecutive int
	for _, m := range plan.members {
		if err := c.exec.Ban(ctx, m, plan.reason, massbanDeleteMessageDays); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			consecutive++
			c.getLogEntry().WithError(err).WithField("guild_id", plan.guildID).WithField("user_id", m.UserID).Debug("massban entry failed")
			if consecutive == massbanMaxFailures {
				c.getLogEntry().WithField("guild_id", plan.guildID).WithField("banned", banned).Warn("massban aborted")
				return reply(i18n.Getf("The massban was aborted after %d failed bans in a row. %d users have been banned.", inv.Locale, massbanMaxFailures, banned)), nil
			}
			continue
		}
		consecutive = 0
		banned++
	}
	c.getLogEntry().WithField("guild_id", plan.guildID).WithField("banned", banned).WithField("failed", failed).Info("massban finished")
	return reply(i18n.Getf("%d users have been banned, %d failed.", inv.Locale, banned, failed)), nil
}

func (c *Commands) MassbanCancel(_ context.Context, inv *Invocation, token string) (*Response, error) {
	if _, ok := c.takePlan(inv, token); !ok {
		return reply(i18n.Get("This confirmation has expired.", inv.Locale)), nil
	}
	return reply(i18n.Get("The massban has been canceled.", inv.Locale)), nil
}

// takePlan consumes a pending plan; only its invoker may resolve it.
func (c *Commands) takePlan(inv *Invocation, token string) (*massbanPlan, bool) {
	plan, ok := c.massbans.Get(token)
	if !ok || plan.guildID != inv.GuildID || plan.invokerID != inv.Invoker.UserID {
		return nil, false
	}
	c.massbans.Delete(token)
	return plan, true
}

// messageAuthors scans the channel history and returns the authors of matching messages.
func (c *Commands) messageAuthors(ctx context.Context, args MassbanArgs) (map[int64]struct{}, error) {
	match := massbanMessagePredicate(args)
	authors := map[int64]struct{}{}
	before := args.SentBefore
	scanned := 0
	for scanned < args.Amount {
		limit := min(historyPageSize, args.Amount-scanned)
		page, err := c.platform.ChannelMessages(ctx, args.ChannelID, limit, before, args.SentAfter)
		if err != nil {
			return nil, fmt.Errorf("fetch history: %w", err)
		}
		for _, m := range page {
			scanned++
			before = m.ID
			if m.Author != nil && match(m) {
				authors[m.Author.UserID] = struct{}{}
			}
		}
		if len(page) < limit {
			break
		}
	}
	return authors, nil
}

func massbanMessagePredicate(args MassbanArgs) func(m *Message) bool {
	return func(m *Message) bool {
		switch {
		case args.Contains != "":
			if !strings.Contains(m.Content, args.Contains) {
				return false
			}
		case args.StartsWith != "":
			if !strings.HasPrefix(m.Content, args.StartsWith) {
				return false
			}
		case args.EndsWith != "":
			if !strings.HasSuffix(m.Content, args.EndsWith) {
				return false
			}
		}
		if args.HasEmbed != nil && (m.Embeds > 0) != *args.HasEmbed {
			return false
		}
		if args.HasAttachment != nil && (m.Attachments > 0) != *args.HasAttachment {
			return false
		}
		return true
	}
}

func validMassbanArgs(args MassbanArgs) bool {
	if args.Amount < MinMassbanAmount || args.Amount > MaxMassbanAmount {
		return false
	}
	for _, s := range []string{args.Contains, args.StartsWith, args.EndsWith} {
		if n := len([]rune(s)); s != "" && (n < massbanMinTextLength || n > massbanMaxTextLength) {
			return false
		}
	}
	if n := len([]rune(args.UsernameRegex)); args.UsernameRegex != "" && (n < massbanMinRegexLength || n > massbanMaxRegexLength) {
		return false
	}
	if args.AccountYoungerDays < 0 || args.AccountYoungerDays > MaxMassbanDays {
		return false
	}
	return args.JoinedWithinDays >= 0 && args.JoinedWithinDays <= MaxMassbanDays
}

func massbanEmbed(members []*Member, reason, lang string) *discordgo.MessageEmbed {
	mentions := make([]string, 0, massbanPreviewMembers)
	for i, m := range members {
		if i == massbanPreviewMembers {
			break
		}
		mentions = append(mentions, fmt.Sprintf("%s (`%d`)", m.Mention(), m.UserID))
	}
	description := i18n.Get("Confirm the selection of users scheduled for ban.", lang) + "\n\n" + strings.Join(mentions, "\n")
	if rest := len(members) - len(mentions); rest > 0 {
		description += "\n" + i18n.Getf("... and %d more", lang, rest)
	}
	embed := &discordgo.MessageEmbed{
		Title:       i18n.Getf("Massban of %d users", lang, len(members)),
		Description: truncate(description, maxEmbedDescription),
		Color:       embedColor,
	}
	addField(embed, i18n.Get("Reason", lang), "> "+reason)
	return embed
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
