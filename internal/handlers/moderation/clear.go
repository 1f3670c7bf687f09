package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

type ClearFilter string

const (
	ClearAll      ClearFilter = "all"
	ClearContains ClearFilter = "contains"
	ClearUser     ClearFilter = "user"
	ClearLinks    ClearFilter = "links"
	ClearFiles    ClearFilter = "files"

	MinClearAmount = 1
	MaxClearAmount = 500

	// bulk deletion only accepts messages younger than two weeks
	bulkDeleteMaxAge = 14 * 24 * time.Hour
	bulkDeleteChunk  = 100
	bulkDeletePause  = time.Second
	historyPageSize  = 100

	discordEpochMillis = 1420070400000
)

var clearLinkPattern = regexp.MustCompile(`(?i)https?://(?:[-\w.]|%[\da-fA-F]{2})+`)

type ClearArgs struct {
	Filter   ClearFilter
	Amount   int
	Contains string
	UserID   int64
	Reason   string
}

// Clear scans up to Amount recent messages of the channel and deletes the ones
// matching the filter.
func (c *Commands) Clear(ctx context.Context, inv *Invocation, args ClearArgs) (*Response, error) {
	if args.Amount < MinClearAmount || args.Amount > MaxClearAmount {
		return reply(i18n.Get("The provided value is invalid.", inv.Locale)), nil
	}
	if resp := checkReason(inv, args.Reason); resp != nil {
		return resp, nil
	}
	match, ok := clearPredicate(args)
	if !ok {
		return reply(i18n.Get("The provided value is invalid.", inv.Locale)), nil
	}
	if ok, retry := c.clearLimits.Allow(memberKey{guildID: inv.GuildID, userID: inv.Invoker.UserID}); !ok {
		return cooldownReply(inv, retry), nil
	}

	perms, err := c.platform.ChannelPermissions(ctx, inv.ChannelID, c.platform.BotUserID())
	if err != nil {
		return nil, fmt.Errorf("get channel permissions: %w", err)
	}
	required := int64(discordgo.PermissionManageMessages | discordgo.PermissionReadMessageHistory | discordgo.PermissionViewChannel)
	if !permissions.Has(perms, required) {
		return reply(i18n.Get("I am missing the permissions to do this.", inv.Locale)), nil
	}

	deleted, err := c.purge(ctx, inv.ChannelID, args.Amount, args.Reason, match)
	if err != nil {
		return nil, err
	}
	if len(deleted) == 0 {
		return reply(i18n.Get("Cannot purge messages older than 14 days, due to Discord limitations.", inv.Locale)), nil
	}

	users := map[int64]struct{}{}
	for _, m := range deleted {
		if m.Author != nil {
			users[m.Author.UserID] = struct{}{}
		}
	}
	reason := args.Reason
	if reason == "" {
		reason = "*" + i18n.Get("No reason", inv.Locale) + "*"
	}
	embed := &discordgo.MessageEmbed{Title: i18n.Get("Messages deleted", inv.Locale), Color: embedColor}
	addField(embed, i18n.Get("Messages deleted", inv.Locale), fmt.Sprintf("> %d/%d", len(deleted), args.Amount))
	addField(embed, i18n.Get("Affected users", inv.Locale), fmt.Sprintf("> %d", len(users)))
	addField(embed, i18n.Get("Reason", inv.Locale), "> "+reason)
	return &Response{
		Content:   i18n.Getf("%d messages have been deleted.", inv.Locale, len(deleted)),
		Embeds:    []*discordgo.MessageEmbed{embed},
		Ephemeral: true,
	}, nil
}

func clearPredicate(args ClearArgs) (func(m *Message) bool, bool) {
	switch args.Filter {
	case ClearAll:
		return func(*Message) bool { return true }, true
	case ClearContains:
		if args.Contains == "" {
			return nil, false
		}
		needle := strings.ToLower(args.Contains)
		return func(m *Message) bool { return strings.Contains(strings.ToLower(m.Content), needle) }, true
	case ClearUser:
		if args.UserID == 0 {
			return nil, false
		}
		return func(m *Message) bool { return m.Author != nil && m.Author.UserID == args.UserID }, true
	case ClearLinks:
		return func(m *Message) bool { return clearLinkPattern.MatchString(m.Content) }, true
	case ClearFiles:
		return func(m *Message) bool { return m.Attachments > 0 }, true
	}
	return nil, false
}

// purge walks the history newest first and deletes matches in chunks, pausing
// between chunks.
func (c *Commands) purge(ctx context.Context, channelID int64, amount int, reason string, match func(m *Message) bool) ([]*Message, error) {
	oldest := c.now().Add(-bulkDeleteMaxAge)
	after := snowflakeAt(oldest)

	var (
		deleted []*Message
		pending []int64
		before  int64
		scanned int
	)
	flush := func() error {
		switch {
		case len(pending) >= 2:
			if err := c.platform.BulkDeleteMessages(ctx, channelID, pending, reason); err != nil {
				return fmt.Errorf("bulk delete: %w", err)
			}
		case len(pending) == 1:
			if err := c.platform.DeleteMessage(ctx, channelID, pending[0], reason); err != nil {
				return fmt.Errorf("delete message: %w", err)
			}
		}
		pending = pending[:0]
		return nil
	}

	for scanned < amount {
		limit := min(historyPageSize, amount-scanned)
		page, err := c.platform.ChannelMessages(ctx, channelID, limit, before, after)
		if err != nil {
			return nil, fmt.Errorf("fetch history: %w", err)
		}
		for _, m := range page {
			scanned++
			before = m.ID
			if m.CreatedAt.Before(oldest) || !match(m) {
				continue
			}
			pending = append(pending, m.ID)
			deleted = append(deleted, m)
			if len(pending) == bulkDeleteChunk {
				if err := flush(); err != nil {
					return nil, err
				}
				if err := c.sleep(ctx, bulkDeletePause); err != nil {
					return nil, err
				}
			}
		}
		if len(page) < limit {
			break
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return deleted, nil
}

// snowflakeAt returns the smallest snowflake id generated at t.
func snowflakeAt(t time.Time) int64 {
	return (t.UnixMilli() - discordEpochMillis) << 22
}
