package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/iamwavecut/tool"
	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/expiring"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/observability"
)

const (
	maxEmbeds           = 10
	maxEmbedTotal       = 6000
	maxEmbedDescription = 4096
	maxFieldValue       = 1024

	noteCacheSize = 512
	noteTTL       = time.Hour

	embedColor = 0x4c8bf5

	targetTemplate = `<@{{ .id }}>{{ if .name }} ({{ .name }}){{ end }}`
)

type RecordKind string

const (
	RecordBan        RecordKind = "ban"
	RecordTempban    RecordKind = "tempban"
	RecordSoftban    RecordKind = "softban"
	RecordKick       RecordKind = "kick"
	RecordUnban      RecordKind = "unban"
	RecordTempmute   RecordKind = "tempmute"
	RecordUnmute     RecordKind = "unmute"
	RecordDelete     RecordKind = "delete"
	RecordPoints     RecordKind = "points"
	RecordWarn       RecordKind = "warn"
	RecordEscalation RecordKind = "escalation"
	RecordNote       RecordKind = "note"
)

// Record is one audit log entry. A nil Moderator means the action was automatic.
type Record struct {
	ID           string
	GuildID      int64
	Kind         RecordKind
	Action       db.ActionKind
	TargetID     int64
	TargetName   string
	TargetAvatar string
	Moderator    *Member
	Reason       string
	Until        *time.Time
	Points       string
	Content      string
	// DirectMessaged is nil when no direct message was attempted.
	DirectMessaged *bool
	Locale         string
	At             time.Time
}

type AuditStore interface {
	InvalidateWebhook(ctx context.Context, maybeWebhookID int64) error
}

type AuditConfigs interface {
	Moderation(ctx context.Context, guildID int64) (*db.ModerationConfig, error)
	ClearWebhook(guildID, maybeWebhookID int64)
}

type WebhookSender interface {
	ExecuteWebhook(ctx context.Context, webhookID int64, token string, embeds []*discordgo.MessageEmbed) error
}

type noteKey struct {
	guildID int64
	action  string
}

// AuditLogger mirrors moderation actions to the guild's log webhook.
type AuditLogger struct {
	sender  WebhookSender
	store   AuditStore
	configs AuditConfigs
	notes   *expiring.Map[noteKey, struct{}]
	now     func() time.Time
}

func NewAuditLogger(sender WebhookSender, store AuditStore, configs AuditConfigs) *AuditLogger {
	return &AuditLogger{
		sender:  sender,
		store:   store,
		configs: configs,
		notes:   expiring.NewBounded[noteKey, struct{}](noteCacheSize, noteTTL),
		now:     time.Now,
	}
}

func (l *AuditLogger) getLogEntry() *log.Entry {
	return log.WithField("context", "audit")
}

// Log delivers rec. Delivery failures drop the record; a webhook reported missing
// loses its stored credentials so it is not tried again.
func (l *AuditLogger) Log(ctx context.Context, rec *Record) error {
	cfg, err := l.configs.Moderation(ctx, rec.GuildID)
	if err != nil {
		return fmt.Errorf("load moderation config: %w", err)
	}
	if cfg == nil || !cfg.Active {
		return nil
	}
	wh := cfg.Webhook
	if wh == nil || wh.WebhookID == nil || wh.WebhookToken == nil {
		observability.RecordAuditDelivery("skipped")
		return nil
	}
	if rec.ID == "" {
		rec.ID = uuid.New()
	}
	if rec.At.IsZero() {
		rec.At = l.now()
	}

	entry := l.getLogEntry().
		WithField("guild_id", rec.GuildID).
		WithField("kind", rec.Kind).
		WithField("record_id", rec.ID)

	err = l.sender.ExecuteWebhook(ctx, *wh.WebhookID, *wh.WebhookToken, buildEmbeds(rec))
	switch {
	case err == nil:
		observability.RecordAuditDelivery("ok")
		entry.Debug("audit record delivered")
		return nil
	case errors.Is(err, nerrors.ErrNotFound):
		observability.RecordAuditDelivery("gone")
		entry.WithField("maybe_webhook_id", wh.ID).Warn("log webhook is gone, dropping credentials")
		if err := l.store.InvalidateWebhook(ctx, wh.ID); err != nil {
			return fmt.Errorf("invalidate webhook %d: %w", wh.ID, err)
		}
		l.configs.ClearWebhook(rec.GuildID, wh.ID)
		return nil
	default:
		observability.RecordAuditDelivery("error")
		entry.WithError(err).Error("audit record dropped")
		return nil
	}
}

// Note records that an action was skipped. Repeated notes for the same guild and
// action are suppressed for an hour.
func (l *AuditLogger) Note(ctx context.Context, guildID int64, action string, target *Member, cause error) {
	if !l.notes.PutIfAbsent(noteKey{guildID: guildID, action: action}, struct{}{}) {
		return
	}
	rec := &Record{
		GuildID: guildID,
		Kind:    RecordNote,
		Action:  db.ActionKind(action),
		Reason:  noteReason(cause),
	}
	if target != nil {
		rec.TargetID, rec.TargetName, rec.TargetAvatar = target.UserID, target.Username, target.AvatarURL
	}
	if err := l.Log(ctx, rec); err != nil {
		l.getLogEntry().WithError(err).WithField("guild_id", guildID).Warn("cant write audit note")
	}
}

func noteReason(cause error) string {
	if errors.Is(cause, nerrors.ErrHierarchy) {
		return "insufficient permission: role hierarchy"
	}
	return "insufficient permission"
}

func buildEmbeds(rec *Record) []*discordgo.MessageEmbed {
	lang := rec.Locale
	main := &discordgo.MessageEmbed{
		Color:     embedColor,
		Author:    &discordgo.MessageEmbedAuthor{Name: recordTitle(rec.Kind, lang), IconURL: rec.TargetAvatar},
		Timestamp: rec.At.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s: %d | %s", i18n.Get("ID", lang), rec.TargetID, rec.ID)},
	}
	if rec.TargetID != 0 {
		main.Description = tool.ExecTemplate(targetTemplate, map[string]any{
			"id":   rec.TargetID,
			"name": rec.TargetName,
		})
	}

	reason := rec.Reason
	if reason == "" {
		reason = i18n.Get("No reason", lang)
	}
	addField(main, i18n.Get("Reason", lang), "> "+reason)
	if rec.Kind == RecordEscalation || rec.Kind == RecordNote {
		addField(main, i18n.Get("Action", lang), "> "+string(rec.Action))
	}
	if rec.Moderator != nil {
		addField(main, i18n.Get("Moderator", lang), fmt.Sprintf("> <@%d> (%d)", rec.Moderator.UserID, rec.Moderator.UserID))
	} else if rec.Kind != RecordNote {
		addField(main, i18n.Get("Moderator", lang), "> "+i18n.Get("Automod", lang))
	}
	addField(main, i18n.Get("Executed at", lang), "> "+discordTimestamp(rec.At, "f"))
	if rec.Until != nil {
		addField(main, i18n.Get("Punished until", lang), discordTimestamp(*rec.Until, "f")+" ("+discordTimestamp(*rec.Until, "R")+")")
	} else if rec.Points != "" {
		addField(main, i18n.Get("Points", lang), "> "+rec.Points)
	}
	if rec.DirectMessaged != nil {
		notified := i18n.Get("No", lang)
		if *rec.DirectMessaged {
			notified = i18n.Get("Yes", lang)
		}
		addField(main, i18n.Get("User notified", lang), "> "+notified)
	}

	embeds := []*discordgo.MessageEmbed{main}
	if rec.Content != "" {
		if utf8.RuneCountInString(rec.Content) <= maxFieldValue {
			addField(main, i18n.Get("Message", lang), rec.Content)
		} else {
			embeds = append(embeds, &discordgo.MessageEmbed{
				Color:       embedColor,
				Title:       i18n.Get("Message", lang),
				Description: truncate(rec.Content, maxEmbedDescription),
			})
		}
	}
	return fitEmbeds(embeds)
}

func recordTitle(kind RecordKind, lang string) string {
	switch kind {
	case RecordBan:
		return i18n.Get("Member banned", lang)
	case RecordTempban:
		return i18n.Get("Member temporarily banned", lang)
	case RecordSoftban:
		return i18n.Get("Member softbanned", lang)
	case RecordKick:
		return i18n.Get("Member kicked", lang)
	case RecordUnban:
		return i18n.Get("Member unbanned", lang)
	case RecordTempmute:
		return i18n.Get("Member muted", lang)
	case RecordUnmute:
		return i18n.Get("Member unmuted", lang)
	case RecordDelete:
		return i18n.Get("Message deleted", lang)
	case RecordPoints:
		return i18n.Get("Points added", lang)
	case RecordWarn:
		return i18n.Get("Member warned", lang)
	case RecordEscalation:
		return i18n.Get("Maximum number of points reached", lang)
	default:
		return i18n.Get("Action skipped", lang)
	}
}

func addField(embed *discordgo.MessageEmbed, name, value string) {
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: truncate(value, maxFieldValue)})
}

func discordTimestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// fitEmbeds keeps at most maxEmbeds embeds and shortens trailing descriptions until
// the aggregate length fits.
func fitEmbeds(embeds []*discordgo.MessageEmbed) []*discordgo.MessageEmbed {
	if len(embeds) > maxEmbeds {
		embeds = embeds[:maxEmbeds]
	}
	total := 0
	for _, e := range embeds {
		total += embedLength(e)
	}
	for i := len(embeds) - 1; i >= 0 && total > maxEmbedTotal; i-- {
		desc := utf8.RuneCountInString(embeds[i].Description)
		keep := desc - (total - maxEmbedTotal)
		if keep < 0 {
			keep = 0
		}
		embeds[i].Description = truncate(embeds[i].Description, keep)
		total -= desc - utf8.RuneCountInString(embeds[i].Description)
	}
	return embeds
}

func embedLength(e *discordgo.MessageEmbed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
	if e.Author != nil {
		n += utf8.RuneCountInString(e.Author.Name)
	}
	if e.Footer != nil {
		n += utf8.RuneCountInString(e.Footer.Text)
	}
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	return n
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 1 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-1]) + "…"
}
