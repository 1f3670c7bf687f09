package moderation

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/expiring"
	"github.com/iamwavecut/ngmod/internal/i18n"
)

const defaultInflightTTL = 5 * time.Second

type memberKey struct {
	guildID int64
	userID  int64
}

// Trigger is a selected action about to be applied to a member.
type Trigger struct {
	Guild  *Guild
	Member *Member
	Action db.Action
	Reason string
	// Content is the offending text, if any.
	Content string
	// Message is deleted before kick, tempmute, points and delete actions.
	Message *Message
	// Moderator is nil for automatic actions.
	Moderator *Member
}

// Enforcer applies action chains: it deletes the offending message, guards against
// double punishment, notifies the member, performs the effect and writes the audit record.
type Enforcer struct {
	exec     *Executor
	ledger   *Ledger
	audit    *AuditLogger
	inflight *expiring.Map[memberKey, struct{}]
	now      func() time.Time
}

func NewEnforcer(exec *Executor, ledger *Ledger, audit *AuditLogger, inflightTTL time.Duration) *Enforcer {
	if inflightTTL <= 0 {
		inflightTTL = defaultInflightTTL
	}
	return &Enforcer{
		exec:     exec,
		ledger:   ledger,
		audit:    audit,
		inflight: expiring.New[memberKey, struct{}](inflightTTL),
		now:      time.Now,
	}
}

func (e *Enforcer) getLogEntry() *log.Entry {
	return log.WithField("context", "enforcer")
}

func (e *Enforcer) Apply(ctx context.Context, cfg *db.ModerationConfig, t *Trigger) error {
	kind := t.Action.Kind
	entry := e.getLogEntry().
		WithField("guild_id", t.Member.GuildID).
		WithField("user_id", t.Member.UserID).
		WithField("kind", kind)

	if t.Message != nil && deletesMessage(kind) {
		if err := e.exec.DeleteMessage(ctx, t.Message, t.Reason); err != nil && !isSkipped(err) {
			entry.WithError(err).Warn("cant delete offending message")
		}
	}

	key := memberKey{guildID: t.Member.GuildID, userID: t.Member.UserID}
	switch kind {
	case db.ActionDelete:
	case db.ActionPoints:
		if e.inflight.Has(key) {
			entry.Debug("member is already being punished")
			return nil
		}
	default:
		if !e.inflight.PutIfAbsent(key, struct{}{}) {
			entry.Debug("member is already being punished")
			return nil
		}
	}

	if kind == db.ActionPoints {
		return e.addPoints(ctx, cfg, t, t.Action.Points)
	}

	rec := e.record(t)
	var err error
	switch kind {
	case db.ActionDelete:
		rec.Kind = RecordDelete
		e.notify(ctx, cfg, t, rec)
	case db.ActionBan:
		rec.Kind = RecordBan
		e.notify(ctx, cfg, t, rec)
		err = e.exec.Ban(ctx, t.Member, t.Reason, 0)
	case db.ActionKick:
		rec.Kind = RecordKick
		e.notify(ctx, cfg, t, rec)
		err = e.exec.Kick(ctx, t.Member, t.Reason)
	case db.ActionTempban:
		until := e.now().Add(t.Action.Duration())
		rec.Kind, rec.Until = RecordTempban, &until
		e.notify(ctx, cfg, t, rec)
		err = e.exec.Tempban(ctx, t.Member, until, t.Reason, 0)
	case db.ActionTempmute:
		until := e.now().Add(t.Action.Duration())
		rec.Kind, rec.Until = RecordTempmute, &until
		e.notify(ctx, cfg, t, rec)
		err = e.exec.Tempmute(ctx, t.Member, until, t.Reason)
	default:
		entry.Warn("unsupported action kind")
		return nil
	}
	if err != nil {
		if isSkipped(err) {
			entry.WithError(err).Info("action skipped")
			return nil
		}
		return err
	}
	e.log(ctx, rec)
	return nil
}

// Warn adds moderator-issued points and escalates when the threshold is reached.
func (e *Enforcer) Warn(ctx context.Context, cfg *db.ModerationConfig, guild *Guild, target, moderator *Member, points int, reason string) (int, error) {
	t := &Trigger{
		Guild:     guild,
		Member:    target,
		Action:    db.Action{Kind: db.ActionPoints, Points: points},
		Reason:    reason,
		Moderator: moderator,
	}
	return e.addPointsTotal(ctx, cfg, t, points)
}

func (e *Enforcer) addPoints(ctx context.Context, cfg *db.ModerationConfig, t *Trigger, points int) error {
	_, err := e.addPointsTotal(ctx, cfg, t, points)
	return err
}

func (e *Enforcer) addPointsTotal(ctx context.Context, cfg *db.ModerationConfig, t *Trigger, points int) (int, error) {
	total, err := e.ledger.Add(ctx, cfg, t.Member.GuildID, t.Member.UserID, points, t.Reason)
	if err != nil {
		return 0, err
	}
	threshold := e.ledger.Threshold()
	if total-points < threshold {
		rec := e.record(t)
		rec.Kind = RecordPoints
		if t.Moderator != nil {
			rec.Kind = RecordWarn
		}
		rec.Points = e.ledger.pointsLabel(total, points)
		e.notify(ctx, cfg, t, rec)
		e.log(ctx, rec)
	}
	if total >= threshold {
		if err := e.escalate(ctx, cfg, t.Guild, t.Member); err != nil {
			return total, err
		}
	}
	return total, nil
}

// escalate applies the first eligible entry of the escalation chain, then resets the ledger.
func (e *Enforcer) escalate(ctx context.Context, cfg *db.ModerationConfig, guild *Guild, member *Member) error {
	entry := e.getLogEntry().
		WithField("guild_id", member.GuildID).
		WithField("user_id", member.UserID)

	if err := e.finalAction(ctx, cfg, guild, member); err != nil {
		return err
	}
	n, err := e.ledger.Reset(ctx, member.GuildID, member.UserID)
	if err != nil {
		return err
	}
	entry.WithField("removed", n).Info("points threshold reached, ledger reset")
	return nil
}

func (e *Enforcer) finalAction(ctx context.Context, cfg *db.ModerationConfig, guild *Guild, member *Member) error {
	entry := e.getLogEntry().
		WithField("guild_id", member.GuildID).
		WithField("user_id", member.UserID)

	if len(cfg.AutomodActions) == 0 {
		entry.Warn("points threshold reached but no escalation actions are configured")
		return nil
	}
	action, ok := selectAction(cfg.AutomodActions, member, e.now())
	if !ok {
		entry.Debug("no escalation action applies to member")
		return nil
	}
	key := memberKey{guildID: member.GuildID, userID: member.UserID}
	if !e.inflight.PutIfAbsent(key, struct{}{}) {
		entry.Debug("member is already being punished")
		return nil
	}

	t := &Trigger{
		Guild:  guild,
		Member: member,
		Action: action,
		Reason: i18n.Get("Maximum number of points reached", guild.Locale),
	}
	rec := e.record(t)
	rec.Kind, rec.Action = RecordEscalation, action.Kind

	var err error
	switch action.Kind {
	case db.ActionKick:
		e.notifyAs(ctx, cfg, t, rec, RecordKick)
		err = e.exec.Kick(ctx, member, t.Reason)
	case db.ActionBan:
		e.notifyAs(ctx, cfg, t, rec, RecordBan)
		err = e.exec.Ban(ctx, member, t.Reason, 0)
	case db.ActionTempban:
		until := e.now().Add(action.Duration())
		rec.Until = &until
		e.notifyAs(ctx, cfg, t, rec, RecordTempban)
		err = e.exec.Tempban(ctx, member, until, t.Reason, 0)
	case db.ActionTempmute:
		until := e.now().Add(action.Duration())
		rec.Until = &until
		e.notifyAs(ctx, cfg, t, rec, RecordTempmute)
		err = e.exec.Tempmute(ctx, member, until, t.Reason)
	default:
		entry.WithField("kind", action.Kind).Warn("unsupported escalation action")
		return nil
	}
	if err != nil {
		if isSkipped(err) {
			entry.WithError(err).Info("escalation skipped")
			return nil
		}
		return fmt.Errorf("escalate: %w", err)
	}
	e.log(ctx, rec)
	return nil
}

func (e *Enforcer) record(t *Trigger) *Record {
	return &Record{
		GuildID:      t.Member.GuildID,
		TargetID:     t.Member.UserID,
		TargetName:   t.Member.Username,
		TargetAvatar: t.Member.AvatarURL,
		Moderator:    t.Moderator,
		Reason:       t.Reason,
		Content:      t.Content,
		Locale:       t.Guild.Locale,
		At:           e.now(),
	}
}

func (e *Enforcer) notify(ctx context.Context, cfg *db.ModerationConfig, t *Trigger, rec *Record) {
	e.notifyAs(ctx, cfg, t, rec, rec.Kind)
}

func (e *Enforcer) notifyAs(ctx context.Context, cfg *db.ModerationConfig, t *Trigger, rec *Record, kind RecordKind) {
	if cfg == nil || !cfg.NotifyUser || t.Member.Bot {
		return
	}
	ok := e.exec.DirectMessage(ctx, t.Member.UserID, directMessage(kind, t.Guild.Locale, t.Guild.Name, rec.Reason, rec.Until, rec.Points))
	rec.DirectMessaged = &ok
}

func (e *Enforcer) log(ctx context.Context, rec *Record) {
	if err := e.audit.Log(ctx, rec); err != nil {
		e.getLogEntry().WithError(err).WithField("guild_id", rec.GuildID).Warn("cant write audit record")
	}
}

func deletesMessage(kind db.ActionKind) bool {
	switch kind {
	case db.ActionKick, db.ActionTempmute, db.ActionPoints, db.ActionDelete:
		return true
	}
	return false
}

func isSkipped(err error) bool {
	return errors.Is(err, nerrors.ErrNoPrivileges) || errors.Is(err, nerrors.ErrHierarchy)
}

func directMessage(kind RecordKind, lang, guild, reason string, until *time.Time, points string) string {
	if reason == "" {
		reason = i18n.Get("No reason", lang)
	}
	var untilText string
	if until != nil {
		untilText = discordTimestamp(*until, "f")
	}
	switch kind {
	case RecordBan:
		return i18n.Getf("You have been banned from **%s**. Reason: %s", lang, guild, reason)
	case RecordTempban:
		return i18n.Getf("You have been banned from **%s** until %s. Reason: %s", lang, guild, untilText, reason)
	case RecordSoftban:
		return i18n.Getf("You have been softbanned from **%s**. Reason: %s", lang, guild, reason)
	case RecordKick:
		return i18n.Getf("You have been kicked from **%s**. Reason: %s", lang, guild, reason)
	case RecordTempmute:
		return i18n.Getf("You have been muted in **%s** until %s. Reason: %s", lang, guild, untilText, reason)
	case RecordWarn:
		return i18n.Getf("You have been warned in **%s** (%s points). Reason: %s", lang, guild, points, reason)
	case RecordPoints:
		return i18n.Getf("You received points in **%s** (%s points). Reason: %s", lang, guild, points, reason)
	default:
		return i18n.Getf("Your message in **%s** has been deleted. Reason: %s", lang, guild, reason)
	}
}
