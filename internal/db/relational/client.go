// Package relational implements db.Client over sqlx. Queries are written with
// '?' placeholders and rebound per driver, so the same client serves Postgres
// in production and sqlite in tests and local runs.
package relational

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/db"
)

const (
	moderationColumns = `guild_id, active, mod_roles, ignored_roles, notify_user, automod_actions,
		points_expiry, logging_channel,
		invite_active, invite_actions, invite_whitelist_channels, invite_whitelist_roles, invite_allowed,
		link_active, link_actions, link_whitelist_channels, link_whitelist_roles, link_list, link_is_whitelist,
		caps_active, caps_actions, caps_whitelist_channels, caps_whitelist_roles,
		blacklist_active, blacklist_actions, blacklist_whitelist_channels, blacklist_whitelist_roles,
		mention_active, mention_actions, mention_whitelist_channels, mention_whitelist_roles`

	maybeWebhookColumns = `id, guild_id, channel_id, webhook_id, webhook_token`
)

type Client struct {
	db *sqlx.DB
}

var _ db.Client = (*Client)(nil)

func New(dbx *sqlx.DB) *Client {
	return &Client{db: dbx}
}

// DB exposes the underlying handle for migrations and tests.
func (c *Client) DB() *sqlx.DB {
	return c.db
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) getLogEntry() *log.Entry {
	return log.WithField("context", "db")
}

func (c *Client) GetModeration(ctx context.Context, guildID int64) (*db.ModerationConfig, error) {
	res := &db.ModerationConfig{}
	query := c.db.Rebind("SELECT " + moderationColumns + " FROM moderation WHERE guild_id = ?")
	if err := c.db.GetContext(ctx, res, query, guildID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get moderation")
	}
	if res.LoggingChannel != nil {
		webhooks, err := c.getMaybeWebhooks(ctx, []int64{*res.LoggingChannel})
		if err != nil {
			return nil, err
		}
		res.Webhook = webhooks[*res.LoggingChannel]
	}
	return res, nil
}

func (c *Client) GetLogging(ctx context.Context, guildID int64) (*db.LoggingConfig, error) {
	var rows []*db.LoggingSetting
	query := c.db.Rebind(`SELECT guild_id, kind, active, channel, exempt_channels, exempt_roles
		FROM logging WHERE guild_id = ?`)
	if err := c.db.SelectContext(ctx, &rows, query, guildID); err != nil {
		return nil, errors.Wrap(err, "get logging")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	refs := make([]int64, 0, len(rows))
	for _, row := range rows {
		if row.ChannelRef != nil {
			refs = append(refs, *row.ChannelRef)
		}
	}
	webhooks, err := c.getMaybeWebhooks(ctx, refs)
	if err != nil {
		return nil, err
	}

	res := &db.LoggingConfig{GuildID: guildID, Settings: make(map[string]*db.LoggingSetting, len(rows))}
	for _, row := range rows {
		if row.ChannelRef != nil {
			row.Channel = webhooks[*row.ChannelRef]
		}
		res.Settings[row.Kind] = row
	}
	return res, nil
}

func (c *Client) GetWelcome(ctx context.Context, guildID int64) (*db.WelcomeConfig, error) {
	res := &db.WelcomeConfig{}
	query := c.db.Rebind(`SELECT guild_id, join_active, join_channel, join_roles, join_message, join_dm,
		leave_active, leave_channel, leave_message FROM welcome WHERE guild_id = ?`)
	if err := c.db.GetContext(ctx, res, query, guildID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get welcome")
	}
	return res, nil
}

func (c *Client) GetLeveling(ctx context.Context, guildID int64) (*db.LevelingConfig, error) {
	res := &db.LevelingConfig{}
	query := c.db.Rebind(`SELECT guild_id, message, channel, roles, remove_roles, exempt_role,
		exempt_channels, booster_xp_multiplier FROM leveling WHERE guild_id = ?`)
	if err := c.db.GetContext(ctx, res, query, guildID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get leveling")
	}
	return res, nil
}

func (c *Client) GetModerationRule(ctx context.Context, ruleID int64) (*db.ModerationRule, error) {
	res := &db.ModerationRule{}
	query := c.db.Rebind("SELECT rule_id, guild_id, reason FROM moderation_rules WHERE rule_id = ?")
	if err := c.db.GetContext(ctx, res, query, ruleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "get moderation rule")
	}
	return res, nil
}

func (c *Client) DeleteModerationRule(ctx context.Context, ruleID int64) error {
	_, err := c.db.ExecContext(ctx, c.db.Rebind("DELETE FROM moderation_rules WHERE rule_id = ?"), ruleID)
	return errors.Wrap(err, "delete moderation rule")
}

func (c *Client) GetPunishments(ctx context.Context, guildID int64) ([]*db.Punishment, error) {
	var res []*db.Punishment
	query := c.db.Rebind("SELECT id, guild_id, name, reason, actions FROM punishments WHERE guild_id = ? ORDER BY id")
	if err := c.db.SelectContext(ctx, &res, query, guildID); err != nil {
		return nil, errors.Wrap(err, "get punishments")
	}
	return res, nil
}

// InvalidateWebhook drops the credentials of a webhook reference but keeps its channel.
func (c *Client) InvalidateWebhook(ctx context.Context, maybeWebhookID int64) error {
	query := c.db.Rebind("UPDATE maybe_webhook SET webhook_id = NULL, webhook_token = NULL WHERE id = ?")
	if _, err := c.db.ExecContext(ctx, query, maybeWebhookID); err != nil {
		return errors.Wrap(err, "invalidate webhook")
	}
	c.getLogEntry().WithField("maybe_webhook_id", maybeWebhookID).Info("webhook credentials dropped")
	return nil
}

// GetLanguage returns the guild's configured language, or "" when unset.
func (c *Client) GetLanguage(ctx context.Context, guildID int64) (string, error) {
	var lang string
	err := c.db.GetContext(ctx, &lang, c.db.Rebind("SELECT language FROM guild_config WHERE id = ?"), guildID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return lang, errors.Wrap(err, "get language")
}

func (c *Client) getMaybeWebhooks(ctx context.Context, ids []int64) (map[int64]*db.MaybeWebhook, error) {
	res := make(map[int64]*db.MaybeWebhook, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	query, args, err := sqlx.In("SELECT "+maybeWebhookColumns+" FROM maybe_webhook WHERE id IN (?)", ids)
	if err != nil {
		return nil, errors.Wrap(err, "build maybe_webhook query")
	}
	var rows []*db.MaybeWebhook
	if err := c.db.SelectContext(ctx, &rows, c.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "get maybe_webhook")
	}
	for _, row := range rows {
		res[row.ID] = row
	}
	return res, nil
}
