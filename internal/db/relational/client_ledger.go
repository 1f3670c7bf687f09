package relational

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/iamwavecut/ngmod/internal/db"
)

const activePointsQuery = `SELECT COALESCE(SUM(points), 0) FROM automod_users
	WHERE guild_id = ? AND user_id = ? AND (expires_at IS NULL OR expires_at > ?)`

// AddInfraction appends a ledger row and returns the active points total
// observed right after the insert, in one transaction.
func (c *Client) AddInfraction(ctx context.Context, infraction *db.Infraction, now time.Time) (int, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin infraction tx")
	}
	defer func() { _ = tx.Rollback() }()

	insert := tx.Rebind(`INSERT INTO automod_users (guild_id, user_id, points, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`)
	if err := tx.QueryRowxContext(ctx, insert,
		infraction.GuildID,
		infraction.UserID,
		infraction.Points,
		infraction.Reason,
		infraction.CreatedAt.UTC(),
		utcPtr(infraction.ExpiresAt),
	).Scan(&infraction.ID); err != nil {
		return 0, errors.Wrap(err, "insert infraction")
	}

	var total int
	if err := tx.GetContext(ctx, &total, tx.Rebind(activePointsQuery), infraction.GuildID, infraction.UserID, now.UTC()); err != nil {
		return 0, errors.Wrap(err, "sum infractions")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit infraction tx")
	}
	return total, nil
}

func (c *Client) ActivePoints(ctx context.Context, guildID, userID int64, now time.Time) (int, error) {
	var total int
	if err := c.db.GetContext(ctx, &total, c.db.Rebind(activePointsQuery), guildID, userID, now.UTC()); err != nil {
		return 0, errors.Wrap(err, "sum infractions")
	}
	return total, nil
}

func (c *Client) ListInfractions(ctx context.Context, guildID, userID int64) ([]*db.Infraction, error) {
	var res []*db.Infraction
	query := c.db.Rebind(`SELECT id, guild_id, user_id, points, reason, created_at, expires_at
		FROM automod_users WHERE guild_id = ? AND user_id = ? ORDER BY created_at DESC, id DESC`)
	if err := c.db.SelectContext(ctx, &res, query, guildID, userID); err != nil {
		return nil, errors.Wrap(err, "list infractions")
	}
	return res, nil
}

func (c *Client) DeleteInfraction(ctx context.Context, guildID, userID, id int64) (bool, error) {
	query := c.db.Rebind("DELETE FROM automod_users WHERE id = ? AND guild_id = ? AND user_id = ?")
	res, err := c.db.ExecContext(ctx, query, id, guildID, userID)
	if err != nil {
		return false, errors.Wrap(err, "delete infraction")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete infraction rows affected")
	}
	return n > 0, nil
}

func (c *Client) DeleteInfractions(ctx context.Context, guildID, userID int64) (int64, error) {
	query := c.db.Rebind("DELETE FROM automod_users WHERE guild_id = ? AND user_id = ?")
	res, err := c.db.ExecContext(ctx, query, guildID, userID)
	if err != nil {
		return 0, errors.Wrap(err, "delete infractions")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "delete infractions rows affected")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
