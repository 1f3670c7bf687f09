package relational

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/iamwavecut/ngmod/internal/db"
)

const timerColumns = `id, guild_id, target_id, kind, expires_at, payload`

// ReplaceTimer removes any timer of the same (guild, target, kind) and inserts
// the new one atomically, so at most one such timer exists.
func (c *Client) ReplaceTimer(ctx context.Context, timer *db.Timer) (int64, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin timer tx")
	}
	defer func() { _ = tx.Rollback() }()

	del := tx.Rebind("DELETE FROM timers WHERE guild_id = ? AND target_id = ? AND kind = ?")
	if _, err := tx.ExecContext(ctx, del, timer.GuildID, timer.TargetID, timer.Kind); err != nil {
		return 0, errors.Wrap(err, "delete previous timer")
	}

	insert := tx.Rebind(`INSERT INTO timers (guild_id, target_id, kind, expires_at, payload)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	if err := tx.QueryRowxContext(ctx, insert,
		timer.GuildID,
		timer.TargetID,
		timer.Kind,
		timer.ExpiresAt.UTC(),
		timer.Payload,
	).Scan(&timer.ID); err != nil {
		return 0, errors.Wrap(err, "insert timer")
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit timer tx")
	}
	return timer.ID, nil
}

// NextTimer returns the soonest timer expiring before the given instant, ties by id.
func (c *Client) NextTimer(ctx context.Context, before time.Time) (*db.Timer, error) {
	res := &db.Timer{}
	query := c.db.Rebind("SELECT " + timerColumns + " FROM timers WHERE expires_at < ? ORDER BY expires_at, id LIMIT 1")
	if err := c.db.GetContext(ctx, res, query, before.UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "select next timer")
	}
	return res, nil
}

func (c *Client) DeleteTimer(ctx context.Context, id int64) (bool, error) {
	res, err := c.db.ExecContext(ctx, c.db.Rebind("DELETE FROM timers WHERE id = ?"), id)
	if err != nil {
		return false, errors.Wrap(err, "delete timer")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete timer rows affected")
	}
	return n > 0, nil
}

func (c *Client) DeleteTimers(ctx context.Context, guildID, targetID int64, kind db.TimerKind) ([]int64, error) {
	var ids []int64
	query := c.db.Rebind("DELETE FROM timers WHERE guild_id = ? AND target_id = ? AND kind = ? RETURNING id")
	if err := c.db.SelectContext(ctx, &ids, query, guildID, targetID, kind); err != nil {
		return nil, errors.Wrap(err, "delete timers")
	}
	return ids, nil
}
