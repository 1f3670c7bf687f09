package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/iamwavecut/ngmod/internal/db"
)

const (
	DefaultPointsThreshold = 10
	DefaultPointsExpiry    = 30 * 24 * time.Hour
)

type LedgerStore interface {
	AddInfraction(ctx context.Context, infraction *db.Infraction, now time.Time) (int, error)
	ActivePoints(ctx context.Context, guildID, userID int64, now time.Time) (int, error)
	ListInfractions(ctx context.Context, guildID, userID int64) ([]*db.Infraction, error)
	DeleteInfraction(ctx context.Context, guildID, userID, id int64) (bool, error)
	DeleteInfractions(ctx context.Context, guildID, userID int64) (int64, error)
}

// Ledger keeps weighted infractions per member. Rows stop counting once expired.
type Ledger struct {
	store     LedgerStore
	threshold int
	expiry    time.Duration
	now       func() time.Time
}

func NewLedger(store LedgerStore, threshold int, expiry time.Duration) *Ledger {
	if threshold <= 0 {
		threshold = DefaultPointsThreshold
	}
	if expiry <= 0 {
		expiry = DefaultPointsExpiry
	}
	return &Ledger{store: store, threshold: threshold, expiry: expiry, now: time.Now}
}

func (l *Ledger) Threshold() int {
	return l.threshold
}

// Add appends an infraction and returns the active total including it.
func (l *Ledger) Add(ctx context.Context, cfg *db.ModerationConfig, guildID, userID int64, points int, reason string) (int, error) {
	now := l.now().UTC()
	expiresAt := cfg.PointsExpiryAt(now, l.expiry)
	total, err := l.store.AddInfraction(ctx, &db.Infraction{
		GuildID:   guildID,
		UserID:    userID,
		Points:    points,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: &expiresAt,
	}, now)
	if err != nil {
		return 0, fmt.Errorf("add infraction: %w", err)
	}
	return total, nil
}

func (l *Ledger) Total(ctx context.Context, guildID, userID int64) (int, error) {
	total, err := l.store.ActivePoints(ctx, guildID, userID, l.now())
	if err != nil {
		return 0, fmt.Errorf("sum infractions: %w", err)
	}
	return total, nil
}

// Reset deletes every infraction of the member.
func (l *Ledger) Reset(ctx context.Context, guildID, userID int64) (int64, error) {
	n, err := l.store.DeleteInfractions(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("reset infractions: %w", err)
	}
	return n, nil
}

func (l *Ledger) List(ctx context.Context, guildID, userID int64) ([]*db.Infraction, error) {
	list, err := l.store.ListInfractions(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("list infractions: %w", err)
	}
	return list, nil
}

func (l *Ledger) Remove(ctx context.Context, guildID, userID, id int64) (bool, error) {
	ok, err := l.store.DeleteInfraction(ctx, guildID, userID, id)
	if err != nil {
		return false, fmt.Errorf("remove infraction: %w", err)
	}
	return ok, nil
}

// Active reports whether an infraction still counts toward the threshold.
func (l *Ledger) Active(inf *db.Infraction) bool {
	return inf.ExpiresAt == nil || inf.ExpiresAt.After(l.now())
}

func (l *Ledger) pointsLabel(total, added int) string {
	return fmt.Sprintf("%d/%d [+%d]", total, l.threshold, added)
}
