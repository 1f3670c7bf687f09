package db

import (
	"context"
	"time"
)

type Client interface {
	Close() error

	GetModeration(ctx context.Context, guildID int64) (*ModerationConfig, error)
	GetLogging(ctx context.Context, guildID int64) (*LoggingConfig, error)
	GetWelcome(ctx context.Context, guildID int64) (*WelcomeConfig, error)
	GetLeveling(ctx context.Context, guildID int64) (*LevelingConfig, error)
	GetModerationRule(ctx context.Context, ruleID int64) (*ModerationRule, error)
	DeleteModerationRule(ctx context.Context, ruleID int64) error
	GetPunishments(ctx context.Context, guildID int64) ([]*Punishment, error)
	InvalidateWebhook(ctx context.Context, maybeWebhookID int64) error
	GetLanguage(ctx context.Context, guildID int64) (string, error)

	AddInfraction(ctx context.Context, infraction *Infraction, now time.Time) (int, error)
	ActivePoints(ctx context.Context, guildID, userID int64, now time.Time) (int, error)
	ListInfractions(ctx context.Context, guildID, userID int64) ([]*Infraction, error)
	DeleteInfraction(ctx context.Context, guildID, userID, id int64) (bool, error)
	DeleteInfractions(ctx context.Context, guildID, userID int64) (int64, error)

	ReplaceTimer(ctx context.Context, timer *Timer) (int64, error)
	NextTimer(ctx context.Context, before time.Time) (*Timer, error)
	DeleteTimer(ctx context.Context, id int64) (bool, error)
	DeleteTimers(ctx context.Context, guildID, targetID int64, kind TimerKind) ([]int64, error)
}
