package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "NGMOD_"

type (
	Config struct {
		DiscordToken    string   `env:"TOKEN,required"`
		ApplicationID   string   `env:"APPLICATION_ID"`
		DevGuildID      string   `env:"DEV_GUILD_ID"`
		DefaultLanguage string   `env:"LANG,default=en"`
		EnabledHandlers []string `env:"HANDLERS,default=automod,moderation,housekeeping"`
		LogLevel        int      `env:"LOG_LEVEL,default=4"`
		DotPath         string   `env:"DOT_PATH,default=~/.ngmod"`
		ShardID         int      `env:"SHARD_ID,default=0"`
		ShardCount      int      `env:"SHARD_COUNT,default=1"`
		Database        Database
		RPC             RPC
		Moderation      Moderation
	}

	Database struct {
		Driver       string `env:"DB_DRIVER,default=postgres"`
		URL          string `env:"DATABASE_URL"`
		SQLiteFile   string `env:"DB_SQLITE_FILE,default=ngmod.db"`
		Migrate      bool   `env:"DB_MIGRATE,default=false"`
		MaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=20"`
	}

	RPC struct {
		Addr        string `env:"RPC_ADDR,default=:50051"`
		MetricsAddr string `env:"METRICS_ADDR,default=:2112"`
	}

	Moderation struct {
		PointsThreshold   int           `env:"POINTS_THRESHOLD,default=10"`
		PointsExpiry      time.Duration `env:"POINTS_EXPIRY,default=720h"`
		InviteTTL         time.Duration `env:"INVITE_TTL,default=10m"`
		InviteNegativeTTL time.Duration `env:"INVITE_NEGATIVE_TTL,default=1m"`
		InflightTTL       time.Duration `env:"INFLIGHT_TTL,default=5s"`
		TimerWindow       time.Duration `env:"TIMER_WINDOW,default=168h"`
		TimerIdle         time.Duration `env:"TIMER_IDLE,default=30s"`
		ClearLimit        int           `env:"CLEAR_LIMIT,default=3"`
		ClearWindow       time.Duration `env:"CLEAR_WINDOW,default=60s"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("cant read .env file")
		}

		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper(envPrefix, envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		dotPath, err := homedir.Expand(cfg.DotPath)
		if err != nil {
			globalErr = fmt.Errorf("expand dot path: %w", err)
			return
		}
		cfg.DotPath = dotPath
		if cfg.ShardCount < 1 {
			cfg.ShardCount = 1
		}
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
