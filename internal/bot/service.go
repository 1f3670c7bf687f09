package bot

import (
	"context"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/infrastructure/discord"
)

// Session is the gateway connection driven by the service.
type Session interface {
	AddHandler(handler interface{}) func()
	Open() error
	Close() error
	ApplicationCommandBulkOverwrite(appID string, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

type Identity interface {
	BotUserID() int64
}

type Options struct {
	ApplicationID string
	// DevGuildID registers commands in a single guild, where updates apply instantly.
	DevGuildID      string
	EnabledHandlers []string
}

// Service connects the gateway session to the update processor.
type Service struct {
	session   Session
	identity  Identity
	processor *UpdateProcessor
	opts      Options

	runMutex sync.Mutex
	removers []func()
	cancel   context.CancelFunc
}

func NewService(session Session, identity Identity, processor *UpdateProcessor, opts Options) *Service {
	return &Service{
		session:   session,
		identity:  identity,
		processor: processor,
		opts:      opts,
	}
}

func (s *Service) getLogEntry() *log.Entry {
	return log.WithField("context", "bot")
}

func (s *Service) Start(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.processor.bind(runCtx)
	for _, handler := range s.processor.Handlers(s.opts.EnabledHandlers) {
		s.removers = append(s.removers, s.session.AddHandler(handler))
	}
	if err := s.session.Open(); err != nil {
		cancel()
		s.removeHandlers()
		return errors.Wrap(err, "open gateway session")
	}
	s.cancel = cancel

	if slices.Contains(s.opts.EnabledHandlers, HandlerModeration) {
		if err := s.registerCommands(ctx); err != nil {
			return err
		}
	}
	s.getLogEntry().WithField("handlers", s.opts.EnabledHandlers).Info("bot started")
	return nil
}

func (s *Service) registerCommands(ctx context.Context) error {
	appID := s.opts.ApplicationID
	if appID == "" {
		appID = discord.FormatID(s.identity.BotUserID())
	}
	if appID == "" {
		return errors.New("unknown application id")
	}
	registered, err := s.session.ApplicationCommandBulkOverwrite(appID, s.opts.DevGuildID, Definitions(), discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "register application commands")
	}
	s.getLogEntry().WithField("count", len(registered)).Debug("application commands registered")
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.cancel == nil {
		return nil
	}

	s.removeHandlers()
	if err := s.processor.wait(ctx); err != nil {
		s.getLogEntry().WithError(err).Warn("events still running on shutdown")
	}
	s.cancel()
	s.cancel = nil
	return errors.Wrap(s.session.Close(), "close gateway session")
}

func (s *Service) removeHandlers() {
	for _, remove := range s.removers {
		remove()
	}
	s.removers = nil
}
