package rpc

import (
	"context"
	"errors"
	"net"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server exposes the cache service over gRPC. An empty address disables it.
type Server struct {
	addr   string
	cache  CacheInvalidator
	logger *zap.Logger

	runMutex sync.Mutex
	server   *grpc.Server
}

func NewServer(addr string, invalidator CacheInvalidator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		addr:   addr,
		cache:  invalidator,
		logger: logger,
	}
}

func (s *Server) getLogEntry() *log.Entry {
	return log.WithField("context", "rpc")
}

func (s *Server) Start(ctx context.Context) error {
	if s.addr == "" {
		s.getLogEntry().Info("rpc address not set, cache service disabled")
		return nil
	}
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	s.Serve(listener)
	return nil
}

// Serve starts serving on an existing listener. It returns immediately.
func (s *Server) Serve(listener net.Listener) {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()
	if s.server != nil {
		_ = listener.Close()
		return
	}

	s.server = grpc.NewServer(grpc.ChainUnaryInterceptor(
		recoveryInterceptor(s.logger),
		loggingInterceptor(s.logger),
	))
	RegisterUpdateCacheServer(s.server, NewCacheService(s.cache))
	server := s.server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.getLogEntry().WithError(err).Error("rpc server failed")
		}
	}()
	s.getLogEntry().WithField("addr", listener.Addr().String()).Info("rpc server listening")
}

// Stop drains in-flight calls, forcing the shutdown once ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.runMutex.Lock()
	server := s.server
	s.server = nil
	s.runMutex.Unlock()
	if server == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		server.Stop()
		<-done
		return ctx.Err()
	}
}
