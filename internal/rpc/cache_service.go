// Package rpc serves the cache invalidation calls of the web dashboard.
package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/iamwavecut/ngmod/internal/cache"
	nerrors "github.com/iamwavecut/ngmod/internal/errors"
)

const ServiceName = "cache.UpdateCache"

type CacheInvalidator interface {
	Invalidate(kind cache.Kind, id int64) error
}

// UpdateCacheServer is implemented by the dashboard cache service. Every call
// drops one cached record so the next access reloads it from the store.
type UpdateCacheServer interface {
	DeleteModerationCache(ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)
	DeleteAutoModerationCache(ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)
	DeleteLoggingCache(ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)
	DeleteWelcomeCache(ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)
	DeleteLevelCache(ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)
	DeleteModerationPunishmentCache(ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)
}

type CacheService struct {
	cache CacheInvalidator
}

var _ UpdateCacheServer = (*CacheService)(nil)

func NewCacheService(invalidator CacheInvalidator) *CacheService {
	return &CacheService{cache: invalidator}
}

func (s *CacheService) DeleteModerationCache(_ context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	return s.invalidate(cache.KindModeration, in)
}

// DeleteAutoModerationCache takes a rule id.
func (s *CacheService) DeleteAutoModerationCache(_ context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	return s.invalidate(cache.KindAutomod, in)
}

func (s *CacheService) DeleteLoggingCache(_ context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	return s.invalidate(cache.KindLogging, in)
}

func (s *CacheService) DeleteWelcomeCache(_ context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	return s.invalidate(cache.KindWelcome, in)
}

func (s *CacheService) DeleteLevelCache(_ context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	return s.invalidate(cache.KindLeveling, in)
}

func (s *CacheService) DeleteModerationPunishmentCache(_ context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	return s.invalidate(cache.KindPunishment, in)
}

func (s *CacheService) invalidate(kind cache.Kind, in *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	if in.GetValue() <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id must be positive")
	}
	if err := s.cache.Invalidate(kind, in.GetValue()); err != nil {
		if errors.Is(err, nerrors.ErrInvalidInput) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &emptypb.Empty{}, nil
}

type cacheMethod func(srv UpdateCacheServer, ctx context.Context, in *wrapperspb.Int64Value) (*emptypb.Empty, error)

func methodDesc(name string, call cacheMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(wrapperspb.Int64Value)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(UpdateCacheServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(UpdateCacheServer), ctx, req.(*wrapperspb.Int64Value))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// UpdateCacheServiceDesc is written by hand; the dashboard owns the proto file.
var UpdateCacheServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UpdateCacheServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("DeleteModerationCache", UpdateCacheServer.DeleteModerationCache),
		methodDesc("DeleteAutoModerationCache", UpdateCacheServer.DeleteAutoModerationCache),
		methodDesc("DeleteLoggingCache", UpdateCacheServer.DeleteLoggingCache),
		methodDesc("DeleteWelcomeCache", UpdateCacheServer.DeleteWelcomeCache),
		methodDesc("DeleteLevelCache", UpdateCacheServer.DeleteLevelCache),
		methodDesc("DeleteModerationPunishmentCache", UpdateCacheServer.DeleteModerationPunishmentCache),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cache.proto",
}

func RegisterUpdateCacheServer(s grpc.ServiceRegistrar, srv UpdateCacheServer) {
	s.RegisterService(&UpdateCacheServiceDesc, srv)
}
