package rpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/iamwavecut/ngmod/internal/cache"
)

type invalidation struct {
	kind cache.Kind
	id   int64
}

type stubInvalidator struct {
	mu     sync.Mutex
	calls  []invalidation
	err    error
	panics bool
}

func (s *stubInvalidator) Invalidate(kind cache.Kind, id int64) error {
	if s.panics {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, invalidation{kind: kind, id: id})
	return s.err
}

func startServer(t *testing.T, invalidator CacheInvalidator) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := NewServer("", invalidator, nil)
	server.Serve(listener)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(conn *grpc.ClientConn, method string, id int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return conn.Invoke(ctx, "/"+ServiceName+"/"+method, wrapperspb.Int64(id), &emptypb.Empty{})
}

func TestEveryMethodInvalidatesItsKind(t *testing.T) {
	t.Parallel()

	stub := &stubInvalidator{}
	conn := startServer(t, stub)

	cases := []struct {
		method string
		kind   cache.Kind
	}{
		{"DeleteModerationCache", cache.KindModeration},
		{"DeleteAutoModerationCache", cache.KindAutomod},
		{"DeleteLoggingCache", cache.KindLogging},
		{"DeleteWelcomeCache", cache.KindWelcome},
		{"DeleteLevelCache", cache.KindLeveling},
		{"DeleteModerationPunishmentCache", cache.KindPunishment},
	}
	for i, tc := range cases {
		if err := invoke(conn, tc.method, int64(i+1)); err != nil {
			t.Fatalf("%s: %v", tc.method, err)
		}
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.calls) != len(cases) {
		t.Fatalf("unexpected calls: %+v", stub.calls)
	}
	for i, tc := range cases {
		if stub.calls[i].kind != tc.kind || stub.calls[i].id != int64(i+1) {
			t.Fatalf("%s: got %+v", tc.method, stub.calls[i])
		}
	}
}

func TestInvalidIDIsRejected(t *testing.T) {
	t.Parallel()

	stub := &stubInvalidator{}
	conn := startServer(t, stub)

	err := invoke(conn, "DeleteModerationCache", 0)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("cache must not be touched: %+v", stub.calls)
	}
}

func TestInvalidatorFailures(t *testing.T) {
	t.Parallel()

	conn := startServer(t, &stubInvalidator{err: context.DeadlineExceeded})
	if err := invoke(conn, "DeleteWelcomeCache", 1); status.Code(err) != codes.Internal {
		t.Fatalf("expected internal error, got %v", err)
	}

	conn = startServer(t, &stubInvalidator{panics: true})
	if err := invoke(conn, "DeleteLevelCache", 1); status.Code(err) != codes.Internal {
		t.Fatalf("panic must surface as internal error, got %v", err)
	}
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()

	conn := startServer(t, &stubInvalidator{})
	if err := invoke(conn, "DeleteEverything", 1); status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected unimplemented, got %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	server := NewServer("", &stubInvalidator{}, nil)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("disabled server must start: %v", err)
	}
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
