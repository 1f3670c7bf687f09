package bot

import (
	"context"
	"testing"
	"time"
)

func TestServiceStartStop(t *testing.T) {
	t.Parallel()

	up, _, _ := newProcessor()
	session := &stubSession{}
	service := NewService(session, stubIdentity(900), up, Options{
		DevGuildID:      "1",
		EnabledHandlers: []string{HandlerAutomod, HandlerModeration},
	})

	ctx := context.Background()
	if err := service.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	if !session.opened || session.handlers != 4 {
		t.Fatalf("unexpected session state: %+v", session)
	}
	if session.appID != "900" || session.guildID != "1" || len(session.registered) != len(Definitions()) {
		t.Fatalf("commands not registered: app %q guild %q count %d", session.appID, session.guildID, len(session.registered))
	}
	if err := service.Start(ctx); err != nil || session.handlers != 4 {
		t.Fatalf("second start must be a no-op: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := service.Stop(stopCtx); err != nil {
		t.Fatalf("stop service: %v", err)
	}
	if !session.closed || session.removed != 4 {
		t.Fatalf("unexpected session state after stop: %+v", session)
	}
}

func TestServiceSkipsCommandsWithoutModeration(t *testing.T) {
	t.Parallel()

	up, _, _ := newProcessor()
	session := &stubSession{}
	service := NewService(session, stubIdentity(900), up, Options{
		ApplicationID:   "77",
		EnabledHandlers: []string{HandlerHousekeeping},
	})
	if err := service.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	if session.registered != nil || session.handlers != 5 {
		t.Fatalf("unexpected session state: %+v", session)
	}
	if err := service.Stop(context.Background()); err != nil {
		t.Fatalf("stop service: %v", err)
	}
}

func TestServiceOpenFailure(t *testing.T) {
	t.Parallel()

	up, _, _ := newProcessor()
	session := &stubSession{openErr: errStub}
	service := NewService(session, stubIdentity(900), up, Options{EnabledHandlers: []string{HandlerAutomod}})
	if err := service.Start(context.Background()); err == nil {
		t.Fatal("expected open failure")
	}
	if session.removed != 3 {
		t.Fatalf("handlers must be removed on failure, removed %d", session.removed)
	}
	if err := service.Stop(context.Background()); err != nil {
		t.Fatalf("stop after failed start: %v", err)
	}
}
