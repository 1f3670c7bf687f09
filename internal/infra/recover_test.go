package infra

import (
	"errors"
	"strings"
	"testing"
)

func TestRecoverConvertsPanic(t *testing.T) {
	t.Parallel()

	err := Recover("job", func() error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "job panicked: boom") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecoverPassesErrorsThrough(t *testing.T) {
	t.Parallel()

	want := errors.New("plain")
	if err := Recover("job", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected passthrough, got %v", err)
	}
	if err := Recover("job", func() error { return nil }); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
