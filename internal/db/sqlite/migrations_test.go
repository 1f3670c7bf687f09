package sqlite

import (
	"context"
	"testing"
)

func TestIndexesExistAfterMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, err := NewSQLiteClient(ctx, t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	required := map[string][]string{
		"timers":        {"idx_timers_expires", "idx_timers_target"},
		"automod_users": {"idx_automod_users_guild_user"},
		"punishments":   {"idx_punishments_guild"},
	}
	for table, names := range required {
		indexes := indexNames(t, ctx, client.DB().DB, table)
		for _, name := range names {
			if _, ok := indexes[name]; !ok {
				t.Fatalf("required index %q not found on %s", name, table)
			}
		}
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	first, err := NewSQLiteClient(ctx, dir, "test.db")
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = first.Close()

	second, err := NewSQLiteClient(ctx, dir, "test.db")
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
}
