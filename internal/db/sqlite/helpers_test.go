package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/iamwavecut/ngmod/internal/db/relational"
)

func newTestClient(t *testing.T) *relational.Client {
	t.Helper()
	client, err := NewSQLiteClient(context.Background(), t.TempDir(), "test.db")
	if err != nil {
		t.Fatalf("new sqlite client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func mustExec(t *testing.T, client *relational.Client, query string, args ...any) {
	t.Helper()
	if _, err := client.DB().Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func mustInsertID(t *testing.T, client *relational.Client, query string, args ...any) int64 {
	t.Helper()
	var id int64
	if err := client.DB().QueryRow(query, args...).Scan(&id); err != nil {
		t.Fatalf("insert %q: %v", query, err)
	}
	return id
}

func indexNames(t *testing.T, ctx context.Context, conn *sql.DB, table string) map[string]struct{} {
	t.Helper()
	rows, err := conn.QueryContext(ctx, "PRAGMA index_list('"+table+"')")
	if err != nil {
		t.Fatalf("query index_list: %v", err)
	}
	defer rows.Close()

	indexes := make(map[string]struct{})
	for rows.Next() {
		var (
			seq     int
			name    string
			unique  int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
			t.Fatalf("scan index row: %v", err)
		}
		indexes[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate index rows: %v", err)
	}
	return indexes
}
