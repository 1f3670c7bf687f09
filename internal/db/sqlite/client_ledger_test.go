package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/iamwavecut/ngmod/internal/db"
)

func TestAddInfractionSumsActivePoints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	expired := now.Add(-time.Hour)
	if _, err := client.AddInfraction(ctx, &db.Infraction{
		GuildID: 1, UserID: 2, Points: 6, Reason: "old", CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: &expired,
	}, now); err != nil {
		t.Fatalf("add expired infraction: %v", err)
	}

	later := now.Add(30 * 24 * time.Hour)
	first := &db.Infraction{GuildID: 1, UserID: 2, Points: 4, Reason: "caps", CreatedAt: now, ExpiresAt: &later}
	total, err := client.AddInfraction(ctx, first, now)
	if err != nil {
		t.Fatalf("add infraction: %v", err)
	}
	if total != 4 {
		t.Fatalf("expected expired points to be ignored, total=%d", total)
	}
	if first.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	total, err = client.AddInfraction(ctx, &db.Infraction{GuildID: 1, UserID: 2, Points: 3, Reason: "link", CreatedAt: now.Add(time.Minute)}, now)
	if err != nil {
		t.Fatalf("add infraction without expiry: %v", err)
	}
	if total != 7 {
		t.Fatalf("expected total 7, got %d", total)
	}

	// other guild does not leak into the sum
	if _, err := client.AddInfraction(ctx, &db.Infraction{GuildID: 9, UserID: 2, Points: 50, CreatedAt: now}, now); err != nil {
		t.Fatalf("add foreign infraction: %v", err)
	}
	active, err := client.ActivePoints(ctx, 1, 2, now)
	if err != nil || active != 7 {
		t.Fatalf("active points: got %d, %v", active, err)
	}
}

func TestListAndDeleteInfractions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newTestClient(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 3; i++ {
		inf := &db.Infraction{GuildID: 1, UserID: 2, Points: i + 1, Reason: "r", CreatedAt: now.Add(time.Duration(i) * time.Minute)}
		if _, err := client.AddInfraction(ctx, inf, now); err != nil {
			t.Fatalf("add infraction: %v", err)
		}
		ids = append(ids, inf.ID)
	}

	list, err := client.ListInfractions(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ID != ids[2] || list[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !list[0].CreatedAt.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("created_at round trip: %v", list[0].CreatedAt)
	}

	ok, err := client.DeleteInfraction(ctx, 1, 3, ids[0])
	if err != nil || ok {
		t.Fatalf("delete with wrong user should not match: %v, %v", ok, err)
	}
	ok, err = client.DeleteInfraction(ctx, 1, 2, ids[0])
	if err != nil || !ok {
		t.Fatalf("delete infraction: %v, %v", ok, err)
	}

	n, err := client.DeleteInfractions(ctx, 1, 2)
	if err != nil || n != 2 {
		t.Fatalf("delete all: %d, %v", n, err)
	}
	if total, _ := client.ActivePoints(ctx, 1, 2, now); total != 0 {
		t.Fatalf("expected empty ledger, got %d", total)
	}
}
