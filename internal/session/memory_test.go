package session

import (
	"context"
	"testing"
	"time"

	"warungpos/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if sess, err := store.Get(ctx, "61400000001"); err != nil || sess != nil {
		t.Fatalf("expected (nil, nil) for unknown phone, got (%v, %v)", sess, err)
	}

	saved := &domain.CustomerSession{
		Phone:        "61400000001",
		State:        domain.ConvStateAwaitingOrder,
		Cart:         []domain.CartLine{{ProductID: "prod-1", Name: "Cookie", PriceCents: 385, Quantity: 2}},
		LastActivity: time.Now().UTC(),
	}
	if err := store.Save(ctx, saved); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := store.Get(ctx, "61400000001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil || got.State != domain.ConvStateAwaitingOrder || len(got.Cart) != 1 {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.Clear(ctx, "61400000001"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if sess, _ := store.Get(ctx, "61400000001"); sess != nil {
		t.Fatalf("expected cleared session to be gone, got %+v", sess)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	stale := &domain.CustomerSession{Phone: "61400000001", State: domain.ConvStateAwaitingOrder, LastActivity: base.Add(-2 * time.Hour)}
	fresh := &domain.CustomerSession{Phone: "61400000002", State: domain.ConvStateAwaitingName, LastActivity: base.Add(-10 * time.Minute)}
	for _, sess := range []*domain.CustomerSession{stale, fresh} {
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	// Expired sessions read as absent.
	if sess, _ := store.Get(ctx, "61400000001"); sess != nil {
		t.Fatalf("expected stale session to read as absent, got %+v", sess)
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].Phone != "61400000002" {
		t.Fatalf("expected only the fresh session active, got %+v", active)
	}
}

func TestMemoryStoreClearExpired(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return base })

	for i, age := range []time.Duration{2 * time.Hour, 3 * time.Hour, 5 * time.Minute} {
		sess := &domain.CustomerSession{
			Phone:        string(rune('a' + i)),
			State:        domain.ConvStateAwaitingOrder,
			LastActivity: base.Add(-age),
		}
		if err := store.Save(ctx, sess); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	removed, err := store.ClearExpired(ctx)
	if err != nil {
		t.Fatalf("clear expired failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	active, _ := store.ListActive(ctx)
	if len(active) != 1 {
		t.Fatalf("expected one survivor, got %d", len(active))
	}
}
