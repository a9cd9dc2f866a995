package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/session"
	"warungpos/internal/wa"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	btns  []string
	lists int
}

func (f *fakeSender) SendText(_ context.Context, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, body)
	return nil
}

func (f *fakeSender) SendButtons(_ context.Context, _ string, body string, _ []wa.Button) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.btns = append(f.btns, body)
	return nil
}

func (f *fakeSender) SendList(_ context.Context, _ string, _ string, _ string, _ string, _ []wa.Section) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	return nil
}

func (f *fakeSender) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts) + len(f.btns) + f.lists
}

type fakeCatalog struct {
	products []domain.Product
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	for i := range f.products {
		if f.products[i].ID == id {
			p := f.products[i]
			return &p, nil
		}
	}
	return nil, apperr.NotFound("product %s not found", id)
}

func (f *fakeCatalog) ListProducts(_ context.Context) ([]domain.Product, error) {
	return f.products, nil
}

func (f *fakeCatalog) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	matches := make([]domain.Product, 0, limit)
	for _, p := range f.products {
		if strings.Contains(strings.ToLower(p.Name), strings.ToLower(query)) {
			matches = append(matches, p)
			if len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}

type fakePlacer struct {
	placed int
	err    error
}

func (f *fakePlacer) PlaceRemoteOrder(_ context.Context, sess *domain.CustomerSession) (*domain.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.placed++
	return &domain.Order{OrderNumber: "WP-20260901-TEST01", TotalCents: sess.CartTotalCents()}, nil
}

func testEngine(placer *fakePlacer) (*Engine, *fakeSender, *session.MemoryStore) {
	sender := &fakeSender{}
	sessions := session.NewMemoryStore(6 * time.Hour)
	catalog := &fakeCatalog{products: []domain.Product{
		{ID: "prod-1", Name: "Chocolate Cookie", Category: "bakery", PriceIncGstCents: 385, Active: true},
		{ID: "prod-2", Name: "Blueberry Muffin", Category: "bakery", PriceIncGstCents: 495, Active: true},
	}}
	return NewEngine(sessions, sender, catalog, placer), sender, sessions
}

func textMessage(id string, body string) *wa.Message {
	return &wa.Message{ID: id, From: "61400000001", Type: "text", Text: &wa.Text{Body: body}}
}

func TestHandleMessageRedeliveryIsNoOp(t *testing.T) {
	engine, sender, _ := testEngine(&fakePlacer{})
	ctx := context.Background()

	msg := textMessage("wamid.1", "2 chocolate cookies")
	if err := engine.HandleMessage(ctx, msg, "Alice"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	first := sender.sendCount()

	// Meta redelivers the same message id; nothing should happen.
	if err := engine.HandleMessage(ctx, msg, "Alice"); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if sender.sendCount() != first {
		t.Fatalf("expected no extra sends on redelivery, got %d then %d", first, sender.sendCount())
	}
}

func TestHandleMessageFullOrderFlow(t *testing.T) {
	placer := &fakePlacer{}
	engine, sender, sessions := testEngine(placer)
	ctx := context.Background()

	steps := []string{"2 chocolate cookies", "checkout", "Alice", "12 Main St", "none", "yes"}
	for i, body := range steps {
		if err := engine.HandleMessage(ctx, textMessage("wamid."+msgSuffix(i), body), "Alice"); err != nil {
			t.Fatalf("step %q failed: %v", body, err)
		}
	}

	if placer.placed != 1 {
		t.Fatalf("expected exactly one order placed, got %d", placer.placed)
	}

	sess, err := sessions.Get(ctx, "61400000001")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sess == nil || sess.State != domain.ConvStateOrderPlaced {
		t.Fatalf("expected ORDER_PLACED session, got %+v", sess)
	}
	if sess.OrderNumber != "WP-20260901-TEST01" {
		t.Fatalf("expected order number on session, got %q", sess.OrderNumber)
	}

	var confirmed bool
	for _, body := range sender.texts {
		if strings.Contains(body, "WP-20260901-TEST01") {
			confirmed = true
		}
	}
	if !confirmed {
		t.Fatalf("expected order number in outbound confirmation, got %v", sender.texts)
	}
}

func TestHandleMessageUnavailableItemRemovedFromCart(t *testing.T) {
	placer := &fakePlacer{err: &ItemUnavailableError{ProductID: "prod-1", Name: "Chocolate Cookie", Reason: "out of stock"}}
	engine, sender, sessions := testEngine(placer)
	ctx := context.Background()

	steps := []string{"2 chocolate cookies", "checkout", "Alice", "12 Main St", "none", "yes"}
	for i, body := range steps {
		if err := engine.HandleMessage(ctx, textMessage("wamid.u"+msgSuffix(i), body), "Alice"); err != nil {
			t.Fatalf("step %q failed: %v", body, err)
		}
	}

	sess, err := sessions.Get(ctx, "61400000001")
	if err != nil || sess == nil {
		t.Fatalf("expected session to survive, got sess=%v err=%v", sess, err)
	}
	if sess.State != domain.ConvStateAwaitingOrder {
		t.Fatalf("expected session back in AWAITING_ORDER, got %s", sess.State)
	}
	if len(sess.Cart) != 0 {
		t.Fatalf("expected failing line removed from cart, got %+v", sess.Cart)
	}

	var apologized bool
	for _, body := range sender.texts {
		if strings.Contains(body, "no longer available") {
			apologized = true
		}
	}
	if !apologized {
		t.Fatalf("expected apology message, got %v", sender.texts)
	}
}

func TestHandleMessageMenuListReply(t *testing.T) {
	engine, sender, _ := testEngine(&fakePlacer{})
	ctx := context.Background()

	if err := engine.HandleMessage(ctx, textMessage("wamid.m1", "menu"), "Alice"); err != nil {
		t.Fatalf("menu failed: %v", err)
	}
	if sender.lists != 1 {
		t.Fatalf("expected one list message, got %d", sender.lists)
	}

	// Picking a row adds one unit of the product.
	pick := &wa.Message{
		ID:   "wamid.m2",
		From: "61400000001",
		Type: "interactive",
		Interactive: &wa.Interactive{
			Type:      "list_reply",
			ListReply: &wa.ReplyItem{ID: "add:prod-2", Title: "Blueberry Muffin"},
		},
	}
	if err := engine.HandleMessage(ctx, pick, "Alice"); err != nil {
		t.Fatalf("list reply failed: %v", err)
	}
	if len(sender.btns) != 1 || !strings.Contains(sender.btns[0], "Blueberry Muffin") {
		t.Fatalf("expected add confirmation buttons, got %v", sender.btns)
	}
}

func TestHandleMessageUnknownItem(t *testing.T) {
	engine, sender, _ := testEngine(&fakePlacer{})

	if err := engine.HandleMessage(context.Background(), textMessage("wamid.x", "3 flying saucers"), "Alice"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if len(sender.texts) != 1 || !strings.Contains(sender.texts[0], "couldn't find") {
		t.Fatalf("expected not-found reply, got %v", sender.texts)
	}
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	engine, _, sessions := testEngine(&fakePlacer{})
	ctx := context.Background()

	if err := engine.HandleMessage(ctx, textMessage("wamid.s1", "hi"), "Alice"); err != nil {
		t.Fatalf("handle failed: %v", err)
	}

	sessions.SetClock(func() time.Time { return time.Now().UTC().Add(7 * time.Hour) })
	engine.Sweep(ctx)

	sess, err := sessions.Get(ctx, "61400000001")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if sess != nil {
		t.Fatalf("expected expired session removed, got %+v", sess)
	}
}

func TestHandleMessageConcurrentSamePhone(t *testing.T) {
	engine, _, sessions := testEngine(&fakePlacer{})
	ctx := context.Background()

	// Two webhook deliveries for the same phone land at once. They must be
	// serialized: both adds apply, merged into one cart line.
	var wg sync.WaitGroup
	for _, id := range []string{"wamid.c1", "wamid.c2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := engine.HandleMessage(ctx, textMessage(id, "1 chocolate cookie"), "Alice"); err != nil {
				t.Errorf("handle %s failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	sess, err := sessions.Get(ctx, "61400000001")
	if err != nil || sess == nil {
		t.Fatalf("expected session, got sess=%v err=%v", sess, err)
	}
	if len(sess.Cart) != 1 || sess.Cart[0].Quantity != 2 {
		t.Fatalf("expected one merged cart line with quantity 2, got %+v", sess.Cart)
	}
}

func msgSuffix(i int) string {
	return string(rune('a' + i))
}
