package conversation

import (
	"strings"
	"testing"

	"warungpos/internal/domain"
)

func newSession(state string) *domain.CustomerSession {
	return &domain.CustomerSession{Phone: "61400000001", State: state}
}

func cookieLine(qty int) domain.CartLine {
	return domain.CartLine{ProductID: "prod-1", Name: "Chocolate Cookie", PriceCents: 385, Quantity: qty}
}

func TestTransitionHappyPathToConfirmation(t *testing.T) {
	sess := newSession(domain.ConvStateAwaitingOrder)

	effects := Transition(sess, Event{Kind: EvAddItem, Line: cookieLine(2)})
	if len(effects) != 1 || effects[0].Kind != FxReplyButtons {
		t.Fatalf("expected button reply after add, got %+v", effects)
	}
	if len(sess.Cart) != 1 || sess.Cart[0].Quantity != 2 {
		t.Fatalf("expected cart with 2 cookies, got %+v", sess.Cart)
	}
	if !strings.Contains(effects[0].Text, "$7.70") {
		t.Fatalf("expected cart total $7.70 in reply, got %q", effects[0].Text)
	}

	Transition(sess, Event{Kind: EvCheckout})
	if sess.State != domain.ConvStateAwaitingName {
		t.Fatalf("expected AWAITING_NAME, got %s", sess.State)
	}

	Transition(sess, Event{Kind: EvText, Text: "Alice"})
	if sess.CustomerName != "Alice" || sess.State != domain.ConvStateAwaitingAddress {
		t.Fatalf("expected name captured, got name=%q state=%s", sess.CustomerName, sess.State)
	}

	Transition(sess, Event{Kind: EvText, Text: "12 Main St"})
	if sess.DeliveryAddress != "12 Main St" || sess.State != domain.ConvStateAwaitingInstructions {
		t.Fatalf("expected address captured, got addr=%q state=%s", sess.DeliveryAddress, sess.State)
	}

	effects = Transition(sess, Event{Kind: EvText, Text: "none"})
	if sess.DeliveryInstructions != "" {
		t.Fatalf("expected 'none' to clear instructions, got %q", sess.DeliveryInstructions)
	}
	if sess.State != domain.ConvStateAwaitingConfirmation {
		t.Fatalf("expected AWAITING_CONFIRMATION, got %s", sess.State)
	}
	if len(effects) != 1 || effects[0].Kind != FxReplyButtons {
		t.Fatalf("expected confirmation buttons, got %+v", effects)
	}
	if !strings.Contains(effects[0].Text, "Alice") || !strings.Contains(effects[0].Text, "12 Main St") {
		t.Fatalf("expected confirmation to echo name and address, got %q", effects[0].Text)
	}

	effects = Transition(sess, Event{Kind: EvConfirm})
	if len(effects) != 1 || effects[0].Kind != FxPlaceOrder {
		t.Fatalf("expected FxPlaceOrder on confirm, got %+v", effects)
	}
}

func TestTransitionYesTextConfirms(t *testing.T) {
	sess := newSession(domain.ConvStateAwaitingConfirmation)
	sess.Cart = []domain.CartLine{cookieLine(1)}

	effects := Transition(sess, Event{Kind: EvText, Text: "  YES  "})
	if len(effects) != 1 || effects[0].Kind != FxPlaceOrder {
		t.Fatalf("expected yes text to place order, got %+v", effects)
	}
}

func TestTransitionNoKeepsCart(t *testing.T) {
	sess := newSession(domain.ConvStateAwaitingConfirmation)
	sess.Cart = []domain.CartLine{cookieLine(1)}

	Transition(sess, Event{Kind: EvText, Text: "no"})
	if sess.State != domain.ConvStateAwaitingOrder {
		t.Fatalf("expected back to AWAITING_ORDER, got %s", sess.State)
	}
	if len(sess.Cart) != 1 {
		t.Fatalf("expected cart kept, got %+v", sess.Cart)
	}
}

func TestTransitionCancelResetsFromAnyState(t *testing.T) {
	for _, state := range []string{
		domain.ConvStateAwaitingOrder,
		domain.ConvStateAwaitingName,
		domain.ConvStateAwaitingAddress,
		domain.ConvStateAwaitingInstructions,
		domain.ConvStateAwaitingConfirmation,
	} {
		sess := newSession(state)
		sess.Cart = []domain.CartLine{cookieLine(3)}
		sess.CustomerName = "Alice"

		Transition(sess, Event{Kind: EvCancel})
		if sess.State != domain.ConvStateAwaitingOrder {
			t.Fatalf("cancel from %s: expected AWAITING_ORDER, got %s", state, sess.State)
		}
		if len(sess.Cart) != 0 || sess.CustomerName != "" {
			t.Fatalf("cancel from %s: expected cleared session, got cart=%v name=%q", state, sess.Cart, sess.CustomerName)
		}
	}
}

func TestTransitionCheckoutWithEmptyCart(t *testing.T) {
	sess := newSession(domain.ConvStateAwaitingOrder)

	effects := Transition(sess, Event{Kind: EvCheckout})
	if sess.State != domain.ConvStateAwaitingOrder {
		t.Fatalf("expected to stay in AWAITING_ORDER, got %s", sess.State)
	}
	if len(effects) != 1 || effects[0].Kind != FxReplyText {
		t.Fatalf("expected empty-cart prompt, got %+v", effects)
	}
}

func TestTransitionMergesRepeatedProduct(t *testing.T) {
	sess := newSession(domain.ConvStateAwaitingOrder)

	Transition(sess, Event{Kind: EvAddItem, Line: cookieLine(2)})
	Transition(sess, Event{Kind: EvAddItem, Line: cookieLine(1)})
	if len(sess.Cart) != 1 {
		t.Fatalf("expected one merged line, got %d", len(sess.Cart))
	}
	if sess.Cart[0].Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", sess.Cart[0].Quantity)
	}
}

func TestTransitionOrderPlacedClearsSession(t *testing.T) {
	sess := newSession(domain.ConvStateOrderPlaced)
	sess.OrderNumber = "WP-20260901-ABC123"

	effects := Transition(sess, Event{Kind: EvText, Text: "hi again"})
	if len(effects) != 2 {
		t.Fatalf("expected reply plus clear, got %+v", effects)
	}
	if effects[1].Kind != FxClearSession {
		t.Fatalf("expected FxClearSession, got %s", effects[1].Kind)
	}
	if !strings.Contains(effects[0].Text, sess.OrderNumber) {
		t.Fatalf("expected order number in reply, got %q", effects[0].Text)
	}
}

func TestRemoveFromCart(t *testing.T) {
	sess := newSession(domain.ConvStateAwaitingOrder)
	sess.Cart = []domain.CartLine{
		cookieLine(1),
		{ProductID: "prod-2", Name: "Muffin", PriceCents: 495, Quantity: 2},
	}

	RemoveFromCart(sess, "prod-1")
	if len(sess.Cart) != 1 || sess.Cart[0].ProductID != "prod-2" {
		t.Fatalf("expected only prod-2 left, got %+v", sess.Cart)
	}
}

func TestFormatCents(t *testing.T) {
	cases := map[int64]string{
		0:     "$0.00",
		5:     "$0.05",
		385:   "$3.85",
		12300: "$123.00",
		-385:  "-$3.85",
	}
	for cents, want := range cases {
		if got := formatCents(cents); got != want {
			t.Fatalf("formatCents(%d) = %q, want %q", cents, got, want)
		}
	}
}
