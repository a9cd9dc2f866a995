package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"warungpos/internal/domain"
	"warungpos/internal/session"
	"warungpos/internal/wa"
)

// Catalog is the product lookup surface the engine needs to resolve free
// text and build the menu list.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
}

// OrderPlacer creates a delivery order from a confirmed session.
type OrderPlacer interface {
	PlaceRemoteOrder(ctx context.Context, sess *domain.CustomerSession) (*domain.Order, error)
}

// ItemUnavailableError identifies which cart line made order placement fail,
// so the engine can drop it and let the customer continue.
type ItemUnavailableError struct {
	ProductID string
	Name      string
	Reason    string
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("item %s unavailable: %s", e.Name, e.Reason)
}

// Engine wires webhook messages through the state machine. Messages from the
// same phone are handled one at a time via a fixed set of striped locks, so
// memory stays bounded no matter how many phones are seen; a stripe collision
// just serializes two unrelated phones.
type Engine struct {
	sessions session.Store
	sender   wa.Sender
	catalog  Catalog
	orders   OrderPlacer

	locks [64]sync.Mutex
}

func NewEngine(sessions session.Store, sender wa.Sender, catalog Catalog, orders OrderPlacer) *Engine {
	return &Engine{
		sessions: sessions,
		sender:   sender,
		catalog:  catalog,
		orders:   orders,
	}
}

func (e *Engine) lockPhone(phone string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(phone))
	mu := &e.locks[int(h.Sum32())%len(e.locks)]
	mu.Lock()
	return mu
}

// HandleMessage processes one inbound webhook message end to end: load or
// create the session, resolve the message to an event, run the transition,
// execute the effects, persist the session.
func (e *Engine) HandleMessage(ctx context.Context, msg *wa.Message, profileName string) error {
	if msg.From == "" || msg.ID == "" {
		return nil
	}

	mu := e.lockPhone(msg.From)
	defer mu.Unlock()

	sess, err := e.sessions.Get(ctx, msg.From)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if sess == nil {
		// First real message skips INITIAL; it is interpreted immediately.
		sess = &domain.CustomerSession{
			Phone:        msg.From,
			State:        domain.ConvStateAwaitingOrder,
			CustomerName: profileName,
			CreatedAt:    now,
			LastActivity: now,
		}
	}

	// Webhook redelivery of a message already handled is a no-op.
	if sess.LastMessageID == msg.ID {
		return nil
	}

	ev, err := e.resolveEvent(ctx, sess, msg)
	if err != nil {
		return err
	}

	effects := Transition(sess, ev)
	clear := false
	for _, fx := range effects {
		switch fx.Kind {
		case FxReplyText:
			if err := e.sender.SendText(ctx, sess.Phone, fx.Text); err != nil {
				log.Printf("[conversation] WARN: send reply to %s: %v", sess.Phone, err)
			}
		case FxReplyButtons:
			buttons := make([]wa.Button, 0, len(fx.Choices))
			for _, c := range fx.Choices {
				buttons = append(buttons, wa.Button{ID: c.ID, Title: c.Title})
			}
			if err := e.sender.SendButtons(ctx, sess.Phone, fx.Text, buttons); err != nil {
				log.Printf("[conversation] WARN: send buttons to %s: %v", sess.Phone, err)
			}
		case FxReplyMenu:
			if err := e.sendMenu(ctx, sess.Phone); err != nil {
				log.Printf("[conversation] WARN: send menu to %s: %v", sess.Phone, err)
			}
		case FxPlaceOrder:
			e.placeOrder(ctx, sess)
		case FxClearSession:
			clear = true
		}
	}

	sess.LastMessageID = msg.ID
	sess.LastActivity = now

	if clear {
		return e.sessions.Clear(ctx, sess.Phone)
	}
	return e.sessions.Save(ctx, sess)
}

func (e *Engine) placeOrder(ctx context.Context, sess *domain.CustomerSession) {
	order, err := e.orders.PlaceRemoteOrder(ctx, sess)
	if err != nil {
		var unavailable *ItemUnavailableError
		if errors.As(err, &unavailable) {
			RemoveFromCart(sess, unavailable.ProductID)
			sess.State = domain.ConvStateAwaitingOrder
			body := fmt.Sprintf("Sorry, %s is no longer available and was removed from your cart. Add something else, or send *checkout* to order the rest.", unavailable.Name)
			if sendErr := e.sender.SendText(ctx, sess.Phone, body); sendErr != nil {
				log.Printf("[conversation] WARN: send reply to %s: %v", sess.Phone, sendErr)
			}
			return
		}
		log.Printf("[conversation] ERROR: place order for %s: %v", sess.Phone, err)
		if sendErr := e.sender.SendText(ctx, sess.Phone, "Sorry, we couldn't place your order just now. Please try again in a moment."); sendErr != nil {
			log.Printf("[conversation] WARN: send reply to %s: %v", sess.Phone, sendErr)
		}
		return
	}

	sess.OrderNumber = order.OrderNumber
	sess.State = domain.ConvStateOrderPlaced
	body := fmt.Sprintf("Order placed! 🎉 Your order number is %s, total %s. We'll be in touch about delivery.", order.OrderNumber, formatCents(order.TotalCents))
	if err := e.sender.SendText(ctx, sess.Phone, body); err != nil {
		log.Printf("[conversation] WARN: send reply to %s: %v", sess.Phone, err)
	}
}

func (e *Engine) sendMenu(ctx context.Context, phone string) error {
	products, err := e.catalog.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return e.sender.SendText(ctx, phone, "The menu is empty right now. Please check back later.")
	}

	// Group rows by category; the Cloud API caps a list at 10 rows total.
	sections := make([]wa.Section, 0, 4)
	var current *wa.Section
	rows := 0
	for _, p := range products {
		if rows >= 10 {
			break
		}
		if current == nil || current.Title != sectionTitle(p.Category) {
			sections = append(sections, wa.Section{Title: sectionTitle(p.Category)})
			current = &sections[len(sections)-1]
		}
		current.Rows = append(current.Rows, wa.Row{
			ID:          "add:" + p.ID,
			Title:       p.Name,
			Description: formatCents(p.PriceIncGstCents),
		})
		rows++
	}
	return e.sender.SendList(ctx, phone, "Our menu", "Pick an item to add it to your cart.", "View menu", sections)
}

func sectionTitle(category string) string {
	if category == "" {
		return "Menu"
	}
	return strings.ToUpper(category[:1]) + category[1:]
}

// Sweep removes idle sessions. Runs on a ticker from main.
func (e *Engine) Sweep(ctx context.Context) {
	removed, err := e.sessions.ClearExpired(ctx)
	if err != nil {
		log.Printf("[conversation] WARN: session sweep: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("[conversation] session sweep removed %d expired session(s)", removed)
	}
}

var qtyPattern = regexp.MustCompile(`^(\d+)\s*[xX]?\s+(.+)$`)

// resolveEvent turns a wire message into a typed event. Interactive replies
// take precedence over free text; free text is interpreted per state.
func (e *Engine) resolveEvent(ctx context.Context, sess *domain.CustomerSession, msg *wa.Message) (Event, error) {
	if msg.Interactive != nil {
		return e.resolveAction(ctx, msg.ReplyID())
	}
	if msg.Text == nil {
		return Event{Kind: EvUnsupported}, nil
	}

	body := strings.TrimSpace(msg.Text.Body)
	lower := strings.ToLower(body)

	switch lower {
	case "cancel", "restart", "reset", "start over":
		return Event{Kind: EvCancel}, nil
	}

	if sess.State != domain.ConvStateAwaitingOrder {
		return Event{Kind: EvText, Text: body}, nil
	}

	switch lower {
	case "hi", "hello", "hey", "start", "halo":
		return Event{Kind: EvGreeting}, nil
	case "menu":
		return Event{Kind: EvShowMenu}, nil
	case "checkout", "done", "order":
		return Event{Kind: EvCheckout}, nil
	}

	return e.resolveItemText(ctx, body)
}

func (e *Engine) resolveAction(ctx context.Context, actionID string) (Event, error) {
	switch actionID {
	case ActionCheckout:
		return Event{Kind: EvCheckout}, nil
	case ActionConfirm:
		return Event{Kind: EvConfirm}, nil
	case ActionCancel:
		return Event{Kind: EvCancel}, nil
	case ActionMenu:
		return Event{Kind: EvShowMenu}, nil
	}

	if productID, ok := strings.CutPrefix(actionID, "add:"); ok {
		product, err := e.catalog.GetProduct(ctx, productID)
		if err != nil || !product.Active {
			return Event{Kind: EvItemNotFound, Text: "that item"}, nil
		}
		return Event{Kind: EvAddItem, Line: cartLine(product, 1)}, nil
	}
	return Event{Kind: EvUnsupported}, nil
}

// resolveItemText parses "2 chocolate cookies" into quantity and query, then
// searches the catalog. A plural query falls back to its singular form.
func (e *Engine) resolveItemText(ctx context.Context, body string) (Event, error) {
	qty := 1
	query := body
	if m := qtyPattern.FindStringSubmatch(body); m != nil {
		if parsed, err := strconv.Atoi(m[1]); err == nil && parsed > 0 {
			qty = parsed
			query = m[2]
		}
	}
	if qty > 99 {
		return Event{Kind: EvItemNotFound, Text: body}, nil
	}

	matches, err := e.catalog.SearchProducts(ctx, query, 5)
	if err != nil {
		return Event{}, err
	}
	if len(matches) == 0 && strings.HasSuffix(strings.ToLower(query), "s") {
		matches, err = e.catalog.SearchProducts(ctx, query[:len(query)-1], 5)
		if err != nil {
			return Event{}, err
		}
	}
	if len(matches) == 0 {
		return Event{Kind: EvItemNotFound, Text: query}, nil
	}
	return Event{Kind: EvAddItem, Line: cartLine(&matches[0], qty)}, nil
}

func cartLine(p *domain.Product, qty int) domain.CartLine {
	return domain.CartLine{
		ProductID:  p.ID,
		Name:       p.Name,
		PriceCents: p.PriceIncGstCents,
		Quantity:   qty,
	}
}
