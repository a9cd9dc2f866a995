// Package conversation implements the WhatsApp ordering flow. The state
// machine itself is data: Transition is a pure function over (session, event)
// returning effects, with no I/O. The engine translates webhook payloads into
// events and effects into outbound sends.
package conversation

import (
	"fmt"
	"strings"

	"warungpos/internal/domain"
)

// Event kinds. Free text is resolved to a typed event by the engine before
// Transition sees it (product lookup needs catalog I/O).
const (
	EvGreeting     = "greeting"
	EvAddItem      = "add_item"
	EvItemNotFound = "item_not_found"
	EvShowMenu     = "show_menu"
	EvCheckout     = "checkout"
	EvConfirm      = "confirm"
	EvCancel       = "cancel"
	EvText         = "text"
	EvUnsupported  = "unsupported"
)

type Event struct {
	Kind string
	// Line is set for EvAddItem.
	Line domain.CartLine
	// Text carries the free-text body for EvText, or the failed query for
	// EvItemNotFound.
	Text string
}

// Effect kinds returned by Transition.
const (
	FxReplyText    = "reply_text"
	FxReplyButtons = "reply_buttons"
	FxReplyMenu    = "reply_menu"
	FxPlaceOrder   = "place_order"
	FxClearSession = "clear_session"
)

type Choice struct {
	ID    string
	Title string
}

type Effect struct {
	Kind    string
	Text    string
	Choices []Choice
}

func replyText(format string, args ...any) Effect {
	return Effect{Kind: FxReplyText, Text: fmt.Sprintf(format, args...)}
}

// Fixed action ids for button and list replies.
const (
	ActionCheckout = "checkout"
	ActionConfirm  = "confirm"
	ActionCancel   = "cancel"
	ActionMenu     = "menu"
)

// Transition advances the session for one event and returns the outbound
// effects. It mutates the session in place (cart, fields, state) but performs
// no I/O; order placement is requested via FxPlaceOrder and executed by the
// caller.
func Transition(sess *domain.CustomerSession, ev Event) []Effect {
	// Cancel resets to an empty cart from any non-terminal state.
	if ev.Kind == EvCancel && sess.State != domain.ConvStateOrderPlaced {
		sess.Cart = nil
		sess.CustomerName = ""
		sess.DeliveryAddress = ""
		sess.DeliveryInstructions = ""
		sess.State = domain.ConvStateAwaitingOrder
		return []Effect{replyText("Order cancelled. Your cart is empty. Send an item like \"2 chocolate cookies\", or type *menu* to see what's available.")}
	}

	switch sess.State {
	case domain.ConvStateInitial:
		sess.State = domain.ConvStateAwaitingOrder
		return []Effect{replyText("Welcome to WarungPOS! 👋 Send an item like \"2 chocolate cookies\" to start an order, or type *menu* to browse.")}

	case domain.ConvStateAwaitingOrder:
		return transitionAwaitingOrder(sess, ev)

	case domain.ConvStateAwaitingName:
		if ev.Kind != EvText || strings.TrimSpace(ev.Text) == "" {
			return []Effect{replyText("What name should we put on the order?")}
		}
		sess.CustomerName = strings.TrimSpace(ev.Text)
		sess.State = domain.ConvStateAwaitingAddress
		return []Effect{replyText("Thanks %s! What's the delivery address?", sess.CustomerName)}

	case domain.ConvStateAwaitingAddress:
		if ev.Kind != EvText || strings.TrimSpace(ev.Text) == "" {
			return []Effect{replyText("Please send the delivery address.")}
		}
		sess.DeliveryAddress = strings.TrimSpace(ev.Text)
		sess.State = domain.ConvStateAwaitingInstructions
		return []Effect{replyText("Any delivery instructions? Reply *none* if not.")}

	case domain.ConvStateAwaitingInstructions:
		if ev.Kind != EvText {
			return []Effect{replyText("Any delivery instructions? Reply *none* if not.")}
		}
		instructions := strings.TrimSpace(ev.Text)
		if isNone(instructions) {
			instructions = ""
		}
		sess.DeliveryInstructions = instructions
		sess.State = domain.ConvStateAwaitingConfirmation
		return []Effect{confirmationPrompt(sess)}

	case domain.ConvStateAwaitingConfirmation:
		switch ev.Kind {
		case EvConfirm:
			return []Effect{{Kind: FxPlaceOrder}}
		case EvText:
			if isYes(ev.Text) {
				return []Effect{{Kind: FxPlaceOrder}}
			}
			if isNo(ev.Text) {
				sess.State = domain.ConvStateAwaitingOrder
				return []Effect{replyText("No problem. Your cart is kept. Add more items, or send *checkout* when ready.")}
			}
		}
		return []Effect{confirmationPrompt(sess)}

	case domain.ConvStateOrderPlaced:
		return []Effect{
			replyText("Your order %s is already placed. Send a new message to start another order.", sess.OrderNumber),
			{Kind: FxClearSession},
		}
	}

	return []Effect{replyText("Sorry, something went wrong. Type *cancel* to start over.")}
}

func transitionAwaitingOrder(sess *domain.CustomerSession, ev Event) []Effect {
	switch ev.Kind {
	case EvGreeting:
		return []Effect{replyText("Hi! Send an item like \"2 chocolate cookies\", or type *menu* to browse.")}

	case EvShowMenu:
		return []Effect{{Kind: FxReplyMenu}}

	case EvAddItem:
		addToCart(sess, ev.Line)
		return []Effect{{
			Kind: FxReplyButtons,
			Text: fmt.Sprintf("Added %dx %s (%s). Cart total: %s.", ev.Line.Quantity, ev.Line.Name, formatCents(ev.Line.PriceCents), formatCents(sess.CartTotalCents())),
			Choices: []Choice{
				{ID: ActionCheckout, Title: "Checkout"},
				{ID: ActionMenu, Title: "Menu"},
				{ID: ActionCancel, Title: "Cancel"},
			},
		}}

	case EvItemNotFound:
		return []Effect{replyText("Sorry, I couldn't find \"%s\". Type *menu* to see what's available.", ev.Text)}

	case EvCheckout:
		if len(sess.Cart) == 0 {
			return []Effect{replyText("Your cart is empty. Add an item first, like \"2 chocolate cookies\".")}
		}
		sess.State = domain.ConvStateAwaitingName
		return []Effect{replyText("Great! What name should we put on the order?")}

	default:
		return []Effect{replyText("Send an item like \"2 chocolate cookies\", type *menu* to browse, or *checkout* when you're done.")}
	}
}

// addToCart merges repeated products into one line.
func addToCart(sess *domain.CustomerSession, line domain.CartLine) {
	for i := range sess.Cart {
		if sess.Cart[i].ProductID == line.ProductID {
			sess.Cart[i].Quantity += line.Quantity
			return
		}
	}
	sess.Cart = append(sess.Cart, line)
}

// RemoveFromCart drops the line for productID. Used when order placement
// fails on a specific item.
func RemoveFromCart(sess *domain.CustomerSession, productID string) {
	for i := range sess.Cart {
		if sess.Cart[i].ProductID == productID {
			sess.Cart = append(sess.Cart[:i], sess.Cart[i+1:]...)
			return
		}
	}
}

func confirmationPrompt(sess *domain.CustomerSession) Effect {
	var b strings.Builder
	b.WriteString("Please confirm your order:\n")
	for _, line := range sess.Cart {
		fmt.Fprintf(&b, "• %dx %s - %s\n", line.Quantity, line.Name, formatCents(line.PriceCents*int64(line.Quantity)))
	}
	fmt.Fprintf(&b, "Total: %s\n", formatCents(sess.CartTotalCents()))
	fmt.Fprintf(&b, "Deliver to: %s, %s", sess.CustomerName, sess.DeliveryAddress)
	if sess.DeliveryInstructions != "" {
		fmt.Fprintf(&b, " (%s)", sess.DeliveryInstructions)
	}
	return Effect{
		Kind: FxReplyButtons,
		Text: b.String(),
		Choices: []Choice{
			{ID: ActionConfirm, Title: "Confirm"},
			{ID: ActionCancel, Title: "Cancel"},
		},
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func isNone(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "no", "nope", "-", "n/a", "na":
		return true
	}
	return false
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "confirm", "ok", "yep", "sure":
		return true
	}
	return false
}

func isNo(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no", "n", "not yet", "wait":
		return true
	}
	return false
}
