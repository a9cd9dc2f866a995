package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/tax"
	"warungpos/internal/xid"
)

var orderTypes = map[string]bool{
	domain.OrderTypeDineIn:   true,
	domain.OrderTypeTakeAway: true,
	domain.OrderTypeDelivery: true,
	domain.OrderTypePickup:   true,
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (*domain.Order, error) {
	orderType := req.Type
	if orderType == "" {
		orderType = domain.OrderTypeDineIn
	}
	if !orderTypes[orderType] {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "unknown order type %q", orderType)
	}
	if req.DiscountCents < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "discount must not be negative")
	}
	if orderType == domain.OrderTypeDelivery && strings.TrimSpace(req.DeliveryAddress) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "delivery orders need an address")
	}

	storeID := req.StoreID
	if storeID == "" {
		storeID = s.storeID
	}
	actor := ActorFromContext(ctx)
	now := s.now()

	order := &domain.Order{
		ID:                   xid.New("order"),
		OrderNumber:          xid.OrderNumber(now),
		StoreID:              storeID,
		CashierID:            actor.Username,
		Type:                 orderType,
		Status:               domain.OrderStatusPending,
		CustomerName:         req.CustomerName,
		CustomerPhone:        req.CustomerPhone,
		TableNumber:          req.TableNumber,
		DeliveryAddress:      req.DeliveryAddress,
		DeliveryInstructions: req.DeliveryInstructions,
		Notes:                req.Notes,
		DiscountCents:        req.DiscountCents,
		Items:                make([]domain.OrderItem, 0, len(req.Items)),
	}

	// Orders created while the cashier has an open shift attach to it.
	// Shift-less orders (unattended WhatsApp orders, orders before any shift
	// opens) are valid and carry no shift id.
	if shift, err := s.repo.GetOpenShiftByUser(ctx, actor.Username); err == nil {
		order.ShiftID = shift.ID
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}

	for _, itemReq := range req.Items {
		item, err := s.buildItem(ctx, order.ID, itemReq)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *item)
	}
	s.recomputeTotals(order)
	s.stampNew(ctx, &order.AuditStamp)

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.create", "order", created.ID, created.OrderNumber)
	return created, nil
}

// buildItem snapshots the product's GST triple into the order line. The
// triple is carried verbatim from the catalog; nothing here re-derives tax.
func (s *Service) buildItem(ctx context.Context, orderID string, req domain.OrderItemRequest) (*domain.OrderItem, error) {
	if req.Quantity <= 0 {
		return nil, apperr.BusinessRule(apperr.CodeInvalidInput, "quantity must be positive")
	}
	if req.DiscountCents < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "item discount must not be negative")
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "product %s is not available", product.Name)
	}

	ex, gst, inc := tax.PriceFromExGst(product.PriceExGstCents, product.GstRate)
	subtotal := ex * int64(req.Quantity)
	discount := req.DiscountCents
	if discount > subtotal {
		discount = subtotal
	}

	return &domain.OrderItem{
		ID:                   xid.New("item"),
		OrderID:              orderID,
		ProductID:            product.ID,
		Name:                 product.Name,
		Quantity:             req.Quantity,
		UnitPriceExGstCents:  ex,
		UnitGstCents:         gst,
		UnitPriceIncGstCents: inc,
		DiscountCents:        discount,
		SubtotalCents:        subtotal,
		TaxCents:             gst * int64(req.Quantity),
		TotalCents:           subtotal - discount,
		Notes:                req.Notes,
	}, nil
}

// recomputeTotals sums non-voided lines and applies the order-level discount
// after that sum. A discount driving the total negative clamps to zero and is
// logged as a data-quality note.
func (s *Service) recomputeTotals(order *domain.Order) {
	var subtotal, taxTotal int64
	for _, item := range order.Items {
		if item.Voided {
			continue
		}
		subtotal += item.TotalCents
		taxTotal += item.TaxCents
	}
	order.SubtotalCents = subtotal
	order.TaxCents = taxTotal

	total := subtotal - order.DiscountCents + taxTotal
	if total < 0 {
		log.Printf("[service] WARN: order %s total clamped to zero (subtotal=%d discount=%d tax=%d)",
			order.ID, subtotal, order.DiscountCents, taxTotal)
		total = 0
	}
	order.TotalCents = total
	if change := order.PaidCents - total; change > 0 {
		order.ChangeCents = change
	} else {
		order.ChangeCents = 0
	}
}

func (s *Service) GetOrder(ctx context.Context, orderID string, includeDeleted bool) (*domain.Order, error) {
	actor := ActorFromContext(ctx)
	if includeDeleted && actor.Role != "admin" {
		includeDeleted = false
	}
	return s.repo.GetOrder(ctx, orderID, includeDeleted)
}

func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.repo.GetOrderByNumber(ctx, number)
}

func (s *Service) AddItem(ctx context.Context, orderID string, req domain.OrderItemRequest) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing:
	default:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot add items to a %s order", order.Status)
	}

	item, err := s.buildItem(ctx, order.ID, req)
	if err != nil {
		return nil, err
	}
	order.Items = append(order.Items, *item)
	s.recomputeTotals(order)
	s.stampUpdate(ctx, &order.AuditStamp)

	saved, err := s.repo.SaveOrderItems(ctx, order, nil)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.add_item", "order", orderID, fmt.Sprintf("%dx %s", req.Quantity, item.Name))
	return saved, nil
}

// VoidItem reverses a line's contribution to the totals. Voiding is legal on
// completed orders too (a post-sale correction); when stock was already
// decremented, a compensating return row goes into the same transaction as
// the item rewrite.
func (s *Service) VoidItem(ctx context.Context, orderID string, itemID string, reason string) (*domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusOnHold, domain.OrderStatusCompleted:
	default:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot void items on a %s order", order.Status)
	}

	actor := ActorFromContext(ctx)
	now := s.now()

	var target *domain.OrderItem
	for i := range order.Items {
		if order.Items[i].ID == itemID {
			target = &order.Items[i]
			break
		}
	}
	if target == nil {
		return nil, apperr.NotFound("item %s not found on order %s", itemID, orderID)
	}
	if target.Voided {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "item %s is already voided", itemID)
	}

	voidedAt := now
	target.Voided = true
	target.VoidedAt = &voidedAt
	target.VoidedBy = actor.Username
	target.VoidReason = reason
	s.recomputeTotals(order)
	s.stampUpdate(ctx, &order.AuditStamp)

	var compensations []domain.InventoryTransaction
	if order.StockDecremented {
		// A missing product legitimately skips the return row; anything else
		// must abort the void or the ledger loses the compensation.
		product, err := s.repo.GetProduct(ctx, target.ProductID)
		if err != nil && apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
		if product != nil && product.TrackInventory {
			compensations = append(compensations, domain.InventoryTransaction{
				ID:        xid.New("invtx"),
				ProductID: target.ProductID,
				StoreID:   order.StoreID,
				Type:      domain.InventoryTxReturn,
				Quantity:  target.Quantity,
				OrderID:   order.ID,
				Notes:     "item voided: " + reason,
				CreatedBy: actor.Username,
				CreatedAt: now,
			})
		}
	}

	saved, err := s.repo.SaveOrderItems(ctx, order, compensations)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.void_item", "order", orderID, fmt.Sprintf("item=%s reason=%s", itemID, reason))
	return saved, nil
}

var paymentMethods = map[string]bool{
	domain.PaymentMethodCash:       true,
	domain.PaymentMethodCreditCard: true,
	domain.PaymentMethodDebitCard:  true,
	domain.PaymentMethodMobile:     true,
	domain.PaymentMethodGiftCard:   true,
	domain.PaymentMethodLoyalty:    true,
	domain.PaymentMethodOther:      true,
}

// RecordPayment books one tender against the order. Split tender is allowed;
// the order's paid amount is recomputed from completed payments in the store.
func (s *Service) RecordPayment(ctx context.Context, orderID string, req domain.PaymentRequest) (*domain.Order, error) {
	if req.AmountCents <= 0 {
		return nil, apperr.BusinessRule(apperr.CodeInvalidPaymentAmount, "payment amount must be positive")
	}
	if !paymentMethods[req.Method] {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "unknown payment method %q", req.Method)
	}

	order, err := s.repo.GetOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing:
	default:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot record payment on a %s order", order.Status)
	}

	actor := ActorFromContext(ctx)
	payment := domain.Payment{
		ID:          xid.New("pay"),
		OrderID:     orderID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Status:      domain.PaymentStatusCompleted,
		Reference:   req.Reference,
		CardLast4:   req.CardLast4,
		CardType:    req.CardType,
		ProcessedBy: actor.Username,
		CreatedAt:   s.now(),
	}

	// A shift-less order (WhatsApp, or created before the shift opened) is
	// claimed by the shift of whoever takes its payment.
	shiftID := ""
	if order.ShiftID == "" {
		shift, shiftErr := s.repo.GetOpenShiftByUser(ctx, actor.Username)
		if shiftErr != nil && apperr.KindOf(shiftErr) != apperr.KindNotFound {
			return nil, shiftErr
		}
		if shift != nil {
			shiftID = shift.ID
		}
	}

	_, updated, err := s.repo.RecordPayment(ctx, payment, shiftID)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "payment.record", "order", orderID, fmt.Sprintf("%s %d", req.Method, req.AmountCents))
	return updated, nil
}

// SetPaymentStatus marks a payment failed or cancelled, excluding it from
// the order's paid amount.
func (s *Service) SetPaymentStatus(ctx context.Context, paymentID string, status string) (*domain.Order, error) {
	switch status {
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
	default:
		return nil, apperr.Validation(apperr.CodeInvalidInput, "payment status must be failed or cancelled")
	}
	updated, err := s.repo.SetPaymentStatus(ctx, paymentID, status)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "payment.status", "payment", paymentID, status)
	return updated, nil
}

// CompleteOrder finishes the sale. With a zero paid amount the order's
// recorded payments must already cover the total.
func (s *Service) CompleteOrder(ctx context.Context, orderID string, req domain.CompleteOrderRequest) (*domain.Order, error) {
	if req.PaidCents < 0 {
		return nil, apperr.BusinessRule(apperr.CodeInvalidPaymentAmount, "paid amount must not be negative")
	}

	order, err := s.repo.GetOrder(ctx, orderID, false)
	if err != nil {
		return nil, err
	}
	paid := req.PaidCents
	if paid == 0 {
		paid = order.PaidCents
	}
	if paid < order.TotalCents {
		return nil, apperr.BusinessRule(apperr.CodeInvalidPaymentAmount, "paid amount %d is below order total %d", paid, order.TotalCents)
	}

	actor := ActorFromContext(ctx)
	completed, err := s.repo.CompleteOrder(ctx, orderID, paid, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.complete", "order", orderID, completed.OrderNumber)
	return completed, nil
}

func (s *Service) CancelOrder(ctx context.Context, orderID string, reason string) (*domain.Order, error) {
	actor := ActorFromContext(ctx)
	cancelled, err := s.repo.CancelOrder(ctx, orderID, reason, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.cancel", "order", orderID, reason)
	return cancelled, nil
}

func (s *Service) RefundOrder(ctx context.Context, orderID string, reason string) (*domain.Order, error) {
	actor := ActorFromContext(ctx)
	if actor.Role != "admin" {
		return nil, apperr.Authentication("refunds require the admin role")
	}
	refunded, err := s.repo.RefundOrder(ctx, orderID, reason, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.refund", "order", orderID, reason)
	return refunded, nil
}

func (s *Service) HoldOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	actor := ActorFromContext(ctx)
	held, err := s.repo.HoldOrder(ctx, orderID, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.hold", "order", orderID, "")
	return held, nil
}

func (s *Service) ResumeOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	actor := ActorFromContext(ctx)
	resumed, err := s.repo.ResumeOrder(ctx, orderID, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "order.resume", "order", orderID, "")
	return resumed, nil
}

// DeleteOrder soft-deletes; the row stays for audit and admin reads.
func (s *Service) DeleteOrder(ctx context.Context, orderID string) error {
	actor := ActorFromContext(ctx)
	if actor.Role != "admin" {
		return apperr.Authentication("deleting orders requires the admin role")
	}
	if err := s.repo.SoftDeleteOrder(ctx, orderID, actor.Username, s.now()); err != nil {
		return err
	}
	s.logAudit(ctx, "order.delete", "order", orderID, "")
	return nil
}
