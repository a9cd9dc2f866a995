package service

import (
	"context"
	"errors"
	"testing"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/store"
	"warungpos/internal/store/memory"
)

func TestCreateOrderComputesGstTotals(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-TOTALS", 350, false, 0)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type: domain.OrderTypeTakeAway,
		Items: []domain.OrderItemRequest{
			{ProductID: product.ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	if order.SubtotalCents != 700 {
		t.Fatalf("expected subtotal 700, got %d", order.SubtotalCents)
	}
	if order.TaxCents != 70 {
		t.Fatalf("expected tax 70, got %d", order.TaxCents)
	}
	if order.TotalCents != 770 {
		t.Fatalf("expected total 770, got %d", order.TotalCents)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", order.Status)
	}
	if order.Items[0].UnitGstCents != 35 || order.Items[0].UnitPriceIncGstCents != 385 {
		t.Fatalf("expected unit triple (350, 35, 385), got (%d, %d, %d)",
			order.Items[0].UnitPriceExGstCents, order.Items[0].UnitGstCents, order.Items[0].UnitPriceIncGstCents)
	}
}

func TestCreateOrderItemDiscountClampsAtSubtotal(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, "SKU-DISC", 350, false, 0)

	order, err := svc.CreateOrder(cashierCtx(), domain.OrderCreateRequest{
		Type: domain.OrderTypeTakeAway,
		Items: []domain.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1, DiscountCents: 10000},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.Items[0].DiscountCents != 350 {
		t.Fatalf("expected discount clamped to 350, got %d", order.Items[0].DiscountCents)
	}
	if order.Items[0].TotalCents != 0 {
		t.Fatalf("expected item total 0 after full discount, got %d", order.Items[0].TotalCents)
	}
}

func TestCreateOrderOversizedDiscountClampsTotalToZero(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, "SKU-CLAMP", 350, false, 0)

	order, err := svc.CreateOrder(cashierCtx(), domain.OrderCreateRequest{
		Type:          domain.OrderTypeTakeAway,
		DiscountCents: 99999,
		Items: []domain.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.TotalCents != 0 {
		t.Fatalf("expected total clamped to 0, got %d", order.TotalCents)
	}
}

func TestCreateDeliveryOrderRequiresAddress(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, "SKU-DELIV", 350, false, 0)

	_, err := svc.CreateOrder(cashierCtx(), domain.OrderCreateRequest{
		Type: domain.OrderTypeDelivery,
		Items: []domain.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1},
		},
	})
	if err == nil {
		t.Fatalf("expected delivery order without address to be rejected")
	}
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, "SKU-INACTIVE", 350, false, 0)
	if _, err := svc.DeactivateProduct(adminCtx(), product.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, err := svc.CreateOrder(cashierCtx(), domain.OrderCreateRequest{
		Type: domain.OrderTypeTakeAway,
		Items: []domain.OrderItemRequest{
			{ProductID: product.ID, Quantity: 1},
		},
	})
	if !apperr.IsCode(err, apperr.CodeInvalidStatus) {
		t.Fatalf("expected INVALID_STATUS, got %v", err)
	}
}

func TestCompleteOrderDecrementsStockExactlyOnce(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-STOCK", 350, true, 10)
	order := createTestOrder(t, svc, ctx, product.ID, 2)

	if _, err := svc.RecordPayment(ctx, order.ID, domain.PaymentRequest{
		AmountCents: order.TotalCents,
		Method:      domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("record payment failed: %v", err)
	}

	completed, err := svc.CompleteOrder(ctx, order.ID, domain.CompleteOrderRequest{})
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if !completed.StockDecremented {
		t.Fatalf("expected stock decremented flag set")
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if after.StockQuantity != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", after.StockQuantity)
	}

	// Completing again is a no-op: same order back, no second decrement.
	again, err := svc.CompleteOrder(ctx, order.ID, domain.CompleteOrderRequest{PaidCents: completed.PaidCents})
	if err != nil {
		t.Fatalf("second complete failed: %v", err)
	}
	if again.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected completed on second call, got %s", again.Status)
	}
	after, _ = svc.GetProduct(ctx, product.ID)
	if after.StockQuantity != 8 {
		t.Fatalf("expected stock still 8 after redundant complete, got %d", after.StockQuantity)
	}

	history, err := svc.InventoryHistory(ctx, product.ID, 50)
	if err != nil {
		t.Fatalf("inventory history failed: %v", err)
	}
	sales := 0
	for _, tx := range history {
		if tx.Type == domain.InventoryTxSale {
			sales++
			if tx.Quantity != -2 {
				t.Fatalf("expected sale quantity -2, got %d", tx.Quantity)
			}
			if tx.StockBefore != 10 || tx.StockAfter != 8 {
				t.Fatalf("expected ledger 10 -> 8, got %d -> %d", tx.StockBefore, tx.StockAfter)
			}
		}
	}
	if sales != 1 {
		t.Fatalf("expected exactly one sale ledger row, got %d", sales)
	}
}

func TestCompleteOrderRejectsUnderpayment(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-UNDER", 350, false, 0)
	order := createTestOrder(t, svc, ctx, product.ID, 2)

	_, err := svc.CompleteOrder(ctx, order.ID, domain.CompleteOrderRequest{PaidCents: order.TotalCents - 1})
	if !apperr.IsCode(err, apperr.CodeInvalidPaymentAmount) {
		t.Fatalf("expected INVALID_PAYMENT_AMOUNT, got %v", err)
	}
}

func TestCompleteOrderInsufficientStockLeavesOrderPending(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-LOW", 350, true, 1)
	order := createTestOrder(t, svc, ctx, product.ID, 2)

	_, err := svc.CompleteOrder(ctx, order.ID, domain.CompleteOrderRequest{PaidCents: order.TotalCents})
	if !apperr.IsCode(err, apperr.CodeInsufficientStock) {
		t.Fatalf("expected INSUFFICIENT_STOCK, got %v", err)
	}

	reloaded, err := svc.GetOrder(ctx, order.ID, false)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if reloaded.Status != domain.OrderStatusPending {
		t.Fatalf("expected order to stay pending, got %s", reloaded.Status)
	}
	after, _ := svc.GetProduct(ctx, product.ID)
	if after.StockQuantity != 1 {
		t.Fatalf("expected stock untouched at 1, got %d", after.StockQuantity)
	}
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-PAY0", 350, false, 0)
	order := createTestOrder(t, svc, ctx, product.ID, 1)

	for _, amount := range []int64{0, -100} {
		_, err := svc.RecordPayment(ctx, order.ID, domain.PaymentRequest{
			AmountCents: amount,
			Method:      domain.PaymentMethodCash,
		})
		if !apperr.IsCode(err, apperr.CodeInvalidPaymentAmount) {
			t.Fatalf("expected INVALID_PAYMENT_AMOUNT for amount %d, got %v", amount, err)
		}
	}
}

func TestSplitTenderRecomputesPaidFromCompletedPayments(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-SPLIT", 700, false, 0)
	order := createTestOrder(t, svc, ctx, product.ID, 1) // total 770

	updated, err := svc.RecordPayment(ctx, order.ID, domain.PaymentRequest{
		AmountCents: 500,
		Method:      domain.PaymentMethodCash,
	})
	if err != nil {
		t.Fatalf("cash payment failed: %v", err)
	}
	if updated.PaidCents != 500 {
		t.Fatalf("expected paid 500, got %d", updated.PaidCents)
	}

	updated, err = svc.RecordPayment(ctx, order.ID, domain.PaymentRequest{
		AmountCents: 300,
		Method:      domain.PaymentMethodCreditCard,
		CardLast4:   "4242",
	})
	if err != nil {
		t.Fatalf("card payment failed: %v", err)
	}
	if updated.PaidCents != 800 {
		t.Fatalf("expected paid 800, got %d", updated.PaidCents)
	}
	if updated.ChangeCents != 30 {
		t.Fatalf("expected change 30, got %d", updated.ChangeCents)
	}

	// A failed payment drops back out of the paid amount.
	var cardPaymentID string
	for _, p := range updated.Payments {
		if p.Method == domain.PaymentMethodCreditCard {
			cardPaymentID = p.ID
		}
	}
	if cardPaymentID == "" {
		t.Fatalf("card payment not found on order")
	}
	updated, err = svc.SetPaymentStatus(ctx, cardPaymentID, domain.PaymentStatusFailed)
	if err != nil {
		t.Fatalf("set payment status failed: %v", err)
	}
	if updated.PaidCents != 500 {
		t.Fatalf("expected paid back to 500 after card failure, got %d", updated.PaidCents)
	}
}

func TestVoidItemRecomputesTotals(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	cookie := createTestProduct(t, svc, "SKU-VOID-A", 350, false, 0)
	muffin := createTestProduct(t, svc, "SKU-VOID-B", 450, false, 0)

	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type: domain.OrderTypeTakeAway,
		Items: []domain.OrderItemRequest{
			{ProductID: cookie.ID, Quantity: 1},
			{ProductID: muffin.ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	var muffinItemID string
	for _, item := range order.Items {
		if item.ProductID == muffin.ID {
			muffinItemID = item.ID
		}
	}

	voided, err := svc.VoidItem(ctx, order.ID, muffinItemID, "customer changed mind")
	if err != nil {
		t.Fatalf("void item failed: %v", err)
	}
	if voided.SubtotalCents != 350 || voided.TaxCents != 35 || voided.TotalCents != 385 {
		t.Fatalf("expected totals (350, 35, 385) after void, got (%d, %d, %d)",
			voided.SubtotalCents, voided.TaxCents, voided.TotalCents)
	}

	// Voiding the same line twice is rejected.
	_, err = svc.VoidItem(ctx, order.ID, muffinItemID, "again")
	if !apperr.IsCode(err, apperr.CodeInvalidStatus) {
		t.Fatalf("expected INVALID_STATUS on double void, got %v", err)
	}
}

func TestCancelCompletedOrderRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-CXL", 350, false, 0)
	order := createTestOrder(t, svc, ctx, product.ID, 1)

	if _, err := svc.CompleteOrder(ctx, order.ID, domain.CompleteOrderRequest{PaidCents: order.TotalCents}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	_, err := svc.CancelOrder(ctx, order.ID, "too late")
	if !apperr.IsCode(err, apperr.CodeAlreadyCompleted) {
		t.Fatalf("expected ORDER_ALREADY_COMPLETED, got %v", err)
	}
}

func TestCancelPendingOrderLeavesStockUntouched(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-CXLSTOCK", 350, true, 5)
	order := createTestOrder(t, svc, ctx, product.ID, 2)

	cancelled, err := svc.CancelOrder(ctx, order.ID, "walked out")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	after, _ := svc.GetProduct(ctx, product.ID)
	if after.StockQuantity != 5 {
		t.Fatalf("expected stock back at 5, got %d", after.StockQuantity)
	}
}

func TestRefundRestoresStockAndMarksPayments(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	product := createTestProduct(t, svc, "SKU-REFUND", 350, true, 10)
	order := createTestOrder(t, svc, cashier, product.ID, 3)

	if _, err := svc.RecordPayment(cashier, order.ID, domain.PaymentRequest{
		AmountCents: order.TotalCents,
		Method:      domain.PaymentMethodCash,
	}); err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	if _, err := svc.CompleteOrder(cashier, order.ID, domain.CompleteOrderRequest{}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	// Cashiers cannot refund.
	if _, err := svc.RefundOrder(cashier, order.ID, "faulty goods"); err == nil {
		t.Fatalf("expected refund to require admin role")
	}

	refunded, err := svc.RefundOrder(adminCtx(), order.ID, "faulty goods")
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if refunded.Status != domain.OrderStatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	for _, p := range refunded.Payments {
		if p.Status != domain.PaymentStatusRefunded {
			t.Fatalf("expected payment %s refunded, got %s", p.ID, p.Status)
		}
	}
	after, _ := svc.GetProduct(cashier, product.ID)
	if after.StockQuantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", after.StockQuantity)
	}
}

func TestHoldAndResumeOrder(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-HOLD", 350, false, 0)
	order := createTestOrder(t, svc, ctx, product.ID, 1)

	held, err := svc.HoldOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if held.Status != domain.OrderStatusOnHold {
		t.Fatalf("expected on_hold, got %s", held.Status)
	}

	// A held order takes no new items until resumed.
	_, err = svc.AddItem(ctx, order.ID, domain.OrderItemRequest{ProductID: product.ID, Quantity: 1})
	if !apperr.IsCode(err, apperr.CodeInvalidStatus) {
		t.Fatalf("expected INVALID_STATUS adding to held order, got %v", err)
	}

	resumed, err := svc.ResumeOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing after resume, got %s", resumed.Status)
	}
}

func TestDeleteOrderIsSoftAndAdminOnly(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	admin := adminCtx()
	product := createTestProduct(t, svc, "SKU-DEL", 350, false, 0)
	order := createTestOrder(t, svc, cashier, product.ID, 1)

	if err := svc.DeleteOrder(cashier, order.ID); err == nil {
		t.Fatalf("expected delete to require admin role")
	}
	if err := svc.DeleteOrder(admin, order.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := svc.GetOrder(cashier, order.ID, false); err == nil {
		t.Fatalf("expected deleted order hidden from normal reads")
	}
	// include_deleted is honored for admins only.
	if _, err := svc.GetOrder(cashier, order.ID, true); err == nil {
		t.Fatalf("expected include_deleted ignored for cashier")
	}
	deleted, err := svc.GetOrder(admin, order.ID, true)
	if err != nil {
		t.Fatalf("admin read of deleted order failed: %v", err)
	}
	if !deleted.Deleted {
		t.Fatalf("expected deleted flag set")
	}
}

func TestVoidItemAfterCompletionRestoresStock(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-POSTVOID", 350, true, 10)
	order := createTestOrder(t, svc, ctx, product.ID, 2)

	payAndComplete(t, svc, ctx, order.ID, domain.PaymentMethodCash, order.TotalCents)
	after, _ := svc.GetProduct(ctx, product.ID)
	if after.StockQuantity != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", after.StockQuantity)
	}

	voided, err := svc.VoidItem(ctx, order.ID, order.Items[0].ID, "wrong item rung up")
	if err != nil {
		t.Fatalf("void on completed order failed: %v", err)
	}
	if voided.SubtotalCents != 0 || voided.TotalCents != 0 {
		t.Fatalf("expected zeroed totals after voiding the only line, got subtotal=%d total=%d",
			voided.SubtotalCents, voided.TotalCents)
	}
	if voided.ChangeCents != voided.PaidCents {
		t.Fatalf("expected change %d to match paid after total dropped to zero, got %d",
			voided.PaidCents, voided.ChangeCents)
	}

	after, _ = svc.GetProduct(ctx, product.ID)
	if after.StockQuantity != 10 {
		t.Fatalf("expected stock restored to 10, got %d", after.StockQuantity)
	}

	history, err := svc.InventoryHistory(ctx, product.ID, 50)
	if err != nil {
		t.Fatalf("inventory history failed: %v", err)
	}
	returns := 0
	for _, tx := range history {
		if tx.Type == domain.InventoryTxReturn {
			returns++
			if tx.Quantity != 2 {
				t.Fatalf("expected return quantity 2, got %d", tx.Quantity)
			}
			if tx.StockBefore != 8 || tx.StockAfter != 10 {
				t.Fatalf("expected ledger 8 -> 10, got %d -> %d", tx.StockBefore, tx.StockAfter)
			}
		}
	}
	if returns != 1 {
		t.Fatalf("expected exactly one return ledger row, got %d", returns)
	}
}

type flakyProductRepo struct {
	store.Repository
	failProducts bool
}

func (f *flakyProductRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if f.failProducts {
		return nil, apperr.System(errors.New("connection reset"), "get product %s", id)
	}
	return f.Repository.GetProduct(ctx, id)
}

func TestVoidItemAbortsWhenCompensationLookupFails(t *testing.T) {
	repo := &flakyProductRepo{Repository: memory.NewSeeded()}
	svc := New(repo, "main-store", 0.10)
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-FLAKY", 350, true, 10)
	order := createTestOrder(t, svc, ctx, product.ID, 2)
	payAndComplete(t, svc, ctx, order.ID, domain.PaymentMethodCash, order.TotalCents)

	repo.failProducts = true
	_, err := svc.VoidItem(ctx, order.ID, order.Items[0].ID, "register error")
	if apperr.KindOf(err) != apperr.KindSystem {
		t.Fatalf("expected system error, got %v", err)
	}

	repo.failProducts = false
	reloaded, err := svc.GetOrder(ctx, order.ID, false)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if reloaded.Items[0].Voided {
		t.Fatalf("expected void to be aborted, item is voided")
	}
	after, _ := svc.GetProduct(ctx, product.ID)
	if after.StockQuantity != 8 {
		t.Fatalf("expected stock untouched at 8, got %d", after.StockQuantity)
	}
}
