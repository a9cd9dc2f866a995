package service

import (
	"context"
	"testing"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
)

func payAndComplete(t *testing.T, svc *Service, ctx context.Context, orderID string, method string, amount int64) {
	t.Helper()
	if _, err := svc.RecordPayment(ctx, orderID, domain.PaymentRequest{AmountCents: amount, Method: method}); err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	if _, err := svc.CompleteOrder(ctx, orderID, domain.CompleteOrderRequest{}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
}

func TestOpenShiftTwiceRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	if _, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartingCashCents: 10000}); err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	_, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartingCashCents: 5000})
	if !apperr.IsCode(err, apperr.CodeShiftAlreadyOpen) {
		t.Fatalf("expected SHIFT_ALREADY_OPEN, got %v", err)
	}
}

func TestOrderWithoutShiftIsValid(t *testing.T) {
	svc := newTestService()
	product := createTestProduct(t, svc, "SKU-NOSHIFT", 350, false, 0)

	order := createTestOrder(t, svc, cashierCtx(), product.ID, 1)
	if order.ShiftID != "" {
		t.Fatalf("expected shift-less order, got shift %s", order.ShiftID)
	}
}

func TestCloseShiftGroupsSalesByTenderType(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-SHIFT", 1000, false, 0) // total 1100 per unit

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartingCashCents: 10000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	cashOrder := createTestOrder(t, svc, ctx, product.ID, 1)
	payAndComplete(t, svc, ctx, cashOrder.ID, domain.PaymentMethodCash, cashOrder.TotalCents)

	cardOrder := createTestOrder(t, svc, ctx, product.ID, 1)
	payAndComplete(t, svc, ctx, cardOrder.ID, domain.PaymentMethodDebitCard, cardOrder.TotalCents)

	mobileOrder := createTestOrder(t, svc, ctx, product.ID, 1)
	payAndComplete(t, svc, ctx, mobileOrder.ID, domain.PaymentMethodMobile, mobileOrder.TotalCents)

	// An abandoned order on the same shift must not count.
	createTestOrder(t, svc, ctx, product.ID, 5)

	closed, err := svc.CloseShift(ctx, shift.ID, domain.ShiftCloseRequest{EndingCashCents: 11600})
	if err != nil {
		t.Fatalf("close shift failed: %v", err)
	}

	if closed.CashSalesCents != 1100 {
		t.Fatalf("expected cash sales 1100, got %d", closed.CashSalesCents)
	}
	if closed.CardSalesCents != 1100 {
		t.Fatalf("expected card sales 1100, got %d", closed.CardSalesCents)
	}
	if closed.OtherSalesCents != 1100 {
		t.Fatalf("expected other sales 1100, got %d", closed.OtherSalesCents)
	}
	if closed.TotalOrders != 3 {
		t.Fatalf("expected 3 completed orders, got %d", closed.TotalOrders)
	}
	if closed.TotalSalesCents != 3300 {
		t.Fatalf("expected total sales 3300, got %d", closed.TotalSalesCents)
	}
	if closed.ExpectedCashCents != 11100 {
		t.Fatalf("expected drawer 11100, got %d", closed.ExpectedCashCents)
	}
	if closed.CashDifferenceCents != 500 {
		t.Fatalf("expected cash over by 500, got %d", closed.CashDifferenceCents)
	}
	if closed.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected closed, got %s", closed.Status)
	}
}

func TestPaymentAttachesShiftlessOrderToCashierShift(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()
	product := createTestProduct(t, svc, "SKU-LATE", 1000, false, 0)

	// Placed before any shift exists, e.g. a WhatsApp order overnight.
	order := createTestOrder(t, svc, ctx, product.ID, 1)
	if order.ShiftID != "" {
		t.Fatalf("expected shift-less order, got shift %s", order.ShiftID)
	}

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartingCashCents: 10000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	paid, err := svc.RecordPayment(ctx, order.ID, domain.PaymentRequest{AmountCents: order.TotalCents, Method: domain.PaymentMethodCash})
	if err != nil {
		t.Fatalf("record payment failed: %v", err)
	}
	if paid.ShiftID != shift.ID {
		t.Fatalf("expected order claimed by shift %s, got %q", shift.ID, paid.ShiftID)
	}
	if _, err := svc.CompleteOrder(ctx, order.ID, domain.CompleteOrderRequest{}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	closed, err := svc.CloseShift(ctx, shift.ID, domain.ShiftCloseRequest{EndingCashCents: 10000 + order.TotalCents})
	if err != nil {
		t.Fatalf("close shift failed: %v", err)
	}
	if closed.CashSalesCents != order.TotalCents || closed.TotalOrders != 1 {
		t.Fatalf("expected claimed order in close math, got cash=%d orders=%d", closed.CashSalesCents, closed.TotalOrders)
	}
}

func TestCloseShiftTwiceRejected(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartingCashCents: 5000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}
	if _, err := svc.CloseShift(ctx, shift.ID, domain.ShiftCloseRequest{EndingCashCents: 5000}); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	_, err = svc.CloseShift(ctx, shift.ID, domain.ShiftCloseRequest{EndingCashCents: 5000})
	if !apperr.IsCode(err, apperr.CodeNoActiveShift) {
		t.Fatalf("expected NO_ACTIVE_SHIFT, got %v", err)
	}
}

func TestReconcileShiftRequiresAdminAndClosedShift(t *testing.T) {
	svc := newTestService()
	cashier := cashierCtx()
	admin := adminCtx()

	shift, err := svc.OpenShift(cashier, domain.ShiftOpenRequest{StartingCashCents: 5000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	if _, err := svc.ReconcileShift(admin, shift.ID); err == nil {
		t.Fatalf("expected reconcile of open shift to be rejected")
	}

	if _, err := svc.CloseShift(cashier, shift.ID, domain.ShiftCloseRequest{EndingCashCents: 5000}); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := svc.ReconcileShift(cashier, shift.ID); err == nil {
		t.Fatalf("expected reconcile to require admin role")
	}
	reconciled, err := svc.ReconcileShift(admin, shift.ID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if reconciled.Status != domain.ShiftStatusReconciled {
		t.Fatalf("expected reconciled, got %s", reconciled.Status)
	}
	if reconciled.ReconciledAt == nil {
		t.Fatalf("expected reconciled_at to be set")
	}
}

func TestSuspendAndResumeShift(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	shift, err := svc.OpenShift(ctx, domain.ShiftOpenRequest{StartingCashCents: 5000})
	if err != nil {
		t.Fatalf("open shift failed: %v", err)
	}

	suspended, err := svc.SuspendShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	if suspended.Status != domain.ShiftStatusSuspended {
		t.Fatalf("expected suspended, got %s", suspended.Status)
	}

	// A suspended shift no longer counts as the user's open shift.
	if _, err := svc.CurrentShift(ctx); err == nil {
		t.Fatalf("expected no current shift while suspended")
	}

	resumed, err := svc.ResumeShift(ctx, shift.ID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if resumed.Status != domain.ShiftStatusOpen {
		t.Fatalf("expected open after resume, got %s", resumed.Status)
	}
}
