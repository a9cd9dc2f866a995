package service

import (
	"context"
	"fmt"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/xid"
)

// OpenShift starts a cash session for the acting cashier. One open shift per
// user across all stores; the store enforces it under its transaction.
func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.Shift, error) {
	if req.StartingCashCents < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "starting cash must not be negative")
	}

	storeID := req.StoreID
	if storeID == "" {
		storeID = s.storeID
	}
	actor := ActorFromContext(ctx)
	now := s.now()

	shift := domain.Shift{
		ID:                xid.New("shift"),
		UserID:            actor.Username,
		StoreID:           storeID,
		Status:            domain.ShiftStatusOpen,
		StartingCashCents: req.StartingCashCents,
		OpenedAt:          now,
	}
	s.stampNew(ctx, &shift.AuditStamp)

	opened, err := s.repo.OpenShift(ctx, shift)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.open", "shift", opened.ID, fmt.Sprintf("starting_cash=%d", req.StartingCashCents))
	return opened, nil
}

// CurrentShift returns the acting user's open shift.
func (s *Service) CurrentShift(ctx context.Context) (*domain.Shift, error) {
	actor := ActorFromContext(ctx)
	return s.repo.GetOpenShiftByUser(ctx, actor.Username)
}

func (s *Service) GetShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	return s.repo.GetShift(ctx, shiftID)
}

func (s *Service) ShiftOrders(ctx context.Context, shiftID string) ([]domain.Order, error) {
	return s.repo.ListOrdersByShift(ctx, shiftID)
}

// CloseShift counts the drawer. Sales totals are grouped from completed
// payments on the shift's completed orders: cash, card (credit and debit),
// and everything else. expectedCash = startingCash + cashSales;
// cashDifference = endingCash - expectedCash.
func (s *Service) CloseShift(ctx context.Context, shiftID string, req domain.ShiftCloseRequest) (*domain.Shift, error) {
	if req.EndingCashCents < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "ending cash must not be negative")
	}

	shift, err := s.repo.GetShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}
	if shift.Status != domain.ShiftStatusOpen {
		return nil, apperr.BusinessRule(apperr.CodeNoActiveShift, "shift %s is not open", shiftID)
	}

	orders, err := s.repo.ListOrdersByShift(ctx, shiftID)
	if err != nil {
		return nil, err
	}

	var cashSales, cardSales, otherSales, totalSales int64
	totalOrders := 0
	for _, order := range orders {
		if order.Status != domain.OrderStatusCompleted {
			continue
		}
		totalOrders++
		totalSales += order.TotalCents
		for _, payment := range order.Payments {
			if payment.Status != domain.PaymentStatusCompleted {
				continue
			}
			switch payment.Method {
			case domain.PaymentMethodCash:
				cashSales += payment.AmountCents
			case domain.PaymentMethodCreditCard, domain.PaymentMethodDebitCard:
				cardSales += payment.AmountCents
			default:
				otherSales += payment.AmountCents
			}
		}
	}

	now := s.now()
	closedAt := now
	shift.Status = domain.ShiftStatusClosed
	shift.EndingCashCents = req.EndingCashCents
	shift.CashSalesCents = cashSales
	shift.CardSalesCents = cardSales
	shift.OtherSalesCents = otherSales
	shift.TotalSalesCents = totalSales
	shift.TotalOrders = totalOrders
	shift.ExpectedCashCents = shift.StartingCashCents + cashSales
	shift.CashDifferenceCents = req.EndingCashCents - shift.ExpectedCashCents
	shift.Notes = req.Notes
	shift.ClosedAt = &closedAt
	s.stampUpdate(ctx, &shift.AuditStamp)

	closed, err := s.repo.CloseShift(ctx, shift)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.close", "shift", shiftID, fmt.Sprintf("difference=%d", closed.CashDifferenceCents))
	return closed, nil
}

// ReconcileShift signs off a closed shift's count. Admin only.
func (s *Service) ReconcileShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	actor := ActorFromContext(ctx)
	if actor.Role != "admin" {
		return nil, apperr.Authentication("reconciling shifts requires the admin role")
	}
	reconciled, err := s.repo.ReconcileShift(ctx, shiftID, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.reconcile", "shift", shiftID, "")
	return reconciled, nil
}

func (s *Service) SuspendShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	actor := ActorFromContext(ctx)
	suspended, err := s.repo.SuspendShift(ctx, shiftID, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.suspend", "shift", shiftID, "")
	return suspended, nil
}

func (s *Service) ResumeShift(ctx context.Context, shiftID string) (*domain.Shift, error) {
	actor := ActorFromContext(ctx)
	resumed, err := s.repo.ResumeShift(ctx, shiftID, actor.Username, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift.resume", "shift", shiftID, "")
	return resumed, nil
}
