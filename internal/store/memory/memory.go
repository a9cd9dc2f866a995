// Package memory is the in-memory Repository used for tests and dev mode.
// A single mutex serializes mutations, which also gives the per-order and
// per-product ordering guarantees the postgres store gets from row locks.
package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/tax"
	"warungpos/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ordersByID      map[string]*domain.Order
	orderIDByNumber map[string]string
	paymentsByID    map[string]domain.Payment
	shiftsByID      map[string]domain.Shift
	openShiftByUser map[string]string
	inventoryLog    []domain.InventoryTransaction
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		ordersByID:      make(map[string]*domain.Order),
		orderIDByNumber: make(map[string]string),
		paymentsByID:    make(map[string]domain.Payment),
		shiftsByID:      make(map[string]domain.Shift),
		openShiftByUser: make(map[string]string),
		inventoryLog:    make([]domain.InventoryTransaction, 0, 128),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small catalog and dev users.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	seed := []struct {
		sku      string
		name     string
		category string
		exGst    int64
		cost     int64
		track    bool
		stock    int
	}{
		{"SKU-COOKIE-CHOC", "Chocolate Cookie", "bakery", 350, 120, true, 120},
		{"SKU-COOKIE-OAT", "Oatmeal Cookie", "bakery", 320, 110, true, 120},
		{"SKU-COFFEE-FLAT", "Flat White", "beverage", 420, 90, false, 0},
		{"SKU-COFFEE-LONG", "Long Black", "beverage", 380, 80, false, 0},
		{"SKU-SANDWICH-HAM", "Ham Sandwich", "food", 850, 320, true, 40},
		{"SKU-JUICE-ORANGE", "Orange Juice", "beverage", 480, 160, true, 60},
		{"SKU-MUFFIN-BLUE", "Blueberry Muffin", "bakery", 450, 150, true, 50},
		{"SKU-WATER-STILL", "Still Water 600ml", "beverage", 280, 70, true, 200},
	}
	for _, p := range seed {
		ex, gst, inc := tax.PriceFromExGst(p.exGst, 0.10)
		product := domain.Product{
			ID:               xid.New("prod"),
			StoreID:          "main-store",
			SKU:              p.sku,
			Name:             p.name,
			Category:         p.category,
			PriceExGstCents:  ex,
			GstCents:         gst,
			PriceIncGstCents: inc,
			GstRate:          0.10,
			CostCents:        p.cost,
			Active:           true,
			TrackInventory:   p.track,
			StockQuantity:    p.stock,
		}
		product.CreatedAt = now
		product.CreatedBy = "seed"
		product.UpdatedAt = now
		product.UpdatedBy = "seed"
		s.products[product.ID] = product
	}

	s.usersByUsername = seedUsers()
	return s
}

// seedUsers builds dev/demo credentials from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD, falling back to defaults with a warning. Production
// deployments use postgres-backed users.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// --- products ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "product id and name are required")
	}
	for _, existing := range s.products {
		if existing.StoreID == product.StoreID && existing.SKU == product.SKU {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "sku %s already exists", product.SKU)
		}
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, apperr.NotFound("product %s not found", product.ID)
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, apperr.NotFound("product %s not found", id)
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if product, exists := s.products[id]; exists {
			result[id] = product
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active || (storeID != "" && p.StoreID != storeID) {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, storeID string, query string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}

	matches := make([]domain.Product, 0, limit)
	for _, p := range s.products {
		if !p.Active || (storeID != "" && p.StoreID != storeID) {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), query) || strings.EqualFold(p.SKU, query) {
			matches = append(matches, p)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- orders ---

func (s *Store) CreateOrder(_ context.Context, order *domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" || order.OrderNumber == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "order id and number are required")
	}
	if _, exists := s.orderIDByNumber[order.OrderNumber]; exists {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "order number %s already exists", order.OrderNumber)
	}

	stored := cloneOrder(order)
	s.ordersByID[order.ID] = stored
	s.orderIDByNumber[order.OrderNumber] = order.ID
	return cloneOrder(stored), nil
}

func (s *Store) GetOrder(_ context.Context, id string, includeDeleted bool) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOrderLocked(id, includeDeleted)
}

func (s *Store) getOrderLocked(id string, includeDeleted bool) (*domain.Order, error) {
	order, exists := s.ordersByID[id]
	if !exists || (order.Deleted && !includeDeleted) {
		return nil, apperr.NotFound("order %s not found", id)
	}
	return cloneOrder(order), nil
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.orderIDByNumber[number]
	if !exists {
		return nil, apperr.NotFound("order %s not found", number)
	}
	return s.getOrderLocked(id, false)
}

func (s *Store) SaveOrderItems(_ context.Context, order *domain.Order, compensations []domain.InventoryTransaction) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.ordersByID[order.ID]
	if !exists || existing.Deleted {
		return nil, apperr.NotFound("order %s not found", order.ID)
	}
	switch existing.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "order %s is %s", order.ID, existing.Status)
	}

	for _, comp := range compensations {
		if err := s.applyDeltaLocked(comp, true); err != nil {
			return nil, err
		}
	}

	stored := cloneOrder(order)
	stored.Payments = existing.Payments
	s.ordersByID[order.ID] = stored
	return cloneOrder(stored), nil
}

func (s *Store) CompleteOrder(_ context.Context, orderID string, paidCents int64, actor string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists || order.Deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	// Status re-check under the lock: completing twice is a no-op.
	if order.Status == domain.OrderStatusCompleted {
		return cloneOrder(order), nil
	}
	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing:
	default:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot complete order in status %s", order.Status)
	}
	if paidCents < order.TotalCents {
		return nil, apperr.BusinessRule(apperr.CodeInvalidPaymentAmount, "paid amount %d is below order total %d", paidCents, order.TotalCents)
	}

	if !order.StockDecremented {
		// Validate every line first so the decrement is all-or-nothing.
		for _, item := range order.Items {
			if item.Voided {
				continue
			}
			product, ok := s.products[item.ProductID]
			if !ok || !product.TrackInventory {
				continue
			}
			if product.StockQuantity < item.Quantity {
				return nil, apperr.BusinessRule(apperr.CodeInsufficientStock, "insufficient stock for %s", product.Name)
			}
		}
		for _, item := range order.Items {
			if item.Voided {
				continue
			}
			product, ok := s.products[item.ProductID]
			if !ok || !product.TrackInventory {
				continue
			}
			if err := s.applyDeltaLocked(domain.InventoryTransaction{
				ID:        xid.New("invtx"),
				ProductID: item.ProductID,
				StoreID:   order.StoreID,
				Type:      domain.InventoryTxSale,
				Quantity:  -item.Quantity,
				OrderID:   order.ID,
				CreatedBy: actor,
				CreatedAt: at,
			}, false); err != nil {
				return nil, err
			}
		}
		order.StockDecremented = true
	}

	order.PaidCents = paidCents
	order.ChangeCents = paidCents - order.TotalCents
	order.Status = domain.OrderStatusCompleted
	completedAt := at
	order.CompletedAt = &completedAt
	order.UpdatedAt = at
	order.UpdatedBy = actor

	return cloneOrder(order), nil
}

func (s *Store) CancelOrder(_ context.Context, orderID string, reason string, actor string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists || order.Deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	switch order.Status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusOnHold:
	case domain.OrderStatusCompleted:
		return nil, apperr.BusinessRule(apperr.CodeAlreadyCompleted, "order %s already completed", orderID)
	default:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot cancel order in status %s", order.Status)
	}

	if order.StockDecremented {
		for _, item := range order.Items {
			if item.Voided {
				continue
			}
			product, ok := s.products[item.ProductID]
			if !ok || !product.TrackInventory {
				continue
			}
			if err := s.applyDeltaLocked(domain.InventoryTransaction{
				ID:        xid.New("invtx"),
				ProductID: item.ProductID,
				StoreID:   order.StoreID,
				Type:      domain.InventoryTxReturn,
				Quantity:  item.Quantity,
				OrderID:   order.ID,
				Notes:     "order cancelled",
				CreatedBy: actor,
				CreatedAt: at,
			}, true); err != nil {
				return nil, err
			}
		}
		order.StockDecremented = false
	}

	order.Status = domain.OrderStatusCancelled
	cancelledAt := at
	order.CancelledAt = &cancelledAt
	order.CancelReason = reason
	order.UpdatedAt = at
	order.UpdatedBy = actor

	return cloneOrder(order), nil
}

func (s *Store) RefundOrder(_ context.Context, orderID string, reason string, actor string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists || order.Deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if order.Status != domain.OrderStatusCompleted {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "only completed orders can be refunded")
	}

	if order.StockDecremented {
		for _, item := range order.Items {
			if item.Voided {
				continue
			}
			product, ok := s.products[item.ProductID]
			if !ok || !product.TrackInventory {
				continue
			}
			if err := s.applyDeltaLocked(domain.InventoryTransaction{
				ID:        xid.New("invtx"),
				ProductID: item.ProductID,
				StoreID:   order.StoreID,
				Type:      domain.InventoryTxReturn,
				Quantity:  item.Quantity,
				OrderID:   order.ID,
				Notes:     "order refunded",
				CreatedBy: actor,
				CreatedAt: at,
			}, true); err != nil {
				return nil, err
			}
		}
		order.StockDecremented = false
	}

	for i := range order.Payments {
		if order.Payments[i].Status == domain.PaymentStatusCompleted {
			order.Payments[i].Status = domain.PaymentStatusRefunded
			payment := s.paymentsByID[order.Payments[i].ID]
			payment.Status = domain.PaymentStatusRefunded
			s.paymentsByID[order.Payments[i].ID] = payment
		}
	}
	s.recomputePaidLocked(order)

	order.Status = domain.OrderStatusRefunded
	order.CancelReason = reason
	order.UpdatedAt = at
	order.UpdatedBy = actor
	return cloneOrder(order), nil
}

func (s *Store) HoldOrder(_ context.Context, orderID string, actor string, at time.Time) (*domain.Order, error) {
	return s.setStatusLocked(orderID, actor, at, domain.OrderStatusOnHold, domain.OrderStatusPending, domain.OrderStatusProcessing)
}

func (s *Store) ResumeOrder(_ context.Context, orderID string, actor string, at time.Time) (*domain.Order, error) {
	return s.setStatusLocked(orderID, actor, at, domain.OrderStatusProcessing, domain.OrderStatusOnHold)
}

func (s *Store) setStatusLocked(orderID string, actor string, at time.Time, to string, from ...string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists || order.Deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if !slices.Contains(from, order.Status) {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot move order from %s to %s", order.Status, to)
	}
	order.Status = to
	order.UpdatedAt = at
	order.UpdatedBy = actor
	return cloneOrder(order), nil
}

func (s *Store) SoftDeleteOrder(_ context.Context, orderID string, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists || order.Deleted {
		return apperr.NotFound("order %s not found", orderID)
	}
	deletedAt := at
	order.Deleted = true
	order.DeletedAt = &deletedAt
	order.DeletedBy = actor
	return nil
}

func (s *Store) ListOrdersByShift(_ context.Context, shiftID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0, 16)
	for _, order := range s.ordersByID {
		if order.Deleted || order.ShiftID != shiftID {
			continue
		}
		orders = append(orders, *cloneOrder(order))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return orders, nil
}

// --- payments ---

func (s *Store) RecordPayment(_ context.Context, payment domain.Payment, shiftID string) (*domain.Payment, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[payment.OrderID]
	if !exists || order.Deleted {
		return nil, nil, apperr.NotFound("order %s not found", payment.OrderID)
	}
	if order.ShiftID == "" && shiftID != "" {
		order.ShiftID = shiftID
	}

	s.paymentsByID[payment.ID] = payment
	order.Payments = append(order.Payments, payment)
	s.recomputePaidLocked(order)

	created := payment
	return &created, cloneOrder(order), nil
}

func (s *Store) SetPaymentStatus(_ context.Context, paymentID string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, exists := s.paymentsByID[paymentID]
	if !exists {
		return nil, apperr.NotFound("payment %s not found", paymentID)
	}
	payment.Status = status
	s.paymentsByID[paymentID] = payment

	order, exists := s.ordersByID[payment.OrderID]
	if !exists {
		return nil, apperr.NotFound("order %s not found", payment.OrderID)
	}
	for i := range order.Payments {
		if order.Payments[i].ID == paymentID {
			order.Payments[i].Status = status
		}
	}
	s.recomputePaidLocked(order)
	return cloneOrder(order), nil
}

// recomputePaidLocked derives paid from completed payments; never increments.
func (s *Store) recomputePaidLocked(order *domain.Order) {
	var paid int64
	for _, p := range order.Payments {
		if p.Status == domain.PaymentStatusCompleted {
			paid += p.AmountCents
		}
	}
	order.PaidCents = paid
	if paid > order.TotalCents {
		order.ChangeCents = paid - order.TotalCents
	} else {
		order.ChangeCents = 0
	}
}

func (s *Store) ListPaymentsByOrder(_ context.Context, orderID string) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	payments := make([]domain.Payment, len(order.Payments))
	copy(payments, order.Payments)
	return payments, nil
}

// --- shifts ---

func (s *Store) OpenShift(_ context.Context, shift domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if openID, exists := s.openShiftByUser[shift.UserID]; exists {
		if existing, ok := s.shiftsByID[openID]; ok && existing.Status == domain.ShiftStatusOpen {
			return nil, apperr.BusinessRule(apperr.CodeShiftAlreadyOpen, "user %s already has an open shift", shift.UserID)
		}
	}

	s.shiftsByID[shift.ID] = shift
	s.openShiftByUser[shift.UserID] = shift.ID
	created := shift
	return &created, nil
}

func (s *Store) GetShift(_ context.Context, id string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shift, exists := s.shiftsByID[id]
	if !exists {
		return nil, apperr.NotFound("shift %s not found", id)
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) GetOpenShiftByUser(_ context.Context, userID string) (*domain.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.openShiftByUser[userID]
	if !exists {
		return nil, apperr.NotFound("no open shift for user %s", userID)
	}
	shift, ok := s.shiftsByID[id]
	if !ok || shift.Status != domain.ShiftStatusOpen {
		return nil, apperr.NotFound("no open shift for user %s", userID)
	}
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) CloseShift(_ context.Context, shift *domain.Shift) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.shiftsByID[shift.ID]
	if !exists || existing.Status != domain.ShiftStatusOpen {
		return nil, apperr.BusinessRule(apperr.CodeNoActiveShift, "no open shift with id %s", shift.ID)
	}

	s.shiftsByID[shift.ID] = *shift
	delete(s.openShiftByUser, existing.UserID)
	closed := *shift
	return &closed, nil
}

func (s *Store) ReconcileShift(_ context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, apperr.NotFound("shift %s not found", shiftID)
	}
	if shift.Status != domain.ShiftStatusClosed {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "only closed shifts can be reconciled")
	}
	reconciledAt := at
	shift.Status = domain.ShiftStatusReconciled
	shift.ReconciledAt = &reconciledAt
	shift.UpdatedAt = at
	shift.UpdatedBy = actor
	s.shiftsByID[shiftID] = shift
	copyShift := shift
	return &copyShift, nil
}

func (s *Store) SuspendShift(_ context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error) {
	return s.moveShiftLocked(shiftID, actor, at, domain.ShiftStatusOpen, domain.ShiftStatusSuspended)
}

func (s *Store) ResumeShift(_ context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error) {
	return s.moveShiftLocked(shiftID, actor, at, domain.ShiftStatusSuspended, domain.ShiftStatusOpen)
}

func (s *Store) moveShiftLocked(shiftID string, actor string, at time.Time, from string, to string) (*domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shift, exists := s.shiftsByID[shiftID]
	if !exists {
		return nil, apperr.NotFound("shift %s not found", shiftID)
	}
	if shift.Status != from {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "shift %s is %s", shiftID, shift.Status)
	}
	shift.Status = to
	shift.UpdatedAt = at
	shift.UpdatedBy = actor
	s.shiftsByID[shiftID] = shift
	copyShift := shift
	return &copyShift, nil
}

// --- inventory ---

func (s *Store) ApplyStockDelta(_ context.Context, tx domain.InventoryTransaction, allowNegative bool) (*domain.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.applyDeltaLocked(tx, allowNegative); err != nil {
		return nil, err
	}
	applied := s.inventoryLog[len(s.inventoryLog)-1]
	return &applied, nil
}

// applyDeltaLocked updates the product's stock quantity and appends the
// ledger row together, so the running total never diverges from the ledger.
func (s *Store) applyDeltaLocked(tx domain.InventoryTransaction, allowNegative bool) error {
	product, exists := s.products[tx.ProductID]
	if !exists {
		return apperr.NotFound("product %s not found", tx.ProductID)
	}

	tx.StockBefore = product.StockQuantity
	tx.StockAfter = product.StockQuantity + tx.Quantity
	if tx.StockAfter < 0 {
		if tx.Type == domain.InventoryTxSale || !allowNegative {
			return apperr.BusinessRule(apperr.CodeInsufficientStock, "insufficient stock for %s", product.Name)
		}
	}
	if tx.UnitCostCents > 0 && tx.TotalCostCents == 0 {
		tx.TotalCostCents = tx.UnitCostCents * int64(abs(tx.Quantity))
	}

	product.StockQuantity = tx.StockAfter
	s.products[tx.ProductID] = product
	s.inventoryLog = append(s.inventoryLog, tx)
	return nil
}

func (s *Store) ListInventoryTransactions(_ context.Context, productID string, limit int) ([]domain.InventoryTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.InventoryTransaction, 0, limit)
	for i := len(s.inventoryLog) - 1; i >= 0 && len(result) < limit; i-- {
		if productID == "" || s.inventoryLog[i].ProductID == productID {
			result = append(result, s.inventoryLog[i])
		}
	}
	return result, nil
}

// --- users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return apperr.Validation(apperr.CodeInvalidInput, "username %s already exists", user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByUsername[username]
	if !exists || !user.Active {
		return nil, apperr.NotFound("user %s not found", username)
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return apperr.NotFound("user %s not found", username)
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// --- audit ---

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		entry := s.auditLogs[i]
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	return result, nil
}

// --- helpers ---

func cloneOrder(order *domain.Order) *domain.Order {
	clone := *order
	clone.Items = make([]domain.OrderItem, len(order.Items))
	copy(clone.Items, order.Items)
	clone.Payments = make([]domain.Payment, len(order.Payments))
	copy(clone.Payments, order.Payments)
	return &clone
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
