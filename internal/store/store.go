// Package store defines the persistence contracts consumed by the service
// layer. Interfaces are narrow and per-aggregate so invariants stay
// enforceable at the boundary; multi-entity operations are single methods
// that run in one transaction.
package store

import (
	"context"
	"time"

	"warungpos/internal/domain"
)

type ProductStore interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	// SearchProducts does a case-insensitive name/sku match for the
	// conversational ordering flow. Inactive products are excluded.
	SearchProducts(ctx context.Context, storeID string, query string, limit int) ([]domain.Product, error)
}

type OrderStore interface {
	// CreateOrder persists the order with its items atomically.
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string, includeDeleted bool) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	// SaveOrderItems rewrites the order's lines and totals, plus any
	// compensating inventory rows (item void after stock decrement), in one
	// transaction.
	SaveOrderItems(ctx context.Context, order *domain.Order, compensations []domain.InventoryTransaction) (*domain.Order, error)
	// CompleteOrder re-reads status inside the transaction; completing an
	// already-completed order returns it unchanged. Stock for non-voided,
	// inventory-tracked lines is decremented exactly once, each decrement
	// paired with its ledger row.
	CompleteOrder(ctx context.Context, orderID string, paidCents int64, actor string, at time.Time) (*domain.Order, error)
	// CancelOrder reverses any stock already decremented.
	CancelOrder(ctx context.Context, orderID string, reason string, actor string, at time.Time) (*domain.Order, error)
	// RefundOrder moves a completed order to refunded, restocks its lines and
	// marks its completed payments refunded.
	RefundOrder(ctx context.Context, orderID string, reason string, actor string, at time.Time) (*domain.Order, error)
	HoldOrder(ctx context.Context, orderID string, actor string, at time.Time) (*domain.Order, error)
	ResumeOrder(ctx context.Context, orderID string, actor string, at time.Time) (*domain.Order, error)
	SoftDeleteOrder(ctx context.Context, orderID string, actor string, at time.Time) error
	ListOrdersByShift(ctx context.Context, shiftID string) ([]domain.Order, error)
}

type PaymentStore interface {
	// RecordPayment inserts the payment and recomputes the order's paid and
	// change amounts from the sum of completed payments, atomically. When
	// shiftID is non-empty and the order has no shift yet, the order is
	// attached to that shift in the same transaction.
	RecordPayment(ctx context.Context, payment domain.Payment, shiftID string) (*domain.Payment, *domain.Order, error)
	// SetPaymentStatus moves a payment to failed/cancelled/refunded and
	// recomputes the owning order's paid amount.
	SetPaymentStatus(ctx context.Context, paymentID string, status string) (*domain.Order, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

type ShiftStore interface {
	// OpenShift fails when the user already has an open shift at any store.
	OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error)
	GetShift(ctx context.Context, id string) (*domain.Shift, error)
	GetOpenShiftByUser(ctx context.Context, userID string) (*domain.Shift, error)
	// CloseShift persists the close; the current status is re-checked inside
	// the transaction.
	CloseShift(ctx context.Context, shift *domain.Shift) (*domain.Shift, error)
	ReconcileShift(ctx context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error)
	SuspendShift(ctx context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error)
	ResumeShift(ctx context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error)
}

type InventoryStore interface {
	// ApplyStockDelta locks the product row, writes the ledger row and the
	// new stock quantity in one transaction. Negative-going non-sale deltas
	// require allowNegative.
	ApplyStockDelta(ctx context.Context, tx domain.InventoryTransaction, allowNegative bool) (*domain.InventoryTransaction, error)
	ListInventoryTransactions(ctx context.Context, productID string, limit int) ([]domain.InventoryTransaction, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// Repository is the full persistence gateway consumed by the service.
type Repository interface {
	ProductStore
	OrderStore
	PaymentStore
	ShiftStore
	InventoryStore
	UserStore
	AuditStore
}
