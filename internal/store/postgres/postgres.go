// Package postgres is the production Repository. Multi-entity invariants run
// inside serializable transactions with row locks on the order and product
// rows; see schema.sql for the tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- products ---

const productColumns = `id, store_id, sku, name, category, price_ex_gst_cents, gst_cents,
	price_inc_gst_cents, gst_rate, cost_cents, active, track_inventory, stock_quantity,
	created_at, created_by, updated_at, updated_by`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.StoreID, &p.SKU, &p.Name, &p.Category, &p.PriceExGstCents, &p.GstCents,
		&p.PriceIncGstCents, &p.GstRate, &p.CostCents, &p.Active, &p.TrackInventory, &p.StockQuantity,
		&p.CreatedAt, &p.CreatedBy, &p.UpdatedAt, &p.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "product id and name are required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, product.ID, product.StoreID, product.SKU, product.Name, product.Category,
		product.PriceExGstCents, product.GstCents, product.PriceIncGstCents, product.GstRate,
		product.CostCents, product.Active, product.TrackInventory, product.StockQuantity,
		product.CreatedAt, product.CreatedBy, product.UpdatedAt, product.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "sku %s already exists", product.SKU)
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, price_ex_gst_cents = $4, gst_cents = $5,
			price_inc_gst_cents = $6, gst_rate = $7, cost_cents = $8, active = $9,
			track_inventory = $10, updated_at = $11, updated_by = $12
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.PriceExGstCents, product.GstCents,
		product.PriceIncGstCents, product.GstRate, product.CostCents, product.Active,
		product.TrackInventory, product.UpdatedAt, product.UpdatedBy)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, apperr.NotFound("product %s not found", product.ID)
	}
	updated := product
	return &updated, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product %s not found", id)
	}
	return product, err
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[product.ID] = *product
	}
	return result, rows.Err()
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE active = true AND ($1 = '' OR store_id = $1)
		ORDER BY category, name
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

func (s *Store) SearchProducts(ctx context.Context, storeID string, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE active = true AND ($1 = '' OR store_id = $1)
			AND (name ILIKE '%' || $2 || '%' OR sku ILIKE $2)
		ORDER BY name
		LIMIT $3
	`, storeID, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, rows.Err()
}

// --- orders ---

const orderColumns = `id, order_number, store_id, cashier_id, COALESCE(shift_id, ''), type, status,
	customer_name, customer_phone, table_number, delivery_address, delivery_instructions, notes,
	subtotal_cents, discount_cents, tax_cents, total_cents, paid_cents, change_cents,
	stock_decremented, completed_at, cancelled_at, cancel_reason,
	created_at, created_by, updated_at, updated_by, deleted, deleted_at, deleted_by`

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.StoreID, &o.CashierID, &o.ShiftID, &o.Type, &o.Status,
		&o.CustomerName, &o.CustomerPhone, &o.TableNumber, &o.DeliveryAddress, &o.DeliveryInstructions, &o.Notes,
		&o.SubtotalCents, &o.DiscountCents, &o.TaxCents, &o.TotalCents, &o.PaidCents, &o.ChangeCents,
		&o.StockDecremented, &o.CompletedAt, &o.CancelledAt, &o.CancelReason,
		&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt, &o.UpdatedBy, &o.Deleted, &o.DeletedAt, &o.DeletedBy)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, store_id, cashier_id, shift_id, type, status,
			customer_name, customer_phone, table_number, delivery_address, delivery_instructions, notes,
			subtotal_cents, discount_cents, tax_cents, total_cents, paid_cents, change_cents,
			stock_decremented, created_at, created_by, updated_at, updated_by
		) VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`, order.ID, order.OrderNumber, order.StoreID, order.CashierID, order.ShiftID, order.Type, order.Status,
		order.CustomerName, order.CustomerPhone, order.TableNumber, order.DeliveryAddress, order.DeliveryInstructions, order.Notes,
		order.SubtotalCents, order.DiscountCents, order.TaxCents, order.TotalCents, order.PaidCents, order.ChangeCents,
		order.StockDecremented, order.CreatedAt, order.CreatedBy, order.UpdatedAt, order.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "order number %s already exists", order.OrderNumber)
		}
		return nil, err
	}

	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := *order
	return &created, nil
}

func insertItems(ctx context.Context, q querier, orderID string, items []domain.OrderItem) error {
	for _, item := range items {
		_, err := q.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, name, quantity,
				unit_price_ex_gst_cents, unit_gst_cents, unit_price_inc_gst_cents, discount_cents,
				subtotal_cents, tax_cents, total_cents, notes,
				voided, voided_at, voided_by, void_reason
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		`, item.ID, orderID, item.ProductID, item.Name, item.Quantity,
			item.UnitPriceExGstCents, item.UnitGstCents, item.UnitPriceIncGstCents, item.DiscountCents,
			item.SubtotalCents, item.TaxCents, item.TotalCents, item.Notes,
			item.Voided, item.VoidedAt, item.VoidedBy, item.VoidReason)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, name, quantity,
			unit_price_ex_gst_cents, unit_gst_cents, unit_price_inc_gst_cents, discount_cents,
			subtotal_cents, tax_cents, total_cents, notes,
			voided, voided_at, voided_by, void_reason
		FROM order_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0, 8)
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.Quantity,
			&it.UnitPriceExGstCents, &it.UnitGstCents, &it.UnitPriceIncGstCents, &it.DiscountCents,
			&it.SubtotalCents, &it.TaxCents, &it.TotalCents, &it.Notes,
			&it.Voided, &it.VoidedAt, &it.VoidedBy, &it.VoidReason); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func loadPayments(ctx context.Context, q querier, orderID string) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, amount_cents, method, status, reference, card_last4, card_type, processed_by, created_at
		FROM payments WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 2)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.AmountCents, &p.Method, &p.Status, &p.Reference,
			&p.CardLast4, &p.CardType, &p.ProcessedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) loadFullOrder(ctx context.Context, q querier, orderID string, includeDeleted bool) (*domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.Deleted && !includeDeleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	if order.Items, err = loadItems(ctx, q, orderID); err != nil {
		return nil, err
	}
	if order.Payments, err = loadPayments(ctx, q, orderID); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) GetOrder(ctx context.Context, id string, includeDeleted bool) (*domain.Order, error) {
	return s.loadFullOrder(ctx, s.db, id, includeDeleted)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM orders WHERE order_number = $1 AND NOT deleted
	`, number).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("order %s not found", number)
	}
	if err != nil {
		return nil, err
	}
	return s.loadFullOrder(ctx, s.db, id, false)
}

// lockOrderStatus reads the order's status and stock flag under FOR UPDATE,
// serializing every lifecycle mutation per order id.
func lockOrderStatus(ctx context.Context, tx *sql.Tx, orderID string) (status string, stockDecremented bool, deleted bool, err error) {
	err = tx.QueryRowContext(ctx, `
		SELECT status, stock_decremented, deleted FROM orders WHERE id = $1 FOR UPDATE
	`, orderID).Scan(&status, &stockDecremented, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		err = apperr.NotFound("order %s not found", orderID)
	}
	return
}

func (s *Store) SaveOrderItems(ctx context.Context, order *domain.Order, compensations []domain.InventoryTransaction) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, _, deleted, err := lockOrderStatus(ctx, tx, order.ID)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, apperr.NotFound("order %s not found", order.ID)
	}
	switch status {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "order %s is %s", order.ID, status)
	}

	for _, comp := range compensations {
		if err := applyDeltaTx(ctx, tx, comp, true); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return nil, err
	}
	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET subtotal_cents = $2, discount_cents = $3, tax_cents = $4, total_cents = $5,
			change_cents = GREATEST(paid_cents - $5, 0),
			updated_at = $6, updated_by = $7
		WHERE id = $1
	`, order.ID, order.SubtotalCents, order.DiscountCents, order.TaxCents, order.TotalCents,
		order.UpdatedAt, order.UpdatedBy)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.loadFullOrder(ctx, s.db, order.ID, false)
}

func (s *Store) CompleteOrder(ctx context.Context, orderID string, paidCents int64, actor string, at time.Time) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, stockDecremented, deleted, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	// Completing an already-completed order is a no-op.
	if status == domain.OrderStatusCompleted {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return s.loadFullOrder(ctx, s.db, orderID, false)
	}
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing:
	default:
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot complete order in status %s", status)
	}

	var totalCents int64
	var storeID string
	if err := tx.QueryRowContext(ctx, `SELECT total_cents, store_id FROM orders WHERE id = $1`, orderID).Scan(&totalCents, &storeID); err != nil {
		return nil, err
	}
	if paidCents < totalCents {
		return nil, apperr.BusinessRule(apperr.CodeInvalidPaymentAmount, "paid amount %d is below order total %d", paidCents, totalCents)
	}

	if !stockDecremented {
		items, err := loadItems(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if item.Voided {
				continue
			}
			if err := applySaleDeltaTx(ctx, tx, item, storeID, orderID, actor, at); err != nil {
				return nil, err
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, paid_cents = $3, change_cents = $4, stock_decremented = true,
			completed_at = $5, updated_at = $5, updated_by = $6
		WHERE id = $1
	`, orderID, domain.OrderStatusCompleted, paidCents, paidCents-totalCents, at, actor)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.loadFullOrder(ctx, s.db, orderID, false)
}

// applySaleDeltaTx decrements stock for one line if the product tracks
// inventory, writing the ledger row in the same transaction.
func applySaleDeltaTx(ctx context.Context, tx *sql.Tx, item domain.OrderItem, storeID string, orderID string, actor string, at time.Time) error {
	var tracks bool
	err := tx.QueryRowContext(ctx, `SELECT track_inventory FROM products WHERE id = $1`, item.ProductID).Scan(&tracks)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if !tracks {
		return nil
	}
	return applyDeltaTx(ctx, tx, domain.InventoryTransaction{
		ID:        xid.New("invtx"),
		ProductID: item.ProductID,
		StoreID:   storeID,
		Type:      domain.InventoryTxSale,
		Quantity:  -item.Quantity,
		OrderID:   orderID,
		CreatedBy: actor,
		CreatedAt: at,
	}, false)
}

func (s *Store) CancelOrder(ctx context.Context, orderID string, reason string, actor string, at time.Time) (*domain.Order, error) {
	return s.reverseOrder(ctx, orderID, reason, actor, at, domain.OrderStatusCancelled)
}

func (s *Store) RefundOrder(ctx context.Context, orderID string, reason string, actor string, at time.Time) (*domain.Order, error) {
	return s.reverseOrder(ctx, orderID, reason, actor, at, domain.OrderStatusRefunded)
}

// reverseOrder handles both cancel and refund: restock decremented lines,
// move the order to the terminal state, and for refunds flip completed
// payments to refunded.
func (s *Store) reverseOrder(ctx context.Context, orderID string, reason string, actor string, at time.Time, to string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, stockDecremented, deleted, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}

	if to == domain.OrderStatusCancelled {
		switch status {
		case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusOnHold:
		case domain.OrderStatusCompleted:
			return nil, apperr.BusinessRule(apperr.CodeAlreadyCompleted, "order %s already completed", orderID)
		default:
			return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot cancel order in status %s", status)
		}
	} else if status != domain.OrderStatusCompleted {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "only completed orders can be refunded")
	}

	var storeID string
	if err := tx.QueryRowContext(ctx, `SELECT store_id FROM orders WHERE id = $1`, orderID).Scan(&storeID); err != nil {
		return nil, err
	}

	if stockDecremented {
		items, err := loadItems(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		note := "order cancelled"
		if to == domain.OrderStatusRefunded {
			note = "order refunded"
		}
		for _, item := range items {
			if item.Voided {
				continue
			}
			var tracks bool
			err := tx.QueryRowContext(ctx, `SELECT track_inventory FROM products WHERE id = $1`, item.ProductID).Scan(&tracks)
			if errors.Is(err, sql.ErrNoRows) || (err == nil && !tracks) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if err := applyDeltaTx(ctx, tx, domain.InventoryTransaction{
				ID:        xid.New("invtx"),
				ProductID: item.ProductID,
				StoreID:   storeID,
				Type:      domain.InventoryTxReturn,
				Quantity:  item.Quantity,
				OrderID:   orderID,
				Notes:     note,
				CreatedBy: actor,
				CreatedAt: at,
			}, true); err != nil {
				return nil, err
			}
		}
	}

	if to == domain.OrderStatusRefunded {
		if _, err := tx.ExecContext(ctx, `
			UPDATE payments SET status = $2 WHERE order_id = $1 AND status = $3
		`, orderID, domain.PaymentStatusRefunded, domain.PaymentStatusCompleted); err != nil {
			return nil, err
		}
		if err := recomputePaidTx(ctx, tx, orderID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, stock_decremented = false, cancelled_at = $3, cancel_reason = $4,
			updated_at = $3, updated_by = $5
		WHERE id = $1
	`, orderID, to, at, reason, actor)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.loadFullOrder(ctx, s.db, orderID, false)
}

func (s *Store) HoldOrder(ctx context.Context, orderID string, actor string, at time.Time) (*domain.Order, error) {
	return s.moveOrder(ctx, orderID, actor, at, domain.OrderStatusOnHold, domain.OrderStatusPending, domain.OrderStatusProcessing)
}

func (s *Store) ResumeOrder(ctx context.Context, orderID string, actor string, at time.Time) (*domain.Order, error) {
	return s.moveOrder(ctx, orderID, actor, at, domain.OrderStatusProcessing, domain.OrderStatusOnHold)
}

func (s *Store) moveOrder(ctx context.Context, orderID string, actor string, at time.Time, to string, from ...string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, _, deleted, err := lockOrderStatus(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if deleted {
		return nil, apperr.NotFound("order %s not found", orderID)
	}
	allowed := false
	for _, f := range from {
		if status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot move order from %s to %s", status, to)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders SET status = $2, updated_at = $3, updated_by = $4 WHERE id = $1
	`, orderID, to, at, actor)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.loadFullOrder(ctx, s.db, orderID, false)
}

func (s *Store) SoftDeleteOrder(ctx context.Context, orderID string, actor string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET deleted = true, deleted_at = $2, deleted_by = $3 WHERE id = $1 AND NOT deleted
	`, orderID, at, actor)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("order %s not found", orderID)
	}
	return nil
}

func (s *Store) ListOrdersByShift(ctx context.Context, shiftID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE shift_id = $1 AND NOT deleted ORDER BY created_at
	`, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		if orders[i].Items, err = loadItems(ctx, s.db, orders[i].ID); err != nil {
			return nil, err
		}
		if orders[i].Payments, err = loadPayments(ctx, s.db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

// --- payments ---

// recomputePaidTx derives the order's paid amount from completed payments.
func recomputePaidTx(ctx context.Context, tx *sql.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders o
		SET paid_cents = p.paid,
			change_cents = GREATEST(p.paid - o.total_cents, 0)
		FROM (
			SELECT COALESCE(SUM(amount_cents), 0) AS paid
			FROM payments WHERE order_id = $1 AND status = $2
		) p
		WHERE o.id = $1
	`, orderID, domain.PaymentStatusCompleted)
	return err
}

func (s *Store) RecordPayment(ctx context.Context, payment domain.Payment, shiftID string) (*domain.Payment, *domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	status, _, deleted, err := lockOrderStatus(ctx, tx, payment.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if deleted {
		return nil, nil, apperr.NotFound("order %s not found", payment.OrderID)
	}
	switch status {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return nil, nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "cannot take payment on %s order", status)
	}

	if shiftID != "" {
		_, err = tx.ExecContext(ctx, `UPDATE orders SET shift_id = $2 WHERE id = $1 AND shift_id IS NULL`, payment.OrderID, shiftID)
		if err != nil {
			return nil, nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, amount_cents, method, status, reference, card_last4, card_type, processed_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, payment.ID, payment.OrderID, payment.AmountCents, payment.Method, payment.Status,
		payment.Reference, payment.CardLast4, payment.CardType, payment.ProcessedBy, payment.CreatedAt)
	if err != nil {
		return nil, nil, err
	}
	if err := recomputePaidTx(ctx, tx, payment.OrderID); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	order, err := s.loadFullOrder(ctx, s.db, payment.OrderID, false)
	if err != nil {
		return nil, nil, err
	}
	created := payment
	return &created, order, nil
}

func (s *Store) SetPaymentStatus(ctx context.Context, paymentID string, status string) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var orderID string
	err = tx.QueryRowContext(ctx, `
		UPDATE payments SET status = $2 WHERE id = $1 RETURNING order_id
	`, paymentID, status).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("payment %s not found", paymentID)
	}
	if err != nil {
		return nil, err
	}
	if err := recomputePaidTx(ctx, tx, orderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.loadFullOrder(ctx, s.db, orderID, false)
}

func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return loadPayments(ctx, s.db, orderID)
}

// --- shifts ---

const shiftColumns = `id, user_id, store_id, status, starting_cash_cents, ending_cash_cents,
	cash_sales_cents, card_sales_cents, other_sales_cents, total_sales_cents, total_orders,
	expected_cash_cents, cash_difference_cents, notes, opened_at, closed_at, reconciled_at,
	created_at, created_by, updated_at, updated_by`

func scanShift(row interface{ Scan(...any) error }) (*domain.Shift, error) {
	var sh domain.Shift
	err := row.Scan(&sh.ID, &sh.UserID, &sh.StoreID, &sh.Status, &sh.StartingCashCents, &sh.EndingCashCents,
		&sh.CashSalesCents, &sh.CardSalesCents, &sh.OtherSalesCents, &sh.TotalSalesCents, &sh.TotalOrders,
		&sh.ExpectedCashCents, &sh.CashDifferenceCents, &sh.Notes, &sh.OpenedAt, &sh.ClosedAt, &sh.ReconciledAt,
		&sh.CreatedAt, &sh.CreatedBy, &sh.UpdatedAt, &sh.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *Store) OpenShift(ctx context.Context, shift domain.Shift) (*domain.Shift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// One open shift per user across all stores. The partial unique index
	// backs this up; the explicit check yields the right error code.
	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM shifts WHERE user_id = $1 AND status = $2 FOR UPDATE
	`, shift.UserID, domain.ShiftStatusOpen).Scan(&existing)
	if err == nil {
		return nil, apperr.BusinessRule(apperr.CodeShiftAlreadyOpen, "user %s already has an open shift", shift.UserID)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO shifts (
			id, user_id, store_id, status, starting_cash_cents, opened_at,
			created_at, created_by, updated_at, updated_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, shift.ID, shift.UserID, shift.StoreID, shift.Status, shift.StartingCashCents, shift.OpenedAt,
		shift.CreatedAt, shift.CreatedBy, shift.UpdatedAt, shift.UpdatedBy)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.BusinessRule(apperr.CodeShiftAlreadyOpen, "user %s already has an open shift", shift.UserID)
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	opened := shift
	return &opened, nil
}

func (s *Store) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("shift %s not found", id)
	}
	return shift, err
}

func (s *Store) GetOpenShiftByUser(ctx context.Context, userID string) (*domain.Shift, error) {
	shift, err := scanShift(s.db.QueryRowContext(ctx, `
		SELECT `+shiftColumns+` FROM shifts WHERE user_id = $1 AND status = $2
	`, userID, domain.ShiftStatusOpen))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no open shift for user %s", userID)
	}
	return shift, err
}

func (s *Store) CloseShift(ctx context.Context, shift *domain.Shift) (*domain.Shift, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM shifts WHERE id = $1 FOR UPDATE`, shift.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.BusinessRule(apperr.CodeNoActiveShift, "no open shift with id %s", shift.ID)
	}
	if err != nil {
		return nil, err
	}
	if status != domain.ShiftStatusOpen {
		return nil, apperr.BusinessRule(apperr.CodeNoActiveShift, "no open shift with id %s", shift.ID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE shifts
		SET status = $2, ending_cash_cents = $3, cash_sales_cents = $4, card_sales_cents = $5,
			other_sales_cents = $6, total_sales_cents = $7, total_orders = $8,
			expected_cash_cents = $9, cash_difference_cents = $10, notes = $11,
			closed_at = $12, updated_at = $13, updated_by = $14
		WHERE id = $1
	`, shift.ID, shift.Status, shift.EndingCashCents, shift.CashSalesCents, shift.CardSalesCents,
		shift.OtherSalesCents, shift.TotalSalesCents, shift.TotalOrders,
		shift.ExpectedCashCents, shift.CashDifferenceCents, shift.Notes,
		shift.ClosedAt, shift.UpdatedAt, shift.UpdatedBy)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	closed := *shift
	return &closed, nil
}

func (s *Store) ReconcileShift(ctx context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts SET status = $2, reconciled_at = $3, updated_at = $3, updated_by = $4
		WHERE id = $1 AND status = $5
	`, shiftID, domain.ShiftStatusReconciled, at, actor, domain.ShiftStatusClosed)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetShift(ctx, shiftID); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "only closed shifts can be reconciled")
	}
	return s.GetShift(ctx, shiftID)
}

func (s *Store) SuspendShift(ctx context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error) {
	return s.moveShift(ctx, shiftID, actor, at, domain.ShiftStatusOpen, domain.ShiftStatusSuspended)
}

func (s *Store) ResumeShift(ctx context.Context, shiftID string, actor string, at time.Time) (*domain.Shift, error) {
	return s.moveShift(ctx, shiftID, actor, at, domain.ShiftStatusSuspended, domain.ShiftStatusOpen)
}

func (s *Store) moveShift(ctx context.Context, shiftID string, actor string, at time.Time, from string, to string) (*domain.Shift, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shifts SET status = $2, updated_at = $3, updated_by = $4 WHERE id = $1 AND status = $5
	`, shiftID, to, at, actor, from)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		shift, getErr := s.GetShift(ctx, shiftID)
		if getErr != nil {
			return nil, getErr
		}
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "shift %s is %s", shiftID, shift.Status)
	}
	return s.GetShift(ctx, shiftID)
}

// --- inventory ---

// applyDeltaTx locks the product row, writes the new quantity and the ledger
// row together. tx.Quantity is signed.
func applyDeltaTx(ctx context.Context, tx *sql.Tx, invTx domain.InventoryTransaction, allowNegative bool) error {
	var before int
	var name string
	err := tx.QueryRowContext(ctx, `
		SELECT stock_quantity, name FROM products WHERE id = $1 FOR UPDATE
	`, invTx.ProductID).Scan(&before, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("product %s not found", invTx.ProductID)
	}
	if err != nil {
		return err
	}

	after := before + invTx.Quantity
	if after < 0 && (invTx.Type == domain.InventoryTxSale || !allowNegative) {
		return apperr.BusinessRule(apperr.CodeInsufficientStock, "insufficient stock for %s", name)
	}

	if invTx.UnitCostCents > 0 && invTx.TotalCostCents == 0 {
		qty := invTx.Quantity
		if qty < 0 {
			qty = -qty
		}
		invTx.TotalCostCents = invTx.UnitCostCents * int64(qty)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock_quantity = $2 WHERE id = $1
	`, invTx.ProductID, after); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			id, product_id, store_id, type, quantity, stock_before, stock_after,
			unit_cost_cents, total_cost_cents, order_id, supplier_id, notes, created_by, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10,''),NULLIF($11,''),$12,$13,$14)
	`, invTx.ID, invTx.ProductID, invTx.StoreID, invTx.Type, invTx.Quantity, before, after,
		invTx.UnitCostCents, invTx.TotalCostCents, invTx.OrderID, invTx.SupplierID,
		invTx.Notes, invTx.CreatedBy, invTx.CreatedAt)
	return err
}

func (s *Store) ApplyStockDelta(ctx context.Context, invTx domain.InventoryTransaction, allowNegative bool) (*domain.InventoryTransaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := applyDeltaTx(ctx, tx, invTx, allowNegative); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	applied := invTx
	err = s.db.QueryRowContext(ctx, `
		SELECT stock_before, stock_after, total_cost_cents FROM inventory_transactions WHERE id = $1
	`, invTx.ID).Scan(&applied.StockBefore, &applied.StockAfter, &applied.TotalCostCents)
	if err != nil {
		return nil, err
	}
	return &applied, nil
}

func (s *Store) ListInventoryTransactions(ctx context.Context, productID string, limit int) ([]domain.InventoryTransaction, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, store_id, type, quantity, stock_before, stock_after,
			unit_cost_cents, total_cost_cents, COALESCE(order_id, ''), COALESCE(supplier_id, ''),
			notes, created_by, created_at
		FROM inventory_transactions
		WHERE $1 = '' OR product_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.InventoryTransaction, 0, limit)
	for rows.Next() {
		var t domain.InventoryTransaction
		if err := rows.Scan(&t.ID, &t.ProductID, &t.StoreID, &t.Type, &t.Quantity, &t.StockBefore, &t.StockAfter,
			&t.UnitCostCents, &t.TotalCostCents, &t.OrderID, &t.SupplierID,
			&t.Notes, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return apperr.Validation(apperr.CodeInvalidInput, "username %s already exists", user.Username)
	}
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password, role, active, created_at FROM users WHERE username = $1 AND active = true
	`, username).Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %s not found", username)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperr.NotFound("user %s not found", username)
	}
	return nil
}

// --- audit ---

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
