package domain

import "time"

// AuditStamp carries actor/clock metadata written by the service layer's
// pre-save stamping decorator. Stores persist it verbatim.
type AuditStamp struct {
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// SoftDelete marks an aggregate invisible to normal reads. Records are never
// physically removed; admin read paths may opt in with includeDeleted.
type SoftDelete struct {
	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

type Actor struct {
	Username string
	Role     string
}

type Product struct {
	ID               string  `json:"id"`
	StoreID          string  `json:"store_id"`
	SKU              string  `json:"sku"`
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	PriceExGstCents  int64   `json:"price_ex_gst_cents"`
	GstCents         int64   `json:"gst_cents"`
	PriceIncGstCents int64   `json:"price_inc_gst_cents"`
	GstRate          float64 `json:"gst_rate"`
	CostCents        int64   `json:"cost_cents"`
	Active           bool    `json:"active"`
	TrackInventory   bool    `json:"track_inventory"`
	StockQuantity    int     `json:"stock_quantity"`
	AuditStamp
}

type ProductCreateRequest struct {
	StoreID         string `json:"store_id"`
	SKU             string `json:"sku"`
	Name            string `json:"name"`
	Category        string `json:"category"`
	PriceExGstCents int64  `json:"price_ex_gst_cents"`
	CostCents       int64  `json:"cost_cents"`
	TrackInventory  bool   `json:"track_inventory"`
	InitialStock    int    `json:"initial_stock"`
}

// Order lifecycle. Terminal states: completed, cancelled, refunded.
const (
	OrderStatusPending           = "pending"
	OrderStatusProcessing        = "processing"
	OrderStatusOnHold            = "on_hold"
	OrderStatusCompleted         = "completed"
	OrderStatusCancelled         = "cancelled"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
)

const (
	OrderTypeDineIn   = "dine_in"
	OrderTypeTakeAway = "take_away"
	OrderTypeDelivery = "delivery"
	OrderTypePickup   = "pickup"
)

type Order struct {
	ID                   string `json:"id"`
	OrderNumber          string `json:"order_number"`
	StoreID              string `json:"store_id"`
	CashierID            string `json:"cashier_id"`
	ShiftID              string `json:"shift_id,omitempty"`
	Type                 string `json:"type"`
	Status               string `json:"status"`
	CustomerName         string `json:"customer_name,omitempty"`
	CustomerPhone        string `json:"customer_phone,omitempty"`
	TableNumber          string `json:"table_number,omitempty"`
	DeliveryAddress      string `json:"delivery_address,omitempty"`
	DeliveryInstructions string `json:"delivery_instructions,omitempty"`
	Notes                string `json:"notes,omitempty"`

	SubtotalCents int64 `json:"subtotal_cents"`
	DiscountCents int64 `json:"discount_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`
	PaidCents     int64 `json:"paid_cents"`
	ChangeCents   int64 `json:"change_cents"`

	// StockDecremented guards the one-time sale decrement on completion.
	StockDecremented bool `json:"stock_decremented"`

	Items    []OrderItem `json:"items"`
	Payments []Payment   `json:"payments,omitempty"`

	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`

	AuditStamp
	SoftDelete
}

type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`

	UnitPriceExGstCents  int64 `json:"unit_price_ex_gst_cents"`
	UnitGstCents         int64 `json:"unit_gst_cents"`
	UnitPriceIncGstCents int64 `json:"unit_price_inc_gst_cents"`
	DiscountCents        int64 `json:"discount_cents"`

	// SubtotalCents and TotalCents are the ex-GST line amounts (total net of
	// the item discount); TaxCents is the line GST.
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	TotalCents    int64 `json:"total_cents"`

	Notes string `json:"notes,omitempty"`

	Voided     bool       `json:"voided"`
	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   string     `json:"voided_by,omitempty"`
	VoidReason string     `json:"void_reason,omitempty"`
}

const (
	PaymentMethodCash       = "cash"
	PaymentMethodCreditCard = "credit_card"
	PaymentMethodDebitCard  = "debit_card"
	PaymentMethodMobile     = "mobile"
	PaymentMethodGiftCard   = "gift_card"
	PaymentMethodLoyalty    = "loyalty"
	PaymentMethodOther      = "other"
)

const (
	PaymentStatusPending           = "pending"
	PaymentStatusCompleted         = "completed"
	PaymentStatusFailed            = "failed"
	PaymentStatusRefunded          = "refunded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusCancelled         = "cancelled"
)

type Payment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method"`
	Status      string    `json:"status"`
	Reference   string    `json:"reference,omitempty"`
	CardLast4   string    `json:"card_last4,omitempty"`
	CardType    string    `json:"card_type,omitempty"`
	ProcessedBy string    `json:"processed_by"`
	CreatedAt   time.Time `json:"created_at"`
}

const (
	ShiftStatusOpen       = "open"
	ShiftStatusClosed     = "closed"
	ShiftStatusReconciled = "reconciled"
	ShiftStatusSuspended  = "suspended"
)

type Shift struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	StoreID string `json:"store_id"`
	Status  string `json:"status"`

	StartingCashCents int64 `json:"starting_cash_cents"`
	EndingCashCents   int64 `json:"ending_cash_cents"`

	CashSalesCents  int64 `json:"cash_sales_cents"`
	CardSalesCents  int64 `json:"card_sales_cents"`
	OtherSalesCents int64 `json:"other_sales_cents"`
	TotalSalesCents int64 `json:"total_sales_cents"`
	TotalOrders     int   `json:"total_orders"`

	ExpectedCashCents   int64 `json:"expected_cash_cents"`
	CashDifferenceCents int64 `json:"cash_difference_cents"`

	Notes string `json:"notes,omitempty"`

	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`

	AuditStamp
}

// Inventory transaction types. Rows are immutable once written.
const (
	InventoryTxSale         = "sale"
	InventoryTxReturn       = "return"
	InventoryTxAdjustment   = "adjustment"
	InventoryTxTransfer     = "transfer"
	InventoryTxDamage       = "damage"
	InventoryTxTheft        = "theft"
	InventoryTxInitialStock = "initial_stock"
	InventoryTxPurchase     = "purchase"
)

type InventoryTransaction struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	StoreID        string    `json:"store_id"`
	Type           string    `json:"type"`
	Quantity       int       `json:"quantity"` // signed: negative = stock out
	StockBefore    int       `json:"stock_before"`
	StockAfter     int       `json:"stock_after"`
	UnitCostCents  int64     `json:"unit_cost_cents,omitempty"`
	TotalCostCents int64     `json:"total_cost_cents,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
	SupplierID     string    `json:"supplier_id,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// Conversation states for the WhatsApp ordering flow.
const (
	ConvStateInitial              = "INITIAL"
	ConvStateAwaitingOrder        = "AWAITING_ORDER"
	ConvStateAwaitingName         = "AWAITING_NAME"
	ConvStateAwaitingAddress      = "AWAITING_ADDRESS"
	ConvStateAwaitingInstructions = "AWAITING_INSTRUCTIONS"
	ConvStateAwaitingConfirmation = "AWAITING_CONFIRMATION"
	ConvStateOrderPlaced          = "ORDER_PLACED"
)

type CartLine struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"` // inc GST, what the customer sees
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes,omitempty"`
}

// CustomerSession is the per-phone conversation state. It holds no foreign
// keys to persisted entities; after placement only the order number remains.
type CustomerSession struct {
	Phone                string     `json:"phone"`
	State                string     `json:"state"`
	Cart                 []CartLine `json:"cart"`
	CustomerName         string     `json:"customer_name,omitempty"`
	DeliveryAddress      string     `json:"delivery_address,omitempty"`
	DeliveryInstructions string     `json:"delivery_instructions,omitempty"`
	OrderNumber          string     `json:"order_number,omitempty"`
	// LastMessageID makes webhook redeliveries no-ops.
	LastMessageID string    `json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActivity  time.Time `json:"last_activity"`
}

func (s *CustomerSession) CartTotalCents() int64 {
	var total int64
	for _, line := range s.Cart {
		total += line.PriceCents * int64(line.Quantity)
	}
	return total
}

// Request/response shapes for the REST surface.

type OrderItemRequest struct {
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	DiscountCents int64  `json:"discount_cents,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type OrderCreateRequest struct {
	StoreID              string             `json:"store_id,omitempty"`
	Type                 string             `json:"type"`
	CustomerName         string             `json:"customer_name,omitempty"`
	CustomerPhone        string             `json:"customer_phone,omitempty"`
	TableNumber          string             `json:"table_number,omitempty"`
	DeliveryAddress      string             `json:"delivery_address,omitempty"`
	DeliveryInstructions string             `json:"delivery_instructions,omitempty"`
	DiscountCents        int64              `json:"discount_cents,omitempty"`
	Notes                string             `json:"notes,omitempty"`
	Items                []OrderItemRequest `json:"items"`
}

type VoidItemRequest struct {
	Reason string `json:"reason"`
}

type PaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Reference   string `json:"reference,omitempty"`
	CardLast4   string `json:"card_last4,omitempty"`
	CardType    string `json:"card_type,omitempty"`
}

type CompleteOrderRequest struct {
	PaidCents int64 `json:"paid_cents"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type ShiftOpenRequest struct {
	StoreID           string `json:"store_id,omitempty"`
	StartingCashCents int64  `json:"starting_cash_cents"`
}

type ShiftCloseRequest struct {
	EndingCashCents int64  `json:"ending_cash_cents"`
	Notes           string `json:"notes,omitempty"`
}

type StockAdjustmentRequest struct {
	ProductID     string `json:"product_id"`
	StoreID       string `json:"store_id,omitempty"`
	Delta         int    `json:"delta"`
	Reason        string `json:"reason"`
	AllowNegative bool   `json:"allow_negative,omitempty"`
	Notes         string `json:"notes,omitempty"`
	SupplierID    string `json:"supplier_id,omitempty"`
	UnitCostCents int64  `json:"unit_cost_cents,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
