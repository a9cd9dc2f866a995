// Package httpapi exposes the REST surface and the WhatsApp webhook. Handlers
// translate wire shapes, check roles, and delegate to the service; every
// response uses the success/error envelope from respond.go.
package httpapi

import (
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"warungpos/internal/apperr"
	"warungpos/internal/conversation"
	"warungpos/internal/domain"
	"warungpos/internal/service"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	engine        *conversation.Engine
	allowedOrigin string
	verifyToken   string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, engine *conversation.Engine, allowedOrigin string, verifyToken string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		engine:        engine,
		allowedOrigin: allowedOrigin,
		verifyToken:   verifyToken,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/users", a.requireAuth(a.handleUsers, "admin"))
	mux.HandleFunc("/api/v1/auth/change-password", a.requireAuth(a.handleChangePassword, "cashier", "admin"))

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/search", a.requireAuth(a.handleProductSearch, "cashier", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/inventory/adjustments", a.requireAuth(a.handleStockAdjustment, "admin"))
	mux.HandleFunc("/api/v1/inventory/transactions", a.requireAuth(a.handleInventoryTransactions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, "cashier", "admin"))
	mux.HandleFunc("/api/v1/orders/number/", a.requireAuth(a.handleOrderByNumber, "cashier", "admin"))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions, "cashier", "admin"))
	mux.HandleFunc("/api/v1/payments/", a.requireAuth(a.handlePaymentActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/shifts/open", a.requireAuth(a.handleShiftOpen, "cashier", "admin"))
	mux.HandleFunc("/api/v1/shifts/close", a.requireAuth(a.handleShiftClose, "cashier", "admin"))
	mux.HandleFunc("/api/v1/shifts/current", a.requireAuth(a.handleShiftCurrent, "cashier", "admin"))
	mux.HandleFunc("/api/v1/shifts/", a.requireAuth(a.handleShiftActions, "cashier", "admin"))

	mux.HandleFunc("/api/v1/audit-logs", a.requireAuth(a.handleAuditLogs, "admin"))

	mux.HandleFunc("/webhook/whatsapp", a.handleWebhook)

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeErrStatus(w, http.StatusUnauthorized, apperr.CodeUnauthorized, "missing bearer token")
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeErr(w, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeErrStatus(w, http.StatusForbidden, apperr.CodeUnauthorized, "forbidden role")
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeErrStatus(w, http.StatusTooManyRequests, apperr.CodeUnauthorized, "too many login attempts")
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	user, err := a.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	resp, err := a.auth.IssueToken(user)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, resp)
}

type userCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req userCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := a.service.RegisterUser(r.Context(), req.Username, req.Password, req.Role); err != nil {
		writeErr(w, err)
		return
	}
	writeMessage(w, http.StatusCreated, "user created")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	actor := service.ActorFromContext(r.Context())
	if err := a.service.ChangePassword(r.Context(), actor.Username, req.CurrentPassword, req.NewPassword); err != nil {
		writeErr(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		if service.ActorFromContext(r.Context()).Role != "admin" {
			writeErrStatus(w, http.StatusForbidden, apperr.CodeUnauthorized, "forbidden role")
			return
		}
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "query parameter q is required"))
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 10, 50)
	products, err := a.service.SearchProducts(r.Context(), query, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"products": products})
}

type priceUpdateRequest struct {
	PriceExGstCents int64 `json:"price_ex_gst_cents"`
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/products/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "product id required"))
		return
	}

	if action, ok := strings.CutSuffix(tail, "/price"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if service.ActorFromContext(r.Context()).Role != "admin" {
			writeErrStatus(w, http.StatusForbidden, apperr.CodeUnauthorized, "forbidden role")
			return
		}
		var req priceUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		product, err := a.service.SetProductPrice(r.Context(), strings.Trim(action, "/"), req.PriceExGstCents)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"product": product})
		return
	}

	if action, ok := strings.CutSuffix(tail, "/deactivate"); ok {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if service.ActorFromContext(r.Context()).Role != "admin" {
			writeErrStatus(w, http.StatusForbidden, apperr.CodeUnauthorized, "forbidden role")
			return
		}
		product, err := a.service.DeactivateProduct(r.Context(), strings.Trim(action, "/"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"product": product})
		return
	}

	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	product, err := a.service.GetProduct(r.Context(), tail)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleStockAdjustment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.StockAdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	applied, err := a.service.AdjustStock(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"transaction": applied})
}

func (a *API) handleInventoryTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	productID := strings.TrimSpace(r.URL.Query().Get("product_id"))
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	transactions, err := a.service.InventoryHistory(r.Context(), productID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.OrderCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	order, err := a.service.CreateOrder(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleOrderByNumber(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	number := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/number/"), "/")
	if number == "" {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "order number required"))
		return
	}
	order, err := a.service.GetOrderByNumber(r.Context(), number)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/orders/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "order id required"))
		return
	}

	parts := strings.Split(tail, "/")
	orderID := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			includeDeleted := strings.EqualFold(r.URL.Query().Get("include_deleted"), "true")
			order, err := a.service.GetOrder(r.Context(), orderID, includeDeleted)
			if err != nil {
				writeErr(w, err)
				return
			}
			writeData(w, http.StatusOK, map[string]any{"order": order})
		case http.MethodDelete:
			if err := a.service.DeleteOrder(r.Context(), orderID); err != nil {
				writeErr(w, err)
				return
			}
			writeMessage(w, http.StatusOK, "order deleted")
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	// POST /orders/{id}/items/{itemId}/void
	if len(parts) == 4 && parts[1] == "items" && parts[3] == "void" {
		var req domain.VoidItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		order, err := a.service.VoidItem(r.Context(), orderID, parts[2], req.Reason)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
		return
	}

	if len(parts) != 2 {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "unknown order action"))
		return
	}

	switch parts[1] {
	case "items":
		var req domain.OrderItemRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		order, err := a.service.AddItem(r.Context(), orderID, req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	case "payments":
		var req domain.PaymentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		order, err := a.service.RecordPayment(r.Context(), orderID, req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	case "complete":
		var req domain.CompleteOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		order, err := a.service.CompleteOrder(r.Context(), orderID, req)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	case "cancel":
		var req domain.CancelOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		order, err := a.service.CancelOrder(r.Context(), orderID, req.Reason)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	case "refund":
		var req domain.CancelOrderRequest
		if err := decodeJSON(r, &req); err != nil {
			writeErr(w, err)
			return
		}
		order, err := a.service.RefundOrder(r.Context(), orderID, req.Reason)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	case "hold":
		order, err := a.service.HoldOrder(r.Context(), orderID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	case "resume":
		order, err := a.service.ResumeOrder(r.Context(), orderID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"order": order})
	default:
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "unknown order action %q", parts[1]))
	}
}

type paymentStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handlePaymentActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	prefix := "/api/v1/payments/"
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	paymentID, ok := strings.CutSuffix(tail, "/status")
	if !ok || strings.Trim(paymentID, "/") == "" {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "payment id required"))
		return
	}

	var req paymentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	order, err := a.service.SetPaymentStatus(r.Context(), strings.Trim(paymentID, "/"), req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"order": order})
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ShiftOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	shift, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusCreated, map[string]any{"shift": shift})
}

// handleShiftClose closes the acting user's open shift.
func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ShiftCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	current, err := a.service.CurrentShift(r.Context())
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			writeErr(w, apperr.BusinessRule(apperr.CodeNoActiveShift, "no open shift for this user"))
			return
		}
		writeErr(w, err)
		return
	}
	shift, err := a.service.CloseShift(r.Context(), current.ID, req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleShiftCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	shift, err := a.service.CurrentShift(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleShiftActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/shifts/"
	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	parts := strings.Split(tail, "/")
	if tail == "" || len(parts) > 2 {
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "invalid shift path"))
		return
	}
	shiftID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		shift, err := a.service.GetShift(r.Context(), shiftID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"shift": shift})
		return
	}

	if parts[1] == "orders" {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		orders, err := a.service.ShiftOrders(r.Context(), shiftID)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]any{"orders": orders})
		return
	}

	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var (
		shift *domain.Shift
		err   error
	)
	switch parts[1] {
	case "reconcile":
		shift, err = a.service.ReconcileShift(r.Context(), shiftID)
	case "suspend":
		shift, err = a.service.SuspendShift(r.Context(), shiftID)
	case "resume":
		shift, err = a.service.ResumeShift(r.Context(), shiftID)
	default:
		writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "unknown shift action %q", parts[1]))
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"shift": shift})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now
	if raw := r.URL.Query().Get("date"); raw != "" {
		day, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeErr(w, apperr.Validation(apperr.CodeInvalidInput, "date must be YYYY-MM-DD"))
			return
		}
		from = day
		to = day.Add(24 * time.Hour)
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.AuditLogs(r.Context(), from, to, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
