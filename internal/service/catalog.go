package service

import (
	"context"
	"fmt"
	"strings"

	"warungpos/internal/apperr"
	"warungpos/internal/domain"
	"warungpos/internal/tax"
	"warungpos/internal/xid"
)

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.SKU) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "name and sku are required")
	}
	if req.PriceExGstCents < 0 || req.CostCents < 0 || req.InitialStock < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "price, cost and initial stock must not be negative")
	}

	storeID := req.StoreID
	if storeID == "" {
		storeID = s.storeID
	}

	ex, gst, inc := tax.PriceFromExGst(req.PriceExGstCents, s.gstRate)
	product := domain.Product{
		ID:               xid.New("prod"),
		StoreID:          storeID,
		SKU:              strings.TrimSpace(req.SKU),
		Name:             strings.TrimSpace(req.Name),
		Category:         strings.TrimSpace(req.Category),
		PriceExGstCents:  ex,
		GstCents:         gst,
		PriceIncGstCents: inc,
		GstRate:          s.gstRate,
		CostCents:        req.CostCents,
		Active:           true,
		TrackInventory:   req.TrackInventory,
	}
	s.stampNew(ctx, &product.AuditStamp)

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	if req.TrackInventory && req.InitialStock > 0 {
		actor := ActorFromContext(ctx)
		if _, err := s.repo.ApplyStockDelta(ctx, domain.InventoryTransaction{
			ID:            xid.New("invtx"),
			ProductID:     created.ID,
			StoreID:       storeID,
			Type:          domain.InventoryTxInitialStock,
			Quantity:      req.InitialStock,
			UnitCostCents: req.CostCents,
			CreatedBy:     actor.Username,
			CreatedAt:     s.now(),
		}, false); err != nil {
			return nil, err
		}
		created.StockQuantity = req.InitialStock
	}

	s.logAudit(ctx, "product.create", "product", created.ID, created.SKU)
	return created, nil
}

// SetProductPrice recomputes the GST triple from a new ex-GST price.
func (s *Service) SetProductPrice(ctx context.Context, productID string, priceExGstCents int64) (*domain.Product, error) {
	if priceExGstCents < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "price must not be negative")
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	product.PriceExGstCents, product.GstCents, product.PriceIncGstCents = tax.PriceFromExGst(priceExGstCents, product.GstRate)
	s.stampUpdate(ctx, &product.AuditStamp)

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product.price", "product", productID, fmt.Sprintf("ex_gst=%d", priceExGstCents))
	return updated, nil
}

func (s *Service) DeactivateProduct(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	product.Active = false
	s.stampUpdate(ctx, &product.AuditStamp)

	updated, err := s.repo.UpdateProduct(ctx, *product)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "product.deactivate", "product", productID, product.SKU)
	return updated, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.storeID)
}

func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, s.storeID, query, limit)
}

// adjustmentTypes are the reasons operators may book manual stock movements.
var adjustmentTypes = map[string]bool{
	domain.InventoryTxAdjustment: true,
	domain.InventoryTxTransfer:   true,
	domain.InventoryTxDamage:     true,
	domain.InventoryTxTheft:      true,
	domain.InventoryTxPurchase:   true,
}

// AdjustStock books a manual inventory movement. Negative-going movements
// need AllowNegative to push stock below zero; the sale path never may.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustmentRequest) (*domain.InventoryTransaction, error) {
	if req.ProductID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "product_id is required")
	}
	if req.Delta == 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "delta must not be zero")
	}
	if !adjustmentTypes[req.Reason] {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "unknown adjustment reason %q", req.Reason)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.TrackInventory {
		return nil, apperr.BusinessRule(apperr.CodeInvalidStatus, "product %s does not track inventory", product.SKU)
	}

	storeID := req.StoreID
	if storeID == "" {
		storeID = s.storeID
	}
	actor := ActorFromContext(ctx)

	applied, err := s.repo.ApplyStockDelta(ctx, domain.InventoryTransaction{
		ID:            xid.New("invtx"),
		ProductID:     req.ProductID,
		StoreID:       storeID,
		Type:          req.Reason,
		Quantity:      req.Delta,
		UnitCostCents: req.UnitCostCents,
		SupplierID:    req.SupplierID,
		Notes:         req.Notes,
		CreatedBy:     actor.Username,
		CreatedAt:     s.now(),
	}, req.AllowNegative)
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, "inventory.adjust", "product", req.ProductID, fmt.Sprintf("%s %+d", req.Reason, req.Delta))
	return applied, nil
}

func (s *Service) InventoryHistory(ctx context.Context, productID string, limit int) ([]domain.InventoryTransaction, error) {
	return s.repo.ListInventoryTransactions(ctx, productID, limit)
}
