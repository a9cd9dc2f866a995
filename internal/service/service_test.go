package service

import (
	"context"
	"testing"

	"warungpos/internal/domain"
	"warungpos/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), "main-store", 0.10)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: "cashier"})
}

func createTestProduct(t *testing.T, svc *Service, sku string, priceExGstCents int64, track bool, stock int) *domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		SKU:             sku,
		Name:            "Test " + sku,
		Category:        "test",
		PriceExGstCents: priceExGstCents,
		CostCents:       100,
		TrackInventory:  track,
		InitialStock:    stock,
	})
	if err != nil {
		t.Fatalf("create product %s failed: %v", sku, err)
	}
	return product
}

func createTestOrder(t *testing.T, svc *Service, ctx context.Context, productID string, qty int) *domain.Order {
	t.Helper()
	order, err := svc.CreateOrder(ctx, domain.OrderCreateRequest{
		Type: domain.OrderTypeTakeAway,
		Items: []domain.OrderItemRequest{
			{ProductID: productID, Quantity: qty},
		},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}
