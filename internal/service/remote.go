package service

import (
	"context"

	"warungpos/internal/apperr"
	"warungpos/internal/conversation"
	"warungpos/internal/domain"
)

// PlaceRemoteOrder turns a confirmed WhatsApp session into a delivery order.
// Cart lines are re-validated against the live catalog; a line that can no
// longer be fulfilled fails with ItemUnavailableError so the conversation
// engine can drop it and keep the session alive.
func (s *Service) PlaceRemoteOrder(ctx context.Context, sess *domain.CustomerSession) (*domain.Order, error) {
	if len(sess.Cart) == 0 {
		return nil, apperr.BusinessRule(apperr.CodeInvalidInput, "cart is empty")
	}

	items := make([]domain.OrderItemRequest, 0, len(sess.Cart))
	for _, line := range sess.Cart {
		product, err := s.repo.GetProduct(ctx, line.ProductID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return nil, &conversation.ItemUnavailableError{ProductID: line.ProductID, Name: line.Name, Reason: "no longer sold"}
			}
			return nil, err
		}
		if !product.Active {
			return nil, &conversation.ItemUnavailableError{ProductID: line.ProductID, Name: line.Name, Reason: "not available"}
		}
		if product.TrackInventory && product.StockQuantity < line.Quantity {
			return nil, &conversation.ItemUnavailableError{ProductID: line.ProductID, Name: line.Name, Reason: "out of stock"}
		}
		items = append(items, domain.OrderItemRequest{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Notes:     line.Notes,
		})
	}

	ctx = WithActor(ctx, domain.Actor{Username: "whatsapp", Role: "system"})
	return s.CreateOrder(ctx, domain.OrderCreateRequest{
		Type:                 domain.OrderTypeDelivery,
		CustomerName:         sess.CustomerName,
		CustomerPhone:        sess.Phone,
		DeliveryAddress:      sess.DeliveryAddress,
		DeliveryInstructions: sess.DeliveryInstructions,
		Items:                items,
	})
}
