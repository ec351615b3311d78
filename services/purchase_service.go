package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

// PurchaseService sells stock and keeps the purchase ledger
type PurchaseService struct {
	sweets    repositories.SweetRepository
	purchases repositories.PurchaseRepository
	txManager repositories.TransactionManager
	logger    *zap.Logger
}

// NewPurchaseService creates a PurchaseService
func NewPurchaseService(sweets repositories.SweetRepository, purchases repositories.PurchaseRepository, txManager repositories.TransactionManager, logger *zap.Logger) *PurchaseService {
	return &PurchaseService{sweets: sweets, purchases: purchases, txManager: txManager, logger: logger}
}

// Purchase sells quantity units of a sweet to customerEmail. The stock check,
// decrement and ledger insert commit together or not at all.
func (s *PurchaseService) Purchase(ctx context.Context, sweetID uuid.UUID, quantity int, customerEmail string) (*models.Purchase, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if customerEmail == "" {
		return nil, ErrUnauthorized
	}

	purchase, err := WithTransactionResult(ctx, s.txManager, func(ctx context.Context, tx repositories.Transaction) (*models.Purchase, error) {
		sweet, err := s.sweets.GetByIDForUpdate(ctx, sweetID)
		if err != nil {
			return nil, translateSweetError(err, "failed to lock sweet")
		}
		if !sweet.InStock(quantity) {
			return nil, ErrOutOfStock.Wrap(nil).WithDetail("available", sweet.Quantity)
		}

		if _, err := s.sweets.AdjustQuantity(ctx, sweetID, -quantity); err != nil {
			if errors.Is(err, repositories.ErrConstraint) {
				return nil, ErrOutOfStock
			}
			return nil, translateSweetError(err, "failed to decrement stock")
		}

		p := models.NewPurchase(sweet, quantity, customerEmail)
		if err := s.purchases.Create(ctx, p); err != nil {
			return nil, WrapInternal("failed to record purchase", err)
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("purchase completed",
		zap.String("purchase_id", purchase.ID.String()),
		zap.String("sweet_id", sweetID.String()),
		zap.Int("quantity", quantity))
	return purchase, nil
}

// ListForCustomer returns the customer's purchases, newest first
func (s *PurchaseService) ListForCustomer(ctx context.Context, customerEmail string) ([]*models.Purchase, error) {
	purchases, err := s.purchases.ListByCustomer(ctx, customerEmail)
	if err != nil {
		return nil, WrapInternal("failed to list purchases", err)
	}
	return purchases, nil
}

// ListAll returns every purchase, newest first
func (s *PurchaseService) ListAll(ctx context.Context) ([]*models.Purchase, error) {
	purchases, err := s.purchases.List(ctx)
	if err != nil {
		return nil, WrapInternal("failed to list purchases", err)
	}
	return purchases, nil
}
