package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
	"github.com/shinobiwanshin/Sweetify/utils"
)

// SweetRequest is the body of POST and PUT /api/sweets
type SweetRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Category    string  `json:"category" validate:"required,max=100"`
	Price       float64 `json:"price" validate:"gt=0"`
	Quantity    int     `json:"quantity" validate:"gte=0"`
	Description string  `json:"description" validate:"max=2000"`
	ImageURL    string  `json:"imageUrl" validate:"omitempty,url"`
}

// SweetService manages the catalog
type SweetService struct {
	sweets repositories.SweetRepository
	logger *zap.Logger
}

// NewSweetService creates a SweetService
func NewSweetService(sweets repositories.SweetRepository, logger *zap.Logger) *SweetService {
	return &SweetService{sweets: sweets, logger: logger}
}

func (s *SweetService) List(ctx context.Context) ([]*models.Sweet, error) {
	sweets, err := s.sweets.List(ctx)
	if err != nil {
		return nil, WrapInternal("failed to list sweets", err)
	}
	return sweets, nil
}

func (s *SweetService) Get(ctx context.Context, id uuid.UUID) (*models.Sweet, error) {
	sweet, err := s.sweets.GetByID(ctx, id)
	if err != nil {
		return nil, translateSweetError(err, "failed to get sweet")
	}
	return sweet, nil
}

// Search applies filter; an inverted price range is rejected.
func (s *SweetService) Search(ctx context.Context, filter models.SweetFilter) ([]*models.Sweet, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, ErrInvalidInput.Wrap(errors.New("minPrice exceeds maxPrice"))
	}
	filter.Name = strings.TrimSpace(filter.Name)
	filter.Category = strings.TrimSpace(filter.Category)

	sweets, err := s.sweets.Search(ctx, filter)
	if err != nil {
		return nil, WrapInternal("failed to search sweets", err)
	}
	return sweets, nil
}

func (s *SweetService) Create(ctx context.Context, req SweetRequest) (*models.Sweet, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, ErrInvalidInput.Wrap(err)
	}
	sweet := models.NewSweet(strings.TrimSpace(req.Name), strings.TrimSpace(req.Category), req.Price, req.Quantity, req.Description, req.ImageURL)
	if err := s.sweets.Create(ctx, sweet); err != nil {
		return nil, WrapInternal("failed to create sweet", err)
	}
	s.logger.Info("sweet created", zap.String("sweet_id", sweet.ID.String()), zap.String("name", sweet.Name))
	return sweet, nil
}

func (s *SweetService) Update(ctx context.Context, id uuid.UUID, req SweetRequest) (*models.Sweet, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, ErrInvalidInput.Wrap(err)
	}
	sweet, err := s.sweets.GetByID(ctx, id)
	if err != nil {
		return nil, translateSweetError(err, "failed to get sweet")
	}

	sweet.Name = strings.TrimSpace(req.Name)
	sweet.Category = strings.TrimSpace(req.Category)
	sweet.Price = models.RoundCents(req.Price)
	sweet.Quantity = req.Quantity
	sweet.Description = req.Description
	sweet.ImageURL = req.ImageURL
	sweet.UpdatedAt = time.Now().UTC()

	if err := s.sweets.Update(ctx, sweet); err != nil {
		return nil, translateSweetError(err, "failed to update sweet")
	}
	return sweet, nil
}

func (s *SweetService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.sweets.Delete(ctx, id); err != nil {
		return translateSweetError(err, "failed to delete sweet")
	}
	s.logger.Info("sweet deleted", zap.String("sweet_id", id.String()))
	return nil
}

// Restock adds quantity units to the stock
func (s *SweetService) Restock(ctx context.Context, id uuid.UUID, quantity int) (*models.Sweet, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	sweet, err := s.sweets.AdjustQuantity(ctx, id, quantity)
	if err != nil {
		return nil, translateSweetError(err, "failed to restock sweet")
	}
	s.logger.Info("sweet restocked",
		zap.String("sweet_id", id.String()),
		zap.Int("added", quantity),
		zap.Int("quantity", sweet.Quantity))
	return sweet, nil
}

func translateSweetError(err error, message string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrSweetNotFound
	}
	return WrapInternal(message, err)
}
