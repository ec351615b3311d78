package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

// SweetRepository is an in-memory repositories.SweetRepository
type SweetRepository struct {
	mu     sync.RWMutex
	sweets map[uuid.UUID]*models.Sweet
}

// NewSweetRepository creates an empty catalog
func NewSweetRepository() *SweetRepository {
	return &SweetRepository{sweets: make(map[uuid.UUID]*models.Sweet)}
}

func (r *SweetRepository) Create(ctx context.Context, sweet *models.Sweet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sweets[sweet.ID]; ok {
		return fmt.Errorf("%w: sweets_pkey", repositories.ErrDuplicate)
	}
	c := *sweet
	r.sweets[sweet.ID] = &c
	return nil
}

func (r *SweetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sweet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sweets[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	c := *s
	return &c, nil
}

// GetByIDForUpdate is GetByID; callers serialize through TransactionManager.
func (r *SweetRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sweet, error) {
	return r.GetByID(ctx, id)
}

func (r *SweetRepository) List(ctx context.Context) ([]*models.Sweet, error) {
	return r.Search(ctx, models.SweetFilter{})
}

func (r *SweetRepository) Search(ctx context.Context, filter models.SweetFilter) ([]*models.Sweet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Sweet{}
	for _, s := range r.sweets {
		if !matches(s, filter) {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *SweetRepository) Update(ctx context.Context, sweet *models.Sweet) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sweets[sweet.ID]; !ok {
		return repositories.ErrNotFound
	}
	c := *sweet
	r.sweets[sweet.ID] = &c
	return nil
}

func (r *SweetRepository) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.Sweet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sweets[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if s.Quantity+delta < 0 {
		return nil, fmt.Errorf("%w: sweets_quantity_check", repositories.ErrConstraint)
	}
	s.Quantity += delta
	s.UpdatedAt = time.Now().UTC()
	c := *s
	return &c, nil
}

func (r *SweetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sweets[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.sweets, id)
	return nil
}

func matches(s *models.Sweet, f models.SweetFilter) bool {
	if f.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.Name)) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(s.Category, f.Category) {
		return false
	}
	if f.MinPrice != nil && s.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && s.Price > *f.MaxPrice {
		return false
	}
	return true
}

// PurchaseRepository is an in-memory repositories.PurchaseRepository
type PurchaseRepository struct {
	mu        sync.RWMutex
	purchases []*models.Purchase
}

// NewPurchaseRepository creates an empty ledger
func NewPurchaseRepository() *PurchaseRepository {
	return &PurchaseRepository{}
}

func (r *PurchaseRepository) Create(ctx context.Context, p *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *p
	r.purchases = append(r.purchases, &c)
	return nil
}

func (r *PurchaseRepository) ListByCustomer(ctx context.Context, email string) ([]*models.Purchase, error) {
	return r.list(func(p *models.Purchase) bool { return p.CustomerEmail == email }), nil
}

func (r *PurchaseRepository) List(ctx context.Context) ([]*models.Purchase, error) {
	return r.list(func(*models.Purchase) bool { return true }), nil
}

// list returns matching purchases newest first; ties keep reverse insertion order.
func (r *PurchaseRepository) list(match func(*models.Purchase) bool) []*models.Purchase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*models.Purchase{}
	for i := len(r.purchases) - 1; i >= 0; i-- {
		if p := r.purchases[i]; match(p) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
