package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

const purchaseColumns = `id, sweet_id, sweet_name, quantity, price_per_unit, total_price, customer_email, created_at`

// PurchaseRepository implements the repositories.PurchaseRepository interface
type PurchaseRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPurchaseRepository creates a new purchase repository
func NewPurchaseRepository(db *DB, logger *zap.Logger) repositories.PurchaseRepository {
	return &PurchaseRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a purchase
func (r *PurchaseRepository) Create(ctx context.Context, p *models.Purchase) error {
	query := `
		INSERT INTO purchases (` + purchaseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		p.ID,
		p.SweetID,
		p.SweetName,
		p.Quantity,
		p.PricePerUnit,
		p.TotalPrice,
		p.CustomerEmail,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", translateError(err))
	}

	r.logger.Debug("purchase recorded",
		zap.String("id", p.ID.String()),
		zap.String("sweet_id", p.SweetID.String()),
		zap.Int("quantity", p.Quantity),
	)
	return nil
}

// ListByCustomer retrieves a customer's purchases, newest first
func (r *PurchaseRepository) ListByCustomer(ctx context.Context, email string) ([]*models.Purchase, error) {
	return r.query(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE customer_email = $1 ORDER BY created_at DESC`, email)
}

// List retrieves all purchases, newest first
func (r *PurchaseRepository) List(ctx context.Context) ([]*models.Purchase, error) {
	return r.query(ctx, `SELECT `+purchaseColumns+` FROM purchases ORDER BY created_at DESC`)
}

func (r *PurchaseRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Purchase, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	purchases := []*models.Purchase{}
	for rows.Next() {
		p := &models.Purchase{}
		err := rows.Scan(
			&p.ID,
			&p.SweetID,
			&p.SweetName,
			&p.Quantity,
			&p.PricePerUnit,
			&p.TotalPrice,
			&p.CustomerEmail,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchase rows: %w", err)
	}

	return purchases, nil
}
