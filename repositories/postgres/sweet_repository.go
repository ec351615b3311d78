package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shinobiwanshin/Sweetify/models"
	"github.com/shinobiwanshin/Sweetify/repositories"
)

const sweetColumns = `id, name, category, price, quantity, COALESCE(description, ''), COALESCE(image_url, ''), created_at, updated_at`

// SweetRepository implements the repositories.SweetRepository interface
type SweetRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewSweetRepository creates a new sweet repository
func NewSweetRepository(db *DB, logger *zap.Logger) repositories.SweetRepository {
	return &SweetRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new sweet
func (r *SweetRepository) Create(ctx context.Context, sweet *models.Sweet) error {
	query := `
		INSERT INTO sweets (id, name, category, price, quantity, description, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		sweet.ID,
		sweet.Name,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		nullString(sweet.Description),
		nullString(sweet.ImageURL),
		sweet.CreatedAt,
		sweet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sweet: %w", translateError(err))
	}

	r.logger.Debug("sweet created", zap.String("id", sweet.ID.String()), zap.String("name", sweet.Name))
	return nil
}

// GetByID retrieves a sweet by ID
func (r *SweetRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sweet, error) {
	return r.getOne(ctx, `SELECT `+sweetColumns+` FROM sweets WHERE id = $1`, id)
}

// GetByIDForUpdate retrieves a sweet and locks its row
func (r *SweetRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Sweet, error) {
	return r.getOne(ctx, `SELECT `+sweetColumns+` FROM sweets WHERE id = $1 FOR UPDATE`, id)
}

// List retrieves all sweets ordered by name
func (r *SweetRepository) List(ctx context.Context) ([]*models.Sweet, error) {
	return r.query(ctx, `SELECT `+sweetColumns+` FROM sweets ORDER BY name, id`)
}

// Search retrieves sweets matching every set filter field
func (r *SweetRepository) Search(ctx context.Context, filter models.SweetFilter) ([]*models.Sweet, error) {
	var (
		conds []string
		args  []interface{}
	)
	where := func(format string, value interface{}) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if filter.Name != "" {
		where("name ILIKE $%d", "%"+escapeLike(filter.Name)+"%")
	}
	if filter.Category != "" {
		where("category ILIKE $%d", escapeLike(filter.Category))
	}
	if filter.MinPrice != nil {
		where("price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where("price <= $%d", *filter.MaxPrice)
	}

	query := `SELECT ` + sweetColumns + ` FROM sweets`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY name, id`

	return r.query(ctx, query, args...)
}

// Update overwrites the editable fields of a sweet
func (r *SweetRepository) Update(ctx context.Context, sweet *models.Sweet) error {
	query := `
		UPDATE sweets
		SET name = $2,
		    category = $3,
		    price = $4,
		    quantity = $5,
		    description = $6,
		    image_url = $7,
		    updated_at = $8
		WHERE id = $1
	`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query,
		sweet.ID,
		sweet.Name,
		sweet.Category,
		sweet.Price,
		sweet.Quantity,
		nullString(sweet.Description),
		nullString(sweet.ImageURL),
		sweet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update sweet: %w", translateError(err))
	}

	if err := requireRow(result); err != nil {
		return fmt.Errorf("failed to update sweet %s: %w", sweet.ID, err)
	}

	r.logger.Debug("sweet updated", zap.String("id", sweet.ID.String()))
	return nil
}

// AdjustQuantity adds delta to the stock in one statement
func (r *SweetRepository) AdjustQuantity(ctx context.Context, id uuid.UUID, delta int) (*models.Sweet, error) {
	query := `
		UPDATE sweets
		SET quantity = quantity + $2,
		    updated_at = $3
		WHERE id = $1
		RETURNING ` + sweetColumns

	sweet, err := r.getOne(ctx, query, id, delta, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	r.logger.Debug("sweet stock adjusted", zap.String("id", id.String()), zap.Int("delta", delta), zap.Int("quantity", sweet.Quantity))
	return sweet, nil
}

// Delete deletes a sweet
func (r *SweetRepository) Delete(ctx context.Context, id uuid.UUID) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM sweets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sweet: %w", translateError(err))
	}

	if err := requireRow(result); err != nil {
		return fmt.Errorf("failed to delete sweet %s: %w", id, err)
	}

	r.logger.Debug("sweet deleted", zap.String("id", id.String()))
	return nil
}

func (r *SweetRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.Sweet, error) {
	executor := GetExecutor(ctx, r.db)
	sweet, err := scanSweet(executor.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("failed to get sweet: %w", translateError(err))
	}
	return sweet, nil
}

func (r *SweetRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.Sweet, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sweets: %w", err)
	}
	defer rows.Close()

	sweets := []*models.Sweet{}
	for rows.Next() {
		sweet, err := scanSweet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sweet: %w", err)
		}
		sweets = append(sweets, sweet)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sweet rows: %w", err)
	}

	return sweets, nil
}

func scanSweet(row rowScanner) (*models.Sweet, error) {
	sweet := &models.Sweet{}
	err := row.Scan(
		&sweet.ID,
		&sweet.Name,
		&sweet.Category,
		&sweet.Price,
		&sweet.Quantity,
		&sweet.Description,
		&sweet.ImageURL,
		&sweet.CreatedAt,
		&sweet.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sweet, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func requireRow(result rowsAffecter) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// escapeLike escapes LIKE wildcards in user input
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
