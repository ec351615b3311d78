package models

import (
	"time"

	"github.com/google/uuid"
)

// Purchase records a completed sale. Name and unit price are copied from the
// sweet at purchase time so later catalog edits do not rewrite history.
type Purchase struct {
	ID            uuid.UUID `json:"id" db:"id"`
	SweetID       uuid.UUID `json:"sweetId" db:"sweet_id"`
	SweetName     string    `json:"sweetName" db:"sweet_name"`
	Quantity      int       `json:"quantity" db:"quantity"`
	PricePerUnit  float64   `json:"pricePerUnit" db:"price_per_unit"`
	TotalPrice    float64   `json:"totalPrice" db:"total_price"`
	CustomerEmail string    `json:"customerEmail" db:"customer_email"`
	CreatedAt     time.Time `json:"createdDate" db:"created_at"`
}

// TableName returns the table name for the Purchase model
func (Purchase) TableName() string {
	return "purchases"
}

// NewPurchase creates a purchase of quantity units of sweet
func NewPurchase(sweet *Sweet, quantity int, customerEmail string) *Purchase {
	return &Purchase{
		ID:            uuid.New(),
		SweetID:       sweet.ID,
		SweetName:     sweet.Name,
		Quantity:      quantity,
		PricePerUnit:  sweet.Price,
		TotalPrice:    RoundCents(sweet.Price * float64(quantity)),
		CustomerEmail: customerEmail,
		CreatedAt:     time.Now().UTC(),
	}
}
