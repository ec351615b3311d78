package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Sweet is a catalog item
type Sweet struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Category    string    `json:"category" db:"category"`
	Price       float64   `json:"price" db:"price"`
	Quantity    int       `json:"quantity" db:"quantity"`
	Description string    `json:"description,omitempty" db:"description"`
	ImageURL    string    `json:"imageUrl,omitempty" db:"image_url"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the table name for the Sweet model
func (Sweet) TableName() string {
	return "sweets"
}

// NewSweet creates a new Sweet instance
func NewSweet(name, category string, price float64, quantity int, description, imageURL string) *Sweet {
	now := time.Now().UTC()
	return &Sweet{
		ID:          uuid.New(),
		Name:        name,
		Category:    category,
		Price:       RoundCents(price),
		Quantity:    quantity,
		Description: description,
		ImageURL:    imageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// InStock reports whether n units can be sold
func (s *Sweet) InStock(n int) bool {
	return n > 0 && s.Quantity >= n
}

// SweetFilter narrows catalog searches. Zero values match everything.
type SweetFilter struct {
	Name     string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

// RoundCents rounds a currency amount to two decimal places
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
