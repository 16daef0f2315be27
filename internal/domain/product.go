package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string
	Name        string
	Description string
	Category    string
	Price       decimal.Decimal
	Images      []string
	Sizes       []string
	Stock       int
	CreatedAt   time.Time
}

// Snapshot returns the display fields a cart keeps for this product.
func (p Product) Snapshot() ProductSnapshot {
	s := ProductSnapshot{
		Name:         p.Name,
		CurrentPrice: p.Price,
	}
	if len(p.Images) > 0 {
		s.Image = p.Images[0]
	}
	return s
}

func (p Product) StockStatus() string {
	switch {
	case p.Stock <= 0:
		return "Out of Stock"
	case p.Stock < 5:
		return "Low Stock"
	default:
		return "In Stock"
	}
}
