package domain

type ProductStatus string

const (
	StatusActive       ProductStatus = "active"
	StatusDiscontinued ProductStatus = "discontinued"
	StatusHidden       ProductStatus = "hidden"
)

type Product struct {
	ID     string
	Name   string
	Price  float64
	Stock  int
	Status ProductStatus
}

// Sellable reports whether the product may currently be ordered.
func (p Product) Sellable() bool {
	return p.Status == StatusActive
}
