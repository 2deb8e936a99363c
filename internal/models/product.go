package models

import "time"

// Product is the searchable view of a catalog item. The catalog collaborator
// owns the full product document; the search core reads these fields only.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Brand         string    `json:"brand,omitempty"`
	Category      string    `json:"category,omitempty"`
	Subcategory   string    `json:"subcategory,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Colors        []string  `json:"colors,omitempty"`
	Sizes         []string  `json:"sizes,omitempty"`
	Price         float64   `json:"price"`
	SalePrice     float64   `json:"sale_price,omitempty"`
	RatingAverage float64   `json:"rating_average"`
	RatingCount   int64     `json:"rating_count"`
	Inventory     int64     `json:"inventory"`
	Views         int64     `json:"views"`
	Likes         int64     `json:"likes"`
	Purchases     int64     `json:"purchases"`
	CreatedAt     time.Time `json:"created_at"`
}

// OnSale reports whether the product has a sale price strictly below list price.
func (p *Product) OnSale() bool {
	return p.SalePrice > 0 && p.SalePrice < p.Price
}

// InStock reports whether any inventory remains.
func (p *Product) InStock() bool {
	return p.Inventory > 0
}

// Filters is the structured filter set of one search request. All present
// fields are ANDed together. The zero value accepts every product.
type Filters struct {
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	MinPrice    *float64 `json:"min_price,omitempty"`
	MaxPrice    *float64 `json:"max_price,omitempty"`
	MinRating   *float64 `json:"min_rating,omitempty"`
	InStock     bool     `json:"in_stock,omitempty"`
	OnSale      bool     `json:"on_sale,omitempty"`
	Colors      []string `json:"colors,omitempty"`
	Sizes       []string `json:"sizes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// IsZero reports whether no filter field is set.
func (f *Filters) IsZero() bool {
	return f.Category == "" && f.Subcategory == "" && f.Brand == "" &&
		f.MinPrice == nil && f.MaxPrice == nil && f.MinRating == nil &&
		!f.InStock && !f.OnSale &&
		len(f.Colors) == 0 && len(f.Sizes) == 0 && len(f.Tags) == 0
}

// ProductEvent is a catalog change published on the product change topic.
type ProductEvent struct {
	Type      string    `json:"type"` // CREATE, UPDATE, DELETE
	ProductID string    `json:"product_id"`
	Product   *Product  `json:"product,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version"`
}
