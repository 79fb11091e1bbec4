package customers

import "time"

// Customer is an independent contact record. Invoices copy its details at issue time.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListResult carries customers plus the data-source availability flag.
type ListResult struct {
	Customers             []Customer `json:"customers"`
	DataSourceUnavailable bool       `json:"dataSourceUnavailable"`
}
