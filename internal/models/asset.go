package models

import "time"

// Synthetic assets used for brokerage cash and stock balances
const (
	AssetCash  = "Cash"
	AssetStock = "Stock"
)

// Asset represents an investable instrument or a holding placeholder
type Asset struct {
	ID          int       `json:"id"`
	Ticker      string    `json:"ticker"`
	DisplayName string    `json:"display_name"`
	TemplateID  int       `json:"template_id"`
	Benchmark   string    `json:"benchmark,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
