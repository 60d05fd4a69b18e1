package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetPosition is the gross amount of one asset held at a location on a date
type AssetPosition struct {
	ID        int             `json:"id"`
	AssetID   int             `json:"asset_id"`
	AsOfDate  time.Time       `json:"as_of_date"`
	Amount    decimal.Decimal `json:"amount"`
	HeldAt    string          `json:"held_at,omitempty"` // empty for the reallocation flow
	CreatedAt time.Time       `json:"created_at"`
}

// Decomposition attributes a slice of a position's amount to one template rule.
// Kind selects the table; Code2 is only stored for SectorIndustry rows.
type Decomposition struct {
	PositionID int             `json:"position_id"`
	Kind       RuleKind        `json:"kind"`
	Code1      string          `json:"code_1"`
	Code2      string          `json:"code_2,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// PositionDetail is a position joined with its asset and decompositions
type PositionDetail struct {
	AssetPosition
	Ticker         string          `json:"ticker"`
	Decompositions []Decomposition `json:"decompositions,omitempty"`
}

// GainHistory holds trailing-window percentage gains for a ticker on a date
type GainHistory struct {
	Ticker     string          `json:"ticker"`
	GainDate   time.Time       `json:"gain_date"`
	OneWeek    decimal.Decimal `json:"one_week"`
	TwoWeek    decimal.Decimal `json:"two_week"`
	OneMonth   decimal.Decimal `json:"one_month"`
	ThreeMonth decimal.Decimal `json:"three_month"`
	SixMonth   decimal.Decimal `json:"six_month"`
	OneYear    decimal.Decimal `json:"one_year"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PriceDataDaily is a stored daily closing price
type PriceDataDaily struct {
	ID        int             `json:"id"`
	Symbol    string          `json:"symbol"`
	Date      time.Time       `json:"date"`
	Close     decimal.Decimal `json:"close"`
	CreatedAt time.Time       `json:"created_at"`
}
