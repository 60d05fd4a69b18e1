package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period comparison status constants
const (
	DeltaNew       = "NEW"
	DeltaClosed    = "CLOSED"
	DeltaChanged   = "CHANGED"
	DeltaUnchanged = "UNCHANGED"
)

// PeriodDelta compares one account_ticker key across two dates
type PeriodDelta struct {
	Key       string          `json:"key"`
	Earlier   decimal.Decimal `json:"earlier"`
	Later     decimal.Decimal `json:"later"`
	Change    decimal.Decimal `json:"change"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Status    string          `json:"status"`
}

// DatedTotal is an amount aggregated by a label on a date
type DatedTotal struct {
	Label    string          `json:"label"`
	AsOfDate time.Time       `json:"as_of_date"`
	Amount   decimal.Decimal `json:"amount"`
}

// ReportDates holds the stored pair of dates used by period comparison
type ReportDates struct {
	CurrentDate   time.Time `json:"current_date"`
	DateToCompare time.Time `json:"date_to_compare"`
}
