package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used on every boundary
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// TruncateDate drops the clock part of t, keeping its calendar date
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Holding is one normalized reference-sheet row
type Holding struct {
	Ticker string          `json:"ticker"`
	Amount decimal.Decimal `json:"amount"`
	HeldAt string          `json:"held_at"`
	Row    int             `json:"row,omitempty"`
}

// HoldingsEvent is a Kafka message carrying a holdings snapshot for one as-of date
type HoldingsEvent struct {
	EventType string            `json:"event_type"`
	Source    string            `json:"source"`
	Timestamp string            `json:"timestamp"`
	Data      HoldingsEventData `json:"data"`
}

// HoldingsEventData contains the snapshot rows
type HoldingsEventData struct {
	AsOfDate        string        `json:"as_of_date"`
	ReplaceExisting bool          `json:"replace_existing"`
	Rows            []HoldingData `json:"rows"`
}

// HoldingData is one raw row of a holdings snapshot
type HoldingData struct {
	Ticker string `json:"ticker"`
	Amount string `json:"amount"`
	HeldAt string `json:"held_at"`
}

// Ledger event type constants
const (
	EventHoldingsSnapshot    = "HOLDINGS_SNAPSHOT"
	EventAllocationCompleted = "ALLOCATION_COMPLETED"
	EventAssetInfoDeleted    = "ASSET_INFO_DELETED"
)

// LedgerEvent is published after a batch run or a date deletion
type LedgerEvent struct {
	EventType string    `json:"event_type"`
	RunID     string    `json:"run_id"`
	AsOfDate  string    `json:"as_of_date"`
	Processed int       `json:"processed"`
	Errors    int       `json:"errors"`
	Timestamp time.Time `json:"timestamp"`
}
