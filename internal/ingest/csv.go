package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadCSV reads reference rows from CSV with a header naming either
// ticker, amount and held_at columns, or account_ticker ("<held_at>_<ticker>") and amount.
func ReadCSV(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty holdings file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	amountCol, ok := cols["amount"]
	if !ok {
		return nil, errors.New("holdings file has no amount column")
	}
	tickerCol, hasTicker := cols["ticker"]
	heldAtCol, hasHeldAt := cols["held_at"]
	accountTickerCol, hasAccountTicker := cols["account_ticker"]
	if !hasTicker && !hasAccountTicker {
		return nil, errors.New("holdings file needs a ticker or account_ticker column")
	}

	field := func(record []string, i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	var rows []RawRow
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		row := RawRow{Amount: field(record, amountCol), Row: line}
		if hasTicker {
			row.Ticker = field(record, tickerCol)
			if hasHeldAt {
				row.HeldAt = field(record, heldAtCol)
			}
		} else {
			accountTicker := field(record, accountTickerCol)
			if heldAt, ticker, found := strings.Cut(accountTicker, "_"); found {
				row.HeldAt, row.Ticker = heldAt, ticker
			} else {
				continue
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
