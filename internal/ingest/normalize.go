package ingest

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// EndOfPortfolio marks the last row of a reference sheet
const EndOfPortfolio = "ENDOFPORTFOLIO"

// StockAccounts are brokerage headers whose sections carry Cash, Stock and Total rows
var StockAccounts = []string{"Etrade", "Ameritrade", "TradeStation", "Robinhood"}

// FundMapping renames tickers before lookup
var FundMapping = map[string]string{
	"VMRXX": "VMMXX",
}

var amountReplacer = strings.NewReplacer(
	"<b>", "",
	"</b>", "",
	"&nbsp;", "",
	"$", "",
	"</strong>", "",
	"<strong>", "",
	`<font color="red">`, "",
	"</font>", "",
	"&mdash;", "",
	",", "",
)

// RawRow is one unprocessed reference-sheet row
type RawRow struct {
	Ticker string
	Amount string
	HeldAt string
	Row    int
}

// RowError is a row that could not be normalized
type RowError struct {
	Row    int
	Ticker string
	Err    error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Ticker, e.Err)
}

// ParseAmount strips markup, currency symbols and thousands separators. Blank is zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountReplacer.Replace(s))
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, nil
	}
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + strings.Trim(cleaned, "()")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

// FilterTicker returns "" for tickers that are page furniture rather than holdings
func FilterTicker(ticker string) string {
	ticker = strings.TrimSpace(ticker)
	switch {
	case strings.Contains(ticker, "Go to Site |"),
		strings.HasPrefix(ticker, "Symbol"),
		strings.HasPrefix(ticker, "Total"),
		strings.HasPrefix(strings.ToLower(ticker), "samir"):
		return ""
	}
	return ticker
}

func isStockAccount(ticker string) bool {
	for _, a := range StockAccounts {
		if ticker == a {
			return true
		}
	}
	return false
}

// Normalize turns reference-sheet rows into holdings.
//
// Rows after ENDOFPORTFOLIO are ignored. A stock-account header opens a section in which
// Cash is kept as the Cash asset held at that account, Stock is ignored and Total produces
// a Stock holding of Total - Cash when positive; the section ends at Total. Elsewhere total
// rows and filtered tickers are dropped, fund mappings are applied, and rows without a
// location or with a zero amount are skipped.
func Normalize(rows []RawRow, log zerolog.Logger) ([]models.Holding, []RowError) {
	var holdings []models.Holding
	var rowErrs []RowError

	section := ""
	sectionCash := make(map[string]decimal.Decimal)

	for _, r := range rows {
		ticker := strings.TrimSpace(r.Ticker)
		if ticker == "" {
			continue
		}
		if ticker == EndOfPortfolio {
			break
		}
		if isStockAccount(ticker) {
			section = ticker
			continue
		}

		if section != "" {
			switch ticker {
			case models.AssetCash:
				amount, err := ParseAmount(r.Amount)
				if err != nil {
					rowErrs = append(rowErrs, RowError{Row: r.Row, Ticker: ticker, Err: err})
					continue
				}
				sectionCash[section] = amount
				if amount.IsPositive() {
					holdings = append(holdings, models.Holding{Ticker: models.AssetCash, Amount: amount, HeldAt: section, Row: r.Row})
				}
			case "Total":
				total, err := ParseAmount(r.Amount)
				if err != nil {
					rowErrs = append(rowErrs, RowError{Row: r.Row, Ticker: ticker, Err: err})
				} else if stock := total.Sub(sectionCash[section]); stock.IsPositive() {
					holdings = append(holdings, models.Holding{Ticker: models.AssetStock, Amount: stock, HeldAt: section, Row: r.Row})
				}
				section = ""
			}
			continue
		}

		if strings.Contains(ticker, "Total") || strings.Contains(ticker, "total") {
			continue
		}
		if ticker = FilterTicker(ticker); ticker == "" {
			continue
		}
		if mapped, ok := FundMapping[ticker]; ok {
			log.Debug().Str("from", ticker).Str("to", mapped).Msg("Mapped fund ticker")
			ticker = mapped
		}

		heldAt := strings.TrimSpace(r.HeldAt)
		if heldAt == "" {
			log.Warn().Str("ticker", ticker).Int("row", r.Row).Msg("No held-at location, skipping")
			continue
		}

		amount, err := ParseAmount(r.Amount)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: r.Row, Ticker: ticker, Err: err})
			continue
		}
		if amount.IsZero() {
			continue
		}

		holdings = append(holdings, models.Holding{Ticker: ticker, Amount: amount, HeldAt: heldAt, Row: r.Row})
	}
	return holdings, rowErrs
}
