package report

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	md "github.com/nao1215/markdown"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
)

// ComparisonMarkdown renders a period comparison
func ComparisonMarkdown(c *Comparison) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)

	doc.H1f("Period Comparison %s to %s", c.From.Format(models.DateLayout), c.To.Format(models.DateLayout))
	doc.Table(md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight},
		Header:    []string{md.Bold("Total"), c.EarlierTotal.StringFixed(2), c.LaterTotal.StringFixed(2), signed(c.LaterTotal.Sub(c.EarlierTotal))},
	})

	if len(c.Deltas) > 0 {
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignLeft},
			Header:    []string{"Account / Ticker", "Earlier", "Later", "Change", "Change %", "Status"},
		}
		for _, d := range c.Deltas {
			table.Rows = append(table.Rows, []string{
				d.Key,
				d.Earlier.StringFixed(2),
				d.Later.StringFixed(2),
				signed(d.Change),
				signed(d.ChangePct) + "%",
				d.Status,
			})
		}
		doc.H2("Positions")
		doc.Table(table)
	}
	return doc.String()
}

// TotalsMarkdown renders dated totals as a label-by-date grid
func TotalsMarkdown(title string, totals []models.DatedTotal) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1(title)

	if len(totals) == 0 {
		doc.PlainText(md.Italic("No data"))
		return doc.String()
	}

	var dates []time.Time
	seenDate := map[string]bool{}
	var labels []string
	seenLabel := map[string]bool{}
	cells := map[string]map[string]decimal.Decimal{}
	for _, t := range totals {
		day := t.AsOfDate.Format(models.DateLayout)
		if !seenDate[day] {
			seenDate[day] = true
			dates = append(dates, t.AsOfDate)
		}
		if !seenLabel[t.Label] {
			seenLabel[t.Label] = true
			labels = append(labels, t.Label)
		}
		if cells[t.Label] == nil {
			cells[t.Label] = map[string]decimal.Decimal{}
		}
		cells[t.Label][day] = cells[t.Label][day].Add(t.Amount)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	sort.Strings(labels)

	table := md.TableSet{
		Header:    []string{""},
		Alignment: []md.TableAlignment{md.AlignLeft},
	}
	columnTotals := make([]decimal.Decimal, len(dates))
	for _, d := range dates {
		table.Header = append(table.Header, d.Format(models.DateLayout))
		table.Alignment = append(table.Alignment, md.AlignRight)
	}
	for _, label := range labels {
		row := []string{label}
		for i, d := range dates {
			v := cells[label][d.Format(models.DateLayout)]
			columnTotals[i] = columnTotals[i].Add(v)
			row = append(row, v.StringFixed(2))
		}
		table.Rows = append(table.Rows, row)
	}
	totalRow := []string{md.Bold("Total")}
	for _, v := range columnTotals {
		totalRow = append(totalRow, md.Bold(v.StringFixed(2)))
	}
	table.Rows = append(table.Rows, totalRow)

	doc.Table(table)
	return doc.String()
}

// GainsMarkdown renders stored trailing gains
func GainsMarkdown(date time.Time, gains []*models.GainHistory) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1f("Gains as of %s", date.Format(models.DateLayout))

	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight, md.AlignRight},
		Header:    []string{"Ticker", "1W", "2W", "1M", "3M", "6M", "1Y"},
	}
	for _, g := range gains {
		table.Rows = append(table.Rows, []string{
			g.Ticker,
			signed(g.OneWeek) + "%",
			signed(g.TwoWeek) + "%",
			signed(g.OneMonth) + "%",
			signed(g.ThreeMonth) + "%",
			signed(g.SixMonth) + "%",
			signed(g.OneYear) + "%",
		})
	}
	doc.Table(table)
	return doc.String()
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

// TemplateMarkdown renders a template's rules
func TemplateMarkdown(templateID int, rules []models.TemplateDetail) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1f("Template %d", templateID)
	rulesTable(doc, rules)
	return doc.String()
}

// AssetMarkdown renders an asset with the rules of its template
func AssetMarkdown(asset *models.Asset, rules []models.TemplateDetail) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1f("%s (%d)", asset.Ticker, asset.ID)

	items := []string{
		"Name: " + asset.DisplayName,
		fmt.Sprintf("Template: %d", asset.TemplateID),
	}
	if asset.Benchmark != "" {
		items = append(items, "Benchmark: "+asset.Benchmark)
	}
	doc.BulletList(items...)
	rulesTable(doc, rules)
	return doc.String()
}

func rulesTable(doc *md.Markdown, rules []models.TemplateDetail) {
	if len(rules) == 0 {
		doc.PlainText(md.Italic("No rules"))
		return
	}
	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignLeft, md.AlignLeft, md.AlignLeft, md.AlignRight},
		Header:    []string{"Kind", "Code", "Industry", "Percentage"},
	}
	for _, r := range rules {
		code1, code2 := r.Codes()
		if r.Kind != models.KindSectorIndustry {
			code2 = ""
		}
		table.Rows = append(table.Rows, []string{r.Kind.String(), code1, code2, r.Percentage.StringFixed(2)})
	}
	doc.Table(table)
}

// PositionsMarkdown renders a date's positions with their allocation class split
func PositionsMarkdown(date time.Time, positions []*models.PositionDetail) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1f("Positions as of %s", date.Format(models.DateLayout))

	if len(positions) == 0 {
		doc.PlainText(md.Italic("No positions"))
		return doc.String()
	}

	table := md.TableSet{
		Alignment: []md.TableAlignment{md.AlignRight, md.AlignLeft, md.AlignLeft, md.AlignRight, md.AlignLeft},
		Header:    []string{"ID", "Ticker", "Held At", "Amount", "Allocation"},
	}
	total := decimal.Zero
	for _, p := range positions {
		var classes []string
		for _, d := range p.Decompositions {
			if d.Kind == models.KindAllocationClass {
				classes = append(classes, d.Code1+" "+d.Amount.StringFixed(2))
			}
		}
		total = total.Add(p.Amount)
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(p.ID),
			p.Ticker,
			p.HeldAt,
			p.Amount.StringFixed(2),
			strings.Join(classes, ", "),
		})
	}
	table.Rows = append(table.Rows, []string{"", md.Bold("Total"), "", md.Bold(total.StringFixed(2)), ""})
	doc.Table(table)
	return doc.String()
}
