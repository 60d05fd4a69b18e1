package cli

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"
	md "github.com/nao1215/markdown"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/ingest"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/report"
	"github.com/trogers1052/asset-allocation/internal/retention"
)

type processCmd struct {
	app     *App
	date    string
	file    string
	replace bool
	atomic  bool
}

func (*processCmd) Name() string     { return "process" }
func (*processCmd) Synopsis() string { return "allocate a reference holdings sheet" }
func (*processCmd) Usage() string {
	return `assetalloc process -d <date> -f <holdings.csv> [-replace] [-atomic]

  Normalizes the holdings sheet and allocates every row on the date.
  Rows that fail are reported and the remaining rows are still allocated,
  unless -atomic is set, in which case every row shares one transaction.
`
}

func (c *processCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "As-of date (YYYY-MM-DD)")
	f.StringVar(&c.file, "f", "", "Holdings CSV file")
	f.BoolVar(&c.replace, "replace", false, "Delete the date's ledger before allocating")
	f.BoolVar(&c.atomic, "atomic", false, "Run all rows in one transaction")
}

func (c *processCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.date == "" || c.file == "" {
		return usage("-d and -f are required")
	}
	asOf, err := models.ParseDate(c.date)
	if err != nil {
		return usage("invalid date %q", c.date)
	}

	file, err := os.Open(c.file)
	if err != nil {
		return fail(err)
	}
	rows, err := ingest.ReadCSV(file)
	file.Close()
	if err != nil {
		return fail(err)
	}

	s, err := c.app.services()
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	summary, err := s.runner.Run(ctx, rows, ingest.Options{AsOfDate: asOf, ReplaceExisting: c.replace, Atomic: c.atomic})
	if err != nil {
		return fail(err)
	}
	c.app.printMarkdown(summaryMarkdown(summary))
	if summary.Errors > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func summaryMarkdown(s *ingest.Summary) string {
	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1f("Run %s", s.AsOfDate)

	items := []string{
		fmt.Sprintf("Processed: %d", s.Processed),
		fmt.Sprintf("Created: %d", s.Created),
		fmt.Sprintf("Merged: %d", s.Merged),
		fmt.Sprintf("Unchanged: %d", s.Unchanged),
		fmt.Sprintf("Errors: %d", s.Errors),
	}
	if s.Deleted != nil {
		items = append(items, deletedItems(s.Deleted)...)
	}
	doc.BulletList(items...)

	if len(s.Failures) > 0 {
		table := md.TableSet{
			Alignment: []md.TableAlignment{md.AlignRight, md.AlignLeft, md.AlignLeft, md.AlignLeft},
			Header:    []string{"Row", "Ticker", "Held At", "Error"},
		}
		for _, f := range s.Failures {
			table.Rows = append(table.Rows, []string{strconv.Itoa(f.Row), f.Ticker, f.HeldAt, f.Error})
		}
		doc.H2("Failures")
		doc.Table(table)
	}
	doc.PlainText(md.Italic("run " + s.RunID))
	return doc.String()
}

func deletedItems(r *retention.Result) []string {
	return []string{
		fmt.Sprintf("Positions deleted: %d", r.Positions),
		fmt.Sprintf("Gains deleted on date: %d", r.GainsOnDate),
		fmt.Sprintf("Gains expired before %s: %d", r.Cutoff.Format(models.DateLayout), r.GainsExpired),
	}
}

type reallocateCmd struct {
	app     *App
	assetID int
	ticker  string
	date    string
	amount  string
}

func (*reallocateCmd) Name() string     { return "reallocate" }
func (*reallocateCmd) Synopsis() string { return "replace an asset's position on a date" }
func (*reallocateCmd) Usage() string {
	return `assetalloc reallocate (-id <asset id> | -t <ticker>) -d <date> -a <amount>

  Deletes the asset's positions on the date and allocates the amount across its template.
`
}

func (c *reallocateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.assetID, "id", 0, "Asset id")
	f.StringVar(&c.ticker, "t", "", "Ticker")
	f.StringVar(&c.date, "d", "", "As-of date (YYYY-MM-DD)")
	f.StringVar(&c.amount, "a", "", "Amount")
}

func (c *reallocateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.assetID == 0 && c.ticker == "" {
		return usage("-id or -t is required")
	}
	asOf, err := models.ParseDate(c.date)
	if err != nil {
		return usage("invalid date %q", c.date)
	}
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		return usage("invalid amount %q", c.amount)
	}

	s, err := c.app.services()
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	asset, err := resolveAsset(ctx, s.db, c.assetID, c.ticker)
	if err != nil {
		return fail(err)
	}
	position, err := s.engine.Reallocate(ctx, asset.ID, asOf, amount)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(c.app.Out, "Allocated %s of %s on %s as position %d\n",
		position.Amount.StringFixed(2), asset.Ticker, asOf.Format(models.DateLayout), position.ID)
	return subcommands.ExitSuccess
}

type deleteCmd struct {
	app  *App
	date string
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a date's ledger and prune expired gains" }
func (*deleteCmd) Usage() string {
	return `assetalloc delete -d <date>

  Removes every position and decomposition on the date, the gain history on the date,
  and gain history older than the retention window.
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "As-of date (YYYY-MM-DD)")
}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := models.ParseDate(c.date)
	if err != nil {
		return usage("invalid date %q", c.date)
	}

	s, err := c.app.services()
	if err != nil {
		return fail(err)
	}
	defer s.Close()

	result, err := s.retention.DeleteAssetInfo(ctx, asOf)
	if err != nil {
		return fail(err)
	}

	var buf bytes.Buffer
	doc := md.NewMarkdown(&buf)
	doc.H1f("Deleted %s", asOf.Format(models.DateLayout))
	doc.BulletList(deletedItems(result)...)
	c.app.printMarkdown(doc.String())
	return subcommands.ExitSuccess
}

type positionsCmd struct {
	app  *App
	date string
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list a date's positions" }
func (*positionsCmd) Usage() string {
	return `assetalloc positions [-d <date>]

  Lists positions on the date, today by default.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "As-of date (YYYY-MM-DD)")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf := models.TruncateDate(time.Now())
	if c.date != "" {
		var err error
		if asOf, err = models.ParseDate(c.date); err != nil {
			return usage("invalid date %q", c.date)
		}
	}

	db, err := c.app.openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	positions, err := db.GetPositionsByDate(ctx, asOf)
	if err != nil {
		return fail(err)
	}
	c.app.printMarkdown(report.PositionsMarkdown(asOf, positions))
	return subcommands.ExitSuccess
}
