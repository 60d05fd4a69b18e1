package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/report"
)

type gainsCmd struct {
	app  *App
	date string
	show bool
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "calculate or show trailing gains of benchmark tickers" }
func (*gainsCmd) Usage() string {
	return `assetalloc gains [-d <date>] [-show]

  Calculates 1W, 2W, 1M, 3M, 6M and 1Y gains for every benchmark ticker as of the
  date, today by default. With -show, prints the stored gains instead.
`
}

func (c *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "As-of date (YYYY-MM-DD)")
	f.BoolVar(&c.show, "show", false, "Show stored gains without calculating")
}

func (c *gainsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	status := subcommands.ExitSuccess
	if !c.show {
		result, err := c.app.calculator(db).Run(ctx, asOf)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(c.app.Out, "Calculated %d, skipped %d, failed %d\n", result.Calculated, result.Skipped, result.Failed)
		if result.Failed > 0 {
			status = subcommands.ExitFailure
		}
	}

	history, err := db.GetGainHistory(ctx, asOf)
	if err != nil {
		return fail(err)
	}
	c.app.printMarkdown(report.GainsMarkdown(asOf, history))
	return status
}

type compareCmd struct {
	app  *App
	from string
	to   string
	save bool
}

func (*compareCmd) Name() string     { return "compare" }
func (*compareCmd) Synopsis() string { return "compare positions between two dates" }
func (*compareCmd) Usage() string {
	return `assetalloc compare [-from <date> -to <date>] [-save]

  Compares account/ticker amounts between two dates. Without dates, the stored
  report dates are used. -save stores the given dates as the new default.
`
}

func (c *compareCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "Earlier date (YYYY-MM-DD)")
	f.StringVar(&c.to, "to", "", "Later date (YYYY-MM-DD)")
	f.BoolVar(&c.save, "save", false, "Store the dates as the default comparison")
}

func (c *compareCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.from == "") != (c.to == "") {
		return usage("-from and -to go together")
	}

	db, err := c.app.openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	var from, to time.Time
	if c.from == "" {
		rd, err := db.GetReportDates(ctx)
		if errors.Is(err, database.ErrNotFound) {
			return usage("no stored report dates, pass -from and -to")
		}
		if err != nil {
			return fail(err)
		}
		from, to = rd.DateToCompare, rd.CurrentDate
	} else {
		if from, err = models.ParseDate(c.from); err != nil {
			return usage("invalid date %q", c.from)
		}
		if to, err = models.ParseDate(c.to); err != nil {
			return usage("invalid date %q", c.to)
		}
	}
	if to.Before(from) {
		return usage("-to is before -from")
	}

	comparison, err := report.ComparePeriods(ctx, db, from, to)
	if errors.Is(err, report.ErrNoData) {
		dates, derr := db.AvailableDates(ctx)
		if derr == nil && len(dates) > 0 {
			return fail(fmt.Errorf("%w; available dates: %s", err, joinDates(dates)))
		}
	}
	if err != nil {
		return fail(err)
	}

	if c.save {
		if err := db.SetReportDates(ctx, models.ReportDates{CurrentDate: to, DateToCompare: from}); err != nil {
			return fail(err)
		}
	}
	c.app.printMarkdown(report.ComparisonMarkdown(comparison))
	return subcommands.ExitSuccess
}

type totalsCmd struct {
	app  *App
	by   string
	from string
	to   string
}

func (*totalsCmd) Name() string     { return "totals" }
func (*totalsCmd) Synopsis() string { return "aggregate positions by allocation class, location or cash" }
func (*totalsCmd) Usage() string {
	return `assetalloc totals -by allocation|heldat|cash -from <date> [-to <date>]

  Sums amounts per label and date over the inclusive range.
`
}

func (c *totalsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.by, "by", "allocation", "Grouping: allocation, heldat or cash")
	f.StringVar(&c.from, "from", "", "First date (YYYY-MM-DD)")
	f.StringVar(&c.to, "to", "", "Last date (YYYY-MM-DD), defaults to -from")
}

func (c *totalsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	from, err := models.ParseDate(c.from)
	if err != nil {
		return usage("invalid date %q", c.from)
	}
	to := from
	if c.to != "" {
		if to, err = models.ParseDate(c.to); err != nil {
			return usage("invalid date %q", c.to)
		}
	}
	if to.Before(from) {
		return usage("-to is before -from")
	}

	db, err := c.app.openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	var (
		title  string
		totals []models.DatedTotal
	)
	switch c.by {
	case "allocation":
		title = "Totals by Allocation Class"
		totals, err = db.TotalsByAllocationClass(ctx, from, to)
	case "heldat":
		title = "Totals by Location"
		totals, err = db.TotalsByHeldAt(ctx, from, to)
	case "cash":
		title = "Cash by Location"
		totals, err = db.CashByHeldAt(ctx, from, to)
	default:
		return usage("unknown grouping %q", c.by)
	}
	if err != nil {
		return fail(err)
	}
	c.app.printMarkdown(report.TotalsMarkdown(title, totals))
	return subcommands.ExitSuccess
}

func joinDates(dates []time.Time) string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(models.DateLayout)
	}
	return strings.Join(out, ", ")
}
