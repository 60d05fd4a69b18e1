package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/report"
)

type migrateCmd struct {
	app  *App
	path string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply database migrations" }
func (*migrateCmd) Usage() string {
	return `assetalloc migrate [-path <dir>]

  Applies every pending migration from the migrations directory.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.path, "path", "", "Migrations directory (defaults to DB_MIGRATIONS_PATH)")
}

func (c *migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	path := c.path
	if path == "" {
		path = c.app.Config.Database.MigrationsPath
	}

	db, err := c.app.openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	if err := db.Migrate(path); err != nil {
		return fail(err)
	}
	fmt.Fprintf(c.app.Out, "Migrations applied from %s\n", path)
	return subcommands.ExitSuccess
}

type assetCmd struct {
	app        *App
	ticker     string
	name       string
	templateID int
	benchmark  string
	show       bool
}

func (*assetCmd) Name() string     { return "asset" }
func (*assetCmd) Synopsis() string { return "create or show an asset" }
func (*assetCmd) Usage() string {
	return `assetalloc asset -t <ticker> [-name <display name>] [-template <id>] [-benchmark <ticker>]
assetalloc asset -show -t <ticker>

  Creates an asset bound to an allocation template, or shows an existing one with its rules.
`
}

func (c *assetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "t", "", "Ticker")
	f.StringVar(&c.name, "name", "", "Display name (defaults to the ticker)")
	f.IntVar(&c.templateID, "template", 0, "Allocation template id")
	f.StringVar(&c.benchmark, "benchmark", "", "Benchmark ticker; assets with one are priced by the gains command")
	f.BoolVar(&c.show, "show", false, "Show the asset instead of creating it")
}

func (c *assetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.ticker == "" {
		return usage("-t is required")
	}

	db, err := c.app.openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	if c.show {
		asset, err := db.GetAssetByTicker(ctx, c.ticker)
		if err != nil {
			return fail(err)
		}
		rules, err := db.GetTemplateDetailsForAsset(ctx, asset.ID)
		if err != nil {
			return fail(err)
		}
		c.app.printMarkdown(report.AssetMarkdown(asset, rules))
		return subcommands.ExitSuccess
	}

	asset := &models.Asset{Ticker: c.ticker, DisplayName: c.name, TemplateID: c.templateID, Benchmark: c.benchmark}
	if asset.DisplayName == "" {
		asset.DisplayName = c.ticker
	}
	if err := db.CreateAsset(ctx, asset); err != nil {
		return fail(err)
	}
	fmt.Fprintf(c.app.Out, "Created asset %d (%s)\n", asset.ID, asset.Ticker)
	return subcommands.ExitSuccess
}

type templateCmd struct {
	app    *App
	id     int
	name   string
	rules  string
	delete bool
}

func (*templateCmd) Name() string     { return "template" }
func (*templateCmd) Synopsis() string { return "create, replace, delete or show an allocation template" }
func (*templateCmd) Usage() string {
	return `assetalloc template -name <name> -rules <file.csv>
assetalloc template -id <id> -rules <file.csv>
assetalloc template -id <id> [-delete]

  The rules file has the columns kind,code_1,code_2,percentage where kind is
  alloc, secind or inter. Rules must total 100 percent.
`
}

func (c *templateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.id, "id", 0, "Template id")
	f.StringVar(&c.name, "name", "", "Name of a new template")
	f.StringVar(&c.rules, "rules", "", "CSV file of rules")
	f.BoolVar(&c.delete, "delete", false, "Delete the template's rules")
}

func (c *templateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == 0 && c.name == "" {
		return usage("-id or -name is required")
	}
	if c.name != "" && c.rules == "" {
		return usage("-rules is required for a new template")
	}

	var rules []models.TemplateDetail
	if c.rules != "" {
		file, err := os.Open(c.rules)
		if err != nil {
			return fail(err)
		}
		rules, err = ReadRules(file)
		file.Close()
		if err != nil {
			return fail(err)
		}
		if err := models.ValidateTemplate(rules); err != nil {
			return fail(err)
		}
	}

	db, err := c.app.openDB()
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	id := c.id
	switch {
	case c.delete:
		if err := db.DeleteTemplateDetails(ctx, id); err != nil {
			return fail(err)
		}
		fmt.Fprintf(c.app.Out, "Deleted rules of template %d\n", id)
		return subcommands.ExitSuccess
	case c.name != "":
		if id, err = db.CreateTemplate(ctx, c.name); err != nil {
			return fail(err)
		}
		fallthrough
	case rules != nil:
		if err := db.ReplaceTemplateDetails(ctx, id, rules); err != nil {
			return fail(err)
		}
	}

	details, err := db.GetTemplateDetails(ctx, id)
	if err != nil {
		return fail(err)
	}
	c.app.printMarkdown(report.TemplateMarkdown(id, details))
	return subcommands.ExitSuccess
}

// ReadRules parses template rules from CSV with a kind,code_1,code_2,percentage header
func ReadRules(r io.Reader) ([]models.TemplateDetail, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("empty rules file")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"kind", "code_1", "code_2", "percentage"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("rules file has no %s column", name)
		}
	}

	var rules []models.TemplateDetail
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		kind, err := models.ParseRuleKind(record[cols["kind"]])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pct, err := decimal.NewFromString(strings.TrimSpace(record[cols["percentage"]]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid percentage %q", line, record[cols["percentage"]])
		}
		rules = append(rules, models.TemplateDetail{
			Kind:        kind,
			TargetCode1: strings.TrimSpace(record[cols["code_1"]]),
			TargetCode2: strings.TrimSpace(record[cols["code_2"]]),
			Percentage:  pct,
		})
	}
	return rules, nil
}
