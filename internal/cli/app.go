// Package cli implements the assetalloc subcommands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/asset-allocation/internal/allocation"
	"github.com/trogers1052/asset-allocation/internal/config"
	"github.com/trogers1052/asset-allocation/internal/database"
	"github.com/trogers1052/asset-allocation/internal/gains"
	"github.com/trogers1052/asset-allocation/internal/ingest"
	"github.com/trogers1052/asset-allocation/internal/kafka"
	"github.com/trogers1052/asset-allocation/internal/lock"
	"github.com/trogers1052/asset-allocation/internal/models"
	"github.com/trogers1052/asset-allocation/internal/retention"
)

// App carries what every subcommand needs
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	Out    io.Writer
	// Raw prints markdown without terminal styling
	Raw bool
}

// Register adds every subcommand to the commander
func Register(c *subcommands.Commander, app *App) {
	c.Register(&migrateCmd{app: app}, "setup")
	c.Register(&assetCmd{app: app}, "setup")
	c.Register(&templateCmd{app: app}, "setup")

	c.Register(&processCmd{app: app}, "ledger")
	c.Register(&reallocateCmd{app: app}, "ledger")
	c.Register(&deleteCmd{app: app}, "ledger")
	c.Register(&positionsCmd{app: app}, "ledger")

	c.Register(&gainsCmd{app: app}, "reports")
	c.Register(&compareCmd{app: app}, "reports")
	c.Register(&totalsCmd{app: app}, "reports")

	c.Register(&serveCmd{app: app}, "server")
}

// services is the wired application graph
type services struct {
	db        *database.DB
	engine    *allocation.Engine
	retention *retention.Manager
	runner    *ingest.Runner
	producer  *kafka.Producer
	redis     *redis.Client
}

func (a *App) openDB() (*database.DB, error) {
	db, err := database.New(a.Config.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (a *App) services() (*services, error) {
	strategy, err := allocation.ParseIDStrategy(a.Config.Ledger.IDStrategy)
	if err != nil {
		return nil, fmt.Errorf("invalid LEDGER_ID_STRATEGY: %w", err)
	}

	db, err := a.openDB()
	if err != nil {
		return nil, err
	}
	s := &services{db: db}

	var retentionPub retention.Publisher
	var ingestPub ingest.Publisher
	if a.Config.Kafka.Enabled {
		s.producer = kafka.NewProducer(a.Config.Kafka.Brokers, a.Config.Kafka.EventsTopic)
		retentionPub, ingestPub = s.producer, s.producer
	}

	var locker lock.Locker = lock.Noop{}
	if a.Config.Redis.Enabled {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		locker = lock.NewRedisLocker(s.redis, a.Config.Redis.LockTTL, a.Log)
	}

	s.engine = allocation.NewEngine(allocation.NewSQLStore(db), a.Log, allocation.WithIDStrategy(strategy))
	s.retention = retention.NewManager(retention.NewSQLStore(db), a.Config.Ledger.RetentionDays, retentionPub, a.Log)
	s.runner = ingest.NewRunner(db, s.engine, s.retention, locker, ingestPub, a.Log)
	return s, nil
}

func (a *App) calculator(db *database.DB) *gains.Calculator {
	client := gains.NewClient(a.Config.Gains.PriceBaseURL,
		gains.WithRateLimit(a.Config.Gains.RequestsPerSecond),
		gains.WithLogger(a.Log),
	)
	prices := gains.NewCachedPrices(db, client, a.Log)
	return gains.NewCalculator(db, gains.NewCalendar(db), prices, a.Config.Gains.SkipTickers, a.Log)
}

func (s *services) Close() {
	if s.producer != nil {
		s.producer.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	s.db.Close()
}

func (a *App) printMarkdown(md string) {
	if a.Raw {
		fmt.Fprintln(a.Out, md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Fprint(a.Out, out)
			return
		}
	}
	fmt.Fprintln(a.Out, md)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

func usage(format string, args ...interface{}) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}

// resolveAsset accepts a numeric id or a ticker
func resolveAsset(ctx context.Context, db *database.DB, id int, ticker string) (*models.Asset, error) {
	if id > 0 {
		return db.GetAsset(ctx, id)
	}
	return db.GetAssetByTicker(ctx, ticker)
}
