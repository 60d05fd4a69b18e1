package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/trogers1052/asset-allocation/internal/cli"
	"github.com/trogers1052/asset-allocation/internal/config"
	"github.com/trogers1052/asset-allocation/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	app := &cli.App{Config: cfg, Log: log, Out: os.Stdout}
	flag.BoolVar(&app.Raw, "raw", false, "Print reports as plain markdown")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(subcommands.HelpCommand(), "")
	commander.Register(subcommands.FlagsCommand(), "")
	commander.Register(subcommands.CommandsCommand(), "")
	cli.Register(commander, app)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
