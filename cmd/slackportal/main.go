// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command slackportal mirrors one channel between two chat workspaces. Each
// side is a Slack workspace or a Mattermost team; posts, thread replies,
// edits, deletions and reaction summaries flow in both directions.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	flag "maunium.net/go/mauflag"

	"github.com/aiku/slackportal/pkg/portal"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	name        = "slackportal"
	description = "A two-way channel mirror for Slack and Mattermost"
)

var configPath = flag.MakeFull("c", "config", "The path to your config file.", "config.yaml").String()
var writeExampleConfig = flag.MakeFull("e", "generate-example-config", "Save the example config to the config path and quit.", "false").Bool()
var version = flag.MakeFull("v", "version", "View version and quit.", "false").Bool()
var wantHelp, _ = flag.MakeHelpFlag()

func main() {
	flag.SetHelpTitles(
		fmt.Sprintf("%s - %s", name, description),
		fmt.Sprintf("%s [-hv] [-c <path>] [-e]", name),
	)
	err := flag.Parse()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		flag.PrintHelp()
		os.Exit(1)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(0)
	} else if *version {
		fmt.Printf("%s %s (commit %s, built %s)\n", name, Tag, Commit, BuildTime)
		return
	} else if *writeExampleConfig {
		if err := os.WriteFile(*configPath, []byte(portal.ExampleConfig), 0o600); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "Failed to write example config:", err)
			os.Exit(11)
		}
		fmt.Println("Wrote example config to", *configPath)
		return
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to load .env:", err)
		os.Exit(10)
	}
	cfg, err := portal.LoadConfig(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(10)
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Failed to initialize logger:", err)
		os.Exit(12)
	}
	zerolog.DefaultContextLogger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *log); err != nil {
		log.Fatal().Err(err).Msg("Portal stopped")
	}
	log.Info().Msg("Portal stopped")
}

func run(ctx context.Context, cfg *portal.Config, log zerolog.Logger) error {
	log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting portal")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := portal.NewMetrics(reg)

	var local, remote *portal.Conn
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		local, err = connect(gctx, "local", cfg.Local, cfg.FormatDisplayname, log)
		return err
	})
	g.Go(func() (err error) {
		remote, err = connect(gctx, "remote", cfg.Remote, cfg.FormatDisplayname, log)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	sup := portal.NewSupervisor(
		portal.Side{Conn: local, ChannelName: cfg.Local.Channel},
		portal.Side{Conn: remote, ChannelName: cfg.Remote.Channel},
		cfg.Timing, metrics, log,
	)

	g, gctx = errgroup.WithContext(ctx)
	if cfg.AdminAPIAddr != "" {
		router := portal.NewAdminRouter(sup, reg, log.With().Str("component", "admin_api").Logger())
		g.Go(func() error {
			return portal.ServeAdmin(gctx, cfg.AdminAPIAddr, router, log)
		})
	}
	g.Go(func() error {
		if err := sup.Start(gctx); err != nil {
			return err
		}
		return sup.Run(gctx)
	})
	return g.Wait()
}
