// Package cli implements the hydrosync CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/config"
	"github.com/rcliao/hydrosync/internal/hydration"
	"github.com/rcliao/hydrosync/internal/router"
	"github.com/rcliao/hydrosync/internal/state"
	"github.com/rcliao/hydrosync/internal/store"
	"github.com/rcliao/hydrosync/internal/transport"
)

var (
	dbPath     string
	formatFlag string
	envFile    string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "hydrosync",
	Short: "Daily water intake, in sync across devices",
	Long:  "Track daily water intake and keep companion devices, browsers and reminders in agreement. SQLite-backed, single binary.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $HYDROSYNC_DB or ~/.hydrosync/hydrosync.db)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Env file to load before reading the environment")
}

func loadConfig() *config.Config {
	cfg, err := config.Load(envFile)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// app bundles what every command opens.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	db      *store.SQLiteStore
	state   *state.Shared
	tracker *hydration.Tracker

	closers []func() error
}

func openApp(ctx context.Context) *app {
	cfg := loadConfig()
	log := newLogger(cfg)
	slog.SetDefault(log)

	loc, err := cfg.Location()
	if err != nil {
		exitErr("load timezone", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		exitErr("open store", err)
	}
	a := &app{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	var backend state.Backend = db
	if cfg.RedisURL != "" {
		rb, err := state.NewRedisBackend(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			exitErr("connect redis", err)
		}
		a.closers = append(a.closers, rb.Close)
		backend = rb
	}

	a.state = state.New(backend)
	a.tracker = hydration.NewTracker(db, a.state,
		hydration.WithLocation(loc),
		hydration.WithLogger(log))
	return a
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Debug("close", "error", err)
		}
	}
	a.closers = nil
}

// link connects to the broker for a short-lived command. The connection
// does not retry: if the broker is down sends report api_not_available and
// the command carries on.
func (a *app) link(ctx context.Context) *transport.Link {
	var client transport.NodeClient
	nc, err := transport.Connect(a.cfg.NATSURL, a.cfg.NATSName+"-cli", a.log, nats.RetryOnFailedConnect(false), nats.MaxReconnects(0))
	if err != nil {
		a.log.Debug("companions unreachable", "error", err)
	} else {
		a.closers = append(a.closers, func() error { nc.Close(); return nil })
		nodeID, err := a.state.NodeID(ctx)
		if err != nil {
			exitErr("read node id", err)
		}
		client = transport.NewNATSClient(nc, nodeID, a.cfg.DiscoveryTimeout, a.log)
	}
	return transport.NewLink(client, a.cfg.SendTimeout, a.log)
}

// peers returns a router for one-shot pushes.
func (a *app) peers(ctx context.Context) *router.Router {
	return router.New(a.tracker, a.state, a.link(ctx), router.WithLogger(a.log))
}

func textOutput() bool {
	return strings.EqualFold(formatFlag, "text")
}

// output prints v as indented JSON, or text when --format text is set.
func output(v any, text string) {
	if textOutput() {
		fmt.Println(text)
		return
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
