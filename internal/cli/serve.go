package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/rcliao/hydrosync/internal/config"
	"github.com/rcliao/hydrosync/internal/notify"
	"github.com/rcliao/hydrosync/internal/reminder"
	"github.com/rcliao/hydrosync/internal/router"
	"github.com/rcliao/hydrosync/internal/state"
	"github.com/rcliao/hydrosync/internal/syncserver"
	"github.com/rcliao/hydrosync/internal/transport"
)

const (
	reminderResyncInterval = time.Minute
	shutdownTimeout        = 5 * time.Second
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync daemon",
		Long: "Run the sync daemon: answer companion devices over NATS, serve the token-gated HTTP API, " +
			"fire reminders and reset the cached intake at local midnight.",
		Run: runServe,
	}

	cmd.Flags().String("addr", "", "HTTP listen address (default: $HYDROSYNC_HTTP_ADDR or "+config.DefaultHTTPAddr+")")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := openApp(ctx)
	defer a.Close()
	log := a.log

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		a.cfg.HTTPAddr = addr
	}

	if _, err := a.state.EnsureAuthToken(ctx); err != nil {
		exitErr("auth token", err)
	}
	nodeID, err := a.state.NodeID(ctx)
	if err != nil {
		exitErr("node id", err)
	}

	// Transport. A broker that is down at boot is retried in the background;
	// sends report api_not_available until it connects.
	var client transport.NodeClient
	var natsClient *transport.NATSClient
	nc, err := transport.Connect(a.cfg.NATSURL, a.cfg.NATSName, log)
	if err != nil {
		log.Warn("companion transport disabled", "error", err)
	} else {
		natsClient = transport.NewNATSClient(nc, nodeID, a.cfg.DiscoveryTimeout, log)
		client = natsClient
	}
	link := transport.NewLink(client, a.cfg.SendTimeout, log)

	rt := router.New(a.tracker, a.state, link,
		router.WithLogger(log),
		router.WithRedraw(func(p transport.Path) { log.Debug("surfaces refreshed", "path", p) }))
	if natsClient != nil {
		if err := natsClient.Listen(rt); err != nil {
			log.Warn("listen for companions", "error", err)
		}
	}

	srv := syncserver.New(a.tracker, a.state, rt, syncserver.Options{
		Addr:      a.cfg.HTTPAddr,
		RateLimit: a.cfg.RateLimit,
		RateBurst: a.cfg.RateBurst,
		Logger:    log,
	})
	if err := srv.Start(); err != nil {
		exitErr("start sync service", err)
	}

	loc := a.tracker.Location()
	sched := reminder.New(a.state, a.tracker, buildNotifier(ctx, a.cfg, log),
		reminder.WithLocation(loc),
		reminder.WithLogger(log))
	sched.Sync(ctx)

	unsubscribe := a.state.Subscribe(func(c state.Change) {
		if c.Key != state.KeyReminder {
			return
		}
		cfg, err := a.state.Reminder(ctx)
		if err != nil {
			log.Warn("read reminder config", "error", err)
			return
		}
		if cfg.Enabled {
			sched.StartOrReschedule(ctx)
		} else {
			sched.Stop()
		}
	})

	rollover := reminder.NewRollover(a.tracker, func(ctx context.Context) {
		if res := rt.PushIntake(ctx); res.Kind == transport.Failed {
			log.Warn("push intake after rollover", "result", res.String())
		}
		sched.Sync(ctx)
	}, reminder.RealClock(), loc, log)
	rollover.Start()

	log.Info("hydrosync running", "node", nodeID, "http", srv.Addr(), "nats", a.cfg.NATSURL)

	// Settings written by other processes (CLI, a second daemon on Redis)
	// do not reach this process's subscribers, so resync periodically.
	ticker := time.NewTicker(reminderResyncInterval)
	defer ticker.Stop()
	for done := false; !done; {
		select {
		case <-ctx.Done():
			done = true
		case <-ticker.C:
			sched.Sync(ctx)
		}
	}

	log.Info("shutting down")
	unsubscribe()
	sched.Stop()
	rollover.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("stop sync service", "error", err)
	}
	if natsClient != nil {
		natsClient.Close()
		drain(nc, log)
	}
}

func drain(nc *nats.Conn, log *slog.Logger) {
	if err := nc.Drain(); err != nil {
		log.Debug("drain nats", "error", err)
		nc.Close()
	}
}

// buildNotifier always logs reminders and also publishes them to SNS when
// a target is configured.
func buildNotifier(ctx context.Context, cfg *config.Config, log *slog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{Log: log}}
	if cfg.SNSTargetARN != "" {
		sns, err := notify.NewSNSNotifier(ctx, cfg.SNSRegion, cfg.SNSTargetARN)
		if err != nil {
			log.Warn("sns reminders disabled", "error", err)
		} else {
			notifiers = append(notifiers, sns)
		}
	}
	return notifiers
}
