// Package app is the coordinator's explicit dependency-injection root
// (SPEC_FULL.md §5). It owns the one shared *sql.DB, the EventSink, and
// every domain component wired to it — the HTTP API and CLI construct
// one AppContext at startup and read from it, rather than reaching for
// package-level singletons the way the teacher's internal/server and
// internal/captain packages do.
package app

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/CLIAIMONITOR/internal/conflict"
	"github.com/CLIAIMONITOR/internal/config"
	"github.com/CLIAIMONITOR/internal/distribution"
	"github.com/CLIAIMONITOR/internal/events"
	"github.com/CLIAIMONITOR/internal/executor"
	"github.com/CLIAIMONITOR/internal/fourds"
	"github.com/CLIAIMONITOR/internal/guardrails"
	"github.com/CLIAIMONITOR/internal/invoker"
	"github.com/CLIAIMONITOR/internal/metrics"
	"github.com/CLIAIMONITOR/internal/nats"
	"github.com/CLIAIMONITOR/internal/notifications"
	"github.com/CLIAIMONITOR/internal/optimizer"
	"github.com/CLIAIMONITOR/internal/orchestrator"
	"github.com/CLIAIMONITOR/internal/registry"
	"github.com/CLIAIMONITOR/internal/store"
	"github.com/CLIAIMONITOR/internal/types"
)

// AppContext wires together every coordinator component that needs the
// shared database handle or the EventSink. Build one with New at
// startup; Close releases the database and NATS connection (if any).
type AppContext struct {
	Config config.Config

	store *store.Store
	DB    *sql.DB

	Bus *events.Bus

	Gates       *fourds.Gates
	Guardrails  *guardrails.Guardrails
	Registry    *registry.Registry
	Conflict    *conflict.Manager
	Distributor *distribution.Distributor
	Executor    *executor.Executor
	Orchestrator *orchestrator.Orchestrator

	Optimizer *optimizer.Optimizer

	Metrics *metrics.MetricsCollector
	Alerts  *metrics.AlertChecker

	Notifications notifications.NotificationManager
	notifyRouter  *notifications.Router

	natsClient *nats.Client
	natsMirror *nats.Mirror
}

// New builds a fully-wired AppContext from cfg. Every step that can
// degrade gracefully (NATS, desktop/terminal notification channels)
// logs and continues rather than failing startup, per spec.md §7.7;
// only opening the database, initializing the event store, and creating
// the model invoker return an error.
func New(cfg config.Config) (*AppContext, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	db := st.DB()

	eventStore, err := events.NewSQLiteStore(db)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: init event store: %w", err)
	}
	bus := events.NewBus(eventStore)

	gates := fourds.New(db).WithBus(bus)
	grds := guardrails.New(guardrails.DefaultConfig()).WithBus(bus, "guardrails")

	reg := registry.New(db)
	conf := conflict.New(db)
	dist := distribution.New()

	inv, err := invoker.New()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("app: init model invoker: %w", err)
	}
	exec := executor.New(reg, conf, inv)

	orch := orchestrator.New(db, reg, conf, dist, exec, nil)

	opt := optimizer.New(db)

	collector := metrics.NewCollector()
	alerts := metrics.NewAlertEngine(types.DefaultThresholds())

	a := &AppContext{
		Config:       cfg,
		store:        st,
		DB:           db,
		Bus:          bus,
		Gates:        gates,
		Guardrails:   grds,
		Registry:     reg,
		Conflict:     conf,
		Distributor:  dist,
		Executor:     exec,
		Orchestrator: orch,
		Optimizer:    opt,
		Metrics:      collector,
		Alerts:       alerts,
	}

	a.wireNotifications(cfg)
	a.wireNATS(cfg)

	return a, nil
}

// wireNotifications builds the desktop/terminal/banner notification
// manager and, if the EventSink is up, starts the routing goroutine the
// teacher's internal/server.go:run uses (subscribe to "all", Route each
// event). The toast and terminal channels are added whenever their config
// toggles are on; on an unsupported platform their ShouldNotify reports
// false, so the router skips them.
func (a *AppContext) wireNotifications(cfg config.Config) {
	mgr := notifications.NewManager(notifications.Config{
		AppID:          "coordinator",
		EnableToast:    cfg.Notifications.Toast,
		EnableTerminal: cfg.Notifications.Terminal,
	})
	a.Notifications = mgr

	var channels []notifications.NotificationChannel
	if cfg.Notifications.Toast {
		channels = append(channels, notifications.NewToastChannel(notifications.NewToastNotifier("coordinator")))
	}
	if cfg.Notifications.Terminal {
		channels = append(channels, notifications.NewTerminalChannel(notifications.NewTerminalNotifier()))
	}
	channels = append(channels, notifications.NewBannerChannel(notifications.NewBannerNotifier()))

	router := notifications.NewRouter(channels)
	a.notifyRouter = router

	go func() {
		sub := a.Bus.Subscribe("all", nil)
		for event := range sub {
			router.Route(event)
		}
	}()
}

// wireNATS connects to the messaging transport and starts the mirror if
// cfg.NATSURL is set. A connection failure is logged, not fatal — the
// transport is observability-only (spec.md §7.7, DESIGN.md's A6 entry).
func (a *AppContext) wireNATS(cfg config.Config) {
	if cfg.NATSURL == "" {
		return
	}
	client, err := nats.NewClient(cfg.NATSURL)
	if err != nil {
		log.Printf("[APP] NATS unavailable, continuing without the mirror: %v", err)
		return
	}
	a.natsClient = client
	a.natsMirror = nats.NewMirror(client, a.Bus)
	a.natsMirror.Start()
}

// Close releases every resource the AppContext owns: the NATS mirror
// and connection (if any), then the database.
func (a *AppContext) Close() error {
	if a.natsMirror != nil {
		a.natsMirror.Stop()
	}
	if a.natsClient != nil {
		a.natsClient.Close()
	}
	return a.store.Close()
}
