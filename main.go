package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bracket-core/internal/api"
	"bracket-core/internal/events"
	"bracket-core/internal/gateway"
	"bracket-core/internal/journal"
	"bracket-core/internal/monitor"
	"bracket-core/internal/plan"
	"bracket-core/internal/reconnect"
	"bracket-core/pkg/broker"
	"bracket-core/pkg/broker/sim"
	"bracket-core/pkg/cache"
	"bracket-core/pkg/config"
	"bracket-core/pkg/db"
)

var buildVersion = "dev"

func main() {
	log.Printf("bracket-core %s starting", buildVersion)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("config loaded, port=%s driver=%s db=%s", cfg.Port, cfg.BrokerDriver, cfg.DBPath)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	watch, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		log.Fatalf("load watchlist: %v", err)
	}
	watch.AddSymbols(cfg.Watchlist)
	log.Printf("watching %d symbol(s)", len(watch.Symbols()))

	bus := events.NewBus()
	wire := buildWire(cfg, watch)
	session := gateway.NewSession(wire, bus)

	connect := func() error {
		return session.Connect(cfg.BrokerHost, cfg.BrokerPort, cfg.BrokerClientID, cfg.ConnectTimeout)
	}

	jrnl := journal.New(database.DB)
	plans := plan.NewStore(database.DB)
	alerts := monitor.NewAlertBook()
	quotes := cache.NewQuoteCache()

	supervisor := reconnect.New(reconnect.Config{
		Enabled:           cfg.ReconnectEnabled,
		MaxAttempts:       cfg.ReconnectMaxAttempts,
		InitialDelay:      cfg.ReconnectInitialDelay,
		MaxDelay:          cfg.ReconnectMaxDelay,
		BackoffMultiplier: cfg.ReconnectMultiplier,
		ResetAfterSuccess: cfg.ReconnectResetAfter,
	}, reconnect.Callbacks{
		Connect:     connect,
		IsConnected: session.IsConnected,
		OnStart: func() {
			bus.Publish(events.EventReconnectStarted, events.ReconnectUpdate{})
		},
		OnFailed: func(attempt int) {
			bus.Publish(events.EventReconnectFailed, events.ReconnectUpdate{Attempt: attempt})
		},
		OnSuccess: func() {
			// Cached quotes may predate the outage.
			quotes.Cleanup(0)
			bus.Publish(events.EventReconnectSucceeded, events.ReconnectUpdate{})
			recordBackground(jrnl, "reconnect.succeeded", "")
		},
		OnExhausted: func() {
			bus.Publish(events.EventReconnectExhausted, events.ReconnectUpdate{
				Reason: "all reconnect attempts exhausted",
			})
			recordBackground(jrnl, "reconnect.exhausted", "manual intervention required")
		},
	})
	defer supervisor.Stop()

	// Connection-lost events from the session feed the supervisor.
	lost := watchConnectionLoss(bus, supervisor)
	defer lost.Close()

	if err := connect(); err != nil {
		log.Printf("initial connect failed: %v (supervisor will keep trying)", err)
		supervisor.OnConnectionLost()
	} else {
		supervisor.OnConnectionSuccess()
		log.Printf("broker session connected to %s:%d", cfg.BrokerHost, cfg.BrokerPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := &monitor.Monitor{
		Session:  session,
		Plans:    plans,
		Bus:      bus,
		Alerts:   alerts,
		Quotes:   quotes,
		Symbols:  watch.Symbols(),
		Interval: cfg.MonitorInterval,
		Resolve: func(symbol string) broker.Contract {
			sc := watch.Lookup(symbol)
			return broker.StockContract(sc.Symbol, sc.Currency, sc.PrimaryExchange)
		},
	}
	mon.Start(ctx)

	watcher := &monitor.Watcher{Bus: bus, Sink: monitor.LogSink{}, Journal: jrnl}
	watcher.Start(ctx)

	server := api.NewServer(bus, session, plans, jrnl, alerts, supervisor, quotes, watch, cfg)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()
	log.Printf("api listening on :%s", cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	cancel()
	supervisor.Stop()
	// Detach the loss watcher first; the deliberate disconnect below publishes
	// a connection-lost event that must not start a fresh reconnect loop.
	lost.Close()
	if err := session.Disconnect(); err != nil {
		log.Printf("disconnect: %v", err)
	}
}

// watchConnectionLoss feeds connection-lost events into the supervisor until
// the returned subscription is closed.
func watchConnectionLoss(bus *events.Bus, supervisor *reconnect.Supervisor) *events.Subscription {
	lost := bus.Subscribe(events.EventConnectionLost, 10)
	go func() {
		for range lost.C {
			supervisor.OnConnectionLost()
		}
	}()
	return lost
}

// buildWire selects the broker transport. Only the simulated wire ships in
// this build; a real gateway driver plugs in behind the same interface.
func buildWire(cfg *config.Config, watch *config.Watchlist) broker.Wire {
	switch cfg.BrokerDriver {
	case "sim", "":
		simCfg := sim.DefaultConfig()
		simCfg.NetLiquidation = cfg.SimNetLiquidation
		if cfg.SimStartOrderID > 0 {
			simCfg.StartOrderID = cfg.SimStartOrderID
		}
		w := sim.New(simCfg)
		// Seed a quote per watched symbol so snapshots resolve out of the box.
		for _, s := range watch.Symbols() {
			w.SetPrice(s, 100)
		}
		return w
	default:
		log.Fatalf("unknown BROKER_DRIVER %q (supported: sim)", cfg.BrokerDriver)
		return nil
	}
}

func recordBackground(jrnl *journal.Journal, event, detail string) {
	if _, err := jrnl.Record(context.Background(), "", event, detail); err != nil {
		log.Printf("journal write failed: %v", err)
	}
}
