// Package app wires the backend together: broker session, processing loop,
// leaderboard service, broadcast scheduler, dashboard, and discovery.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kinetic-exhibits/marathon-backend/app/broadcast"
	"github.com/kinetic-exhibits/marathon-backend/app/dashboard"
	"github.com/kinetic-exhibits/marathon-backend/app/discovery"
	"github.com/kinetic-exhibits/marathon-backend/app/eventbus"
	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
	leaderboardservice "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/application"
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
	"github.com/kinetic-exhibits/marathon-backend/app/processor"
	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
	"github.com/kinetic-exhibits/marathon-backend/config"
)

// App owns every long-lived component of the backend process.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	bus        *eventbus.EventBus
	processor  *processor.Processor
	store      *leaderboarddb.Store
	kiosk      *leaderboarddb.Store
	service    *leaderboardservice.LeaderboardService
	scheduler  *broadcast.Scheduler
	hub        *dashboard.Hub
	http       *http.Server
	metricsSrv *http.Server
	announcer  *discovery.Announcer
}

// NewApp builds the component graph. Nothing connects or listens yet; Run
// does that.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store, err := leaderboarddb.NewStore(cfg.Storage.DataDir, cfg.ModeNames(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open leaderboard store: %w", err)
	}
	kiosk, err := leaderboarddb.NewStore(
		filepath.Join(cfg.Storage.DataDir, "fm"),
		[]string{leaderboarddb.KioskMode},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open kiosk store: %w", err)
	}

	bus := eventbus.NewEventBus(eventbus.Config{
		URL:           cfg.NATS.URL,
		ClientID:      cfg.NATS.ClientID,
		Username:      cfg.NATS.Username,
		Password:      cfg.NATS.Password,
		ReconnectWait: cfg.NATS.ReconnectWait.Std(),
	}, m, logger)

	proc := processor.New(bus.Inbound(), m, logger)
	service := leaderboardservice.NewLeaderboardService(store, kiosk, bus, m, logger)
	scheduler := broadcast.NewScheduler(broadcast.Config{
		ConfigInterval:      cfg.Broadcast.ConfigInterval.Std(),
		LeaderboardInterval: cfg.Broadcast.LeaderboardInterval.Std(),
		OnConnect:           cfg.Broadcast.OnConnect,
		SettleDelay:         cfg.Broadcast.SettleDelay.Std(),
	}, cfg.Game, service, bus, proc, m, logger)

	hub := dashboard.NewHub(logger)
	scheduler.OnLeaderboardPayload(hub.Publish)

	bus.OnStateChange(func(state eventbus.ConnState, _ error) {
		if state == eventbus.Connected {
			scheduler.OnConnected()
		}
	})

	a := &App{
		cfg:       cfg,
		logger:    logger,
		bus:       bus,
		processor: proc,
		store:     store,
		kiosk:     kiosk,
		service:   service,
		scheduler: scheduler,
		hub:       hub,
		http: &http.Server{
			Addr:    cfg.HTTP.Address,
			Handler: dashboard.NewServer(service, hub, logger).Handler(),
		},
	}

	if cfg.Metrics.Address != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		a.metricsSrv = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
	}
	if cfg.Discovery.Enabled {
		a.announcer = discovery.NewAnnouncer(discovery.Config{
			Port:     cfg.Discovery.Port,
			Interval: cfg.Discovery.Interval.Std(),
			NATSURL:  cfg.NATS.URL,
			HTTPAddr: cfg.HTTP.Address,
		}, bus, logger)
	}

	a.registerHandlers()
	return a, nil
}

// registerHandlers binds every request topic to its handler on the
// processing loop.
func (a *App) registerHandlers() {
	a.processor.Register(protocol.TopicScoreSubmit, func(ctx context.Context, in eventbus.Inbound) {
		a.service.HandleSubmitScore(ctx, in.Payload)
	})
	a.processor.Register(protocol.TopicCheckUsername, func(ctx context.Context, in eventbus.Inbound) {
		a.service.HandleCheckUsername(ctx, in.Payload)
	})
	a.processor.Register(protocol.TopicTop10Request, func(ctx context.Context, in eventbus.Inbound) {
		a.service.HandleTop10Request(ctx, in.Payload)
	})
	a.processor.Register(protocol.TopicConfigRequest, func(ctx context.Context, in eventbus.Inbound) {
		a.scheduler.HandleConfigRequest(ctx, in.Payload)
	})
	a.processor.Register(protocol.TopicKioskWrite, func(ctx context.Context, in eventbus.Inbound) {
		a.service.HandleKioskWrite(ctx, in.Payload)
	})
	for _, side := range protocol.KioskSides {
		side := side
		a.processor.Register(protocol.KioskCheckNameTopic(side), func(ctx context.Context, in eventbus.Inbound) {
			a.service.HandleKioskCheckName(ctx, side, in.Payload)
		})
	}
}

// requestTopics is the fixed subscription set.
func requestTopics() []string {
	topics := []string{
		protocol.TopicScoreSubmit,
		protocol.TopicCheckUsername,
		protocol.TopicTop10Request,
		protocol.TopicConfigRequest,
		protocol.TopicKioskWrite,
	}
	for _, side := range protocol.KioskSides {
		topics = append(topics, protocol.KioskCheckNameTopic(side))
	}
	return topics
}

// Run connects, serves, and blocks until ctx is canceled, then shuts down
// cooperatively: one final store flush, then the broker session and HTTP
// servers close. Messages still queued at shutdown are dropped.
func (a *App) Run(ctx context.Context) error {
	for _, topic := range requestTopics() {
		if err := a.bus.Subscribe(ctx, topic); err != nil {
			return fmt.Errorf("failed to register subscription: %w", err)
		}
	}
	if err := a.bus.Connect(ctx); err != nil {
		return err
	}

	go a.processor.Run(ctx)
	go a.scheduler.Run(ctx)
	if a.announcer != nil {
		go a.announcer.Run(ctx)
	}

	go func() {
		a.logger.Info("dashboard listening", slog.String("address", a.http.Addr))
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("dashboard server failed", slog.Any("error", err))
		}
	}()
	if a.metricsSrv != nil {
		go func() {
			a.logger.Info("metrics listening", slog.String("address", a.metricsSrv.Addr))
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutting down")

	a.store.Flush()
	a.kiosk.Flush()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("dashboard shutdown failed", slog.Any("error", err))
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics shutdown failed", slog.Any("error", err))
		}
	}
	if err := a.bus.Close(); err != nil {
		a.logger.Error("broker session close failed", slog.Any("error", err))
	}

	a.logger.Info("shutdown complete")
	return nil
}
