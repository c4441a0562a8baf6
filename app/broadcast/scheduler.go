// Package broadcast drives the periodic config and leaderboard broadcasts.
// Tick work always runs on the processing loop, never on the timer goroutine,
// so broadcasts can never interleave with a request handler.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
	leaderboardservice "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/application"
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
	"github.com/kinetic-exhibits/marathon-backend/config"
)

// Enqueuer schedules work onto the single processing loop.
type Enqueuer interface {
	Enqueue(fn func(context.Context))
}

// Config holds the scheduler intervals and the broadcast-on-connect policy.
type Config struct {
	ConfigInterval      time.Duration
	LeaderboardInterval time.Duration
	OnConnect           bool
	SettleDelay         time.Duration
}

// Scheduler fires the two periodic broadcasts and answers config requests.
type Scheduler struct {
	cfg       Config
	modes     map[string]protocol.ModeConfig
	service   *leaderboardservice.LeaderboardService
	publisher leaderboardservice.EventPublisher
	enqueuer  Enqueuer
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	// notify receives every combined leaderboard payload, feeding the
	// dashboard's event stream. May be nil.
	notify func(payload []byte)
}

// NewScheduler creates a Scheduler. game supplies the immutable per-mode
// route configuration converted once into the wire shape.
func NewScheduler(
	cfg Config,
	game config.GameConfig,
	service *leaderboardservice.LeaderboardService,
	publisher leaderboardservice.EventPublisher,
	enqueuer Enqueuer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Scheduler {
	modes := make(map[string]protocol.ModeConfig, len(game.Modes))
	for name, mc := range game.Modes {
		modes[name] = protocol.ModeConfig{
			RouteDistance:         mc.RouteDistance,
			TimeLimit:             mc.TimeLimit,
			CountdownSeconds:      mc.CountdownSeconds,
			ResultsDisplaySeconds: mc.ResultsDisplaySeconds,
			IdleTimeoutSeconds:    mc.IdleTimeoutSeconds,
			MachineTopic:          mc.MachineTopic,
		}
	}
	return &Scheduler{
		cfg:       cfg,
		modes:     modes,
		service:   service,
		publisher: publisher,
		enqueuer:  enqueuer,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// OnLeaderboardPayload registers the dashboard feed. Must be called before
// Run.
func (s *Scheduler) OnLeaderboardPayload(fn func(payload []byte)) {
	s.notify = fn
}

// Run fires the two timers until ctx is canceled. The timers only enqueue:
// a tick that lands mid-drain waits its turn behind the current message.
func (s *Scheduler) Run(ctx context.Context) {
	configTicker := time.NewTicker(s.cfg.ConfigInterval)
	defer configTicker.Stop()
	leaderboardTicker := time.NewTicker(s.cfg.LeaderboardInterval)
	defer leaderboardTicker.Stop()

	s.logger.Info("broadcast scheduler started",
		slog.Duration("config_interval", s.cfg.ConfigInterval),
		slog.Duration("leaderboard_interval", s.cfg.LeaderboardInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("broadcast scheduler stopped")
			return
		case <-configTicker.C:
			s.enqueuer.Enqueue(s.BroadcastConfig)
		case <-leaderboardTicker.C:
			s.enqueuer.Enqueue(s.BroadcastLeaderboards)
		}
	}
}

// SystemStatus announces backend liveness on the system status topic.
type SystemStatus struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// OnConnected announces the backend as online, then applies the
// broadcast-on-connect policy: wait out the settle delay and fire both
// broadcasts once so freshly reconnected stations resynchronize without
// waiting a full interval. The status announcement is not policy-gated.
func (s *Scheduler) OnConnected() {
	s.enqueuer.Enqueue(s.announceOnline)
	if !s.cfg.OnConnect {
		return
	}
	time.AfterFunc(s.cfg.SettleDelay, func() {
		s.enqueuer.Enqueue(func(ctx context.Context) {
			s.logger.Info("post-connect broadcast")
			s.BroadcastConfig(ctx)
			s.BroadcastLeaderboards(ctx)
		})
	})
}

func (s *Scheduler) announceOnline(ctx context.Context) {
	payload, err := json.Marshal(SystemStatus{Status: "online", Timestamp: s.now().UnixMilli()})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, protocol.TopicSystemStatus, payload); err == nil {
		s.metrics.BroadcastsSent.WithLabelValues("system_status").Inc()
	}
}

// BroadcastConfig publishes the mode configuration to the global broadcast
// topic.
func (s *Scheduler) BroadcastConfig(ctx context.Context) {
	s.publishConfig(ctx, protocol.TopicConfigBroadcast)
}

// ConfigRequest asks for an immediate config re-delivery. StationID selects
// point-to-point delivery; without one the reply is the global broadcast.
type ConfigRequest struct {
	StationID *int `json:"stationId,omitempty"`
}

// HandleConfigRequest answers one marathon/config/request payload with the
// same payload the periodic broadcast carries.
func (s *Scheduler) HandleConfigRequest(ctx context.Context, payload []byte) {
	var req ConfigRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			s.metrics.DecodeErrors.Inc()
			s.logger.Warn("dropping malformed config request", slog.Any("error", err))
			return
		}
	}

	topic := protocol.TopicConfigBroadcast
	if req.StationID != nil {
		topic = protocol.StationConfigTopic(*req.StationID)
	}
	s.publishConfig(ctx, topic)
}

func (s *Scheduler) publishConfig(ctx context.Context, topic string) {
	payload, err := protocol.Encode(&protocol.GameConfig{
		Timestamp: s.now().UnixMilli(),
		Modes:     s.modes,
	})
	if err != nil {
		s.logger.Error("failed to encode config broadcast", slog.Any("error", err))
		return
	}
	if err := s.publisher.Publish(ctx, topic, payload); err != nil {
		return
	}
	s.metrics.BroadcastsSent.WithLabelValues("config").Inc()
}

// LeaderboardBroadcast is the combined rankings payload published on the
// global leaderboard topic and fed to the dashboard stream.
type LeaderboardBroadcast struct {
	Leaderboards map[string][]leaderboarddb.RankedEntry `json:"leaderboards"`
	Timestamp    int64                                  `json:"timestamp"`
}

// ModeBroadcast is the single-mode rankings payload published per mode.
type ModeBroadcast struct {
	GameMode  string                      `json:"gameMode"`
	Entries   []leaderboarddb.RankedEntry `json:"entries"`
	Timestamp int64                       `json:"timestamp"`
}

// BroadcastLeaderboards publishes one combined payload, one payload per mode,
// and the kiosk top-10, so subscribers pick the granularity they want.
func (s *Scheduler) BroadcastLeaderboards(ctx context.Context) {
	ts := s.now().UnixMilli()
	boards := s.service.Rankings()

	combined, err := json.Marshal(LeaderboardBroadcast{Leaderboards: boards, Timestamp: ts})
	if err != nil {
		s.logger.Error("failed to encode leaderboard broadcast", slog.Any("error", err))
		return
	}
	if err := s.publisher.Publish(ctx, protocol.TopicLeaderboardBroadcast, combined); err == nil {
		s.metrics.BroadcastsSent.WithLabelValues("leaderboard").Inc()
	}
	if s.notify != nil {
		s.notify(combined)
	}

	for mode, entries := range boards {
		if entries == nil {
			entries = []leaderboarddb.RankedEntry{}
		}
		payload, err := json.Marshal(ModeBroadcast{GameMode: mode, Entries: entries, Timestamp: ts})
		if err != nil {
			continue
		}
		if err := s.publisher.Publish(ctx, protocol.ModeBroadcastTopic(mode), payload); err == nil {
			s.metrics.BroadcastsSent.WithLabelValues("leaderboard_mode").Inc()
		}
	}

	s.service.PublishKioskTop10(ctx)
}
