package leaderboardservice

import (
	"log/slog"
	"time"

	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
)

// LeaderboardService answers the protocol's leaderboard requests: score
// submission, username checks, top-10 retrieval, and the kiosk write flow.
// Handlers run on the single processing loop, so they never race each other;
// the stores carry their own guard for the dashboard's sake.
type LeaderboardService struct {
	store     *leaderboarddb.Store
	kiosk     *leaderboarddb.Store
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewLeaderboardService creates the service. store holds the per-mode main
// boards; kiosk holds the independent flat "FM" board.
func NewLeaderboardService(store, kiosk *leaderboarddb.Store, publisher EventPublisher, m *metrics.Metrics, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:     store,
		kiosk:     kiosk,
		publisher: publisher,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

const topN = 10

func (s *LeaderboardService) timestamp() int64 {
	return s.now().UnixMilli()
}

// knownMode reports whether the main store was configured with mode.
func (s *LeaderboardService) knownMode(mode string) bool {
	for _, m := range s.store.Modes() {
		if m == mode {
			return true
		}
	}
	return false
}
