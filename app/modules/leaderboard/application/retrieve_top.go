package leaderboardservice

import (
	"context"
	"encoding/json"
	"log/slog"

	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
)

// Top10Request asks for the current rankings. GameMode is optional: without
// one the response carries every mode.
type Top10Request struct {
	StationID *int   `json:"stationId,omitempty"`
	GameMode  string `json:"gameMode,omitempty"`
}

// Top10Response carries the rankings keyed per mode, whether one mode or all
// were requested, so consumers parse one shape.
type Top10Response struct {
	Success      bool                                    `json:"success"`
	Message      string                                  `json:"message,omitempty"`
	Leaderboards map[string][]leaderboarddb.RankedEntry `json:"leaderboards,omitempty"`
	Timestamp    int64                                   `json:"timestamp"`
}

// HandleTop10Request processes one leaderboard/top10/request payload. An
// empty payload is a valid all-modes request.
func (s *LeaderboardService) HandleTop10Request(ctx context.Context, payload []byte) {
	var req Top10Request
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			s.metrics.DecodeErrors.Inc()
			s.logger.Warn("dropping malformed top10 request", slog.Any("error", err))
			return
		}
	}

	resp := Top10Response{Timestamp: s.timestamp()}

	if req.GameMode != "" && !s.knownMode(req.GameMode) {
		resp.Message = "unknown game mode: " + req.GameMode
	} else {
		resp.Success = true
		resp.Leaderboards = s.rankings(req.GameMode)
	}

	topic := protocol.ResponseTopic(protocol.TopicTop10Response, req.StationID)
	s.publish(ctx, topic, resp)
}

// rankings collects the top entries for one mode, or all modes when mode is
// empty. Also feeds the periodic leaderboard broadcast.
func (s *LeaderboardService) rankings(mode string) map[string][]leaderboarddb.RankedEntry {
	modes := s.store.Modes()
	if mode != "" {
		modes = []string{mode}
	}

	boards := make(map[string][]leaderboarddb.RankedEntry, len(modes))
	for _, m := range modes {
		top, err := s.store.Top(m, topN)
		if err != nil {
			continue
		}
		if top == nil {
			top = []leaderboarddb.RankedEntry{}
		}
		boards[m] = top
	}
	return boards
}

// Rankings exposes the current top-N per mode for the broadcast scheduler and
// the dashboard.
func (s *LeaderboardService) Rankings() map[string][]leaderboarddb.RankedEntry {
	return s.rankings("")
}

// KioskRankings exposes the flat kiosk board's current top-N.
func (s *LeaderboardService) KioskRankings() []leaderboarddb.RankedEntry {
	top, err := s.kiosk.Top(leaderboarddb.KioskMode, topN)
	if err != nil {
		return nil
	}
	return top
}
