package leaderboardservice

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	leaderboarddomain "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/domain"
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
)

// KioskWriteRequest is the kiosk registration payload. The kiosk never sends
// a score: it is derived from distance.
type KioskWriteRequest struct {
	Username string  `json:"username"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
}

// KioskTop10 is the flat kiosk rankings payload, rebroadcast after every
// accepted write.
type KioskTop10 struct {
	Entries   []leaderboarddb.RankedEntry `json:"entries"`
	Timestamp int64                       `json:"timestamp"`
}

// HandleKioskWrite processes one MarathonFM/leaderboard/write payload. The
// write topic has no response channel: a blocked or malformed write is logged
// and dropped, and the kiosk only ever sees the refreshed top-10 broadcast.
func (s *LeaderboardService) HandleKioskWrite(ctx context.Context, payload []byte) {
	var req KioskWriteRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.metrics.DecodeErrors.Inc()
		s.logger.Warn("dropping malformed kiosk write", slog.Any("error", err))
		return
	}
	if req.Username == "" || req.Distance < 0 {
		s.logger.Warn("dropping invalid kiosk write", slog.String("username", req.Username))
		return
	}
	if check := leaderboarddomain.CheckName(req.Username); check.Blocked {
		s.logger.Info("kiosk write rejected by language gate", slog.String("username", req.Username))
		return
	}

	score := int(math.Round(req.Distance))
	res, err := s.kiosk.UpsertIfHigher(leaderboarddb.KioskMode, req.Username, score, req.Distance, req.Time, 0)
	if err != nil {
		s.logger.Error("kiosk write failed", slog.Any("error", err))
		return
	}
	s.logger.Info("kiosk entry written",
		slog.String("username", req.Username),
		slog.Int("score", score),
		slog.Bool("created", res.Created),
	)

	s.PublishKioskTop10(ctx)
}

// PublishKioskTop10 broadcasts the flat board's current rankings. Also fired
// by the periodic leaderboard broadcast.
func (s *LeaderboardService) PublishKioskTop10(ctx context.Context) {
	top := s.KioskRankings()
	if top == nil {
		top = []leaderboarddb.RankedEntry{}
	}
	s.publish(ctx, protocol.TopicKioskTop10, KioskTop10{Entries: top, Timestamp: s.timestamp()})
}

// KioskCheckNameRequest asks whether a name is available on the flat board.
type KioskCheckNameRequest struct {
	Username string `json:"username"`
}

// HandleKioskCheckName processes one terminal's checkname request and answers
// on that terminal's own response topic, so the left and right kiosks never
// see each other's answers.
func (s *LeaderboardService) HandleKioskCheckName(ctx context.Context, side protocol.KioskSide, payload []byte) {
	var req KioskCheckNameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.metrics.DecodeErrors.Inc()
		s.logger.Warn("dropping malformed kiosk name check",
			slog.String("side", string(side)), slog.Any("error", err))
		return
	}

	resp := CheckUsernameResponse{Username: req.Username, Timestamp: s.timestamp()}
	if req.Username == "" {
		resp.Message = "missing required field: username"
		s.publish(ctx, protocol.KioskCheckNameResponseTopic(side), resp)
		return
	}

	blocked := leaderboarddomain.CheckName(req.Username).Blocked
	if blocked {
		s.logger.Info("kiosk name rejected by language gate",
			slog.String("side", string(side)), slog.String("username", req.Username))
	}
	_, taken := s.kiosk.FindByUsername(leaderboarddb.KioskMode, req.Username)

	// Blocked and taken produce the same wire shape.
	if blocked || taken {
		resp.Exists = true
		resp.Message = msgNameUnavailable
	} else {
		resp.IsUnique = true
	}

	s.publish(ctx, protocol.KioskCheckNameResponseTopic(side), resp)
}
