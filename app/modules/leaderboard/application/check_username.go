package leaderboardservice

import (
	"context"
	"encoding/json"
	"log/slog"

	leaderboarddomain "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/domain"
	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
)

// CheckUsernameRequest asks whether a username is still available. GameMode
// is optional: without one the check spans every mode.
type CheckUsernameRequest struct {
	Username  string `json:"username"`
	StationID *int   `json:"stationId,omitempty"`
	GameMode  string `json:"gameMode,omitempty"`
}

// CheckUsernameResponse reports availability. A profanity-blocked name is
// reported exactly like a taken one: isUnique false, exists true, the same
// generic message, the same modes field. The client must not be able to tell
// the two apart, at the boolean level or at the wire level.
type CheckUsernameResponse struct {
	Username  string   `json:"username"`
	IsUnique  bool     `json:"isUnique"`
	Exists    bool     `json:"exists"`
	Modes     []string `json:"modes,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// msgNameUnavailable is the one signal for every unavailable name, whether it
// collided or was blocked. Matches the gate's own generic reason.
const msgNameUnavailable = "username not available"

// HandleCheckUsername processes one leaderboard/check-username payload.
func (s *LeaderboardService) HandleCheckUsername(ctx context.Context, payload []byte) {
	var req CheckUsernameRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.metrics.DecodeErrors.Inc()
		s.logger.Warn("dropping malformed username check", slog.Any("error", err))
		return
	}

	resp := s.checkUsername(req.Username, req.GameMode)
	resp.Timestamp = s.timestamp()

	topic := protocol.ResponseTopic(protocol.TopicCheckUsernameResponse, req.StationID)
	s.publish(ctx, topic, resp)
}

// checkUsername runs the gate, then the store. Both unavailable paths emit a
// byte-identical field shape so a client cannot fingerprint which one fired.
func (s *LeaderboardService) checkUsername(username, mode string) CheckUsernameResponse {
	resp := CheckUsernameResponse{Username: username}

	if username == "" {
		resp.Message = "missing required field: username"
		return resp
	}
	if mode != "" && !s.knownMode(mode) {
		resp.Message = "unknown game mode: " + mode
		return resp
	}

	unavailable := func(modes []string) CheckUsernameResponse {
		resp.Exists = true
		resp.Message = msgNameUnavailable
		resp.Modes = modes
		return resp
	}

	if check := leaderboarddomain.CheckName(username); check.Blocked {
		s.logger.Info("username rejected by language gate", slog.String("username", username))
		if mode != "" {
			return unavailable([]string{mode})
		}
		return unavailable(s.store.Modes())
	}

	if mode != "" {
		if _, found := s.store.FindByUsername(mode, username); found {
			return unavailable([]string{mode})
		}
		resp.IsUnique = true
		return resp
	}

	if modes := s.store.ExistsAcrossModes(username); len(modes) > 0 {
		return unavailable(modes)
	}
	resp.IsUnique = true
	return resp
}
