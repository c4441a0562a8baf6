package leaderboardservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
)

// SubmitScoreRequest is the score submission payload. Score and StationID are
// pointers because older producers omit them; a missing score is a validation
// failure, a missing station id just broadens the response topic.
type SubmitScoreRequest struct {
	Username  string  `json:"username"`
	Score     *int    `json:"score"`
	Distance  float64 `json:"distance"`
	Time      float64 `json:"time"`
	StationID *int    `json:"stationId,omitempty"`
	GameMode  string  `json:"gameMode"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// SubmitScoreResponse reports the outcome of one submission.
type SubmitScoreResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Username  string `json:"username,omitempty"`
	GameMode  string `json:"gameMode,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Exact response strings the tablets match on. Do not reword.
const (
	msgEntryCreated = "New entry created"
	msgScoreUpdated = "Score updated (new high score)"
	msgScoreKept    = "Score not updated (not higher than current)"
)

// HandleSubmitScore processes one leaderboard/submit payload. A malformed
// payload is dropped without a response (the requester cannot be identified);
// a well-formed but invalid one is answered with a failure naming the
// problem. The response always goes to the station-suffixed topic when the
// request carried a station id.
func (s *LeaderboardService) HandleSubmitScore(ctx context.Context, payload []byte) {
	var req SubmitScoreRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.metrics.DecodeErrors.Inc()
		s.logger.Warn("dropping malformed score submission", slog.Any("error", err))
		return
	}

	if reason := s.validateSubmission(req); reason != "" {
		s.metrics.ScoreSubmissions.WithLabelValues("rejected").Inc()
		s.respondSubmit(ctx, req, SubmitScoreResponse{Success: false, Message: reason})
		return
	}

	stationID := 0
	if req.StationID != nil {
		stationID = *req.StationID
	}

	res, err := s.store.UpsertIfHigher(req.GameMode, req.Username, *req.Score, req.Distance, req.Time, stationID)
	if err != nil {
		s.metrics.ScoreSubmissions.WithLabelValues("rejected").Inc()
		s.respondSubmit(ctx, req, SubmitScoreResponse{
			Success: false,
			Message: fmt.Sprintf("unknown game mode: %s", req.GameMode),
		})
		return
	}

	var message, result string
	switch {
	case res.Created:
		message, result = msgEntryCreated, "created"
	case res.Applied:
		message, result = msgScoreUpdated, "updated"
	default:
		message, result = msgScoreKept, "unchanged"
	}
	s.metrics.ScoreSubmissions.WithLabelValues(result).Inc()

	s.logger.Info("score submission handled",
		slog.String("username", req.Username),
		slog.String("mode", req.GameMode),
		slog.Int("score", *req.Score),
		slog.String("result", result),
	)
	s.respondSubmit(ctx, req, SubmitScoreResponse{
		Success:  true,
		Message:  message,
		Username: req.Username,
		GameMode: req.GameMode,
	})
}

func (s *LeaderboardService) validateSubmission(req SubmitScoreRequest) string {
	switch {
	case req.Username == "":
		return "missing required field: username"
	case req.Score == nil:
		return "missing required field: score"
	case *req.Score < 0:
		return "score must be >= 0"
	case req.GameMode == "":
		return "missing required field: gameMode"
	case !s.knownMode(req.GameMode):
		return fmt.Sprintf("unknown game mode: %s", req.GameMode)
	}
	return ""
}

func (s *LeaderboardService) respondSubmit(ctx context.Context, req SubmitScoreRequest, resp SubmitScoreResponse) {
	resp.Timestamp = s.timestamp()
	topic := protocol.ResponseTopic(protocol.TopicScoreSubmitResponse, req.StationID)
	s.publish(ctx, topic, resp)
}

// publish serializes and sends one response. Failures are logged and
// swallowed: a lost response must never abort the processing loop.
func (s *LeaderboardService) publish(ctx context.Context, topic string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to serialize response", slog.String("topic", topic), slog.Any("error", err))
		return
	}
	if err := s.publisher.Publish(ctx, topic, data); err != nil {
		s.logger.Warn("response lost", slog.String("topic", topic), slog.Any("error", err))
	}
}
