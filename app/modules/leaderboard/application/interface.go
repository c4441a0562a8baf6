package leaderboardservice

import "context"

// EventPublisher is the outbound side of the broker session. Publish is
// best-effort: while the session is down it fails fast and the response is
// simply lost, which the protocol tolerates.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}
