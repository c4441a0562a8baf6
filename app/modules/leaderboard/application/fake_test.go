package leaderboardservice

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
	leaderboarddb "github.com/kinetic-exhibits/marathon-backend/app/modules/leaderboard/infrastructure/repositories"
)

// FakePublisher records every publish for assertion. PublishFunc, when set,
// overrides the default success behavior.
type FakePublisher struct {
	PublishFunc func(ctx context.Context, topic string, payload []byte) error

	mu        sync.Mutex
	published []PublishedMessage
}

type PublishedMessage struct {
	Topic   string
	Payload []byte
}

func (f *FakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	f.published = append(f.published, PublishedMessage{Topic: topic, Payload: payload})
	f.mu.Unlock()
	if f.PublishFunc != nil {
		return f.PublishFunc(ctx, topic, payload)
	}
	return nil
}

func (f *FakePublisher) Published() []PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]PublishedMessage(nil), f.published...)
}

func (f *FakePublisher) Last(t *testing.T) PublishedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing was published")
	}
	return f.published[len(f.published)-1]
}

func decodeInto(t *testing.T, payload []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(payload, v); err != nil {
		t.Fatalf("failed to decode published payload: %v", err)
	}
}

func newTestService(t *testing.T) (*LeaderboardService, *FakePublisher) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := leaderboarddb.NewStore(t.TempDir(), []string{"rowing", "running", "cycling"}, logger)
	if err != nil {
		t.Fatalf("failed to create main store: %v", err)
	}
	kiosk, err := leaderboarddb.NewStore(t.TempDir(), []string{leaderboarddb.KioskMode}, logger)
	if err != nil {
		t.Fatalf("failed to create kiosk store: %v", err)
	}

	pub := &FakePublisher{}
	svc := NewLeaderboardService(store, kiosk, pub, metrics.New(prometheus.NewRegistry()), logger)
	svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return svc, pub
}

func intPtr(v int) *int { return &v }
