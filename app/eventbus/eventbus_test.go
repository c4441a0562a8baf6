package eventbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kinetic-exhibits/marathon-backend/app/metrics"
)

func newTestBus(t *testing.T) *EventBus {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEventBus(Config{URL: "nats://127.0.0.1:4222"}, metrics.New(prometheus.NewRegistry()), logger)
}

func TestPublishRejectedWhileDisconnected(t *testing.T) {
	bus := newTestBus(t)

	err := bus.Publish(context.Background(), "leaderboard/submit/response", []byte(`{}`))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeBeforeConnectIsRemembered(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	if err := bus.Subscribe(ctx, "leaderboard/submit"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	// Idempotent: the second call is a no-op.
	if err := bus.Subscribe(ctx, "leaderboard/submit"); err != nil {
		t.Fatalf("Subscribe() second call error = %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if !bus.topics["leaderboard/submit"] {
		t.Error("topic missing from the subscription set")
	}
	if len(bus.topics) != 1 {
		t.Errorf("subscription set has %d topics, want 1", len(bus.topics))
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	bus.Subscribe(ctx, "marathon/config/request")
	bus.Unsubscribe("marathon/config/request")
	bus.Unsubscribe("marathon/config/request")

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.topics["marathon/config/request"] {
		t.Error("topic still in the subscription set after Unsubscribe")
	}
}

func TestInitialStateIsDisconnected(t *testing.T) {
	bus := newTestBus(t)
	if got := bus.State(); got != Disconnected {
		t.Errorf("State() = %v, want Disconnected", got)
	}
}

func TestStateListenerNotifiedOnTransition(t *testing.T) {
	bus := newTestBus(t)

	transitions := make(chan ConnState, 4)
	bus.OnStateChange(func(state ConnState, _ error) {
		transitions <- state
	})

	bus.setState(Connecting, nil)
	bus.setState(Connected, nil)
	bus.setState(Connected, nil) // duplicate transition is suppressed
	bus.setState(Disconnected, errors.New("broker went away"))

	want := []ConnState{Connecting, Connected, Disconnected}
	for _, w := range want {
		select {
		case got := <-transitions:
			if got != w {
				t.Errorf("transition = %v, want %v", got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing transition %v", w)
		}
	}
	select {
	case extra := <-transitions:
		t.Errorf("unexpected extra transition %v", extra)
	default:
	}
}

func TestDefaultsApplied(t *testing.T) {
	bus := newTestBus(t)
	if bus.cfg.ClientID == "" {
		t.Error("client id was not generated")
	}
	if bus.cfg.ReconnectWait <= 0 {
		t.Error("reconnect wait default missing")
	}
	if cap(bus.inbound) == 0 {
		t.Error("inbound queue is unbuffered")
	}
}
