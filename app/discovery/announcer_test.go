package discovery

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
)

func newTestAnnouncer(bus BusPublisher) *Announcer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := NewAnnouncer(Config{
		Port:     18830,
		Interval: time.Second,
		NATSURL:  "nats://192.168.1.10:4222",
		HTTPAddr: ":8080",
	}, bus, logger)
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	return a
}

func TestAnnouncePayload(t *testing.T) {
	a := newTestAnnouncer(nil)

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go a.announce(context.Background(), client)

	buf := make([]byte, 1024)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("no announcement received: %v", err)
	}

	var ann Announcement
	if err := json.Unmarshal(buf[:n], &ann); err != nil {
		t.Fatalf("announcement is not valid JSON: %v", err)
	}
	if ann.Service != "marathon-backend" {
		t.Errorf("service = %q", ann.Service)
	}
	if ann.NATSURL != "nats://192.168.1.10:4222" {
		t.Errorf("natsUrl = %q", ann.NATSURL)
	}
	if ann.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d", ann.Timestamp)
	}
}

type fakeBus struct {
	topic   string
	payload []byte
}

func (f *fakeBus) Publish(_ context.Context, topic string, payload []byte) error {
	f.topic = topic
	f.payload = payload
	return nil
}

func TestAnnounceMirroredOnBus(t *testing.T) {
	bus := &fakeBus{}
	a := newTestAnnouncer(bus)

	a.announce(context.Background(), nil)

	if bus.topic != protocol.TopicDiscovery {
		t.Fatalf("announced on %q, want %q", bus.topic, protocol.TopicDiscovery)
	}
	var ann Announcement
	if err := json.Unmarshal(bus.payload, &ann); err != nil {
		t.Fatalf("bus announcement is not valid JSON: %v", err)
	}
	if ann.HTTPAddr != ":8080" {
		t.Errorf("httpAddr = %q", ann.HTTPAddr)
	}
}
