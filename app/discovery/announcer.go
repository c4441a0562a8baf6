// Package discovery announces the backend's broker and dashboard addresses on
// the local network so tablets can find them without manual configuration.
// Best-effort only: losing every announce is harmless, stations can always be
// pointed at the broker by hand.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/kinetic-exhibits/marathon-backend/app/protocol"
)

// Announcement is the datagram payload.
type Announcement struct {
	Service   string `json:"service"`
	NATSURL   string `json:"natsUrl"`
	HTTPAddr  string `json:"httpAddr"`
	Timestamp int64  `json:"timestamp"`
}

// Config holds the announcer settings.
type Config struct {
	Port     int
	Interval time.Duration
	NATSURL  string
	HTTPAddr string
}

// BusPublisher mirrors each announcement onto the broker, so clients already
// connected can discover the dashboard address without listening for UDP.
type BusPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Announcer periodically broadcasts an Announcement over UDP and, when a bus
// is attached, on the discovery topic.
type Announcer struct {
	cfg    Config
	bus    BusPublisher
	logger *slog.Logger
	now    func() time.Time
}

// NewAnnouncer creates an Announcer. bus may be nil to announce over UDP only.
func NewAnnouncer(cfg Config, bus BusPublisher, logger *slog.Logger) *Announcer {
	return &Announcer{cfg: cfg, bus: bus, logger: logger, now: time.Now}
}

// Run broadcasts on the configured interval until ctx is canceled. Send
// failures are logged at debug level and retried on the next tick; they are
// expected on networks that filter broadcast traffic.
func (a *Announcer) Run(ctx context.Context) {
	addr := fmt.Sprintf("255.255.255.255:%d", a.cfg.Port)
	conn, err := net.Dial("udp4", addr)
	if err != nil {
		a.logger.Warn("discovery announcer disabled, cannot open broadcast socket",
			slog.Any("error", err))
		return
	}
	defer conn.Close()

	a.logger.Info("discovery announcer started",
		slog.String("addr", addr), slog.Duration("interval", a.cfg.Interval))

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.announce(ctx, conn)
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("discovery announcer stopped")
			return
		case <-ticker.C:
			a.announce(ctx, conn)
		}
	}
}

func (a *Announcer) announce(ctx context.Context, conn net.Conn) {
	payload, err := json.Marshal(Announcement{
		Service:   "marathon-backend",
		NATSURL:   a.cfg.NATSURL,
		HTTPAddr:  a.cfg.HTTPAddr,
		Timestamp: a.now().UnixMilli(),
	})
	if err != nil {
		a.logger.Error("failed to encode announcement", slog.Any("error", err))
		return
	}
	if conn != nil {
		if _, err := conn.Write(payload); err != nil {
			a.logger.Debug("announce failed", slog.Any("error", err))
		}
	}
	if a.bus != nil {
		if err := a.bus.Publish(ctx, protocol.TopicDiscovery, payload); err != nil {
			a.logger.Debug("bus announce failed", slog.Any("error", err))
		}
	}
}
