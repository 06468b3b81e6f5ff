package server

import (
	"time"

	"wildshape/server/internal/telemetry"
	"wildshape/server/logging"
)

const (
	// DefaultRoomID is the room served when no explicit id is configured.
	DefaultRoomID = "default"

	defaultHeartbeatInterval = 2 * time.Second
	defaultHeartbeatTimeout  = 3 * defaultHeartbeatInterval
	defaultSweepInterval     = defaultHeartbeatInterval
	defaultKeyframeInterval  = 32
	defaultJournalCapacity   = 8
	defaultJournalMaxAge     = 30 * time.Second
	defaultSendQueueDepth    = 64
)

// HubConfig tunes a room hub. Zero values fall back to the defaults.
type HubConfig struct {
	RoomID            string
	RoomSecret        string
	DMSecret          string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	SweepInterval     time.Duration
	// KeyframeInterval is the number of versions between journalled full
	// snapshots used to answer resync requests cheaply.
	KeyframeInterval int
	JournalCapacity  int
	JournalMaxAge    time.Duration
	SendQueueDepth   int
	SaveFile         string
	Logger           telemetry.Logger
	Metrics          telemetry.Metrics
	Events           logging.Publisher
	Clock            func() time.Time
}

// DefaultHubConfig returns the tuning used in production.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		RoomID:            DefaultRoomID,
		HeartbeatInterval: defaultHeartbeatInterval,
		HeartbeatTimeout:  defaultHeartbeatTimeout,
		SweepInterval:     defaultSweepInterval,
		KeyframeInterval:  defaultKeyframeInterval,
		JournalCapacity:   defaultJournalCapacity,
		JournalMaxAge:     defaultJournalMaxAge,
		SendQueueDepth:    defaultSendQueueDepth,
	}
}

func (c *HubConfig) applyDefaults() {
	base := DefaultHubConfig()
	if c.RoomID == "" {
		c.RoomID = base.RoomID
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = base.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 3 * c.HeartbeatInterval
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.HeartbeatInterval
	}
	if c.KeyframeInterval <= 0 {
		c.KeyframeInterval = base.KeyframeInterval
	}
	if c.JournalCapacity <= 0 {
		c.JournalCapacity = base.JournalCapacity
	}
	if c.JournalMaxAge <= 0 {
		c.JournalMaxAge = base.JournalMaxAge
	}
	if c.SendQueueDepth <= 0 {
		c.SendQueueDepth = base.SendQueueDepth
	}
	if c.Events == nil {
		c.Events = logging.NopPublisher()
	}
	if c.Metrics == nil {
		c.Metrics = telemetry.NopMetrics()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// HeartbeatInterval exposes the default cadence for the diagnostics endpoint.
func HeartbeatInterval() time.Duration { return defaultHeartbeatInterval }
