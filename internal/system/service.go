package system

import (
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/strefethen/yamaha-remote-go/internal/config"
	"github.com/strefethen/yamaha-remote-go/internal/scheduler"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
)

// Version is the service version, set at build time or defaulted.
var Version = "1.0.0"

// DBPair interface for dependency injection (matches db.DBPair).
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// StateProvider exposes the cached receiver state.
type StateProvider interface {
	Snapshot() yamaha.State
}

// ResyncStatusProvider reports the periodic refresh outcome.
type ResyncStatusProvider interface {
	Status() scheduler.Status
}

// ConnectionStatusProvider reports whether an outbound connection is up.
type ConnectionStatusProvider interface {
	IsConnected() bool
}

// HealthProvider reports whether a component is healthy.
type HealthProvider interface {
	IsHealthy() bool
}

// ClientCounter reports connected event stream clients.
type ClientCounter interface {
	ClientCount() int
}

// Providers are the optional status sources. Leave a field nil when the
// component is disabled.
type Providers struct {
	Receiver StateProvider
	Resync   ResyncStatusProvider
	MQTT     ConnectionStatusProvider
	History  HealthProvider
	Events   ClientCounter
}

// Service reports process and component status.
// Uses reader connection only as this service only performs SELECT queries.
type Service struct {
	cfg       config.Config
	logger    *log.Logger
	reader    *sql.DB
	providers Providers
	startTime time.Time
}

// NewService creates a new system service.
func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger, providers Providers) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		cfg:       cfg,
		logger:    logger,
		reader:    dbPair.Reader(),
		providers: providers,
		startTime: time.Now(),
	}
}

// SystemInfo holds system information.
type SystemInfo struct {
	Version         string          `json:"version"`
	Uptime          int64           `json:"uptime_seconds"`
	MemoryUsageMB   float64         `json:"memory_mb"`
	SQLiteConnected bool            `json:"sqlite_connected"`
	ReceiverHost    string          `json:"receiver_host"`
	Receiver        *yamaha.State   `json:"receiver,omitempty"`
	ResyncEnabled   bool            `json:"resync_enabled"`
	LastResyncAt    *time.Time      `json:"last_resync_at,omitempty"`
	MQTTEnabled     bool            `json:"mqtt_enabled"`
	MQTTConnected   bool            `json:"mqtt_connected"`
	HistoryHealthy  bool            `json:"history_healthy"`
	EventClients    int             `json:"event_clients"`
	AttentionItems  []AttentionItem `json:"attention_items"`
}

// AttentionItem represents an item that needs user attention.
type AttentionItem struct {
	Type        string         `json:"type"`
	Severity    string         `json:"severity"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	ResolveHint string         `json:"resolve_hint,omitempty"`
}

// GetSystemInfo returns current system information.
func (s *Service) GetSystemInfo() (*SystemInfo, error) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := &SystemInfo{
		Version:         Version,
		Uptime:          int64(time.Since(s.startTime).Seconds()),
		MemoryUsageMB:   float64(memStats.Alloc) / 1024 / 1024,
		SQLiteConnected: s.reader.Ping() == nil,
		ReceiverHost:    s.cfg.ReceiverHost,
		HistoryHealthy:  true,
		AttentionItems:  []AttentionItem{},
	}

	if s.providers.Receiver != nil {
		state := s.providers.Receiver.Snapshot()
		info.Receiver = &state
	}
	if s.providers.History != nil {
		info.HistoryHealthy = s.providers.History.IsHealthy()
	}
	if s.providers.Events != nil {
		info.EventClients = s.providers.Events.ClientCount()
	}

	var resync *scheduler.Status
	if s.providers.Resync != nil {
		status := s.providers.Resync.Status()
		resync = &status
		info.ResyncEnabled = true
		if !status.LastRunAt.IsZero() {
			info.LastResyncAt = &status.LastRunAt
		}
	}
	if s.providers.MQTT != nil {
		info.MQTTEnabled = true
		info.MQTTConnected = s.providers.MQTT.IsConnected()
	}

	info.AttentionItems = s.checkAttentionItems(info, resync)
	return info, nil
}

func (s *Service) checkAttentionItems(info *SystemInfo, resync *scheduler.Status) []AttentionItem {
	items := []AttentionItem{}

	if resync != nil && resync.ConsecutiveFailures > 0 {
		items = append(items, AttentionItem{
			Type:     "receiver_unreachable",
			Severity: "error",
			Message:  "The receiver did not answer the last state refresh",
			Details: map[string]any{
				"consecutive_failures": resync.ConsecutiveFailures,
				"last_error":           resync.LastError,
			},
			ResolveHint: "Check that the receiver is on the network and RECEIVER_HOST is correct",
		})
	}

	if !info.SQLiteConnected || !info.HistoryHealthy {
		items = append(items, AttentionItem{
			Type:        "history_unavailable",
			Severity:    "warning",
			Message:     "Command history is not being recorded",
			ResolveHint: "Check free disk space and SQLITE_DB_PATH",
		})
	}

	if info.MQTTEnabled && !info.MQTTConnected {
		items = append(items, AttentionItem{
			Type:        "mqtt_disconnected",
			Severity:    "warning",
			Message:     "Not connected to the MQTT broker",
			Details:     map[string]any{"broker": s.cfg.MQTTBroker},
			ResolveHint: "The bridge reconnects automatically once the broker is reachable",
		})
	}

	return items
}
