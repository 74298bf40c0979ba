package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-syncsign/internal/bridges/syncsign"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	Bridge        BridgeMetrics   `json:"bridge"`
	Entities      EntityMetrics   `json:"entities"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains state stream statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// BridgeMetrics mirrors the bridge's health counters.
type BridgeMetrics struct {
	Status     syncsign.HealthStatus      `json:"status"`
	Entries    *syncsign.EntryCounts      `json:"entries,omitempty"`
	Statistics *syncsign.BridgeStatistics `json:"statistics,omitempty"`
}

// EntityMetrics counts entities by kind and connectivity.
type EntityMetrics struct {
	Total       int            `json:"total"`
	Connected   int            `json:"connected"`
	Unavailable int            `json:"unavailable"`
	ByKind      map[string]int `json:"by_kind"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, bus, bridge and entity statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	health := s.bridge.Health()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.stream.ClientCount(),
		},
		Bridge: BridgeMetrics{
			Status:     health.Status,
			Entries:    health.Entries,
			Statistics: health.Statistics,
		},
		Entities: EntityMetrics{ByKind: make(map[string]int)},
	}

	if s.mqtt != nil {
		metrics.MQTT.Connected = s.mqtt.IsConnected()
	}

	for _, e := range s.bridge.Entities() {
		metrics.Entities.Total++
		metrics.Entities.ByKind[string(e.Kind)]++
		switch {
		case !e.Available:
			metrics.Entities.Unavailable++
		case e.IsOn:
			metrics.Entities.Connected++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
