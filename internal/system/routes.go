package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/apperrors"
)

// RegisterRoutes wires system routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/system/info", api.Handler(getSystemInfo(service)))
}

// getSystemInfo handles GET /v1/system/info
func getSystemInfo(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		info, err := service.GetSystemInfo()
		if err != nil {
			return apperrors.NewInternalError("Failed to get system info")
		}

		return api.WriteResource(w, http.StatusOK, formatSystemInfo(info))
	}
}

// formatSystemInfo formats SystemInfo for JSON response.
func formatSystemInfo(info *SystemInfo) map[string]any {
	result := map[string]any{
		"object":           "system_info",
		"version":          info.Version,
		"uptime_seconds":   info.Uptime,
		"memory_mb":        info.MemoryUsageMB,
		"sqlite_connected": info.SQLiteConnected,
		"receiver_host":    info.ReceiverHost,
		"resync_enabled":   info.ResyncEnabled,
		"mqtt_enabled":     info.MQTTEnabled,
		"mqtt_connected":   info.MQTTConnected,
		"history_healthy":  info.HistoryHealthy,
		"event_clients":    info.EventClients,
		"attention_items":  info.AttentionItems,
	}

	if info.Receiver != nil {
		result["receiver"] = info.Receiver
	}
	if info.LastResyncAt != nil {
		result["last_resync_at"] = api.RFC3339Millis(*info.LastResyncAt)
	}

	return result
}
