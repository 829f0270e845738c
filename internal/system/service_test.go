package system

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/yamaha-remote-go/internal/config"
	"github.com/strefethen/yamaha-remote-go/internal/db"
	"github.com/strefethen/yamaha-remote-go/internal/scheduler"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
)

type stubState struct{ state yamaha.State }

func (s stubState) Snapshot() yamaha.State { return s.state }

type stubResync struct{ status scheduler.Status }

func (s stubResync) Status() scheduler.Status { return s.status }

type stubConnection bool

func (s stubConnection) IsConnected() bool { return bool(s) }

type stubHealth bool

func (s stubHealth) IsHealthy() bool { return bool(s) }

type stubClients int

func (s stubClients) ClientCount() int { return int(s) }

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func TestGetSystemInfo_AllHealthy(t *testing.T) {
	cfg := config.Config{ReceiverHost: "192.168.1.20"}
	service := NewService(cfg, setupTestDB(t), nil, Providers{
		Receiver: stubState{state: yamaha.State{Power: true, Source: "NET RADIO"}},
		Resync:   stubResync{status: scheduler.Status{LastRunAt: time.Now()}},
		MQTT:     stubConnection(true),
		History:  stubHealth(true),
		Events:   stubClients(2),
	})

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.Equal(t, Version, info.Version)
	require.True(t, info.SQLiteConnected)
	require.Equal(t, "192.168.1.20", info.ReceiverHost)
	require.Equal(t, "NET RADIO", info.Receiver.Source)
	require.True(t, info.ResyncEnabled)
	require.NotNil(t, info.LastResyncAt)
	require.True(t, info.MQTTEnabled)
	require.True(t, info.MQTTConnected)
	require.Equal(t, 2, info.EventClients)
	require.Empty(t, info.AttentionItems)
}

func TestGetSystemInfo_DisabledComponents(t *testing.T) {
	service := NewService(config.Config{}, setupTestDB(t), nil, Providers{})

	info, err := service.GetSystemInfo()
	require.NoError(t, err)
	require.Nil(t, info.Receiver)
	require.False(t, info.ResyncEnabled)
	require.Nil(t, info.LastResyncAt)
	require.False(t, info.MQTTEnabled)
	require.True(t, info.HistoryHealthy)
	require.NotNil(t, info.AttentionItems)
	require.Empty(t, info.AttentionItems)
}

func TestGetSystemInfo_AttentionItems(t *testing.T) {
	service := NewService(config.Config{MQTTBroker: "tcp://broker:1883"}, setupTestDB(t), nil, Providers{
		Resync:  stubResync{status: scheduler.Status{ConsecutiveFailures: 3, LastError: "refused"}},
		MQTT:    stubConnection(false),
		History: stubHealth(false),
	})

	info, err := service.GetSystemInfo()
	require.NoError(t, err)

	types := []string{}
	for _, item := range info.AttentionItems {
		types = append(types, item.Type)
	}
	require.Equal(t, []string{"receiver_unreachable", "history_unavailable", "mqtt_disconnected"}, types)
	require.Equal(t, 3, info.AttentionItems[0].Details["consecutive_failures"])
	require.Equal(t, "tcp://broker:1883", info.AttentionItems[2].Details["broker"])
}

func TestSystemInfoRoute(t *testing.T) {
	service := NewService(config.Config{ReceiverHost: "receiver.local"}, setupTestDB(t), nil, Providers{})
	router := chi.NewRouter()
	RegisterRoutes(router, service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/system/info", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"object":"system_info"`)
	require.Contains(t, rec.Body.String(), `"receiver_host":"receiver.local"`)
	require.Contains(t, rec.Body.String(), `"attention_items":[]`)
}
