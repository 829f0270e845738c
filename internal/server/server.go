package server

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/audit"
	"github.com/strefethen/yamaha-remote-go/internal/auth"
	"github.com/strefethen/yamaha-remote-go/internal/config"
	"github.com/strefethen/yamaha-remote-go/internal/db"
	"github.com/strefethen/yamaha-remote-go/internal/events"
	"github.com/strefethen/yamaha-remote-go/internal/mqtt"
	"github.com/strefethen/yamaha-remote-go/internal/openapi"
	"github.com/strefethen/yamaha-remote-go/internal/scheduler"
	"github.com/strefethen/yamaha-remote-go/internal/system"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the event stream upgrade through the request logger.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond))
	})
}

// Options controls server wiring.
type Options struct {
	// DisableBackground skips the startup refresh, the resync schedule and
	// the MQTT bridge (for tests).
	DisableBackground bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	names, err := yamaha.LoadDisplayNames(cfg.SourceNamesPath)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg))

	openapi.RegisterRoutes(router)

	auditService := audit.NewService(cfg, dbPair, nil)
	audit.RegisterRoutes(router, auditService)
	if err := auditService.StartPruneJob(); err != nil {
		dbPair.Close()
		return nil, nil, err
	}

	client := ync.NewClient(cfg.ReceiverHost, cfg.ReceiverTimeout(), nil)
	client.SetRecorder(auditService)

	receiver := yamaha.NewReceiver(client, yamaha.Options{
		Deferrer: yamaha.NewTimerSlot(cfg.VolumeDebounce()),
		Menu: yamaha.MenuOptions{
			PollInterval: cfg.MenuPollInterval(),
			PollAttempts: cfg.MenuPollAttempts,
		},
	})
	yamaha.RegisterRoutes(router, receiver, names)

	hub := events.NewHub(nil)
	detachHub := hub.Attach(receiver)
	events.RegisterRoutes(router, hub, receiver.Snapshot)

	var resync *scheduler.ResyncRunner
	var bridge *mqtt.Bridge
	if !options.DisableBackground {
		initialSync(receiver, cfg.ReceiverTimeout())

		if cfg.ResyncSchedule != "" {
			resync = scheduler.NewResyncRunner(nil, receiver, cfg.ResyncSchedule, 0)
			if err := resync.Start(); err != nil {
				log.Printf("SCHEDULER: %v", err)
				resync = nil
			}
		}

		if cfg.MQTTBroker != "" {
			bridge = mqtt.NewBridge(cfg, receiver, nil)
			if err := bridge.Start(); err != nil {
				log.Printf("MQTT: %v", err)
			}
		}
	}

	providers := system.Providers{Receiver: receiver, History: auditService, Events: hub}
	if resync != nil {
		providers.Resync = resync
	}
	if bridge != nil {
		providers.MQTT = bridge
	}
	system.RegisterRoutes(router, system.NewService(cfg, dbPair, nil, providers))

	registerHealthRoutes(router, healthSources{
		audit:  auditService,
		resync: resync,
		mqtt:   bridge,
		hub:    hub,
	})

	shutdown := func(ctx context.Context) error {
		if ctx == nil {
			ctx = context.Background()
		}
		if bridge != nil {
			bridge.Stop()
		}
		if resync != nil {
			resync.Stop()
		}
		detachHub()
		hub.Close()

		var errs []error
		if err := receiver.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		auditService.StopPruneJob()
		if err := dbPair.Close(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}

	return router, shutdown, nil
}

// initialSync loads state and the source catalog. A receiver that is off the
// network is not fatal: the resync job and the refresh route retry later.
func initialSync(receiver *yamaha.Receiver, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()
	ctx = api.WithRequestID(ctx, "startup")

	if err := receiver.Refresh(ctx); err != nil {
		log.Printf("WARNING: initial receiver refresh failed: %v", err)
		return
	}
	state := receiver.Snapshot()
	log.Printf("Receiver synced: power=%t source=%s volume=%.1f dB", state.Power, state.Source, state.Volume)
}

type healthSources struct {
	audit  *audit.Service
	resync *scheduler.ResyncRunner
	mqtt   *mqtt.Bridge
	hub    *events.Hub
}

func registerHealthRoutes(router chi.Router, sources healthSources) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "yamaha-remote",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		checks := map[string]any{
			"history":       sources.audit.IsHealthy(),
			"event_clients": sources.hub.ClientCount(),
		}
		if sources.resync != nil {
			status := sources.resync.Status()
			checks["receiver"] = status.ConsecutiveFailures == 0
			if status.LastError != "" {
				checks["receiver_error"] = status.LastError
			}
		}
		if sources.mqtt != nil {
			checks["mqtt"] = sources.mqtt.IsConnected()
		}

		status := "ready"
		code := http.StatusOK
		if !sources.audit.IsHealthy() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		return api.WriteJSON(w, code, map[string]any{"status": status, "checks": checks})
	}))
}
