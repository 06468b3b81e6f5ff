// Package net exposes the HTTP surface of a room server: the websocket
// endpoint, health and diagnostics endpoints, the Prometheus scrape target,
// and optional static client hosting.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wildshape/server"
	"wildshape/server/internal/net/ws"
	"wildshape/server/internal/telemetry"
	"wildshape/server/logging"
)

type HTTPHandlerConfig struct {
	ClientDir      string
	Logger         *log.Logger
	Events         logging.Publisher
	Metrics        *telemetry.PromMetrics
	SendQueueDepth int
}

func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{
		Logger:         logger,
		Events:         cfg.Events,
		SendQueueDepth: cfg.SendQueueDepth,
	})
	mux.HandleFunc("/ws", wsHandler.Handle)

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status       string                     `json:"status"`
			ServerTime   int64                      `json:"serverTime"`
			StateVersion uint64                     `json:"stateVersion"`
			Heartbeat    int64                      `json:"heartbeatMillis"`
			Players      []server.DiagnosticsPlayer `json:"players"`
		}{
			Status:       "ok",
			ServerTime:   time.Now().UnixMilli(),
			StateVersion: hub.StateVersion(),
			Heartbeat:    server.HeartbeatInterval().Milliseconds(),
			Players:      hub.DiagnosticsSnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.Metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	if cfg.ClientDir != "" {
		mux.Handle("/", nethttp.FileServer(nethttp.Dir(cfg.ClientDir)))
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(code)
	w.Write([]byte(message))
}
