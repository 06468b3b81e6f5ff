// Package app wires configuration, logging, telemetry, the room hub, and
// the HTTP surface into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	server "wildshape/server"
	servernet "wildshape/server/internal/net"
	"wildshape/server/internal/telemetry"
	"wildshape/server/logging"
	loggingSinks "wildshape/server/logging/sinks"
)

// FileConfig is the YAML layout of the server configuration file. Every
// field is optional; zero values fall back to defaults, and environment
// variables override the file.
type FileConfig struct {
	Listen    string `yaml:"listen"`
	ClientDir string `yaml:"clientDir"`

	Room struct {
		ID       string `yaml:"id"`
		Secret   string `yaml:"secret"`
		DMSecret string `yaml:"dmSecret"`
		SaveFile string `yaml:"saveFile"`
	} `yaml:"room"`

	Heartbeat struct {
		IntervalMillis int `yaml:"intervalMillis"`
		TimeoutMillis  int `yaml:"timeoutMillis"`
	} `yaml:"heartbeat"`

	Journal struct {
		KeyframeInterval int `yaml:"keyframeInterval"`
		Capacity         int `yaml:"capacity"`
		MaxAgeSeconds    int `yaml:"maxAgeSeconds"`
	} `yaml:"journal"`

	Logging struct {
		Sinks    []string `yaml:"sinks"`
		JSONPath string   `yaml:"jsonPath"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`
}

// LoadFileConfig reads the YAML configuration. A missing file yields the
// zero config so the server runs on defaults alone.
func LoadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *FileConfig, logger telemetry.Logger) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("CLIENT_DIR"); v != "" {
		cfg.ClientDir = v
	}
	if v := os.Getenv("ROOM_ID"); v != "" {
		cfg.Room.ID = v
	}
	if v := os.Getenv("ROOM_SECRET"); v != "" {
		cfg.Room.Secret = v
	}
	if v := os.Getenv("DM_SECRET"); v != "" {
		cfg.Room.DMSecret = v
	}
	if v := os.Getenv("SAVE_FILE"); v != "" {
		cfg.Room.SaveFile = v
	}
	if raw := os.Getenv("KEYFRAME_INTERVAL"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			cfg.Journal.KeyframeInterval = value
		} else {
			logger.Printf("invalid KEYFRAME_INTERVAL=%q: %v", raw, err)
		}
	}
}

// Config carries process-level dependencies into Run.
type Config struct {
	ConfigPath string
	Logger     telemetry.Logger
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	fileCfg, err := LoadFileConfig(cfg.ConfigPath)
	if err != nil {
		return err
	}
	applyEnvOverrides(&fileCfg, telemetryLogger)

	logConfig := logging.DefaultConfig()
	if len(fileCfg.Logging.Sinks) > 0 {
		logConfig.EnabledSinks = fileCfg.Logging.Sinks
	}
	if fileCfg.Logging.JSONPath != "" {
		logConfig.JSON.FilePath = fileCfg.Logging.JSONPath
	}

	var sinks []logging.NamedSink
	if logConfig.HasSink("console") {
		sinks = append(sinks, logging.NamedSink{Name: "console", Sink: loggingSinks.NewConsole(os.Stdout)})
	}
	if logConfig.HasSink("json") && logConfig.JSON.FilePath != "" {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			telemetryLogger.Printf("failed to open json log %s: %v", logConfig.JSON.FilePath, err)
		} else {
			sinks = append(sinks, logging.NamedSink{Name: "json", Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval)})
		}
	}

	router, err := logging.NewRouter(logConfig, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(context.Background()); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	var metrics *telemetry.PromMetrics
	hubCfg := server.DefaultHubConfig()
	hubCfg.Logger = telemetryLogger
	hubCfg.Events = router
	if fileCfg.Metrics.Enabled {
		metrics = telemetry.NewPromMetrics("wildshape")
		hubCfg.Metrics = metrics
	}
	if fileCfg.Room.ID != "" {
		hubCfg.RoomID = fileCfg.Room.ID
	}
	hubCfg.RoomSecret = fileCfg.Room.Secret
	hubCfg.DMSecret = fileCfg.Room.DMSecret
	hubCfg.SaveFile = fileCfg.Room.SaveFile
	if fileCfg.Heartbeat.IntervalMillis > 0 {
		hubCfg.HeartbeatInterval = time.Duration(fileCfg.Heartbeat.IntervalMillis) * time.Millisecond
		hubCfg.HeartbeatTimeout = 0 // re-derived from the interval
		hubCfg.SweepInterval = 0
	}
	if fileCfg.Heartbeat.TimeoutMillis > 0 {
		hubCfg.HeartbeatTimeout = time.Duration(fileCfg.Heartbeat.TimeoutMillis) * time.Millisecond
	}
	if fileCfg.Journal.KeyframeInterval > 0 {
		hubCfg.KeyframeInterval = fileCfg.Journal.KeyframeInterval
	}
	if fileCfg.Journal.Capacity > 0 {
		hubCfg.JournalCapacity = fileCfg.Journal.Capacity
	}
	if fileCfg.Journal.MaxAgeSeconds > 0 {
		hubCfg.JournalMaxAge = time.Duration(fileCfg.Journal.MaxAgeSeconds) * time.Second
	}

	hub := server.NewHubWithConfig(hubCfg)
	defer hub.Close()

	stop := make(chan struct{})
	go hub.RunHeartbeatSweep(stop)
	defer close(stop)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:      fileCfg.ClientDir,
		Logger:         fallbackLogger,
		Events:         router,
		Metrics:        metrics,
		SendQueueDepth: hubCfg.SendQueueDepth,
	})

	listen := fileCfg.Listen
	if listen == "" {
		listen = ":8080"
	}
	srv := &http.Server{Addr: listen, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	telemetryLogger.Printf("server listening on %s", listen)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}
