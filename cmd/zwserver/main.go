package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"zwave-go-home/internal/config"
	"zwave-go-home/internal/driver"
	"zwave-go-home/internal/notify"
	"zwave-go-home/internal/persist"
	"zwave-go-home/internal/stats"
	"zwave-go-home/internal/transport"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	UserPath           string `yaml:"user_path"`
	SaveConfiguration  bool   `yaml:"save_configuration"`
	NotifyTransactions bool   `yaml:"notify_transactions"`
	PollInterval       string `yaml:"poll_interval"`
	AssumeAwake        bool   `yaml:"assume_awake"`
	MQTT               struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	WS struct {
		Enabled        bool     `yaml:"enabled"`
		Listen         string   `yaml:"listen"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"ws"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	return nil
}

func main() {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zwave-go-home starting", "version", version)

	pollInterval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		pollInterval = 30 * time.Second
	}
	opts := config.Options{
		UserPath:           cfg.UserPath,
		SaveConfiguration:  cfg.SaveConfiguration,
		NotifyTransactions: cfg.NotifyTransactions,
		PollInterval:       pollInterval,
		AssumeAwake:        cfg.AssumeAwake,
	}

	st, err := stats.Open(cfg.UserPath + "/zwstats.db")
	if err != nil {
		logger.Error("open stats store", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	tr, err := transport.OpenSerial(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		logger.Error("open serial port", "err", err)
		os.Exit(1)
	}
	defer tr.Close()

	drv := driver.New(tr, opts, st, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := drv.Identify(ctx); err != nil {
		logger.Error("identify controller", "err", err)
		cancel()
		os.Exit(1)
	}

	// Persisted config is keyed by home id, so it can only be loaded once
	// Identify has run, but it must still land before Start creates nodes
	// from the init-data bitmap — otherwise a restored node's query stage
	// would be clobbered back to StageNone just because the bitmap also
	// reports it present.
	if cfg.UserPath != "" && opts.SaveConfiguration {
		if netCfg, err := persist.LoadConfig(cfg.UserPath, drv.HomeID()); err == nil {
			drv.RestoreNodes(netCfg)
			logger.Info("restored persisted network config", "nodes", len(netCfg.Nodes))
		} else {
			logger.Info("no persisted network config", "err", err)
		}
		if buttons, err := persist.LoadButtonMap(cfg.UserPath); err == nil {
			drv.RestoreButtonMap(buttons)
		} else {
			logger.Info("no persisted button map", "err", err)
		}
	}

	if err := drv.Start(ctx); err != nil {
		logger.Error("start driver", "err", err)
		cancel()
		os.Exit(1)
	}
	cancel()
	logger.Info("driver ready", "home_id", fmt.Sprintf("0x%08x", drv.HomeID()), "node_id", drv.OwnNodeID())

	var mqttSink *notify.MQTTSink
	if cfg.MQTT.Enabled {
		mqttSink, err = notify.NewMQTTSink(notify.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, logger)
		if err != nil {
			logger.Error("connect mqtt sink", "err", err)
		} else {
			drv.Notifications().Attach(mqttSink)
			defer mqttSink.Close()
		}
	}

	var wsSink *notify.WSSink
	if cfg.WS.Enabled {
		wsSink = notify.NewWSSink(logger, cfg.WS.AllowedOrigins)
		go wsSink.Run()
		drv.Notifications().Attach(wsSink)
		go func() {
			logger.Info("websocket notify server starting", "addr", cfg.WS.Listen)
			if err := serveWS(cfg.WS.Listen, wsSink); err != nil {
				logger.Error("websocket server", "err", err)
			}
		}()
		defer wsSink.Stop()
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	go drv.Run(runCtx)
	drv.StartPolling(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	runCancel()

	if cfg.UserPath != "" && opts.SaveConfiguration {
		netCfg := buildNetworkConfig(drv, pollInterval)
		if err := persist.SaveConfig(cfg.UserPath, netCfg); err != nil {
			logger.Error("save network config", "err", err)
		}
	}

	logger.Info("goodbye")
}

func buildNetworkConfig(drv *driver.Driver, pollInterval time.Duration) persist.NetworkConfig {
	cfg := persist.NetworkConfig{
		Version:      persist.ConfigVersion,
		HomeID:       drv.HomeID(),
		NodeID:       drv.OwnNodeID(),
		PollInterval: pollInterval.Nanoseconds(),
	}
	for _, r := range drv.Nodes().All() {
		cfg.Nodes = append(cfg.Nodes, persist.NodeConfig{
			ID:       r.ID,
			Basic:    r.DeviceClass.Basic,
			Generic:  r.DeviceClass.Generic,
			Specific: r.DeviceClass.Specific,
			Stage:    int(r.Stage),
		})
	}
	return cfg
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
	if cfg.UserPath == "" {
		cfg.UserPath = "."
	}
	if cfg.PollInterval == "" {
		cfg.PollInterval = "30s"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zwave"
	}
	if cfg.WS.Listen == "" {
		cfg.WS.Listen = "127.0.0.1:8090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func serveWS(addr string, sink *notify.WSSink) error {
	mux := http.NewServeMux()
	mux.Handle("/notify", sink)
	server := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 15 * time.Second}
	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
