package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zigbee-go-catalog/internal/coordinator"
	"zigbee-go-catalog/internal/devices"
	"zigbee-go-catalog/internal/ncp"
	"zigbee-go-catalog/internal/store"
	"zigbee-go-catalog/internal/web"
	"zigbee-go-catalog/internal/zcl"
	"zigbee-go-catalog/internal/zcl/clusters"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the YAML config file")
	listDefs := flag.Bool("list-definitions", false, "print the device catalog as JSON and exit")
	flag.Parse()

	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if *listDefs {
		if err := listDefinitions(cfg, bootLogger); err != nil {
			bootLogger.Error("list definitions", "err", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("zigbee-catalog starting", "version", version)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
	logger.Info("goodbye")
}

func run(cfg *Config, logger *slog.Logger) error {
	registry, catalog, err := buildCatalog(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("catalog loaded", "clusters", len(registry.All()), "definitions", catalog.Len())

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	netCfg, err := networkConfig(cfg, db, logger)
	if err != nil {
		return err
	}

	backend, err := ncp.OpenZStack(cfg.Serial.Port, cfg.Serial.Baud, knownNodes(db, logger), logger.With("component", "ncp"))
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	defer backend.Close()

	events := coordinator.NewEventBus(logger.With("component", "events"))
	coord := coordinator.New(backend, db, registry, catalog, events, netCfg, coordinator.NCPConfig{
		Type: "zstack",
		Port: cfg.Serial.Port,
		Baud: cfg.Serial.Baud,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	err = coord.Start(ctx)
	cancel()
	if err != nil {
		coord.Stop()
		return fmt.Errorf("start coordinator: %w", err)
	}

	var poller *coordinator.Poller
	if cfg.Poll != "" {
		if poller, err = coordinator.NewPoller(coord, cfg.Poll, logger); err != nil {
			coord.Stop()
			return err
		}
		poller.Start()
	}

	// No-op when built with the no_automation tag.
	auto, autoWebOpts := initAutomation(coord, cfg, logger)

	webOpts := []web.ServerOption{web.WithVersion(version)}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)
	webServer := web.NewServer(coord, logger.With("component", "web"), webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
		}
	}()

	// No-op when built with the no_mqtt tag.
	mqtt := initMQTT(coord, cfg, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	auto.Stop()
	mqtt.Stop()
	if poller != nil {
		poller.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	coord.Stop()
	return nil
}

// buildCatalog returns the cluster registry and the built-in catalog with
// the JSON definitions of devices_dir overlaid.
func buildCatalog(cfg *Config, logger *slog.Logger) (*zcl.Registry, *devices.Catalog, error) {
	registry := zcl.NewRegistry(logger.With("component", "zcl"))
	clusters.RegisterAll(registry)
	catalog, err := devices.Default(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build catalog: %w", err)
	}
	if err := devices.LoadDir(cfg.DevicesDir, registry, catalog, logger.With("component", "catalog")); err != nil {
		return nil, nil, fmt.Errorf("load device definitions: %w", err)
	}
	return registry, catalog, nil
}

func listDefinitions(cfg *Config, logger *slog.Logger) error {
	_, catalog, err := buildCatalog(cfg, logger)
	if err != nil {
		return err
	}
	all := catalog.All()
	out := make([]devices.Summary, 0, len(all))
	for _, def := range all {
		out = append(out, devices.Summarize(def, nil))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// networkConfig builds the coordinator network parameters. Without a
// configured key the key of the stored network is reused, and a fresh
// network gets a random one.
func networkConfig(cfg *Config, db store.Store, logger *slog.Logger) (coordinator.Config, error) {
	panID, err := coordinator.ParsePanID(cfg.Network.PanID)
	if err != nil {
		return coordinator.Config{}, err
	}
	extPanID, err := coordinator.ParseExtPanID(cfg.Network.ExtPanID)
	if err != nil {
		return coordinator.Config{}, err
	}
	netCfg := coordinator.Config{Channel: cfg.Network.Channel, PanID: panID, ExtPanID: extPanID}

	switch {
	case cfg.Network.NetworkKey != "":
		netCfg.NetworkKey, err = coordinator.ParseNetworkKey(cfg.Network.NetworkKey)
		if err != nil {
			return coordinator.Config{}, err
		}
	default:
		ns, err := db.GetNetworkState()
		if err == nil && ns.NetworkKey != "" {
			if netCfg.NetworkKey, err = coordinator.ParseNetworkKey(ns.NetworkKey); err != nil {
				return coordinator.Config{}, fmt.Errorf("stored network key: %w", err)
			}
			break
		}
		if _, err := rand.Read(netCfg.NetworkKey[:]); err != nil {
			return coordinator.Config{}, fmt.Errorf("generate network key: %w", err)
		}
		logger.Warn("generated a new network key; set network.network_key to keep it across store resets",
			"key", hex.EncodeToString(netCfg.NetworkKey[:]))
	}
	return netCfg, nil
}

// knownNodes seeds the adapter's node table with the stored devices so
// they are addressable before they announce again.
func knownNodes(db store.Store, logger *slog.Logger) []ncp.KnownNode {
	devs, err := db.ListDevices()
	if err != nil {
		logger.Warn("list stored devices", "err", err)
		return nil
	}
	nodes := make([]ncp.KnownNode, 0, len(devs))
	for _, dev := range devs {
		ieee, err := ncp.ParseIEEE(dev.IEEEAddress)
		if err != nil {
			continue
		}
		nodes = append(nodes, ncp.KnownNode{
			IEEE:      ieee,
			ShortAddr: dev.ShortAddress,
			LQI:       dev.LQI,
			LastSeen:  dev.LastSeen,
		})
	}
	return nodes
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
