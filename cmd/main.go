package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/csa"
	"tidbyt.dev/csa/config"
	"tidbyt.dev/csa/downloader"
	"tidbyt.dev/csa/logging"
	"tidbyt.dev/csa/metrics"
	"tidbyt.dev/csa/model"
	"tidbyt.dev/csa/parse"
	"tidbyt.dev/csa/publish"
	"tidbyt.dev/csa/storage"
)

var rootCmd = &cobra.Command{
	Use:          "csa",
	Short:        "Connection scan profile router",
	Long:         "Computes Pareto-optimal journey profiles over transit networks",
	SilenceUsage: true,
}

var (
	configPath  string
	source      string
	headers     []string
	backend     string
	storageDir  string
	databaseURL string
	natsURL     string
	metricsAddr string
	logLevel    string
	logFormat   string
	cachePath   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&source, "source", "s", "", "Network URL, zip archive or directory")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"HTTP header for network downloads",
	)
	rootCmd.PersistentFlags().StringVarP(&backend, "storage", "", "", "Journey storage (memory, sqlite or postgres)")
	rootCmd.PersistentFlags().StringVarP(&storageDir, "storage-dir", "", "", "Directory for sqlite storage")
	rootCmd.PersistentFlags().StringVarP(&databaseURL, "database-url", "", "", "Postgres connection string")
	rootCmd.PersistentFlags().StringVarP(&natsURL, "nats-url", "", "", "Publish journeys to this NATS server")
	rootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics-addr", "", "", "Serve prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level")
	rootCmd.PersistentFlags().StringVarP(&logFormat, "log-format", "", "", "Log format (json or text)")
	rootCmd.PersistentFlags().StringVarP(&cachePath, "cache", "", "", "Cache network downloads in this directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

// Loads the config file if one was given, and overrides it with any
// flags that were set. Not validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Defaults()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Network.Source = source
	}
	if flags.Changed("header") {
		parsed, err := parseHeaders(headers)
		if err != nil {
			return nil, fmt.Errorf("invalid header: %w", err)
		}
		if cfg.Network.Headers == nil {
			cfg.Network.Headers = map[string]string{}
		}
		for k, v := range parsed {
			cfg.Network.Headers[k] = v
		}
	}
	if flags.Changed("storage") {
		cfg.Storage.Backend = backend
	}
	if flags.Changed("storage-dir") {
		cfg.Storage.Directory = storageDir
	}
	if flags.Changed("database-url") {
		cfg.Storage.DatabaseURL = databaseURL
	}
	if flags.Changed("nats-url") {
		cfg.Publish.NATSURL = natsURL
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}

	return cfg, nil
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "json" {
		return logging.NewStructuredLogger(os.Stderr, level), nil
	}
	return logging.NewTextLogger(os.Stderr, level), nil
}

func openStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.Directory})
	case "postgres":
		return storage.NewPSQLStorage(cfg.DatabaseURL, false)
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Backend)
}

// Everything a command needs, set up from config.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	manager   *csa.Manager
	collector *metrics.Collector
	publisher publish.Publisher
	server    *http.Server
}

func newApp(cfg *config.Config) (*app, error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	s, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	a.manager = csa.NewManager(s)
	a.manager.Logger = logger
	a.manager.NetworkTimeout = time.Duration(cfg.Network.TimeoutSeconds) * time.Second
	a.manager.NetworkMaxSize = cfg.Network.MaxSizeMB << 20
	if cachePath != "" {
		fs, err := downloader.NewFilesystem(cachePath)
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		fs.Logger = logger
		a.manager.Downloader = fs
	}

	a.collector = metrics.NewCollector(cfg.Routing.TransferMargin, cfg.Routing.WalkSpeed)
	a.manager.Observer = a.collector
	if cfg.Metrics.Addr != "" {
		a.server = a.collector.Serve(cfg.Metrics.Addr, logger)
	}

	if cfg.Publish.NATSURL != "" {
		p, err := publish.NewNATSPublisher(cfg.Publish.NATSURL, publish.NATSOptions{
			Prefix:      cfg.Publish.SubjectPrefix,
			LogSubjects: cfg.Publish.LogSubjects,
			Logger:      logger,
			Metrics:     a.collector,
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		a.publisher = p
		a.manager.Publisher = p
	}

	return a, nil
}

func (a *app) loadNetwork(ctx context.Context) (*csa.LoadedNetwork, error) {
	routeTypes := make([]model.RouteType, 0, len(a.cfg.Network.RouteTypes))
	for _, t := range a.cfg.Network.RouteTypes {
		routeTypes = append(routeTypes, model.RouteType(t))
	}
	return a.manager.LoadNetwork(ctx, a.cfg.Network.Source, a.cfg.Network.Headers, parse.Options{
		ServiceDate:     a.cfg.Network.ServiceDate,
		RouteTypes:      routeTypes,
		MaxWalkDistance: a.cfg.Network.MaxWalkDistance,
	})
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			logging.LogError(a.logger, "stopping metrics server", err)
		}
	}
}
