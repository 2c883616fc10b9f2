package server

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	metrics "github.com/hashicorp/go-metrics"
	"github.com/spf13/cobra"

	"github.com/stephnangue/porter/config"
	"github.com/stephnangue/porter/credential"
	porterhttp "github.com/stephnangue/porter/http"
	"github.com/stephnangue/porter/listener/api"
	log "github.com/stephnangue/porter/logger"
	"github.com/stephnangue/porter/provider"
	"github.com/stephnangue/porter/respcache"
)

const (
	// Subsystem names for logging
	subsystemCore     = "core"
	subsystemListener = "listener"
	subsystemBroker   = "broker"
	subsystemIssuer   = "issuer"
	subsystemProvider = "provider"
)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Porter server that responds to API requests",
		Long: `
Usage: porter server [options]

  This command starts a Porter server that responds to API requests.
  Start a server with a configuration file:

      $ porter server --config=/etc/porter/config.hcl
  `,
		RunE: run,
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/porter.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := buildLogger(conf)
	defer logger.Close()

	if err := setupMetrics(); err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	infoKeys := make([]string, 0, 10)
	info := make(map[string]string)
	addInfo := func(key, value string) {
		info[key] = value
		infoKeys = append(infoKeys, key)
	}
	addInfo("log level", conf.LogLevel)
	addInfo("log format", conf.LogFormat)
	addInfo("log file", conf.LogFile)
	addInfo("api address", conf.Listener.Address)
	addInfo("issuer address", conf.Issuer.Address)

	broker, err := buildBroker(conf, logger)
	if err != nil {
		return err
	}

	factory, err := buildClientFactory(conf, broker, logger)
	if err != nil {
		return err
	}

	props := &porterhttp.HandlerProperties{
		Broker:  broker,
		Factory: factory,
		Logger:  logger.WithSubsystem(subsystemCore),
	}

	respTTL, err := conf.GetResponseCacheTTL(respcache.DefaultTTL)
	if err != nil {
		return fmt.Errorf("invalid response cache ttl: %w", err)
	}
	if respTTL > 0 {
		rc, err := respcache.New(respTTL, logger.WithSubsystem("respcache"))
		if err != nil {
			return fmt.Errorf("failed to build response cache: %w", err)
		}
		defer rc.Close()
		props.RespCache = rc
		addInfo("response cache ttl", respTTL.String())
	} else {
		addInfo("response cache ttl", "disabled")
	}

	ln, err := api.NewApiListener(api.ApiListenerConfig{
		Logger:      logger.WithSubsystem(subsystemListener),
		Address:     conf.Listener.Address,
		TLSCertFile: conf.Listener.TLSCertFile,
		TLSKeyFile:  conf.Listener.TLSKeyFile,
		TLSEnabled:  conf.Listener.TLSEnabled,
	}, porterhttp.Handler(props))
	if err != nil {
		return fmt.Errorf("error initializing listener: %w", err)
	}

	sort.Strings(infoKeys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Porter server configuration:\n\n")
	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", k, info[k])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Porter server started! Log data will stream in below:\n")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ln.Start(ctx); err != nil {
		return fmt.Errorf("listener error: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed successfully\n")
	return nil
}

func buildLogger(conf *config.Config) log.Logger {
	logConfig := &log.Config{
		Level:     log.ParseLogLevel(conf.LogLevel),
		Format:    log.ParseOutputFormat(conf.LogFormat),
		Subsystem: subsystemCore,
		Outputs:   []io.Writer{os.Stdout},
	}
	if conf.LogFile != "" {
		logConfig.FileConfig = log.DefaultFileConfig(conf.LogFile)
	}
	return log.NewZerologLogger(logConfig)
}

// setupMetrics installs the in-memory sink behind the global go-metrics
// entry points used by the broker.
func setupMetrics() error {
	inm := metrics.NewInmemSink(10*time.Second, time.Minute)
	metrics.DefaultInmemSignal(inm)

	metricsConf := metrics.DefaultConfig("porter")
	metricsConf.EnableHostname = false

	_, err := metrics.NewGlobal(metricsConf, inm)
	return err
}

func buildBroker(conf *config.Config, logger log.Logger) (*credential.Broker, error) {
	timeout, err := conf.Issuer.GetTimeout(credential.DefaultIssueTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer timeout: %w", err)
	}
	cacheTTL, err := conf.Issuer.GetCacheTTL(credential.DefaultCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer cache_ttl: %w", err)
	}
	refreshBuffer, err := conf.Issuer.GetRefreshBuffer(credential.DefaultRefreshBuffer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer refresh_buffer: %w", err)
	}

	transport := credential.NewSharedTransportManager(logger.WithSubsystem(subsystemIssuer))
	issuer := credential.NewTokenIssuerClient(credential.IssuerConfig{
		Address:   conf.Issuer.Address,
		Timeout:   timeout,
		RateLimit: conf.Issuer.RateLimit,
		RateBurst: conf.Issuer.RateBurst,
	}, transport, logger.WithSubsystem(subsystemIssuer))

	cache := credential.NewTokenCache(refreshBuffer)
	return credential.NewBroker(cache, issuer, cacheTTL, logger.WithSubsystem(subsystemBroker)), nil
}

func buildClientFactory(conf *config.Config, broker *credential.Broker, logger log.Logger) (*provider.ClientFactory, error) {
	configs := make(map[credential.Provider]provider.ClientConfig, len(conf.Providers))
	for _, block := range conf.Providers {
		p, err := credential.ParseProvider(block.Name)
		if err != nil {
			return nil, err
		}
		configs[p] = provider.ClientConfig{
			BaseURL:       block.BaseURL,
			DefaultScopes: block.DefaultScopes,
		}
	}
	return provider.NewClientFactory(broker, configs, logger.WithSubsystem(subsystemProvider)), nil
}
