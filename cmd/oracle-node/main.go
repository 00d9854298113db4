package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/justmert/near-oracle/pkg/config"
	"github.com/justmert/near-oracle/pkg/feeder/client"
	"github.com/justmert/near-oracle/pkg/feeder/oracle"
	"github.com/justmert/near-oracle/pkg/feeder/scheduler"
	"github.com/justmert/near-oracle/pkg/feeder/tx"
	"github.com/justmert/near-oracle/pkg/logging"
	"github.com/justmert/near-oracle/pkg/metrics"
	"github.com/justmert/near-oracle/pkg/server/aggregator"
	"github.com/justmert/near-oracle/pkg/server/api"
	"github.com/justmert/near-oracle/pkg/server/sources"
	"github.com/justmert/near-oracle/pkg/version"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (empty: defaults and environment only)")
	envFile    = flag.String("env", ".env", "Optional dotenv file loaded before configuration")
	showVer    = flag.Bool("version", false, "Show version and exit")
	dryRun     = flag.Bool("dry-run", false, "Dry run mode: aggregate and log reports but don't submit them")
	verify     = flag.Bool("verify", false, "Read back get_price after every report and log the deviation")
	once       = flag.Bool("once", false, "Run a single update cycle and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("near-oracle version %s\n", version.Version)
		os.Exit(0)
	}

	// A missing dotenv file is not an error; real environment variables win.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		cfg.Ledger.DryRun = true
	}
	if *verify {
		cfg.Ledger.Verify = true
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Init(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSize:    cfg.Logging.File.MaxSize,
		MaxBackups: cfg.Logging.File.MaxBackups,
		MaxAge:     cfg.Logging.File.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Starting near-oracle",
		"version", version.Version,
		"network", cfg.Ledger.Network,
		"contract", cfg.Ledger.ContractID,
		"account", cfg.Ledger.AccountID,
		"assets", cfg.AssetIDs())

	if cfg.Ledger.DryRun {
		logger.Warn("DRY RUN MODE ENABLED - Reports will be logged but NOT submitted to the contract")
	}
	if cfg.Ledger.Verify {
		logger.Info("VERIFICATION ENABLED - Reports will be compared against on-chain prices")
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
		go func() {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
				logging.Error("Metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Node stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	zl := logger.ZerologLogger()

	rpc, err := client.NewClient(client.ClientConfig{
		Endpoints: cfg.Ledger.RPCEndpoints,
		Timeout:   cfg.Ledger.Timeout.ToDuration(),
		Logger:    zl,
	})
	if err != nil {
		return fmt.Errorf("failed to create RPC client: %w", err)
	}

	if status, err := rpc.Status(ctx); err != nil {
		logger.Warn("Failed to query node status", "endpoint", rpc.CurrentEndpoint(), "error", err)
	} else {
		logger.Info("Connected to NEAR RPC",
			"endpoint", rpc.CurrentEndpoint(),
			"chain_id", status.ChainID,
			"height", status.LatestBlockHeight,
			"syncing", status.Syncing)
	}

	submitter, err := newSubmitter(cfg, zl)
	if err != nil {
		return err
	}

	contract := oracle.NewContract(oracle.ContractConfig{
		Viewer:     rpc,
		Submitter:  submitter,
		ContractID: cfg.Ledger.ContractID,
		Logger:     zl,
	})

	att := oracle.NewAttestation(cfg.Ledger.Attestation.MrEnclave, cfg.Ledger.Attestation.IssuedAtMs, time.Now())
	registered, err := oracle.EnsureRegistered(ctx, contract, cfg.Ledger.AccountID, cfg.Ledger.Attestation.CodeHash, att, zl)
	if err != nil {
		return fmt.Errorf("node registration failed: %w", err)
	}
	if registered {
		logger.Info("Registered node with oracle contract", "account", cfg.Ledger.AccountID)
	}

	for _, asset := range cfg.Assets {
		for _, src := range asset.Sources {
			logger.Debug("Configured source",
				"asset", asset.ID,
				"source", src.Name,
				"path", src.Path,
				"weight", src.EffectiveWeight())
		}
	}

	fetcher := sources.NewFetcher(sources.FetcherConfig{
		Timeout:              cfg.Node.FetchTimeout.ToDuration(),
		FailureWarnThreshold: cfg.Node.FailureWarnThreshold,
	}, logger)

	agg, err := aggregator.NewAggregator(aggregator.ModeMedian, fetcher, logger)
	if err != nil {
		return fmt.Errorf("failed to create aggregator: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Assets:            cfg.Assets,
		Interval:          cfg.Node.UpdateInterval.ToDuration(),
		AssetDelay:        cfg.Node.AssetDelay.ToDuration(),
		EnforceMinSources: cfg.Node.EnforceMinSources,
	}, agg, contract, zl)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	if cfg.Ledger.Verify {
		sched.SetVerifier(contract)
	}

	var (
		server   *api.Server
		wsServer *api.WebSocketServer
	)
	if cfg.Server.Enabled {
		server = api.NewServer(cfg.Server.HTTP.Addr, sched, fetcher.Tally(), logger)
		sched.SetPublisher(server)

		if cfg.Server.WebSocket.Enabled {
			wsServer = api.NewWebSocketServer(cfg.Server.WebSocket.Addr, logger)
			server.SetWebSocketServer(wsServer)
			go func() {
				if err := wsServer.Start(context.Background()); err != nil {
					logger.Error("WebSocket server error", "error", err)
				}
			}()
		}

		go func() {
			if err := server.Start(); err != nil {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if server != nil {
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Warn("HTTP server shutdown failed", "error", err)
			}
		}
		if wsServer != nil {
			wsServer.Stop()
		}
	}()

	if *once {
		result := sched.RunCycle(ctx)
		logger.Info("Single cycle finished",
			"cycle_id", result.ID,
			"published", result.Published(),
			"attempted", len(result.Assets),
			"skipped", result.Skipped)
		return nil
	}

	logger.Info("Starting update loop",
		"interval", cfg.Node.UpdateInterval.ToDuration(),
		"asset_delay", cfg.Node.AssetDelay.ToDuration())
	return sched.Run(ctx)
}

func newSubmitter(cfg *config.Config, zl zerolog.Logger) (tx.Submitter, error) {
	if cfg.Ledger.DryRun {
		return tx.NewDryRunSubmitter(cfg.Ledger.AccountID, zl), nil
	}

	relay, err := tx.NewRelaySubmitter(tx.RelayConfig{
		URL:      cfg.Ledger.Signer.URL,
		Token:    cfg.Ledger.SignerToken(),
		SignerID: cfg.Ledger.AccountID,
		Timeout:  cfg.Ledger.Timeout.ToDuration(),
		Logger:   zl,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create signing relay submitter: %w", err)
	}
	return relay, nil
}
