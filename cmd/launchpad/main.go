package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/runeforge/launchpad/internal/launchpad/api"
	"github.com/runeforge/launchpad/internal/launchpad/bitcoin"
	"github.com/runeforge/launchpad/internal/launchpad/config"
	"github.com/runeforge/launchpad/internal/launchpad/confirmation"
	"github.com/runeforge/launchpad/internal/launchpad/db"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/fee"
	"github.com/runeforge/launchpad/internal/launchpad/identity"
	"github.com/runeforge/launchpad/internal/launchpad/logging"
	"github.com/runeforge/launchpad/internal/launchpad/orchestrator"
	"github.com/runeforge/launchpad/internal/launchpad/rbac"
	"github.com/runeforge/launchpad/internal/launchpad/registry"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case "migrate":
		if err := runMigrate(); err != nil {
			slog.Error("migrate error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("launchpad %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: launchpad <command>

Commands:
  serve     Start the HTTP server and background workers
  migrate   Apply database migrations and exit
  version   Print version information
`)
}

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database migrations applied", "path", cfg.DBPath)
	return nil
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting launchpad",
		"version", version,
		"network", cfg.Network,
		"port", cfg.Port,
		"dbPath", cfg.DBPath,
		"logLevel", cfg.LogLevel,
	)

	if cfg.MnemonicFile == "" {
		return fmt.Errorf("%w: LAUNCHPAD_MNEMONIC_FILE is required", config.ErrMnemonicFileNotSet)
	}

	mnemonic, err := bitcoin.ReadMnemonicFromFile(cfg.MnemonicFile)
	if err != nil {
		return fmt.Errorf("read mnemonic: %w", err)
	}

	seed, err := bitcoin.MnemonicToSeed(mnemonic)
	if err != nil {
		return fmt.Errorf("derive seed: %w", err)
	}

	netParams, network := bitcoin.NetworkParams(cfg.Network)

	masterKey, err := bitcoin.DeriveMasterKey(seed, netParams)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrKeyDerivation, err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	slog.Info("database opened", "path", cfg.DBPath)

	if err := database.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database migrations applied")

	if cfg.OwnerPrincipal == "" {
		return fmt.Errorf("%w: LAUNCHPAD_OWNER_PRINCIPAL is required", config.ErrInvalidConfig)
	}
	owner := domain.Principal(cfg.OwnerPrincipal)
	roles := rbac.NewStore(owner)

	reg := registry.NewStore(cfg.RateLimitPerMinute, []domain.Principal{owner}, roles)

	httpClient := &http.Client{Timeout: config.APITimeout}

	providerURLs := providerURLsFor(network)
	feeBaseURL := mempoolURLFor(network)

	utxoFetcher := bitcoin.NewUTXOFetcher(httpClient, providerURLs, config.RateLimitBlockstream, netParams)
	feeEstimator := bitcoin.NewFeeEstimator(httpClient, feeBaseURL)
	broadcaster := bitcoin.NewEsploraBroadcaster(httpClient, providerURLs)
	runeKeys := bitcoin.NewRuneKeyResolver(httpClient, providerURLs)
	signer := bitcoin.NewLocalSigner(masterKey, netParams, network)
	deriver := &bitcoin.AddressDeriver{MasterKey: masterKey, NetParams: netParams, Network: network}

	feeRefreshInterval, err := time.ParseDuration(cfg.FeeRefreshInterval)
	if err != nil {
		return fmt.Errorf("parse fee refresh interval: %w", err)
	}
	confirmationPollInterval, err := time.ParseDuration(cfg.ConfirmationPollInterval)
	if err != nil {
		return fmt.Errorf("parse confirmation poll interval: %w", err)
	}
	lostTimeout, err := time.ParseDuration(cfg.LostTimeout)
	if err != nil {
		return fmt.Errorf("parse lost timeout: %w", err)
	}

	feeManager := fee.NewManager(feeEstimator, feeRefreshInterval)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	go feeManager.Run(rootCtx)

	orchestratorConfig := orchestrator.Config{
		Network:                  network,
		DefaultFeeRate:           cfg.DefaultFeeRate,
		RequiredConfirmations:    cfg.RequiredConfirmations,
		EnableRetries:            cfg.EnableRetries,
		MaxRetries:               cfg.MaxRetries,
		ConfirmationPollInterval: confirmationPollInterval,
		FeeRefreshInterval:       feeRefreshInterval,
		LostTimeout:              lostTimeout,
		RateLimitPerMinute:       cfg.RateLimitPerMinute,
	}

	engine := orchestrator.NewEngine(
		orchestratorConfig,
		database,
		reg,
		roles,
		feeManager,
		utxoFetcher,
		signer,
		broadcaster,
		runeKeys,
		netParams,
		deriver,
	)

	tracker := confirmation.NewTracker(httpClient, providerURLs, database, engine, lostTimeout)
	go tracker.Run(rootCtx, confirmationPollInterval)

	sessions := identity.NewStore()

	slog.Info("launchpad services initialized",
		"network", cfg.Network,
		"owner", owner,
		"feeRefreshInterval", feeRefreshInterval,
		"confirmationPollInterval", confirmationPollInterval,
	)

	router := api.NewRouter(engine, reg, sessions)

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	srv := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    config.ServerReadTimeout,
		WriteTimeout:   config.ServerWriteTimeout,
		IdleTimeout:    config.ServerIdleTimeout,
		MaxHeaderBytes: config.ServerMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown", "timeout", config.ShutdownTimeout)

	rootCancel()

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func providerURLsFor(network domain.Network) []string {
	if network == domain.NetworkMainnet {
		return []string{config.BlockstreamMainnetURL, config.MempoolMainnetURL}
	}
	return []string{config.BlockstreamTestnetURL, config.MempoolTestnetURL}
}

func mempoolURLFor(network domain.Network) string {
	if network == domain.NetworkMainnet {
		return config.MempoolMainnetURL
	}
	return config.MempoolTestnetURL
}
