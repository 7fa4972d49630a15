package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DalaiLlaama/card/internal/clients"
	"github.com/DalaiLlaama/card/internal/config"
	"github.com/DalaiLlaama/card/internal/constants"
	"github.com/DalaiLlaama/card/internal/services"
	"github.com/DalaiLlaama/card/internal/stores"
	"github.com/DalaiLlaama/card/internal/utils/address"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error loading .env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigch
		log.Info().Msg("stopping")
		cancel()
	}()

	markers, err := stores.NewLocalMarkerStore(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open marker store")
	}
	defer markers.Close()

	network, err := resolveNetwork(ctx, markers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve network")
	}
	endpoints := network.Endpoints(cfg.PublicUrl, os.Getenv)
	log.Info().Str("network", string(network)).Str("rpc", endpoints.RpcUrl).Str("hub", endpoints.HubUrl).Msg("network selected")

	ethClient, err := ethclient.DialContext(ctx, endpoints.RpcUrl)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to eth client")
	}
	defer ethClient.Close()

	ks, err := stores.NewLocalKeyStore(cfg.KeyStorePassword, cfg.KeyStorePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize key store")
	}
	walletHex := cfg.WalletAddress
	if walletHex == "" {
		if walletHex, err = ks.DefaultAddress(); err != nil {
			log.Fatal().Err(err).Msg("no wallet configured, run cmd/init first")
		}
	}
	wallet, err := address.Parse(walletHex)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid wallet address")
	}
	if !ks.HasKey(ctx, wallet.Hex()) {
		log.Fatal().Str("wallet", wallet.Hex()).Msg("wallet key not in keystore")
	}

	channelUrl := cfg.ChannelClientUrl
	if channelUrl == "" {
		channelUrl = endpoints.HubUrl
	}
	hub := clients.NewHubBridge(clients.NewHttpClient(channelUrl, cfg.IOTimeout), cfg.StatusInterval, log)
	state := services.NewChannelStateStore()
	hub.OnStateChange(state.Update)

	if err := hub.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start channel client")
	}
	log.Info().Str("wallet", wallet.Hex()).Str("token", hub.Options().TokenAddress.Hex()).Msg("channel client started")

	ledger := services.NewEvmLedger(ethClient, ks)
	history := services.NewHistory(constants.MaxHistoryItems)

	refunds := services.NewRefundProtocol(ledger, markers, wallet, log)
	if err := refunds.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("refund recovery failed")
	}

	minimum := services.NewMinimumBalanceEstimator(ledger, state)
	if err := minimum.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial minimum balance")
	}

	deposits, err := services.NewDepositReconciler(ledger, hub, state, markers, minimum, refunds, history, wallet, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize deposit reconciler")
	}
	swaps := services.NewSwapReconciler(hub, state, log)
	controller := services.NewAutopayController(state, cfg.LowBalanceThreshold, log)
	watcher := services.NewSyncStatusWatcher(state, markers, history, controller, log)
	custodial := services.NewCustodialPoller(log)
	payments := services.NewPaymentExecutor(hub, state, controller, history, log)
	board := services.NewStatusBoard(wallet, state, history, controller, watcher)
	control := services.NewControlPlane(cfg.WsAddr, controller, payments, board, cfg.IOTimeout, log)

	scheduler := services.NewScheduler(cfg.IOTimeout, log)
	scheduler.Prime(
		services.Task{Name: "deposit", Run: deposits.Reconcile},
		services.Task{Name: "swap", Run: swaps.Reconcile},
	)
	scheduler.Every(
		services.Task{Name: "deposit", Interval: cfg.DepositInterval, Run: deposits.Reconcile},
		services.Task{Name: "swap", Interval: cfg.SwapInterval, Run: swaps.Reconcile},
		services.Task{Name: "status", Interval: cfg.StatusInterval, Run: watcher.Check},
		services.Task{Name: "custodial", Interval: cfg.CustodialInterval, Run: custodial.Poll},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return control.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("agent stopped")
	}
	log.Info().Msg("stopped")
}

// Reads the network selector, recording the default when none is set
func resolveNetwork(ctx context.Context, markers stores.MarkerStore) (config.Network, error) {
	raw, err := markers.Get(ctx, stores.KeyNetwork)
	if errors.Is(err, stores.ErrKeyNotFound) {
		raw = constants.DefaultNetwork
		if err := markers.Set(ctx, stores.KeyNetwork, raw); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	return config.ParseNetwork(raw)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}
