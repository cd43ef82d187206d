// Binary maker runs the liquidity pipeline: feed snapshots in, analytics, liquidity changes out.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lpmaker-go/internal/cache/redis"
	"lpmaker-go/internal/config"
	dex "lpmaker-go/internal/dex/solana"
	"lpmaker-go/internal/exchange"
	"lpmaker-go/internal/execution"
	"lpmaker-go/internal/maker"
	"lpmaker-go/internal/metrics"
	"lpmaker-go/internal/paper"
	"lpmaker-go/internal/strategy"
	"lpmaker-go/internal/util"
)

func main() {
	path := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		bootLog := util.NewLogger("info")
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)
	if cfg.App.Console {
		log = util.NewConsoleLogger(cfg.App.LogLevel)
	}
	log = log.With().Str("app", cfg.App.Name).Str("env", cfg.App.Env).Logger()

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("maker stopped")
	}
	log.Info().Msg("shutting down")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	feed := exchange.NewFeed(cfg.Exchange.Name, cfg.Symbols(), log.With().Str("component", "feed").Logger(),
		exchange.WithPollInterval(time.Duration(cfg.Exchange.DexScreener.PollInterval)*time.Millisecond),
		exchange.WithStubInterval(time.Duration(cfg.Exchange.StubIntervalMs)*time.Millisecond),
		exchange.WithDexScreenerConfig(cfg.Exchange.DexScreener.BaseURL, cfg.Exchange.DexScreener.DefaultChain),
		exchange.WithAssumedSpreadBps(cfg.Exchange.AssumedSpreadBps),
		exchange.WithBufferLimits(cfg.Exchange.MaxQuotes, cfg.Exchange.MaxTrades),
	)

	modes, pools, err := pairModes(cfg)
	if err != nil {
		return err
	}

	backend, err := newBackend(cfg, pools)
	if err != nil {
		return err
	}
	ledger := paper.NewLedger(1024)
	recorders := []execution.Recorder{ledger}
	if cfg.Execution.ReceiptsPath != "" {
		journal, err := paper.NewJSONLRecorder(cfg.Execution.ReceiptsPath)
		if err != nil {
			return fmt.Errorf("receipts journal: %w", err)
		}
		defer journal.Close()
		recorders = append(recorders, journal)
	}
	exec := execution.NewExecutor(log.With().Str("component", "executor").Logger(), backend, recorders...)

	opts := []maker.Option{
		maker.WithLogger(log.With().Str("component", "maker").Logger()),
		maker.WithComponents(maker.NewComponents(cfg.Components, log, nil)),
		maker.WithModes(modes),
		maker.WithRiskLimits(cfg.Risk),
	}
	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg.Redis.ClientConfig)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		opts = append(opts, maker.WithStore(redis.NewPositionStore(client, cfg.Redis.KeyPrefix)))
	}
	mm, err := maker.New(cfg.Trading, exec, opts...)
	if err != nil {
		return err
	}
	restored, err := mm.Restore(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("position restore failed")
	} else if restored > 0 {
		log.Info().Int("positions", restored).Float64("fees", mm.CollectedFees()).Msg("positions restored")
	}

	srv := metrics.Serve(cfg.App.MetricsAddr, metrics.Route{
		Pattern: "/positions",
		Handler: metrics.PositionsHandler(mm.ActivePositions),
	})
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if cfg.Exchange.Discovery.Enabled && feed.Provider() == exchange.ProviderDexScreener {
		exchange.NewPairDiscovery(log.With().Str("component", "discovery").Logger(), feed, cfg.Symbols(),
			cfg.Exchange.DexScreener, cfg.Exchange.Discovery).Start(ctx)
	}

	log.Info().
		Str("provider", feed.Provider()).
		Str("execution", cfg.Execution.Mode).
		Int("pairs", len(cfg.Pairs)).
		Dur("interval", mm.Config().UpdateInterval).
		Msg("maker started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx) })
	g.Go(func() error { return mm.Run(gctx, feed) })
	err = g.Wait()

	log.Info().
		Int("receipts", len(ledger.Snapshot())).
		Int("opens", ledger.Count(execution.Open)).
		Int("closes", ledger.Count(execution.Close)).
		Float64("fees", mm.CollectedFees()).
		Msg("session summary")
	for _, sum := range ledger.Summaries() {
		log.Info().
			Str("pair", sum.Pair).
			Int("opens", sum.Opens).
			Int("claims", sum.Claims).
			Int("closes", sum.Closes).
			Int("rejected", sum.Rejected).
			Float64("fees", sum.Fees).
			Msg("pair summary")
	}
	return err
}

// pairModes keys configured modes and pool addresses by the pair names snapshots are served under.
func pairModes(cfg *config.Config) (map[string]strategy.Mode, map[string]string, error) {
	modes := make(map[string]strategy.Mode, len(cfg.Pairs))
	pools := make(map[string]string, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		key, err := exchange.PairKey(cfg.Exchange.Name, p.Symbol, cfg.Exchange.DexScreener.DefaultChain)
		if err != nil {
			return nil, nil, fmt.Errorf("pair %q: %w", p.Symbol, err)
		}
		modes[key] = strategy.ParseMode(p.Mode)
		pools[key] = exchange.PoolAddress(p.Symbol)
	}
	return modes, pools, nil
}

func newBackend(cfg *config.Config, pools map[string]string) (execution.Backend, error) {
	switch cfg.Execution.Mode {
	case config.ExecutionDry:
		return nil, nil
	case config.ExecutionPaper:
		return paper.NewAccount(cfg.Paper.StartingCash, cfg.Paper.MaxPositionNotional,
			paper.WithFeeRate(cfg.Paper.FeeRate),
			paper.WithPoolShare(cfg.Paper.PoolShare),
		), nil
	case config.ExecutionLive:
		key, err := walletKey(cfg)
		if err != nil {
			return nil, fmt.Errorf("wallet: %w", err)
		}
		client := dex.NewLiquidityClient(cfg.Dex.RpcURL, cfg.Dex.BuilderBase, key, cfg.Dex.Commitment)
		client.PriorityFee = cfg.Dex.PriorityFee
		client.Pools = pools
		return client, nil
	default:
		return nil, fmt.Errorf("unknown execution mode %q", cfg.Execution.Mode)
	}
}

func walletKey(cfg *config.Config) (solanago.PrivateKey, error) {
	if cfg.Wallet.PrivateKeyBase58 != "" {
		return solanago.PrivateKeyFromBase58(cfg.Wallet.PrivateKeyBase58)
	}
	return dex.LoadPrivateKeyFromEnv()
}
