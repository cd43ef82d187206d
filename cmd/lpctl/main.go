// Binary lpctl sends one liquidity change or pool lookup through the transaction builder.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"lpmaker-go/internal/config"
	dex "lpmaker-go/internal/dex/solana"
	"lpmaker-go/internal/execution"
	"lpmaker-go/internal/market"
	"lpmaker-go/internal/util"
)

func main() {
	log := util.NewConsoleLogger("info")

	var (
		configPath = flag.String("config", "internal/config/config.yaml", "path to the YAML config")
		kind       = flag.String("kind", "pool", "pool|open|add|remove|claim|close")
		pool       = flag.String("pool", "", "pool address")
		position   = flag.String("position", "", "position id (generated for open)")
		center     = flag.Float64("center", 0, "range center price (defaults to the pool price)")
		width      = flag.Float64("width", 0.02, "range width as a fraction of center")
		bins       = flag.Int("bins", 20, "number of bins")
		notional   = flag.Float64("notional", 0, "quote notional")
		timeout    = flag.Duration("timeout", 15*time.Second, "request timeout")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if *pool == "" {
		log.Fatal().Msg("-pool is required")
	}

	key, err := dex.LoadPrivateKeyFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("wallet")
	}
	client := dex.NewLiquidityClient(
		getEnv("SOLANA_RPC_URL", cfg.Dex.RpcURL),
		getEnv("LPMAKER_BUILDER_URL", cfg.Dex.BuilderBase),
		key,
		getEnv("SOLANA_COMMITMENT", cfg.Dex.Commitment),
	)
	client.PriorityFee = cfg.Dex.PriorityFee

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	info, err := client.GetPool(ctx, *pool)
	if err != nil {
		log.Fatal().Err(err).Msg("pool")
	}
	if *kind == "pool" {
		_ = json.NewEncoder(os.Stdout).Encode(info)
		return
	}

	change, err := buildChange(*kind, *pool, *position, *center, *width, *bins, *notional, info.Price)
	if err != nil {
		log.Fatal().Err(err).Msg("change")
	}
	exec := execution.NewExecutor(log, client)
	receipt, err := exec.Submit(ctx, change)
	if err != nil {
		log.Fatal().Err(err).Msg("submit")
	}
	fmt.Println(receipt.TxID)
}

func buildChange(kind, pool, position string, center, width float64, bins int, notional, poolPrice float64) (execution.Change, error) {
	k := execution.Kind(kind)
	switch k {
	case execution.Open:
		if position == "" {
			position = uuid.NewString()
		}
	case execution.Add, execution.Remove, execution.Claim, execution.Close:
		if position == "" {
			return execution.Change{}, fmt.Errorf("-position required for %s", kind)
		}
	default:
		return execution.Change{}, fmt.Errorf("unknown kind %q", kind)
	}
	if center <= 0 {
		center = poolPrice
	}
	if (k == execution.Open || k == execution.Add) && notional <= 0 {
		return execution.Change{}, fmt.Errorf("-notional must be positive for %s", kind)
	}
	return execution.Change{
		Pair:       pool,
		PositionID: position,
		Kind:       k,
		Range:      market.BinRange{CenterPrice: center, Width: width, BinCount: bins},
		Notional:   notional,
		Price:      poolPrice,
	}, nil
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
