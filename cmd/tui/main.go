package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lpmaker-go/internal/config"
	"lpmaker-go/internal/market"
	"lpmaker-go/internal/paper"
	"lpmaker-go/internal/strategy"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	path := flag.String("config", defaultConfigPath, "path to the YAML config")
	flag.Parse()
	configPath := locateConfig(*path)
	reader := bufio.NewReader(os.Stdin)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== LP Maker Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit trading and risk knobs")
		fmt.Println("3) Edit pairs")
		fmt.Println("4) Edit discovery settings")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch maker")
		fmt.Println("7) Show live positions")
		fmt.Println("8) Show recent receipts")
		fmt.Println("9) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editTrading(reader, cfg)
		case "3":
			editPairs(reader, cfg)
		case "4":
			editDiscovery(reader, cfg)
		case "5":
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(os.Stderr, "config invalid, not saved:\n%v\n", err)
			} else if err := config.Save(configPath, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launchMaker(reader, configPath)
		case "7":
			showPositions(cfg.App.MetricsAddr)
		case "8":
			showReceipts(cfg.Execution.ReceiptsPath, 15)
		case "9":
			reloaded, err := config.Load(configPath)
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Feed: %s | execution: %s\n", cfg.Exchange.Name, cfg.Execution.Mode)
	for _, p := range cfg.Pairs {
		fmt.Printf("  %-40s %s\n", p.Symbol, strategy.ParseMode(p.Mode))
	}
	fmt.Printf("Update interval: %s | max positions: %d\n", cfg.Trading.UpdateInterval, cfg.Trading.MaxPositions)
	fmt.Printf("Position notional: $%.2f | min profit score: %.2f\n", cfg.Trading.PositionNotional, cfg.Trading.MinProfitThreshold)
	fmt.Printf("Per-position cap: $%.2f | portfolio cap: $%.2f\n", cfg.Risk.MaxNotionalPerPosition, cfg.Risk.MaxPortfolioNotional)
	fmt.Printf("Bin width: %.2f%% - %.2f%%\n", cfg.Components.Bins.MinBinWidth*100, cfg.Components.Bins.MaxBinWidth*100)
	if cfg.Execution.Mode == config.ExecutionPaper {
		fmt.Printf("Paper cash: $%.2f | fee rate %.2f%% | pool share %.2f%%\n",
			cfg.Paper.StartingCash, cfg.Paper.FeeRate*100, cfg.Paper.PoolShare*100)
	}
	if cfg.Exchange.Discovery.Enabled {
		fmt.Println("Discovery keywords:", strings.Join(cfg.Exchange.Discovery.Keywords, ", "))
		fmt.Printf("Discovery max pairs: %d (per keyword %d)\n", cfg.Exchange.Discovery.MaxPairs, cfg.Exchange.Discovery.MaxPairsPerKeyword)
	}
}

func editTrading(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Trading / Risk ---")
	secs := promptFloat(reader, "Update interval (s)", cfg.Trading.UpdateInterval.Seconds())
	if secs > 0 {
		cfg.Trading.UpdateInterval = time.Duration(secs * float64(time.Second))
	}
	cfg.Trading.MaxPositions = int(promptFloat(reader, "Max positions", float64(cfg.Trading.MaxPositions)))
	cfg.Trading.PositionNotional = promptFloat(reader, "Position notional (USD)", cfg.Trading.PositionNotional)
	cfg.Trading.MinProfitThreshold = promptFloat(reader, "Min profit score", cfg.Trading.MinProfitThreshold)
	cfg.Risk.MaxNotionalPerPosition = promptFloat(reader, "Max notional per position (USD, 0 = off)", cfg.Risk.MaxNotionalPerPosition)
	cfg.Risk.MaxPortfolioNotional = promptFloat(reader, "Max portfolio notional (USD, 0 = off)", cfg.Risk.MaxPortfolioNotional)
	cfg.Components.Bins.MinBinWidth = promptPercent(reader, "Min bin width (%)", cfg.Components.Bins.MinBinWidth)
	cfg.Components.Bins.MaxBinWidth = promptPercent(reader, "Max bin width (%)", cfg.Components.Bins.MaxBinWidth)
}

func editPairs(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Pairs ---")
	for i, p := range cfg.Pairs {
		fmt.Printf("%d) %s [%s]\n", i+1, p.Symbol, strategy.ParseMode(p.Mode))
	}
	fmt.Print("a=add, r<n>=remove, m<n>=change mode, blank=back: ")
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return
	case line == "a":
		fmt.Print("Symbol: ")
		sym, _ := reader.ReadString('\n')
		sym = strings.TrimSpace(sym)
		if sym == "" {
			return
		}
		cfg.Pairs = append(cfg.Pairs, config.Pair{Symbol: sym, Mode: promptMode(reader, string(strategy.ModeBoth))})
	case strings.HasPrefix(line, "r"), strings.HasPrefix(line, "m"):
		idx, err := strconv.Atoi(line[1:])
		if err != nil || idx < 1 || idx > len(cfg.Pairs) {
			fmt.Println("no such pair")
			return
		}
		if line[0] == 'r' {
			cfg.Pairs = append(cfg.Pairs[:idx-1], cfg.Pairs[idx:]...)
			return
		}
		cfg.Pairs[idx-1].Mode = promptMode(reader, cfg.Pairs[idx-1].Mode)
	default:
		fmt.Println("unknown command")
	}
}

func editDiscovery(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Discovery ---")
	fmt.Printf("Current keywords: %s\n", strings.Join(cfg.Exchange.Discovery.Keywords, ", "))
	fmt.Print("Enter keywords comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Exchange.Discovery.Keywords = splitList(line)
	}
	cfg.Exchange.Discovery.Enabled = promptFloat(reader, "Enabled (1/0)", boolFloat(cfg.Exchange.Discovery.Enabled)) != 0
	cfg.Exchange.Discovery.MaxPairs = int(promptFloat(reader, "Max pairs overall", float64(cfg.Exchange.Discovery.MaxPairs)))
	cfg.Exchange.Discovery.MaxPairsPerKeyword = int(promptFloat(reader, "Max pairs per keyword", float64(cfg.Exchange.Discovery.MaxPairsPerKeyword)))
	cfg.Exchange.Discovery.MinLiquidityUSD = promptFloat(reader, "Min liquidity (USD)", cfg.Exchange.Discovery.MinLiquidityUSD)
	cfg.Exchange.Discovery.MinVolumeUSD = promptFloat(reader, "Min volume (USD)", cfg.Exchange.Discovery.MinVolumeUSD)
}

func launchMaker(reader *bufio.Reader, configPath string) {
	fmt.Println("Launching maker (Ctrl+C to stop)...")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", "./cmd/maker", "-config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start maker: %v\n", err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Print("\nPress ENTER to stop the maker and return to menu...")
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func showPositions(metricsAddr string) {
	positions, err := fetchPositions(context.Background(), positionsURL(metricsAddr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "positions unavailable: %v\n", err)
		return
	}
	if len(positions) == 0 {
		fmt.Println("no open positions")
		return
	}
	fmt.Println("\n--- Positions ---")
	for _, p := range positions {
		fmt.Printf("%-20s %-8s center %.6f [%.6f, %.6f] notional $%.2f\n",
			p.Pair, p.State, p.Range.CenterPrice, p.Range.Lower(), p.Range.Upper(), p.Notional)
	}
}

func showReceipts(path string, limit int) {
	receipts, err := paper.ReadJournal(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "receipts unavailable: %v\n", err)
		return
	}
	if len(receipts) > limit {
		receipts = receipts[len(receipts)-limit:]
	}
	fmt.Println("\n--- Receipts ---")
	for _, r := range receipts {
		status := "ok"
		if !r.OK {
			status = "rejected: " + r.Error
		}
		fmt.Printf("%s %-20s %-6s notional $%.2f fees $%.4f %s\n",
			r.Ts.Format(time.TimeOnly), r.Change.Pair, r.Change.Kind, r.Change.Notional, r.Fees, status)
	}
}

func fetchPositions(ctx context.Context, url string) ([]market.Position, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var positions []market.Position
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func positionsURL(metricsAddr string) string {
	if strings.HasPrefix(metricsAddr, ":") {
		metricsAddr = "localhost" + metricsAddr
	}
	return "http://" + metricsAddr + "/positions"
}

func promptMode(reader *bufio.Reader, current string) string {
	fmt.Printf("Mode both|left|right|view [%s]: ", strategy.ParseMode(current))
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	if _, ok := strategy.LookupMode(line); !ok {
		fmt.Printf("unknown mode, keeping %s\n", strategy.ParseMode(current))
		return current
	}
	return string(strategy.ParseMode(line))
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.4g]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.4g\n", current)
		return current
	}
	return val
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func splitList(line string) []string {
	var out []string
	for _, p := range strings.Split(strings.TrimSpace(line), ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func locateConfig(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(path)
}
