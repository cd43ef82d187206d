package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lpmaker-go/internal/config"
)

const (
	defaultDiscoveryInterval = 15 * time.Second
	defaultDiscoveryMaxPairs = 12
)

var defaultDiscoveryKeywords = []string{"sol", "usdc", "jup", "bonk"}

// PairDiscovery widens the feed's pair universe with liquid, high-turnover pools found through
// Dexscreener search. Turnover (24h volume over pool liquidity) approximates the fee yield per
// unit of deployed liquidity.
type PairDiscovery struct {
	log      zerolog.Logger
	feed     *Feed
	manual   []string
	client   *http.Client
	baseURL  string
	filter   poolFilter
	keywords []string
	maxPairs int
	perQuery int
	interval time.Duration

	mu       sync.Mutex
	universe []string
}

type candidatePair struct {
	symbol    string
	liquidity float64
	volume    float64
	turnover  float64
}

// poolFilter decides which search hits are eligible pools.
type poolFilter struct {
	chains       map[string]bool
	dexes        map[string]bool
	minLiquidity float64
	minVolume    float64
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			set[v] = true
		}
	}
	return set
}

// candidate converts an eligible pair into a ranked symbol, or reports false.
func (f poolFilter) candidate(pair dexscreenerPair) (candidatePair, bool) {
	chain := strings.ToLower(pair.ChainID)
	if pair.PairAddress == "" {
		return candidatePair{}, false
	}
	if len(f.chains) > 0 && !f.chains[chain] {
		return candidatePair{}, false
	}
	if len(f.dexes) > 0 && !f.dexes[strings.ToLower(pair.DexID)] {
		return candidatePair{}, false
	}
	liquidity := pair.Liquidity.USD
	volume := pairVolume(pair)
	if liquidity < f.minLiquidity || volume < f.minVolume {
		return candidatePair{}, false
	}
	alias := composeDexAlias(tokenLabel(pair.BaseToken)+tokenLabel(pair.QuoteToken), pair.PairAddress)
	return candidatePair{
		symbol:    fmt.Sprintf("%s@%s/%s", alias, chain, pair.PairAddress),
		liquidity: liquidity,
		volume:    volume,
		turnover:  turnover(volume, liquidity),
	}, true
}

// pairVolume prefers the 24h figure and falls back to shorter windows for young pools.
func pairVolume(pair dexscreenerPair) float64 {
	for _, v := range []float64{pair.Volume.H24, pair.Volume.H6, pair.Volume.H1} {
		if v > 0 {
			return v
		}
	}
	return 0
}

func tokenLabel(t dexscreenerToken) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Name
}

// NewPairDiscovery constructs a discovery service; returns nil if disabled or nil feed.
func NewPairDiscovery(log zerolog.Logger, feed *Feed, manual []string, dexCfg config.DexScreener, cfg config.Discovery) *PairDiscovery {
	if feed == nil || !cfg.Enabled {
		return nil
	}
	baseURL := strings.TrimSuffix(dexCfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultDexScreenerBaseURL
	}
	filter := poolFilter{
		chains:       lowerSet(cfg.Chains),
		dexes:        lowerSet(cfg.DexIDs),
		minLiquidity: cfg.MinLiquidityUSD,
		minVolume:    cfg.MinVolumeUSD,
	}
	if len(filter.chains) == 0 && dexCfg.DefaultChain != "" {
		filter.chains = lowerSet([]string{dexCfg.DefaultChain})
	}
	d := &PairDiscovery{
		log:      log,
		feed:     feed,
		manual:   append([]string(nil), manual...),
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  baseURL,
		filter:   filter,
		keywords: cfg.Keywords,
		maxPairs: cfg.MaxPairs,
		perQuery: cfg.MaxPairsPerKeyword,
		interval: time.Duration(cfg.RefreshInterval) * time.Millisecond,
	}
	if len(d.keywords) == 0 {
		d.keywords = defaultDiscoveryKeywords
	}
	if d.maxPairs <= 0 {
		d.maxPairs = defaultDiscoveryMaxPairs
	}
	if d.perQuery <= 0 {
		d.perQuery = d.maxPairs
	}
	if d.interval <= 0 {
		d.interval = defaultDiscoveryInterval
	}
	return d
}

// Start launches the discovery loop in a goroutine.
func (d *PairDiscovery) Start(ctx context.Context) {
	if d == nil {
		return
	}
	go d.loop(ctx)
}

func (d *PairDiscovery) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if err := d.Refresh(ctx); err != nil {
			d.log.Warn().Err(err).Msg("pair discovery refresh failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Universe returns the symbol set applied by the last refresh.
func (d *PairDiscovery) Universe() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.universe...)
}

// Refresh performs a single discovery cycle and pushes manual plus discovered symbols to the feed.
func (d *PairDiscovery) Refresh(ctx context.Context) error {
	if d == nil {
		return nil
	}
	candidates := d.discover(ctx)
	symbols := make([]string, 0, len(d.manual)+len(candidates))
	symbols = append(symbols, d.manual...)
	for _, cand := range candidates {
		symbols = append(symbols, cand.symbol)
	}
	combined := mergeSymbols(symbols)
	d.feed.SetSymbols(combined)

	d.mu.Lock()
	changed := !slices.Equal(combined, d.universe)
	previous := d.universe
	d.universe = combined
	d.mu.Unlock()
	if changed {
		d.logUniverse(combined, previous, candidates)
	}
	return nil
}

// discover gathers eligible pools across keywords, capped per keyword in search order, then keeps
// the highest-turnover ones overall.
func (d *PairDiscovery) discover(ctx context.Context) []candidatePair {
	seen := make(map[string]bool)
	var candidates []candidatePair
	for _, keyword := range d.keywords {
		pairs, err := d.search(ctx, keyword)
		if err != nil {
			d.log.Debug().Err(err).Str("keyword", keyword).Msg("dexscreener search failed")
			continue
		}
		taken := 0
		for _, pair := range pairs {
			if taken >= d.perQuery {
				break
			}
			cand, ok := d.filter.candidate(pair)
			if !ok || seen[pair.PairAddress] {
				continue
			}
			seen[pair.PairAddress] = true
			candidates = append(candidates, cand)
			taken++
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if diff := a.turnover - b.turnover; diff > 1e-6 || diff < -1e-6 {
			return a.turnover > b.turnover
		}
		return a.liquidity > b.liquidity
	})
	if len(candidates) > d.maxPairs {
		candidates = candidates[:d.maxPairs]
	}
	return candidates
}

func (d *PairDiscovery) search(ctx context.Context, keyword string) ([]dexscreenerPair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", d.baseURL, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "lpmaker-go/0.1 (discovery)")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload dexscreenerPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Pairs) == 0 && payload.Pair != nil {
		return []dexscreenerPair{*payload.Pair}, nil
	}
	return payload.Pairs, nil
}

func (d *PairDiscovery) logUniverse(combined, previous []string, discovered []candidatePair) {
	detail := make([]string, len(discovered))
	for i, cand := range discovered {
		detail[i] = fmt.Sprintf("%s(liq=%.0f vol=%.0f turnover=%.2f)", cand.symbol, cand.liquidity, cand.volume, cand.turnover)
	}
	d.log.Info().
		Strs("symbols", combined).
		Strs("discovered", detail).
		Strs("manual", d.manual).
		Strs("previous", previous).
		Msg("updated pair universe")
}

func turnover(volume, liquidity float64) float64 {
	if liquidity <= 0 {
		return 0
	}
	return volume / liquidity
}

// mergeSymbols trims, drops empties, sorts, and deduplicates.
func mergeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym = strings.TrimSpace(sym); sym != "" {
			out = append(out, sym)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
