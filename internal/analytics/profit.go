package analytics

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Slippage models for the profit calculator.
const (
	SlippageLinear = "linear"
	SlippageSqrt   = "sqrt"
)

// ProfitConfig tunes expected-profit estimation.
type ProfitConfig struct {
	SlippageModel       string  `yaml:"slippage_model"`
	InventoryRiskFactor float64 `yaml:"inventory_risk_factor"`
	ReferenceSize       float64 `yaml:"reference_size"`
}

// DefaultProfitConfig returns the profit settings used when none are configured.
func DefaultProfitConfig() ProfitConfig {
	return ProfitConfig{SlippageModel: SlippageLinear, InventoryRiskFactor: 0.1, ReferenceSize: 1000}
}

// Validate rejects unknown slippage models.
func (c ProfitConfig) Validate() error {
	switch strings.ToLower(c.SlippageModel) {
	case SlippageLinear, SlippageSqrt, "":
	default:
		return fmt.Errorf("profit: unknown slippage model %q", c.SlippageModel)
	}
	if c.InventoryRiskFactor < 0 {
		return fmt.Errorf("profit: inventory_risk_factor must be non-negative")
	}
	return nil
}

// ProfitEstimate breaks expected profit into its components.
type ProfitEstimate struct {
	Profit        float64
	Gross         float64
	SlippageCost  float64
	InventoryCost float64
}

// Candidate is one opportunity to rank.
type Candidate struct {
	Name            string
	PredictedSpread float64
	Size            float64
	Slippage        float64
	InventoryRisk   float64
}

// Ranked is a candidate with its estimate and competition rank (ties share a rank).
type Ranked struct {
	Candidate
	ProfitEstimate
	Rank int
}

// ProfitCalculator estimates expected fee capture net of slippage and inventory risk.
type ProfitCalculator struct {
	cfg ProfitConfig
}

// NewProfitCalculator builds a calculator.
func NewProfitCalculator(cfg ProfitConfig) *ProfitCalculator {
	cfg.SlippageModel = strings.ToLower(cfg.SlippageModel)
	if cfg.SlippageModel == "" {
		cfg.SlippageModel = SlippageLinear
	}
	if cfg.ReferenceSize <= 0 {
		cfg.ReferenceSize = DefaultProfitConfig().ReferenceSize
	}
	return &ProfitCalculator{cfg: cfg}
}

// ExpectedProfit returns spread*size less slippage cost and the inventory-risk penalty.
func (p *ProfitCalculator) ExpectedProfit(spread, size, slippage, inventoryRisk float64) ProfitEstimate {
	gross := spread * size
	slipCost := slippage * size
	if p.cfg.SlippageModel == SlippageSqrt {
		slipCost *= math.Sqrt(size / p.cfg.ReferenceSize)
	}
	invCost := p.cfg.InventoryRiskFactor * inventoryRisk * math.Abs(gross)
	return ProfitEstimate{
		Profit:        gross - slipCost - invCost,
		Gross:         gross,
		SlippageCost:  slipCost,
		InventoryCost: invCost,
	}
}

// RankPairs orders candidates by profit descending. Equal profits keep input order and share a rank.
func (p *ProfitCalculator) RankPairs(candidates []Candidate) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		out[i] = Ranked{Candidate: c, ProfitEstimate: p.ExpectedProfit(c.PredictedSpread, c.Size, c.Slippage, c.InventoryRisk)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Profit > out[j].Profit })
	for i := range out {
		if i > 0 && out[i].Profit == out[i-1].Profit {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}
