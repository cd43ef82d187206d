// Package solana submits liquidity changes to concentrated-liquidity pools on Solana.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"lpmaker-go/internal/execution"
)

// LiquidityClient asks a transaction builder for unsigned pool instructions, signs them with the
// configured wallet, and sends them through RPC.
type LiquidityClient struct {
	Base        string
	RPC         *rpc.Client
	Owner       solana.PrivateKey
	Commit      rpc.CommitmentType
	Http        *http.Client
	PriorityFee uint64 // lamports forwarded to the builder; zero lets it choose
	Pools       map[string]string
}

func (c *LiquidityClient) pool(pair string) string {
	if addr, ok := c.Pools[pair]; ok && addr != "" {
		return addr
	}
	return pair
}

// PoolInfo is the builder's view of a pool.
type PoolInfo struct {
	Address   string  `json:"address"`
	ActiveBin int     `json:"activeBin"`
	BinStep   int     `json:"binStep"`
	Price     float64 `json:"price"`
	BaseMint  string  `json:"baseMint"`
	QuoteMint string  `json:"quoteMint"`
}

type buildRequest struct {
	Owner       string  `json:"owner"`
	Pool        string  `json:"pool"`
	Position    string  `json:"position"`
	Action      string  `json:"action"`
	LowerPrice  float64 `json:"lowerPrice"`
	UpperPrice  float64 `json:"upperPrice"`
	BinCount    int     `json:"binCount"`
	Notional    float64 `json:"notional"`
	PriorityFee uint64  `json:"prioritizationFeeLamports"`
}

type buildResponse struct {
	Transaction string  `json:"transaction"`
	Fees        float64 `json:"fees"`
}

// ParseCommitment maps a config string onto an RPC commitment, defaulting to confirmed.
func ParseCommitment(commit string) rpc.CommitmentType {
	switch commit {
	case "processed":
		return rpc.CommitmentProcessed
	case "finalized":
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func NewLiquidityClient(rpcURL, base string, owner solana.PrivateKey, commit string) *LiquidityClient {
	return &LiquidityClient{
		Base:   base,
		RPC:    rpc.New(rpcURL),
		Owner:  owner,
		Commit: ParseCommitment(commit),
		Http:   &http.Client{Timeout: 8 * time.Second},
	}
}

// GetPool fetches pool metadata including the active price.
func (c *LiquidityClient) GetPool(ctx context.Context, address string) (*PoolInfo, error) {
	u := c.Base + "/pools/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.Http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pool lookup status %d", resp.StatusCode)
	}
	var out PoolInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Apply builds, signs, and sends the transaction for a liquidity change.
func (c *LiquidityClient) Apply(ctx context.Context, change execution.Change) (execution.Receipt, error) {
	receipt := execution.Receipt{Change: change}
	tx, fees, err := c.build(ctx, change)
	if err != nil {
		return receipt, err
	}
	sig, err := c.signAndSend(ctx, tx)
	if err != nil {
		return receipt, err
	}
	receipt.OK = true
	receipt.TxID = sig.String()
	receipt.Fees = fees
	receipt.Ts = time.Now().UTC()
	return receipt, nil
}

func (c *LiquidityClient) build(ctx context.Context, change execution.Change) (*solana.Transaction, float64, error) {
	body, err := json.Marshal(buildRequest{
		Owner:       c.Owner.PublicKey().String(),
		Pool:        c.pool(change.Pair),
		Position:    change.PositionID,
		Action:      string(change.Kind),
		LowerPrice:  change.Range.Lower(),
		UpperPrice:  change.Range.Upper(),
		BinCount:    change.Range.BinCount,
		Notional:    change.Notional,
		PriorityFee: c.PriorityFee,
	})
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+"/liquidity/build", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("liquidity build status %d", resp.StatusCode)
	}
	var br buildResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return nil, 0, err
	}

	raw, err := base64.StdEncoding.DecodeString(br.Transaction)
	if err != nil {
		return nil, 0, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, 0, fmt.Errorf("unmarshal tx: %w", err)
	}
	return tx, br.Fees, nil
}

func (c *LiquidityClient) signAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.Owner.PublicKey()) {
			return &c.Owner
		}
		return nil
	})
	if err != nil {
		return sig, fmt.Errorf("sign: %w", err)
	}
	return c.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.Commit,
	})
}
