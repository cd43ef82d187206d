package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"lpmaker-go/internal/market"
)

const defaultKeyPrefix = "lpmaker"

// PositionStore mirrors open liquidity positions so a restarted maker can resume them.
//
// Key schema:
//
//	{prefix}:positions - hash of position ID to JSON
//	{prefix}:fees      - running total of collected fees
type PositionStore struct {
	rdb    *redis.Client
	prefix string
}

// NewPositionStore creates a PositionStore backed by the given Client.
func NewPositionStore(c *Client, prefix string) *PositionStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &PositionStore{rdb: c.Underlying(), prefix: prefix}
}

func (s *PositionStore) positionsKey() string { return s.prefix + ":positions" }
func (s *PositionStore) feesKey() string      { return s.prefix + ":fees" }

// Save replaces the mirrored position set and fee total in one transaction.
func (s *PositionStore) Save(ctx context.Context, positions []market.Position, fees float64) error {
	fields, err := encodePositions(positions)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.positionsKey())
	if len(fields) > 0 {
		pipe.HSet(ctx, s.positionsKey(), fields)
	}
	pipe.Set(ctx, s.feesKey(), strconv.FormatFloat(fees, 'f', -1, 64), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: save positions: %w", err)
	}
	return nil
}

// Load returns the mirrored positions ordered by open time and the stored fee total.
// An empty mirror yields no positions and zero fees.
func (s *PositionStore) Load(ctx context.Context) ([]market.Position, float64, error) {
	raw, err := s.rdb.HGetAll(ctx, s.positionsKey()).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("redis: load positions: %w", err)
	}
	positions, err := decodePositions(raw)
	if err != nil {
		return nil, 0, err
	}
	fees, err := s.rdb.Get(ctx, s.feesKey()).Float64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("redis: load fees: %w", err)
	}
	return positions, fees, nil
}

func encodePositions(positions []market.Position) (map[string]any, error) {
	fields := make(map[string]any, len(positions))
	for _, p := range positions {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("redis: marshal position %s: %w", p.ID, err)
		}
		fields[p.ID] = data
	}
	return fields, nil
}

func decodePositions(raw map[string]string) ([]market.Position, error) {
	out := make([]market.Position, 0, len(raw))
	for id, data := range raw {
		var p market.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("redis: unmarshal position %s: %w", id, err)
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
