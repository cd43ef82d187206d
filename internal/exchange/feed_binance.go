package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"lpmaker-go/internal/market"
)

type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceTrade struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type binanceBookTicker struct {
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type binanceDepth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

func binanceStreams(symbols []string) []string {
	streams := make([]string, 0, len(symbols)*3)
	for _, sym := range symbols {
		s := strings.ToLower(sym)
		streams = append(streams, s+"@trade", s+"@bookTicker", s+"@depth5@100ms")
	}
	return streams
}

func (f *Feed) runBinance(ctx context.Context) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	url := fmt.Sprintf("wss://stream.binance.com:9443/stream?streams=%s", strings.Join(binanceStreams(symbols), "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consumeBinanceStream(ctx, url, symbols); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, symbols []string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", symbols).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		if err := f.handleBinanceMessage(message, time.Now().UTC()); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode binance message")
		}
	}
}

// handleBinanceMessage routes one combined-stream payload into the pair buffers.
func (f *Feed) handleBinanceMessage(message []byte, now time.Time) error {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return err
	}
	symbol := parseBinanceSymbol(env.Stream)
	switch binanceStreamKind(env.Stream) {
	case "trade":
		var raw binanceTrade
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return err
		}
		px, err := strconv.ParseFloat(raw.Price, 64)
		if err != nil {
			return fmt.Errorf("invalid price: %w", err)
		}
		qty, err := strconv.ParseFloat(raw.Quantity, 64)
		if err != nil {
			return fmt.Errorf("invalid quantity: %w", err)
		}
		side := market.SideBuy
		if raw.IsBuyerMaker {
			side = market.SideSell
		}
		f.RecordTrade(symbol, market.Trade{
			Timestamp: time.UnixMilli(raw.TradeTime).UTC(),
			Price:     px,
			Size:      qty,
			Side:      side,
		})
	case "bookTicker":
		var raw binanceBookTicker
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return err
		}
		bid, err := strconv.ParseFloat(raw.BidPrice, 64)
		if err != nil {
			return fmt.Errorf("invalid bid: %w", err)
		}
		ask, err := strconv.ParseFloat(raw.AskPrice, 64)
		if err != nil {
			return fmt.Errorf("invalid ask: %w", err)
		}
		f.RecordQuote(symbol, market.Quote{Timestamp: now, Bid: bid, Ask: ask})
	case "depth5":
		var raw binanceDepth
		if err := json.Unmarshal(env.Data, &raw); err != nil {
			return err
		}
		bids, err := parseBinanceLevels(raw.Bids)
		if err != nil {
			return err
		}
		asks, err := parseBinanceLevels(raw.Asks)
		if err != nil {
			return err
		}
		f.RecordBook(symbol, market.OrderBook{Bids: bids, Asks: asks, Timestamp: now})
	default:
		return fmt.Errorf("unknown stream %q", env.Stream)
	}
	return nil
}

func parseBinanceLevels(raw [][2]string) ([]market.Level, error) {
	levels := make([]market.Level, 0, len(raw))
	for _, lvl := range raw {
		px, err := strconv.ParseFloat(lvl[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid level price: %w", err)
		}
		qty, err := strconv.ParseFloat(lvl[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid level size: %w", err)
		}
		levels = append(levels, market.Level{Price: px, Size: qty})
	}
	return levels, nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}

func binanceStreamKind(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
