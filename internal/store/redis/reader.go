package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"trendreversal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const replayPage = 1000

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader reads published trades and summaries back from Redis.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return NewReaderWithClient(client), nil
}

// NewReaderWithClient wraps an existing client.
func NewReaderWithClient(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// ReplayTrades reads a configuration's trade stream after startID ("0" for
// the whole stream). A non-empty runID keeps only that run's entries.
// Returns the last stream ID seen so callers can resume.
func (r *Reader) ReplayTrades(ctx context.Context, configID, runID, startID string) ([]model.Trade, string, error) {
	stream := TradeStream(configID)
	lastID := startID
	var out []model.Trade
	for {
		start := "(" + lastID
		if lastID == "0" || lastID == "" {
			start = "-"
		}
		msgs, err := r.client.XRangeN(ctx, stream, start, "+", replayPage).Result()
		if err != nil {
			return out, lastID, fmt.Errorf("xrange %s from %s: %w", stream, lastID, err)
		}

		for _, msg := range msgs {
			lastID = msg.ID
			if runID != "" && msg.Values["run_id"] != runID {
				continue
			}
			data, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var tr model.Trade
			if err := json.Unmarshal([]byte(data), &tr); err != nil {
				log.Printf("[redis-reader] skipping malformed entry %s on %s: %v", msg.ID, stream, err)
				continue
			}
			out = append(out, tr)
		}

		if len(msgs) < replayPage {
			return out, lastID, nil
		}
	}
}

// LatestSummary returns the newest published summary of one unit.
// ok is false when none is stored or it has expired.
func (r *Reader) LatestSummary(ctx context.Context, configID, instrument string) (s model.Summary, ok bool, err error) {
	data, err := r.client.Get(ctx, LatestSummaryKey(configID, instrument)).Result()
	if errors.Is(err, goredis.Nil) {
		return s, false, nil
	}
	if err != nil {
		return s, false, fmt.Errorf("get latest summary %s/%s: %w", configID, instrument, err)
	}
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return s, false, fmt.Errorf("decode latest summary %s/%s: %w", configID, instrument, err)
	}
	return s, true, nil
}

// TradeStreams returns the trade streams that exist for the given configurations.
func (r *Reader) TradeStreams(ctx context.Context, configIDs []string) []string {
	var streams []string
	for _, id := range configIDs {
		stream := TradeStream(id)
		n, err := r.client.Exists(ctx, stream).Result()
		if err == nil && n > 0 {
			streams = append(streams, stream)
		}
	}
	return streams
}

// Close closes the Redis connection.
func (r *Reader) Close() error {
	return r.client.Close()
}
