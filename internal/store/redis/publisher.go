package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"trendreversal/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	summaryStream    = "reversal:summaries"
	tradeStreamMax   = 100000
	summaryStreamMax = 20000
	defaultLatestTTL = 24 * time.Hour
)

// TradeStream returns the stream key for one configuration's trades.
func TradeStream(configID string) string {
	return "reversal:trades:" + configID
}

// LatestSummaryKey returns the key holding the newest summary of a unit.
func LatestSummaryKey(configID, instrument string) string {
	return "reversal:summary:latest:" + configID + ":" + instrument
}

// PublisherConfig configures the Redis publisher.
type PublisherConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // wait before a half-open probe
}

// Publisher fans run output out to Redis Streams behind a circuit breaker.
// It implements model.ResultPublisher.
type Publisher struct {
	client  *goredis.Client
	breaker *CircuitBreaker

	// OnWrite, if set, observes the latency of every pipeline round trip.
	OnWrite func(time.Duration)
}

// New creates a publisher and pings the server.
func New(cfg PublisherConfig) (*Publisher, error) {
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

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout)), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, breaker *CircuitBreaker) *Publisher {
	if breaker == nil {
		breaker = NewCircuitBreaker(5, 10*time.Second)
	}
	return &Publisher{client: client, breaker: breaker}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker returns the publisher's circuit breaker.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// PublishTrades appends one stream entry per trade to the trade stream of its
// configuration in a single pipeline.
func (p *Publisher) PublishTrades(ctx context.Context, runID string, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	return p.exec(ctx, func(pipe goredis.Pipeliner) {
		for i := range trades {
			t := &trades[i]
			pipe.XAdd(ctx, &goredis.XAddArgs{
				Stream: TradeStream(t.ConfigID),
				MaxLen: tradeStreamMax,
				Approx: true,
				Values: []interface{}{"run_id", runID, "data", string(t.JSON())},
			})
		}
	})
}

// PublishSummary appends the summary to the summary stream and refreshes the
// unit's latest-summary key.
func (p *Publisher) PublishSummary(ctx context.Context, runID string, s model.Summary) error {
	data := string(s.JSON())
	return p.exec(ctx, func(pipe goredis.Pipeliner) {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: summaryStream,
			MaxLen: summaryStreamMax,
			Approx: true,
			Values: []interface{}{"run_id", runID, "data", data},
		})
		pipe.Set(ctx, LatestSummaryKey(s.ConfigID, s.Instrument), data, defaultLatestTTL)
	})
}

func (p *Publisher) exec(ctx context.Context, fill func(goredis.Pipeliner)) error {
	return p.breaker.Execute(func() error {
		start := time.Now()
		pipe := p.client.Pipeline()
		fill(pipe)
		_, err := pipe.Exec(ctx)
		if p.OnWrite != nil {
			p.OnWrite(time.Since(start))
		}
		if err != nil {
			log.Printf("[redis] pipeline error: %v", err)
		}
		return err
	})
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
