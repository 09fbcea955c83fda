package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"trendreversal/internal/model"
)

// pendingPublish is a unit output held back while the circuit was open.
type pendingPublish struct {
	runID   string
	trades  []model.Trade
	summary *model.Summary
}

// BufferedPublisher wraps a Publisher. While the circuit is open, publishes
// are buffered in memory and replayed after the next successful publish or on
// Close. It implements model.ResultPublisher.
type BufferedPublisher struct {
	pub *Publisher

	mu     sync.Mutex
	buffer []pendingPublish
	maxBuf int // oldest entries are dropped beyond this

	// Callbacks
	OnBuffer func()          // called when a publish is buffered (for metrics)
	OnFlush  func(count int) // called after replaying buffered publishes
}

// NewBufferedPublisher creates a BufferedPublisher around p.
func NewBufferedPublisher(p *Publisher, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	return &BufferedPublisher{
		pub:    p,
		buffer: make([]pendingPublish, 0, 64),
		maxBuf: maxBufferSize,
	}
}

// PublishTrades implements model.ResultPublisher.
func (bp *BufferedPublisher) PublishTrades(ctx context.Context, runID string, trades []model.Trade) error {
	return bp.send(ctx, pendingPublish{runID: runID, trades: trades})
}

// PublishSummary implements model.ResultPublisher.
func (bp *BufferedPublisher) PublishSummary(ctx context.Context, runID string, s model.Summary) error {
	return bp.send(ctx, pendingPublish{runID: runID, summary: &s})
}

func (bp *BufferedPublisher) send(ctx context.Context, pp pendingPublish) error {
	err := bp.publish(ctx, pp)
	if errors.Is(err, ErrCircuitOpen) {
		bp.hold(pp)
		return nil // buffered, not lost
	}
	if err == nil {
		bp.Flush(ctx)
	}
	return err
}

func (bp *BufferedPublisher) publish(ctx context.Context, pp pendingPublish) error {
	if pp.summary != nil {
		return bp.pub.PublishSummary(ctx, pp.runID, *pp.summary)
	}
	return bp.pub.PublishTrades(ctx, pp.runID, pp.trades)
}

func (bp *BufferedPublisher) hold(pp pendingPublish) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pp)

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// Flush replays buffered publishes in order. Entries that fail again stay
// buffered.
func (bp *BufferedPublisher) Flush(ctx context.Context) {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingPublish, 0, 64)
	bp.mu.Unlock()

	flushed := 0
	for i, pp := range toFlush {
		if err := bp.publish(ctx, pp); err != nil {
			bp.mu.Lock()
			bp.buffer = append(append([]pendingPublish(nil), toFlush[i:]...), bp.buffer...)
			bp.mu.Unlock()
			log.Printf("[buffered-publisher] replay stopped after %d: %v", flushed, err)
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[buffered-publisher] flushed %d buffered publishes", flushed)
	}
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered publishes.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Underlying returns the wrapped publisher.
func (bp *BufferedPublisher) Underlying() *Publisher {
	return bp.pub
}

// Close makes a last replay attempt and closes the client.
func (bp *BufferedPublisher) Close() error {
	bp.Flush(context.Background())
	if n := bp.PendingCount(); n > 0 {
		log.Printf("[buffered-publisher] dropping %d unpublished entries on close", n)
	}
	return bp.pub.Close()
}
