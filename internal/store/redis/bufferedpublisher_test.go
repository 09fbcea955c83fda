package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendreversal/internal/model"
)

func TestBufferedPublisher_HoldsWhileOpenAndReplays(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cb, clk := newTestBreaker(1, time.Second)
	bp := NewBufferedPublisher(NewWithClient(db, cb), 10)
	ctx := context.Background()

	tr := sampleTrade("C001")
	args := &goredis.XAddArgs{
		Stream: "reversal:trades:C001", MaxLen: tradeStreamMax, Approx: true,
		Values: []interface{}{"run_id", "run-1", "data", string(tr.JSON())},
	}

	// first failure trips the breaker and is returned
	mock.ExpectXAdd(args).SetErr(errors.New("connection refused"))
	assert.Error(t, bp.PublishTrades(ctx, "run-1", []model.Trade{tr}))
	require.Equal(t, StateOpen, cb.CurrentState())

	// open: buffered, reported as success
	var buffered, flushed int
	bp.OnBuffer = func() { buffered++ }
	bp.OnFlush = func(n int) { flushed += n }
	require.NoError(t, bp.PublishTrades(ctx, "run-1", []model.Trade{tr}))
	assert.Equal(t, 1, bp.PendingCount())
	assert.Equal(t, 1, buffered)

	// after the timeout the probe succeeds and the buffer is replayed
	clk.t = clk.t.Add(2 * time.Second)
	s := model.Summary{Instrument: "SYN", ConfigID: "C001", Trades: 1}
	data := string(s.JSON())
	mock.ExpectXAdd(&goredis.XAddArgs{
		Stream: summaryStream, MaxLen: summaryStreamMax, Approx: true,
		Values: []interface{}{"run_id", "run-1", "data", data},
	}).SetVal("1-0")
	mock.ExpectSet(LatestSummaryKey("C001", "SYN"), data, defaultLatestTTL).SetVal("OK")
	mock.ExpectXAdd(args).SetVal("2-0")

	require.NoError(t, bp.PublishSummary(ctx, "run-1", s))
	assert.Equal(t, 0, bp.PendingCount())
	assert.Equal(t, 1, flushed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBufferedPublisher_DropsOldestWhenFull(t *testing.T) {
	db, _ := redismock.NewClientMock()
	cb, _ := newTestBreaker(1, time.Hour)
	cb.Execute(func() error { return errors.New("down") })
	bp := NewBufferedPublisher(NewWithClient(db, cb), 2)

	for i := 0; i < 3; i++ {
		require.NoError(t, bp.PublishSummary(context.Background(), "run-1", model.Summary{Trades: i}))
	}
	assert.Equal(t, 2, bp.PendingCount())
	assert.Equal(t, 1, bp.buffer[0].summary.Trades)
}
