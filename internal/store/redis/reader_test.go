package redis

import (
	"context"
	"errors"
	"testing"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendreversal/internal/model"
)

func TestReplayTrades_FiltersRunAndResumes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewReaderWithClient(db)

	a, b := sampleTrade("C001"), sampleTrade("C001")
	b.Instrument = "ALT"
	mock.ExpectXRangeN("reversal:trades:C001", "-", "+", replayPage).SetVal([]goredis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"run_id": "run-1", "data": string(a.JSON())}},
		{ID: "2-0", Values: map[string]interface{}{"run_id": "run-0", "data": string(b.JSON())}},
		{ID: "3-0", Values: map[string]interface{}{"run_id": "run-1", "data": "{not json"}},
		{ID: "4-0", Values: map[string]interface{}{"run_id": "run-1", "data": string(b.JSON())}},
	})

	trades, last, err := r.ReplayTrades(context.Background(), "C001", "run-1", "0")
	require.NoError(t, err)
	assert.Equal(t, "4-0", last)
	require.Len(t, trades, 2)
	assert.Equal(t, "SYN", trades[0].Instrument)
	assert.Equal(t, "ALT", trades[1].Instrument)
	assert.InDelta(t, a.Return, trades[0].Return, 1e-12)
	assert.True(t, trades[0].EntryTime.Equal(a.EntryTime))

	mock.ExpectXRangeN("reversal:trades:C001", "(4-0", "+", replayPage).SetVal(nil)
	trades, last, err = r.ReplayTrades(context.Background(), "C001", "", last)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, "4-0", last)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayTrades_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewReaderWithClient(db)
	mock.ExpectXRangeN("reversal:trades:C001", "-", "+", replayPage).SetErr(errors.New("connection refused"))

	_, last, err := r.ReplayTrades(context.Background(), "C001", "", "0")
	assert.Error(t, err)
	assert.Equal(t, "0", last)
}

func TestLatestSummary(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewReaderWithClient(db)
	ctx := context.Background()

	s := model.Summary{Instrument: "SYN", ConfigID: "C001", Trades: 2, WinRate: 0.5, MeanReturn: 0.01}
	mock.ExpectGet(LatestSummaryKey("C001", "SYN")).SetVal(string(s.JSON()))
	mock.ExpectGet(LatestSummaryKey("C001", "GONE")).RedisNil()

	got, ok, err := r.LatestSummary(ctx, "C001", "SYN")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, s, got)

	_, ok, err = r.LatestSummary(ctx, "C001", "GONE")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTradeStreams(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewReaderWithClient(db)
	mock.ExpectExists("reversal:trades:C000").SetVal(1)
	mock.ExpectExists("reversal:trades:C001").SetVal(0)

	assert.Equal(t, []string{"reversal:trades:C000"}, r.TradeStreams(context.Background(), []string{"C000", "C001"}))
}
