package ratelimit

import (
	"context"
	"encoding/json"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls atomic.Int32
}

func (c *countingFetcher) Fetch(context.Context, string, url.Values) (json.RawMessage, error) {
	c.calls.Add(1)
	return json.RawMessage(`{}`), nil
}

func TestLimiterWaitDelaysAfterBurst(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()
	endpoint := "https://api.nasa.gov/neo/rest/v1/neo/1"

	require.NoError(t, l.Wait(ctx, endpoint))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, endpoint))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterBucketsAreIndependentPerEndpoint(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Wait(ctx, "https://api.nasa.gov/neo/rest/v1/neo/1"))
	require.NoError(t, l.Wait(ctx, "https://api.nasa.gov/neo/rest/v1/feed"))
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})
	endpoint := "https://api.nasa.gov/neo/rest/v1/feed"
	require.NoError(t, l.Wait(context.Background(), endpoint))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, endpoint))
}

func TestUnlimitedWhenRateIsZero(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Wrap(next, New(Config{}))
	for i := 0; i < 50; i++ {
		_, err := f.Fetch(context.Background(), "https://api.nasa.gov/neo/rest/v1/neo/1", nil)
		require.NoError(t, err)
	}
	require.EqualValues(t, 50, next.calls.Load())
}

func TestWrappedFetcherSkipsCallWhenWaitFails(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	f := Wrap(next, New(Config{RPS: 0.001, Burst: 1}))
	endpoint := "https://api.nasa.gov/neo/rest/v1/neo/1"
	_, err := f.Fetch(context.Background(), endpoint, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Fetch(ctx, endpoint, nil)
	require.Error(t, err)
	require.EqualValues(t, 1, next.calls.Load())
}
