package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
)

var (
	_ crawler.Clock   = (*Clock)(nil)
	_ crawler.Sleeper = (*Clock)(nil)
)

func TestClockNow(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now()
	got := clk.Now()
	require.False(t, got.Before(before))
	require.False(t, clk.Now().Before(got))
}

func TestClockSleep(t *testing.T) {
	t.Parallel()

	clk := New()
	require.NoError(t, clk.Sleep(context.Background(), time.Millisecond))
	require.NoError(t, clk.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, clk.Sleep(ctx, time.Hour), context.Canceled)
}
