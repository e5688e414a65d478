package rates

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/logging"
)

func rayRate(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func TestCurrentAPYConversion(t *testing.T) {
	cases := []struct {
		name   string
		native string
		want   string
	}{
		{"five point two four percent", "52400000000000000000000000", "5.24"},
		{"zero", "0", "0.00"},
		{"sub basis point truncates toward zero", "99999999999999999999999", "0.00"},
		{"one hundred percent", "1000000000000000000000000000", "100.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := chain.NewSimulator()
			sim.SetRate(rayRate(t, tc.native))
			conv := NewConverter(sim, time.Minute, logging.Discard())

			rate, err := conv.CurrentAPY(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, rate.APYPercent.StringFixed(2))
			assert.False(t, rate.Stale)
			assert.Equal(t, rayRate(t, tc.native), rate.NativeRate)
		})
	}
}

func TestCurrentAPYStableOutput(t *testing.T) {
	sim := chain.NewSimulator()
	sim.SetRate(rayRate(t, "52400000000000000000000000"))
	conv := NewConverter(sim, time.Minute, logging.Discard())

	first, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)
	second, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)
	assert.True(t, first.APYPercent.Equal(second.APYPercent))
	assert.Equal(t, first.ObservedAt, second.ObservedAt)
}

func TestCurrentAPYCacheWindow(t *testing.T) {
	sim := chain.NewSimulator()
	sim.SetRate(rayRate(t, "52400000000000000000000000"))
	conv := NewConverter(sim, time.Minute, logging.Discard())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conv.now = func() time.Time { return now }

	first, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)

	// A rate change inside the window is not observed.
	sim.SetRate(rayRate(t, "10000000000000000000000000"))
	now = now.Add(30 * time.Second)
	cached, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)
	assert.True(t, first.APYPercent.Equal(cached.APYPercent))

	// Past the window the new rate is picked up.
	now = now.Add(31 * time.Second)
	refreshed, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.00", refreshed.APYPercent.StringFixed(2))
}

func TestCurrentAPYStaleFallback(t *testing.T) {
	sim := chain.NewSimulator()
	sim.SetRate(rayRate(t, "52400000000000000000000000"))
	conv := NewConverter(sim, time.Minute, logging.Discard())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	conv.now = func() time.Time { return now }

	fresh, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)

	sim.RateErr = errors.New("rpc unreachable")
	now = now.Add(2 * time.Minute)

	stale, err := conv.CurrentAPY(context.Background())
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.True(t, fresh.APYPercent.Equal(stale.APYPercent))
}

func TestCurrentAPYUnavailable(t *testing.T) {
	sim := chain.NewSimulator()
	sim.RateErr = errors.New("rpc unreachable")
	conv := NewConverter(sim, time.Minute, logging.Discard())

	_, err := conv.CurrentAPY(context.Background())
	assert.ErrorIs(t, err, ErrRateUnavailable)
}
