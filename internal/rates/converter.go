package rates

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vaultly/vaultly/internal/chain"
)

// ErrRateUnavailable indicates no fresh or cached rate exists.
var ErrRateUnavailable = errors.New("yield rate unavailable")

// ray is the pool's native fixed-point scale (1e27).
var ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

var tenThousand = big.NewInt(10_000)

// YieldRate is an atomically replaced view of the pool's interest rate.
type YieldRate struct {
	APYPercent decimal.Decimal
	NativeRate *big.Int
	ObservedAt time.Time
	Stale      bool
}

// Converter turns the pool's ray-scaled liquidity rate into a percentage APY.
// It caches the last observation for the freshness window and falls back to a
// stale value when the pool read fails.
type Converter struct {
	pool   chain.PoolReader
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *YieldRate
}

// NewConverter builds a converter with the given freshness window.
func NewConverter(pool chain.PoolReader, window time.Duration, logger *slog.Logger) *Converter {
	return &Converter{pool: pool, window: window, logger: logger, now: time.Now}
}

// CurrentAPY returns the cached rate while fresh, otherwise reads the pool.
// A failed read degrades to the last-known value marked stale; with no prior
// value it fails with ErrRateUnavailable.
func (c *Converter) CurrentAPY(ctx context.Context) (YieldRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	if c.last != nil && now.Sub(c.last.ObservedAt) < c.window {
		return *c.last, nil
	}

	native, err := c.pool.NativeRate(ctx)
	if err != nil {
		if c.last != nil {
			c.logger.Warn("pool rate read failed, serving stale value",
				"observed_at", c.last.ObservedAt, "error", err)
			stale := *c.last
			stale.Stale = true
			return stale, nil
		}
		return YieldRate{}, errors.Join(ErrRateUnavailable, err)
	}
	if native.Sign() < 0 {
		return YieldRate{}, errors.Join(ErrRateUnavailable, errors.New("negative native rate"))
	}

	rate := YieldRate{
		APYPercent: apyFromRay(native),
		NativeRate: new(big.Int).Set(native),
		ObservedAt: now,
	}
	c.last = &rate
	return rate, nil
}

// apyFromRay scales the ray rate to basis points, truncating toward zero, and
// renders it as a percent with two decimal digits.
func apyFromRay(native *big.Int) decimal.Decimal {
	bps := new(big.Int).Div(new(big.Int).Mul(native, tenThousand), ray)
	return decimal.NewFromBigInt(bps, -2)
}
