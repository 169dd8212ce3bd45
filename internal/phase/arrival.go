package phase

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/symphoner/internal/config"
)

// arrival paces worker additions during ramp-up.
type arrival interface {
	Wait(ctx context.Context) error
}

func newArrival(model config.ArrivalModel, interval time.Duration, sample func() float64) arrival {
	if interval <= 0 {
		return immediate{}
	}
	if model == config.ArrivalModelPoisson {
		if sample == nil {
			sample = rand.ExpFloat64
		}
		return &poissonArrival{mean: interval, sample: sample}
	}

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// The first worker is added before the ramp starts.
	limiter.Allow()
	return &uniformArrival{limiter: limiter}
}

type immediate struct{}

func (immediate) Wait(ctx context.Context) error { return ctx.Err() }

// uniformArrival spaces additions evenly with a rate.Limiter.
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	return u.limiter.Wait(ctx)
}

// poissonArrival samples exponential gaps with the configured mean.
type poissonArrival struct {
	mean   time.Duration
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context) error {
	delay := float64(p.mean) * p.sample()
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	timer := time.NewTimer(time.Duration(delay))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
