package draw

import (
	"context"
	"math/rand"
	"time"
)

// Default roll parameters, matching the desktop app's number-roll effect.
const (
	DefaultRollDuration = 3 * time.Second
	DefaultRollFPS      = 30
)

// RollConfig configures the decorative roll preceding a draw.
type RollConfig struct {
	// Duration is how long the roll runs. Zero means DefaultRollDuration.
	Duration time.Duration

	// FPS is the tick rate. Zero means DefaultRollFPS.
	FPS int

	// Pool supplies the values flashed on each tick. An empty pool makes
	// the roll a no-op.
	Pool []string

	// OnTick receives the value to display for each tick.
	OnTick func(value string)
}

// Roll runs the cooperative roll animation until the configured duration
// elapses or ctx is cancelled, whichever comes first. The cancellation
// token is polled once per tick.
//
// The roll is purely decorative: it never selects an outcome. Callers
// perform the actual draw strictly after Roll returns, so cancelling the
// animation cannot influence or re-randomize the result.
func Roll(ctx context.Context, rng *rand.Rand, cfg RollConfig) {
	if len(cfg.Pool) == 0 || cfg.OnTick == nil {
		return
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultRollDuration
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultRollFPS
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
			cfg.OnTick(cfg.Pool[rng.Intn(len(cfg.Pool))])
		}
	}
}

// RollRand exposes the engine's randomness source for the roll so the
// flashed values and the eventual draw share one stream.
func (e *Engine) RollRand() *rand.Rand {
	return e.rng
}
