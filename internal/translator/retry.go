package translator

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes exponential backoff delays between retry attempts.
type Strategy struct {
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" json:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay" json:"max_delay"`
	Multiplier float64       `mapstructure:"multiplier" json:"multiplier"`
	Jitter     bool          `mapstructure:"jitter" json:"jitter"`
}

// DefaultStrategy doubles a one second delay toward a five minute
// ceiling, with jitter to keep parallel workers from retrying in step.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   5 * time.Minute,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the wait before retry number attempt, counted from
// zero. Jitter spreads the result over ±25% of the computed delay.
func (s Strategy) Delay(attempt int) time.Duration {
	d := float64(s.BaseDelay) * math.Pow(s.Multiplier, float64(attempt))
	if ceil := float64(s.MaxDelay); d > ceil {
		d = ceil
	}
	if s.Jitter {
		d *= 0.75 + rand.Float64()*0.5
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
