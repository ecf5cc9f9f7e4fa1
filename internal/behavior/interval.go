package behavior

import (
	"fmt"
	"time"

	"github.com/zjrosen/displayboard/internal/random"
)

// IntervalSpec is the inclusive range a loop's wait is drawn from.
type IntervalSpec struct {
	Min time.Duration `mapstructure:"min" yaml:"min"`
	Max time.Duration `mapstructure:"max" yaml:"max"`
}

// Fixed returns an IntervalSpec that always draws d.
func Fixed(d time.Duration) IntervalSpec {
	return IntervalSpec{Min: d, Max: d}
}

// Validate checks 0 <= Min <= Max.
func (s IntervalSpec) Validate() error {
	if s.Min < 0 {
		return fmt.Errorf("interval min %s is negative", s.Min)
	}
	if s.Max < s.Min {
		return fmt.Errorf("interval max %s is below min %s", s.Max, s.Min)
	}
	return nil
}

// Draw returns a duration uniformly distributed in [Min, Max].
func (s IntervalSpec) Draw(r random.Source) time.Duration {
	if s.Max <= s.Min {
		return s.Min
	}
	return s.Min + time.Duration(float64(s.Max-s.Min)*r.Float64())
}

func (s IntervalSpec) String() string {
	if s.Min == s.Max {
		return s.Min.String()
	}
	return fmt.Sprintf("%s-%s", s.Min, s.Max)
}
