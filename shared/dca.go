package shared

import (
	"errors"
	"fmt"
	"time"
)

// DCAInterval represents the cadence of a recurring buy.
type DCAInterval int

const (
	Hourly DCAInterval = iota
	Daily
	Weekly
)

// String stringifies the provided cadence.
func (i DCAInterval) String() string {
	switch i {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	default:
		return "unknown"
	}
}

// ParseDCAInterval converts the provided string to a cadence.
func ParseDCAInterval(interval string) (DCAInterval, error) {
	switch interval {
	case "hourly":
		return Hourly, nil
	case "daily":
		return Daily, nil
	case "weekly":
		return Weekly, nil
	default:
		return 0, fmt.Errorf("unknown dca interval: %s", interval)
	}
}

// DCAConfig represents a persisted recurring buy for a symbol.
type DCAConfig struct {
	ID            string
	Symbol        string
	AmountDollars float64
	Interval      DCAInterval
	Enabled       bool
	Fractional    bool

	LastRun       time.Time
	NextRun       time.Time
	CreatedOn     time.Time
	SchemaVersion int
}

// Validate asserts the recurring buy is well formed.
func (c *DCAConfig) Validate() error {
	var errs error

	if c.ID == "" {
		errs = errors.Join(errs, fmt.Errorf("dca id cannot be an empty string"))
	}
	if c.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("dca symbol cannot be an empty string"))
	}
	if c.AmountDollars <= 0 {
		errs = errors.Join(errs, fmt.Errorf("dca amount must be positive, got %.2f", c.AmountDollars))
	}

	return errs
}
