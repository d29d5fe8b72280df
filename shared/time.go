package shared

import (
	"fmt"
	"time"
)

const (
	// NewYorkLocation is the IANA name of the exchange timezone used for
	// session math and scheduled task runs.
	NewYorkLocation = "America/New_York"
)

// NewYorkTime returns the current time in the exchange timezone.
func NewYorkTime() (time.Time, *time.Location, error) {
	loc, err := time.LoadLocation(NewYorkLocation)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading new york timezone: %w", err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}
