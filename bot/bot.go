package bot

import (
	"time"

	"github.com/go-co-op/gocron"
)

const (
	// warmup is the delay before a bot's first tick.
	warmup = time.Second * 3
	// defaultTickSeconds is the default cadence between bot ticks.
	defaultTickSeconds = 30
	// historyLimit is the number of candles fetched for scans and regime
	// classification.
	historyLimit = 250
	// patternWindow is the trailing candle window patterns are detected on.
	patternWindow = 10
)

// schedule registers the provided tick with the job scheduler, firing first
// after the warm up delay and every tickSeconds after that.
func schedule(scheduler *gocron.Scheduler, tickSeconds int, now time.Time, tick func()) (*gocron.Job, error) {
	return scheduler.Every(tickSeconds).Seconds().StartAt(now.Add(warmup)).Do(tick)
}
