package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/kalebr/tradeassist/indicator"
	"github.com/kalebr/tradeassist/regime"
	"github.com/kalebr/tradeassist/rules"
	"github.com/kalebr/tradeassist/shared"
	"github.com/kalebr/tradeassist/strategy"
)

const (
	// macdFast, macdSlow and macdSignal are the scanned macd periods.
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	// defaultFastSMA and defaultSlowSMA are the default moving average
	// crossover periods.
	defaultFastSMA = 50
	defaultSlowSMA = 200
)

// ScannerConfig represents the pattern scanner configuration.
type ScannerConfig struct {
	// Engine is the rule engine detected triggers are evaluated through.
	Engine *rules.Engine
	// Source provides market data for watched symbols.
	Source shared.MarketSource
	// Detector flags candlestick patterns on candle windows.
	Detector shared.PatternDetector
	// RegimeDetector classifies prevailing market regimes. Defaults to a
	// detector with the default configuration.
	RegimeDetector *regime.Detector
	// SignalGenerator scores advisory signals on scanned history.
	// Defaults to a generator with the default configuration.
	SignalGenerator *strategy.Generator
	// Notify relays advisory signals. Optional.
	Notify shared.Notifier
	// Interval is the candle interval scans run on.
	Interval shared.Interval
	// FastSMA is the fast moving average crossover period.
	FastSMA int
	// SlowSMA is the slow moving average crossover period.
	SlowSMA int
	// TickSeconds is the scan cadence. Defaults to defaultTickSeconds.
	TickSeconds int
	// JobScheduler schedules the periodic scans.
	JobScheduler *gocron.Scheduler
	// Logger represents the scanner logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ScannerConfig) Validate() error {
	var errs error

	if cfg.Engine == nil {
		errs = errors.Join(errs, fmt.Errorf("rule engine cannot be nil"))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("market source cannot be nil"))
	}
	if cfg.Detector == nil {
		errs = errors.Join(errs, fmt.Errorf("pattern detector cannot be nil"))
	}
	if cfg.JobScheduler == nil {
		errs = errors.Join(errs, fmt.Errorf("job scheduler cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Scanner polls watched symbols for pattern and indicator crossover
// triggers, feeding them through the rule engine's gates, and relays
// advisory signals scored on the scanned history.
type Scanner struct {
	cfg     *ScannerConfig
	job     *gocron.Job
	busy    atomic.Bool
	signals map[string]shared.Direction
}

// NewScanner initializes a new pattern scanner.
func NewScanner(cfg *ScannerConfig) (*Scanner, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating scanner config: %w", err)
	}

	if cfg.TickSeconds == 0 {
		cfg.TickSeconds = defaultTickSeconds
	}
	if cfg.FastSMA == 0 {
		cfg.FastSMA = defaultFastSMA
	}
	if cfg.SlowSMA == 0 {
		cfg.SlowSMA = defaultSlowSMA
	}
	if cfg.RegimeDetector == nil {
		cfg.RegimeDetector, err = regime.NewDetector(regime.DefaultDetectorConfig())
		if err != nil {
			return nil, fmt.Errorf("creating regime detector: %w", err)
		}
	}
	if cfg.SignalGenerator == nil {
		cfg.SignalGenerator, err = strategy.NewGenerator(strategy.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("creating signal generator: %w", err)
		}
	}

	return &Scanner{cfg: cfg, signals: make(map[string]shared.Direction)}, nil
}

// Start registers the scanner's periodic scan with the job scheduler.
func (s *Scanner) Start(now time.Time) error {
	job, err := schedule(s.cfg.JobScheduler, s.cfg.TickSeconds, now, s.tick)
	if err != nil {
		return fmt.Errorf("scheduling symbol scans: %w", err)
	}

	s.job = job
	return nil
}

// Stop deregisters the scanner's periodic scan. An in-flight scan runs to
// completion.
func (s *Scanner) Stop() {
	if s.job != nil {
		s.cfg.JobScheduler.RemoveByReference(s.job)
	}
}

// tick scans every watched symbol once. A tick arriving while the prior one
// is still running is skipped.
func (s *Scanner) tick() {
	if !s.busy.CompareAndSwap(false, true) {
		s.cfg.Logger.Debug().Msg("prior scan still running, skipping tick")
		return
	}
	defer s.busy.Store(false)

	now, _, err := shared.NewYorkTime()
	if err != nil {
		s.cfg.Logger.Error().Msgf("fetching exchange time: %v", err)
		return
	}

	ctx := context.Background()
	for _, symbol := range s.cfg.Engine.Symbols() {
		s.scan(ctx, symbol, now)
	}
}

// scan evaluates pattern and crossover triggers for the provided symbol.
// Data source failures degrade to a no-signal scan.
func (s *Scanner) scan(ctx context.Context, symbol string, now time.Time) {
	candles, err := s.cfg.Source.FetchCandles(ctx, symbol, s.cfg.Interval, historyLimit)
	if err != nil {
		s.cfg.Logger.Error().Msgf("fetching %s history for %s: %v", s.cfg.Interval, symbol, err)
		return
	}
	if len(candles) < patternWindow {
		s.cfg.Logger.Debug().Msgf("%d %s candles is too short a history to scan %s",
			len(candles), s.cfg.Interval, symbol)
		return
	}

	analysis := s.cfg.RegimeDetector.Detect(symbol, candles, now)

	window := candles[len(candles)-patternWindow:]
	for _, match := range s.cfg.Detector.DetectPatterns(window) {
		s.cfg.Logger.Debug().Msgf("%s %s on %s @ %.2f (confidence %.0f)",
			match.Sentiment, match.Kind, symbol, match.Price, match.Confidence)
		s.cfg.Engine.Evaluate(rules.PatternEvent(match, candles, analysis.Regime, now))
	}

	for _, kind := range s.crossovers(candles) {
		s.cfg.Logger.Debug().Msgf("%s completed on %s", kind, symbol)
		s.cfg.Engine.Evaluate(rules.CrossoverEvent(symbol, kind, candles, analysis.Regime, now))
	}

	s.advise(symbol, candles, analysis, now)
}

// advise scores an advisory signal on the scanned history and relays it.
// A standing signal is announced once per direction, re-announcing only
// after it lapses or flips.
func (s *Scanner) advise(symbol string, candles []shared.Candle, analysis shared.RegimeAnalysis, now time.Time) {
	if s.cfg.Notify == nil {
		return
	}

	sig := s.cfg.SignalGenerator.Generate(symbol, candles, analysis, now)
	if sig == nil {
		delete(s.signals, symbol)
		return
	}

	if last, ok := s.signals[symbol]; ok && last == sig.Direction {
		return
	}
	s.signals[symbol] = sig.Direction

	s.cfg.Notify(fmt.Sprintf("Signal: %s %s @ %.2f, stop %.2f, target %.2f (confidence %.0f): %s",
		sig.Direction.String(), symbol, sig.Entry, sig.StopLoss, sig.Target,
		sig.Confidence, strings.Join(sig.Reasons, ", ")))
}

// crossovers returns the indicator crossovers completing on the most recent
// candle.
func (s *Scanner) crossovers(candles []shared.Candle) []shared.CrossKind {
	closes := shared.Closes(candles)

	var kinds []shared.CrossKind
	if cross, ok := indicator.MACDCrossover(closes, macdFast, macdSlow, macdSignal); ok {
		switch cross {
		case indicator.BullishCross:
			kinds = append(kinds, shared.MACDBullishCross)
		case indicator.BearishCross:
			kinds = append(kinds, shared.MACDBearishCross)
		}
	}

	if cross, ok := indicator.SMACrossover(closes, s.cfg.FastSMA, s.cfg.SlowSMA); ok {
		switch cross {
		case indicator.BullishCross:
			kinds = append(kinds, shared.GoldenCross)
		case indicator.BearishCross:
			kinds = append(kinds, shared.DeathCross)
		}
	}

	return kinds
}
