package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kalebr/tradeassist/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// fileIntervals are the intervals a historic data file may carry, finest
// first.
var fileIntervals = []shared.Interval{
	shared.OneMinute, shared.FiveMinute, shared.ThirtyMinute, shared.OneHour,
	shared.OneDay,
}

// FileSourceConfig represents the file data source configuration.
type FileSourceConfig struct {
	// FilePath is the filepath to the historic market data.
	FilePath string
	// Logger represents the source logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FileSourceConfig) Validate() error {
	var errs error

	if cfg.FilePath == "" {
		errs = errors.Join(errs, fmt.Errorf("file path cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// FileSource serves historic market data from a json file, letting
// backtests run without a provider. The file carries a symbol and an
// array of candles per interval name:
//
//	{"symbol": "AAPL", "1day": [{"date": ..., "open": ...}, ...]}
type FileSource struct {
	cfg     *FileSourceConfig
	symbol  string
	candles map[shared.Interval][]shared.Candle
}

// Ensure the file source implements the MarketSource interface.
var _ shared.MarketSource = (*FileSource)(nil)

// NewFileSource initializes a file data source from the configured file.
func NewFileSource(cfg *FileSourceConfig) (*FileSource, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating file source config: %w", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading historic data from file with path '%s': %w", cfg.FilePath, err)
	}

	loc, err := time.LoadLocation(shared.NewYorkLocation)
	if err != nil {
		return nil, fmt.Errorf("loading exchange timezone: %w", err)
	}

	parsed := gjson.ParseBytes(data)
	symbol := parsed.Get("symbol").String()
	if symbol == "" {
		return nil, fmt.Errorf("no symbol in historic data file %s", cfg.FilePath)
	}

	source := &FileSource{
		cfg:     cfg,
		symbol:  symbol,
		candles: make(map[shared.Interval][]shared.Candle),
	}

	total := 0
	for _, interval := range fileIntervals {
		entries := parsed.Get(interval.String()).Array()
		if len(entries) == 0 {
			continue
		}

		candles, err := shared.ParseCandles(entries, symbol, interval, loc)
		if err != nil {
			return nil, fmt.Errorf("parsing %s candles: %w", interval, err)
		}

		shared.SortCandles(candles)
		source.candles[interval] = candles
		total += len(candles)
	}

	if total == 0 {
		return nil, fmt.Errorf("no candle data in historic data file %s", cfg.FilePath)
	}

	cfg.Logger.Info().Msgf("loaded %d candles for %s from %s", total, symbol, cfg.FilePath)

	return source, nil
}

// Symbol returns the symbol of the loaded history.
func (s *FileSource) Symbol() string {
	return s.symbol
}

// FetchCandles serves up to limit candles of the loaded history, oldest
// first. It satisfies shared.MarketSource.
func (s *FileSource) FetchCandles(_ context.Context, symbol string, interval shared.Interval, limit int) ([]shared.Candle, error) {
	if symbol != s.symbol {
		return nil, fmt.Errorf("no historic data loaded for %s", symbol)
	}

	candles, ok := s.candles[interval]
	if !ok {
		return nil, fmt.Errorf("no %s candles loaded for %s", interval, symbol)
	}

	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	snapshot := make([]shared.Candle, len(candles))
	copy(snapshot, candles)

	return snapshot, nil
}

// FetchQuote serves the most recent close of the loaded history at its
// finest interval. It satisfies shared.MarketSource.
func (s *FileSource) FetchQuote(_ context.Context, symbol string) (float64, error) {
	if symbol != s.symbol {
		return 0, fmt.Errorf("no historic data loaded for %s", symbol)
	}

	for _, interval := range fileIntervals {
		candles, ok := s.candles[interval]
		if !ok {
			continue
		}

		return candles[len(candles)-1].Close, nil
	}

	return 0, fmt.Errorf("no candle data loaded for %s", symbol)
}
