package shared

import (
	"context"
)

// MarketSource defines the requirements for fetching market data for symbols.
type MarketSource interface {
	// FetchCandles fetches up to limit historical candles for the provided
	// symbol, oldest first.
	FetchCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]Candle, error)
	// FetchQuote fetches the current price for the provided symbol.
	FetchQuote(ctx context.Context, symbol string) (float64, error)
}

// PatternDetector defines the requirements for flagging candlestick patterns
// on a candle window.
type PatternDetector interface {
	// DetectPatterns flags candlestick patterns on the provided window,
	// most recent candle last.
	DetectPatterns(candles []Candle) []PatternMatch
}

// RecordStorer defines the requirements for persisting trading records.
type RecordStorer interface {
	// SaveRule persists the provided rule.
	SaveRule(ctx context.Context, rule *TradingRule) error
	// DeleteRule removes the persisted rule with the provided id.
	DeleteRule(ctx context.Context, id string) error
	// LoadRules fetches all persisted rules.
	LoadRules(ctx context.Context) ([]*TradingRule, error)
	// SaveDCAConfig persists the provided recurring buy.
	SaveDCAConfig(ctx context.Context, dca *DCAConfig) error
	// DeleteDCAConfig removes the persisted recurring buy with the provided id.
	DeleteDCAConfig(ctx context.Context, id string) error
	// LoadDCAConfigs fetches all persisted recurring buys.
	LoadDCAConfigs(ctx context.Context) ([]*DCAConfig, error)
	// SaveTrade persists the provided completed trade.
	SaveTrade(ctx context.Context, trade *CompletedTrade) error
	// SaveExecution persists the provided execution record.
	SaveExecution(ctx context.Context, record *ExecutionRecord) error
}

// Notifier relays a user facing alert message.
type Notifier func(message string)
