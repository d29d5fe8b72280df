package rules

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kalebr/tradeassist/indicator"
	"github.com/kalebr/tradeassist/portfolio"
	"github.com/kalebr/tradeassist/shared"
)

const (
	// suppressionWindow is the period an identical alert is ignored for
	// after one fires.
	suppressionWindow = time.Minute * 5
	// minOrderNotional is the smallest order value the engine executes.
	minOrderNotional = float64(10)
	// filterRSIPeriod is the lookback period used by rule RSI filters.
	filterRSIPeriod = 14
	// filterVolumePeriod is the lookback period used by rule volume
	// filters.
	filterVolumePeriod = 20
)

// Event represents a detected market trigger awaiting rule evaluation.
type Event struct {
	// Symbol is the market the trigger fired for.
	Symbol string
	// Trigger names the pattern or crossover that fired.
	Trigger string
	// Confidence is the detector's confidence in the trigger.
	Confidence float64
	// Price is the price at the time of the trigger.
	Price float64
	// Volume is the traded volume of the candle the trigger fired on.
	Volume float64
	// Regime is the prevailing market regime, if known.
	Regime shared.Regime
	// Candles is the trailing history ending at the trigger, oldest first.
	Candles []shared.Candle
	// Time is the moment the trigger fired.
	Time time.Time
}

// PatternEvent builds an evaluation event from the provided pattern match.
func PatternEvent(match shared.PatternMatch, candles []shared.Candle, regime shared.Regime, now time.Time) Event {
	return Event{
		Symbol:     match.Symbol,
		Trigger:    match.Kind.String(),
		Confidence: match.Confidence,
		Price:      match.Price,
		Volume:     match.Volume,
		Regime:     regime,
		Candles:    candles,
		Time:       now,
	}
}

// CrossoverEvent builds an evaluation event from the provided indicator
// crossover. Crossovers are binary signals and carry full confidence.
func CrossoverEvent(symbol string, kind shared.CrossKind, candles []shared.Candle, regime shared.Regime, now time.Time) Event {
	event := Event{
		Symbol:     symbol,
		Trigger:    kind.String(),
		Confidence: 100,
		Regime:     regime,
		Candles:    candles,
		Time:       now,
	}

	if len(candles) > 0 {
		last := candles[len(candles)-1]
		event.Price = last.Close
		event.Volume = last.Volume
	}

	return event
}

// EngineConfig represents the rule engine configuration.
type EngineConfig struct {
	// Store is the portfolio store accepted rules execute against.
	Store *portfolio.Store
	// PersistExecution stores the provided execution record. Optional.
	PersistExecution func(record *shared.ExecutionRecord) error
	// Notify sends the provided message. Optional.
	Notify shared.Notifier
	// Logger represents the engine logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Store == nil {
		errs = errors.Join(errs, fmt.Errorf("portfolio store cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Engine matches detected market triggers against trading rules and
// executes accepted matches against the portfolio store. Each evaluation
// runs as one critical section so rules touching the same symbol cannot
// double spend.
type Engine struct {
	cfg    *EngineConfig
	mtx    sync.Mutex
	rules  []*shared.TradingRule
	alerts map[string]time.Time
}

// NewEngine initializes a new rule engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating engine config: %w", err)
	}

	return &Engine{
		cfg:    cfg,
		rules:  []*shared.TradingRule{},
		alerts: make(map[string]time.Time),
	}, nil
}

// AddRule registers the provided rule with the engine.
func (e *Engine) AddRule(rule *shared.TradingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	err := rule.Validate()
	if err != nil {
		return fmt.Errorf("validating rule: %w", err)
	}

	e.mtx.Lock()
	e.rules = append(e.rules, rule)
	e.mtx.Unlock()

	return nil
}

// Rules returns a snapshot of the registered rules.
func (e *Engine) Rules() []shared.TradingRule {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	rules := make([]shared.TradingRule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, *rule)
	}

	return rules
}

// Symbols returns the distinct symbols covered by enabled rules.
func (e *Engine) Symbols() []string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	seen := make(map[string]struct{})
	symbols := []string{}
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if _, ok := seen[rule.Symbol]; ok {
			continue
		}
		seen[rule.Symbol] = struct{}{}
		symbols = append(symbols, rule.Symbol)
	}

	return symbols
}

// alertKey generates the suppression registry key for the provided alert
// identity.
func alertKey(symbol string, trigger string, action shared.OrderAction) string {
	return fmt.Sprintf("%s|%s|%s", symbol, trigger, action.String())
}

// Evaluate runs the provided trigger event through all matching rules,
// executing those that pass the engine's gates.
func (e *Engine) Evaluate(event Event) {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	for _, rule := range e.rules {
		if !rule.Enabled || rule.Symbol != event.Symbol || rule.TriggerName() != event.Trigger {
			continue
		}

		e.evaluateRule(rule, &event)
	}
}

// evaluateRule gates the provided event through the rule's rejection
// criteria, in order: duplicate alert suppression, trigger confidence,
// execution cooldown, and for entries an existing position for the rule.
// Accepted events record the alert and proceed to execution.
func (e *Engine) evaluateRule(rule *shared.TradingRule, event *Event) {
	key := alertKey(event.Symbol, event.Trigger, rule.Action)
	if last, ok := e.alerts[key]; ok && event.Time.Sub(last) < suppressionWindow {
		e.cfg.Logger.Debug().Msgf("suppressing duplicate %s alert for %s", event.Trigger, event.Symbol)
		return
	}

	if event.Confidence < rule.MinConfidence {
		e.cfg.Logger.Debug().Msgf("%s confidence %.0f below rule minimum %.0f for %s",
			event.Trigger, event.Confidence, rule.MinConfidence, event.Symbol)
		return
	}

	if rule.CooldownMinutes > 0 && !rule.LastExecutedAt.IsZero() {
		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		if event.Time.Sub(rule.LastExecutedAt) < cooldown {
			e.cfg.Logger.Debug().Msgf("rule %s for %s still cooling down", rule.ID, event.Symbol)
			return
		}
	}

	if rule.Action.Entry() && e.cfg.Store.HasPositionForRule(rule.ID) {
		e.cfg.Logger.Debug().Msgf("rule %s already has an open position for %s", rule.ID, event.Symbol)
		return
	}

	if !e.passesFilters(rule, event) {
		return
	}

	e.alerts[key] = event.Time

	if !rule.AutoTrade {
		rule.LastExecutedAt = event.Time
		e.record(rule, event, shared.Executed, "alert only", 0)
		e.notify(fmt.Sprintf("Alert: %s on %s @ %.2f (confidence %.0f), rule set to %s",
			event.Trigger, event.Symbol, event.Price, event.Confidence, rule.Action.String()))
		return
	}

	if rule.Action.Entry() {
		e.executeEntry(rule, event)
		return
	}

	e.executeExit(rule, event)
}

// passesFilters applies the rule's optional volume and RSI entry filters to
// the provided event.
func (e *Engine) passesFilters(rule *shared.TradingRule, event *Event) bool {
	if rule.MinVolume > 0 {
		// Liquidity is judged on trailing average volume when history is
		// available, on the trigger candle's volume otherwise.
		volume := event.Volume
		if len(event.Candles) > 0 {
			volume = indicator.AverageVolume(shared.Volumes(event.Candles), filterVolumePeriod)
		}
		if volume < rule.MinVolume {
			e.cfg.Logger.Debug().Msgf("volume %.0f below rule minimum %.0f for %s",
				volume, rule.MinVolume, event.Symbol)
			return false
		}
	}

	if rule.RSIMax > 0 {
		rsi, ok := indicator.RSI(shared.Closes(event.Candles), filterRSIPeriod)
		if !ok {
			e.cfg.Logger.Debug().Msgf("not enough history to apply the rsi filter for %s", event.Symbol)
			return false
		}
		if rsi < rule.RSIMin || rsi > rule.RSIMax {
			e.cfg.Logger.Debug().Msgf("rsi %.2f outside rule bounds %.0f-%.0f for %s",
				rsi, rule.RSIMin, rule.RSIMax, event.Symbol)
			return false
		}
	}

	return true
}

// executeEntry sizes and opens a position for the provided accepted event.
func (e *Engine) executeEntry(rule *shared.TradingRule, event *Event) {
	cash := e.cfg.Store.Cash()

	var notional float64
	switch {
	case rule.AmountDollars > 0:
		notional = math.Min(rule.AmountDollars, cash)
	default:
		notional = math.Min(cash*rule.PositionSizePercent/100, cash)
	}

	if notional < minOrderNotional {
		e.fail(rule, event, fmt.Sprintf("order notional %.2f for %s is below the %.0f minimum",
			notional, event.Symbol, minOrderNotional))
		return
	}

	shares := notional / event.Price
	if !rule.Fractional {
		shares = math.Floor(shares)
		if shares == 0 {
			e.fail(rule, event, fmt.Sprintf("notional %.2f cannot buy a whole share of %s at %.2f",
				notional, event.Symbol, event.Price))
			return
		}
	}

	// Rounding in the sizing division can push the cost a hair past the
	// available cash when sizing to the full balance.
	for shares*event.Price > cash {
		shares = math.Nextafter(shares, 0)
	}

	pos, err := e.cfg.Store.OpenPosition(portfolio.OpenParams{
		RuleID:       rule.ID,
		Symbol:       event.Symbol,
		Direction:    rule.Action.PositionDirection(),
		Shares:       shares,
		Price:        event.Price,
		Risk:         rule.Risk,
		OriginRegime: event.Regime,
		Now:          event.Time,
	})
	if err != nil {
		e.fail(rule, event, err.Error())
		return
	}

	rule.LastExecutedAt = event.Time
	e.record(rule, event, shared.Executed, "", shares)
	e.notify(fmt.Sprintf("Executed %s of %.4f %s shares @ %.2f on %s, position %s",
		rule.Action.String(), shares, event.Symbol, event.Price, event.Trigger, pos.ID))
}

// executeExit liquidates the rule's share of an open position for the
// provided accepted event.
func (e *Engine) executeExit(rule *shared.TradingRule, event *Event) {
	direction := rule.Action.PositionDirection()

	pos, ok := e.cfg.Store.PositionFor(event.Symbol, direction)
	if !ok {
		e.fail(rule, event, fmt.Sprintf("no open %s position for %s", direction.String(), event.Symbol))
		return
	}

	// A zero sell percent liquidates the full holding.
	var shares float64
	if rule.SellPercent > 0 && rule.SellPercent < 100 {
		shares = pos.Shares * rule.SellPercent / 100
	}

	trade, err := e.cfg.Store.ClosePosition(portfolio.CloseParams{
		Symbol:    event.Symbol,
		Direction: direction,
		Shares:    shares,
		Price:     event.Price,
		Reason:    shared.Manual,
		Now:       event.Time,
	})
	if err != nil {
		e.fail(rule, event, err.Error())
		return
	}

	rule.LastExecutedAt = event.Time
	e.record(rule, event, shared.Executed, "", trade.Shares)
	e.notify(fmt.Sprintf("Executed %s of %.4f %s shares @ %.2f on %s, P/L %.2f (%.2f%%)",
		rule.Action.String(), trade.Shares, event.Symbol, event.Price, event.Trigger,
		trade.PNL, trade.PNLPercent))
}

// fail journals a failed execution attempt for the provided rule and event.
func (e *Engine) fail(rule *shared.TradingRule, event *Event, reason string) {
	e.cfg.Logger.Error().Msgf("executing rule %s for %s: %s", rule.ID, event.Symbol, reason)
	e.record(rule, event, shared.Failed, reason, 0)
	e.notify(fmt.Sprintf("Failed to execute %s for %s: %s", rule.Action.String(), event.Symbol, reason))
}

// record appends an execution record for the provided rule and event to the
// portfolio store's journal.
func (e *Engine) record(rule *shared.TradingRule, event *Event, status shared.ExecutionStatus, reason string, shares float64) {
	record := shared.ExecutionRecord{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Symbol:    event.Symbol,
		Action:    rule.Action,
		Status:    status,
		Reason:    reason,
		Shares:    shares,
		Price:     event.Price,
		CreatedOn: event.Time,
	}
	e.cfg.Store.RecordExecution(record)

	if e.cfg.PersistExecution != nil {
		err := e.cfg.PersistExecution(&record)
		if err != nil {
			e.cfg.Logger.Error().Msgf("persisting execution %s: %v", record.ID, err)
		}
	}
}

// notify relays the provided message when a notifier is configured.
func (e *Engine) notify(message string) {
	if e.cfg.Notify != nil {
		e.cfg.Notify(message)
	}
}
