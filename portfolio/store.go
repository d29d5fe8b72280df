package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kalebr/tradeassist/shared"
)

// StoreConfig represents the portfolio store configuration.
type StoreConfig struct {
	// InitialCapital is the starting cash balance.
	InitialCapital float64
	// NewID generates identifiers for positions, trades and fills.
	// Defaults to random uuids. Backtests inject a sequential generator
	// so identical runs produce identical records.
	NewID func() string
}

// Validate asserts the store config is well formed.
func (cfg *StoreConfig) Validate() error {
	var errs error

	if cfg.InitialCapital < 0 {
		errs = errors.Join(errs, fmt.Errorf("initial capital cannot be negative, got %.2f", cfg.InitialCapital))
	}

	return errs
}

// OpenParams represents a request to open or add to a position.
type OpenParams struct {
	RuleID       string
	Symbol       string
	Direction    shared.Direction
	Shares       float64
	Price        float64
	Risk         shared.RiskParams
	OriginRegime shared.Regime
	Now          time.Time
}

// CloseParams represents a request to liquidate some or all of a position.
type CloseParams struct {
	Symbol    string
	Direction shared.Direction
	// Shares is the quantity to liquidate, with zero meaning the full
	// holding.
	Shares float64
	Price  float64
	Reason shared.ExitReason
	Now    time.Time
}

// Store is the transactional owner of portfolio state. Every mutation of
// cash, positions and journals happens under its lock as one atomic step.
type Store struct {
	cfg        *StoreConfig
	mtx        sync.RWMutex
	cash       float64
	positions  []*shared.Position
	trades     []shared.CompletedTrade
	fills      []shared.Fill
	executions []shared.ExecutionRecord
}

// NewStore initializes a portfolio store.
func NewStore(cfg *StoreConfig) (*Store, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating store config: %w", err)
	}

	if cfg.NewID == nil {
		cfg.NewID = func() string {
			return uuid.New().String()
		}
	}

	return &Store{
		cfg:  cfg,
		cash: cfg.InitialCapital,
	}, nil
}

// Cash returns the available cash balance.
func (s *Store) Cash() float64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	return s.cash
}

// findPosition returns the open position for the provided symbol and
// direction. Callers must hold the lock.
func (s *Store) findPosition(symbol string, direction shared.Direction) (int, *shared.Position) {
	for idx, pos := range s.positions {
		if pos.Symbol == symbol && pos.Direction == direction {
			return idx, pos
		}
	}

	return -1, nil
}

// touch refreshes the tracked price extremes of the provided position.
func touch(pos *shared.Position, price float64) {
	pos.CurrentPrice = price
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	if price < pos.LowestPrice {
		pos.LowestPrice = price
	}
}

// OpenPosition opens a position for the provided symbol and direction, or
// adds to an existing one at a weighted average entry price. Cash is
// debited by the order notional as one atomic step with the upsert and the
// fill journal entry.
func (s *Store) OpenPosition(params OpenParams) (shared.Position, error) {
	if params.Shares <= 0 {
		return shared.Position{}, fmt.Errorf("order shares must be positive, got %.4f", params.Shares)
	}
	if params.Price <= 0 {
		return shared.Position{}, fmt.Errorf("order price must be positive, got %.4f", params.Price)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	cost := params.Shares * params.Price
	if cost > s.cash {
		return shared.Position{}, &shared.InsufficientBalanceError{
			Symbol: params.Symbol,
			Need:   cost,
			Have:   s.cash,
		}
	}

	s.cash -= cost

	_, pos := s.findPosition(params.Symbol, params.Direction)
	if pos != nil {
		held := pos.Shares * pos.EntryPrice
		pos.Shares += params.Shares
		pos.EntryPrice = (held + cost) / pos.Shares
		touch(pos, params.Price)
	} else {
		pos = &shared.Position{
			ID:           s.cfg.NewID(),
			RuleID:       params.RuleID,
			Symbol:       params.Symbol,
			Direction:    params.Direction,
			Status:       shared.Open,
			Shares:       params.Shares,
			EntryPrice:   params.Price,
			EntryDate:    params.Now,
			CurrentPrice: params.Price,
			HighestPrice: params.Price,
			LowestPrice:  params.Price,
			OriginRegime: params.OriginRegime,
			Risk:         params.Risk,
		}
		s.positions = append(s.positions, pos)
	}

	action := shared.Buy
	if params.Direction == shared.Short {
		action = shared.SellShort
	}
	s.fills = append(s.fills, shared.Fill{
		ID:        s.cfg.NewID(),
		RuleID:    params.RuleID,
		Symbol:    params.Symbol,
		Action:    action,
		Shares:    params.Shares,
		Price:     params.Price,
		CreatedOn: params.Now,
	})

	return *pos, nil
}

// positionPNL returns the profit or loss of liquidating shares of the
// provided position at price.
func positionPNL(pos *shared.Position, shares, price float64) float64 {
	if pos.Direction == shared.Short {
		return (pos.EntryPrice - price) * shares
	}

	return (price - pos.EntryPrice) * shares
}

// ClosePosition liquidates some or all of a position at the provided
// price, crediting cash with the freed notional and the realized profit or
// loss as one atomic step with the trade record and fill journal entry.
func (s *Store) ClosePosition(params CloseParams) (shared.CompletedTrade, error) {
	if params.Price <= 0 {
		return shared.CompletedTrade{}, fmt.Errorf("order price must be positive, got %.4f", params.Price)
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	idx, pos := s.findPosition(params.Symbol, params.Direction)
	if pos == nil {
		return shared.CompletedTrade{}, fmt.Errorf("no open %s position for %s", params.Direction, params.Symbol)
	}

	shares := params.Shares
	if shares == 0 {
		shares = pos.Shares
	}
	if shares > pos.Shares {
		return shared.CompletedTrade{}, &shared.InsufficientSharesError{
			Symbol: params.Symbol,
			Need:   shares,
			Have:   pos.Shares,
		}
	}

	touch(pos, params.Price)

	pnl := positionPNL(pos, shares, params.Price)
	cost := shares * pos.EntryPrice

	var pnlPercent float64
	if cost > 0 {
		pnlPercent = pnl / cost * 100
	}

	s.cash += cost + pnl

	trade := shared.CompletedTrade{
		ID:          s.cfg.NewID(),
		PositionID:  pos.ID,
		RuleID:      pos.RuleID,
		Symbol:      pos.Symbol,
		Direction:   pos.Direction,
		Shares:      shares,
		EntryPrice:  pos.EntryPrice,
		EntryDate:   pos.EntryDate,
		ExitPrice:   params.Price,
		ExitDate:    params.Now,
		PNL:         pnl,
		PNLPercent:  pnlPercent,
		HoldingDays: int(params.Now.Sub(pos.EntryDate).Hours() / 24),
		ExitReason:  params.Reason,
	}
	s.trades = append(s.trades, trade)

	action := shared.Sell
	if pos.Direction == shared.Short {
		action = shared.Cover
	}
	s.fills = append(s.fills, shared.Fill{
		ID:        s.cfg.NewID(),
		RuleID:    pos.RuleID,
		Symbol:    pos.Symbol,
		Action:    action,
		Shares:    shares,
		Price:     params.Price,
		CreatedOn: params.Now,
	})

	if shares == pos.Shares {
		pos.Status = shared.Closed
		s.positions = append(s.positions[:idx], s.positions[idx+1:]...)
	} else {
		pos.Shares -= shares
	}

	return trade, nil
}

// TouchPrice refreshes the price extremes of every open position on the
// provided symbol and returns snapshots of them.
func (s *Store) TouchPrice(symbol string, price float64) []shared.Position {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var touched []shared.Position
	for _, pos := range s.positions {
		if pos.Symbol != symbol {
			continue
		}
		touch(pos, price)
		touched = append(touched, *pos)
	}

	return touched
}

// Positions returns snapshots of all open positions.
func (s *Store) Positions() []shared.Position {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	positions := make([]shared.Position, len(s.positions))
	for idx, pos := range s.positions {
		positions[idx] = *pos
	}

	return positions
}

// PositionFor returns a snapshot of the open position for the provided
// symbol and direction.
func (s *Store) PositionFor(symbol string, direction shared.Direction) (shared.Position, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	_, pos := s.findPosition(symbol, direction)
	if pos == nil {
		return shared.Position{}, false
	}

	return *pos, true
}

// HasPositionForRule indicates whether an open position was opened by the
// provided rule.
func (s *Store) HasPositionForRule(ruleID string) bool {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for _, pos := range s.positions {
		if pos.RuleID == ruleID {
			return true
		}
	}

	return false
}

// Trades returns snapshots of all completed trades.
func (s *Store) Trades() []shared.CompletedTrade {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	trades := make([]shared.CompletedTrade, len(s.trades))
	copy(trades, s.trades)

	return trades
}

// Fills returns snapshots of all journaled fills.
func (s *Store) Fills() []shared.Fill {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	fills := make([]shared.Fill, len(s.fills))
	copy(fills, s.fills)

	return fills
}

// RecordExecution journals the outcome of a rule execution attempt.
func (s *Store) RecordExecution(record shared.ExecutionRecord) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.executions = append(s.executions, record)
}

// Executions returns snapshots of all journaled execution records.
func (s *Store) Executions() []shared.ExecutionRecord {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	executions := make([]shared.ExecutionRecord, len(s.executions))
	copy(executions, s.executions)

	return executions
}

// marketValue returns the liquidation value of the provided position at
// price. Short positions carry their cash reserve plus unrealized profit.
func marketValue(pos *shared.Position, price float64) float64 {
	if pos.Direction == shared.Short {
		return pos.Shares * (2*pos.EntryPrice - price)
	}

	return pos.Shares * price
}

// Equity returns the total portfolio value at the provided prices, falling
// back to each position's last seen price when a symbol is not quoted.
func (s *Store) Equity(prices map[string]float64) float64 {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	equity := s.cash
	for _, pos := range s.positions {
		price, ok := prices[pos.Symbol]
		if !ok {
			price = pos.CurrentPrice
		}
		equity += marketValue(pos, price)
	}

	return equity
}
