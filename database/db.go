package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/kalebr/tradeassist/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

const (
	// ruleSchemaVersion is the current persisted trading rule schema.
	ruleSchemaVersion = 2
	// dcaSchemaVersion is the current persisted recurring buy schema.
	dcaSchemaVersion = 2
)

const (
	// SQL statements.
	createRuleTableSQL = "CREATE TABLE IF NOT EXISTS rule (id TEXT PRIMARY KEY, symbol TEXT, action INTEGER, " +
		"enabled INTEGER, auto_trade INTEGER, trigger_kind INTEGER, pattern INTEGER, crossover INTEGER, " +
		"min_confidence REAL, cooldown_minutes INTEGER, min_volume REAL, rsi_min REAL, rsi_max REAL, " +
		"amount_dollars REAL, position_size_percent REAL, sell_percent REAL, fractional INTEGER, " +
		"take_profit_percent REAL, stop_loss_percent REAL, trailing_stop_percent REAL, max_holding_days INTEGER, " +
		"last_executed_at INTEGER, created_on INTEGER, schema_version INTEGER)"
	createDCATableSQL = "CREATE TABLE IF NOT EXISTS dca (id TEXT PRIMARY KEY, symbol TEXT, amount_dollars REAL, " +
		"interval INTEGER, enabled INTEGER, fractional INTEGER, last_run INTEGER, next_run INTEGER, " +
		"created_on INTEGER, schema_version INTEGER)"
	createTradeTableSQL = "CREATE TABLE IF NOT EXISTS trade (id TEXT PRIMARY KEY, position_id TEXT, rule_id TEXT, " +
		"symbol TEXT, direction INTEGER, shares REAL, entry_price REAL, entry_date INTEGER, exit_price REAL, " +
		"exit_date INTEGER, pnl REAL, pnl_percent REAL, holding_days INTEGER, exit_reason INTEGER)"
	createExecutionTableSQL = "CREATE TABLE IF NOT EXISTS execution (id TEXT PRIMARY KEY, rule_id TEXT, " +
		"symbol TEXT, action INTEGER, status INTEGER, reason TEXT, shares REAL, price REAL, created_on INTEGER)"
	upsertRuleSQL = "INSERT OR REPLACE INTO rule(id, symbol, action, enabled, auto_trade, trigger_kind, pattern, " +
		"crossover, min_confidence, cooldown_minutes, min_volume, rsi_min, rsi_max, amount_dollars, " +
		"position_size_percent, sell_percent, fractional, take_profit_percent, stop_loss_percent, " +
		"trailing_stop_percent, max_holding_days, last_executed_at, created_on, schema_version) " +
		"VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	loadRulesSQL  = "SELECT * FROM rule"
	deleteRuleSQL = "DELETE FROM rule WHERE id = ?"
	upsertDCASQL  = "INSERT OR REPLACE INTO dca(id, symbol, amount_dollars, interval, enabled, fractional, " +
		"last_run, next_run, created_on, schema_version) VALUES(?,?,?,?,?,?,?,?,?,?)"
	loadDCAsSQL    = "SELECT * FROM dca"
	deleteDCASQL   = "DELETE FROM dca WHERE id = ?"
	insertTradeSQL = "INSERT INTO trade(id, position_id, rule_id, symbol, direction, shares, entry_price, " +
		"entry_date, exit_price, exit_date, pnl, pnl_percent, holding_days, exit_reason) " +
		"VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)"
	insertExecutionSQL = "INSERT INTO execution(id, rule_id, symbol, action, status, reason, shares, price, " +
		"created_on) VALUES(?,?,?,?,?,?,?,?,?)"
)

// Config is the configuration for the database.
type Config struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("endpoint cannot be an empty string"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Database represents the database connection.
type Database struct {
	cfg    *Config
	client *rqlitehttp.Client
}

// Ensure the database implements the RecordStorer interface.
var _ shared.RecordStorer = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *Config) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating database config: %w", err)
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	client.SetBasicAuth(cfg.User, cfg.Pass)

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap creates the database tables.
func (db *Database) bootstrap(ctx context.Context) error {
	_, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{
		{SQL: createRuleTableSQL},
		{SQL: createDCATableSQL},
		{SQL: createTradeTableSQL},
		{SQL: createExecutionTableSQL},
	}, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})

	return err
}

// execute runs the provided statement in a transaction, surfacing statement
// errors carried by the response.
func (db *Database) execute(ctx context.Context, statement rqlitehttp.SQLStatement) error {
	resp, err := db.client.Execute(ctx, rqlitehttp.SQLStatements{&statement},
		&rqlitehttp.ExecuteOptions{Transaction: true, Timings: true})
	if err != nil {
		return err
	}

	hasErr, idx, errMsg := resp.HasError()
	if hasErr {
		return fmt.Errorf("statement %d -> %s", idx, errMsg)
	}

	return nil
}

// queryRows runs the provided query and flattens its results into column maps.
func (db *Database) queryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	resp, err := db.client.QuerySingle(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	for _, result := range resp.GetQueryResultsAssoc() {
		if result.Error != "" {
			return nil, fmt.Errorf("%s", result.Error)
		}

		rows = append(rows, result.Rows...)
	}

	return rows, nil
}

// boolColumn converts the provided flag to its column representation.
func boolColumn(flag bool) int {
	if flag {
		return 1
	}

	return 0
}

// timeColumn converts the provided time to unix seconds, mapping the zero
// time to zero.
func timeColumn(moment time.Time) int64 {
	if moment.IsZero() {
		return 0
	}

	return moment.Unix()
}

// rowString reads a string column of the provided row.
func rowString(row map[string]any, column string) string {
	str, _ := row[column].(string)
	return str
}

// rowFloat reads a numeric column of the provided row.
func rowFloat(row map[string]any, column string) float64 {
	num, _ := row[column].(float64)
	return num
}

// rowInt reads an integer column of the provided row.
func rowInt(row map[string]any, column string) int {
	return int(rowFloat(row, column))
}

// rowBool reads a boolean column of the provided row.
func rowBool(row map[string]any, column string) bool {
	return rowFloat(row, column) != 0
}

// rowTime reads a unix seconds column of the provided row, mapping zero to
// the zero time.
func rowTime(row map[string]any, column string) time.Time {
	unix := int64(rowFloat(row, column))
	if unix == 0 {
		return time.Time{}
	}

	return time.Unix(unix, 0).UTC()
}

// SaveRule persists the provided rule, stamping it with the current schema
// version.
func (db *Database) SaveRule(ctx context.Context, rule *shared.TradingRule) error {
	rule.SchemaVersion = ruleSchemaVersion

	err := db.execute(ctx, rqlitehttp.SQLStatement{
		SQL: upsertRuleSQL,
		PositionalParams: []any{rule.ID, rule.Symbol, int(rule.Action), boolColumn(rule.Enabled),
			boolColumn(rule.AutoTrade), int(rule.Trigger), int(rule.Pattern), int(rule.Crossover),
			rule.MinConfidence, rule.CooldownMinutes, rule.MinVolume, rule.RSIMin, rule.RSIMax,
			rule.AmountDollars, rule.PositionSizePercent, rule.SellPercent, boolColumn(rule.Fractional),
			rule.Risk.TakeProfitPercent, rule.Risk.StopLossPercent, rule.Risk.TrailingStopPercent,
			rule.Risk.MaxHoldingDays, timeColumn(rule.LastExecutedAt), timeColumn(rule.CreatedOn),
			rule.SchemaVersion},
	})
	if err != nil {
		return fmt.Errorf("persisting rule %s: %w", rule.ID, err)
	}

	return nil
}

// DeleteRule removes the persisted rule with the provided id.
func (db *Database) DeleteRule(ctx context.Context, id string) error {
	err := db.execute(ctx, rqlitehttp.SQLStatement{
		SQL:              deleteRuleSQL,
		PositionalParams: []any{id},
	})
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", id, err)
	}

	return nil
}

// decodeRule converts the provided row to a trading rule.
func decodeRule(row map[string]any) *shared.TradingRule {
	return &shared.TradingRule{
		ID:                  rowString(row, "id"),
		Symbol:              rowString(row, "symbol"),
		Action:              shared.OrderAction(rowInt(row, "action")),
		Enabled:             rowBool(row, "enabled"),
		AutoTrade:           rowBool(row, "auto_trade"),
		Trigger:             shared.TriggerKind(rowInt(row, "trigger_kind")),
		Pattern:             shared.PatternKind(rowInt(row, "pattern")),
		Crossover:           shared.CrossKind(rowInt(row, "crossover")),
		MinConfidence:       rowFloat(row, "min_confidence"),
		CooldownMinutes:     rowInt(row, "cooldown_minutes"),
		MinVolume:           rowFloat(row, "min_volume"),
		RSIMin:              rowFloat(row, "rsi_min"),
		RSIMax:              rowFloat(row, "rsi_max"),
		AmountDollars:       rowFloat(row, "amount_dollars"),
		PositionSizePercent: rowFloat(row, "position_size_percent"),
		SellPercent:         rowFloat(row, "sell_percent"),
		Fractional:          rowBool(row, "fractional"),
		Risk: shared.RiskParams{
			TakeProfitPercent:   rowFloat(row, "take_profit_percent"),
			StopLossPercent:     rowFloat(row, "stop_loss_percent"),
			TrailingStopPercent: rowFloat(row, "trailing_stop_percent"),
			MaxHoldingDays:      rowInt(row, "max_holding_days"),
		},
		LastExecutedAt: rowTime(row, "last_executed_at"),
		CreatedOn:      rowTime(row, "created_on"),
		SchemaVersion:  rowInt(row, "schema_version"),
	}
}

// migrateRule upgrades the provided rule record to the current schema, one
// version at a time.
func migrateRule(rule *shared.TradingRule) {
	for rule.SchemaVersion < ruleSchemaVersion {
		switch rule.SchemaVersion {
		case 1:
			// v2 added the auto trade flag. Prior rules always traded.
			rule.AutoTrade = true
		}

		rule.SchemaVersion++
	}
}

// LoadRules fetches all persisted rules, migrating stale records to the
// current schema. Records with unexpected versions are skipped.
func (db *Database) LoadRules(ctx context.Context) ([]*shared.TradingRule, error) {
	rows, err := db.queryRows(ctx, loadRulesSQL)
	if err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	rules := make([]*shared.TradingRule, 0, len(rows))
	for _, row := range rows {
		rule := decodeRule(row)
		if rule.SchemaVersion < 1 || rule.SchemaVersion > ruleSchemaVersion {
			db.cfg.Logger.Error().Msgf("unexpected rule schema version %d: %s",
				rule.SchemaVersion, spew.Sdump(rule))
			continue
		}

		migrateRule(rule)
		rules = append(rules, rule)
	}

	return rules, nil
}

// SaveDCAConfig persists the provided recurring buy, stamping it with the
// current schema version.
func (db *Database) SaveDCAConfig(ctx context.Context, dca *shared.DCAConfig) error {
	dca.SchemaVersion = dcaSchemaVersion

	err := db.execute(ctx, rqlitehttp.SQLStatement{
		SQL: upsertDCASQL,
		PositionalParams: []any{dca.ID, dca.Symbol, dca.AmountDollars, int(dca.Interval),
			boolColumn(dca.Enabled), boolColumn(dca.Fractional), timeColumn(dca.LastRun),
			timeColumn(dca.NextRun), timeColumn(dca.CreatedOn), dca.SchemaVersion},
	})
	if err != nil {
		return fmt.Errorf("persisting dca config %s: %w", dca.ID, err)
	}

	return nil
}

// DeleteDCAConfig removes the persisted recurring buy with the provided id.
func (db *Database) DeleteDCAConfig(ctx context.Context, id string) error {
	err := db.execute(ctx, rqlitehttp.SQLStatement{
		SQL:              deleteDCASQL,
		PositionalParams: []any{id},
	})
	if err != nil {
		return fmt.Errorf("deleting dca config %s: %w", id, err)
	}

	return nil
}

// decodeDCAConfig converts the provided row to a recurring buy.
func decodeDCAConfig(row map[string]any) *shared.DCAConfig {
	return &shared.DCAConfig{
		ID:            rowString(row, "id"),
		Symbol:        rowString(row, "symbol"),
		AmountDollars: rowFloat(row, "amount_dollars"),
		Interval:      shared.DCAInterval(rowInt(row, "interval")),
		Enabled:       rowBool(row, "enabled"),
		Fractional:    rowBool(row, "fractional"),
		LastRun:       rowTime(row, "last_run"),
		NextRun:       rowTime(row, "next_run"),
		CreatedOn:     rowTime(row, "created_on"),
		SchemaVersion: rowInt(row, "schema_version"),
	}
}

// migrateDCAConfig upgrades the provided recurring buy record to the current
// schema, one version at a time.
func migrateDCAConfig(dca *shared.DCAConfig) {
	for dca.SchemaVersion < dcaSchemaVersion {
		switch dca.SchemaVersion {
		case 1:
			// v2 added the fractional flag. Prior buys sized fractionally.
			dca.Fractional = true
		}

		dca.SchemaVersion++
	}
}

// LoadDCAConfigs fetches all persisted recurring buys, migrating stale
// records to the current schema. Records with unexpected versions are
// skipped.
func (db *Database) LoadDCAConfigs(ctx context.Context) ([]*shared.DCAConfig, error) {
	rows, err := db.queryRows(ctx, loadDCAsSQL)
	if err != nil {
		return nil, fmt.Errorf("loading dca configs: %w", err)
	}

	configs := make([]*shared.DCAConfig, 0, len(rows))
	for _, row := range rows {
		dca := decodeDCAConfig(row)
		if dca.SchemaVersion < 1 || dca.SchemaVersion > dcaSchemaVersion {
			db.cfg.Logger.Error().Msgf("unexpected dca schema version %d: %s",
				dca.SchemaVersion, spew.Sdump(dca))
			continue
		}

		migrateDCAConfig(dca)
		configs = append(configs, dca)
	}

	return configs, nil
}

// SaveTrade persists the provided completed trade.
func (db *Database) SaveTrade(ctx context.Context, trade *shared.CompletedTrade) error {
	err := db.execute(ctx, rqlitehttp.SQLStatement{
		SQL: insertTradeSQL,
		PositionalParams: []any{trade.ID, trade.PositionID, trade.RuleID, trade.Symbol,
			int(trade.Direction), trade.Shares, trade.EntryPrice, timeColumn(trade.EntryDate),
			trade.ExitPrice, timeColumn(trade.ExitDate), trade.PNL, trade.PNLPercent,
			trade.HoldingDays, int(trade.ExitReason)},
	})
	if err != nil {
		return fmt.Errorf("persisting trade %s: %w", trade.ID, err)
	}

	return nil
}

// SaveExecution persists the provided execution record.
func (db *Database) SaveExecution(ctx context.Context, record *shared.ExecutionRecord) error {
	err := db.execute(ctx, rqlitehttp.SQLStatement{
		SQL: insertExecutionSQL,
		PositionalParams: []any{record.ID, record.RuleID, record.Symbol, int(record.Action),
			int(record.Status), record.Reason, record.Shares, record.Price,
			timeColumn(record.CreatedOn)},
	})
	if err != nil {
		return fmt.Errorf("persisting execution %s: %w", record.ID, err)
	}

	return nil
}
