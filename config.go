package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// defaultInitialCapital is the simulated cash balance used when none is
// configured.
const defaultInitialCapital = 10000

// Config is the configuration struct for the service.
type Config struct {
	// Symbols represents the scanned symbols.
	Symbols []string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// ReplayDataFilepath is the filepath to historic market data. When set
	// the assistant reads market data from the file instead of the
	// provider.
	ReplayDataFilepath string
	// InitialCapital is the simulated starting cash balance.
	InitialCapital float64
	// RiskProfile names the risk preset seeded rules are built from.
	RiskProfile string
	// OrderDollars is the notional seeded rule entries are sized with.
	OrderDollars float64
	// ScanInterval is the candle interval scans and backtests run on.
	ScanInterval string
	// SignalBias restricts the directions advisory signals may take.
	SignalBias string
	// DatabaseEndpoint is the rqlite endpoint. Persistence is disabled
	// when unset.
	DatabaseEndpoint string
	// DatabaseUser is the rqlite basic auth user.
	DatabaseUser string
	// DatabasePass is the rqlite basic auth password.
	DatabasePass string
	// DCASymbol is the symbol of the seeded recurring buy.
	DCASymbol string
	// DCADollars is the notional of the seeded recurring buy.
	DCADollars float64
	// DCAInterval is the cadence of the seeded recurring buy.
	DCAInterval string
	// GridSymbol is the symbol the grid bot trades.
	GridSymbol string
	// GridSpacingPercent is the gap between adjacent grid levels.
	GridSpacingPercent float64
	// GridLevels is the number of grid levels on each side of the anchor.
	GridLevels int
	// GridDollars is the notional traded per grid level crossing.
	GridDollars float64
	// Backtest is the backtesting flag.
	Backtest bool
	// BacktestSymbol is the symbol being backtested.
	BacktestSymbol string
	// BacktestCSVFilepath is the filepath backtest trades export to.
	BacktestCSVFilepath string

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.FMPAPIKey == "" && cfg.ReplayDataFilepath == "" {
		errs = errors.Join(errs, fmt.Errorf("a market data source is required, set an fmp api key or a replay data filepath"))
	}

	switch cfg.Backtest {
	case true:
		if cfg.BacktestSymbol == "" {
			errs = errors.Join(errs, fmt.Errorf("backtest symbol cannot be an empty string"))
		}
	case false:
		if len(cfg.Symbols) == 0 {
			errs = errors.Join(errs, fmt.Errorf("no symbols provided for the assist service"))
		}
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Float64:
		var def float64
		if defValue != "" {
			def, _ = strconv.ParseFloat(defValue, 64)
		}
		flag.Float64Var(value.(*float64), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"symbols", &cfg.Symbols, "the scanned symbols"},
		{"fmpapikey", &cfg.FMPAPIKey, "the FMP api key"},
		{"replaydatafilepath", &cfg.ReplayDataFilepath, "the historic market data filepath"},
		{"initialcapital", &cfg.InitialCapital, "the simulated starting cash balance"},
		{"riskprofile", &cfg.RiskProfile, "the risk profile preset, conservative, balanced or aggressive"},
		{"orderdollars", &cfg.OrderDollars, "the notional per seeded rule entry"},
		{"scaninterval", &cfg.ScanInterval, "the candle interval scans and backtests run on"},
		{"signalbias", &cfg.SignalBias, "the advisory signal bias, both, long or short"},
		{"dbendpoint", &cfg.DatabaseEndpoint, "the rqlite endpoint"},
		{"dbuser", &cfg.DatabaseUser, "the rqlite basic auth user"},
		{"dbpass", &cfg.DatabasePass, "the rqlite basic auth password"},
		{"dcasymbol", &cfg.DCASymbol, "the recurring buy symbol"},
		{"dcadollars", &cfg.DCADollars, "the notional per recurring buy"},
		{"dcainterval", &cfg.DCAInterval, "the recurring buy cadence, hourly, daily or weekly"},
		{"gridsymbol", &cfg.GridSymbol, "the grid bot symbol"},
		{"gridspacing", &cfg.GridSpacingPercent, "the grid level spacing percent"},
		{"gridlevels", &cfg.GridLevels, "the grid level count per side"},
		{"griddollars", &cfg.GridDollars, "the notional per grid level crossing"},
		{"backtest", &cfg.Backtest, "the backtest flag"},
		{"backtestsymbol", &cfg.BacktestSymbol, "the backtested symbol"},
		{"backtestcsvfilepath", &cfg.BacktestCSVFilepath, "the backtest trade log filepath"},
	}
	for _, entry := range flags {
		err = cfg.registerFlag(entry.name, entry.value, entry.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = defaultInitialCapital
	}

	return cfg.Validate()
}
