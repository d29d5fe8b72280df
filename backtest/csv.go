package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kalebr/tradeassist/shared"
)

// tradeHeader is the column layout of an exported trade log.
var tradeHeader = []string{
	"symbol", "direction", "shares", "entry_price", "entry_date",
	"exit_price", "exit_date", "pnl", "pnl_percent", "holding_days",
	"exit_reason",
}

// WriteTradesCSV exports the provided completed trades as a csv file at
// the provided path.
func WriteTradesCSV(trades []shared.CompletedTrade, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trade log %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	err = writer.Write(tradeHeader)
	if err != nil {
		return fmt.Errorf("writing trade log header: %w", err)
	}

	for _, trade := range trades {
		err = writer.Write([]string{
			trade.Symbol,
			trade.Direction.String(),
			formatFloat(trade.Shares),
			formatFloat(trade.EntryPrice),
			trade.EntryDate.Format(time.RFC3339),
			formatFloat(trade.ExitPrice),
			trade.ExitDate.Format(time.RFC3339),
			formatFloat(trade.PNL),
			formatFloat(trade.PNLPercent),
			strconv.Itoa(trade.HoldingDays),
			trade.ExitReason.String(),
		})
		if err != nil {
			return fmt.Errorf("writing trade log row: %w", err)
		}
	}

	writer.Flush()
	err = writer.Error()
	if err != nil {
		return fmt.Errorf("flushing trade log: %w", err)
	}

	return nil
}

// formatFloat renders the provided value with the fewest digits that
// round trip.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
