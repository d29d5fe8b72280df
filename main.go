package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/kalebr/tradeassist/service"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		log.Printf("loading config: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assistCfg := service.AssistConfig{
		Symbols:             cfg.Symbols,
		FMPAPIKey:           cfg.FMPAPIKey,
		ReplayDataFilepath:  cfg.ReplayDataFilepath,
		InitialCapital:      cfg.InitialCapital,
		RiskProfile:         cfg.RiskProfile,
		OrderDollars:        cfg.OrderDollars,
		ScanInterval:        cfg.ScanInterval,
		SignalBias:          cfg.SignalBias,
		DatabaseEndpoint:    cfg.DatabaseEndpoint,
		DatabaseUser:        cfg.DatabaseUser,
		DatabasePass:        cfg.DatabasePass,
		DCASymbol:           cfg.DCASymbol,
		DCADollars:          cfg.DCADollars,
		DCAInterval:         cfg.DCAInterval,
		GridSymbol:          cfg.GridSymbol,
		GridSpacingPercent:  cfg.GridSpacingPercent,
		GridLevels:          cfg.GridLevels,
		GridDollars:         cfg.GridDollars,
		Backtest:            cfg.Backtest,
		BacktestSymbol:      cfg.BacktestSymbol,
		BacktestCSVFilepath: cfg.BacktestCSVFilepath,
		Notify: func(message string) {
			log.Println(message)
		},
		Cancel: cancel,
	}
	assist, err := service.NewAssist(&assistCfg)
	if err != nil {
		log.Printf("creating assist service: %v", err)
		return
	}

	go handleTermination(ctx, cancel)
	assist.Run(ctx)
}
