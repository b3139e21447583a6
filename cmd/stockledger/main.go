package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "stockledger"
	version = "v1.0.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Personal stock quote proxy and trade ledger",
		Version: version,
		Long: `stockledger serves live quote charts proxied from Yahoo Finance and a
personal ledger of trade decisions with derived risk metrics.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long:  "Start the quote proxy, the sync engine and the ledger API on one listener",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to the YAML config file")
	serveCmd.Flags().Bool("dev", false, "Development mode: in-memory store, fewer retries")
	serveCmd.Flags().String("listen", "", "Listen address override, host:port")

	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up zerolog: console output on a terminal, JSON otherwise.
func initLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
