package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/tokenledger/tokenledger/internal/config"
	"github.com/tokenledger/tokenledger/internal/version"
)

func main() {
	if os.Getenv("TOKENLEDGER_DEBUG") != "" {
		log.SetOutput(os.Stderr)
	} else {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		fmt.Fprintf(os.Stderr, "Config path: %s\n", config.ConfigPath())
		os.Exit(1)
	}

	root := cobra.Command{
		Use:     "tokenledger",
		Short:   "TokenLedger ingests AI coding assistant usage logs and reports cost and session analytics.",
		Version: version.String(),
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSnapshot(cfg)
		},
	}

	root.AddCommand(newWatchCommand(cfg))
	root.AddCommand(newResetCommand(cfg))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
