package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bowerhall/chordial/internal/logger"
)

func init() {
	godotenv.Load()
}

var debug bool

var rootCmd = &cobra.Command{
	Use:   "chordial",
	Short: "chordial is an ai companion that chats over discord and telegram",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// the logger initialised before .env was read
		logger.SetOutput(os.Stderr, debug || os.Getenv("CHORDIAL_DEBUG") == "true")
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, summarizeCmd, memoriesCmd, statsCmd, maintenanceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("command failed", "error", err)
	}
}
