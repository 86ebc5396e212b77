package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/chordial/internal/config"
)

var (
	summarizeUser     string
	summarizePlatform string
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize conversation backlogs now",
	Long: `Runs the summary sweep immediately. With --user and --platform only that
conversation is swept; otherwise every known conversation is.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (summarizeUser == "") != (summarizePlatform == "") {
			return fmt.Errorf("--user and --platform must be given together")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		engine, err := newEngine(cfg, st, st.usageMeter(cfg))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		now := time.Now()

		var n int
		if summarizeUser != "" {
			n, err = engine.Summarize(ctx, summarizeUser, summarizePlatform, now)
		} else {
			n, err = engine.Summarizer().SweepAll(ctx, now)
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "created %d summaries\n", n)
		return nil
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeUser, "user", "", "internal user id")
	summarizeCmd.Flags().StringVar(&summarizePlatform, "platform", "", "platform of the conversation (discord, telegram)")
}
