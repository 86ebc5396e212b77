package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/chordial/internal/config"
	"github.com/bowerhall/chordial/internal/logger"
	"github.com/bowerhall/chordial/internal/prompt"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Inspect or run maintenance jobs",
}

var maintenanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show recent maintenance runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.runs.Recent(cmd.Context(), 20)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tSTARTED\tTOOK\tRESULT")
		for _, r := range runs {
			result := r.Result
			if r.Failed() {
				result = "error: " + r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Job, r.StartedAt.In(cfg.Location()).Format(time.DateTime),
				r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), result)
		}
		return w.Flush()
	},
}

var maintenanceRunCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a maintenance job now (summaries, retention, backup, gauges)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()

		engine, err := newEngine(cfg, st, st.usageMeter(cfg))
		if err != nil {
			return err
		}

		promptLog, err := prompt.NewLog(cfg.PromptLogDir)
		if err != nil {
			return err
		}

		runner, err := newMaintenance(ctx, cfg, st, engine, promptLog, func(component, message string, err error) {
			logger.Error(message, "component", component, "error", err)
		})
		if err != nil {
			return err
		}

		run, err := runner.RunNow(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", run.Job, run.Result)
		return nil
	},
}

func init() {
	maintenanceCmd.AddCommand(maintenanceListCmd, maintenanceRunCmd)
}
