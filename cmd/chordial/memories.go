package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/chordial/internal/config"
)

var memoriesAll bool

var memoriesCmd = &cobra.Command{
	Use:   "memories <user-id>",
	Short: "List a user's active memories",
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
		user, err := st.memory.GetUser(ctx, args[0])
		if err != nil {
			return err
		}

		now := time.Now()
		memories, err := st.memory.GetActive(ctx, user.ID, "", memoriesAll, now)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(memories) == 0 {
			fmt.Fprintf(out, "no memories for %s\n", user.PreferredName)
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSOURCE\tWEIGHT\tFLAGS\tINSTRUCTION")
		for _, m := range memories {
			var flags []string
			if m.Core {
				flags = append(flags, "core")
			}
			if m.Expired(now) {
				flags = append(flags, "expired")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%s\t%s\n", m.ID, m.Type, m.Source, m.Weighting, strings.Join(flags, ","), m.Instruction)
		}
		return w.Flush()
	},
}

func init() {
	memoriesCmd.Flags().BoolVar(&memoriesAll, "all", false, "include expired memories")
}
