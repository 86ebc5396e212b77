package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/chordial/internal/config"
	"github.com/bowerhall/chordial/internal/prompt"
	"github.com/bowerhall/chordial/pkg/chordialmem"
)

var statsCmd = &cobra.Command{
	Use:   "stats <user-id>",
	Short: "Show memory, compression and prompt statistics for a user",
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
		out := cmd.OutOrStdout()
		now := time.Now()

		user, err := st.memory.GetUser(ctx, args[0])
		if err != nil {
			return err
		}

		identities, err := st.memory.Identities(ctx, user.ID)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%s (%s)\n", user.PreferredName, user.ID)
		fmt.Fprintf(out, "  timezone: %s  personality: %s  onboarding: %s\n", user.Timezone, user.Personality, user.OnboardingState)
		for _, id := range identities {
			fmt.Fprintf(out, "  %s: %s (%s)\n", id.Platform, id.PlatformUserID, id.Username)
		}

		memStats, err := st.memory.MemoryStats(ctx, user.ID, now)
		if err != nil {
			return err
		}
		printMemoryStats(out, memStats)

		compression, err := st.conv.CompressionStats(ctx, user.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\ncompression\n  messages: %d  avg ratio: %.2f  chars saved: %d\n",
			compression.Count, compression.AverageRatio, compression.CharsSaved)

		promptLog, err := prompt.NewLog(cfg.PromptLogDir)
		if err != nil {
			return err
		}
		if promptLog != nil {
			ps, err := promptLog.Stats(user.PreferredName)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nprompts\n  total: %d  conversation: %d  scheduled: %d  avg tokens: %.0f\n",
				ps.Total, ps.Conversation, ps.Scheduled, ps.AverageTokens)
		}

		day, err := st.usage.Day(now)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nusage today (all users)\n  requests: %d  tokens: %d in / %d out  cost: $%.4f\n",
			day.TotalRequests, day.TotalInputTokens, day.TotalOutputTokens, day.TotalCostUSD)

		return nil
	},
}

func printMemoryStats(out io.Writer, s *chordialmem.MemoryStats) {
	fmt.Fprintf(out, "\nmemories\n  active: %d  core: %d  avg access: %.1f\n", s.Total, s.Core, s.AvgAccessCount)

	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, string(t))
	}
	slices.Sort(types)
	for _, t := range types {
		fmt.Fprintf(out, "  %s: %d\n", t, s.ByType[chordialmem.MemoryType(t)])
	}

	sources := make([]string, 0, len(s.BySource))
	for src := range s.BySource {
		sources = append(sources, string(src))
	}
	slices.Sort(sources)
	for _, src := range sources {
		fmt.Fprintf(out, "  %s: %d\n", src, s.BySource[chordialmem.Source(src)])
	}
}
