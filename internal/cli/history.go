package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/history"
	"github.com/danielpatrickdp/state-weaver/internal/journal"
)

var (
	historyDB   string
	historyData string
	recentLimit int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historySyncCmd)
	historyCmd.AddCommand(historyRecentCmd)
	historyCmd.AddCommand(historyOutcomesCmd)
	historyCmd.AddCommand(historySummaryCmd)

	defaults := config.DefaultRuntime()
	historyCmd.PersistentFlags().StringVar(&historyDB, "db", defaults.HistoryDB, "History index database")
	historyCmd.PersistentFlags().StringVar(&historyData, "data", defaults.DataDir, "Log data directory")
	historyRecentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "Number of decisions to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query the decision and verification index",
}

var historySyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Index new log records",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := history.NewStore(historyDB)
		if err != nil {
			return err
		}
		defer s.Close()
		decisions, verifications, err := s.Sync(
			filepath.Join(historyData, journal.DecisionLogFile),
			filepath.Join(historyData, journal.VerificationLogFile),
		)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d decisions, %d verifications\n", decisions, verifications)
		return nil
	},
}

var historyRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the newest decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := history.NewStore(historyDB)
		if err != nil {
			return err
		}
		defer s.Close()
		decisions, err := s.RecentDecisions(recentLimit)
		if err != nil {
			return err
		}
		for _, d := range decisions {
			selected := "<none>"
			if d.SelectedActionID != nil {
				selected = *d.SelectedActionID
			}
			note := ""
			if d.DispatchError != "" {
				note = " dispatch_error=" + d.DispatchError
			}
			fmt.Printf("%-30s cycle=%s selected=%-16s active=%v%s\n",
				d.Timestamp, d.CycleID, selected, d.ActiveObjectives, note)
		}
		return nil
	},
}

var historyOutcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Verification outcomes per action",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := history.NewStore(historyDB)
		if err != nil {
			return err
		}
		defer s.Close()
		outcomes, err := s.OutcomesByAction()
		if err != nil {
			return err
		}
		fmt.Printf("%-24s %10s %8s %8s %10s\n", "action", "scheduled", "passed", "failed", "rollbacks")
		for _, o := range outcomes {
			fmt.Printf("%-24s %10d %8d %8d %10d\n", o.ActionID, o.Scheduled, o.Passed, o.Failed, o.Rollbacks)
		}
		return nil
	},
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate decision and verification counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := history.NewStore(historyDB)
		if err != nil {
			return err
		}
		defer s.Close()
		sum, err := s.Summarize()
		if err != nil {
			return err
		}
		fmt.Printf("decisions:     %d (%d selected, %d suppressed)\n",
			sum.Decisions, sum.Selections, sum.Suppressions)
		fmt.Printf("verifications: %d (%d rollbacks)\n", sum.Verifications, sum.Rollbacks)
		return nil
	},
}
