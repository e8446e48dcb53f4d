package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/state-weaver/internal/journal"
	"github.com/danielpatrickdp/state-weaver/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to replay fixture JSON")
	decisionLog := flag.String("decision-log", "", "compare against a recorded decision log instead of fixture expectations")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json --decision-log data/decisions.jsonl")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(2)
	}

	results, err := replay.Run(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(2)
	}

	var diffs []string
	if *decisionLog != "" {
		decisions, err := journal.ReadDecisions(*decisionLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read decision log: %v\n", err)
			os.Exit(2)
		}
		diffs = replay.DiffLog(decisions, results)
	} else {
		diffs = replay.Diff(f, results)
	}

	os.Exit(printReport(f, results, diffs))
}

// #endregion main

// #region output

// printReport shows the per-step decisions, any divergence, and a summary.
// Exit code 0 means the replay matched, 1 means drift.
func printReport(f *replay.Fixture, results []replay.Result, diffs []string) int {
	fmt.Printf("%s\n\n", f.Description)
	fmt.Printf("%-26s| %-18s| %s\n", "At", "Selected", "Active objectives")
	fmt.Printf("%-26s+%-19s+%s\n", "--------------------------",
		"-------------------", "------------------")
	for _, r := range results {
		selected := "<none>"
		if r.SelectedActionID != nil {
			selected = *r.SelectedActionID
		}
		fmt.Printf("%-26s| %-18s| %v\n", r.At.Format("2006-01-02T15:04:05Z"), selected, r.ActiveObjectives)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d steps, %d selections, %d suppressions\n",
		s.Steps, s.Selections, s.Suppressions)

	if len(diffs) == 0 {
		fmt.Println("Replay matched.")
		return 0
	}
	fmt.Printf("\n%d divergences:\n", len(diffs))
	for _, d := range diffs {
		fmt.Printf("  %s\n", d)
	}
	return 1
}

// #endregion output
