package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/state-weaver/internal/journal"
)

// #region main

func main() {
	dataDir := flag.String("data", "data", "log data directory")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	report, healthy := buildReport(*dataDir)

	if *jsonOut {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	} else {
		printReport(report)
	}
	if !healthy {
		os.Exit(1)
	}
}

// #endregion main

// #region report

// chainStatus is one log's integrity check.
type chainStatus struct {
	Log    string               `json:"log"`
	Result journal.VerifyResult `json:"result"`
}

// pendingCheck is a verification scheduled but not yet resolved.
type pendingCheck struct {
	CycleID  string `json:"cycle_id"`
	ActionID string `json:"action_id"`
	Metric   string `json:"metric"`
	Deadline string `json:"deadline"`
}

// report is the full inspection output.
type report struct {
	Chains       []chainStatus  `json:"chains"`
	Decisions    int            `json:"decisions"`
	Selections   int            `json:"selections"`
	Suppressions int            `json:"suppressions"`
	Pending      []pendingCheck `json:"pending_verifications"`
	Errors       []string       `json:"errors,omitempty"`
}

func buildReport(dataDir string) (report, bool) {
	var r report
	healthy := true

	for _, name := range []string{
		journal.StateLogFile, journal.DecisionLogFile, journal.VerificationLogFile,
	} {
		path := filepath.Join(dataDir, name)
		result := journal.VerifyChain(path)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			result = journal.VerifyResult{Valid: true}
		}
		if !result.Valid {
			healthy = false
		}
		r.Chains = append(r.Chains, chainStatus{Log: name, Result: result})
	}

	decisions, err := journal.ReadDecisions(filepath.Join(dataDir, journal.DecisionLogFile))
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("read decisions: %v", err))
		healthy = false
	}
	r.Decisions = len(decisions)
	for _, d := range decisions {
		if d.SelectedActionID != nil {
			r.Selections++
		} else {
			r.Suppressions++
		}
	}

	verifications, err := journal.ReadVerifications(filepath.Join(dataDir, journal.VerificationLogFile))
	if err != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("read verifications: %v", err))
		healthy = false
	}
	for _, p := range journal.Pending(verifications) {
		r.Pending = append(r.Pending, pendingCheck{
			CycleID:  p.CycleID,
			ActionID: p.ActionID,
			Metric:   p.Metric,
			Deadline: p.ScheduledDeadline,
		})
	}

	return r, healthy
}

func printReport(r report) {
	fmt.Println("Log chains:")
	for _, c := range r.Chains {
		status := "OK"
		detail := fmt.Sprintf("%d entries", c.Result.Lines)
		if !c.Result.Valid {
			status = "BROKEN"
			detail = fmt.Sprintf("line %d: %s", c.Result.ErrorLine, c.Result.Error)
		}
		fmt.Printf("  %-22s %-7s %s\n", c.Log, status, detail)
	}

	fmt.Printf("\nDecisions: %d (%d selected, %d suppressed)\n",
		r.Decisions, r.Selections, r.Suppressions)

	if len(r.Pending) > 0 {
		fmt.Printf("\nPending verifications:\n")
		for _, p := range r.Pending {
			fmt.Printf("  %-16s cycle=%s metric=%s deadline=%s\n",
				p.ActionID, p.CycleID, p.Metric, p.Deadline)
		}
	}
	for _, e := range r.Errors {
		fmt.Printf("error: %s\n", e)
	}
}

// #endregion report
