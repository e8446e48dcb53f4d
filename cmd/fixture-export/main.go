package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/journal"
	"github.com/danielpatrickdp/state-weaver/internal/replay"
)

// #region main

func main() {
	dataDir := flag.String("data", "", "log data directory")
	configDir := flag.String("config", "", "configuration document directory")
	last := flag.Int("last", 10, "number of most recent decisions to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dataDir == "" || *configDir == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --data data --config config --out fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*dataDir, *configDir, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dataDir, configDir string, last int, outPath string) error {
	decisions, err := journal.ReadDecisions(filepath.Join(dataDir, journal.DecisionLogFile))
	if err != nil {
		return fmt.Errorf("read decision log: %w", err)
	}
	if len(decisions) == 0 {
		return fmt.Errorf("decision log is empty")
	}
	if len(decisions) > last {
		decisions = decisions[len(decisions)-last:]
	}

	states, err := journal.ReadStateEntries(filepath.Join(dataDir, journal.StateLogFile))
	if err != nil {
		return fmt.Errorf("read state log: %w", err)
	}

	objRaw, cplRaw, actRaw, err := readDocuments(configDir)
	if err != nil {
		return err
	}
	hash := config.HashDocuments(objRaw, cplRaw, actRaw)
	for _, d := range decisions {
		if d.ConfigHash != hash {
			fmt.Fprintf(os.Stderr,
				"warning: cycle %s was decided under %s, current documents hash to %s; replay will diverge\n",
				d.CycleID, d.ConfigHash, hash)
		}
	}

	fixture, err := buildFixture(decisions, states, objRaw, cplRaw, actRaw)
	if err != nil {
		return err
	}
	return writeFixture(fixture, outPath)
}

func readDocuments(dir string) (obj, cpl, act []byte, err error) {
	if obj, err = os.ReadFile(filepath.Join(dir, config.ObjectivesFile)); err != nil {
		return nil, nil, nil, fmt.Errorf("read objectives: %w", err)
	}
	if cpl, err = os.ReadFile(filepath.Join(dir, config.CouplingFile)); err != nil {
		return nil, nil, nil, fmt.Errorf("read coupling: %w", err)
	}
	if act, err = os.ReadFile(filepath.Join(dir, config.ActionsFile)); err != nil {
		return nil, nil, nil, fmt.Errorf("read actions: %w", err)
	}
	return obj, cpl, act, nil
}

// #endregion extract

// #region build

// buildFixture reconstructs the variable snapshot each decision saw by
// walking the state log up to that decision's timestamp, last write wins.
func buildFixture(decisions []journal.DecisionEntry, states []journal.StateEntry,
	objRaw, cplRaw, actRaw []byte) (*replay.Fixture, error) {

	f := &replay.Fixture{
		Description: fmt.Sprintf("Log export: %d recorded decisions", len(decisions)),
		Documents: replay.FixtureDocuments{
			Objectives: json.RawMessage(objRaw),
			Coupling:   json.RawMessage(cplRaw),
			Actions:    json.RawMessage(actRaw),
		},
	}

	vars := make(map[string]float64)
	next := 0
	for _, d := range decisions {
		at, err := time.Parse(time.RFC3339Nano, d.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("cycle %s: bad timestamp: %w", d.CycleID, err)
		}
		for next < len(states) {
			ts, err := time.Parse(time.RFC3339Nano, states[next].Timestamp)
			if err != nil {
				return nil, fmt.Errorf("state seq %d: bad timestamp: %w", states[next].Seq, err)
			}
			if ts.After(at) {
				break
			}
			vars[states[next].Variable] = states[next].Value
			next++
		}

		snapshot := make(map[string]float64, len(vars))
		for k, v := range vars {
			snapshot[k] = v
		}
		f.Snapshots = append(f.Snapshots, replay.FixtureSnapshot{
			At:   d.Timestamp,
			Vars: snapshot,
		})
		f.Expected = append(f.Expected, replay.FixtureExpected{
			At:               d.Timestamp,
			SelectedActionID: d.SelectedActionID,
			ActiveObjectives: d.ActiveObjectives,
		})
	}
	return f, nil
}

func writeFixture(fixture *replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Printf("Wrote fixture to %s (%d bytes, %d snapshots)\n", outPath, len(data), len(fixture.Snapshots))
	return nil
}

// #endregion build
