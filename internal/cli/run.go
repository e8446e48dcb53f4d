package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/state-weaver/internal/bus"
	"github.com/danielpatrickdp/state-weaver/internal/config"
	"github.com/danielpatrickdp/state-weaver/internal/dispatch"
	"github.com/danielpatrickdp/state-weaver/internal/history"
	"github.com/danielpatrickdp/state-weaver/internal/journal"
	"github.com/danielpatrickdp/state-weaver/internal/layer"
	"github.com/danielpatrickdp/state-weaver/internal/metrics"
	"github.com/danielpatrickdp/state-weaver/internal/verify"
	"github.com/danielpatrickdp/state-weaver/internal/weaver"
)

var runtimePath string

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runtimePath, "config", "c", "weaver.yaml", "Runtime configuration file")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the weaver daemon",
	Long: "Starts the cycle orchestrator and the verification runner. Cycles fire on\n" +
		"the configured interval and on debounced state or configuration changes.",
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	rt, err := config.LoadRuntime(runtimePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Logs.
	statePath := filepath.Join(rt.DataDir, journal.StateLogFile)
	decisionPath := filepath.Join(rt.DataDir, journal.DecisionLogFile)
	verificationPath := filepath.Join(rt.DataDir, journal.VerificationLogFile)

	stateLog, err := journal.Open(statePath)
	if err != nil {
		return fmt.Errorf("open state log: %w", err)
	}
	defer stateLog.Close()
	decisionLog, err := journal.Open(decisionPath)
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer decisionLog.Close()
	verificationLog, err := journal.Open(verificationPath)
	if err != nil {
		return fmt.Errorf("open verification log: %w", err)
	}
	defer verificationLog.Close()

	events := bus.New()

	// Metrics endpoint.
	set := metrics.NewSet()
	go set.Watch(ctx, events)
	mux := http.NewServeMux()
	mux.Handle("/metrics", set.Handler())
	srv := &http.Server{Addr: rt.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[WEAVERD] metrics server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	// Collection and dispatch.
	inbox, err := layer.NewInbox("inbox", rt.InboxDir)
	if err != nil {
		return err
	}
	dispatcher, err := dispatch.FromRuntime(rt.Dispatch, filepath.Join(rt.DataDir, "dispatch.jsonl"))
	if err != nil {
		return err
	}

	orch := weaver.New(weaver.Config{
		ConfigDir:    rt.ConfigDir,
		Layers:       []weaver.Layer{inbox},
		Dispatcher:   dispatcher,
		Events:       events,
		StateLog:     stateLog,
		DecisionLog:  decisionLog,
		LayerTimeout: rt.LayerTimeout.Std(),
	})

	// Verification runner, with in-flight checks restored from the log.
	runner := verify.NewRunner(verify.Config{
		ConfigDir: rt.ConfigDir,
		Metrics:   verify.NewStateLogSource(statePath),
		Events:    events,
		Log:       verificationLog,
	})
	if err := runner.Restore(); err != nil {
		log.Printf("[WEAVERD] verification restore: %v", err)
	}
	go runner.Run(ctx)

	// History index stays current by syncing after every completed cycle and
	// verification outcome.
	store, err := history.NewStore(rt.HistoryDB)
	if err != nil {
		return fmt.Errorf("open history index: %w", err)
	}
	defer store.Close()
	go indexLoop(ctx, events, store, decisionPath, verificationPath)

	// Cycle triggers: interval ticker plus debounced file events.
	deb := bus.NewDebouncer(rt.Debounce.Std())
	go deb.Run(ctx, func() {
		if err := orch.RunCycle(ctx); err != nil {
			log.Printf("[WEAVERD] cycle: %v", err)
		}
	})
	go tickLoop(ctx, rt.CycleInterval.Std(), deb)
	go func() {
		if err := watchDirs(ctx, []string{rt.InboxDir, rt.ConfigDir}, deb.Trigger); err != nil {
			log.Printf("[WEAVERD] watcher: %v", err)
		}
	}()

	log.Printf("[WEAVERD] running: config=%s inbox=%s interval=%s metrics=%s",
		rt.ConfigDir, rt.InboxDir, rt.CycleInterval.Std(), rt.MetricsAddr)
	deb.Trigger() // first cycle without waiting for the interval

	<-ctx.Done()
	log.Printf("[WEAVERD] shutting down")
	return nil
}

// tickLoop fires the debouncer on the cycle interval.
func tickLoop(ctx context.Context, interval time.Duration, deb *bus.Debouncer) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deb.Trigger()
		}
	}
}

// indexLoop syncs the history index whenever the logs gained records.
func indexLoop(ctx context.Context, events *bus.Bus, store *history.Store, decisionPath, verificationPath string) {
	ch, cancel := events.Subscribe(64)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch ev.Type {
			case bus.CycleCompleted, bus.VerifyScheduled, bus.VerifyPassed, bus.VerifyFailed:
				if _, _, err := store.Sync(decisionPath, verificationPath); err != nil {
					log.Printf("[WEAVERD] history sync: %v", err)
				}
			}
		}
	}
}

// watchDirs feeds filesystem activity in the inbox and config directories to
// the trigger. Partial writes (.tmp) are ignored; producers rename into
// place.
func watchDirs(ctx context.Context, dirs []string, trigger func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if strings.HasSuffix(event.Name, ".tmp") || strings.HasSuffix(event.Name, ".rejected") {
				continue
			}
			trigger()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WEAVERD] watch error: %v", err)
		}
	}
}
