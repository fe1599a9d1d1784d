package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"raglab/internal/coordinator"
	"raglab/internal/domain"
)

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-split and re-embed a file whenever it changes",
		Long: `Watch FILE and rerun the pipeline after every save. Bursts of writes within
the debounce window collapse into one run.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}
	addSplitFlags(cmd)
	cmd.Flags().StringP("query", "q", "", "Query to rank the blocks against")
	cmd.Flags().Duration("debounce", 0, "Debounce window for batching changes (default ui.debounce_ms)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	target, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	if _, err := os.Stat(target); err != nil {
		return err
	}
	query, _ := cmd.Flags().GetString("query")
	debounce, _ := cmd.Flags().GetDuration("debounce")
	if debounce <= 0 {
		debounce = cfg.Debounce()
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	sess, err := newSession(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel()))
	if err != nil {
		return err
	}
	defer sess.Close()

	coord := sess.newCoordinator(ctx, coordinator.Inputs{Split: cfg.Splitter, Query: query})
	defer coord.Close()

	// editors often replace the file, so watch its directory
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	fmt.Fprintf(out, "Watching %s for changes...\n", target)

	report := progressPrinter(cmd.ErrOrStderr())
	rerun := func() {
		data, err := os.ReadFile(target)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "read %s: %v\n", target, err)
			return
		}
		text := string(data)
		coord.Flush(coord.Change(func(in *coordinator.Inputs) { in.Text = text }))
		report(coord.State())
	}
	rerun()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	lastPhase := coord.State().Phase

	for {
		responses, _ := coord.Responses()
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(event, target) {
				continue
			}
			if !pending {
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-timer.C:
			pending = false
			rerun()
		case resp, ok := <-responses:
			if !ok {
				coord.ChannelClosed(nil)
			} else {
				coord.Handle(resp)
			}
			st := coord.State()
			report(st)
			if st.Phase == domain.PhaseIdle && lastPhase != domain.PhaseIdle {
				fmt.Fprintf(out, "%d blocks\n", len(coord.Blocks()))
				if query != "" {
					printMatches(out, query, coord.Matches(cfg.UI.TopK))
				}
			}
			lastPhase = st.Phase
		}
	}
}

// shouldIgnoreEvent drops events for other files in the directory and
// metadata-only changes.
func shouldIgnoreEvent(event fsnotify.Event, target string) bool {
	if filepath.Clean(event.Name) != target {
		return true
	}

	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return true
	}

	return false
}
