package main

import (
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"raglab/internal/coordinator"
	"raglab/internal/tui"
)

func NewTUICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui [FILE]",
		Short: "Open the interactive lab (default)",
		Long: `Open the interactive lab. The text starts from FILE, or from a built-in
sample when no file is given. Logs go to log.file from the config.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTUI,
	}
	addSplitFlags(cmd)
	cmd.Flags().String("query", "", "Initial query")
	return cmd
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	text := sampleText
	if len(args) == 1 {
		if text, err = readInput(cmd, args[0]); err != nil {
			return err
		}
	}
	query, _ := cmd.Flags().GetString("query")

	// the terminal belongs to the UI; logs go to a file or nowhere
	var logOut io.Writer = io.Discard
	if cfg.Log.File != "" {
		f, err := tea.LogToFile(cfg.Log.File, "raglab")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(logOut, cfg.LogLevel())

	ctx := cmd.Context()
	sess, err := newSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	coord := sess.newCoordinator(ctx, coordinator.Inputs{Text: text, Split: cfg.Splitter, Query: query})
	defer coord.Close()

	m := tui.New(coord, tui.Options{Debounce: cfg.Debounce(), TopK: cfg.UI.TopK})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return err
	}
	return nil
}
