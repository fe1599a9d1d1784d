package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"raglab/internal/coordinator"
	"raglab/internal/domain"
)

func NewEmbedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embed FILE",
		Short: "Split and embed a file, then rank its blocks against a query",
		Long: `Run the full pipeline without the UI: split FILE, load the model (showing
download progress), embed every block and the query, and print the best matches.`,
		Args: cobra.ExactArgs(1),
		RunE: runEmbed,
	}
	addSplitFlags(cmd)
	cmd.Flags().StringP("query", "q", "", "Query to rank the blocks against")
	cmd.Flags().IntP("top", "k", 0, "Number of matches to print (default ui.top_k)")
	return cmd
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	query, _ := cmd.Flags().GetString("query")
	topK, _ := cmd.Flags().GetInt("top")
	if topK <= 0 {
		topK = cfg.UI.TopK
	}

	ctx := cmd.Context()
	sess, err := newSession(ctx, cfg, newLogger(cmd.ErrOrStderr(), cfg.LogLevel()))
	if err != nil {
		return err
	}
	defer sess.Close()

	coord := sess.newCoordinator(ctx, coordinator.Inputs{Text: text, Split: cfg.Splitter, Query: query})
	defer coord.Close()

	out := cmd.OutOrStdout()
	coord.Flush(coord.Token())
	if err := drive(ctx, coord, progressPrinter(cmd.ErrOrStderr())); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n", color.New(color.FgGreen, color.Bold).Sprintf("embedded %d blocks", len(coord.Blocks())))
	if query == "" {
		return nil
	}
	printMatches(out, query, coord.Matches(topK))
	return nil
}

// progressPrinter prints a line for every change of pipeline phase, file
// status or embedding percentage.
func progressPrinter(w io.Writer) func(domain.JobState) {
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	seen := map[string]domain.FileProgress{}
	last := ""
	return func(st domain.JobState) {
		switch st.Phase {
		case domain.PhaseLoadingModel:
			for _, f := range st.Files {
				prev, ok := seen[f.File]
				if ok && prev.Phase == f.Phase && int(prev.Percent())/10 == int(f.Percent())/10 {
					continue
				}
				seen[f.File] = f
				fmt.Fprintf(w, "%s %-28s %5.1f%% %s\n", cyan("download"), f.File, f.Percent(), faint(string(f.Phase)))
			}
		case domain.PhaseError:
			fmt.Fprintln(w, color.New(color.FgRed, color.Bold).Sprint(st.String()))
		default:
			if s := st.String(); s != last {
				last = s
				fmt.Fprintf(w, "%s %s\n", cyan("pipeline"), s)
			}
		}
	}
}

func printMatches(w io.Writer, query string, matches []domain.SearchResult) {
	boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s %q\n", boldGreen("top matches for"), query)
	if len(matches) == 0 {
		fmt.Fprintln(w, "  no matches")
		return
	}
	for _, m := range matches {
		fmt.Fprintf(w, "  %s %s\n", boldCyan(fmt.Sprintf("#%d score=%.3f [%d:%d]", m.Index, m.Score, m.Block.Start, m.Block.End)), m.Block.Text)
	}
}
