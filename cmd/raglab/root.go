package main

import (
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "raglab",
		Short: "Interactive lab for text splitting and embeddings",
		Long: `raglab splits text into blocks, embeds the blocks and a query with a
local or remote model, and ranks the blocks by similarity.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
		RunE:          runTUI,
	}

	addPersistentFlags(rootCmd)
	addSplitFlags(rootCmd)
	rootCmd.AddCommand(
		NewTUICmd(),
		NewSplitCmd(),
		NewEmbedCmd(),
		NewWatchCmd(),
		NewConfigCmd(),
	)
	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("config", "", "Path to YAML config file (default ./raglab.yaml or ~/.config/raglab/config.yaml)")
	cmd.PersistentFlags().String("backend", "", "Override embedder backend (hashing|local|ollama|openai)")
	cmd.PersistentFlags().String("log-level", "", "Override log level (debug|info|warn|error)")
}

// addSplitFlags registers overrides for the splitter section. Zero values
// leave the configured value in place.
func addSplitFlags(cmd *cobra.Command) {
	cmd.Flags().String("strategy", "", "Split strategy (character|recursive-character)")
	cmd.Flags().Int("size", 0, "Chunk size in characters")
	cmd.Flags().Int("overlap", -1, "Overlap in characters")
}
