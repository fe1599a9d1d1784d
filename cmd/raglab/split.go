package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"raglab/internal/chunker"
	"raglab/internal/domain"
)

var blockColors = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgYellow),
	color.New(color.FgMagenta),
	color.New(color.FgGreen),
	color.New(color.FgBlue),
	color.New(color.FgRed),
}

func NewSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split FILE",
		Short: "Split a file into blocks and print them",
		Long:  `Split FILE (or stdin with "-") using the configured strategy and print the blocks in document order.`,
		Args:  cobra.ExactArgs(1),
		RunE:  runSplit,
	}
	addSplitFlags(cmd)
	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

func runSplit(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	text, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	split, _ := cfg.Splitter.Normalize()
	blocks := chunker.Split(text, split)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(blocks)
	}
	printBlocks(cmd.OutOrStdout(), blocks, split)
	return nil
}

func printBlocks(w io.Writer, blocks []domain.TextBlock, split domain.SplitConfig) {
	dim := color.New(color.Faint).SprintFunc()
	fmt.Fprintf(w, "%s\n", dim(fmt.Sprintf("%d blocks  strategy=%s size=%d overlap=%d", len(blocks), split.Strategy, split.ChunkSize, split.Overlap)))
	for i, b := range blocks {
		c := blockColors[i%len(blockColors)]
		fmt.Fprintf(w, "%s %s\n", dim(fmt.Sprintf("#%-3d [%d:%d]", i, b.Start, b.End)), c.Sprint(strings.ReplaceAll(b.Text, "\n", "↵")))
	}
}
