package main

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/helixir/pubmed-harvester/internal/export"
)

func newExportFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-formats",
		Short: "List the export formats written by run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeFormatTable(cmd.OutOrStdout(), export.Formats())
		},
	}
}

// writeFormatTable prints formats as a left-aligned table.
func writeFormatTable(w io.Writer, formats []export.Format) error {
	rows := [][]string{{"NAME", "EXTENSION", "CONTENT TYPE"}}
	for _, f := range formats {
		rows = append(rows, []string{f.Name, "." + f.Extension, f.ContentType})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if n := runewidth.StringWidth(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	for _, row := range rows {
		line := ""
		for i, cell := range row {
			if i == len(row)-1 {
				line += cell
				break
			}
			line += runewidth.FillRight(cell, widths[i]+2)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
