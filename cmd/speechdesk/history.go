package main

import (
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"speechdesk/internal/history"
)

const historyTextWidth = 60

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.load(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer env.Close()

			entries, err := env.services.History.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of transcripts to show")
	return cmd
}

func renderHistory(w io.Writer, entries []history.Entry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Created", "Mode", "Language", "Text"})
	table.SetAutoWrapText(false)
	for _, e := range entries {
		t := e.Transcript
		table.Append([]string{
			strconv.FormatInt(e.ID, 10),
			t.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(t.Mode),
			string(t.Language),
			truncate(t.Text, historyTextWidth),
		})
	}
	table.Render()
}

func truncate(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= width {
		return text
	}
	runes := []rune(text)
	return string(runes[:width-1]) + "…"
}
