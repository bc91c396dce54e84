package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"quill/internal/history"
	"quill/internal/ipc"
)

const defaultHistoryLimit = 20

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(cmd.Context(), ipc.HistoryRequest{Limit: limit, Clear: clearAll})
				if err != nil {
					return err
				}
				if ok, err := writeStructured(ctx, cmd, resp); ok {
					return err
				}
				renderHistory(cmd, resp, clearAll)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Number of entries to show")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all stored entries first")
	return cmd
}

func renderHistory(cmd *cobra.Command, resp *ipc.HistoryResponse, cleared bool) {
	out := cmd.OutOrStdout()
	if cleared {
		fmt.Fprintf(out, "Removed %d entries\n", resp.Removed)
	}
	if len(resp.Entries) == 0 {
		fmt.Fprintln(out, "No checks recorded")
		return
	}
	rows := make([][]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Caller,
			strconv.FormatUint(e.Sequence, 10),
			e.Language,
			strconv.Itoa(e.MatchCount),
			fmt.Sprintf("%dms", e.DurationMs),
			historyOutcome(e),
		})
	}
	fmt.Fprint(out, renderTable(historyColumns, rows))
	fmt.Fprintln(out, formatHistoryStats(resp.Stats))
}

func historyOutcome(e history.Entry) string {
	if e.Error != "" {
		return "failed: " + e.Error
	}
	if len(e.RuleIDs) == 0 {
		return "clean"
	}
	return strings.Join(e.RuleIDs, ", ")
}

func formatHistoryStats(stats history.Stats) string {
	langs := make([]string, 0, len(stats.ByLanguage))
	for lang, count := range stats.ByLanguage {
		langs = append(langs, fmt.Sprintf("%s=%d", lang, count))
	}
	sort.Strings(langs)
	line := fmt.Sprintf("%d checks, %d failed, %d issues, avg %.0fms", stats.Total, stats.Failed, stats.Matches, stats.AvgDurationMs)
	if len(langs) > 0 {
		line += " (" + strings.Join(langs, " ") + ")"
	}
	return line
}
