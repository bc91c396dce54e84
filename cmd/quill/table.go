package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Numeric columns are right aligned;
// a non-zero maxWidth wraps long cells such as checker messages.
type column struct {
	header   string
	numeric  bool
	maxWidth int
}

var (
	matchColumns = []column{
		{header: "Offset", numeric: true},
		{header: "Text", maxWidth: 24},
		{header: "Message", maxWidth: 48},
		{header: "Suggestions", maxWidth: 30},
		{header: "Rule"},
	}
	historyColumns = []column{
		{header: "Time"},
		{header: "Caller"},
		{header: "Seq", numeric: true},
		{header: "Language"},
		{header: "Issues", numeric: true},
		{header: "Duration", numeric: true},
		{header: "Outcome", maxWidth: 40},
	}
	languageColumns = []column{
		{header: "Code"},
		{header: "Name"},
		{header: "Native"},
	}
)

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.header
		cfg := table.ColumnConfig{Number: i + 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft}
		if col.numeric {
			cfg.Align = text.AlignRight
		}
		if col.maxWidth > 0 {
			cfg.WidthMax = col.maxWidth
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render() + "\n"
}
