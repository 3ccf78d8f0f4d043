package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// column describes one table column. Cells wider than maxWidth wrap at word
// boundaries; zero leaves the column unbounded.
type column struct {
	title    string
	align    columnAlignment
	maxWidth int
}

var (
	eventColumns = []column{
		{title: "Time"},
		{title: "Session"},
		{title: "Event"},
		{title: "Video"},
		{title: "Post"},
		{title: "Details", maxWidth: 48},
	}
	eventSummaryColumns = []column{
		{title: "Event"},
		{title: "Count", align: alignRight},
		{title: "Videos", align: alignRight},
		{title: "First"},
		{title: "Last"},
	}
	sessionColumns = []column{
		{title: "Session"},
		{title: "Events", align: alignRight},
		{title: "Started"},
		{title: "Span", align: alignRight},
	}
	fetchColumns = []column{
		{title: "ID", align: alignRight},
		{title: "Session"},
		{title: "URL", maxWidth: 56},
		{title: "Outcome"},
		{title: "Took", align: alignRight},
		{title: "Error", maxWidth: 40},
	}
	stepColumns = []column{
		{title: "#", align: alignRight},
		{title: "Action"},
		{title: "Detail", maxWidth: 40},
		{title: "Clock", align: alignRight},
		{title: "Active"},
		{title: "Holder"},
		{title: "Playing"},
	}
	eventCountColumns = []column{
		{title: "Event"},
		{title: "Count", align: alignRight},
	}
)

func renderTable(columns []column, rows [][]string) string {
	width := len(columns)
	if width == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, width)
	configs := make([]table.ColumnConfig, 0, width)
	for i, col := range columns {
		header[i] = col.title
		align := text.AlignLeft
		if col.align == alignRight {
			align = text.AlignRight
		}
		cfg := table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
		if col.maxWidth > 0 {
			cfg.WidthMax = col.maxWidth
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs = append(configs, cfg)
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		r := make(table.Row, width)
		for i := range width {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
