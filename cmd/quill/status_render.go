package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// statusTone decides how a status value is colored.
type statusTone int

const (
	toneNeutral statusTone = iota
	// toneActive marks something running or switched on.
	toneActive
	toneIdle
	// toneAlert marks a state that disagrees with what was asked for.
	toneAlert
)

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiDim    = "\x1b[2m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

type statusRow struct {
	label string
	value string
	tone  statusTone
}

// statusSection is one titled block of "label  value" rows.
type statusSection struct {
	title string
	rows  []statusRow
}

func (s *statusSection) add(label, value string, tone statusTone) {
	s.rows = append(s.rows, statusRow{label: label, value: value, tone: tone})
}

func (s *statusSection) toggle(label string, on bool) {
	tone := toneIdle
	if on {
		tone = toneActive
	}
	s.add(label, onOff(on), tone)
}

// renderStatusSections aligns every label across all sections so the values
// form one column.
func renderStatusSections(w io.Writer, sections []statusSection) {
	colorize := shouldColorize(w)
	width := 0
	for _, sec := range sections {
		for _, row := range sec.rows {
			width = max(width, len(row.label))
		}
	}

	var b strings.Builder
	for i, sec := range sections {
		if i > 0 {
			b.WriteByte('\n')
		}
		title := sec.title
		if colorize {
			title = ansiBold + title + ansiReset
		}
		b.WriteString(title + "\n")
		for _, row := range sec.rows {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, row.label, paintTone(row.value, row.tone, colorize))
		}
	}
	fmt.Fprint(w, b.String())
}

func paintTone(value string, tone statusTone, colorize bool) string {
	if !colorize {
		return value
	}
	switch tone {
	case toneActive:
		return ansiGreen + value + ansiReset
	case toneIdle:
		return ansiDim + value + ansiReset
	case toneAlert:
		return ansiYellow + value + ansiReset
	default:
		return value
	}
}

func shouldColorize(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
