// Package report renders a transfer.Report as the styled terminal
// table the teacher's CLI renders for deploy summaries, grounded in
// cmd/ployz/ui's lipgloss palette and termenv color-profile detection.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/sarchlab/meshtransfer/internal/transfer"
)

var (
	purple = lipgloss.Color("99")
	green  = lipgloss.Color("76")
	yellow = lipgloss.Color("214")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	labelStyle  = lipgloss.NewStyle().Foreground(dim)
	warnStyle   = lipgloss.NewStyle().Foreground(yellow)
	okStyle     = lipgloss.NewStyle().Foreground(green)
	borderStyle = lipgloss.NewStyle().Foreground(faint)
)

// colorProfile is detected once via termenv so the table degrades to
// plain text on a dumb terminal or when output is piped, matching the
// teacher's non-interactive fallback.
var colorProfile = termenv.ColorProfile()

// Render formats one transfer.Report as a bordered two-column table:
// metric name, count. Orphans and numeric skips are highlighted when
// nonzero, since those are the counts an operator needs to notice.
func Render(r transfer.Report) string {
	rows := [][2]string{
		{"destination points", strconv.Itoa(r.DestinationPoints)},
		{"source tets", strconv.Itoa(r.SourceTets)},
		{"candidate pairs", strconv.Itoa(r.CandidatePairs)},
		{"containments", countStyle(r.Containments, okStyle).Render(strconv.Itoa(r.Containments))},
		{"orphans", countStyle(r.Orphans, warnStyle).Render(strconv.Itoa(r.Orphans))},
		{"numeric skips", countStyle(r.NumericSkips, warnStyle).Render(strconv.Itoa(r.NumericSkips))},
	}

	if colorProfile == termenv.Ascii {
		return renderPlain(rows)
	}

	labelWidth, valueWidth := 0, 0
	for _, row := range rows {
		if w := lipgloss.Width(row[0]); w > labelWidth {
			labelWidth = w
		}
		if w := lipgloss.Width(row[1]); w > valueWidth {
			valueWidth = w
		}
	}

	var sb strings.Builder
	top := borderStyle.Render("╭" + strings.Repeat("─", labelWidth+2) + "┬" + strings.Repeat("─", valueWidth+2) + "╮")
	sb.WriteString(top + "\n")
	sb.WriteString(tableRow(headerStyle.Render(pad("metric", labelWidth)), headerStyle.Render(pad("count", valueWidth)), labelWidth, valueWidth))
	sb.WriteString(borderStyle.Render("├"+strings.Repeat("─", labelWidth+2)+"┼"+strings.Repeat("─", valueWidth+2)+"┤") + "\n")
	for _, row := range rows {
		sb.WriteString(tableRow(labelStyle.Render(pad(row[0], labelWidth)), row[1]+strings.Repeat(" ", valueWidth-lipgloss.Width(row[1])), labelWidth, valueWidth))
	}
	sb.WriteString(borderStyle.Render("╰"+strings.Repeat("─", labelWidth+2)+"┴"+strings.Repeat("─", valueWidth+2)+"╯") + "\n")
	return sb.String()
}

func tableRow(label, value string, labelWidth, valueWidth int) string {
	return fmt.Sprintf("%s %s %s %s %s\n",
		borderStyle.Render("│"), cellStyle.Render(label),
		borderStyle.Render("│"), cellStyle.Render(value),
		borderStyle.Render("│"))
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}

func countStyle(n int, nonZero lipgloss.Style) lipgloss.Style {
	if n == 0 {
		return lipgloss.NewStyle()
	}
	return nonZero
}

func renderPlain(rows [][2]string) string {
	var sb strings.Builder
	sb.WriteString("metric               count\n")
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%-20s  %s\n", row[0], stripANSI(row[1])))
	}
	return sb.String()
}

func stripANSI(s string) string {
	var sb strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
