package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Each color has a darker variant for light terminal backgrounds.
var (
	colorAccent = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	colorTable  = lipgloss.AdaptiveColor{Light: "163", Dark: "212"}
	colorGood   = lipgloss.AdaptiveColor{Light: "28", Dark: "82"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "166", Dark: "214"}
	colorBad    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorQuiet  = lipgloss.AdaptiveColor{Light: "242", Dark: "245"}
	colorMark   = lipgloss.AdaptiveColor{Light: "136", Dark: "226"}
)

func fg(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	Bold      = lipgloss.NewStyle().Bold(true)
	Dim       = fg(colorQuiet)
	Highlight = fg(colorMark)
	Header    = fg(colorAccent).Bold(true)

	Success = fg(colorGood)
	Warning = fg(colorWarn)
	Error   = fg(colorBad)

	FilePath  = fg(colorAccent)
	TableName = fg(colorTable).Bold(true)

	ResultScore   = fg(colorGood)
	ResultContent = fg(colorQuiet).PaddingLeft(2)

	SectionTitle = fg(colorTable).Bold(true).MarginTop(1)
)

// HorizontalRule returns a muted divider width cells wide.
func HorizontalRule(width int) string {
	return Dim.Render(strings.Repeat("─", width))
}

// FormatScore formats a fused relevance score.
func FormatScore(score float32) string {
	return ResultScore.Render(fmt.Sprintf("(score %.4f)", score))
}

// FormatBlockIDs lists the source blocks of a chunk.
func FormatBlockIDs(ids []string) string {
	switch len(ids) {
	case 0:
		return Dim.Render("no blocks")
	case 1:
		return Dim.Render("1 block: " + ids[0])
	}
	return Dim.Render(fmt.Sprintf("%d blocks: %s", len(ids), strings.Join(ids, ", ")))
}
