package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/japaniel/kanjisync/pkg/reconcile"
)

var (
	accent  = lipgloss.Color("#8BC34A")
	warning = lipgloss.Color("#FFC107")
	danger  = lipgloss.Color("#e53935")
	muted   = lipgloss.Color("#7f8c8d")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	lineStyle    = lipgloss.NewStyle().PaddingLeft(2)
	warnStyle    = lipgloss.NewStyle().PaddingLeft(2).Foreground(warning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(danger)
	mutedStyle   = lipgloss.NewStyle().PaddingLeft(2).Foreground(muted)
	kindStyle    = lipgloss.NewStyle().Width(18)
	literalStyle = lipgloss.NewStyle().Width(4)
)

func renderSummary(w io.Writer, sum *reconcile.Summary) {
	title := "Recalculation"
	if sum.Incremental {
		title = "Review update"
	}
	if sum.RunID != "" {
		title += " " + sum.RunID[:8]
	}
	fmt.Fprintln(w, titleStyle.Render(title))

	for _, line := range sum.Lines() {
		style := lineStyle
		switch {
		case strings.HasPrefix(line, "Failed"):
			style = lineStyle.Foreground(danger)
		case strings.HasPrefix(line, "Missing"), strings.HasPrefix(line, "Duplicate"):
			style = warnStyle
		}
		fmt.Fprintln(w, style.Render(line))
	}
	for _, f := range sum.Failures {
		fmt.Fprintln(w, mutedStyle.Render("- "+f.Error()))
	}
	if !sum.Changed() {
		fmt.Fprintln(w, mutedStyle.Render("No changes."))
	}
}

func renderPlan(w io.Writer, plan *reconcile.Plan) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Plan: %d actions", len(plan.Actions))))
	for _, a := range plan.Actions {
		target := a.Literal
		if target == "" {
			target = fmt.Sprintf("#%d", a.NoteID)
		}
		row := lipgloss.JoinHorizontal(lipgloss.Top,
			kindStyle.Render(a.Kind.String()),
			literalStyle.Render(target),
			a.Tag,
		)
		fmt.Fprintln(w, lineStyle.Render(strings.TrimRight(row, " ")))
	}
	if len(plan.Missing) > 0 {
		fmt.Fprintln(w, warnStyle.Render("Missing dictionary entries: "+strings.Join(plan.Missing, ", ")))
	}
	for _, d := range plan.Duplicates {
		fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("Duplicate kanji notes for %s: %v", d.Literal, d.NoteIDs)))
	}
	if plan.Empty() {
		fmt.Fprintln(w, mutedStyle.Render("No changes."))
	}
}
