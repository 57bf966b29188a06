package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dusk-indust/reportgen/internal/catalog"
	"github.com/dusk-indust/reportgen/internal/orchestrator"
	"github.com/dusk-indust/reportgen/internal/store"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

// statusStyle colors a section or job status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(store.SectionCompleted):
		return okStyle
	case string(store.SectionFailed):
		return errStyle
	case string(store.SectionGenerating), string(store.JobPartialFailure),
		string(orchestrator.ProgressInProgress):
		return warnStyle
	default:
		return dimStyle
	}
}

// renderEvent styles one progress event line.
func renderEvent(ev orchestrator.Event) string {
	line := orchestrator.FormatEvent(ev)
	if ev.Kind == orchestrator.EventJob {
		return titleStyle.Render(line)
	}
	return statusStyle(ev.Status).Render(line)
}

// renderProgress draws the per-section table of a job.
func renderProgress(p *orchestrator.Progress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s  %s\n",
		titleStyle.Render(orchestrator.JobKey(p.SubjectID, p.Variant)),
		dimStyle.Render(p.JobID.String()))
	fmt.Fprintf(&sb, "%s %d%% (%d/%d complete, %d failed)\n",
		statusStyle(string(p.Summary.Status)).Render(string(p.Summary.Status)),
		p.Summary.Percentage, p.Summary.Completed, p.Summary.Total, p.Summary.Failed)
	if p.Running {
		sb.WriteString(warnStyle.Render("running") + "\n")
	}
	sb.WriteString("\n")

	for _, s := range p.Sections {
		status := statusStyle(string(s.Status)).Render(fmt.Sprintf("%-10s", s.Status))
		fmt.Fprintf(&sb, "  %2d  %-20s %s  %s\n", s.ID, s.Name, status,
			dimStyle.Render(fmt.Sprintf("attempts=%d", s.Attempts)))
		if s.Error != "" {
			fmt.Fprintf(&sb, "      %s\n", errStyle.Render(s.ErrorKind+": "+s.Error))
		}
	}
	if p.LastError != "" {
		fmt.Fprintf(&sb, "\n%s\n", errStyle.Render(p.LastError))
	}
	return boxStyle.Render(strings.TrimRight(sb.String(), "\n"))
}

// renderJobs draws one line per job.
func renderJobs(jobs []orchestrator.JobListing) string {
	if len(jobs) == 0 {
		return dimStyle.Render("no jobs")
	}
	var sb strings.Builder
	for _, j := range jobs {
		status := statusStyle(string(j.JobStatus)).Render(fmt.Sprintf("%-16s", j.JobStatus))
		fmt.Fprintf(&sb, "%-24s %s %d/%d complete, %d failed", orchestrator.JobKey(j.SubjectID, j.Variant),
			status, j.Completed, j.Total, j.Failed)
		if j.Running {
			sb.WriteString("  " + warnStyle.Render("running"))
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderCatalog lists sections, variants and the default generation order.
func renderCatalog(cat *catalog.Catalog, order []int) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Sections") + "\n")
	for _, s := range cat.Sections() {
		deps := ""
		if len(s.Dependencies) > 0 {
			deps = dimStyle.Render(fmt.Sprintf(" after %v", s.Dependencies))
		}
		fmt.Fprintf(&sb, "  %2d  %-20s %s%s\n", s.ID, s.Name, s.Title, deps)
	}

	sb.WriteString("\n" + titleStyle.Render("Variants") + "\n")
	for _, name := range cat.Variants() {
		ids, _ := cat.DefaultSections(name)
		v, _ := cat.Variant(name)
		fmt.Fprintf(&sb, "  %-8s %s %s\n", name, v.Title, dimStyle.Render(fmt.Sprintf("%v", ids)))
	}

	if order != nil {
		sb.WriteString("\n" + titleStyle.Render("Order") + "\n")
		fmt.Fprintf(&sb, "  %v\n", order)
	}
	return sb.String()
}
