// Package status renders a point-in-time view of the bridge: surface
// health per component, monitors in flight, and tracked conversation
// contexts.
package status

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/deskbridge/internal/application"
	"github.com/bnema/deskbridge/internal/domain"
)

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
}

// Snapshot is everything the status view shows.
type Snapshot struct {
	Health   application.HealthReport
	Active   []domain.Anchor
	Contexts int
}

func renderView(snapshot Snapshot, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Deskbridge Status"),
		s.header.Render(fmt.Sprintf("contexts: %d  active monitors: %d", snapshot.Contexts, len(snapshot.Active))),
	}

	lines = append(lines, s.section.Render(renderHealth(snapshot.Health, opts, s)))

	if len(snapshot.Active) > 0 {
		lines = append(lines, s.section.Render(renderActive(snapshot.Active, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderHealth(report application.HealthReport, opts RenderOptions, s styles) string {
	overall := s.healthy.Render("healthy")
	if !report.Healthy {
		overall = s.unhealthy.Render("degraded")
	}

	parts := []string{s.component.Render("surface: ") + overall}

	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts = append(parts, componentLine(name, report.Components[name], opts, s))
	}

	if len(names) == 0 {
		parts = append(parts, s.empty.Render("no health checks have run yet"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func componentLine(name string, health application.ComponentHealth, opts RenderOptions, s styles) string {
	state := s.healthy.Render("ok")
	if !health.Healthy {
		state = s.unhealthy.Render(fmt.Sprintf("failing (%d consecutive)", health.ConsecutiveFailures))
	}

	line := lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.detail.Render(fmt.Sprintf("  %-8s", name)),
		state,
	)

	if !opts.Now.IsZero() && !health.LastCheck.IsZero() {
		age := opts.Now.Sub(health.LastCheck)
		meta := s.meta.Render(fmt.Sprintf(" (checked %s ago)", formatAge(age)))
		if opts.StaleAfter > 0 && age > opts.StaleAfter {
			meta += " " + s.unhealthy.Render("[stale]")
		}
		line += meta
	}

	return line
}

func renderActive(anchors []domain.Anchor, opts RenderOptions, s styles) string {
	parts := []string{s.component.Render("in flight:")}
	for _, anchor := range anchors {
		line := s.detail.Render(fmt.Sprintf("  %s  %s", anchor.ID, anchor.Status))
		if !opts.Now.IsZero() {
			line += s.meta.Render(fmt.Sprintf("  started %s ago", formatAge(opts.Now.Sub(anchor.CreatedAt))))
		}
		parts = append(parts, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
