package deadlines

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Gribbirg/deadline-mate/internal/application"
	"github.com/Gribbirg/deadline-mate/internal/domain"
)

const defaultHorizon = 7 * 24 * time.Hour

type RenderOptions struct {
	Now time.Time
	// Horizon is the span the countdown bar covers. Deadlines further out
	// show a full bar.
	Horizon time.Duration
	// ShowOverdue includes items whose deadline already passed.
	ShowOverdue bool
}

func renderView(dashboard application.Dashboard, opts RenderOptions, s styles) string {
	if opts.Now.IsZero() {
		opts.Now = dashboard.GeneratedAt
	}
	if opts.Horizon <= 0 {
		opts.Horizon = defaultHorizon
	}

	items := dashboard.Items
	if !opts.ShowOverdue {
		items = dashboard.Upcoming()
	}

	lines := []string{
		s.title.Render("Deadlines for " + dashboard.User.DisplayName()),
		s.header.Render(headerLine(dashboard, len(items))),
	}

	if len(items) == 0 {
		lines = append(lines, s.empty.Render("Nothing due. Enjoy the quiet."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, item := range items {
		lines = append(lines, s.section.Render(renderItem(item, dashboard.User, opts, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func headerLine(dashboard application.Dashboard, shown int) string {
	parts := []string{
		fmt.Sprintf("role: %s", roleLabel(dashboard.User.Role)),
		fmt.Sprintf("groups: %d", len(dashboard.Groups)),
		fmt.Sprintf("deadlines: %d", shown),
	}
	if dashboard.User.IsTeacher() {
		parts = append(parts, fmt.Sprintf("to grade: %d", dashboard.PendingGrades()))
	}
	return strings.Join(parts, "  ")
}

func roleLabel(role domain.Role) string {
	if role == "" {
		return "unknown"
	}
	return string(role)
}

func renderItem(item application.DeadlineItem, user domain.User, opts RenderOptions, s styles) string {
	title := fmt.Sprintf("#%d %s", item.Assignment.ID, strings.TrimSpace(item.Assignment.Title))
	if item.Assignment.Status != "" && item.Assignment.Status != domain.AssignmentPublished {
		title += fmt.Sprintf(" (%s)", item.Assignment.Status)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		s.item.Render(title),
		deadlineLine(item, opts, s),
		progressLine(item, user, s),
	)
}

func deadlineLine(item application.DeadlineItem, opts RenderOptions, s styles) string {
	due := s.detail.Render("due " + formatDeadline(item.Deadline, opts.Now))
	if item.Overdue {
		return lipgloss.JoinHorizontal(lipgloss.Top, due, " ", s.warning.Render("["+domain.FormatRemaining(item.Deadline, opts.Now)+"]"))
	}

	bar := renderCountdownBar(item.Remaining, opts.Horizon, 24, s)
	leftStyle := lipgloss.NewStyle().Foreground(urgencyColor(item.Remaining, opts.Horizon))
	left := leftStyle.Render(domain.FormatRemaining(item.Deadline, opts.Now) + " left")

	return lipgloss.JoinHorizontal(lipgloss.Top, due, " ", bar, " ", left)
}

func progressLine(item application.DeadlineItem, user domain.User, s styles) string {
	if user.IsTeacher() {
		line := fmt.Sprintf("submissions: %d", item.SubmissionCount)
		if item.PendingGrades > 0 {
			return s.detail.Render(line+", ") + s.warning.Render(fmt.Sprintf("%d to grade", item.PendingGrades))
		}
		return s.detail.Render(line)
	}

	submission := item.Submission
	switch {
	case submission == nil && item.Overdue:
		return s.warning.Render("not submitted")
	case submission == nil:
		return s.detail.Render("not submitted")
	case submission.IsGraded():
		return s.done.Render(fmt.Sprintf("graded: %s points", formatPoints(*submission.Points)))
	case submission.Status == domain.SubmissionReturned:
		return s.warning.Render("returned for rework")
	case submission.IsLate:
		return s.done.Render("submitted (late)")
	default:
		return s.done.Render("submitted")
	}
}

func formatPoints(points float64) string {
	if points == math.Trunc(points) {
		return fmt.Sprintf("%.0f", points)
	}
	return fmt.Sprintf("%.1f", points)
}

func formatDeadline(deadline, now time.Time) string {
	if deadline.IsZero() {
		return "unknown"
	}
	if now.IsZero() {
		return deadline.Format(time.RFC3339)
	}

	local := deadline.In(now.Location())
	yearA, monthA, dayA := now.Date()
	yearB, monthB, dayB := local.Date()
	if yearA == yearB && monthA == monthB && dayA == dayB {
		return "today " + local.Format("15:04")
	}

	return local.Format("15:04 on 02 Jan")
}

// renderCountdownBar fills in proportion to the time left within horizon.
func renderCountdownBar(remaining, horizon time.Duration, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	fraction := remaining.Seconds() / horizon.Seconds()
	filled := int(math.Round(float64(width) * fraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", width-filled)),
		s.barBracket.Render("]"),
	)
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp, 240 (faded) to 255 (bright).
	baseColor := 240.0
	targetColor := 255.0
	return lipgloss.Color(fmt.Sprintf("%d", int(baseColor+(targetColor-baseColor)*normalized)))
}

// urgencyColor brightens as the deadline approaches and turns red in the
// last day.
func urgencyColor(remaining, horizon time.Duration) lipgloss.Color {
	if remaining < 24*time.Hour {
		return lipgloss.Color("203")
	}
	return interpolateColor(horizon.Seconds()-remaining.Seconds(), 0, horizon.Seconds())
}
