// Package present derives labels, colors and actions for tasks shown in the
// tree, kanban, lock monitor and detail views.
package present

import (
	"github.com/charmbracelet/lipgloss"

	"chorus/internal/domain"
)

// Unknown is the label rendered for a value with no mapping.
const Unknown = "unknown"

// Badge is a short colored label.
type Badge struct {
	Label string
	Color lipgloss.Color
	Known bool
}

func (b Badge) Render() string {
	return lipgloss.NewStyle().Foreground(b.Color).Render(b.Label)
}

func (b Badge) String() string { return b.Label }

var unknownBadge = Badge{Label: Unknown, Color: lipgloss.Color("240")}

var readinessBadges = map[domain.Readiness]Badge{
	domain.ReadinessReady:             {Label: "Ready", Color: lipgloss.Color("42"), Known: true},
	domain.ReadinessNeedsSizing:       {Label: "Needs sizing", Color: lipgloss.Color("220"), Known: true},
	domain.ReadinessNeedsBreakdown:    {Label: "Needs breakdown", Color: lipgloss.Color("208"), Known: true},
	domain.ReadinessNeedsRefinement:   {Label: "Needs refinement", Color: lipgloss.Color("141"), Known: true},
	domain.ReadinessBlockedByChildren: {Label: "Blocked", Color: lipgloss.Color("196"), Known: true},
}

var statusBadges = map[domain.Status]Badge{
	domain.StatusTodo:   {Label: "To do", Color: lipgloss.Color("250"), Known: true},
	domain.StatusDoing:  {Label: "Doing", Color: lipgloss.Color("39"), Known: true},
	domain.StatusDone:   {Label: "Done", Color: lipgloss.Color("42"), Known: true},
	domain.StatusWontDo: {Label: "Won't do", Color: lipgloss.Color("243"), Known: true},
}

var typeBadges = map[domain.TaskType]Badge{
	domain.TaskTypeFeature:  {Label: "Feature", Color: lipgloss.Color("63"), Known: true},
	domain.TaskTypeBug:      {Label: "Bug", Color: lipgloss.Color("196"), Known: true},
	domain.TaskTypeTechDebt: {Label: "Tech debt", Color: lipgloss.Color("214"), Known: true},
}

var statusDotColors = map[domain.Status]lipgloss.Color{
	domain.StatusTodo:   lipgloss.Color("244"),
	domain.StatusDoing:  lipgloss.Color("75"),
	domain.StatusDone:   lipgloss.Color("78"),
	domain.StatusWontDo: lipgloss.Color("238"),
}

func ReadinessBadge(r domain.Readiness) Badge {
	if b, ok := readinessBadges[r]; ok {
		return b
	}
	return unknownBadge
}

func StatusBadge(s domain.Status) Badge {
	if b, ok := statusBadges[s]; ok {
		return b
	}
	return unknownBadge
}

func TypeBadge(t domain.TaskType) Badge {
	if b, ok := typeBadges[t]; ok {
		return b
	}
	return unknownBadge
}

// StatusDot is the colored bullet shown before a tree row.
func StatusDot(s domain.Status) string {
	color, ok := statusDotColors[s]
	if !ok {
		color = unknownBadge.Color
	}
	return lipgloss.NewStyle().Foreground(color).Render("●")
}

// OperationLabel capitalizes a work log operation for display.
func OperationLabel(op domain.Operation) string {
	switch op {
	case domain.OperationSizing:
		return "Sizing"
	case domain.OperationBreakdown:
		return "Breakdown"
	case domain.OperationRefinement:
		return "Refinement"
	case domain.OperationImplementation:
		return "Implementation"
	case domain.OperationNote:
		return "Note"
	}
	return string(op)
}
