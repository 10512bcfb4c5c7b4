package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/yegors/skytrail/internal/detail"
	"github.com/yegors/skytrail/internal/geo"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#007bff"))
	rowStyle      = lipgloss.NewStyle()
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffb000"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	popupStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#007bff")).
			Padding(0, 1)
)

var headingArrows = []string{"↑", "↗", "→", "↘", "↓", "↙", "←", "↖"}

// HeadingArrow returns the arrow closest to the given heading
func HeadingArrow(heading float64) string {
	idx := int(math.Round(geo.NormalizeHeading(heading)/45)) % len(headingArrows)
	return headingArrows[idx]
}

// Terminal draws markers as a styled text table
type Terminal struct {
	out       io.Writer
	maxMarkers int
}

// NewTerminal creates a terminal renderer. maxMarkers limits the rows drawn (0 = all).
func NewTerminal(out io.Writer, maxMarkers int) *Terminal {
	return &Terminal{out: out, maxMarkers: maxMarkers}
}

// Draw writes one frame
func (t *Terminal) Draw(markers []Marker, lookup detail.State, lastSuccess time.Time) error {
	var b strings.Builder

	updated := "never"
	if !lastSuccess.IsZero() {
		updated = lastSuccess.Format("15:04:05")
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("%d aircraft  (updated %s)", len(markers), updated)))
	b.WriteString("\n")

	rows := markers
	if t.maxMarkers > 0 && len(rows) > t.maxMarkers {
		rows = rows[:t.maxMarkers]
	}

	var selected *Marker
	for i := range rows {
		m := rows[i]
		line := fmt.Sprintf("%s %-8s %-8s %8.3f %9.3f  hdg %3.0f  trail %7.3f,%8.3f  [%s]",
			HeadingArrow(m.Rotation),
			m.ID,
			orDash(m.Popup.Callsign),
			m.Position.Lat,
			m.Position.Lng,
			m.Rotation,
			m.Trail[1].Lat,
			m.Trail[1].Lng,
			CountryCode(m.Popup.OriginCountry),
		)
		if m.Popup.Selected {
			selected = &rows[i]
			b.WriteString(selectedStyle.Render(line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if len(rows) < len(markers) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("... %d more", len(markers)-len(rows))))
		b.WriteString("\n")
	}

	if lookup.AircraftID != "" {
		b.WriteString(popupStyle.Render(popupText(selected, lookup)))
		b.WriteString("\n")
	}

	_, err := io.WriteString(t.out, b.String())
	return err
}

func popupText(m *Marker, lookup detail.State) string {
	var lines []string
	if m != nil {
		lines = append(lines,
			fmt.Sprintf("Flight: %s  (%s)", orDash(m.Popup.Callsign), m.Popup.FlagURL),
			fmt.Sprintf("Heading: %.0f° true / %.0f° mag", m.Popup.Heading, m.Popup.MagneticHeading),
		)
	} else {
		lines = append(lines, fmt.Sprintf("Aircraft %s (no position)", lookup.AircraftID))
	}
	lines = append(lines, fmt.Sprintf("Dep: %s | Arr: %s  [%s]", lookup.Departure, lookup.Arrival, lookup.Phase))
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
