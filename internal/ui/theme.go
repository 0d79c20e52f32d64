package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/koaarchive/koa/internal/tap"
)

// Theme defines colors for the job monitor and table rendering.
type Theme struct {
	Name string

	Surface   string
	Border    string
	Selection string

	Text    string
	Muted   string
	Faint   string
	Accent  string
	Success string
	Warning string
	Danger  string
	Info    string

	// PhaseColors maps UWS phases to badge colors.
	PhaseColors map[tap.Phase]string
}

// Styles returns Lipgloss styles for this theme.
func (t Theme) Styles() Styles {
	return Styles{
		Text:        lipgloss.NewStyle().Foreground(lipgloss.Color(t.Text)),
		MutedText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted)),
		FaintText:   lipgloss.NewStyle().Foreground(lipgloss.Color(t.Faint)),
		AccentText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Accent)),
		SuccessText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success)).Bold(true),
		WarningText: lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning)),
		DangerText:  lipgloss.NewStyle().Foreground(lipgloss.Color(t.Danger)).Bold(true),
		InfoText:    lipgloss.NewStyle().Foreground(lipgloss.Color(t.Info)),

		Header: lipgloss.NewStyle().
			Background(lipgloss.Color(t.Surface)).
			Foreground(lipgloss.Color(t.Text)).
			Padding(0, 1),
		Panel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(t.Border)).
			Padding(0, 1),
		TableHeader: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Accent)).
			Bold(true).
			Padding(0, 1),
		TableCell: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Text)).
			Padding(0, 1),
		TableBorder: lipgloss.NewStyle().
			Foreground(lipgloss.Color(t.Border)),

		phaseColors: t.PhaseColors,
		surface:     t.Surface,
		muted:       t.Muted,
	}
}

// Styles contains pre-built Lipgloss styles for the theme.
type Styles struct {
	Text        lipgloss.Style
	MutedText   lipgloss.Style
	FaintText   lipgloss.Style
	AccentText  lipgloss.Style
	SuccessText lipgloss.Style
	WarningText lipgloss.Style
	DangerText  lipgloss.Style
	InfoText    lipgloss.Style

	Header      lipgloss.Style
	Panel       lipgloss.Style
	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
	TableBorder lipgloss.Style

	phaseColors map[tap.Phase]string
	surface     string
	muted       string
}

// PhaseStyle returns a badge style for the given phase.
func (s Styles) PhaseStyle(phase tap.Phase) lipgloss.Style {
	color := s.phaseColors[phase]
	if color == "" {
		color = s.muted
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(s.surface)).
		Background(lipgloss.Color(color)).
		Bold(true).
		Padding(0, 1)
}

var themes = map[string]Theme{
	"Nightfox": nightfoxTheme(),
	"Kanagawa": kanagawaTheme(),
	"Slate":    slateTheme(),
}

var themeOrder = []string{"Nightfox", "Kanagawa", "Slate"}

// DefaultTheme is used when no preference is stored.
const DefaultTheme = "Nightfox"

// GetTheme returns a theme by name.
func GetTheme(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return nightfoxTheme()
}

// NextTheme returns the next theme name in the cycle.
func NextTheme(current string) string {
	for i, name := range themeOrder {
		if name == current {
			return themeOrder[(i+1)%len(themeOrder)]
		}
	}
	return themeOrder[0]
}

// ThemeNames returns available theme names.
func ThemeNames() []string {
	return append([]string(nil), themeOrder...)
}

func nightfoxTheme() Theme {
	// Nightfox palette: https://github.com/EdenEast/nightfox.nvim
	return Theme{
		Name:      "Nightfox",
		Surface:   "#192330",
		Border:    "#39506d",
		Selection: "#2b3b51",
		Text:      "#cdcecf",
		Muted:     "#738091",
		Faint:     "#71839b",
		Accent:    "#719cd6",
		Success:   "#81b29a",
		Warning:   "#dbc074",
		Danger:    "#c94f6d",
		Info:      "#63cdcf",
		PhaseColors: map[tap.Phase]string{
			tap.PhasePending:   "#738091",
			tap.PhaseQueued:    "#63cdcf",
			tap.PhaseExecuting: "#719cd6",
			tap.PhaseCompleted: "#81b29a",
			tap.PhaseError:     "#c94f6d",
			tap.PhaseAborted:   "#dbc074",
		},
	}
}

func kanagawaTheme() Theme {
	// Kanagawa palette: https://github.com/rebelot/kanagawa.nvim
	return Theme{
		Name:      "Kanagawa",
		Surface:   "#1F1F28",
		Border:    "#54546D",
		Selection: "#2D4F67",
		Text:      "#DCD7BA",
		Muted:     "#C8C093",
		Faint:     "#727169",
		Accent:    "#7E9CD8",
		Success:   "#98BB6C",
		Warning:   "#E6C384",
		Danger:    "#E46876",
		Info:      "#7FB4CA",
		PhaseColors: map[tap.Phase]string{
			tap.PhasePending:   "#727169",
			tap.PhaseQueued:    "#7FB4CA",
			tap.PhaseExecuting: "#957FB8",
			tap.PhaseCompleted: "#98BB6C",
			tap.PhaseError:     "#E46876",
			tap.PhaseAborted:   "#E6C384",
		},
	}
}

func slateTheme() Theme {
	// Tailwind CSS Slate/Sky palette: https://tailwindcss.com/docs/colors
	return Theme{
		Name:      "Slate",
		Surface:   "#0f172a",
		Border:    "#334155",
		Selection: "#0284c7",
		Text:      "#f1f5f9",
		Muted:     "#94a3b8",
		Faint:     "#64748b",
		Accent:    "#38bdf8",
		Success:   "#22c55e",
		Warning:   "#f59e0b",
		Danger:    "#ef4444",
		Info:      "#06b6d4",
		PhaseColors: map[tap.Phase]string{
			tap.PhasePending:   "#64748b",
			tap.PhaseQueued:    "#38bdf8",
			tap.PhaseExecuting: "#06b6d4",
			tap.PhaseCompleted: "#16a34a",
			tap.PhaseError:     "#dc2626",
			tap.PhaseAborted:   "#f59e0b",
		},
	}
}
