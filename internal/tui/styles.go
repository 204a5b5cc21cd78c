package tui

import "github.com/charmbracelet/lipgloss"

// Semantic color palette.
var (
	colorPrimary     = lipgloss.Color("#00BFFF") // Cyan: primary accent
	colorAccent      = lipgloss.Color("#FFD700") // Gold: current selection
	colorSuccess     = lipgloss.Color("#00E676") // Green: chosen version
	colorMuted       = lipgloss.Color("#636363") // Gray: de-emphasized
	colorMutedLight  = lipgloss.Color("#8C8C8C") // Lighter gray: normal text
	colorBrightWhite = lipgloss.Color("#FFFFFF") // Pure white: emphatic text
	colorSurfaceDim  = lipgloss.Color("#181825") // Darkest surface: footer bg
)

// Selection indicator prepended to the active row.
const selectionIndicator = "▎"

var (
	styleHeader = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleGoal = lipgloss.NewStyle().
			Foreground(colorMutedLight).
			Italic(true)

	styleRow = lipgloss.NewStyle().
			Foreground(colorMutedLight)

	styleRowActive = lipgloss.NewStyle().
			Foreground(colorBrightWhite).
			Bold(true)

	styleIndicator = lipgloss.NewStyle().
			Foreground(colorAccent)

	styleChosen = lipgloss.NewStyle().
			Foreground(colorSuccess)

	styleMeta = lipgloss.NewStyle().
			Foreground(colorMuted)

	stylePreview = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)

	styleFooter = lipgloss.NewStyle().
			Background(colorSurfaceDim).
			Foreground(colorMutedLight).
			Padding(0, 1)

	styleFooterKey = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)
)
