package main

import "github.com/charmbracelet/lipgloss"

// Dark terminal palette for the pipeline dashboard.
var (
	colorPrimary = lipgloss.Color("#FF6B35")
	colorInfo    = lipgloss.Color("#1E88E5")
	colorLive    = lipgloss.Color("#66BB6A")
	colorWarning = lipgloss.Color("#FFB74D")
	colorError   = lipgloss.Color("#F44336")
	colorText    = lipgloss.Color("#E0E0E0")
	colorBright  = lipgloss.Color("#FFFFFF")
	colorMuted   = lipgloss.Color("#90A4AE")
	colorOffline = lipgloss.Color("#424242")
	colorPanelBg = lipgloss.Color("#161B26")
	colorBorder  = lipgloss.Color("#30363D")
	colorHeader  = lipgloss.Color("#1C2128")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorBright).
			Background(colorHeader).
			Padding(0, 2).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimary)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Background(colorPanelBg).
			Foreground(colorText).
			Padding(0, 1)

	panelTitleStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorBright).
			Bold(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(colorLive).
			Bold(true)

	stoppedStyle = lipgloss.NewStyle().
			Foreground(colorOffline).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	errStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorInfo)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			MarginTop(1)
)

func statusBadge(stopped bool) string {
	if stopped {
		return stoppedStyle.Render("STOPPED")
	}
	return activeStyle.Render("LIVE")
}

// dropRateStyle picks a style by how badly a pipeline is shedding frames.
func dropRateStyle(dropped, submitted uint64) lipgloss.Style {
	if submitted == 0 {
		return labelStyle
	}
	rate := float64(dropped) / float64(submitted)
	switch {
	case rate > 0.5:
		return errStyle
	case rate > 0.2:
		return warnStyle
	default:
		return activeStyle
	}
}
