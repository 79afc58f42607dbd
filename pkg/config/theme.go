// SPDX-License-Identifier: Apache-2.0
package config

import "github.com/charmbracelet/lipgloss"

// Theme holds the CLI's color scheme, used for status/error output.
type Theme struct {
	Primary string
	Muted   string
	Success string
	Info    string
	Warning string
	Error   string
}

// CurrentTheme is the active theme used throughout the CLI.
var CurrentTheme = Theme{
	Primary: "#82FB9C",
	Muted:   "#6a6e95",
	Success: "#82FB9C",
	Info:    "#7cf8f7",
	Warning: "#FFD700",
	Error:   "#FF6B6B",
}

func (t Theme) GetSuccessColor() lipgloss.Color { return lipgloss.Color(t.Success) }
func (t Theme) GetInfoColor() lipgloss.Color    { return lipgloss.Color(t.Info) }
func (t Theme) GetWarningColor() lipgloss.Color { return lipgloss.Color(t.Warning) }
func (t Theme) GetErrorColor() lipgloss.Color   { return lipgloss.Color(t.Error) }
func (t Theme) GetMutedColor() lipgloss.Color   { return lipgloss.Color(t.Muted) }

func (t Theme) SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.GetSuccessColor()).Bold(true)
}

func (t Theme) InfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.GetInfoColor())
}

func (t Theme) WarningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.GetWarningColor())
}

func (t Theme) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.GetErrorColor()).Bold(true)
}

func (t Theme) SubtleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.GetMutedColor())
}

// Message formatters with theme-appropriate icons, used by one-shot CLI
// subcommands to report outcomes.

func (t Theme) SuccessMessage(text string) string {
	return t.SuccessStyle().Render("✓ " + text)
}

func (t Theme) InfoMessage(text string) string {
	return t.InfoStyle().Render("ℹ " + text)
}

func (t Theme) WarningMessage(text string) string {
	return t.WarningStyle().Render("⚠ " + text)
}

func (t Theme) ErrorMessage(text string) string {
	return t.ErrorStyle().Render("✗ " + text)
}
