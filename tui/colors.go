/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Seednode/golmi/view"
)

// palette covers the names model servers use for object colors and the
// ones the renderer draws with.
var palette = map[string]string{
	"black":       "#000000",
	"white":       "#ffffff",
	"grey":        "#808080",
	"gray":        "#808080",
	"lightgrey":   "#d3d3d3",
	"red":         "#ff0000",
	"orange":      "#ffa500",
	"yellow":      "#ffff00",
	"green":       "#008000",
	"blue":        "#0000ff",
	"purple":      "#800080",
	"saddlebrown": "#8b4513",
	"brown":       "#a52a2a",
	"pink":        "#ffc0cb",
	"cyan":        "#00ffff",
	"magenta":     "#ff00ff",
}

const fallbackColor = "#808080"

// terminalColor maps a color name or #rrggbb value to a lipgloss color.
func terminalColor(c view.Color) lipgloss.TerminalColor {
	name := strings.ToLower(strings.TrimSpace(string(c)))
	if strings.HasPrefix(name, "#") {
		return lipgloss.Color(name)
	}
	if hex, ok := palette[name]; ok {
		return lipgloss.Color(hex)
	}
	return lipgloss.Color(fallbackColor)
}
