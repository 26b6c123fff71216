package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// renderHelp renders the help overlay.
func (m Model) renderHelp() string {
	styles := m.theme.Styles()

	sections := []helpSection{
		{
			title: "Images",
			items: []helpItem{
				{"a", "Add images (paths or globs)"},
				{"o", "Set output name"},
				{"j/k", "Move cursor"},
				{"m", "Grab, place with j/k, drop"},
				{"J/K", "Move image down/up"},
				{"x", "Remove image"},
			},
		},
		{
			title: "Result",
			items: []helpItem{
				{"s", "Extract and merge tables"},
				{"d", "Download merged workbook"},
				{"D", "Leave on server"},
				{"r", "Start over"},
			},
		},
		{
			title: "History",
			items: []helpItem{
				{"enter", "Download entry"},
				{"R", "Refresh"},
			},
		},
		{
			title: "General",
			items: []helpItem{
				{"tab", "Files/History"},
				{"T", "Cycle theme"},
				{"L", "Log out"},
				{"h/?", "Toggle help"},
				{"e/ctrl+c", "Quit"},
			},
		},
	}

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Keyboard Shortcuts"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 34)))
	b.WriteString("\n\n")

	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color(m.theme.Warning)).
		Width(10)

	for i, section := range sections {
		b.WriteString(styles.AccentText.Bold(true).Render(section.title))
		b.WriteString("\n")
		for _, item := range section.items {
			b.WriteString(keyStyle.Render(item.key))
			b.WriteString(styles.Text.Render(item.desc))
			b.WriteString("\n")
		}
		if i < len(sections)-1 {
			b.WriteString("\n")
		}
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(46)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(b.String()),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}

type helpSection struct {
	title string
	items []helpItem
}

type helpItem struct {
	key  string
	desc string
}
