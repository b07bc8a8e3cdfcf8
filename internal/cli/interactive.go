package cli

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/style"
	"github.com/apresai/eduanim/internal/tts"
)

// menuItem is one setting in the wizard. flag names the generate flag
// the value is written to.
type menuItem struct {
	label    string
	flag     string
	value    string
	options  []menuOption
	required bool
	editing  bool
	cursor   int
}

type menuOption struct {
	label string
	value string
}

type menuState int

const (
	stateMenu menuState = iota
	stateEditing
)

type tuiModel struct {
	items     []menuItem
	cursor    int
	state     menuState
	err       error
	confirmed bool
	cancelled bool
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	menuLabelStyle = lipgloss.NewStyle().
			Width(14).
			Align(lipgloss.Right).
			MarginRight(2)

	menuValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	menuValueDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#555555")).
				Italic(true)

	cursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	requiredStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	optionStyle = lipgloss.NewStyle().
			PaddingLeft(4)

	selectedOptionStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#04B575")).
				Bold(true).
				PaddingLeft(2)

	buttonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 3)

	buttonDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 3)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)
)

const (
	idxTopic = iota
	idxSource
	idxComplexity
	idxStyle
	idxQuality
	idxModel
	idxNarration
)

func buildMenuItems() []menuItem {
	var complexities, styles, models []menuOption
	for _, c := range plan.Complexities() {
		complexities = append(complexities, menuOption{label: strings.ReplaceAll(string(c), "_", " "), value: string(c)})
	}
	for _, n := range style.Names() {
		styles = append(styles, menuOption{label: string(n), value: string(n)})
	}
	for _, m := range llm.Models() {
		models = append(models, menuOption{label: m, value: m})
	}
	narration := []menuOption{{label: "None (silent video)", value: ""}}
	for _, p := range tts.Providers() {
		narration = append(narration, menuOption{label: p, value: p})
	}

	items := []menuItem{
		{label: "Topic", flag: "topic", value: flagTopic, required: true},
		{label: "Source", flag: "source", value: flagSource},
		{label: "Complexity", flag: "complexity", value: flagComplexity, options: complexities},
		{label: "Style", flag: "style", value: flagStyle, options: styles},
		{label: "Quality", flag: "quality", value: flagQuality, options: []menuOption{
			{label: "Low (480p, fastest)", value: "low"},
			{label: "Medium (720p)", value: "medium"},
			{label: "High (1080p)", value: "high"},
			{label: "2K (1440p)", value: "2k"},
			{label: "4K (2160p, slowest)", value: "4k"},
		}},
		{label: "Model", flag: "model", value: flagModel, options: models},
		{label: "Narration", flag: "tts", value: flagTTS, options: narration},
		{label: "Generate"},
	}
	for i := range items {
		for j, opt := range items[i].options {
			if opt.value == items[i].value {
				items[i].cursor = j
			}
		}
	}
	return items
}

func initialTUIModel() tuiModel {
	return tuiModel{items: buildMenuItems()}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) generateIdx() int {
	return len(m.items) - 1
}

func (m tuiModel) isTextInput(idx int) bool {
	return idx == idxTopic || idx == idxSource
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.state == stateEditing {
		return m.updateEditing(key)
	}
	return m.updateMenu(key)
}

func (m tuiModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.cancelled = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "enter", " ":
		if m.cursor == m.generateIdx() {
			if strings.TrimSpace(m.items[idxTopic].value) == "" {
				m.err = errors.New("topic is required")
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
		m.state = stateEditing
		m.items[m.cursor].editing = true
		m.err = nil
	}
	return m, nil
}

func (m tuiModel) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	item := &m.items[m.cursor]

	if m.isTextInput(m.cursor) {
		switch msg.String() {
		case "enter":
			item.editing = false
			m.state = stateMenu
			m.cursor++
		case "esc":
			item.editing = false
			m.state = stateMenu
		case "backspace":
			if r := []rune(item.value); len(r) > 0 {
				item.value = string(r[:len(r)-1])
			}
		case "ctrl+u":
			item.value = ""
		default:
			if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
				item.value += string(msg.Runes)
			}
		}
		return m, nil
	}

	switch msg.String() {
	case "enter", " ":
		item.value = item.options[item.cursor].value
		item.editing = false
		m.state = stateMenu
		m.cursor++
	case "esc":
		item.editing = false
		m.state = stateMenu
	case "up", "k":
		if item.cursor > 0 {
			item.cursor--
		}
	case "down", "j":
		if item.cursor < len(item.options)-1 {
			item.cursor++
		}
	}
	return m, nil
}

func (m tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Educational Animation Generator"))
	b.WriteString("\n")

	for i, item := range m.items {
		active := m.cursor == i
		if i == m.generateIdx() {
			b.WriteString("\n  ")
			if active {
				b.WriteString(buttonStyle.Render(" Generate "))
			} else {
				b.WriteString(buttonDimStyle.Render(" Generate "))
			}
			b.WriteString("\n")
			continue
		}

		cursor := "  "
		if active {
			cursor = cursorStyle.Render("> ")
		}
		label := item.label
		if item.required {
			label += requiredStyle.Render("*")
		}

		var value string
		switch {
		case item.editing && m.isTextInput(i):
			value = menuValueStyle.Render(item.value + "_")
		case item.value == "" && i == idxSource:
			value = menuValueDimStyle.Render("(optional: URL, PDF or text file)")
		default:
			value = renderValue(item)
		}
		b.WriteString(cursor + menuLabelStyle.Render(label) + " " + value + "\n")

		if item.editing && len(item.options) > 0 {
			for j, opt := range item.options {
				if j == item.cursor {
					b.WriteString(selectedOptionStyle.Render("> "+opt.label) + "\n")
				} else {
					b.WriteString(optionStyle.Render("  "+opt.label) + "\n")
				}
			}
		}
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.err.Error()) + "\n")
	}

	switch {
	case m.state == stateMenu:
		b.WriteString(helpStyle.Render("  j/k or arrows to navigate | enter to edit | q to quit"))
	case m.isTextInput(m.cursor):
		b.WriteString(helpStyle.Render("  type value | enter to confirm | esc to cancel | ctrl+u to clear"))
	default:
		b.WriteString(helpStyle.Render("  j/k or arrows to pick | enter to select | esc to cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// renderValue shows an option's label, or a placeholder for values left
// to the config file.
func renderValue(item menuItem) string {
	for _, opt := range item.options {
		if opt.value == item.value {
			return menuValueStyle.Render(opt.label)
		}
	}
	switch {
	case item.value != "":
		return menuValueStyle.Render(item.value)
	case len(item.options) > 0:
		return menuValueDimStyle.Render("(default)")
	default:
		return menuValueDimStyle.Render("(not set)")
	}
}

// apply writes the wizard's choices to cmd's flags, marking them as set.
func (m tuiModel) apply(cmd *cobra.Command) error {
	for _, item := range m.items {
		if item.flag == "" || item.value == "" {
			continue
		}
		if err := cmd.Flags().Set(item.flag, item.value); err != nil {
			return fmt.Errorf("set --%s: %w", item.flag, err)
		}
	}
	return nil
}

func runInteractiveSetup(cmd *cobra.Command) error {
	p := tea.NewProgram(initialTUIModel(), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tuiModel)
	if final.cancelled || !final.confirmed {
		return errors.New("generation cancelled")
	}
	return final.apply(cmd)
}
