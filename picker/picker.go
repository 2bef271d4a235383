// Package picker provides the terminal menu used to choose remotes and
// folders: a prompt, a scrolling option list and single-key navigation.
package picker

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrAborted is returned when the user backs out of a menu.
var ErrAborted = errors.New("picker: selection aborted")

const viewport = 12

const (
	colorCyan   = "\033[0;36m"
	colorGray   = "\033[0;90m"
	colorInvert = "\033[7m"
	colorReset  = "\033[0m"
)

type model struct {
	prompt   string
	options  []string
	selected int
	offset   int
	done     bool
	aborted  bool
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.aborted = true
		return m, tea.Quit
	case "up", "k":
		if m.selected > 0 {
			m.selected--
			if m.selected < m.offset {
				m.offset = m.selected
			}
		}
	case "down", "j":
		if m.selected < len(m.options)-1 {
			m.selected++
			if m.selected >= m.offset+viewport {
				m.offset = m.selected - viewport + 1
			}
		}
	case "enter":
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	if m.done || m.aborted {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s%s\n\n", colorCyan, m.prompt, colorReset)

	end := m.offset + viewport
	if end > len(m.options) {
		end = len(m.options)
	}
	for i := m.offset; i < end; i++ {
		if i == m.selected {
			fmt.Fprintf(&b, "  %s %s %s\n", colorInvert, m.options[i], colorReset)
		} else {
			fmt.Fprintf(&b, "    %s\n", m.options[i])
		}
	}
	if end < len(m.options) {
		fmt.Fprintf(&b, "%s    … %d more%s\n", colorGray, len(m.options)-end, colorReset)
	}
	fmt.Fprintf(&b, "\n%s↑/↓ move · enter select · q back%s\n", colorGray, colorReset)
	return b.String()
}

// Select shows the option list under the prompt and returns the chosen
// option. ErrAborted means the user backed out.
func Select(prompt string, options []string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("picker: no options for %q", prompt)
	}
	p := tea.NewProgram(model{prompt: prompt, options: options})
	final, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("running menu: %w", err)
	}
	m := final.(model)
	if m.aborted {
		return "", ErrAborted
	}
	return m.options[m.selected], nil
}
