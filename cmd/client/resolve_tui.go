package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/partvault/partvault/internal/client/handlers"
)

const (
	txtResolvePrompt = "[o]verwrite  [r]ename  [s]kip  [n]ext  [q]uit"
	txtResolving     = "Resolving..."
)

type ResolveTUIOpts struct {
	Conflicts []handlers.ConflictInfo
	// Resolver applies one policy to one marker and reports the outcome.
	Resolver func(path, policy string) (resolvedPath string, discarded bool, err error)
}

type resolveDoneMsg struct {
	resolvedPath string
	discarded    bool
	err          error
}

type resolveModel struct {
	opts    *ResolveTUIOpts
	spinner spinner.Model

	index     int
	isLoading bool
	results   []string
	errText   string
}

func newResolveModel(opts *ResolveTUIOpts) resolveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	return resolveModel{
		opts:    opts,
		spinner: s,
	}
}

func (m resolveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m resolveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.done() {
			return m, tea.Quit
		}
		if m.isLoading {
			if msg.Type == tea.KeyCtrlC {
				return m, tea.Quit
			}
			return m, nil
		}

		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "n":
			return m.advance(), nil
		case "o":
			return m.apply("overwrite")
		case "r":
			return m.apply("rename")
		case "s":
			return m.apply("skip")
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case resolveDoneMsg:
		m.isLoading = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}

		current := m.current()
		switch {
		case msg.discarded:
			m.results = append(m.results, fmt.Sprintf("%s %s", yellow.Render("discarded"), current.Path))
		default:
			m.results = append(m.results, fmt.Sprintf("%s %s", green.Render("resolved"), msg.resolvedPath))
		}
		return m.advance(), nil
	}

	return m, nil
}

func (m resolveModel) current() handlers.ConflictInfo {
	return m.opts.Conflicts[m.index]
}

func (m resolveModel) advance() resolveModel {
	m.errText = ""
	m.index++
	return m
}

func (m resolveModel) done() bool {
	return m.index >= len(m.opts.Conflicts)
}

func (m resolveModel) apply(policy string) (tea.Model, tea.Cmd) {
	m.isLoading = true
	m.errText = ""
	path := m.current().Path

	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		resolvedPath, discarded, err := m.opts.Resolver(path, policy)
		return resolveDoneMsg{resolvedPath: resolvedPath, discarded: discarded, err: err}
	})
}

func (m resolveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Resolve conflicts"))
	b.WriteString("\n\n")

	for _, line := range m.results {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.done() {
		b.WriteString(green.Render("all conflicts handled, press any key"))
		b.WriteString("\n")
		return b.String()
	}

	c := m.current()
	marker := yellow.Render(c.Marker)
	if c.Marker == "rejected" {
		marker = red.Render(c.Marker)
	}
	b.WriteString(fmt.Sprintf("%s %s (%s, %d of %d)\n", marker, c.Path, humanize.Bytes(uint64(c.Size)), m.index+1, len(m.opts.Conflicts)))
	b.WriteString(fmt.Sprintf("%s%s\n", gray.Render("shadows "), lightGray.Render(c.OriginalPath)))
	b.WriteString("\n")

	if m.isLoading {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), txtResolving))
	} else {
		b.WriteString(gray.Render(txtResolvePrompt))
		b.WriteString("\n")
	}

	if m.errText != "" {
		b.WriteString("\n")
		b.WriteString(red.Render(m.errText))
		b.WriteString("\n")
	}

	return b.String()
}

// RunResolveTUI walks the conflict list one marker at a time.
func RunResolveTUI(opts ResolveTUIOpts) error {
	if len(opts.Conflicts) == 0 {
		fmt.Println(green.Render("no conflicts"))
		return nil
	}

	model, err := tea.NewProgram(newResolveModel(&opts)).Run()
	if err != nil {
		return fmt.Errorf("TUI encountered an error during execution: %w", err)
	}

	if fm, ok := model.(resolveModel); ok {
		for _, line := range fm.results {
			fmt.Println(line)
		}
	}
	return nil
}
