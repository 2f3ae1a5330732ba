// Package tui is a terminal chat client for the fleetrag API.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Domains the client can switch between with Tab.
var Domains = []string{"orders", "vehicles"}

const (
	defaultTitle   = "New Chat"
	requestTimeout = 2 * time.Minute
)

type entry struct {
	user   bool
	domain string
	branch string
	text   string
	failed bool
}

type replyMsg struct {
	reply Reply
	err   error
}

type titleMsg string

// Model is the Bubble Tea model for the chat client.
type Model struct {
	api      ChatPort
	input    textinput.Model
	viewport viewport.Model
	history  []entry
	domain   int
	title    string
	status   string
	pending  bool
	ready    bool
}

// New creates a model talking to api, starting in the named domain.
func New(api ChatPort, domain string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about orders or vehicles, Enter to send"
	ti.Focus()
	ti.CharLimit = 1000

	m := Model{api: api, input: ti, viewport: viewport.New(0, 0), title: defaultTitle}
	for i, d := range Domains {
		if d == domain {
			m.domain = i
		}
	}
	m.status = m.help()
	return m
}

// Domain returns the active domain.
func (m Model) Domain() string { return Domains[m.domain] }

// Title returns the conversation title.
func (m Model) Title() string { return m.title }

func (m Model) help() string {
	return fmt.Sprintf("Domain: %s. Tab switches, Ctrl+C quits.", m.Domain())
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and API events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, hh := historyBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 + hh // header, status, input box, spacer, history frame
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil

	case replyMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.history = append(m.history, entry{domain: m.Domain(), text: msg.err.Error(), failed: true})
		} else {
			m.status = m.help()
			m.history = append(m.history, entry{
				domain: msg.reply.Domain,
				branch: msg.reply.Branch,
				text:   msg.reply.Text(),
				failed: msg.reply.Failed,
			})
		}
		m.refresh()
		return m, nil

	case titleMsg:
		if msg != "" {
			m.title = string(msg)
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyTab:
			m.domain = (m.domain + 1) % len(Domains)
			m.status = m.help()
			return m, nil
		case tea.KeyEnter:
			return m.send()
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// send submits the input line. The first message of a chat also asks for
// a title.
func (m Model) send() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.pending {
		return m, nil
	}
	first := !m.hasUserMessage()
	m.input.SetValue("")
	m.pending = true
	m.status = "Thinking..."
	m.history = append(m.history, entry{user: true, domain: m.Domain(), text: q})
	m.refresh()

	cmds := []tea.Cmd{chatCmd(m.api, m.Domain(), q)}
	if first {
		cmds = append(cmds, titleCmd(m.api, q))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) hasUserMessage() bool {
	for _, e := range m.history {
		if e.user {
			return true
		}
	}
	return false
}

func chatCmd(api ChatPort, domain, query string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		r, err := api.Chat(ctx, domain, query)
		return replyMsg{reply: r, err: err}
	}
}

func titleCmd(api ChatPort, message string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		t, err := api.Title(ctx, message)
		if err != nil {
			return titleMsg("")
		}
		return titleMsg(t)
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render(m.title) + " " + domainStyle.Render("["+m.Domain()+"]")
	history := historyBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + history + "\n" + input + "\n" + status
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No messages yet."
	}
	width := m.viewport.Width
	parts := make([]string, len(m.history))
	for i, e := range m.history {
		var label string
		switch {
		case e.user:
			label = userStyle.Render("you")
		case e.failed:
			label = errorStyle.Render(e.domain)
		default:
			label = botStyle.Render(e.domain)
			if e.branch != "" {
				label += " " + branchStyle.Render(e.branch)
			}
		}
		body := e.text
		if width > 0 {
			body = lipgloss.NewStyle().Width(width).Render(body)
		}
		parts[i] = label + "\n" + body
	}
	return strings.Join(parts, "\n\n")
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	domainStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	branchStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)
