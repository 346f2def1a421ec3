package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mickamy/kvstore/clipboard"
	"github.com/mickamy/kvstore/highlight"
)

// commandEvent mirrors admin.eventJSON, the wire shape the SSE feed
// sends — kept as a plain struct here (no grpc-generated type) since
// the admin endpoint is JSON, not protobuf.
type commandEvent struct {
	DB      int      `json:"db"`
	Client  string   `json:"client"`
	Command []string `json:"command"`
	Unix    int64    `json:"unix"`
	raw     string   // original JSON line, for the highlighted detail view
}

type eventMsg struct{ ev commandEvent }
type errMsg struct{ err error }
type connectedMsg struct{ ch <-chan commandEvent }

// Model is the Bubble Tea model for kv-monitor.
type Model struct {
	target string
	events []commandEvent
	ch     <-chan commandEvent

	cursor      int
	follow      bool
	width       int
	height      int
	err         error
	filterQuery string
	filterMode  bool
	statusMsg   string
}

func newModel(target string) Model {
	return Model{target: target, follow: true}
}

func (m Model) Init() tea.Cmd {
	return connectCmd(m.target)
}

// connectCmd starts streaming /api/events in the background and hands
// back a channel the Update loop drains one message at a time — the
// idiomatic Go replacement for a gRPC stream.Recv() loop.
func connectCmd(target string) tea.Cmd {
	return func() tea.Msg {
		url := target
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "http://" + url
		}
		url = strings.TrimSuffix(url, "/") + "/api/events"

		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
		if err != nil {
			return errMsg{err}
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return errMsg{err}
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return errMsg{fmt.Errorf("kv-monitor: admin endpoint returned %s", resp.Status)}
		}

		ch := make(chan commandEvent, 64)
		go func() {
			defer resp.Body.Close()
			defer close(ch)
			sc := bufio.NewScanner(resp.Body)
			sc.Buffer(make([]byte, 64*1024), 1024*1024)
			for sc.Scan() {
				line := sc.Text()
				data, ok := strings.CutPrefix(line, "data: ")
				if !ok {
					continue
				}
				var ev commandEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					continue
				}
				ev.raw = data
				ch <- ev
			}
		}()
		return connectedMsg{ch: ch}
	}
}

// waitForEvent reads one event off the channel; it is resubmitted after
// every Update so the loop never blocks the rest of the program.
func waitForEvent(ch <-chan commandEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return errMsg{fmt.Errorf("kv-monitor: event stream closed")}
		}
		return eventMsg{ev}
	}
}

const maxEvents = 2000

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case connectedMsg:
		m.ch = msg.ch
		return m, waitForEvent(m.ch)

	case eventMsg:
		m.events = append(m.events, msg.ev)
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
		if m.follow {
			m.cursor = len(m.visibleRows()) - 1
		}
		return m, waitForEvent(m.ch)

	case errMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.filterMode {
		switch msg.Type {
		case tea.KeyEnter, tea.KeyEsc:
			m.filterMode = false
		case tea.KeyBackspace:
			if len(m.filterQuery) > 0 {
				m.filterQuery = m.filterQuery[:len(m.filterQuery)-1]
			}
		case tea.KeyRunes:
			m.filterQuery += string(msg.Runes)
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "/":
		m.filterMode = true
		return m, nil
	case "f":
		m.follow = !m.follow
	case "up", "k":
		m.follow = false
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		rows := m.visibleRows()
		if m.cursor < len(rows)-1 {
			m.cursor++
		} else {
			m.follow = true
		}
	case "y":
		rows := m.visibleRows()
		if m.cursor >= 0 && m.cursor < len(rows) {
			if err := clipboard.Copy(context.Background(), rows[m.cursor].raw); err != nil {
				m.statusMsg = "yank failed: " + err.Error()
			} else {
				m.statusMsg = "yanked"
			}
		}
	}
	return m, nil
}

// visibleRows applies the active filter, grounded on filter.go's
// token-based filtering but reduced to the tokens this domain supports:
// a plain substring match or a db:<n> / cmd:<name> predicate.
func (m Model) visibleRows() []commandEvent {
	if m.filterQuery == "" {
		return m.events
	}
	tokens := strings.Fields(m.filterQuery)
	out := make([]commandEvent, 0, len(m.events))
	for _, ev := range m.events {
		if matchesAll(ev, tokens) {
			out = append(out, ev)
		}
	}
	return out
}

func matchesAll(ev commandEvent, tokens []string) bool {
	for _, tok := range tokens {
		if !matchesOne(ev, tok) {
			return false
		}
	}
	return true
}

func matchesOne(ev commandEvent, tok string) bool {
	if rest, ok := strings.CutPrefix(tok, "db:"); ok {
		n, err := strconv.Atoi(rest)
		return err == nil && ev.DB == n
	}
	if rest, ok := strings.CutPrefix(tok, "cmd:"); ok {
		return len(ev.Command) > 0 && strings.EqualFold(ev.Command[0], rest)
	}
	return strings.Contains(strings.ToLower(ev.raw), strings.ToLower(tok))
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("kv-monitor: %v\n\npress q to quit", m.err)
	}

	rows := m.visibleRows()
	header := fmt.Sprintf(" kv-monitor — %s (%d/%d events) %s",
		m.target, len(rows), len(m.events), followIndicator(m.follow))
	if m.filterMode {
		header = fmt.Sprintf(" filter: %s█", m.filterQuery)
	} else if m.filterQuery != "" {
		header += fmt.Sprintf(" [filter: %s]", m.filterQuery)
	}

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(header))
	b.WriteString("\n\n")

	listHeight := max(m.height-6, 5)
	start := 0
	if len(rows) > listHeight {
		start = len(rows) - listHeight
	}
	if !m.follow && m.cursor < len(rows) {
		start = max(0, min(m.cursor-listHeight/2, len(rows)-listHeight))
		if start < 0 {
			start = 0
		}
	}

	for i := start; i < len(rows); i++ {
		ev := rows[i]
		marker := "  "
		if i == m.cursor {
			marker = "▶ "
		}
		fmt.Fprintf(&b, "%s[%s] db=%d %s %s\n",
			marker, formatUnix(ev.Unix), ev.DB, padRight(ev.Client, 10), strings.Join(ev.Command, " "))
	}

	b.WriteString("\n")
	if m.cursor >= 0 && m.cursor < len(rows) {
		b.WriteString(highlight.JSON(rows[m.cursor].raw))
		b.WriteString("\n")
	}
	if m.statusMsg != "" {
		b.WriteString(lipgloss.NewStyle().Faint(true).Render(m.statusMsg))
	}
	b.WriteString("\n[/] filter  [f] follow  [y] yank  [q] quit")
	return b.String()
}

func followIndicator(on bool) string {
	if on {
		return "[following]"
	}
	return ""
}
