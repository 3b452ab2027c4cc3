// Package dashboard implements the "mcpserver status" operator TUI: it
// polls a running server's /health and /metrics endpoints on an interval
// and renders health, in-flight count, queue depth, active session count,
// total requests, and expired sessions. Auth cache stats are not shown.
package dashboard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Options configures the dashboard's polling target.
type Options struct {
	BaseURL  string
	Interval time.Duration
}

// Run starts the TUI and blocks until the user quits.
func Run(opts Options) error {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	p := tea.NewProgram(initialModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type snapshot struct {
	healthy         bool
	serverName      string
	serverVersion   string
	inFlight        float64
	queued          float64
	activeSessions  float64
	requestsTotal   float64
	sessionsExpired float64
	fetchedAt       time.Time
	err             error
}

type tickMsg time.Time

type snapshotMsg snapshot

type model struct {
	opts     Options
	client   *http.Client
	spinner  spinner.Model
	latest   snapshot
	quitting bool
}

func initialModel(opts Options) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return model{
		opts:    opts,
		client:  &http.Client{Timeout: 5 * time.Second},
		spinner: sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchCmd(), tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) }))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.fetchCmd(), tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) }))
	case snapshotMsg:
		m.latest = snapshot(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("114"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func (m model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render("mcpserver status")+"  "+dimStyle.Render(m.opts.BaseURL))
	fmt.Fprintln(&b)

	if m.latest.fetchedAt.IsZero() {
		fmt.Fprintln(&b, m.spinner.View()+" connecting...")
		return b.String()
	}

	if m.latest.err != nil {
		fmt.Fprintln(&b, badStyle.Render("unreachable: ")+m.latest.err.Error())
	} else if m.latest.healthy {
		fmt.Fprintln(&b, okStyle.Render("● healthy")+"  "+dimStyle.Render(m.latest.serverName+" "+m.latest.serverVersion))
	} else {
		fmt.Fprintln(&b, badStyle.Render("● unhealthy"))
	}
	fmt.Fprintln(&b)
	row := func(label string, v float64) {
		fmt.Fprintln(&b, keyStyle.Render(fmt.Sprintf("  %-20s", label+":")), formatFloat(v))
	}
	row("In-flight requests", m.latest.inFlight)
	row("Queued requests", m.latest.queued)
	row("Active sessions", m.latest.activeSessions)
	row("Requests total", m.latest.requestsTotal)
	row("Sessions expired", m.latest.sessionsExpired)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, dimStyle.Render("last updated "+m.latest.fetchedAt.Format(time.RFC3339)+"  ·  q to quit"))
	return b.String()
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func (m model) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap := snapshot{fetchedAt: time.Now()}

		healthResp, err := m.client.Get(m.opts.BaseURL + "/health")
		if err != nil {
			snap.err = err
			return snapshotMsg(snap)
		}
		defer healthResp.Body.Close()
		var health struct {
			Status  string `json:"status"`
			Server  string `json:"server"`
			Version string `json:"version"`
		}
		if err := json.NewDecoder(healthResp.Body).Decode(&health); err == nil {
			snap.healthy = health.Status == "ok"
			snap.serverName = health.Server
			snap.serverVersion = health.Version
		}

		metricsResp, err := m.client.Get(m.opts.BaseURL + "/metrics")
		if err != nil {
			snap.err = err
			return snapshotMsg(snap)
		}
		defer metricsResp.Body.Close()
		parseMetrics(metricsResp.Body, &snap)

		return snapshotMsg(snap)
	}
}

// parseMetrics does a minimal line scan of the Prometheus text exposition
// format for the handful of gauges/counters this dashboard displays; it
// deliberately doesn't pull in a full Prometheus text-parser dependency
// for five scalar lookups.
func parseMetrics(body io.Reader, snap *snapshot) {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		name, valStr := parts[0], parts[1]
		val, err := strconv.ParseFloat(valStr, 64)
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(name, "mcp_inflight_requests"):
			snap.inFlight = val
		case strings.HasPrefix(name, "mcp_queued_requests"):
			snap.queued = val
		case strings.HasPrefix(name, "mcp_active_sessions"):
			snap.activeSessions = val
		case strings.HasPrefix(name, "mcp_requests_total"):
			snap.requestsTotal += val
		case strings.HasPrefix(name, "mcp_sessions_expired_total"):
			snap.sessionsExpired = val
		}
	}
}
