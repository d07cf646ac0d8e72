package main

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ocellus/visionpipe/internal/pipeline"
)

// pipelineEntry mirrors one element of the GET /api/v1/pipelines response.
type pipelineEntry struct {
	ID        string            `json:"id"`
	Detector  string            `json:"detector"`
	Source    string            `json:"source"`
	CreatedAt time.Time         `json:"created_at"`
	Stats     pipeline.Snapshot `json:"stats"`
}

type pipelinesResponse struct {
	Pipelines []pipelineEntry `json:"pipelines"`
	Count     int             `json:"count"`
}

type tickMsg time.Time

type statsMsg struct {
	pipelines []pipelineEntry
	err       error
}

type model struct {
	client    *http.Client
	baseURL   string
	interval  time.Duration
	startTime time.Time

	pipelines  []pipelineEntry
	fpsHistory map[string][]float64
	lastErr    error
	lastUpdate time.Time
	width      int
	height     int
	quitting   bool
}

func newModel(baseURL string, interval time.Duration) model {
	client := &http.Client{
		Timeout: 3 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	return model{
		client:     client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		interval:   interval,
		startTime:  time.Now(),
		fpsHistory: make(map[string][]float64),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickEvery(m.interval),
		fetchPipelines(m.client, m.baseURL),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchPipelines(m.client, m.baseURL)
		}

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tea.Batch(
			tickEvery(m.interval),
			fetchPipelines(m.client, m.baseURL),
		)

	case statsMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.pipelines = msg.pipelines
			m.lastUpdate = time.Now()
			m.recordHistory()
		}
		return m, nil
	}

	return m, nil
}

// recordHistory appends the latest FPS sample for each pipeline and prunes
// entries for pipelines that no longer exist.
func (m *model) recordHistory() {
	const historyLen = 30

	seen := make(map[string]bool, len(m.pipelines))
	for _, p := range m.pipelines {
		seen[p.ID] = true
		hist := m.fpsHistory[p.ID]
		if len(hist) >= historyLen {
			hist = hist[1:]
		}
		m.fpsHistory[p.ID] = append(hist, float64(p.Stats.FPS))
	}
	for id := range m.fpsHistory {
		if !seen[id] {
			delete(m.fpsHistory, id)
		}
	}
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down dashboard...\n"
	}

	width := m.width
	if width == 0 {
		width = 100
	}

	var b strings.Builder

	title := fmt.Sprintf("VISIONPIPE  %s  up %s", m.baseURL, formatDuration(time.Since(m.startTime)))
	b.WriteString(headerStyle.Width(width - 2).Render(title))
	b.WriteString("\n")

	if m.lastErr != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("  connection error: %v", m.lastErr)))
		b.WriteString("\n")
	}

	if len(m.pipelines) == 0 {
		b.WriteString(labelStyle.Render("  no active pipelines"))
		b.WriteString("\n")
	}

	for _, p := range m.pipelines {
		b.WriteString(m.renderPipelinePanel(p, width-2))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("pipelines: %d   refreshed: %s   [q] quit  [r] refresh",
		len(m.pipelines), m.lastUpdate.Format("15:04:05"))
	b.WriteString(footerStyle.Render(footer))
	b.WriteString("\n")

	return b.String()
}

func (m model) renderPipelinePanel(p pipelineEntry, width int) string {
	s := p.Stats

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		panelTitleStyle.Render(p.ID),
		"  ",
		statusBadge(s.Stopped),
		"  ",
		infoStyle.Render(p.Detector),
	)

	dropStyle := dropRateStyle(s.FramesDropped, s.FramesSubmitted)
	counters := fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
		labelStyle.Render("submitted"), valueStyle.Render(formatCount(s.FramesSubmitted)),
		labelStyle.Render("processed"), valueStyle.Render(formatCount(s.FramesProcessed)),
		labelStyle.Render("dropped"), dropStyle.Render(formatCount(s.FramesDropped)),
		labelStyle.Render("errors"), valueStyle.Render(formatCount(s.DetectorErrors)),
	)

	latency := fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("frame"), renderLatency(s.FrameLatency),
		labelStyle.Render("detector"), renderLatency(s.DetectorLatency),
	)

	fps := fmt.Sprintf("%s %s %s",
		labelStyle.Render("fps"),
		valueStyle.Render(fmt.Sprintf("%3d", s.FPS)),
		renderSparkline(m.fpsHistory[p.ID], 30),
	)

	body := strings.Join([]string{header, counters, latency, fps}, "\n")
	return panelStyle.Width(width).Render(body)
}

func renderLatency(l pipeline.LatencySummary) string {
	if !l.HasData {
		return labelStyle.Render("--")
	}
	return valueStyle.Render(fmt.Sprintf("avg %dms max %dms min %dms", l.AvgMs, l.MaxMs, l.MinMs))
}

var sparkChars = []rune("▁▂▃▄▅▆▇█")

func renderSparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}

	max := 0.0
	for _, v := range data {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}

	var b strings.Builder
	for _, v := range data {
		idx := int(v / max * float64(len(sparkChars)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteRune(sparkChars[idx])
	}
	return activeStyle.Render(b.String())
}

func formatCount(n uint64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	s := d - m*time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s/time.Second)
	}
	return fmt.Sprintf("%dm%02ds", m, s/time.Second)
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchPipelines(client *http.Client, baseURL string) tea.Cmd {
	return func() tea.Msg {
		resp, err := client.Get(baseURL + "/api/v1/pipelines")
		if err != nil {
			return statsMsg{err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return statsMsg{err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return statsMsg{err: err}
		}

		var parsed pipelinesResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return statsMsg{err: err}
		}

		sort.Slice(parsed.Pipelines, func(i, j int) bool {
			return parsed.Pipelines[i].ID < parsed.Pipelines[j].ID
		})

		return statsMsg{pipelines: parsed.Pipelines}
	}
}

func main() {
	var (
		addr     string
		interval time.Duration
	)

	flag.StringVar(&addr, "addr", "http://localhost:8080", "Server base URL")
	flag.DurationVar(&interval, "interval", 500*time.Millisecond, "Poll interval")
	flag.Parse()

	prog := tea.NewProgram(newModel(addr, interval), tea.WithAltScreen())
	if _, err := prog.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		os.Exit(1)
	}
}
