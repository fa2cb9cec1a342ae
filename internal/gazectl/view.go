package gazectl

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kovaxis/gaze/internal/buffer"
	"github.com/kovaxis/gaze/internal/gazeconfig"
)

// newViewCmd launches the minimal reference Renderer (SPEC_FULL.md's
// "out-of-scope window/render surface reduced to a minimal reference
// client"): it drives query_rect/epoch exactly as a real editor's
// render loop would, over a read-only terminal viewport.
//
// Grounded on dh-cli's internal/tui/app.go Bubbletea model shape
// (single top-level model, tea.WindowSizeMsg resize, tea.Quit on
// ctrl+c/q) combined with bubbles/viewport for scrollable content and
// lipgloss for the status line styling dh-cli's screens use
// throughout.
func newViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view PATH",
		Short: "Render a file read-only through the buffer façade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			cfg, err := gazeconfig.Load()
			if err != nil {
				return fail(cmd, "loading config: %v", err)
			}

			buf, file, err := openBuffer(path, cfg)
			if err != nil {
				return fail(cmd, "opening %s: %v", path, err)
			}
			defer buf.Close()
			defer file.Close()

			p := tea.NewProgram(newViewModel(path, buf), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
	return cmd
}

var (
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	unmappedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	ioErrStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	unmappedFiller = "·"
)

// refreshMsg ticks the render loop: drive one unit of background
// refinement, then re-issue query_rect (spec.md §6: the Renderer
// "subscribes to epoch changes" — here approximated by polling on a
// fixed interval instead of a condition variable, since a terminal
// program has no finer-grained wakeup source of its own).
type refreshMsg struct{}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(time.Time) tea.Msg { return refreshMsg{} })
}

type viewModel struct {
	path  string
	buf   *buffer.Buffer
	vp    viewport.Model
	ready bool
}

func newViewModel(path string, buf *buffer.Buffer) viewModel {
	buf.SetViewport(0, buf.DocLength(), nil)
	return viewModel{path: path, buf: buf}
}

func (m viewModel) Init() tea.Cmd {
	return tick()
}

func (m viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 1
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-headerHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - headerHeight
		}
		m.vp.SetContent(m.render())
		return m, nil

	case refreshMsg:
		m.buf.RefineOnce()
		if m.ready {
			m.vp.SetContent(m.render())
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m viewModel) View() string {
	if !m.ready {
		return "loading..."
	}
	header := statusStyle.Render(fmt.Sprintf("%s — epoch %d", m.path, m.buf.PollEpoch()))
	if err := m.buf.LastIoError(); err != nil {
		header = header + "  " + ioErrStyle.Render("I/O error: "+err.Error())
	}
	return header + "\n" + m.vp.View()
}

// render builds the viewport's displayed text by walking query_rect's
// resident/unmapped runs over the whole document and reading bytes
// for each resident one, substituting a dimmed filler for the parts
// the loader or layout scan haven't caught up with yet.
func (m viewModel) render() string {
	length := m.buf.DocLength()
	if length == 0 {
		return unmappedStyle.Render("(empty buffer)")
	}

	ans := m.buf.QueryRect(buffer.Rect{Start: 0, End: length})
	runs := mergeRuns(ans.ResidentRuns, ans.UnmappedRuns)

	var b strings.Builder
	for _, run := range runs {
		if run.resident {
			data, ok := m.buf.Bytes(run.start, run.end-run.start)
			if ok {
				b.Write(data)
				continue
			}
		}
		b.WriteString(unmappedStyle.Render(strings.Repeat(unmappedFiller, clampWidth(run.end-run.start))))
	}
	return b.String()
}

type displayRun struct {
	start, end int64
	resident   bool
}

// mergeRuns flattens query_rect's two separately-ordered slices back
// into one offset-ordered sequence for straight-through rendering.
func mergeRuns(resident, unmapped []buffer.Rect) []displayRun {
	runs := make([]displayRun, 0, len(resident)+len(unmapped))
	for _, r := range resident {
		runs = append(runs, displayRun{start: r.Start, end: r.End, resident: true})
	}
	for _, r := range unmapped {
		runs = append(runs, displayRun{start: r.Start, end: r.End, resident: false})
	}
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].start < runs[j-1].start; j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
	return runs
}

func clampWidth(n int64) int {
	const max = 4096
	if n > max {
		return max
	}
	return int(n)
}
