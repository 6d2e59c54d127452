package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/pipeline"
)

const (
	tuiBarWidth = 32
	tuiMaxRows  = 10
)

var (
	barDoneStyle = lipgloss.NewStyle().Foreground(colorCyan)
	barTodoStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// installEventMsg carries one installer event into the program.
type installEventMsg install.Event

// installDoneMsg is sent once the pipeline returns.
type installDoneMsg struct {
	result *pipeline.Result
	err    error
}

type tickMsg time.Time

// installRow is one package line in the view.
type installRow struct {
	name    string
	version string
	kind    install.EventKind
	err     error
}

// installModel is the bubbletea model behind install --tui. The pipeline
// runs in its own goroutine and feeds the model through messages.
type installModel struct {
	cancel     context.CancelFunc
	frame      int
	total      int
	finished   int
	failed     int
	rows       []installRow
	cancelling bool

	done   bool
	result *pipeline.Result
	err    error
}

func newInstallModel(cancel context.CancelFunc) installModel {
	return installModel{cancel: cancel}
}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m installModel) Init() tea.Cmd {
	return tick()
}

func (m installModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			// Wait for the pipeline to observe the cancel so the store is
			// never left mid-extraction when the program exits.
			if !m.cancelling && m.cancel != nil {
				m.cancel()
			}
			m.cancelling = true
		}
	case tickMsg:
		if m.done {
			return m, nil
		}
		m.frame++
		return m, tick()
	case installEventMsg:
		m.total = msg.Total
		switch msg.Kind {
		case install.EventStart:
			m.rows = append(m.rows, installRow{name: msg.Name, version: msg.Version, kind: msg.Kind})
		case install.EventInstalled, install.EventFailed:
			m.finished++
			if msg.Kind == install.EventFailed {
				m.failed++
			}
			m.setRow(installRow{name: msg.Name, version: msg.Version, kind: msg.Kind, err: msg.Err})
		}
	case installDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

// setRow replaces the row for r's package, or appends it.
func (m *installModel) setRow(r installRow) {
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].name == r.name {
			m.rows[i] = r
			return
		}
	}
	m.rows = append(m.rows, r)
}

func (m installModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Installing packages"))
	b.WriteString("\n\n")

	if m.total == 0 && !m.done {
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		b.WriteString(styleIconSpinner.Render(frame) + " " + StyleDim.Render("Resolving dependencies..."))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(progressBar(m.finished, m.total, tuiBarWidth))
	b.WriteString(" ")
	b.WriteString(StyleNumber.Render(fmt.Sprintf("%d/%d", m.finished, m.total)))
	if m.failed > 0 {
		b.WriteString(StyleError.Render(fmt.Sprintf("  %d failed", m.failed)))
	}
	b.WriteString("\n")

	rows := m.rows
	if len(rows) > tuiMaxRows {
		rows = rows[len(rows)-tuiMaxRows:]
	}
	if len(rows) > 0 {
		data := make([][]string, len(rows))
		for i, r := range rows {
			data[i] = []string{m.rowIcon(r), r.name, r.version, rowDetail(r)}
		}
		t := table.New().
			Border(lipgloss.HiddenBorder()).
			Rows(data...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row < 0 || row >= len(rows) {
					return lipgloss.NewStyle()
				}
				switch rows[row].kind {
				case install.EventInstalled:
					if col == 0 {
						return styleIconSuccess
					}
					return StyleValue
				case install.EventFailed:
					return StyleError
				}
				return StyleDim
			})
		b.WriteString(t.Render())
		b.WriteString("\n")
	}

	switch {
	case m.cancelling && !m.done:
		b.WriteString(StyleWarning.Render("Cancelling..."))
	case !m.done:
		b.WriteString(StyleDim.Render("q cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m installModel) rowIcon(r installRow) string {
	switch r.kind {
	case install.EventInstalled:
		return iconSuccess
	case install.EventFailed:
		return iconError
	}
	return spinnerFrames[m.frame%len(spinnerFrames)]
}

func rowDetail(r installRow) string {
	if r.err != nil {
		return r.err.Error()
	}
	return ""
}

// progressBar draws done/total as a bar of the given width.
func progressBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = min(width, done*width/total)
	}
	return barDoneStyle.Render(strings.Repeat("█", filled)) +
		barTodoStyle.Render(strings.Repeat("░", width-filled))
}

// executeFunc runs the pipeline; [pipeline.Runner.Execute] satisfies it.
type executeFunc func(ctx context.Context, opts pipeline.Options) (*pipeline.Result, error)

// runInstallTUI runs execute behind a bubbletea progress view. It never
// returns before execute does, even when the program itself fails.
func runInstallTUI(ctx context.Context, execute executeFunc, opts pipeline.Options, progOpts ...tea.ProgramOption) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(progOpts) == 0 {
		progOpts = []tea.ProgramOption{tea.WithOutput(os.Stderr), tea.WithInputTTY()}
	}
	p := tea.NewProgram(newInstallModel(cancel), progOpts...)

	opts.Progress = func(ev install.Event) { p.Send(installEventMsg(ev)) }
	done := make(chan installDoneMsg, 1)
	go func() {
		result, err := execute(ctx, opts)
		msg := installDoneMsg{result: result, err: err}
		done <- msg
		p.Send(msg)
	}()

	final, err := p.Run()
	if err != nil {
		cancel()
		<-done
		return nil, err
	}
	m, ok := final.(installModel)
	if !ok {
		cancel()
		<-done
		return nil, fmt.Errorf("unexpected model %T", final)
	}
	return m.result, m.err
}
