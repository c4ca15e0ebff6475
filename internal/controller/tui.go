package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	m "rie.dev/pkg/rie/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6c7a89"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC107"))
	doneMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Render("✓")
)

const headerWidth = 66

// TUI implements UI using Bubble Tea: a spinner while scanning and a pager for long output.
type TUI struct {
	output io.Writer
	mode   StartMode

	mu      sync.Mutex
	program *tea.Program
	done    chan struct{}
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start initializes the UI. In scan mode a progress spinner runs until the summary is shown.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mode = newStartConfig(options...).Mode()

	if t.mode == ModeScan {
		t.run(newProgressModel(), tea.WithInput(nil))
	}

	return nil
}

// Close stops any running program.
func (t *TUI) Close(_ context.Context) {
	t.stop()
}

// Wait blocks until the user quits the pager or ctx is done.
func (t *TUI) Wait(ctx context.Context) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// DisplayStage advances the progress spinner.
func (t *TUI) DisplayStage(_ context.Context, stage string, detail string) {
	t.mu.Lock()
	program := t.program
	t.mu.Unlock()

	if program != nil && t.mode == ModeScan {
		program.Send(stageMsg{stage: stage, detail: detail})
	}
}

// DisplayScanSummary shows the artifact summary.
func (t *TUI) DisplayScanSummary(ctx context.Context, artifact m.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.display("Scan summary", renderScanSummary(artifact))
}

// DisplayEntrypoints shows the ranked candidates.
func (t *TUI) DisplayEntrypoints(ctx context.Context, candidates []m.Candidate, triangulation m.Triangulation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(candidates) == 0 {
		return t.display("Entrypoints", "No entrypoint candidates found.\n")
	}

	return t.display("Entrypoints", renderEntrypoints(candidates, triangulation))
}

// DisplayActionReport shows quarantine or restore outcomes.
func (t *TUI) DisplayActionReport(ctx context.Context, report m.ActionReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.display("Ledger", renderActionReport(report))
}

// DisplayTierDiff shows tier changes between two artifacts.
func (t *TUI) DisplayTierDiff(ctx context.Context, changes []m.TierChange, unified string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.display("Tier diff", renderTierDiff(changes, unified))
}

// DisplayPrunePlan shows the proposed cleanup.
func (t *TUI) DisplayPrunePlan(ctx context.Context, plan m.PrunePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return t.display("Prune plan", renderPrunePlan(plan))
}

// display ends the spinner and prints content. Only show mode pages long content; the
// other modes print and continue.
func (t *TUI) display(title, content string) error {
	t.stop()

	pager := newPagerModel(title, content)

	if f, ok := t.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			pager.width = width
			pager.height = height
		}
	}

	if t.mode != ModeShow || !pager.needsPagination() {
		_, err := fmt.Fprint(t.output, pager.View())
		return err
	}

	t.run(pager, tea.WithAltScreen())

	return nil
}

func (t *TUI) run(model tea.Model, options ...tea.ProgramOption) {
	program := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithOutput(t.output)}, options...)...)
	done := make(chan struct{})

	t.mu.Lock()
	t.program = program
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)

		if _, err := program.Run(); err != nil {
			slog.Error("TUI program failed", "error", err)
		}
	}()
}

func (t *TUI) stop() {
	t.mu.Lock()
	program, done := t.program, t.done
	t.program, t.done = nil, nil
	t.mu.Unlock()

	if program == nil {
		return
	}

	program.Quit()
	<-done
}

func renderHeader(b *strings.Builder, title string) {
	b.WriteString(titleStyle.Render("rie - " + title))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(strings.Repeat("─", headerWidth)))
	b.WriteString("\n\n")
}

type stageMsg struct {
	stage  string
	detail string
}

// progressModel shows completed stages and a spinner on the current one.
type progressModel struct {
	spinner spinner.Model
	stage   string
	detail  string
	done    []string
}

func newProgressModel() progressModel {
	return progressModel{spinner: spinner.New(spinner.WithSpinner(spinner.Dot))}
}

func (pm progressModel) Init() tea.Cmd {
	return pm.spinner.Tick
}

func (pm progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stageMsg:
		if pm.stage != "" {
			pm.done = append(pm.done, pm.stage)
		}

		pm.stage, pm.detail = msg.stage, msg.detail

		return pm, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		pm.spinner, cmd = pm.spinner.Update(msg)

		return pm, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return pm, tea.Quit
		}
	}

	return pm, nil
}

func (pm progressModel) View() string {
	var b strings.Builder

	for _, stage := range pm.done {
		fmt.Fprintf(&b, "  %s %s\n", doneMark, stage)
	}

	if pm.stage != "" {
		fmt.Fprintf(&b, "  %s %s %s\n", pm.spinner.View(), pm.stage, mutedStyle.Render(pm.detail))
	}

	return b.String()
}

// pagerModel scrolls a rendered block of text.
type pagerModel struct {
	title  string
	lines  []string
	height int
	width  int
	offset int
}

func newPagerModel(title, content string) pagerModel {
	return pagerModel{title: title, lines: strings.Split(strings.TrimRight(content, "\n"), "\n")}
}

func (pm pagerModel) Init() tea.Cmd {
	return nil
}

func (pm pagerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.height = msg.Height
		pm.width = msg.Width

		return pm, nil
	case tea.KeyMsg:
		return pm.handleKeyPress(msg)
	}

	return pm, nil
}

//nolint:cyclop // Key handling requires multiple cases for UI navigation
func (pm pagerModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return pm, tea.Quit
	case "down", "j":
		pm.offset = min(pm.offset+1, pm.maxOffset())
	case "up", "k":
		pm.offset = max(pm.offset-1, 0)
	case "g", "home":
		pm.offset = 0
	case "G", "end":
		pm.offset = pm.maxOffset()
	case "d", "pgdown":
		pm.offset = min(pm.offset+pm.linesPerPage(), pm.maxOffset())
	case "u", "pgup":
		pm.offset = max(pm.offset-pm.linesPerPage(), 0)
	}

	return pm, nil
}

// linesPerPage reserves room for the header (3 lines) and the footer (3 lines).
func (pm pagerModel) linesPerPage() int {
	if pm.height == 0 {
		return len(pm.lines)
	}

	return max(pm.height-6, 1)
}

func (pm pagerModel) maxOffset() int {
	return max(len(pm.lines)-pm.linesPerPage(), 0)
}

func (pm pagerModel) needsPagination() bool {
	return pm.height > 0 && len(pm.lines) > pm.linesPerPage()
}

func (pm pagerModel) View() string {
	var b strings.Builder

	renderHeader(&b, pm.title)

	visible := pm.lines
	if pm.needsPagination() {
		end := min(pm.offset+pm.linesPerPage(), len(pm.lines))
		visible = pm.lines[pm.offset:end]
	}

	for _, line := range visible {
		if strings.HasPrefix(line, "WARNING") {
			line = warnStyle.Render(line)
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	if pm.needsPagination() {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  lines %d-%d of %d | ↑/k ↓/j | g/G | d/u | q: quit",
			pm.offset+1, min(pm.offset+pm.linesPerPage(), len(pm.lines)), len(pm.lines))))
		b.WriteString("\n")
	}

	return b.String()
}
