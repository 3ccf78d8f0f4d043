package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"feedplay/internal/session"
	"feedplay/internal/simulate"
)

const watchHistoryRows = 8

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	watchMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	watchOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	watchPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	watchHolderRow  = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

type watchStepMsg simulate.StepResult

type watchDoneMsg struct {
	result *runResult
	err    error
}

type watchModel struct {
	title   string
	total   int
	last    *simulate.StepResult
	history []string
	done    bool
	result  *runResult
	err     error
	cancel  context.CancelFunc
	width   int
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var sample bool
	var pace time.Duration
	var latencyMs int

	cmd := &cobra.Command{
		Use:   "watch [script.toml]",
		Short: "Replay a feed script in a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !stdinIsTTY() {
				return errors.New("watch requires an interactive terminal (TTY)")
			}
			script, err := loadScript(args, sample)
			if err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			cmd.SetContext(runCtx)

			m := watchModel{title: script.Name, total: len(script.Steps), cancel: cancel}
			if m.title == "" {
				m.title = "feed script"
			}
			p := tea.NewProgram(m, tea.WithAltScreen())

			go func() {
				result, err := ctx.runScript(cmd, script, runOptions{
					pace:         pace,
					fileLogsOnly: true,
					latencyMs:    latencyMs,
					observe: func(step simulate.StepResult) {
						p.Send(watchStepMsg(step))
					},
				})
				p.Send(watchDoneMsg{result: result, err: err})
			}()

			finalModel, err := p.Run()
			if err != nil {
				return err
			}
			if fm, ok := finalModel.(watchModel); ok && fm.err != nil && !errors.Is(fm.err, context.Canceled) {
				return fm.err
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sample, "sample", false, "Run the built-in sample script")
	cmd.Flags().DurationVar(&pace, "pace", 600*time.Millisecond, "Wall time between steps")
	cmd.Flags().IntVar(&latencyMs, "latency", -1, "Override the simulated fetch latency in milliseconds")
	return cmd
}

func stdinIsTTY() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (m watchModel) Init() tea.Cmd {
	return nil
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case watchStepMsg:
		step := simulate.StepResult(msg)
		m.last = &step
		m.history = append(m.history, historyLine(step))
		if len(m.history) > watchHistoryRows {
			m.history = m.history[len(m.history)-watchHistoryRows:]
		}
		return m, nil
	case watchDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m watchModel) View() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	header := watchTitleStyle.Render("feedplay watch: "+m.title) + "\n" +
		watchMutedStyle.Render("q: quit")

	step := 0
	if m.last != nil {
		step = m.last.Index
	}
	progress := fmt.Sprintf("step %d/%d", step, m.total)

	var tiles, stats string
	if m.last != nil {
		tiles = renderTilePanel(m.last.Session)
		stats = renderStatsPanel(*m.last)
	} else {
		tiles = watchMutedStyle.Render("waiting for first step...")
	}
	history := strings.Join(m.history, "\n")
	if history == "" {
		history = watchMutedStyle.Render("no steps yet")
	}

	left := watchPanelStyle.Render(tiles)
	right := watchPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, stats, "", history))
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	if width < 90 {
		body = lipgloss.JoinVertical(lipgloss.Left, left, right)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, progress, body, m.statusLine())
}

func (m watchModel) statusLine() string {
	switch {
	case m.err != nil && errors.Is(m.err, context.Canceled):
		return watchMutedStyle.Render("cancelled")
	case m.err != nil:
		return watchErrorStyle.Render("error: " + m.err.Error())
	case m.done && m.result != nil && m.result.report != nil:
		r := m.result.report
		style := watchOKStyle
		if r.MaxPlaying > 1 {
			style = watchErrorStyle
		}
		return style.Render(fmt.Sprintf("done: %d events, max %d playing, %d prefetched, persisted %s",
			len(r.Events), r.MaxPlaying, r.Prefetch.Cached, yesNo(m.result.persisted)))
	case m.done:
		return watchOKStyle.Render("done")
	default:
		return watchMutedStyle.Render("running...")
	}
}

func renderTilePanel(snap session.Snapshot) string {
	lines := []string{watchTitleStyle.Render("Tiles")}
	for _, tile := range snap.Tiles {
		marker := " "
		if tile.Active {
			marker = ">"
		}
		line := fmt.Sprintf("%s %-6s %-4s %-8s %6dms", marker, tile.VideoID, tile.PostID, tile.Status, tile.PositionMs)
		if tile.Reason != "" {
			line += " " + tile.Reason
		}
		if tile.Holder {
			line = watchHolderRow.Render(line)
		}
		lines = append(lines, line)
	}
	if len(snap.Tiles) == 0 {
		lines = append(lines, watchMutedStyle.Render("no tiles mounted"))
	}
	return strings.Join(lines, "\n")
}

func renderStatsPanel(step simulate.StepResult) string {
	s := step.Session
	lines := []string{
		watchTitleStyle.Render("Session"),
		fmt.Sprintf("clock     %s", step.Elapsed),
		fmt.Sprintf("position  post %d video %d", s.Position.Post, s.Position.Video),
		fmt.Sprintf("holder    %s", dash(s.Holder)),
		fmt.Sprintf("prefetch  %d cached, %d queued, %d in flight, %d failed",
			s.Prefetch.Cached, s.Prefetch.Queued, s.Prefetch.InFlight, s.Prefetch.Failed),
	}
	for _, w := range step.Warnings {
		lines = append(lines, watchErrorStyle.Render("warning: "+w))
	}
	return strings.Join(lines, "\n")
}

func historyLine(step simulate.StepResult) string {
	return fmt.Sprintf("%3d %-18s %s", step.Index, humanLabel(string(step.Step.Action)), describeStep(step.Step))
}
