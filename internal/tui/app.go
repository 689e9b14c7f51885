// Package tui provides the terminal UI shown while an itinerary is generated.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fentz26/tripassist/internal/models"
)

// WaitFunc blocks until the session's result is known.
type WaitFunc func(ctx context.Context) (models.Result, error)

// App waits for one session and then shows its itinerary.
type App struct {
	sessionID string
	wait      WaitFunc
	ctx       context.Context
	cancel    context.CancelFunc

	spinner  spinner.Model
	viewport viewport.Model
	width    int
	height   int

	started time.Time
	elapsed time.Duration
	now     func() time.Time

	done   bool
	result models.Result
	err    error
}

// New creates the waiting screen for sessionID.
func New(sessionID string, wait WaitFunc) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	return &App{
		sessionID: sessionID,
		wait:      wait,
		ctx:       context.Background(),
		cancel:    func() {},
		spinner:   sp,
		viewport:  viewport.New(80, 20),
		now:       time.Now,
	}
}

// Run starts the TUI and returns the delivered result. Quitting before a result
// arrives returns context.Canceled.
func (a *App) Run(ctx context.Context) (models.Result, error) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	p := tea.NewProgram(a, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return models.Result{}, err
	}
	if !a.done {
		return models.Result{}, context.Canceled
	}
	return a.result, a.err
}

type resultMsg struct {
	result models.Result
	err    error
}

type tickMsg time.Time

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	a.started = a.now()
	return tea.Batch(a.spinner.Tick, a.waitCmd(), tickCmd())
}

func (a *App) waitCmd() tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		r, err := a.wait(ctx)
		return resultMsg{result: r, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			a.cancel()
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.viewport.Width = msg.Width
		a.viewport.Height = max(1, msg.Height-2)

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tickMsg:
		if a.done {
			return a, nil
		}
		a.elapsed = a.now().Sub(a.started)
		return a, tickCmd()

	case resultMsg:
		a.done = true
		a.result = msg.result
		a.err = msg.err
		a.elapsed = a.now().Sub(a.started)
		a.viewport.SetContent(a.renderResult())
		a.viewport.GotoTop()
		return a, nil
	}

	if a.done {
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) renderResult() string {
	// A failed result carries its own message; only show err when there is no result.
	if a.err != nil && a.result.Status == "" {
		return errorStyle.Render("✗ " + a.err.Error())
	}
	return RenderResult(a.result)
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	if !a.done {
		b.WriteString("\n  " + a.spinner.View() + " Planning your trip…")
		b.WriteString(labelStyle.Render(fmt.Sprintf(" %s", a.elapsed.Truncate(time.Second))))
		b.WriteString("\n\n  " + labelStyle.Render("session "+a.sessionID))
		b.WriteString("\n\n  " + helpStyle.Render("q: cancel"))
		return b.String()
	}

	b.WriteString(a.viewport.View())
	b.WriteString("\n" + helpStyle.Render(fmt.Sprintf("done in %s · ↑/↓ scroll · q: quit", a.elapsed.Truncate(time.Second))))
	return b.String()
}
