package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/franksops/gridq/manager"
	"github.com/franksops/gridq/store"
	"github.com/franksops/gridq/ui"
)

const (
	pollInterval = 250 * time.Millisecond
	recentRows   = 15
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var (
		tuiEnabled bool
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute queued transfers",
		Long: `Execute queued transfers one at a time, oldest first. Transfers left
running by an earlier interrupted run resume after their last completed file.

SIGUSR1 pauses the queue once the current transfer ends, SIGUSR2 resumes it.
SIGINT and SIGTERM stop immediately; the interrupted transfer resumes on the
next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("tui") {
				tuiEnabled = a.cfg.UI.TUI
			}
			return runQueue(cmd.Context(), a, tuiEnabled, watch)
		},
	}
	cmd.Flags().BoolVar(&tuiEnabled, "tui", false, "Show the interactive dashboard")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running when the queue is empty")
	return cmd
}

func runQueue(parent context.Context, a *app, tuiEnabled, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Handle pause/resume signals
	ctl := make(chan os.Signal, 1)
	signal.Notify(ctl, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ctl)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-ctl:
				if sig == syscall.SIGUSR1 {
					a.mgr.Pause()
				} else {
					a.mgr.Resume()
				}
			}
		}
	}()

	tracker := ui.NewTracker()
	a.mgr.AddListener(tracker)
	if !tuiEnabled {
		a.mgr.AddListener(ui.NewBarListener(os.Stdout))
	}
	a.mgr.Start(ctx)

	if tuiEnabled {
		if err := runDashboard(ctx, a, tracker, watch); err != nil {
			return err
		}
	} else {
		waitDrained(ctx, a.mgr, watch)
	}

	// Interrupts the record in flight, if any.
	stop()
	a.mgr.Close()

	st := tracker.Snapshot(a.mgr, 0)
	fmt.Printf("\n%d transfers complete, %d failed, %d queued\n", st.Completed, st.Failed, st.Queued)
	if a.mgr.ErrorStatus() == manager.Error {
		return errors.New("some transfers failed, see 'gridq history'")
	}
	return nil
}

func runDashboard(ctx context.Context, a *app, tracker *ui.Tracker, watch bool) error {
	model := ui.NewTUIModel(tracker.Snapshot(a.mgr, recentRows), a.mgr)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Start TUI update loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := tracker.Snapshot(a.mgr, recentRows)
				st.Done = !watch && drained(a.mgr)
				program.Send(ui.TUIUpdateMsg{State: st})
				if st.Done {
					return
				}
			}
		}
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard failed: %w", err)
	}
	return nil
}

func waitDrained(ctx context.Context, mgr *manager.Manager, watch bool) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !watch && drained(mgr) {
				return
			}
		}
	}
}

// drained reports whether nothing is queued and nothing runs. The queue is
// read before the worker status: a record claimed in between shows up as
// PROCESSING.
func drained(mgr *manager.Manager) bool {
	queued, err := mgr.RecordsInState(store.StateEnqueued)
	if err != nil || len(queued) > 0 {
		return false
	}
	return mgr.RunningStatus() != manager.Processing
}
