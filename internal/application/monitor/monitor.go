package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/evetools/fleetmeter/internal/config"
	"github.com/evetools/fleetmeter/internal/core/aggregator"
	"github.com/evetools/fleetmeter/internal/core/coordinator"
	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/core/store"
	"github.com/evetools/fleetmeter/internal/data/discovery"
	"github.com/evetools/fleetmeter/internal/presentation/formatter"
	"github.com/evetools/fleetmeter/internal/util"
)

// Monitor wires live mode together: discovery picks each character's
// newest log, the coordinator tails them, and samples render to the
// terminal until interrupted.
type Monitor struct {
	cfg     *config.Config
	jsonOut bool
}

func NewMonitor(cfg *config.Config, jsonOut bool) *Monitor {
	return &Monitor{cfg: cfg, jsonOut: jsonOut}
}

// Run blocks until ctx is cancelled or the user quits.
func (m *Monitor) Run(ctx context.Context) error {
	selections, err := m.scan()
	if err != nil {
		return err
	}
	if len(selections) == 0 {
		return fmt.Errorf("no gamelogs with a session header found in %s", m.cfg.GamelogDir)
	}

	st := store.New()
	agg := aggregator.New(st, m.cfg.Window())
	coord := coordinator.New(st, agg, m.cfg.Tick())
	coord.SetSelection(selections)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go coord.Run(ctx)

	watcher, err := discovery.NewDirWatcher(m.cfg.GamelogDir)
	if err != nil {
		util.LogWarnf("Directory watch unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	var keys <-chan Key
	if !m.jsonOut {
		kb, err := newKeyboard()
		if err != nil {
			util.LogWarnf("Keyboard unavailable, running non-interactive: %v", err)
		} else {
			defer kb.Close()
			keys = kb.Keys()
		}
	}

	var dirEvents <-chan discovery.DirEvent
	if watcher != nil {
		dirEvents = watcher.Events()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sample := <-coord.Samples():
			m.render(sample, coord.Statuses())
		case <-dirEvents:
			// A new log appeared, e.g. another client logged in. Rescan and
			// let the coordinator reconcile on its next tick.
			if sel, err := m.scan(); err == nil && len(sel) > 0 {
				coord.SetSelection(sel)
			}
		case key := <-keys:
			switch key {
			case KeyQuit:
				return nil
			case KeyJSONToggle:
				m.jsonOut = !m.jsonOut
			}
		}
	}
}

// scan selects the newest log per character in the gamelog directory.
func (m *Monitor) scan() ([]model.Selection, error) {
	logs, err := discovery.ScanLatest(m.cfg.GamelogDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", m.cfg.GamelogDir, err)
	}
	selections := make([]model.Selection, 0, len(logs))
	for _, lg := range logs {
		selections = append(selections, model.Selection{
			Character: lg.Character,
			Path:      lg.Path,
			Enabled:   true,
		})
	}
	return selections, nil
}

func (m *Monitor) render(sample model.WindowSample, statuses []model.SourceStatus) {
	if m.jsonOut {
		line, err := formatter.JSON(sample, statuses)
		if err != nil {
			util.LogErrorf("Sample serialization failed: %v", err)
			return
		}
		fmt.Println(line)
		return
	}

	out := formatter.Table(sample) + "\n" + formatter.StatusLines(statuses)
	// Home the cursor and clear so the table repaints in place; raw mode
	// needs explicit carriage returns.
	fmt.Print("\033[H\033[2J" + strings.ReplaceAll(out, "\n", "\r\n"))
}
