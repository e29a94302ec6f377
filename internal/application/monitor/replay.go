package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evetools/fleetmeter/internal/config"
	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/core/replay"
	"github.com/evetools/fleetmeter/internal/presentation/formatter"
	"github.com/evetools/fleetmeter/internal/util"
)

// seekStride is the jump size of the arrow-key seek.
const seekStride = 10 * time.Second

// echoTail caps how many recent combat lines show under the table.
const echoTail = 8

// Replayer drives a recorded session through the same aggregation path
// as live mode, with transport controls on the keyboard: space
// pauses, +/- change speed, arrows seek, '.' single-steps, q quits.
type Replayer struct {
	cfg     *config.Config
	paths   []string
	speed   float64
	jsonOut bool
}

func NewReplayer(cfg *config.Config, paths []string, speed float64, jsonOut bool) *Replayer {
	return &Replayer{cfg: cfg, paths: paths, speed: speed, jsonOut: jsonOut}
}

func (r *Replayer) Run(ctx context.Context) error {
	session, err := replay.LoadSession(r.paths)
	if err != nil {
		return err
	}
	util.LogInfof("Replay session %s: %d events, %d pilots",
		session.ID, len(session.Events), len(session.Characters))

	ctrl := replay.NewController(session, r.cfg.Window())
	if r.speed > 0 {
		ctrl.SetSpeed(r.speed)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ctrl.Run(ctx)
		close(done)
	}()
	defer ctrl.Stop()

	var keys <-chan Key
	if !r.jsonOut {
		kb, err := newKeyboard()
		if err != nil {
			util.LogWarnf("Keyboard unavailable, playback runs uncontrolled: %v", err)
		} else {
			defer kb.Close()
			keys = kb.Keys()
		}
	}

	var recent []replay.EchoLine
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line := <-ctrl.Echoes():
			recent = append(recent, line)
			if len(recent) > echoTail {
				recent = recent[len(recent)-echoTail:]
			}
		case sample := <-ctrl.Samples():
			r.render(sample, ctrl.Progress(), recent)
		case key := <-keys:
			switch key {
			case KeyQuit:
				return nil
			case KeySpace:
				ctrl.TogglePause()
			case KeyFaster:
				ctrl.SetSpeed(ctrl.Speed() * 2)
			case KeySlower:
				ctrl.SetSpeed(ctrl.Speed() / 2)
			case KeySeekBack:
				ctrl.SeekBy(-seekStride)
			case KeySeekForward:
				ctrl.SeekBy(seekStride)
			case KeyStep:
				ctrl.Step()
			case KeyJSONToggle:
				r.jsonOut = !r.jsonOut
			}
		}
	}
}

func (r *Replayer) render(sample model.WindowSample, progress model.ReplayProgress, recent []replay.EchoLine) {
	if r.jsonOut {
		line, err := formatter.JSON(sample, nil)
		if err != nil {
			util.LogErrorf("Sample serialization failed: %v", err)
			return
		}
		fmt.Println(line)
		return
	}

	var b strings.Builder
	b.WriteString(formatter.ProgressLine(progress))
	b.WriteString("\n\n")
	b.WriteString(formatter.Table(sample))
	if len(recent) > 0 {
		b.WriteString("\n")
		for _, line := range recent {
			fmt.Fprintf(&b, "%s  %s\n", formatter.ProgressOffset(line.Offset), line.Text)
		}
	}
	fmt.Print("\033[H\033[2J" + strings.ReplaceAll(b.String(), "\n", "\r\n"))
}
