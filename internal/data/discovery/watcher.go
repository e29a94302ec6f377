package discovery

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/evetools/fleetmeter/internal/util"
)

// DirEvent signals that a gamelog appeared or changed in the watched
// directory, prompting the selection layer to rescan. It feeds discovery
// only, never the ingest path (which polls by tick).
type DirEvent struct {
	Path      string
	Operation string
}

// DirWatcher watches a gamelog directory for newly created log files,
// e.g. a second client logging in mid-session.
type DirWatcher struct {
	watcher *fsnotify.Watcher
	events  chan DirEvent
}

func NewDirWatcher(dir string) (*DirWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	dw := &DirWatcher{
		watcher: watcher,
		events:  make(chan DirEvent, 64),
	}
	go dw.run()
	return dw, nil
}

func (dw *DirWatcher) run() {
	for {
		select {
		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case dw.events <- DirEvent{Path: event.Name, Operation: event.Op.String()}:
			default:
				// Consumer is behind; a pending rescan covers this event too.
			}
		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			util.LogError("Gamelog directory watch error: " + err.Error())
		}
	}
}

func (dw *DirWatcher) Events() <-chan DirEvent {
	return dw.events
}

func (dw *DirWatcher) Close() error {
	return dw.watcher.Close()
}
