package discovery

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/evetools/fleetmeter/internal/core/constants"
	"github.com/evetools/fleetmeter/internal/util"
)

// LogHeader is the identity of one discovered gamelog file. The owning
// character always comes from the "Listener:" header field, never from
// the filename.
type LogHeader struct {
	Character    string    `json:"character"`
	Path         string    `json:"path"`
	SessionStart time.Time `json:"sessionStart"`
	// AnchorKnown is false when the header carried a Listener but no
	// parseable "Session Started:" line.
	AnchorKnown  bool      `json:"anchorKnown"`
	LastModified time.Time `json:"lastModified"`
	FileSize     int64     `json:"fileSize"`
}

// ExtractHeader reads the leading lines of a log file looking for the
// Listener and Session Started fields. Returns ok=false when no Listener
// is present (not a gamelog).
func ExtractHeader(path string) (LogHeader, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return LogHeader{}, false, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return LogHeader{}, false, err
	}

	header := LogHeader{
		Path:         path,
		LastModified: info.ModTime(),
		FileSize:     info.Size(),
	}

	scanner := bufio.NewScanner(newHeaderReader(file))
	for i := 0; i < constants.HeaderScanLines && scanner.Scan(); i++ {
		trimmed := strings.TrimSpace(scanner.Text())

		if rest, ok := strings.CutPrefix(trimmed, "Listener:"); ok {
			header.Character = strings.TrimSpace(rest)
		}
		if rest, ok := strings.CutPrefix(trimmed, "Session Started:"); ok {
			if ts, err := time.Parse(constants.TimestampLayout, strings.TrimSpace(rest)); err == nil {
				header.SessionStart = ts
				header.AnchorKnown = true
			}
		}
		if header.Character != "" && header.AnchorKnown {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return LogHeader{}, false, err
	}
	if header.Character == "" {
		return LogHeader{}, false, nil
	}
	return header, true, nil
}

// ScanAll lists every gamelog in dir with a readable header, newest
// session first.
func ScanAll(dir string) ([]LogHeader, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan gamelog dir: %w", err)
	}

	var logs []LogHeader
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".txt") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		header, ok, err := ExtractHeader(path)
		if err != nil {
			util.LogDebugf("Skip unreadable log %s: %v", path, err)
			continue
		}
		if ok {
			logs = append(logs, header)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].SessionStart.After(logs[j].SessionStart)
	})
	return logs, nil
}

// ScanLatest returns the most recently written log per character, which
// is what live tracking wants: one active log per client window.
func ScanLatest(dir string) ([]LogHeader, error) {
	all, err := ScanAll(dir)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]LogHeader)
	for _, header := range all {
		existing, ok := latest[header.Character]
		if !ok || header.LastModified.After(existing.LastModified) {
			latest[header.Character] = header
		}
	}

	logs := make([]LogHeader, 0, len(latest))
	for _, header := range latest {
		logs = append(logs, header)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].LastModified.After(logs[j].LastModified)
	})
	return logs, nil
}

// GroupByCharacter groups a scan result per character, newest session
// first inside each group. Used by the replay selection UI.
func GroupByCharacter(logs []LogHeader) map[string][]LogHeader {
	groups := make(map[string][]LogHeader)
	for _, log := range logs {
		groups[log.Character] = append(groups[log.Character], log)
	}
	for _, list := range groups {
		sort.Slice(list, func(i, j int) bool {
			return list[i].SessionStart.After(list[j].SessionStart)
		})
	}
	return groups
}
