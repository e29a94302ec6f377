package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/fleetmeter/internal/testing/fixtures"
)

var sessionStart = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func TestExtractHeader(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "log.txt")

	header, ok, err := ExtractHeader(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Pilot One", header.Character)
	assert.True(t, header.AnchorKnown)
	assert.True(t, header.SessionStart.Equal(sessionStart))
}

func TestExtractHeaderUTF16(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot Two", sessionStart).WriteUTF16(t, dir, "log.txt")

	header, ok, err := ExtractHeader(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Pilot Two", header.Character)
	assert.True(t, header.AnchorKnown)
}

func TestExtractHeaderMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just some text\r\nno header here\r\n"), 0644))

	_, ok, err := ExtractHeader(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScanAll(t *testing.T) {
	dir := t.TempDir()
	fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "a.txt")
	fixtures.NewLog("Pilot Two", sessionStart.Add(time.Hour)).Write(t, dir, "b.txt")
	fixtures.NewLog("Pilot One", sessionStart.Add(2*time.Hour)).Write(t, dir, "c.txt")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.txt"), []byte("not a log\r\n"), 0644))

	logs, err := ScanAll(dir)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	// Newest session first.
	assert.Equal(t, "Pilot One", logs[0].Character)
	assert.True(t, logs[0].SessionStart.After(logs[1].SessionStart))
}

func TestScanLatestPicksOnePerCharacter(t *testing.T) {
	dir := t.TempDir()
	oldPath := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "old.txt")
	newPath := fixtures.NewLog("Pilot One", sessionStart.Add(time.Hour)).Write(t, dir, "new.txt")
	fixtures.NewLog("Pilot Two", sessionStart).Write(t, dir, "other.txt")

	// Make mtimes deterministic.
	require.NoError(t, os.Chtimes(oldPath, time.Now().Add(-2*time.Hour), time.Now().Add(-2*time.Hour)))
	require.NoError(t, os.Chtimes(newPath, time.Now(), time.Now()))

	logs, err := ScanLatest(dir)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	byChar := GroupByCharacter(logs)
	require.Len(t, byChar["Pilot One"], 1)
	assert.Equal(t, newPath, byChar["Pilot One"][0].Path)
}
