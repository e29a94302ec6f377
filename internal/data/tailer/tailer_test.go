package tailer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/fleetmeter/internal/testing/fixtures"
)

func appendFile(t *testing.T, path string, data []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Write(data)
	require.NoError(t, err)
}

func TestOpenStartsAtEnd(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot One", time.Now()).
		Combat(time.Second, "10 to Alpha - Laser - Hits").
		Write(t, dir, "log.txt")

	tl, err := Open(path)
	require.NoError(t, err)
	defer tl.Close()

	lines, err := tl.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines, "pre-existing content must not be read")

	appendFile(t, path, []byte("appended line\r\n"))
	lines, err = tl.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"appended line"}, lines)
}

func TestPartialLineHeldBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	tl, err := Open(path)
	require.NoError(t, err)
	defer tl.Close()

	appendFile(t, path, []byte("half a li"))
	lines, err := tl.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	appendFile(t, path, []byte("ne\r\nsecond\r\n"))
	lines, err = tl.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"half a line", "second"}, lines)
}

func TestUTF16Detection(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot One", time.Now()).WriteUTF16(t, dir, "log.txt")

	tl, err := Open(path)
	require.NoError(t, err)
	defer tl.Close()
	assert.Equal(t, EncodingUTF16LE, tl.Encoding())

	appendFile(t, path, fixtures.EncodeUTF16("appended\r\n")[2:]) // strip BOM
	lines, err := tl.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"appended"}, lines)
}

func TestUTF16PartialLineHeldBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, fixtures.EncodeUTF16(""), 0644))

	tl, err := Open(path)
	require.NoError(t, err)
	defer tl.Close()
	require.Equal(t, EncodingUTF16LE, tl.Encoding())

	appendFile(t, path, fixtures.EncodeUTF16("half")[2:])
	lines, err := tl.ReadNewLines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	appendFile(t, path, fixtures.EncodeUTF16(" done\r\n")[2:])
	lines, err = tl.ReadNewLines()
	require.NoError(t, err)
	assert.Equal(t, []string{"half done"}, lines)
}

func TestReadAllLines(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	utf8Path := fixtures.NewLog("Pilot One", start).
		Combat(time.Second, "10 to Alpha - Laser - Hits").
		Write(t, dir, "utf8.txt")
	utf16Path := fixtures.NewLog("Pilot One", start).
		Combat(time.Second, "10 to Alpha - Laser - Hits").
		WriteUTF16(t, dir, "utf16.txt")

	utf8Lines, err := ReadAllLines(utf8Path)
	require.NoError(t, err)
	utf16Lines, err := ReadAllLines(utf16Path)
	require.NoError(t, err)

	require.NotEmpty(t, utf8Lines)
	assert.Equal(t, utf8Lines, utf16Lines, "encoding must not change content")
}
