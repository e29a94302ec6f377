// Package fixtures builds synthetic gamelog files for tests.
package fixtures

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/evetools/fleetmeter/internal/core/constants"
)

// LogBuilder assembles a gamelog with a realistic header block and
// timestamped body lines.
type LogBuilder struct {
	character string
	start     time.Time
	lines     []string
}

func NewLog(character string, start time.Time) *LogBuilder {
	b := &LogBuilder{character: character, start: start}
	b.lines = append(b.lines,
		"------------------------------------------------------------",
		"  Gamelog",
		"  Listener: "+character,
		"  Session Started: "+start.Format(constants.TimestampLayout),
		"------------------------------------------------------------",
	)
	return b
}

// NewHeaderlessLog omits the header block, producing a file that cannot
// resolve a session anchor from its leading lines.
func NewHeaderlessLog(character string) *LogBuilder {
	return &LogBuilder{character: character}
}

// Combat appends a "(combat)" line at start+offset with the given body.
func (b *LogBuilder) Combat(offset time.Duration, body string) *LogBuilder {
	return b.Raw(b.stamp(offset) + " (combat) " + body)
}

// Notify appends a "(notify)" line at start+offset.
func (b *LogBuilder) Notify(offset time.Duration, body string) *LogBuilder {
	return b.Raw(b.stamp(offset) + " (notify) " + body)
}

// Raw appends a verbatim line.
func (b *LogBuilder) Raw(line string) *LogBuilder {
	b.lines = append(b.lines, line)
	return b
}

// SessionHeader appends an in-stream header pair, for logs whose anchor
// arrives mid-file.
func (b *LogBuilder) SessionHeader(start time.Time) *LogBuilder {
	b.start = start
	b.lines = append(b.lines,
		"  Listener: "+b.character,
		"  Session Started: "+start.Format(constants.TimestampLayout),
	)
	return b
}

func (b *LogBuilder) stamp(offset time.Duration) string {
	return "[ " + b.start.Add(offset).Format(constants.TimestampLayout) + " ]"
}

// Lines returns the accumulated raw lines.
func (b *LogBuilder) Lines() []string {
	return append([]string(nil), b.lines...)
}

// Content renders the log body with CRLF endings, as the game writes it.
func (b *LogBuilder) Content() string {
	return strings.Join(b.lines, "\r\n") + "\r\n"
}

// Write stores the log as UTF-8 under dir and returns its path.
func (b *LogBuilder) Write(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(b.Content()), 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
	return path
}

// WriteUTF16 stores the log as UTF-16LE with BOM, the game's native
// encoding, and returns its path.
func (b *LogBuilder) WriteUTF16(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, EncodeUTF16(b.Content()), 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
	return path
}

// EncodeUTF16 converts text to UTF-16LE prefixed with a BOM.
func EncodeUTF16(text string) []byte {
	units := utf16.Encode([]rune(text))
	out := make([]byte, 0, 2+len(units)*2)
	out = append(out, 0xFF, 0xFE)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	return out
}

// Damage renders an outgoing damage body like the client writes it,
// markup included.
func Damage(amount int, target, weapon, quality string) string {
	return fmt.Sprintf("<color=0xff00ffff><b>%d</b> <color=0x77ffffff><font size=10>to</font> <b><color=0xffffffff>%s</b><color=0x77ffffff><font size=10> - %s - %s",
		amount, target, weapon, quality)
}

// DamageFrom renders an incoming damage body.
func DamageFrom(amount int, source, weapon, quality string) string {
	return fmt.Sprintf("<color=0xffcc0000><b>%d</b> <color=0x77ffffff><font size=10>from</font> <b><color=0xffffffff>%s</b><color=0x77ffffff><font size=10> - %s - %s",
		amount, source, weapon, quality)
}
