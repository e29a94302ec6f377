package classifier

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/evetools/fleetmeter/internal/core/constants"
	"github.com/evetools/fleetmeter/internal/core/model"
)

const (
	listenerPrefix = "Listener:"
	sessionPrefix  = "Session Started:"

	combatTag = "(combat)"
	notifyTag = "(notify)"
)

var markupRe = regexp.MustCompile(`<[^>]+>`)

// qualities are the known hit-quality suffixes popped from the line tail.
// Keys are lower case.
var qualities = map[string]struct{}{
	"penetrates":   {},
	"hits":         {},
	"smashes":      {},
	"wrecks":       {},
	"grazes":       {},
	"glances off":  {},
	"lightly hits": {},
}

// Stats counts classification outcomes for one source. Rejected covers
// combat-tagged lines that could not be parsed unambiguously; such lines
// are dropped, never guessed at. AnchorPending counts combat lines seen
// before a session anchor was resolved.
type Stats struct {
	Accepted      uint64
	Rejected      uint64
	AnchorPending uint64
}

// Classifier turns raw gamelog lines of a single source into CombatEvents.
//
// The anchor is tracked explicitly: until a "Session Started:" header has
// been seen (in-stream or injected via SetAnchor), combat lines are
// rejected and counted rather than silently anchored to their own
// timestamp. Classification itself is a pure function of (line, anchor,
// listener); a Classifier instance is not safe for concurrent use, but
// independent instances are.
type Classifier struct {
	listener  string
	anchor    time.Time
	anchorSet bool
	stats     Stats
}

func New(listener string) *Classifier {
	return &Classifier{listener: listener}
}

// SetAnchor resolves the session anchor, normally from the file header
// before tailing starts.
func (c *Classifier) SetAnchor(t time.Time) {
	c.anchor = t
	c.anchorSet = true
}

// AnchorResolved reports whether a session anchor is known.
func (c *Classifier) AnchorResolved() bool {
	return c.anchorSet
}

// Anchor returns the resolved anchor instant.
func (c *Classifier) Anchor() (time.Time, bool) {
	return c.anchor, c.anchorSet
}

// Listener returns the owning character name, which may have been learned
// from a header line.
func (c *Classifier) Listener() string {
	return c.listener
}

func (c *Classifier) Stats() Stats {
	return c.stats
}

// Classify parses one raw line. Non-combat lines (chatter, headers, UI
// noise) return ok=false silently; malformed combat lines are rejected
// and counted. Re-classifying the same line always yields the same result.
func (c *Classifier) Classify(line string) (model.CombatEvent, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return model.CombatEvent{}, false
	}

	if rest, ok := strings.CutPrefix(trimmed, listenerPrefix); ok {
		if c.listener == "" {
			c.listener = strings.TrimSpace(rest)
		}
		return model.CombatEvent{}, false
	}
	if rest, ok := strings.CutPrefix(trimmed, sessionPrefix); ok {
		if t, err := time.Parse(constants.TimestampLayout, strings.TrimSpace(rest)); err == nil {
			c.SetAnchor(t)
		}
		return model.CombatEvent{}, false
	}

	ts, rest, ok := extractTimestamp(trimmed)
	if !ok {
		return model.CombatEvent{}, false
	}

	var notify bool
	switch {
	case strings.Contains(rest, combatTag):
		rest = rest[strings.Index(rest, combatTag)+len(combatTag):]
	case strings.Contains(rest, notifyTag):
		rest = rest[strings.Index(rest, notifyTag)+len(notifyTag):]
		notify = true
	default:
		return model.CombatEvent{}, false
	}

	if !c.anchorSet {
		c.stats.AnchorPending++
		return model.CombatEvent{}, false
	}
	offset := ts.Sub(c.anchor)
	if offset < 0 {
		c.stats.Rejected++
		return model.CombatEvent{}, false
	}

	cleaned := stripMarkup(rest)
	if notify {
		ev, ok := c.classifyNotify(cleaned, offset)
		if ok {
			c.stats.Accepted++
		}
		return ev, ok
	}

	ev, ok := c.classifyCombat(cleaned, offset)
	if ok {
		c.stats.Accepted++
	} else {
		c.stats.Rejected++
	}
	return ev, ok
}

func (c *Classifier) classifyCombat(cleaned string, offset time.Duration) (model.CombatEvent, bool) {
	lower := strings.ToLower(cleaned)

	switch {
	case strings.Contains(lower, "remote armor repaired"),
		strings.Contains(lower, "remote shield boosted"),
		strings.Contains(lower, "remote hull repaired"):
		return c.parsePhrased(cleaned, offset, model.ActionRepair, model.DrainNone,
			[]string{"remote armor repaired ", "remote shield boosted ", "remote hull repaired "})
	case strings.Contains(lower, "remote capacitor transmitted"):
		return c.parsePhrased(cleaned, offset, model.ActionCapacitorTransfer, model.DrainNone,
			[]string{"remote capacitor transmitted "})
	case strings.Contains(lower, "energy neutralized"):
		return c.parseNeut(cleaned, offset)
	case strings.Contains(lower, "energy drained"):
		return c.parseNosferatu(cleaned, offset)
	default:
		return c.parseDamage(cleaned, offset)
	}
}

// classifyNotify handles magnitude-less notification pseudo-events, such
// as a module failing to activate on an empty capacitor. They are surfaced
// for diagnostics and alerting but excluded from rate math.
func (c *Classifier) classifyNotify(cleaned string, offset time.Duration) (model.CombatEvent, bool) {
	lower := strings.ToLower(cleaned)
	if !strings.Contains(lower, "capacitor is empty") &&
		!strings.Contains(lower, "insufficient capacitor") {
		return model.CombatEvent{}, false
	}
	return model.CombatEvent{
		Timestamp:  offset,
		Source:     c.listener,
		Target:     c.listener,
		Kind:       model.ActionEnergyDrain,
		Drain:      model.DrainNone,
		Incoming:   true,
		NotifyOnly: true,
		Character:  c.listener,
	}, true
}

// parseDamage handles plain weapon hits:
//
//	523 to Alpha - Laser - Penetrates        (outgoing)
//	44 from Beta Turret - Missile - Hits     (incoming)
func (c *Classifier) parseDamage(cleaned string, offset time.Duration) (model.CombatEvent, bool) {
	magnitude, rem, ok := splitMagnitude(cleaned)
	if !ok {
		return model.CombatEvent{}, false
	}

	var incoming bool
	switch {
	case hasPrefixFold(rem, "to "):
		rem = rem[len("to "):]
	case hasPrefixFold(rem, "against "):
		rem = rem[len("against "):]
	case hasPrefixFold(rem, "from "):
		rem = rem[len("from "):]
		incoming = true
	default:
		return model.CombatEvent{}, false
	}

	entity, weapon, quality, ok := splitTail(rem)
	if !ok {
		return model.CombatEvent{}, false
	}

	ev := model.CombatEvent{
		Timestamp: offset,
		Weapon:    weapon,
		Quality:   quality,
		Kind:      model.ActionDamage,
		Incoming:  incoming,
		Magnitude: magnitude,
		Character: c.listener,
	}
	if incoming {
		ev.Source, ev.Target = entity, c.listener
	} else {
		ev.Source, ev.Target = c.listener, entity
	}
	return ev, true
}

// parsePhrased handles repairs and capacitor transfers:
//
//	96 remote armor repaired to Retribution - Small Remote Armor Repairer II
//	120 GJ remote capacitor transmitted to Guardian - Remote Capacitor Transmitter II
//	340 remote shield boosted by Basilisk - Large Remote Shield Booster II
func (c *Classifier) parsePhrased(cleaned string, offset time.Duration, kind model.ActionKind, drain model.DrainMode, phrases []string) (model.CombatEvent, bool) {
	magnitude, rem, ok := splitMagnitude(cleaned)
	if !ok {
		return model.CombatEvent{}, false
	}
	rem = strings.TrimPrefix(rem, "GJ ")

	lowerRem := strings.ToLower(rem)
	matched := false
	for _, phrase := range phrases {
		if idx := strings.Index(lowerRem, phrase); idx >= 0 {
			rem = strings.TrimSpace(rem[idx+len(phrase):])
			matched = true
			break
		}
	}
	if !matched {
		return model.CombatEvent{}, false
	}

	var incoming bool
	switch {
	case hasPrefixFold(rem, "to "):
		rem = rem[len("to "):]
	case hasPrefixFold(rem, "by "):
		rem = rem[len("by "):]
		incoming = true
	case hasPrefixFold(rem, "from "):
		rem = rem[len("from "):]
		incoming = true
	default:
		return model.CombatEvent{}, false
	}

	entity, weapon, quality, ok := splitTail(rem)
	if !ok {
		return model.CombatEvent{}, false
	}

	ev := model.CombatEvent{
		Timestamp: offset,
		Weapon:    weapon,
		Quality:   quality,
		Kind:      kind,
		Drain:     drain,
		Incoming:  incoming,
		Magnitude: magnitude,
		Character: c.listener,
	}
	if incoming {
		ev.Source, ev.Target = entity, c.listener
	} else {
		ev.Source, ev.Target = c.listener, entity
	}
	return ev, true
}

// parseNeut handles energy neutralizers. The outgoing form names the
// target directly after the phrase; the incoming form uses from/by:
//
//	322 GJ energy neutralized Reverence - Heavy Energy Neutralizer II
//	180 GJ energy neutralized from Blood Raider - Energy Neutralizer
func (c *Classifier) parseNeut(cleaned string, offset time.Duration) (model.CombatEvent, bool) {
	magnitude, rem, ok := splitMagnitude(cleaned)
	if !ok {
		return model.CombatEvent{}, false
	}
	rem = strings.TrimPrefix(rem, "GJ ")

	lowerRem := strings.ToLower(rem)
	idx := strings.Index(lowerRem, "energy neutralized")
	if idx < 0 {
		return model.CombatEvent{}, false
	}
	rem = strings.TrimSpace(rem[idx+len("energy neutralized"):])

	incoming := false
	switch {
	case hasPrefixFold(rem, "from "):
		rem = rem[len("from "):]
		incoming = true
	case hasPrefixFold(rem, "by "):
		rem = rem[len("by "):]
		incoming = true
	}

	entity, weapon, quality, ok := splitTail(rem)
	if !ok {
		return model.CombatEvent{}, false
	}

	ev := model.CombatEvent{
		Timestamp: offset,
		Weapon:    weapon,
		Quality:   quality,
		Kind:      model.ActionEnergyDrain,
		Drain:     model.DrainNeutralizer,
		Incoming:  incoming,
		Magnitude: magnitude,
		Character: c.listener,
	}
	if incoming {
		ev.Source, ev.Target = entity, c.listener
	} else {
		ev.Source, ev.Target = c.listener, entity
	}
	return ev, true
}

// parseNosferatu handles energy drains. The sign carries the direction:
// a leading "+" means the listener gained energy (outgoing drain, entity
// after "from"), a leading "-" means the listener lost energy (incoming,
// entity after "to"):
//
//	+95 GJ energy drained from Sansha Battletower - Small Nosferatu II
//	-120 GJ energy drained to Ashimmu - Medium Nosferatu
func (c *Classifier) parseNosferatu(cleaned string, offset time.Duration) (model.CombatEvent, bool) {
	trimmed := strings.TrimSpace(cleaned)
	sign := byte(0)
	if len(trimmed) > 0 && (trimmed[0] == '+' || trimmed[0] == '-') {
		sign = trimmed[0]
	}

	magnitude, rem, ok := splitMagnitude(cleaned)
	if !ok {
		return model.CombatEvent{}, false
	}
	rem = strings.TrimPrefix(rem, "GJ ")

	lowerRem := strings.ToLower(rem)
	idx := strings.Index(lowerRem, "energy drained")
	if idx < 0 {
		return model.CombatEvent{}, false
	}
	rem = strings.TrimSpace(rem[idx+len("energy drained"):])

	var incoming bool
	switch {
	case hasPrefixFold(rem, "from "):
		rem = rem[len("from "):]
		incoming = sign == '-'
	case hasPrefixFold(rem, "to "):
		rem = rem[len("to "):]
		incoming = sign != '+'
	default:
		return model.CombatEvent{}, false
	}

	entity, weapon, quality, ok := splitTail(rem)
	if !ok {
		return model.CombatEvent{}, false
	}

	ev := model.CombatEvent{
		Timestamp: offset,
		Weapon:    weapon,
		Quality:   quality,
		Kind:      model.ActionEnergyDrain,
		Drain:     model.DrainNosferatu,
		Incoming:  incoming,
		Magnitude: magnitude,
		Character: c.listener,
	}
	if incoming {
		ev.Source, ev.Target = entity, c.listener
	} else {
		ev.Source, ev.Target = c.listener, entity
	}
	return ev, true
}

// extractTimestamp parses the leading "[ 2025.11.15 07:14:31 ]" section
// and returns the remainder of the line.
func extractTimestamp(line string) (time.Time, string, bool) {
	if !strings.HasPrefix(line, "[") {
		return time.Time{}, "", false
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return time.Time{}, "", false
	}
	inner := strings.TrimSpace(line[1:end])
	ts, err := time.Parse(constants.TimestampLayout, inner)
	if err != nil {
		return time.Time{}, "", false
	}
	return ts, line[end+1:], true
}

// stripMarkup removes inline rich-text tags and collapses whitespace.
func stripMarkup(value string) string {
	cleaned := markupRe.ReplaceAllString(value, "")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	return strings.Join(strings.Fields(cleaned), " ")
}

// splitMagnitude pops the leading numeric token and converts it to
// centipoints. Negative magnitudes are folded to their absolute value;
// the sign is interpreted by the caller where it matters.
func splitMagnitude(body string) (int64, string, bool) {
	trimmed := strings.TrimSpace(body)
	idx := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' })
	if idx < 0 {
		return 0, "", false
	}
	token := strings.TrimPrefix(trimmed[:idx], "+")
	token = strings.TrimPrefix(token, "-")
	value, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, "", false
	}
	return int64(math.Round(value * constants.MagnitudeScale)), strings.TrimSpace(trimmed[idx:]), true
}

// splitTail parses "<entity>[ - <weapon>[ - <quality>]]" from the right:
// a known quality suffix is popped first, then the weapon, and whatever
// remains is the entity. Parsing tail-first keeps entity names containing
// " - " intact.
func splitTail(text string) (entity, weapon, quality string, ok bool) {
	parts := strings.Split(strings.TrimSpace(text), " - ")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	if len(parts) > 1 {
		last := strings.ToLower(parts[len(parts)-1])
		if _, known := qualities[last]; known {
			quality = parts[len(parts)-1]
			parts = parts[:len(parts)-1]
		}
	}
	if len(parts) > 1 {
		weapon = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}

	entity = strings.TrimSpace(strings.Join(parts, " - "))
	if entity == "" {
		return "", "", "", false
	}
	return entity, weapon, quality, true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
