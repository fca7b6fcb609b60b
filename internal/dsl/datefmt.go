// internal/dsl/datefmt.go
package dsl

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Date patterns in the letter syntax used by existing scenario files
 * ("yyyy-MM-dd'T'HH:mm:ss.SSSSSS'Z'").
 *
 * Supported letters (java.time meanings):
 *   y year         M/L month      d day          D day of year
 *   E weekday name u ISO weekday  e weekday, Sunday first
 *   w ISO week     H hour 0-23    k hour 1-24    h hour 1-12
 *   K hour 0-11    a AM/PM        m minute       s second
 *   S fraction     X/x/Z offset   z zone name
 *
 * Text between single quotes is literal; '' is a literal quote. Other
 * non-letter characters are literal as-is.
 *
 * Parsing is lenient about what the pattern omits: missing time fields
 * are zero and a missing offset means UTC. Year plus month and day, or
 * year plus day of year, are required. Weekday and week fields are
 * consumed but not cross-checked. A width-1 numeric field followed directly by other numeric
 * fields ("MMddHmmss") takes whatever digits the fields after it leave.
 */

// Standard patterns.
const (
	PatternFullDateOffset = "yyyy-MM-dd'T'HH:mm:ss.SSSSSSXXX"
	PatternFullDate       = "yyyy-MM-dd'T'HH:mm:ss.SSSSSS'Z'"
	PatternShortDate      = "yyyy-MM-dd"
	PatternISODate        = "yyyy-MM-dd'T'HH:mm:ss.SSS'Z'"
	PatternTASR           = "MMddHmmssSSSSS"
)

type dateToken struct {
	letter  byte // 0 for literal text
	width   int
	literal string
}

func (t dateToken) numeric() bool {
	switch t.letter {
	case 'y', 'd', 'D', 'H', 'h', 'k', 'K', 'm', 's', 'S', 'u', 'w':
		return true
	case 'M', 'L', 'e':
		return t.width <= 2
	}
	return false
}

// DateLayout is a compiled date pattern.
type DateLayout struct {
	pattern string
	tokens  []dateToken
}

// CompileDateLayout compiles a letter pattern.
func CompileDateLayout(pattern string) (*DateLayout, error) {
	var tokens []dateToken
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, dateToken{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\'':
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				lit.WriteByte('\'')
				i += 2
				continue
			}
			j := i + 1
			closed := false
			for j < len(pattern) {
				if pattern[j] == '\'' {
					if j+1 < len(pattern) && pattern[j+1] == '\'' {
						lit.WriteByte('\'')
						j += 2
						continue
					}
					closed = true
					break
				}
				lit.WriteByte(pattern[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("%w: unterminated quote in date pattern %q", types.ErrInvalidArgument, pattern)
			}
			i = j + 1
		case isLetter(c):
			if !strings.ContainsRune("yMLdDEueHhkKamsSwXxZz", rune(c)) {
				return nil, fmt.Errorf("%w: unsupported letter %q in date pattern %q", types.ErrInvalidArgument, c, pattern)
			}
			j := i
			for j < len(pattern) && pattern[j] == c {
				j++
			}
			flush()
			tokens = append(tokens, dateToken{letter: c, width: j - i})
			i = j
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return &DateLayout{pattern: pattern, tokens: tokens}, nil
}

func mustCompileDateLayout(pattern string) *DateLayout {
	l, err := CompileDateLayout(pattern)
	if err != nil {
		panic(err)
	}
	return l
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// String returns the source pattern.
func (l *DateLayout) String() string {
	return l.pattern
}

// Format renders t.
func (l *DateLayout) Format(t time.Time) string {
	var b strings.Builder
	for _, tok := range l.tokens {
		if tok.letter == 0 {
			b.WriteString(tok.literal)
			continue
		}
		switch tok.letter {
		case 'y':
			if tok.width == 2 {
				b.WriteString(pad(t.Year()%100, 2))
			} else {
				b.WriteString(pad(t.Year(), tok.width))
			}
		case 'M', 'L':
			switch {
			case tok.width >= 4:
				b.WriteString(t.Month().String())
			case tok.width == 3:
				b.WriteString(t.Month().String()[:3])
			default:
				b.WriteString(pad(int(t.Month()), tok.width))
			}
		case 'd':
			b.WriteString(pad(t.Day(), tok.width))
		case 'D':
			b.WriteString(pad(t.YearDay(), tok.width))
		case 'E':
			b.WriteString(weekdayText(t, tok.width))
		case 'e':
			if tok.width <= 2 {
				b.WriteString(pad(int(t.Weekday())+1, tok.width))
			} else {
				b.WriteString(weekdayText(t, tok.width))
			}
		case 'u':
			b.WriteString(pad(isoWeekday(t), tok.width))
		case 'w':
			_, week := t.ISOWeek()
			b.WriteString(pad(week, tok.width))
		case 'H':
			b.WriteString(pad(t.Hour(), tok.width))
		case 'k':
			h := t.Hour()
			if h == 0 {
				h = 24
			}
			b.WriteString(pad(h, tok.width))
		case 'K':
			b.WriteString(pad(t.Hour()%12, tok.width))
		case 'h':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			b.WriteString(pad(h, tok.width))
		case 'a':
			if t.Hour() < 12 {
				b.WriteString("AM")
			} else {
				b.WriteString("PM")
			}
		case 'm':
			b.WriteString(pad(t.Minute(), tok.width))
		case 's':
			b.WriteString(pad(t.Second(), tok.width))
		case 'S':
			frac := fmt.Sprintf("%09d", t.Nanosecond())
			if tok.width <= 9 {
				b.WriteString(frac[:tok.width])
			} else {
				b.WriteString(frac + strings.Repeat("0", tok.width-9))
			}
		case 'X', 'x', 'Z':
			_, off := t.Zone()
			b.WriteString(formatOffset(tok, off))
		case 'z':
			b.WriteString(zoneName(t))
		}
	}
	return b.String()
}

func weekdayText(t time.Time, width int) string {
	if width >= 4 {
		return t.Weekday().String()
	}
	return t.Weekday().String()[:3]
}

// isoWeekday numbers Monday 1 through Sunday 7.
func isoWeekday(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// zoneName returns the zone abbreviation, "UTC" for a nameless zero
// offset and the "+HH:MM" offset for other nameless zones.
func zoneName(t time.Time) string {
	name, off := t.Zone()
	switch {
	case name != "":
		return name
	case off == 0:
		return "UTC"
	default:
		return formatOffset(dateToken{letter: 'x', width: 3}, off)
	}
}

func pad(v, width int) string {
	s := strconv.Itoa(v)
	if v < 0 {
		return s
	}
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

func formatOffset(tok dateToken, off int) string {
	if off == 0 && tok.letter == 'X' {
		return "Z"
	}
	sign := "+"
	if off < 0 {
		sign = "-"
		off = -off
	}
	hh := pad(off/3600, 2)
	mm := pad(off%3600/60, 2)

	if tok.letter == 'Z' {
		return sign + hh + mm
	}
	switch tok.width {
	case 1:
		if mm == "00" {
			return sign + hh
		}
		return sign + hh + mm
	case 2:
		return sign + hh + mm
	default:
		return sign + hh + ":" + mm
	}
}

type parsedDate struct {
	year, month, day          int
	hour, hour12, minute, sec int
	nanos                     int
	yearDay                   int
	pm                        *bool
	offset                    *int
	haveYear, haveMon, haveDy bool
}

// Parse reads s according to the layout.
func (l *DateLayout) Parse(s string) (time.Time, error) {
	var p parsedDate
	p.hour12 = -1
	pos := 0

	fail := func(format string, args ...any) (time.Time, error) {
		return time.Time{}, fmt.Errorf("%w: cannot parse %q as %q: %s",
			types.ErrInvalidArgument, s, l.pattern, fmt.Sprintf(format, args...))
	}

	for i, tok := range l.tokens {
		if tok.letter == 0 {
			if !strings.HasPrefix(s[pos:], tok.literal) {
				return fail("expected %q at offset %d", tok.literal, pos)
			}
			pos += len(tok.literal)
			continue
		}

		if tok.numeric() {
			n := l.digitsFor(i, s[pos:])
			if n == 0 {
				return fail("expected digits for %q at offset %d", strings.Repeat(string(tok.letter), tok.width), pos)
			}
			digits := s[pos : pos+n]
			pos += n
			v, err := strconv.Atoi(digits)
			if err != nil {
				return fail("%v", err)
			}
			switch tok.letter {
			case 'y':
				if tok.width == 2 && n == 2 {
					v += 2000
				}
				p.year, p.haveYear = v, true
			case 'M', 'L':
				p.month, p.haveMon = v, true
			case 'd':
				p.day, p.haveDy = v, true
			case 'D':
				p.yearDay = v
			case 'H':
				p.hour = v
			case 'k':
				p.hour = v % 24
			case 'h', 'K':
				p.hour12 = v
			case 'm':
				p.minute = v
			case 's':
				p.sec = v
			case 'S':
				if n > 9 {
					digits = digits[:9]
				}
				digits += strings.Repeat("0", 9-len(digits))
				p.nanos, _ = strconv.Atoi(digits)
			}
			continue
		}

		rest := s[pos:]
		switch tok.letter {
		case 'M', 'L':
			m, n := matchName(rest, monthNames(), tok.width >= 4)
			if n == 0 {
				return fail("expected month name at offset %d", pos)
			}
			p.month, p.haveMon = m+1, true
			pos += n
		case 'E', 'e':
			_, n := matchName(rest, weekdayNames(), tok.width >= 4)
			if n == 0 {
				return fail("expected weekday name at offset %d", pos)
			}
			pos += n
		case 'a':
			switch {
			case strings.HasPrefix(strings.ToUpper(rest), "AM"):
				pm := false
				p.pm = &pm
			case strings.HasPrefix(strings.ToUpper(rest), "PM"):
				pm := true
				p.pm = &pm
			default:
				return fail("expected AM/PM at offset %d", pos)
			}
			pos += 2
		case 'X', 'x', 'Z':
			off, n, ok := parseOffset(rest, tok.letter == 'X')
			if !ok {
				return fail("expected zone offset at offset %d", pos)
			}
			p.offset = &off
			pos += n
		case 'z':
			off, n, ok := parseZoneName(rest)
			if !ok {
				return fail("expected zone name at offset %d", pos)
			}
			p.offset = &off
			pos += n
		}
	}

	if pos != len(s) {
		return fail("unparsed text %q", s[pos:])
	}
	if !p.haveYear || ((!p.haveMon || !p.haveDy) && p.yearDay == 0) {
		return fail("pattern does not carry a full date")
	}
	return p.time()
}

// digitsFor returns how many leading digits of rest token i consumes.
func (l *DateLayout) digitsFor(i int, rest string) int {
	tok := l.tokens[i]
	run := 0
	for run < len(rest) && rest[run] >= '0' && rest[run] <= '9' {
		run++
	}

	// Fixed width unless the field is variable (width 1, or a long year).
	variable := tok.width == 1 || (tok.letter == 'y' && tok.width != 2)
	if tok.letter == 'S' {
		variable = false
	}
	if !variable {
		if run < tok.width {
			return 0
		}
		return tok.width
	}

	reserved := 0
	for _, next := range l.tokens[i+1:] {
		if next.letter == 0 || !next.numeric() {
			break
		}
		reserved += next.width
	}
	n := run - reserved
	if n < 1 {
		return 0
	}
	return n
}

func (p parsedDate) time() (time.Time, error) {
	hour := p.hour
	if p.hour12 >= 0 {
		hour = p.hour12 % 12
		if p.pm != nil && *p.pm {
			hour += 12
		}
	} else if p.pm != nil && *p.pm && hour < 12 {
		hour += 12
	}

	loc := time.UTC
	if p.offset != nil && *p.offset != 0 {
		loc = time.FixedZone("", *p.offset)
	}

	if !p.haveMon || !p.haveDy {
		start := time.Date(p.year, time.January, 1, 0, 0, 0, 0, loc)
		days := time.Date(p.year, time.December, 31, 0, 0, 0, 0, loc).YearDay()
		if p.yearDay < 1 || p.yearDay > days {
			return time.Time{}, fmt.Errorf("%w: day of year %d out of range for %d", types.ErrInvalidArgument, p.yearDay, p.year)
		}
		d := start.AddDate(0, 0, p.yearDay-1)
		p.month, p.day = int(d.Month()), d.Day()
	}

	if p.month < 1 || p.month > 12 || p.day < 1 || p.day > 31 ||
		hour > 23 || p.minute > 59 || p.sec > 59 {
		return time.Time{}, fmt.Errorf("%w: date field out of range", types.ErrInvalidArgument)
	}

	t := time.Date(p.year, time.Month(p.month), p.day, hour, p.minute, p.sec, p.nanos, loc)
	if t.Day() != p.day {
		return time.Time{}, fmt.Errorf("%w: day %d out of range for %s %d", types.ErrInvalidArgument, p.day, time.Month(p.month), p.year)
	}
	return t, nil
}

func monthNames() []string {
	out := make([]string, 12)
	for i := range out {
		out[i] = time.Month(i + 1).String()
	}
	return out
}

func weekdayNames() []string {
	out := make([]string, 7)
	for i := range out {
		out[i] = time.Weekday(i).String()
	}
	return out
}

// matchName matches a full or three-letter name case-insensitively and
// returns its index and the consumed length.
func matchName(s string, names []string, full bool) (int, int) {
	lower := strings.ToLower(s)
	for i, name := range names {
		candidate := strings.ToLower(name)
		if !full {
			candidate = candidate[:3]
		}
		if strings.HasPrefix(lower, candidate) {
			return i, len(candidate)
		}
	}
	return 0, 0
}

// parseOffset reads "Z", "+HH", "+HHMM" or "+HH:MM".
func parseOffset(s string, allowZ bool) (int, int, bool) {
	if allowZ && strings.HasPrefix(s, "Z") {
		return 0, 1, true
	}
	if len(s) < 3 || (s[0] != '+' && s[0] != '-') {
		return 0, 0, false
	}
	hh, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, 0, false
	}
	n := 3
	mm := 0
	rest := s[3:]
	if strings.HasPrefix(rest, ":") {
		rest = rest[1:]
		n++
	}
	if len(rest) >= 2 && isDigit(rest[0]) && isDigit(rest[1]) {
		mm, _ = strconv.Atoi(rest[:2])
		n += 2
	} else if n == 4 {
		return 0, 0, false
	}
	off := hh*3600 + mm*60
	if s[0] == '-' {
		off = -off
	}
	return off, n, true
}

// parseZoneName reads a zone name as written by 'z': UTC, GMT, UT or Z,
// optionally followed by an offset, or a bare offset.
func parseZoneName(s string) (int, int, bool) {
	for _, name := range []string{"UTC", "GMT", "UT", "Z"} {
		if !strings.HasPrefix(s, name) {
			continue
		}
		if off, n, ok := parseOffset(s[len(name):], false); ok {
			return off, len(name) + n, true
		}
		return 0, len(name), true
	}
	return parseOffset(s, false)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
