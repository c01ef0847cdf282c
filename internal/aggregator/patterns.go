package aggregator

import (
	"github.com/pkg/errors"
	"regexp"
	"strings"
	"time"
)

// Building blocks of the built-in fail2ban line format.
const (
	TimestampPattern = `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`
	AddressPattern   = `\d+\.\d+\.\d+\.\d+`
	JailPattern      = `\w+`
	TimeLayout       = "2006-01-02 15:04:05"
)

// Named groups every ban/unban pattern must define.
const (
	groupTime    = "time"
	groupAddress = "address"
	groupJail    = "jail"
)

var (
	DefaultBanPattern   = `(?P<time>` + TimestampPattern + `).*Ban (?P<address>` + AddressPattern + `).*jail: (?P<jail>` + JailPattern + `)`
	DefaultUnbanPattern = `(?P<time>` + TimestampPattern + `).*Unban (?P<address>` + AddressPattern + `).*jail: (?P<jail>` + JailPattern + `)`
)

// PatternConfig describes how log lines are classified. Zero fields fall back to the built-in format.
type PatternConfig struct {
	BanMarker   string
	UnbanMarker string
	JailMarker  string
	Ban         string
	Unban       string
	TimeLayout  string
	Location    *time.Location
}

type EventKind int

const (
	BanEvent EventKind = iota
	UnbanEvent
)

func (k EventKind) String() string {
	if k == UnbanEvent {
		return "unban"
	}
	return "ban"
}

// Event is a single ban or unban extracted from a log line.
type Event struct {
	Kind    EventKind
	Time    time.Time
	Address string
	Jail    string
}

type linePattern struct {
	re                  *regexp.Regexp
	time, address, jail int
}

func compileLinePattern(expr string) (linePattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return linePattern{}, errors.Wrap(err, "failed to compile pattern")
	}

	p := linePattern{
		re:      re,
		time:    re.SubexpIndex(groupTime),
		address: re.SubexpIndex(groupAddress),
		jail:    re.SubexpIndex(groupJail),
	}
	if p.time < 0 || p.address < 0 || p.jail < 0 {
		return linePattern{}, errors.Errorf("pattern %q must define the groups %q, %q and %q", expr, groupTime, groupAddress, groupJail)
	}
	return p, nil
}

// Patterns classifies log lines. It is compiled once and safe for concurrent use.
type Patterns struct {
	banMarker, unbanMarker, jailMarker string
	ban, unban                         linePattern
	layout                             string
	location                           *time.Location
}

func NewPatterns(c PatternConfig) (*Patterns, error) {
	p := &Patterns{
		banMarker:   or(c.BanMarker, "Ban"),
		unbanMarker: or(c.UnbanMarker, "Unban"),
		jailMarker:  or(c.JailMarker, "jail"),
		layout:      or(c.TimeLayout, TimeLayout),
		location:    c.Location,
	}
	if p.location == nil {
		p.location = time.Local
	}

	var err error
	if p.ban, err = compileLinePattern(or(c.Ban, DefaultBanPattern)); err != nil {
		return nil, errors.Wrap(err, "invalid ban pattern")
	}
	if p.unban, err = compileLinePattern(or(c.Unban, DefaultUnbanPattern)); err != nil {
		return nil, errors.Wrap(err, "invalid unban pattern")
	}
	return p, nil
}

// Parse extracts an event from line. Lines without both markers, lines that do not fully
// match and lines with an unparsable timestamp report false.
func (p *Patterns) Parse(line string) (Event, bool) {
	if !strings.Contains(line, p.jailMarker) {
		return Event{}, false
	}

	switch {
	case strings.Contains(line, p.banMarker):
		return p.extract(p.ban, BanEvent, line)
	case strings.Contains(line, p.unbanMarker):
		return p.extract(p.unban, UnbanEvent, line)
	}
	return Event{}, false
}

func (p *Patterns) extract(lp linePattern, kind EventKind, line string) (Event, bool) {
	m := lp.re.FindStringSubmatch(line)
	if m == nil {
		return Event{}, false
	}

	ts, err := time.ParseInLocation(p.layout, m[lp.time], p.location)
	if err != nil {
		return Event{}, false
	}

	return Event{Kind: kind, Time: ts, Address: m[lp.address], Jail: m[lp.jail]}, true
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
