package reminder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is the normalized kind of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

func (k Kind) String() string {
	if k == KindInterval {
		return "interval"
	}
	return "cron"
}

// Schedule is a parsed schedule string.
//
// Supported forms:
//   - cron: "*/5 * * * *", "0 30 9 * * MON-FRI" (seconds optional), "@hourly", "@every 55m"
//   - interval duration: "55m", "2h30m"
//   - interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// "cron:" forces cron parsing; "every:" or "interval:" force interval parsing.
type Schedule struct {
	Kind  Kind
	Cron  string
	Every time.Duration
}

func (s Schedule) String() string {
	if s.Kind == KindInterval {
		return "every " + s.Every.String()
	}
	return s.Cron
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// ParseSchedule parses and validates raw. Cron expressions are checked with the
// same parser the Service uses.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s)
	}

	sch, err := parseInterval(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')", raw)
	}
	return sch, nil
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression required")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Schedule{Kind: KindCron, Cron: expr}, nil
}

func parseInterval(v string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return Schedule{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m')", v)
		}
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: KindInterval, Every: d}, nil
}

// cronSchedule converts s to a robfig schedule. Intervals below one second are
// rounded up by cron.Every.
func (s Schedule) cronSchedule() (cron.Schedule, error) {
	if s.Kind == KindInterval {
		return cron.Every(s.Every), nil
	}
	return cronParser.Parse(s.Cron)
}

// Next returns the first activation after from, evaluated in loc. It returns
// the zero time if s is invalid.
func (s Schedule) Next(from time.Time, loc *time.Location) time.Time {
	cs, err := s.cronSchedule()
	if err != nil {
		return time.Time{}
	}
	if loc != nil {
		from = from.In(loc)
	}
	return cs.Next(from)
}
