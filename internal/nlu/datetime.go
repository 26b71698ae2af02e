package nlu

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrNoDate is the distinguished failure value of the normalizer: the input
// carried nothing recognizable as a date or time.
var ErrNoDate = errors.New("no date recognized")

// DateTime is the canonical form of a free-text date/time expression.
// HasTime tells callers whether a time of day was actually present, so a
// date-only reply can inherit the original appointment's time.
type DateTime struct {
	Date    string // 2006-01-02
	Time    string // 15:04:05
	HasTime bool
}

const (
	dateLayout    = "2006-01-02"
	literalLayout = "02/01/2006" // substitution output, day-first like the rest of the input
)

// Relative-date vocabulary, Portuguese and English. Longer phrases first so
// "daqui a uma semana" is consumed before any shorter overlap.
var relativePhrases = []struct {
	phrase string
	days   int
}{
	{"daqui a uma semana", 7},
	{"in a week", 7},
	{"amanhã", 1},
	{"amanha", 1},
	{"tomorrow", 1},
	{"hoje", 0},
	{"today", 0},
}

var (
	relativeDaysPtRe = regexp.MustCompile(`daqui a (\d+) dias?`)
	relativeDaysEnRe = regexp.MustCompile(`in (\d+) days?`)

	clockRe      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(am|pm)?\b`)
	meridiemRe   = regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`)
	hourSuffixRe = regexp.MustCompile(`\b(\d{1,2})\s*h(?:rs|s)?\b`)

	isoDateRe = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	dmyDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

	bareNumberRe = regexp.MustCompile(`^\d{1,4}$`)
)

// NormalizeDateTime parses a free-text date/time expression. Relative
// phrases are substituted textually against the single "now" snapshot, then
// the string goes through a permissive day-first parse that tolerates
// surrounding prose, a missing time, or a missing date. now carries the
// clinic timezone.
func NormalizeDateTime(input string, now time.Time) (DateTime, error) {
	cleaned := strings.Join(strings.Fields(substituteRelative(strings.ToLower(input), now)), " ")
	if cleaned == "" {
		return DateTime{}, ErrNoDate
	}

	timeOfDay, timeExpr, hasTime := extractTime(cleaned)

	// Scan for the date with the time expression stripped, so a time-only
	// reply is never misread as a date.
	dateInput := cleaned
	if timeExpr != "" {
		dateInput = strings.TrimSpace(strings.Replace(cleaned, timeExpr, " ", 1))
	}

	date, dateFound, clockFromDate := parseDate(dateInput, now)
	if !dateFound {
		if !hasTime {
			return DateTime{}, ErrNoDate
		}
		// Time-only input: like the reference parser, default the date to
		// today.
		date = now
	}

	if !hasTime && clockFromDate != "" {
		timeOfDay = clockFromDate
		hasTime = true
	}
	if timeOfDay == "" {
		timeOfDay = "00:00:00"
	}

	return DateTime{
		Date:    date.Format(dateLayout),
		Time:    timeOfDay,
		HasTime: hasTime,
	}, nil
}

// substituteRelative rewrites every relative-date phrase into an absolute
// day-first date. All phrases in one message resolve against the same now.
func substituteRelative(s string, now time.Time) string {
	s = relativeDaysPtRe.ReplaceAllStringFunc(s, func(m string) string {
		return replaceRelativeDays(m, relativeDaysPtRe, now)
	})
	s = relativeDaysEnRe.ReplaceAllStringFunc(s, func(m string) string {
		return replaceRelativeDays(m, relativeDaysEnRe, now)
	})

	for _, rp := range relativePhrases {
		if strings.Contains(s, rp.phrase) {
			s = strings.ReplaceAll(s, rp.phrase, now.AddDate(0, 0, rp.days).Format(literalLayout))
		}
	}
	return s
}

func replaceRelativeDays(match string, re *regexp.Regexp, now time.Time) string {
	sub := re.FindStringSubmatch(match)
	n, err := strconv.Atoi(sub[1])
	if err != nil {
		return match
	}
	return now.AddDate(0, 0, n).Format(literalLayout)
}

// parseDate finds a calendar date inside the string. It first hands the whole
// string to the permissive parser; when prose around the date defeats that,
// it falls back to scanning for date-shaped fragments. clockFromDate is
// non-empty when the whole-string parse also carried a time of day.
func parseDate(s string, now time.Time) (date time.Time, found bool, clockFromDate string) {
	loc := now.Location()

	if s == "" {
		return time.Time{}, false, ""
	}

	if !bareNumberRe.MatchString(s) {
		if d, err := parseDayFirst(s, loc); err == nil {
			if d.Hour() != 0 || d.Minute() != 0 || d.Second() != 0 {
				clockFromDate = fmt.Sprintf("%02d:%02d:%02d", d.Hour(), d.Minute(), d.Second())
			}
			return d, true, clockFromDate
		}
	}

	if m := isoDateRe.FindString(s); m != "" {
		if d, err := parseDayFirst(m, loc); err == nil {
			return d, true, ""
		}
	}

	for _, m := range dmyDateRe.FindAllStringSubmatch(s, -1) {
		candidate := m[0]
		if m[3] == "" {
			// No year given: assume the current one, as the reference
			// parser did.
			candidate = fmt.Sprintf("%s/%s/%d", m[1], m[2], now.Year())
		}
		if d, err := parseDayFirst(candidate, loc); err == nil {
			return d, true, ""
		}
	}

	return time.Time{}, false, ""
}

func parseDayFirst(s string, loc *time.Location) (time.Time, error) {
	return dateparse.ParseIn(s, loc,
		dateparse.PreferMonthFirst(false),
		dateparse.RetryAmbiguousDateWithSwap(true),
	)
}

// extractTime pulls a time of day out of the string: HH:MM(:SS) with an
// optional am/pm, a bare "2pm", or the Portuguese "15h" form. expr is the
// raw fragment that matched.
func extractTime(s string) (clock, expr string, ok bool) {
	if m := clockRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec := 0
		if m[3] != "" {
			sec, _ = strconv.Atoi(m[3])
		}
		h = applyMeridiem(h, m[4])
		if validClock(h, min, sec) {
			return fmt.Sprintf("%02d:%02d:%02d", h, min, sec), m[0], true
		}
	}

	if m := meridiemRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		h = applyMeridiem(h, m[2])
		if validClock(h, 0, 0) {
			return fmt.Sprintf("%02d:00:00", h), m[0], true
		}
	}

	if m := hourSuffixRe.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		if validClock(h, 0, 0) {
			return fmt.Sprintf("%02d:00:00", h), m[0], true
		}
	}

	return "", "", false
}

func applyMeridiem(h int, meridiem string) int {
	switch meridiem {
	case "pm":
		if h < 12 {
			h += 12
		}
	case "am":
		if h == 12 {
			h = 0
		}
	}
	return h
}

func validClock(h, m, s int) bool {
	return h >= 0 && h < 24 && m >= 0 && m < 60 && s >= 0 && s < 60
}
