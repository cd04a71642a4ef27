package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// DefaultDatePattern is the pattern used by Datetime when none is given.
const DefaultDatePattern = "Y-m-d H:i:s"

// Datetime parses value as a point in time and renders it with a PHP-style
// date pattern (Y-m-d H:i:s by default). Strings are read with the
// formatter's layout first. Empty values render as "".
// Values that cannot be parsed are returned unchanged.
func (f Formatter) Datetime(value any, args string) string {
	raw := f.Text(value)
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	pattern := args
	if pattern == "" {
		pattern = DefaultDatePattern
	}
	var (
		t   time.Time
		err error
	)
	if tv, ok := value.(time.Time); ok {
		t = tv
	} else if t, err = time.Parse(f.layout(), strings.TrimSpace(raw)); err != nil {
		t, err = cast.ToTimeE(raw)
	}
	if err != nil {
		return raw
	}
	return FormatDate(t, pattern)
}

// FormatDate renders t using PHP date() pattern letters. A backslash escapes
// the following character; unknown characters are copied verbatim.
func FormatDate(t time.Time, pattern string) string {
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' && i+1 < len(runes) {
			i++
			b.WriteRune(runes[i])
			continue
		}
		if s, ok := dateToken(t, r); ok {
			b.WriteString(s)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dateToken(t time.Time, r rune) (string, bool) {
	switch r {
	// day
	case 'd':
		return t.Format("02"), true
	case 'D':
		return t.Format("Mon"), true
	case 'j':
		return strconv.Itoa(t.Day()), true
	case 'l':
		return t.Format("Monday"), true
	case 'N':
		wd := int(t.Weekday())
		if wd == 0 {
			wd = 7
		}
		return strconv.Itoa(wd), true
	case 'S':
		return ordinalSuffix(t.Day()), true
	case 'w':
		return strconv.Itoa(int(t.Weekday())), true
	case 'z':
		return strconv.Itoa(t.YearDay() - 1), true
	// month
	case 'F':
		return t.Format("January"), true
	case 'm':
		return t.Format("01"), true
	case 'M':
		return t.Format("Jan"), true
	case 'n':
		return strconv.Itoa(int(t.Month())), true
	case 't':
		return strconv.Itoa(time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()), true
	// year
	case 'L':
		if y := t.Year(); y%4 == 0 && (y%100 != 0 || y%400 == 0) {
			return "1", true
		}
		return "0", true
	case 'Y':
		return strconv.Itoa(t.Year()), true
	case 'y':
		return t.Format("06"), true
	// time
	case 'a':
		return t.Format("pm"), true
	case 'A':
		return t.Format("PM"), true
	case 'g':
		return t.Format("3"), true
	case 'G':
		return strconv.Itoa(t.Hour()), true
	case 'h':
		return t.Format("03"), true
	case 'H':
		return t.Format("15"), true
	case 'i':
		return t.Format("04"), true
	case 's':
		return t.Format("05"), true
	case 'u':
		return fmt.Sprintf("%06d", t.Nanosecond()/int(time.Microsecond)), true
	case 'v':
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond)), true
	// timezone
	case 'e':
		return t.Location().String(), true
	case 'T':
		return t.Format("MST"), true
	case 'P':
		return t.Format("-07:00"), true
	case 'O':
		return t.Format("-0700"), true
	case 'Z':
		_, offset := t.Zone()
		return strconv.Itoa(offset), true
	// full date/time
	case 'c':
		return t.Format(time.RFC3339), true
	case 'r':
		return t.Format(time.RFC1123Z), true
	case 'U':
		return strconv.FormatInt(t.Unix(), 10), true
	}
	return "", false
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	}
	return "th"
}
