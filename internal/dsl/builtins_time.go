// internal/dsl/builtins_time.go
package dsl

import (
	"sync"
	"time"

	"github.com/solatis/busprobe/internal/scenario"
)

// now is replaced in tests.
var now = time.Now

var (
	fullDateOffsetLayout = mustCompileDateLayout(PatternFullDateOffset)
	fullDateLayout       = mustCompileDateLayout(PatternFullDate)
	shortDateLayout      = mustCompileDateLayout(PatternShortDate)
	isoDateLayout        = mustCompileDateLayout(PatternISODate)
	tasrLayout           = mustCompileDateLayout(PatternTASR)
)

// tasrClock hands out strictly increasing reference times. The TASR
// pattern resolves to 10µs, so two calls in the same tick are pushed
// apart by that step.
var tasrClock struct {
	sync.Mutex
	last time.Time
}

const tasrStep = 10 * time.Microsecond

func nextTASR() string {
	tasrClock.Lock()
	defer tasrClock.Unlock()

	t := now().Truncate(tasrStep)
	if !t.After(tasrClock.last) {
		t = tasrClock.last.Add(tasrStep)
	}
	tasrClock.last = t
	return tasrLayout.Format(t)
}

func timeFunctions() []Function {
	return []Function{
		static("$SYS_SHORT_DATE", "today as yyyy-MM-dd", func() string {
			return shortDateLayout.Format(now())
		}),
		static("$SYS_FULL_DATE", "now with microseconds and a literal Z", func() string {
			return fullDateLayout.Format(now())
		}),
		static("$SYS_FULL_OFFSET_DATE", "now with microseconds and the local offset", func() string {
			return fullDateOffsetLayout.Format(now())
		}),
		static("$SYS_FULL_DATE_PLUS_ONE_HOUR", "now plus one hour with the local offset", func() string {
			return fullDateOffsetLayout.Format(now().Add(time.Hour))
		}),
		static("$SYS_ISO_DATE", "now with milliseconds and a literal Z", func() string {
			return isoDateLayout.Format(now())
		}),
		static("$TASR_REF", "unique time-based reference MMddHmmssSSSSS", nextTASR),
		{
			Name:        "$SYS_DATE_OF_FORMAT",
			Description: "now in the given pattern",
			Example:     "$SYS_DATE_OF_FORMAT(dd/MM/yyyy)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				l, err := CompileDateLayout(args[0])
				if err != nil {
					return "", err
				}
				return l.Format(now()), nil
			},
		},
		minutesFunction("$SYS_FULL_DATE_PLUS_MINUTES", "now plus n minutes", 1),
		minutesFunction("$SYS_FULL_DATE_MINUS_MINUTES", "now minus n minutes", -1),
		daysFunction("$SYS_SHORT_DATE_PLUS_DAYS", "today plus n days", 1),
		daysFunction("$SYS_SHORT_DATE_MINUS_DAYS", "today minus n days", -1),
		{
			Name:        "$SYS_VALUE_DATE_PLUS_DAYS",
			Description: "today plus n days, moved forward to Monday if it lands on a weekend",
			Example:     "$SYS_VALUE_DATE_PLUS_DAYS(2)",
			MinArgs:     1,
			MaxArgs:     1,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				n, err := intArg("$SYS_VALUE_DATE_PLUS_DAYS", args[0])
				if err != nil {
					return "", err
				}
				return shortDateLayout.Format(ValueDate(now(), n)), nil
			},
		},
		{
			Name:        "$FORMAT_STRING_DATE",
			Description: "re-stamp a date from one pattern to another",
			Example:     "$FORMAT_STRING_DATE(2024-01-31,yyyy-MM-dd,dd/MM/yyyy)",
			MinArgs:     3,
			MaxArgs:     3,
			Fn: func(args []string, _ *scenario.Context) (string, error) {
				return ReformatDate(args[0], args[1], args[2])
			},
		},
	}
}

func minutesFunction(name, desc string, sign int) Function {
	return Function{
		Name:        name,
		Description: desc,
		Example:     name + "(15)",
		MinArgs:     1,
		MaxArgs:     1,
		Fn: func(args []string, _ *scenario.Context) (string, error) {
			n, err := intArg(name, args[0])
			if err != nil {
				return "", err
			}
			return fullDateLayout.Format(now().Add(time.Duration(sign*n) * time.Minute)), nil
		},
	}
}

func daysFunction(name, desc string, sign int) Function {
	return Function{
		Name:        name,
		Description: desc,
		Example:     name + "(1)",
		MinArgs:     1,
		MaxArgs:     1,
		Fn: func(args []string, _ *scenario.Context) (string, error) {
			n, err := intArg(name, args[0])
			if err != nil {
				return "", err
			}
			return shortDateLayout.Format(now().AddDate(0, 0, sign*n)), nil
		},
	}
}

// ValueDate returns t plus days, moved to the following Monday when the
// result falls on Saturday or Sunday.
func ValueDate(t time.Time, days int) time.Time {
	target := t.AddDate(0, 0, days)
	switch target.Weekday() {
	case time.Saturday:
		target = target.AddDate(0, 0, 2)
	case time.Sunday:
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// ReformatDate parses input with the from pattern and renders it with to.
func ReformatDate(input, from, to string) (string, error) {
	src, err := CompileDateLayout(from)
	if err != nil {
		return "", err
	}
	dst, err := CompileDateLayout(to)
	if err != nil {
		return "", err
	}
	t, err := src.Parse(input)
	if err != nil {
		return "", err
	}
	return dst.Format(t), nil
}
