package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// dateFormats are tried in order by parseDate/toTimestamp.
var dateFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// bindDateHelpers installs the scheduling date helpers. All helpers work in
// Unix milliseconds so scripts compose arithmetic without Date objects.
func bindDateHelpers(vm *goja.Runtime) error {
	helpers := map[string]any{
		"now":   func() int64 { return time.Now().UnixMilli() },
		"epoch": func() int64 { return time.Now().Unix() },

		"parseDate": func(call goja.FunctionCall) goja.Value {
			ms, err := parseToMillis(call.Argument(0).String())
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(ms)
		},

		"toTimestamp": func(call goja.FunctionCall) goja.Value {
			arg := call.Argument(0).Export()
			switch v := arg.(type) {
			case int64:
				return vm.ToValue(v)
			case float64:
				return vm.ToValue(int64(v))
			case string:
				ms, err := parseToMillis(v)
				if err != nil {
					panic(vm.NewGoError(err))
				}
				return vm.ToValue(ms)
			default:
				panic(vm.NewGoError(fmt.Errorf("toTimestamp: unsupported value %T", arg)))
			}
		},

		"addMinutes":      func(ms int64, n int64) int64 { return ms + n*int64(time.Minute/time.Millisecond) },
		"addHours":        func(ms int64, n int64) int64 { return ms + n*int64(time.Hour/time.Millisecond) },
		"addDays":         func(ms int64, n int64) int64 { return ms + n*24*int64(time.Hour/time.Millisecond) },
		"subtractMinutes": func(ms int64, n int64) int64 { return ms - n*int64(time.Minute/time.Millisecond) },
		"subtractHours":   func(ms int64, n int64) int64 { return ms - n*int64(time.Hour/time.Millisecond) },
		"subtractDays":    func(ms int64, n int64) int64 { return ms - n*24*int64(time.Hour/time.Millisecond) },

		// datetime("2024-05-01", "14:30", "Asia/Kolkata") → millis
		"datetime": func(call goja.FunctionCall) goja.Value {
			date := call.Argument(0).String()
			clock := call.Argument(1).String()
			tz := call.Argument(2).String()
			ms, err := datetimeToMillis(date, clock, tz)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(ms)
		},
	}

	for name, fn := range helpers {
		if err := vm.Set(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func parseToMillis(s string) (int64, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("parseDate: unrecognized date %q", s)
}

func datetimeToMillis(date, clock, tz string) (int64, error) {
	loc := time.UTC
	if tz != "" && tz != "undefined" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return 0, fmt.Errorf("datetime: unknown timezone %q", tz)
		}
	}
	layout := "2006-01-02 15:04"
	if len(clock) == 8 {
		layout = "2006-01-02 15:04:05"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return 0, fmt.Errorf("datetime: cannot parse %q %q: %w", date, clock, err)
	}
	return t.UnixMilli(), nil
}
