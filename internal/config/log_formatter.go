package config

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

// leadingFields are printed first, in this order, when present.
var leadingFields = []string{"context", "guild_id", "user_id"}

type NbFormatter struct {
	NoColor    bool
	NoSource   bool
	callerSkip int
}

func (f *NbFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder

	b.WriteString(f.pair("level", f.paint(levelColor(entry.Level), strings.ToUpper(entry.Level.String())[:4])))
	b.WriteString(" " + f.pair("ts", f.paint(colorLightYellow, entry.Time.Format("2006-01-02 15:04:05.000"))))

	if !f.NoSource {
		skip := f.callerSkip
		if skip == 0 {
			skip = 6
		}
		if _, file, line, ok := runtime.Caller(skip); ok {
			b.WriteString(" " + f.pair("source", f.paint(colorLightYellow, fmt.Sprintf("%s:%d", file, line))))
		}
	}

	for _, k := range orderedKeys(entry.Data) {
		m, err := json.Marshal(entry.Data[k])
		if err != nil || len(m) == 0 {
			continue
		}
		s := string(m)
		b.WriteString(" " + f.pair(k, f.paint(valueColor(s), s)))
	}
	b.WriteString(" " + f.pair("msg", f.paint(colorLightGreen, strconv.Quote(entry.Message))))

	output := strings.ReplaceAll(b.String(), "\r", "\\r")
	output = strings.ReplaceAll(output, "\n", "\\n") + "\n"
	return []byte(output), nil
}

func (f *NbFormatter) pair(key, value string) string {
	return f.paint(colorCyan, key) + "=" + value
}

func (f *NbFormatter) paint(color int, s string) string {
	if f.NoColor {
		return s
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", color, s)
}

func levelColor(level log.Level) int {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	case log.WarnLevel:
		return colorYellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}

func valueColor(s string) int {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return colorGreen
	}
	if strings.HasPrefix(s, "\"") && strings.HasSuffix(s, "\"") {
		return colorLightYellow
	}
	return colorCyan
}

func orderedKeys(data log.Fields) []string {
	keys := make([]string, 0, len(data))
	seen := make(map[string]struct{}, len(leadingFields))
	for _, k := range leadingFields {
		if _, ok := data[k]; ok {
			keys = append(keys, k)
			seen[k] = struct{}{}
		}
	}
	rest := make([]string, 0, len(data))
	for k := range data {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
