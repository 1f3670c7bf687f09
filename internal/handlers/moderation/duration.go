package moderation

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var durationPattern = regexp.MustCompile(`^(?:(\d{1,2})(?:months?|mo))?(?:(\d{1,4})(?:weeks?|w))?(?:(\d{1,5})(?:days?|d))?(?:(\d{1,5})(?:hours?|h))?(?:(\d{1,5})(?:minutes?|min?|m))?(?:(\d{1,5})(?:seconds?|s))?$`)

var durationUnits = []time.Duration{
	30 * 24 * time.Hour,
	7 * 24 * time.Hour,
	24 * time.Hour,
	time.Hour,
	time.Minute,
	time.Second,
}

// DurationPresets are offered by duration autocompletion.
var DurationPresets = []string{"5min", "10min", "15min", "30min", "1h", "3h", "6h", "12h", "1d", "3d", "7d", "14d", "28d"}

// ParseDuration reads human durations like "2h", "1w3d" or "10min". A month counts as 30 days.
func ParseDuration(input string) (time.Duration, bool) {
	input = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(input), " ", ""))
	if input == "" {
		return 0, false
	}
	match := durationPattern.FindStringSubmatch(input)
	if match == nil {
		return 0, false
	}
	var total time.Duration
	for i, unit := range durationUnits {
		if match[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(match[i+1])
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * unit
	}
	return total, total > 0
}

// CompleteDuration returns the presets starting with the typed prefix, or all of them.
func CompleteDuration(current string) []string {
	current = strings.ToLower(strings.TrimSpace(current))
	if current == "" {
		return DurationPresets
	}
	if _, ok := ParseDuration(current); ok {
		res := []string{current}
		for _, preset := range DurationPresets {
			if preset != current && strings.HasPrefix(preset, current) {
				res = append(res, preset)
			}
		}
		return res
	}
	var res []string
	for _, preset := range DurationPresets {
		if strings.HasPrefix(preset, current) {
			res = append(res, preset)
		}
	}
	return res
}
