package text

import (
	"unicode"
	"unicode/utf8"
)

// Length counts runes, matching how chat clients count characters.
func Length(content string) int {
	return utf8.RuneCountInString(content)
}

// IsLower reports whether content has at least one cased letter and no upper-case ones.
func IsLower(content string) bool {
	hasCased := false
	for _, r := range content {
		switch {
		case unicode.IsUpper(r), unicode.IsTitle(r):
			return false
		case unicode.IsLower(r):
			hasCased = true
		}
	}
	return hasCased
}

// UpperRatio is the share of A-Z and umlaut capitals among all characters.
func UpperRatio(content string) float64 {
	total := Length(content)
	if total == 0 {
		return 0
	}
	upper := 0
	for _, r := range content {
		if (r >= 'A' && r <= 'Z') || r == 'Ä' || r == 'Ö' || r == 'Ü' {
			upper++
		}
	}
	return float64(upper) / float64(total)
}
