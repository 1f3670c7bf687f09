package i18n

import "strings"

var languageNames = map[string]string{
	"de": "German",
	"en": "English",
}

func GetLanguageName(code string) string {
	normalized := strings.ToLower(code)
	if name, ok := languageNames[normalized]; ok {
		return name
	}
	return code
}

// Languages returns the supported language codes.
func Languages() []string {
	res := make([]string, 0, len(languageNames))
	for code := range languageNames {
		res = append(res, code)
	}
	return res
}
