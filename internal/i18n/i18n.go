// Package i18n translates user-facing strings. Keys are the English texts; the
// translations.yml resource maps each key to its text per upper-cased locale.
package i18n

import (
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/iamwavecut/ngmod/internal/infra"
	"github.com/iamwavecut/ngmod/resources"
)

const defaultLanguage = "en"

var state = struct {
	once         sync.Once
	translations map[string]map[string]string
	path         string
}{
	path: infra.GetResourcesDir("i18n", "translations.yml"),
}

func load() {
	state.translations = map[string]map[string]string{}
	content, err := resources.FS.ReadFile(state.path)
	if err != nil {
		log.WithError(err).Errorln("cant load i18n")
		return
	}
	if err := yaml.Unmarshal(content, &state.translations); err != nil {
		log.WithError(err).Errorln("cant unmarshal i18n")
	}
}

// Normalize maps platform locales like "en-US" or "pt-BR" onto a supported language code.
func Normalize(locale string) string {
	code := strings.ToLower(locale)
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if _, ok := languageNames[code]; !ok {
		return defaultLanguage
	}
	return code
}

func Get(key, lang string) string {
	lang = Normalize(lang)
	if lang == defaultLanguage {
		return key
	}
	state.once.Do(load)
	if res, ok := state.translations[key][strings.ToUpper(lang)]; ok && res != "" {
		return res
	}
	log.Tracef(`no translation for key "%s"`, key)
	return key
}

// Getf translates key and formats it with args.
func Getf(key, lang string, args ...any) string {
	return fmt.Sprintf(Get(key, lang), args...)
}
