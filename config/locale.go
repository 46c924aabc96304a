package config

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

var (
	uiLanguages = []string{"en", "zh_CN", "zh_TW"}
	uiMatcher   = language.NewMatcher([]language.Tag{
		language.English,
		language.SimplifiedChinese,
		language.TraditionalChinese,
	})
)

// DetectUILanguage derives the UI language from the POSIX locale variables.
func DetectUILanguage() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return MatchUILanguage(v)
		}
	}
	return "en"
}

// MatchUILanguage maps a locale string like "zh_TW.UTF-8" onto one of the supported UI languages.
func MatchUILanguage(locale string) string {
	locale, _, _ = strings.Cut(locale, ".")
	locale, _, _ = strings.Cut(locale, "@")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "en"
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return "en"
	}
	_, idx, conf := uiMatcher.Match(tag)
	if conf == language.No {
		return "en"
	}
	return uiLanguages[idx]
}
