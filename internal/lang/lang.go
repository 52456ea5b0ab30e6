package lang

import "strings"

// DefaultLocale is used for codes outside the supported set.
const DefaultLocale = "en-US"

var locales = map[string]string{
	"en": "en-US",
	"pl": "pl-PL",
	"de": "de-DE",
	"es": "es-ES",
	"fr": "fr-FR",
}

// Normalize lowercases and trims a language code.
func Normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Supported reports whether code is one of the known two-letter codes.
func Supported(code string) bool {
	_, ok := locales[Normalize(code)]
	return ok
}

// Locale maps a two-letter code to a locale identifier, falling back to
// DefaultLocale.
func Locale(code string) string {
	if locale, ok := locales[Normalize(code)]; ok {
		return locale
	}
	return DefaultLocale
}

// Codes returns the supported codes in a stable order.
func Codes() []string {
	return []string{"en", "pl", "de", "es", "fr"}
}
