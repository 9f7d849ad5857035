// Package langdetect identifies the language of transcribed text.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// The detector loads its n-gram models lazily; building it is expensive,
// so it is shared process-wide.
func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithLowAccuracyMode().
			Build()
	})
	return detector
}

// Detect returns the ISO 639-1 code and English display name for the text's
// language. Returns ("auto", "Unknown") when detection is inconclusive.
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "auto", "Unknown"
	}

	lang, ok := getDetector().DetectLanguageOf(text)
	if !ok {
		return "auto", "Unknown"
	}

	code = strings.ToLower(lang.IsoCode639_1().String())
	name = display.English.Languages().Name(language.Make(code))
	if name == "" {
		name = lang.String()
	}
	return code, name
}
