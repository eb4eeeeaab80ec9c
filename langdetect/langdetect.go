// Package langdetect identifies the language of transcribed text.
package langdetect

import (
	"strings"
	"sync"

	"github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Languages the detector distinguishes. A smaller set keeps detection fast
// and reliable on the short snippets transcription produces.
var candidates = []lingua.Language{
	lingua.English,
	lingua.Chinese,
	lingua.Japanese,
	lingua.Korean,
	lingua.Spanish,
	lingua.French,
	lingua.German,
	lingua.Italian,
	lingua.Portuguese,
	lingua.Russian,
	lingua.Arabic,
	lingua.Hindi,
	lingua.Dutch,
	lingua.Polish,
	lingua.Turkish,
	lingua.Ukrainian,
}

var detector = sync.OnceValue(func() lingua.LanguageDetector {
	return lingua.NewLanguageDetectorBuilder().
		FromLanguages(candidates...).
		Build()
})

// Detect returns the ISO 639-1 code and English display name of the text's
// language. Text too short or ambiguous to classify yields ("auto", "Unknown").
func Detect(text string) (code, name string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "auto", "Unknown"
	}

	lang, ok := detector().DetectLanguageOf(text)
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
