// Package i18n resolves the UI language and renders the client's
// user-facing messages in Uzbek, Russian or English.
package i18n

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/anot-platform/anot-client/internal/api"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// The first tag is the fallback when nothing matches.
var supported = []language.Tag{language.English, language.Uzbek, language.Russian}

var matcher = language.NewMatcher(supported)

// Parse maps a language code or BCP 47 tag ("ru-RU", "uz-Latn") onto one of
// the supported languages.
func Parse(code string) (api.Language, error) {
	code = strings.TrimSpace(code)
	if l := api.Language(strings.ToLower(code)); l.Valid() {
		return l, nil
	}
	if code == "" {
		return "", fmt.Errorf("%w: empty code", ErrUnsupportedLanguage)
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}
	return fromTag(supported[idx]), nil
}

// Negotiate picks the best supported language for an Accept-Language header,
// English when nothing matches.
func Negotiate(acceptLanguage string) api.Language {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return api.LanguageEn
	}
	_, idx, _ := matcher.Match(tags...)
	return fromTag(supported[idx])
}

func fromTag(t language.Tag) api.Language {
	switch t {
	case language.Uzbek:
		return api.LanguageUz
	case language.Russian:
		return api.LanguageRu
	}
	return api.LanguageEn
}

func tagOf(l api.Language) language.Tag {
	switch l {
	case api.LanguageUz:
		return language.Uzbek
	case api.LanguageRu:
		return language.Russian
	case api.LanguageEn:
		return language.English
	}
	return language.English
}

// Localizer renders catalog messages in one language.
type Localizer struct {
	lang    api.Language
	printer *message.Printer
}

func New(lang api.Language) *Localizer {
	if !lang.Valid() {
		lang = api.LanguageEn
	}
	return &Localizer{
		lang:    lang,
		printer: message.NewPrinter(tagOf(lang), message.Catalog(defaultCatalog)),
	}
}

func (l *Localizer) Language() api.Language { return l.lang }

// Text renders key with args; unknown keys come back verbatim.
func (l *Localizer) Text(key Key, args ...any) string {
	return l.printer.Sprintf(string(key), args...)
}

var defaultCatalog = buildCatalog()

func buildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, texts := range messages {
		for lang, text := range texts {
			if err := b.SetString(tagOf(lang), string(key), text); err != nil {
				panic(fmt.Sprintf("i18n: %s/%s: %v", lang, key, err))
			}
		}
	}
	return b
}
