// Package locale resolves the request language and holds the translated
// messages of the gallery endpoints.
package locale

import (
	"sort"
	"strconv"
	"strings"
)

const (
	LanguageChinese = "zh"
	LanguageEnglish = "en"
)

// Default is the language used when a request expresses no usable preference.
const Default = LanguageEnglish

type Preference struct {
	Language string
	Locale   string
	HTMLLang string
}

func NormalizeLanguage(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "zh") || trimmed == "cn" {
		return LanguageChinese
	}
	if strings.HasPrefix(trimmed, "en") {
		return LanguageEnglish
	}
	return ""
}

// LanguageFromAcceptLanguage returns the supported language with the highest
// q-value in an Accept-Language header, or "" when none is supported.
func LanguageFromAcceptLanguage(header string) string {
	type candidate struct {
		language string
		q        float64
		pos      int
	}

	var candidates []candidate
	for pos, part := range strings.Split(header, ",") {
		tag, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		language := NormalizeLanguage(tag)
		if language == "" {
			continue
		}
		q := 1.0
		if value, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				continue
			}
			q = parsed
		}
		if q <= 0 {
			continue
		}
		candidates = append(candidates, candidate{language: language, q: q, pos: pos})
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].pos < candidates[j].pos
	})
	return candidates[0].language
}

// PreferenceForLanguage expands a language into locale identifiers. Unknown
// languages fall back to Default.
func PreferenceForLanguage(language string) Preference {
	normalized := NormalizeLanguage(language)
	if normalized == "" {
		normalized = Default
	}
	if normalized == LanguageChinese {
		return Preference{Language: LanguageChinese, Locale: "zh_CN", HTMLLang: "zh-CN"}
	}
	return Preference{Language: LanguageEnglish, Locale: "en_US", HTMLLang: "en-US"}
}
