package language

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Fallback is used when nothing else is configured or detected.
const Fallback = "en-US"

// Errors returned by Normalize.
var (
	ErrEmpty   = errors.New("language: empty identifier")
	ErrInvalid = errors.New("language: invalid identifier")
)

type entry struct {
	code2     string // ISO 639-1
	code3     string // ISO 639-2 primary
	alt3      string // ISO 639-2 alternate (e.g. "ger" vs "deu")
	words     []string
	stopwords []string
}

var languages = []entry{
	{"en", "eng", "", []string{"english"}, []string{
		"the", "and", "is", "are", "was", "of", "to", "in", "that", "it", "with", "for", "this", "have", "not", "you",
	}},
	{"de", "deu", "ger", []string{"german", "deutsch"}, []string{
		"der", "die", "das", "und", "ist", "nicht", "ich", "mit", "sie", "ein", "eine", "zu", "auf", "auch", "wir", "sind",
	}},
	{"fr", "fra", "fre", []string{"french", "français", "francais"}, []string{
		"le", "la", "les", "et", "est", "une", "des", "que", "pas", "pour", "dans", "je", "nous", "vous", "avec", "sont",
	}},
	{"es", "spa", "", []string{"spanish", "español", "espanol"}, []string{
		"el", "los", "las", "y", "es", "una", "que", "por", "para", "con", "no", "está", "pero", "como", "yo", "son",
	}},
	{"nl", "nld", "dut", []string{"dutch", "nederlands"}, []string{
		"de", "het", "een", "en", "is", "niet", "van", "dat", "ik", "zijn", "met", "voor", "ook", "maar", "wij", "hij",
	}},
	{"pt", "por", "", []string{"portuguese", "português", "portugues"}, []string{
		"o", "os", "as", "e", "não", "um", "uma", "que", "com", "para", "está", "são", "mas", "eu", "ele", "isso",
	}},
}

var (
	byCode  map[string]*entry
	byWord  map[string]*entry
	stopSet map[string]map[string]struct{}
)

func init() {
	byCode = make(map[string]*entry, len(languages)*3)
	byWord = make(map[string]*entry, len(languages)*2)
	stopSet = make(map[string]map[string]struct{}, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode[e.code2] = e
		byCode[e.code3] = e
		if e.alt3 != "" {
			byCode[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
		set := make(map[string]struct{}, len(e.stopwords))
		for _, w := range e.stopwords {
			set[w] = struct{}{}
		}
		stopSet[e.code2] = set
	}
}

// Normalize converts an identifier into a canonical BCP-47 tag. Bare language
// names and ISO 639-2 codes of supported languages map to their two letter
// form; anything else must parse as a BCP-47 tag.
func Normalize(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", ErrEmpty
	}
	lower := strings.ToLower(trimmed)
	if e, ok := byCode[lower]; ok {
		return e.code2, nil
	}
	if e, ok := byWord[lower]; ok {
		return e.code2, nil
	}
	tag, err := xlanguage.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%w %q: %v", ErrInvalid, input, err)
	}
	return tag.String(), nil
}

// Base returns the ISO 639-1 base of a tag ("en-US" -> "en").
func Base(tag string) string {
	trimmed := strings.ToLower(strings.TrimSpace(tag))
	if trimmed == "" {
		return ""
	}
	if idx := strings.IndexAny(trimmed, "-_"); idx > 0 {
		trimmed = trimmed[:idx]
	}
	if e, ok := byCode[trimmed]; ok {
		return e.code2
	}
	return trimmed
}

// Supported reports whether detection and the built-in rule tables know the
// base language of tag.
func Supported(tag string) bool {
	_, ok := stopSet[Base(tag)]
	return ok
}

// List returns the supported base languages in sorted order.
func List() []string {
	out := make([]string, 0, len(languages))
	for _, e := range languages {
		out = append(out, e.code2)
	}
	sort.Strings(out)
	return out
}

// DisplayName returns the English name of a tag, e.g. "American English".
// Unparseable input is returned upper-cased.
func DisplayName(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return "Unknown"
	}
	parsed, err := xlanguage.Parse(trimmed)
	if err != nil {
		return strings.ToUpper(trimmed)
	}
	if name := display.English.Tags().Name(parsed); name != "" {
		return name
	}
	return strings.ToUpper(trimmed)
}

// NativeName returns the name of a tag in its own language.
func NativeName(tag string) string {
	parsed, err := xlanguage.Parse(strings.TrimSpace(tag))
	if err != nil {
		return ""
	}
	return display.Self.Name(parsed)
}

// minDetectHits is the number of stopword hits required before Detect commits
// to an answer.
const minDetectHits = 2

// Detect guesses the base language of text by counting stopword hits. The
// boolean is false when the text is too short or ambiguous to decide.
func Detect(text string) (string, bool) {
	scores := make(map[string]int, len(languages))
	for _, word := range words(text) {
		for code, set := range stopSet {
			if _, ok := set[word]; ok {
				scores[code]++
			}
		}
	}

	best, bestScore, tied := "", 0, false
	for _, e := range languages {
		score := scores[e.code2]
		switch {
		case score > bestScore:
			best, bestScore, tied = e.code2, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if bestScore < minDetectHits || tied {
		return "", false
	}
	return best, true
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}
