package checker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"quill/internal/language"
)

// Rule identifiers reported by RuleChecker.
const (
	RuleWordRepeat    = "WORD_REPEAT_RULE"
	RuleWhitespace    = "WHITESPACE_RULE"
	RuleSentenceStart = "UPPERCASE_SENTENCE_START"
	RuleSpelling      = "SPELLING_RULE"
	RuleFalseFriend   = "FALSE_FRIEND_HINT"
)

var misspellings = map[string]map[string]string{
	"en": {
		"ths":        "this",
		"teh":        "the",
		"recieve":    "receive",
		"seperate":   "separate",
		"definately": "definitely",
		"occured":    "occurred",
		"untill":     "until",
		"wich":       "which",
		"becuase":    "because",
		"accomodate": "accommodate",
		"alot":       "a lot",
	},
	"de": {
		"vieleicht":      "vielleicht",
		"nähmlich":       "nämlich",
		"wiederspiegeln": "widerspiegeln",
		"standart":       "Standard",
		"entgültig":      "endgültig",
		"agressiv":       "aggressiv",
	},
	"fr": {
		"developpement": "développement",
		"apeller":       "appeler",
		"connection":    "connexion",
		"addresse":      "adresse",
		"language":      "langage",
	},
	"es": {
		"atravez":  "a través",
		"nesecito": "necesito",
		"exelente": "excelente",
		"haci":     "así",
		"tambien":  "también",
	},
	"nl": {
		"eigelijk": "eigenlijk",
		"perse":    "per se",
	},
	"pt": {
		"excessão":   "exceção",
		"concerteza": "com certeza",
	},
}

// falseFriends maps mother tongue -> text language -> word -> intended word.
var falseFriends = map[string]map[string]map[string]string{
	"de": {"en": {
		"become":     "get",
		"actual":     "current",
		"eventually": "possibly",
		"chef":       "boss",
		"gymnasium":  "grammar school",
	}},
	"fr": {"en": {
		"actually":   "currently",
		"library":    "bookshop",
		"eventually": "possibly",
	}},
	"es": {"en": {
		"actually": "currently",
		"carpet":   "folder",
		"sensible": "sensitive",
	}},
}

// Option configures a RuleChecker.
type Option func(*RuleChecker)

// WithMotherTongue enables false friend hints for writers of that language.
func WithMotherTongue(tag string) Option {
	return func(rc *RuleChecker) {
		rc.motherTongue = language.Base(tag)
	}
}

// RuleChecker is the built-in checker. It needs no external resources.
type RuleChecker struct {
	mu           sync.RWMutex
	motherTongue string
}

// NewRuleChecker constructs a rule checker.
func NewRuleChecker(opts ...Option) *RuleChecker {
	rc := &RuleChecker{}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// SetMotherTongue changes the false friend source language. Empty disables
// the hints.
func (rc *RuleChecker) SetMotherTongue(tag string) {
	rc.mu.Lock()
	rc.motherTongue = language.Base(tag)
	rc.mu.Unlock()
}

// TokenizeSentences implements Checker.
func (rc *RuleChecker) TokenizeSentences(text string) []string {
	return SplitSentences(text)
}

// Analyze implements Checker.
func (rc *RuleChecker) Analyze(ctx context.Context, text, lang string) (Result, error) {
	result := Result{Language: lang, Matches: []Match{}}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if strings.TrimSpace(text) == "" {
		return result, nil
	}
	base := language.Base(lang)
	rc.mu.RLock()
	mother := rc.motherTongue
	rc.mu.RUnlock()

	offset := 0
	for _, sentence := range SplitSentences(text) {
		if err := ctx.Err(); err != nil {
			return Result{Language: lang}, err
		}
		s := sentenceView{text: sentence, offset: offset}
		result.Matches = append(result.Matches, s.sentenceStart()...)
		result.Matches = append(result.Matches, s.repeatedWords()...)
		result.Matches = append(result.Matches, s.whitespace()...)
		result.Matches = append(result.Matches, s.spelling(misspellings[base])...)
		if mother != "" && mother != base {
			result.Matches = append(result.Matches, s.falseFriends(falseFriends[mother][base], mother)...)
		}
		offset += len(sentence)
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Offset < result.Matches[j].Offset
	})
	return result, nil
}

// TagSentence implements Tagger.
func (rc *RuleChecker) TagSentence(sentence string) []Token {
	var tokens []Token
	for i := 0; i < len(sentence); {
		r, size := utf8.DecodeRuneInString(sentence[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			start := i
			for i < len(sentence) {
				next, n := utf8.DecodeRuneInString(sentence[i:])
				if !unicode.IsLetter(next) && !unicode.IsDigit(next) && next != '\'' {
					break
				}
				i += n
			}
			word := sentence[start:i]
			tokens = append(tokens, Token{Text: word, Offset: start, Tags: wordTags(word)})
		default:
			tokens = append(tokens, Token{Text: string(r), Offset: i, Tags: []string{"PUNCT"}})
			i += size
		}
	}
	return tokens
}

func wordTags(word string) []string {
	lemma := strings.ToLower(word)
	tags := []string{lemma}
	first, _ := utf8.DecodeRuneInString(word)
	switch {
	case unicode.IsDigit(first):
		tags = append(tags, "NUM")
	case strings.ToUpper(word) == word && utf8.RuneCountInString(word) > 1:
		tags = append(tags, "UPPER")
	case unicode.IsUpper(first):
		tags = append(tags, "CAP")
	default:
		tags = append(tags, "WORD")
	}
	return tags
}

type sentenceView struct {
	text   string
	offset int
}

func (s sentenceView) match(rule, msg string, start, length int, replacements ...string) Match {
	return Match{
		RuleID:       rule,
		Message:      msg,
		Offset:       s.offset + start,
		Length:       length,
		Replacements: replacements,
		Sentence:     strings.TrimSpace(s.text),
	}
}

func (s sentenceView) sentenceStart() []Match {
	lead := len(s.text) - len(strings.TrimLeftFunc(s.text, unicode.IsSpace))
	if lead >= len(s.text) {
		return nil
	}
	first, _ := utf8.DecodeRuneInString(s.text[lead:])
	if !unicode.IsLower(first) {
		return nil
	}
	words := scanWords(s.text)
	if len(words) == 0 || words[0].start != lead {
		return nil
	}
	w := words[0]
	return []Match{s.match(RuleSentenceStart,
		"This sentence does not start with an uppercase letter.",
		w.start, len(w.text), capitalize(w.text))}
}

func (s sentenceView) repeatedWords() []Match {
	var out []Match
	words := scanWords(s.text)
	for i := 1; i < len(words); i++ {
		prev, cur := words[i-1], words[i]
		if !strings.EqualFold(prev.text, cur.text) {
			continue
		}
		gap := s.text[prev.start+len(prev.text) : cur.start]
		if strings.TrimSpace(gap) != "" {
			continue
		}
		if unicode.IsDigit([]rune(cur.text)[0]) {
			continue
		}
		out = append(out, s.match(RuleWordRepeat,
			"Possible typo: you repeated a word.",
			prev.start, cur.start+len(cur.text)-prev.start, prev.text))
	}
	return out
}

func (s sentenceView) whitespace() []Match {
	var out []Match
	body := strings.TrimRightFunc(s.text, unicode.IsSpace)
	lead := len(body) - len(strings.TrimLeftFunc(body, unicode.IsSpace))
	for i := lead; i < len(body); i++ {
		if body[i] != ' ' {
			continue
		}
		j := i
		for j < len(body) && body[j] == ' ' {
			j++
		}
		if j-i >= 2 && body[i-1] != '\n' {
			out = append(out, s.match(RuleWhitespace,
				"Possible typo: you repeated a whitespace.",
				i, j-i, " "))
		}
		i = j
	}
	return out
}

func (s sentenceView) spelling(table map[string]string) []Match {
	if len(table) == 0 {
		return nil
	}
	var out []Match
	for _, w := range scanWords(s.text) {
		fix, ok := table[strings.ToLower(w.text)]
		if !ok {
			continue
		}
		out = append(out, s.match(RuleSpelling,
			"Possible spelling mistake found.",
			w.start, len(w.text), matchCase(w.text, fix)))
	}
	return out
}

func (s sentenceView) falseFriends(table map[string]string, mother string) []Match {
	if len(table) == 0 {
		return nil
	}
	var out []Match
	for _, w := range scanWords(s.text) {
		intended, ok := table[strings.ToLower(w.text)]
		if !ok {
			continue
		}
		msg := fmt.Sprintf("Hint: %q is a false friend for %s speakers. Did you mean %q?",
			w.text, language.DisplayName(mother), intended)
		out = append(out, s.match(RuleFalseFriend, msg, w.start, len(w.text), matchCase(w.text, intended)))
	}
	return out
}

func capitalize(word string) string {
	r, size := utf8.DecodeRuneInString(word)
	if r == utf8.RuneError {
		return word
	}
	return string(unicode.ToUpper(r)) + word[size:]
}

func matchCase(original, replacement string) string {
	first, _ := utf8.DecodeRuneInString(original)
	if unicode.IsUpper(first) {
		return capitalize(replacement)
	}
	return replacement
}
