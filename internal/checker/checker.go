// Package checker defines the grammar checking capability and ships a small
// rule based engine.
//
// Offsets and lengths in a Match are byte positions into the checked text.
package checker

import (
	"context"
	"strings"
)

// Checker analyzes text for a language. Implementations must be safe for use
// by one goroutine at a time; the coordinator never calls them concurrently.
type Checker interface {
	Analyze(ctx context.Context, text, language string) (Result, error)
	TokenizeSentences(text string) []string
}

// Tagger is implemented by checkers that can annotate tokens.
type Tagger interface {
	TagSentence(sentence string) []Token
}

// Match is one finding in the checked text.
type Match struct {
	RuleID       string   `json:"rule_id" yaml:"rule_id"`
	Message      string   `json:"message" yaml:"message"`
	Offset       int      `json:"offset" yaml:"offset"`
	Length       int      `json:"length" yaml:"length"`
	Replacements []string `json:"replacements,omitempty" yaml:"replacements,omitempty"`
	Sentence     string   `json:"sentence,omitempty" yaml:"sentence,omitempty"`
}

// Result is the outcome of one Analyze call. Error carries a failure
// description when the check could not complete.
type Result struct {
	Language string  `json:"language" yaml:"language"`
	Matches  []Match `json:"matches" yaml:"matches"`
	Error    string  `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the result carries an inline error.
func (r Result) Failed() bool {
	return strings.TrimSpace(r.Error) != ""
}

// Token is one analyzed word or punctuation mark.
type Token struct {
	Text   string   `json:"text" yaml:"text"`
	Offset int      `json:"offset" yaml:"offset"`
	Tags   []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// TaggedSentence is the token analysis of one sentence.
type TaggedSentence struct {
	Sentence string  `json:"sentence" yaml:"sentence"`
	Tokens   []Token `json:"tokens" yaml:"tokens"`
}

// String renders the sentence as "word[tag,tag], word[tag]".
func (s TaggedSentence) String() string {
	parts := make([]string, 0, len(s.Tokens))
	for _, tok := range s.Tokens {
		if len(tok.Tags) == 0 {
			parts = append(parts, tok.Text)
			continue
		}
		parts = append(parts, tok.Text+"["+strings.Join(tok.Tags, ",")+"]")
	}
	return strings.Join(parts, ", ")
}

// Tag splits text into sentences and annotates each one. Checkers that do not
// implement Tagger yield untagged tokens.
func Tag(ctx context.Context, c Checker, text string) ([]TaggedSentence, error) {
	tagger, _ := c.(Tagger)
	sentences := c.TokenizeSentences(text)
	out := make([]TaggedSentence, 0, len(sentences))
	for _, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(sentence)
		if trimmed == "" {
			continue
		}
		var tokens []Token
		if tagger != nil {
			tokens = tagger.TagSentence(trimmed)
		} else {
			for _, w := range scanWords(trimmed) {
				tokens = append(tokens, Token{Text: w.text, Offset: w.start})
			}
		}
		out = append(out, TaggedSentence{Sentence: trimmed, Tokens: tokens})
	}
	return out, nil
}
