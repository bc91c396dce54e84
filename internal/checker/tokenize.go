package checker

import (
	"unicode"
	"unicode/utf8"
)

// SplitSentences cuts text after sentence-final punctuation that is followed
// by whitespace. Trailing whitespace stays with the preceding sentence so
// the pieces concatenate back to the input.
func SplitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if !isTerminal(r) {
			continue
		}
		for i < len(text) {
			next, n := utf8.DecodeRuneInString(text[i:])
			if !isTerminal(next) && !isCloser(next) {
				break
			}
			i += n
		}
		if i < len(text) {
			next, _ := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(next) {
				continue
			}
		}
		for i < len(text) {
			next, n := utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(next) {
				break
			}
			i += n
		}
		out = append(out, text[start:i])
		start = i
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '”', '’':
		return true
	}
	return false
}

type span struct {
	text  string
	start int
}

// scanWords returns the letter/digit runs of text with their byte offsets.
// Apostrophes inside a word are kept ("don't").
func scanWords(text string) []span {
	var out []span
	start := -1
	for i, r := range text {
		inWord := unicode.IsLetter(r) || unicode.IsDigit(r) || (r == '\'' && start >= 0)
		if inWord {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, span{text: trimApostrophe(text[start:i]), start: start})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, span{text: trimApostrophe(text[start:]), start: start})
	}
	return out
}

func trimApostrophe(s string) string {
	for len(s) > 0 && s[len(s)-1] == '\'' {
		s = s[:len(s)-1]
	}
	return s
}
