package coordinator

import (
	"context"
	"fmt"
	"strings"

	"quill/internal/checker"
	"quill/internal/language"
	"quill/internal/logging"
)

// Analyze checks text synchronously in lang, or the active language when
// lang is empty. It neither publishes events nor touches sequencing; the
// embedded HTTP server uses it for one-shot requests.
func (c *Coordinator) Analyze(ctx context.Context, text, lang string) (checker.Result, error) {
	tag, err := c.resolveLanguage(text, lang)
	if err != nil {
		return checker.Result{}, err
	}
	result := c.analyze(ctx, text, tag)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Tag tokenizes text into sentences and annotates every token.
func (c *Coordinator) Tag(ctx context.Context, text string) ([]checker.TaggedSentence, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	return c.tag(ctx, text)
}

// tag mirrors analyze: a panicking tagger becomes an error for the caller.
func (c *Coordinator) tag(ctx context.Context, text string) (sentences []checker.TaggedSentence, err error) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("tagger panicked",
				logging.Any("panic", r),
				logging.String(logging.FieldEventType, "tagger_panic"),
			)
			sentences, err = nil, fmt.Errorf("tagger panic: %v", r)
		}
	}()
	return checker.Tag(ctx, c.checker, text)
}

func (c *Coordinator) resolveLanguage(text, lang string) (string, error) {
	c.mu.Lock()
	closed, current, detect := c.closed, c.language, c.autoDetect
	c.mu.Unlock()
	if closed {
		return "", ErrClosed
	}
	if strings.TrimSpace(lang) != "" {
		return language.Normalize(lang)
	}
	if detect {
		if detected, ok := language.Detect(text); ok && detected != language.Base(current) {
			return detected, nil
		}
	}
	return current, nil
}
