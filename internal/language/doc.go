// Package language normalizes user supplied language identifiers into BCP-47
// tags, names them for display, and guesses the language of a text.
//
// Codes may arrive as ISO 639-1 ("en"), ISO 639-2 ("eng", "ger"), English
// words ("english") or full tags ("en-us", "pt_BR"). Normalize accepts all of
// them and returns the canonical tag form used by the checker, the
// configuration file and the event stream.
package language
