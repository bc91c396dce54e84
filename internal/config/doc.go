// Package config loads, normalizes, validates and persists quill settings.
//
// Settings live in a TOML file (~/.config/quill/config.toml by default). The
// package supplies defaults, expands user paths, canonicalizes language tags
// and writes changes back atomically so the tray, the options view and the
// CLI all observe the same persisted state.
package config
