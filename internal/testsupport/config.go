package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"quill/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with a unique state directory per test.
// The directory lives under os.TempDir with a short name so unix socket paths
// stay below the platform limit.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base, err := os.MkdirTemp("", "quill")
	if err != nil {
		t.Fatalf("create state dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(base) })

	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Server.Port = 0
	cfgVal.Server.RunOnStartup = false
	cfgVal.Checking.DebounceMS = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithLanguage sets the default checking language.
func WithLanguage(tag string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Checking.Language = tag
	}
}

// WithServerOnStartup enables the embedded server at startup.
func WithServerOnStartup(port int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.RunOnStartup = true
		b.cfg.Server.Port = port
	}
}

// WithDebounce sets the background check coalescing window in milliseconds.
func WithDebounce(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Checking.DebounceMS = ms
	}
}

// WithConfigFile writes the config to disk and returns its path via dest.
func WithConfigFile(dest *string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "config.toml")
		if err := b.cfg.Save(path); err != nil {
			b.t.Fatalf("save config: %v", err)
		}
		*dest = path
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
